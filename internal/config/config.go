package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config 配置结构体
type Config struct {
	Version string `yaml:"version"`
	Sqlite  struct {
		Db     string `yaml:"db"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`
	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
		Dir    string   `yaml:"dir"`
	} `yaml:"log"`
	Capture struct {
		DevToolsURL         string   `yaml:"devtoolsURL"`
		CorrelationWindowMS int64    `yaml:"correlationWindowMS"`
		BodyFetchTimeoutMS  int      `yaml:"bodyFetchTimeoutMS"`
		Concurrency         int      `yaml:"concurrency"`
		PendingCapacity     int      `yaml:"pendingCapacity"`
		ExcludeURLs         []string `yaml:"excludeURLs"`
	} `yaml:"capture"`
	Browser struct {
		Launch   bool   `yaml:"launch"`
		ExecPath string `yaml:"execPath"`
		Port     int    `yaml:"port"`
		Headless bool   `yaml:"headless"`
		DataDir  string `yaml:"dataDir"`
	} `yaml:"browser"`
	Server struct {
		ListenAddr string  `yaml:"listenAddr"`
		UIRate     float64 `yaml:"uiRate"`
		UIBurst    int     `yaml:"uiBurst"`
	} `yaml:"server"`
	ExportDir string `yaml:"exportDir"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	cfg := &Config{Version: "1.0.0"}
	cfg.Sqlite.Db = "data.db"
	cfg.Sqlite.Prefix = "spectral_"
	cfg.Log.Level = "debug"
	// file需要在console之前，stderr被关闭时不影响文件日志
	cfg.Log.Writer = []string{"file", "console"}
	cfg.Capture.DevToolsURL = "http://localhost:9222"
	cfg.Capture.CorrelationWindowMS = 2000
	cfg.Capture.BodyFetchTimeoutMS = 10000
	cfg.Capture.Concurrency = 16
	cfg.Capture.PendingCapacity = 256
	cfg.Browser.Port = 9222
	cfg.Server.ListenAddr = "127.0.0.1:8787"
	cfg.Server.UIRate = 50
	cfg.Server.UIBurst = 20
	cfg.ExportDir = "./captures"
	return cfg
}

// Load 读取可选的 .env 文件并用环境变量覆盖默认配置
func Load(files ...string) *Config {
	// .env 不存在时忽略
	_ = godotenv.Load(files...)

	cfg := NewConfig()
	cfg.Sqlite.Db = getEnvOrDefault("SPECTRAL_DB", cfg.Sqlite.Db)
	cfg.Sqlite.Prefix = getEnvOrDefault("SPECTRAL_DB_PREFIX", cfg.Sqlite.Prefix)
	cfg.Log.Level = getEnvOrDefault("SPECTRAL_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Writer = getEnvListOrDefault("SPECTRAL_LOG_WRITER", cfg.Log.Writer)
	cfg.Log.Dir = getEnvOrDefault("SPECTRAL_LOG_DIR", cfg.Log.Dir)
	cfg.Capture.DevToolsURL = getEnvOrDefault("SPECTRAL_DEVTOOLS_URL", cfg.Capture.DevToolsURL)
	cfg.Capture.CorrelationWindowMS = int64(getEnvIntOrDefault("SPECTRAL_CORRELATION_WINDOW_MS", int(cfg.Capture.CorrelationWindowMS)))
	cfg.Capture.BodyFetchTimeoutMS = getEnvIntOrDefault("SPECTRAL_BODY_FETCH_TIMEOUT_MS", cfg.Capture.BodyFetchTimeoutMS)
	cfg.Capture.Concurrency = getEnvIntOrDefault("SPECTRAL_CONCURRENCY", cfg.Capture.Concurrency)
	cfg.Capture.PendingCapacity = getEnvIntOrDefault("SPECTRAL_PENDING_CAPACITY", cfg.Capture.PendingCapacity)
	cfg.Capture.ExcludeURLs = getEnvListOrDefault("SPECTRAL_EXCLUDE_URLS", cfg.Capture.ExcludeURLs)
	cfg.Browser.Launch = getEnvBoolOrDefault("SPECTRAL_LAUNCH_BROWSER", cfg.Browser.Launch)
	cfg.Browser.ExecPath = getEnvOrDefault("SPECTRAL_BROWSER_PATH", cfg.Browser.ExecPath)
	cfg.Browser.Port = getEnvIntOrDefault("SPECTRAL_BROWSER_PORT", cfg.Browser.Port)
	cfg.Browser.Headless = getEnvBoolOrDefault("SPECTRAL_BROWSER_HEADLESS", cfg.Browser.Headless)
	cfg.Browser.DataDir = getEnvOrDefault("SPECTRAL_BROWSER_DATA_DIR", cfg.Browser.DataDir)
	cfg.Server.ListenAddr = getEnvOrDefault("SPECTRAL_LISTEN_ADDR", cfg.Server.ListenAddr)
	cfg.Server.UIRate = getEnvFloatOrDefault("SPECTRAL_UI_RATE", cfg.Server.UIRate)
	cfg.Server.UIBurst = getEnvIntOrDefault("SPECTRAL_UI_BURST", cfg.Server.UIBurst)
	cfg.ExportDir = getEnvOrDefault("SPECTRAL_EXPORT_DIR", cfg.ExportDir)
	return cfg
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvFloatOrDefault(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	out := make([]string, 0)
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
