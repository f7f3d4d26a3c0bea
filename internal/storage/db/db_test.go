package db_test

import (
	"path/filepath"
	"strings"
	"testing"

	"spectral/internal/logger"
	"spectral/internal/storage/db"
)

// TestModel 用于测试迁移和基础读写的简单模型
type TestModel struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:255"`
}

func TestGetDefaultPath(t *testing.T) {
	dbName := "test_db.db"
	path, err := db.GetDefaultPath(dbName)
	if err != nil {
		t.Fatalf("获取默认路径失败: %v", err)
	}
	if !strings.HasSuffix(path, dbName) {
		t.Errorf("路径 %s 不是以 %s 结尾", path, dbName)
	}
	if !strings.Contains(path, "spectral") {
		t.Errorf("路径 %s 不包含应用名称 'spectral'", path)
	}
}

// TestDatabaseInitialization 验证表前缀、SingularTable 策略与基本读写
func TestDatabaseInitialization(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "unit_test.db")

	gdb, err := db.New(db.Options{
		FullPath: dbPath,
		Prefix:   "test_",
		Logger:   db.NewLogger(logger.NewNop()),
	})
	if err != nil {
		t.Fatalf("初始化数据库连接失败: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("获取底层的 sql.DB 失败: %v", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		t.Errorf("数据库 Ping 失败: %v", err)
	}

	if err := db.Migrate(gdb, &TestModel{}); err != nil {
		t.Fatalf("执行数据库迁移失败: %v", err)
	}

	if err := gdb.Create(&TestModel{Name: "trace"}).Error; err != nil {
		t.Errorf("写入数据失败: %v", err)
	}

	var count int64
	if err := gdb.Model(&TestModel{}).Count(&count).Error; err != nil {
		t.Errorf("查询记录数失败: %v", err)
	}
	if count != 1 {
		t.Errorf("预期记录数为 1，实际为 %d", count)
	}

	var tableName string
	row := sqlDB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='test_test_model'")
	if err := row.Scan(&tableName); err != nil {
		t.Errorf("未找到预期的带前缀表名 'test_test_model': %v", err)
	}

	var mode string
	if err := sqlDB.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("查询 journal_mode 失败: %v", err)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Errorf("文件库应启用 WAL，实际 %s", mode)
	}
}

func TestMemoryDatabase(t *testing.T) {
	gdb, err := db.New(db.Options{Name: ":memory:"})
	if err != nil {
		t.Fatalf("创建内存数据库失败: %v", err)
	}
	if err := db.Migrate(gdb, &TestModel{}); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}
	// 单连接下迁移后的表对后续查询可见
	if err := gdb.Create(&TestModel{Name: "a"}).Error; err != nil {
		t.Errorf("写入内存库失败: %v", err)
	}
	if err := db.Close(gdb); err != nil {
		t.Errorf("关闭数据库失败: %v", err)
	}
}
