package config

// DefaultSettings 定义所有设置的默认值
type DefaultSettings struct {
	InjectTypename bool
	InjectApqError bool
}

// GetDefaultSettings 返回默认设置
func GetDefaultSettings() DefaultSettings {
	return DefaultSettings{
		InjectTypename: true,
		InjectApqError: true,
	}
}
