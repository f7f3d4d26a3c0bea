package repo

import (
	"context"
	"errors"
	"strconv"
	"time"

	"spectral/internal/config"
	"spectral/internal/storage/model"
	"spectral/pkg/domain"

	"gorm.io/gorm"
)

// SettingsRepo 键值设置仓库
type SettingsRepo struct {
	BaseRepository[model.Setting]
}

// NewSettingsRepo 创建设置仓库实例
func NewSettingsRepo(db *gorm.DB) *SettingsRepo {
	return &SettingsRepo{
		BaseRepository: *NewBaseRepository[model.Setting](db),
	}
}

// Get 获取设置值，不存在时返回 domain.ErrRecordNotFound
func (r *SettingsRepo) Get(ctx context.Context, key string) (string, error) {
	var setting model.Setting
	err := r.Db.WithContext(ctx).Where("key = ?", key).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", domain.ErrRecordNotFound
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

// GetWithDefault 获取设置值，不存在时返回默认值
func (r *SettingsRepo) GetWithDefault(ctx context.Context, key, defaultValue string) string {
	val, err := r.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	return val
}

// Set 设置值，存在则更新
func (r *SettingsRepo) Set(ctx context.Context, key, value string) error {
	return r.Save(ctx, &model.Setting{Key: key, Value: value, UpdatedAt: time.Now()})
}

// SetMultiple 在一个事务中批量设置
func (r *SettingsRepo) SetMultiple(ctx context.Context, kvs map[string]string) error {
	return r.Db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		for key, value := range kvs {
			if err := tx.Save(&model.Setting{Key: key, Value: value, UpdatedAt: now}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadSettings 读取拦截设置，缺失或无法解析的项取默认值
func (r *SettingsRepo) LoadSettings(ctx context.Context) domain.Settings {
	def := config.GetDefaultSettings()
	return domain.Settings{
		InjectTypename: r.getBool(ctx, model.SettingKeyInjectTypename, def.InjectTypename),
		InjectApqError: r.getBool(ctx, model.SettingKeyInjectApqError, def.InjectApqError),
	}
}

// SaveSettings 保存拦截设置
func (r *SettingsRepo) SaveSettings(ctx context.Context, s domain.Settings) error {
	return r.SetMultiple(ctx, map[string]string{
		model.SettingKeyInjectTypename: strconv.FormatBool(s.InjectTypename),
		model.SettingKeyInjectApqError: strconv.FormatBool(s.InjectApqError),
	})
}

func (r *SettingsRepo) getBool(ctx context.Context, key string, def bool) bool {
	v, err := strconv.ParseBool(r.GetWithDefault(ctx, key, strconv.FormatBool(def)))
	if err != nil {
		return def
	}
	return v
}
