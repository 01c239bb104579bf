package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/zoemaddison050/leadership-summit/app/models"
)

// settingRepository implements SettingRepository using GORM
type settingRepository struct {
	db *gorm.DB
}

// NewSettingRepository creates a new setting repository instance
func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &settingRepository{db: db}
}

func (r *settingRepository) GetCurrent() (*models.UniPaymentSetting, error) {
	var setting models.UniPaymentSetting
	if err := r.db.Where("is_current = ?", true).First(&setting).Error; err != nil {
		return nil, err
	}
	return &setting, nil
}

func (r *settingRepository) Save(setting *models.UniPaymentSetting) error {
	if err := setting.Validate(); err != nil {
		return err
	}
	return r.db.Save(setting).Error
}

func (r *settingRepository) MakeCurrent(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.UniPaymentSetting{}).
			Where("is_current = ? AND id <> ?", true, id).
			Update("is_current", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.UniPaymentSetting{}).
			Where("id = ?", id).
			Update("is_current", true).Error
	})
}

func (r *settingRepository) RecordWebhookTest(id uint, at time.Time, ok bool) error {
	return r.db.Model(&models.UniPaymentSetting{}).Where("id = ?", id).Updates(map[string]interface{}{
		"last_webhook_test_at": &at,
		"last_webhook_test_ok": ok,
	}).Error
}
