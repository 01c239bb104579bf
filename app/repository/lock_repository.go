package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zoemaddison050/leadership-summit/app/models"
)

// lockRepository implements LockRepository using GORM
type lockRepository struct {
	db *gorm.DB
}

// NewLockRepository creates a new lock repository instance
func NewLockRepository(db *gorm.DB) LockRepository {
	return &lockRepository{db: db}
}

func (r *lockRepository) CreateIfAbsent(lock *models.RegistrationLock) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "email"},
			{Name: "phone"},
			{Name: "event_id"},
		},
		DoNothing: true,
	}).Create(lock)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *lockRepository) Find(email, phone string, eventID uint) (*models.RegistrationLock, error) {
	var lock models.RegistrationLock
	err := r.db.Where("email = ? AND phone = ? AND event_id = ?", email, phone, eventID).
		First(&lock).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &lock, nil
}

func (r *lockRepository) DeleteByToken(email, phone string, eventID uint, token string) (int64, error) {
	tx := r.db.Where("email = ? AND phone = ? AND event_id = ? AND token = ?", email, phone, eventID, token).
		Delete(&models.RegistrationLock{})
	return tx.RowsAffected, tx.Error
}

func (r *lockRepository) DeleteByKey(email, phone string, eventID uint) (int64, error) {
	tx := r.db.Where("email = ? AND phone = ? AND event_id = ?", email, phone, eventID).
		Delete(&models.RegistrationLock{})
	return tx.RowsAffected, tx.Error
}

func (r *lockRepository) DeleteExpiredByKey(email, phone string, eventID uint, before time.Time) (int64, error) {
	tx := r.db.Where("email = ? AND phone = ? AND event_id = ? AND expires_at < ?", email, phone, eventID, before).
		Delete(&models.RegistrationLock{})
	return tx.RowsAffected, tx.Error
}

func (r *lockRepository) DeleteExpired(before time.Time) (int64, error) {
	tx := r.db.Where("expires_at < ?", before).Delete(&models.RegistrationLock{})
	return tx.RowsAffected, tx.Error
}
