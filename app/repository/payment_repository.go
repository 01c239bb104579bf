package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/zoemaddison050/leadership-summit/app/models"
)

// paymentTransactionRepository implements PaymentTransactionRepository using GORM
type paymentTransactionRepository struct {
	db *gorm.DB
}

// NewPaymentTransactionRepository creates a new payment transaction repository instance
func NewPaymentTransactionRepository(db *gorm.DB) PaymentTransactionRepository {
	return &paymentTransactionRepository{db: db}
}

func (r *paymentTransactionRepository) Create(txn *models.PaymentTransaction) error {
	return r.db.Create(txn).Error
}

func (r *paymentTransactionRepository) GetByID(id uint) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	if err := r.db.First(&txn, id).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *paymentTransactionRepository) GetByProviderTxnID(provider, providerTxnID string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.db.Where("provider = ? AND provider_txn_id = ?", provider, providerTxnID).
		Order("id DESC").
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *paymentTransactionRepository) Update(txn *models.PaymentTransaction) error {
	return r.db.Save(txn).Error
}

func (r *paymentTransactionRepository) ExistsWithStatusSince(provider, providerTxnID, status string, since time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&models.PaymentTransaction{}).
		Where("provider = ? AND provider_txn_id = ? AND status = ? AND updated_at >= ?",
			provider, providerTxnID, status, since).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
