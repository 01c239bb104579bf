package repository

import (
	"time"

	"github.com/zoemaddison050/leadership-summit/app/models"
)

// EventRepository defines the interface for event-related database operations
type EventRepository interface {
	GetByID(id uint) (*models.Event, error)
	GetBySlug(slug string) (*models.Event, error)
	Create(event *models.Event) error
	Update(event *models.Event) error
}

// RegistrationRepository defines the interface for registration-related
// database operations
type RegistrationRepository interface {
	Create(reg *models.Registration) error
	GetByID(id uint) (*models.Registration, error)
	Update(reg *models.Registration) error
	CountConfirmedByEvent(eventID uint) (int64, error)
}

// LockRepository defines the interface for registration-lock rows. Every
// operation is a single atomic statement; the unique identity index arbitrates
// concurrent inserts.
type LockRepository interface {
	// CreateIfAbsent inserts the lock unless a row for the same identity
	// already exists. Returns true when the insert won.
	CreateIfAbsent(lock *models.RegistrationLock) (bool, error)
	Find(email, phone string, eventID uint) (*models.RegistrationLock, error)
	DeleteByToken(email, phone string, eventID uint, token string) (int64, error)
	DeleteByKey(email, phone string, eventID uint) (int64, error)
	DeleteExpiredByKey(email, phone string, eventID uint, before time.Time) (int64, error)
	DeleteExpired(before time.Time) (int64, error)
}

// PaymentTransactionRepository defines the interface for payment transaction
// persistence. Rows are never deleted.
type PaymentTransactionRepository interface {
	Create(txn *models.PaymentTransaction) error
	GetByID(id uint) (*models.PaymentTransaction, error)
	GetByProviderTxnID(provider, providerTxnID string) (*models.PaymentTransaction, error)
	Update(txn *models.PaymentTransaction) error
	// ExistsWithStatusSince reports whether a transaction with the given
	// provider invoice id already carries status and was updated after the
	// cutoff. Backs the windowed idempotency fallback.
	ExistsWithStatusSince(provider, providerTxnID, status string, since time.Time) (bool, error)
}

// WebhookEventRepository defines the interface for the webhook delivery ledger
type WebhookEventRepository interface {
	// CreateIfNotExists appends the event unless the (provider, event id)
	// pair was already recorded. Returns true when this delivery is new.
	CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkProcessed(id uint, processingError string) error
	LastReceivedAt(provider string) (*time.Time, error)
}

// SettingRepository defines the interface for UniPayment configuration rows
type SettingRepository interface {
	GetCurrent() (*models.UniPaymentSetting, error)
	Save(setting *models.UniPaymentSetting) error
	// MakeCurrent flags the given row current and clears the flag elsewhere.
	MakeCurrent(id uint) error
	RecordWebhookTest(id uint, at time.Time, ok bool) error
}
