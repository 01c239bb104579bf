package models

import (
	"errors"
	"time"
)

// Payment transaction statuses. Completed, failed and refunded are terminal.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

var (
	// ErrInvalidPaymentStatus is returned when a status outside the known
	// enum is passed to UpdateStatus.
	ErrInvalidPaymentStatus = errors.New("invalid payment status")
	// ErrTerminalPaymentStatus is returned when a transition out of a
	// terminal status is attempted.
	ErrTerminalPaymentStatus = errors.New("payment transaction is in a terminal status")
)

// PaymentTransaction is the persisted record of a single payment attempt.
// Rows are never deleted; they form the audit trail for reconciliation.
type PaymentTransaction struct {
	ID               uint          `gorm:"primaryKey" json:"id"`
	RegistrationID   uint          `gorm:"not null;index" json:"registration_id"`
	Registration     *Registration `gorm:"foreignKey:RegistrationID" json:"registration,omitempty"`
	Provider         string        `gorm:"size:20;not null;index" json:"provider"`
	ProviderTxnID    string        `gorm:"column:provider_txn_id;size:191;not null;index" json:"provider_txn_id"`
	PaymentMethod    string        `gorm:"size:50;not null;default:''" json:"payment_method"`
	Amount           float64       `gorm:"type:decimal(10,2);not null;default:0" json:"amount"`
	Currency         string        `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Fee              float64       `gorm:"type:decimal(10,2);not null;default:0" json:"fee"`
	Status           string        `gorm:"size:20;not null;default:'pending';index" json:"status"`
	ProviderResponse string        `gorm:"type:longtext" json:"provider_response,omitempty"`
	CallbackData     string        `gorm:"type:longtext" json:"callback_data,omitempty"`
	ProcessedAt      *time.Time    `json:"processed_at,omitempty"`
	CreatedAt        time.Time     `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// TableName specifies the table name for PaymentTransaction
func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

// IsValidPaymentStatus reports whether s belongs to the status enum.
func IsValidPaymentStatus(s string) bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the transaction reached a terminal status.
func (t *PaymentTransaction) IsTerminal() bool {
	switch t.Status {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// UpdateStatus applies a status transition in memory. Unknown statuses are
// rejected without mutation, terminal statuses are immutable. ProcessedAt is
// set only on the transition into completed or failed.
func (t *PaymentTransaction) UpdateStatus(status, providerResponse string) error {
	if !IsValidPaymentStatus(status) {
		return ErrInvalidPaymentStatus
	}
	if t.IsTerminal() {
		if status == t.Status {
			// Re-applying the same terminal status is a no-op so that
			// duplicate webhook deliveries stay side-effect free.
			return nil
		}
		return ErrTerminalPaymentStatus
	}

	t.Status = status
	if providerResponse != "" {
		t.ProviderResponse = providerResponse
	}
	if status == PaymentStatusCompleted || status == PaymentStatusFailed {
		now := time.Now()
		t.ProcessedAt = &now
	}
	return nil
}

// MarkCompleted transitions the transaction into completed.
func (t *PaymentTransaction) MarkCompleted(providerResponse string) error {
	return t.UpdateStatus(PaymentStatusCompleted, providerResponse)
}

// MarkFailed transitions the transaction into failed.
func (t *PaymentTransaction) MarkFailed(providerResponse string) error {
	return t.UpdateStatus(PaymentStatusFailed, providerResponse)
}

// MarkRefunded transitions the transaction into refunded.
func (t *PaymentTransaction) MarkRefunded(providerResponse string) error {
	return t.UpdateStatus(PaymentStatusRefunded, providerResponse)
}
