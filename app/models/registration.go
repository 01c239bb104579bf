package models

import "time"

// Registration statuses.
const (
	RegistrationStatusPending   = "pending"
	RegistrationStatusConfirmed = "confirmed"
	RegistrationStatusDeclined  = "declined"
)

// Registration is an attendee registration for an event. It stays pending
// until the payment reconciler confirms the attached payment.
type Registration struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	EventID       uint       `gorm:"not null;index" json:"event_id"`
	Event         *Event     `gorm:"foreignKey:EventID" json:"event,omitempty"`
	AttendeeName  string     `gorm:"size:255;not null" json:"attendee_name"`
	Email         string     `gorm:"size:255;not null;index" json:"email"`
	Phone         string     `gorm:"size:50;not null;default:''" json:"phone"`
	Status        string     `gorm:"size:20;not null;default:'pending';index" json:"status"`
	DeclineReason string     `gorm:"size:255;not null;default:''" json:"decline_reason,omitempty"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Confirm moves a pending registration to confirmed. Confirming an already
// confirmed or declined registration is a no-op.
func (r *Registration) Confirm(now time.Time) bool {
	if r.Status != RegistrationStatusPending {
		return false
	}
	r.Status = RegistrationStatusConfirmed
	r.ConfirmedAt = &now
	return true
}

// Decline records a failed payment outcome. Declined is final for this row;
// retrying means opening a new registration.
func (r *Registration) Decline(reason string) bool {
	if r.Status != RegistrationStatusPending {
		return false
	}
	r.Status = RegistrationStatusDeclined
	r.DeclineReason = reason
	return true
}
