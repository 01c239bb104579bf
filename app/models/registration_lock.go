package models

import "time"

// RegistrationLock is a TTL-based mutual-exclusion record that blocks
// duplicate registrations for the same identity while a payment window is
// open. Expiry alone arbitrates contention: there is no renewal mechanism,
// an abandoned flow simply times out.
type RegistrationLock struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"size:255;not null;index:ux_registration_locks_identity,unique,priority:1" json:"email"`
	Phone     string    `gorm:"size:50;not null;default:'';index:ux_registration_locks_identity,unique,priority:2" json:"phone"`
	EventID   uint      `gorm:"not null;index:ux_registration_locks_identity,unique,priority:3" json:"event_id"`
	Token     string    `gorm:"size:36;not null;uniqueIndex" json:"token"`
	LockedAt  time.Time `gorm:"not null" json:"locked_at"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for RegistrationLock
func (RegistrationLock) TableName() string {
	return "registration_locks"
}

// IsExpired reports whether the lock TTL has elapsed.
func (l *RegistrationLock) IsExpired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// MinutesRemaining returns the whole minutes left before expiry, zero for
// expired locks.
func (l *RegistrationLock) MinutesRemaining(now time.Time) int {
	if l.IsExpired(now) {
		return 0
	}
	return int(l.ExpiresAt.Sub(now).Minutes())
}
