package models

import "time"

// Event represents a summit event that accepts paid registrations
type Event struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Slug        string    `gorm:"size:255;not null;uniqueIndex" json:"slug"`
	Description string    `gorm:"type:text" json:"description"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Price       float64   `gorm:"type:decimal(10,2);not null;default:0" json:"price"`
	Currency    string    `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Capacity    int       `gorm:"not null;default:0" json:"capacity"`
	IsPublished bool      `gorm:"default:false;index" json:"is_published"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsFree reports whether registrations for this event skip the payment window.
func (e *Event) IsFree() bool {
	return e.Price <= 0
}
