package models

import "time"

// WebhookEvent is the append-only ledger of inbound provider webhook
// deliveries. The unique (provider, provider_event_id) pair gives exact
// deduplication whenever the provider issues an event id; deliveries
// without one fall back to a payload hash.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"size:20;not null;index:ux_webhook_events_provider_event,unique,priority:1;index" json:"provider"`
	ProviderEventID string     `gorm:"size:191;not null;default:'';index:ux_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"size:100;not null;default:'';index" json:"event_type"`
	InvoiceID       string     `gorm:"size:191;not null;default:'';index" json:"invoice_id"`
	ReportedStatus  string     `gorm:"size:50;not null;default:''" json:"reported_status"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
