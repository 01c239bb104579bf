package payment

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Provider identifiers.
const ProviderUniPayment = "unipayment"

var (
	// ErrMalformedPayload covers invalid JSON and missing required fields.
	ErrMalformedPayload = errors.New("malformed webhook payload")
	// ErrUnknownInvoice is returned when no local transaction matches the
	// webhook's invoice id.
	ErrUnknownInvoice = errors.New("no payment transaction for invoice")
	// ErrProviderUnavailable wraps remote status-fetch failures. Handlers
	// surface it as a 5xx so the provider redelivers.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)

// WebhookPayload is the provider-defined JSON body of an inbound webhook,
// validated at the boundary before any business logic sees it.
type WebhookPayload struct {
	EventID       string  `json:"event_id"`
	EventType     string  `json:"event_type"`
	InvoiceID     string  `json:"invoice_id" validate:"required"`
	OrderID       string  `json:"order_id"`
	Status        string  `json:"status"`
	Amount        float64 `json:"amount" validate:"gte=0"`
	Currency      string  `json:"currency" validate:"omitempty,len=3"`
	Fee           float64 `json:"fee" validate:"gte=0"`
	PaymentMethod string  `json:"payment_method"`
}

var payloadValidator = validator.New()

// ParseWebhookPayload decodes and validates a raw webhook body. Both decode
// and validation failures map onto ErrMalformedPayload.
func ParseWebhookPayload(raw []byte) (*WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := payloadValidator.Struct(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &p, nil
}

// Outcome is the reconciler's verdict for one webhook delivery.
type Outcome int

const (
	// OutcomeProcessed means the delivery drove a terminal transition.
	OutcomeProcessed Outcome = iota
	// OutcomeDuplicate means the delivery was absorbed without side effects.
	OutcomeDuplicate
	// OutcomePending means the remote status was not terminal yet.
	OutcomePending
	// OutcomeIgnored means the delivery referenced nothing we own.
	OutcomeIgnored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomePending:
		return "pending"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}
