package payment

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/zoemaddison050/leadership-summit/app/models"
	"github.com/zoemaddison050/leadership-summit/app/repository"
)

// DuplicateWindow bounds the fallback heuristic: identical (invoice, status)
// deliveries further apart than this are reprocessed. Reprocessing is a
// no-op in effect because terminal transitions are idempotent.
const DuplicateWindow = 5 * time.Minute

// IdempotencyGuard deduplicates repeated webhook deliveries. The primary
// mechanism is the append-only WebhookEvent ledger keyed by the provider's
// event id; deliveries without an event id fall back to a payload hash and
// the windowed (invoice, status) check against PaymentTransaction.
type IdempotencyGuard struct {
	webhooks repository.WebhookEventRepository
	payments repository.PaymentTransactionRepository
	now      func() time.Time
}

// NewIdempotencyGuard creates a guard over the two backing repositories.
func NewIdempotencyGuard(webhooks repository.WebhookEventRepository, payments repository.PaymentTransactionRepository) *IdempotencyGuard {
	return &IdempotencyGuard{webhooks: webhooks, payments: payments, now: time.Now}
}

// RecordDelivery appends the delivery to the ledger. The returned bool is
// false when the same (provider, event id) pair was already recorded, i.e.
// the delivery is a duplicate. Ledger write failures fail open: the delivery
// is treated as new so processing is never silently dropped.
func (g *IdempotencyGuard) RecordDelivery(provider string, p *WebhookPayload, raw []byte, signatureValid bool) (bool, *models.WebhookEvent) {
	eventID := strings.TrimSpace(p.EventID)
	if eventID == "" {
		sum := sha256.Sum256(raw)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(p.EventType),
		InvoiceID:       p.InvoiceID,
		ReportedStatus:  p.Status,
		PayloadJSON:     string(raw),
		SignatureValid:  signatureValid,
	}
	created, stored, err := g.webhooks.CreateIfNotExists(event)
	if err != nil {
		log.Errorf("webhook ledger write failed, failing open: %v", err)
		return true, event
	}
	return created, stored
}

// IsDuplicate applies the windowed fallback: true when a transaction with
// this invoice id already carries the reported status and was updated within
// DuplicateWindow. Lookup failures fail open (not duplicate).
func (g *IdempotencyGuard) IsDuplicate(provider, invoiceID, reportedStatus string) bool {
	status := strings.ToLower(strings.TrimSpace(reportedStatus))
	if !models.IsValidPaymentStatus(status) {
		// The webhook reports provider vocabulary; map it onto our enum
		// before comparing against stored transactions.
		switch ClassifyStatus(reportedStatus) {
		case StatusSuccess:
			status = models.PaymentStatusCompleted
		case StatusFailure:
			status = models.PaymentStatusFailed
		default:
			return false
		}
	}

	cutoff := g.now().Add(-DuplicateWindow)
	exists, err := g.payments.ExistsWithStatusSince(provider, invoiceID, status, cutoff)
	if err != nil {
		log.Errorf("idempotency lookup failed, failing open: %v", err)
		return false
	}
	return exists
}
