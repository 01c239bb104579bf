package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/zoemaddison050/leadership-summit/app/models"
	"github.com/zoemaddison050/leadership-summit/app/repository"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/cache"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/monitor"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/security"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/unipayment"
)

const remoteFetchTimeout = 10 * time.Second

// InvoiceFetcher is the outbound dependency of the reconciler: an
// authoritative read of the invoice's current state.
type InvoiceFetcher interface {
	GetInvoice(ctx context.Context, invoiceID string) (*unipayment.Invoice, error)
}

// FetcherFactory builds an InvoiceFetcher from the current provider
// configuration. Injected so tests can substitute a fake provider.
type FetcherFactory func(setting *models.UniPaymentSetting, appKey string) (InvoiceFetcher, error)

// LockReleaser frees a registration lock by identity. Satisfied by
// reglock.Store; the reconciler holds no owner token, so release is always
// identity-scoped.
type LockReleaser interface {
	ForceRelease(email, phone string, eventID uint) (int64, error)
}

func defaultFetcherFactory(setting *models.UniPaymentSetting, appKey string) (InvoiceFetcher, error) {
	return unipayment.NewClientFromSetting(setting, appKey)
}

// Reconciler merges locally received webhook data with an authoritative
// remote status fetch and drives the payment transaction state machine. The
// webhook's own status field never decides the outcome; the provider answer
// does, which keeps arbitrary reordering and duplication safe.
type Reconciler struct {
	payments      repository.PaymentTransactionRepository
	registrations repository.RegistrationRepository
	settings      repository.SettingRepository
	guard         *IdempotencyGuard
	validator     *SignatureValidator
	monitor       *monitor.Aggregator
	audit         *security.AuditLogger
	appKey        string
	locks         LockReleaser
	newFetcher    FetcherFactory
	now           func() time.Time
}

// NewReconciler wires the webhook processing pipeline.
func NewReconciler(
	repos *repository.Repositories,
	guard *IdempotencyGuard,
	validator *SignatureValidator,
	agg *monitor.Aggregator,
	audit *security.AuditLogger,
	appKey string,
) *Reconciler {
	if audit == nil {
		audit = security.Default()
	}
	return &Reconciler{
		payments:      repos.Payment,
		registrations: repos.Registration,
		settings:      repos.Setting,
		guard:         guard,
		validator:     validator,
		monitor:       agg,
		audit:         audit,
		appKey:        appKey,
		newFetcher:    defaultFetcherFactory,
		now:           time.Now,
	}
}

// SetFetcherFactory overrides how provider clients are built; used by tests
// and the diagnostics CLI.
func (r *Reconciler) SetFetcherFactory(f FetcherFactory) {
	r.newFetcher = f
}

// SetLockStore wires the registration lock store so terminal payment
// outcomes release the identity's payment window.
func (r *Reconciler) SetLockStore(ls LockReleaser) {
	r.locks = ls
}

// ProcessWebhook runs the full pipeline for one inbound delivery: parse,
// authenticate, deduplicate, fetch authoritative status, apply the state
// transition, record the outcome.
func (r *Reconciler) ProcessWebhook(ctx context.Context, provider string, raw []byte, signatureHeader string) (Outcome, error) {
	start := r.now()

	p, err := ParseWebhookPayload(raw)
	if err != nil {
		r.monitor.RecordError(r.now().Sub(start), err.Error())
		return OutcomeIgnored, err
	}

	setting := r.currentSetting()
	secret := ""
	if setting != nil {
		secret = setting.WebhookSecret
	}
	sig := r.validator.Validate(raw, signatureHeader, secret)
	if sig.Err != nil {
		r.monitor.RecordError(r.now().Sub(start), sig.Err.Error())
		return OutcomeIgnored, sig.Err
	}

	created, stored := r.guard.RecordDelivery(provider, p, raw, sig.Verified)
	if !created {
		// Safe replay: same provider event id seen before.
		r.monitor.RecordDuplicate()
		return OutcomeDuplicate, nil
	}
	if r.guard.IsDuplicate(provider, p.InvoiceID, p.Status) {
		r.markProcessed(stored, "")
		r.monitor.RecordDuplicate()
		return OutcomeDuplicate, nil
	}

	outcome, err := r.reconcile(ctx, provider, setting, p.InvoiceID, raw, p)
	if err != nil {
		r.markProcessed(stored, err.Error())
		r.monitor.RecordError(r.now().Sub(start), err.Error())
		return outcome, err
	}

	r.markProcessed(stored, "")
	r.monitor.RecordSuccess(r.now().Sub(start))
	return outcome, nil
}

// ReconcileInvoice is the manual status poll: it re-derives truth from the
// provider for a single invoice without an inbound webhook.
func (r *Reconciler) ReconcileInvoice(ctx context.Context, provider, invoiceID string) (Outcome, error) {
	start := r.now()
	outcome, err := r.reconcile(ctx, provider, r.currentSetting(), invoiceID, nil, nil)
	if err != nil {
		r.monitor.RecordError(r.now().Sub(start), err.Error())
		return outcome, err
	}
	r.monitor.RecordSuccess(r.now().Sub(start))
	return outcome, nil
}

func (r *Reconciler) currentSetting() *models.UniPaymentSetting {
	setting, err := r.settings.GetCurrent()
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("loading payment settings failed: %v", err)
		}
		return nil
	}
	return setting
}

// reconcile fetches the authoritative status and applies it. raw and p are
// nil for manual polls.
func (r *Reconciler) reconcile(ctx context.Context, provider string, setting *models.UniPaymentSetting, invoiceID string, raw []byte, p *WebhookPayload) (Outcome, error) {
	remoteStatus, providerResponse, err := r.fetchRemoteStatus(ctx, setting, invoiceID)
	if err != nil {
		return OutcomeIgnored, err
	}

	switch ClassifyStatus(remoteStatus) {
	case StatusSuccess:
		return r.applyTerminal(provider, invoiceID, models.PaymentStatusCompleted, remoteStatus, providerResponse, raw, p)
	case StatusFailure:
		return r.applyTerminal(provider, invoiceID, models.PaymentStatusFailed, remoteStatus, providerResponse, raw, p)
	default:
		// Still pending at the provider; no terminal transition.
		return OutcomePending, nil
	}
}

// fetchRemoteStatus returns the provider's current status for the invoice,
// or a synthetic confirmed status in demo mode.
func (r *Reconciler) fetchRemoteStatus(ctx context.Context, setting *models.UniPaymentSetting, invoiceID string) (string, string, error) {
	effective := setting
	if effective == nil {
		effective = &models.UniPaymentSetting{}
	}

	apiKey := ""
	if setting != nil && setting.APIKeyEnc != "" {
		var err error
		apiKey, err = setting.APIKey(r.appKey)
		if err != nil {
			log.Warnf("unipayment credential decryption failed: %v", err)
		}
	}

	if demo := DecideDemoMode(effective, apiKey, invoiceID, r.audit); demo.Active {
		fields := map[string]interface{}{
			"invoice_id": invoiceID,
			"status":     "Confirmed",
			"demo_mode":  true,
			"reason":     demo.Reason,
		}
		// Attach the synthetic invoice from intake when it is still cached.
		if cached, err := cache.Get(cache.DemoInvoiceKey(invoiceID)); err == nil && cached != "" {
			fields["invoice"] = json.RawMessage(cached)
		}
		response, _ := json.Marshal(fields)
		return "Confirmed", string(response), nil
	}

	fetcher, err := r.newFetcher(setting, r.appKey)
	if err != nil {
		// Configuration problems surface as such, never as payment failures.
		return "", "", fmt.Errorf("building provider client: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, remoteFetchTimeout)
	defer cancel()

	inv, err := fetcher.GetInvoice(fetchCtx, invoiceID)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	response, _ := json.Marshal(inv)
	return inv.Status, string(response), nil
}

// applyTerminal persists the terminal transition and cascades onto the
// owning registration. Re-applying the same terminal status is a no-op.
func (r *Reconciler) applyTerminal(provider, invoiceID, status, remoteStatus, providerResponse string, raw []byte, p *WebhookPayload) (Outcome, error) {
	txn, err := r.payments.GetByProviderTxnID(provider, invoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Nothing local owns this invoice. Absorb instead of erroring so
			// the provider does not retry a delivery we can never apply.
			log.Warnf("webhook for unknown invoice %s/%s ignored", provider, invoiceID)
			return OutcomeIgnored, nil
		}
		return OutcomeIgnored, fmt.Errorf("loading payment transaction: %w", err)
	}

	if txn.IsTerminal() {
		if txn.Status == status {
			return OutcomeDuplicate, nil
		}
		// The local row is already terminal and disagrees with the provider.
		// Erroring would make the provider redeliver a transition that can
		// never apply, so absorb it and leave an audit trail.
		r.audit.Event("payment_status_conflict", map[string]string{
			"provider":      provider,
			"invoice_id":    invoiceID,
			"local_status":  txn.Status,
			"remote_status": remoteStatus,
		})
		log.Warnf("terminal status conflict for %s/%s: local %s, remote %s", provider, invoiceID, txn.Status, status)
		return OutcomeIgnored, nil
	}

	if err := txn.UpdateStatus(status, providerResponse); err != nil {
		return OutcomeIgnored, fmt.Errorf("transition %s -> %s: %w", txn.Status, status, err)
	}
	if p != nil {
		if p.Amount > 0 {
			txn.Amount = p.Amount
		}
		if p.Currency != "" {
			txn.Currency = strings.ToUpper(p.Currency)
		}
		if p.Fee > 0 {
			txn.Fee = p.Fee
		}
		if p.PaymentMethod != "" {
			txn.PaymentMethod = p.PaymentMethod
		}
	}
	if raw != nil {
		txn.CallbackData = string(raw)
	}
	if err := r.payments.Update(txn); err != nil {
		return OutcomeIgnored, fmt.Errorf("persisting payment transaction: %w", err)
	}

	if err := r.cascadeRegistration(txn, status, remoteStatus); err != nil {
		return OutcomeIgnored, err
	}
	return OutcomeProcessed, nil
}

func (r *Reconciler) cascadeRegistration(txn *models.PaymentTransaction, status, remoteStatus string) error {
	reg, err := r.registrations.GetByID(txn.RegistrationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("payment transaction %d has no registration", txn.ID)
			return nil
		}
		return fmt.Errorf("loading registration: %w", err)
	}

	changed := false
	switch status {
	case models.PaymentStatusCompleted:
		changed = reg.Confirm(r.now())
	case models.PaymentStatusFailed:
		changed = reg.Decline("payment " + strings.ToLower(remoteStatus))
	}

	// The payment window is settled either way; free the identity now
	// instead of waiting out the lock TTL.
	if r.locks != nil {
		if _, err := r.locks.ForceRelease(reg.Email, reg.Phone, reg.EventID); err != nil {
			log.Warnf("releasing registration lock for registration %d failed: %v", reg.ID, err)
		}
	}

	if !changed {
		return nil
	}
	if err := r.registrations.Update(reg); err != nil {
		return fmt.Errorf("persisting registration: %w", err)
	}
	if status == models.PaymentStatusCompleted {
		if err := cache.Delete(cache.ConfirmedCountKey(reg.EventID)); err != nil {
			log.Debugf("invalidating confirmed count for event %d failed: %v", reg.EventID, err)
		}
	}
	return nil
}

func (r *Reconciler) markProcessed(event *models.WebhookEvent, processingError string) {
	if event == nil || event.ID == 0 {
		return
	}
	if err := r.guard.webhooks.MarkProcessed(event.ID, processingError); err != nil {
		log.Errorf("marking webhook event %d processed failed: %v", event.ID, err)
	}
}
