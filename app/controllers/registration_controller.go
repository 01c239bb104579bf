package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zoemaddison050/leadership-summit/app/models"
	"github.com/zoemaddison050/leadership-summit/app/repository"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/cache"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/env"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/payment"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/reglock"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/security"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/unipayment"
)

// InvoiceCreator creates provider checkout invoices; the real implementation
// is the UniPayment client.
type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, in unipayment.CreateInvoiceRequest) (*unipayment.Invoice, error)
}

// InvoiceCreatorFactory builds an InvoiceCreator from the stored provider
// configuration; overridden in tests.
type InvoiceCreatorFactory func(setting *models.UniPaymentSetting, appKey string) (InvoiceCreator, error)

var (
	regRepos          *repository.Repositories
	regLocks          *reglock.Store
	newInvoiceCreator InvoiceCreatorFactory
	regValidator      = validator.New()
)

// InitializeRegistrationController wires registration intake dependencies.
func InitializeRegistrationController(repos *repository.Repositories, locks *reglock.Store, factory InvoiceCreatorFactory) {
	regRepos = repos
	regLocks = locks
	if factory == nil {
		factory = func(setting *models.UniPaymentSetting, appKey string) (InvoiceCreator, error) {
			return unipayment.NewClientFromSetting(setting, appKey)
		}
	}
	newInvoiceCreator = factory
}

type registerRequest struct {
	AttendeeName string `json:"attendee_name" validate:"required,min=2,max=255"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone" validate:"omitempty,max=50"`
}

// HandleEventRegister is POST /api/v1/events/:id/register. The path segment
// is a numeric id or the event slug. It opens the payment window: acquires
// the registration lock, creates the pending registration and transaction,
// and returns the provider checkout URL.
func HandleEventRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}
	if err := regValidator.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "detail": err.Error()})
	}

	event, err := lookupEvent(c.Params("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "event_not_found"})
		}
		log.Errorf("loading event %q failed: %v", c.Params("id"), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_lookup_failed"})
	}

	if event.Capacity > 0 {
		confirmed, err := confirmedCount(event.ID)
		if err != nil {
			// The capacity check fails open, matching the lock store's
			// availability posture.
			log.Errorf("counting confirmed registrations for event %d failed: %v", event.ID, err)
		} else if confirmed >= int64(event.Capacity) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "event_full"})
		}
	}

	lock, err := regLocks.Acquire(req.Email, req.Phone, event.ID)
	if err != nil {
		if errors.Is(err, reglock.ErrAlreadyLocked) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":   "registration_in_progress",
				"message": "a registration for this identity is already in the payment window",
			})
		}
		log.Errorf("lock acquisition failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lock_failed"})
	}

	reg := &models.Registration{
		EventID:      event.ID,
		AttendeeName: strings.TrimSpace(req.AttendeeName),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:        strings.TrimSpace(req.Phone),
		Status:       models.RegistrationStatusPending,
	}
	if err := regRepos.Registration.Create(reg); err != nil {
		releaseQuietly(lock)
		log.Errorf("creating registration failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "registration_failed"})
	}

	if event.IsFree() {
		// No payment window for free events; confirm and release immediately.
		if reg.Confirm(time.Now()) {
			if err := regRepos.Registration.Update(reg); err != nil {
				log.Errorf("confirming free registration failed: %v", err)
			}
			if err := cache.Delete(cache.ConfirmedCountKey(event.ID)); err != nil {
				log.Debugf("invalidating confirmed count for event %d failed: %v", event.ID, err)
			}
		}
		releaseQuietly(lock)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"registration_id": reg.ID,
			"status":          reg.Status,
		})
	}

	txn := &models.PaymentTransaction{
		RegistrationID: reg.ID,
		Provider:       payment.ProviderUniPayment,
		Amount:         event.Price,
		Currency:       event.Currency,
		Status:         models.PaymentStatusPending,
	}

	invoice, err := createCheckoutInvoice(c.Context(), event, reg)
	if err != nil {
		releaseQuietly(lock)
		if errors.Is(err, unipayment.ErrNotConfigured) {
			log.Errorf("payment provider not configured: %v", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "payments_not_configured"})
		}
		log.Errorf("invoice creation failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "provider_unavailable"})
	}

	txn.ProviderTxnID = invoice.InvoiceID
	if err := regRepos.Payment.Create(txn); err != nil {
		releaseQuietly(lock)
		log.Errorf("creating payment transaction failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "transaction_failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"registration_id": reg.ID,
		"invoice_id":      invoice.InvoiceID,
		"checkout_url":    invoice.CheckoutURL,
		"lock_token":      lock.Token,
		"lock_expires_at": lock.ExpiresAt,
	})
}

// createCheckoutInvoice builds the provider invoice, or a synthetic demo
// checkout when demo mode is active.
func createCheckoutInvoice(ctx context.Context, event *models.Event, reg *models.Registration) (*unipayment.Invoice, error) {
	appKey := env.GetEnv("APP_KEY", "")
	setting, err := regRepos.Setting.GetCurrent()
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	effective := setting
	if effective == nil {
		effective = &models.UniPaymentSetting{}
	}
	apiKey := ""
	if setting != nil && setting.APIKeyEnc != "" {
		apiKey, _ = setting.APIKey(appKey)
	}
	if demo := payment.DecideDemoMode(effective, apiKey, "", security.Default()); demo.Active {
		invoiceID := payment.DemoInvoicePrefix + uuid.NewString()
		base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
		invoice := &unipayment.Invoice{
			InvoiceID:     invoiceID,
			OrderID:       fmt.Sprintf("reg-%d", reg.ID),
			Status:        "New",
			PriceAmount:   event.Price,
			PriceCurrency: event.Currency,
			CheckoutURL:   base + "/payment/demo/" + invoiceID,
		}
		// Keep the synthetic invoice around for the payment window so the
		// reconciler and the demo checkout page can recall it.
		if data, err := json.Marshal(invoice); err == nil {
			if err := cache.Set(cache.DemoInvoiceKey(invoiceID), data, reglock.DefaultTTL); err != nil {
				log.Debugf("caching demo invoice %s failed: %v", invoiceID, err)
			}
		}
		return invoice, nil
	}

	creator, err := newInvoiceCreator(setting, appKey)
	if err != nil {
		return nil, err
	}

	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	reqCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return creator.CreateInvoice(reqCtx, unipayment.CreateInvoiceRequest{
		OrderID:       fmt.Sprintf("reg-%d", reg.ID),
		PriceAmount:   event.Price,
		PriceCurrency: event.Currency,
		Title:         event.Title,
		Description:   fmt.Sprintf("Registration #%d for %s", reg.ID, event.Title),
		NotifyURL:     base + "/payment/unipayment/webhook",
		RedirectURL:   base + "/events/" + event.Slug,
		ExpireMinutes: int(reglock.DefaultTTL.Minutes()),
	})
}

// HandleLockRelease is DELETE /api/v1/events/:id/lock. Requires the owner
// token returned by registration intake.
func HandleLockRelease(c *fiber.Ctx) error {
	eventID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || eventID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_event_id"})
	}
	email := strings.TrimSpace(c.Query("email"))
	phone := strings.TrimSpace(c.Query("phone"))
	token := strings.TrimSpace(c.Query("token"))
	if email == "" || token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "email_and_token_required"})
	}

	count, err := regLocks.Release(email, phone, uint(eventID), token)
	if err != nil {
		log.Errorf("lock release failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "release_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"released": count})
}

// HandleLockForceRelease is DELETE /api/v1/admin/locks. Token-less removal
// for operators.
func HandleLockForceRelease(c *fiber.Ctx) error {
	eventID, err := strconv.ParseUint(c.Query("event_id"), 10, 32)
	if err != nil || eventID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_event_id"})
	}
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "email_required"})
	}

	count, err := regLocks.ForceRelease(email, c.Query("phone"), uint(eventID))
	if err != nil {
		log.Errorf("force release failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "release_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"released": count})
}

// HandleLockInfo is GET /api/v1/locks/info, a diagnostic read of a lock.
func HandleLockInfo(c *fiber.Ctx) error {
	eventID, err := strconv.ParseUint(c.Query("event_id"), 10, 32)
	if err != nil || eventID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_event_id"})
	}
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "email_required"})
	}

	info, err := regLocks.Info(email, c.Query("phone"), uint(eventID))
	if err != nil {
		log.Errorf("lock info lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lookup_failed"})
	}
	if info == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_lock"})
	}
	return c.Status(fiber.StatusOK).JSON(info)
}

// lookupEvent resolves the path segment as a numeric event id, falling back
// to the slug for pretty URLs.
func lookupEvent(idOrSlug string) (*models.Event, error) {
	if id, err := strconv.ParseUint(idOrSlug, 10, 32); err == nil {
		if id == 0 {
			return nil, gorm.ErrRecordNotFound
		}
		return regRepos.Event.GetByID(uint(id))
	}
	return regRepos.Event.GetBySlug(idOrSlug)
}

// confirmedCount reads the confirmed-registration count for an event, cached
// briefly to keep the intake path off the aggregate query. Cache misses and
// cache errors both fall through to the database.
func confirmedCount(eventID uint) (int64, error) {
	key := cache.ConfirmedCountKey(eventID)
	if n, err := cache.GetInt(key); err == nil {
		return int64(n), nil
	}
	n, err := regRepos.Registration.CountConfirmedByEvent(eventID)
	if err != nil {
		return 0, err
	}
	if err := cache.Set(key, n, time.Minute); err != nil {
		log.Debugf("caching confirmed count for event %d failed: %v", eventID, err)
	}
	return n, nil
}

func releaseQuietly(lock *models.RegistrationLock) {
	if _, err := regLocks.Release(lock.Email, lock.Phone, lock.EventID, lock.Token); err != nil {
		log.Errorf("releasing registration lock failed: %v", err)
	}
}
