package controllers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoemaddison050/leadership-summit/app/models"
	"github.com/zoemaddison050/leadership-summit/app/repository"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/monitor"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/payment"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/reglock"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/security"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/unipayment"
)

type stubFetcher struct {
	invoice *unipayment.Invoice
	err     error
}

func (s *stubFetcher) GetInvoice(ctx context.Context, invoiceID string) (*unipayment.Invoice, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.invoice, nil
}

type webhookFixture struct {
	app     *fiber.App
	repos   *repository.Repositories
	fetcher *stubFetcher
	locks   *reglock.Store
	agg     *monitor.Aggregator
}

func setupWebhookApp(t *testing.T) *webhookFixture {
	t.Helper()
	t.Setenv("APP_KEY", handlerTestAppKey)

	repos := newMemRepositories()

	setting := &models.UniPaymentSetting{
		ID:          1,
		AppID:       strings.Repeat("a", 25),
		Environment: models.UniPaymentEnvSandbox,
		Currency:    "USD",
		MinAmount:   0.01,
		MaxAmount:   10000,
		Enabled:     true,
		IsCurrent:   true,
	}
	require.NoError(t, setting.SetAPIKey(strings.Repeat("b", 25), handlerTestAppKey))
	repos.Setting.(*memSettingRepo).current = setting

	fetcher := &stubFetcher{}
	agg := monitor.NewAggregator(monitor.NewMemoryStore())
	audit := security.NewAuditLogger(io.Discard)

	locks := reglock.NewStore(repos.Lock, 0)
	guard := payment.NewIdempotencyGuard(repos.Webhook, repos.Payment)
	rec := payment.NewReconciler(repos, guard, payment.NewSignatureValidator(audit), agg, audit, handlerTestAppKey)
	rec.SetFetcherFactory(func(setting *models.UniPaymentSetting, appKey string) (payment.InvoiceFetcher, error) {
		return fetcher, nil
	})
	rec.SetLockStore(locks)
	InitializePaymentController(rec, agg)

	app := fiber.New()
	app.Post("/payment/:provider/webhook", HandleProviderWebhook)
	app.Get("/api/v1/payment/health", HandlePaymentHealth)
	app.Get("/api/v1/payment/metrics", HandlePaymentMetrics)
	app.Post("/api/v1/admin/payment/metrics/reset", HandlePaymentMetricsReset)

	return &webhookFixture{app: app, repos: repos, fetcher: fetcher, locks: locks, agg: agg}
}

func (f *webhookFixture) seedPendingPayment(t *testing.T, invoiceID string) *models.Registration {
	t.Helper()
	reg := &models.Registration{
		EventID:      42,
		AttendeeName: "Alice Morgan",
		Email:        "alice@example.com",
		Status:       models.RegistrationStatusPending,
	}
	require.NoError(t, f.repos.Registration.Create(reg))
	require.NoError(t, f.repos.Payment.Create(&models.PaymentTransaction{
		RegistrationID: reg.ID,
		Provider:       payment.ProviderUniPayment,
		ProviderTxnID:  invoiceID,
		Amount:         49.99,
		Currency:       "USD",
		Status:         models.PaymentStatusPending,
	}))
	return reg
}

func (f *webhookFixture) deliver(t *testing.T, body, signature string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payment/unipayment/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Unipayment-Signature", signature)
	}
	resp, err := f.app.Test(req, 5000)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func confirmedWebhookBody(eventID, invoiceID string) string {
	return fmt.Sprintf(`{"event_id":%q,"event_type":"invoice_status_changed","invoice_id":%q,"status":"Confirmed","amount":49.99,"currency":"USD"}`, eventID, invoiceID)
}

func TestHandleProviderWebhookProcessed(t *testing.T) {
	f := setupWebhookApp(t)
	reg := f.seedPendingPayment(t, "INV-001")
	f.fetcher.invoice = &unipayment.Invoice{InvoiceID: "INV-001", Status: "Confirmed"}

	// The payment window opened at intake is still held.
	_, err := f.locks.Acquire(reg.Email, reg.Phone, reg.EventID)
	require.NoError(t, err)

	resp, body := f.deliver(t, confirmedWebhookBody("evt_1", "INV-001"), "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "processed", body["result"])
	assert.Equal(t, false, body["duplicate"])

	updated, err := f.repos.Registration.GetByID(reg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusConfirmed, updated.Status)

	// Settling the payment releases the identity's lock.
	assert.False(t, f.locks.IsLocked(reg.Email, reg.Phone, reg.EventID))
}

func TestHandleProviderWebhookDuplicateRedelivery(t *testing.T) {
	f := setupWebhookApp(t)
	f.seedPendingPayment(t, "INV-001")
	f.fetcher.invoice = &unipayment.Invoice{InvoiceID: "INV-001", Status: "Confirmed"}

	body := confirmedWebhookBody("evt_1", "INV-001")
	resp, _ := f.deliver(t, body, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, out := f.deliver(t, body, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "duplicate", out["result"])
	assert.Equal(t, true, out["duplicate"])
}

func TestHandleProviderWebhookUnknownProvider(t *testing.T) {
	f := setupWebhookApp(t)

	req := httptest.NewRequest(http.MethodPost, "/payment/stripe/webhook", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.app.Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "unknown_provider", body["error"])
}

func TestHandleProviderWebhookMalformedPayload(t *testing.T) {
	f := setupWebhookApp(t)

	resp, body := f.deliver(t, `{"status":"Confirmed"}`, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_payload", body["error"])
}

func TestHandleProviderWebhookSignatureEnforcement(t *testing.T) {
	f := setupWebhookApp(t)
	f.seedPendingPayment(t, "INV-001")
	f.fetcher.invoice = &unipayment.Invoice{InvoiceID: "INV-001", Status: "Confirmed"}

	secret := "whsec_8f4a2c1d9b"
	f.repos.Setting.(*memSettingRepo).current.WebhookSecret = secret
	body := confirmedWebhookBody("evt_1", "INV-001")

	resp, out := f.deliver(t, body, "sha256="+strings.Repeat("0", 64))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_signature", out["error"])

	resp, out = f.deliver(t, body, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_signature", out["error"])

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	resp, out = f.deliver(t, body, "sha256="+hex.EncodeToString(mac.Sum(nil)))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "processed", out["result"])
}

func TestHandleProviderWebhookProviderFailure(t *testing.T) {
	f := setupWebhookApp(t)
	f.seedPendingPayment(t, "INV-001")
	f.fetcher.err = fmt.Errorf("connection refused")

	resp, body := f.deliver(t, confirmedWebhookBody("evt_1", "INV-001"), "")
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "processing_failed", body["error"])
}

func TestHandlePaymentHealth(t *testing.T) {
	f := setupWebhookApp(t)

	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/payment/health", nil), 5000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, monitor.StatusHealthy, body["health"])

	for i := 0; i < 10; i++ {
		f.agg.RecordError(time.Millisecond, "boom")
	}
	resp, err = f.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/payment/health", nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, monitor.StatusCritical, body["health"])
}

func TestHandlePaymentMetricsAndReset(t *testing.T) {
	f := setupWebhookApp(t)
	f.seedPendingPayment(t, "INV-001")
	f.fetcher.invoice = &unipayment.Invoice{InvoiceID: "INV-001", Status: "Confirmed"}

	resp, _ := f.deliver(t, confirmedWebhookBody("evt_1", "INV-001"), "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/payment/metrics", nil), 5000)
	require.NoError(t, err)
	metrics := decodeBody(t, resp)
	assert.Equal(t, float64(1), metrics["total"])
	assert.Equal(t, float64(1), metrics["success"])

	resp, err = f.app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/admin/payment/metrics/reset", nil), 5000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	resp, err = f.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/payment/metrics", nil), 5000)
	require.NoError(t, err)
	metrics = decodeBody(t, resp)
	assert.Equal(t, float64(0), metrics["total"])
}
