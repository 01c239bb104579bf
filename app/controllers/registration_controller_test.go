package controllers

import (
	"encoding/json"
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
	"github.com/zoemaddison050/leadership-summit/internal/pkg/cache"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/reglock"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/unipayment"
)

const handlerTestAppKey = "handler-test-app-key"

type registrationFixture struct {
	app     *fiber.App
	repos   *repository.Repositories
	locks   *reglock.Store
	creator *stubInvoiceCreator
}

func setupRegistrationApp(t *testing.T) *registrationFixture {
	t.Helper()
	t.Setenv("APP_KEY", handlerTestAppKey)
	t.Setenv("PUBLIC_DOMAIN", "http://localhost:4000")

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

	locks := reglock.NewStore(repos.Lock, 0)
	creator := &stubInvoiceCreator{}
	InitializeRegistrationController(repos, locks, func(setting *models.UniPaymentSetting, appKey string) (InvoiceCreator, error) {
		return creator, nil
	})

	app := fiber.New()
	app.Post("/api/v1/events/:id/register", HandleEventRegister)
	app.Delete("/api/v1/events/:id/lock", HandleLockRelease)
	app.Get("/api/v1/locks/info", HandleLockInfo)
	app.Delete("/api/v1/admin/locks", HandleLockForceRelease)

	return &registrationFixture{app: app, repos: repos, locks: locks, creator: creator}
}

func (f *registrationFixture) seedEvent(t *testing.T, price float64) *models.Event {
	t.Helper()
	event := &models.Event{
		Title:       "Leadership Summit 2026",
		Slug:        "leadership-summit-2026",
		Price:       price,
		Currency:    "USD",
		Capacity:    200,
		IsPublished: true,
	}
	require.NoError(t, f.repos.Event.Create(event))
	return event
}

func (f *registrationFixture) register(t *testing.T, eventID uint, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/events/%d/register", eventID), strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.app.Test(req, 5000)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	return out
}

const aliceBody = `{"attendee_name":"Alice Morgan","email":"alice@example.com","phone":"+15551234"}`

func TestHandleEventRegisterPaidEvent(t *testing.T) {
	f := setupRegistrationApp(t)
	event := f.seedEvent(t, 49.99)

	resp, body := f.register(t, event.ID, aliceBody)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	assert.Equal(t, "INV-STUB", body["invoice_id"])
	assert.Equal(t, "https://sandbox.unipayment.io/i/INV-STUB", body["checkout_url"])
	assert.Len(t, body["lock_token"], 36)
	assert.NotEmpty(t, body["lock_expires_at"])

	// The pending transaction is bound to the provider invoice.
	txn, err := f.repos.Payment.GetByProviderTxnID("unipayment", "INV-STUB")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, txn.Status)
	assert.Equal(t, 49.99, txn.Amount)

	reg, err := f.repos.Registration.GetByID(uint(body["registration_id"].(float64)))
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusPending, reg.Status)

	// The payment window stays locked for this identity.
	assert.True(t, f.locks.IsLocked("alice@example.com", "+15551234", event.ID))
}

func TestHandleEventRegisterConflictWhileWindowOpen(t *testing.T) {
	f := setupRegistrationApp(t)
	event := f.seedEvent(t, 49.99)

	resp, _ := f.register(t, event.ID, aliceBody)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, body := f.register(t, event.ID, aliceBody)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "registration_in_progress", body["error"])
}

func TestHandleEventRegisterFreeEventConfirmsImmediately(t *testing.T) {
	f := setupRegistrationApp(t)
	event := f.seedEvent(t, 0)

	resp, body := f.register(t, event.ID, aliceBody)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, models.RegistrationStatusConfirmed, body["status"])
	assert.NotContains(t, body, "checkout_url")
	assert.Equal(t, 0, f.creator.calls)

	// No payment window is held after a free registration.
	assert.False(t, f.locks.IsLocked("alice@example.com", "+15551234", event.ID))
}

func TestHandleEventRegisterValidation(t *testing.T) {
	f := setupRegistrationApp(t)
	event := f.seedEvent(t, 49.99)

	cases := []struct {
		name string
		url  string
		body string
	}{
		{"not json", fmt.Sprintf("/api/v1/events/%d/register", event.ID), "not json"},
		{"missing name", fmt.Sprintf("/api/v1/events/%d/register", event.ID), `{"email":"alice@example.com"}`},
		{"bad email", fmt.Sprintf("/api/v1/events/%d/register", event.ID), `{"attendee_name":"Alice","email":"nope"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.url, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := f.app.Test(req, 5000)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestHandleEventRegisterEventNotFound(t *testing.T) {
	f := setupRegistrationApp(t)

	for _, path := range []string{
		"/api/v1/events/99/register",
		"/api/v1/events/0/register",
		"/api/v1/events/no-such-summit/register",
	} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(aliceBody))
		req.Header.Set("Content-Type", "application/json")
		resp, err := f.app.Test(req, 5000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, "path %s", path)
		body := decodeBody(t, resp)
		assert.Equal(t, "event_not_found", body["error"])
	}
}

func TestHandleEventRegisterBySlug(t *testing.T) {
	f := setupRegistrationApp(t)
	event := f.seedEvent(t, 49.99)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/"+event.Slug+"/register", strings.NewReader(aliceBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.app.Test(req, 5000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "INV-STUB", body["invoice_id"])

	reg, err := f.repos.Registration.GetByID(uint(body["registration_id"].(float64)))
	require.NoError(t, err)
	assert.Equal(t, event.ID, reg.EventID)
}

func TestHandleEventRegisterEventFull(t *testing.T) {
	f := setupRegistrationApp(t)
	event := f.seedEvent(t, 49.99)
	event.Capacity = 1
	require.NoError(t, f.repos.Event.Update(event))

	now := time.Now()
	require.NoError(t, f.repos.Registration.Create(&models.Registration{
		EventID:      event.ID,
		AttendeeName: "Bob Chen",
		Email:        "bob@example.com",
		Status:       models.RegistrationStatusConfirmed,
		ConfirmedAt:  &now,
	}))
	// Drop any cached count left over from another run.
	_ = cache.Delete(cache.ConfirmedCountKey(event.ID))

	resp, body := f.register(t, event.ID, aliceBody)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "event_full", body["error"])
	assert.Equal(t, 0, f.creator.calls)
	assert.False(t, f.locks.IsLocked("alice@example.com", "+15551234", event.ID))
}

func TestHandleEventRegisterProviderDownReleasesLock(t *testing.T) {
	f := setupRegistrationApp(t)
	event := f.seedEvent(t, 49.99)
	f.creator.err = errStubProviderDown

	resp, body := f.register(t, event.ID, aliceBody)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "provider_unavailable", body["error"])

	// A failed checkout must not leave the identity locked out: the retry
	// hits the provider again instead of a conflict.
	resp, body = f.register(t, event.ID, aliceBody)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "provider_unavailable", body["error"])
}

func TestHandleEventRegisterPaymentsNotConfigured(t *testing.T) {
	f := setupRegistrationApp(t)
	event := f.seedEvent(t, 49.99)
	InitializeRegistrationController(f.repos, f.locks, func(setting *models.UniPaymentSetting, appKey string) (InvoiceCreator, error) {
		return nil, unipayment.ErrNotConfigured
	})

	resp, body := f.register(t, event.ID, aliceBody)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "payments_not_configured", body["error"])
	assert.False(t, f.locks.IsLocked("alice@example.com", "+15551234", event.ID))
}

func TestHandleEventRegisterDemoMode(t *testing.T) {
	f := setupRegistrationApp(t)
	event := f.seedEvent(t, 49.99)
	f.repos.Setting.(*memSettingRepo).current.DemoMode = true

	resp, body := f.register(t, event.ID, aliceBody)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	invoiceID, _ := body["invoice_id"].(string)
	assert.True(t, strings.HasPrefix(invoiceID, "DEMO-"), "invoice id %q", invoiceID)
	assert.True(t, strings.HasPrefix(body["checkout_url"].(string), "http://localhost:4000/payment/demo/DEMO-"))
	assert.Equal(t, 0, f.creator.calls)
}

func TestHandleLockReleaseRequiresOwnerToken(t *testing.T) {
	f := setupRegistrationApp(t)
	event := f.seedEvent(t, 49.99)

	resp, body := f.register(t, event.ID, aliceBody)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	token := body["lock_token"].(string)

	url := fmt.Sprintf("/api/v1/events/%d/lock?email=alice@example.com&phone=%%2B15551234&token=", event.ID)

	resp, err := f.app.Test(httptest.NewRequest(http.MethodDelete, url+"wrong-token", nil), 5000)
	require.NoError(t, err)
	released := decodeBody(t, resp)
	assert.Equal(t, float64(0), released["released"])
	assert.True(t, f.locks.IsLocked("alice@example.com", "+15551234", event.ID))

	resp, err = f.app.Test(httptest.NewRequest(http.MethodDelete, url+token, nil), 5000)
	require.NoError(t, err)
	released = decodeBody(t, resp)
	assert.Equal(t, float64(1), released["released"])
	assert.False(t, f.locks.IsLocked("alice@example.com", "+15551234", event.ID))
}

func TestHandleLockReleaseValidation(t *testing.T) {
	f := setupRegistrationApp(t)

	resp, err := f.app.Test(httptest.NewRequest(http.MethodDelete, "/api/v1/events/1/lock?token=abc", nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = f.app.Test(httptest.NewRequest(http.MethodDelete, "/api/v1/events/1/lock?email=a@b.co", nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleLockForceRelease(t *testing.T) {
	f := setupRegistrationApp(t)
	event := f.seedEvent(t, 49.99)

	resp, _ := f.register(t, event.ID, aliceBody)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	url := fmt.Sprintf("/api/v1/admin/locks?event_id=%d&email=alice@example.com&phone=%%2B15551234", event.ID)
	resp, err := f.app.Test(httptest.NewRequest(http.MethodDelete, url, nil), 5000)
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(1), body["released"])
	assert.False(t, f.locks.IsLocked("alice@example.com", "+15551234", event.ID))
}

func TestHandleLockInfo(t *testing.T) {
	f := setupRegistrationApp(t)
	event := f.seedEvent(t, 49.99)

	url := fmt.Sprintf("/api/v1/locks/info?event_id=%d&email=alice@example.com&phone=%%2B15551234", event.ID)
	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, url, nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	regResp, _ := f.register(t, event.ID, aliceBody)
	require.Equal(t, fiber.StatusCreated, regResp.StatusCode)

	resp, err = f.app.Test(httptest.NewRequest(http.MethodGet, url, nil), 5000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, false, body["is_expired"])
	assert.NotEmpty(t, body["expires_at"])

	minutes, ok := body["minutes_remaining"].(float64)
	require.True(t, ok)
	assert.InDelta(t, 29, minutes, 1)
}
