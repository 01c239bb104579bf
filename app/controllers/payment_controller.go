package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/zoemaddison050/leadership-summit/internal/pkg/monitor"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/payment"
)

var (
	paymentReconciler *payment.Reconciler
	paymentMonitor    *monitor.Aggregator
)

// InitializePaymentController wires the webhook pipeline into the handlers.
func InitializePaymentController(rec *payment.Reconciler, agg *monitor.Aggregator) {
	paymentReconciler = rec
	paymentMonitor = agg
}

// HandleProviderWebhook is POST /payment/:provider/webhook. Responses follow
// the provider contract: 200 processed or safe duplicate, 400 malformed,
// 401 signature rejected, 500 internal failure (provider retries).
func HandleProviderWebhook(c *fiber.Ctx) error {
	provider := strings.ToLower(strings.TrimSpace(c.Params("provider")))
	if provider != payment.ProviderUniPayment {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_provider"})
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := firstHeaderValue(c, "X-Unipayment-Signature", "X-Signature")

	// Bound total processing time; a provider status-fetch timeout inside
	// surfaces as 500 so the provider's retry mechanism redelivers.
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	outcome, err := paymentReconciler.ProcessWebhook(ctx, provider, rawBody, signature)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrMalformedPayload):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		case errors.Is(err, payment.ErrSignatureRequired),
			errors.Is(err, payment.ErrInvalidSignatureFormat),
			errors.Is(err, payment.ErrSignatureMismatch):
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
		default:
			log.Errorf("webhook processing failed for %s: %v", provider, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok":        true,
		"result":    outcome.String(),
		"duplicate": outcome == payment.OutcomeDuplicate,
	})
}

// HandlePaymentHealth is GET /api/v1/payment/health.
func HandlePaymentHealth(c *fiber.Ctx) error {
	health := paymentMonitor.Health()
	status := fiber.StatusOK
	if health == monitor.StatusCritical {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{"health": health})
}

// HandlePaymentMetrics is GET /api/v1/payment/metrics.
func HandlePaymentMetrics(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(paymentMonitor.Snapshot())
}

// HandlePaymentMetricsReset is POST /api/v1/admin/payment/metrics/reset.
func HandlePaymentMetricsReset(c *fiber.Ctx) error {
	if err := paymentMonitor.Reset(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reset_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(c.Get(k))
		if v != "" {
			return v
		}
	}
	return ""
}
