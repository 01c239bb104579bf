package controllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zoemaddison050/leadership-summit/app/models"
	"github.com/zoemaddison050/leadership-summit/app/repository"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/env"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/payment"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/security"
)

var settingRepo repository.SettingRepository

// InitializeSettingController wires the provider configuration handlers.
func InitializeSettingController(repos *repository.Repositories) {
	settingRepo = repos.Setting
}

type settingRequest struct {
	AppID         string  `json:"app_id" validate:"required"`
	APIKey        string  `json:"api_key" validate:"required"`
	Environment   string  `json:"environment" validate:"required,oneof=sandbox production"`
	WebhookSecret string  `json:"webhook_secret"`
	Enabled       bool    `json:"enabled"`
	DemoMode      bool    `json:"demo_mode"`
	Currency      string  `json:"currency" validate:"omitempty,len=3"`
	MinAmount     float64 `json:"min_amount" validate:"gte=0"`
	MaxAmount     float64 `json:"max_amount" validate:"gte=0"`
	MakeCurrent   bool    `json:"make_current"`
}

// HandleSettingSave is PUT /api/v1/admin/settings. The API secret arrives in
// plaintext over the authenticated admin channel and is stored encrypted.
func HandleSettingSave(c *fiber.Ctx) error {
	var req settingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}
	if err := regValidator.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "detail": err.Error()})
	}

	setting := &models.UniPaymentSetting{
		AppID:         req.AppID,
		Environment:   req.Environment,
		WebhookSecret: req.WebhookSecret,
		Enabled:       req.Enabled,
		DemoMode:      req.DemoMode,
		Currency:      req.Currency,
		MinAmount:     req.MinAmount,
		MaxAmount:     req.MaxAmount,
	}
	if setting.Currency == "" {
		setting.Currency = "USD"
	}
	if setting.MinAmount <= 0 {
		setting.MinAmount = 0.01
	}
	if setting.MaxAmount <= 0 {
		setting.MaxAmount = 10000
	}

	if err := setting.SetAPIKey(req.APIKey, env.GetEnv("APP_KEY", "")); err != nil {
		if errors.Is(err, models.ErrNoAppKey) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "app_key_not_configured"})
		}
		log.Errorf("encrypting provider credentials failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "credential_encryption_failed"})
	}

	if err := settingRepo.Save(setting); err != nil {
		log.Errorf("saving provider setting failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "save_failed"})
	}
	if req.MakeCurrent {
		if err := settingRepo.MakeCurrent(setting.ID); err != nil {
			log.Errorf("activating provider setting %d failed: %v", setting.ID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "activation_failed"})
		}
	}
	return c.Status(fiber.StatusCreated).JSON(setting)
}

// HandleSettingActivate is POST /api/v1/admin/settings/:id/activate. Flags
// the row current and clears the flag on every other row.
func HandleSettingActivate(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_setting_id"})
	}
	if err := settingRepo.MakeCurrent(uint(id)); err != nil {
		log.Errorf("activating provider setting %d failed: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "activation_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandleWebhookSelfTest is POST /api/v1/admin/settings/webhook-test. It signs
// a nonce payload with the current webhook secret and runs it through the
// same validator the webhook handler uses, recording the result on the
// setting row.
func HandleWebhookSelfTest(c *fiber.Ctx) error {
	setting, err := settingRepo.GetCurrent()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_current_setting"})
		}
		log.Errorf("loading provider setting failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "setting_lookup_failed"})
	}
	if setting.WebhookSecret == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "webhook_secret_not_configured"})
	}

	body := []byte(fmt.Sprintf(`{"invoice_id":"selftest-%s","status":"Confirmed"}`, uuid.NewString()))
	mac := hmac.New(sha256.New, []byte(setting.WebhookSecret))
	mac.Write(body)
	signature := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	result := payment.NewSignatureValidator(security.Default()).Validate(body, signature, setting.WebhookSecret)
	testedAt := time.Now()
	if err := settingRepo.RecordWebhookTest(setting.ID, testedAt, result.Verified); err != nil {
		log.Errorf("recording webhook self-test failed: %v", err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok":        result.Verified,
		"tested_at": testedAt,
	})
}
