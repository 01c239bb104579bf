package payment

import (
	"strings"

	"github.com/google/uuid"

	"github.com/zoemaddison050/leadership-summit/app/models"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/env"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/security"
)

// DemoInvoicePrefix marks synthetic invoices issued by local/staging flows.
const DemoInvoicePrefix = "DEMO-"

// knownSandboxAppID is UniPayment's published sandbox application id. Seeing
// it while the environment claims production means the credentials were
// copied from the docs.
const knownSandboxAppID = "0ff18d3d-2fbd-45cd-8a4e-243eb2e44s44"

// DemoDecision reports whether the remote status fetch should be skipped in
// favor of a synthetic confirmed status, and why.
type DemoDecision struct {
	Active bool
	Reason string
}

// CredentialsLookReal reports whether the configured credentials pass the
// structural validity check: a UUID-shaped app id of at least 30 characters
// and a secret of at least 30 characters. Structurally valid credentials
// always force demo mode off.
func CredentialsLookReal(appID, apiKey string) bool {
	appID = strings.TrimSpace(appID)
	apiKey = strings.TrimSpace(apiKey)
	if len(appID) < 30 || len(apiKey) < 30 {
		return false
	}
	if _, err := uuid.Parse(appID); err != nil {
		return false
	}
	return true
}

// DecideDemoMode determines whether to substitute a synthetic confirmed
// status for the given invoice. The explicit DemoMode flag (setting field or
// UNIPAYMENT_DEMO_MODE env) is authoritative; the credential-shape heuristics
// only apply when no flag is set. Activation is always audit-logged.
func DecideDemoMode(setting *models.UniPaymentSetting, apiKey, invoiceID string, audit *security.AuditLogger) DemoDecision {
	if audit == nil {
		audit = security.Default()
	}

	if CredentialsLookReal(setting.AppID, apiKey) {
		if setting.DemoMode {
			audit.Event("demo_mode_suppressed", map[string]string{
				"reason": "credentials_structurally_valid",
				"app_id": security.TruncateSecret(setting.AppID),
			})
		}
		return DemoDecision{}
	}

	decision := DemoDecision{}
	switch {
	case setting.DemoMode || strings.EqualFold(env.GetEnv("UNIPAYMENT_DEMO_MODE", ""), "true"):
		decision = DemoDecision{Active: true, Reason: "demo_mode_flag"}
	case strings.HasPrefix(invoiceID, DemoInvoicePrefix):
		decision = DemoDecision{Active: true, Reason: "demo_invoice_prefix"}
	case looksLikeTestCredential(setting.AppID) || looksLikeTestCredential(apiKey):
		decision = DemoDecision{Active: true, Reason: "test_shaped_credentials"}
	case strings.EqualFold(strings.TrimSpace(setting.AppID), knownSandboxAppID) &&
		setting.Environment == models.UniPaymentEnvProduction:
		decision = DemoDecision{Active: true, Reason: "sandbox_app_id_in_production"}
	}

	if decision.Active {
		audit.Event("demo_mode_active", map[string]string{
			"reason":     decision.Reason,
			"invoice_id": invoiceID,
		})
	}
	return decision
}

func looksLikeTestCredential(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return true
	}
	if len(s) < 20 {
		return true
	}
	return strings.Contains(s, "test") || strings.Contains(s, "demo")
}
