package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"github.com/zoemaddison050/leadership-summit/internal/pkg/security"
)

var (
	// ErrSignatureRequired is returned when a secret is configured but the
	// delivery carried no signature header.
	ErrSignatureRequired = errors.New("webhook signature required")
	// ErrInvalidSignatureFormat is returned for signatures that are not
	// lowercase hex (optionally prefixed with sha256= or sha1=).
	ErrInvalidSignatureFormat = errors.New("webhook signature format invalid")
	// ErrSignatureMismatch is returned when the HMAC comparison fails.
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
)

// SignatureResult reports the validator's decision. Valid means the delivery
// may proceed; Verified means it was actually authenticated. An unconfigured
// secret yields Valid without Verified.
type SignatureResult struct {
	Valid    bool
	Verified bool
	Err      error
}

// SignatureValidator authenticates inbound webhook payloads with
// HMAC-SHA256. Every rejection is recorded on the security audit channel.
type SignatureValidator struct {
	audit *security.AuditLogger
}

// NewSignatureValidator creates a validator logging to the given audit channel.
func NewSignatureValidator(audit *security.AuditLogger) *SignatureValidator {
	if audit == nil {
		audit = security.Default()
	}
	return &SignatureValidator{audit: audit}
}

// Validate checks the provided signature header against the expected
// HMAC-SHA256 of payload under secret. Comparison is constant time.
func (v *SignatureValidator) Validate(payload []byte, signatureHeader, secret string) SignatureResult {
	sig := strings.TrimSpace(signatureHeader)
	secret = strings.TrimSpace(secret)

	if secret == "" {
		// Signature checking is optional, off by default. Accept but flag
		// unverified so operators can see the gap.
		v.audit.Event("webhook_signature_unverified", map[string]string{
			"reason":      "no_secret_configured",
			"payload_len": strconv.Itoa(len(payload)),
		})
		return SignatureResult{Valid: true, Verified: false}
	}

	if sig == "" {
		v.audit.Event("webhook_signature_missing", map[string]string{
			"payload_len": strconv.Itoa(len(payload)),
		})
		return SignatureResult{Err: ErrSignatureRequired}
	}

	hexPart := sig
	for _, prefix := range []string{"sha256=", "sha1="} {
		if strings.HasPrefix(hexPart, prefix) {
			hexPart = strings.TrimPrefix(hexPart, prefix)
			break
		}
	}
	if hexPart == "" || hexPart != strings.ToLower(hexPart) {
		return v.rejectFormat(payload, sig)
	}
	provided, err := hex.DecodeString(hexPart)
	if err != nil {
		return v.rejectFormat(payload, sig)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		v.audit.Event("webhook_signature_invalid", map[string]string{
			"sig_prefix":  security.TruncateSecret(sig),
			"payload_len": strconv.Itoa(len(payload)),
		})
		return SignatureResult{Err: ErrSignatureMismatch}
	}

	return SignatureResult{Valid: true, Verified: true}
}

func (v *SignatureValidator) rejectFormat(payload []byte, sig string) SignatureResult {
	v.audit.Event("webhook_signature_malformed", map[string]string{
		"sig_prefix":  security.TruncateSecret(sig),
		"payload_len": strconv.Itoa(len(payload)),
	})
	return SignatureResult{Err: ErrInvalidSignatureFormat}
}
