package security

import (
	"strings"
	"testing"
	"time"
)

func TestAuditLoggerEvent(t *testing.T) {
	var sb strings.Builder
	l := NewAuditLogger(&sb)
	l.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	l.Event("webhook_signature_invalid", map[string]string{
		"provider":    "unipayment",
		"sig_prefix":  "sha256=abc12...",
		"payload_len": "128",
	})

	line := sb.String()
	if !strings.HasPrefix(line, "2026-03-01T12:00:00Z security event=webhook_signature_invalid") {
		t.Fatalf("unexpected line prefix: %q", line)
	}
	for _, want := range []string{"payload_len=128", "provider=unipayment", "sig_prefix=sha256=abc12..."} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
}

func TestTruncateSecret(t *testing.T) {
	if got := TruncateSecret("short"); got != "short" {
		t.Fatalf("short secrets should pass through, got %q", got)
	}
	long := "0123456789abcdef"
	if got := TruncateSecret(long); got != "0123456789ab..." {
		t.Fatalf("unexpected truncation: %q", got)
	}
}
