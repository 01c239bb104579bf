package security

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// AuditLogger writes security-relevant events as structured key=value lines
// to a dedicated stream, separate from the application's default log output.
// Webhook signature rejections and demo-mode activations land here so they
// can be shipped to a separate sink.
type AuditLogger struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewAuditLogger creates an audit logger writing to out.
func NewAuditLogger(out io.Writer) *AuditLogger {
	return &AuditLogger{out: out, now: time.Now}
}

var (
	defaultLogger *AuditLogger
	defaultOnce   sync.Once
)

// Default returns the process-wide audit logger (stderr-backed).
func Default() *AuditLogger {
	defaultOnce.Do(func() {
		defaultLogger = NewAuditLogger(os.Stderr)
	})
	return defaultLogger
}

// Event emits one audit entry. Field values are quoted when they contain
// whitespace; field order is stable for grep-ability.
func (l *AuditLogger) Event(name string, fields map[string]string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(l.now().UTC().Format(time.RFC3339))
	b.WriteString(" security event=")
	b.WriteString(name)
	for _, k := range keys {
		v := fields[k]
		if strings.ContainsAny(v, " \t") {
			v = fmt.Sprintf("%q", v)
		}
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(v)
	}
	b.WriteString("\n")

	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(l.out, b.String())
}

// TruncateSecret returns a short prefix of a signature or secret safe for
// logging. Never log the full value.
func TruncateSecret(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:12] + "..."
}
