package payment

import "strings"

// StatusOutcome classifies a provider-reported invoice status.
type StatusOutcome int

const (
	// StatusPending covers every status outside the known vocabularies; no
	// terminal transition is driven from it.
	StatusPending StatusOutcome = iota
	StatusSuccess
	StatusFailure
)

var successStatuses = map[string]struct{}{
	"confirmed": {},
	"complete":  {},
	"paid":      {},
	"success":   {},
}

var failureStatuses = map[string]struct{}{
	"failed":    {},
	"cancelled": {},
	"expired":   {},
	"invalid":   {},
}

// ClassifyStatus maps a remote status string onto success, failure or
// still-pending using a case-insensitive membership test.
func ClassifyStatus(status string) StatusOutcome {
	s := strings.ToLower(strings.TrimSpace(status))
	if _, ok := successStatuses[s]; ok {
		return StatusSuccess
	}
	if _, ok := failureStatuses[s]; ok {
		return StatusFailure
	}
	return StatusPending
}
