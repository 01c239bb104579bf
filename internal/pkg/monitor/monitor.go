package monitor

import (
	"sync"
	"time"
)

// Counter names used by the webhook pipeline.
const (
	CounterTotal     = "webhook_total"
	CounterSuccess   = "webhook_success"
	CounterError     = "webhook_error"
	CounterDuplicate = "webhook_duplicate"
)

// Health statuses.
const (
	StatusHealthy  = "healthy"
	StatusWarning  = "warning"
	StatusCritical = "critical"
)

const (
	timingWindow  = 100
	errorWindow   = 20
	outcomeWindow = 100

	criticalErrorRate = 0.5
	warningErrorRate  = 0.2
	silenceThreshold  = 24 * time.Hour
)

// Store is the injected counter backend. MemoryStore serves tests and
// single-process deployments, RedisStore survives restarts.
type Store interface {
	Increment(name string, delta int64) error
	Get(name string) (int64, error)
	Reset() error
}

// MemoryStore is a mutex-guarded in-process Store.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]int64)}
}

func (s *MemoryStore) Increment(name string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name] += delta
	return nil
}

func (s *MemoryStore) Get(name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[name], nil
}

func (s *MemoryStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = make(map[string]int64)
	return nil
}

// ErrorSample is one recent reconciliation error.
type ErrorSample struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Snapshot is the operator-facing view of the aggregator.
type Snapshot struct {
	Total           int64         `json:"total"`
	Success         int64         `json:"success"`
	Errors          int64         `json:"errors"`
	Duplicates      int64         `json:"duplicates"`
	ErrorRate       float64       `json:"error_rate"`
	AvgProcessingMS float64       `json:"avg_processing_ms"`
	LastEventAt     *time.Time    `json:"last_event_at,omitempty"`
	RecentErrors    []ErrorSample `json:"recent_errors"`
	Health          string        `json:"health"`
}

// Aggregator derives counts, error rates and a health status from
// reconciliation outcomes. Counters live in the injected Store; the bounded
// rings of recent timings, errors and outcomes are in-process only.
type Aggregator struct {
	mu             sync.Mutex
	store          Store
	timings        []time.Duration
	recentErrors   []ErrorSample
	recentOutcomes []bool // true = success
	lastEventAt    time.Time
	startedAt      time.Time
	expectTraffic  bool
	now            func() time.Time
}

// NewAggregator creates an aggregator over the given counter store.
func NewAggregator(store Store) *Aggregator {
	a := &Aggregator{store: store, now: time.Now}
	a.startedAt = a.now()
	return a
}

// ExpectTraffic tells the health check that webhook silence is anomalous.
// Set when the payment provider is enabled.
func (a *Aggregator) ExpectTraffic(expect bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.expectTraffic = expect
}

// SeedLastEvent backdates the silence reference from the durable webhook
// ledger. Called at startup so a restart does not reset the silence clock.
// Seeds older than the last in-process event are ignored.
func (a *Aggregator) SeedLastEvent(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t.After(a.lastEventAt) {
		a.lastEventAt = t
	}
}

// RecordSuccess records a successfully reconciled delivery.
func (a *Aggregator) RecordSuccess(d time.Duration) {
	a.store.Increment(CounterTotal, 1)
	a.store.Increment(CounterSuccess, 1)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pushTiming(d)
	a.pushOutcome(true)
	a.lastEventAt = a.now()
}

// RecordError records a failed reconciliation attempt.
func (a *Aggregator) RecordError(d time.Duration, msg string) {
	a.store.Increment(CounterTotal, 1)
	a.store.Increment(CounterError, 1)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pushTiming(d)
	a.pushOutcome(false)
	a.recentErrors = append(a.recentErrors, ErrorSample{At: a.now(), Message: msg})
	if len(a.recentErrors) > errorWindow {
		a.recentErrors = a.recentErrors[len(a.recentErrors)-errorWindow:]
	}
	a.lastEventAt = a.now()
}

// RecordDuplicate records an absorbed duplicate delivery.
func (a *Aggregator) RecordDuplicate() {
	a.store.Increment(CounterTotal, 1)
	a.store.Increment(CounterDuplicate, 1)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastEventAt = a.now()
}

func (a *Aggregator) pushTiming(d time.Duration) {
	a.timings = append(a.timings, d)
	if len(a.timings) > timingWindow {
		a.timings = a.timings[len(a.timings)-timingWindow:]
	}
}

func (a *Aggregator) pushOutcome(ok bool) {
	a.recentOutcomes = append(a.recentOutcomes, ok)
	if len(a.recentOutcomes) > outcomeWindow {
		a.recentOutcomes = a.recentOutcomes[len(a.recentOutcomes)-outcomeWindow:]
	}
}

// errorRateLocked computes the error rate over the trailing outcome window.
func (a *Aggregator) errorRateLocked() float64 {
	if len(a.recentOutcomes) == 0 {
		return 0
	}
	failed := 0
	for _, ok := range a.recentOutcomes {
		if !ok {
			failed++
		}
	}
	return float64(failed) / float64(len(a.recentOutcomes))
}

// Health classifies the current state: critical above 50% trailing error
// rate, warning above 20% or on 24h webhook silence while traffic is
// expected, healthy otherwise.
func (a *Aggregator) Health() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	rate := a.errorRateLocked()
	// Silence is measured from the last delivery, or from aggregator start
	// when no delivery was ever seen or seeded.
	silenceRef := a.lastEventAt
	if silenceRef.IsZero() {
		silenceRef = a.startedAt
	}
	switch {
	case rate > criticalErrorRate:
		return StatusCritical
	case rate > warningErrorRate:
		return StatusWarning
	case a.expectTraffic && a.now().Sub(silenceRef) > silenceThreshold:
		return StatusWarning
	default:
		return StatusHealthy
	}
}

// Snapshot returns the operator dashboard view.
func (a *Aggregator) Snapshot() Snapshot {
	total, _ := a.store.Get(CounterTotal)
	success, _ := a.store.Get(CounterSuccess)
	errs, _ := a.store.Get(CounterError)
	dups, _ := a.store.Get(CounterDuplicate)

	health := a.Health()

	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		Total:      total,
		Success:    success,
		Errors:     errs,
		Duplicates: dups,
		ErrorRate:  a.errorRateLocked(),
		Health:     health,
	}
	if !a.lastEventAt.IsZero() {
		t := a.lastEventAt
		snap.LastEventAt = &t
	}
	if len(a.timings) > 0 {
		var sum time.Duration
		for _, d := range a.timings {
			sum += d
		}
		snap.AvgProcessingMS = float64(sum.Milliseconds()) / float64(len(a.timings))
	}
	snap.RecentErrors = append([]ErrorSample(nil), a.recentErrors...)
	return snap
}

// Reset clears all counters and rolling windows.
func (a *Aggregator) Reset() error {
	if err := a.store.Reset(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.timings = nil
	a.recentErrors = nil
	a.recentOutcomes = nil
	a.lastEventAt = time.Time{}
	a.startedAt = a.now()
	return nil
}
