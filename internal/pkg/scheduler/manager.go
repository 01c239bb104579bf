package scheduler

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/zoemaddison050/leadership-summit/internal/pkg/reglock"
)

// DefaultSweepInterval is how often expired registration locks are removed.
const DefaultSweepInterval = 5 * time.Minute

// Manager runs the periodic background tasks: the expired-lock sweep. It is
// independent of the request path and safe to run concurrently with lock
// acquisition.
type Manager struct {
	locks       *reglock.Store
	sweepTicker *time.Ticker
	interval    time.Duration
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

// NewManager creates a manager sweeping at the given interval; zero means
// DefaultSweepInterval.
func NewManager(locks *reglock.Store, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Manager{
		locks:    locks,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the background workers. Calling Start on a running manager
// is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so the manager can be
	// restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[Scheduler] Starting background tasks")

	m.sweepTicker = time.NewTicker(m.interval)
	m.wg.Add(1)
	go m.sweepWorker()
}

// Stop halts the background workers and waits for them to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Scheduler] Stopping background tasks...")
	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	close(m.stopCh)
	m.wg.Wait()
	m.running = false
	log.Info("[Scheduler] Stopped")
}

func (m *Manager) sweepWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.sweepTicker.C:
			m.sweepOnce()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) sweepOnce() {
	count, err := m.locks.SweepExpired()
	if err != nil {
		log.Errorf("[Scheduler] Lock sweep failed: %v", err)
		return
	}
	if count > 0 {
		log.Infof("[Scheduler] Removed %d expired registration locks", count)
	}
}
