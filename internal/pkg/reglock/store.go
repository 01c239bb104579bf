package reglock

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/zoemaddison050/leadership-summit/app/models"
	"github.com/zoemaddison050/leadership-summit/app/repository"
)

// DefaultTTL bounds the payment window. Expiry alone arbitrates contention:
// an abandoned flow (closed browser, lost connection) unblocks the identity
// after the TTL without any explicit release.
const DefaultTTL = 30 * time.Minute

// ErrAlreadyLocked is returned when an active lock exists for the identity.
var ErrAlreadyLocked = errors.New("an active registration lock exists for this identity")

// LockInfo is the diagnostic view of a lock.
type LockInfo struct {
	LockedAt         time.Time `json:"locked_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	IsExpired        bool      `json:"is_expired"`
	MinutesRemaining int       `json:"minutes_remaining"`
}

// Store provides short-lived mutual exclusion keyed by (email, phone,
// event). Acquisition is a single conditional insert against a unique
// identity index, so concurrent attempts cannot both win.
type Store struct {
	repo repository.LockRepository
	ttl  time.Duration
	now  func() time.Time
}

// NewStore creates a lock store with the given TTL; zero means DefaultTTL.
func NewStore(repo repository.LockRepository, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{repo: repo, ttl: ttl, now: time.Now}
}

// Acquire creates a lock for the identity. The returned lock carries an
// opaque owner token that Release requires; callers that lose the token wait
// out the TTL. Returns ErrAlreadyLocked while an unexpired lock exists.
func (s *Store) Acquire(email, phone string, eventID uint) (*models.RegistrationLock, error) {
	email, phone = normalizeKey(email, phone)
	now := s.now()

	// Clear any expired row for this identity first so the unique index
	// only ever blocks on a live lock.
	if _, err := s.repo.DeleteExpiredByKey(email, phone, eventID, now); err != nil {
		return nil, err
	}

	lock := &models.RegistrationLock{
		Email:     email,
		Phone:     phone,
		EventID:   eventID,
		Token:     uuid.NewString(),
		LockedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	created, err := s.repo.CreateIfAbsent(lock)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, ErrAlreadyLocked
	}
	return lock, nil
}

// IsLocked reports whether an active (non-expired) lock exists. Storage
// errors fail open: a cache or database outage degrades to "allow
// registration" instead of blocking users, an explicit
// availability-over-consistency trade-off.
func (s *Store) IsLocked(email, phone string, eventID uint) bool {
	email, phone = normalizeKey(email, phone)
	lock, err := s.repo.Find(email, phone, eventID)
	if err != nil {
		log.Errorf("registration lock lookup failed, failing open: %v", err)
		return false
	}
	if lock == nil {
		return false
	}
	return !lock.IsExpired(s.now())
}

// Release deletes the lock if the owner token matches. Returns the number of
// rows removed (0 or 1).
func (s *Store) Release(email, phone string, eventID uint, token string) (int64, error) {
	email, phone = normalizeKey(email, phone)
	return s.repo.DeleteByToken(email, phone, eventID, token)
}

// ForceRelease deletes every lock for the identity regardless of owner.
// Admin/diagnostic use only.
func (s *Store) ForceRelease(email, phone string, eventID uint) (int64, error) {
	email, phone = normalizeKey(email, phone)
	return s.repo.DeleteByKey(email, phone, eventID)
}

// SweepExpired deletes all expired locks. Runs on a schedule, independent of
// the request path; delete-where-expired is safe to run concurrently with
// acquisition.
func (s *Store) SweepExpired() (int64, error) {
	return s.repo.DeleteExpired(s.now())
}

// Info returns the diagnostic view of the identity's lock, nil when none
// exists.
func (s *Store) Info(email, phone string, eventID uint) (*LockInfo, error) {
	email, phone = normalizeKey(email, phone)
	lock, err := s.repo.Find(email, phone, eventID)
	if err != nil {
		return nil, err
	}
	if lock == nil {
		return nil, nil
	}
	now := s.now()
	return &LockInfo{
		LockedAt:         lock.LockedAt,
		ExpiresAt:        lock.ExpiresAt,
		IsExpired:        lock.IsExpired(now),
		MinutesRemaining: lock.MinutesRemaining(now),
	}, nil
}

func normalizeKey(email, phone string) (string, string) {
	return strings.ToLower(strings.TrimSpace(email)), strings.TrimSpace(phone)
}
