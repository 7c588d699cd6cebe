package auth

import (
	"sync"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/gatelog/gatelog/server/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Login attempt limits. After MaxAttempts failures inside AttemptWindow, the
// identity is locked out for LockoutDuration. A successful login clears the
// identity's state entirely.
const (
	MaxAttempts     = 5
	AttemptWindow   = 5 * time.Minute
	LockoutDuration = 15 * time.Minute
)

// Attempt is the failed-login state for one identity.
type Attempt struct {
	Count       int
	LastAt      time.Time
	LockedUntil time.Time // zero when not locked
}

// AttemptStore persists rate-limit state. The production store is the
// database, so that limits survive restarts and apply across instances.
type AttemptStore interface {
	// Get returns nil (and no error) when the identity has no state.
	Get(identity string) (*Attempt, error)
	Put(identity string, a *Attempt) error
	Delete(identity string) error
}

// Limiter implements the sliding-window lockout over an AttemptStore.
type Limiter struct {
	store AttemptStore
	now   func() time.Time // overridable for tests
}

func NewLimiter(store AttemptStore) *Limiter {
	return &Limiter{
		store: store,
		now:   time.Now,
	}
}

// IsLimited returns true if a lockout is active, or if the identity has
// reached MaxAttempts within the current window.
func (l *Limiter) IsLimited(identity string) (bool, error) {
	a, err := l.store.Get(identity)
	if err != nil || a == nil {
		return false, err
	}
	now := l.now()
	if !a.LockedUntil.IsZero() && now.Before(a.LockedUntil) {
		return true, nil
	}
	if now.Sub(a.LastAt) > AttemptWindow {
		return false, nil
	}
	return a.Count >= MaxAttempts, nil
}

// RecordAttempt updates the identity's state after a login attempt.
// Success wipes the state. Failure increments the counter, restarting the
// count if the window has lapsed, and engages the lockout at the threshold.
func (l *Limiter) RecordAttempt(identity string, success bool) error {
	if success {
		return l.store.Delete(identity)
	}
	now := l.now()
	a, err := l.store.Get(identity)
	if err != nil {
		return err
	}
	if a == nil || now.Sub(a.LastAt) > AttemptWindow {
		a = &Attempt{}
	}
	a.Count++
	a.LastAt = now
	if a.Count >= MaxAttempts {
		a.LockedUntil = now.Add(LockoutDuration)
	}
	return l.store.Put(identity, a)
}

// dbAttemptStore keeps attempts in the login_attempt table.
type dbAttemptStore struct {
	db *gorm.DB
}

func NewDBAttemptStore(db *gorm.DB) AttemptStore {
	return &dbAttemptStore{db: db}
}

func (s *dbAttemptStore) Get(identity string) (*Attempt, error) {
	row := model.LoginAttempt{}
	if err := s.db.Where("identity = ?", identity).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.Identity == "" {
		return nil, nil
	}
	a := &Attempt{
		Count:  row.AttemptCount,
		LastAt: row.LastAttemptAt.Get(),
	}
	if !row.LockedUntil.IsZero() {
		a.LockedUntil = row.LockedUntil.Get()
	}
	return a, nil
}

func (s *dbAttemptStore) Put(identity string, a *Attempt) error {
	row := model.LoginAttempt{
		Identity:      identity,
		AttemptCount:  a.Count,
		LastAttemptAt: dbh.MakeIntTime(a.LastAt),
	}
	if !a.LockedUntil.IsZero() {
		row.LockedUntil = dbh.MakeIntTime(a.LockedUntil)
	}
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (s *dbAttemptStore) Delete(identity string) error {
	return s.db.Delete(&model.LoginAttempt{}, "identity = ?", identity).Error
}

// memAttemptStore is a locked in-process map. Used by tests, and usable in
// single-instance deployments where losing limiter state on restart is OK.
type memAttemptStore struct {
	lock     sync.Mutex
	attempts map[string]Attempt
}

func NewMemoryAttemptStore() AttemptStore {
	return &memAttemptStore{attempts: map[string]Attempt{}}
}

func (s *memAttemptStore) Get(identity string) (*Attempt, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if a, ok := s.attempts[identity]; ok {
		dup := a
		return &dup, nil
	}
	return nil, nil
}

func (s *memAttemptStore) Put(identity string, a *Attempt) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.attempts[identity] = *a
	return nil
}

func (s *memAttemptStore) Delete(identity string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.attempts, identity)
	return nil
}
