// Package session keeps one checkout session per active shopper.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/checkout"
	"github.com/xenking/storefront/internal/domain/cart"
)

// CartPersisters returns the durable cart storage of a shopper.
type CartPersisters interface {
	For(userID string) cart.Persister
}

// entry is a live session. A session leaves the cache on eviction but is
// closed only once no request holds it.
type entry struct {
	s      *checkout.Session
	refs   int
	cached bool
}

// Manager creates checkout sessions on first use and evicts idle ones.
// Evicted sessions flush their cart; the next request restores it from
// storage. A shopper never has more than one live session.
type Manager struct {
	orch       *checkout.Orchestrator
	persisters CartPersisters
	lg         *zap.Logger

	// mu guards live and entry fields. It is never held while calling
	// into cache, whose eviction callback takes it.
	mu    sync.Mutex
	live  map[string]*entry
	cache *expirable.LRU[string, *entry]
}

// NewManager creates a Manager caching at most size sessions, each evicted
// after ttl without access.
func NewManager(orch *checkout.Orchestrator, persisters CartPersisters, size int, ttl time.Duration, lg *zap.Logger) *Manager {
	if lg == nil {
		lg = zap.NewNop()
	}
	m := &Manager{
		orch:       orch,
		persisters: persisters,
		lg:         lg,
		live:       make(map[string]*entry),
	}
	m.cache = expirable.NewLRU[string, *entry](size, m.evicted, ttl)
	return m
}

// Acquire returns userID's session, creating it if needed. The caller must
// call release when done; until then the session is not closed, even if it
// is evicted meanwhile.
func (m *Manager) Acquire(ctx context.Context, userID string) (*checkout.Session, func(), error) {
	if userID == "" {
		return nil, nil, errors.New("empty user id")
	}

	m.mu.Lock()
	e, ok := m.live[userID]
	if !ok {
		lg := m.lg.With(zap.String("user_id", userID))
		store := cart.NewStore(ctx, m.persisters.For(userID), lg)
		s, err := m.orch.NewSession(ctx, userID, store)
		if err != nil {
			m.mu.Unlock()
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = store.Close(closeCtx)
			return nil, nil, errors.Wrap(err, "new session")
		}
		e = &entry{s: s}
		m.live[userID] = e
	}
	e.refs++
	e.cached = true
	m.mu.Unlock()

	// Re-adding refreshes the idle deadline.
	m.cache.Add(userID, e)

	var once sync.Once
	return e.s, func() { once.Do(func() { m.release(userID, e) }) }, nil
}

// Len returns the number of cached sessions.
func (m *Manager) Len() int {
	return m.cache.Len()
}

// Close evicts every session, flushing carts. Sessions still held are
// flushed on release.
func (m *Manager) Close() {
	m.cache.Purge()
}

func (m *Manager) release(userID string, e *entry) {
	m.mu.Lock()
	e.refs--
	if e.refs > 0 || e.cached {
		m.mu.Unlock()
		return
	}
	m.dropLocked(userID, e)
	m.mu.Unlock()
	m.close(userID, e.s)
}

func (m *Manager) evicted(userID string, e *entry) {
	m.mu.Lock()
	if m.live[userID] != e {
		// Already closed.
		m.mu.Unlock()
		return
	}
	e.cached = false
	if e.refs > 0 {
		m.mu.Unlock()
		return
	}
	m.dropLocked(userID, e)
	m.mu.Unlock()
	m.close(userID, e.s)
}

func (m *Manager) dropLocked(userID string, e *entry) {
	if m.live[userID] == e {
		delete(m.live, userID)
	}
}

func (m *Manager) close(userID string, s *checkout.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		m.lg.Warn("Flush evicted session", zap.String("user_id", userID), zap.Error(err))
	}
}
