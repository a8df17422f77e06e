package cart

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store holds the shopper's cart lines in memory and mirrors every mutation to
// a Persister in the background.
//
// Mutations are applied synchronously in the order issued. Persistence goes
// through a one-slot mailbox drained by a single goroutine: a newer snapshot
// replaces an unsent older one, so the stored state can lag but never moves
// backwards, and a slow or failing Persister never blocks a mutation.
type Store struct {
	mu        sync.Mutex
	lines     []Line
	version   uint64
	listeners []func()

	persister Persister
	lg        *zap.Logger
	pending   chan []byte
	done      chan struct{}
	closed    bool
}

// NewStore creates a Store and restores its lines from p. A missing or
// unreadable stored cart yields an empty cart; the error is logged, not
// returned.
func NewStore(ctx context.Context, p Persister, lg *zap.Logger) *Store {
	if lg == nil {
		lg = zap.NewNop()
	}
	s := &Store{
		persister: p,
		lg:        lg,
		pending:   make(chan []byte, 1),
		done:      make(chan struct{}),
	}
	s.lines = s.restore(ctx)
	go s.persistLoop()
	return s
}

func (s *Store) restore(ctx context.Context) []Line {
	if s.persister == nil {
		return nil
	}
	data, err := s.persister.Load(ctx)
	if err != nil {
		s.lg.Warn("Load cart", zap.Error(err))
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	stored, err := DecodeLines(data)
	if err != nil {
		s.lg.Warn("Decode stored cart, starting empty", zap.Error(err))
		return nil
	}

	// Stored data predates this process; re-apply the line invariants.
	lines := make([]Line, 0, len(stored))
	seen := make(map[Key]int, len(stored))
	for _, l := range stored {
		if validate(l) != nil {
			continue
		}
		l.Quantity = clamp(l.Quantity, l.StockCeiling)
		if i, ok := seen[l.Key()]; ok {
			lines[i].Quantity = clamp(lines[i].Quantity+l.Quantity, l.StockCeiling)
			continue
		}
		seen[l.Key()] = len(lines)
		lines = append(lines, l)
	}
	return lines
}

// Add inserts line, or merges it into the existing line with the same key.
// The resulting quantity is clamped to the line's stock ceiling; a
// non-positive requested quantity counts as one.
func (s *Store) Add(line Line) error {
	if err := validate(line); err != nil {
		return err
	}

	s.mutate(func() bool {
		if i := s.indexLocked(line.Key()); i >= 0 {
			requested := line.Quantity
			if requested < 1 {
				requested = 1
			}
			line.Quantity = clamp(s.lines[i].Quantity+requested, line.StockCeiling)
			s.lines[i] = line
			return true
		}
		line.Quantity = clamp(line.Quantity, line.StockCeiling)
		s.lines = append(s.lines, line)
		return true
	})
	return nil
}

// SetQuantity sets the quantity of the line identified by key, clamped to its
// stock ceiling. n <= 0 removes the line. Unknown keys are ignored.
func (s *Store) SetQuantity(key Key, n int) {
	if n <= 0 {
		s.Remove(key)
		return
	}

	s.mutate(func() bool {
		i := s.indexLocked(key)
		if i < 0 {
			return false
		}
		q := clamp(n, s.lines[i].StockCeiling)
		if q == s.lines[i].Quantity {
			return false
		}
		s.lines[i].Quantity = q
		return true
	})
}

// Remove deletes the line identified by key.
func (s *Store) Remove(key Key) {
	s.mutate(func() bool {
		i := s.indexLocked(key)
		if i < 0 {
			return false
		}
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
		return true
	})
}

// Clear removes every line.
func (s *Store) Clear() {
	s.mutate(func() bool {
		s.lines = nil
		return true
	})
}

// Lines returns a copy of the current lines in insertion order.
func (s *Store) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Line, len(s.lines))
	copy(out, s.lines)
	return out
}

// Line returns the line with the given key.
func (s *Store) Line(key Key) (Line, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexLocked(key); i >= 0 {
		return s.lines[i], true
	}
	return Line{}, false
}

// Subtotal returns the sum of line totals.
func (s *Store) Subtotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := decimal.Zero
	for _, l := range s.lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

// Count returns the total number of units across all lines.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

// IsEmpty reports whether the cart has no lines.
func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.lines) == 0
}

// Version increases by one on every mutation that changed the cart.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.version
}

// OnChange registers fn to be called after every mutation. fn runs on the
// mutating goroutine after the store lock is released.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, fn)
}

// Close stops the persistence goroutine after the latest snapshot has been
// written, or ctx is done.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.pending)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) indexLocked(key Key) int {
	for i, l := range s.lines {
		if l.Key() == key {
			return i
		}
	}
	return -1
}

// mutate applies fn under the lock. When fn reports a change the version is
// bumped, a snapshot is queued for persistence, and listeners run after the
// lock is released.
func (s *Store) mutate(fn func() bool) {
	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		return
	}
	s.version++
	s.enqueueLocked()
	listeners := s.listeners
	s.mu.Unlock()

	for _, l := range listeners {
		l()
	}
}

func (s *Store) enqueueLocked() {
	if s.persister == nil {
		return
	}
	if s.closed {
		s.lg.Warn("Cart changed after close, change is not persisted", zap.Uint64("version", s.version))
		return
	}

	data, err := EncodeLines(s.lines)
	if err != nil {
		s.lg.Warn("Encode cart", zap.Error(err))
		return
	}

	// Only this method sends, always under s.mu, so after the drain the
	// mailbox has room.
	select {
	case <-s.pending:
	default:
	}
	s.pending <- data
}

func (s *Store) persistLoop() {
	defer close(s.done)
	for data := range s.pending {
		if err := s.persister.Save(context.Background(), data); err != nil {
			s.lg.Warn("Persist cart", zap.Error(err))
		}
	}
}
