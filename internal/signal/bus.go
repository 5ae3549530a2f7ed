package signal

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ErrLimitReached is returned by Subscribe when the bus already holds
// Config.MaxCallbacks callbacks.
var ErrLimitReached = errors.New("signal: callback limit reached")

// ErrCallbackTimeout marks a callback that did not return within
// Config.CallbackTimeout.
var ErrCallbackTimeout = errors.New("signal: callback timed out")

// Handler receives events. Each handler gets its own copy of the event,
// so it may modify Payload and Tags without affecting other handlers.
// A non-nil error, a panic, or running past the callback timeout all
// count as a failure of that callback.
type Handler func(ctx context.Context, ev Event) error

// Config controls callback lifecycle.
type Config struct {
	CallbackTimeout        time.Duration
	MaxCallbacks           int
	RemoveFailingCallbacks bool
	MaxConsecutiveFailures int

	// CleanupInterval is how often the sweep started by Start runs.
	CleanupInterval time.Duration

	// AutoRemoveInactiveCallbacks lets the sweep drop callbacks that have
	// never executed and are older than InactiveCallbackThreshold.
	AutoRemoveInactiveCallbacks bool
	InactiveCallbackThreshold   time.Duration
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		CallbackTimeout:             30 * time.Second,
		MaxCallbacks:                100,
		RemoveFailingCallbacks:      true,
		MaxConsecutiveFailures:      3,
		CleanupInterval:             time.Minute,
		AutoRemoveInactiveCallbacks: true,
		InactiveCallbackThreshold:   24 * time.Hour,
	}
}

// CallbackError reports one failed callback invocation.
type CallbackError struct {
	CallbackID uint64
	Event      Event
	Err        error
}

func (e CallbackError) Error() string {
	return fmt.Sprintf("callback %d failed on %s %s: %v", e.CallbackID, e.Event.Type, e.Event.Table, e.Err)
}

func (e CallbackError) Unwrap() error { return e.Err }

// Stats is a snapshot of the registry.
type Stats struct {
	TotalCallbacks   int
	TotalExecutions  int
	TotalFailures    int
	FailingCallbacks int
	Limit            int
}

// NearLimit reports whether more than 90% of the callback limit is used.
func (s Stats) NearLimit() bool {
	if s.Limit <= 0 {
		return false
	}
	return float64(s.TotalCallbacks)/float64(s.Limit) > 0.9
}

type registration struct {
	id                  uint64
	handler             Handler
	consecutiveFailures int
	totalExecutions     int
	totalFailures       int
	createdAt           time.Time
}

// Bus fans events out to subscribed callbacks.
//
// Emit is two-phase: the registry lock is held only to snapshot callbacks
// and later to fold results back, never while callbacks run. Callbacks
// subscribed during an Emit do not see that event.
type Bus struct {
	cfg  Config
	log  zerolog.Logger
	ids  IDGenerator
	now  func() time.Time
	next atomic.Uint64

	mu        sync.RWMutex
	callbacks map[uint64]*registration
	onError   func(CallbackError)

	lifecycle sync.Mutex
	stop      chan struct{}
	done      chan struct{}
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for failures and evictions.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Bus) { b.log = l }
}

// WithIDGenerator sets how event IDs are assigned.
func WithIDGenerator(g IDGenerator) Option {
	return func(b *Bus) { b.ids = g }
}

// WithClock sets the time source used for registration ages.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// New returns a Bus. Zero durations and limits in cfg fall back to
// DefaultConfig values.
func New(cfg Config, opts ...Option) *Bus {
	def := DefaultConfig()
	if cfg.CallbackTimeout <= 0 {
		cfg.CallbackTimeout = def.CallbackTimeout
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = def.MaxConsecutiveFailures
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.InactiveCallbackThreshold <= 0 {
		cfg.InactiveCallbackThreshold = def.InactiveCallbackThreshold
	}
	b := &Bus{
		cfg:       cfg,
		log:       zerolog.Nop(),
		ids:       UUIDv7Generator{},
		now:       time.Now,
		callbacks: make(map[uint64]*registration),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With().Str("component", "signal").Logger()
	return b
}

// Config returns the effective configuration.
func (b *Bus) Config() Config { return b.cfg }

// Handle identifies one subscription.
type Handle struct {
	bus *Bus
	id  uint64
}

// ID returns the callback id. Ids are never reused.
func (h *Handle) ID() uint64 { return h.id }

// Unsubscribe removes the callback. It reports whether the callback was
// still registered.
func (h *Handle) Unsubscribe() bool {
	return h.bus.remove(h.id)
}

// Subscribe registers h. It fails with ErrLimitReached when the bus is
// full.
func (b *Bus) Subscribe(h Handler) (*Handle, error) {
	if h == nil {
		return nil, errors.New("signal: nil handler")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg.MaxCallbacks > 0 && len(b.callbacks) >= b.cfg.MaxCallbacks {
		return nil, fmt.Errorf("%w (%d); unsubscribe unused callbacks first", ErrLimitReached, b.cfg.MaxCallbacks)
	}
	id := b.next.Add(1)
	b.callbacks[id] = &registration{id: id, handler: h, createdAt: b.now()}
	b.log.Debug().Uint64("callback_id", id).Int("total", len(b.callbacks)).Msg("callback subscribed")
	return &Handle{bus: b, id: id}, nil
}

func (b *Bus) remove(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.callbacks[id]
	delete(b.callbacks, id)
	return ok
}

// SetErrorHandler installs an observer for callback failures. Without
// one, failures are logged. The observer runs after bookkeeping, outside
// the registry lock.
func (b *Bus) SetErrorHandler(fn func(CallbackError)) {
	b.mu.Lock()
	b.onError = fn
	b.mu.Unlock()
}

// Emit delivers ev to every callback registered at call time, running
// them concurrently, and returns once each has finished or timed out.
// Callback failures never propagate to the caller.
func (b *Bus) Emit(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = b.ids.Generate()
	}

	b.mu.Lock()
	snapshot := make([]*registration, 0, len(b.callbacks))
	for _, r := range b.callbacks {
		r.totalExecutions++
		snapshot = append(snapshot, r)
	}
	b.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}
	slices.SortFunc(snapshot, func(x, y *registration) int {
		switch {
		case x.id < y.id:
			return -1
		case x.id > y.id:
			return 1
		}
		return 0
	})

	results := make([]error, len(snapshot))
	var wg sync.WaitGroup
	for i, r := range snapshot {
		wg.Add(1)
		go func(i int, h Handler) {
			defer wg.Done()
			results[i] = b.invoke(ctx, h, ev.Clone())
		}(i, r.handler)
	}
	wg.Wait()

	var failures []CallbackError
	b.mu.Lock()
	onError := b.onError
	for i, r := range snapshot {
		cur, ok := b.callbacks[r.id]
		if !ok {
			continue
		}
		if results[i] == nil {
			cur.consecutiveFailures = 0
			continue
		}
		cur.totalFailures++
		cur.consecutiveFailures++
		failures = append(failures, CallbackError{CallbackID: r.id, Event: ev, Err: results[i]})

		if b.cfg.RemoveFailingCallbacks && cur.consecutiveFailures >= b.cfg.MaxConsecutiveFailures {
			delete(b.callbacks, r.id)
			b.log.Warn().
				Uint64("callback_id", r.id).
				Int("consecutive_failures", cur.consecutiveFailures).
				Msg("removing failing callback")
		}
	}
	b.mu.Unlock()

	for _, f := range failures {
		if onError != nil {
			onError(f)
			continue
		}
		b.log.Error().
			Err(f.Err).
			Uint64("callback_id", f.CallbackID).
			Str("event_type", string(ev.Type)).
			Str("table", ev.Table).
			Msg("callback failed")
	}
}

// invoke runs h with the per-callback timeout. A panic is reported as an
// error. A callback that ignores its context keeps running in the
// background after the timeout; its result is discarded.
func (b *Bus) invoke(ctx context.Context, h Handler, ev Event) error {
	cctx, cancel := context.WithTimeout(ctx, b.cfg.CallbackTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("callback panicked: %v", p)
			}
		}()
		done <- h(cctx, ev)
	}()

	select {
	case err := <-done:
		return err
	case <-cctx.Done():
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrCallbackTimeout, b.cfg.CallbackTimeout)
		}
		return cctx.Err()
	}
}

// Stats returns a snapshot of registry counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Stats{TotalCallbacks: len(b.callbacks), Limit: b.cfg.MaxCallbacks}
	for _, r := range b.callbacks {
		s.TotalExecutions += r.totalExecutions
		s.TotalFailures += r.totalFailures
		if r.consecutiveFailures > 0 {
			s.FailingCallbacks++
		}
	}
	return s
}

// Len returns the number of registered callbacks.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.callbacks)
}

// Clear removes every callback.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.callbacks = make(map[uint64]*registration)
	b.mu.Unlock()
}

// Sweep removes callbacks that have never executed and are older than
// the inactivity threshold. It returns how many were removed and does
// nothing unless AutoRemoveInactiveCallbacks is set.
func (b *Bus) Sweep() int {
	if !b.cfg.AutoRemoveInactiveCallbacks {
		return 0
	}
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for id, r := range b.callbacks {
		if r.totalExecutions == 0 && now.Sub(r.createdAt) > b.cfg.InactiveCallbackThreshold {
			delete(b.callbacks, id)
			removed++
			b.log.Info().
				Uint64("callback_id", id).
				Dur("age", now.Sub(r.createdAt)).
				Msg("removing inactive callback (never executed)")
		}
	}
	return removed
}

// Start runs Sweep every CleanupInterval until Close. Calling Start on a
// running bus is a no-op.
func (b *Bus) Start() {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()
	if b.stop != nil {
		return
	}
	stop, done := make(chan struct{}), make(chan struct{})
	b.stop, b.done = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(b.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				b.Sweep()
			}
		}
	}()
}

// Close stops the sweep and removes every callback.
func (b *Bus) Close() {
	b.lifecycle.Lock()
	if b.stop != nil {
		close(b.stop)
		<-b.done
		b.stop, b.done = nil, nil
	}
	b.lifecycle.Unlock()
	b.Clear()
}
