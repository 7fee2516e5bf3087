package surrogate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chazu/tensile/pkg/graph"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultLoadTimeout bounds a single load attempt.
const DefaultLoadTimeout = 60 * time.Second

// ErrClosed is returned by loads that finish after the handle was closed.
var ErrClosed = errors.New("surrogate: handle closed")

// ErrSuperseded is returned by a load that finished after a newer load
// had started. Its result is discarded; the newest load publishes.
var ErrSuperseded = errors.New("surrogate: load superseded by a newer load")

// State is the load state of a Handle.
type State int32

const (
	StateNotLoaded State = iota // nothing loaded yet
	StateLoading                // first load in progress
	StateReady                  // a model is serving
	StateFailed                 // last load failed and no model is serving
)

func (s State) String() string {
	switch s {
	case StateNotLoaded:
		return "not-loaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point-in-time view of a Handle.
type Status struct {
	State    State     `json:"state"`
	Source   string    `json:"source,omitempty"`
	Error    string    `json:"error,omitempty"`
	Attempts int64     `json:"attempts"`
	LoadedAt time.Time `json:"loaded_at"`
}

// modelRef counts in-flight users of a model. A retired model is closed
// when its last user releases it.
type modelRef struct {
	model     Model
	refs      atomic.Int64
	retired   atomic.Bool
	closeOnce sync.Once
	log       *zap.Logger
}

func (r *modelRef) acquire() bool {
	r.refs.Add(1)
	if r.retired.Load() {
		r.release()
		return false
	}
	return true
}

func (r *modelRef) release() {
	if r.refs.Add(-1) == 0 && r.retired.Load() {
		r.close()
	}
}

func (r *modelRef) retire() {
	r.retired.Store(true)
	if r.refs.Load() == 0 {
		r.close()
	}
}

func (r *modelRef) close() {
	r.closeOnce.Do(func() {
		if err := r.model.Close(); err != nil {
			r.log.Warn("closing retired model", zap.Error(err))
		}
	})
}

// snapshot is an immutable published state. Readers load it without
// locking.
type snapshot struct {
	state    State
	ref      *modelRef
	err      error
	attempts int64
	loadedAt time.Time
}

// Lease pins a model for one inference. Release must be called exactly
// once; further calls are ignored.
type Lease struct {
	ref  *modelRef
	once sync.Once
}

// Model returns the leased model.
func (l *Lease) Model() Model { return l.ref.model }

// Release returns the lease.
func (l *Lease) Release() {
	l.once.Do(l.ref.release)
}

// RetryPolicy controls background loading. A zero Interval makes a single
// attempt; MaxAttempts <= 0 with a positive Interval retries until the
// load succeeds or the context ends.
type RetryPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// Handle owns the shared surrogate model. Inference reads a published
// snapshot and pins its model with a reference count, so a reload never
// closes a model that a request is still using. Loads are collapsed with
// singleflight; the mutex only orders publication.
type Handle struct {
	source      string
	loader      Loader
	log         *zap.Logger
	loadTimeout time.Duration
	onState     func(from, to State)

	current  atomic.Pointer[snapshot]
	group    singleflight.Group
	attempts atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Handle.
type Option func(*Handle)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(h *Handle) {
		if l != nil {
			h.log = l
		}
	}
}

// WithLoader replaces the backend loader.
func WithLoader(l Loader) Option {
	return func(h *Handle) { h.loader = l }
}

// WithLoadTimeout bounds each load attempt.
func WithLoadTimeout(d time.Duration) Option {
	return func(h *Handle) {
		if d > 0 {
			h.loadTimeout = d
		}
	}
}

// WithStateHook registers fn to be called on every state transition.
// It runs while publication is serialised and must not call back into
// the handle.
func WithStateHook(fn func(from, to State)) Option {
	return func(h *Handle) { h.onState = fn }
}

// New returns an unloaded handle for source.
func New(source string, opts ...Option) *Handle {
	h := &Handle{
		source:      source,
		loader:      NewLoader(LoaderOptions{}),
		log:         zap.NewNop(),
		loadTimeout: DefaultLoadTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	h.current.Store(&snapshot{state: StateNotLoaded})
	return h
}

// Source returns the configured model source.
func (h *Handle) Source() string { return h.source }

// State returns the current state.
func (h *Handle) State() State { return h.current.Load().state }

// Status returns the current state with load details.
func (h *Handle) Status() Status {
	s := h.current.Load()
	st := Status{
		State:    s.state,
		Source:   h.source,
		Attempts: s.attempts,
		LoadedAt: s.loadedAt,
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	return st
}

// Load loads the model and publishes it. Concurrent calls share one
// attempt. A failed reload keeps serving the previous model.
func (h *Handle) Load(ctx context.Context) error {
	_, err, _ := h.group.Do("load", func() (any, error) {
		return nil, h.load(ctx)
	})
	return err
}

// Reload starts a fresh load even if one is in flight. The older load
// is superseded: whatever it returns is discarded, so the source read last
// is the one published.
func (h *Handle) Reload(ctx context.Context) error {
	h.group.Forget("load")
	return h.Load(ctx)
}

func (h *Handle) load(ctx context.Context) error {
	n := h.attempts.Add(1)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	if cur := h.current.Load(); cur.state != StateReady {
		h.publishLocked(&snapshot{state: StateLoading, attempts: n})
	}
	h.mu.Unlock()

	lctx, cancel := context.WithTimeout(ctx, h.loadTimeout)
	defer cancel()

	start := time.Now()
	m, err := h.loader(lctx, h.source)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		if m != nil {
			_ = m.Close()
		}
		return ErrClosed
	}
	if latest := h.attempts.Load(); n < latest {
		h.mu.Unlock()
		if m != nil {
			_ = m.Close()
		}
		h.log.Debug("discarding superseded model load",
			zap.String("source", h.source),
			zap.Int64("attempt", n),
			zap.Int64("latest", latest))
		return ErrSuperseded
	}
	old := h.current.Load()
	if err != nil {
		if old.state == StateReady {
			h.publishLocked(&snapshot{state: StateReady, ref: old.ref, err: err, attempts: n, loadedAt: old.loadedAt})
		} else {
			h.publishLocked(&snapshot{state: StateFailed, err: err, attempts: n})
		}
		h.mu.Unlock()
		h.log.Warn("model load failed",
			zap.String("source", h.source),
			zap.Int64("attempt", n),
			zap.Error(err))
		return err
	}
	ref := &modelRef{model: m, log: h.log}
	h.publishLocked(&snapshot{state: StateReady, ref: ref, attempts: n, loadedAt: time.Now()})
	h.mu.Unlock()

	if old.ref != nil {
		old.ref.retire()
	}
	h.log.Info("model loaded",
		zap.String("source", h.source),
		zap.Int64("attempt", n),
		zap.Duration("took", time.Since(start)))
	return nil
}

// publishLocked swaps in next. h.mu must be held.
func (h *Handle) publishLocked(next *snapshot) {
	prev := h.current.Swap(next)
	if h.onState != nil && prev.state != next.state {
		h.onState(prev.state, next.state)
	}
}

// LoadAsync loads in the background under p. A second call supersedes
// the first loop. Close stops and waits for the loop.
func (h *Handle) LoadAsync(ctx context.Context, p RetryPolicy) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	if h.cancel != nil {
		h.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.wg.Add(1)
	h.mu.Unlock()

	go func() {
		defer h.wg.Done()
		h.retryLoop(ctx, p)
	}()
}

// ReloadAsync is LoadAsync after discarding any in-flight load, so the
// source is read again.
func (h *Handle) ReloadAsync(ctx context.Context, p RetryPolicy) {
	h.group.Forget("load")
	h.LoadAsync(ctx, p)
}

func (h *Handle) retryLoop(ctx context.Context, p RetryPolicy) {
	for attempt := 1; ; attempt++ {
		err := h.Load(ctx)
		if err == nil || errors.Is(err, ErrClosed) || errors.Is(err, ErrNoSource) || errors.Is(err, ErrSuperseded) {
			return
		}
		if p.Interval <= 0 || (p.MaxAttempts > 0 && attempt >= p.MaxAttempts) {
			return
		}
		t := time.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// Acquire leases the ready model. It fails with ErrModelUnavailable when
// no model is serving; while the first load is in progress the error also
// matches ErrModelLoading.
func (h *Handle) Acquire() (*Lease, error) {
	for {
		s := h.current.Load()
		switch s.state {
		case StateReady:
		case StateLoading:
			return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, ErrModelLoading)
		case StateFailed:
			return nil, fmt.Errorf("%w: load failed: %v", ErrModelUnavailable, s.err)
		default:
			return nil, fmt.Errorf("%w: %s", ErrModelUnavailable, s.state)
		}
		if s.ref.acquire() {
			return &Lease{ref: s.ref}, nil
		}
		// Retired between load and acquire; a newer snapshot is published.
	}
}

type runResult struct {
	out []float32
	err error
}

// Run leases the model and runs it on g. The call is raced against ctx:
// on cancellation Run returns ctx.Err() at once, while the inference
// finishes in the background and releases its lease.
func (h *Handle) Run(ctx context.Context, g *graph.Graph) ([]float32, error) {
	lease, err := h.Acquire()
	if err != nil {
		return nil, err
	}

	ch := make(chan runResult, 1)
	go func() {
		defer lease.Release()
		defer func() {
			if r := recover(); r != nil {
				ch <- runResult{err: fmt.Errorf("surrogate: panic during inference: %v", r)}
			}
		}()
		out, err := lease.Model().Run(ctx, g)
		ch <- runResult{out: out, err: err}
	}()

	select {
	case res := <-ch:
		return res.out, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops background loading and retires the serving model. In-flight
// inferences keep their model until they release it.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	cancel := h.cancel
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.wg.Wait()

	h.mu.Lock()
	old := h.current.Load()
	h.publishLocked(&snapshot{state: StateNotLoaded, attempts: old.attempts})
	h.mu.Unlock()

	if old.ref != nil {
		old.ref.retire()
	}
	return nil
}
