package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lodestar-ai/lodestar/internal/logging"
)

const (
	// DefaultTimeout bounds a tool call that does not hint its own deadline.
	DefaultTimeout = 2 * time.Minute

	// MaxTimeout is the hard ceiling for any single tool call.
	MaxTimeout = 10 * time.Minute

	// timeoutGrace is headroom added to the executor deadline so tools that
	// enforce the same timeout internally (bash, webfetch) get to shape
	// their own timeout output before the executor cuts them off.
	timeoutGrace = 2 * time.Second
)

// Executor runs tool calls: it validates arguments against the registered
// schema, enforces the per-call timeout, serializes calls that touch the
// same path, and shapes failures into the typed errors the step loop
// understands. Independent calls may run concurrently through one Executor.
type Executor struct {
	registry       *Registry
	locks          *pathLocks
	defaultTimeout time.Duration
	maxTimeout     time.Duration
	log            zerolog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithDefaultTimeout overrides the default per-call timeout.
func WithDefaultTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.defaultTimeout = d }
}

// WithMaxTimeout overrides the per-call timeout ceiling.
func WithMaxTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.maxTimeout = d }
}

// NewExecutor creates an executor over a registry.
func NewExecutor(registry *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry:       registry,
		locks:          newPathLocks(),
		defaultTimeout: DefaultTimeout,
		maxTimeout:     MaxTimeout,
		log:            logging.Component("tool"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.defaultTimeout > e.maxTimeout {
		e.defaultTimeout = e.maxTimeout
	}
	return e
}

// Execute looks up the named tool, validates input, and runs it under the
// call deadline. Failures come back as ErrToolNotFound, *ValidationError,
// *TimeoutError or *ExecutionError.
func (e *Executor) Execute(ctx context.Context, name string, input json.RawMessage, toolCtx *Context) (*Result, error) {
	t, ok := e.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrToolNotFound)
	}
	if err := e.registry.Validate(name, input); err != nil {
		return nil, err
	}

	timeout := e.defaultTimeout
	if h, ok := t.(TimeoutHinter); ok {
		if d := h.CallTimeout(input); d > 0 {
			timeout = d
		}
	}
	if timeout > e.maxTimeout {
		timeout = e.maxTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout+timeoutGrace)
	defer cancel()

	if toolCtx == nil {
		toolCtx = &Context{}
	}
	toolCtx.locks = e.locks
	defer toolCtx.releaseLocks()

	start := time.Now()
	result, err := t.Execute(callCtx, input, toolCtx)
	duration := time.Since(start)

	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			e.log.Warn().Str("tool", name).Dur("duration", duration).Msg("tool call timed out")
			return nil, &TimeoutError{Tool: name, Timeout: timeout}
		}
		var verr *ValidationError
		if errors.As(err, &verr) {
			return nil, err
		}
		e.log.Debug().Str("tool", name).Dur("duration", duration).Err(err).Msg("tool call failed")
		return nil, &ExecutionError{Tool: name, Err: err}
	}

	e.log.Debug().Str("tool", name).Dur("duration", duration).Msg("tool call completed")
	if result == nil {
		result = &Result{}
	}
	return result, nil
}

// pathLocks serializes tool calls that touch the same cleaned absolute
// path. Locks are created on demand and dropped once no call holds them.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	path string
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*pathLock)}
}

// acquire locks the given paths in sorted order and returns the locks taken.
// Sorted acquisition keeps concurrent multi-path callers deadlock-free.
func (p *pathLocks) acquire(paths []string) []*pathLock {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	var taken []*pathLock
	var last string
	for i, path := range sorted {
		if i > 0 && path == last {
			continue
		}
		last = path

		p.mu.Lock()
		l, ok := p.locks[path]
		if !ok {
			l = &pathLock{path: path}
			p.locks[path] = l
		}
		l.refs++
		p.mu.Unlock()

		l.mu.Lock()
		taken = append(taken, l)
	}
	return taken
}

// release unlocks in reverse acquisition order and drops unreferenced locks.
func (p *pathLocks) release(held []*pathLock) {
	for i := len(held) - 1; i >= 0; i-- {
		l := held[i]
		l.mu.Unlock()

		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, l.path)
		}
		p.mu.Unlock()
	}
}
