package engine

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/couchjs/internal/infrastructure/monitoring"
)

const (
	defaultGCThreshold       = 64
	defaultSandboxStackBytes = 8 * 1024
)

var (
	initMu  sync.Mutex
	current *Engine
)

// Options configures an engine.
type Options struct {
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	Policy  Policy

	// Stdout receives print output. Stdin feeds readline.
	Stdout io.Writer
	Stdin  io.Reader

	// GCThreshold is the number of newly tracked objects after which
	// MaybeCollect forces a garbage collection.
	GCThreshold int

	SandboxStackBytes int64
	// SandboxTimeout bounds one evalcx run; zero disables it.
	SandboxTimeout time.Duration

	// TestSupport installs the sleep builtin.
	TestSupport bool
}

// Engine is the process-wide script engine. Only one may be live at a time.
type Engine struct {
	opts    Options
	logger  *zap.Logger
	metrics *monitoring.Metrics
	stdin   *bufio.Reader
	tracker *Tracker

	mu     sync.Mutex
	root   *Context
	live   int
	closed bool
}

// Initialize creates the engine. It fails with ErrAlreadyInitialized until
// the previous engine has been shut down.
func Initialize(opts Options) (*Engine, error) {
	initMu.Lock()
	defer initMu.Unlock()

	if current != nil {
		return nil, ErrAlreadyInitialized
	}

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stdin == nil {
		opts.Stdin = strings.NewReader("")
	}
	if opts.GCThreshold < 0 {
		opts.GCThreshold = defaultGCThreshold
	}
	if opts.SandboxStackBytes <= 0 {
		opts.SandboxStackBytes = defaultSandboxStackBytes
	}

	e := &Engine{
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		stdin:   bufio.NewReader(opts.Stdin),
	}
	e.tracker = newTracker(opts.GCThreshold, e.Warn, opts.Metrics)

	current = e
	e.logger.Debug("engine initialized",
		zap.Bool("sandboxed_eval", opts.Policy.AllowsSandboxedEval()),
		zap.Bool("test_support", opts.TestSupport))
	return e, nil
}

// NewRootContext creates the single top-level context with its own global
// namespace. The stack limit is in bytes.
func (e *Engine) NewRootContext(stackLimitBytes int64) (*Context, error) {
	if stackLimitBytes <= 0 {
		return nil, fmt.Errorf("%w: stack limit must be positive", ErrInvalidArgument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrNotInitialized
	}
	if e.root != nil {
		return nil, ErrRootExists
	}

	cx := e.newContextLocked(nil, newNamespace(), stackLimitBytes, true)
	e.root = cx
	return cx, nil
}

// Root returns the root context, or nil before NewRootContext.
func (e *Engine) Root() *Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.root
}

// Shutdown tears the engine down. Every context must be closed first.
func (e *Engine) Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrNotInitialized
	}
	if e.live > 0 {
		return fmt.Errorf("%w: %d open", ErrLiveContexts, e.live)
	}

	e.closed = true
	if current == e {
		current = nil
	}
	e.logger.Debug("engine shut down")
	return nil
}

// Warn reports a non-fatal engine condition. It never interrupts execution.
func (e *Engine) Warn(msg string, fields ...zap.Field) {
	e.logger.Warn(msg, fields...)
}

// Policy returns the policy fixed at initialization.
func (e *Engine) Policy() Policy {
	return e.opts.Policy
}

// Logger returns the engine logger.
func (e *Engine) Logger() *zap.Logger {
	return e.logger
}

// Metrics returns the engine metrics, which may be nil.
func (e *Engine) Metrics() *monitoring.Metrics {
	return e.metrics
}

// Tracker returns the registry of objects awaiting finalization.
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

// Collect forces a garbage collection and finalizes unreachable objects.
func (e *Engine) Collect() int {
	return e.tracker.Collect()
}

// MaybeCollect finalizes unreachable objects, forcing a garbage collection
// only once enough new objects have been tracked.
func (e *Engine) MaybeCollect() int {
	return e.tracker.MaybeCollect()
}

func (e *Engine) newContextLocked(parent *Context, ns *Namespace, stackBytes int64, ownsNamespace bool) *Context {
	policy := e.opts.Policy
	if parent != nil {
		policy = parent.policy
	}

	cx := &Context{
		id:            newContextID(),
		engine:        e,
		ns:            ns,
		parent:        parent,
		policy:        policy,
		stackBytes:    stackBytes,
		ownsNamespace: ownsNamespace,
	}
	cx.frames = e.stackFrames(stackBytes)

	e.live++
	if e.metrics != nil {
		e.metrics.ContextsLive.Inc()
	}
	return cx
}

func (e *Engine) releaseContext() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.live--
	if e.metrics != nil {
		e.metrics.ContextsLive.Dec()
	}
}

const (
	bytesPerFrame = 128
	minFrames     = 16
	maxFrames     = 1 << 20
)

// stackFrames maps a byte budget onto the engine's call depth limit.
func (e *Engine) stackFrames(stackBytes int64) int {
	frames := stackBytes / bytesPerFrame
	switch {
	case frames < minFrames:
		e.Warn("stack budget below minimum, clamping",
			zap.Int64("stack_bytes", stackBytes),
			zap.Int("frames", minFrames))
		return minFrames
	case frames > maxFrames:
		e.Warn("stack budget above maximum, clamping",
			zap.Int64("stack_bytes", stackBytes),
			zap.Int("frames", maxFrames))
		return maxFrames
	}
	return int(frames)
}
