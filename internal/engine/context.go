package engine

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/couchjs/internal/shared/id"
)

// Context is an execution context: a namespace, a stack budget and the
// security policy. The root context lives for the whole run; sub-contexts
// exist only for the duration of one evalcx call.
type Context struct {
	id            id.ContextID
	engine        *Engine
	ns            *Namespace
	parent        *Context
	policy        Policy
	stackBytes    int64
	frames        int
	ownsNamespace bool
	closed        bool
}

func newContextID() id.ContextID {
	return id.NewContextID()
}

// ID returns the context identifier.
func (cx *Context) ID() id.ContextID { return cx.id }

// Engine returns the owning engine.
func (cx *Context) Engine() *Engine { return cx.engine }

// Namespace returns the context's global namespace.
func (cx *Context) Namespace() *Namespace { return cx.ns }

// Runtime returns the runtime of the context's namespace.
func (cx *Context) Runtime() *goja.Runtime { return cx.ns.Runtime() }

// Parent returns the parent context, nil for the root.
func (cx *Context) Parent() *Context { return cx.parent }

// Policy returns the security policy.
func (cx *Context) Policy() Policy { return cx.policy }

// StackBytes returns the stack budget in bytes.
func (cx *Context) StackBytes() int64 { return cx.stackBytes }

// IsRoot reports whether cx is the root context.
func (cx *Context) IsRoot() bool { return cx.parent == nil }

// Compile compiles src as a standalone program named name.
func (cx *Context) Compile(name, src string) (*goja.Program, error) {
	prog, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return prog, nil
}

// Run executes prog in the context's namespace. A quit call surfaces as
// *ExitError; an uncaught script exception as *goja.Exception.
func (cx *Context) Run(prog *goja.Program) (goja.Value, error) {
	if cx.closed {
		return nil, ErrClosed
	}
	rt := cx.Runtime()
	if rt == nil {
		return nil, ErrClosed
	}

	rt.SetMaxCallStackSize(cx.frames)
	v, err := rt.RunProgram(prog)
	if err != nil {
		return nil, cx.translate(rt, err)
	}
	return v, nil
}

// RunString compiles and runs src.
func (cx *Context) RunString(name, src string) (goja.Value, error) {
	prog, err := cx.Compile(name, src)
	if err != nil {
		return nil, err
	}
	return cx.Run(prog)
}

func (cx *Context) translate(rt *goja.Runtime, err error) error {
	var interrupted *goja.InterruptedError
	if !errors.As(err, &interrupted) {
		return err
	}
	rt.ClearInterrupt()

	switch v := interrupted.Value().(type) {
	case *ExitError:
		return v
	case error:
		return v
	default:
		return err
	}
}

// Close closes the context. Closing the root finalizes every object still
// tracked; closing a sub-context releases its private namespace.
func (cx *Context) Close() error {
	if cx.closed {
		return ErrClosed
	}
	cx.closed = true

	e := cx.engine
	if cx.IsRoot() {
		n := e.tracker.finalizeAll()
		e.logger.Debug("root context closed",
			zap.String("context", cx.id.String()),
			zap.Int("finalized", n))
	}
	if cx.ownsNamespace {
		_ = cx.ns.Finalize()
	}

	e.releaseContext()
	return nil
}

// newSubContext creates a context for one sandboxed evaluation.
func (cx *Context) newSubContext(ns *Namespace, owned bool) *Context {
	e := cx.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.newContextLocked(cx, ns, e.opts.SandboxStackBytes, owned)
}
