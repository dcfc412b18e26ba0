package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

const defaultProgramName = "evalcx"

// thrownError carries a value thrown inside a sandbox, already copied into
// the caller's runtime.
type thrownError struct {
	value goja.Value
	msg   string
}

func (e *thrownError) Error() string {
	return e.msg
}

// Evalcx evaluates src in a sandbox and returns the completion value copied
// into cx's runtime.
//
// A nil, undefined or null sandbox gets a fresh namespace that is released
// when the call returns. A plain object binds a namespace to itself on first
// use; later calls with the same object see the globals left by earlier ones.
// name labels the program in diagnostics and defaults to "evalcx".
func (cx *Context) Evalcx(src string, sandbox goja.Value, name string) (result goja.Value, err error) {
	e := cx.engine
	defer func() { e.recordEvalcx(err) }()

	if !IsSandboxedEvalAllowed(cx) {
		return nil, ErrPermissionDenied
	}
	caller := cx.Runtime()
	if cx.closed || caller == nil {
		return nil, ErrClosed
	}

	ns, owned, err := cx.sandboxNamespace(sandbox)
	if err != nil {
		return nil, err
	}

	sub := cx.newSubContext(ns, owned)
	defer sub.Close()

	if src == "" {
		return goja.Undefined(), nil
	}
	if name == "" {
		name = defaultProgramName
	}

	prog, err := goja.Compile(name, src, false)
	if e.metrics != nil {
		e.metrics.SandboxCompilations.Inc()
	}
	if err != nil {
		return nil, err
	}

	inner := ns.Runtime()
	err = sub.withBudget(e.opts.SandboxTimeout, func() error {
		v, err := sub.Run(prog)
		if err != nil {
			var ex *goja.Exception
			if !errors.As(err, &ex) {
				return err
			}
			msg := describe(inner, ex)
			thrown, terr := transferValue(inner, caller, ex.Value())
			if terr != nil {
				if errors.Is(terr, ErrSandboxTimeout) {
					return terr
				}
				thrown = caller.NewGoError(errors.New(msg))
			}
			return &thrownError{value: thrown, msg: msg}
		}
		result, err = transferValue(inner, caller, v)
		return err
	})
	if err != nil {
		var thrown *thrownError
		if errors.As(err, &thrown) {
			return nil, err
		}
		return nil, fmt.Errorf("evalcx %s: %w", name, err)
	}
	return result, nil
}

func (cx *Context) sandboxNamespace(v goja.Value) (*Namespace, bool, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return newNamespace(), true, nil
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false, fmt.Errorf("%w: not an object", ErrInvalidSandbox)
	}
	if obj == cx.Runtime().GlobalObject() || obj.ClassName() != "Object" {
		return nil, false, fmt.Errorf("%w: %s", ErrInvalidSandbox, obj.ClassName())
	}

	tracker := cx.engine.tracker
	if fin, ok := tracker.Lookup(obj); ok {
		ns, isNamespace := fin.(*Namespace)
		if !isNamespace || ns.Released() {
			return nil, false, fmt.Errorf("%w: object is bound to native state", ErrInvalidSandbox)
		}
		return ns, false, nil
	}

	ns := newNamespace()
	tracker.Track(obj, "sandbox", ns)
	cx.engine.logger.Debug("sandbox namespace bound", zap.String("namespace", ns.ID().String()))
	return ns, false, nil
}

// withBudget runs fn with the sandbox wall-clock budget armed. The budget
// covers both execution and copying the result out, since the copy can run
// getters.
func (cx *Context) withBudget(budget time.Duration, fn func() error) error {
	if budget > 0 {
		rt := cx.Runtime()
		timer := time.AfterFunc(budget, func() {
			rt.Interrupt(ErrSandboxTimeout)
		})
		defer func() {
			timer.Stop()
			rt.ClearInterrupt()
		}()
	}
	return fn()
}

// evalcx is the script-facing builtin: evalcx(src[, sandbox[, name]]).
func (cx *Context) evalcx(call goja.FunctionCall) goja.Value {
	if !IsSandboxedEvalAllowed(cx) {
		cx.engine.recordEvalcx(ErrPermissionDenied)
		cx.throw(ErrPermissionDenied)
	}
	if len(call.Arguments) == 0 {
		cx.engine.recordEvalcx(ErrInvalidArgument)
		cx.throw(fmt.Errorf("%w: evalcx requires a source argument", ErrInvalidArgument))
	}

	name := ""
	if arg := call.Argument(2); !goja.IsUndefined(arg) {
		name = arg.String()
	}

	v, err := cx.Evalcx(call.Argument(0).String(), call.Argument(1), name)
	if err != nil {
		cx.throw(err)
	}
	return v
}

// throw raises err in cx's runtime. Sandbox exceptions are rethrown as-is,
// stack overflow becomes RangeError and compile errors become SyntaxError.
func (cx *Context) throw(err error) {
	rt := cx.Runtime()

	var thrown *thrownError
	if errors.As(err, &thrown) {
		panic(thrown.value)
	}

	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		if obj, nerr := rt.New(rt.Get("RangeError"), rt.ToValue("Maximum call stack size exceeded")); nerr == nil {
			panic(obj)
		}
	}

	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		msg := syntax.Message
		if msg == "" {
			msg = syntax.Error()
		}
		if obj, nerr := rt.New(rt.Get("SyntaxError"), rt.ToValue(msg)); nerr == nil {
			panic(obj)
		}
	}

	panic(rt.NewGoError(err))
}

func (e *Engine) recordEvalcx(err error) {
	if e.metrics == nil {
		return
	}

	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrPermissionDenied):
		outcome = "denied"
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInvalidSandbox):
		outcome = "invalid"
	default:
		outcome = "error"
	}
	e.metrics.RecordEvalcx(outcome)
}
