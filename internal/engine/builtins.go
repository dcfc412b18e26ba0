package engine

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// InstallBuiltins defines the host globals in the root namespace: print,
// quit, gc, readline, seal and evalcx, plus sleep when test support is on.
func (cx *Context) InstallBuiltins() error {
	if !cx.IsRoot() {
		return fmt.Errorf("%w: builtins belong to the root context", ErrInvalidArgument)
	}
	rt := cx.Runtime()
	if rt == nil {
		return ErrClosed
	}

	builtins := map[string]func(goja.FunctionCall) goja.Value{
		"print":    cx.print,
		"quit":     cx.quit,
		"gc":       cx.gc,
		"readline": cx.readline,
		"seal":     cx.seal,
		"evalcx":   cx.evalcx,
	}
	if cx.engine.opts.TestSupport {
		builtins["sleep"] = cx.sleep
	}

	for name, fn := range builtins {
		if err := rt.Set(name, fn); err != nil {
			return fmt.Errorf("failed to install %s: %w", name, err)
		}
	}
	return nil
}

func (cx *Context) print(call goja.FunctionCall) goja.Value {
	parts := make([]string, len(call.Arguments))
	for i, arg := range call.Arguments {
		parts[i] = arg.String()
	}

	line := strings.Join(parts, " ") + "\n"
	if _, err := io.WriteString(cx.engine.opts.Stdout, line); err != nil {
		cx.throw(fmt.Errorf("print: %w", err))
	}
	return goja.Undefined()
}

func (cx *Context) quit(call goja.FunctionCall) goja.Value {
	code := 0
	if arg := call.Argument(0); !goja.IsUndefined(arg) {
		code = int(arg.ToInteger())
	}
	cx.Runtime().Interrupt(&ExitError{Code: code})
	return goja.Undefined()
}

func (cx *Context) gc(goja.FunctionCall) goja.Value {
	cx.engine.Collect()
	return goja.Undefined()
}

func (cx *Context) readline(goja.FunctionCall) goja.Value {
	cx.engine.MaybeCollect()

	line, err := cx.engine.stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		cx.throw(fmt.Errorf("readline: %w", err))
	}
	if err != nil && line == "" {
		return goja.Null()
	}

	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return cx.Runtime().ToValue(line)
}

// seal freezes obj, and with a truthy second argument every object
// reachable from it.
func (cx *Context) seal(call goja.FunctionCall) goja.Value {
	rt := cx.Runtime()
	obj, ok := call.Argument(0).(*goja.Object)
	if !ok {
		return goja.Undefined()
	}

	freeze, ok := goja.AssertFunction(rt.Get("Object").ToObject(rt).Get("freeze"))
	if !ok {
		cx.throw(errors.New("seal: Object.freeze is not callable"))
	}

	deep := call.Argument(1).ToBoolean()
	seen := make(map[*goja.Object]struct{})

	var walk func(o *goja.Object)
	walk = func(o *goja.Object) {
		if _, done := seen[o]; done {
			return
		}
		seen[o] = struct{}{}

		if _, err := freeze(goja.Undefined(), o); err != nil {
			panic(err)
		}
		if !deep {
			return
		}
		for _, key := range o.Keys() {
			if child, ok := o.Get(key).(*goja.Object); ok {
				walk(child)
			}
		}
	}
	walk(obj)

	return goja.Undefined()
}

func (cx *Context) sleep(call goja.FunctionCall) goja.Value {
	ms := call.Argument(0).ToInteger()
	if ms > 0 {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}
	return goja.Undefined()
}
