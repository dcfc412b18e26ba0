package couchhttp

import (
	"context"
	_ "embed"
	"fmt"
	"net/url"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/couchjs/internal/engine"
	"github.com/GriffinCanCode/couchjs/internal/transport"
)

//go:embed prelude.js
var prelude string

const (
	className = "CouchHTTP"
	kind      = "couchhttp"
)

// Options configures the CouchHTTP class.
type Options struct {
	Transport transport.Transport
	// BaseURL is exposed as base_url and used to resolve relative request
	// URLs. Empty means unset.
	BaseURL string
}

type class struct {
	cx      *engine.Context
	rt      *goja.Runtime
	opts    Options
	baseURL *url.URL
}

// Install defines the CouchHTTP class in the root namespace of cx.
func Install(cx *engine.Context, opts Options) error {
	rt := cx.Runtime()
	if rt == nil {
		return fmt.Errorf("%w: %v", ErrInstall, engine.ErrClosed)
	}
	if opts.Transport == nil {
		return fmt.Errorf("%w: no transport", ErrInstall)
	}

	c := &class{cx: cx, rt: rt, opts: opts}
	if opts.BaseURL != "" {
		u, err := url.Parse(opts.BaseURL)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("%w: base url %q is not absolute", ErrInstall, opts.BaseURL)
		}
		c.baseURL = u
	}

	ctor, ok := rt.ToValue(c.construct).(*goja.Object)
	if !ok {
		return fmt.Errorf("%w: constructor is not an object", ErrInstall)
	}

	proto, ok := ctor.Get("prototype").(*goja.Object)
	if !ok {
		proto = rt.NewObject()
		if err := ctor.Set("prototype", proto); err != nil {
			return fmt.Errorf("%w: %v", ErrInstall, err)
		}
		if err := proto.DefineDataProperty("constructor", ctor, goja.FLAG_TRUE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
			return fmt.Errorf("%w: %v", ErrInstall, err)
		}
	}

	methods := map[string]func(goja.FunctionCall) goja.Value{
		"_open":             c.open,
		"_setRequestHeader": c.setRequestHeader,
		"_send":             c.send,
	}
	for name, fn := range methods {
		if err := proto.Set(name, fn); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInstall, name, err)
		}
	}

	getters := map[string]func(goja.FunctionCall) goja.Value{
		"status":   c.status,
		"base_url": c.baseURLGetter,
	}
	for name, fn := range getters {
		if err := proto.DefineAccessorProperty(name, rt.ToValue(fn), nil, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInstall, name, err)
		}
	}

	if err := rt.Set(className, ctor); err != nil {
		return fmt.Errorf("%w: %v", ErrInstall, err)
	}
	if _, err := rt.RunScript("couch_http.js", prelude); err != nil {
		return fmt.Errorf("%w: prelude: %v", ErrInstall, err)
	}

	cx.Engine().Logger().Debug("CouchHTTP installed", zap.String("base_url", opts.BaseURL))
	return nil
}

func (c *class) construct(call goja.ConstructorCall) *goja.Object {
	conn, err := c.opts.Transport.Open()
	if err != nil {
		panic(c.rt.NewGoError(fmt.Errorf("failed to create CouchHTTP instance: %w", err)))
	}

	b := newBinding(conn)
	c.cx.Engine().Tracker().Track(call.This, kind, b)
	return nil
}

// self returns the native state of the receiver, throwing a TypeError for
// anything that is not a CouchHTTP instance.
func (c *class) self(this goja.Value) *binding {
	if obj, ok := this.(*goja.Object); ok {
		if fin, ok := c.cx.Engine().Tracker().Lookup(obj); ok {
			if b, ok := fin.(*binding); ok {
				return b
			}
		}
	}
	panic(c.rt.NewTypeError("receiver is not a %s instance", className))
}

func (c *class) throw(err error) {
	panic(c.rt.NewGoError(err))
}

func (c *class) open(call goja.FunctionCall) goja.Value {
	b := c.self(call.This)

	synchronous := true
	switch len(call.Arguments) {
	case 2:
	case 3:
		synchronous = call.Arguments[2].ToBoolean()
	default:
		c.throw(fmt.Errorf("%w: invalid call to %s.open", engine.ErrInvalidArgument, className))
	}

	if err := b.open(call.Arguments[0].String(), call.Arguments[1].String(), synchronous, c.baseURL); err != nil {
		c.throw(err)
	}
	return goja.Undefined()
}

func (c *class) setRequestHeader(call goja.FunctionCall) goja.Value {
	b := c.self(call.This)
	if len(call.Arguments) != 2 {
		c.throw(fmt.Errorf("%w: invalid call to %s.set_header", engine.ErrInvalidArgument, className))
	}

	if err := b.setHeader(call.Arguments[0].String(), call.Arguments[1].String()); err != nil {
		c.throw(err)
	}
	return goja.Undefined()
}

// send blocks until the transport returns. Scripts rely on the response
// being in place when _send returns, in both modes.
func (c *class) send(call goja.FunctionCall) goja.Value {
	b := c.self(call.This)
	if len(call.Arguments) != 1 {
		c.throw(fmt.Errorf("%w: invalid call to %s.send", engine.ErrInvalidArgument, className))
	}

	if b.req != nil && !b.req.synchronous && !b.warnedAsync {
		b.warnedAsync = true
		c.cx.Engine().Warn("asynchronous CouchHTTP request sent synchronously",
			zap.String("binding", b.id.String()))
	}

	body := ""
	if arg := call.Arguments[0]; !goja.IsUndefined(arg) && !goja.IsNull(arg) {
		body = arg.String()
	}

	resp, err := b.send(context.Background(), body)
	if err != nil {
		c.throw(err)
	}

	this := call.This.ToObject(c.rt)
	if err := this.Set("responseText", resp.body); err != nil {
		c.throw(err)
	}
	lines := resp.headerLines()
	items := make([]interface{}, len(lines))
	for i, line := range lines {
		items[i] = line
	}
	if err := this.Set("_headers", c.rt.NewArray(items...)); err != nil {
		c.throw(err)
	}
	return goja.Undefined()
}

func (c *class) status(call goja.FunctionCall) goja.Value {
	b := c.self(call.This)
	status, err := b.status()
	if err != nil {
		c.throw(err)
	}
	return c.rt.ToValue(status)
}

func (c *class) baseURLGetter(goja.FunctionCall) goja.Value {
	if c.opts.BaseURL == "" {
		return goja.Undefined()
	}
	return c.rt.ToValue(c.opts.BaseURL)
}
