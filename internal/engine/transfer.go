package engine

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/dop251/goja"
)

// copier deep-copies values from one runtime into another. Shared
// references and cycles in the source are preserved in the copy.
// Every read from the source runtime may run script code (getters, Proxy
// traps) and goes through guard, so nothing thrown there escapes into dst.
type copier struct {
	src  *goja.Runtime
	dst  *goja.Runtime
	seen map[*goja.Object]*goja.Object
}

func transferValue(src, dst *goja.Runtime, v goja.Value) (goja.Value, error) {
	c := &copier{
		src:  src,
		dst:  dst,
		seen: make(map[*goja.Object]*goja.Object),
	}
	return c.value(v)
}

func (c *copier) value(v goja.Value) (goja.Value, error) {
	switch {
	case v == nil || goja.IsUndefined(v):
		return goja.Undefined(), nil
	case goja.IsNull(v):
		return goja.Null(), nil
	}

	if _, ok := v.(*goja.Symbol); ok {
		return nil, fmt.Errorf("%w: symbol", ErrNotTransferable)
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		// primitives are not bound to a runtime; exporting would lose
		// lone surrogates in strings
		return v, nil
	}
	if out, ok := c.seen[obj]; ok {
		return out, nil
	}
	if _, isFunc := goja.AssertFunction(obj); isFunc {
		return nil, fmt.Errorf("%w: function", ErrNotTransferable)
	}

	var class string
	if err := c.guard("class", func() { class = obj.ClassName() }); err != nil {
		return nil, err
	}
	switch class {
	case "Object":
		return c.object(obj)
	case "Array":
		return c.array(obj)
	case "Date":
		return c.date(obj)
	case "Error":
		return c.error(obj)
	case "String", "Number", "Boolean":
		prim, err := c.call(obj, "valueOf")
		if err != nil {
			return nil, err
		}
		return c.value(prim)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotTransferable, class)
	}
}

func (c *copier) object(obj *goja.Object) (goja.Value, error) {
	out := c.dst.NewObject()
	c.seen[obj] = out

	var keys []string
	if err := c.guard("keys", func() { keys = obj.Keys() }); err != nil {
		return nil, err
	}
	for _, key := range keys {
		prop, err := c.get(obj, key)
		if err != nil {
			return nil, err
		}
		copied, err := c.value(prop)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", key, err)
		}
		if err := out.DefineDataProperty(key, copied, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *copier) array(obj *goja.Object) (goja.Value, error) {
	out := c.dst.NewArray()
	c.seen[obj] = out

	var n int64
	if err := c.guard("length", func() { n = obj.Get("length").ToInteger() }); err != nil {
		return nil, err
	}
	for i := int64(0); i < n; i++ {
		key := strconv.FormatInt(i, 10)
		elem, err := c.get(obj, key)
		if err != nil {
			return nil, err
		}
		copied, err := c.value(elem)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		if err := out.Set(key, copied); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *copier) date(obj *goja.Object) (goja.Value, error) {
	ms, err := c.call(obj, "getTime")
	if err != nil {
		return nil, err
	}

	var t float64
	if err := c.guard("getTime", func() { t = ms.ToFloat() }); err != nil {
		return nil, err
	}
	out, err := c.dst.New(c.dst.Get("Date"), c.dst.ToValue(t))
	if err != nil {
		return nil, err
	}
	c.seen[obj] = out
	return out, nil
}

func (c *copier) error(obj *goja.Object) (goja.Value, error) {
	name, err := c.get(obj, "name")
	if err != nil {
		return nil, err
	}
	msg, err := c.get(obj, "message")
	if err != nil {
		return nil, err
	}

	var nameStr, msgStr string
	if err := c.guard("error", func() {
		nameStr, msgStr = name.String(), msg.String()
	}); err != nil {
		return nil, err
	}

	ctorName := "Error"
	if isErrorName(nameStr) {
		ctorName = nameStr
	}
	ctor := c.dst.Get(ctorName)

	out, err := c.dst.New(ctor, c.dst.ToValue(msgStr))
	if err != nil {
		return nil, err
	}
	c.seen[obj] = out
	return out, nil
}

func isErrorName(name string) bool {
	switch name {
	case "Error", "EvalError", "RangeError", "ReferenceError", "SyntaxError", "TypeError", "URIError":
		return true
	}
	return false
}

// guard runs f against the source runtime. A script exception becomes
// ErrNotTransferable; an interrupt or stack overflow keeps its own identity.
func (c *copier) guard(what string, f func()) error {
	return c.wrap(what, tryIn(c.src, f))
}

func (c *copier) wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return fmt.Errorf("%w: %s: %s", ErrNotTransferable, what, describe(c.src, ex))
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if v, ok := interrupted.Value().(error); ok {
			err = v
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

// get reads a property.
func (c *copier) get(obj *goja.Object, key string) (goja.Value, error) {
	var v goja.Value
	if err := c.guard(key, func() { v = obj.Get(key) }); err != nil {
		return nil, err
	}
	return v, nil
}

// call invokes a method of obj. Converting the result is left to the caller.
func (c *copier) call(obj *goja.Object, method string) (goja.Value, error) {
	m, err := c.get(obj, method)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(m)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %s", ErrNotTransferable, obj.ClassName(), method)
	}

	var v goja.Value
	var callErr error
	if err := c.guard(method, func() { v, callErr = fn(obj) }); err != nil {
		return nil, err
	}
	if err := c.wrap(method, callErr); err != nil {
		return nil, err
	}
	return v, nil
}

// tryIn runs f against rt. Script exceptions come back as *goja.Exception;
// interrupts and stack overflows, which goja.Runtime.Try rethrows, come back
// as errors too.
func tryIn(rt *goja.Runtime, f func()) (err error) {
	defer func() {
		switch x := recover().(type) {
		case nil:
		case *goja.InterruptedError:
			err = x
		case *goja.StackOverflowError:
			err = x
		default:
			panic(x)
		}
	}()

	if ex := rt.Try(f); ex != nil {
		return ex
	}
	return nil
}

// describe renders a thrown value and where it was thrown without letting
// its toString escape rt.
func describe(rt *goja.Runtime, ex *goja.Exception) string {
	var b bytes.Buffer
	if err := tryIn(rt, func() { b.WriteString(ex.Value().String()) }); err != nil {
		b.Reset()
		b.WriteString("uncaught exception")
	}
	if stack := ex.Stack(); len(stack) > 0 {
		b.WriteString(" at ")
		stack[0].Write(&b)
	}
	return b.String()
}
