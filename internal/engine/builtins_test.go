package engine

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrint(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "single", src: `print("hello")`, want: "hello\n"},
		{name: "joined with spaces", src: `print("a", 1, true, null)`, want: "a 1 true null\n"},
		{name: "no arguments", src: `print()`, want: "\n"},
		{name: "objects", src: `print({}, [1, 2])`, want: "[object Object] 1,2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			_, root := newTestEngine(t, Options{Stdout: &out})

			run(t, root, tt.src)
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestQuit(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code int
	}{
		{name: "explicit code", src: `quit(3); print("unreachable")`, code: 3},
		{name: "default code", src: `quit(); print("unreachable")`, code: 0},
		{name: "not catchable", src: `try { quit(4) } catch (e) { print("caught") } print("after")`, code: 4},
		{name: "inside function", src: `(function () { quit(9) })(); print("unreachable")`, code: 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			_, root := newTestEngine(t, Options{Stdout: &out})

			_, err := root.RunString("quit.js", tt.src)
			var exit *ExitError
			require.ErrorAs(t, err, &exit)
			assert.Equal(t, tt.code, exit.Code)
			assert.Empty(t, out.String())

			// the interrupt is cleared for later programs
			run(t, root, "1")
		})
	}
}

func TestReadline(t *testing.T) {
	stdin := strings.NewReader("one\r\ntwo\n\nthree")
	_, root := newTestEngine(t, Options{Stdin: stdin})

	v := run(t, root, `JSON.stringify([readline(), readline(), readline(), readline(), readline()])`)
	assert.Equal(t, `["one","two","","three",null]`, v.String())
}

func TestSeal(t *testing.T) {
	_, root := newTestEngine(t, Options{})

	shallow := run(t, root, `
		var o = {a: {b: 1}};
		seal(o);
		o.c = 1;
		o.a.b = 2;
		o.c === undefined && o.a.b === 2 && Object.isFrozen(o) && !Object.isFrozen(o.a);
	`)
	assert.True(t, shallow.ToBoolean())

	deep := run(t, root, `
		var d = {a: {b: {c: 1}}, list: [1, {x: 2}]};
		d.self = d;
		seal(d, true);
		d.a.b.c = 5;
		d.list[1].x = 5;
		d.a.b.c === 1 && d.list[1].x === 2 && Object.isFrozen(d.list);
	`)
	assert.True(t, deep.ToBoolean())

	assert.Equal(t, "undefined", run(t, root, `typeof seal(5)`).String())
}

func TestSleepOnlyInTestMode(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		_, root := newTestEngine(t, Options{})
		assert.Equal(t, "undefined", run(t, root, `typeof sleep`).String())
	})

	t.Run("enabled", func(t *testing.T) {
		_, root := newTestEngine(t, Options{TestSupport: true})
		assert.Equal(t, "function", run(t, root, `typeof sleep`).String())
		run(t, root, `sleep(1)`)
	})
}

func TestBuiltinsInstalled(t *testing.T) {
	_, root := newTestEngine(t, Options{})

	for _, name := range []string{"print", "quit", "gc", "readline", "seal", "evalcx"} {
		assert.Equal(t, "function", run(t, root, "typeof "+name).String(), name)
	}
}
