package couchhttp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/couchjs/internal/config"
	"github.com/GriffinCanCode/couchjs/internal/engine"
	"github.com/GriffinCanCode/couchjs/internal/transport"
)

const scrubSrc = `(function f(n) { var a = 0, b = 0, c = 0, d = 0; return n > 0 ? f(n - 1) : 0; })(64); 0;`

type fakeTransport struct {
	opened   int
	closed   int
	openErr  error
	sendErr  error
	requests []*transport.Request
	response *transport.Response
}

func (f *fakeTransport) Open() (transport.Conn, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened++
	return &fakeConn{t: f}, nil
}

type fakeConn struct {
	t      *fakeTransport
	closed bool
}

func (c *fakeConn) Send(_ context.Context, req *transport.Request) (*transport.Response, error) {
	if c.closed {
		return nil, transport.ErrConnClosed
	}
	c.t.requests = append(c.t.requests, req)
	if c.t.sendErr != nil {
		return nil, c.t.sendErr
	}
	if c.t.response != nil {
		return c.t.response, nil
	}
	return &transport.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   `{"ok":true}`,
	}, nil
}

func (c *fakeConn) Close() error {
	if c.closed {
		return transport.ErrConnClosed
	}
	c.closed = true
	c.t.closed++
	return nil
}

type fixture struct {
	engine    *engine.Engine
	root      *engine.Context
	transport *fakeTransport
	logs      *observer.ObservedLogs
}

func newFixture(t *testing.T, baseURL string) *fixture {
	t.Helper()

	core, logs := observer.New(zap.WarnLevel)
	e, err := engine.Initialize(engine.Options{Logger: zap.New(core)})
	require.NoError(t, err)

	root, err := e.NewRootContext(64 * 1024 * 1024)
	require.NoError(t, err)

	ft := &fakeTransport{}
	require.NoError(t, Install(root, Options{Transport: ft, BaseURL: baseURL}))

	f := &fixture{engine: e, root: root, transport: ft, logs: logs}
	t.Cleanup(func() {
		_ = root.Close()
		require.NoError(t, e.Shutdown())
	})
	return f
}

func (f *fixture) run(t *testing.T, src string) goja.Value {
	t.Helper()
	v, err := f.root.RunString("test.js", src)
	require.NoError(t, err)
	return v
}

func (f *fixture) message(t *testing.T, src string) string {
	t.Helper()
	return f.run(t, `try { `+src+`; "no error" } catch (e) { e.message }`).String()
}

func TestConstructOpensConnection(t *testing.T) {
	f := newFixture(t, "")

	f.run(t, `var a = new CouchHTTP(); var b = new CouchHTTP();`)
	assert.Equal(t, 2, f.transport.opened)
	assert.Equal(t, 0, f.transport.closed)
	assert.Equal(t, 2, f.engine.Tracker().Live())
	assert.True(t, f.run(t, `a instanceof CouchHTTP`).ToBoolean())
}

func TestConstructFailure(t *testing.T) {
	f := newFixture(t, "")
	f.transport.openErr = errors.New("no sockets")

	assert.Contains(t, f.message(t, `new CouchHTTP()`), "no sockets")
	assert.Equal(t, 0, f.engine.Tracker().Live())
}

func TestFinalizerReleasesConnectionOnce(t *testing.T) {
	f := newFixture(t, "")

	f.run(t, `var kept = new CouchHTTP(); (function () { for (var i = 0; i < 5; i++) { new CouchHTTP(); } })(); null;`)
	require.Equal(t, 6, f.transport.opened)

	for i := 0; i < 10 && f.transport.closed < 5; i++ {
		f.run(t, scrubSrc)
		f.engine.Collect()
	}
	assert.Equal(t, 5, f.transport.closed)
	assert.Equal(t, 1, f.engine.Tracker().Live())

	// repeated collections never close twice
	f.engine.Collect()
	assert.Equal(t, 5, f.transport.closed)
}

func TestRootCloseReleasesRemainingConnections(t *testing.T) {
	e, err := engine.Initialize(engine.Options{})
	require.NoError(t, err)
	root, err := e.NewRootContext(64 * 1024 * 1024)
	require.NoError(t, err)

	ft := &fakeTransport{}
	require.NoError(t, Install(root, Options{Transport: ft}))

	_, err = root.RunString("keep.js", `var reqs = [new CouchHTTP(), new CouchHTTP(), new CouchHTTP()];`)
	require.NoError(t, err)

	require.NoError(t, root.Close())
	require.NoError(t, e.Shutdown())
	assert.Equal(t, 3, ft.closed)
}

func TestOpenArgumentCount(t *testing.T) {
	f := newFixture(t, "")

	f.run(t, `var req = new CouchHTTP(); req._open("PUT", "http://db.local/a");`)

	for _, call := range []string{
		`req._open()`,
		`req._open("GET")`,
		`req._open("GET", "http://db.local/b", true, 1)`,
	} {
		assert.Contains(t, f.message(t, call), engine.ErrInvalidArgument.Error(), call)
	}

	// the earlier request is untouched
	f.run(t, `req._send("x")`)
	require.Len(t, f.transport.requests, 1)
	assert.Equal(t, "PUT", f.transport.requests[0].Method)
	assert.Equal(t, "http://db.local/a", f.transport.requests[0].URL)
}

func TestOpenSynchronousFlag(t *testing.T) {
	tests := []struct {
		name string
		open string
		sync bool
	}{
		{name: "two arguments", open: `req._open("GET", "http://db.local/")`, sync: true},
		{name: "truthy third", open: `req._open("GET", "http://db.local/", 1)`, sync: true},
		{name: "falsy third", open: `req._open("GET", "http://db.local/", false)`, sync: false},
		{name: "undefined third", open: `req._open("GET", "http://db.local/", undefined)`, sync: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "")
			f.run(t, `var req = new CouchHTTP(); `+tt.open+`; req._send(""); req._send("");`)

			require.Len(t, f.transport.requests, 2)
			assert.Equal(t, tt.sync, f.transport.requests[0].Synchronous)

			warnings := f.logs.FilterMessageSnippet("asynchronous").Len()
			if tt.sync {
				assert.Equal(t, 0, warnings)
			} else {
				assert.Equal(t, 1, warnings)
			}
		})
	}
}

func TestOpenValidation(t *testing.T) {
	f := newFixture(t, "")
	f.run(t, `var req = new CouchHTTP();`)

	assert.Contains(t, f.message(t, `req._open("TRACE", "http://db.local/")`), ErrInvalidMethod.Error())
	assert.Contains(t, f.message(t, `req._open("GET", "")`), ErrInvalidURL.Error())
	assert.Contains(t, f.message(t, `req._open("GET", "/db")`), ErrInvalidURL.Error())

	f.run(t, `req._open("copy", "http://db.local/doc"); req._send("")`)
	assert.Equal(t, "COPY", f.transport.requests[0].Method)
}

func TestRelativeURLUsesBaseURL(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:5984/prefix/")

	f.run(t, `var req = new CouchHTTP(); req._open("GET", "/db/doc"); req._send("");`)
	f.run(t, `req._open("GET", "db/other"); req._send("");`)

	require.Len(t, f.transport.requests, 2)
	assert.Equal(t, "http://127.0.0.1:5984/prefix/db/doc", f.transport.requests[0].URL)
	assert.Equal(t, "http://127.0.0.1:5984/prefix/db/other", f.transport.requests[1].URL)
}

func TestSetRequestHeader(t *testing.T) {
	f := newFixture(t, "")
	f.run(t, `var req = new CouchHTTP();`)

	assert.Contains(t, f.message(t, `req._setRequestHeader("X-A", "1")`), ErrNotOpen.Error())
	assert.Contains(t, f.message(t, `req._setRequestHeader("X-A")`), engine.ErrInvalidArgument.Error())

	f.run(t, `
		req._open("POST", "http://db.local/db");
		req._setRequestHeader("content-type", "text/plain");
		req._setRequestHeader("Content-Type", "application/json");
		req._send('{"a":1}');
	`)
	require.Len(t, f.transport.requests, 1)
	req := f.transport.requests[0]
	assert.Equal(t, []string{"application/json"}, req.Header["Content-Type"])
	assert.Equal(t, `{"a":1}`, req.Body)

	// a new open starts with no headers
	f.run(t, `req._open("GET", "http://db.local/db"); req._send("");`)
	assert.Empty(t, f.transport.requests[1].Header)
}

func TestSend(t *testing.T) {
	f := newFixture(t, "")
	f.transport.response = &transport.Response{
		Status: http.StatusCreated,
		Header: http.Header{
			"Content-Type": []string{"application/json"},
			"Etag":         []string{`"1-abc"`},
		},
		Body: `{"id":"doc"}`,
	}

	v := f.run(t, `
		var req = new CouchHTTP();
		req._open("PUT", "http://db.local/db/doc");
		req._send("{}");
		JSON.stringify([req.status, req.responseText, req._headers]);
	`)
	assert.Equal(t, `[201,"{\"id\":\"doc\"}",["Content-Type: application/json","Etag: \"1-abc\""]]`, v.String())

	assert.Contains(t, f.message(t, `req._send()`), engine.ErrInvalidArgument.Error())
	assert.Contains(t, f.message(t, `new CouchHTTP()._send("")`), ErrNotOpen.Error())
}

func TestSendTransportError(t *testing.T) {
	f := newFixture(t, "")
	f.transport.sendErr = errors.New("connection refused")

	f.run(t, `var req = new CouchHTTP(); req._open("GET", "http://db.local/");`)
	assert.Contains(t, f.message(t, `req._send("")`), "connection refused")
	assert.Contains(t, f.message(t, `req.status`), ErrNoResponse.Error())
}

func TestStatusAndBaseURL(t *testing.T) {
	t.Run("unset base url", func(t *testing.T) {
		f := newFixture(t, "")
		f.run(t, `var req = new CouchHTTP();`)

		assert.Contains(t, f.message(t, `req.status`), ErrNoResponse.Error())
		assert.Equal(t, "undefined", f.run(t, `typeof req.base_url`).String())
	})

	t.Run("configured base url", func(t *testing.T) {
		f := newFixture(t, "http://127.0.0.1:5984/")
		v := f.run(t, `var req = new CouchHTTP(); req.base_url = "changed"; req.base_url`)
		assert.Equal(t, "http://127.0.0.1:5984/", v.String())
	})
}

func TestMethodsRequireInstance(t *testing.T) {
	f := newFixture(t, "")

	v := f.run(t, `try { CouchHTTP.prototype._open.call({}, "GET", "http://x/"); false } catch (e) { e instanceof TypeError }`)
	assert.True(t, v.ToBoolean())
}

func TestInstanceIsNotASandbox(t *testing.T) {
	e, err := engine.Initialize(engine.Options{Policy: engine.NewPolicy(true)})
	require.NoError(t, err)
	root, err := e.NewRootContext(64 * 1024 * 1024)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, root.Close())
		require.NoError(t, e.Shutdown())
	}()
	require.NoError(t, root.InstallBuiltins())
	require.NoError(t, Install(root, Options{Transport: &fakeTransport{}}))

	v, err := root.RunString("t.js", `try { evalcx("1", new CouchHTTP()); "no error" } catch (e) { e.message }`)
	require.NoError(t, err)
	assert.Contains(t, v.String(), engine.ErrInvalidSandbox.Error())
}

func TestPrelude(t *testing.T) {
	f := newFixture(t, "http://db.local/")
	f.transport.response = &transport.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"application/json"}, "X-Couch-Id": []string{"a:b"}},
		Body:   `[]`,
	}

	v := f.run(t, `
		var req = new CouchHTTP();
		req.open("GET", "/db/_all_docs");
		req.setRequestHeader("Content-Length", "99");
		req.setRequestHeader("Accept", "application/json");
		req.send();
		JSON.stringify([req.getResponseHeader("content-type"), req.getResponseHeader("X-COUCH-ID"), req.getResponseHeader("missing"), req.headers["Content-Type"]]);
	`)
	assert.Equal(t, `["application/json","a:b",null,"application/json"]`, v.String())

	require.Len(t, f.transport.requests, 1)
	req := f.transport.requests[0]
	assert.Equal(t, "http://db.local/db/_all_docs", req.URL)
	assert.Empty(t, req.Header.Get("Content-Length"))
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	assert.True(t, req.Synchronous)
	assert.Equal(t, "", req.Body)
}

func TestInstallErrors(t *testing.T) {
	e, err := engine.Initialize(engine.Options{})
	require.NoError(t, err)
	root, err := e.NewRootContext(64 * 1024 * 1024)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, root.Close())
		require.NoError(t, e.Shutdown())
	}()

	assert.ErrorIs(t, Install(root, Options{}), ErrInstall)
	assert.ErrorIs(t, Install(root, Options{Transport: &fakeTransport{}, BaseURL: "relative/path"}), ErrInstall)
}

func TestAgainstHTTPServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"path":"` + r.URL.Path + `","method":"` + r.Method + `"}`))
	}))
	defer srv.Close()

	e, err := engine.Initialize(engine.Options{})
	require.NoError(t, err)
	root, err := e.NewRootContext(64 * 1024 * 1024)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, root.Close())
		require.NoError(t, e.Shutdown())
	}()

	client := transport.NewClient(transport.OptionsFromConfig(config.Default().HTTP))
	require.NoError(t, Install(root, Options{Transport: client, BaseURL: srv.URL + "/"}))

	v, err := root.RunString("live.js", `
		var req = new CouchHTTP();
		req.open("DELETE", "/db/doc");
		req.send();
		JSON.parse(req.responseText).path + " " + JSON.parse(req.responseText).method + " " + req.status;
	`)
	require.NoError(t, err)
	assert.Equal(t, "/db/doc DELETE 200", v.String())
}
