package couchhttp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/GriffinCanCode/couchjs/internal/engine"
	"github.com/GriffinCanCode/couchjs/internal/shared/id"
	"github.com/GriffinCanCode/couchjs/internal/transport"
)

var allowedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
	"COPY":             true,
	http.MethodOptions: true,
}

type requestState struct {
	method      string
	url         string
	header      http.Header
	synchronous bool
}

type responseState struct {
	status int
	header http.Header
	body   string
}

// binding is the native state behind one CouchHTTP object. It owns conn
// and releases it only from Finalize.
type binding struct {
	id   id.BindingID
	conn transport.Conn

	req         *requestState
	resp        *responseState
	warnedAsync bool

	release sync.Once
}

func newBinding(conn transport.Conn) *binding {
	return &binding{
		id:   id.NewBindingID(),
		conn: conn,
	}
}

// Finalize closes the connection. Only the first call has an effect.
func (b *binding) Finalize() error {
	var err error
	b.release.Do(func() {
		err = b.conn.Close()
	})
	return err
}

// open validates and stores a new request, discarding previous headers and
// the last response.
func (b *binding) open(method, rawURL string, synchronous bool, base *url.URL) error {
	method = strings.ToUpper(strings.TrimSpace(method))
	if !allowedMethods[method] {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}

	target, err := resolveURL(rawURL, base)
	if err != nil {
		return err
	}

	b.req = &requestState{
		method:      method,
		url:         target,
		header:      make(http.Header),
		synchronous: synchronous,
	}
	b.resp = nil
	return nil
}

func (b *binding) setHeader(name, value string) error {
	if b.req == nil {
		return ErrNotOpen
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty header name", engine.ErrInvalidArgument)
	}
	b.req.header.Set(name, value)
	return nil
}

func (b *binding) send(ctx context.Context, body string) (*responseState, error) {
	if b.req == nil {
		return nil, ErrNotOpen
	}

	resp, err := b.conn.Send(ctx, &transport.Request{
		Method:      b.req.method,
		URL:         b.req.url,
		Header:      b.req.header.Clone(),
		Body:        body,
		Synchronous: b.req.synchronous,
	})
	if err != nil {
		return nil, err
	}

	b.resp = &responseState{
		status: resp.Status,
		header: resp.Header,
		body:   resp.Body,
	}
	return b.resp, nil
}

func (b *binding) status() (int, error) {
	if b.resp == nil {
		return 0, ErrNoResponse
	}
	return b.resp.status, nil
}

// headerLines renders response headers as "Name: value" lines, one per value,
// sorted by name.
func (r *responseState) headerLines() []string {
	names := make([]string, 0, len(r.header))
	for name := range r.header {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		for _, v := range r.header[name] {
			lines = append(lines, name+": "+v)
		}
	}
	return lines
}

func resolveURL(raw string, base *url.URL) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalidURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if base == nil {
		return "", fmt.Errorf("%w: relative url %q without a base url", ErrInvalidURL, raw)
	}

	// relative paths extend the base path rather than replacing it
	joined := strings.TrimSuffix(base.String(), "/") + "/" + strings.TrimPrefix(raw, "/")
	if _, err := url.Parse(joined); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return joined, nil
}
