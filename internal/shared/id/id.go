// Package id provides ULID identifiers for engine objects.
//
// Every context, namespace and native binding gets a prefixed, sortable ID
// so that diagnostics from one run can be correlated:
//   - cx_*: execution contexts (root and sandbox sub-contexts)
//   - ns_*: global namespaces
//   - http_*: CouchHTTP binding objects
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ContextID identifies an execution context
type ContextID string

// NamespaceID identifies a global namespace
type NamespaceID string

// BindingID identifies a native binding object
type BindingID string

const (
	ContextPrefix   = "cx"
	NamespacePrefix = "ns"
	BindingPrefix   = "http"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Tests use it for deterministic output.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewContextID generates a new context ID
func NewContextID() ContextID {
	return ContextID(Default().GenerateWithPrefix(ContextPrefix))
}

// NewNamespaceID generates a new namespace ID
func NewNamespaceID() NamespaceID {
	return NamespaceID(Default().GenerateWithPrefix(NamespacePrefix))
}

// NewBindingID generates a new binding ID
func NewBindingID() BindingID {
	return BindingID(Default().GenerateWithPrefix(BindingPrefix))
}

func (id ContextID) String() string   { return string(id) }
func (id NamespaceID) String() string { return string(id) }
func (id BindingID) String() string   { return string(id) }

// IsValid reports whether s is a bare or prefixed ULID
func IsValid(s string) bool {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	_, err := ulid.Parse(s)
	return err == nil
}

// Timestamp extracts the creation time from a bare or prefixed ULID
func Timestamp(s string) (time.Time, error) {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
