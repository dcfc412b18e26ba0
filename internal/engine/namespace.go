package engine

import (
	"sync"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/couchjs/internal/shared/id"
)

// Namespace is one global object graph. Each namespace is backed by its own
// runtime, so objects never leak between namespaces except through an
// explicit copy.
type Namespace struct {
	id id.NamespaceID

	mu       sync.Mutex
	rt       *goja.Runtime
	released bool
}

func newNamespace() *Namespace {
	return &Namespace{
		id: id.NewNamespaceID(),
		rt: goja.New(),
	}
}

// ID returns the namespace identifier.
func (ns *Namespace) ID() id.NamespaceID {
	return ns.id
}

// Runtime returns the backing runtime, or nil once released.
func (ns *Namespace) Runtime() *goja.Runtime {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.rt
}

// Released reports whether the namespace has been released.
func (ns *Namespace) Released() bool {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.released
}

// Finalize releases the runtime. It is safe to call more than once.
func (ns *Namespace) Finalize() error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.released = true
	ns.rt = nil
	return nil
}
