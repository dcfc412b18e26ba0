package engine

import (
	"runtime"
	"sync"
	"weak"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/couchjs/internal/infrastructure/monitoring"
)

// Finalizer is implemented by native state attached to a script object.
// Finalize runs on the script goroutine and must not call into JavaScript.
type Finalizer interface {
	Finalize() error
}

type trackedEntry struct {
	ptr  weak.Pointer[goja.Object]
	kind string
	fin  Finalizer
}

// Tracker associates native state with script objects without keeping the
// objects alive. Entries whose object has been collected are finalized by
// the next sweep.
type Tracker struct {
	mu        sync.Mutex
	entries   map[weak.Pointer[goja.Object]]*trackedEntry
	order     []*trackedEntry
	sinceGC   int
	threshold int

	warn    func(string, ...zap.Field)
	metrics *monitoring.Metrics
}

func newTracker(threshold int, warn func(string, ...zap.Field), metrics *monitoring.Metrics) *Tracker {
	return &Tracker{
		entries:   make(map[weak.Pointer[goja.Object]]*trackedEntry),
		threshold: threshold,
		warn:      warn,
		metrics:   metrics,
	}
}

// Track attaches fin to obj. Tracking an object twice replaces its state.
func (t *Tracker) Track(obj *goja.Object, kind string, fin Finalizer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ptr := weak.Make(obj)
	if old, ok := t.entries[ptr]; ok {
		old.fin = fin
		old.kind = kind
		return
	}

	entry := &trackedEntry{ptr: ptr, kind: kind, fin: fin}
	t.entries[ptr] = entry
	t.order = append(t.order, entry)
	t.sinceGC++

	if t.metrics != nil {
		t.metrics.BindingsLive.Inc()
	}
}

// Lookup returns the native state attached to obj.
func (t *Tracker) Lookup(obj *goja.Object) (Finalizer, bool) {
	if obj == nil {
		return nil, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[weak.Make(obj)]
	if !ok {
		return nil, false
	}
	return entry.fin, true
}

// Live returns the number of entries awaiting finalization.
func (t *Tracker) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// Collect forces a garbage collection, then finalizes every entry whose
// object is gone.
func (t *Tracker) Collect() int {
	runtime.GC()

	t.mu.Lock()
	t.sinceGC = 0
	t.mu.Unlock()

	return t.sweep("forced")
}

// MaybeCollect forces a collection once threshold objects have been tracked
// since the last one; otherwise it only sweeps.
func (t *Tracker) MaybeCollect() int {
	t.mu.Lock()
	due := t.sinceGC >= t.threshold
	t.mu.Unlock()

	if due {
		return t.Collect()
	}
	return t.sweep("sweep")
}

func (t *Tracker) sweep(kind string) int {
	t.mu.Lock()
	var dead []*trackedEntry
	kept := t.order[:0]
	for _, entry := range t.order {
		if entry.ptr.Value() == nil {
			dead = append(dead, entry)
			delete(t.entries, entry.ptr)
			continue
		}
		kept = append(kept, entry)
	}
	clear(t.order[len(kept):])
	t.order = kept
	t.mu.Unlock()

	t.finalize(dead)
	if t.metrics != nil {
		t.metrics.RecordCollection(kind, len(dead))
	}
	return len(dead)
}

// finalizeAll finalizes every remaining entry regardless of reachability.
func (t *Tracker) finalizeAll() int {
	t.mu.Lock()
	all := t.order
	t.order = nil
	t.entries = make(map[weak.Pointer[goja.Object]]*trackedEntry)
	t.sinceGC = 0
	t.mu.Unlock()

	t.finalize(all)
	if t.metrics != nil {
		t.metrics.RecordCollection("shutdown", len(all))
	}
	return len(all)
}

func (t *Tracker) finalize(entries []*trackedEntry) {
	for _, entry := range entries {
		if err := entry.fin.Finalize(); err != nil {
			t.warn("finalizer failed",
				zap.String("kind", entry.kind),
				zap.Error(err))
		}
		if t.metrics != nil {
			t.metrics.BindingsLive.Dec()
		}
	}
}
