// Package simhost provides a fake managed-runtime host: an in-memory
// stand-in for the GC generation counter, object id table, and liveness
// resolution the recorder's Host interface requires (spec §6). It is the
// "external collaborator" side of the heap-liveness recorder, built so the
// CLI and tests can drive the real recorder end to end without an actual
// embedding VM.
package simhost

import (
	"sync"

	"github.com/mabhi256/heaprecorder/internal/recorder"
)

// Object is a fake heap object: just enough state for the recorder's Host
// calls to answer meaningfully.
type Object struct {
	ID       int64
	Class    string
	Size     uint64
	Frozen   bool
	internal bool // objects of this kind report KindIsUnrecordable
}

// Host is a recorder.Host backed by an in-memory object table. All
// mutating calls — including the ones the recorder itself makes — are
// expected to happen while Lock is held, standing in for the embedding
// runtime's single cooperative mutator lock (spec §5); the recorder adds
// no locking of its own, so whatever drives it must.
type Host struct {
	mu sync.Mutex

	gen     uint64
	nextID  int64
	alive   map[int64]*Object
	clockNS int64
}

// New constructs a Host with its monotonic clock starting at 0. The clock
// only moves when a caller calls AdvanceTime — there is no wall-clock
// jitter, so tests and the simulation driver get exact, reproducible
// timings.
func New() *Host {
	return &Host{
		alive:  make(map[int64]*Object),
		nextID: 1,
	}
}

// Lock acquires the host's mutex, standing in for the cooperative mutator
// lock every recorder call (besides ForEachLiveObject) must be made under.
func (h *Host) Lock() { h.mu.Lock() }

// Unlock releases the mutex acquired by Lock.
func (h *Host) Unlock() { h.mu.Unlock() }

// Allocate creates a new live object and returns it. Callers must hold Lock.
func (h *Host) Allocate(class string, size uint64, internalKind bool) *Object {
	obj := &Object{ID: h.nextID, Class: class, Size: size, internal: internalKind}
	h.nextID++
	h.alive[obj.ID] = obj
	return obj
}

// Free marks an object dead: ResolveID will report it as no longer live.
// Callers must hold Lock.
func (h *Host) Free(id int64) {
	delete(h.alive, id)
}

// Freeze marks a live object frozen. Callers must hold Lock.
func (h *Host) Freeze(id int64) {
	if obj, ok := h.alive[id]; ok {
		obj.Frozen = true
	}
}

// AdvanceGeneration bumps the GC generation counter by one, simulating a
// collection cycle. Callers must hold Lock.
func (h *Host) AdvanceGeneration() {
	h.gen++
}

// AdvanceTime moves the host's monotonic clock forward by deltaNS,
// simulating the passage of time between scripted steps. Callers must
// hold Lock.
func (h *Host) AdvanceTime(deltaNS int64) {
	h.clockNS += deltaNS
}

// LiveCount reports how many objects are currently alive. Callers must
// hold Lock.
func (h *Host) LiveCount() int { return len(h.alive) }

var _ recorder.Host = (*Host)(nil)

func (h *Host) GCGenerationCount() uint64 { return h.gen }

func (h *Host) ObjectID(obj any) int64 { return obj.(*Object).ID }

func (h *Host) ResolveID(id int64) (any, bool) {
	obj, ok := h.alive[id]
	return obj, ok
}

func (h *Host) SizeOf(obj any) uint64 { return obj.(*Object).Size }

func (h *Host) IsFrozen(obj any) bool { return obj.(*Object).Frozen }

func (h *Host) MonotonicNS() int64 { return h.clockNS }

func (h *Host) KindIsUnrecordable(obj any) bool { return obj.(*Object).internal }
