package recorder

// Host is everything the recorder needs from the embedding managed
// runtime. None of this is implemented here — sampling decisions, stack
// capture, and the GC itself are explicitly out of scope (spec §1); Host
// is the seam a real embedding fills in. internal/simhost provides a
// stand-in implementation for tests, demos, and the CLI.
type Host interface {
	// GCGenerationCount returns the runtime's monotonically non-decreasing
	// GC generation counter.
	GCGenerationCount() uint64

	// ObjectID returns a stable identifier for obj. The recorder requires
	// it to fit in 63 bits; callers that can't guarantee that should have
	// already been filtered out via KindIsUnrecordable.
	ObjectID(obj any) int64

	// ResolveID maps an id back to a live object reference. ok is false
	// once the object is no longer live — the recorder's only signal that
	// an object has died, since it does not hook frees directly.
	ResolveID(id int64) (obj any, ok bool)

	// SizeOf returns an approximate retained size for obj.
	SizeOf(obj any) uint64

	// IsFrozen reports whether obj is frozen (immutable, and therefore
	// cheap to stop re-measuring once observed).
	IsFrozen(obj any) bool

	// MonotonicNS returns a monotonic timestamp in nanoseconds, or a
	// negative value if the clock could not be read.
	MonotonicNS() int64

	// KindIsUnrecordable reports whether obj is of a kind whose id isn't
	// reliably retrievable on this runtime version. Such objects are
	// skipped at Begin rather than risk a bogus id.
	KindIsUnrecordable(obj any) bool
}
