package recorder

import "fmt"

type recordingKind int

const (
	recordingNone recordingKind = iota
	recordingSkipped
	recordingPending
)

type pendingRecording struct {
	kind   recordingKind
	record *ObjectRecord
}

// LastUpdateStats mirrors the last successful update's tallies.
// ObjectsFrozen is only meaningful after a full update.
type LastUpdateStats struct {
	ObjectsAlive   uint64
	ObjectsDead    uint64
	ObjectsSkipped uint64
	ObjectsFrozen  uint64
}

// LifetimeStats accumulates counters and EWMAs (alpha = 0.3) across the
// recorder's whole life, split by update kind.
type LifetimeStats struct {
	UpdatesSuccessful        uint64
	UpdatesSkippedConcurrent uint64
	UpdatesSkippedGCGen      uint64
	UpdatesSkippedTime       uint64

	EwmaYoungObjectsAlive   float64
	EwmaYoungObjectsDead    float64
	EwmaYoungObjectsSkipped float64

	EwmaObjectsAlive   float64
	EwmaObjectsDead    float64
	EwmaObjectsSkipped float64
}

const ewmaAlpha = 0.3

func ewmaStat(previous, current float64) float64 {
	return ewmaAlpha*current + (1-ewmaAlpha)*previous
}

// Recorder is the heap-liveness recorder state machine. It adds no locking
// of its own: the host runtime's single cooperative mutator lock is
// assumed to serialize every call except ForEachLiveObject (spec §5).
type Recorder struct {
	host Host

	sizeEnabled bool
	sampleRate  uint32

	numRecordingsSkipped uint32
	active               pendingRecording

	dedup   *stackDedupTable
	objects *objectRecordTable

	reusableLocations []Location

	snapshot *objectRecordTable

	updating         bool
	updateGen        uint64
	updateIncludeOld bool
	lastUpdateNS     int64
	hasLastUpdate    bool

	statsLastUpdate LastUpdateStats
	statsLifetime   LifetimeStats
}

// New constructs a Recorder with size tracking enabled and a sample rate
// of 1 (every Begin is recorded).
func New(host Host) *Recorder {
	return &Recorder{
		host:              host,
		sizeEnabled:       true,
		sampleRate:        1,
		dedup:             newStackDedupTable(),
		objects:           newObjectRecordTable(),
		reusableLocations: make([]Location, MaxFramesLimit),
	}
}

// SetSizeEnabled toggles whether full updates sample SizeOf/IsFrozen.
func (r *Recorder) SetSizeEnabled(enabled bool) {
	r.sizeEnabled = enabled
}

// SetSampleRate sets the 1-of-n meta-sampling multiplier and resets the
// skip counter. n must be at least 1.
func (r *Recorder) SetSampleRate(n uint32) error {
	if n < 1 {
		return &ContractError{Op: "set_sample_rate", Msg: "sample_rate must be >= 1"}
	}
	r.sampleRate = n
	r.numRecordingsSkipped = 0
	return nil
}

// Begin starts a pending recording for obj. It must be followed by
// exactly one End call before the next Begin.
func (r *Recorder) Begin(obj any, weight uint32, className string) error {
	if r.active.kind != recordingNone {
		return &ContractError{Op: "begin", Msg: "consecutive begin without a matching end"}
	}

	r.numRecordingsSkipped++
	if r.numRecordingsSkipped < r.sampleRate || r.host.KindIsUnrecordable(obj) {
		r.active = pendingRecording{kind: recordingSkipped}
		return nil
	}

	r.numRecordingsSkipped = 0
	id := r.host.ObjectID(obj)
	if id < 0 {
		return &ContractError{Op: "begin", Msg: fmt.Sprintf("object id %d does not fit in 63 bits", id)}
	}

	var class *string
	if className != "" {
		c := className
		class = &c
	}

	r.active = pendingRecording{
		kind: recordingPending,
		record: &ObjectRecord{
			ObjID: id,
			Data: LiveObjectData{
				Weight:   weight * r.sampleRate,
				Class:    class,
				AllocGen: r.host.GCGenerationCount(),
			},
		},
	}
	return nil
}

// End commits the pending recording, keyed by frames via the dedup table.
// Per spec, the active recording is cleared eagerly so a later failure
// can never leave a dangling pending recording, and the dedup-table side
// effect only runs after every earlier fallible step has succeeded, so a
// caller observes either full success or full rollback.
func (r *Recorder) End(frames []Frame) error {
	pending := r.active
	r.active = pendingRecording{}

	switch pending.kind {
	case recordingNone:
		return &ContractError{Op: "end", Msg: "end called with no matching begin"}
	case recordingSkipped:
		return nil
	}

	record := pending.record
	heap, err := r.dedup.getOrCreate(frames)
	if err != nil {
		return err
	}
	if err := incrementTracked(heap); err != nil {
		return err
	}
	record.Heap = heap
	if err := r.objects.insertUnique(record); err != nil {
		// Roll back the tracked increment: the object record was never
		// committed, so this heap record must not count it.
		_ = r.dedup.dropOne(heap)
		return err
	}
	return nil
}

// SafeEnd is the cancellation-safe wrapper real embeddings should call: it
// recovers from any panic inside End so a caught failure can never leak
// the active recording or propagate past the caller's own cleanup.
func (r *Recorder) SafeEnd(frames []Frame) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.active = pendingRecording{}
			err = fmt.Errorf("recorder: end: recovered from panic: %v", rec)
		}
	}()
	return r.End(frames)
}

// AfterFork reconciles post-fork state: any in-progress iteration is
// finished (releasing shared bookkeeping) and lifetime statistics reset.
// Tracked objects themselves survive — the child inherits the parent's
// live object graph.
func (r *Recorder) AfterFork() error {
	if r.snapshot != nil {
		r.snapshot = nil
	}
	r.statsLifetime = LifetimeStats{}
	r.statsLastUpdate = LastUpdateStats{}
	r.active = pendingRecording{}
	r.updating = false
	return nil
}

// Free releases the recorder's owned memory. It is idempotent.
func (r *Recorder) Free() {
	r.dedup = newStackDedupTable()
	r.objects = newObjectRecordTable()
	r.snapshot = nil
	r.active = pendingRecording{}
	r.statsLastUpdate = LastUpdateStats{}
	r.statsLifetime = LifetimeStats{}
	r.updating = false
	r.hasLastUpdate = false
}

// StateSnapshot emits table sizes, last-update stats, and lifetime stats
// as a mapping of the stable symbolic keys consumers rely on.
func (r *Recorder) StateSnapshot() map[string]int64 {
	return map[string]int64{
		"num_object_records": int64(r.objects.Count()),
		"num_heap_records":   int64(r.dedup.Size()),

		"last_update_objects_alive":   int64(r.statsLastUpdate.ObjectsAlive),
		"last_update_objects_dead":    int64(r.statsLastUpdate.ObjectsDead),
		"last_update_objects_skipped": int64(r.statsLastUpdate.ObjectsSkipped),
		"last_update_objects_frozen":  int64(r.statsLastUpdate.ObjectsFrozen),

		"lifetime_updates_successful":          int64(r.statsLifetime.UpdatesSuccessful),
		"lifetime_updates_skipped_concurrent":   int64(r.statsLifetime.UpdatesSkippedConcurrent),
		"lifetime_updates_skipped_gcgen":        int64(r.statsLifetime.UpdatesSkippedGCGen),
		"lifetime_updates_skipped_time":         int64(r.statsLifetime.UpdatesSkippedTime),

		"lifetime_ewma_young_objects_alive":   int64(r.statsLifetime.EwmaYoungObjectsAlive),
		"lifetime_ewma_young_objects_dead":    int64(r.statsLifetime.EwmaYoungObjectsDead),
		"lifetime_ewma_young_objects_skipped": int64(r.statsLifetime.EwmaYoungObjectsSkipped),

		"lifetime_ewma_objects_alive":   int64(r.statsLifetime.EwmaObjectsAlive),
		"lifetime_ewma_objects_dead":    int64(r.statsLifetime.EwmaObjectsDead),
		"lifetime_ewma_objects_skipped": int64(r.statsLifetime.EwmaObjectsSkipped),
	}
}

// StateSnapshotFloat is like StateSnapshot but keeps the EWMA fields as
// float64 for callers that want sub-integer precision (the watch TUI's
// trend chart, for instance).
func (r *Recorder) StateSnapshotFloat() map[string]float64 {
	out := make(map[string]float64, len(r.StateSnapshot()))
	for k, v := range r.StateSnapshot() {
		out[k] = float64(v)
	}
	out["lifetime_ewma_young_objects_alive"] = r.statsLifetime.EwmaYoungObjectsAlive
	out["lifetime_ewma_young_objects_dead"] = r.statsLifetime.EwmaYoungObjectsDead
	out["lifetime_ewma_young_objects_skipped"] = r.statsLifetime.EwmaYoungObjectsSkipped
	out["lifetime_ewma_objects_alive"] = r.statsLifetime.EwmaObjectsAlive
	out["lifetime_ewma_objects_dead"] = r.statsLifetime.EwmaObjectsDead
	out["lifetime_ewma_objects_skipped"] = r.statsLifetime.EwmaObjectsSkipped
	return out
}
