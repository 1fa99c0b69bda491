package recorder

// IterationMinAge is the minimum generation age (inclusive) an object must
// have reached before it is surfaced by ForEachLiveObject. Age-0 objects
// haven't survived a single GC yet and are usually noise.
const IterationMinAge = 1

// Location is the downstream profiler's frame shape: function name, file
// name, and line, with mapping fields left empty (the recorder has no
// notion of binary mappings). Strings are borrowed from the owning Stack.
type Location struct {
	FunctionName string
	FileName     string
	Line         int32
}

// IterationRecord is what ForEachLiveObject hands to its callback for each
// live object: the per-object data plus its allocation locations.
type IterationRecord struct {
	ObjectData LiveObjectData
	Locations  []Location
}

// PrepareIteration forces a full update and installs a point-in-time
// snapshot of the object table for iteration. It fails if a snapshot is
// already in progress.
func (r *Recorder) PrepareIteration() error {
	if r.snapshot != nil {
		return &ContractError{Op: "prepare_iteration", Msg: "iteration already prepared"}
	}
	if err := r.runFullUpdate(); err != nil {
		return err
	}
	r.snapshot = r.objects.clone()
	return nil
}

// ForEachLiveObject walks the prepared snapshot, invoking cb for every
// object whose generation age is at least IterationMinAge. It returns
// false without calling cb if no snapshot is prepared. cb must not
// allocate via the host runtime or touch anything requiring the
// cooperative mutator lock — this call is explicitly allowed to run
// without it (spec §5).
func (r *Recorder) ForEachLiveObject(cb func(IterationRecord) bool) bool {
	if r.snapshot == nil {
		return false
	}
	for _, rec := range r.snapshot.data {
		if rec.Data.GenAge < IterationMinAge {
			continue
		}
		frames := rec.Heap.Stack().Frames()
		locations := r.reusableLocations[:len(frames)]
		for i, f := range frames {
			locations[i] = Location{FunctionName: f.FunctionName, FileName: f.FileName, Line: f.Line}
		}
		if !cb(IterationRecord{ObjectData: rec.Data, Locations: locations}) {
			return true
		}
	}
	return true
}

// FinishIteration frees the snapshot. It does not touch the records the
// snapshot shared with the primary table.
func (r *Recorder) FinishIteration() error {
	if r.snapshot == nil {
		return &ContractError{Op: "finish_iteration", Msg: "no iteration in progress"}
	}
	r.snapshot = nil
	return nil
}
