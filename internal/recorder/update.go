package recorder

// OldAge is the generation age at which an object is considered old and
// is only reclaimed by a full update.
const OldAge = 3

// MinTimeBetweenUpdatesNS throttles young updates: successive calls within
// this window are skipped.
const MinTimeBetweenUpdatesNS = 2_000_000_000

// UpdateYoung runs a young (minor-GC-triggered) liveness pass. It is
// best-effort: any of the skip heuristics below may turn it into a no-op,
// and it never returns an error for that — only a contract violation
// (there are none on this path) would.
func (r *Recorder) UpdateYoung() {
	if r.updating {
		r.statsLifetime.UpdatesSkippedConcurrent++
		return
	}
	if r.snapshot != nil {
		return
	}
	gen := r.host.GCGenerationCount()
	if gen == r.updateGen {
		r.statsLifetime.UpdatesSkippedGCGen++
		return
	}
	if r.hasLastUpdate {
		now := r.host.MonotonicNS()
		if now >= 0 && now-r.lastUpdateNS < MinTimeBetweenUpdatesNS {
			r.statsLifetime.UpdatesSkippedTime++
			return
		}
	}

	r.runUpdate(gen, false)
}

// runFullUpdate forces a full update (from PrepareIteration), failing
// loudly instead of skipping if one is already in progress, and without
// any time throttling.
func (r *Recorder) runFullUpdate() error {
	if r.updating {
		return &ContractError{Op: "prepare_iteration", Msg: "update already in progress"}
	}
	gen := r.host.GCGenerationCount()
	r.runUpdate(gen, true)
	return nil
}

// runUpdate is the shared walk: young updates skip same-generation and old
// objects and never touch size/frozen; full updates visit everything and
// refresh size/frozen for non-frozen objects when size tracking is on.
func (r *Recorder) runUpdate(gen uint64, full bool) {
	r.updating = true
	defer func() { r.updating = false }()

	r.updateGen = gen
	r.updateIncludeOld = full

	var alive, dead, skipped, frozen uint64

	for id, rec := range r.objects.data {
		var genAge uint64
		if gen >= rec.Data.AllocGen {
			genAge = gen - rec.Data.AllocGen
		}
		rec.Data.GenAge = genAge

		if !full && (genAge == 0 || genAge >= OldAge) {
			skipped++
			continue
		}

		obj, ok := r.host.ResolveID(id)
		if !ok {
			r.deleteObjectRecord(id, rec)
			dead++
			continue
		}
		alive++

		if full {
			if !rec.Data.IsFrozen && r.sizeEnabled {
				rec.Data.Size = r.host.SizeOf(obj)
				rec.Data.IsFrozen = r.host.IsFrozen(obj)
			}
			if rec.Data.IsFrozen {
				frozen++
			}
		}
	}

	r.statsLastUpdate = LastUpdateStats{
		ObjectsAlive:   alive,
		ObjectsDead:    dead,
		ObjectsSkipped: skipped,
		ObjectsFrozen:  frozen,
	}

	if full {
		r.statsLifetime.UpdatesSuccessful++
		r.statsLifetime.EwmaObjectsAlive = ewmaStat(r.statsLifetime.EwmaObjectsAlive, float64(alive))
		r.statsLifetime.EwmaObjectsDead = ewmaStat(r.statsLifetime.EwmaObjectsDead, float64(dead))
		r.statsLifetime.EwmaObjectsSkipped = ewmaStat(r.statsLifetime.EwmaObjectsSkipped, float64(skipped))
	} else {
		r.statsLifetime.UpdatesSuccessful++
		r.statsLifetime.EwmaYoungObjectsAlive = ewmaStat(r.statsLifetime.EwmaYoungObjectsAlive, float64(alive))
		r.statsLifetime.EwmaYoungObjectsDead = ewmaStat(r.statsLifetime.EwmaYoungObjectsDead, float64(dead))
		r.statsLifetime.EwmaYoungObjectsSkipped = ewmaStat(r.statsLifetime.EwmaYoungObjectsSkipped, float64(skipped))
	}

	if now := r.host.MonotonicNS(); now >= 0 {
		r.lastUpdateNS = now
		r.hasLastUpdate = true
	}
}

// deleteObjectRecord removes a dead object's record and releases its
// reference to the shared HeapRecord, cleaning up the dedup-table entry
// too if that was the last reference. The historical bug this guarded
// against was never root-caused, so the nil checks stay even though the
// invariants say rec.Heap can't be nil here.
func (r *Recorder) deleteObjectRecord(id int64, rec *ObjectRecord) {
	r.objects.remove(id)
	if rec == nil || rec.Heap == nil {
		return
	}
	_ = r.dedup.dropOne(rec.Heap)
}
