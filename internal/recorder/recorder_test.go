package recorder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testObj struct{ id int64 }

type fakeHost struct {
	gen           uint64
	now           int64
	alive         map[int64]*testObj
	sizes         map[int64]uint64
	frozen        map[int64]bool
	unrecordable  map[int64]bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		alive:        make(map[int64]*testObj),
		sizes:        make(map[int64]uint64),
		frozen:       make(map[int64]bool),
		unrecordable: make(map[int64]bool),
	}
}

func (h *fakeHost) track(id int64) *testObj {
	o := &testObj{id: id}
	h.alive[id] = o
	return o
}

func (h *fakeHost) kill(id int64) { delete(h.alive, id) }

func (h *fakeHost) GCGenerationCount() uint64 { return h.gen }
func (h *fakeHost) ObjectID(obj any) int64    { return obj.(*testObj).id }
func (h *fakeHost) ResolveID(id int64) (any, bool) {
	o, ok := h.alive[id]
	return o, ok
}
func (h *fakeHost) SizeOf(obj any) uint64   { return h.sizes[obj.(*testObj).id] }
func (h *fakeHost) IsFrozen(obj any) bool   { return h.frozen[obj.(*testObj).id] }
func (h *fakeHost) MonotonicNS() int64      { return h.now }
func (h *fakeHost) KindIsUnrecordable(obj any) bool {
	return h.unrecordable[obj.(*testObj).id]
}

var fooFrames = []Frame{NewFrame("foo", "a.rb", 1)}

// Scenario 1: single allocation, still alive.
func TestScenarioSingleAllocationStillAlive(t *testing.T) {
	host := newFakeHost()
	host.gen = 10
	rec := New(host)

	a := host.track(1)
	require.NoError(t, rec.Begin(a, 2, "String"))
	require.NoError(t, rec.End(fooFrames))

	require.Equal(t, 1, rec.objects.Count())
	require.Equal(t, 1, rec.dedup.Size())

	host.gen = 12
	require.NoError(t, rec.PrepareIteration())

	var got []IterationRecord
	ok := rec.ForEachLiveObject(func(ir IterationRecord) bool {
		got = append(got, ir)
		return true
	})
	require.True(t, ok)
	require.Len(t, got, 1)
	require.EqualValues(t, 2, got[0].ObjectData.Weight)
	require.Equal(t, "String", *got[0].ObjectData.Class)
	require.EqualValues(t, 2, got[0].ObjectData.GenAge)
	require.Equal(t, []Location{{FunctionName: "foo", FileName: "a.rb", Line: 1}}, got[0].Locations)

	require.NoError(t, rec.FinishIteration())
}

// Scenario 2: two allocations, same stack, both alive.
func TestScenarioTwoAllocationsSameStack(t *testing.T) {
	host := newFakeHost()
	host.gen = 10
	rec := New(host)

	a, b := host.track(1), host.track(2)
	require.NoError(t, rec.Begin(a, 1, ""))
	require.NoError(t, rec.End(fooFrames))
	require.NoError(t, rec.Begin(b, 1, ""))
	require.NoError(t, rec.End(fooFrames))

	require.Equal(t, 1, rec.dedup.Size())
	recA, _ := rec.objects.get(1)
	require.EqualValues(t, 2, recA.Heap.Tracked)
}

// Scenario 3: one dies.
func TestScenarioOneDies(t *testing.T) {
	host := newFakeHost()
	host.gen = 10
	rec := New(host)

	a, b := host.track(1), host.track(2)
	require.NoError(t, rec.Begin(a, 1, ""))
	require.NoError(t, rec.End(fooFrames))
	require.NoError(t, rec.Begin(b, 1, ""))
	require.NoError(t, rec.End(fooFrames))

	host.kill(2)
	host.gen = 13
	require.NoError(t, rec.PrepareIteration())

	require.Equal(t, 1, rec.objects.Count())
	require.Equal(t, 1, rec.dedup.Size())
	remaining, ok := rec.objects.get(1)
	require.True(t, ok)
	require.EqualValues(t, 1, remaining.Heap.Tracked)

	rec.ForEachLiveObject(func(ir IterationRecord) bool {
		return true
	})
	require.NoError(t, rec.FinishIteration())
}

// Scenario 4: both die.
func TestScenarioBothDie(t *testing.T) {
	host := newFakeHost()
	host.gen = 10
	rec := New(host)

	a, b := host.track(1), host.track(2)
	require.NoError(t, rec.Begin(a, 1, ""))
	require.NoError(t, rec.End(fooFrames))
	require.NoError(t, rec.Begin(b, 1, ""))
	require.NoError(t, rec.End(fooFrames))

	host.kill(1)
	host.kill(2)
	host.gen = 13
	require.NoError(t, rec.PrepareIteration())

	require.Equal(t, 0, rec.objects.Count())
	require.Equal(t, 0, rec.dedup.Size())
	require.NoError(t, rec.FinishIteration())
}

// Scenario 5: sampling.
func TestScenarioSampling(t *testing.T) {
	host := newFakeHost()
	host.gen = 10
	rec := New(host)
	require.NoError(t, rec.SetSampleRate(3))

	for i := int64(1); i <= 8; i++ {
		obj := host.track(i)
		require.NoError(t, rec.Begin(obj, 1, ""))
		require.NoError(t, rec.End(fooFrames))
	}

	require.Equal(t, 2, rec.objects.Count())
	require.Equal(t, 1, rec.dedup.Size())
	_, ok3 := rec.objects.get(3)
	_, ok6 := rec.objects.get(6)
	require.True(t, ok3)
	require.True(t, ok6)
}

// Scenario 6: update skipping.
func TestScenarioUpdateSkipping(t *testing.T) {
	host := newFakeHost()
	host.gen = 10
	host.now = 0
	rec := New(host)

	rec.UpdateYoung()
	require.EqualValues(t, 1, rec.statsLifetime.UpdatesSuccessful)

	rec.UpdateYoung()
	require.EqualValues(t, 1, rec.statsLifetime.UpdatesSkippedGCGen)

	host.gen = 11
	host.now = 1_000_000_000
	rec.UpdateYoung()
	require.EqualValues(t, 1, rec.statsLifetime.UpdatesSkippedTime)

	host.now = 1_000_000_000 + 3_000_000_000
	rec.UpdateYoung()
	require.EqualValues(t, 2, rec.statsLifetime.UpdatesSuccessful)
}

// P1: num_heap_records / num_object_records after unique begin/end.
func TestPropertyDistinctStacksAndObjects(t *testing.T) {
	host := newFakeHost()
	host.gen = 1
	rec := New(host)

	stacks := [][]Frame{
		{NewFrame("a", "a.rb", 1)},
		{NewFrame("b", "b.rb", 2)},
		{NewFrame("a", "a.rb", 1)},
	}
	for i, frames := range stacks {
		obj := host.track(int64(i + 1))
		require.NoError(t, rec.Begin(obj, 1, ""))
		require.NoError(t, rec.End(frames))
	}

	require.Equal(t, 2, rec.dedup.Size())
	require.Equal(t, 3, rec.objects.Count())
}

// P3: resolve_id returns None for everyone -> both tables empty after a full update.
func TestPropertyAllDeadEmptiesTables(t *testing.T) {
	host := newFakeHost()
	host.gen = 1
	rec := New(host)

	for i := int64(1); i <= 5; i++ {
		obj := host.track(i)
		require.NoError(t, rec.Begin(obj, 1, ""))
		require.NoError(t, rec.End(fooFrames))
	}
	for i := int64(1); i <= 5; i++ {
		host.kill(i)
	}

	host.gen = 2
	require.NoError(t, rec.PrepareIteration())
	require.Equal(t, 0, rec.objects.Count())
	require.Equal(t, 0, rec.dedup.Size())
}

// P4: resolve_id returns Some for everyone -> counts unchanged, gen_age correct.
func TestPropertyAllAliveUnchangedCounts(t *testing.T) {
	host := newFakeHost()
	host.gen = 1
	rec := New(host)

	for i := int64(1); i <= 4; i++ {
		obj := host.track(i)
		require.NoError(t, rec.Begin(obj, 1, ""))
		require.NoError(t, rec.End(fooFrames))
	}

	host.gen = 6
	require.NoError(t, rec.PrepareIteration())
	require.Equal(t, 4, rec.objects.Count())
	for i := int64(1); i <= 4; i++ {
		o, ok := rec.objects.get(i)
		require.True(t, ok)
		require.EqualValues(t, 5, o.Data.GenAge)
	}
}

// P7: iteration yields exactly records whose gen_age >= 1.
func TestPropertyIterationMinAge(t *testing.T) {
	host := newFakeHost()
	host.gen = 0
	rec := New(host)

	old := host.track(1)
	require.NoError(t, rec.Begin(old, 1, "old"))
	require.NoError(t, rec.End(fooFrames))

	host.gen = 1
	justAllocated := host.track(2)
	require.NoError(t, rec.Begin(justAllocated, 1, "new"))
	require.NoError(t, rec.End(fooFrames))

	// update_gen stays at 1: old object's gen_age is 1 (surfaces),
	// the just-allocated one's gen_age is 0 (does not).
	require.NoError(t, rec.PrepareIteration())

	var seenClasses []string
	rec.ForEachLiveObject(func(ir IterationRecord) bool {
		seenClasses = append(seenClasses, *ir.ObjectData.Class)
		return true
	})
	require.Equal(t, []string{"old"}, seenClasses)
}

// P8: young update between two identical GC generations is a no-op.
func TestPropertyYoungUpdateSameGenerationNoOp(t *testing.T) {
	host := newFakeHost()
	host.gen = 5
	rec := New(host)

	rec.UpdateYoung()
	before := rec.statsLifetime.UpdatesSkippedGCGen
	rec.UpdateYoung()
	require.Equal(t, before+1, rec.statsLifetime.UpdatesSkippedGCGen)
}

func TestBeginWithoutEndIsContractViolation(t *testing.T) {
	host := newFakeHost()
	rec := New(host)
	obj := host.track(1)
	require.NoError(t, rec.Begin(obj, 1, ""))
	err := rec.Begin(obj, 1, "")
	require.Error(t, err)
}

func TestEndWithoutBeginIsContractViolation(t *testing.T) {
	host := newFakeHost()
	rec := New(host)
	err := rec.End(fooFrames)
	require.Error(t, err)
}

func TestDuplicateObjectIDIsContractViolation(t *testing.T) {
	host := newFakeHost()
	rec := New(host)
	obj := host.track(1)
	require.NoError(t, rec.Begin(obj, 1, ""))
	require.NoError(t, rec.End(fooFrames))

	require.NoError(t, rec.Begin(obj, 1, ""))
	err := rec.End(fooFrames)
	require.Error(t, err)
}

func TestPrepareIterationTwiceFails(t *testing.T) {
	host := newFakeHost()
	rec := New(host)
	require.NoError(t, rec.PrepareIteration())
	require.Error(t, rec.PrepareIteration())
	require.NoError(t, rec.FinishIteration())
}

func TestFinishIterationWithoutPrepareFails(t *testing.T) {
	host := newFakeHost()
	rec := New(host)
	require.Error(t, rec.FinishIteration())
}

func TestForEachLiveObjectWithoutSnapshotReturnsFalse(t *testing.T) {
	host := newFakeHost()
	rec := New(host)
	called := false
	ok := rec.ForEachLiveObject(func(ir IterationRecord) bool {
		called = true
		return true
	})
	require.False(t, ok)
	require.False(t, called)
}

func TestSampleRateMustBePositive(t *testing.T) {
	host := newFakeHost()
	rec := New(host)
	require.Error(t, rec.SetSampleRate(0))
}

func TestKindIsUnrecordableSkipsRecording(t *testing.T) {
	host := newFakeHost()
	rec := New(host)
	obj := host.track(1)
	host.unrecordable[1] = true

	require.NoError(t, rec.Begin(obj, 1, ""))
	require.NoError(t, rec.End(fooFrames))
	require.Equal(t, 0, rec.objects.Count())
}

func TestAfterForkResetsLifetimeStatsAndKeepsObjects(t *testing.T) {
	host := newFakeHost()
	rec := New(host)
	obj := host.track(1)
	require.NoError(t, rec.Begin(obj, 1, ""))
	require.NoError(t, rec.End(fooFrames))
	host.gen = 1
	rec.UpdateYoung()
	require.NotZero(t, rec.statsLifetime.UpdatesSuccessful)

	require.NoError(t, rec.PrepareIteration())
	require.NoError(t, rec.AfterFork())

	require.Zero(t, rec.statsLifetime.UpdatesSuccessful)
	require.Equal(t, 1, rec.objects.Count())
	require.Nil(t, rec.snapshot)
}
