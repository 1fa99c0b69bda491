package recorder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDedupSharingAcrossIdenticalStacks(t *testing.T) {
	table := newStackDedupTable()
	frames := []Frame{NewFrame("foo", "a.rb", 1)}

	r1, err := table.getOrCreate(frames)
	require.NoError(t, err)
	require.NoError(t, incrementTracked(r1))

	r2, err := table.getOrCreate(frames)
	require.NoError(t, err)
	require.Same(t, r1, r2)
	require.NoError(t, incrementTracked(r2))

	require.Equal(t, 1, table.Size())
	require.EqualValues(t, 2, r1.Tracked)

	require.NoError(t, table.dropOne(r1))
	require.EqualValues(t, 1, r1.Tracked)
	require.Equal(t, 1, table.Size())

	require.NoError(t, table.dropOne(r1))
	require.Equal(t, 0, table.Size())
}

func TestGetOrCreateNoAllocationOnHit(t *testing.T) {
	table := newStackDedupTable()
	frames := []Frame{NewFrame("foo", "a.rb", 1), NewFrame("bar", "b.rb", 2)}

	created, err := table.getOrCreate(frames)
	require.NoError(t, err)

	// A borrowed slice built fresh, with equal contents but a distinct
	// backing array, must still hit the same record.
	borrowed := make([]Frame, len(frames))
	copy(borrowed, frames)
	found, err := table.getOrCreate(borrowed)
	require.NoError(t, err)
	require.Same(t, created, found)
	require.Equal(t, 1, table.Size())
}

func TestIncrementTrackedSaturation(t *testing.T) {
	record := &HeapRecord{Tracked: ^uint32(0)}
	err := incrementTracked(record)
	require.Error(t, err)
	var ce *ContractError
	require.ErrorAs(t, err, &ce)
}

func TestDropOneOnZeroIsContractViolation(t *testing.T) {
	record := &HeapRecord{}
	err := (&stackDedupTable{buckets: map[uint64][]dedupEntry{}}).dropOne(record)
	require.Error(t, err)
}
