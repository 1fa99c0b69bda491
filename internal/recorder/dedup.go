package recorder

import "fmt"

// HeapRecord is a deduplicated allocation-stack record: one per distinct
// stack, shared by every ObjectRecord allocated from that stack. The
// recorder never frees a HeapRecord while any ObjectRecord still points at
// it; Tracked is the refcount that enforces this (invariant I1/I2).
type HeapRecord struct {
	stack   *Stack
	Tracked uint32
}

// Stack returns the allocation stack this record was created from.
func (h *HeapRecord) Stack() *Stack { return h.stack }

type dedupEntry struct {
	stack  *Stack
	record *HeapRecord
}

// stackDedupTable maps a Stack (or an equivalent borrowed frame slice) to
// a refcounted HeapRecord. Go maps require comparable keys, and []Frame
// isn't one, so the table is hand-rolled as hash buckets instead of the
// enum-keyed map the origin's host language supports directly: a lookup
// computes hashFrames once from whichever form (owned or borrowed) it was
// given, then probes the bucket with framesEqual. See design notes on the
// dual-key contract.
type stackDedupTable struct {
	buckets map[uint64][]dedupEntry
	size    int
}

func newStackDedupTable() *stackDedupTable {
	return &stackDedupTable{buckets: make(map[uint64][]dedupEntry)}
}

// getOrCreate returns the HeapRecord for frames, creating one with
// Tracked == 0 on first sight. It never allocates on a hit: the common
// "same stack, new object" path costs one hash and a linear bucket scan,
// no string copies. The caller is responsible for incrementing Tracked
// once it has successfully registered the ObjectRecord that refers here.
func (t *stackDedupTable) getOrCreate(frames []Frame) (*HeapRecord, error) {
	h := hashFrames(frames)
	for _, e := range t.buckets[h] {
		if framesEqual(e.stack.frames, frames) {
			return e.record, nil
		}
	}

	stack, err := newStack(frames)
	if err != nil {
		return nil, err
	}
	record := &HeapRecord{stack: stack}
	t.buckets[h] = append(t.buckets[h], dedupEntry{stack: stack, record: record})
	t.size++
	return record, nil
}

// dropOne decrements a HeapRecord's Tracked count, removing the record
// (and its dedup-table entry) in the same step if it reaches zero.
func (t *stackDedupTable) dropOne(record *HeapRecord) error {
	if record.Tracked == 0 {
		return &ContractError{Op: "drop_one", Msg: "heap record tracked count already zero"}
	}
	record.Tracked--
	if record.Tracked != 0 {
		return nil
	}

	h := hashFrames(record.stack.frames)
	bucket := t.buckets[h]
	for i, e := range bucket {
		if e.record == record {
			bucket[i] = bucket[len(bucket)-1]
			bucket = bucket[:len(bucket)-1]
			if len(bucket) == 0 {
				delete(t.buckets, h)
			} else {
				t.buckets[h] = bucket
			}
			t.size--
			return nil
		}
	}
	// Invariant I2 says this can't happen; surfacing it loudly beats a
	// silent leak of a HeapRecord the table no longer knows about.
	return &ContractError{Op: "drop_one", Msg: "heap record not present in its own bucket"}
}

// incrementTracked bumps the refcount on a successful ObjectRecord commit,
// failing instead of silently wrapping if it would saturate.
func incrementTracked(record *HeapRecord) error {
	if record.Tracked == ^uint32(0) {
		return &ContractError{Op: "end", Msg: fmt.Sprintf("heap record tracked count saturated at %d", record.Tracked)}
	}
	record.Tracked++
	return nil
}

// Size returns the number of distinct stacks currently recorded (invariant I2).
func (t *stackDedupTable) Size() int { return t.size }
