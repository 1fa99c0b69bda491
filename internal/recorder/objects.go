package recorder

import "fmt"

// LiveObjectData is the per-object metadata a sample carries: weight,
// class name, GC bookkeeping, and the size/frozen data a full update
// refreshes. Class is nil when the profiler didn't supply one.
type LiveObjectData struct {
	Weight    uint32
	Class     *string
	AllocGen  uint64
	GenAge    uint64
	Size      uint64
	IsFrozen  bool
}

// ObjectRecord is the per-tracked-object record: exactly one exists per
// live obj_id, pointing at the (shared, non-owning) HeapRecord for its
// allocation stack.
type ObjectRecord struct {
	ObjID int64
	Heap  *HeapRecord
	Data  LiveObjectData
}

// DebugString is a one-line diagnostic summary, used when a contract
// violation needs to name the record(s) involved.
func (r *ObjectRecord) DebugString() string {
	class := "<none>"
	if r.Data.Class != nil {
		class = *r.Data.Class
	}
	return fmt.Sprintf("ObjectRecord{obj_id=%d, class=%s, weight=%d, gen_age=%d}", r.ObjID, class, r.Data.Weight, r.Data.GenAge)
}

// objectRecordTable maps obj_id to ObjectRecord, owning its values. It is
// walked exhaustively by update and snapshot and is never queried by id
// after commit on the hot path, so a plain map is sufficient; the
// implementation note in the spec allows a slab/vector instead as long as
// id uniqueness is enforced at commit, which is all insertUnique does here.
type objectRecordTable struct {
	data map[int64]*ObjectRecord
}

func newObjectRecordTable() *objectRecordTable {
	return &objectRecordTable{data: make(map[int64]*ObjectRecord)}
}

// insertUnique fails loud on a duplicate id (spec I4: a repeated commit of
// the same id is a programming error), with both records' summaries in
// the diagnostic.
func (t *objectRecordTable) insertUnique(record *ObjectRecord) error {
	if existing, ok := t.data[record.ObjID]; ok {
		return &ContractError{Op: "end", Msg: fmt.Sprintf("duplicate object id %d: existing=%s new=%s", record.ObjID, existing.DebugString(), record.DebugString())}
	}
	t.data[record.ObjID] = record
	return nil
}

func (t *objectRecordTable) remove(id int64) {
	delete(t.data, id)
}

func (t *objectRecordTable) get(id int64) (*ObjectRecord, bool) {
	r, ok := t.data[id]
	return r, ok
}

func (t *objectRecordTable) Count() int { return len(t.data) }

// clone produces a shallow copy: a new map sharing the same *ObjectRecord
// pointers, used as the iteration snapshot. It owns neither the keys nor
// the values it references.
func (t *objectRecordTable) clone() *objectRecordTable {
	out := make(map[int64]*ObjectRecord, len(t.data))
	for k, v := range t.data {
		out[k] = v
	}
	return &objectRecordTable{data: out}
}
