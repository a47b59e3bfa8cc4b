package engine

// PawnEntry stores cached pawn structure evaluation.
type PawnEntry struct {
	Key     uint64
	MgScore int16
	EgScore int16
}

// PawnTable caches pawn structure terms by pawn key. It belongs to one
// evaluator and is not safe for concurrent use.
type PawnTable struct {
	entries []PawnEntry
	mask    uint64
}

// NewPawnTable creates a table with n entries rounded down to a power of two.
func NewPawnTable(n int) *PawnTable {
	size := roundDownToPowerOf2(uint64(max(n, 1)))
	return &PawnTable{
		entries: make([]PawnEntry, size),
		mask:    size - 1,
	}
}

// Probe returns the cached white-relative scores for key.
func (pt *PawnTable) Probe(key uint64) (mg, eg int, found bool) {
	e := &pt.entries[key&pt.mask]
	if e.Key == key && key != 0 {
		return int(e.MgScore), int(e.EgScore), true
	}
	return 0, 0, false
}

// Store overwrites the slot for key.
func (pt *PawnTable) Store(key uint64, mg, eg int) {
	pt.entries[key&pt.mask] = PawnEntry{Key: key, MgScore: int16(mg), EgScore: int16(eg)}
}

// Clear empties the table.
func (pt *PawnTable) Clear() {
	clear(pt.entries)
}
