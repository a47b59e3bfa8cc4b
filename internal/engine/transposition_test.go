package engine

import (
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/hailam/noxchess/internal/board"
)

// sameCluster returns a hash that maps to the cluster of h but has a
// different signature.
func sameCluster(h uint64, i int) uint64 {
	return h ^ uint64(i)<<56
}

func TestTTStoreProbe(t *testing.T) {
	tt := NewTranspositionTable(1)
	const h = 0x1234_5678_9abc_def0
	m := board.NewMove(board.E2, board.E4, board.FlagNone)

	if _, ok := tt.Probe(h); ok {
		t.Fatal("hit on an empty table")
	}

	tt.Store(h, 7, -42, 15, TTLowerBound, m, true)
	e, ok := tt.Probe(h)
	if !ok {
		t.Fatal("miss after store")
	}
	if e.Move != m || e.Score != -42 || e.Eval != 15 || e.Depth != 7 || e.Flag != TTLowerBound || !e.PV {
		t.Errorf("got %+v", e)
	}

	if _, ok := tt.Probe(sameCluster(h, 1)); ok {
		t.Error("hit for a different key in the same cluster")
	}
}

func TestTTKeepsMoveOnNullStore(t *testing.T) {
	tt := NewTranspositionTable(1)
	const h = 0xfeed
	m := board.NewMove(board.G1, board.F3, board.FlagNone)
	tt.Store(h, 4, 10, 0, TTLowerBound, m, false)
	tt.Store(h, 5, 20, 0, TTUpperBound, board.NullMove, false)

	e, _ := tt.Probe(h)
	if e.Move != m {
		t.Errorf("move = %v, want %v", e.Move, m)
	}
	if e.Depth != 5 || e.Flag != TTUpperBound {
		t.Errorf("entry not refreshed: %+v", e)
	}
}

func TestTTTornSlotIsMiss(t *testing.T) {
	tt := NewTranspositionTable(1)
	const h = 0xabcdef
	tt.Store(h, 3, 1, 1, TTExact, board.NullMove, false)
	c := tt.cluster(h)
	for i := range c {
		if c[i].data.Load() != 0 {
			c[i].key.Store(c[i].key.Load() ^ 1)
		}
	}
	if _, ok := tt.Probe(h); ok {
		t.Error("torn slot accepted")
	}
}

func TestTTCanCut(t *testing.T) {
	tests := []struct {
		name  string
		entry TTEntry
		depth int
		want  bool
	}{
		{"exact", TTEntry{Score: 50, Depth: 5, Flag: TTExact}, 5, true},
		{"too shallow", TTEntry{Score: 50, Depth: 4, Flag: TTExact}, 5, false},
		{"lower above beta", TTEntry{Score: 120, Depth: 6, Flag: TTLowerBound}, 5, true},
		{"lower inside window", TTEntry{Score: 50, Depth: 6, Flag: TTLowerBound}, 5, false},
		{"upper below alpha", TTEntry{Score: -20, Depth: 6, Flag: TTUpperBound}, 5, true},
		{"upper inside window", TTEntry{Score: 50, Depth: 6, Flag: TTUpperBound}, 5, false},
		{"none", TTEntry{Score: 50, Depth: 6, Flag: TTNone}, 5, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.entry.CanCut(tc.depth, 0, 100); got != tc.want {
				t.Errorf("CanCut = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTTResizeRoundsDown(t *testing.T) {
	tests := []struct {
		mb       int
		clusters int
	}{
		{1, 1 << 20 / clusterBytes},
		{3, 2 << 20 / clusterBytes},
		{64, 64 << 20 / clusterBytes},
		{100, 64 << 20 / clusterBytes},
		{0, 1 << 20 / clusterBytes},
	}
	for _, tc := range tests {
		tt := NewTranspositionTable(tc.mb)
		if tt.Clusters() != tc.clusters {
			t.Errorf("%d MB: %d clusters, want %d", tc.mb, tt.Clusters(), tc.clusters)
		}
		if n := tt.Clusters(); n&(n-1) != 0 {
			t.Errorf("%d MB: %d clusters is not a power of two", tc.mb, n)
		}
	}
}

func TestRoundDownToPowerOf2(t *testing.T) {
	for _, tc := range []struct{ in, want uint64 }{
		{0, 1}, {1, 1}, {2, 2}, {3, 2}, {1000, 512}, {1 << 40, 1 << 40}, {1<<40 + 1, 1 << 40},
	} {
		if got := roundDownToPowerOf2(tc.in); got != tc.want {
			t.Errorf("roundDownToPowerOf2(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

// An old deep entry loses its slot to a fresh shallow one once enough
// searches have passed.
func TestTTAgedEntriesAreReplaced(t *testing.T) {
	tt := NewTranspositionTable(1)
	const base = 0x77
	a, b, c := sameCluster(base, 1), sameCluster(base, 2), sameCluster(base, 3)
	for _, h := range []uint64{a, b, c} {
		tt.Store(h, 8, 0, 0, TTExact, board.NullMove, false)
	}
	for range 5 {
		tt.IncreaseAge()
	}
	d, e := sameCluster(base, 4), sameCluster(base, 5)
	tt.Store(d, 2, 0, 0, TTExact, board.NullMove, false)
	tt.Store(e, 1, 0, 0, TTExact, board.NullMove, false)

	for _, h := range []uint64{d, e} {
		if _, ok := tt.Probe(h); !ok {
			t.Errorf("fresh entry %x was evicted", h)
		}
	}
	hits := 0
	for _, h := range []uint64{a, b, c} {
		if _, ok := tt.Probe(h); ok {
			hits++
		}
	}
	if hits != 2 {
		t.Errorf("%d old entries survive, want 2", hits)
	}
}

func TestTTDeepEntriesSurviveInOneSearch(t *testing.T) {
	tt := NewTranspositionTable(1)
	const base = 0x99
	for i := 1; i <= 4; i++ {
		tt.Store(sameCluster(base, i), 10+i, 0, 0, TTExact, board.NullMove, false)
	}
	tt.Store(sameCluster(base, 5), 1, 0, 0, TTExact, board.NullMove, false)
	if _, ok := tt.Probe(sameCluster(base, 1)); ok {
		t.Error("shallowest entry should have been replaced")
	}
	for i := 2; i <= 5; i++ {
		if _, ok := tt.Probe(sameCluster(base, i)); !ok {
			t.Errorf("entry %d missing", i)
		}
	}
}

func TestTTMateScoreAdjust(t *testing.T) {
	for _, s := range []int{MateScore - 5, -MateScore + 7, 0, 250, -MateInMaxPly + 1} {
		for _, ply := range []int{0, 3, 20} {
			if got := scoreFromTT(scoreToTT(s, ply), ply); got != s {
				t.Errorf("round trip of %d at ply %d gave %d", s, ply, got)
			}
		}
	}
	if got := scoreToTT(MateScore-5, 3); got != MateScore-2 {
		t.Errorf("scoreToTT = %d, want %d", got, MateScore-2)
	}
	if got := scoreToTT(123, 9); got != 123 {
		t.Errorf("non-mate score changed to %d", got)
	}
}

func TestTTClearAndHashFull(t *testing.T) {
	tt := NewTranspositionTable(1)
	for i := range uint64(4000) {
		tt.Store(i*0x9e3779b97f4a7c15, 1, 0, 0, TTExact, board.NullMove, false)
	}
	if tt.HashFull() == 0 {
		t.Error("HashFull is zero after stores")
	}
	tt.Clear()
	if got := tt.HashFull(); got != 0 {
		t.Errorf("HashFull = %d after Clear", got)
	}
}

func TestTTConcurrentAccess(t *testing.T) {
	tt := NewTranspositionTable(1)
	var g errgroup.Group
	for w := range 8 {
		g.Go(func() error {
			for i := range uint64(20000) {
				h := (i*0x9e3779b97f4a7c15 ^ uint64(w)) | 1
				tt.Store(h, int(i%20), int(i%200), 0, TTExact, board.NullMove, false)
				if e, ok := tt.Probe(h); ok && e.Depth > 20 {
					t.Errorf("corrupt entry %+v", e)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}
