package engine

import (
	"runtime"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/hailam/noxchess/internal/board"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// TTFlag indicates the type of bound stored in the transposition table.
type TTFlag uint8

const (
	TTNone       TTFlag = iota
	TTExact             // Exact score
	TTUpperBound        // Failed low
	TTLowerBound        // Failed high (beta cutoff)
)

const (
	clusterSize = 4
	// Each slot is two words, so a cluster fills one 64-byte line.
	clusterBytes = clusterSize * 16
	genMask      = 31
)

// Data word layout.
const (
	ttMoveShift  = 0
	ttScoreShift = 16
	ttEvalShift  = 32
	ttDepthShift = 48
	ttFlagShift  = 56
	ttPVShift    = 58
	ttGenShift   = 59
)

// TTEntry is a decoded transposition table entry.
type TTEntry struct {
	Move  board.Move
	Score int16
	Eval  int16
	Depth int
	Flag  TTFlag
	PV    bool
	Gen   uint8
}

// CanCut reports whether the entry alone decides a node searched to depth
// within (alpha, beta). Score must already be ply-adjusted.
func (e TTEntry) CanCut(depth, alpha, beta int) bool {
	if e.Depth < depth {
		return false
	}
	score := int(e.Score)
	switch e.Flag {
	case TTExact:
		return true
	case TTUpperBound:
		return score <= alpha
	case TTLowerBound:
		return score >= beta
	}
	return false
}

// ttSlot stores (key^data, data). A reader accepts the slot only if the
// two words XOR back to its hash, so a write torn by another goroutine
// reads as a miss.
type ttSlot struct {
	key  atomic.Uint64
	data atomic.Uint64
}

type ttCluster [clusterSize]ttSlot

// TranspositionTable is shared by all workers without locks.
type TranspositionTable struct {
	clusters []ttCluster
	mask     uint64
	gen      atomic.Uint32
}

// NewTranspositionTable creates a transposition table with the given size in MB.
func NewTranspositionTable(sizeMB int) *TranspositionTable {
	tt := &TranspositionTable{}
	tt.Resize(sizeMB)
	return tt
}

// Resize discards every entry and reallocates to the largest power of two
// number of clusters that fits in sizeMB.
func (tt *TranspositionTable) Resize(sizeMB int) {
	if sizeMB < HashMin {
		sizeMB = HashMin
	}
	n := roundDownToPowerOf2(uint64(sizeMB) * 1024 * 1024 / clusterBytes)
	tt.clusters = nil
	tt.clusters = make([]ttCluster, n)
	tt.mask = n - 1
	tt.gen.Store(0)
	log.Debug().
		Str("size", humanize.IBytes(n*clusterBytes)).
		Uint64("clusters", n).
		Msg("transposition table allocated")
}

// roundDownToPowerOf2 rounds n down to the nearest power of 2.
func roundDownToPowerOf2(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return (n + 1) >> 1
}

// Clusters returns the number of clusters.
func (tt *TranspositionTable) Clusters() int {
	return len(tt.clusters)
}

// Bytes returns the table's memory footprint.
func (tt *TranspositionTable) Bytes() uint64 {
	return uint64(len(tt.clusters)) * clusterBytes
}

func (tt *TranspositionTable) cluster(hash uint64) *ttCluster {
	return &tt.clusters[hash&tt.mask]
}

func (tt *TranspositionTable) generation() uint8 {
	return uint8(tt.gen.Load() & genMask)
}

// IncreaseAge advances the generation. Call once per search.
func (tt *TranspositionTable) IncreaseAge() {
	tt.gen.Add(1)
}

// Probe looks up a position. The returned score is stored-relative; use
// scoreFromTT before comparing it to a window.
func (tt *TranspositionTable) Probe(hash uint64) (TTEntry, bool) {
	c := tt.cluster(hash)
	for i := range c {
		data := c[i].data.Load()
		if data != 0 && c[i].key.Load()^data == hash {
			return decode(data), true
		}
	}
	return TTEntry{}, false
}

// Store writes an entry. Depth may be zero (quiescence) but not negative.
func (tt *TranspositionTable) Store(hash uint64, depth, score, eval int, flag TTFlag, move board.Move, pv bool) {
	c := tt.cluster(hash)
	gen := tt.generation()

	target := -1
	bestQuality, bestAge := 1<<30, -1
	for i := range c {
		data := c[i].data.Load()
		if data == 0 {
			if bestQuality > -1<<20 {
				target, bestQuality, bestAge = i, -1<<20, genMask+1
			}
			continue
		}
		if c[i].key.Load()^data == hash {
			old := decode(data)
			if move == board.NullMove {
				move = old.Move
			}
			// Keep a deeper exact or PV result from this search.
			if old.Gen == gen && flag != TTExact && (old.Flag == TTExact || old.PV) && depth < old.Depth {
				return
			}
			target = i
			break
		}
		e := decode(data)
		age := int((gen - e.Gen) & genMask)
		q := e.Depth - 2*age
		if q < bestQuality || (q == bestQuality && age > bestAge) {
			target, bestQuality, bestAge = i, q, age
		}
	}

	data := encode(TTEntry{
		Move:  move,
		Score: int16(score),
		Eval:  int16(eval),
		Depth: depth,
		Flag:  flag,
		PV:    pv,
		Gen:   gen,
	})
	c[target].key.Store(hash ^ data)
	c[target].data.Store(data)
}

func encode(e TTEntry) uint64 {
	d := uint64(e.Move)<<ttMoveShift |
		uint64(uint16(e.Score))<<ttScoreShift |
		uint64(uint16(e.Eval))<<ttEvalShift |
		uint64(uint8(e.Depth+1))<<ttDepthShift |
		uint64(e.Flag&3)<<ttFlagShift |
		uint64(e.Gen&genMask)<<ttGenShift
	if e.PV {
		d |= 1 << ttPVShift
	}
	return d
}

func decode(d uint64) TTEntry {
	return TTEntry{
		Move:  board.Move(d >> ttMoveShift),
		Score: int16(uint16(d >> ttScoreShift)),
		Eval:  int16(uint16(d >> ttEvalShift)),
		Depth: int(uint8(d>>ttDepthShift)) - 1,
		Flag:  TTFlag(d>>ttFlagShift) & 3,
		PV:    d>>ttPVShift&1 != 0,
		Gen:   uint8(d>>ttGenShift) & genMask,
	}
}

// Clear zeroes every entry, splitting the work over GOMAXPROCS goroutines.
func (tt *TranspositionTable) Clear() {
	var g errgroup.Group
	workers := runtime.GOMAXPROCS(0)
	chunk := (len(tt.clusters) + workers - 1) / workers
	for start := 0; start < len(tt.clusters); start += chunk {
		end := min(start+chunk, len(tt.clusters))
		g.Go(func() error {
			clear(tt.clusters[start:end])
			return nil
		})
	}
	_ = g.Wait()
	tt.gen.Store(0)
}

// HashFull returns the permille of sampled slots written during the
// current search.
func (tt *TranspositionTable) HashFull() int {
	samples := min(1000, len(tt.clusters))
	gen := tt.generation()
	used := 0
	for i := 0; i < samples; i++ {
		for j := range tt.clusters[i] {
			data := tt.clusters[i][j].data.Load()
			if data != 0 && decode(data).Gen == gen {
				used++
			}
		}
	}
	return used * 1000 / (samples * clusterSize)
}

// scoreToTT converts a mate score from root-relative to node-relative.
func scoreToTT(score, ply int) int {
	if score >= MateInMaxPly {
		return score + ply
	}
	if score <= -MateInMaxPly {
		return score - ply
	}
	return score
}

// scoreFromTT is the inverse of scoreToTT.
func scoreFromTT(score, ply int) int {
	if score >= MateInMaxPly {
		return score - ply
	}
	if score <= -MateInMaxPly {
		return score + ply
	}
	return score
}
