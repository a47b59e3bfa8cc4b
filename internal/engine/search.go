package engine

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hailam/noxchess/internal/board"
)

// Search constants
const (
	Infinity     = 32000
	MateScore    = 31000
	MaxPly       = 128
	MateInMaxPly = MateScore - MaxPly

	noEval = -Infinity
)

// lmrTable[depth][moveIndex] is the late-move reduction before adjustments.
var lmrTable [64][64]int

func init() {
	for d := 1; d < 64; d++ {
		for m := 1; m < 64; m++ {
			lmrTable[d][m] = int(0.40*math.Log(float64(d))*math.Log(float64(m)) + 0.76)
		}
	}
}

func lmr(depth, moveCount int) int {
	return lmrTable[min(depth, 63)][min(moveCount, 63)]
}

// PVTable is the triangular principal variation table.
type PVTable struct {
	length [MaxPly + 1]int
	moves  [MaxPly + 1][MaxPly + 1]board.Move
}

func (pv *PVTable) init(ply int) {
	pv.length[ply] = ply
}

// update makes m followed by the child's line the line at ply.
func (pv *PVTable) update(ply int, m board.Move) {
	pv.moves[ply][ply] = m
	next := max(pv.length[ply+1], ply+1)
	copy(pv.moves[ply][ply+1:next], pv.moves[ply+1][ply+1:next])
	pv.length[ply] = next
}

// line returns a copy of the root line.
func (pv *PVTable) line() []board.Move {
	return append([]board.Move(nil), pv.moves[0][:pv.length[0]]...)
}

// Info is a progress report, sent after every completed iteration.
type Info struct {
	Depth    int
	SelDepth int
	Nodes    uint64
	Time     time.Duration
	NPS      uint64
	HashFull int // permille
	Score    int
	Bound    TTFlag // TTExact, or the failed side of an aspiration window
	PV       []board.Move
}

// Result is the outcome of a finished search.
type Result struct {
	Move   board.Move // NullMove when the root has no legal move
	Ponder board.Move
	Score  int
	Depth  int
	Nodes  uint64
	PV     []board.Move
}

// IsMate reports whether score announces a forced mate, and in how many
// moves. Negative moves mean the side to move is mated.
func IsMate(score int) (moves int, ok bool) {
	switch {
	case score >= MateInMaxPly:
		return (MateScore - score + 1) / 2, true
	case score <= -MateInMaxPly:
		return -(MateScore + score) / 2, true
	}
	return 0, false
}

// FormatScore renders a score in UCI form: "cp 23" or "mate -2".
func FormatScore(score int) string {
	if n, ok := IsMate(score); ok {
		return fmt.Sprintf("mate %d", n)
	}
	return fmt.Sprintf("cp %d", score)
}

// FormatPV joins moves in UCI notation.
func FormatPV(pv []board.Move) string {
	parts := make([]string, len(pv))
	for i, m := range pv {
		parts[i] = m.String()
	}
	return strings.Join(parts, " ")
}

// Helper threads skip some depths so the pool spreads over several
// iteration depths instead of all searching the same one.
var (
	skipSize  = [20]int{1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 3, 3, 4, 4, 4, 4, 4, 4, 4, 4}
	skipPhase = [20]int{0, 1, 0, 1, 2, 3, 0, 1, 2, 3, 4, 5, 0, 1, 2, 3, 4, 5, 6, 7}
)

const aspirationDelta = 20

// search runs iterative deepening on the worker's root. Only completed
// iterations are committed to w.completed. The main worker also drives
// the clock, reports progress and finishes the search for the pool.
func (w *Worker) search() {
	e := w.eng
	limits := e.limits
	maxDepth := MaxPly - 1
	if limits.Depth > 0 {
		maxDepth = min(limits.Depth, maxDepth)
	}

	// Fallback for a stop before depth 1 completes.
	tte, _ := e.tt.Probe(w.pos.Hash)
	var mp MovePicker
	mp.init(w.pos, &orderContext{hist: w.hist, ttMove: tte.Move, c1: w.hist.nullRow(), c2: w.hist.nullRow()})
	first, _, ok := mp.next()
	if !ok {
		if w.pos.InCheck() {
			w.completed.Score = -MateScore
		}
		if w.isMain() {
			e.finish(w)
		}
		return
	}
	w.completed.Move = first
	w.completed.PV = []board.Move{first}

	stability := 0
	for depth := 1; depth <= maxDepth; depth++ {
		if !w.isMain() {
			i := (w.id - 1) % len(skipSize)
			if ((depth+skipPhase[i])/skipSize[i])%2 != 0 {
				continue
			}
		}

		score, pv, ok := w.aspiration(depth)
		if !ok {
			break
		}

		if len(pv) > 0 && pv[0] == w.completed.Move {
			stability++
		} else {
			stability = 0
		}
		if len(pv) == 0 {
			pv = []board.Move{w.completed.Move}
		}
		w.completed = Result{Move: pv[0], Score: score, Depth: depth, PV: pv}
		if len(pv) > 1 {
			w.completed.Ponder = pv[1]
		}

		if !w.isMain() {
			continue
		}
		e.report(w, depth, score, TTExact, pv)

		if n, mate := IsMate(score); mate && limits.Mate > 0 && n > 0 && n <= limits.Mate {
			break
		}
		if e.tm.StopIteration(stability) {
			break
		}
	}

	if w.isMain() {
		e.finish(w)
	}
}

// aspiration searches depth with a window around the last score,
// widening it on every fail. ok is false if the search was stopped.
func (w *Worker) aspiration(depth int) (score int, pv []board.Move, ok bool) {
	alpha, beta := -Infinity, Infinity
	delta := aspirationDelta
	if depth >= 4 {
		alpha = max(w.completed.Score-delta, -Infinity)
		beta = min(w.completed.Score+delta, Infinity)
	}
	failHigh := 0
	for {
		w.selDepth = 0
		s := w.negamax(max(depth-failHigh, 1), 0, alpha, beta, false)
		if w.stopped() {
			return 0, nil, false
		}
		switch {
		case s <= alpha:
			beta = (alpha + beta) / 2
			alpha = max(s-delta, -Infinity)
			failHigh = 0
			if w.isMain() && w.eng.tm.Elapsed() > 3*time.Second {
				w.eng.report(w, depth, s, TTUpperBound, w.pv.line())
			}
		case s >= beta:
			beta = min(s+delta, Infinity)
			failHigh++
			if w.isMain() && w.eng.tm.Elapsed() > 3*time.Second {
				w.eng.report(w, depth, s, TTLowerBound, w.pv.line())
			}
		default:
			return s, w.pv.line(), true
		}
		delta += delta / 2
	}
}
