package engine

import (
	"github.com/hailam/noxchess/internal/board"
)

// Move ordering priorities
const (
	TTMoveScore      = 1_000_000
	QueenPromoScore  = 700_000
	GoodCaptureScore = 600_000
	BadCaptureScore  = -200_000
	KillerBonus      = 22_000
	CounterBonus     = 16_000
	PositionalBonus  = 16_000
)

// MovePicker hands out moves best first. Scores are computed once; the
// pick is a selection sort step, so a cutoff after the first few moves
// leaves the rest unsorted.
type MovePicker struct {
	moves  board.MoveList
	scores [board.MaxMoves]int
	idx    int
}

// orderContext is what the picker needs to know about the node.
type orderContext struct {
	hist                        *History
	ttMove                      board.Move
	killer, counter, positional board.Move
	c1, c2                      *contHist
	noisy                       bool
}

// init generates and scores the moves of pos.
func (mp *MovePicker) init(pos *board.Position, oc *orderContext) {
	if oc.noisy {
		pos.GenerateNoisy(&mp.moves)
	} else {
		pos.GenerateLegalMoves(&mp.moves)
	}
	mp.idx = 0
	for i, m := range mp.moves.Slice() {
		mp.scores[i] = scoreMove(pos, m, oc)
	}
}

// next returns the best remaining move, or false when exhausted.
func (mp *MovePicker) next() (board.Move, int, bool) {
	n := mp.moves.Len()
	if mp.idx >= n {
		return board.NullMove, 0, false
	}
	best := mp.idx
	for i := mp.idx + 1; i < n; i++ {
		if mp.scores[i] > mp.scores[best] {
			best = i
		}
	}
	mp.moves.Swap(mp.idx, best)
	mp.scores[mp.idx], mp.scores[best] = mp.scores[best], mp.scores[mp.idx]
	m, s := mp.moves.Get(mp.idx), mp.scores[mp.idx]
	mp.idx++
	return m, s, true
}

// count returns how many moves were generated.
func (mp *MovePicker) count() int {
	return mp.moves.Len()
}

func scoreMove(pos *board.Position, m board.Move, oc *orderContext) int {
	if m == oc.ttMove {
		return TTMoveScore
	}
	captured := pos.CapturedType(m)
	if m.Flag() == board.FlagPromoQueen {
		return QueenPromoScore + seeValue[captured]
	}
	if captured != board.NoPieceType {
		hist := oc.hist.captureScore(pos, m)
		base := GoodCaptureScore
		if !oc.noisy {
			threshold := -hist / 32
			if m.IsPromotion() {
				threshold = 0
			}
			if !SEE(pos, m, threshold) {
				base = BadCaptureScore
			}
		}
		return base + 16*seeValue[captured] + hist
	}

	score := oc.hist.quietScore(pos, m, oc.c1, oc.c2)
	switch m {
	case oc.killer:
		score += KillerBonus
	case oc.counter:
		score += CounterBonus
	case oc.positional:
		score += PositionalBonus
	}
	return score
}
