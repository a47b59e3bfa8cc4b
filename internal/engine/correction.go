package engine

import (
	"github.com/hailam/noxchess/internal/board"
)

const (
	corrSize  = 16384
	corrMask  = corrSize - 1
	corrGrain = 256
	corrScale = 256
	corrMax   = corrGrain * 32
)

// CorrectionHistory learns how far the static evaluation tends to be from
// search results for similar pawn and piece configurations, and shifts
// future static evaluations by that error.
type CorrectionHistory struct {
	pawn    [2][corrSize]int32
	nonPawn [2][2][corrSize]int32
}

// Clear resets all correction values.
func (ch *CorrectionHistory) Clear() {
	*ch = CorrectionHistory{}
}

func (ch *CorrectionHistory) entries(pos *board.Position) [3]*int32 {
	stm := pos.SideToMove
	return [3]*int32{
		&ch.pawn[stm][pos.PawnKey&corrMask],
		&ch.nonPawn[stm][board.White][pos.NonPawnKey[board.White]&corrMask],
		&ch.nonPawn[stm][board.Black][pos.NonPawnKey[board.Black]&corrMask],
	}
}

// Update moves the entries towards score-raw, weighted by depth.
func (ch *CorrectionHistory) Update(pos *board.Position, raw, score, depth int) {
	diff := (score - raw) * corrGrain
	weight := min(depth+1, 16)
	for _, e := range ch.entries(pos) {
		v := (int(*e)*(corrScale-weight) + diff*weight) / corrScale
		*e = int32(clamp(v, -corrMax, corrMax))
	}
}

// Apply returns raw shifted by the learned error, kept clear of mate scores.
func (ch *CorrectionHistory) Apply(pos *board.Position, raw int) int {
	e := ch.entries(pos)
	corr := int(*e[0]) + (int(*e[1])+int(*e[2]))/2
	return clamp(raw+corr/corrGrain, -MateInMaxPly+1, MateInMaxPly-1)
}
