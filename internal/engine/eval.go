// Package engine implements the search: transposition table, move ordering,
// the alpha-beta core and the lazy SMP worker pool.
package engine

import (
	"github.com/hailam/noxchess/internal/board"
)

// Evaluator scores a position from the side to move's point of view.
// It must be deterministic. Each worker owns one, so implementations may
// keep unsynchronised caches.
type Evaluator interface {
	Evaluate(pos *board.Position) int
}

// Evaluation constants
const (
	PawnValue   = 100
	KnightValue = 320
	BishopValue = 330
	RookValue   = 500
	QueenValue  = 900
)

var pieceValues = [7]int{PawnValue, KnightValue, BishopValue, RookValue, QueenValue, 0, 0}

// Passed pawn bonus by relative rank.
var passedPawnBonus = [8]int{0, 10, 15, 25, 45, 75, 120, 0}

var mobilityMgWeight = [6]int{0, 4, 5, 2, 1, 0}
var mobilityEgWeight = [6]int{0, 3, 4, 4, 2, 0}

const (
	bishopPairMg = 25
	bishopPairEg = 50

	rookOpenFileMg     = 20
	rookOpenFileEg     = 25
	rookSemiOpenFileMg = 10
	rookSemiOpenFileEg = 15

	doubledPawnMg  = -15
	doubledPawnEg  = -20
	isolatedPawnMg = -20
	isolatedPawnEg = -25
	backwardPawnMg = -15
	backwardPawnEg = -10

	passedFreePathEg = 30

	tempoBonus = 10
	maxPhase   = 24
)

// Piece-square tables, rank 8 on the first row as printed. White squares
// are mirrored before lookup.
var pawnPST = [64]int{
	0, 0, 0, 0, 0, 0, 0, 0,
	50, 50, 50, 50, 50, 50, 50, 50,
	10, 10, 20, 30, 30, 20, 10, 10,
	5, 5, 10, 25, 25, 10, 5, 5,
	0, 0, 0, 20, 20, 0, 0, 0,
	5, -5, -10, 0, 0, -10, -5, 5,
	5, 10, 10, -20, -20, 10, 10, 5,
	0, 0, 0, 0, 0, 0, 0, 0,
}

var knightPST = [64]int{
	-50, -40, -30, -30, -30, -30, -40, -50,
	-40, -20, 0, 0, 0, 0, -20, -40,
	-30, 0, 10, 15, 15, 10, 0, -30,
	-30, 5, 15, 20, 20, 15, 5, -30,
	-30, 0, 15, 20, 20, 15, 0, -30,
	-30, 5, 10, 15, 15, 10, 5, -30,
	-40, -20, 0, 5, 5, 0, -20, -40,
	-50, -40, -30, -30, -30, -30, -40, -50,
}

var bishopPST = [64]int{
	-20, -10, -10, -10, -10, -10, -10, -20,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-10, 0, 5, 10, 10, 5, 0, -10,
	-10, 5, 5, 10, 10, 5, 5, -10,
	-10, 0, 10, 10, 10, 10, 0, -10,
	-10, 10, 10, 10, 10, 10, 10, -10,
	-10, 5, 0, 0, 0, 0, 5, -10,
	-20, -10, -10, -10, -10, -10, -10, -20,
}

var rookPST = [64]int{
	0, 0, 0, 0, 0, 0, 0, 0,
	5, 10, 10, 10, 10, 10, 10, 5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	0, 0, 0, 5, 5, 0, 0, 0,
}

var queenPST = [64]int{
	-20, -10, -10, -5, -5, -10, -10, -20,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-10, 0, 5, 5, 5, 5, 0, -10,
	-5, 0, 5, 5, 5, 5, 0, -5,
	0, 0, 5, 5, 5, 5, 0, -5,
	-10, 5, 5, 5, 5, 5, 0, -10,
	-10, 0, 5, 0, 0, 0, 0, -10,
	-20, -10, -10, -5, -5, -10, -10, -20,
}

var kingMidgamePST = [64]int{
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-20, -30, -30, -40, -40, -30, -30, -20,
	-10, -20, -20, -20, -20, -20, -20, -10,
	20, 20, 0, 0, 0, 0, 20, 20,
	20, 30, 10, 0, 0, 10, 30, 20,
}

var kingEndgamePST = [64]int{
	-50, -40, -30, -20, -20, -30, -40, -50,
	-30, -20, -10, 0, 0, -10, -20, -30,
	-30, -10, 20, 30, 30, 20, -10, -30,
	-30, -10, 30, 40, 40, 30, -10, -30,
	-30, -10, 30, 40, 40, 30, -10, -30,
	-30, -10, 20, 30, 30, 20, -10, -30,
	-30, -30, 0, 0, 0, 0, -30, -30,
	-50, -30, -30, -30, -30, -30, -30, -50,
}

var psts = [...][64]int{pawnPST, knightPST, bishopPST, rookPST, queenPST}

var phaseWeight = [6]int{0, 1, 1, 2, 4, 0}

// Classical is the hand-written tapered evaluation.
type Classical struct {
	pawns *PawnTable
}

// NewClassical returns an evaluator with its own pawn structure cache.
func NewClassical() *Classical {
	return &Classical{pawns: NewPawnTable(1 << 14)}
}

// Evaluate implements Evaluator.
func (e *Classical) Evaluate(pos *board.Position) int {
	var mg, eg, phase int

	for c := board.White; c <= board.Black; c++ {
		sign := 1
		if c == board.Black {
			sign = -1
		}
		for pt := board.Pawn; pt <= board.King; pt++ {
			for bb := pos.Pieces[c][pt]; bb != 0; {
				sq := bb.PopLSB()
				idx := sq
				if c == board.White {
					idx = sq.Mirror()
				}
				mg += sign * pieceValues[pt]
				eg += sign * pieceValues[pt]
				if pt == board.King {
					mg += sign * kingMidgamePST[idx]
					eg += sign * kingEndgamePST[idx]
				} else {
					mg += sign * psts[pt][idx]
					eg += sign * psts[pt][idx]
				}
				phase += phaseWeight[pt]
			}
		}
	}

	pmg, peg := e.pawnStructure(pos)
	mg += pmg
	eg += peg

	mmg, meg := evaluateMobility(pos)
	mg += mmg
	eg += meg

	bmg, beg := evaluatePieces(pos)
	mg += bmg
	eg += beg

	eg += evaluatePassedPaths(pos)

	phase = min(phase, maxPhase)
	score := (mg*phase + eg*(maxPhase-phase)) / maxPhase
	if pos.SideToMove == board.Black {
		score = -score
	}
	score += tempoBonus

	// Drawish material: scale towards zero.
	if pos.IsInsufficientMaterial() {
		return 0
	}
	if pos.Pieces[board.White][board.Pawn]|pos.Pieces[board.Black][board.Pawn] == 0 && abs(materialBalance(pos)) < RookValue-KnightValue+50 {
		score /= 4
	}
	return score
}

func materialBalance(pos *board.Position) int {
	score := 0
	for pt := board.Pawn; pt < board.King; pt++ {
		score += (pos.Pieces[board.White][pt].PopCount() - pos.Pieces[board.Black][pt].PopCount()) * pieceValues[pt]
	}
	return score
}

// pawnStructure returns the white-relative pawn terms, cached by pawn key.
func (e *Classical) pawnStructure(pos *board.Position) (mg, eg int) {
	if mg, eg, ok := e.pawns.Probe(pos.PawnKey); ok {
		return mg, eg
	}
	mg, eg = evaluatePawnStructure(pos)
	e.pawns.Store(pos.PawnKey, mg, eg)
	return mg, eg
}

func adjacentFiles(file int) board.Bitboard {
	var b board.Bitboard
	if file > 0 {
		b |= board.FileMask[file-1]
	}
	if file < 7 {
		b |= board.FileMask[file+1]
	}
	return b
}

// frontSpan returns the squares ahead of sq on its file from c's view.
func frontSpan(sq board.Square, c board.Color) board.Bitboard {
	b := board.SquareBB(sq)
	if c == board.White {
		return b.NorthFill() &^ b
	}
	return b.SouthFill() &^ b
}

func isPassedPawn(pos *board.Position, sq board.Square, c board.Color) bool {
	f := sq.File()
	zone := (board.FileMask[f] | adjacentFiles(f)) & rankSpan(sq, c)
	return pos.Pieces[c.Other()][board.Pawn]&zone == 0
}

// rankSpan is every square on ranks ahead of sq from c's view.
func rankSpan(sq board.Square, c board.Color) board.Bitboard {
	r := board.RankMask[sq.Rank()]
	if c == board.White {
		return r.NorthFill() &^ r
	}
	return r.SouthFill() &^ r
}

func evaluatePawnStructure(pos *board.Position) (mg, eg int) {
	for c := board.White; c <= board.Black; c++ {
		sign := 1
		if c == board.Black {
			sign = -1
		}
		own := pos.Pieces[c][board.Pawn]
		enemy := pos.Pieces[c.Other()][board.Pawn]

		for pawns := own; pawns != 0; {
			sq := pawns.PopLSB()
			file := sq.File()
			adj := adjacentFiles(file)

			if frontSpan(sq, c)&own != 0 {
				mg += sign * doubledPawnMg
				eg += sign * doubledPawnEg
			}

			if own&adj == 0 {
				mg += sign * isolatedPawnMg
				eg += sign * isolatedPawnEg
			} else if own&adj&^rankSpan(sq, c) == 0 {
				// Every neighbour is ahead. Backward if the stop square is
				// covered by an enemy pawn.
				stop := board.Square(int(sq) + 8)
				if c == board.Black {
					stop = board.Square(int(sq) - 8)
				}
				if board.PawnAttacks(stop, c)&enemy != 0 {
					mg += sign * backwardPawnMg
					eg += sign * backwardPawnEg
				}
			}

			if isPassedPawn(pos, sq, c) {
				bonus := passedPawnBonus[sq.RelativeRank(c)]
				mg += sign * bonus
				eg += sign * bonus * 2
			}
		}
	}
	return mg, eg
}

// evaluatePassedPaths rewards passers whose path is empty. It depends on
// pieces, so it stays out of the pawn cache.
func evaluatePassedPaths(pos *board.Position) int {
	score := 0
	for c := board.White; c <= board.Black; c++ {
		sign := 1
		if c == board.Black {
			sign = -1
		}
		for pawns := pos.Pieces[c][board.Pawn]; pawns != 0; {
			sq := pawns.PopLSB()
			if isPassedPawn(pos, sq, c) && frontSpan(sq, c)&pos.AllOccupied == 0 {
				score += sign * passedFreePathEg * sq.RelativeRank(c) / 3
			}
		}
	}
	return score
}

func evaluateMobility(pos *board.Position) (mg, eg int) {
	occ := pos.AllOccupied
	for c := board.White; c <= board.Black; c++ {
		sign := 1
		if c == board.Black {
			sign = -1
		}
		blocked := board.PawnAttacksBB(pos.Pieces[c.Other()][board.Pawn], c.Other()) | pos.Occupied[c]
		for pt := board.Knight; pt <= board.Queen; pt++ {
			for bb := pos.Pieces[c][pt]; bb != 0; {
				n := (board.AttacksFrom(pt, bb.PopLSB(), c, occ) &^ blocked).PopCount()
				mg += sign * mobilityMgWeight[pt] * n
				eg += sign * mobilityEgWeight[pt] * n
			}
		}
	}
	return mg, eg
}

// evaluatePieces covers the bishop pair and rooks on open files.
func evaluatePieces(pos *board.Position) (mg, eg int) {
	for c := board.White; c <= board.Black; c++ {
		sign := 1
		if c == board.Black {
			sign = -1
		}
		if pos.Pieces[c][board.Bishop].Several() {
			mg += sign * bishopPairMg
			eg += sign * bishopPairEg
		}
		own := pos.Pieces[c][board.Pawn]
		enemy := pos.Pieces[c.Other()][board.Pawn]
		for rooks := pos.Pieces[c][board.Rook]; rooks != 0; {
			file := board.FileMask[rooks.PopLSB().File()]
			if own&file != 0 {
				continue
			}
			if enemy&file == 0 {
				mg += sign * rookOpenFileMg
				eg += sign * rookOpenFileEg
			} else {
				mg += sign * rookSemiOpenFileMg
				eg += sign * rookSemiOpenFileEg
			}
		}
	}
	return mg, eg
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
