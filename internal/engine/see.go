package engine

import (
	"github.com/hailam/noxchess/internal/board"
)

// seeValue is indexed by piece type. NoPieceType scores zero.
var seeValue = [7]int{100, 300, 300, 500, 900, 0, 0}

// pins returns c's pieces pinned to c's king and the enemy sliders pinning them.
func pins(pos *board.Position, c board.Color) (pinned, pinners board.Bitboard) {
	them := c.Other()
	ksq := pos.KingSquare[c]
	snipers := board.RookAttacks(ksq, 0)&(pos.Pieces[them][board.Rook]|pos.Pieces[them][board.Queen]) |
		board.BishopAttacks(ksq, 0)&(pos.Pieces[them][board.Bishop]|pos.Pieces[them][board.Queen])
	for snipers != 0 {
		s := snipers.PopLSB()
		b := board.Between(s, ksq) & pos.AllOccupied
		if b != 0 && !b.Several() && b&pos.Occupied[c] != 0 {
			pinned |= b
			pinners |= board.SquareBB(s)
		}
	}
	return pinned, pinners
}

// SEE reports whether the exchange sequence started by m on its
// destination nets at least threshold for the side to move. Attackers
// recapture least valuable first. A pinned piece may not recapture while
// its pinner is still on the board, and a pawn reaching the last rank
// recaptures as a queen.
func SEE(pos *board.Position, m board.Move, threshold int) bool {
	if m.IsCastling() {
		return threshold <= 0
	}
	from, to := m.From(), m.To()
	us := pos.SideToMove

	var gain [40]int
	gain[0] = seeValue[pos.CapturedType(m)]
	victim := seeValue[pos.MovedPiece(m).Type()]
	if m.IsPromotion() {
		gain[0] += seeValue[m.Promotion()] - seeValue[board.Pawn]
		victim = seeValue[m.Promotion()]
	}

	occ := pos.AllOccupied &^ board.SquareBB(from) &^ board.SquareBB(to)
	if m.IsEnPassant() {
		occ &^= board.SquareBB(to ^ 8)
	}

	var pinned, pinners [2]board.Bitboard
	pinned[board.White], pinners[board.White] = pins(pos, board.White)
	pinned[board.Black], pinners[board.Black] = pins(pos, board.Black)

	diag := pos.Pieces[board.White][board.Bishop] | pos.Pieces[board.Black][board.Bishop] |
		pos.Pieces[board.White][board.Queen] | pos.Pieces[board.Black][board.Queen]
	straight := pos.Pieces[board.White][board.Rook] | pos.Pieces[board.Black][board.Rook] |
		pos.Pieces[board.White][board.Queen] | pos.Pieces[board.Black][board.Queen]

	attackers := pos.AttackersTo(to, occ) & occ
	side := us
	d := 0
	for {
		side = side.Other()
		own := attackers & pos.Occupied[side]
		if pinners[side]&occ != 0 {
			own &^= pinned[side]
		}
		if own == 0 {
			break
		}

		var pt board.PieceType
		var bb board.Bitboard
		for pt = board.Pawn; pt <= board.King; pt++ {
			if bb = own & pos.Pieces[side][pt]; bb != 0 {
				break
			}
		}
		// The king may only take last.
		if pt == board.King && attackers&pos.Occupied[side.Other()] != 0 {
			break
		}

		d++
		gain[d] = victim - gain[d-1]
		victim = seeValue[pt]
		if pt == board.Pawn && to.RelativeRank(side) == 7 {
			gain[d] += seeValue[board.Queen] - seeValue[board.Pawn]
			victim = seeValue[board.Queen]
		}
		if max(-gain[d-1], gain[d]) < 0 || d == len(gain)-1 {
			break
		}

		occ &^= board.SquareBB(bb.LSB())
		attackers |= board.BishopAttacks(to, occ)&diag | board.RookAttacks(to, occ)&straight
		attackers &= occ
	}

	for ; d > 0; d-- {
		gain[d-1] = -max(-gain[d-1], gain[d])
	}
	return gain[0] >= threshold
}
