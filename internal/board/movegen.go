package board

import "math/bits"

type genKind uint8

const (
	genAll genKind = iota
	genNoisy
)

// GenerateLegalMoves fills ml with every legal move.
func (p *Position) GenerateLegalMoves(ml *MoveList) {
	ml.Clear()
	p.generate(ml, genAll)
}

// GenerateNoisy fills ml with legal captures and queen promotions.
// Quiescence uses it; evasions in check need GenerateLegalMoves.
func (p *Position) GenerateNoisy(ml *MoveList) {
	ml.Clear()
	p.generate(ml, genNoisy)
}

// HasLegalMoves reports whether the side to move can move at all.
func (p *Position) HasLegalMoves() bool {
	var ml MoveList
	p.generate(&ml, genAll)
	return ml.Len() > 0
}

// IsCheckmate reports a mated side to move.
func (p *Position) IsCheckmate() bool {
	return p.InCheck() && !p.HasLegalMoves()
}

// IsStalemate reports a side to move without moves and not in check.
func (p *Position) IsStalemate() bool {
	return !p.InCheck() && !p.HasLegalMoves()
}

func (p *Position) generate(ml *MoveList, kind genKind) {
	us, them := p.SideToMove, p.SideToMove.Other()
	ksq := p.KingSquare[us]
	occ := p.AllOccupied
	enemies := p.Occupied[them]

	targets := ^p.Occupied[us]
	if kind == genNoisy {
		targets = enemies
	}

	// King steps. Out of check Threats is exact; in check a slider's ray
	// continues through the king's square, so recompute without the king.
	kingTargets := kingAttacks[ksq] & targets
	if p.Checkers == 0 {
		kingTargets &^= p.Threats
		for kingTargets != 0 {
			ml.Add(NewMove(ksq, kingTargets.PopLSB(), FlagNone))
		}
	} else {
		occNoKing := occ &^ SquareBB(ksq)
		for kingTargets != 0 {
			to := kingTargets.PopLSB()
			if p.AttackersByColor(to, them, occNoKing) == 0 {
				ml.Add(NewMove(ksq, to, FlagNone))
			}
		}
	}

	// Double check: only the king may move.
	if p.Checkers.Several() {
		return
	}

	mask := Universe
	if p.Checkers != 0 {
		mask = Between(ksq, p.Checkers.LSB()) | p.Checkers
	} else if kind == genAll {
		p.generateCastling(ml)
	}

	pinned := p.Pinned(us)
	p.generatePawnMoves(ml, kind, mask, pinned)

	for pt := Knight; pt <= Queen; pt++ {
		for b := p.Pieces[us][pt]; b != 0; {
			from := b.PopLSB()
			t := AttacksFrom(pt, from, us, occ) & targets & mask
			if pinned&SquareBB(from) != 0 {
				t &= Line(ksq, from)
			}
			for t != 0 {
				ml.Add(NewMove(from, t.PopLSB(), FlagNone))
			}
		}
	}
}

// castlePath lists the squares that must be empty and the squares the
// king crosses, for white; black mirrors them.
var castlePath = [2]struct {
	right   CastlingRights
	flag    MoveFlag
	to      Square
	empty   Bitboard
	transit Bitboard
}{
	{WhiteKingSide, FlagCastleShort, G1, SquareBB(F1) | SquareBB(G1), SquareBB(F1) | SquareBB(G1)},
	{WhiteQueenSide, FlagCastleLong, C1, SquareBB(B1) | SquareBB(C1) | SquareBB(D1), SquareBB(C1) | SquareBB(D1)},
}

func (p *Position) generateCastling(ml *MoveList) {
	us := p.SideToMove
	for _, c := range castlePath {
		right, to, empty, transit := c.right, c.to, c.empty, c.transit
		if us == Black {
			right <<= 2
			to = to.Mirror()
			empty = flipVertical(empty)
			transit = flipVertical(transit)
		}
		if p.CastlingRights&right == 0 || p.AllOccupied&empty != 0 || p.Threats&transit != 0 {
			continue
		}
		ml.Add(NewMove(p.KingSquare[us], to, c.flag))
	}
}

func flipVertical(b Bitboard) Bitboard {
	return Bitboard(bits.ReverseBytes64(uint64(b)))
}

func (p *Position) generatePawnMoves(ml *MoveList, kind genKind, mask, pinned Bitboard) {
	us, them := p.SideToMove, p.SideToMove.Other()
	ksq := p.KingSquare[us]
	enemies := p.Occupied[them]
	up := 8
	if us == Black {
		up = -8
	}

	for b := p.Pieces[us][Pawn]; b != 0; {
		from := b.PopLSB()
		allowed := mask
		if pinned&SquareBB(from) != 0 {
			allowed &= Line(ksq, from)
		}
		promoting := from.RelativeRank(us) == 6

		for caps := pawnAttacks[us][from] & enemies & allowed; caps != 0; {
			to := caps.PopLSB()
			if promoting {
				addPromotions(ml, from, to, kind)
			} else {
				ml.Add(NewMove(from, to, FlagNone))
			}
		}

		one := Square(int(from) + up)
		if p.Board[one] == NoPiece {
			switch {
			case promoting:
				if allowed.IsSet(one) {
					addPromotions(ml, from, one, kind)
				}
			case kind == genAll:
				if allowed.IsSet(one) {
					ml.Add(NewMove(from, one, FlagNone))
				}
				if from.RelativeRank(us) == 1 {
					two := Square(int(one) + up)
					if p.Board[two] == NoPiece && allowed.IsSet(two) {
						ml.Add(NewMove(from, two, FlagNone))
					}
				}
			}
		}

		if ep := p.EnPassant; ep != NoSquare && pawnAttacks[us][from].IsSet(ep) && p.legalEnPassant(from, ep, mask) {
			ml.Add(NewMove(from, ep, FlagEnPassant))
		}
	}
}

// legalEnPassant replays the capture on the occupancy. Two pieces leave
// the board at once, which the pin mask cannot describe (rank pins).
func (p *Position) legalEnPassant(from, ep Square, mask Bitboard) bool {
	capSq := ep ^ 8
	if p.Checkers != 0 && mask&(SquareBB(ep)|SquareBB(capSq)) == 0 {
		return false
	}
	us, them := p.SideToMove, p.SideToMove.Other()
	ksq := p.KingSquare[us]
	occ := p.AllOccupied ^ SquareBB(from) ^ SquareBB(capSq) | SquareBB(ep)
	rooks := p.Pieces[them][Rook] | p.Pieces[them][Queen]
	bishops := p.Pieces[them][Bishop] | p.Pieces[them][Queen]
	return RookAttacks(ksq, occ)&rooks == 0 && BishopAttacks(ksq, occ)&bishops == 0
}

func addPromotions(ml *MoveList, from, to Square, kind genKind) {
	ml.Add(NewMove(from, to, FlagPromoQueen))
	if kind == genNoisy {
		return
	}
	ml.Add(NewMove(from, to, FlagPromoKnight))
	ml.Add(NewMove(from, to, FlagPromoRook))
	ml.Add(NewMove(from, to, FlagPromoBishop))
}
