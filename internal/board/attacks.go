package board

var (
	knightAttacks [64]Bitboard
	kingAttacks   [64]Bitboard
	pawnAttacks   [2][64]Bitboard

	betweenBB [64][64]Bitboard // strictly between two aligned squares
	lineBB    [64][64]Bitboard // whole line through two aligned squares
)

func init() {
	initMagics()
	initLeapers()
	initLines()
}

func initLeapers() {
	for sq := A1; sq <= H8; sq++ {
		b := SquareBB(sq)

		knightAttacks[sq] = (b<<17)&NotFileA | (b<<15)&NotFileH |
			(b>>17)&NotFileH | (b>>15)&NotFileA |
			(b<<10)&NotFileAB | (b<<6)&NotFileGH |
			(b>>10)&NotFileGH | (b>>6)&NotFileAB

		kingAttacks[sq] = b.North() | b.South() | b.East() | b.West() |
			b.NorthEast() | b.NorthWest() | b.SouthEast() | b.SouthWest()

		pawnAttacks[White][sq] = b.NorthEast() | b.NorthWest()
		pawnAttacks[Black][sq] = b.SouthEast() | b.SouthWest()
	}
}

// initLines derives between/line masks from the slider tables, so it must
// run after initMagics.
func initLines() {
	for a := A1; a <= H8; a++ {
		for b := A1; b <= H8; b++ {
			if a == b {
				continue
			}
			ab, bb := SquareBB(a), SquareBB(b)
			switch {
			case BishopAttacks(a, 0)&bb != 0:
				lineBB[a][b] = (BishopAttacks(a, 0)&BishopAttacks(b, 0) | ab | bb)
				betweenBB[a][b] = BishopAttacks(a, bb) & BishopAttacks(b, ab)
			case RookAttacks(a, 0)&bb != 0:
				lineBB[a][b] = (RookAttacks(a, 0)&RookAttacks(b, 0) | ab | bb)
				betweenBB[a][b] = RookAttacks(a, bb) & RookAttacks(b, ab)
			}
		}
	}
}

// KnightAttacks returns the knight targets from sq.
func KnightAttacks(sq Square) Bitboard {
	return knightAttacks[sq]
}

// KingAttacks returns the king targets from sq.
func KingAttacks(sq Square) Bitboard {
	return kingAttacks[sq]
}

// PawnAttacks returns the squares a pawn of color c on sq attacks.
func PawnAttacks(sq Square, c Color) Bitboard {
	return pawnAttacks[c][sq]
}

// PawnAttacksBB returns every square attacked by the pawns in b.
func PawnAttacksBB(b Bitboard, c Color) Bitboard {
	if c == White {
		return b.NorthEast() | b.NorthWest()
	}
	return b.SouthEast() | b.SouthWest()
}

// Between returns the squares strictly between a and b, empty if not aligned.
func Between(a, b Square) Bitboard {
	return betweenBB[a][b]
}

// Line returns the full line through a and b, empty if not aligned.
func Line(a, b Square) Bitboard {
	return lineBB[a][b]
}

// Aligned reports whether c lies on the line through a and b.
func Aligned(a, b, c Square) bool {
	return lineBB[a][b]&SquareBB(c) != 0
}

// AttacksFrom returns the attack set of a piece of type pt on sq.
func AttacksFrom(pt PieceType, sq Square, c Color, occupied Bitboard) Bitboard {
	switch pt {
	case Pawn:
		return pawnAttacks[c][sq]
	case Knight:
		return knightAttacks[sq]
	case Bishop:
		return BishopAttacks(sq, occupied)
	case Rook:
		return RookAttacks(sq, occupied)
	case Queen:
		return QueenAttacks(sq, occupied)
	case King:
		return kingAttacks[sq]
	}
	return 0
}

// AttackersTo returns pieces of both colors attacking sq under occupied.
func (p *Position) AttackersTo(sq Square, occupied Bitboard) Bitboard {
	bishops := p.Pieces[White][Bishop] | p.Pieces[Black][Bishop] | p.Pieces[White][Queen] | p.Pieces[Black][Queen]
	rooks := p.Pieces[White][Rook] | p.Pieces[Black][Rook] | p.Pieces[White][Queen] | p.Pieces[Black][Queen]
	return pawnAttacks[Black][sq]&p.Pieces[White][Pawn] |
		pawnAttacks[White][sq]&p.Pieces[Black][Pawn] |
		knightAttacks[sq]&(p.Pieces[White][Knight]|p.Pieces[Black][Knight]) |
		kingAttacks[sq]&(p.Pieces[White][King]|p.Pieces[Black][King]) |
		BishopAttacks(sq, occupied)&bishops |
		RookAttacks(sq, occupied)&rooks
}

// AttackersByColor returns pieces of color c attacking sq under occupied.
func (p *Position) AttackersByColor(sq Square, c Color, occupied Bitboard) Bitboard {
	pc := &p.Pieces[c]
	return pawnAttacks[c.Other()][sq]&pc[Pawn] |
		knightAttacks[sq]&pc[Knight] |
		kingAttacks[sq]&pc[King] |
		BishopAttacks(sq, occupied)&(pc[Bishop]|pc[Queen]) |
		RookAttacks(sq, occupied)&(pc[Rook]|pc[Queen])
}

// IsAttacked reports whether sq is attacked by color by.
func (p *Position) IsAttacked(sq Square, by Color) bool {
	return p.AttackersByColor(sq, by, p.AllOccupied) != 0
}

// attackedBy returns every square attacked by color c.
func (p *Position) attackedBy(c Color) Bitboard {
	pc := &p.Pieces[c]
	occ := p.AllOccupied
	attacks := PawnAttacksBB(pc[Pawn], c) | kingAttacks[p.KingSquare[c]]
	for b := pc[Knight]; b != 0; {
		attacks |= knightAttacks[b.PopLSB()]
	}
	for b := pc[Bishop] | pc[Queen]; b != 0; {
		attacks |= BishopAttacks(b.PopLSB(), occ)
	}
	for b := pc[Rook] | pc[Queen]; b != 0; {
		attacks |= RookAttacks(b.PopLSB(), occ)
	}
	return attacks
}

// Pinned returns c's pieces pinned to c's king.
func (p *Position) Pinned(c Color) Bitboard {
	them := c.Other()
	ksq := p.KingSquare[c]
	snipers := RookAttacks(ksq, 0)&(p.Pieces[them][Rook]|p.Pieces[them][Queen]) |
		BishopAttacks(ksq, 0)&(p.Pieces[them][Bishop]|p.Pieces[them][Queen])

	var pinned Bitboard
	for snipers != 0 {
		blockers := Between(snipers.PopLSB(), ksq) & p.AllOccupied
		if blockers != 0 && !blockers.Several() && blockers&p.Occupied[c] != 0 {
			pinned |= blockers
		}
	}
	return pinned
}

// updateThreats refreshes Checkers and Threats for the side to move.
func (p *Position) updateThreats() {
	us := p.SideToMove
	p.Checkers = p.AttackersByColor(p.KingSquare[us], us.Other(), p.AllOccupied)
	p.Threats = p.attackedBy(us.Other())
}
