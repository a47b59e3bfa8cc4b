package board

import (
	"fmt"
	"strings"
)

// Debug turns invariant violations into panics. Tests switch it on.
var Debug = false

// CastlingRights holds the four independent castling flags.
type CastlingRights uint8

const (
	WhiteKingSide CastlingRights = 1 << iota
	WhiteQueenSide
	BlackKingSide
	BlackQueenSide
	NoCastling  CastlingRights = 0
	AllCastling                = WhiteKingSide | WhiteQueenSide | BlackKingSide | BlackQueenSide
)

func (cr CastlingRights) String() string {
	if cr == NoCastling {
		return "-"
	}
	var sb strings.Builder
	for i, c := range "KQkq" {
		if cr&(1<<i) != 0 {
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

// castlingKeep[sq] is ANDed into the rights whenever a move touches sq.
var castlingKeep [64]CastlingRights

func init() {
	for sq := range castlingKeep {
		castlingKeep[sq] = AllCastling
	}
	castlingKeep[E1] &^= WhiteKingSide | WhiteQueenSide
	castlingKeep[H1] &^= WhiteKingSide
	castlingKeep[A1] &^= WhiteQueenSide
	castlingKeep[E8] &^= BlackKingSide | BlackQueenSide
	castlingKeep[H8] &^= BlackKingSide
	castlingKeep[A8] &^= BlackQueenSide
}

// Position is the full board state for one node of the search line.
type Position struct {
	Pieces      [2][6]Bitboard
	Occupied    [2]Bitboard
	AllOccupied Bitboard

	// Board mirrors Pieces square by square.
	Board [64]Piece

	SideToMove     Color
	CastlingRights CastlingRights
	EnPassant      Square
	HalfMoveClock  int
	FullMoveNumber int

	Hash       uint64
	PawnKey    uint64
	NonPawnKey [2]uint64

	KingSquare [2]Square
	Checkers   Bitboard
	// Threats holds every square attacked by the side not to move.
	Threats Bitboard
}

// Undo records what MakeMove changed so UnmakeMove can restore it.
type Undo struct {
	Captured       Piece
	CastlingRights CastlingRights
	EnPassant      Square
	HalfMoveClock  int
	Hash           uint64
	PawnKey        uint64
	NonPawnKey     [2]uint64
	Checkers       Bitboard
	Threats        Bitboard
}

// NullUndo restores a null move.
type NullUndo struct {
	EnPassant     Square
	HalfMoveClock int
	Hash          uint64
	Checkers      Bitboard
	Threats       Bitboard
}

// NewPosition returns the standard starting position.
func NewPosition() *Position {
	pos, err := ParseFEN(StartFEN)
	if err != nil {
		panic(err)
	}
	return pos
}

// Copy returns an independent copy. Position holds no pointers.
func (p *Position) Copy() *Position {
	c := *p
	return &c
}

// PieceAt returns the piece on sq or NoPiece.
func (p *Position) PieceAt(sq Square) Piece {
	return p.Board[sq]
}

// MovedPiece returns the piece making move m.
func (p *Position) MovedPiece(m Move) Piece {
	return p.Board[m.From()]
}

// CapturedType returns the type taken by m, NoPieceType for non-captures.
func (p *Position) CapturedType(m Move) PieceType {
	if m.IsEnPassant() {
		return Pawn
	}
	if m.IsCastling() {
		return NoPieceType
	}
	return p.Board[m.To()].Type()
}

// IsCapture reports whether m removes an enemy piece.
func (p *Position) IsCapture(m Move) bool {
	return m.IsEnPassant() || (!m.IsCastling() && p.Board[m.To()] != NoPiece)
}

// IsQuiet reports a move that neither captures nor promotes.
func (p *Position) IsQuiet(m Move) bool {
	return !p.IsCapture(m) && !m.IsPromotion()
}

// InCheck reports whether the side to move is in check.
func (p *Position) InCheck() bool {
	return p.Checkers != 0
}

// HasNonPawnMaterial reports whether c owns a knight, bishop, rook or queen.
func (p *Position) HasNonPawnMaterial(c Color) bool {
	return p.Occupied[c]&^(p.Pieces[c][Pawn]|p.Pieces[c][King]) != 0
}

func (p *Position) addPiece(pc Piece, sq Square) {
	c, pt := pc.Color(), pc.Type()
	b := SquareBB(sq)
	p.Pieces[c][pt] |= b
	p.Occupied[c] |= b
	p.AllOccupied |= b
	p.Board[sq] = pc
	if pt == King {
		p.KingSquare[c] = sq
	}
}

func (p *Position) delPiece(sq Square) Piece {
	pc := p.Board[sq]
	c, pt := pc.Color(), pc.Type()
	b := SquareBB(sq)
	p.Pieces[c][pt] &^= b
	p.Occupied[c] &^= b
	p.AllOccupied &^= b
	p.Board[sq] = NoPiece
	return pc
}

func (p *Position) shiftPiece(from, to Square) {
	pc := p.Board[from]
	c, pt := pc.Color(), pc.Type()
	b := SquareBB(from) | SquareBB(to)
	p.Pieces[c][pt] ^= b
	p.Occupied[c] ^= b
	p.AllOccupied ^= b
	p.Board[from] = NoPiece
	p.Board[to] = pc
	if pt == King {
		p.KingSquare[c] = to
	}
}

// hashPiece toggles pc on sq in every incremental key.
func (p *Position) hashPiece(pc Piece, sq Square) {
	key := zobristPiece[pc][sq]
	p.Hash ^= key
	if pc.Type() == Pawn {
		p.PawnKey ^= key
	} else {
		p.NonPawnKey[pc.Color()] ^= key
	}
}

// CastlingRookSquares returns the rook's source and target for a castling move.
func CastlingRookSquares(c Color, flag MoveFlag) (from, to Square) {
	if flag == FlagCastleShort {
		from, to = H1, F1
	} else {
		from, to = A1, D1
	}
	if c == Black {
		from, to = from.Mirror(), to.Mirror()
	}
	return from, to
}

// MakeMove plays m, which must be legal, and returns the undo record.
func (p *Position) MakeMove(m Move) Undo {
	u := Undo{
		Captured:       NoPiece,
		CastlingRights: p.CastlingRights,
		EnPassant:      p.EnPassant,
		HalfMoveClock:  p.HalfMoveClock,
		Hash:           p.Hash,
		PawnKey:        p.PawnKey,
		NonPawnKey:     p.NonPawnKey,
		Checkers:       p.Checkers,
		Threats:        p.Threats,
	}

	us, them := p.SideToMove, p.SideToMove.Other()
	from, to := m.From(), m.To()
	pc := p.Board[from]

	p.HalfMoveClock++
	if p.EnPassant != NoSquare {
		p.Hash ^= zobristEnPassant[p.EnPassant.File()]
		p.EnPassant = NoSquare
	}

	switch {
	case m.IsCastling():
		rookFrom, rookTo := CastlingRookSquares(us, m.Flag())
		rook := p.Board[rookFrom]
		p.hashPiece(pc, from)
		p.hashPiece(pc, to)
		p.hashPiece(rook, rookFrom)
		p.hashPiece(rook, rookTo)
		p.shiftPiece(from, to)
		p.shiftPiece(rookFrom, rookTo)

	case m.IsEnPassant():
		capSq := to ^ 8
		u.Captured = p.delPiece(capSq)
		p.hashPiece(u.Captured, capSq)
		p.hashPiece(pc, from)
		p.hashPiece(pc, to)
		p.shiftPiece(from, to)
		p.HalfMoveClock = 0

	default:
		if captured := p.Board[to]; captured != NoPiece {
			u.Captured = captured
			p.hashPiece(captured, to)
			p.delPiece(to)
			p.HalfMoveClock = 0
		}
		p.hashPiece(pc, from)
		p.shiftPiece(from, to)

		if m.IsPromotion() {
			promo := NewPiece(m.Promotion(), us)
			p.delPiece(to)
			p.addPiece(promo, to)
			p.hashPiece(promo, to)
		} else {
			p.hashPiece(pc, to)
		}

		if pc.Type() == Pawn {
			p.HalfMoveClock = 0
			if int(to)-int(from) == 16 || int(from)-int(to) == 16 {
				ep := Square((int(from) + int(to)) / 2)
				if pawnAttacks[us][ep]&p.Pieces[them][Pawn] != 0 {
					p.EnPassant = ep
					p.Hash ^= zobristEnPassant[ep.File()]
				}
			}
		}
	}

	if cr := p.CastlingRights & castlingKeep[from] & castlingKeep[to]; cr != p.CastlingRights {
		p.Hash ^= zobristCastling[p.CastlingRights] ^ zobristCastling[cr]
		p.CastlingRights = cr
	}

	if us == Black {
		p.FullMoveNumber++
	}
	p.SideToMove = them
	p.Hash ^= zobristSideToMove
	p.updateThreats()

	if Debug {
		p.mustBeConsistent()
	}
	return u
}

// UnmakeMove reverts m using the record MakeMove returned.
func (p *Position) UnmakeMove(m Move, u Undo) {
	p.SideToMove = p.SideToMove.Other()
	us := p.SideToMove
	if us == Black {
		p.FullMoveNumber--
	}
	from, to := m.From(), m.To()

	switch {
	case m.IsCastling():
		rookFrom, rookTo := CastlingRookSquares(us, m.Flag())
		p.shiftPiece(to, from)
		p.shiftPiece(rookTo, rookFrom)
	case m.IsEnPassant():
		p.shiftPiece(to, from)
		p.addPiece(u.Captured, to^8)
	default:
		if m.IsPromotion() {
			p.delPiece(to)
			p.addPiece(NewPiece(Pawn, us), from)
		} else {
			p.shiftPiece(to, from)
		}
		if u.Captured != NoPiece {
			p.addPiece(u.Captured, to)
		}
	}

	p.CastlingRights = u.CastlingRights
	p.EnPassant = u.EnPassant
	p.HalfMoveClock = u.HalfMoveClock
	p.Hash = u.Hash
	p.PawnKey = u.PawnKey
	p.NonPawnKey = u.NonPawnKey
	p.Checkers = u.Checkers
	p.Threats = u.Threats
}

// MakeNullMove passes the turn. Never call it while in check.
func (p *Position) MakeNullMove() NullUndo {
	u := NullUndo{
		EnPassant:     p.EnPassant,
		HalfMoveClock: p.HalfMoveClock,
		Hash:          p.Hash,
		Checkers:      p.Checkers,
		Threats:       p.Threats,
	}
	if p.EnPassant != NoSquare {
		p.Hash ^= zobristEnPassant[p.EnPassant.File()]
		p.EnPassant = NoSquare
	}
	p.HalfMoveClock++
	p.SideToMove = p.SideToMove.Other()
	p.Hash ^= zobristSideToMove
	p.updateThreats()
	return u
}

// UnmakeNullMove reverts MakeNullMove.
func (p *Position) UnmakeNullMove(u NullUndo) {
	p.SideToMove = p.SideToMove.Other()
	p.EnPassant = u.EnPassant
	p.HalfMoveClock = u.HalfMoveClock
	p.Hash = u.Hash
	p.Checkers = u.Checkers
	p.Threats = u.Threats
}

// IsInsufficientMaterial reports dead positions: bare kings, a single minor,
// or bishops all on one square color.
func (p *Position) IsInsufficientMaterial() bool {
	if p.Pieces[White][Pawn]|p.Pieces[Black][Pawn]|
		p.Pieces[White][Rook]|p.Pieces[Black][Rook]|
		p.Pieces[White][Queen]|p.Pieces[Black][Queen] != 0 {
		return false
	}
	knights := p.Pieces[White][Knight] | p.Pieces[Black][Knight]
	bishops := p.Pieces[White][Bishop] | p.Pieces[Black][Bishop]
	minors := (knights | bishops).PopCount()
	if minors <= 1 {
		return true
	}
	return knights == 0 && (bishops&LightSquares == 0 || bishops&DarkSquares == 0)
}

// Validate checks the structural invariants of a position.
func (p *Position) Validate() error {
	for c := White; c <= Black; c++ {
		if p.Pieces[c][King].PopCount() != 1 {
			return fmt.Errorf("%s must have exactly one king", c)
		}
	}
	if (p.Pieces[White][Pawn]|p.Pieces[Black][Pawn])&(Rank1|Rank8) != 0 {
		return fmt.Errorf("pawns on the first or last rank")
	}
	var seen Bitboard
	for c := White; c <= Black; c++ {
		for pt := Pawn; pt <= King; pt++ {
			b := p.Pieces[c][pt]
			if seen&b != 0 {
				return fmt.Errorf("overlapping piece sets")
			}
			seen |= b
			for b != 0 {
				if sq := b.PopLSB(); p.Board[sq] != NewPiece(pt, c) {
					return fmt.Errorf("square table disagrees on %s", sq)
				}
			}
		}
	}
	if seen != p.AllOccupied || p.AllOccupied.PopCount() != 64-countEmpty(&p.Board) {
		return fmt.Errorf("occupancy out of sync")
	}
	them := p.SideToMove.Other()
	if p.IsAttacked(p.KingSquare[them], p.SideToMove) {
		return fmt.Errorf("side not to move is in check")
	}
	return nil
}

func countEmpty(b *[64]Piece) int {
	n := 0
	for _, pc := range b {
		if pc == NoPiece {
			n++
		}
	}
	return n
}

// mustBeConsistent panics on a broken position. Continuing would corrupt
// every hash and board derived from it for the rest of the game.
func (p *Position) mustBeConsistent() {
	if err := p.Validate(); err != nil {
		panic(fmt.Sprintf("board invariant violated: %v\n%s", err, p))
	}
}

// String draws the board with its state fields.
func (p *Position) String() string {
	var sb strings.Builder
	sb.WriteByte('\n')
	for rank := 7; rank >= 0; rank-- {
		fmt.Fprintf(&sb, "%d  ", rank+1)
		for file := 0; file < 8; file++ {
			sb.WriteString(p.Board[NewSquare(file, rank)].String())
			sb.WriteByte(' ')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("\n   a b c d e f g h\n\n")
	fmt.Fprintf(&sb, "Fen: %s\n", p.FEN())
	fmt.Fprintf(&sb, "Key: %016X\n", p.Hash)
	return sb.String()
}
