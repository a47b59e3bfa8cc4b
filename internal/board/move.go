package board

import (
	"errors"
	"fmt"
)

// Move packs a move into 16 bits:
// bits 0-5 from square, bits 6-11 to square, bits 12-15 flag.
type Move uint16

// MoveFlag distinguishes the special move kinds.
type MoveFlag uint16

const (
	FlagNone MoveFlag = iota
	FlagCastleShort
	FlagCastleLong
	FlagEnPassant
	FlagPromoKnight
	FlagPromoBishop
	FlagPromoRook
	FlagPromoQueen
)

// NullMove is the "pass" sentinel. It is never produced by the generator.
const NullMove Move = 0

// ErrIllegalMove is returned when a move string does not match a legal move.
var ErrIllegalMove = errors.New("illegal move")

// NewMove builds a move with the given flag.
func NewMove(from, to Square, flag MoveFlag) Move {
	return Move(from) | Move(to)<<6 | Move(flag)<<12
}

// From returns the source square.
func (m Move) From() Square {
	return Square(m & 0x3F)
}

// To returns the destination square.
func (m Move) To() Square {
	return Square((m >> 6) & 0x3F)
}

// Flag returns the move kind.
func (m Move) Flag() MoveFlag {
	return MoveFlag(m >> 12)
}

// IsCastling reports whether the flag is either castling constant.
func (m Move) IsCastling() bool {
	f := m.Flag()
	return f == FlagCastleShort || f == FlagCastleLong
}

// IsEnPassant reports an en-passant capture.
func (m Move) IsEnPassant() bool {
	return m.Flag() == FlagEnPassant
}

// IsPromotion reports any promotion.
func (m Move) IsPromotion() bool {
	return m.Flag() >= FlagPromoKnight
}

// Promotion returns the promoted piece type, or NoPieceType.
func (m Move) Promotion() PieceType {
	if !m.IsPromotion() {
		return NoPieceType
	}
	return Knight + PieceType(m.Flag()-FlagPromoKnight)
}

func promoFlag(pt PieceType) MoveFlag {
	return FlagPromoKnight + MoveFlag(pt-Knight)
}

// String returns UCI notation, "0000" for the null move.
// Castling is written as the king's two-square step.
func (m Move) String() string {
	if m == NullMove {
		return "0000"
	}
	s := m.From().String() + m.To().String()
	if m.IsPromotion() {
		s += string(m.Promotion().Char())
	}
	return s
}

// ParseMove resolves a UCI move string against the legal moves of pos.
func ParseMove(s string, pos *Position) (Move, error) {
	if len(s) < 4 || len(s) > 5 {
		return NullMove, fmt.Errorf("%w: %q", ErrIllegalMove, s)
	}
	var ml MoveList
	pos.GenerateLegalMoves(&ml)
	for _, m := range ml.Slice() {
		if m.String() == s {
			return m, nil
		}
	}
	return NullMove, fmt.Errorf("%w: %q", ErrIllegalMove, s)
}

// MaxMoves bounds the number of legal moves in any position.
const MaxMoves = 256

// MoveList is a fixed-capacity move buffer that never allocates.
type MoveList struct {
	moves [MaxMoves]Move
	count int
}

// Add appends a move.
func (ml *MoveList) Add(m Move) {
	ml.moves[ml.count] = m
	ml.count++
}

// Len returns the number of moves.
func (ml *MoveList) Len() int {
	return ml.count
}

// Get returns the i-th move.
func (ml *MoveList) Get(i int) Move {
	return ml.moves[i]
}

// Swap exchanges two moves.
func (ml *MoveList) Swap(i, j int) {
	ml.moves[i], ml.moves[j] = ml.moves[j], ml.moves[i]
}

// Clear empties the list.
func (ml *MoveList) Clear() {
	ml.count = 0
}

// Contains reports whether m is in the list.
func (ml *MoveList) Contains(m Move) bool {
	for i := 0; i < ml.count; i++ {
		if ml.moves[i] == m {
			return true
		}
	}
	return false
}

// Slice exposes the filled part of the buffer.
func (ml *MoveList) Slice() []Move {
	return ml.moves[:ml.count]
}
