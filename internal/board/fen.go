package board

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// ErrInvalidFEN wraps every position parsing failure.
var ErrInvalidFEN = errors.New("invalid FEN")

// ParseFEN parses a FEN string. The clocks are optional.
func ParseFEN(fen string) (*Position, error) {
	parts := strings.Fields(fen)
	if len(parts) < 4 {
		return nil, fmt.Errorf("%w: need at least 4 fields, got %d", ErrInvalidFEN, len(parts))
	}

	pos := &Position{EnPassant: NoSquare, FullMoveNumber: 1}
	for sq := range pos.Board {
		pos.Board[sq] = NoPiece
	}

	if err := parsePlacement(pos, parts[0]); err != nil {
		return nil, err
	}

	switch parts[1] {
	case "w":
		pos.SideToMove = White
	case "b":
		pos.SideToMove = Black
	default:
		return nil, fmt.Errorf("%w: side to move %q", ErrInvalidFEN, parts[1])
	}

	if parts[2] != "-" {
		for _, c := range parts[2] {
			i := strings.IndexRune("KQkq", c)
			if i < 0 {
				return nil, fmt.Errorf("%w: castling %q", ErrInvalidFEN, parts[2])
			}
			pos.CastlingRights |= 1 << i
		}
	}

	if parts[3] != "-" {
		sq, err := ParseSquare(parts[3])
		if err != nil {
			return nil, fmt.Errorf("%w: en passant %q", ErrInvalidFEN, parts[3])
		}
		pos.EnPassant = sq
	}

	if len(parts) > 4 {
		n, err := strconv.Atoi(parts[4])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: half-move clock %q", ErrInvalidFEN, parts[4])
		}
		pos.HalfMoveClock = n
	}
	if len(parts) > 5 {
		n, err := strconv.Atoi(parts[5])
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: full-move number %q", ErrInvalidFEN, parts[5])
		}
		pos.FullMoveNumber = n
	}

	if err := pos.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	pos.sanitizeCastling()
	pos.sanitizeEnPassant()
	pos.ComputeHash()
	pos.updateThreats()
	return pos, nil
}

func parsePlacement(pos *Position, placement string) error {
	ranks := strings.Split(placement, "/")
	if len(ranks) != 8 {
		return fmt.Errorf("%w: need 8 ranks, got %d", ErrInvalidFEN, len(ranks))
	}
	for i, row := range ranks {
		rank := 7 - i
		file := 0
		for j := 0; j < len(row); j++ {
			c := row[j]
			if c >= '1' && c <= '8' {
				file += int(c - '0')
				continue
			}
			pc := PieceFromChar(c)
			if pc == NoPiece {
				return fmt.Errorf("%w: piece %q", ErrInvalidFEN, c)
			}
			if file > 7 {
				return fmt.Errorf("%w: rank %d overflows", ErrInvalidFEN, rank+1)
			}
			pos.addPiece(pc, NewSquare(file, rank))
			file++
		}
		if file != 8 {
			return fmt.Errorf("%w: rank %d has %d squares", ErrInvalidFEN, rank+1, file)
		}
	}
	return nil
}

// sanitizeCastling drops rights whose king or rook is not at home.
func (p *Position) sanitizeCastling() {
	if p.Board[E1] != WhiteKing {
		p.CastlingRights &^= WhiteKingSide | WhiteQueenSide
	}
	if p.Board[H1] != WhiteRook {
		p.CastlingRights &^= WhiteKingSide
	}
	if p.Board[A1] != WhiteRook {
		p.CastlingRights &^= WhiteQueenSide
	}
	if p.Board[E8] != BlackKing {
		p.CastlingRights &^= BlackKingSide | BlackQueenSide
	}
	if p.Board[H8] != BlackRook {
		p.CastlingRights &^= BlackKingSide
	}
	if p.Board[A8] != BlackRook {
		p.CastlingRights &^= BlackQueenSide
	}
}

// sanitizeEnPassant keeps the target only if a pawn can actually take,
// matching what MakeMove records.
func (p *Position) sanitizeEnPassant() {
	ep := p.EnPassant
	if ep == NoSquare {
		return
	}
	us := p.SideToMove
	if ep.RelativeRank(us) != 5 || pawnAttacks[us.Other()][ep]&p.Pieces[us][Pawn] == 0 {
		p.EnPassant = NoSquare
	}
}

// FEN renders the position as a FEN string.
func (p *Position) FEN() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 8; file++ {
			pc := p.Board[NewSquare(file, rank)]
			if pc == NoPiece {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			sb.WriteString(pc.String())
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if rank > 0 {
			sb.WriteByte('/')
		}
	}
	if p.SideToMove == White {
		sb.WriteString(" w ")
	} else {
		sb.WriteString(" b ")
	}
	sb.WriteString(p.CastlingRights.String())
	sb.WriteByte(' ')
	sb.WriteString(p.EnPassant.String())
	fmt.Fprintf(&sb, " %d %d", p.HalfMoveClock, p.FullMoveNumber)
	return sb.String()
}
