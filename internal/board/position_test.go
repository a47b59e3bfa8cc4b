package board

import (
	"errors"
	"testing"
)

// TestMakeUnmakeRoundTrip plays every line to a fixed depth and checks that
// unmake restores a bit-identical position and that the incremental keys
// always equal a from-scratch computation.
func TestMakeUnmakeRoundTrip(t *testing.T) {
	Debug = true
	defer func() { Debug = false }()

	for _, fen := range []string{StartFEN, kiwipeteFEN, pos3FEN, pos4FEN, pos5FEN} {
		pos, err := ParseFEN(fen)
		if err != nil {
			t.Fatal(err)
		}
		checkRoundTrip(t, pos, 3)
	}
}

func checkRoundTrip(t *testing.T, pos *Position, depth int) {
	t.Helper()
	if depth == 0 {
		return
	}
	var ml MoveList
	pos.GenerateLegalMoves(&ml)
	for _, m := range ml.Slice() {
		before := *pos
		u := pos.MakeMove(m)

		fresh := *pos
		fresh.ComputeHash()
		if fresh.Hash != pos.Hash || fresh.PawnKey != pos.PawnKey || fresh.NonPawnKey != pos.NonPawnKey {
			t.Fatalf("incremental keys drifted after %s from %s", m, before.FEN())
		}

		checkRoundTrip(t, pos, depth-1)
		pos.UnmakeMove(m, u)
		if *pos != before {
			t.Fatalf("unmake %s did not restore %s, got %s", m, before.FEN(), pos.FEN())
		}
	}
}

func TestNullMoveRoundTrip(t *testing.T) {
	pos, err := ParseFEN("rnbqkbnr/ppp1p1pp/8/3pPp2/8/8/PPPP1PPP/RNBQKBNR w KQkq f6 0 3")
	if err != nil {
		t.Fatal(err)
	}
	if pos.EnPassant != F6 {
		t.Fatalf("en passant = %s, want f6", pos.EnPassant)
	}
	before := *pos
	u := pos.MakeNullMove()
	if pos.EnPassant != NoSquare || pos.SideToMove != Black {
		t.Error("null move must clear en passant and switch side")
	}
	fresh := *pos
	fresh.ComputeHash()
	if fresh.Hash != pos.Hash {
		t.Error("null move hash differs from recomputed hash")
	}
	pos.UnmakeNullMove(u)
	if *pos != before {
		t.Error("UnmakeNullMove did not restore the position")
	}
}

func TestFENRoundTrip(t *testing.T) {
	for _, fen := range []string{StartFEN, kiwipeteFEN, pos3FEN, pos4FEN, pos5FEN} {
		pos, err := ParseFEN(fen)
		if err != nil {
			t.Fatal(err)
		}
		if got := pos.FEN(); got != fen {
			t.Errorf("FEN() = %q, want %q", got, fen)
		}
	}
}

func TestParseFENRejectsMalformed(t *testing.T) {
	bad := []string{
		"",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP w KQkq - 0 1",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR x KQkq - 0 1",
		"rnbqkbnr/pppppppp/9/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQ1BNR w kq - 0 1",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq z9 0 1",
		"4k3/8/8/8/8/8/8/4K2P w - - 0 1",
		"4k3/4R3/8/8/8/8/8/4K3 w - - 0 1",
	}
	for _, fen := range bad {
		if _, err := ParseFEN(fen); !errors.Is(err, ErrInvalidFEN) {
			t.Errorf("ParseFEN(%q) error = %v, want ErrInvalidFEN", fen, err)
		}
	}
}

func TestEnPassantOnlyWhenCapturable(t *testing.T) {
	pos := NewPosition()
	m, err := ParseMove("e2e4", pos)
	if err != nil {
		t.Fatal(err)
	}
	pos.MakeMove(m)
	if pos.EnPassant != NoSquare {
		t.Errorf("en passant set to %s with no pawn able to capture", pos.EnPassant)
	}

	pos, _ = ParseFEN("rnbqkbnr/ppp1pppp/8/8/3p4/8/PPPPPPPP/RNBQKBNR w KQkq - 0 3")
	m, _ = ParseMove("e2e4", pos)
	pos.MakeMove(m)
	if pos.EnPassant != E3 {
		t.Errorf("en passant = %s, want e3", pos.EnPassant)
	}
}

func TestTransposedPositionsHashEqual(t *testing.T) {
	a := NewPosition()
	b := NewPosition()
	play(t, a, "g1f3", "g8f6", "b1c3", "b8c6")
	play(t, b, "b1c3", "b8c6", "g1f3", "g8f6")
	if a.Hash != b.Hash {
		t.Error("transposed move orders produced different hashes")
	}
}

func TestThreatsAndCheckers(t *testing.T) {
	pos, err := ParseFEN("4k3/8/8/8/8/8/3q4/4K3 w - - 0 1")
	if err != nil {
		t.Fatal(err)
	}
	if pos.Checkers != SquareBB(D2) {
		t.Errorf("checkers = %v", pos.Checkers)
	}
	if !pos.Threats.IsSet(D1) || !pos.Threats.IsSet(E2) || !pos.Threats.IsSet(F2) {
		t.Error("queen attacks missing from threats")
	}
}

func play(t *testing.T, pos *Position, moves ...string) {
	t.Helper()
	for _, s := range moves {
		m, err := ParseMove(s, pos)
		if err != nil {
			t.Fatalf("ParseMove(%q): %v", s, err)
		}
		pos.MakeMove(m)
	}
}
