package engine

import (
	"strings"
	"testing"
	"unicode"

	"github.com/hailam/noxchess/internal/board"
)

// flipFEN mirrors a position vertically and swaps the colors.
func flipFEN(fen string) string {
	f := strings.Fields(fen)
	ranks := strings.Split(f[0], "/")
	for i, j := 0, len(ranks)-1; i < j; i, j = i+1, j-1 {
		ranks[i], ranks[j] = ranks[j], ranks[i]
	}
	f[0] = swapCase(strings.Join(ranks, "/"))
	if f[1] == "w" {
		f[1] = "b"
	} else {
		f[1] = "w"
	}
	if f[2] != "-" {
		f[2] = swapCase(f[2])
	}
	if f[3] != "-" {
		rank := '3'
		if f[3][1] == '3' {
			rank = '6'
		}
		f[3] = string(f[3][0]) + string(rank)
	}
	return strings.Join(f, " ")
}

func swapCase(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsUpper(r) {
			return unicode.ToLower(r)
		}
		return unicode.ToUpper(r)
	}, s)
}

func TestEvaluateIsColorSymmetric(t *testing.T) {
	fens := []string{
		board.StartFEN,
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
		"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
		"r2q1rk1/pP1p2pp/Q4n2/bbp1p3/Np6/1B3NBn/pPPP1PPP/R3K2R b KQ - 0 1",
		"4k3/8/8/8/8/8/8/4KR2 w - - 0 1",
	}
	e := NewClassical()
	for _, fen := range fens {
		pos := mustFEN(t, fen)
		flipped := mustFEN(t, flipFEN(fen))
		if a, b := e.Evaluate(pos), e.Evaluate(flipped); a != b {
			t.Errorf("%s: %d, flipped %d", fen, a, b)
		}
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	pos := mustFEN(t, "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1")
	a := NewClassical().Evaluate(pos)
	e := NewClassical()
	for range 3 {
		if b := e.Evaluate(pos); b != a {
			t.Fatalf("evaluation changed from %d to %d with a warm pawn cache", a, b)
		}
	}
}

func TestEvaluateMaterial(t *testing.T) {
	e := NewClassical()
	tests := []struct {
		name string
		fen  string
		sign int
	}{
		{"extra queen", "4k3/8/8/8/8/8/8/3QK3 w - - 0 1", 1},
		{"extra queen for opponent", "3qk3/8/8/8/8/8/8/4K3 w - - 0 1", -1},
		{"bare kings", "4k3/8/8/8/8/8/8/4K3 w - - 0 1", 0},
		{"lone bishop", "4k3/8/8/8/8/8/8/2B1K3 b - - 0 1", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Evaluate(mustFEN(t, tc.fen))
			switch {
			case tc.sign > 0 && got < 500:
				t.Errorf("score %d, want clearly positive", got)
			case tc.sign < 0 && got > -500:
				t.Errorf("score %d, want clearly negative", got)
			case tc.sign == 0 && got != 0:
				t.Errorf("score %d, want 0", got)
			}
		})
	}
}

func TestPawnHashTable(t *testing.T) {
	pt := NewPawnTable(1024)
	pos := board.NewPosition()

	if _, _, found := pt.Probe(pos.PawnKey); found {
		t.Error("hit on first probe")
	}

	pt.Store(pos.PawnKey, -15, -20)
	mg, eg, found := pt.Probe(pos.PawnKey)
	if !found {
		t.Fatal("miss after store")
	}
	if mg != -15 || eg != -20 {
		t.Errorf("got mg=%d eg=%d, want -15 -20", mg, eg)
	}

	old := pos.PawnKey
	m := board.NewMove(board.E2, board.E4, board.FlagNone)
	u := pos.MakeMove(m)
	if pos.PawnKey == old {
		t.Error("PawnKey unchanged by a pawn move")
	}
	pos.UnmakeMove(m, u)
	if pos.PawnKey != old {
		t.Error("PawnKey not restored by unmake")
	}

	pt.Clear()
	if _, _, found := pt.Probe(old); found {
		t.Error("hit after Clear")
	}
}

func TestPawnStructureTerms(t *testing.T) {
	// Doubled isolated pawns against a healthy pair.
	weak := mustFEN(t, "4k3/4p3/4p3/8/8/8/3PP3/4K3 w - - 0 1")
	mg, eg := evaluatePawnStructure(weak)
	if mg <= 0 || eg <= 0 {
		t.Errorf("healthy side not preferred: mg=%d eg=%d", mg, eg)
	}

	passed := mustFEN(t, "4k3/8/8/3P4/8/8/8/4K3 w - - 0 1")
	if !isPassedPawn(passed, board.D5, board.White) {
		t.Error("d5 should be passed")
	}
	blocked := mustFEN(t, "4k3/2p5/8/3P4/8/8/8/4K3 w - - 0 1")
	if isPassedPawn(blocked, board.D5, board.White) {
		t.Error("c7 pawn guards d5's path")
	}
}
