package board

import (
	"sort"
	"testing"

	"github.com/dylhunn/dragontoothmg"
)

// TestMoveGenAgainstDragontooth walks the move tree in lock-step with an
// independent generator and compares the legal move sets at every node.
func TestMoveGenAgainstDragontooth(t *testing.T) {
	fens := []string{
		StartFEN,
		kiwipeteFEN,
		pos3FEN,
		pos4FEN,
		pos5FEN,
	}
	for _, fen := range fens {
		t.Run(fen, func(t *testing.T) {
			pos, err := ParseFEN(fen)
			if err != nil {
				t.Fatal(err)
			}
			ref := dragontoothmg.ParseFen(fen)
			compareTrees(t, pos, &ref, 3)
		})
	}
}

func compareTrees(t *testing.T, pos *Position, ref *dragontoothmg.Board, depth int) {
	t.Helper()

	var ml MoveList
	pos.GenerateLegalMoves(&ml)
	ours := make([]string, 0, ml.Len())
	for _, m := range ml.Slice() {
		ours = append(ours, m.String())
	}
	refMoves := ref.GenerateLegalMoves()
	theirs := make([]string, 0, len(refMoves))
	for _, m := range refMoves {
		theirs = append(theirs, m.String())
	}
	sort.Strings(ours)
	sort.Strings(theirs)

	if len(ours) != len(theirs) {
		t.Fatalf("%s: %d moves, reference has %d\nours:   %v\ntheirs: %v", pos.FEN(), len(ours), len(theirs), ours, theirs)
	}
	for i := range ours {
		if ours[i] != theirs[i] {
			t.Fatalf("%s: move lists differ\nours:   %v\ntheirs: %v", pos.FEN(), ours, theirs)
		}
	}
	if depth <= 1 {
		return
	}

	byText := make(map[string]dragontoothmg.Move, len(refMoves))
	for _, m := range refMoves {
		byText[m.String()] = m
	}
	for _, m := range ml.Slice() {
		u := pos.MakeMove(m)
		unapply := ref.Apply(byText[m.String()])
		compareTrees(t, pos, ref, depth-1)
		unapply()
		pos.UnmakeMove(m, u)
	}
}
