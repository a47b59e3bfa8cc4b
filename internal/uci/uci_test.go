package uci

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hailam/noxchess/internal/engine"
	"github.com/hailam/noxchess/internal/storage"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng := engine.New(engine.Config{HashMB: 4, Threads: 1})
	t.Cleanup(eng.Close)
	return eng
}

// run feeds the script to a fresh handler and returns everything it wrote.
func run(t *testing.T, store Store, script ...string) string {
	t.Helper()
	var out bytes.Buffer
	u := New(newEngine(t), store, &out)
	if err := u.Run(strings.NewReader(strings.Join(script, "\n") + "\n")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.String()
}

func TestHandshake(t *testing.T) {
	out := run(t, nil, "uci", "isready")
	for _, want := range []string{
		"id name noxchess",
		"option name Hash type spin default 64 min 1 max 1048576",
		"option name Threads type spin default 1 min 1 max 1024",
		"option name Contempt type spin default 0 min -100 max 100",
		"option name Skill Level type spin default 20 min 1 max 20",
		"option name Clear Hash type button",
		"uciok",
		"readyok",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestGoFindsMate(t *testing.T) {
	out := run(t, nil,
		"position fen 6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1",
		"go depth 3",
	)
	if !strings.Contains(out, "bestmove a1a8") {
		t.Errorf("no mating move in:\n%s", out)
	}
	if !strings.Contains(out, "score mate 1") {
		t.Errorf("no mate score in:\n%s", out)
	}
	if !strings.Contains(out, "pv a1a8") {
		t.Errorf("no pv in:\n%s", out)
	}
}

func TestGoWithoutLegalMoves(t *testing.T) {
	out := run(t, nil,
		"position fen 7k/5Q2/6K1/8/8/8/8/8 b - - 0 1",
		"go depth 2",
	)
	if !strings.Contains(out, "bestmove 0000") {
		t.Errorf("stalemate should give a null best move:\n%s", out)
	}
}

func TestStopInfinite(t *testing.T) {
	var out bytes.Buffer
	u := New(newEngine(t), nil, &out)
	if err := u.Run(strings.NewReader("position startpos\ngo infinite\n")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "bestmove ") {
		t.Errorf("end of input should stop an infinite search:\n%s", out.String())
	}
	if u.engine.Searching() {
		t.Error("engine still searching after Run returned")
	}
}

func TestPositionErrorsKeepState(t *testing.T) {
	const after = "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq - 0 2"
	out := run(t, nil,
		"position startpos moves e2e4 e7e5",
		"position fen not/a/fen w - - 0 1",
		"position startpos moves e2e5",
		"position sideways",
		"d",
	)
	if n := strings.Count(out, "info string"); n != 3 {
		t.Errorf("%d error reports, want 3:\n%s", n, out)
	}
	if !strings.Contains(out, "Fen: "+after) {
		t.Errorf("position changed by a bad command:\n%s", out)
	}
	if n := strings.Count(out, "Fen: "); n != 1 {
		t.Errorf("board display printed %d FEN lines", n)
	}
}

func TestEvalFEN(t *testing.T) {
	out := run(t, nil,
		"position startpos moves e2e4",
		"evalfen 4k3/8/8/8/8/8/8/3QK3 w - - 0 1",
		"evalfen 4k3/8/8/8/8/8/8/3QK3 q - - 0 1",
		"evalfen",
		"d",
	)
	var evals []string
	for _, line := range strings.Split(out, "\n") {
		if s, ok := strings.CutPrefix(line, "Evaluation: "); ok {
			evals = append(evals, s)
		}
	}
	if len(evals) != 1 {
		t.Fatalf("%d evaluations, want 1:\n%s", len(evals), out)
	}
	var cp int
	if _, err := fmt.Sscanf(evals[0], "cp %d", &cp); err != nil || cp < 500 {
		t.Errorf("queen up evaluated as %q", evals[0])
	}
	if n := strings.Count(out, "info string"); n != 2 {
		t.Errorf("%d error reports, want 2:\n%s", n, out)
	}
	if !strings.Contains(out, "Fen: rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1") {
		t.Errorf("evalfen changed the position:\n%s", out)
	}
}

func TestSkillLevelOption(t *testing.T) {
	store, err := storage.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	out := run(t, store,
		"setoption name Skill Level value 3",
		"position startpos",
		"go",
	)
	if !strings.Contains(out, "info depth 3 ") {
		t.Errorf("no depth 3 report:\n%s", out)
	}
	if strings.Contains(out, "info depth 4 ") {
		t.Errorf("searched past the skill cap:\n%s", out)
	}
	if !strings.Contains(out, "bestmove ") {
		t.Errorf("no best move:\n%s", out)
	}
	opts, err := store.LoadOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Skill != 3 {
		t.Errorf("saved skill %d, want 3", opts.Skill)
	}

	tests := []struct {
		value string
		want  int
	}{
		{"0", engine.SkillMin},
		{"-5", engine.SkillMin},
		{"99", engine.SkillMax},
		{"12", 12},
	}
	for _, tc := range tests {
		eng := newEngine(t)
		u := New(eng, nil, &bytes.Buffer{})
		u.handleSetOption(strings.Fields("name Skill Level value " + tc.value))
		if got := eng.Config().SkillLevel; got != tc.want {
			t.Errorf("value %s: skill %d, want %d", tc.value, got, tc.want)
		}
	}
}

func TestParsePositionHistory(t *testing.T) {
	pos, hist, err := parsePosition(strings.Fields("startpos moves g1f3 g8f6 f3g1 f6g8"))
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 4 {
		t.Fatalf("history length %d, want 4", len(hist))
	}
	if hist[0] != pos.Hash {
		t.Error("first history entry should be the start position, which recurs")
	}
	if pos.FEN() != "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 4 3" {
		t.Errorf("got %s", pos.FEN())
	}
}

func TestPerft(t *testing.T) {
	out := run(t, nil, "go perft 2", "perft 1", "perft 0")
	if !strings.Contains(out, "Nodes searched: 400") {
		t.Errorf("go perft 2:\n%s", out)
	}
	if !strings.Contains(out, "Nodes searched: 20") {
		t.Errorf("perft 1:\n%s", out)
	}
	if !strings.Contains(out, "e2e4: 20") {
		t.Errorf("divide line missing:\n%s", out)
	}
	if !strings.Contains(out, "info string perft depth must be positive") {
		t.Errorf("perft 0 not rejected:\n%s", out)
	}
}

func TestUnknownInput(t *testing.T) {
	out := run(t, nil, "xyzzy", "go sideways", "setoption name Style value sharp")
	for _, want := range []string{
		"info string unknown command: xyzzy",
		`info string go: unknown token "sideways"`,
		`info string unknown option "Style"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestSetOptionPersists(t *testing.T) {
	store, err := storage.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	run(t, store,
		"setoption name Hash value 8",
		"setoption name Threads value 2",
		"setoption name Contempt value 500",
		"setoption name Threads value many",
	)
	opts, err := store.LoadOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Hash != 8 || opts.Threads != 2 || opts.Contempt != engine.ContemptMax {
		t.Errorf("saved %+v", opts)
	}

	// A new handler starts from the saved options.
	eng := newEngine(t)
	New(eng, store, &bytes.Buffer{})
	if cfg := eng.Config(); cfg.HashMB != 8 || cfg.Threads != 2 {
		t.Errorf("restored config %+v", cfg)
	}
}

func TestSearchStats(t *testing.T) {
	store, err := storage.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	run(t, store, "ucinewgame", "position startpos", "go depth 2")
	stats, err := store.LoadStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Games != 1 || stats.Searches != 1 || stats.DeepestIter != 2 || stats.Nodes == 0 {
		t.Errorf("stats %+v", stats)
	}
}

func TestParseGo(t *testing.T) {
	tests := []struct {
		args   string
		want   engine.Limits
		perft  int
		hasErr bool
	}{
		{args: "", want: engine.Limits{}},
		{args: "infinite", want: engine.Limits{Infinite: true}},
		{args: "ponder wtime 1000", want: engine.Limits{Infinite: true, Time: [2]time.Duration{time.Second, 0}}},
		{args: "depth 7 nodes 5000", want: engine.Limits{Depth: 7, Nodes: 5000}},
		{args: "movetime 250", want: engine.Limits{MoveTime: 250 * time.Millisecond}},
		{args: "mate 3", want: engine.Limits{Mate: 3}},
		{
			args: "wtime 60000 btime 30000 winc 1000 binc 500 movestogo 20",
			want: engine.Limits{
				Time:      [2]time.Duration{time.Minute, 30 * time.Second},
				Inc:       [2]time.Duration{time.Second, 500 * time.Millisecond},
				MovesToGo: 20,
			},
		},
		{args: "perft 4", perft: 4},
		{args: "depth", hasErr: true},
		{args: "depth -1", hasErr: true},
		{args: "nodes lots", hasErr: true},
		{args: "searchmoves e2e4", hasErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.args, func(t *testing.T) {
			got, perft, err := parseGo(strings.Fields(tc.args))
			if tc.hasErr {
				if err == nil {
					t.Errorf("no error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want || perft != tc.perft {
				t.Errorf("got %+v perft %d, want %+v perft %d", got, perft, tc.want, tc.perft)
			}
		})
	}
}
