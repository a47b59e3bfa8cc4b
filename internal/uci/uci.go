// Package uci implements the Universal Chess Interface front end.
package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/hailam/noxchess/internal/board"
	"github.com/hailam/noxchess/internal/engine"
	"github.com/hailam/noxchess/internal/storage"
)

const (
	engineName   = "noxchess"
	engineAuthor = "the noxchess authors"
)

// Store persists options and usage statistics. *storage.Storage
// implements it; a nil Store disables persistence.
type Store interface {
	LoadOptions() (storage.Options, error)
	SaveOptions(storage.Options) error
	RecordSearch(engine.Result, time.Duration) error
	RecordNewGame() error
}

// UCI implements the Universal Chess Interface protocol.
type UCI struct {
	engine *engine.Engine
	store  Store

	outMu sync.Mutex
	out   io.Writer

	position *board.Position
	// Hashes of the positions before the current one, for repetition detection.
	history []uint64

	opts        storage.Options
	searchStart time.Time
	infinite    bool // the last search waits for "stop"
}

// New creates a protocol handler writing to out. Saved options are
// applied to eng.
func New(eng *engine.Engine, store Store, out io.Writer) *UCI {
	u := &UCI{
		engine:   eng,
		store:    store,
		out:      out,
		position: board.NewPosition(),
		opts:     storage.DefaultOptions(),
	}
	if store != nil {
		opts, err := store.LoadOptions()
		if err != nil {
			log.Warn().Err(err).Msg("loading saved options")
		} else {
			u.opts = opts
		}
	}

	cfg := u.opts.Apply(eng.Config())
	cfg.OnInfo = u.sendInfo
	cfg.OnResult = u.sendBestMove
	if err := eng.SetConfig(cfg); err != nil {
		log.Error().Err(err).Msg("configuring engine")
	}
	cfg = eng.Config()
	u.syncOptions(cfg)
	return u
}

// syncOptions records the clamped values the engine actually uses.
func (u *UCI) syncOptions(cfg engine.Config) {
	u.opts.Hash, u.opts.Threads = cfg.HashMB, cfg.Threads
	u.opts.Contempt, u.opts.Skill = cfg.Contempt, cfg.SkillLevel
}

func (u *UCI) println(a ...any) {
	u.outMu.Lock()
	defer u.outMu.Unlock()
	fmt.Fprintln(u.out, a...)
}

func (u *UCI) printf(format string, a ...any) {
	u.outMu.Lock()
	defer u.outMu.Unlock()
	fmt.Fprintf(u.out, format, a...)
}

// infoString reports a problem to the GUI.
func (u *UCI) infoString(format string, a ...any) {
	u.printf("info string "+format+"\n", a...)
}

// Run reads commands from in until "quit" or end of input. At end of
// input a running search is allowed to finish unless it is infinite.
func (u *UCI) Run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		log.Debug().Str("cmd", line).Msg("received")

		parts := strings.Fields(line)
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "uci":
			u.handleUCI()
		case "isready":
			u.println("readyok")
		case "ucinewgame":
			u.handleNewGame()
		case "position":
			u.handlePosition(args)
		case "go":
			u.handleGo(args)
		case "stop":
			u.engine.StopSearch()
		case "setoption":
			u.handleSetOption(args)
		case "quit":
			u.engine.StopSearch()
			return nil
		// Debug commands
		case "d":
			u.handleDisplay()
		case "eval":
			u.printEval(u.position)
		case "evalfen":
			// The current position is left alone.
			pos, err := board.ParseFEN(strings.Join(args, " "))
			if err != nil {
				u.infoString("%v", err)
				continue
			}
			u.printEval(pos)
		case "perft":
			depth := 5
			if len(args) > 0 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					u.infoString("invalid perft depth %q", args[0])
					continue
				}
				depth = n
			}
			u.handlePerft(depth)
		default:
			u.infoString("unknown command: %s", cmd)
		}
	}
	if u.infinite {
		u.engine.StopSearch()
	}
	u.engine.Wait()
	return scanner.Err()
}

// handleUCI responds to the "uci" command.
func (u *UCI) handleUCI() {
	u.println("id name " + engineName)
	u.println("id author " + engineAuthor)
	u.println()
	u.printf("option name Hash type spin default %d min %d max %d\n", engine.HashDefault, engine.HashMin, engine.HashMax)
	u.printf("option name Threads type spin default %d min %d max %d\n", engine.ThreadsDefault, engine.ThreadsMin, engine.ThreadsMax)
	u.printf("option name Contempt type spin default %d min %d max %d\n", engine.ContemptDefault, engine.ContemptMin, engine.ContemptMax)
	u.printf("option name Skill Level type spin default %d min %d max %d\n", engine.SkillDefault, engine.SkillMin, engine.SkillMax)
	u.println("option name Clear Hash type button")
	u.println("uciok")
}

// handleNewGame resets the engine for a new game.
func (u *UCI) handleNewGame() {
	u.engine.StopSearch()
	if err := u.engine.NewGame(); err != nil {
		u.infoString("%v", err)
	}
	u.position = board.NewPosition()
	u.history = nil
	if u.store != nil {
		if err := u.store.RecordNewGame(); err != nil {
			log.Warn().Err(err).Msg("recording new game")
		}
	}
}

// handlePosition parses and sets up a position.
// Formats:
//   - position startpos
//   - position startpos moves e2e4 e7e5
//   - position fen <fen>
//   - position fen <fen> moves e2e4
//
// A malformed command leaves the current position unchanged.
func (u *UCI) handlePosition(args []string) {
	pos, hist, err := parsePosition(args)
	if err != nil {
		u.infoString("%v", err)
		return
	}
	u.position, u.history = pos, hist
}

func parsePosition(args []string) (*board.Position, []uint64, error) {
	if len(args) == 0 {
		return nil, nil, errors.New("position: missing arguments")
	}
	movesAt := len(args)
	for i, a := range args {
		if a == "moves" {
			movesAt = i
			break
		}
	}

	var pos *board.Position
	switch args[0] {
	case "startpos":
		pos = board.NewPosition()
	case "fen":
		var err error
		pos, err = board.ParseFEN(strings.Join(args[1:movesAt], " "))
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("position: unknown keyword %q", args[0])
	}

	var hist []uint64
	if movesAt < len(args) {
		for _, s := range args[movesAt+1:] {
			m, err := board.ParseMove(s, pos)
			if err != nil {
				return nil, nil, fmt.Errorf("position: move %s: %w", s, err)
			}
			hist = append(hist, pos.Hash)
			pos.MakeMove(m)
		}
	}
	return pos, hist, nil
}

// parseGo converts "go" arguments into search limits. A perft request
// returns its depth instead.
func parseGo(args []string) (limits engine.Limits, perft int, err error) {
	next := func(i int) (int, error) {
		if i+1 >= len(args) {
			return 0, fmt.Errorf("go: %s needs a value", args[i])
		}
		n, err := strconv.Atoi(args[i+1])
		if err != nil || n < 0 {
			return 0, fmt.Errorf("go: invalid %s %q", args[i], args[i+1])
		}
		return n, nil
	}
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }

	for i := 0; i < len(args); i++ {
		var n int
		switch args[i] {
		case "infinite":
			limits.Infinite = true
			continue
		case "ponder":
			// Pondering is searched as an infinite search.
			limits.Infinite = true
			continue
		case "depth", "nodes", "movetime", "wtime", "btime", "winc", "binc", "movestogo", "mate", "perft":
			if n, err = next(i); err != nil {
				return limits, 0, err
			}
		default:
			return limits, 0, fmt.Errorf("go: unknown token %q", args[i])
		}
		switch args[i] {
		case "depth":
			limits.Depth = n
		case "nodes":
			limits.Nodes = uint64(n)
		case "movetime":
			limits.MoveTime = ms(n)
		case "wtime":
			limits.Time[board.White] = ms(n)
		case "btime":
			limits.Time[board.Black] = ms(n)
		case "winc":
			limits.Inc[board.White] = ms(n)
		case "binc":
			limits.Inc[board.Black] = ms(n)
		case "movestogo":
			limits.MovesToGo = n
		case "mate":
			limits.Mate = n
		case "perft":
			perft = n
		}
		i++
	}
	return limits, perft, nil
}

// handleGo starts a search with the given parameters.
func (u *UCI) handleGo(args []string) {
	limits, perft, err := parseGo(args)
	if err != nil {
		u.infoString("%v", err)
		return
	}
	if perft > 0 {
		u.handlePerft(perft)
		return
	}

	if u.engine.Searching() {
		u.infoString("%v", engine.ErrSearching)
		return
	}
	u.searchStart = time.Now()
	u.infinite = limits.Infinite
	if err := u.engine.StartSearch(u.position, u.history, limits); err != nil {
		u.infoString("%v", err)
	}
}

// sendInfo outputs search info in UCI format. Called from the search.
func (u *UCI) sendInfo(info engine.Info) {
	var b strings.Builder
	fmt.Fprintf(&b, "info depth %d seldepth %d score %s", info.Depth, info.SelDepth, engine.FormatScore(info.Score))
	switch info.Bound {
	case engine.TTLowerBound:
		b.WriteString(" lowerbound")
	case engine.TTUpperBound:
		b.WriteString(" upperbound")
	}
	fmt.Fprintf(&b, " nodes %d nps %d hashfull %d time %d", info.Nodes, info.NPS, info.HashFull, info.Time.Milliseconds())
	if len(info.PV) > 0 {
		b.WriteString(" pv ")
		b.WriteString(engine.FormatPV(info.PV))
	}
	u.println(b.String())
}

// sendBestMove reports the final result. Called once per search.
func (u *UCI) sendBestMove(res engine.Result) {
	elapsed := time.Since(u.searchStart)
	switch {
	case res.Move == board.NullMove:
		u.println("bestmove 0000")
	case res.Ponder != board.NullMove:
		u.printf("bestmove %s ponder %s\n", res.Move, res.Ponder)
	default:
		u.printf("bestmove %s\n", res.Move)
	}
	if u.store != nil {
		if err := u.store.RecordSearch(res, elapsed); err != nil {
			log.Warn().Err(err).Msg("recording search")
		}
	}
}

// handleSetOption processes "setoption name <name> [value <value>]".
func (u *UCI) handleSetOption(args []string) {
	var name, value []string
	target := (*[]string)(nil)
	for _, arg := range args {
		switch arg {
		case "name":
			target = &name
		case "value":
			target = &value
		default:
			if target != nil {
				*target = append(*target, arg)
			}
		}
	}
	key := strings.ToLower(strings.Join(name, " "))
	val := strings.Join(value, " ")

	if key == "clear hash" {
		if err := u.engine.NewGame(); err != nil {
			u.infoString("%v", err)
		}
		return
	}

	opts := u.opts
	n, err := strconv.Atoi(val)
	switch key {
	case "hash":
		opts.Hash = n
	case "threads":
		opts.Threads = n
	case "contempt":
		opts.Contempt = n
	case "skill level":
		// Zero would mean the default to the engine.
		opts.Skill = max(n, engine.SkillMin)
	default:
		u.infoString("unknown option %q", strings.Join(name, " "))
		return
	}
	if err != nil {
		u.infoString("option %s: invalid value %q", strings.Join(name, " "), val)
		return
	}

	if err := u.engine.SetConfig(opts.Apply(u.engine.Config())); err != nil {
		u.infoString("%v", err)
		return
	}
	cfg := u.engine.Config()
	u.syncOptions(cfg)
	log.Debug().
		Int("hash", cfg.HashMB).
		Int("threads", cfg.Threads).
		Int("contempt", cfg.Contempt).
		Int("skill", cfg.SkillLevel).
		Msg("options set")

	if u.store != nil {
		if err := u.store.SaveOptions(u.opts); err != nil {
			log.Warn().Err(err).Msg("saving options")
		}
	}
}

// handleDisplay prints the board, its FEN, key and checkers.
func (u *UCI) handleDisplay() {
	u.println(u.position.String())
	var checkers []string
	for bb := u.position.Checkers; bb != 0; {
		checkers = append(checkers, bb.PopLSB().String())
	}
	u.printf("Checkers: %s\n", strings.Join(checkers, " "))
}

func (u *UCI) printEval(pos *board.Position) {
	u.printf("Evaluation: %s (side to move)\n", engine.FormatScore(u.engine.Evaluate(pos)))
}

// handlePerft prints a divide of the current position.
func (u *UCI) handlePerft(depth int) {
	if depth < 1 {
		u.infoString("perft depth must be positive")
		return
	}
	start := time.Now()
	div, err := u.position.ParallelDivide(context.Background(), depth)
	if err != nil {
		u.infoString("perft: %v", err)
		return
	}
	for _, c := range div {
		u.printf("%s: %d\n", c.Move, c.Nodes)
	}
	nodes := board.Total(div)
	elapsed := time.Since(start)
	u.println()
	u.printf("Nodes searched: %d\n", nodes)
	if ms := elapsed.Milliseconds(); ms > 0 {
		log.Info().
			Str("nodes", humanize.Comma(int64(nodes))).
			Str("nps", humanize.Comma(int64(nodes*1000/uint64(ms)))).
			Dur("elapsed", elapsed).
			Msg("perft")
	}
}
