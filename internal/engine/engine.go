// Package engine is the search: transposition table, move ordering,
// pruning and a lazy SMP pool of workers sharing one table.
package engine

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/hailam/noxchess/internal/board"
)

// ErrSearching is returned when an operation needs an idle engine.
var ErrSearching = errors.New("engine: search in progress")

// Engine owns the worker pool and the shared transposition table. The
// zero value is not usable; call New.
type Engine struct {
	mu      sync.Mutex // serialises StartSearch, StopSearch and SetConfig
	cfg     Config
	tt      *TranspositionTable
	workers []*Worker
	exited  sync.WaitGroup

	stop      atomic.Bool
	searching atomic.Bool
	limits    Limits
	tm        TimeManager

	stopCh chan struct{} // closed by StopSearch; ends an infinite search
	done   chan struct{} // closed once the result is published
	result Result
}

// New builds an engine and starts its workers, parked.
func New(cfg Config) *Engine {
	cfg = cfg.Normalize()
	e := &Engine{
		cfg: cfg,
		tt:  NewTranspositionTable(cfg.HashMB),
	}
	e.startWorkers(cfg.Threads)
	return e
}

func (e *Engine) startWorkers(n int) {
	var ready sync.WaitGroup
	ready.Add(n)
	e.workers = make([]*Worker, n)
	for i := range e.workers {
		w := newWorker(i, e, e.cfg.NewEvaluator())
		e.workers[i] = w
		e.exited.Add(1)
		go func() {
			defer e.exited.Done()
			w.loop(&ready)
		}()
	}
	ready.Wait()
}

func (e *Engine) stopWorkers() {
	for _, w := range e.workers {
		w.signal(actionQuit)
	}
	e.exited.Wait()
	e.workers = nil
}

func (e *Engine) waitIdle() {
	for _, w := range e.workers {
		w.waitIdle()
	}
}

// Config returns the normalised configuration in use.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetConfig applies cfg. The table is resized when the hash size
// changes; the pool is rebuilt when the thread count or the evaluator
// factory changes, which also drops the per-thread histories. A nil
// NewEvaluator keeps the current one.
func (e *Engine) SetConfig(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.searching.Load() {
		return ErrSearching
	}
	if cfg.NewEvaluator == nil {
		cfg.NewEvaluator = e.cfg.NewEvaluator
	}
	cfg = cfg.Normalize()
	newEval := reflect.ValueOf(cfg.NewEvaluator).Pointer() != reflect.ValueOf(e.cfg.NewEvaluator).Pointer()
	e.waitIdle()

	if cfg.HashMB != e.cfg.HashMB {
		e.tt.Resize(cfg.HashMB)
	}
	rebuild := newEval || cfg.Threads != len(e.workers)
	e.cfg = cfg
	if rebuild {
		e.stopWorkers()
		e.startWorkers(cfg.Threads)
		log.Debug().Int("threads", cfg.Threads).Msg("worker pool rebuilt")
	}
	return nil
}

// NewGame forgets everything learned from previous searches.
func (e *Engine) NewGame() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.searching.Load() {
		return ErrSearching
	}
	e.waitIdle()
	e.tt.Clear()
	for _, w := range e.workers {
		w.hist.Clear()
		w.corr.Clear()
	}
	return nil
}

// StartSearch starts searching pos in the background and returns at
// once. history holds the hashes of the positions played before pos,
// oldest first, for repetition detection. The result is delivered to
// Config.OnResult and is also available from Wait.
func (e *Engine) StartSearch(pos *board.Position, history []uint64, limits Limits) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.searching.CompareAndSwap(false, true) {
		return ErrSearching
	}
	e.waitIdle()

	e.stop.Store(false)
	if d := e.cfg.MaxDepth(); d > 0 && (limits.Depth == 0 || limits.Depth > d) {
		limits.Depth = d
	}
	e.limits = limits
	ply := 2*(pos.FullMoveNumber-1) + int(pos.SideToMove)
	e.tm.Init(limits, pos.SideToMove, ply)
	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})
	e.result = Result{}
	e.tt.IncreaseAge()

	for _, w := range e.workers {
		w.prepare(pos, history, e.cfg.Contempt)
	}
	log.Debug().Str("fen", pos.FEN()).Int("threads", len(e.workers)).Msg("search started")
	// Helpers first so the main worker never finishes before they start.
	for i := len(e.workers) - 1; i >= 0; i-- {
		e.workers[i].signal(actionSearch)
	}
	return nil
}

// StopSearch aborts the running search and blocks until its result is
// published and every worker has parked. It is a no-op when idle.
func (e *Engine) StopSearch() {
	e.stop.Store(true)
	e.mu.Lock()
	if e.stopCh != nil {
		select {
		case <-e.stopCh:
		default:
			close(e.stopCh)
		}
	}
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
	e.mu.Lock()
	e.waitIdle()
	e.mu.Unlock()
}

// Wait blocks until the current search, if any, has finished and
// returns its result.
func (e *Engine) Wait() Result {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
	return e.Result()
}

// Search runs a search to completion, or until ctx is cancelled.
func (e *Engine) Search(ctx context.Context, pos *board.Position, history []uint64, limits Limits) (Result, error) {
	if err := e.StartSearch(pos, history, limits); err != nil {
		return Result{}, err
	}
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	select {
	case <-done:
	case <-ctx.Done():
		e.StopSearch()
	}
	return e.Result(), nil
}

// Searching reports whether a search is running.
func (e *Engine) Searching() bool {
	return e.searching.Load()
}

// Result returns the result of the last finished search.
func (e *Engine) Result() Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

func (e *Engine) totalNodes() uint64 {
	var n uint64
	for _, w := range e.workers {
		n += w.Nodes()
	}
	return n
}

// report sends an Info for the main worker's latest iteration.
func (e *Engine) report(w *Worker, depth, score int, bound TTFlag, pv []board.Move) {
	if e.cfg.OnInfo == nil {
		return
	}
	elapsed := e.tm.Elapsed()
	nodes := e.totalNodes()
	var nps uint64
	if ms := elapsed.Milliseconds(); ms > 0 {
		nps = nodes * 1000 / uint64(ms)
	}
	e.cfg.OnInfo(Info{
		Depth:    depth,
		SelDepth: w.selDepth,
		Nodes:    nodes,
		Time:     elapsed,
		NPS:      nps,
		HashFull: e.tt.HashFull(),
		Score:    score,
		Bound:    bound,
		PV:       pv,
	})
}

// finish runs on the main worker once its iterations are over. An
// infinite search holds its result until told to stop. The deepest
// completed iteration of any worker wins, ties going to the better score.
func (e *Engine) finish(main *Worker) {
	if e.limits.Infinite && !e.stop.Load() {
		<-e.stopCh
	}
	e.stop.Store(true)
	for _, w := range e.workers[1:] {
		w.waitIdle()
	}

	best := main.completed
	for _, w := range e.workers[1:] {
		r := w.completed
		if r.Move == board.NullMove {
			continue
		}
		if r.Depth > best.Depth || (r.Depth == best.Depth && r.Score > best.Score) {
			best = r
		}
	}
	best.Nodes = e.totalNodes()

	log.Debug().
		Int("depth", best.Depth).
		Str("score", FormatScore(best.Score)).
		Uint64("nodes", best.Nodes).
		Dur("elapsed", e.tm.Elapsed()).
		Msg("search finished")

	e.mu.Lock()
	e.result = best
	done := e.done
	e.mu.Unlock()
	if e.cfg.OnResult != nil {
		e.cfg.OnResult(best)
	}
	e.searching.Store(false)
	close(done)
}

// Perft counts the leaf nodes of pos at depth, one goroutine per root move.
func (e *Engine) Perft(ctx context.Context, pos *board.Position, depth int) (uint64, error) {
	if depth <= 0 {
		return 1, nil
	}
	div, err := pos.ParallelDivide(ctx, depth)
	if err != nil {
		return 0, err
	}
	return board.Total(div), nil
}

// Evaluate returns the static evaluation of pos from the side to move.
func (e *Engine) Evaluate(pos *board.Position) int {
	return e.Config().NewEvaluator().Evaluate(pos)
}

// Close stops any search and shuts the pool down.
func (e *Engine) Close() {
	e.StopSearch()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.waitIdle()
	e.stopWorkers()
}
