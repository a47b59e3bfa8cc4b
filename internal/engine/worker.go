package engine

import (
	"sync"
	"sync/atomic"

	"github.com/hailam/noxchess/internal/board"
)

// stackOffset lets the search read two plies behind the root.
const stackOffset = 4

type workerAction int

const (
	actionSleep workerAction = iota
	actionSearch
	actionQuit
)

// searchStack is the per-ply state of the current line.
type searchStack struct {
	move       board.Move
	cont       *contHist
	staticEval int
	rawEval    int
	excluded   board.Move
	doubleExt  int
}

// Worker is one lazy SMP search thread. Everything here is owned by the
// worker's goroutine except nodes, which the coordinator sums, and the
// parking fields guarded by mu.
type Worker struct {
	id  int
	eng *Engine

	pos   *board.Position
	eval  Evaluator
	hist  *History
	corr  *CorrectionHistory
	pv    PVTable
	stack [MaxPly + stackOffset + 2]searchStack

	// keys holds the hash of every position from the game start to the
	// current node. rootIndex marks the search root.
	keys      []uint64
	rootIndex int

	nodes      atomic.Uint64
	localNodes uint64
	selDepth   int
	nmpMinPly  int
	rootColor  board.Color
	contempt   int

	completed Result

	mu     sync.Mutex
	cond   *sync.Cond
	action workerAction
}

func newWorker(id int, eng *Engine, eval Evaluator) *Worker {
	w := &Worker{
		id:   id,
		eng:  eng,
		eval: eval,
		hist: NewHistory(),
		corr: &CorrectionHistory{},
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *Worker) isMain() bool {
	return w.id == 0
}

// Nodes returns the number of nodes searched in the current search.
func (w *Worker) Nodes() uint64 {
	return w.nodes.Load()
}

// loop parks the goroutine until told to search or quit.
func (w *Worker) loop(ready *sync.WaitGroup) {
	w.mu.Lock()
	ready.Done()
	for {
		for w.action == actionSleep {
			w.cond.Wait()
		}
		if w.action == actionQuit {
			w.mu.Unlock()
			return
		}
		w.mu.Unlock()

		w.search()

		w.mu.Lock()
		w.action = actionSleep
		w.cond.Broadcast()
	}
}

func (w *Worker) signal(a workerAction) {
	w.mu.Lock()
	w.action = a
	w.cond.Broadcast()
	w.mu.Unlock()
}

// waitIdle blocks until the worker has parked.
func (w *Worker) waitIdle() {
	w.mu.Lock()
	for w.action == actionSearch {
		w.cond.Wait()
	}
	w.mu.Unlock()
}

// prepare copies the root into the worker. Called by the coordinator
// while the worker is parked.
func (w *Worker) prepare(pos *board.Position, history []uint64, contempt int) {
	w.pos = pos.Copy()
	w.keys = append(append(w.keys[:0], history...), pos.Hash)
	w.rootIndex = len(w.keys) - 1
	w.rootColor = pos.SideToMove
	w.contempt = contempt
	w.nodes.Store(0)
	w.localNodes = 0
	w.nmpMinPly = 0
	w.completed = Result{}
	for i := range w.stack {
		w.stack[i] = searchStack{cont: w.hist.nullRow(), staticEval: noEval}
	}
}

// stopped reports the shared abort flag.
func (w *Worker) stopped() bool {
	return w.eng.stop.Load()
}

// countNode bumps the counters and, every 1024 nodes, checks the clock
// and the node budget. Budgets only bite once depth 1 is complete so a
// move is always available.
func (w *Worker) countNode() bool {
	w.localNodes++
	w.nodes.Add(1)
	if w.localNodes&1023 == 0 && w.completed.Depth > 0 {
		e := w.eng
		if e.tm.PastMaximum() || (e.limits.Nodes > 0 && e.totalNodes() >= e.limits.Nodes) {
			e.stop.Store(true)
		}
	}
	return w.stopped()
}

func (w *Worker) evaluate() int {
	return w.eval.Evaluate(w.pos)
}

// drawScore is the value of a draw for the side to move: the root side
// pays the contempt. The low bit varies with the node count to avoid
// repetition blindness.
func (w *Worker) drawScore() int {
	s := -w.contempt
	if w.pos.SideToMove != w.rootColor {
		s = -s
	}
	return s + 2*int(w.localNodes&1) - 1
}

// isDraw detects the fifty-move rule, insufficient material and
// repetitions. Repeating a position of the current line (the root
// included) is already a draw; a position from the game before the root
// needs to have occurred twice.
func (w *Worker) isDraw() bool {
	pos := w.pos
	if pos.HalfMoveClock >= 100 && (!pos.InCheck() || pos.HasLegalMoves()) {
		return true
	}
	if pos.IsInsufficientMaterial() {
		return true
	}
	n := len(w.keys) - 1
	stop := max(n-pos.HalfMoveClock, 0)
	seen := 0
	for i := n - 4; i >= stop; i -= 2 {
		if w.keys[i] != pos.Hash {
			continue
		}
		if i >= w.rootIndex {
			return true
		}
		seen++
		if seen >= 2 {
			return true
		}
	}
	return false
}

func (w *Worker) push(m board.Move) board.Undo {
	u := w.pos.MakeMove(m)
	w.keys = append(w.keys, w.pos.Hash)
	return u
}

func (w *Worker) pop(m board.Move, u board.Undo) {
	w.keys = w.keys[:len(w.keys)-1]
	w.pos.UnmakeMove(m, u)
}

// negamax is the principal variation search.
func (w *Worker) negamax(depth, ply, alpha, beta int, cutNode bool) int {
	w.pv.init(ply)
	pos := w.pos
	inCheck := pos.InCheck()
	if inCheck {
		depth++
	}
	if depth <= 0 {
		return w.qsearch(ply, alpha, beta)
	}
	if w.countNode() {
		return 0
	}

	root := ply == 0
	pvNode := beta-alpha > 1
	ss := &w.stack[ply+stackOffset]
	prev := &w.stack[ply+stackOffset-1]
	excluded := ss.excluded
	w.selDepth = max(w.selDepth, ply)

	if !root {
		if w.isDraw() {
			return w.drawScore()
		}
		if ply >= MaxPly-1 {
			if inCheck {
				return 0
			}
			return w.evaluate()
		}
		alpha = max(alpha, -MateScore+ply)
		beta = min(beta, MateScore-ply-1)
		if alpha >= beta {
			return alpha
		}
	}
	w.hist.resetKiller(ply + 1)
	w.stack[ply+stackOffset+1].doubleExt = ss.doubleExt

	var tte TTEntry
	ttHit := false
	if excluded == board.NullMove {
		tte, ttHit = w.eng.tt.Probe(pos.Hash)
	}
	ttMove := board.NullMove
	ttScore := 0
	if ttHit {
		ttMove = tte.Move
		ttScore = scoreFromTT(int(tte.Score), ply)
		tte.Score = int16(ttScore)
	}
	ttPV := pvNode || (ttHit && tte.PV)

	if !pvNode && ttHit && pos.HalfMoveClock < 90 && tte.CanCut(depth, alpha, beta) {
		return ttScore
	}

	// Static evaluation.
	eval := noEval
	switch {
	case inCheck:
		ss.staticEval, ss.rawEval = noEval, noEval
	case excluded != board.NullMove:
		eval = ss.staticEval
	default:
		raw := int(tte.Eval)
		if !ttHit || raw == noEval {
			raw = w.evaluate()
		}
		ss.rawEval = raw
		ss.staticEval = w.corr.Apply(pos, raw)
		eval = ss.staticEval
		if ttHit && abs(ttScore) < MateInMaxPly &&
			(tte.Flag == TTExact || (tte.Flag == TTLowerBound && ttScore > eval) || (tte.Flag == TTUpperBound && ttScore < eval)) {
			eval = ttScore
		}
	}
	improving := !inCheck && ply >= 2 && ss.staticEval > w.stack[ply+stackOffset-2].staticEval

	if !pvNode && !inCheck && excluded == board.NullMove {
		// Reverse futility.
		margin := 80 * depth
		if improving {
			margin -= 80
		}
		if depth <= 8 && eval-margin >= beta && eval < MateInMaxPly {
			return eval
		}

		// Razoring.
		if depth <= 3 && eval+250*depth < alpha {
			if v := w.qsearch(ply, alpha-1, alpha); v < alpha {
				return v
			}
		}

		// Null move, not in zugzwang-prone material and not twice in a row.
		if depth >= 3 && eval >= beta && ss.staticEval >= beta-20*depth+180 &&
			prev.move != board.NullMove && ply >= w.nmpMinPly &&
			pos.HasNonPawnMaterial(pos.SideToMove) && beta > -MateInMaxPly {
			r := 3 + depth/3 + min((eval-beta)/200, 3)
			ss.move = board.NullMove
			ss.cont = w.hist.nullRow()
			nu := pos.MakeNullMove()
			w.keys = append(w.keys, pos.Hash)
			score := -w.negamax(depth-r, ply+1, -beta, -beta+1, !cutNode)
			w.keys = w.keys[:len(w.keys)-1]
			pos.UnmakeNullMove(nu)
			if w.stopped() {
				return 0
			}
			if score >= beta {
				if score >= MateInMaxPly {
					score = beta
				}
				if w.nmpMinPly > 0 || depth < 12 {
					return score
				}
				// Verify with null moves disabled for the next plies.
				w.nmpMinPly = ply + 3*(depth-r)/4
				v := w.negamax(depth-r, ply, beta-1, beta, false)
				w.nmpMinPly = 0
				if v >= beta {
					return score
				}
			}
		}
	}

	// Internal iterative reduction.
	if depth >= 4 && ttMove == board.NullMove && (pvNode || cutNode) {
		depth--
	}

	c1 := prev.cont
	c2 := w.stack[ply+stackOffset-2].cont
	killer, counter, positional := w.hist.refutations(pos, ply, prev.move)
	var mp MovePicker
	mp.init(pos, &orderContext{
		hist:       w.hist,
		ttMove:     ttMove,
		killer:     killer,
		counter:    counter,
		positional: positional,
		c1:         c1,
		c2:         c2,
	})

	var quiets [64]board.Move
	var captures [32]board.Move
	nq, nc := 0, 0
	bestScore := -Infinity
	bestMove := board.NullMove
	moveCount := 0

	for {
		m, _, ok := mp.next()
		if !ok {
			break
		}
		if m == excluded {
			continue
		}
		moveCount++
		quiet := pos.IsQuiet(m)

		if !root && bestScore > -MateInMaxPly && pos.HasNonPawnMaterial(pos.SideToMove) {
			lmpLimit := 3 + depth*depth
			if !improving {
				lmpLimit /= 2
			}
			lmrDepth := max(depth-1-lmr(depth, moveCount), 0)
			if quiet {
				if moveCount > lmpLimit && !inCheck {
					continue
				}
				if !inCheck && lmrDepth <= 8 && ss.staticEval+100+120*lmrDepth <= alpha {
					continue
				}
				if !SEE(pos, m, -25*lmrDepth*lmrDepth) {
					continue
				}
			} else if depth <= 8 && !SEE(pos, m, -90*depth) {
				continue
			}
		}

		ext := 0
		if !root && depth >= 7 && m == ttMove && excluded == board.NullMove &&
			tte.Flag == TTLowerBound && tte.Depth >= depth-3 && abs(ttScore) < MateInMaxPly {
			singBeta := ttScore - 2*depth
			ss.excluded = m
			v := w.negamax((depth-1)/2, ply, singBeta-1, singBeta, cutNode)
			ss.excluded = board.NullMove
			if w.stopped() {
				return 0
			}
			switch {
			case v < singBeta:
				ext = 1
				if !pvNode && v < singBeta-20 && ss.doubleExt <= 6 {
					ext = 2
					w.stack[ply+stackOffset+1].doubleExt = ss.doubleExt + 1
				}
			case singBeta >= beta:
				// Multi-cut: more than one move beats beta.
				return singBeta
			case ttScore >= beta:
				ext = -1
			}
		}
		newDepth := depth - 1 + ext

		ss.move = m
		ss.cont = w.hist.contRow(pos.MovedPiece(m), m.To())
		histScore := 0
		if quiet {
			histScore = w.hist.quietScore(pos, m, c1, c2)
		}
		u := w.push(m)

		var score int
		if depth >= 2 && moveCount > 1+boolInt(root) && (quiet || !ttPV) {
			r := lmr(depth, moveCount)
			if ttPV {
				r--
			}
			if cutNode {
				r++
			}
			if !improving {
				r++
			}
			if m == killer || m == counter {
				r--
			}
			r -= histScore / 8192
			d := clamp(newDepth-r, 1, newDepth+1)
			score = -w.negamax(d, ply+1, -alpha-1, -alpha, true)
			if score > alpha && d < newDepth {
				score = -w.negamax(newDepth, ply+1, -alpha-1, -alpha, !cutNode)
			}
		} else if !pvNode || moveCount > 1 {
			score = -w.negamax(newDepth, ply+1, -alpha-1, -alpha, !cutNode)
		}
		if pvNode && (moveCount == 1 || score > alpha) {
			score = -w.negamax(newDepth, ply+1, -beta, -alpha, false)
		}

		w.pop(m, u)
		if w.stopped() {
			return 0
		}

		if score > bestScore {
			bestScore = score
			if score > alpha {
				bestMove = m
				if pvNode {
					w.pv.update(ply, m)
				}
				if score >= beta {
					break
				}
				alpha = score
			}
		}
		if m != bestMove {
			if quiet && nq < len(quiets) {
				quiets[nq] = m
				nq++
			} else if !quiet && nc < len(captures) {
				captures[nc] = m
				nc++
			}
		}
	}

	if moveCount == 0 {
		switch {
		case excluded != board.NullMove:
			return alpha
		case mp.count() > 0:
			// Everything was pruned.
			return alpha
		case inCheck:
			return -MateScore + ply
		}
		return 0
	}

	if bestScore >= beta {
		bonus := historyBonus(depth)
		if pos.IsQuiet(bestMove) {
			w.hist.updateQuiet(pos, bestMove, c1, c2, bonus)
			w.hist.setKiller(bestMove, ply)
			w.hist.setCounter(prev.move, bestMove)
			w.hist.setPositional(pos, bestMove)
			for _, q := range quiets[:nq] {
				w.hist.updateQuiet(pos, q, c1, c2, -bonus)
			}
		} else {
			w.hist.updateCapture(pos, bestMove, bonus)
		}
		for _, c := range captures[:nc] {
			w.hist.updateCapture(pos, c, -bonus)
		}
	}

	if excluded == board.NullMove {
		flag := TTUpperBound
		switch {
		case bestScore >= beta:
			flag = TTLowerBound
		case bestMove != board.NullMove:
			flag = TTExact
		}
		w.eng.tt.Store(pos.Hash, depth, scoreToTT(bestScore, ply), ss.rawEval, flag, bestMove, ttPV)

		if !inCheck && (bestMove == board.NullMove || pos.IsQuiet(bestMove)) &&
			!(flag == TTLowerBound && bestScore <= ss.staticEval) &&
			!(flag == TTUpperBound && bestScore >= ss.staticEval) &&
			abs(bestScore) < MateInMaxPly {
			w.corr.Update(pos, ss.rawEval, bestScore, depth)
		}
	}
	return bestScore
}

// qsearch resolves captures until the position is quiet. In check it
// searches every evasion so mates are seen.
func (w *Worker) qsearch(ply, alpha, beta int) int {
	w.pv.init(ply)
	if w.countNode() {
		return 0
	}
	pos := w.pos
	w.selDepth = max(w.selDepth, ply)
	if w.isDraw() {
		return w.drawScore()
	}
	inCheck := pos.InCheck()
	if ply >= MaxPly-1 {
		if inCheck {
			return 0
		}
		return w.evaluate()
	}
	pvNode := beta-alpha > 1

	tte, ttHit := w.eng.tt.Probe(pos.Hash)
	ttScore := 0
	if ttHit {
		ttScore = scoreFromTT(int(tte.Score), ply)
		tte.Score = int16(ttScore)
		if !pvNode && tte.CanCut(0, alpha, beta) {
			return ttScore
		}
	}

	raw := noEval
	bestScore := -Infinity
	standPat := -Infinity
	if !inCheck {
		raw = int(tte.Eval)
		if !ttHit || raw == noEval {
			raw = w.evaluate()
		}
		standPat = w.corr.Apply(pos, raw)
		if ttHit && abs(ttScore) < MateInMaxPly &&
			(tte.Flag == TTExact || (tte.Flag == TTLowerBound && ttScore > standPat) || (tte.Flag == TTUpperBound && ttScore < standPat)) {
			standPat = ttScore
		}
		if standPat >= beta {
			if !ttHit {
				w.eng.tt.Store(pos.Hash, 0, scoreToTT(standPat, ply), raw, TTLowerBound, board.NullMove, false)
			}
			return standPat
		}
		alpha = max(alpha, standPat)
		bestScore = standPat
	}

	ss := &w.stack[ply+stackOffset]
	prev := &w.stack[ply+stackOffset-1]
	var mp MovePicker
	mp.init(pos, &orderContext{
		hist:   w.hist,
		ttMove: tte.Move,
		c1:     prev.cont,
		c2:     w.stack[ply+stackOffset-2].cont,
		noisy:  !inCheck,
	})

	bestMove := board.NullMove
	moveCount := 0
	for {
		m, _, ok := mp.next()
		if !ok {
			break
		}
		moveCount++
		if !inCheck {
			if !m.IsPromotion() && standPat+seeValue[pos.CapturedType(m)]+200 < alpha {
				continue
			}
			if !SEE(pos, m, 0) {
				continue
			}
		}

		ss.move = m
		ss.cont = w.hist.contRow(pos.MovedPiece(m), m.To())
		u := w.push(m)
		score := -w.qsearch(ply+1, -beta, -alpha)
		w.pop(m, u)
		if w.stopped() {
			return 0
		}

		if score > bestScore {
			bestScore = score
			if score > alpha {
				bestMove = m
				if pvNode {
					w.pv.update(ply, m)
				}
				if score >= beta {
					break
				}
				alpha = score
			}
		}
	}

	if inCheck && moveCount == 0 {
		return -MateScore + ply
	}

	flag := TTUpperBound
	switch {
	case bestScore >= beta:
		flag = TTLowerBound
	case pvNode && bestMove != board.NullMove:
		flag = TTExact
	}
	w.eng.tt.Store(pos.Hash, 0, scoreToTT(bestScore, ply), raw, flag, bestMove, pvNode)
	return bestScore
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
