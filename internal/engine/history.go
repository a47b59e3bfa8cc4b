package engine

import (
	"github.com/hailam/noxchess/internal/board"
)

// historyMax is the gravity constant K of every history table: an entry
// never leaves [-historyMax, historyMax].
const historyMax = 16384

// updateGravity applies v += amount - v*|amount|/K.
func updateGravity(v *int16, amount int) {
	amount = clamp(amount, -historyMax, historyMax)
	*v = int16(int(*v) + amount - int(*v)*abs(amount)/historyMax)
}

// historyBonus is the update size for a node searched to depth.
func historyBonus(depth int) int {
	return min(16*depth*depth+32*depth, 1600)
}

// contHist is the continuation history row following one (piece, to) pair.
type contHist [12][64]int16

// noPieceRow indexes the continuation row used after a null move or at root.
const noPieceRow = int(board.NoPiece)

// History holds one worker's move-ordering statistics. Workers never
// share it.
type History struct {
	killers    [MaxPly + 2]board.Move
	counters   [64][64]board.Move
	positional [2][8192]board.Move

	// quiet is indexed by moved piece, destination and whether the origin
	// and destination are attacked by the opponent.
	quiet   [12][64][2][2]int16
	capture [12][64][6]int16
	cont    [13][64]contHist
}

// NewHistory allocates cleared tables.
func NewHistory() *History {
	return &History{}
}

// Clear resets everything. Called between games.
func (h *History) Clear() {
	*h = History{}
}

// contRow returns the continuation row for a move just played.
func (h *History) contRow(pc board.Piece, to board.Square) *contHist {
	return &h.cont[pc][to]
}

// nullRow is the row used when the previous ply had no real move.
func (h *History) nullRow() *contHist {
	return &h.cont[noPieceRow][0]
}

func (h *History) resetKiller(ply int) {
	h.killers[ply] = board.NullMove
}

func (h *History) setKiller(m board.Move, ply int) {
	h.killers[ply] = m
}

func (h *History) setCounter(prev, m board.Move) {
	if prev != board.NullMove {
		h.counters[prev.From()][prev.To()] = m
	}
}

func (h *History) setPositional(pos *board.Position, m board.Move) {
	h.positional[pos.SideToMove][pos.PawnKey&8191] = m
}

// refutations returns the killer, counter and positional moves for a node.
func (h *History) refutations(pos *board.Position, ply int, prev board.Move) (killer, counter, positional board.Move) {
	killer = h.killers[ply]
	if prev != board.NullMove {
		counter = h.counters[prev.From()][prev.To()]
	}
	positional = h.positional[pos.SideToMove][pos.PawnKey&8191]
	return killer, counter, positional
}

func threatIndex(pos *board.Position, sq board.Square) int {
	if pos.Threats.IsSet(sq) {
		return 1
	}
	return 0
}

// quietScore sums butterfly and continuation history for a quiet move.
func (h *History) quietScore(pos *board.Position, m board.Move, c1, c2 *contHist) int {
	pc := pos.MovedPiece(m)
	from, to := m.From(), m.To()
	return int(h.quiet[pc][to][threatIndex(pos, from)][threatIndex(pos, to)]) +
		int(c1[pc][to]) + int(c2[pc][to])
}

func (h *History) captureScore(pos *board.Position, m board.Move) int {
	return int(h.capture[pos.MovedPiece(m)][m.To()][pos.CapturedType(m)])
}

// updateQuiet rewards (amount > 0) or penalises a quiet move.
func (h *History) updateQuiet(pos *board.Position, m board.Move, c1, c2 *contHist, amount int) {
	pc := pos.MovedPiece(m)
	from, to := m.From(), m.To()
	updateGravity(&h.quiet[pc][to][threatIndex(pos, from)][threatIndex(pos, to)], amount)
	updateGravity(&c1[pc][to], amount)
	updateGravity(&c2[pc][to], amount)
}

func (h *History) updateCapture(pos *board.Position, m board.Move, amount int) {
	ct := pos.CapturedType(m)
	if ct == board.NoPieceType {
		return
	}
	updateGravity(&h.capture[pos.MovedPiece(m)][m.To()][ct], amount)
}
