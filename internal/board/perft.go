package board

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Perft counts the leaf nodes of the legal move tree to the given depth.
func (p *Position) Perft(depth int) uint64 {
	if depth <= 0 {
		return 1
	}
	var ml MoveList
	p.GenerateLegalMoves(&ml)
	if depth == 1 {
		return uint64(ml.Len())
	}
	var nodes uint64
	for _, m := range ml.Slice() {
		u := p.MakeMove(m)
		nodes += p.Perft(depth - 1)
		p.UnmakeMove(m, u)
	}
	return nodes
}

// PerftCount is the subtree size under one root move.
type PerftCount struct {
	Move  Move
	Nodes uint64
}

// Divide returns per-root-move perft counts, sorted by move text.
func (p *Position) Divide(depth int) []PerftCount {
	var ml MoveList
	p.GenerateLegalMoves(&ml)
	out := make([]PerftCount, 0, ml.Len())
	for _, m := range ml.Slice() {
		u := p.MakeMove(m)
		out = append(out, PerftCount{Move: m, Nodes: p.Perft(depth - 1)})
		p.UnmakeMove(m, u)
	}
	sortCounts(out)
	return out
}

// ParallelDivide is Divide with each root move counted on its own copy of
// the position in a separate goroutine. The receiver is not modified.
func (p *Position) ParallelDivide(ctx context.Context, depth int) ([]PerftCount, error) {
	var ml MoveList
	p.GenerateLegalMoves(&ml)
	out := make([]PerftCount, ml.Len())

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, m := range ml.Slice() {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			child := p.Copy()
			child.MakeMove(m)
			out[i] = PerftCount{Move: m, Nodes: child.Perft(depth - 1)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sortCounts(out)
	return out, nil
}

// Total sums a divide result.
func Total(counts []PerftCount) uint64 {
	var n uint64
	for _, c := range counts {
		n += c.Nodes
	}
	return n
}

func sortCounts(c []PerftCount) {
	sort.Slice(c, func(i, j int) bool { return c[i].Move.String() < c[j].Move.String() })
}
