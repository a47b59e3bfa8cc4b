package board

// Zobrist keys, generated once from a fixed seed so hashes are reproducible.
var (
	zobristPiece      [12][64]uint64
	zobristEnPassant  [8]uint64
	zobristCastling   [16]uint64
	zobristSideToMove uint64
)

func init() {
	initZobrist()
}

// prng is xorshift64*. It also seeds the magic number search.
type prng struct {
	state uint64
}

func newPRNG(seed uint64) *prng {
	return &prng{state: seed}
}

func (p *prng) next() uint64 {
	p.state ^= p.state >> 12
	p.state ^= p.state << 25
	p.state ^= p.state >> 27
	return p.state * 0x2545F4914F6CDD1D
}

// sparse returns a number with roughly 1/8 of its bits set.
func (p *prng) sparse() uint64 {
	return p.next() & p.next() & p.next()
}

func initZobrist() {
	rng := newPRNG(0x98F107A2BEEF1234)

	for pc := WhitePawn; pc < NoPiece; pc++ {
		for sq := A1; sq <= H8; sq++ {
			zobristPiece[pc][sq] = rng.next()
		}
	}
	for file := range zobristEnPassant {
		zobristEnPassant[file] = rng.next()
	}
	// Each castling combination gets its own key so rights change with a
	// single XOR pair.
	for cr := range zobristCastling {
		zobristCastling[cr] = rng.next()
	}
	zobristSideToMove = rng.next()
}

// ComputeHash rebuilds Hash, PawnKey and NonPawnKey from scratch.
// The make/unmake path never calls it.
func (p *Position) ComputeHash() {
	p.Hash, p.PawnKey = 0, 0
	p.NonPawnKey = [2]uint64{}

	for sq := A1; sq <= H8; sq++ {
		pc := p.Board[sq]
		if pc == NoPiece {
			continue
		}
		key := zobristPiece[pc][sq]
		p.Hash ^= key
		if pc.Type() == Pawn {
			p.PawnKey ^= key
		} else {
			p.NonPawnKey[pc.Color()] ^= key
		}
	}

	p.Hash ^= zobristCastling[p.CastlingRights]
	if p.EnPassant != NoSquare {
		p.Hash ^= zobristEnPassant[p.EnPassant.File()]
	}
	if p.SideToMove == Black {
		p.Hash ^= zobristSideToMove
	}
}
