package board

import "math/bits"

// Magic is the fancy-magic lookup for one slider on one square.
type Magic struct {
	Mask    Bitboard
	Magic   uint64
	Shift   uint8
	Attacks []Bitboard
}

func (m *Magic) index(occupied Bitboard) uint64 {
	return (uint64(occupied&m.Mask) * m.Magic) >> m.Shift
}

var (
	bishopMagics [64]Magic
	rookMagics   [64]Magic

	bishopTable [5248]Bitboard
	rookTable   [102400]Bitboard
)

// initMagics searches a magic multiplier for every square and fills the
// attack tables. Candidates are drawn from a seeded PRNG and each one is
// verified against ray-cast attacks for every subset of the mask, so the
// tables are correct by construction and identical from run to run.
func initMagics() {
	fillMagics(bishopTable[:], &bishopMagics, bishopMask, bishopAttacksSlow, 0x1D8E4E27C47D124F)
	fillMagics(rookTable[:], &rookMagics, rookMask, rookAttacksSlow, 0x6C8E9CF570932BD5)
}

func fillMagics(table []Bitboard, magics *[64]Magic, maskOf func(Square) Bitboard,
	slow func(Square, Bitboard) Bitboard, seed uint64) {

	var (
		occupancy [4096]Bitboard
		reference [4096]Bitboard
		epoch     [4096]int
		attempt   int
	)
	rng := newPRNG(seed)
	offset := 0

	for sq := A1; sq <= H8; sq++ {
		mask := maskOf(sq)
		n := mask.PopCount()
		m := &magics[sq]
		m.Mask = mask
		m.Shift = uint8(64 - n)
		m.Attacks = table[offset : offset+1<<n]

		// Carry-Rippler walk over every subset of the mask.
		size := 0
		for b := Bitboard(0); ; {
			occupancy[size] = b
			reference[size] = slow(sq, b)
			size++
			b = (b - mask) & mask
			if b == 0 {
				break
			}
		}

		for {
			m.Magic = 0
			for bits.OnesCount64((m.Magic*uint64(mask))>>56) < 6 {
				m.Magic = rng.sparse()
			}
			attempt++
			ok := true
			for i := 0; i < size; i++ {
				idx := m.index(occupancy[i])
				if epoch[idx] < attempt {
					epoch[idx] = attempt
					m.Attacks[idx] = reference[i]
				} else if m.Attacks[idx] != reference[i] {
					ok = false
					break
				}
			}
			if ok {
				break
			}
		}
		offset += size
	}
}

// bishopMask is the relevant occupancy for a bishop; edges never block.
func bishopMask(sq Square) Bitboard {
	return bishopAttacksSlow(sq, 0) &^ (Rank1 | Rank8 | FileA | FileH)
}

// rookMask is the relevant occupancy for a rook, excluding the ray ends.
func rookMask(sq Square) Bitboard {
	file := FileMask[sq.File()] &^ (Rank1 | Rank8)
	rank := RankMask[sq.Rank()] &^ (FileA | FileH)
	return (file | rank) &^ SquareBB(sq)
}

var (
	bishopDirs = [4][2]int{{1, 1}, {-1, 1}, {1, -1}, {-1, -1}}
	rookDirs   = [4][2]int{{0, 1}, {0, -1}, {1, 0}, {-1, 0}}
)

func slideAttacks(sq Square, occupied Bitboard, dirs [4][2]int) Bitboard {
	var attacks Bitboard
	for _, d := range dirs {
		f, r := sq.File()+d[0], sq.Rank()+d[1]
		for f >= 0 && f <= 7 && r >= 0 && r <= 7 {
			s := SquareBB(NewSquare(f, r))
			attacks |= s
			if occupied&s != 0 {
				break
			}
			f += d[0]
			r += d[1]
		}
	}
	return attacks
}

func bishopAttacksSlow(sq Square, occupied Bitboard) Bitboard {
	return slideAttacks(sq, occupied, bishopDirs)
}

func rookAttacksSlow(sq Square, occupied Bitboard) Bitboard {
	return slideAttacks(sq, occupied, rookDirs)
}

// BishopAttacks returns diagonal attacks from sq given the occupancy.
func BishopAttacks(sq Square, occupied Bitboard) Bitboard {
	m := &bishopMagics[sq]
	return m.Attacks[m.index(occupied)]
}

// RookAttacks returns orthogonal attacks from sq given the occupancy.
func RookAttacks(sq Square, occupied Bitboard) Bitboard {
	m := &rookMagics[sq]
	return m.Attacks[m.index(occupied)]
}

// QueenAttacks is the union of bishop and rook attacks.
func QueenAttacks(sq Square, occupied Bitboard) Bitboard {
	return BishopAttacks(sq, occupied) | RookAttacks(sq, occupied)
}
