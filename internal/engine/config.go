package engine

// Option bounds.
const (
	HashMin     = 1
	HashDefault = 64
	HashMax     = 1 << 20

	ThreadsMin     = 1
	ThreadsDefault = 1
	ThreadsMax     = 1024

	ContemptMin     = -100
	ContemptDefault = 0
	ContemptMax     = 100

	SkillMin     = 1
	SkillDefault = SkillMax
	SkillMax     = 20
)

// Config is everything the engine needs at construction. It replaces
// process-wide settings: pass a new one to SetConfig to change it.
type Config struct {
	HashMB   int // transposition table size in MiB
	Threads  int
	Contempt int // centipawns the root side gives up to avoid a draw

	// SkillLevel below SkillMax caps the search depth. Zero means SkillDefault.
	SkillLevel int

	// NewEvaluator builds one evaluator per worker. Nil means NewClassical.
	NewEvaluator func() Evaluator

	// OnInfo receives a report after every completed iteration of the
	// main worker. It is called from the search goroutine.
	OnInfo func(Info)

	// OnResult receives the result of every search, once.
	OnResult func(Result)
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		HashMB:     HashDefault,
		Threads:    ThreadsDefault,
		Contempt:   ContemptDefault,
		SkillLevel: SkillDefault,
	}
}

// Normalize clamps every value into range and fills in defaults.
func (c Config) Normalize() Config {
	c.HashMB = clamp(c.HashMB, HashMin, HashMax)
	c.Threads = clamp(c.Threads, ThreadsMin, ThreadsMax)
	c.Contempt = clamp(c.Contempt, ContemptMin, ContemptMax)
	if c.SkillLevel == 0 {
		c.SkillLevel = SkillDefault
	}
	c.SkillLevel = clamp(c.SkillLevel, SkillMin, SkillMax)
	if c.NewEvaluator == nil {
		c.NewEvaluator = func() Evaluator { return NewClassical() }
	}
	return c
}

// MaxDepth is the depth cap of the skill level, never below 2. Zero
// means full strength.
func (c Config) MaxDepth() int {
	if c.SkillLevel >= SkillMax || c.SkillLevel <= 0 {
		return 0
	}
	return max(2, c.SkillLevel)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
