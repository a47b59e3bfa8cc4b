package engine

import (
	"time"

	"github.com/hailam/noxchess/internal/board"
)

// Limits are the constraints of one search. Zero values mean "no limit".
type Limits struct {
	Time      [2]time.Duration // remaining clock per color
	Inc       [2]time.Duration // increment per color
	MovesToGo int              // moves until next time control (0 = sudden death)
	MoveTime  time.Duration    // fixed time per move (overrides the clock)
	Depth     int
	Nodes     uint64
	Mate      int // stop once a mate in this many moves is found
	Infinite  bool
}

// TimeManager turns Limits into an optimum and a hard maximum.
type TimeManager struct {
	optimumTime time.Duration
	maximumTime time.Duration
	startTime   time.Time
	limited     bool
	fixed       bool // movetime: use all of it
}

// Init sets up the clock for a search. ply is the game ply of the root.
func (tm *TimeManager) Init(limits Limits, us board.Color, ply int) {
	tm.startTime = time.Now()
	tm.limited = false
	tm.fixed = false

	if limits.Infinite {
		return
	}

	if limits.MoveTime > 0 {
		tm.limited = true
		tm.fixed = true
		tm.optimumTime = limits.MoveTime
		tm.maximumTime = limits.MoveTime
		return
	}

	timeLeft := limits.Time[us]
	if timeLeft <= 0 {
		return
	}
	tm.limited = true
	inc := limits.Inc[us]

	mtg := limits.MovesToGo
	if mtg == 0 {
		// Sudden death: expect fewer moves as the game goes on.
		mtg = clamp(50-ply/4, 10, 50)
	}

	base := timeLeft/time.Duration(mtg) + inc*9/10
	tm.optimumTime = base
	if ply < 8 {
		tm.optimumTime = base * 85 / 100
	}

	tm.maximumTime = min(tm.optimumTime*5, timeLeft*8/10)

	tm.optimumTime = max(tm.optimumTime, 10*time.Millisecond)
	tm.maximumTime = max(tm.maximumTime, min(50*time.Millisecond, timeLeft/2))
	tm.optimumTime = min(tm.optimumTime, tm.maximumTime)
}

// Limited reports whether the search has a deadline at all.
func (tm *TimeManager) Limited() bool {
	return tm.limited
}

// Elapsed returns the time elapsed since search started.
func (tm *TimeManager) Elapsed() time.Duration {
	return time.Since(tm.startTime)
}

// OptimumTime returns the target time for this move.
func (tm *TimeManager) OptimumTime() time.Duration {
	return tm.optimumTime
}

// MaximumTime returns the hard deadline.
func (tm *TimeManager) MaximumTime() time.Duration {
	return tm.maximumTime
}

// PastMaximum reports that the hard deadline has passed.
func (tm *TimeManager) PastMaximum() bool {
	return tm.limited && tm.Elapsed() >= tm.maximumTime
}

// StopIteration decides between iterations whether to start another one.
// A best move that has not changed for several depths needs less time,
// except under a fixed move time.
func (tm *TimeManager) StopIteration(stability int) bool {
	if !tm.limited {
		return false
	}
	target := tm.optimumTime
	switch {
	case tm.fixed:
	case stability >= 6:
		target = target * 40 / 100
	case stability >= 4:
		target = target * 60 / 100
	case stability >= 2:
		target = target * 80 / 100
	case stability == 0:
		target = min(target*150/100, tm.maximumTime)
	}
	return tm.Elapsed() >= target
}
