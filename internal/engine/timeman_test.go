package engine

import (
	"testing"
	"time"

	"github.com/hailam/noxchess/internal/board"
)

// started pretends the search began elapsed ago.
func started(tm *TimeManager, elapsed time.Duration) {
	tm.startTime = time.Now().Add(-elapsed)
}

func TestTimeManagerMoveTime(t *testing.T) {
	var tm TimeManager
	tm.Init(Limits{MoveTime: 200 * time.Millisecond}, board.White, 0)
	if tm.OptimumTime() != 200*time.Millisecond || tm.MaximumTime() != 200*time.Millisecond {
		t.Fatalf("optimum %v maximum %v", tm.OptimumTime(), tm.MaximumTime())
	}

	// A stable best move must not end a fixed move time early.
	started(&tm, 100*time.Millisecond)
	for _, stability := range []int{0, 2, 4, 6, 10} {
		if tm.StopIteration(stability) {
			t.Errorf("stopped at half the move time with stability %d", stability)
		}
	}
	started(&tm, 200*time.Millisecond)
	if !tm.StopIteration(10) || !tm.PastMaximum() {
		t.Error("still running once the move time is used")
	}
}

func TestTimeManagerClock(t *testing.T) {
	var tm TimeManager
	tm.Init(Limits{Time: [2]time.Duration{0, time.Minute}}, board.Black, 40)
	if !tm.Limited() {
		t.Fatal("clock search not limited")
	}
	opt, maxT := tm.OptimumTime(), tm.MaximumTime()
	if opt <= 0 || opt > maxT || maxT > 48*time.Second {
		t.Fatalf("optimum %v maximum %v", opt, maxT)
	}

	// Past 40% of the optimum only a settled best move stops.
	started(&tm, opt/2)
	if !tm.StopIteration(6) {
		t.Error("settled best move kept searching")
	}
	if tm.StopIteration(0) {
		t.Error("unsettled best move stopped early")
	}
}

func TestTimeManagerUnlimited(t *testing.T) {
	for _, limits := range []Limits{{}, {Infinite: true, MoveTime: time.Millisecond}, {Depth: 3}} {
		var tm TimeManager
		tm.Init(limits, board.White, 0)
		started(&tm, time.Hour)
		if tm.Limited() || tm.PastMaximum() || tm.StopIteration(10) {
			t.Errorf("%+v has a deadline", limits)
		}
	}
}
