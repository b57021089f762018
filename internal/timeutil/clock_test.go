package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("RealClock.Now() = %v, want between %v and %v", now, before, after)
	}
}

func TestRealClock_After(t *testing.T) {
	select {
	case <-RealClock{}.After(time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("RealClock.After did not fire")
	}
}

func TestMockClock_SleepRecordsAndAdvances(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	clock.Sleep(50 * time.Millisecond)
	clock.Sleep(50 * time.Millisecond)

	sleeps := clock.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 50*time.Millisecond || sleeps[1] != 50*time.Millisecond {
		t.Errorf("Sleeps() = %v, want [50ms 50ms]", sleeps)
	}
	if got := clock.Since(start); got != 100*time.Millisecond {
		t.Errorf("Since(start) = %v, want 100ms", got)
	}
}

func TestMockClock_AfterFiresOnAdvance(t *testing.T) {
	clock := NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ch := clock.After(time.Second)

	clock.Advance(500 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("After fired early")
	default:
	}

	clock.Advance(500 * time.Millisecond)
	select {
	case <-ch:
	default:
		t.Fatal("After did not fire at deadline")
	}
}

func TestMockClock_AfterZero(t *testing.T) {
	clock := NewMockClock(time.Now())
	select {
	case <-clock.After(0):
	default:
		t.Fatal("After(0) should fire immediately")
	}
}
