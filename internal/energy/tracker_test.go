package energy

import (
	"testing"
	"time"
)

// noon on a weekday, safely outside the default quiet window
func noon() time.Time {
	return time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
}

func TestTracker_ClampUpper(t *testing.T) {
	tr := NewTracker(40, DefaultBudget())

	for i := 0; i < 8; i++ {
		tr.ApplyDelta(8)
	}
	if got := tr.Energy(); got != 100 {
		t.Fatalf("Expected energy clamped at 100, got %d", got)
	}
}

func TestTracker_ClampLower(t *testing.T) {
	tr := NewTracker(10, DefaultBudget())

	for i := 0; i < 10; i++ {
		tr.ApplyDelta(-5)
	}
	if got := tr.Energy(); got != 0 {
		t.Fatalf("Expected energy clamped at 0, got %d", got)
	}
}

func TestTracker_ArbitraryDeltaSequenceStaysInRange(t *testing.T) {
	tr := NewTracker(50, DefaultBudget())

	deltas := []int{30, 30, 30, -200, 7, -3, 150, -1, 0, 99, -99, -99}
	for _, d := range deltas {
		e := tr.ApplyDelta(d)
		if e < MinEnergy || e > MaxEnergy {
			t.Fatalf("Energy %d out of range after delta %d", e, d)
		}
	}
}

func TestTracker_InitialEnergyClamped(t *testing.T) {
	if got := NewTracker(250, DefaultBudget()).Energy(); got != 100 {
		t.Errorf("Expected initial energy clamped to 100, got %d", got)
	}
	if got := NewTracker(-10, DefaultBudget()).Energy(); got != 0 {
		t.Errorf("Expected initial energy clamped to 0, got %d", got)
	}
}

func TestTracker_CanInitiateRequiresEnergyFloor(t *testing.T) {
	tr := NewTracker(30, DefaultBudget())
	if tr.CanInitiateUnsolicited(noon()) {
		t.Fatal("Energy 30 must not clear the floor (> 30 required)")
	}

	tr.ApplyDelta(1)
	if !tr.CanInitiateUnsolicited(noon()) {
		t.Fatal("Energy 31 should clear the floor")
	}
}

func TestTracker_QuietHoursSpanningMidnight(t *testing.T) {
	b := DefaultBudget() // quiet 22 -> 8

	cases := []struct {
		hour  int
		quiet bool
	}{
		{21, false},
		{22, true},
		{23, true},
		{0, true},
		{7, true},
		{8, false},
		{12, false},
	}
	for _, tc := range cases {
		if got := b.quiet(tc.hour); got != tc.quiet {
			t.Errorf("quiet(%d) = %v, want %v", tc.hour, got, tc.quiet)
		}
	}
}

func TestTracker_QuietHoursSameDayWindow(t *testing.T) {
	b := Budget{MaxPerHour: 4, QuietHoursStart: 9, QuietHoursEnd: 17}

	if !b.quiet(9) || !b.quiet(12) || !b.quiet(16) {
		t.Error("Hours inside [9,17) should be quiet")
	}
	if b.quiet(8) || b.quiet(17) || b.quiet(23) {
		t.Error("Hours outside [9,17) should not be quiet")
	}
}

func TestTracker_HourlyQuota(t *testing.T) {
	b := DefaultBudget()
	b.MaxPerHour = 2
	b.Cooldown = 0
	tr := NewTracker(80, b)

	now := noon()
	tr.RecordUnsolicited(now)
	tr.RecordUnsolicited(now.Add(time.Minute))

	if tr.CanInitiateUnsolicited(now.Add(2 * time.Minute)) {
		t.Fatal("Quota of 2 must block the third initiation in the same hour")
	}

	// Hour rollover resets the counter exactly once.
	next := now.Add(time.Hour)
	if !tr.CanInitiateUnsolicited(next) {
		t.Fatal("New hour should reset the quota")
	}
	tr.RecordUnsolicited(next)
	if got := tr.GetStatus().UnsolicitedCount; got != 1 {
		t.Errorf("Expected count reset to 1 after rollover, got %d", got)
	}
}

func TestTracker_Cooldown(t *testing.T) {
	b := DefaultBudget()
	b.Cooldown = 10 * time.Minute
	tr := NewTracker(80, b)

	now := noon()
	tr.RecordUnsolicited(now)

	if tr.CanInitiateUnsolicited(now.Add(5 * time.Minute)) {
		t.Fatal("Cooldown must block initiation 5 minutes after the last one")
	}
	if !tr.CanInitiateUnsolicited(now.Add(11 * time.Minute)) {
		t.Fatal("Initiation should be allowed after the cooldown")
	}
}

func TestTracker_TickDelay(t *testing.T) {
	cases := []struct {
		energy int
		want   time.Duration
	}{
		{0, 120 * time.Second},
		{50, 70 * time.Second},
		{100, 20 * time.Second},
	}
	for _, tc := range cases {
		tr := NewTracker(tc.energy, DefaultBudget())
		if got := tr.TickDelay(); got != tc.want {
			t.Errorf("TickDelay at energy %d = %v, want %v", tc.energy, got, tc.want)
		}
	}
}

func TestBudget_Validate(t *testing.T) {
	if err := DefaultBudget().Validate(); err != nil {
		t.Fatalf("Default budget must validate: %v", err)
	}

	bad := []Budget{
		{MaxPerHour: -1},
		{MaxPerHour: 1, QuietHoursStart: 24},
		{MaxPerHour: 1, QuietHoursEnd: -1},
		{MaxPerHour: 1, Cooldown: -time.Second},
	}
	for i, b := range bad {
		if err := b.Validate(); err == nil {
			t.Errorf("Case %d: expected validation error for %+v", i, b)
		}
	}
}
