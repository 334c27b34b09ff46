package card

import (
	"testing"
	"time"
)

func testSpec(risk, priority string) TaskSpec {
	return TaskSpec{
		Goal:     "refactor duplicated code in parser.go",
		Risk:     risk,
		Priority: priority,
	}
}

func TestDeriveImpact(t *testing.T) {
	cases := []struct {
		risk, priority string
		want           Impact
	}{
		{"high", "high", ImpactHigh},   // 9
		{"high", "medium", ImpactHigh}, // 6
		{"medium", "medium", ImpactMedium}, // 4
		{"low", "high", ImpactMedium},  // 3
		{"low", "medium", ImpactLow},   // 2
		{"low", "low", ImpactLow},      // 1
		{"", "", ImpactMedium},         // unknown counts medium: 4
	}
	for _, tc := range cases {
		c := newCard(testSpec(tc.risk, tc.priority))
		if c.Impact != tc.want {
			t.Errorf("impact(%s,%s) = %s, want %s", tc.risk, tc.priority, c.Impact, tc.want)
		}
	}
}

func TestBuildPlan_FallsBackToGeneric(t *testing.T) {
	c := newCard(TaskSpec{Goal: "do the thing"})
	if len(c.Plan) != 1 {
		t.Fatalf("Expected one-line generic plan, got %v", c.Plan)
	}

	rich := newCard(TaskSpec{
		Goal:                "improve tests",
		Inputs:              []string{"parser.go"},
		Outputs:             []string{"parser_test.go"},
		ConstraintsInferred: []string{"Improve test coverage"},
	})
	if len(rich.Plan) != 3 {
		t.Fatalf("Expected 3 plan steps, got %v", rich.Plan)
	}
}

func TestManager_LifecycleHappyPath(t *testing.T) {
	m := NewManager()
	c := m.CreateFromTrigger(testSpec("high", "high"))

	if c.Status != StatusPending {
		t.Fatalf("New cards must start pending, got %s", c.Status)
	}

	if !m.Accept(c.ID) {
		t.Fatal("Accept of pending card should succeed")
	}
	if !m.Complete(c.ID) {
		t.Fatal("Complete of in_progress card should succeed")
	}

	got, _ := m.Get(c.ID)
	if got.Status != StatusCompleted {
		t.Errorf("Expected completed, got %s", got.Status)
	}
}

func TestManager_GuardedTransitions(t *testing.T) {
	m := NewManager()
	c := m.CreateFromTrigger(testSpec("low", "low"))

	if m.Complete(c.ID) {
		t.Error("Complete of a pending card must be a no-op")
	}
	if m.Accept("no-such-id") {
		t.Error("Accept of unknown id must return false")
	}

	m.Dismiss(c.ID)
	if m.Accept(c.ID) {
		t.Error("Accept of a dismissed card must return false")
	}
	if m.Dismiss(c.ID) {
		t.Error("Dismiss is terminal; a second dismiss must return false")
	}
}

func TestManager_DismissInProgress(t *testing.T) {
	m := NewManager()
	c := m.CreateFromTrigger(testSpec("medium", "medium"))

	m.Accept(c.ID)
	if !m.Dismiss(c.ID) {
		t.Fatal("Dismiss of an in_progress card should succeed")
	}
	got, _ := m.Get(c.ID)
	if got.Status != StatusDismissed {
		t.Fatalf("Expected dismissed, got %s", got.Status)
	}

	// Terminal states stay terminal.
	done := m.CreateFromTrigger(testSpec("low", "low"))
	m.Accept(done.ID)
	m.Complete(done.ID)
	if m.Dismiss(done.ID) {
		t.Error("Dismiss of a completed card must return false")
	}
}

func TestManager_DeferAndCheckDeferred(t *testing.T) {
	m := NewManager()
	c := m.CreateFromTrigger(testSpec("medium", "high"))

	if !m.Defer(c.ID, 1) {
		t.Fatal("Defer of pending card should succeed")
	}

	got, _ := m.Get(c.ID)
	now := got.DeferredUntil.Add(-time.Second)

	// Before expiry: stays deferred.
	if n := m.CheckDeferred(now); n != 0 {
		t.Fatalf("Expected no revival before expiry, revived %d", n)
	}
	got, _ = m.Get(c.ID)
	if got.Status != StatusDeferred {
		t.Fatalf("Expected deferred, got %s", got.Status)
	}

	// At/after expiry: back to pending.
	if n := m.CheckDeferred(got.DeferredUntil.Add(time.Second)); n != 1 {
		t.Fatalf("Expected 1 revival after expiry, got %d", n)
	}
	got, _ = m.Get(c.ID)
	if got.Status != StatusPending {
		t.Errorf("Expected pending after revival, got %s", got.Status)
	}
}

func TestManager_GetCurrentCardIsFIFO(t *testing.T) {
	m := NewManager()

	first := m.CreateFromTrigger(TaskSpec{Goal: "first", Risk: "low", Priority: "low"})
	m.CreateFromTrigger(TaskSpec{Goal: "second", Risk: "high", Priority: "high"})

	cur, ok := m.GetCurrentCard()
	if !ok || cur.ID != first.ID {
		t.Fatalf("Expected first created card regardless of impact, got %q", cur.Title)
	}

	// Accepting the first surfaces the second.
	m.Accept(first.ID)
	cur, ok = m.GetCurrentCard()
	if !ok || cur.Title != "second" {
		t.Fatalf("Expected second card, got %q", cur.Title)
	}
}

func TestManager_StatsSumToTotal(t *testing.T) {
	m := NewManager()

	ids := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		ids = append(ids, m.CreateFromTrigger(testSpec("medium", "medium")).ID)
	}

	m.Accept(ids[0])
	m.Complete(ids[0])
	m.Accept(ids[1])
	m.Defer(ids[2], 30)
	m.Dismiss(ids[3])

	s := m.GetStats()
	sum := s.Pending + s.InProgress + s.Deferred + s.Dismissed + s.Completed
	if sum != s.Total {
		t.Fatalf("Status counts %d do not sum to total %d", sum, s.Total)
	}
	if s.Total != 6 {
		t.Errorf("Expected total 6, got %d", s.Total)
	}
	if s.Pending != 2 || s.InProgress != 1 || s.Deferred != 1 || s.Dismissed != 1 || s.Completed != 1 {
		t.Errorf("Unexpected breakdown: %+v", s)
	}
}

func TestManager_SweepTerminal(t *testing.T) {
	m := NewManager()

	keep := m.CreateFromTrigger(testSpec("low", "low"))
	done := m.CreateFromTrigger(testSpec("low", "low"))
	gone := m.CreateFromTrigger(testSpec("low", "low"))

	m.Accept(done.ID)
	m.Complete(done.ID)
	m.Dismiss(gone.ID)

	if removed := m.SweepTerminal(); removed != 2 {
		t.Fatalf("Expected 2 cards swept, got %d", removed)
	}
	if _, ok := m.Get(done.ID); ok {
		t.Error("Completed card should be gone after sweep")
	}
	if _, ok := m.Get(keep.ID); !ok {
		t.Error("Pending card must survive the sweep")
	}
	if s := m.GetStats(); s.Total != 1 {
		t.Errorf("Expected total 1 after sweep, got %d", s.Total)
	}
}

func TestManager_ResolveReconciled(t *testing.T) {
	m := NewManager()

	ok := m.CreateFromTrigger(testSpec("high", "high"))
	m.Accept(ok.ID)
	if !m.ResolveReconciled(ok.ID, true) {
		t.Fatal("Successful reconciliation should resolve")
	}
	got, _ := m.Get(ok.ID)
	if got.Status != StatusCompleted || got.Failed {
		t.Errorf("Expected clean completion, got status=%s failed=%v", got.Status, got.Failed)
	}

	bad := m.CreateFromTrigger(testSpec("high", "high"))
	m.Accept(bad.ID)
	if !m.ResolveReconciled(bad.ID, false) {
		t.Fatal("Failed reconciliation should still resolve")
	}
	got, _ = m.Get(bad.ID)
	if got.Status != StatusInProgress || !got.Failed {
		t.Errorf("Failed card must stay visible and flagged, got status=%s failed=%v", got.Status, got.Failed)
	}
}

func TestManager_HighPriorityPending(t *testing.T) {
	m := NewManager()
	m.CreateFromTrigger(testSpec("low", "low"))
	hi := m.CreateFromTrigger(testSpec("high", "high"))

	out := m.HighPriorityPending()
	if len(out) != 1 || out[0].ID != hi.ID {
		t.Fatalf("Expected only the high-impact card, got %d cards", len(out))
	}
}
