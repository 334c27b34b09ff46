package card

import (
	"sync"
	"time"

	"vigil/internal/logging"
)

// Stats holds per-status counts. The counts always sum to Total.
type Stats struct {
	Pending    int
	InProgress int
	Deferred   int
	Dismissed  int
	Completed  int
	Total      int
}

// Manager owns the active card set. All operations are individually atomic;
// guarded transitions return false rather than erroring when the id is
// unknown or the current status disallows the move.
type Manager struct {
	mu    sync.RWMutex
	cards []*Card // creation order
	byID  map[string]*Card
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{byID: make(map[string]*Card)}
}

// CreateFromTrigger builds a pending card from an accepted quorum trigger.
func (m *Manager) CreateFromTrigger(spec TaskSpec) *Card {
	return m.create(spec, "trigger")
}

// CreateFromRequest builds a pending card from an explicit operator request.
func (m *Manager) CreateFromRequest(spec TaskSpec) *Card {
	return m.create(spec, "request")
}

func (m *Manager) create(spec TaskSpec, origin string) *Card {
	c := newCard(spec)

	m.mu.Lock()
	m.cards = append(m.cards, c)
	m.byID[c.ID] = c
	m.mu.Unlock()

	logging.Cards("created card %s from %s: %q (impact=%s)", c.ID[:8], origin, c.Title, c.Impact)
	return c
}

// GetCurrentCard returns a copy of the first card in creation order whose
// status is pending (FIFO, not priority-ordered), or false when none.
func (m *Manager) GetCurrentCard() (Card, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.cards {
		if c.Status == StatusPending {
			return *c, true
		}
	}
	return Card{}, false
}

// Get returns a copy of the card with the given id.
func (m *Manager) Get(id string) (Card, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byID[id]
	if !ok {
		return Card{}, false
	}
	return *c, true
}

// Accept moves a pending card to in_progress.
func (m *Manager) Accept(id string) bool {
	return m.MarkInProgress(id)
}

// MarkInProgress is the underlying pending -> in_progress transition, used
// both for operator acceptance and auto-executed cards.
func (m *Manager) MarkInProgress(id string) bool {
	return m.transition(id, StatusPending, StatusInProgress, nil)
}

// Defer parks a pending card until now + minutes. Deferred cards return to
// pending only via CheckDeferred, never by a per-card timer.
func (m *Manager) Defer(id string, minutes int) bool {
	until := time.Now().Add(time.Duration(minutes) * time.Minute)
	return m.transition(id, StatusPending, StatusDeferred, func(c *Card) {
		c.DeferredUntil = until
	})
}

// Dismiss terminally rejects a card. Pending cards are dismissed outright;
// an in_progress card may also be dismissed, which tells the dispatcher to
// stop feeding its remaining subtasks while running ones finish.
func (m *Manager) Dismiss(id string) bool {
	if m.transition(id, StatusPending, StatusDismissed, nil) {
		return true
	}
	return m.transition(id, StatusInProgress, StatusDismissed, nil)
}

// Complete finishes an in_progress card.
func (m *Manager) Complete(id string) bool {
	return m.transition(id, StatusInProgress, StatusCompleted, nil)
}

// ResolveReconciled applies a reconciliation outcome to an in_progress card:
// success completes it; failure leaves it in_progress and visibly flagged so
// the operator is never silently dropped on.
func (m *Manager) ResolveReconciled(id string, success bool) bool {
	if success {
		return m.transition(id, StatusInProgress, StatusCompleted, func(c *Card) {
			c.Failed = false
		})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok || c.Status != StatusInProgress {
		return false
	}
	c.Failed = true
	logging.Cards("card %s reconciliation failed; flagged for operator", c.ID[:8])
	return true
}

// transition performs a guarded status move.
func (m *Manager) transition(id string, from, to Status, mutate func(*Card)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.byID[id]
	if !ok || c.Status != from {
		return false
	}
	c.Status = to
	if mutate != nil {
		mutate(c)
	}
	logging.CardsDebug("card %s: %s -> %s", c.ID[:8], from, to)
	return true
}

// CheckDeferred flips to pending exactly those deferred cards whose
// DeferredUntil has passed. Called only from the heartbeat. Returns the
// number of cards revived.
func (m *Manager) CheckDeferred(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	revived := 0
	for _, c := range m.cards {
		if c.Status == StatusDeferred && !c.DeferredUntil.After(now) {
			c.Status = StatusPending
			c.DeferredUntil = time.Time{}
			revived++
		}
	}
	if revived > 0 {
		logging.Cards("revived %d deferred card(s)", revived)
	}
	return revived
}

// GetStats returns counts per status; they sum to the total card count.
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s Stats
	for _, c := range m.cards {
		switch c.Status {
		case StatusPending:
			s.Pending++
		case StatusInProgress:
			s.InProgress++
		case StatusDeferred:
			s.Deferred++
		case StatusDismissed:
			s.Dismissed++
		case StatusCompleted:
			s.Completed++
		}
	}
	s.Total = len(m.cards)
	return s
}

// PendingCards returns copies of all pending cards in creation order.
func (m *Manager) PendingCards() []Card {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Card
	for _, c := range m.cards {
		if c.Status == StatusPending {
			out = append(out, *c)
		}
	}
	return out
}

// HighPriorityPending returns copies of pending cards with high impact.
func (m *Manager) HighPriorityPending() []Card {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Card
	for _, c := range m.cards {
		if c.Status == StatusPending && c.Impact == ImpactHigh {
			out = append(out, *c)
		}
	}
	return out
}

// SweepTerminal removes all completed and dismissed cards from the active
// set. Returns the number removed.
func (m *Manager) SweepTerminal() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.cards[:0]
	removed := 0
	for _, c := range m.cards {
		if c.Status == StatusCompleted || c.Status == StatusDismissed {
			delete(m.byID, c.ID)
			removed++
			continue
		}
		kept = append(kept, c)
	}
	m.cards = kept
	if removed > 0 {
		logging.Cards("swept %d terminal card(s)", removed)
	}
	return removed
}
