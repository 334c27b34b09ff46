package dispatch

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"vigil/internal/card"
	"vigil/internal/logging"
)

// Executor is the external action execution boundary. It may be a process,
// a remote call, or an in-process function; it may also never return, which
// is why every run gets a timeout.
type Executor interface {
	Run(ctx context.Context, actionTag string, params map[string]any) (string, error)
}

// Policy decides the parent outcome from terminal subtask counts.
type Policy func(completed, failed int) bool

// Config configures dispatch behavior.
type Config struct {
	// SubtaskTimeout bounds each executor call. The external executor may
	// hang forever; a run that exceeds the timeout counts as failed.
	SubtaskTimeout time.Duration

	// SuccessRatio is the default reconciliation threshold: the parent
	// succeeds iff completed/(completed+failed) is strictly greater.
	SuccessRatio float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SubtaskTimeout: 2 * time.Minute,
		SuccessRatio:   0.5,
	}
}

// Validate checks the config at the boundary.
func (c Config) Validate() error {
	if c.SubtaskTimeout <= 0 {
		return fmt.Errorf("subtask timeout must be positive, got %v", c.SubtaskTimeout)
	}
	if c.SuccessRatio < 0 || c.SuccessRatio >= 1 {
		return fmt.Errorf("success ratio must be in [0,1), got %v", c.SuccessRatio)
	}
	return nil
}

// run tracks one launched card: its subtasks, cancellation token, and
// whether it has already reconciled.
type run struct {
	card       card.Card
	subs       []*Subtask
	cancel     context.CancelFunc
	reconciled bool
}

// patternPolicy is a reconciliation override registered by title pattern.
type patternPolicy struct {
	pattern *regexp.Regexp
	policy  Policy
}

// Dispatcher executes accepted cards as bounded-concurrency subtask batches
// and reconciles their outcomes through the card manager.
type Dispatcher struct {
	mu sync.Mutex

	config    Config
	executor  Executor
	cards     *card.Manager
	runs      map[string]*run // card ID -> active run
	overrides []patternPolicy

	// onResolve is notified after a parent reconciles (success or failure).
	// Must not block; invoked from a dispatch goroutine.
	onResolve func(cardID string, success bool)

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the given executor and card
// manager.
func NewDispatcher(cfg Config, executor Executor, cards *card.Manager) *Dispatcher {
	return &Dispatcher{
		config:   cfg,
		executor: executor,
		cards:    cards,
		runs:     make(map[string]*run),
	}
}

// OnResolve registers the reconciliation notification callback.
func (d *Dispatcher) OnResolve(fn func(cardID string, success bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onResolve = fn
}

// RegisterPolicy installs a reconciliation override for cards whose title
// matches the pattern. Patterns are consulted in registration order; the
// first match wins.
func (d *Dispatcher) RegisterPolicy(titlePattern string, p Policy) error {
	re, err := regexp.Compile(titlePattern)
	if err != nil {
		return fmt.Errorf("invalid policy pattern: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.overrides = append(d.overrides, patternPolicy{pattern: re, policy: p})
	return nil
}

// Launch decomposes an accepted card and starts executing its subtasks with
// at most batchSize running concurrently. ctx scopes the whole engine, not
// the card: dismissal is signaled via Cancel.
func (d *Dispatcher) Launch(ctx context.Context, c card.Card, batchSize int) error {
	if batchSize < 1 {
		batchSize = 1
	}

	d.mu.Lock()
	if _, exists := d.runs[c.ID]; exists {
		d.mu.Unlock()
		return fmt.Errorf("card %s already launched", c.ID)
	}
	cardCtx, cancel := context.WithCancel(ctx)
	r := &run{card: c, subs: Decompose(c), cancel: cancel}
	d.runs[c.ID] = r
	d.mu.Unlock()

	logging.Dispatch("launching card %s with %d subtask(s), batch size %d",
		shortID(c.ID), len(r.subs), batchSize)

	d.wg.Add(1)
	go d.dispatchLoop(ctx, cardCtx, r, batchSize)
	return nil
}

// dispatchLoop feeds pending subtasks into the bounded pool in FIFO order.
// Slot acquisition honors the card-scoped context so a dismissal stops
// further dispatch, while already-running subtasks execute under the engine
// context and are allowed to finish.
func (d *Dispatcher) dispatchLoop(engineCtx, cardCtx context.Context, r *run, batchSize int) {
	defer d.wg.Done()

	sem := semaphore.NewWeighted(int64(batchSize))
	var subWG sync.WaitGroup

	for _, sub := range r.subs {
		if err := sem.Acquire(cardCtx, 1); err != nil {
			// Card cancelled: everything still pending fails as cancelled.
			d.failPending(r, "cancelled")
			break
		}
		if cardCtx.Err() != nil {
			sem.Release(1)
			d.failPending(r, "cancelled")
			break
		}

		d.markRunning(r, sub)
		subWG.Add(1)
		go func(st *Subtask) {
			defer subWG.Done()
			defer sem.Release(1)
			d.execute(engineCtx, r, st)
		}(sub)
	}

	subWG.Wait()
}

// execute runs one subtask through the external executor under the
// configured timeout and records the terminal outcome.
func (d *Dispatcher) execute(ctx context.Context, r *run, st *Subtask) {
	runCtx, cancel := context.WithTimeout(ctx, d.config.SubtaskTimeout)
	defer cancel()

	result, err := d.executor.Run(runCtx, st.ActionTag, st.Params)
	if err != nil {
		logging.DispatchError("subtask %s (%s) failed: %v", shortID(st.ID), st.ActionTag, err)
		d.markTerminal(r, st, SubtaskFailed, err.Error())
		return
	}
	d.markTerminal(r, st, SubtaskCompleted, result)
}

// Cancel stops further dispatch for a card. Already-running subtasks are
// allowed to finish; pending ones fail as cancelled. Safe to call for
// unknown or already-finished cards.
func (d *Dispatcher) Cancel(cardID string) {
	d.mu.Lock()
	r, ok := d.runs[cardID]
	d.mu.Unlock()
	if !ok {
		return
	}
	logging.Dispatch("cancelling card %s", shortID(cardID))
	r.cancel()
}

func (d *Dispatcher) markRunning(r *run, st *Subtask) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st.Status = SubtaskRunning
	st.StartedAt = time.Now()
	logging.DispatchDebug("subtask %s running (%s)", shortID(st.ID), st.ActionTag)
}

// failPending marks every still-pending subtask of a run as failed with the
// given reason, then checks for reconciliation.
func (d *Dispatcher) failPending(r *run, reason string) {
	d.mu.Lock()
	for _, st := range r.subs {
		if st.Status == SubtaskPending {
			st.Status = SubtaskFailed
			st.CompletedAt = time.Now()
			st.Result = reason
		}
	}
	d.mu.Unlock()
	d.checkReconcile(r)
}

// markTerminal records a terminal subtask state, then checks whether the
// parent can reconcile.
func (d *Dispatcher) markTerminal(r *run, st *Subtask, status SubtaskStatus, result string) {
	d.mu.Lock()
	st.Status = status
	st.CompletedAt = time.Now()
	st.Result = result
	d.mu.Unlock()
	d.checkReconcile(r)
}

// checkReconcile applies the reconciliation policy once every subtask of the
// run has reached a terminal state. The parent card completes on success or
// stays visibly flagged failed otherwise; the run is then archived.
func (d *Dispatcher) checkReconcile(r *run) {
	d.mu.Lock()

	if r.reconciled {
		d.mu.Unlock()
		return
	}
	completed, failed := 0, 0
	for _, st := range r.subs {
		if !st.Status.terminal() {
			d.mu.Unlock()
			return
		}
		if st.Status == SubtaskCompleted {
			completed++
		} else {
			failed++
		}
	}
	r.reconciled = true

	policy := d.defaultPolicy()
	for _, pp := range d.overrides {
		if pp.pattern.MatchString(r.card.Title) {
			policy = pp.policy
			break
		}
	}
	onResolve := d.onResolve
	delete(d.runs, r.card.ID) // archive: subtasks leave the active set
	d.mu.Unlock()
	r.cancel()

	success := policy(completed, failed)
	logging.Dispatch("card %s reconciled: %d completed, %d failed -> success=%v",
		shortID(r.card.ID), completed, failed, success)

	d.cards.ResolveReconciled(r.card.ID, success)
	if onResolve != nil {
		onResolve(r.card.ID, success)
	}
}

// defaultPolicy is the majority rule: success iff the completed share of
// terminal subtasks strictly exceeds the configured ratio.
func (d *Dispatcher) defaultPolicy() Policy {
	ratio := d.config.SuccessRatio
	return func(completed, failed int) bool {
		total := completed + failed
		if total == 0 {
			return false
		}
		return float64(completed)/float64(total) > ratio
	}
}

// ActiveSubtasks returns copies of all subtasks belonging to cards that have
// not yet reconciled.
func (d *Dispatcher) ActiveSubtasks() []Subtask {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Subtask
	for _, r := range d.runs {
		for _, st := range r.subs {
			out = append(out, *st)
		}
	}
	return out
}

// Wait blocks until every launched card's dispatch loop has finished. Used
// at shutdown and in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
