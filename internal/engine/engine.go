// Package engine wires the signal bus, quorum rules, safety governor,
// energy tracker, card lifecycle, and dispatcher into a single cooperative
// heartbeat loop. One goroutine owns all proposal-side state; operator
// actions and external events enter through thread-safe entry points.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vigil/internal/card"
	"vigil/internal/dispatch"
	"vigil/internal/energy"
	"vigil/internal/focus"
	"vigil/internal/logging"
	"vigil/internal/quorum"
	"vigil/internal/safety"
	"vigil/internal/signal"
)

// NotificationKind distinguishes what a notification reports.
type NotificationKind string

const (
	NotifyProposal   NotificationKind = "proposal"
	NotifyResolution NotificationKind = "resolution"
)

// Notification is pushed to the operator surface when the focus profile
// calls for an interruption, or when a launched card reconciles.
type Notification struct {
	Kind    NotificationKind
	Card    card.Card
	Success bool // resolution only
	Narrate bool // active profile had narration enabled
}

// Options configures a new engine. Zero values fall back to defaults.
type Options struct {
	InitialEnergy int
	BusCapacity   int
	Budget        energy.Budget
	Limits        safety.Limits
	Rules         []quorum.Rule
	Dispatch      dispatch.Config
	Executor      dispatch.Executor
}

// noopExecutor completes every subtask without doing anything. Used when no
// real executor is wired, so the lifecycle stays observable.
type noopExecutor struct{}

func (noopExecutor) Run(ctx context.Context, actionTag string, params map[string]any) (string, error) {
	return "no executor configured; action " + actionTag + " skipped", nil
}

// Engine is the heartbeat scheduler.
type Engine struct {
	bus        *signal.Bus
	quorum     *quorum.Engine
	safety     *safety.Governor
	energy     *energy.Tracker
	focus      *focus.Controller
	cards      *card.Manager
	dispatcher *dispatch.Dispatcher

	events        chan signal.Signal
	notifications chan Notification
	now           func() time.Time

	ctxMu  sync.Mutex
	runCtx context.Context // set once Run starts; Launch derives from it
}

// New builds an engine from options, wiring the component graph.
func New(opts Options) (*Engine, error) {
	if opts.InitialEnergy < energy.MinEnergy || opts.InitialEnergy > energy.MaxEnergy {
		opts.InitialEnergy = 50
	}
	if opts.BusCapacity <= 0 {
		opts.BusCapacity = signal.DefaultCapacity
	}
	if opts.Budget == (energy.Budget{}) {
		opts.Budget = energy.DefaultBudget()
	}
	if opts.Limits == (safety.Limits{}) {
		opts.Limits = safety.DefaultLimits()
	}
	if opts.Rules == nil {
		opts.Rules = quorum.DefaultRules()
	}
	if opts.Dispatch == (dispatch.Config{}) {
		opts.Dispatch = dispatch.DefaultConfig()
	}
	if opts.Executor == nil {
		opts.Executor = noopExecutor{}
	}

	if err := opts.Budget.Validate(); err != nil {
		return nil, fmt.Errorf("budget: %w", err)
	}
	if err := opts.Limits.Validate(); err != nil {
		return nil, fmt.Errorf("safety limits: %w", err)
	}
	if err := opts.Dispatch.Validate(); err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	bus := signal.NewBus(opts.BusCapacity)
	registry := quorum.NewRegistry()
	for _, r := range opts.Rules {
		if err := r.Validate(registry); err != nil {
			return nil, fmt.Errorf("rule: %w", err)
		}
	}
	cards := card.NewManager()
	e := &Engine{
		bus:           bus,
		quorum:        quorum.NewEngine(bus, opts.Rules, registry),
		safety:        safety.NewGovernor(opts.Limits),
		energy:        energy.NewTracker(opts.InitialEnergy, opts.Budget),
		focus:         focus.NewController(),
		cards:         cards,
		dispatcher:    dispatch.NewDispatcher(opts.Dispatch, opts.Executor, cards),
		events:        make(chan signal.Signal, 64),
		notifications: make(chan Notification, 16),
		now:           time.Now,
		runCtx:        context.Background(),
	}
	e.dispatcher.OnResolve(e.onResolved)
	return e, nil
}

// Run drives the heartbeat loop until ctx is cancelled, then waits for any
// in-flight dispatch work to drain. The loop goroutine is the only writer
// of bus, energy, and safety state.
func (e *Engine) Run(ctx context.Context) error {
	e.ctxMu.Lock()
	e.runCtx = ctx
	e.ctxMu.Unlock()
	logging.Get(logging.CategoryBoot).Info("engine loop starting, tick delay %v", e.energy.TickDelay())

	timer := time.NewTimer(e.energy.TickDelay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Get(logging.CategoryBoot).Info("engine loop stopping")
			e.dispatcher.Wait()
			return nil
		case sig := <-e.events:
			e.handleSignal(sig)
		case <-timer.C:
			e.handleTick()
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(e.energy.TickDelay())
	}
}

// HandleEvent hands an external event to the loop. Never blocks: when the
// queue is full the event is dropped with a warning, favoring engine
// liveness over completeness.
func (e *Engine) HandleEvent(sig signal.Signal) {
	select {
	case e.events <- sig:
	default:
		logging.Get(logging.CategorySignals).Warn("event queue full, dropping %s signal", sig.Kind)
	}
}

// Notifications is the operator-facing stream of proposals and resolutions.
// The channel is buffered; unread notifications beyond the buffer are
// dropped.
func (e *Engine) Notifications() <-chan Notification {
	return e.notifications
}

// handleSignal is the core per-event path: ingest, adjust energy, pass the
// safety gate, then evaluate with the signal as the trigger.
func (e *Engine) handleSignal(sig signal.Signal) {
	e.bus.Ingest(sig)
	logging.Signals("ingested %s signal (severity %s)", sig.Kind, sig.Severity)

	switch sig.Kind {
	case signal.KindSave:
		e.energy.ApplyDelta(energy.DeltaActivity)
	case signal.KindIdle:
		e.energy.ApplyDelta(energy.DeltaIdle)
	}

	// The evaluation itself is an action; it must clear the governor
	// before any output of it takes effect.
	allowed, reason := e.safety.RecordAction("signal:"+string(sig.Kind), sig.Payload)
	if !allowed {
		logging.SafetyWarn("signal %s blocked: %s", sig.Kind, reason)
		return
	}
	e.evaluate(sig)
}

// handleTick is the timer path. The tick must clear the safety gate like any
// event, then the rules are re-evaluated against a synthetic tick trigger so
// window-scoped patterns (an idle stretch, a decaying save burst) can fire
// without a fresh external event. The tick signal is never stored in the
// bus, so it cannot displace real observations.
func (e *Engine) handleTick() {
	allowed, reason := e.safety.RecordAction("tick", nil)
	if !allowed {
		logging.SafetyWarn("tick blocked: %s", reason)
		return
	}
	e.evaluate(signal.Signal{Kind: signal.KindTick, Severity: signal.SeverityLow, ObservedAt: e.now()})
	logging.Heartbeat("tick: energy=%d cards=%d signals=%d",
		e.energy.Energy(), e.cards.GetStats().Total, e.bus.Len())
}

// evaluate revives expired deferrals, runs the quorum rules for the given
// trigger, and proposes a card when both the rules and the budget agree.
// Auto-execute profiles accept the new card immediately; otherwise the focus
// controller decides whether to interrupt the operator.
func (e *Engine) evaluate(trigger signal.Signal) {
	now := e.now()
	e.cards.CheckDeferred(now)

	fired := e.quorum.Evaluate(trigger)
	if len(fired) == 0 {
		return
	}
	if !e.energy.CanInitiateUnsolicited(now) {
		logging.Energy("quorum reached (%d rule(s)) but initiation budget denies", len(fired))
		return
	}

	spec := synthesizeSpec(fired, trigger)
	c := e.cards.CreateFromTrigger(spec)
	e.energy.RecordUnsolicited(now)
	logging.Cards("proposed card %s (%s impact): %s", c.ID[:8], c.Impact, c.Title)

	profile := e.focus.Active()
	if e.focus.ShouldInterrupt(*c) {
		e.notify(Notification{
			Kind:    NotifyProposal,
			Card:    *c,
			Narrate: profile.NarrationEnabled,
		})
	}
	if profile.AutoExecute && e.cards.MarkInProgress(c.ID) {
		logging.Cards("auto-executing card %s under %s mode", c.ID[:8], profile.Name)
		e.launch(c.ID, profile)
	}
}

// onResolved is invoked by the dispatcher after a launched card reconciles.
// Dismissed cards reconcile silently: the operator already rejected them.
func (e *Engine) onResolved(cardID string, success bool) {
	c, ok := e.cards.Get(cardID)
	if !ok || c.Status == card.StatusDismissed {
		return
	}
	e.notify(Notification{
		Kind:    NotifyResolution,
		Card:    c,
		Success: success,
		Narrate: e.focus.Active().NarrationEnabled,
	})
}

func (e *Engine) notify(n Notification) {
	select {
	case e.notifications <- n:
	default:
		logging.Get(logging.CategoryHeartbeat).Warn("notification buffer full, dropping %s", n.Kind)
	}
}

// ===== Operator API =====

// Accept marks a pending card in progress and launches its subtasks. The
// batch size comes from the active focus profile; step-by-step profiles
// always run one at a time.
func (e *Engine) Accept(id string) bool {
	if !e.cards.Accept(id) {
		return false
	}
	e.launch(id, e.focus.Active())
	return true
}

// launch starts dispatch for a card that has just moved to in_progress,
// sizing the batch from the given profile.
func (e *Engine) launch(id string, profile focus.Profile) {
	c, ok := e.cards.Get(id)
	if !ok {
		return
	}
	batch := profile.BatchSize
	if profile.StepByStep {
		batch = 1
	}
	e.ctxMu.Lock()
	ctx := e.runCtx
	e.ctxMu.Unlock()
	if err := e.dispatcher.Launch(ctx, c, batch); err != nil {
		logging.DispatchError("launch %s: %v", id, err)
	}
}

// Defer hides a pending card until the given number of minutes has passed.
func (e *Engine) Defer(id string, minutes int) bool {
	return e.cards.Defer(id, minutes)
}

// Dismiss discards a card, including one already in progress: further
// subtask dispatch for it stops, while running subtasks are allowed to
// finish.
func (e *Engine) Dismiss(id string) bool {
	if !e.cards.Dismiss(id) {
		return false
	}
	e.dispatcher.Cancel(id)
	return true
}

// Complete marks an in-progress card done without waiting for dispatch.
func (e *Engine) Complete(id string) bool {
	return e.cards.Complete(id)
}

// RequestCard creates a card from an operator-supplied spec, bypassing
// quorum and budget (solicited work is always allowed).
func (e *Engine) RequestCard(spec card.TaskSpec) card.Card {
	c := e.cards.CreateFromRequest(spec)
	return *c
}

// SetMode switches the focus mode.
func (e *Engine) SetMode(name string) error {
	return e.focus.SetMode(name)
}

// ActivateKillSwitch blocks all externally visible actions until deactivated.
func (e *Engine) ActivateKillSwitch(reason string) {
	e.safety.ActivateKillSwitch(reason)
}

// DeactivateKillSwitch resumes normal operation.
func (e *Engine) DeactivateKillSwitch() {
	e.safety.DeactivateKillSwitch()
}

// ===== Read side =====

func (e *Engine) GetCurrentCard() (card.Card, bool) { return e.cards.GetCurrentCard() }

func (e *Engine) GetCard(id string) (card.Card, bool) { return e.cards.Get(id) }

func (e *Engine) Stats() card.Stats { return e.cards.GetStats() }

func (e *Engine) PendingCards() []card.Card { return e.cards.PendingCards() }

func (e *Engine) HighPriorityPending() []card.Card { return e.cards.HighPriorityPending() }

func (e *Engine) ActiveSubtasks() []dispatch.Subtask { return e.dispatcher.ActiveSubtasks() }

func (e *Engine) FocusMode() string { return e.focus.Active().Name }

// Status is the aggregate health view.
type Status struct {
	Energy         energy.Status
	Safety         safety.Status
	Cards          card.Stats
	FocusMode      string
	BufferedEvents int
	ActiveSubtasks int
	TickDelay      time.Duration
}

// Status reports an aggregate snapshot of every subsystem.
func (e *Engine) Status() Status {
	return Status{
		Energy:         e.energy.GetStatus(),
		Safety:         e.safety.GetStatus(),
		Cards:          e.cards.GetStats(),
		FocusMode:      e.focus.Active().Name,
		BufferedEvents: e.bus.Len(),
		ActiveSubtasks: len(e.dispatcher.ActiveSubtasks()),
		TickDelay:      e.energy.TickDelay(),
	}
}
