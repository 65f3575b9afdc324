package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tonytopp/shelly-home/internal/engine"
	"github.com/tonytopp/shelly-home/internal/models"
	"github.com/tonytopp/shelly-home/internal/registry"
)

// RuleSource yields the rule set a tick evaluates. Satisfied by db.DB, so rule
// CRUD is picked up on the next tick without any notification channel.
type RuleSource interface {
	GetAllRules(ctx context.Context) ([]models.AutomationRule, error)
}

// PriceSource yields the current spot price series.
type PriceSource interface {
	CurrentPrices(ctx context.Context) ([]models.PricePoint, error)
}

// WeatherSource yields the current conditions snapshot.
type WeatherSource interface {
	CurrentWeather(ctx context.Context) (*models.WeatherSnapshot, error)
}

// CommandDispatcher actuates a fired rule.
type CommandDispatcher interface {
	Dispatch(deviceID int64, action models.ActionType) error
}

// RetryQueue takes over dispatches that failed, so a device coming back online
// still gets its command without waiting for the condition to re-transition.
type RetryQueue interface {
	EnqueueRetry(deviceID int64, action models.ActionType) error
}

// ruleState is per-rule runtime memory. Never persisted: after a restart every
// rule starts unknown and the first tick only records a baseline.
type ruleState struct {
	known         bool
	lastSatisfied bool
	lastFiredAt   *time.Time
}

// Scheduler drives periodic rule evaluation with edge-triggered firing: an
// action runs once on the unsatisfied-to-satisfied transition, never on every
// tick while the condition stays true.
type Scheduler struct {
	rules      RuleSource
	evaluator  *engine.Evaluator
	registry   *registry.Registry
	prices     PriceSource
	weather    WeatherSource
	dispatcher CommandDispatcher
	retries    RetryQueue
	logger     *zap.SugaredLogger
	fireOnBoot bool

	tickMu sync.Mutex
	states map[int64]*ruleState
}

func NewScheduler(
	rules RuleSource,
	evaluator *engine.Evaluator,
	reg *registry.Registry,
	prices PriceSource,
	weather WeatherSource,
	dispatcher CommandDispatcher,
	retries RetryQueue,
	fireOnBoot bool,
	logger *zap.SugaredLogger,
) *Scheduler {
	return &Scheduler{
		rules:      rules,
		evaluator:  evaluator,
		registry:   reg,
		prices:     prices,
		weather:    weather,
		dispatcher: dispatcher,
		retries:    retries,
		logger:     logger,
		fireOnBoot: fireOnBoot,
		states:     make(map[int64]*ruleState),
	}
}

// Tick runs one full evaluation pass. Ticks are serialized: if the previous
// one is still running when the timer fires again, this call is skipped
// outright rather than queued. Returns whether the tick ran.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) bool {
	if !s.tickMu.TryLock() {
		s.logger.Warnw("previous tick still running, skipping", "now", now)
		return false
	}
	defer s.tickMu.Unlock()

	// Stale devices must be offline before any rule targets them.
	s.registry.MarkStaleIfExpired(now)

	snap := s.buildSnapshot(ctx, now)

	rules, err := s.rules.GetAllRules(ctx)
	if err != nil {
		s.logger.Errorw("failed to load rules, tick aborted", "error", err)
		return true
	}

	seen := make(map[int64]bool, len(rules))
	for _, rule := range rules {
		seen[rule.ID] = true
		s.evaluateRule(rule, snap, now)
	}

	// Forget runtime state for deleted rules.
	for id := range s.states {
		if !seen[id] {
			delete(s.states, id)
		}
	}
	return true
}

func (s *Scheduler) buildSnapshot(ctx context.Context, now time.Time) engine.Snapshot {
	snap := engine.Snapshot{Now: now, Devices: s.registry.Snapshot()}

	if s.prices != nil {
		prices, err := s.prices.CurrentPrices(ctx)
		if err != nil {
			// Evaluator sees an empty series and price conditions fail closed.
			s.logger.Warnw("price feed unavailable", "error", err)
		} else {
			snap.Prices = prices
		}
	}
	if s.weather != nil {
		weather, err := s.weather.CurrentWeather(ctx)
		if err != nil {
			s.logger.Warnw("weather feed unavailable", "error", err)
		} else {
			snap.Weather = weather
		}
	}
	return snap
}

// evaluateRule advances one rule's state machine. A failing rule is logged and
// left in its previous state; it never aborts the rest of the tick.
func (s *Scheduler) evaluateRule(rule models.AutomationRule, snap engine.Snapshot, now time.Time) {
	satisfied, err := s.evaluator.Evaluate(rule, snap)
	if err != nil {
		s.logger.Errorw("rule evaluation failed", "rule", rule.ID, "name", rule.Name, "error", err)
		return
	}

	st, ok := s.states[rule.ID]
	if !ok {
		st = &ruleState{}
		s.states[rule.ID] = st
	}

	var rising bool
	if !st.known {
		// First sight after start: record a baseline. An already satisfied
		// condition is not a fresh edge unless fire-on-boot is configured.
		st.known = true
		rising = satisfied && s.fireOnBoot
	} else {
		rising = satisfied && !st.lastSatisfied
	}
	st.lastSatisfied = satisfied

	if !rising {
		return
	}

	st.lastFiredAt = &now
	s.fire(rule)
}

func (s *Scheduler) fire(rule models.AutomationRule) {
	s.logger.Infow("rule fired", "rule", rule.ID, "name", rule.Name, "action", rule.Action.Type, "device", rule.DeviceID)
	if err := s.dispatcher.Dispatch(rule.DeviceID, rule.Action.Type); err != nil {
		s.logger.Errorw("dispatch failed", "rule", rule.ID, "device", rule.DeviceID, "error", err)
		if s.retries != nil {
			if qerr := s.retries.EnqueueRetry(rule.DeviceID, rule.Action.Type); qerr != nil {
				s.logger.Errorw("failed to enqueue dispatch retry", "rule", rule.ID, "error", qerr)
			}
		}
	}
}
