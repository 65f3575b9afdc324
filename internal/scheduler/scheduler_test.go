package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tonytopp/shelly-home/internal/engine"
	"github.com/tonytopp/shelly-home/internal/models"
	"github.com/tonytopp/shelly-home/internal/registry"
)

type fakeRules struct {
	mu    sync.Mutex
	rules []models.AutomationRule
	err   error
	// block, when set, stalls GetAllRules until released. entered reports the
	// stall has been reached. Used to hold a tick open while a second one is
	// attempted.
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeRules) GetAllRules(context.Context) ([]models.AutomationRule, error) {
	if f.block != nil {
		if f.entered != nil {
			select {
			case f.entered <- struct{}{}:
			default:
			}
		}
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rules, f.err
}

func (f *fakeRules) set(rules ...models.AutomationRule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = rules
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []models.Action
	err   error
}

func (f *fakeDispatcher) Dispatch(deviceID int64, action models.ActionType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, models.Action{Type: action, DeviceID: deviceID})
	return f.err
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRetries struct {
	mu    sync.Mutex
	calls []models.Action
}

func (f *fakeRetries) EnqueueRetry(deviceID int64, action models.ActionType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, models.Action{Type: action, DeviceID: deviceID})
	return nil
}

func windowRule(id int64, start, end string) models.AutomationRule {
	return models.AutomationRule{
		ID:       id,
		Name:     "window",
		DeviceID: 1,
		IsActive: true,
		Condition: models.Condition{
			Type: models.ConditionTime,
			Time: &models.TimeCondition{StartTime: start, EndTime: end},
		},
		Action: models.Action{Type: models.ActionTurnOn, DeviceID: 1},
	}
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 3, day, hour, minute, 0, 0, time.UTC)
}

func newTestScheduler(rules RuleSource, disp CommandDispatcher, retries RetryQueue, fireOnBoot bool) *Scheduler {
	reg := registry.NewRegistry(nil, nil, 5*time.Minute, zap.NewNop().Sugar())
	return NewScheduler(rules, engine.NewEvaluator(0), reg, nil, nil, disp, retries, fireOnBoot, zap.NewNop().Sugar())
}

func TestTickFiresOnRisingEdgeOnly(t *testing.T) {
	rules := &fakeRules{}
	rules.set(windowRule(1, "10:00", "12:00"))
	disp := &fakeDispatcher{}
	s := newTestScheduler(rules, disp, nil, false)

	ctx := context.Background()

	require.True(t, s.Tick(ctx, at(10, 9, 0))) // baseline, unsatisfied
	assert.Equal(t, 0, disp.count())

	require.True(t, s.Tick(ctx, at(10, 10, 30))) // rising edge
	assert.Equal(t, 1, disp.count())

	require.True(t, s.Tick(ctx, at(10, 11, 0))) // still satisfied
	require.True(t, s.Tick(ctx, at(10, 11, 30)))
	assert.Equal(t, 1, disp.count(), "a condition holding across ticks fires once")

	require.True(t, s.Tick(ctx, at(10, 13, 0))) // falling edge
	assert.Equal(t, 1, disp.count())

	require.True(t, s.Tick(ctx, at(11, 10, 30))) // next day's rising edge
	assert.Equal(t, 2, disp.count())
	assert.Equal(t, models.ActionTurnOn, disp.calls[0].Type)
	assert.Equal(t, int64(1), disp.calls[0].DeviceID)
}

func TestTickColdStartRecordsBaseline(t *testing.T) {
	rules := &fakeRules{}
	rules.set(windowRule(1, "10:00", "12:00"))
	disp := &fakeDispatcher{}
	s := newTestScheduler(rules, disp, nil, false)

	ctx := context.Background()

	// First sight of an already satisfied rule is a baseline, not an edge.
	require.True(t, s.Tick(ctx, at(10, 10, 30)))
	require.True(t, s.Tick(ctx, at(10, 11, 0)))
	assert.Equal(t, 0, disp.count())

	// A real transition after the baseline still fires.
	require.True(t, s.Tick(ctx, at(10, 13, 0)))
	require.True(t, s.Tick(ctx, at(11, 10, 30)))
	assert.Equal(t, 1, disp.count())
}

func TestTickFireOnBoot(t *testing.T) {
	rules := &fakeRules{}
	rules.set(windowRule(1, "10:00", "12:00"))
	disp := &fakeDispatcher{}
	s := newTestScheduler(rules, disp, nil, true)

	require.True(t, s.Tick(context.Background(), at(10, 10, 30)))
	assert.Equal(t, 1, disp.count(), "fire-on-boot treats a satisfied first sight as an edge")

	require.True(t, s.Tick(context.Background(), at(10, 11, 0)))
	assert.Equal(t, 1, disp.count())
}

func TestTickInactiveRuleNeverFires(t *testing.T) {
	rule := windowRule(1, "00:00", "23:59")
	rule.IsActive = false
	rules := &fakeRules{}
	rules.set(rule)
	disp := &fakeDispatcher{}
	s := newTestScheduler(rules, disp, nil, true)

	require.True(t, s.Tick(context.Background(), at(10, 12, 0)))
	require.True(t, s.Tick(context.Background(), at(10, 12, 30)))
	assert.Equal(t, 0, disp.count())
}

func TestTickReactivationIsAFreshEdge(t *testing.T) {
	active := windowRule(1, "00:00", "23:59")
	inactive := active
	inactive.IsActive = false

	rules := &fakeRules{}
	disp := &fakeDispatcher{}
	s := newTestScheduler(rules, disp, nil, false)
	ctx := context.Background()

	rules.set(inactive)
	require.True(t, s.Tick(ctx, at(10, 12, 0))) // baseline while disabled

	rules.set(active)
	require.True(t, s.Tick(ctx, at(10, 12, 30)))
	assert.Equal(t, 1, disp.count(), "enabling a rule whose condition holds is a rising edge")

	rules.set(inactive)
	require.True(t, s.Tick(ctx, at(10, 13, 0)))
	rules.set(active)
	require.True(t, s.Tick(ctx, at(10, 13, 30)))
	assert.Equal(t, 2, disp.count())
}

func TestTickOverlapSkipped(t *testing.T) {
	rules := &fakeRules{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	disp := &fakeDispatcher{}
	s := newTestScheduler(rules, disp, nil, false)

	done := make(chan bool)
	go func() {
		done <- s.Tick(context.Background(), at(10, 12, 0))
	}()
	<-rules.entered

	// The first tick is parked inside GetAllRules; the overlapping one must
	// return immediately without running.
	assert.False(t, s.Tick(context.Background(), at(10, 12, 0).Add(30*time.Second)))

	close(rules.block)
	assert.True(t, <-done)
}

func TestTickFailingRuleIsolated(t *testing.T) {
	broken := windowRule(1, "bad", "worse")
	healthy := windowRule(2, "10:00", "12:00")

	rules := &fakeRules{}
	rules.set(broken, healthy)
	disp := &fakeDispatcher{}
	s := newTestScheduler(rules, disp, nil, false)
	ctx := context.Background()

	require.True(t, s.Tick(ctx, at(10, 9, 0)))
	require.True(t, s.Tick(ctx, at(10, 10, 30)))
	assert.Equal(t, 1, disp.count(), "one malformed rule must not starve the others")
	assert.Equal(t, int64(1), disp.calls[0].DeviceID)
}

func TestTickRuleSourceFailureAbortsEvaluation(t *testing.T) {
	rules := &fakeRules{err: errors.New("db down")}
	disp := &fakeDispatcher{}
	s := newTestScheduler(rules, disp, nil, true)

	// The tick ran (and released the lock); it just could not evaluate.
	assert.True(t, s.Tick(context.Background(), at(10, 12, 0)))
	assert.Equal(t, 0, disp.count())
}

func TestTickFailedDispatchGoesToRetryQueue(t *testing.T) {
	rules := &fakeRules{}
	rules.set(windowRule(1, "10:00", "12:00"))
	disp := &fakeDispatcher{err: errors.New("device offline")}
	retries := &fakeRetries{}
	s := newTestScheduler(rules, disp, retries, false)
	ctx := context.Background()

	require.True(t, s.Tick(ctx, at(10, 9, 0)))
	require.True(t, s.Tick(ctx, at(10, 10, 30)))

	require.Len(t, retries.calls, 1)
	assert.Equal(t, models.ActionTurnOn, retries.calls[0].Type)
	assert.Equal(t, int64(1), retries.calls[0].DeviceID)

	// The edge is consumed: the next tick does not re-dispatch.
	require.True(t, s.Tick(ctx, at(10, 11, 0)))
	assert.Equal(t, 1, disp.count())
	assert.Len(t, retries.calls, 1)
}

func TestTickForgetsDeletedRules(t *testing.T) {
	rules := &fakeRules{}
	rules.set(windowRule(1, "10:00", "12:00"))
	disp := &fakeDispatcher{}
	s := newTestScheduler(rules, disp, nil, false)
	ctx := context.Background()

	require.True(t, s.Tick(ctx, at(10, 9, 0)))
	require.True(t, s.Tick(ctx, at(10, 10, 30)))
	assert.Equal(t, 1, disp.count())

	// Delete and recreate with the same id: runtime state starts over, so the
	// satisfied condition only sets a baseline.
	rules.set()
	require.True(t, s.Tick(ctx, at(10, 11, 0)))
	rules.set(windowRule(1, "10:00", "12:00"))
	require.True(t, s.Tick(ctx, at(10, 11, 30)))
	assert.Equal(t, 1, disp.count())
}
