package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/tonytopp/shelly-home/internal/models"
)

// Snapshot is the consistent world state one evaluation tick reasons over.
// Missing upstream data stays nil/empty and fails closed in the evaluator.
type Snapshot struct {
	Now     time.Time
	Prices  []models.PricePoint
	Weather *models.WeatherSnapshot
	Devices []models.Device
}

// Evaluator decides whether a rule's condition holds against a snapshot.
// Pure and deterministic: identical snapshots give identical answers, which is
// what makes the scheduler's edge detection meaningful.
type Evaluator struct {
	// priceEpsilon widens the "eq" operator. Zero keeps exact comparison.
	priceEpsilon float64
}

func NewEvaluator(priceEpsilon float64) *Evaluator {
	return &Evaluator{priceEpsilon: priceEpsilon}
}

// Evaluate returns whether the rule is currently satisfied. Inactive rules are
// never satisfied. Malformed condition data is an error, not a match.
func (e *Evaluator) Evaluate(rule models.AutomationRule, snap Snapshot) (bool, error) {
	if !rule.IsActive {
		return false, nil
	}
	switch rule.Condition.Type {
	case models.ConditionPrice:
		return e.evaluatePrice(rule.Condition.Price, snap)
	case models.ConditionTime:
		return e.evaluateTime(rule.Condition.Time, snap.Now)
	case models.ConditionWeather:
		return e.evaluateWeather(rule.Condition.Weather, snap.Weather)
	}
	return false, fmt.Errorf("unknown condition type %q", rule.Condition.Type)
}

func (e *Evaluator) evaluatePrice(cond *models.PriceCondition, snap Snapshot) (bool, error) {
	if cond == nil {
		return false, fmt.Errorf("price condition missing body")
	}
	current, ok := currentPrice(snap.Prices, snap.Now)
	if !ok {
		// No price point covering now: absence of data is not a match.
		return false, nil
	}
	switch cond.Operator {
	case models.OpLess:
		return current < cond.Value, nil
	case models.OpGreater:
		return current > cond.Value, nil
	case models.OpEqual:
		if e.priceEpsilon > 0 {
			return math.Abs(current-cond.Value) <= e.priceEpsilon, nil
		}
		return current == cond.Value, nil
	}
	return false, fmt.Errorf("unknown price operator %q", cond.Operator)
}

func currentPrice(points []models.PricePoint, now time.Time) (float64, bool) {
	for _, p := range points {
		if p.Contains(now) {
			return p.SEKPerKWh, true
		}
	}
	return 0, false
}

func (e *Evaluator) evaluateTime(cond *models.TimeCondition, now time.Time) (bool, error) {
	if cond == nil {
		return false, fmt.Errorf("time condition missing body")
	}
	start, err := models.ParseClock(cond.StartTime)
	if err != nil {
		return false, err
	}
	end, err := models.ParseClock(cond.EndTime)
	if err != nil {
		return false, err
	}
	// Equal bounds are a zero-width window, not a 24h one.
	if start == end {
		return false, nil
	}
	cur := models.ClockOf(now)
	if end < start {
		// Window spans midnight, e.g. 22:00-06:00.
		return cur >= start || cur < end, nil
	}
	return cur >= start && cur < end, nil
}

func (e *Evaluator) evaluateWeather(cond *models.WeatherCondition, weather *models.WeatherSnapshot) (bool, error) {
	if cond == nil {
		return false, fmt.Errorf("weather condition missing body")
	}
	if weather == nil {
		return false, nil
	}
	return weather.Condition == cond.Condition, nil
}
