package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// ErrUpstream marks a price or weather feed failure. The caller degrades:
// the evaluator treats missing upstream data as "condition not satisfied".
var ErrUpstream = errors.New("upstream feed failure")

const (
	fetchTimeout  = 10 * time.Second
	fetchAttempts = 3
)

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
	})
}

// getJSON fetches url and decodes it into out, behind the circuit breaker and
// with a couple of quick retries. Errors come back wrapped in ErrUpstream.
func getJSON(ctx context.Context, client *http.Client, cb *gobreaker.CircuitBreaker, url string, out any) error {
	_, err := cb.Execute(func() (any, error) {
		bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), fetchAttempts-1)
		return nil, backoff.Retry(func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return backoff.Permanent(err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return fmt.Errorf("status %d", resp.StatusCode)
			}
			return json.NewDecoder(resp.Body).Decode(out)
		}, backoff.WithContext(bo, ctx))
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUpstream, url, err)
	}
	return nil
}
