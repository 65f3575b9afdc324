package feeds

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/tonytopp/shelly-home/internal/models"
	redispkg "github.com/tonytopp/shelly-home/internal/redis"
)

const priceCacheTTL = time.Hour

// PriceClient fetches the day's hourly spot prices for one bidding zone.
type PriceClient struct {
	base    string
	zone    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	cache   *redispkg.Cache
	logger  *zap.SugaredLogger
	now     func() time.Time
}

func NewPriceClient(base, zone string, cache *redispkg.Cache, logger *zap.SugaredLogger) *PriceClient {
	return &PriceClient{
		base:    base,
		zone:    zone,
		client:  &http.Client{Timeout: fetchTimeout},
		breaker: newBreaker("price-feed"),
		cache:   cache,
		logger:  logger,
		now:     time.Now,
	}
}

func (c *PriceClient) cacheKey(day time.Time) string {
	return fmt.Sprintf("prices:%s:%s", c.zone, day.Format("2006-01-02"))
}

func (c *PriceClient) url(day time.Time) string {
	// e.g. https://www.elprisetjustnu.se/api/v1/prices/2025/05-19_SE3.json
	return fmt.Sprintf("%s/%d/%02d-%02d_%s.json", c.base, day.Year(), day.Month(), day.Day(), c.zone)
}

// CurrentPrices returns today's price series, from cache when possible.
func (c *PriceClient) CurrentPrices(ctx context.Context) ([]models.PricePoint, error) {
	day := c.now()

	var points []models.PricePoint
	if c.cache != nil {
		hit, err := c.cache.GetJSON(ctx, c.cacheKey(day), &points)
		if err != nil {
			c.logger.Warnw("price cache read failed", "error", err)
		} else if hit {
			return points, nil
		}
	}

	if err := getJSON(ctx, c.client, c.breaker, c.url(day), &points); err != nil {
		return nil, err
	}
	c.logger.Infow("fetched electricity prices", "zone", c.zone, "points", len(points))

	if c.cache != nil {
		if err := c.cache.SetJSON(ctx, c.cacheKey(day), points, priceCacheTTL); err != nil {
			c.logger.Warnw("price cache write failed", "error", err)
		}
	}
	return points, nil
}

// Refresh pre-warms the cache. Run from the periodic feed job.
func (c *PriceClient) Refresh(ctx context.Context) error {
	day := c.now()
	var points []models.PricePoint
	if err := getJSON(ctx, c.client, c.breaker, c.url(day), &points); err != nil {
		return err
	}
	if c.cache != nil {
		return c.cache.SetJSON(ctx, c.cacheKey(day), points, priceCacheTTL)
	}
	return nil
}
