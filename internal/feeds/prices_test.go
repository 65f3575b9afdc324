package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPriceURL(t *testing.T) {
	c := NewPriceClient("https://www.elprisetjustnu.se/api/v1/prices", "SE3", nil, zap.NewNop().Sugar())
	day := time.Date(2026, 5, 9, 13, 0, 0, 0, time.UTC)
	assert.Equal(t, "https://www.elprisetjustnu.se/api/v1/prices/2026/05-09_SE3.json", c.url(day))
	assert.Equal(t, "prices:SE3:2026-05-09", c.cacheKey(day))
}

func TestCurrentPricesFetch(t *testing.T) {
	day := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2026/03-10_SE3.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"SEK_per_kWh": 0.95, "EUR_per_kWh": 0.084, "EXR": 11.3,
			 "time_start": "2026-03-10T09:00:00+01:00", "time_end": "2026-03-10T10:00:00+01:00"},
			{"SEK_per_kWh": 1.20, "EUR_per_kWh": 0.106, "EXR": 11.3,
			 "time_start": "2026-03-10T10:00:00+01:00", "time_end": "2026-03-10T11:00:00+01:00"}
		]`))
	}))
	defer srv.Close()

	c := NewPriceClient(srv.URL, "SE3", nil, zap.NewNop().Sugar())
	c.now = func() time.Time { return day }

	points, err := c.CurrentPrices(context.Background())
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 0.95, points[0].SEKPerKWh)
	assert.Equal(t, 1.20, points[1].SEKPerKWh)
	assert.True(t, points[0].TimeEnd.Equal(points[1].TimeStart), "hourly points abut")
}

func TestCurrentPricesUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewPriceClient(srv.URL, "SE3", nil, zap.NewNop().Sugar())

	_, err := c.CurrentPrices(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
}
