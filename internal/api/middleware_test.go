package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterBurstAndRefill(t *testing.T) {
	rl := NewRateLimiter(2)
	clock := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	for i := 0; i < 4; i++ {
		assert.True(t, rl.allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.2"), "buckets are per client")

	clock = clock.Add(500 * time.Millisecond)
	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))
}

func TestRateLimiterEvictsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(5)
	clock := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }
	rl.lastSweep = clock

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		require.True(t, rl.allow(ip))
	}
	require.Len(t, rl.clients, 3)

	clock = clock.Add(bucketIdleTTL - time.Minute)
	require.True(t, rl.allow("10.0.0.3"))

	// The first two went quiet; the sweep after the TTL removes only them.
	clock = clock.Add(2 * time.Minute)
	require.True(t, rl.allow("10.0.0.4"))

	assert.Len(t, rl.clients, 2)
	assert.Contains(t, rl.clients, "10.0.0.3")
	assert.Contains(t, rl.clients, "10.0.0.4")
}

func TestRateLimiterMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(NewRateLimiter(1).Middleware())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, router, http.MethodGet, "/x", nil, nil).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
