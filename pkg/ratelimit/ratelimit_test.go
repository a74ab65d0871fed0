package ratelimit

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docmail/docmail/pkg/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.RateLimit{Enabled: true, RequestsPerSecond: 5, Burst: 10})
	assert.Equal(t, float64(5), cfg.Rate)
	assert.Equal(t, 10, cfg.Burst)
	assert.Equal(t, time.Minute, cfg.CleanupInterval)
	assert.Equal(t, 5*time.Minute, cfg.MaxAge)
}

func TestNew(t *testing.T) {
	t.Run("creates limiter with config", func(t *testing.T) {
		rl := New(Config{Rate: 10, Burst: 20, CleanupInterval: time.Second, MaxAge: time.Minute})
		defer rl.Stop()

		assert.Equal(t, float64(10), rl.Config().Rate)
		assert.Equal(t, 20, rl.Config().Burst)
	})

	t.Run("fills zero values", func(t *testing.T) {
		rl := New(Config{Rate: 10})
		defer rl.Stop()

		assert.Equal(t, time.Minute, rl.Config().CleanupInterval)
		assert.Equal(t, 5*time.Minute, rl.Config().MaxAge)
		assert.Equal(t, 1, rl.Config().Burst)
	})
}

func TestAllow(t *testing.T) {
	t.Run("allows requests within burst and blocks the next", func(t *testing.T) {
		rl := New(Config{Rate: 1, Burst: 5, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()

		for i := 0; i < 5; i++ {
			assert.True(t, rl.Allow("192.168.1.1"), "request %d should be allowed", i)
		}
		assert.False(t, rl.Allow("192.168.1.1"))
	})

	t.Run("different IPs have separate limits", func(t *testing.T) {
		rl := New(Config{Rate: 1, Burst: 1, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()

		assert.True(t, rl.Allow("192.168.1.1"))
		assert.False(t, rl.Allow("192.168.1.1"))
		assert.True(t, rl.Allow("192.168.1.2"))
		assert.Equal(t, 2, rl.Len())
	})

	t.Run("tokens refill over time", func(t *testing.T) {
		rl := New(Config{Rate: 20, Burst: 1, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()

		assert.True(t, rl.Allow("192.168.1.1"))
		assert.False(t, rl.Allow("192.168.1.1"))
		time.Sleep(100 * time.Millisecond)
		assert.True(t, rl.Allow("192.168.1.1"))
	})
}

func newRouter(rl *IPRateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	return router
}

func get(router http.Handler, remote, forwarded string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = remote
	if forwarded != "" {
		req.Header.Set("X-Forwarded-For", forwarded)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestMiddleware(t *testing.T) {
	t.Run("returns 429 with retry hint when limited", func(t *testing.T) {
		rl := New(Config{Rate: 1, Burst: 2, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()
		router := newRouter(rl)

		for i := 0; i < 2; i++ {
			assert.Equal(t, http.StatusOK, get(router, "192.168.1.1:12345", "").Code)
		}

		w := get(router, "192.168.1.1:12345", "")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
		assert.Contains(t, w.Body.String(), "RATE_LIMITED")
	})

	t.Run("slow rates hint a longer retry", func(t *testing.T) {
		rl := New(Config{Rate: 0.25, Burst: 1, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()
		router := newRouter(rl)

		get(router, "192.168.1.1:12345", "")
		w := get(router, "192.168.1.1:12345", "")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "4", w.Header().Get("Retry-After"))
	})

	t.Run("uses X-Forwarded-For from trusted proxies", func(t *testing.T) {
		rl := New(Config{Rate: 1, Burst: 1, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()
		router := newRouter(rl)
		require.NoError(t, router.SetTrustedProxies([]string{"10.0.0.0/8"}))

		assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:12345", "192.168.1.1").Code)
		assert.Equal(t, http.StatusTooManyRequests, get(router, "10.0.0.1:12345", "192.168.1.1").Code)
		assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:12345", "192.168.1.2").Code)
	})
}

func TestCleanupStaleEntries(t *testing.T) {
	rl := New(Config{Rate: 10, Burst: 10, CleanupInterval: time.Hour, MaxAge: time.Minute})
	defer rl.Stop()

	rl.Allow("192.168.1.1")
	rl.Allow("192.168.1.2")

	rl.cleanupStaleEntries(time.Now().Add(30 * time.Second))
	assert.Equal(t, 2, rl.Len())

	rl.cleanupStaleEntries(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 0, rl.Len())
}

func TestCleanupLoop(t *testing.T) {
	rl := New(Config{Rate: 10, Burst: 10, CleanupInterval: 20 * time.Millisecond, MaxAge: 20 * time.Millisecond})
	defer rl.Stop()

	rl.Allow("192.168.1.1")
	assert.Eventually(t, func() bool { return rl.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	rl := New(Config{Rate: 1, Burst: 1})
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}

func TestConcurrency(t *testing.T) {
	rl := New(Config{Rate: 100, Burst: 100, CleanupInterval: time.Hour, MaxAge: time.Hour})
	defer rl.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ip := fmt.Sprintf("192.168.1.%d", id%10)
			for j := 0; j < 10; j++ {
				rl.Allow(ip)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, rl.Len())
}
