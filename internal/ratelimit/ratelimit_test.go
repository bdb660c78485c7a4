package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestLimiterAllow(t *testing.T) {
	l := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         5,
		CleanupInterval:   time.Minute,
	})
	defer l.Stop()

	// First 5 requests allowed (burst)
	for i := 0; i < 5; i++ {
		if !l.Allow("caller1") {
			t.Errorf("request %d should be allowed (within burst)", i+1)
		}
	}

	// 6th request denied (burst exhausted, no time passed)
	if l.Allow("caller1") {
		t.Error("request should be denied after burst exhausted")
	}
}

func TestLimiterMultipleClients(t *testing.T) {
	l := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         2,
		CleanupInterval:   time.Minute,
	})
	defer l.Stop()

	// Each caller has its own bucket
	if !l.Allow("a") || !l.Allow("a") {
		t.Error("caller a burst should be allowed")
	}
	if l.Allow("a") {
		t.Error("caller a should be denied after burst")
	}
	if !l.Allow("b") || !l.Allow("b") {
		t.Error("caller b should have its own burst")
	}
}

func TestLimiterTokenReplenishment(t *testing.T) {
	// 600 rpm = 10 tokens/sec, so ~100ms replenishes a token
	l := New(Config{
		RequestsPerMinute: 600,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer l.Stop()

	if !l.Allow("caller") {
		t.Fatal("first request should be allowed")
	}
	if l.Allow("caller") {
		t.Fatal("second immediate request should be denied")
	}

	time.Sleep(150 * time.Millisecond)

	if !l.Allow("caller") {
		t.Error("request should be allowed after token replenishment")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RequestsPerMinute != 120 {
		t.Errorf("RequestsPerMinute = %d, want 120", cfg.RequestsPerMinute)
	}
	if cfg.BurstSize != 20 {
		t.Errorf("BurstSize = %d, want 20", cfg.BurstSize)
	}
	if cfg.CleanupInterval != time.Minute {
		t.Errorf("CleanupInterval = %v, want 1m", cfg.CleanupInterval)
	}
}

func TestNewFallsBackToDefaults(t *testing.T) {
	l := New(Config{})
	defer l.Stop()

	if l.cfg.RequestsPerMinute != 120 {
		t.Errorf("zero config should fall back to defaults, got rpm=%d", l.cfg.RequestsPerMinute)
	}
}

func TestMiddlewareKeysByCallerAddress(t *testing.T) {
	l := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer l.Stop()

	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(caller string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if caller != "" {
			req.Header.Set("X-Caller-Address", caller)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := do("0xaaaa"); code != http.StatusOK {
		t.Errorf("first request: status = %d", code)
	}
	if code := do("0xaaaa"); code != http.StatusTooManyRequests {
		t.Errorf("second request same caller: status = %d, want 429", code)
	}
	// Different caller gets a fresh bucket even from the same IP
	if code := do("0xbbbb"); code != http.StatusOK {
		t.Errorf("different caller: status = %d, want 200", code)
	}
}
