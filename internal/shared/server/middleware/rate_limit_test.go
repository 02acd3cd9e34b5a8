package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimitRejectsBurstOverflow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now })

	r := gin.New()
	r.POST("/webhook/resend/", RateLimit(RateLimitRule{Rate: 1, Burst: 2}, limiter), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/webhook/resend/", nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("request %d expected 200, got %d", i+1, resp.Code)
		}
	}

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/webhook/resend/", nil))
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("request 3 expected 429, got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After=1, got %q", resp.Header().Get("Retry-After"))
	}
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["error"] != "Too many requests" {
		t.Fatalf("unexpected error body %v", payload)
	}

	now = now.Add(time.Second)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/webhook/resend/", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected refill after one second, got %d", resp.Code)
	}
}

func TestRateLimitDisabledRuleAdmitsAll(t *testing.T) {
	limiter := NewRateLimiter(nil)
	for i := 0; i < 100; i++ {
		if ok, _ := limiter.Allow("k", RateLimitRule{}); !ok {
			t.Fatalf("disabled rule rejected request %d", i)
		}
	}
}
