package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/beaconhq/beacon/internal/handlers"
	"github.com/beaconhq/beacon/internal/models"
)

func TestRateLimiter_SubjectPrefersUser(t *testing.T) {
	rl := NewRateLimiter(nil, 5, time.Minute, "ratelimit:test")
	userID := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/api/sos", nil)
	req = req.WithContext(handlers.SetUserInContext(req.Context(), &models.User{ID: userID}))
	if got := rl.subject(req); got != "user:"+userID.String() {
		t.Fatalf("expected per-user key, got %s", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/sos", nil)
	req.RemoteAddr = "203.0.113.9:51234"
	if got := rl.subject(req); got != "ip:203.0.113.9" {
		t.Fatalf("expected per-ip key, got %s", got)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		xri        string
		remoteAddr string
		want       string
	}{
		{"forwarded", "198.51.100.7", "", "10.0.0.1:80", "198.51.100.7"},
		{"real ip", "", "198.51.100.8", "10.0.0.1:80", "198.51.100.8"},
		{"remote addr", "", "", "203.0.113.9:51234", "203.0.113.9"},
		{"remote addr without port", "", "", "203.0.113.9", "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			req.RemoteAddr = tt.remoteAddr

			if got := getClientIP(req); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestRateLimiterBudgets(t *testing.T) {
	tests := []struct {
		limiter *RateLimiter
		limit   int
		prefix  string
	}{
		{NewAuthRateLimiter(nil), 5, "ratelimit:auth"},
		{NewSOSRateLimiter(nil), 3, "ratelimit:sos"},
		{NewAIRateLimiter(nil), 10, "ratelimit:ai"},
		{NewAPIRateLimiter(nil), 100, "ratelimit:api"},
	}

	for _, tt := range tests {
		if tt.limiter.limit != tt.limit {
			t.Errorf("%s: expected limit %d, got %d", tt.prefix, tt.limit, tt.limiter.limit)
		}
		if tt.limiter.prefix != tt.prefix {
			t.Errorf("expected prefix %s, got %s", tt.prefix, tt.limiter.prefix)
		}
		if tt.limiter.window != time.Minute {
			t.Errorf("%s: expected one-minute window, got %v", tt.prefix, tt.limiter.window)
		}
	}
}
