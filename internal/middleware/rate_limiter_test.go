package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestIPRateLimiter_Allow(t *testing.T) {
	l := NewIPRateLimiter(60, 2)
	now := time.Now()
	l.now = func() time.Time { return now }

	if !l.Allow("1.1.1.1") || !l.Allow("1.1.1.1") {
		t.Fatal("expected burst of 2 to be allowed")
	}
	if l.Allow("1.1.1.1") {
		t.Error("expected third request to be limited")
	}
	if !l.Allow("2.2.2.2") {
		t.Error("other clients must have their own bucket")
	}

	now = now.Add(time.Second)
	if !l.Allow("1.1.1.1") {
		t.Error("expected a token to refill after one second at 60/minute")
	}
}

func TestIPRateLimiter_Cleanup(t *testing.T) {
	l := NewIPRateLimiter(60, 1)
	now := time.Now()
	l.now = func() time.Time { return now }

	l.Allow("1.1.1.1")
	now = now.Add(5 * time.Minute)
	l.Allow("2.2.2.2")
	now = now.Add(6 * time.Minute)

	if removed := l.Cleanup(); removed != 1 {
		t.Errorf("expected 1 idle visitor removed, got %d", removed)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	l := NewIPRateLimiter(1, 1)
	router := gin.New()
	router.GET("/", l.RateLimit(), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 2)
	for i := range codes {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes[i] = w.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("expected 200 then 429, got %v", codes)
	}
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	l := NewIPRateLimiter(0, 0)
	router := gin.New()
	router.GET("/", l.RateLimit(), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
}

func TestRequestSizeLimit(t *testing.T) {
	router := gin.New()
	router.POST("/", RequestSizeLimit(10), func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		body     string
		expected int
	}{
		{"small", http.StatusOK},
		{strings.Repeat("x", 11), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body)))
		if w.Code != tt.expected {
			t.Errorf("body of %d bytes: expected %d, got %d", len(tt.body), tt.expected, w.Code)
		}
	}
}
