package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mcoot/biogames-go/internal/dependencies/mocks"
)

func TestRateLimiterPerIP(t *testing.T) {
	clk := mocks.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	l := NewRateLimiter(1, 1, time.Minute, clk, false)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))
	assert.Equal(t, 2, l.Clients())
}

func TestRateLimiterForgetsIdleClients(t *testing.T) {
	clk := mocks.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	l := NewRateLimiter(1, 1, time.Minute, clk, false)

	l.Allow("10.0.0.1")
	clk.Advance(30 * time.Second)
	l.Allow("10.0.0.2")
	clk.Advance(40 * time.Second)
	l.Allow("10.0.0.2")

	assert.Equal(t, 1, l.Clients())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:1234"
	req.Header.Set("X-Real-IP", "192.0.2.9")

	assert.Equal(t, "198.51.100.4", clientIP(req, false))
	assert.Equal(t, "192.0.2.9", clientIP(req, true))

	req.Header.Set("X-Real-IP", "not-an-ip")
	assert.Equal(t, "198.51.100.4", clientIP(req, true))
}
