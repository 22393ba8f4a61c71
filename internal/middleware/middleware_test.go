package middleware

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tonight-api/internal/auth"
	"tonight-api/internal/wire"
)

func parse(t *testing.T, raw string) *wire.Request {
	t.Helper()
	req, err := wire.ParseRequest([]byte(raw))
	require.NoError(t, err)
	return req
}

func TestAuthRejectsWithoutCalling(t *testing.T) {
	called := false
	h := Auth(auth.HeaderIdentity{Header: "X-User-Id"})(func(ctx context.Context, req *wire.Request) (any, error) {
		called = true
		return "ok", nil
	})

	_, err := h(context.Background(), parse(t, "GET /api/auth/me HTTP/1.1\r\n\r\n"))
	require.Error(t, err)
	assert.False(t, called)

	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Unauthenticated, st.Code())
	assert.Contains(t, st.Message(), "Non autorizzato: ")
}

func TestAuthStoresIdentity(t *testing.T) {
	h := Auth(auth.HeaderIdentity{Header: "X-User-Id"})(func(ctx context.Context, req *wire.Request) (any, error) {
		id, ok := IdentityFrom(ctx)
		require.True(t, ok)
		return id.Subject, nil
	})

	v, err := h(context.Background(), parse(t, "GET /api/auth/me HTTP/1.1\r\nX-User-Id: u-7\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "u-7", v)
}

func TestIdentityFromEmpty(t *testing.T) {
	_, ok := IdentityFrom(context.Background())
	assert.False(t, ok)
}

func TestRateLimiterPerIP(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	a1 := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 1000}
	a2 := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 2000}
	b := &net.TCPAddr{IP: net.ParseIP("10.0.0.2"), Port: 1000}

	assert.True(t, rl.Allow(a1))
	assert.True(t, rl.Allow(a2))
	// same host, new port: bucket is shared
	assert.False(t, rl.Allow(a1))
	assert.True(t, rl.Allow(b))
}

func TestRateLimiterSweep(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.Allow(&net.TCPAddr{IP: net.ParseIP("10.0.0.3"), Port: 1})
	require.Len(t, rl.clients, 1)

	rl.sweep(time.Hour)
	assert.Len(t, rl.clients, 1)

	rl.clients["10.0.0.3"].seen = time.Now().Add(-2 * time.Hour)
	rl.sweep(time.Hour)
	assert.Empty(t, rl.clients)
}

func TestRateLimiterRunStops(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.Run(ctx, time.Millisecond, time.Hour)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
