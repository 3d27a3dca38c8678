package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRateLimiter_PerLogin(t *testing.T) {
	// Лимит практически не пополняется во время теста: доступен только burst.
	l := NewRateLimiter(0.0001, 2, nil)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	do := func(login string) int {
		r := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
		r = r.WithContext(WithLogin(r.Context(), login))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusCreated, do("anna"))
	assert.Equal(t, http.StatusCreated, do("anna"))
	assert.Equal(t, http.StatusTooManyRequests, do("anna"))
	assert.Equal(t, http.StatusCreated, do("boris"), "other customers keep their own budget")
}

func TestLoginKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:5555"
	assert.Equal(t, "ip:10.0.0.7", LoginKey(r))

	r = r.WithContext(WithLogin(r.Context(), "anna"))
	assert.Equal(t, "login:anna", LoginKey(r))
}

func TestRequireAdminToken(t *testing.T) {
	h := RequireAdminToken("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		header string
		want   int
	}{
		{header: "Bearer s3cret", want: http.StatusOK},
		{header: "bearer s3cret", want: http.StatusOK},
		{header: "Bearer wrong", want: http.StatusUnauthorized},
		{header: "s3cret", want: http.StatusUnauthorized},
		{header: "", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/admin/orders/1/status", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("out of stock"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/checkout", nil))

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "POST", fields["method"])
		assert.Equal(t, "/api/checkout", fields["path"])
		assert.Equal(t, int64(http.StatusConflict), fields["status"])
		assert.Equal(t, int64(len("out of stock")), fields["bytes"])
	}
}

func TestRateLimiter_EvictsIdleKeys(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, 1, nil)
	l.now = func() time.Time { return now }

	l.limiter("login:anna")
	l.limiter("login:boris")
	assert.Len(t, l.limiters, 2)

	now = now.Add(limiterIdleTTL / 2)
	l.limiter("login:boris")

	now = now.Add(limiterIdleTTL * 3 / 4)
	l.limiter("login:vera")

	assert.Len(t, l.limiters, 2)
	assert.NotContains(t, l.limiters, "login:anna")
	assert.Contains(t, l.limiters, "login:boris")
	assert.Contains(t, l.limiters, "login:vera")
}
