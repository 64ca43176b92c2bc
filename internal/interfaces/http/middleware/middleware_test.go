package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"fraud-scoring-service/internal/pkg/logging"
)

func TestRequireUser(t *testing.T) {
	user := uuid.New()
	var seen uuid.UUID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireUser(next)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", user.String(), http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"malformed", "user-42", http.StatusUnauthorized},
		{"nil uuid", uuid.Nil.String(), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = uuid.Nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(UserIDHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				assert.Equal(t, user, seen)
			} else {
				assert.Equal(t, uuid.Nil, seen)
				assert.Contains(t, rec.Body.String(), UserIDHeader)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	var ctxRequestID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxRequestID = logging.RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})
	h := RequestLogger(zap.New(core))(next)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/predictions", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-123", ctxRequestID)

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-123", fields["request_id"])
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, "/api/v1/predictions", fields["path"])
}

func TestRequestLoggerGeneratesID(t *testing.T) {
	h := RequestLogger(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
	assert.NoError(t, err)
}

func newLimitedHandler(t *testing.T, perMinute int) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	limiter := NewRateLimiter(rdb, perMinute, zap.NewNop())
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	return RequireUser(limiter.Middleware(ok)), mr
}

func userRequest(user uuid.UUID) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/predictions", nil)
	req.Header.Set(UserIDHeader, user.String())
	return req
}

func TestRateLimiterPerUser(t *testing.T) {
	h, _ := newLimitedHandler(t, 2)
	alice, bob := uuid.New(), uuid.New()

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, userRequest(alice))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, userRequest(alice))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, userRequest(bob))
	assert.Equal(t, http.StatusOK, rec.Code, "limits are per user")
}

func TestRateLimiterFailsOpen(t *testing.T) {
	h, mr := newLimitedHandler(t, 1)
	mr.Close()

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, userRequest(uuid.New()))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
