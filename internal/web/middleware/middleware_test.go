package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/catalogsync/internal/core"
)

var testSecret = []byte("middleware-secret")

func TestTokenRoundTrip(t *testing.T) {
	want := core.Principal{
		UserID:       "u7",
		Restaurants:  []string{"r1", "r2"},
		Capabilities: []core.Capability{core.CapImport, core.CapView},
	}
	raw, err := IssueToken(testSecret, want, time.Minute)
	require.NoError(t, err)

	claims, err := ParseToken(testSecret, raw)
	require.NoError(t, err)
	assert.Equal(t, want, claims.Principal())
}

func TestParseTokenRejects(t *testing.T) {
	p := core.Principal{UserID: "u1"}

	expired, err := IssueToken(testSecret, p, -time.Minute)
	require.NoError(t, err)
	otherKey, err := IssueToken([]byte("other"), p, time.Minute)
	require.NoError(t, err)
	noSubject, err := IssueToken(testSecret, core.Principal{}, time.Minute)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
	}).SignedString(testSecret)
	require.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"expired":    expired,
		"other key":  otherKey,
		"no subject": noSubject,
		"no expiry":  noExpiry,
		"alg none":   unsigned,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(testSecret, raw)
			assert.Error(t, err)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	var got core.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = core.PrincipalFromContext(r.Context())
	})

	valid, err := IssueToken(testSecret, core.Principal{UserID: "u1", Restaurants: []string{"r1"}}, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name     string
		required bool
		header   string
		status   int
		user     string
	}{
		{"valid token", true, "Bearer " + valid, http.StatusOK, "u1"},
		{"missing token", true, "", http.StatusUnauthorized, ""},
		{"wrong scheme", true, "Basic " + valid, http.StatusUnauthorized, ""},
		{"auth disabled", false, "", http.StatusOK, "system"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = core.Principal{}
			req := httptest.NewRequest(http.MethodGet, "/api/jobs/1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			Authenticate(testSecret, tt.required)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.user, got.UserID)
		})
	}
}

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name       string
		trusted    []string
		remoteAddr string
		realIP     string
		forwarded  string
		want       string
	}{
		{"untrusted source keeps address", []string{"10.0.0.0/8"}, "203.0.113.9:4000", "1.2.3.4", "", "203.0.113.9:4000"},
		{"trusted proxy uses X-Real-IP", []string{"10.0.0.0/8"}, "10.1.2.3:4000", "198.51.100.7", "", "198.51.100.7"},
		{"trusted proxy uses first forwarded hop", []string{"10.0.0.1"}, "10.0.0.1:4000", "", "198.51.100.8, 10.0.0.1", "198.51.100.8"},
		{"invalid header ignored", []string{"10.0.0.0/8"}, "10.1.2.3:4000", "not-an-ip", "", "10.1.2.3:4000"},
		{"invalid trusted entry skipped", []string{"bogus"}, "10.1.2.3:4000", "198.51.100.7", "", "10.1.2.3:4000"},
		{"no trusted proxies", nil, "10.1.2.3:4000", "198.51.100.7", "", "10.1.2.3:4000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := TrustedRealIP(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "limits are per client")

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("a"), "a new window refills the bucket")
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()
	h := rl.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("192.0.2.1:1000").Code)
	rec := send("192.0.2.1:2000")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "a new port is the same client")
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestLoggerRecordsStatusAndSize(t *testing.T) {
	var inner *responseWriter
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = w.(*responseWriter)
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, http.StatusTeapot, inner.status)
	assert.Equal(t, len("short and stout"), inner.bytes)
}
