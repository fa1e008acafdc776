package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/property-booking/internal/config"
)

const testSecret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func validClaims() Claims {
	return Claims{
		Name:  "Alice",
		Email: "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func serveAuth(t *testing.T, header string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		u, ok := CurrentUser(c)
		if !ok {
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, echo.Map{"id": u.ID, "name": u.Name, "email": u.Email, "key": currentUserID(c)})
	}, JWTAuth(testSecret))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthAcceptsTokenWithOrWithoutBearer(t *testing.T) {
	tok := sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims())
	for _, h := range []string{"Bearer " + tok, tok} {
		rec := serveAuth(t, h)
		if rec.Code != http.StatusOK {
			t.Fatalf("header %q: status %d body %s", h[:10], rec.Code, rec.Body.String())
		}
		want := `{"email":"alice@example.com","id":"u1","key":"u1","name":"Alice"}`
		if got := rec.Body.String(); got != want+"\n" {
			t.Fatalf("body = %s", got)
		}
	}
}

func TestJWTAuthRejects(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noSub := validClaims()
	noSub.Subject = ""

	tests := map[string]string{
		"missing":      "",
		"garbage":      "Bearer not-a-token",
		"wrong secret": sign(t, jwt.SigningMethodHS256, []byte("other"), validClaims()),
		"expired":      sign(t, jwt.SigningMethodHS256, []byte(testSecret), expired),
		"no subject":   sign(t, jwt.SigningMethodHS256, []byte(testSecret), noSub),
		"wrong alg":    sign(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims()),
	}
	for name, h := range tests {
		if rec := serveAuth(t, h); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status %d, want 401", name, rec.Code)
		}
	}
}

func TestCurrentUserIDDefaultsToAnon(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if got := currentUserID(c); got != "anon" {
		t.Fatalf("currentUserID = %q", got)
	}
	if _, ok := CurrentUser(c); ok {
		t.Fatal("CurrentUser reported a user on an anonymous request")
	}
}

func TestRateKeyStrategies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/bookings", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/bookings")
	c.Set(userIDKey, "u1")

	tests := map[string]string{
		"ip":         "rl:ip:10.0.0.1",
		"user":       "rl:user:u1",
		"route":      "rl:route:POST /bookings",
		"ip_user":    "rl:ip:10.0.0.1:user:u1",
		"user_route": "rl:user:u1:route:POST /bookings",
		"":           "rl:ip:10.0.0.1:user:u1:route:POST /bookings",
	}
	for strategy, want := range tests {
		got := rateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c)
		if got != want {
			t.Errorf("%q: key = %q, want %q", strategy, got, want)
		}
	}
}

func TestRateLimitPassesThroughWithoutRedis(t *testing.T) {
	e := echo.New()
	e.Use(RateLimit(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, nil))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	for ms, want := range map[int64]int{-5: 0, 0: 0, 1: 1, 1000: 1, 1001: 2} {
		if got := retryAfterSeconds(ms); got != want {
			t.Errorf("retryAfterSeconds(%d) = %d, want %d", ms, got, want)
		}
	}
}
