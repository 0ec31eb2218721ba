package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/listing-market/internal/apperr"
	"github.com/iliyamo/listing-market/internal/config"
	"github.com/iliyamo/listing-market/internal/model"
	"github.com/iliyamo/listing-market/internal/utils"
)

type blacklist map[string]bool

func (b blacklist) IsBlacklisted(_ context.Context, token string) (bool, error) {
	return b[token], nil
}

type userTable map[uint64]model.User

func (u userTable) CurrentUser(_ context.Context, id uint64) (model.User, error) {
	if usr, ok := u[id]; ok {
		return usr, nil
	}
	return model.User{}, apperr.NotFound("user not found")
}

func newAuth(t *testing.T) (*TokenAuthenticator, utils.TokenPair, blacklist) {
	t.Helper()
	codec := utils.NewTokenCodec("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
	pair, err := codec.Issue(7)
	require.NoError(t, err)
	bl := blacklist{}
	return &TokenAuthenticator{Codec: codec, Blacklist: bl}, pair, bl
}

// serve runs mw in front of a handler that records the stored user.
func serve(mw echo.MiddlewareFunc, req *http.Request) (model.User, error) {
	e := echo.New()
	c := e.NewContext(req, httptest.NewRecorder())
	var seen model.User
	err := mw(func(c echo.Context) error {
		seen, _ = CurrentUser(c)
		return nil
	})(c)
	return seen, err
}

func TestRequireAuthAcceptsCookieAndBearer(t *testing.T) {
	auth, pair, _ := newAuth(t)
	mw := RequireAuth(auth, userTable{7: {ID: 7, Role: model.RoleCustomer}})

	byCookie := httptest.NewRequest(http.MethodGet, "/", nil)
	byCookie.AddCookie(&http.Cookie{Name: "access_token", Value: pair.Access})
	u, err := serve(mw, byCookie)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), u.ID)

	byHeader := httptest.NewRequest(http.MethodGet, "/", nil)
	byHeader.Header.Set(echo.HeaderAuthorization, "Bearer "+pair.Access)
	u, err = serve(mw, byHeader)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), u.ID)
}

func TestRequireAuthRejects(t *testing.T) {
	auth, pair, bl := newAuth(t)
	users := userTable{7: {ID: 7, Role: model.RoleCustomer}}

	cases := []struct {
		name  string
		token string
		users userTable
		setup func()
	}{
		{name: "missing", users: users},
		{name: "garbage", token: "not-a-jwt", users: users},
		{name: "refresh token", token: pair.Refresh, users: users},
		{name: "hidden user", token: pair.Access, users: userTable{}},
		{name: "blacklisted", token: pair.Access, users: users, setup: func() { bl[pair.Access] = true }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setup != nil {
				tc.setup()
			}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.token != "" {
				req.Header.Set(echo.HeaderAuthorization, "Bearer "+tc.token)
			}
			_, err := serve(RequireAuth(auth, tc.users), req)
			assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
		})
	}
}

func TestAuthenticateBlacklisted(t *testing.T) {
	auth, pair, bl := newAuth(t)
	uid, err := auth.Authenticate(context.Background(), pair.Access)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), uid)

	bl[pair.Access] = true
	_, err = auth.Authenticate(context.Background(), pair.Access)
	assert.ErrorIs(t, err, ErrRevoked)
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(RequireRole(model.RoleCustomer)(ok)(c)))

	setUser(c, model.User{ID: 1, Role: model.RoleCustomer})
	assert.NoError(t, RequireRole(model.RoleAdmin, model.RoleCustomer)(ok)(c))
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(RequireRole(model.RoleAdmin)(ok)(c)))
}

func newLimited(t *testing.T, cfg config.RateLimitConfig) (*echo.Echo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e := echo.New()
	limit := RateLimit(cfg, rdb, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	e.POST("/login", ok, limit)
	e.POST("/register", ok, limit)
	return e, mr
}

func hit(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = "203.0.113.9:5555"
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitBlocksAfterBurst(t *testing.T) {
	e, _ := newLimited(t, config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            10 * time.Minute,
		KeyStrategy:    "ip_route",
		Prefix:         "rl",
	})

	assert.Equal(t, http.StatusNoContent, hit(e, "/login").Code)
	second := hit(e, "/login")
	assert.Equal(t, http.StatusNoContent, second.Code)
	assert.Equal(t, "0", second.Header().Get("X-RateLimit-Remaining"))

	blocked := hit(e, "/login")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))

	// buckets are per route
	assert.Equal(t, http.StatusNoContent, hit(e, "/register").Code)
}

func TestRateLimitFailsOpen(t *testing.T) {
	e, mr := newLimited(t, config.RateLimitConfig{
		Enabled:        true,
		Capacity:       1,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            time.Hour,
		Prefix:         "rl",
	})
	mr.Close()

	for range 3 {
		assert.Equal(t, http.StatusNoContent, hit(e, "/login").Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	e, _ := newLimited(t, config.RateLimitConfig{Enabled: false, Capacity: 1})
	for range 3 {
		assert.Equal(t, http.StatusNoContent, hit(e, "/login").Code)
	}
}
