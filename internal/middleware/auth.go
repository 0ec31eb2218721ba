package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/listing-market/internal/apperr"
	"github.com/iliyamo/listing-market/internal/cookie"
	"github.com/iliyamo/listing-market/internal/model"
	"github.com/iliyamo/listing-market/internal/utils"
)

// ErrRevoked is returned for access tokens blacklisted by logout.
var ErrRevoked = errors.New("access token revoked")

// BlacklistChecker reports whether an access token was revoked.
type BlacklistChecker interface {
	IsBlacklisted(ctx context.Context, accessToken string) (bool, error)
}

// UserLoader loads the visible account behind a token subject.
type UserLoader interface {
	CurrentUser(ctx context.Context, id uint64) (model.User, error)
}

// TokenAuthenticator validates access tokens: signature, expiry and the
// logout blacklist.
type TokenAuthenticator struct {
	Codec     *utils.TokenCodec
	Blacklist BlacklistChecker
}

// Authenticate returns the subject of a live access token.
func (a *TokenAuthenticator) Authenticate(ctx context.Context, raw string) (uint64, error) {
	claims, err := a.Codec.Verify(raw, utils.AccessToken)
	if err != nil {
		return 0, err
	}
	revoked, err := a.Blacklist.IsBlacklisted(ctx, raw)
	if err != nil {
		return 0, err
	}
	if revoked {
		return 0, ErrRevoked
	}
	return claims.Subject, nil
}

// accessToken reads the access_token cookie, then a Bearer header.
func accessToken(c echo.Context) string {
	if ck, err := c.Cookie(cookie.AccessToken); err == nil && ck.Value != "" {
		return ck.Value
	}
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if tok, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(tok)
	}
	return ""
}

// RequireAuth rejects requests without a live access token and stores the
// caller's account in the context for handlers and RequireRole.
func RequireAuth(a *TokenAuthenticator, users UserLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := accessToken(c)
			if raw == "" {
				return apperr.Unauthorized("missing access token")
			}
			ctx := c.Request().Context()
			uid, err := a.Authenticate(ctx, raw)
			switch {
			case errors.Is(err, utils.ErrTokenExpired):
				return apperr.Unauthorized("access token expired")
			case errors.Is(err, utils.ErrTokenInvalid), errors.Is(err, ErrRevoked):
				return apperr.Unauthorized("invalid access token")
			case err != nil:
				return apperr.Internal(err)
			}
			u, err := users.CurrentUser(ctx, uid)
			if apperr.Is(err, apperr.KindNotFound) {
				return apperr.Unauthorized("invalid access token")
			}
			if err != nil {
				return err
			}
			setUser(c, u)
			return next(c)
		}
	}
}
