package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/listing-market/internal/model"
)

const (
	ctxUser   = "user"
	ctxUserID = "user_id"
)

func setUser(c echo.Context, u model.User) {
	c.Set(ctxUser, u)
	c.Set(ctxUserID, u.ID)
}

// CurrentUser returns the account stored by RequireAuth.
func CurrentUser(c echo.Context) (model.User, bool) {
	u, ok := c.Get(ctxUser).(model.User)
	return u, ok
}

// userKey identifies the caller for rate limiting, "anon" when the
// request is unauthenticated.
func userKey(c echo.Context) string {
	if id, ok := c.Get(ctxUserID).(uint64); ok && id != 0 {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
