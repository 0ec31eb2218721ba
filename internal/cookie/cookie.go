// Package cookie writes the auth cookies, scoped to the registrable domain
// of the site that made the request.
package cookie

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

const (
	AccessToken  = "access_token"
	RefreshToken = "refresh_token"
)

// Domain returns ".<registrable domain>" of the request's Origin, falling
// back to Referer. It is empty when neither header names a host, or when
// the host is an IP or a single-label name such as localhost; the cookie
// is then host-only.
func Domain(r *http.Request) string {
	src := r.Header.Get("Origin")
	if src == "" {
		src = r.Header.Get("Referer")
	}
	if src == "" {
		return ""
	}
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return ""
	}
	apex, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		apex = host
	}
	return "." + apex
}

func build(r *http.Request, name, value string) *http.Cookie {
	return &http.Cookie{
		Name:        name,
		Value:       value,
		Path:        "/",
		Domain:      Domain(r),
		HttpOnly:    true,
		Secure:      true,
		SameSite:    http.SameSiteLaxMode,
		Partitioned: true,
	}
}

// SetAuth writes both auth cookies.
func SetAuth(w http.ResponseWriter, r *http.Request, access, refresh string) {
	http.SetCookie(w, build(r, AccessToken, access))
	http.SetCookie(w, build(r, RefreshToken, refresh))
}

// ClearAuth expires both auth cookies using the attributes they were set
// with.
func ClearAuth(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{AccessToken, RefreshToken} {
		c := build(r, name, "")
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}
