package utils // package utils provides token signing, hashing and code helpers

import (
	"crypto/sha256" // digest of refresh tokens stored in the sessions table
	"encoding/hex"  // hex encoding of that digest
	"errors"        // sentinel verification errors
	"strconv"       // numeric subject rendered for jwt.Claims
	"time"          // issue and expiry instants

	"github.com/golang-jwt/jwt/v5" // HS256 signing and parsing
	"github.com/google/uuid"       // jti so tokens minted in the same second differ
)

// TokenKind selects the secret and lifetime used for a token.
type TokenKind uint8

const (
	AccessToken TokenKind = iota
	RefreshToken
)

var (
	// ErrTokenExpired is returned by Verify for a well-formed, correctly
	// signed token whose exp claim has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers every other verification failure.
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims is the payload of both token kinds. Subject carries the numeric
// user id; ID makes two tokens minted in the same second distinct.
type Claims struct {
	Subject   uint64           `json:"sub"`
	ExpiresAt *jwt.NumericDate `json:"exp"`
	IssuedAt  *jwt.NumericDate `json:"iat"`
	ID        string           `json:"jti,omitempty"`
}

func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c Claims) GetIssuedAt() (*jwt.NumericDate, error)       { return c.IssuedAt, nil }
func (c Claims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c Claims) GetIssuer() (string, error)                   { return "", nil }
func (c Claims) GetAudience() (jwt.ClaimStrings, error)       { return nil, nil }
func (c Claims) GetSubject() (string, error) {
	return strconv.FormatUint(c.Subject, 10), nil
}

// Expiry returns the exp claim as time, zero when absent.
func (c Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time.UTC()
}

// TokenPair is an issued access/refresh pair with their expirations.
type TokenPair struct {
	Access     string
	AccessExp  time.Time
	Refresh    string
	RefreshExp time.Time
}

// TokenCodec signs and verifies HS256 access and refresh tokens. It holds
// no state besides its secrets and is safe for concurrent use.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// CodecOption customizes a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock replaces the wall clock used for issuing and validating.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) { c.now = now }
}

// NewTokenCodec builds a codec. Access and refresh tokens use different
// secrets so one can never be replayed as the other.
func NewTokenCodec(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, opts ...CodecOption) *TokenCodec {
	c := &TokenCodec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// AccessTTL is the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// Issue mints a fresh pair with full lifetimes.
func (c *TokenCodec) Issue(userID uint64) (TokenPair, error) {
	now := c.now()
	return c.pair(userID, now, now.Add(c.refreshTTL))
}

// Rotate mints a new pair whose refresh token expires exactly when the one
// being replaced does. A session chain therefore never outlives the first
// refresh token of that chain.
func (c *TokenCodec) Rotate(userID uint64, refreshExp time.Time) (TokenPair, error) {
	now := c.now()
	if !refreshExp.After(now) {
		return TokenPair{}, ErrTokenExpired
	}
	return c.pair(userID, now, refreshExp)
}

func (c *TokenCodec) pair(userID uint64, now, refreshExp time.Time) (TokenPair, error) {
	accessExp := now.Add(c.accessTTL) // access tokens always get the full short lifetime
	access, err := c.sign(c.accessSecret, userID, now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := c.sign(c.refreshSecret, userID, now, refreshExp) // refresh expiry is chosen by the caller
	if err != nil {
		return TokenPair{}, err
	}
	// expirations are reported at the second precision the exp claim carries
	return TokenPair{
		Access:     access,
		AccessExp:  jwt.NewNumericDate(accessExp).Time.UTC(),
		Refresh:    refresh,
		RefreshExp: jwt.NewNumericDate(refreshExp).Time.UTC(),
	}, nil
}

func (c *TokenCodec) sign(secret []byte, userID uint64, now, exp time.Time) (string, error) {
	claims := Claims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(exp), // exp
		IssuedAt:  jwt.NewNumericDate(now), // iat
		ID:        uuid.NewString(),        // jti
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Verify checks signature, algorithm and expiry of a token of the given
// kind. It returns ErrTokenExpired or ErrTokenInvalid on failure.
func (c *TokenCodec) Verify(raw string, kind TokenKind) (*Claims, error) {
	return c.parse(raw, kind, jwt.WithExpirationRequired(), jwt.WithTimeFunc(c.now))
}

// Inspect checks the signature only and ignores expiry. Logout uses it to
// size blacklist entries for tokens that might already be expired.
func (c *TokenCodec) Inspect(raw string, kind TokenKind) (*Claims, error) {
	return c.parse(raw, kind, jwt.WithoutClaimsValidation())
}

func (c *TokenCodec) parse(raw string, kind TokenKind, opts ...jwt.ParserOption) (*Claims, error) {
	// pick the secret for the expected kind; a token of the other kind fails the signature check
	secret := c.accessSecret
	if kind == RefreshToken {
		secret = c.refreshSecret
	}
	// reject alg=none and any algorithm other than HS256
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return &claims, ErrTokenExpired // signature was valid, claims are usable
		}
		return nil, ErrTokenInvalid
	}
	if !tok.Valid || claims.Subject == 0 { // a token without a subject identifies nobody
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

// HashToken returns the SHA-256 hex digest of a raw token. Sessions are
// stored by digest so a leaked table cannot be replayed.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
