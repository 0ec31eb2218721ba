package handler

import (
	"context"  // request contexts passed to the service
	"net/http" // HTTP status codes
	"strings"  // whitespace trimming of inputs

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/listing-market/internal/apperr"     // classified errors rendered by ErrorHandler
	"github.com/iliyamo/listing-market/internal/cookie"     // auth cookie set/clear
	"github.com/iliyamo/listing-market/internal/middleware" // authenticated user lookup
	"github.com/iliyamo/listing-market/internal/model"      // public user shapes
	"github.com/iliyamo/listing-market/internal/service"    // credential flows
	"github.com/iliyamo/listing-market/internal/utils"      // token pair type
)

// Credentials is the part of service.CredentialService the auth endpoints
// drive.
type Credentials interface {
	Register(ctx context.Context, email, password string) (service.Registration, error)
	Login(ctx context.Context, email, password string) (service.AuthResult, error)
	LoginWithExternalToken(ctx context.Context, token string) (service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (utils.TokenPair, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	RequestActivationCode(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string) error
	VerifyAccount(ctx context.Context, email, code string) (service.AuthResult, error)
	VerifyChallenge(ctx context.Context, id, email string) (service.Challenge, error)
	ResetPassword(ctx context.Context, email, code, password string) error
}

var _ Credentials = (*service.CredentialService)(nil)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Auth Credentials
}

func NewAuthHandler(auth Credentials) *AuthHandler {
	return &AuthHandler{Auth: auth}
}

// ----- DTOs -----

type credentialsReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

func (r *credentialsReq) trim() { r.Email = strings.TrimSpace(r.Email) }

type externalTokenReq struct {
	Token string `json:"token" validate:"required"`
}

func (r *externalTokenReq) trim() { r.Token = strings.TrimSpace(r.Token) }

type emailReq struct {
	Email string `json:"email" validate:"required,email"`
}

func (r *emailReq) trim() { r.Email = strings.TrimSpace(r.Email) }

type verifyReq struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

func (r *verifyReq) trim() {
	r.Email = strings.TrimSpace(r.Email)
	r.Code = strings.TrimSpace(r.Code)
}

type resetReq struct {
	Email    string `json:"email" validate:"required,email"`
	Code     string `json:"code" validate:"required,len=6,numeric"`
	Password string `json:"password" validate:"required,min=6"`
}

func (r *resetReq) trim() {
	r.Email = strings.TrimSpace(r.Email)
	r.Code = strings.TrimSpace(r.Code)
}

type challengeReq struct {
	ID    string `param:"auth_challenge_id" validate:"required,uuid4"`
	Email string `query:"email" validate:"required,email"`
}

func (r *challengeReq) trim() { r.Email = strings.TrimSpace(r.Email) }

type challengeMeta struct {
	ChallengeID string `json:"auth_challenge_id"`
}

type envelope struct {
	Data any            `json:"data"`
	Meta *challengeMeta `json:"meta,omitempty"`
}

// profile is the caller's own view of their account.
type profile struct {
	model.PublicUser
	Email string `json:"email"`
}

type messageResp struct {
	Message string `json:"message"`
}

// Register creates an inactive account: 201 with the user and the auth
// challenge id. No cookies are set.
func (h *AuthHandler) Register(c echo.Context) error {
	var req credentialsReq
	if err := bind(c, &req); err != nil {
		return err
	}
	// creates the inactive account (or resends the code) and queues the activation mail
	res, err := h.Auth.Register(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	// no cookies: the client continues with the challenge id until the code is verified
	return c.JSON(http.StatusCreated, envelope{
		Data: echo.Map{"user": res.User.Public()},
		Meta: &challengeMeta{ChallengeID: res.ChallengeID},
	})
}

// Login signs in with email and password.
func (h *AuthHandler) Login(c echo.Context) error {
	var req credentialsReq
	if err := bind(c, &req); err != nil {
		return err
	}
	// unknown email and wrong password come back as the same Unauthorized
	res, err := h.Auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return h.respond(c, res)
}

// LoginWithToken signs in with a third-party ID token.
func (h *AuthHandler) LoginWithToken(c echo.Context) error {
	var req externalTokenReq
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.Auth.LoginWithExternalToken(c.Request().Context(), req.Token)
	if err != nil {
		return err
	}
	return h.respond(c, res)
}

// respond delivers a login result: active accounts get auth cookies,
// inactive ones only the challenge id in the body.
func (h *AuthHandler) respond(c echo.Context, res service.AuthResult) error {
	if res.Pending() {
		return c.JSON(http.StatusOK, envelope{
			Data: res.User.Public(),
			Meta: &challengeMeta{ChallengeID: res.ChallengeID},
		})
	}
	cookie.SetAuth(c.Response(), c.Request(), res.Tokens.Access, res.Tokens.Refresh)
	return c.JSON(http.StatusOK, envelope{Data: res.User.Public()})
}

// Logout revokes the access token and the session behind the cookies.
func (h *AuthHandler) Logout(c echo.Context) error {
	// both tokens come from cookies; a missing access token makes logout a no-op
	access, refresh := cookieValue(c, cookie.AccessToken), cookieValue(c, cookie.RefreshToken)
	if err := h.Auth.Logout(c.Request().Context(), access, refresh); err != nil {
		return err
	}
	cookie.ClearAuth(c.Response(), c.Request())
	return c.NoContent(http.StatusNoContent)
}

// Refresh rotates the refresh_token cookie. An Unauthorized outcome clears
// both auth cookies.
func (h *AuthHandler) Refresh(c echo.Context) error {
	refresh := cookieValue(c, cookie.RefreshToken)
	if refresh == "" {
		cookie.ClearAuth(c.Response(), c.Request())
		return apperr.Unauthorized("missing refresh token")
	}
	pair, err := h.Auth.Refresh(c.Request().Context(), refresh)
	if err != nil {
		// expired, rotated or revoked: drop the dead cookies before reporting
		if apperr.Is(err, apperr.KindUnauthorized) {
			cookie.ClearAuth(c.Response(), c.Request())
		}
		return err
	}
	cookie.SetAuth(c.Response(), c.Request(), pair.Access, pair.Refresh) // rotated pair replaces both cookies
	return c.NoContent(http.StatusNoContent)
}

// SendVerifyCode resends the activation code.
func (h *AuthHandler) SendVerifyCode(c echo.Context) error {
	var req emailReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.Auth.RequestActivationCode(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ForgotPassword sends a password reset code.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req emailReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.Auth.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// VerifyAccount activates the account and signs it in with cookies.
func (h *AuthHandler) VerifyAccount(c echo.Context) error {
	var req verifyReq
	if err := bind(c, &req); err != nil {
		return err
	}
	// activates the account, clears its code and challenge, and persists a session
	res, err := h.Auth.VerifyAccount(c.Request().Context(), req.Email, req.Code)
	if err != nil {
		return err
	}
	cookie.SetAuth(c.Response(), c.Request(), res.Tokens.Access, res.Tokens.Refresh)
	return c.JSON(http.StatusOK, messageResp{Message: "Account verified successfully"})
}

// VerifyChallenge returns the stored payload of a live auth challenge.
func (h *AuthHandler) VerifyChallenge(c echo.Context) error {
	var req challengeReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ch, err := h.Auth.VerifyChallenge(c.Request().Context(), req.ID, req.Email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope{Data: ch})
}

// ResetPassword sets a new password with a reset code.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.Auth.ResetPassword(c.Request().Context(), req.Email, req.Code, req.Password); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResp{Message: "Password reset successfully"})
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return apperr.Unauthorized("")
	}
	return c.JSON(http.StatusOK, envelope{Data: profile{PublicUser: u.Public(), Email: u.Email}})
}

func cookieValue(c echo.Context, name string) string {
	ck, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}
