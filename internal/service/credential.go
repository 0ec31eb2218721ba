package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/listing-market/internal/apperr"
	"github.com/iliyamo/listing-market/internal/ephemeral"
	"github.com/iliyamo/listing-market/internal/model"
	"github.com/iliyamo/listing-market/internal/repository"
	"github.com/iliyamo/listing-market/internal/utils"
)

const (
	msgBadCredentials   = "invalid email or password"
	msgBadCode          = "verification code is invalid or expired"
	msgBadRefresh       = "refresh token is invalid or expired"
	msgAlreadyActive    = "account is already activated"
	msgBadExternalToken = "external token is invalid"

	nicknameAttempts = 3
)

// Registration is the outcome of Register.
type Registration struct {
	User        model.User
	ChallengeID string
}

// AuthResult is the outcome of a password or external-token login. For an
// inactive account ChallengeID is set and the pair was not persisted as a
// session; callers must not deliver it as cookies.
type AuthResult struct {
	User        model.User
	Tokens      utils.TokenPair
	ChallengeID string
}

// Pending reports whether the account still has to be activated.
func (r AuthResult) Pending() bool { return r.ChallengeID != "" }

// CredentialConfig tunes the credential flows.
type CredentialConfig struct {
	CodeTTL    time.Duration
	BcryptCost int
}

// CredentialService orchestrates the token, session and ephemeral stores.
type CredentialService struct {
	Users      UserStore
	Sessions   SessionStore
	Ephemeral  ephemeral.Store
	Codec      *utils.TokenCodec
	Challenges *ChallengeFlow
	Jobs       JobPublisher
	Identity   IdentityVerifier
	Cfg        CredentialConfig
	Log        *slog.Logger
	Now        func() time.Time
}

func NewCredentialService(
	users UserStore,
	sessions SessionStore,
	store ephemeral.Store,
	codec *utils.TokenCodec,
	challenges *ChallengeFlow,
	jobs JobPublisher,
	identity IdentityVerifier,
	cfg CredentialConfig,
	log *slog.Logger,
) *CredentialService {
	return &CredentialService{
		Users:      users,
		Sessions:   sessions,
		Ephemeral:  store,
		Codec:      codec,
		Challenges: challenges,
		Jobs:       jobs,
		Identity:   identity,
		Cfg:        cfg,
		Log:        log,
		Now:        time.Now,
	}
}

// Register creates an inactive account and starts activation. Registering
// again with the password of a still-inactive account resends the code.
func (s *CredentialService) Register(ctx context.Context, email, password string) (Registration, error) {
	email = normalizeEmail(email)

	u, err := s.Users.GetByEmail(ctx, email, repository.IncludeHidden)
	switch {
	case err == nil:
		if u.IsActive || !utils.VerifyPassword(u.PasswordHash, password) {
			return Registration{}, apperr.Conflict("account already exists")
		}
	case errors.Is(err, repository.ErrNotFound):
		hash, err := utils.HashPassword(password, s.Cfg.BcryptCost)
		if err != nil {
			return Registration{}, apperr.Internal(err)
		}
		u, err = s.createUser(ctx, model.User{
			Email:        email,
			PasswordHash: hash,
			LastName:     utils.NicknameBase(email),
		})
		if errors.Is(err, repository.ErrEmailExists) {
			return Registration{}, apperr.Conflict("account already exists")
		}
		if err != nil {
			return Registration{}, apperr.Internal(err)
		}
	default:
		return Registration{}, apperr.Internal(err)
	}

	if err := s.SendVerifyCode(ctx, email, PurposeActivateAccount); err != nil {
		return Registration{}, err
	}
	id, err := s.Challenges.Create(ctx, email)
	if err != nil {
		return Registration{}, err
	}
	return Registration{User: u, ChallengeID: id}, nil
}

// createUser inserts u under the next free nickname for its email, deriving
// again when a concurrent insert claimed the same nickname.
func (s *CredentialService) createUser(ctx context.Context, u model.User) (model.User, error) {
	base := utils.NicknameBase(u.Email)
	u.UUID = uuid.NewString()
	if u.Role == "" {
		u.Role = model.RoleCustomer
	}
	for attempt := 0; ; attempt++ {
		top, found, err := s.Users.MaxNicknameSuffix(ctx, base)
		if err != nil {
			return model.User{}, err
		}
		u.Nickname = utils.NextNickname(base, top, found)
		id, err := s.Users.Create(ctx, u)
		if errors.Is(err, repository.ErrNicknameTaken) && attempt+1 < nicknameAttempts {
			continue
		}
		if err != nil {
			return model.User{}, err
		}
		return s.Users.GetByID(ctx, id, repository.IncludeHidden)
	}
}

// Login checks the password and issues a token pair. A missing account and
// a wrong password fail with the same message.
func (s *CredentialService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	u, err := s.Users.GetByEmail(ctx, normalizeEmail(email), repository.IncludeHidden)
	if errors.Is(err, repository.ErrNotFound) {
		return AuthResult{}, apperr.Unauthorized(msgBadCredentials)
	}
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return AuthResult{}, apperr.Unauthorized(msgBadCredentials)
	}
	return s.signIn(ctx, u)
}

// LoginWithExternalToken signs in with a third-party ID token, creating an
// active account on first use.
func (s *CredentialService) LoginWithExternalToken(ctx context.Context, token string) (AuthResult, error) {
	if s.Identity == nil {
		return AuthResult{}, apperr.Unauthorized("external login is not configured")
	}
	id, err := s.Identity.VerifyIDToken(ctx, token)
	if err != nil {
		s.Log.DebugContext(ctx, "auth.external.rejected", "err", err)
		return AuthResult{}, apperr.Unauthorized(msgBadExternalToken)
	}
	if id.Email == "" || strings.TrimSpace(id.Name) == "" || id.Picture == "" {
		return AuthResult{}, apperr.Unauthorized(msgBadExternalToken)
	}
	email := normalizeEmail(id.Email)

	u, err := s.Users.GetByEmail(ctx, email, repository.IncludeHidden)
	if errors.Is(err, repository.ErrNotFound) {
		first, last := splitName(id.Name)
		u, err = s.createUser(ctx, model.User{
			Email:     email,
			FirstName: first,
			LastName:  last,
			Avatar:    id.Picture,
			IsActive:  true,
		})
		if errors.Is(err, repository.ErrEmailExists) {
			u, err = s.Users.GetByEmail(ctx, email, repository.IncludeHidden)
		}
	}
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	return s.signIn(ctx, u)
}

// splitName treats the last word as the last name.
func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}

// signIn issues a pair for u. Active accounts get a persisted session;
// inactive ones get a fresh challenge and a new activation code instead.
func (s *CredentialService) signIn(ctx context.Context, u model.User) (AuthResult, error) {
	pair, err := s.Codec.Issue(u.ID)
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	res := AuthResult{User: u, Tokens: pair}
	if !u.IsActive {
		if res.ChallengeID, err = s.Challenges.Create(ctx, u.Email); err != nil {
			return AuthResult{}, err
		}
		if err := s.SendVerifyCode(ctx, u.Email, PurposeActivateAccount); err != nil {
			return AuthResult{}, err
		}
		return res, nil
	}
	if err := s.Sessions.Create(ctx, u.ID, pair.Refresh); err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	return res, nil
}

// Refresh rotates refreshToken. The new refresh token keeps the absolute
// expiry of the old one and the session row is swapped in one statement,
// so a token can be rotated at most once.
func (s *CredentialService) Refresh(ctx context.Context, refreshToken string) (utils.TokenPair, error) {
	claims, err := s.Codec.Verify(refreshToken, utils.RefreshToken)
	if errors.Is(err, utils.ErrTokenExpired) {
		if err := s.Sessions.DeleteByToken(ctx, refreshToken); err != nil {
			s.Log.WarnContext(ctx, "auth.refresh.cleanup_failed", "err", err)
		}
		return utils.TokenPair{}, apperr.Unauthorized("refresh token expired")
	}
	if err != nil {
		return utils.TokenPair{}, apperr.Unprocessable("malformed refresh token")
	}

	if _, err := s.Sessions.FindByToken(ctx, refreshToken); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return utils.TokenPair{}, apperr.Unauthorized(msgBadRefresh)
		}
		return utils.TokenPair{}, apperr.Internal(err)
	}

	pair, err := s.Codec.Rotate(claims.Subject, claims.Expiry())
	if errors.Is(err, utils.ErrTokenExpired) {
		return utils.TokenPair{}, apperr.Unauthorized("refresh token expired")
	}
	if err != nil {
		return utils.TokenPair{}, apperr.Internal(err)
	}
	if err := s.Sessions.Replace(ctx, refreshToken, pair.Refresh); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return utils.TokenPair{}, apperr.Unauthorized(msgBadRefresh)
		}
		return utils.TokenPair{}, apperr.Internal(err)
	}
	return pair, nil
}

// Logout blacklists accessToken for its remaining lifetime and drops the
// session for refreshToken. Without an access token it does nothing.
func (s *CredentialService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken == "" {
		return nil
	}
	ttl := s.blacklistTTL(accessToken)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Ephemeral.Set(gctx, BlacklistKey(accessToken), "true", ttl)
	})
	if refreshToken != "" {
		g.Go(func() error {
			return s.Sessions.DeleteByToken(gctx, refreshToken)
		})
	}
	return apperr.Internal(g.Wait())
}

// blacklistTTL is the remaining lifetime of accessToken, falling back to
// the full access TTL when the token cannot be read. An already expired
// token still gets a one second entry.
func (s *CredentialService) blacklistTTL(accessToken string) time.Duration {
	claims, err := s.Codec.Inspect(accessToken, utils.AccessToken)
	if err != nil || claims.ExpiresAt == nil {
		return s.Codec.AccessTTL()
	}
	if ttl := claims.Expiry().Sub(s.Now()); ttl > time.Second {
		return ttl
	}
	return time.Second
}

// IsBlacklisted reports whether accessToken was revoked by Logout.
func (s *CredentialService) IsBlacklisted(ctx context.Context, accessToken string) (bool, error) {
	return ephemeral.Exists(ctx, s.Ephemeral, BlacklistKey(accessToken))
}

// SendVerifyCode replaces the live code for (purpose, email) and enqueues
// its delivery. The store write and the enqueue run concurrently. Two
// concurrent calls resolve last-write-wins.
func (s *CredentialService) SendVerifyCode(ctx context.Context, email string, purpose Purpose) error {
	email = normalizeEmail(email)
	code, err := utils.NewVerificationCode()
	if err != nil {
		return apperr.Internal(err)
	}
	job, err := purpose.job(email, code)
	if err != nil {
		return apperr.Internal(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ephemeral.Replace(gctx, s.Ephemeral, purpose.codeKey(email), code, s.Cfg.CodeTTL)
	})
	g.Go(func() error {
		return s.Jobs.Publish(gctx, job)
	})
	if err := g.Wait(); err != nil {
		s.Log.ErrorContext(ctx, "auth.code.send_failed", "purpose", string(purpose), "err", err)
		return apperr.Internal(err)
	}
	return nil
}

// RequestActivationCode resends the activation code for an inactive
// account. Unknown emails succeed silently.
func (s *CredentialService) RequestActivationCode(ctx context.Context, email string) error {
	u, err := s.Users.GetByEmail(ctx, normalizeEmail(email), repository.IncludeHidden)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperr.Internal(err)
	}
	if u.IsActive {
		return apperr.BadRequest(msgAlreadyActive)
	}
	return s.SendVerifyCode(ctx, u.Email, PurposeActivateAccount)
}

// RequestPasswordReset sends a reset code when the account exists. Unknown
// emails succeed silently.
func (s *CredentialService) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.Users.GetByEmail(ctx, normalizeEmail(email), repository.IncludeHidden)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperr.Internal(err)
	}
	return s.SendVerifyCode(ctx, u.Email, PurposeResetPassword)
}

// VerifyCode checks code against the live code for (purpose, email). It
// does not consume the code.
func (s *CredentialService) VerifyCode(ctx context.Context, email string, purpose Purpose, code string) error {
	stored, err := s.Ephemeral.Get(ctx, purpose.codeKey(normalizeEmail(email)))
	if errors.Is(err, ephemeral.ErrNotFound) {
		return apperr.Unauthorized(msgBadCode)
	}
	if err != nil {
		return apperr.Internal(err)
	}
	if code == "" || stored != code {
		return apperr.Unauthorized(msgBadCode)
	}
	return nil
}

// ResetPassword sets a new password once code checks out and clears the
// reset code.
func (s *CredentialService) ResetPassword(ctx context.Context, email, code, password string) error {
	email = normalizeEmail(email)
	if err := s.VerifyCode(ctx, email, PurposeResetPassword, code); err != nil {
		return err
	}
	hash, err := utils.HashPassword(password, s.Cfg.BcryptCost)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.Users.UpdatePassword(ctx, email, hash); err != nil {
		return apperr.Internal(err)
	}
	return apperr.Internal(s.Ephemeral.Delete(ctx, PurposeResetPassword.codeKey(email)))
}

// VerifyAccount activates the account behind email, clears its code and
// challenge, and signs it in with a persisted session. A second call fails
// because the account is already active.
func (s *CredentialService) VerifyAccount(ctx context.Context, email, code string) (AuthResult, error) {
	email = normalizeEmail(email)
	if err := s.VerifyCode(ctx, email, PurposeActivateAccount, code); err != nil {
		return AuthResult{}, err
	}
	u, err := s.Users.GetByEmail(ctx, email, repository.IncludeHidden)
	if errors.Is(err, repository.ErrNotFound) {
		return AuthResult{}, apperr.Unauthorized("email or verification code is invalid")
	}
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	if u.IsActive {
		return AuthResult{}, apperr.Unauthorized(msgAlreadyActive)
	}
	activated, err := s.Users.Activate(ctx, u.ID)
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	if !activated {
		return AuthResult{}, apperr.Unauthorized(msgAlreadyActive)
	}
	u.IsActive = true

	if err := s.Ephemeral.Delete(ctx, PurposeActivateAccount.codeKey(email)); err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	if err := s.Challenges.Clear(ctx, email); err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	return s.signIn(ctx, u)
}

// VerifyChallenge validates a challenge id for email.
func (s *CredentialService) VerifyChallenge(ctx context.Context, id, email string) (Challenge, error) {
	return s.Challenges.Verify(ctx, id, email)
}

// CurrentUser loads the visible account for an authenticated subject.
func (s *CredentialService) CurrentUser(ctx context.Context, id uint64) (model.User, error) {
	u, err := s.Users.GetByID(ctx, id, repository.VisibleOnly)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return model.User{}, apperr.Internal(err)
	}
	return u, nil
}
