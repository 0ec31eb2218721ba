package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/listing-market/internal/apperr"
	"github.com/iliyamo/listing-market/internal/ephemeral"
	"github.com/iliyamo/listing-market/internal/model"
	"github.com/iliyamo/listing-market/internal/queue"
	"github.com/iliyamo/listing-market/internal/utils"
)

type harness struct {
	svc      *CredentialService
	users    *fakeUsers
	sessions *fakeSessions
	store    *ephemeral.MemoryStore
	jobs     *recordingJobs
	clock    *clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	h := &harness{
		users:    newFakeUsers(),
		sessions: newFakeSessions(),
		store:    ephemeral.NewMemoryStore(c.Now),
		jobs:     &recordingJobs{},
		clock:    c,
	}
	challenges := NewChallengeFlow(h.store, 10*time.Minute)
	challenges.Now = c.Now
	h.svc = NewCredentialService(h.users, h.sessions, h.store, newTestCodec(c), challenges, h.jobs, nil,
		CredentialConfig{CodeTTL: testCodeTTL, BcryptCost: 4}, discardLogger())
	h.svc.Now = c.Now
	return h
}

func (h *harness) activeUser(t *testing.T, email, password string) model.User {
	t.Helper()
	hash, err := utils.HashPassword(password, 4)
	require.NoError(t, err)
	id, err := h.users.Create(context.Background(), model.User{
		Email: email, PasswordHash: hash, Nickname: utils.NicknameBase(email), IsActive: true, Role: model.RoleCustomer,
	})
	require.NoError(t, err)
	return h.users.byID[id]
}

func TestRegisterCreatesInactiveUserAndSendsCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	reg, err := h.svc.Register(ctx, " A@x.com ", "secret1")
	require.NoError(t, err)

	assert.Equal(t, "a@x.com", reg.User.Email)
	assert.Equal(t, "a", reg.User.Nickname)
	assert.False(t, reg.User.IsActive)
	assert.NotEmpty(t, reg.User.UUID)
	assert.NotEmpty(t, reg.ChallengeID)

	job, ok := h.jobs.last().(queue.SendVerificationCode)
	require.True(t, ok)
	assert.Equal(t, "a@x.com", job.Email)

	stored, err := h.store.Get(ctx, "activate_account_a@x.com")
	require.NoError(t, err)
	assert.Equal(t, job.Code, stored)
	assert.Equal(t, testCodeTTL, h.store.TTL("activate_account_a@x.com"))

	_, err = h.svc.VerifyChallenge(ctx, reg.ChallengeID, "a@x.com")
	assert.NoError(t, err)
}

func TestRegisterDerivesSequentialNicknames(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.svc.Register(ctx, "ann@x.com", "secret1")
	require.NoError(t, err)
	second, err := h.svc.Register(ctx, "ann@y.com", "secret1")
	require.NoError(t, err)
	third, err := h.svc.Register(ctx, "ann@z.com", "secret1")
	require.NoError(t, err)

	assert.Equal(t, "ann", first.User.Nickname)
	assert.Equal(t, "ann1", second.User.Nickname)
	assert.Equal(t, "ann2", third.User.Nickname)
}

func TestRegisterExistingAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Register(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	again, err := h.svc.Register(ctx, "a@x.com", "secret1")
	require.NoError(t, err, "inactive account with matching password resends the code")
	assert.Len(t, h.jobs.jobs, 2)
	assert.NotEmpty(t, again.ChallengeID)

	_, err = h.svc.Register(ctx, "a@x.com", "other-password")
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	h.activeUser(t, "b@x.com", "secret1")
	_, err = h.svc.Register(ctx, "b@x.com", "secret1")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestLoginFailuresShareOneMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.activeUser(t, "a@x.com", "secret1")

	_, errUnknown := h.svc.Login(ctx, "nobody@x.com", "secret1")
	_, errWrong := h.svc.Login(ctx, "a@x.com", "wrong")

	require.True(t, apperr.Is(errUnknown, apperr.KindUnauthorized))
	require.True(t, apperr.Is(errWrong, apperr.KindUnauthorized))
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
}

func TestLoginActivePersistsSession(t *testing.T) {
	h := newHarness(t)
	u := h.activeUser(t, "a@x.com", "secret1")

	res, err := h.svc.Login(context.Background(), "a@x.com", "secret1")
	require.NoError(t, err)

	assert.False(t, res.Pending())
	assert.Equal(t, u.ID, res.User.ID)
	assert.True(t, h.sessions.has(res.Tokens.Refresh))
}

func TestLoginInactiveIssuesChallengeWithoutSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.Register(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	res, err := h.svc.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	assert.True(t, res.Pending())
	assert.NotEmpty(t, res.Tokens.Access)
	assert.NotEmpty(t, res.Tokens.Refresh)
	assert.Zero(t, h.sessions.count())
	assert.Len(t, h.jobs.jobs, 2)

	_, err = h.svc.VerifyChallenge(ctx, res.ChallengeID, "a@x.com")
	assert.NoError(t, err)
}

func TestRefreshIsOneShotAndKeepsExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.activeUser(t, "a@x.com", "secret1")

	login, err := h.svc.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	pair, err := h.svc.Refresh(ctx, login.Tokens.Refresh)
	require.NoError(t, err)

	assert.Equal(t, login.Tokens.RefreshExp, pair.RefreshExp)
	assert.NotEqual(t, login.Tokens.Refresh, pair.Refresh)
	assert.True(t, h.sessions.has(pair.Refresh))
	assert.False(t, h.sessions.has(login.Tokens.Refresh))

	_, err = h.svc.Refresh(ctx, login.Tokens.Refresh)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	h.clock.Advance(time.Hour)
	again, err := h.svc.Refresh(ctx, pair.Refresh)
	require.NoError(t, err)
	assert.Equal(t, login.Tokens.RefreshExp, again.RefreshExp)
}

func TestRefreshExpiredDropsSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.activeUser(t, "a@x.com", "secret1")

	login, err := h.svc.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	h.clock.Advance(testRefreshTTL + time.Second)
	_, err = h.svc.Refresh(ctx, login.Tokens.Refresh)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	assert.False(t, h.sessions.has(login.Tokens.Refresh))
}

func TestRefreshRejects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Refresh(ctx, "not-a-token")
	assert.True(t, apperr.Is(err, apperr.KindUnprocessable))

	pair, err := h.svc.Codec.Issue(7)
	require.NoError(t, err)
	_, err = h.svc.Refresh(ctx, pair.Refresh)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized), "no session row")

	_, err = h.svc.Refresh(ctx, pair.Access)
	assert.True(t, apperr.Is(err, apperr.KindUnprocessable), "access token is not a refresh token")
}

func TestLogoutBlacklistsForRemainingLifetime(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.activeUser(t, "a@x.com", "secret1")

	login, err := h.svc.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	h.clock.Advance(5 * time.Minute)
	require.NoError(t, h.svc.Logout(ctx, login.Tokens.Access, login.Tokens.Refresh))

	listed, err := h.svc.IsBlacklisted(ctx, login.Tokens.Access)
	require.NoError(t, err)
	assert.True(t, listed)
	assert.Equal(t, login.Tokens.AccessExp.Sub(h.clock.Now()), h.store.TTL(BlacklistKey(login.Tokens.Access)))
	assert.False(t, h.sessions.has(login.Tokens.Refresh))

	h.clock.Advance(testAccessTTL)
	listed, err = h.svc.IsBlacklisted(ctx, login.Tokens.Access)
	require.NoError(t, err)
	assert.False(t, listed, "entry expires with the token")
	_, err = h.svc.Codec.Verify(login.Tokens.Access, utils.AccessToken)
	assert.ErrorIs(t, err, utils.ErrTokenExpired)
}

func TestLogoutEdgeCases(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.svc.Logout(ctx, "", "whatever"))

	require.NoError(t, h.svc.Logout(ctx, "garbage", ""))
	assert.Equal(t, testAccessTTL, h.store.TTL(BlacklistKey("garbage")))

	pair, err := h.svc.Codec.Issue(1)
	require.NoError(t, err)
	h.clock.Advance(testAccessTTL + time.Minute)
	require.NoError(t, h.svc.Logout(ctx, pair.Access, ""))
	assert.Equal(t, time.Second, h.store.TTL(BlacklistKey(pair.Access)))
}

func TestSecondCodeInvalidatesFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.svc.SendVerifyCode(ctx, "a@x.com", PurposeResetPassword))
	first := h.jobs.lastCode()
	second := first
	for i := 0; i < 5 && second == first; i++ {
		require.NoError(t, h.svc.SendVerifyCode(ctx, "a@x.com", PurposeResetPassword))
		second = h.jobs.lastCode()
	}
	require.NotEqual(t, first, second)

	err := h.svc.VerifyCode(ctx, "a@x.com", PurposeResetPassword, first)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	assert.NoError(t, h.svc.VerifyCode(ctx, "a@x.com", PurposeResetPassword, second))
	assert.NoError(t, h.svc.VerifyCode(ctx, "a@x.com", PurposeResetPassword, second), "verifying does not consume")

	err = h.svc.VerifyCode(ctx, "a@x.com", PurposeActivateAccount, second)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized), "codes are scoped by purpose")
}

func TestCodeExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.svc.SendVerifyCode(ctx, "a@x.com", PurposeActivateAccount))
	code := h.jobs.lastCode()
	h.clock.Advance(testCodeTTL)

	err := h.svc.VerifyCode(ctx, "a@x.com", PurposeActivateAccount, code)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestSendVerifyCodePublishFailureIsInternal(t *testing.T) {
	h := newHarness(t)
	h.jobs.err = errBroker

	err := h.svc.SendVerifyCode(context.Background(), "a@x.com", PurposeActivateAccount)
	assert.True(t, apperr.Is(err, apperr.KindInternal))
	assert.ErrorIs(t, err, errBroker)
}

func TestVerifyAccountScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	reg, err := h.svc.Register(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	require.False(t, reg.User.IsActive)

	login, err := h.svc.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	require.True(t, login.Pending())
	require.Zero(t, h.sessions.count())

	code := h.jobs.lastCode()
	res, err := h.svc.VerifyAccount(ctx, "a@x.com", code)
	require.NoError(t, err)
	assert.True(t, res.User.IsActive)
	assert.False(t, res.Pending())
	assert.True(t, h.sessions.has(res.Tokens.Refresh))

	_, err = h.store.Get(ctx, "activate_account_a@x.com")
	assert.ErrorIs(t, err, ephemeral.ErrNotFound)
	_, err = h.store.Get(ctx, "auth_challenge_id_a@x.com")
	assert.ErrorIs(t, err, ephemeral.ErrNotFound)

	_, err = h.svc.VerifyAccount(ctx, "a@x.com", code)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestVerifyAccountRejectsActiveAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.activeUser(t, "a@x.com", "secret1")
	require.NoError(t, h.store.Set(ctx, "activate_account_a@x.com", "123456", time.Minute))

	_, err := h.svc.VerifyAccount(ctx, "a@x.com", "123456")
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindUnauthorized, ae.Kind)
	assert.Equal(t, msgAlreadyActive, ae.Message)
}

func TestRequestActivationCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.activeUser(t, "a@x.com", "secret1")

	err := h.svc.RequestActivationCode(ctx, "a@x.com")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	require.NoError(t, h.svc.RequestActivationCode(ctx, "ghost@x.com"))
	assert.Empty(t, h.jobs.jobs)
}

func TestResetPassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.activeUser(t, "a@x.com", "secret1")

	require.NoError(t, h.svc.RequestPasswordReset(ctx, "a@x.com"))
	job, ok := h.jobs.last().(queue.SendResetPasswordCode)
	require.True(t, ok)

	err := h.svc.ResetPassword(ctx, "a@x.com", "000000", "new-secret")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	require.NoError(t, h.svc.ResetPassword(ctx, "a@x.com", job.Code, "new-secret"))

	_, err = h.svc.Login(ctx, "a@x.com", "secret1")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	_, err = h.svc.Login(ctx, "a@x.com", "new-secret")
	assert.NoError(t, err)

	err = h.svc.ResetPassword(ctx, "a@x.com", job.Code, "third")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized), "code is cleared after use")
}

func TestLoginWithExternalToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.svc.Identity = stubIdentity{id: ExternalIdentity{Email: "a@x.com", Name: "Ann"}}
	_, err := h.svc.LoginWithExternalToken(ctx, "tok")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized), "picture is required")

	h.svc.Identity = stubIdentity{err: assert.AnError}
	_, err = h.svc.LoginWithExternalToken(ctx, "tok")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	h.svc.Identity = stubIdentity{id: ExternalIdentity{Email: "Ann.Lee@x.com", Name: "Ann Marie Lee", Picture: "https://img/a.png"}}
	res, err := h.svc.LoginWithExternalToken(ctx, "tok")
	require.NoError(t, err)

	assert.False(t, res.Pending())
	assert.True(t, res.User.IsActive)
	assert.Equal(t, "ann.lee@x.com", res.User.Email)
	assert.Equal(t, "ann.lee", res.User.Nickname)
	assert.Equal(t, "Ann Marie", res.User.FirstName)
	assert.Equal(t, "Lee", res.User.LastName)
	assert.Equal(t, "https://img/a.png", res.User.Avatar)
	assert.True(t, h.sessions.has(res.Tokens.Refresh))

	again, err := h.svc.LoginWithExternalToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, again.User.ID)
}

func TestCurrentUserHidesBlocked(t *testing.T) {
	h := newHarness(t)
	u := h.activeUser(t, "a@x.com", "secret1")
	u.IsBlocked = true
	h.users.byID[u.ID] = u

	_, err := h.svc.CurrentUser(context.Background(), u.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
