package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/listing-market/internal/model"
	"github.com/iliyamo/listing-market/internal/queue"
	"github.com/iliyamo/listing-market/internal/repository"
	"github.com/iliyamo/listing-market/internal/utils"
)

type fakeUsers struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]model.User
}

func newFakeUsers() *fakeUsers { return &fakeUsers{byID: map[uint64]model.User{}} }

func (f *fakeUsers) Create(_ context.Context, u model.User) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.byID {
		if x.Email == u.Email {
			return 0, repository.ErrEmailExists
		}
		if x.Nickname == u.Nickname {
			return 0, repository.ErrNicknameTaken
		}
	}
	f.nextID++
	u.ID = f.nextID
	f.byID[u.ID] = u
	return u.ID, nil
}

func visible(u model.User, vis repository.Visibility) bool {
	return vis == repository.IncludeHidden || !u.IsBlocked
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string, vis repository.Visibility) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email && visible(u, vis) {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64, vis repository.Visibility) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok || !visible(u, vis) {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) Activate(_ context.Context, id uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok || u.IsActive {
		return false, nil
	}
	u.IsActive = true
	f.byID[id] = u
	return true, nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, email, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.byID {
		if u.Email == email {
			u.PasswordHash = hash
			f.byID[id] = u
		}
	}
	return nil
}

func (f *fakeUsers) MaxNicknameSuffix(_ context.Context, base string) (uint64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var (
		top   uint64
		found bool
	)
	for _, u := range f.byID {
		rest, ok := strings.CutPrefix(u.Nickname, base)
		if !ok {
			continue
		}
		if rest == "" {
			found = true
			continue
		}
		var n uint64
		valid := true
		for _, r := range rest {
			if r < '0' || r > '9' {
				valid = false
				break
			}
			n = n*10 + uint64(r-'0')
		}
		if valid {
			found = true
			top = max(top, n)
		}
	}
	return top, found, nil
}

type fakeSessions struct {
	mu   sync.Mutex
	rows map[string]uint64
}

func newFakeSessions() *fakeSessions { return &fakeSessions{rows: map[string]uint64{}} }

func (f *fakeSessions) Create(_ context.Context, userID uint64, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[token] = userID
	return nil
}

func (f *fakeSessions) FindByToken(_ context.Context, token string) (model.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uid, ok := f.rows[token]
	if !ok {
		return model.RefreshToken{}, repository.ErrNotFound
	}
	return model.RefreshToken{UserID: uid, Token: token}, nil
}

func (f *fakeSessions) Replace(_ context.Context, oldToken, newToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	uid, ok := f.rows[oldToken]
	if !ok {
		return repository.ErrNotFound
	}
	delete(f.rows, oldToken)
	f.rows[newToken] = uid
	return nil
}

func (f *fakeSessions) DeleteByToken(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, token)
	return nil
}

func (f *fakeSessions) has(token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[token]
	return ok
}

func (f *fakeSessions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type recordingJobs struct {
	mu   sync.Mutex
	jobs []queue.Job
	err  error
}

func (r *recordingJobs) Publish(_ context.Context, j queue.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, j)
	return nil
}

func (r *recordingJobs) last() queue.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.jobs) == 0 {
		return nil
	}
	return r.jobs[len(r.jobs)-1]
}

func (r *recordingJobs) lastCode() string {
	switch j := r.last().(type) {
	case queue.SendVerificationCode:
		return j.Code
	case queue.SendResetPasswordCode:
		return j.Code
	}
	return ""
}

type stubIdentity struct {
	id  ExternalIdentity
	err error
}

func (s stubIdentity) VerifyIDToken(context.Context, string) (ExternalIdentity, error) {
	return s.id, s.err
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var errBroker = errors.New("broker unavailable")

const (
	testAccessTTL  = 15 * time.Minute
	testRefreshTTL = 7 * 24 * time.Hour
	testCodeTTL    = 5 * time.Minute
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestCodec(c *clock) *utils.TokenCodec {
	return utils.NewTokenCodec("access-secret", "refresh-secret", testAccessTTL, testRefreshTTL, utils.WithClock(c.Now))
}
