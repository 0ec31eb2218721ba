// Package service holds the credential lifecycle: registration, login,
// token rotation, logout, verification codes and auth challenges.
package service

import (
	"context"
	"strings"

	"github.com/iliyamo/listing-market/internal/model"
	"github.com/iliyamo/listing-market/internal/queue"
	"github.com/iliyamo/listing-market/internal/repository"
)

// UserStore is the user persistence the service needs.
type UserStore interface {
	Create(ctx context.Context, u model.User) (uint64, error)
	GetByEmail(ctx context.Context, email string, vis repository.Visibility) (model.User, error)
	GetByID(ctx context.Context, id uint64, vis repository.Visibility) (model.User, error)
	Activate(ctx context.Context, id uint64) (bool, error)
	UpdatePassword(ctx context.Context, email, hash string) error
	MaxNicknameSuffix(ctx context.Context, base string) (uint64, bool, error)
}

// SessionStore maps refresh tokens to users.
type SessionStore interface {
	Create(ctx context.Context, userID uint64, refreshToken string) error
	FindByToken(ctx context.Context, refreshToken string) (model.RefreshToken, error)
	Replace(ctx context.Context, oldToken, newToken string) error
	DeleteByToken(ctx context.Context, refreshToken string) error
}

// JobPublisher enqueues mail jobs.
type JobPublisher interface {
	Publish(ctx context.Context, j queue.Job) error
}

var (
	_ UserStore    = (*repository.UserRepo)(nil)
	_ SessionStore = (*repository.SessionRepo)(nil)
	_ JobPublisher = (*queue.Publisher)(nil)
)

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }
