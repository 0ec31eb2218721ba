package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/listing-market/internal/model"
	"github.com/iliyamo/listing-market/internal/utils"
)

// SessionRepo persists refresh-token sessions. Rows are keyed by the
// SHA-256 of the token, never the raw value, and one user may own many.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

// Create inserts a session for userID.
func (r *SessionRepo) Create(ctx context.Context, userID uint64, refreshToken string) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash) VALUES (?,?)",
		userID, utils.HashToken(refreshToken))
	return err
}

// FindByToken returns the session for refreshToken or ErrNotFound.
func (r *SessionRepo) FindByToken(ctx context.Context, refreshToken string) (model.RefreshToken, error) {
	var s model.RefreshToken
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, created_at, updated_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		utils.HashToken(refreshToken)).Scan(&s.ID, &s.UserID, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RefreshToken{}, ErrNotFound
	}
	if err != nil {
		return model.RefreshToken{}, err
	}
	s.Token = refreshToken
	return s, nil
}

// Replace swaps oldToken for newToken in a single statement. It returns
// ErrNotFound when oldToken has no session, which is what a second
// rotation of the same token observes.
func (r *SessionRepo) Replace(ctx context.Context, oldToken, newToken string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET token_hash=?, updated_at=UTC_TIMESTAMP() WHERE token_hash=?",
		utils.HashToken(newToken), utils.HashToken(oldToken))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByToken removes the session for refreshToken. Deleting an unknown
// token is not an error.
func (r *SessionRepo) DeleteByToken(ctx context.Context, refreshToken string) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE token_hash=?",
		utils.HashToken(refreshToken))
	return err
}
