package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"github.com/iliyamo/listing-market/internal/model"
)

// Visibility selects which users a read may return.
type Visibility uint8

const (
	// VisibleOnly hides blocked accounts.
	VisibleOnly Visibility = iota
	// IncludeHidden returns every account. Credential flows use it so a
	// blocked account still fails with the same generic message.
	IncludeHidden
)

func (v Visibility) clause() string {
	if v == IncludeHidden {
		return ""
	}
	return " AND is_blocked = 0"
}

const userColumns = "id,uuid,email,password,nickname,first_name,last_name,avatar,role,is_active,is_blocked,created_at,updated_at"

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Create inserts u and returns its ID. PasswordHash must already be hashed.
func (r *UserRepo) Create(ctx context.Context, u model.User) (uint64, error) {
	if u.Role == "" {
		u.Role = model.RoleCustomer
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (uuid, email, password, nickname, first_name, last_name, avatar, role, is_active, is_blocked)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		u.UUID, normalizeEmail(u.Email), u.PasswordHash, u.Nickname, u.FirstName, u.LastName, u.Avatar, string(u.Role), u.IsActive, u.IsBlocked)
	if err != nil {
		if msg, ok := duplicateKey(err); ok {
			if strings.Contains(msg, "nickname") {
				return 0, ErrNicknameTaken
			}
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string, vis Visibility) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=?"+vis.clause()+" LIMIT 1",
		normalizeEmail(email))
	return scanUser(row)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64, vis Visibility) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=?"+vis.clause()+" LIMIT 1",
		id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u    model.User
		role string
	)
	err := row.Scan(&u.ID, &u.UUID, &u.Email, &u.PasswordHash, &u.Nickname, &u.FirstName, &u.LastName,
		&u.Avatar, &role, &u.IsActive, &u.IsBlocked, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	return u, nil
}

// Activate flips is_active for an inactive account. It reports false when
// the account was already active, so two racing activations cannot both
// succeed.
func (r *UserRepo) Activate(ctx context.Context, id uint64) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_active=1, updated_at=UTC_TIMESTAMP() WHERE id=? AND is_active=0", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdatePassword stores a new password hash for the account with email.
func (r *UserRepo) UpdatePassword(ctx context.Context, email, hash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password=?, updated_at=UTC_TIMESTAMP() WHERE email=?",
		hash, normalizeEmail(email))
	return err
}

// MaxNicknameSuffix returns the highest numeric suffix in use for base,
// counting the bare base as 0. found is false when nothing matches.
func (r *UserRepo) MaxNicknameSuffix(ctx context.Context, base string) (uint64, bool, error) {
	var top sql.NullInt64
	err := r.DB.QueryRowContext(ctx,
		`SELECT MAX(CAST(SUBSTRING(nickname, CHAR_LENGTH(?) + 1) AS UNSIGNED))
		 FROM users
		 WHERE nickname = ? OR nickname REGEXP ?`,
		base, base, "^"+regexp.QuoteMeta(base)+"[0-9]+$").Scan(&top)
	if err != nil {
		return 0, false, err
	}
	if !top.Valid {
		return 0, false, nil
	}
	return uint64(top.Int64), true, nil
}
