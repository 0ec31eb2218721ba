package model

import "time"

// Role is the enumerated account role stored in users.role.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCustomer, RoleAgent:
		return true
	}
	return false
}

// User represents a row of the `users` table.
//
// PasswordHash and Email never leave the service layer: handlers render
// users through PublicUser.
type User struct {
	ID           uint64    // users.id
	UUID         string    // users.uuid
	Email        string    // users.email (unique)
	PasswordHash string    // users.password
	Nickname     string    // users.nickname (unique)
	FirstName    string    // users.first_name
	LastName     string    // users.last_name
	Avatar       string    // users.avatar
	Role         Role      // users.role
	IsActive     bool      // users.is_active
	IsBlocked    bool      // users.is_blocked
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// FullName joins first and last name the way profiles display them.
func (u User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	return u.FirstName + " " + u.LastName
}

// PublicUser is the externally visible shape of a user.
type PublicUser struct {
	ID        uint64    `json:"id"`
	UUID      string    `json:"uuid"`
	Nickname  string    `json:"nickname"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	FullName  string    `json:"full_name"`
	Avatar    string    `json:"avatar"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Public strips credentials and contact data.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		UUID:      u.UUID,
		Nickname:  u.Nickname,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		FullName:  u.FullName(),
		Avatar:    u.Avatar,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// RefreshToken models an entry in the `refresh_tokens` table. The token
// string itself is the lookup key so one user can hold many sessions.
type RefreshToken struct {
	ID        uint64    // refresh_tokens.id
	UserID    uint64    // refresh_tokens.user_id
	Token     string    // refresh_tokens.refresh_token
	CreatedAt time.Time // refresh_tokens.created_at
	UpdatedAt time.Time // refresh_tokens.updated_at
}
