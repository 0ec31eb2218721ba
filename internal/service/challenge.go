package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/listing-market/internal/apperr"
	"github.com/iliyamo/listing-market/internal/ephemeral"
)

const challengeKeyPrefix = "auth_challenge_id_"

func challengeKey(email string) string { return challengeKeyPrefix + email }

// Challenge is the stored payload of an auth challenge.
type Challenge struct {
	ID        string    `json:"auth_challenge_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ChallengeFlow issues and checks auth challenge ids. At most one challenge
// is live per email; creating a new one replaces the previous.
type ChallengeFlow struct {
	Store ephemeral.Store
	TTL   time.Duration
	Now   func() time.Time
}

func NewChallengeFlow(store ephemeral.Store, ttl time.Duration) *ChallengeFlow {
	return &ChallengeFlow{Store: store, TTL: ttl, Now: time.Now}
}

// Create replaces any challenge for email and returns the new id.
func (f *ChallengeFlow) Create(ctx context.Context, email string) (string, error) {
	c := Challenge{ID: uuid.NewString(), CreatedAt: f.Now().UTC()}
	raw, err := json.Marshal(c)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if err := ephemeral.Replace(ctx, f.Store, challengeKey(normalizeEmail(email)), string(raw), f.TTL); err != nil {
		return "", apperr.Internal(err)
	}
	return c.ID, nil
}

// Verify returns the stored challenge when id matches the live one for email.
func (f *ChallengeFlow) Verify(ctx context.Context, id, email string) (Challenge, error) {
	raw, err := f.Store.Get(ctx, challengeKey(normalizeEmail(email)))
	if errors.Is(err, ephemeral.ErrNotFound) {
		return Challenge{}, apperr.Unauthorized("auth challenge id is invalid or expired")
	}
	if err != nil {
		return Challenge{}, apperr.Internal(err)
	}
	var c Challenge
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Challenge{}, apperr.Internal(err)
	}
	if id == "" || c.ID != id {
		return Challenge{}, apperr.Unauthorized("auth challenge id is invalid or expired")
	}
	return c, nil
}

// Clear drops the live challenge for email.
func (f *ChallengeFlow) Clear(ctx context.Context, email string) error {
	return f.Store.Delete(ctx, challengeKey(normalizeEmail(email)))
}
