package service

import (
	"fmt"

	"github.com/iliyamo/listing-market/internal/queue"
)

// Purpose names what a verification code unlocks.
type Purpose string

const (
	PurposeActivateAccount Purpose = "activate_account"
	PurposeResetPassword   Purpose = "reset_password"
)

func (p Purpose) Valid() bool {
	return p == PurposeActivateAccount || p == PurposeResetPassword
}

// codeKey is the ephemeral key holding the live code for (p, email).
func (p Purpose) codeKey(email string) string { return string(p) + "_" + email }

func (p Purpose) job(email, code string) (queue.Job, error) {
	switch p {
	case PurposeActivateAccount:
		return queue.SendVerificationCode{Email: email, Code: code}, nil
	case PurposeResetPassword:
		return queue.SendResetPasswordCode{Email: email, Code: code}, nil
	}
	return nil, fmt.Errorf("unknown code purpose %q", string(p))
}

// BlacklistKey is the ephemeral key marking a revoked access token.
func BlacklistKey(accessToken string) string { return "blacklist-" + accessToken }
