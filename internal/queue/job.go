// Package queue carries mail jobs over RabbitMQ: a tagged job variant, a
// publisher and a worker-pool consumer with bounded retries.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// JobKind discriminates the mail job variants on the wire.
type JobKind uint8

const (
	KindSendVerificationCode JobKind = iota + 1
	KindSendResetPasswordCode
)

func (k JobKind) String() string {
	switch k {
	case KindSendVerificationCode:
		return "send_verification_code"
	case KindSendResetPasswordCode:
		return "send_reset_password_code"
	}
	return fmt.Sprintf("JobKind(%d)", uint8(k))
}

// ErrUnknownKind is returned when a message names a kind this build does
// not know.
var ErrUnknownKind = errors.New("queue: unknown job kind")

func (k JobKind) MarshalText() ([]byte, error) {
	switch k {
	case KindSendVerificationCode, KindSendResetPasswordCode:
		return []byte(k.String()), nil
	}
	return nil, ErrUnknownKind
}

func (k *JobKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "send_verification_code":
		*k = KindSendVerificationCode
	case "send_reset_password_code":
		*k = KindSendResetPasswordCode
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, b)
	}
	return nil
}

// Job is a mail job. The concrete types below are the only implementations.
type Job interface {
	Kind() JobKind
	Recipient() string
}

// SendVerificationCode delivers an account activation code.
type SendVerificationCode struct {
	Email string
	Code  string
}

// SendResetPasswordCode delivers a password reset code.
type SendResetPasswordCode struct {
	Email string
	Code  string
}

func (SendVerificationCode) Kind() JobKind  { return KindSendVerificationCode }
func (SendResetPasswordCode) Kind() JobKind { return KindSendResetPasswordCode }

func (j SendVerificationCode) Recipient() string  { return j.Email }
func (j SendResetPasswordCode) Recipient() string { return j.Email }

// Handler processes each job kind. Adding a kind means adding a method
// here, so every handler must be updated before the build passes.
type Handler interface {
	SendVerificationCode(ctx context.Context, j SendVerificationCode) error
	SendResetPasswordCode(ctx context.Context, j SendResetPasswordCode) error
}

// Dispatch routes j to the matching Handler method.
func Dispatch(ctx context.Context, h Handler, j Job) error {
	switch j := j.(type) {
	case SendVerificationCode:
		return h.SendVerificationCode(ctx, j)
	case SendResetPasswordCode:
		return h.SendResetPasswordCode(ctx, j)
	}
	return fmt.Errorf("%w: %T", ErrUnknownKind, j)
}

// envelope is the JSON body of a published message.
type envelope struct {
	Kind  JobKind `json:"kind"`
	Email string  `json:"email"`
	Code  string  `json:"code"`
}

// Encode renders j as a message body.
func Encode(j Job) ([]byte, error) {
	env := envelope{Kind: j.Kind(), Email: j.Recipient()}
	switch j := j.(type) {
	case SendVerificationCode:
		env.Code = j.Code
	case SendResetPasswordCode:
		env.Code = j.Code
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, j)
	}
	return json.Marshal(env)
}

// Decode parses a message body back into its concrete job type.
func Decode(body []byte) (Job, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	if env.Email == "" || env.Code == "" {
		return nil, errors.New("decode job: email and code are required")
	}
	switch env.Kind {
	case KindSendVerificationCode:
		return SendVerificationCode{Email: env.Email, Code: env.Code}, nil
	case KindSendResetPasswordCode:
		return SendResetPasswordCode{Email: env.Email, Code: env.Code}, nil
	}
	return nil, ErrUnknownKind
}
