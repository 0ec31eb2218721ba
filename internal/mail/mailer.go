package mail

import (
	"context"
	"time"

	"github.com/iliyamo/listing-market/internal/queue"
)

// Mailer turns queued mail jobs into delivered messages. It implements
// queue.Handler.
type Mailer struct {
	sender  Sender
	codeTTL time.Duration
}

var _ queue.Handler = (*Mailer)(nil)

// NewMailer renders codes with codeTTL as the advertised validity.
func NewMailer(sender Sender, codeTTL time.Duration) *Mailer {
	return &Mailer{sender: sender, codeTTL: codeTTL}
}

func (m *Mailer) SendVerificationCode(ctx context.Context, j queue.SendVerificationCode) error {
	msg, err := VerificationCode(j.Email, j.Code, m.codeTTL)
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, msg)
}

func (m *Mailer) SendResetPasswordCode(ctx context.Context, j queue.SendResetPasswordCode) error {
	msg, err := ResetPasswordCode(j.Email, j.Code, m.codeTTL)
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, msg)
}
