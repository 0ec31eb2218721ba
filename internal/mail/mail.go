// Package mail renders and delivers the verification emails produced by the
// mail queue.
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidMessage is returned for messages missing a recipient or subject.
var ErrInvalidMessage = errors.New("mail: invalid message")

// Message is a rendered transactional email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	Tag      string
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" || m.Subject == "" {
		return ErrInvalidMessage
	}
	return nil
}

// Sender delivers a Message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// FormatDuration renders d as "1 day 2 hours 5 minutes". Seconds below a
// whole unit are kept; a zero or negative duration renders as "0 seconds".
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	units := []struct {
		name string
		size int64
	}{
		{"day", 86400},
		{"hour", 3600},
		{"minute", 60},
		{"second", 1},
	}
	var parts []string
	for _, u := range units {
		n := secs / u.size
		if n <= 0 {
			continue
		}
		secs -= n * u.size
		name := u.name
		if n > 1 {
			name += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, name))
	}
	if len(parts) == 0 {
		return "0 seconds"
	}
	return strings.Join(parts, " ")
}
