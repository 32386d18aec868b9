package identity

import (
	"context"
	"fmt"
)

// Logger is the minimal logging surface the workflows need. Embedding
// applications adapt their structured logger; the default writes to stdout.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// TokenIssuer signs and verifies stateless session tokens. A session token
// carries only the user id; verification needs no store lookup and there is
// no revocation list (logout is client-side token discard).
type TokenIssuer interface {
	Issue(userID string) (string, error)
	Verify(token string) (string, error)
}

// Message is a transactional email. HTML is the rendered body; the gateway
// owns delivery, retries, and bounces.
type Message struct {
	To      string
	From    string
	Subject string
	HTML    string
}

// Mailer is the notification gateway collaborator.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, msg Message) error

// Send implements Mailer.
func (f MailerFunc) Send(ctx context.Context, msg Message) error {
	if f == nil {
		return nil
	}
	return f(ctx, msg)
}

type noopMailer struct{}

func (noopMailer) Send(context.Context, Message) error { return nil }

func normalizeMailer(m Mailer) Mailer {
	if m == nil {
		return noopMailer{}
	}
	return m
}

// AuthResult is the product of every successful authentication path: a
// signed session token plus the sanitized user projection.
type AuthResult struct {
	Token string         `json:"jwt"`
	User  *SanitizedUser `json:"user"`
}

// DefaultLogger returns the stdout fallback logger subpackages start with.
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
