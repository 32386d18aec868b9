package identity

import (
	"context"
	"strings"
	"time"

	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// SendConfirmationMessage (re)issues the confirmation email for an
// unconfirmed account.
type SendConfirmationMessage struct {
	Email string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`

	OnResponse func(resp *SendConfirmationResponse)
}

func (p SendConfirmationMessage) Type() string { return "identity.email_confirmation.send" }

type SendConfirmationResponse struct {
	Email string
	Sent  bool
}

type SendConfirmationHandler struct {
	repo     RepositoryManager
	settings SettingsResolver
	mailer   Mailer
	logger   Logger
}

// NewSendConfirmationHandler creates a handler with sane defaults.
func NewSendConfirmationHandler(repo RepositoryManager, settings SettingsResolver) *SendConfirmationHandler {
	return &SendConfirmationHandler{
		repo:     repo,
		settings: settings,
		mailer:   noopMailer{},
		logger:   defLogger{},
	}
}

// WithMailer sets the gateway confirmation emails go through.
func (h *SendConfirmationHandler) WithMailer(mailer Mailer) *SendConfirmationHandler {
	h.mailer = normalizeMailer(mailer)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *SendConfirmationHandler) WithLogger(logger Logger) *SendConfirmationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *SendConfirmationHandler) Execute(ctx context.Context, event SendConfirmationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled while sending email confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SendConfirmationHandler) execute(ctx context.Context, event SendConfirmationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := strings.TrimSpace(event.Email)
	if email == "" {
		return ErrEmailRequired
	}

	if err := is.Email.Validate(email); err != nil {
		return ErrEmailFormat
	}
	email = strings.ToLower(email)

	user, err := h.repo.Users().FindByEmail(ctx, "", email)
	if err != nil {
		if IsRecordNotFound(err) {
			return ErrEmailNotExist
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for confirmation")
	}

	if user.Confirmed {
		return ErrAlreadyConfirmed
	}

	if user.Blocked {
		return ErrBlockedUser
	}

	token := MustRandomToken(32)
	if err := h.repo.Users().SetConfirmationToken(ctx, user.ID, token); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist confirmation token")
	}

	settings := h.settings.Resolve(ctx)
	msg, err := NewConfirmationEmail(settings, user, token)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render confirmation email")
	}

	// Fire and forget: the token is already persisted, a resend is cheap.
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second*30)
		defer cancel()

		if err := h.mailer.Send(ctx, msg); err != nil {
			h.logger.Error("failed to send confirmation email: %v", err)
		}
	}()

	if event.OnResponse != nil {
		event.OnResponse(&SendConfirmationResponse{
			Email: user.Email,
			Sent:  true,
		})
	}

	return nil
}

// ConfirmEmailMessage redeems a confirmation token. ReturnUser selects the
// API shape (session token plus user) over the browser shape (redirect to
// the configured URL); the token itself is treated identically either way.
type ConfirmEmailMessage struct {
	Token      string `json:"confirmation" doc:"One-time confirmation token."`
	ReturnUser bool   `json:"return_user,omitempty" doc:"Return a session instead of a redirect."`

	OnResponse func(resp *ConfirmEmailResponse)
}

func (p ConfirmEmailMessage) Type() string { return "identity.email_confirmation.confirm" }

type ConfirmEmailResponse struct {
	// Result is set when the caller asked for a session.
	Result *AuthResult
	// RedirectURL is set for browser-driven confirmations.
	RedirectURL string
}

type ConfirmEmailHandler struct {
	repo     RepositoryManager
	settings SettingsResolver
	tokens   TokenIssuer
	activity ActivitySink
	logger   Logger
}

// NewConfirmEmailHandler creates a handler with sane defaults.
func NewConfirmEmailHandler(repo RepositoryManager, settings SettingsResolver, tokens TokenIssuer) *ConfirmEmailHandler {
	return &ConfirmEmailHandler{
		repo:     repo,
		settings: settings,
		tokens:   tokens,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit confirmation events.
func (h *ConfirmEmailHandler) WithActivitySink(sink ActivitySink) *ConfirmEmailHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ConfirmEmailHandler) WithLogger(logger Logger) *ConfirmEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ConfirmEmailHandler) Execute(ctx context.Context, event ConfirmEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmEmailHandler) execute(ctx context.Context, event ConfirmEmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if strings.TrimSpace(event.Token) == "" {
		return ErrInvalidToken
	}

	user, err := h.repo.Users().ConsumeConfirmationToken(ctx, event.Token)
	if err != nil {
		if IsRecordNotFound(err) {
			return ErrInvalidToken
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm email")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventEmailConfirmed,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"email": user.Email,
		},
	})

	resp := &ConfirmEmailResponse{}

	if event.ReturnUser {
		token, err := h.tokens.Issue(user.ID.String())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue session token")
		}
		resp.Result = &AuthResult{
			Token: token,
			User:  Sanitize(user),
		}
	} else {
		settings := h.settings.Resolve(ctx)
		resp.RedirectURL = settings.EmailConfirmationRedirect
		if resp.RedirectURL == "" {
			resp.RedirectURL = "/"
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
