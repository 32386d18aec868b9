package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// FinalizePasswordResetMessage redeems a reset token for a new password.
// Token consumption and the password change land in one conditional update,
// so two racing completions with the same token cannot both succeed.
type FinalizePasswordResetMessage struct {
	Code                 string `json:"code" doc:"One-time reset token from the email link."`
	Password             string `json:"password" example:"some_secret_word" doc:"New password."`
	PasswordConfirmation string `json:"password_confirmation" example:"some_secret_word" doc:"New password, repeated."`

	OnResponse func(resp *AuthResult)
}

func (p FinalizePasswordResetMessage) Type() string { return "identity.password_reset.finalize" }

type FinalizePasswordResetHandler struct {
	repo     RepositoryManager
	tokens   TokenIssuer
	activity ActivitySink
	logger   Logger
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(repo RepositoryManager, tokens TokenIssuer) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:     repo,
		tokens:   tokens,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Password == "" || event.PasswordConfirmation == "" || event.Code == "" {
		return ErrIncorrectParams
	}

	if event.Password != event.PasswordConfirmation {
		return ErrPasswordsNoMatch
	}

	passwordHash, err := HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
	}

	user, err := h.repo.Users().ConsumeResetToken(ctx, event.Code, passwordHash)
	if err != nil {
		if IsRecordNotFound(err) {
			return ErrIncorrectCode
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password")
	}

	token, err := h.tokens.Issue(user.ID.String())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue session token")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordReset,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"email": user.Email,
		},
	})

	if event.OnResponse != nil {
		event.OnResponse(&AuthResult{
			Token: token,
			User:  Sanitize(user),
		})
	}

	return nil
}
