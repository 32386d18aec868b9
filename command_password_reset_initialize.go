package identity

import (
	"context"
	"strings"
	"time"

	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// InitializePasswordResetMessage requests a reset link for an email. The
// lookup deliberately reveals whether the email exists; clients depend on
// the distinct rejection and the behavior is covered by tests.
type InitializePasswordResetMessage struct {
	Email string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`

	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "identity.password_reset.initialize" }

type InitializePasswordResetResponse struct {
	Sent bool
}

type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	settings SettingsResolver
	mailer   Mailer
	activity ActivitySink
	logger   Logger
}

// NewInitializePasswordResetHandler creates a handler with sane defaults.
func NewInitializePasswordResetHandler(repo RepositoryManager, settings SettingsResolver) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		settings: settings,
		mailer:   noopMailer{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithMailer sets the gateway reset emails go through.
func (h *InitializePasswordResetHandler) WithMailer(mailer Mailer) *InitializePasswordResetHandler {
	h.mailer = normalizeMailer(mailer)
	return h
}

// WithActivitySink sets the sink used to emit reset events.
func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
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
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
	}

	token := MustRandomToken(64)

	settings := h.settings.Resolve(ctx)
	msg, err := NewResetPasswordEmail(settings, user, token)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render reset email")
	}

	// Delivery gates persistence. A token nobody was told about must not
	// exist, so the send happens first and a failure aborts the workflow
	// with no store mutation.
	if err := h.mailer.Send(ctx, msg); err != nil {
		h.logger.Error("failed to send password reset email: %v", err)
		return ErrEmailDeliveryFailed
	}

	if err := h.repo.Users().SetResetToken(ctx, user.ID, token); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist reset token")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetInit,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"email": user.Email,
		},
	})

	if event.OnResponse != nil {
		event.OnResponse(&InitializePasswordResetResponse{Sent: true})
	}

	return nil
}
