package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// AcceptInvitationMessage redeems a one-time invitation code. The endpoint
// is public: possession of the code is the only credential, so the code is
// consumed atomically with the activation and can never authorize a second
// acceptance.
type AcceptInvitationMessage struct {
	Code     string `json:"code" doc:"One-time invitation code."`
	Password string `json:"password" example:"some_secret_word" doc:"New password for the activated account."`

	OnResponse func(resp *SanitizedUser)
}

func (p AcceptInvitationMessage) Type() string { return "identity.invitation.accept" }

type AcceptInvitationHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
}

// NewAcceptInvitationHandler creates a handler with sane defaults.
func NewAcceptInvitationHandler(repo RepositoryManager) *AcceptInvitationHandler {
	return &AcceptInvitationHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit acceptance events.
func (h *AcceptInvitationHandler) WithActivitySink(sink ActivitySink) *AcceptInvitationHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *AcceptInvitationHandler) WithLogger(logger Logger) *AcceptInvitationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *AcceptInvitationHandler) Execute(ctx context.Context, event AcceptInvitationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during invitation acceptance",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *AcceptInvitationHandler) execute(ctx context.Context, event AcceptInvitationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Code == "" {
		return ErrMissingInvitationCode
	}

	if event.Password == "" {
		return ErrPasswordRequired
	}

	passwordHash, err := HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
	}

	user, err := h.repo.Users().ConsumeInvitationCode(ctx, event.Code, passwordHash)
	if err != nil {
		if IsRecordNotFound(err) {
			return ErrWrongInvitationCode
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to redeem invitation code")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventInvitationAccepted,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"email": user.Email,
		},
	})

	if event.OnResponse != nil {
		event.OnResponse(Sanitize(user))
	}

	return nil
}
