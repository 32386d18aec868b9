package identity

import (
	"context"
	"strings"
	"time"

	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ActorKind classifies who is driving a workflow invocation.
type ActorKind string

const (
	ActorAdmin  ActorKind = "admin"
	ActorUser   ActorKind = "user"
	ActorSystem ActorKind = "system"
)

// InviteUserMessage creates a blocked placeholder account bound to the
// inviting actor's company. Only an authenticated admin context may issue
// invitations; the invitee activates the account through the one-time code.
type InviteUserMessage struct {
	Actor       ActorRef  `json:"-" doc:"Authenticated actor issuing the invitation."`
	ActorKind   ActorKind `json:"-" doc:"Actor classification; must be admin."`
	Email       string    `json:"email" example:"pepe.rone@example.com" doc:"Invitee email."`
	Username    string    `json:"username" example:"peperone" doc:"Invitee handle."`
	FirstName   string    `json:"first_name" example:"Pepe" doc:"Given name."`
	LastName    string    `json:"last_name" example:"Rone" doc:"Family name."`
	Password    string    `json:"password" example:"some_secret_word" doc:"Provisional password, replaced at acceptance."`
	RoleID      string    `json:"role_id,omitempty" doc:"Optional explicit role id."`
	CompanyID   string    `json:"company_id" doc:"Inviting company id."`
	CompanyName string    `json:"company_name,omitempty" doc:"Workspace name used in the invitation email."`

	OnResponse func(resp *SanitizedUser)
}

func (p InviteUserMessage) Type() string { return "identity.user.invite" }

type InviteUserHandler struct {
	repo     RepositoryManager
	settings SettingsResolver
	mailer   Mailer
	activity ActivitySink
	logger   Logger
}

// NewInviteUserHandler creates a handler with sane defaults.
func NewInviteUserHandler(repo RepositoryManager, settings SettingsResolver) *InviteUserHandler {
	return &InviteUserHandler{
		repo:     repo,
		settings: settings,
		mailer:   noopMailer{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithMailer sets the gateway invitation emails go through.
func (h *InviteUserHandler) WithMailer(mailer Mailer) *InviteUserHandler {
	h.mailer = normalizeMailer(mailer)
	return h
}

// WithActivitySink sets the sink used to emit invitation events.
func (h *InviteUserHandler) WithActivitySink(sink ActivitySink) *InviteUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InviteUserHandler) WithLogger(logger Logger) *InviteUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InviteUserHandler) Execute(ctx context.Context, event InviteUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user invitation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InviteUserHandler) execute(ctx context.Context, event InviteUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.ActorKind != ActorAdmin {
		return ErrActorNotAllowed
	}

	settings := h.settings.Resolve(ctx)

	event.Email = strings.TrimSpace(event.Email)
	if event.Email == "" {
		return ErrEmailRequired
	}

	if err := is.Email.Validate(event.Email); err != nil {
		return ErrEmailFormat
	}
	event.Email = strings.ToLower(event.Email)

	if event.Username == "" || event.Password == "" {
		return ErrIncorrectParams
	}

	companyID, err := uuid.Parse(event.CompanyID)
	if err != nil {
		return ErrIncorrectParams
	}

	if _, err := h.repo.Users().FindByUsername(ctx, "", event.Username); err == nil {
		return ErrUsernameTaken
	} else if !IsRecordNotFound(err) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check invitee username")
	}

	if settings.UniqueEmail {
		if _, err := h.repo.Users().FindByEmail(ctx, "", event.Email); err == nil {
			return ErrEmailTaken
		} else if !IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check invitee email")
		}
	}

	role, err := h.resolveRole(ctx, settings, event.RoleID)
	if err != nil {
		return err
	}

	passwordHash, err := HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
	}

	code := MustRandomToken(32)

	record := &User{
		Email:          event.Email,
		Username:       event.Username,
		FirstName:      event.FirstName,
		LastName:       event.LastName,
		PasswordHash:   passwordHash,
		Provider:       ProviderLocal,
		RoleID:         role.ID,
		CompanyID:      companyID,
		Confirmed:      true,
		Blocked:        true,
		InvitationCode: code,
	}

	user, err := h.repo.Users().CreateUser(ctx, record)
	if err != nil {
		if IsUniqueViolation(err) {
			return TranslateWriteConflict(err)
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create invited account")
	}

	h.sendInvitationEmail(ctx, settings, user, event, code)

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventUserInvited,
		Actor:     event.Actor,
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"email":      user.Email,
			"company_id": companyID.String(),
		},
	})

	if event.OnResponse != nil {
		event.OnResponse(Sanitize(user))
	}

	return nil
}

func (h *InviteUserHandler) resolveRole(ctx context.Context, settings Settings, roleID string) (*Role, error) {
	var role *Role
	var err error

	if roleID != "" {
		role, err = h.repo.Roles().FindByID(ctx, roleID)
	} else {
		role, err = h.repo.Roles().FindByType(ctx, settings.DefaultRole)
	}

	if err != nil {
		if IsRecordNotFound(err) {
			return nil, ErrRoleNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve invitee role")
	}

	return role, nil
}

// sendInvitationEmail is fire and forget, same as the registration emails.
func (h *InviteUserHandler) sendInvitationEmail(ctx context.Context, settings Settings, user *User, event InviteUserMessage, code string) {
	companyName := event.CompanyName
	if companyName == "" {
		if company, err := h.repo.Companies().FindByID(ctx, user.CompanyID); err == nil {
			companyName = company.Name
		}
	}

	msg, err := NewInvitationEmail(settings, user, companyName, code)
	if err != nil {
		h.logger.Error("failed to render invitation email: %v", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second*30)
		defer cancel()

		if err := h.mailer.Send(ctx, msg); err != nil {
			h.logger.Error("failed to send invitation email: %v", err)
		}
	}()
}
