package identity

import (
	"context"
	"strings"
	"time"

	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RegisterUserMessage carries a public sign-up request. When InvitationCode
// is set the request redeems an invitation instead of opening a new tenant:
// an existing account with the same email is merged into the inviting
// company rather than duplicated.
type RegisterUserMessage struct {
	Email          string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	Username       string `json:"username" example:"peperone" doc:"Unique handle."`
	FirstName      string `json:"first_name" example:"Pepe" doc:"Given name."`
	LastName       string `json:"last_name" example:"Rone" doc:"Family name."`
	Password       string `json:"password" example:"some_secret_word" doc:"Plaintext password."`
	RoleID         string `json:"role_id,omitempty" doc:"Optional explicit role id; defaults to the configured role."`
	CompanyID      string `json:"company_id,omitempty" doc:"Inviting company id, present on invitation sign-ups."`
	CompanyName    string `json:"company_name,omitempty" doc:"Workspace name for a fresh tenant."`
	InvitationCode string `json:"invitation_code,omitempty" doc:"One-time invitation code."`
	UseHashid      bool   `json:"use_hashid,omitempty" doc:"Derive the account id deterministically from the email."`

	OnResponse func(resp *AuthResult)
}

func (p RegisterUserMessage) Type() string { return "identity.user.register" }

type RegisterUserHandler struct {
	repo     RepositoryManager
	settings SettingsResolver
	tokens   TokenIssuer
	mailer   Mailer
	activity ActivitySink
	logger   Logger
}

// NewRegisterUserHandler creates a handler with sane defaults.
func NewRegisterUserHandler(repo RepositoryManager, settings SettingsResolver, tokens TokenIssuer) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		settings: settings,
		tokens:   tokens,
		mailer:   noopMailer{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithMailer sets the gateway welcome and invitation emails go through.
func (h *RegisterUserHandler) WithMailer(mailer Mailer) *RegisterUserHandler {
	h.mailer = normalizeMailer(mailer)
	return h
}

// WithActivitySink sets the sink used to emit registration events.
func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	settings := h.settings.Resolve(ctx)

	if !settings.AllowRegister {
		return ErrRegistrationDisabled
	}

	if event.Password == "" {
		return ErrPasswordRequired
	}

	if IsHashed(event.Password) {
		return ErrPasswordFormat
	}

	event.Email = strings.TrimSpace(event.Email)
	if event.Email == "" {
		return ErrEmailRequired
	}

	if err := is.Email.Validate(event.Email); err != nil {
		return ErrEmailFormat
	}
	event.Email = strings.ToLower(event.Email)

	role, err := h.resolveRole(ctx, settings, event.RoleID)
	if err != nil {
		return err
	}

	passwordHash, err := HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
	}

	existing, err := h.repo.Users().FindByEmail(ctx, "", event.Email)
	if err != nil && !IsRecordNotFound(err) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for existing account")
	}

	if existing != nil && event.InvitationCode == "" {
		if existing.IsLocal() {
			return ErrEmailTaken
		}
		if settings.UniqueEmail {
			return ErrEmailTaken
		}
	}

	var user *User
	var confirmationToken string

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if existing != nil && event.InvitationCode != "" {
			user, err = h.mergeInvitedUser(ctx, tx, existing, event)
			return err
		}

		user, confirmationToken, err = h.createUser(ctx, tx, settings, role, passwordHash, event)
		return err
	})

	if err != nil {
		if IsConflict(err) || IsUniqueViolation(err) {
			return TranslateWriteConflict(err)
		}
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to register user")
	}

	token, err := h.tokens.Issue(user.ID.String())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue session token")
	}

	h.sendRegistrationEmail(ctx, settings, user, event, confirmationToken)

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventUserRegistered,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"email":   user.Email,
			"invited": event.InvitationCode != "",
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

func (h *RegisterUserHandler) resolveRole(ctx context.Context, settings Settings, roleID string) (*Role, error) {
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
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve registration role")
	}

	return role, nil
}

// mergeInvitedUser binds an already-known email to the inviting company. The
// row is re-used, never duplicated: the account stays blocked until the
// invitation is accepted.
func (h *RegisterUserHandler) mergeInvitedUser(ctx context.Context, tx bun.Tx, existing *User, event RegisterUserMessage) (*User, error) {
	if err := BeginInvitation(existing, event.InvitationCode, h.parseCompanyID(event.CompanyID)); err != nil {
		return nil, err
	}

	user, err := h.repo.Users().UpdateUserTx(ctx, tx, existing)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to merge invited account")
	}

	return user, nil
}

func (h *RegisterUserHandler) createUser(ctx context.Context, tx bun.Tx, settings Settings, role *Role, passwordHash string, event RegisterUserMessage) (*User, string, error) {
	companyID := h.parseCompanyID(event.CompanyID)

	// A fresh self-registration opens its own tenant.
	if companyID == uuid.Nil && event.InvitationCode == "" {
		name := event.CompanyName
		if name == "" {
			name = event.Username
		}
		company, err := h.repo.Companies().CreateTx(ctx, tx, &Company{
			ID:   uuid.New(),
			Name: name,
		})
		if err != nil {
			return nil, "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create workspace")
		}
		companyID = company.ID
	}

	var confirmationToken string
	if settings.EmailConfirmation && event.InvitationCode == "" {
		confirmationToken = MustRandomToken(32)
	}

	record := &User{
		Email:             event.Email,
		Username:          event.Username,
		FirstName:         event.FirstName,
		LastName:          event.LastName,
		PasswordHash:      passwordHash,
		Provider:          ProviderLocal,
		RoleID:            role.ID,
		CompanyID:         companyID,
		Confirmed:         !settings.EmailConfirmation,
		Blocked:           event.InvitationCode != "",
		InvitationCode:    event.InvitationCode,
		ConfirmationToken: confirmationToken,
	}

	if event.UseHashid {
		if id, err := hashid.NewUUID(event.Email); err == nil {
			record.ID = id
		}
	}

	user, err := h.repo.Users().CreateUserTx(ctx, tx, record)
	if err != nil {
		return nil, "", err
	}

	if event.InvitationCode == "" {
		subscription, err := h.repo.Subscriptions().CreateBetaTx(ctx, tx)
		if err != nil {
			return nil, "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create default subscription")
		}

		if err := h.repo.Companies().AttachSubscriptionTx(ctx, tx, companyID, subscription.ID); err != nil {
			return nil, "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to bind subscription to workspace")
		}
	}

	return user, confirmationToken, nil
}

// sendRegistrationEmail dispatches exactly one message per registration,
// fire and forget. Delivery failures are logged, never surfaced: a delayed
// welcome email must not block handing the session token back.
func (h *RegisterUserHandler) sendRegistrationEmail(ctx context.Context, settings Settings, user *User, event RegisterUserMessage, confirmationToken string) {
	var msg Message
	var err error

	if event.InvitationCode != "" {
		companyName := h.companyName(ctx, user.CompanyID)
		msg, err = NewInvitationEmail(settings, user, companyName, event.InvitationCode)
	} else {
		msg, err = NewWelcomeEmail(settings, user, confirmationToken)
	}

	if err != nil {
		h.logger.Error("failed to render registration email: %v", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second*30)
		defer cancel()

		if err := h.mailer.Send(ctx, msg); err != nil {
			h.logger.Error("failed to send registration email: %v", err)
		}
	}()
}

func (h *RegisterUserHandler) companyName(ctx context.Context, companyID uuid.UUID) string {
	if companyID == uuid.Nil {
		return ""
	}

	company, err := h.repo.Companies().FindByID(ctx, companyID)
	if err != nil {
		h.logger.Warn("failed to resolve workspace name: %v", err)
		return ""
	}

	return company.Name
}

func (h *RegisterUserHandler) parseCompanyID(raw string) uuid.UUID {
	if raw == "" {
		return uuid.Nil
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}

	return id
}
