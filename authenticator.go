package identity

import (
	"context"
	"strings"

	"github.com/go-ozzo/ozzo-validation/is"
)

// Auther authenticates local credentials and mints session tokens. Federated
// logins live in the social subpackage and share the same TokenIssuer.
type Auther struct {
	users        UserStore
	settings     SettingsResolver
	tokens       TokenIssuer
	logger       Logger
	activitySink ActivitySink
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(users UserStore, settings SettingsResolver, tokens TokenIssuer) *Auther {
	return &Auther{
		users:        users,
		settings:     settings,
		tokens:       tokens,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// Login verifies a local identifier/password pair and returns a session
// token with the sanitized account. The same generic rejection covers an
// unknown identifier and a wrong password, so callers cannot probe which
// accounts exist through this path.
func (s *Auther) Login(ctx context.Context, identifier, password string) (*AuthResult, error) {
	settings := s.settings.Resolve(ctx)

	if !settings.Provider(ProviderLocal).Enabled {
		return nil, s.loginFailure(ctx, identifier, "", ErrProviderDisabled)
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, s.loginFailure(ctx, identifier, "", ErrIdentifierRequired)
	}

	if password == "" {
		return nil, s.loginFailure(ctx, identifier, "", ErrPasswordRequired)
	}

	user, err := s.findLocalUser(ctx, identifier)
	if err != nil {
		if IsRecordNotFound(err) {
			return nil, s.loginFailure(ctx, identifier, "", ErrInvalidCredentials)
		}
		s.logger.Error("Login identity lookup error", "error", err)
		return nil, err
	}

	if settings.EmailConfirmation && !user.Confirmed {
		return nil, s.loginFailure(ctx, identifier, user.ID.String(), ErrEmailNotConfirmed)
	}

	if user.Blocked {
		return nil, s.loginFailure(ctx, identifier, user.ID.String(), ErrUserBlocked)
	}

	if user.PasswordHash == "" {
		return nil, s.loginFailure(ctx, identifier, user.ID.String(), ErrNoLocalPassword)
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		return nil, s.loginFailure(ctx, identifier, user.ID.String(), ErrInvalidCredentials)
	}

	token, err := s.tokens.Issue(user.ID.String())
	if err != nil {
		s.logger.Error("Login token issue error", "error", err)
		return nil, err
	}

	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"identifier": identifier,
		},
	})

	return &AuthResult{
		Token: token,
		User:  Sanitize(user),
	}, nil
}

// SessionUser resolves a session token back to its live account. The token
// is stateless, so the store is the source of truth for anything that can
// change after issuance: a blocked account is rejected here even though its
// token still verifies.
func (s *Auther) SessionUser(ctx context.Context, token string) (*SanitizedUser, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if IsRecordNotFound(err) {
			return nil, ErrSessionUserGone
		}
		s.logger.Error("SessionUser lookup error", "error", err)
		return nil, err
	}

	if user.Blocked {
		return nil, ErrUserBlocked
	}

	return Sanitize(user), nil
}

// findLocalUser resolves the identifier against local-provider accounts only.
// Anything that validates as an email address is matched on the email column,
// lowercased; everything else is treated as a username.
func (s *Auther) findLocalUser(ctx context.Context, identifier string) (*User, error) {
	if is.Email.Validate(identifier) == nil {
		return s.users.FindByEmail(ctx, ProviderLocal, strings.ToLower(identifier))
	}

	return s.users.FindByUsername(ctx, ProviderLocal, identifier)
}

func (s *Auther) loginFailure(ctx context.Context, identifier, userID string, cause error) error {
	actor := ActorRef{Type: "unknown"}
	if userID != "" {
		actor = ActorRef{ID: userID, Type: "user"}
	}

	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Actor:     actor,
		UserID:    userID,
		Metadata: map[string]any{
			"identifier": identifier,
			"error":      cause.Error(),
		},
	})

	return cause
}
