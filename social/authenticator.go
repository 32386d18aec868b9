package social

import (
	"context"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/bugloop/identity"
)

// Authenticator orchestrates the two federated login phases. Connect builds
// the provider redirect; Callback turns the provider's response into a local
// session. The phases are stateless between each other, coupled only through
// the signed state token.
type Authenticator struct {
	providers            map[string]Provider
	repo                 identity.RepositoryManager
	settings             identity.SettingsResolver
	tokens               identity.TokenIssuer
	state                StateManager
	activity             identity.ActivitySink
	logger               identity.Logger
	requireVerifiedEmail bool
}

// Option configures the authenticator.
type Option func(*Authenticator)

// NewAuthenticator creates a federated login authenticator.
func NewAuthenticator(
	repo identity.RepositoryManager,
	settings identity.SettingsResolver,
	tokens identity.TokenIssuer,
	stateKey []byte,
	opts ...Option,
) *Authenticator {
	sa := &Authenticator{
		providers: make(map[string]Provider),
		repo:      repo,
		settings:  settings,
		tokens:    tokens,
		state:     NewSignedStateManager(stateKey, 10*time.Minute),
		activity:  identity.ActivitySinkFunc(nil),
		logger:    identity.DefaultLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sa)
		}
	}

	return sa
}

// WithProvider registers a social provider.
func WithProvider(provider Provider) Option {
	return func(sa *Authenticator) {
		if provider == nil {
			return
		}
		sa.providers[provider.Name()] = provider
	}
}

// WithRequireVerifiedEmail rejects callbacks whose provider profile carries
// an unverified email address. Off by default: GitHub only returns verified
// primary addresses, but providers that relay unverified addresses would
// otherwise let anyone claim an account for an email they do not own.
func WithRequireVerifiedEmail() Option {
	return func(sa *Authenticator) {
		sa.requireVerifiedEmail = true
	}
}

// WithStateManager sets a custom state manager.
func WithStateManager(sm StateManager) Option {
	return func(sa *Authenticator) {
		if sm != nil {
			sa.state = sm
		}
	}
}

// WithActivitySink sets the activity sink for audit logging.
func WithActivitySink(sink identity.ActivitySink) Option {
	return func(sa *Authenticator) {
		if sink != nil {
			sa.activity = sink
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger identity.Logger) Option {
	return func(sa *Authenticator) {
		if logger != nil {
			sa.logger = logger
		}
	}
}

// AuthRedirect contains the authorization URL for redirecting users.
type AuthRedirect struct {
	URL      string
	State    string
	Provider string
}

// CallbackQuery carries the provider's redirect parameters. ErrorCode and
// ErrorDescription are set when the provider denied the authorization.
type CallbackQuery struct {
	Code             string
	State            string
	ErrorCode        string
	ErrorDescription string
}

// Connect starts the OAuth flow for a provider.
func (sa *Authenticator) Connect(ctx context.Context, providerName string) (*AuthRedirect, error) {
	providerName = strings.ToLower(providerName)
	settings := sa.settings.Resolve(ctx)

	ps := settings.Provider(providerName)
	if !ps.Enabled {
		return nil, identity.ErrProviderDisabled
	}

	provider, ok := sa.providers[providerName]
	if !ok {
		return nil, cloneWithMeta(ErrProviderNotFound, map[string]any{
			"provider": providerName,
		})
	}

	if u, err := url.Parse(settings.ServerURL); err != nil || !u.IsAbs() {
		return nil, ErrCallbackURLNotAbsolute
	}

	stateToken, err := sa.state.Encode(&State{
		Provider:    providerName,
		RedirectURL: ps.Callback,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode oauth state")
	}

	return &AuthRedirect{
		URL:      provider.AuthCodeURL(stateToken),
		State:    stateToken,
		Provider: providerName,
	}, nil
}

// Callback finishes the OAuth flow. It verifies the state, exchanges the
// authorization code, loads or creates the matching local account, and
// issues a session token exactly like a successful local login.
func (sa *Authenticator) Callback(ctx context.Context, providerName string, query CallbackQuery) (*identity.AuthResult, error) {
	providerName = strings.ToLower(providerName)

	if query.ErrorCode != "" {
		return nil, cloneWithMeta(ErrCallbackRejected, map[string]any{
			"provider":    providerName,
			"code":        query.ErrorCode,
			"description": query.ErrorDescription,
		})
	}

	state, err := sa.state.Decode(query.State)
	if err != nil {
		return nil, err
	}

	if state.Provider != providerName {
		return nil, ErrInvalidState
	}

	settings := sa.settings.Resolve(ctx)
	if !settings.Provider(providerName).Enabled {
		return nil, identity.ErrProviderDisabled
	}

	provider, ok := sa.providers[providerName]
	if !ok {
		return nil, cloneWithMeta(ErrProviderNotFound, map[string]any{
			"provider": providerName,
		})
	}

	token, err := provider.Exchange(ctx, query.Code)
	if err != nil {
		return nil, wrapProviderError(ErrTokenExchangeFailed, providerName, "exchange", err)
	}

	profile, err := provider.UserInfo(ctx, token)
	if err != nil {
		return nil, wrapProviderError(ErrUserInfoFailed, providerName, "user_info", err)
	}

	if profile.Email == "" {
		return nil, ErrEmailMissing
	}

	if sa.requireVerifiedEmail && !profile.EmailVerified {
		return nil, cloneWithMeta(ErrEmailUnverified, map[string]any{
			"provider": providerName,
			"email":    profile.Email,
		})
	}

	user, isNew, err := sa.loadOrCreateUser(ctx, settings, providerName, profile)
	if err != nil {
		return nil, err
	}

	if user.Blocked {
		return nil, identity.ErrUserBlocked
	}

	jwtToken, err := sa.tokens.Issue(user.ID.String())
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue session token")
	}

	sa.recordLogin(ctx, providerName, user, profile, isNew)

	return &identity.AuthResult{
		Token: jwtToken,
		User:  identity.Sanitize(user),
	}, nil
}

// loadOrCreateUser resolves the external identity to a local account. The
// match key is (provider, email); accounts created here are confirmed
// immediately because the provider already verified the address.
func (sa *Authenticator) loadOrCreateUser(ctx context.Context, settings identity.Settings, providerName string, profile *Profile) (*identity.User, bool, error) {
	email := strings.ToLower(profile.Email)

	user, err := sa.repo.Users().FindByEmail(ctx, providerName, email)
	if err == nil {
		return user, false, nil
	}

	if !identity.IsRecordNotFound(err) {
		return nil, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up federated account")
	}

	role, err := sa.repo.Roles().FindByType(ctx, settings.DefaultRole)
	if err != nil {
		if identity.IsRecordNotFound(err) {
			return nil, false, identity.ErrRoleNotFound
		}
		return nil, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve default role")
	}

	var created *identity.User

	err = sa.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		company, err := sa.repo.Companies().CreateTx(ctx, tx, &identity.Company{
			ID:   uuid.New(),
			Name: sa.workspaceName(profile),
		})
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create workspace")
		}

		record := &identity.User{
			Email:     email,
			Username:  sa.username(profile, email),
			FirstName: profile.FirstName,
			LastName:  profile.LastName,
			Provider:  providerName,
			RoleID:    role.ID,
			CompanyID: company.ID,
			Confirmed: true,
		}

		created, err = sa.repo.Users().CreateUserTx(ctx, tx, record)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create federated account")
		}

		return nil
	})

	if err != nil {
		return nil, false, err
	}

	return created, true, nil
}

func (sa *Authenticator) workspaceName(profile *Profile) string {
	if profile.Name != "" {
		return profile.Name
	}
	if profile.Username != "" {
		return profile.Username
	}
	return profile.Email
}

func (sa *Authenticator) username(profile *Profile, email string) string {
	if profile.Username != "" {
		return profile.Username
	}

	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}

	return email
}

func (sa *Authenticator) recordLogin(ctx context.Context, providerName string, user *identity.User, profile *Profile, isNew bool) {
	event := identity.ActivityEvent{
		EventType:  identity.ActivityEventSocialLogin,
		Actor:      identity.ActorRef{Type: "social", ID: providerName},
		UserID:     user.ID.String(),
		OccurredAt: time.Now(),
		Metadata: map[string]any{
			"provider":         providerName,
			"provider_user_id": profile.ProviderUserID,
			"is_new_user":      isNew,
		},
	}

	if err := sa.activity.Record(ctx, event); err != nil {
		sa.logger.Warn("activity sink record error: %v", err)
	}
}
