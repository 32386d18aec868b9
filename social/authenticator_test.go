package social_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/bugloop/identity"
	"github.com/bugloop/identity/social"
)

type fakeUsers struct {
	identity.Users
	byEmail map[string]*identity.User
	created *identity.User
}

func (f *fakeUsers) FindByEmail(ctx context.Context, provider, email string) (*identity.User, error) {
	key := provider + "|" + email
	if u, ok := f.byEmail[key]; ok {
		return u, nil
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeUsers) CreateUserTx(ctx context.Context, tx bun.IDB, record *identity.User) (*identity.User, error) {
	record.ID = uuid.New()
	f.created = record
	return record, nil
}

type fakeRoles struct {
	identity.Roles
	role *identity.Role
}

func (f *fakeRoles) FindByType(ctx context.Context, roleType string) (*identity.Role, error) {
	if f.role == nil {
		return nil, repository.NewRecordNotFound()
	}
	return f.role, nil
}

type fakeCompanies struct {
	identity.Companies
	created *identity.Company
}

func (f *fakeCompanies) CreateTx(ctx context.Context, tx bun.IDB, record *identity.Company, criteria ...repository.InsertCriteria) (*identity.Company, error) {
	f.created = record
	return record, nil
}

type fakeRepo struct {
	users     *fakeUsers
	roles     *fakeRoles
	companies *fakeCompanies
}

func (f *fakeRepo) Validate() error { return nil }
func (f *fakeRepo) MustValidate()   {}

func (f *fakeRepo) RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(context.Context, bun.Tx) error) error {
	return fn(ctx, bun.Tx{})
}

func (f *fakeRepo) Users() identity.Users                 { return f.users }
func (f *fakeRepo) Roles() identity.Roles                 { return f.roles }
func (f *fakeRepo) Companies() identity.Companies         { return f.companies }
func (f *fakeRepo) Subscriptions() identity.Subscriptions { return nil }

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:     &fakeUsers{byEmail: map[string]*identity.User{}},
		roles:     &fakeRoles{role: &identity.Role{ID: uuid.New(), Type: "authenticated"}},
		companies: &fakeCompanies{},
	}
}

type fakeProvider struct {
	name        string
	profile     *social.Profile
	exchangeErr error
	userInfoErr error

	exchangedCode string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://provider.example.com/authorize?state=" + state
}

func (f *fakeProvider) Exchange(ctx context.Context, code string) (*social.Token, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	f.exchangedCode = code
	return &social.Token{AccessToken: "provider-access-token", TokenType: "bearer"}, nil
}

func (f *fakeProvider) UserInfo(ctx context.Context, token *social.Token) (*social.Profile, error) {
	if f.userInfoErr != nil {
		return nil, f.userInfoErr
	}
	return f.profile, nil
}

type stubIssuer struct{}

func (stubIssuer) Issue(userID string) (string, error) { return "token-for-" + userID, nil }
func (stubIssuer) Verify(token string) (string, error) { return "", nil }

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

func socialSettings(enabled bool) identity.SettingsResolver {
	return identity.SettingsResolverFunc(func(context.Context) identity.Settings {
		return identity.Settings{
			DefaultRole: "authenticated",
			ServerURL:   "https://identity.bugloop.dev",
			Providers: map[string]identity.ProviderSettings{
				"github": {
					Enabled:  enabled,
					ClientID: "gh-client",
					Callback: "https://app.bugloop.dev/auth/github/callback",
				},
			},
		}
	})
}

func githubProfile() *social.Profile {
	return &social.Profile{
		ProviderUserID: "12345",
		Provider:       "github",
		Email:          "Pepe.Rone@Example.com",
		EmailVerified:  true,
		Name:           "Pepe Rone",
		FirstName:      "Pepe",
		LastName:       "Rone",
		Username:       "peperone",
	}
}

func TestConnect(t *testing.T) {
	provider := &fakeProvider{name: "github"}
	sa := social.NewAuthenticator(newFakeRepo(), socialSettings(true), stubIssuer{}, []byte("state-key"),
		social.WithProvider(provider),
		social.WithLogger(testLogger{}),
	)

	redirect, err := sa.Connect(context.Background(), "GitHub")
	require.NoError(t, err)

	assert.Equal(t, "github", redirect.Provider)
	assert.NotEmpty(t, redirect.State)
	assert.Contains(t, redirect.URL, "https://provider.example.com/authorize?state=")

	// The handed-out state decodes with the same key and names the provider.
	state, err := social.NewSignedStateManager([]byte("state-key"), 10*time.Minute).Decode(redirect.State)
	require.NoError(t, err)
	assert.Equal(t, "github", state.Provider)
	assert.Equal(t, "https://app.bugloop.dev/auth/github/callback", state.RedirectURL)
}

func TestConnectDisabledProvider(t *testing.T) {
	sa := social.NewAuthenticator(newFakeRepo(), socialSettings(false), stubIssuer{}, []byte("state-key"),
		social.WithProvider(&fakeProvider{name: "github"}),
	)

	_, err := sa.Connect(context.Background(), "github")
	assert.ErrorIs(t, err, identity.ErrProviderDisabled)
}

func TestConnectUnknownProvider(t *testing.T) {
	settings := identity.SettingsResolverFunc(func(context.Context) identity.Settings {
		return identity.Settings{
			ServerURL: "https://identity.bugloop.dev",
			Providers: map[string]identity.ProviderSettings{
				"gitlab": {Enabled: true},
			},
		}
	})

	sa := social.NewAuthenticator(newFakeRepo(), settings, stubIssuer{}, []byte("state-key"))

	_, err := sa.Connect(context.Background(), "gitlab")
	assert.ErrorIs(t, err, social.ErrProviderNotFound)
}

func TestConnectRequiresAbsoluteServerURL(t *testing.T) {
	settings := identity.SettingsResolverFunc(func(context.Context) identity.Settings {
		return identity.Settings{
			ServerURL: "/relative",
			Providers: map[string]identity.ProviderSettings{
				"github": {Enabled: true},
			},
		}
	})

	sa := social.NewAuthenticator(newFakeRepo(), settings, stubIssuer{}, []byte("state-key"),
		social.WithProvider(&fakeProvider{name: "github"}),
	)

	_, err := sa.Connect(context.Background(), "github")
	assert.ErrorIs(t, err, social.ErrCallbackURLNotAbsolute)
}

func TestCallbackCreatesAccountOnFirstLogin(t *testing.T) {
	repo := newFakeRepo()
	provider := &fakeProvider{name: "github", profile: githubProfile()}

	var events []identity.ActivityEvent
	sink := identity.ActivitySinkFunc(func(ctx context.Context, evt identity.ActivityEvent) error {
		events = append(events, evt)
		return nil
	})

	sa := social.NewAuthenticator(repo, socialSettings(true), stubIssuer{}, []byte("state-key"),
		social.WithProvider(provider),
		social.WithActivitySink(sink),
		social.WithLogger(testLogger{}),
	)

	redirect, err := sa.Connect(context.Background(), "github")
	require.NoError(t, err)

	result, err := sa.Callback(context.Background(), "github", social.CallbackQuery{
		Code:  "auth-code",
		State: redirect.State,
	})
	require.NoError(t, err)

	assert.Equal(t, "auth-code", provider.exchangedCode)

	created := repo.users.created
	require.NotNil(t, created, "first federated login provisions an account")
	assert.Equal(t, "pepe.rone@example.com", created.Email)
	assert.Equal(t, "peperone", created.Username)
	assert.Equal(t, "github", created.Provider)
	assert.True(t, created.Confirmed, "provider-verified addresses start confirmed")
	assert.Empty(t, created.PasswordHash)

	require.NotNil(t, repo.companies.created)
	assert.Equal(t, "Pepe Rone", repo.companies.created.Name)
	assert.Equal(t, repo.companies.created.ID, created.CompanyID)

	require.NotNil(t, result)
	assert.Equal(t, "token-for-"+created.ID.String(), result.Token)
	require.NotNil(t, result.User)
	assert.Equal(t, "pepe.rone@example.com", result.User.Email)

	require.Len(t, events, 1)
	assert.Equal(t, identity.ActivityEventSocialLogin, events[0].EventType)
	assert.Equal(t, true, events[0].Metadata["is_new_user"])
}

func TestCallbackExistingAccount(t *testing.T) {
	repo := newFakeRepo()
	existing := &identity.User{
		ID:        uuid.New(),
		Email:     "pepe.rone@example.com",
		Username:  "peperone",
		Provider:  "github",
		Confirmed: true,
	}
	repo.users.byEmail["github|pepe.rone@example.com"] = existing

	provider := &fakeProvider{name: "github", profile: githubProfile()}
	sa := social.NewAuthenticator(repo, socialSettings(true), stubIssuer{}, []byte("state-key"),
		social.WithProvider(provider),
		social.WithLogger(testLogger{}),
	)

	redirect, err := sa.Connect(context.Background(), "github")
	require.NoError(t, err)

	result, err := sa.Callback(context.Background(), "github", social.CallbackQuery{
		Code:  "auth-code",
		State: redirect.State,
	})
	require.NoError(t, err)

	assert.Nil(t, repo.users.created, "no second account for a known identity")
	assert.Equal(t, "token-for-"+existing.ID.String(), result.Token)
}

func TestCallbackBlockedAccount(t *testing.T) {
	repo := newFakeRepo()
	repo.users.byEmail["github|pepe.rone@example.com"] = &identity.User{
		ID:        uuid.New(),
		Email:     "pepe.rone@example.com",
		Provider:  "github",
		Confirmed: true,
		Blocked:   true,
	}

	provider := &fakeProvider{name: "github", profile: githubProfile()}
	sa := social.NewAuthenticator(repo, socialSettings(true), stubIssuer{}, []byte("state-key"),
		social.WithProvider(provider),
		social.WithLogger(testLogger{}),
	)

	redirect, err := sa.Connect(context.Background(), "github")
	require.NoError(t, err)

	_, err = sa.Callback(context.Background(), "github", social.CallbackQuery{
		Code:  "auth-code",
		State: redirect.State,
	})
	assert.ErrorIs(t, err, identity.ErrUserBlocked)
}

func TestCallbackProviderDenied(t *testing.T) {
	sa := social.NewAuthenticator(newFakeRepo(), socialSettings(true), stubIssuer{}, []byte("state-key"),
		social.WithProvider(&fakeProvider{name: "github"}),
	)

	_, err := sa.Callback(context.Background(), "github", social.CallbackQuery{
		ErrorCode:        "access_denied",
		ErrorDescription: "The user has denied your application access.",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, social.ErrCallbackRejected)
}

func TestCallbackStateChecks(t *testing.T) {
	provider := &fakeProvider{name: "github", profile: githubProfile()}
	sa := social.NewAuthenticator(newFakeRepo(), socialSettings(true), stubIssuer{}, []byte("state-key"),
		social.WithProvider(provider),
		social.WithLogger(testLogger{}),
	)

	t.Run("garbage state", func(t *testing.T) {
		_, err := sa.Callback(context.Background(), "github", social.CallbackQuery{
			Code:  "auth-code",
			State: "garbage",
		})
		assert.ErrorIs(t, err, social.ErrInvalidState)
	})

	t.Run("state bound to another provider", func(t *testing.T) {
		other, err := social.NewSignedStateManager([]byte("state-key"), 10*time.Minute).
			Encode(&social.State{Provider: "google"})
		require.NoError(t, err)

		_, err = sa.Callback(context.Background(), "github", social.CallbackQuery{
			Code:  "auth-code",
			State: other,
		})
		assert.ErrorIs(t, err, social.ErrInvalidState)
	})
}

func TestCallbackExchangeFailure(t *testing.T) {
	provider := &fakeProvider{
		name:        "github",
		exchangeErr: errors.New("temporarily unavailable"),
	}
	sa := social.NewAuthenticator(newFakeRepo(), socialSettings(true), stubIssuer{}, []byte("state-key"),
		social.WithProvider(provider),
		social.WithLogger(testLogger{}),
	)

	redirect, err := sa.Connect(context.Background(), "github")
	require.NoError(t, err)

	_, err = sa.Callback(context.Background(), "github", social.CallbackQuery{
		Code:  "auth-code",
		State: redirect.State,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, social.ErrTokenExchangeFailed)
	assert.True(t, strings.Contains(err.Error(), "exchange") || strings.Contains(err.Error(), "token"))
}

func TestCallbackMissingEmail(t *testing.T) {
	profile := githubProfile()
	profile.Email = ""

	provider := &fakeProvider{name: "github", profile: profile}
	sa := social.NewAuthenticator(newFakeRepo(), socialSettings(true), stubIssuer{}, []byte("state-key"),
		social.WithProvider(provider),
		social.WithLogger(testLogger{}),
	)

	redirect, err := sa.Connect(context.Background(), "github")
	require.NoError(t, err)

	_, err = sa.Callback(context.Background(), "github", social.CallbackQuery{
		Code:  "auth-code",
		State: redirect.State,
	})
	assert.ErrorIs(t, err, social.ErrEmailMissing)
}

func TestCallbackUnverifiedEmail(t *testing.T) {
	profile := githubProfile()
	profile.EmailVerified = false

	provider := &fakeProvider{name: "github", profile: profile}
	repo := newFakeRepo()
	sa := social.NewAuthenticator(repo, socialSettings(true), stubIssuer{}, []byte("state-key"),
		social.WithProvider(provider),
		social.WithRequireVerifiedEmail(),
		social.WithLogger(testLogger{}),
	)

	redirect, err := sa.Connect(context.Background(), "github")
	require.NoError(t, err)

	_, err = sa.Callback(context.Background(), "github", social.CallbackQuery{
		Code:  "auth-code",
		State: redirect.State,
	})
	assert.ErrorIs(t, err, social.ErrEmailUnverified)
	assert.Nil(t, repo.users.created, "no account may be created for an unverified address")
}

func TestCallbackUnverifiedEmailAllowedByDefault(t *testing.T) {
	profile := githubProfile()
	profile.EmailVerified = false

	provider := &fakeProvider{name: "github", profile: profile}
	sa := social.NewAuthenticator(newFakeRepo(), socialSettings(true), stubIssuer{}, []byte("state-key"),
		social.WithProvider(provider),
		social.WithLogger(testLogger{}),
	)

	redirect, err := sa.Connect(context.Background(), "github")
	require.NoError(t, err)

	result, err := sa.Callback(context.Background(), "github", social.CallbackQuery{
		Code:  "auth-code",
		State: redirect.State,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
}
