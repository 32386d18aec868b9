package identity

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/caarlos0/env/v11"

	goerrors "github.com/goliatone/go-errors"
)

// ProviderSettings configures one login provider.
type ProviderSettings struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
	// Callback is the frontend URL the provider redirect lands on.
	Callback string
	// RedirectURI overrides the computed redirect, when the provider console
	// was registered with a fixed URI.
	RedirectURI string
}

// Settings is the immutable per-request view of the administrative switches
// every workflow consults. Resolve returns a value copy; mutating it never
// affects other requests.
type Settings struct {
	AllowRegister     bool
	EmailConfirmation bool
	UniqueEmail       bool
	DefaultRole       string

	// ServerURL is this service's own absolute base URL; federated connect
	// refuses to hand out redirects when it is not absolute.
	ServerURL string
	// AppURL is the user-facing frontend links in emails point at.
	AppURL string

	// ProductName and SupportEmail brand the transactional emails.
	ProductName  string
	SupportEmail string

	EmailFrom                 string
	EmailConfirmationRedirect string

	Providers map[string]ProviderSettings
}

// ConfirmationURL builds the link an email-confirmation token is redeemed at.
func (s Settings) ConfirmationURL(token string) string {
	return s.ServerURL + "/auth/email-confirmation?confirmation=" + token
}

// Provider returns the configuration for the named provider. Unknown
// providers come back disabled.
func (s Settings) Provider(name string) ProviderSettings {
	if s.Providers == nil {
		return ProviderSettings{}
	}
	return s.Providers[strings.ToLower(name)]
}

// SettingsResolver yields the settings snapshot a request should run under.
type SettingsResolver interface {
	Resolve(ctx context.Context) Settings
}

// SettingsResolverFunc adapts a function to SettingsResolver.
type SettingsResolverFunc func(ctx context.Context) Settings

// Resolve implements SettingsResolver.
func (f SettingsResolverFunc) Resolve(ctx context.Context) Settings {
	if f == nil {
		return Settings{}
	}
	return f(ctx)
}

// SettingsStore is a process-wide reloadable settings holder. Reload swaps
// the snapshot atomically; in-flight requests keep the view they resolved.
type SettingsStore struct {
	current atomic.Pointer[Settings]
}

// NewSettingsStore returns a store seeded with the given settings.
func NewSettingsStore(settings Settings) *SettingsStore {
	s := &SettingsStore{}
	s.Reload(settings)
	return s
}

// Reload replaces the current snapshot.
func (s *SettingsStore) Reload(settings Settings) {
	s.current.Store(&settings)
}

// Resolve implements SettingsResolver.
func (s *SettingsStore) Resolve(context.Context) Settings {
	if snapshot := s.current.Load(); snapshot != nil {
		return *snapshot
	}
	return Settings{}
}

type settingsEnv struct {
	AllowRegister     bool   `env:"IDENTITY_ALLOW_REGISTER" envDefault:"true"`
	EmailConfirmation bool   `env:"IDENTITY_EMAIL_CONFIRMATION"`
	UniqueEmail       bool   `env:"IDENTITY_UNIQUE_EMAIL" envDefault:"true"`
	DefaultRole       string `env:"IDENTITY_DEFAULT_ROLE" envDefault:"authenticated"`

	ServerURL string `env:"IDENTITY_SERVER_URL"`
	AppURL    string `env:"IDENTITY_APP_URL"`

	ProductName  string `env:"IDENTITY_PRODUCT_NAME" envDefault:"Bugloop"`
	SupportEmail string `env:"IDENTITY_SUPPORT_EMAIL"`

	EmailFrom                 string `env:"IDENTITY_EMAIL_FROM"`
	EmailConfirmationRedirect string `env:"IDENTITY_EMAIL_CONFIRMATION_REDIRECT" envDefault:"/"`

	LocalEnabled bool `env:"IDENTITY_PROVIDER_LOCAL_ENABLED" envDefault:"true"`

	GitHubEnabled      bool   `env:"IDENTITY_PROVIDER_GITHUB_ENABLED"`
	GitHubClientID     string `env:"IDENTITY_PROVIDER_GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"IDENTITY_PROVIDER_GITHUB_CLIENT_SECRET"`
	GitHubCallback     string `env:"IDENTITY_PROVIDER_GITHUB_CALLBACK"`
	GitHubRedirectURI  string `env:"IDENTITY_PROVIDER_GITHUB_REDIRECT_URI"`

	GoogleEnabled      bool   `env:"IDENTITY_PROVIDER_GOOGLE_ENABLED"`
	GoogleClientID     string `env:"IDENTITY_PROVIDER_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"IDENTITY_PROVIDER_GOOGLE_CLIENT_SECRET"`
	GoogleCallback     string `env:"IDENTITY_PROVIDER_GOOGLE_CALLBACK"`
	GoogleRedirectURI  string `env:"IDENTITY_PROVIDER_GOOGLE_REDIRECT_URI"`
}

// SettingsFromEnv loads settings from environment variables.
func SettingsFromEnv() (Settings, error) {
	var raw settingsEnv
	if err := env.Parse(&raw); err != nil {
		return Settings{}, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to parse identity settings from environment")
	}

	return Settings{
		AllowRegister:             raw.AllowRegister,
		EmailConfirmation:         raw.EmailConfirmation,
		UniqueEmail:               raw.UniqueEmail,
		DefaultRole:               raw.DefaultRole,
		ServerURL:                 raw.ServerURL,
		AppURL:                    raw.AppURL,
		ProductName:               raw.ProductName,
		SupportEmail:              raw.SupportEmail,
		EmailFrom:                 raw.EmailFrom,
		EmailConfirmationRedirect: raw.EmailConfirmationRedirect,
		Providers: map[string]ProviderSettings{
			ProviderLocal: {
				Enabled: raw.LocalEnabled,
			},
			"github": {
				Enabled:      raw.GitHubEnabled,
				ClientID:     raw.GitHubClientID,
				ClientSecret: raw.GitHubClientSecret,
				Callback:     raw.GitHubCallback,
				RedirectURI:  raw.GitHubRedirectURI,
			},
			"google": {
				Enabled:      raw.GoogleEnabled,
				ClientID:     raw.GoogleClientID,
				ClientSecret: raw.GoogleClientSecret,
				Callback:     raw.GoogleCallback,
				RedirectURI:  raw.GoogleRedirectURI,
			},
		},
	}, nil
}
