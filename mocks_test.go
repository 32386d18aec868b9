package identity_test

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"

	"github.com/bugloop/identity"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// stubRepositoryManager wires mock stores together. RunInTx invokes the
// callback with a zero transaction so handler logic runs against the mocks.
type stubRepositoryManager struct {
	users         identity.Users
	roles         identity.Roles
	companies     identity.Companies
	subscriptions identity.Subscriptions
}

func (s *stubRepositoryManager) Validate() error { return nil }
func (s *stubRepositoryManager) MustValidate()   {}

func (s *stubRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(context.Context, bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (s *stubRepositoryManager) Users() identity.Users                 { return s.users }
func (s *stubRepositoryManager) Roles() identity.Roles                 { return s.roles }
func (s *stubRepositoryManager) Companies() identity.Companies         { return s.companies }
func (s *stubRepositoryManager) Subscriptions() identity.Subscriptions { return s.subscriptions }

// MockUsers implements the store methods the workflows exercise. The
// embedded interface satisfies the full repository contract; calling an
// unprogrammed method panics, which is what a test wants.
type MockUsers struct {
	mock.Mock
	identity.Users
}

func (m *MockUsers) FindByEmail(ctx context.Context, provider, email string) (*identity.User, error) {
	args := m.Called(ctx, provider, email)
	if u, ok := args.Get(0).(*identity.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) FindByUsername(ctx context.Context, provider, username string) (*identity.User, error) {
	args := m.Called(ctx, provider, username)
	if u, ok := args.Get(0).(*identity.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) FindByID(ctx context.Context, id string) (*identity.User, error) {
	args := m.Called(ctx, id)
	if u, ok := args.Get(0).(*identity.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) FindByResetToken(ctx context.Context, token string) (*identity.User, error) {
	args := m.Called(ctx, token)
	if u, ok := args.Get(0).(*identity.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) FindByConfirmationToken(ctx context.Context, token string) (*identity.User, error) {
	args := m.Called(ctx, token)
	if u, ok := args.Get(0).(*identity.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) FindByInvitationCode(ctx context.Context, code string) (*identity.User, error) {
	args := m.Called(ctx, code)
	if u, ok := args.Get(0).(*identity.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

// The write methods echo the input record when no return value is
// programmed, so tests mutate the record in Run and assert on it directly.
func (m *MockUsers) CreateUser(ctx context.Context, record *identity.User) (*identity.User, error) {
	args := m.Called(ctx, record)
	if u, ok := args.Get(0).(*identity.User); ok {
		return u, args.Error(1)
	}
	if args.Error(1) == nil {
		return record, nil
	}
	return nil, args.Error(1)
}

func (m *MockUsers) CreateUserTx(ctx context.Context, tx bun.IDB, record *identity.User) (*identity.User, error) {
	args := m.Called(ctx, tx, record)
	if u, ok := args.Get(0).(*identity.User); ok {
		return u, args.Error(1)
	}
	if args.Error(1) == nil {
		return record, nil
	}
	return nil, args.Error(1)
}

func (m *MockUsers) UpdateUser(ctx context.Context, record *identity.User) (*identity.User, error) {
	args := m.Called(ctx, record)
	if u, ok := args.Get(0).(*identity.User); ok {
		return u, args.Error(1)
	}
	if args.Error(1) == nil {
		return record, nil
	}
	return nil, args.Error(1)
}

func (m *MockUsers) UpdateUserTx(ctx context.Context, tx bun.IDB, record *identity.User) (*identity.User, error) {
	args := m.Called(ctx, tx, record)
	if u, ok := args.Get(0).(*identity.User); ok {
		return u, args.Error(1)
	}
	if args.Error(1) == nil {
		return record, nil
	}
	return nil, args.Error(1)
}

func (m *MockUsers) SetResetToken(ctx context.Context, id uuid.UUID, token string) error {
	args := m.Called(ctx, id, token)
	return args.Error(0)
}

func (m *MockUsers) SetConfirmationToken(ctx context.Context, id uuid.UUID, token string) error {
	args := m.Called(ctx, id, token)
	return args.Error(0)
}

func (m *MockUsers) ConsumeResetToken(ctx context.Context, token, passwordHash string) (*identity.User, error) {
	args := m.Called(ctx, token, passwordHash)
	if u, ok := args.Get(0).(*identity.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) ConsumeConfirmationToken(ctx context.Context, token string) (*identity.User, error) {
	args := m.Called(ctx, token)
	if u, ok := args.Get(0).(*identity.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) ConsumeInvitationCode(ctx context.Context, code, passwordHash string) (*identity.User, error) {
	args := m.Called(ctx, code, passwordHash)
	if u, ok := args.Get(0).(*identity.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockRoles struct {
	mock.Mock
	identity.Roles
}

func (m *MockRoles) FindByID(ctx context.Context, id string) (*identity.Role, error) {
	args := m.Called(ctx, id)
	if r, ok := args.Get(0).(*identity.Role); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRoles) FindByType(ctx context.Context, roleType string) (*identity.Role, error) {
	args := m.Called(ctx, roleType)
	if r, ok := args.Get(0).(*identity.Role); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockCompanies struct {
	mock.Mock
	identity.Companies
}

func (m *MockCompanies) FindByID(ctx context.Context, id uuid.UUID) (*identity.Company, error) {
	args := m.Called(ctx, id)
	if c, ok := args.Get(0).(*identity.Company); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCompanies) CreateTx(ctx context.Context, tx bun.IDB, record *identity.Company, criteria ...repository.InsertCriteria) (*identity.Company, error) {
	args := m.Called(ctx, tx, record)
	if c, ok := args.Get(0).(*identity.Company); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCompanies) AttachSubscriptionTx(ctx context.Context, tx bun.IDB, companyID, subscriptionID uuid.UUID) error {
	args := m.Called(ctx, tx, companyID, subscriptionID)
	return args.Error(0)
}

type MockSubscriptions struct {
	mock.Mock
	identity.Subscriptions
}

func (m *MockSubscriptions) CreateBetaTx(ctx context.Context, tx bun.IDB) (*identity.Subscription, error) {
	args := m.Called(ctx, tx)
	if s, ok := args.Get(0).(*identity.Subscription); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

// capturingSink records activity events for assertions.
type capturingSink struct {
	mu     sync.Mutex
	events []identity.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt identity.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) byType(eventType identity.ActivityEventType) []identity.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []identity.ActivityEvent
	for _, evt := range c.events {
		if evt.EventType == eventType {
			out = append(out, evt)
		}
	}
	return out
}

// capturingMailer records sent messages; Fail forces delivery errors.
type capturingMailer struct {
	mu       sync.Mutex
	messages []identity.Message
	fail     error
}

func (c *capturingMailer) Send(ctx context.Context, msg identity.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail != nil {
		return c.fail
	}

	c.messages = append(c.messages, msg)
	return nil
}

func (c *capturingMailer) sent() []identity.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]identity.Message(nil), c.messages...)
}

// stubTokenIssuer issues predictable tokens.
type stubTokenIssuer struct {
	token string
	err   error
}

func (s stubTokenIssuer) Issue(userID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.token != "" {
		return s.token, nil
	}
	return "token-for-" + userID, nil
}

func (s stubTokenIssuer) Verify(token string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return strings.TrimPrefix(token, "token-for-"), nil
}

func notFoundErr() error {
	return repository.NewRecordNotFound()
}

func settingsWith(mutate func(*identity.Settings)) identity.SettingsResolver {
	settings := identity.Settings{
		AllowRegister:     true,
		EmailConfirmation: false,
		UniqueEmail:       true,
		DefaultRole:       "authenticated",
		ServerURL:         "https://identity.bugloop.dev",
		AppURL:            "https://app.bugloop.dev",
		ProductName:       "Bugloop",
		SupportEmail:      "support@bugloop.dev",
		EmailFrom:         "hello@bugloop.dev",
		Providers: map[string]identity.ProviderSettings{
			identity.ProviderLocal: {Enabled: true},
		},
	}

	if mutate != nil {
		mutate(&settings)
	}

	return identity.NewSettingsStore(settings)
}
