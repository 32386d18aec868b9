package identity_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bugloop/identity"
)

func TestInitializePasswordResetSuccess(t *testing.T) {
	users, _, _, _, repo := registerFixtures()

	user := &identity.User{
		ID:       uuid.New(),
		Email:    "pepe.rone@example.com",
		Username: "peperone",
		Provider: identity.ProviderLocal,
	}

	users.On("FindByEmail", mock.Anything, "", "pepe.rone@example.com").
		Return(user, nil)

	var storedToken string
	users.On("SetResetToken", mock.Anything, user.ID, mock.AnythingOfType("string")).
		Return(nil).
		Run(func(args mock.Arguments) {
			storedToken = args.Get(2).(string)
		})

	mailer := &capturingMailer{}
	sink := &capturingSink{}

	var response *identity.InitializePasswordResetResponse
	err := identity.NewInitializePasswordResetHandler(repo, settingsWith(nil)).
		WithMailer(mailer).
		WithActivitySink(sink).
		WithLogger(testLogger{}).
		Execute(context.Background(), identity.InitializePasswordResetMessage{
			Email:      "Pepe.Rone@Example.com",
			OnResponse: func(resp *identity.InitializePasswordResetResponse) { response = resp },
		})
	require.NoError(t, err)

	require.NotNil(t, response)
	assert.True(t, response.Sent)

	require.Len(t, mailer.sent(), 1, "reset delivery is synchronous")
	assert.NotEmpty(t, storedToken)
	assert.Contains(t, mailer.sent()[0].HTML, storedToken,
		"the emailed link carries the persisted token")

	assert.Len(t, sink.byType(identity.ActivityEventPasswordResetInit), 1)
	users.AssertExpectations(t)
}

func TestInitializePasswordResetUnknownEmail(t *testing.T) {
	users, _, _, _, repo := registerFixtures()

	users.On("FindByEmail", mock.Anything, "", "nobody@example.com").
		Return(nil, notFoundErr())

	err := identity.NewInitializePasswordResetHandler(repo, settingsWith(nil)).
		WithLogger(testLogger{}).
		Execute(context.Background(), identity.InitializePasswordResetMessage{
			Email: "nobody@example.com",
		})

	assert.ErrorIs(t, err, identity.ErrEmailNotExist)
	users.AssertNotCalled(t, "SetResetToken", mock.Anything, mock.Anything, mock.Anything)
}

// A token nobody was told about must not exist: when the gateway rejects the
// send, the workflow aborts with no store mutation.
func TestInitializePasswordResetDeliveryFailureIsFailClosed(t *testing.T) {
	users, _, _, _, repo := registerFixtures()

	user := &identity.User{
		ID:    uuid.New(),
		Email: "pepe.rone@example.com",
	}
	users.On("FindByEmail", mock.Anything, "", "pepe.rone@example.com").
		Return(user, nil)

	mailer := &capturingMailer{fail: errors.New("gateway unavailable")}

	err := identity.NewInitializePasswordResetHandler(repo, settingsWith(nil)).
		WithMailer(mailer).
		WithLogger(testLogger{}).
		Execute(context.Background(), identity.InitializePasswordResetMessage{
			Email: "pepe.rone@example.com",
		})

	assert.ErrorIs(t, err, identity.ErrEmailDeliveryFailed)
	users.AssertNotCalled(t, "SetResetToken", mock.Anything, mock.Anything, mock.Anything)
}

func TestInitializePasswordResetValidation(t *testing.T) {
	_, _, _, _, repo := registerFixtures()

	handler := identity.NewInitializePasswordResetHandler(repo, settingsWith(nil)).
		WithLogger(testLogger{})

	err := handler.Execute(context.Background(), identity.InitializePasswordResetMessage{})
	assert.ErrorIs(t, err, identity.ErrEmailRequired)

	err = handler.Execute(context.Background(), identity.InitializePasswordResetMessage{
		Email: "not-an-email",
	})
	assert.ErrorIs(t, err, identity.ErrEmailFormat)
}
