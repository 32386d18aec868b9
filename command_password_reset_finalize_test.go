package identity_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bugloop/identity"
)

func TestFinalizePasswordResetSuccess(t *testing.T) {
	users, _, _, _, repo := registerFixtures()

	user := &identity.User{
		ID:        uuid.New(),
		Email:     "pepe.rone@example.com",
		Username:  "peperone",
		Provider:  identity.ProviderLocal,
		Confirmed: true,
	}

	var storedHash string
	users.On("ConsumeResetToken", mock.Anything, "reset-token", mock.AnythingOfType("string")).
		Return(user, nil).
		Run(func(args mock.Arguments) {
			storedHash = args.Get(2).(string)
		})

	sink := &capturingSink{}

	var response *identity.AuthResult
	err := identity.NewFinalizePasswordResetHandler(repo, stubTokenIssuer{}).
		WithActivitySink(sink).
		WithLogger(testLogger{}).
		Execute(context.Background(), identity.FinalizePasswordResetMessage{
			Code:                 "reset-token",
			Password:             "brand_new_secret",
			PasswordConfirmation: "brand_new_secret",
			OnResponse:           func(resp *identity.AuthResult) { response = resp },
		})
	require.NoError(t, err)

	assert.NoError(t, identity.ComparePasswordAndHash("brand_new_secret", storedHash))

	require.NotNil(t, response)
	assert.Equal(t, "token-for-"+user.ID.String(), response.Token)
	require.NotNil(t, response.User)
	assert.Equal(t, "pepe.rone@example.com", response.User.Email)

	assert.Len(t, sink.byType(identity.ActivityEventPasswordReset), 1)
	users.AssertNumberOfCalls(t, "ConsumeResetToken", 1)
}

func TestFinalizePasswordResetValidation(t *testing.T) {
	_, _, _, _, repo := registerFixtures()

	handler := identity.NewFinalizePasswordResetHandler(repo, stubTokenIssuer{}).
		WithLogger(testLogger{})

	tests := []struct {
		name     string
		message  identity.FinalizePasswordResetMessage
		expected error
	}{
		{
			name: "missing code",
			message: identity.FinalizePasswordResetMessage{
				Password:             "brand_new_secret",
				PasswordConfirmation: "brand_new_secret",
			},
			expected: identity.ErrIncorrectParams,
		},
		{
			name: "missing password",
			message: identity.FinalizePasswordResetMessage{
				Code:                 "reset-token",
				PasswordConfirmation: "brand_new_secret",
			},
			expected: identity.ErrIncorrectParams,
		},
		{
			name: "missing confirmation",
			message: identity.FinalizePasswordResetMessage{
				Code:     "reset-token",
				Password: "brand_new_secret",
			},
			expected: identity.ErrIncorrectParams,
		},
		{
			name: "mismatched passwords",
			message: identity.FinalizePasswordResetMessage{
				Code:                 "reset-token",
				Password:             "brand_new_secret",
				PasswordConfirmation: "different_secret",
			},
			expected: identity.ErrPasswordsNoMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handler.Execute(context.Background(), tt.message)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestFinalizePasswordResetIncorrectCode(t *testing.T) {
	users, _, _, _, repo := registerFixtures()

	users.On("ConsumeResetToken", mock.Anything, "already-used", mock.Anything).
		Return(nil, notFoundErr())

	err := identity.NewFinalizePasswordResetHandler(repo, stubTokenIssuer{}).
		WithLogger(testLogger{}).
		Execute(context.Background(), identity.FinalizePasswordResetMessage{
			Code:                 "already-used",
			Password:             "brand_new_secret",
			PasswordConfirmation: "brand_new_secret",
		})

	assert.ErrorIs(t, err, identity.ErrIncorrectCode)
}
