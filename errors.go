package identity

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Error identifiers are stable, machine-readable text codes. Clients key
// translations and retry behavior off the TextCode, never the message.
const (
	TextCodeIdentifierRequired   = "Auth.form.error.email.provide"
	TextCodePasswordRequired     = "Auth.form.error.password.provide"
	TextCodeInvalidCredentials   = "Auth.form.error.invalid"
	TextCodeEmailNotConfirmed    = "Auth.form.error.confirmed"
	TextCodeUserBlocked          = "Auth.form.error.blocked"
	TextCodeNoLocalPassword      = "Auth.form.error.password.local"
	TextCodeRegistrationDisabled = "Auth.advanced.allow_register"
	TextCodePasswordFormat       = "Auth.form.error.password.format"
	TextCodeEmailFormat          = "Auth.form.error.email.format"
	TextCodeRoleNotFound         = "Auth.form.error.role.notFound"
	TextCodeEmailTaken           = "Auth.form.error.email.taken"
	TextCodeUsernameTaken        = "Auth.form.error.username.taken"
	TextCodeEmailNotExist        = "Auth.form.error.user.not-exist"
	TextCodePasswordsNoMatch     = "Auth.form.error.password.matching"
	TextCodeIncorrectCode        = "Auth.form.error.code.provide"
	TextCodeIncorrectParams      = "Auth.form.error.params.provide"
	TextCodeProviderDisabled     = "provider.disabled"
	TextCodeInvalidToken         = "token.invalid"
	TextCodeAlreadyConfirmed     = "already.confirmed"
	TextCodeBlockedUser          = "blocked.user"
	TextCodeMissingInvitation    = "missing.invitation.code"
	TextCodeWrongInvitation      = "wrong.invitation.code"
	TextCodeEmailDeliveryFailed  = "email.delivery.failed"
	TextCodeNotAllowed           = "actor.not.allowed"
)

// ErrIdentifierRequired is returned when a login carries no identifier.
var ErrIdentifierRequired = goerrors.New("please provide your username or your e-mail", goerrors.CategoryValidation).
	WithTextCode(TextCodeIdentifierRequired).
	WithCode(goerrors.CodeBadRequest)

// ErrPasswordRequired is returned when a workflow requires a password field.
var ErrPasswordRequired = goerrors.New("please provide your password", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordRequired).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidCredentials deliberately collapses "no such user" and "wrong
// password" so a caller cannot enumerate accounts.
var ErrInvalidCredentials = goerrors.New("identifier or password invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailNotConfirmed rejects logins while the confirmation policy gate is
// unsatisfied.
var ErrEmailNotConfirmed = goerrors.New("your account email is not confirmed", goerrors.CategoryAuth).
	WithTextCode(TextCodeEmailNotConfirmed).
	WithCode(goerrors.CodeForbidden)

// ErrUserBlocked rejects logins for administratively blocked accounts.
var ErrUserBlocked = goerrors.New("your account has been blocked by an administrator", goerrors.CategoryAuth).
	WithTextCode(TextCodeUserBlocked).
	WithCode(goerrors.CodeForbidden)

// ErrNoLocalPassword is returned when a provider-only account attempts a
// local credential login.
var ErrNoLocalPassword = goerrors.New("this user never set a local password, please login with the provider used during account creation", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoLocalPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrRegistrationDisabled is returned while self-registration is switched off.
var ErrRegistrationDisabled = goerrors.New("register action is currently disabled", goerrors.CategoryOperation).
	WithTextCode(TextCodeRegistrationDisabled).
	WithCode(goerrors.CodeForbidden)

// ErrProviderDisabled is returned when the requested login provider is
// administratively disabled.
var ErrProviderDisabled = goerrors.New("this provider is disabled", goerrors.CategoryOperation).
	WithTextCode(TextCodeProviderDisabled).
	WithCode(goerrors.CodeBadRequest)

// ErrPasswordFormat guards against passwords that already look like bcrypt
// digests being hashed a second time.
var ErrPasswordFormat = goerrors.New("your password cannot contain more than three times the symbol `$`", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordFormat).
	WithCode(goerrors.CodeBadRequest)

// ErrEmailRequired is returned when a workflow requires an email field.
var ErrEmailRequired = goerrors.New("please provide your email", goerrors.CategoryValidation).
	WithTextCode(TextCodeIdentifierRequired).
	WithCode(goerrors.CodeBadRequest)

// ErrEmailFormat is returned for syntactically invalid email addresses.
var ErrEmailFormat = goerrors.New("please provide valid email address", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmailFormat).
	WithCode(goerrors.CodeBadRequest)

// ErrRoleNotFound is returned when neither the requested nor the default role
// resolves.
var ErrRoleNotFound = goerrors.New("impossible to find the default role", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRoleNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrEmailTaken is the collapsed conflict error for email collisions.
var ErrEmailTaken = goerrors.New("email is already taken", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(goerrors.CodeConflict)

// ErrUsernameTaken is the collapsed conflict error for username collisions.
var ErrUsernameTaken = goerrors.New("username already taken", goerrors.CategoryConflict).
	WithTextCode(TextCodeUsernameTaken).
	WithCode(goerrors.CodeConflict)

// ErrEmailNotExist is returned by password-reset initiation for unknown
// addresses. This leaks account existence; the behavior is preserved from the
// original system rather than silently masked.
var ErrEmailNotExist = goerrors.New("this email does not exist", goerrors.CategoryNotFound).
	WithTextCode(TextCodeEmailNotExist).
	WithCode(goerrors.CodeNotFound)

// ErrPasswordsNoMatch is returned when password and confirmation differ.
var ErrPasswordsNoMatch = goerrors.New("passwords do not match", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordsNoMatch).
	WithCode(goerrors.CodeBadRequest)

// ErrIncorrectCode is returned for reset tokens that match no account.
var ErrIncorrectCode = goerrors.New("incorrect code provided", goerrors.CategoryNotFound).
	WithTextCode(TextCodeIncorrectCode).
	WithCode(goerrors.CodeBadRequest)

// ErrIncorrectParams is returned when a reset completion is missing fields.
var ErrIncorrectParams = goerrors.New("incorrect params provided", goerrors.CategoryValidation).
	WithTextCode(TextCodeIncorrectParams).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidToken is returned for empty or unmatched confirmation tokens.
var ErrInvalidToken = goerrors.New("invalid token", goerrors.CategoryNotFound).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeBadRequest)

// ErrAlreadyConfirmed rejects confirmation sends for confirmed accounts.
var ErrAlreadyConfirmed = goerrors.New("email already confirmed", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyConfirmed).
	WithCode(goerrors.CodeBadRequest)

// ErrBlockedUser rejects confirmation sends for blocked accounts.
var ErrBlockedUser = goerrors.New("user is blocked", goerrors.CategoryAuth).
	WithTextCode(TextCodeBlockedUser).
	WithCode(goerrors.CodeForbidden)

// ErrMissingInvitationCode is returned when acceptance carries no code.
var ErrMissingInvitationCode = goerrors.New("missing invitation code", goerrors.CategoryValidation).
	WithTextCode(TextCodeMissingInvitation).
	WithCode(goerrors.CodeBadRequest)

// ErrWrongInvitationCode is returned when no account matches the code.
var ErrWrongInvitationCode = goerrors.New("wrong invitation code", goerrors.CategoryNotFound).
	WithTextCode(TextCodeWrongInvitation).
	WithCode(goerrors.CodeBadRequest)

// ErrEmailDeliveryFailed wraps a gateway failure on the fail-closed
// password-reset initiation path.
var ErrEmailDeliveryFailed = goerrors.New("could not deliver email", goerrors.CategoryOperation).
	WithTextCode(TextCodeEmailDeliveryFailed).
	WithCode(goerrors.CodeInternal)

// ErrActorNotAllowed rejects invitation requests from non-admin actors.
var ErrActorNotAllowed = goerrors.New("actor is not allowed to invite users", goerrors.CategoryAuthz).
	WithTextCode(TextCodeNotAllowed).
	WithCode(goerrors.CodeForbidden)

// ErrMismatchedHashAndPassword is the hasher's generic comparison failure.
var ErrMismatchedHashAndPassword = goerrors.New("hash and password mismatch", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = goerrors.New("refusing to hash an empty string", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenExpired is returned for session tokens past their expiry claim.
var ErrTokenExpired = goerrors.New("session token is expired", goerrors.CategoryAuth).
	WithTextCode("TOKEN_EXPIRED").
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned for tokens that fail parsing or signature
// verification.
var ErrTokenMalformed = goerrors.New("session token is malformed", goerrors.CategoryAuth).
	WithTextCode("TOKEN_MALFORMED").
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionUserGone is returned when a verified session token references an
// account that no longer exists.
var ErrSessionUserGone = goerrors.New("session user no longer exists", goerrors.CategoryAuth).
	WithTextCode("SESSION_USER_GONE").
	WithCode(goerrors.CodeUnauthorized)

// IsConflict reports whether err is one of the collapsed conflict errors.
func IsConflict(err error) bool {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.Category == goerrors.CategoryConflict
	}
	return false
}

// IsUniqueViolation reports whether err looks like a store uniqueness
// constraint rejection. Drivers word these differently; matching on the
// message is the portable option.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

// TranslateWriteConflict maps an identity-store write rejection onto the same
// conflict shape the pre-write checks produce. The store is the source of
// truth for uniqueness; the check-then-create pass is best effort only. The
// store reports which constraint tripped in its message, and only a username
// collision is allowed to surface as such.
func TranslateWriteConflict(err error) error {
	if err == nil {
		return nil
	}

	if strings.Contains(strings.ToLower(err.Error()), "username") {
		return ErrUsernameTaken
	}

	return ErrEmailTaken
}
