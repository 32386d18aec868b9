package identity

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// LifecycleState is the explicit account state that the persisted
// confirmed/blocked flags and one-time secrets encode jointly. Deriving it in
// one place keeps illegal flag combinations from leaking into workflow logic.
type LifecycleState string

const (
	// LifecyclePendingInvitation marks a placeholder account that was invited
	// into a company and has not yet set a password.
	LifecyclePendingInvitation LifecycleState = "pending_invitation"
	// LifecyclePendingConfirmation marks an account waiting on the email
	// confirmation token under an email-confirmation policy.
	LifecyclePendingConfirmation LifecycleState = "pending_confirmation"
	// LifecycleActive marks an account that may authenticate.
	LifecycleActive LifecycleState = "active"
	// LifecycleBlocked marks an account an administrator shut out.
	LifecycleBlocked LifecycleState = "blocked"
)

// ErrInvalidLifecycleTransition is returned when a workflow attempts a state
// change the lifecycle graph does not allow.
var ErrInvalidLifecycleTransition = goerrors.New("invalid account lifecycle transition", goerrors.CategoryConflict).
	WithTextCode("INVALID_LIFECYCLE_TRANSITION").
	WithCode(goerrors.CodeConflict)

func invalidTransition(meta map[string]any) error {
	clone := ErrInvalidLifecycleTransition.Clone()
	if clone == nil {
		return ErrInvalidLifecycleTransition
	}
	clone.Source = ErrInvalidLifecycleTransition
	return clone.WithMetadata(meta)
}

// Lifecycle derives the tagged state from the persisted flags.
func Lifecycle(u *User) LifecycleState {
	switch {
	case u == nil:
		return LifecycleBlocked
	case u.Blocked && u.InvitationCode != "":
		return LifecyclePendingInvitation
	case u.Blocked:
		return LifecycleBlocked
	case !u.Confirmed:
		return LifecyclePendingConfirmation
	default:
		return LifecycleActive
	}
}

// CanAuthenticate reports whether the state permits issuing a session token.
// Only active accounts authenticate; both pending states and blocked accounts
// are rejected before any password comparison happens.
func (s LifecycleState) CanAuthenticate() bool {
	return s == LifecycleActive
}

// BeginInvitation moves an account into the invited placeholder state,
// binding it to a company and attaching the one-time code. It applies to
// fresh records and to existing accounts being merged into a workspace.
func BeginInvitation(u *User, code string, companyID uuid.UUID) error {
	if u == nil || code == "" {
		return invalidTransition(map[string]any{
			"reason": "missing user or invitation code",
		})
	}

	u.Blocked = true
	u.InvitationCode = code
	u.CompanyID = companyID
	return nil
}

// ActivateInvitation consumes the invitation placeholder: the password hash
// lands, the block lifts, and the code clears in the same mutation. Callers
// must persist all three fields in one conditional update.
func ActivateInvitation(u *User, passwordHash string) error {
	if Lifecycle(u) != LifecyclePendingInvitation {
		return invalidTransition(map[string]any{
			"from": string(Lifecycle(u)),
			"to":   string(LifecycleActive),
		})
	}

	u.PasswordHash = passwordHash
	u.Blocked = false
	u.InvitationCode = ""
	return nil
}

// MarkConfirmed consumes the confirmation token and flips the confirmed flag
// as one transition.
func MarkConfirmed(u *User) error {
	state := Lifecycle(u)
	if state != LifecyclePendingConfirmation {
		return invalidTransition(map[string]any{
			"from": string(state),
			"to":   string(LifecycleActive),
		})
	}

	u.Confirmed = true
	u.ConfirmationToken = ""
	return nil
}
