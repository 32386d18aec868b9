package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProviderLocal identifies accounts that authenticate with a stored password
// hash. Every other provider value names the federated identity provider the
// account was created through.
const ProviderLocal = "local"

// User is the identity record. One-time secrets (reset token, confirmation
// token, invitation code) live on the row and are consumed via conditional
// updates so a secret can authorize exactly one state change.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID           uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email        string    `bun:"email,notnull,unique" json:"email,omitempty"`
	Username     string    `bun:"username,notnull,unique" json:"username,omitempty"`
	FirstName    string    `bun:"first_name" json:"first_name,omitempty"`
	LastName     string    `bun:"last_name" json:"last_name,omitempty"`
	PasswordHash string    `bun:"password_hash,nullzero" json:"password_hash,omitempty"`
	Provider     string    `bun:"provider,notnull,default:'local'" json:"provider,omitempty"`

	Confirmed bool `bun:"confirmed" json:"confirmed"`
	Blocked   bool `bun:"blocked" json:"blocked"`

	RoleID uuid.UUID `bun:"role_id,nullzero,type:uuid" json:"role_id,omitempty"`
	Role   *Role     `bun:"rel:belongs-to,join:role_id=id" json:"role,omitempty"`

	CompanyID uuid.UUID `bun:"company_id,nullzero,type:uuid" json:"company_id,omitempty"`
	Company   *Company  `bun:"rel:belongs-to,join:company_id=id" json:"company,omitempty"`

	ResetPasswordToken string `bun:"reset_password_token,nullzero" json:"reset_password_token,omitempty"`
	ConfirmationToken  string `bun:"confirmation_token,nullzero" json:"confirmation_token,omitempty"`
	InvitationCode     string `bun:"invitation_code,nullzero" json:"invitation_code,omitempty"`

	EmailNotifications bool `bun:"email_notifications,default:true" json:"email_notifications"`
	WeeklyDigest       bool `bun:"weekly_digest" json:"weekly_digest"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// IsLocal reports whether the account authenticates with a local password.
func (u *User) IsLocal() bool {
	return u.Provider == "" || u.Provider == ProviderLocal
}

// Role is an authorization tier assigned to every user at creation. Roles are
// immutable from this package's perspective; an external admin surface owns
// their CRUD.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rl"`

	ID          uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name        string    `bun:"name,notnull" json:"name,omitempty"`
	Type        string    `bun:"type,notnull,unique" json:"type,omitempty"`
	Description string    `bun:"description" json:"description,omitempty"`
}

// Company is the tenant boundary. Users belong to exactly one company and an
// invitation binds the invited placeholder account to the inviter's company.
type Company struct {
	bun.BaseModel `bun:"table:companies,alias:cmp"`

	ID             uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name           string        `bun:"name,notnull" json:"name,omitempty"`
	SubscriptionID uuid.UUID     `bun:"subscription_id,nullzero,type:uuid" json:"subscription_id,omitempty"`
	Subscription   *Subscription `bun:"rel:belongs-to,join:subscription_id=id" json:"subscription,omitempty"`
	CreatedAt      *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time    `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// SubscriptionBeta is the default plan bound to a self-registered company.
const SubscriptionBeta = "beta"

// Subscription is the billing plan attached to a company.
type Subscription struct {
	bun.BaseModel `bun:"table:subscriptions,alias:sub"`

	ID        uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Type      string     `bun:"type,notnull" json:"type,omitempty"`
	Active    bool       `bun:"active" json:"active"`
	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
