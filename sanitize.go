package identity

import (
	"time"

	"github.com/google/uuid"
)

// SanitizedUser is the projection returned to callers. The password hash and
// every one-time secret are stripped; leaking a live reset token in a login
// response would hand out an account takeover.
type SanitizedUser struct {
	ID                 uuid.UUID  `json:"id"`
	Email              string     `json:"email"`
	Username           string     `json:"username"`
	FirstName          string     `json:"first_name,omitempty"`
	LastName           string     `json:"last_name,omitempty"`
	Provider           string     `json:"provider"`
	Confirmed          bool       `json:"confirmed"`
	Blocked            bool       `json:"blocked"`
	RoleID             uuid.UUID  `json:"role_id,omitempty"`
	Role               *Role      `json:"role,omitempty"`
	CompanyID          uuid.UUID  `json:"company_id,omitempty"`
	Company            *Company   `json:"company,omitempty"`
	EmailNotifications bool       `json:"email_notifications"`
	WeeklyDigest       bool       `json:"weekly_digest"`
	CreatedAt          *time.Time `json:"created_at,omitempty"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}

// Sanitize strips credentials and one-time secrets from a user record.
func Sanitize(u *User) *SanitizedUser {
	if u == nil {
		return nil
	}

	return &SanitizedUser{
		ID:                 u.ID,
		Email:              u.Email,
		Username:           u.Username,
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		Provider:           u.Provider,
		Confirmed:          u.Confirmed,
		Blocked:            u.Blocked,
		RoleID:             u.RoleID,
		Role:               u.Role,
		CompanyID:          u.CompanyID,
		Company:            u.Company,
		EmailNotifications: u.EmailNotifications,
		WeeklyDigest:       u.WeeklyDigest,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}
