package models

import "time"

// AdminInvitation is a single-use access code a super administrator issues to
// promote an account to a privileged role. Once used it is inert.
type AdminInvitation struct {
	ID         string    `json:"id" db:"id"`
	Email      string    `json:"email" db:"email"`
	Token      string    `json:"token" db:"token"`
	Role       string    `json:"role" db:"role"`
	ExpiresOn  time.Time `json:"expires_on" db:"expires_on"`
	UsageLimit int       `json:"usage_limit" db:"usage_limit"`
	Used       bool      `json:"used" db:"used"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type IssueInvitationRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Role       string `json:"role" binding:"required"`
	ExpiresOn  string `json:"expires_on" binding:"required"`
	UsageLimit int    `json:"usage_limit"`
}

type RedeemInvitationRequest struct {
	Token    string `json:"token" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Cedula   string `json:"cedula" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

type RevokeInvitationRequest struct {
	Justification string `json:"justification" binding:"required"`
}
