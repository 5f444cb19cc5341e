package models

import "time"

// Role tags. A user carries exactly one; Visitor may be upgraded to a
// participant role on first enrollment, never the other way around.
const (
	RoleAssistant   = "ASISTENTE"
	RoleParticipant = "PARTICIPANTE"
	RoleEvaluator   = "EVALUADOR"
	RoleEventAdmin  = "ADMIN_EVENTO"
	RoleVisitor     = "VISITANTE"
	RoleSuperAdmin  = "SUPERADMIN"
)

type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Cedula       string    `json:"cedula" db:"cedula"`
	Name         string    `json:"name" db:"name"`
	Phone        string    `json:"phone,omitempty" db:"phone"`
	Role         string    `json:"role" db:"role"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Cedula   string `json:"cedula" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// ParticipantRoles are the three enrollment tracks expressed as role tags.
var ParticipantRoles = map[string]bool{
	RoleAssistant:   true,
	RoleParticipant: true,
	RoleEvaluator:   true,
}
