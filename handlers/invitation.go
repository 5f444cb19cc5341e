package handlers

import (
	"database/sql"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"eventos-backend/accesskey"
	"eventos-backend/config"
	"eventos-backend/models"
)

const maxInvitationHorizon = 5 // years

type InvitationHandler struct {
	db  *sql.DB
	cfg *config.Config
	now func() time.Time
}

func NewInvitationHandler(db *sql.DB, cfg *config.Config) *InvitationHandler {
	return &InvitationHandler{
		db:  db,
		cfg: cfg,
		now: time.Now,
	}
}

// Issue creates an invitation token granting a privileged role. Super admin
// only; expiry must be strictly in the future and at most five years out.
func (h *InvitationHandler) Issue(c *gin.Context) {
	if callerRole(c) != models.RoleSuperAdmin {
		c.JSON(models.StatusFor(models.ErrNotSuperAdmin), gin.H{"error": models.ErrNotSuperAdmin.Error()})
		return
	}

	var req models.IssueInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role == models.RoleSuperAdmin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot invite to the super administrator role"})
		return
	}

	expiresOn, err := time.Parse("2006-01-02", req.ExpiresOn)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid expires_on, expected YYYY-MM-DD"})
		return
	}
	now := h.now()
	if !expiresOn.After(now) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expires_on must be in the future"})
		return
	}
	if expiresOn.After(now.AddDate(maxInvitationHorizon, 0, 0)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expires_on is more than five years out"})
		return
	}

	token, err := accesskey.NewToken(h.cfg.InvitationTokenLength)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	usageLimit := req.UsageLimit
	if usageLimit <= 0 {
		usageLimit = 1
	}

	inv := models.AdminInvitation{
		ID:         uuid.New().String(),
		Email:      strings.ToLower(req.Email),
		Token:      token,
		Role:       req.Role,
		ExpiresOn:  expiresOn,
		UsageLimit: usageLimit,
	}
	err = h.db.QueryRow(`
		INSERT INTO invitations (id, email, token, role, expires_on, usage_limit, used)
		VALUES ($1, $2, $3, $4, $5, $6, false)
		RETURNING created_at`,
		inv.ID, inv.Email, inv.Token, inv.Role, inv.ExpiresOn, inv.UsageLimit,
	).Scan(&inv.CreatedAt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create invitation: " + err.Error()})
		return
	}

	log.Printf("invitation issued: id=%s role=%s expires=%s", inv.ID, inv.Role, inv.ExpiresOn.Format("2006-01-02"))
	c.JSON(http.StatusCreated, inv)
}

// Redeem consumes a valid token: marks it used, creates or upgrades the
// account, grants the invited role.
func (h *InvitationHandler) Redeem(c *gin.Context) {
	var req models.RedeemInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	defer tx.Rollback()

	var inv models.AdminInvitation
	err = tx.QueryRow(`
		SELECT id, email, token, role, expires_on, used
		FROM invitations WHERE token = $1
		FOR UPDATE`,
		req.Token,
	).Scan(&inv.ID, &inv.Email, &inv.Token, &inv.Role, &inv.ExpiresOn, &inv.Used)
	if err == sql.ErrNoRows {
		c.JSON(models.StatusFor(models.ErrUnknownToken), gin.H{"error": models.ErrUnknownToken.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if inv.Used {
		c.JSON(models.StatusFor(models.ErrTokenUsed), gin.H{"error": models.ErrTokenUsed.Error()})
		return
	}
	if !inv.ExpiresOn.After(h.now()) {
		c.JSON(models.StatusFor(models.ErrTokenExpired), gin.H{"error": models.ErrTokenExpired.Error()})
		return
	}

	if _, err := tx.Exec("UPDATE invitations SET used = true WHERE id = $1", inv.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	var user models.User
	err = tx.QueryRow("SELECT id FROM users WHERE email = $1 FOR UPDATE", inv.Email).Scan(&user.ID)
	switch {
	case err == sql.ErrNoRows:
		user.ID = uuid.New().String()
		_, err = tx.Exec(`
			INSERT INTO users (id, email, cedula, name, phone, role, password_hash)
			VALUES ($1, $2, $3, $4, '', $5, $6)`,
			user.ID, inv.Email, req.Cedula, req.Name, inv.Role, string(hash))
	case err == nil:
		_, err = tx.Exec(
			"UPDATE users SET role = $1, name = $2, cedula = $3, password_hash = $4 WHERE id = $5",
			inv.Role, req.Name, req.Cedula, string(hash), user.ID)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to grant role: " + err.Error()})
		return
	}
	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	log.Printf("invitation redeemed: id=%s user=%s role=%s", inv.ID, user.ID, inv.Role)
	c.JSON(http.StatusOK, gin.H{"user_id": user.ID, "role": inv.Role})
}

// Revoke burns an unused token. Administrators who already redeemed keep
// their role.
func (h *InvitationHandler) Revoke(c *gin.Context) {
	if callerRole(c) != models.RoleSuperAdmin {
		c.JSON(models.StatusFor(models.ErrNotSuperAdmin), gin.H{"error": models.ErrNotSuperAdmin.Error()})
		return
	}
	token := c.Param("token")

	var req models.RevokeInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(strings.TrimSpace(req.Justification)) < 10 {
		c.JSON(models.StatusFor(models.ErrJustificationTooShort), gin.H{"error": models.ErrJustificationTooShort.Error()})
		return
	}

	res, err := h.db.Exec("UPDATE invitations SET used = true WHERE token = $1", token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		c.JSON(models.StatusFor(models.ErrUnknownToken), gin.H{"error": models.ErrUnknownToken.Error()})
		return
	}

	log.Printf("invitation revoked: token=%s...", token[:4])
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

// List shows every invitation with usage status. Super admin only.
func (h *InvitationHandler) List(c *gin.Context) {
	if callerRole(c) != models.RoleSuperAdmin {
		c.JSON(models.StatusFor(models.ErrNotSuperAdmin), gin.H{"error": models.ErrNotSuperAdmin.Error()})
		return
	}

	rows, err := h.db.Query(`
		SELECT id, email, token, role, expires_on, usage_limit, used, created_at
		FROM invitations ORDER BY created_at DESC`)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	defer rows.Close()

	invitations := []models.AdminInvitation{}
	used := 0
	for rows.Next() {
		var inv models.AdminInvitation
		if err := rows.Scan(&inv.ID, &inv.Email, &inv.Token, &inv.Role,
			&inv.ExpiresOn, &inv.UsageLimit, &inv.Used, &inv.CreatedAt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan invitation"})
			return
		}
		if inv.Used {
			used++
		}
		invitations = append(invitations, inv)
	}

	c.JSON(http.StatusOK, gin.H{
		"invitations": invitations,
		"total":       len(invitations),
		"used":        used,
		"unused":      len(invitations) - used,
	})
}
