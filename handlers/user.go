package handlers

import (
	"database/sql"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"eventos-backend/config"
	"eventos-backend/models"
)

type UserHandler struct {
	db  *sql.DB
	cfg *config.Config
}

func NewUserHandler(db *sql.DB, cfg *config.Config) *UserHandler {
	return &UserHandler{
		db:  db,
		cfg: cfg,
	}
}

func (h *UserHandler) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var exists bool
	err := h.db.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE email = $1 OR cedula = $2)",
		strings.ToLower(req.Email), req.Cedula).Scan(&exists)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error: " + err.Error()})
		return
	}
	if exists {
		c.JSON(models.StatusFor(models.ErrDuplicateIdentity), gin.H{"error": models.ErrDuplicateIdentity.Error()})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	query := `
		INSERT INTO users (id, email, cedula, name, phone, role, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, email, cedula, name, phone, role, created_at
	`

	var user models.User
	err = h.db.QueryRow(query,
		uuid.New().String(),
		strings.ToLower(req.Email),
		req.Cedula,
		req.Name,
		req.Phone,
		models.RoleVisitor,
		string(hash),
	).Scan(
		&user.ID,
		&user.Email,
		&user.Cedula,
		&user.Name,
		&user.Phone,
		&user.Role,
		&user.CreatedAt,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user: " + err.Error()})
		return
	}

	token, err := GenerateToken(h.cfg.Secret, user.ID, user.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user, "token": token})
}

func (h *UserHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	err := h.db.QueryRow(
		"SELECT id, email, cedula, name, phone, role, password_hash, created_at FROM users WHERE email = $1",
		strings.ToLower(req.Email),
	).Scan(
		&user.ID,
		&user.Email,
		&user.Cedula,
		&user.Name,
		&user.Phone,
		&user.Role,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := GenerateToken(h.cfg.Secret, user.ID, user.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	log.Printf("login: %s (%s)", user.Email, user.Role)
	c.JSON(http.StatusOK, gin.H{"user": user, "token": token})
}

func (h *UserHandler) GetMe(c *gin.Context) {
	var user models.User
	err := h.db.QueryRow(
		"SELECT id, email, cedula, name, phone, role, created_at FROM users WHERE id = $1",
		callerID(c),
	).Scan(
		&user.ID,
		&user.Email,
		&user.Cedula,
		&user.Name,
		&user.Phone,
		&user.Role,
		&user.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// findOrCreateUser resolves the person behind an enrollment form inside the
// caller's transaction. A brand-new email gets a fresh record with the track
// role; an existing Visitor is upgraded to the track role; higher roles are
// kept as-is, never downgraded.
func findOrCreateUser(tx *sql.Tx, form models.EnrollmentForm, track string) (models.User, error) {
	email := strings.ToLower(form.Email)
	trackRole := models.RoleForTrack(track)

	var user models.User
	err := tx.QueryRow(
		"SELECT id, email, cedula, name, phone, role FROM users WHERE email = $1 FOR UPDATE",
		email,
	).Scan(&user.ID, &user.Email, &user.Cedula, &user.Name, &user.Phone, &user.Role)
	if err == sql.ErrNoRows {
		user = models.User{
			ID:     uuid.New().String(),
			Email:  email,
			Cedula: form.Cedula,
			Name:   form.Name,
			Phone:  form.Phone,
			Role:   trackRole,
		}
		_, err = tx.Exec(
			"INSERT INTO users (id, email, cedula, name, phone, role, password_hash) VALUES ($1, $2, $3, $4, $5, $6, '')",
			user.ID, user.Email, user.Cedula, user.Name, user.Phone, user.Role,
		)
		if err != nil {
			return models.User{}, err
		}
		return user, nil
	}
	if err != nil {
		return models.User{}, err
	}

	if user.Cedula != "" && form.Cedula != "" && user.Cedula != form.Cedula {
		return models.User{}, models.ErrDuplicateIdentity
	}

	if user.Role == models.RoleVisitor {
		if _, err := tx.Exec("UPDATE users SET role = $1 WHERE id = $2", trackRole, user.ID); err != nil {
			return models.User{}, err
		}
		user.Role = trackRole
	}
	return user, nil
}
