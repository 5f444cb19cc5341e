package handlers

import (
	"database/sql"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"eventos-backend/models"
)

// CheckinHandler flips approved assistants to Confirmado when they present
// their access key at the door.
type CheckinHandler struct {
	db *sql.DB
}

func NewCheckinHandler(db *sql.DB) *CheckinHandler {
	return &CheckinHandler{db: db}
}

// CheckIn validates an access key scanned at the event entrance. The key can
// arrive bare or as the full QR payload (enrollment-id|event-id|key); only
// the owning administrator may operate the door.
func (h *CheckinHandler) CheckIn(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}

	var req struct {
		AccessKey string `json:"access_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key := req.AccessKey
	if parts := strings.Split(key, "|"); len(parts) == 3 {
		key = parts[2]
	}

	var event models.Event
	err := h.db.QueryRow("SELECT id, admin_id FROM events WHERE id = $1", eventID).
		Scan(&event.ID, &event.AdminID)
	if err == sql.ErrNoRows {
		c.JSON(models.StatusFor(models.ErrUnknownEvent), gin.H{"error": models.ErrUnknownEvent.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if !isOwnerOrSuper(c, event) {
		c.JSON(models.StatusFor(models.ErrNotOwner), gin.H{"error": models.ErrNotOwner.Error()})
		return
	}

	var enrollment models.Enrollment
	err = h.db.QueryRow(`
		SELECT id, user_id, track, state FROM enrollments
		WHERE event_id = $1 AND access_key = $2`,
		eventID, key,
	).Scan(&enrollment.ID, &enrollment.UserID, &enrollment.Track, &enrollment.State)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown access key for this event"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if enrollment.State == models.StateConfirmado {
		c.JSON(http.StatusConflict, gin.H{"error": "Already checked in"})
		return
	}
	if enrollment.Track != models.TrackAssistant || enrollment.State != models.StateAprobado {
		c.JSON(models.StatusFor(models.ErrIllegalTransition), gin.H{"error": models.ErrIllegalTransition.Error()})
		return
	}

	res, err := h.db.Exec(
		"UPDATE enrollments SET state = $1 WHERE id = $2 AND state = $3",
		models.StateConfirmado, enrollment.ID, models.StateAprobado,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		c.JSON(models.StatusFor(models.ErrIllegalTransition), gin.H{"error": models.ErrIllegalTransition.Error()})
		return
	}

	log.Printf("check-in: enrollment=%s event=%d", enrollment.ID, eventID)
	c.JSON(http.StatusOK, gin.H{
		"enrollment_id": enrollment.ID,
		"state":         models.StateConfirmado,
	})
}

// GetCheckins lists the event's confirmed assistants for the door operator.
func (h *CheckinHandler) GetCheckins(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}

	var event models.Event
	err := h.db.QueryRow("SELECT id, admin_id FROM events WHERE id = $1", eventID).
		Scan(&event.ID, &event.AdminID)
	if err == sql.ErrNoRows {
		c.JSON(models.StatusFor(models.ErrUnknownEvent), gin.H{"error": models.ErrUnknownEvent.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if !isOwnerOrSuper(c, event) {
		c.JSON(models.StatusFor(models.ErrNotOwner), gin.H{"error": models.ErrNotOwner.Error()})
		return
	}

	rows, err := h.db.Query(`
		SELECT e.id, u.name, u.email, e.created_at
		FROM enrollments e
		JOIN users u ON u.id = e.user_id
		WHERE e.event_id = $1 AND e.state = $2
		ORDER BY u.name`,
		eventID, models.StateConfirmado,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	defer rows.Close()

	type checkinRow struct {
		EnrollmentID string `json:"enrollment_id"`
		Name         string `json:"name"`
		Email        string `json:"email"`
		EnrolledAt   string `json:"enrolled_at"`
	}
	checkins := []checkinRow{}
	for rows.Next() {
		var row checkinRow
		var enrolledAt sql.NullTime
		if err := rows.Scan(&row.EnrollmentID, &row.Name, &row.Email, &enrolledAt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan check-in"})
			return
		}
		if enrolledAt.Valid {
			row.EnrolledAt = enrolledAt.Time.Format("2006-01-02 15:04")
		}
		checkins = append(checkins, row)
	}

	c.JSON(http.StatusOK, gin.H{"checkins": checkins, "count": len(checkins)})
}
