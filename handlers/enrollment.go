package handlers

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"eventos-backend/config"
	"eventos-backend/mailer"
	"eventos-backend/models"
	"eventos-backend/storage"
)

type EnrollmentHandler struct {
	db       *sql.DB
	uploader storage.Uploader
	sender   mailer.Sender
	qr       storage.QRRenderer
	cfg      *config.Config
}

func NewEnrollmentHandler(db *sql.DB, uploader storage.Uploader, sender mailer.Sender, qr storage.QRRenderer, cfg *config.Config) *EnrollmentHandler {
	return &EnrollmentHandler{
		db:       db,
		uploader: uploader,
		sender:   sender,
		qr:       qr,
		cfg:      cfg,
	}
}

// Enroll creates an enrollment on one of the three tracks. User resolution,
// uniqueness checks, capacity decrement, row insert and the assistant
// auto-approval all run in one transaction.
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	track, ok := models.TrackFromPath(c.Param("track"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown enrollment track"})
		return
	}

	var form models.EnrollmentForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	defer tx.Rollback()

	var event models.Event
	err = tx.QueryRow(
		"SELECT id, name, has_cost, state, admin_id FROM events WHERE id = $1",
		eventID,
	).Scan(&event.ID, &event.Name, &event.HasCost, &event.State, &event.AdminID)
	if err == sql.ErrNoRows {
		c.JSON(models.StatusFor(models.ErrUnknownEvent), gin.H{"error": models.ErrUnknownEvent.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if event.State != models.EventActive && event.State != models.EventPublished {
		c.JSON(models.StatusFor(models.ErrEventNotActive), gin.H{"error": models.ErrEventNotActive.Error()})
		return
	}

	// Document gating happens before any write. The assistant's payment
	// proof is only demanded for paid events.
	docField := models.DocumentField(track)
	docHeader, docErr := c.FormFile(docField)
	docRequired := track != models.TrackAssistant || event.HasCost == models.CostYes
	if docRequired && docErr != nil {
		missing := models.ErrMissingRequiredDocs
		if track == models.TrackAssistant {
			missing = models.ErrMissingPaymentProof
		}
		c.JSON(models.StatusFor(missing), gin.H{"error": missing.Error()})
		return
	}

	user, err := findOrCreateUser(tx, form, track)
	if err != nil {
		c.JSON(models.StatusFor(err), gin.H{"error": err.Error()})
		return
	}

	var existingTrack string
	err = tx.QueryRow(
		"SELECT track FROM enrollments WHERE user_id = $1 AND event_id = $2 AND state <> $3",
		user.ID, eventID, models.StateCancelado,
	).Scan(&existingTrack)
	if err != nil && err != sql.ErrNoRows {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if err == nil {
		dup := models.ErrRoleConflict
		if existingTrack == track {
			dup = models.ErrDuplicateEnrollment
		}
		c.JSON(models.StatusFor(dup), gin.H{"error": dup.Error()})
		return
	}

	// Capacity check and decrement in one statement; a loser of the race
	// sees zero rows affected.
	res, err := tx.Exec("UPDATE events SET capacity = capacity - 1 WHERE id = $1 AND capacity > 0", eventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		c.JSON(models.StatusFor(models.ErrCapacityExhausted), gin.H{
			"error":   models.ErrCapacityExhausted.Error(),
			"message": h.cfg.CapacityExhaustedMessage,
		})
		return
	}

	var docURL *string
	if docErr == nil {
		file, err := docHeader.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read document"})
			return
		}
		name := fmt.Sprintf("enrollments/%d/%s/%s-%s", eventID, user.ID, docField, docHeader.Filename)
		url, err := h.uploader.Upload(file, name)
		file.Close()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Document upload failed: " + err.Error()})
			return
		}
		docURL = &url
	}

	enrollment := models.Enrollment{
		ID:          uuid.New().String(),
		EventID:     eventID,
		UserID:      user.ID,
		Track:       track,
		State:       models.StatePreinscrito,
		DocumentURL: docURL,
	}
	err = tx.QueryRow(`
		INSERT INTO enrollments (id, event_id, user_id, track, state, document_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		enrollment.ID, enrollment.EventID, enrollment.UserID,
		enrollment.Track, enrollment.State, enrollment.DocumentURL,
	).Scan(&enrollment.CreatedAt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create enrollment: " + err.Error()})
		return
	}

	// Cost-free assistant enrollments are admitted on the spot: state flip,
	// access key and QR all in this same transaction. Everything else stays
	// Preinscrito and gets a pending-review email instead.
	autoApproved := track == models.TrackAssistant &&
		event.HasCost == models.CostNo && h.cfg.AssistantAutoApproveFree
	template := TemplatePreinscription
	var warn error
	if autoApproved {
		template = TemplateApproval
		if _, err := tx.Exec(
			"UPDATE enrollments SET state = $1 WHERE id = $2",
			models.StateAprobado, enrollment.ID,
		); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		key, qrRef, credsWarn, err := issueCredentials(tx, h.qr, h.cfg, enrollment.ID, eventID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue credentials: " + err.Error()})
			return
		}
		enrollment.State = models.StateAprobado
		enrollment.AccessKey = &key
		enrollment.QRRef = qrRef
		warn = credsWarn
	}
	if err := queueEmail(tx, enrollment.ID, template); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if mailErr := deliverQueued(h.db, h.sender, user.Email, enrollment, event, template); mailErr != nil && warn == nil {
		warn = mailErr
	}

	log.Printf("enrollment created: id=%s event=%d track=%s state=%s", enrollment.ID, eventID, track, enrollment.State)
	resp := gin.H{"enrollment": enrollment}
	if warn != nil {
		resp["warning"] = warn.Error()
	}
	c.JSON(http.StatusCreated, resp)
}

// Cancel flips the caller's own pending enrollment to Cancelado and gives
// the seat back. Approved enrollments cannot be cancelled.
func (h *EnrollmentHandler) Cancel(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	userID := callerID(c)
	if userID == "" {
		c.JSON(models.StatusFor(models.ErrNotAuthenticated), gin.H{"error": models.ErrNotAuthenticated.Error()})
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	defer tx.Rollback()

	var enrollment models.Enrollment
	err = tx.QueryRow(`
		SELECT id, state FROM enrollments
		WHERE user_id = $1 AND event_id = $2 AND state <> $3
		FOR UPDATE`,
		userID, eventID, models.StateCancelado,
	).Scan(&enrollment.ID, &enrollment.State)
	if err == sql.ErrNoRows {
		c.JSON(models.StatusFor(models.ErrUnknownEnrollment), gin.H{"error": models.ErrUnknownEnrollment.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if enrollment.State != models.StatePreinscrito {
		c.JSON(models.StatusFor(models.ErrIllegalTransition), gin.H{"error": models.ErrIllegalTransition.Error()})
		return
	}

	if _, err := tx.Exec("UPDATE enrollments SET state = $1 WHERE id = $2",
		models.StateCancelado, enrollment.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if _, err := tx.Exec("UPDATE events SET capacity = capacity + 1 WHERE id = $1", eventID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	log.Printf("enrollment cancelled: id=%s event=%d", enrollment.ID, eventID)
	c.JSON(http.StatusOK, gin.H{"id": enrollment.ID, "state": models.StateCancelado})
}

// GetMyEnrollment returns the caller's active enrollment in the event.
func (h *EnrollmentHandler) GetMyEnrollment(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	userID := callerID(c)
	if userID == "" {
		c.JSON(models.StatusFor(models.ErrNotAuthenticated), gin.H{"error": models.ErrNotAuthenticated.Error()})
		return
	}

	var e models.Enrollment
	err := h.db.QueryRow(`
		SELECT id, event_id, user_id, track, state, document_url, access_key, qr_ref, justification, created_at
		FROM enrollments
		WHERE user_id = $1 AND event_id = $2 AND state <> $3`,
		userID, eventID, models.StateCancelado,
	).Scan(&e.ID, &e.EventID, &e.UserID, &e.Track, &e.State,
		&e.DocumentURL, &e.AccessKey, &e.QRRef, &e.Justification, &e.CreatedAt)
	if err == sql.ErrNoRows {
		c.JSON(models.StatusFor(models.ErrUnknownEnrollment), gin.H{"error": models.ErrUnknownEnrollment.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, e)
}

// ListEnrollments gives the owning administrator the event's enrollment
// list, optionally filtered by track or state.
func (h *EnrollmentHandler) ListEnrollments(c *gin.Context) {
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

	query := `
		SELECT e.id, e.event_id, e.user_id, e.track, e.state, e.document_url,
		       e.access_key, e.qr_ref, e.justification, e.created_at
		FROM enrollments e
		WHERE e.event_id = $1`
	args := []interface{}{eventID}
	if track, ok := models.TrackFromPath(c.Query("track")); ok {
		query += " AND e.track = $2"
		args = append(args, track)
	}
	query += " ORDER BY e.created_at"

	rows, err := h.db.Query(query, args...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	defer rows.Close()

	enrollments := []models.Enrollment{}
	for rows.Next() {
		var e models.Enrollment
		if err := rows.Scan(&e.ID, &e.EventID, &e.UserID, &e.Track, &e.State,
			&e.DocumentURL, &e.AccessKey, &e.QRRef, &e.Justification, &e.CreatedAt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan enrollment"})
			return
		}
		enrollments = append(enrollments, e)
	}

	c.JSON(http.StatusOK, gin.H{"enrollments": enrollments, "total": len(enrollments)})
}
