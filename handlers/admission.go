package handlers

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"eventos-backend/accesskey"
	"eventos-backend/config"
	"eventos-backend/mailer"
	"eventos-backend/models"
	"eventos-backend/storage"
)

const keyCollisionRetries = 10

// Email templates keyed in the outbox. One row per (enrollment, template)
// keeps delivery at-least-once and idempotent.
const (
	TemplatePreinscription = "preinscription"
	TemplateApproval       = "approval"
	TemplateRejection      = "rejection"
)

type AdmissionHandler struct {
	db     *sql.DB
	sender mailer.Sender
	qr     storage.QRRenderer
	cfg    *config.Config
}

func NewAdmissionHandler(db *sql.DB, sender mailer.Sender, qr storage.QRRenderer, cfg *config.Config) *AdmissionHandler {
	return &AdmissionHandler{
		db:     db,
		sender: sender,
		qr:     qr,
		cfg:    cfg,
	}
}

// issueCredentials generates the access key and QR artifact for an approved
// enrollment and stamps both onto the row. The key must be unique within the
// event; collisions are retried a bounded number of times. A renderer failure
// is returned as a warning: the key still sticks, the QR is retried later.
func issueCredentials(tx *sql.Tx, qr storage.QRRenderer, cfg *config.Config, enrollmentID string, eventID int64) (key string, qrRef *string, warn error, err error) {
	for attempt := 0; ; attempt++ {
		if attempt >= keyCollisionRetries {
			return "", nil, nil, fmt.Errorf("access key collision retries exhausted for event %d", eventID)
		}
		k, err := accesskey.NewKey(cfg.AccessKeyLength)
		if err != nil {
			return "", nil, nil, err
		}
		var taken bool
		err = tx.QueryRow(
			"SELECT EXISTS(SELECT 1 FROM enrollments WHERE event_id = $1 AND access_key = $2)",
			eventID, k,
		).Scan(&taken)
		if err != nil {
			return "", nil, nil, err
		}
		if !taken {
			key = k
			break
		}
	}

	payload := fmt.Sprintf("%s|%d|%s", enrollmentID, eventID, key)
	if ref, rerr := qr.Render(payload); rerr != nil {
		warn = fmt.Errorf("%w: %v", models.ErrQRRenderFailed, rerr)
		log.Printf("enrollment %s: qr render failed: %v", enrollmentID, rerr)
	} else {
		qrRef = &ref
	}

	if _, err := tx.Exec(
		"UPDATE enrollments SET access_key = $1, qr_ref = $2 WHERE id = $3",
		key, qrRef, enrollmentID,
	); err != nil {
		return "", nil, nil, err
	}
	return key, qrRef, warn, nil
}

// queueEmail records the pending notification inside the deciding
// transaction so a crash between commit and send leaves a retryable row.
func queueEmail(tx *sql.Tx, enrollmentID, template string) error {
	_, err := tx.Exec(`
		INSERT INTO email_outbox (enrollment_id, template, status)
		VALUES ($1, $2, 'pending')
		ON CONFLICT (enrollment_id, template) DO NOTHING`,
		enrollmentID, template)
	return err
}

// deliverQueued sends the queued message after commit and marks the outbox
// row sent. A delivery failure never fails the operation; the row stays
// pending for out-of-band retry and the caller reports a warning.
func deliverQueued(db *sql.DB, sender mailer.Sender, recipient string, enrollment models.Enrollment, event models.Event, template string) error {
	var msg mailer.Message
	switch template {
	case TemplatePreinscription:
		msg = mailer.Message{
			To:      recipient,
			Subject: fmt.Sprintf("Preinscripción recibida: %s", event.Name),
			Body: fmt.Sprintf("Su preinscripción al evento %s fue registrada y está pendiente de revisión.\nRecibirá un nuevo correo cuando el administrador decida sobre su solicitud.\n",
				event.Name),
		}
	case TemplateApproval:
		key := ""
		if enrollment.AccessKey != nil {
			key = *enrollment.AccessKey
		}
		msg = mailer.Message{
			To:      recipient,
			Subject: fmt.Sprintf("Inscripción aprobada: %s", event.Name),
			Body: fmt.Sprintf("Su inscripción al evento %s fue aprobada.\nClave de acceso: %s\n",
				event.Name, key),
		}
		if enrollment.QRRef != nil {
			msg.Attachments = []string{*enrollment.QRRef}
		}
	case TemplateRejection:
		justification := ""
		if enrollment.Justification != nil {
			justification = *enrollment.Justification
		}
		msg = mailer.Message{
			To:      recipient,
			Subject: fmt.Sprintf("Inscripción rechazada: %s", event.Name),
			Body: fmt.Sprintf("Su inscripción al evento %s fue rechazada.\nMotivo: %s\n",
				event.Name, justification),
		}
	default:
		return fmt.Errorf("unknown email template %q", template)
	}

	if err := sender.Send(msg); err != nil {
		log.Printf("enrollment %s: %s email to %s failed: %v", enrollment.ID, template, recipient, err)
		return fmt.Errorf("%w: %v", models.ErrEmailDeliveryFailed, err)
	}
	if _, err := db.Exec(
		"UPDATE email_outbox SET status = 'sent', sent_at = NOW() WHERE enrollment_id = $1 AND template = $2",
		enrollment.ID, template,
	); err != nil {
		log.Printf("enrollment %s: outbox mark-sent failed: %v", enrollment.ID, err)
	}
	return nil
}

func (h *AdmissionHandler) loadForDecision(c *gin.Context, tx *sql.Tx) (models.Enrollment, models.Event, string, bool) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return models.Enrollment{}, models.Event{}, "", false
	}
	enrollmentID := c.Param("enrollmentID")

	var event models.Event
	err := tx.QueryRow(
		"SELECT id, name, has_cost, state, admin_id FROM events WHERE id = $1",
		eventID,
	).Scan(&event.ID, &event.Name, &event.HasCost, &event.State, &event.AdminID)
	if err == sql.ErrNoRows {
		c.JSON(models.StatusFor(models.ErrUnknownEvent), gin.H{"error": models.ErrUnknownEvent.Error()})
		return models.Enrollment{}, models.Event{}, "", false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return models.Enrollment{}, models.Event{}, "", false
	}

	if !isOwnerOrSuper(c, event) {
		c.JSON(models.StatusFor(models.ErrNotOwner), gin.H{"error": models.ErrNotOwner.Error()})
		return models.Enrollment{}, models.Event{}, "", false
	}

	var enrollment models.Enrollment
	var email string
	err = tx.QueryRow(`
		SELECT e.id, e.event_id, e.user_id, e.track, e.state, e.document_url, u.email
		FROM enrollments e JOIN users u ON u.id = e.user_id
		WHERE e.id = $1 AND e.event_id = $2
		FOR UPDATE OF e`,
		enrollmentID, eventID,
	).Scan(&enrollment.ID, &enrollment.EventID, &enrollment.UserID,
		&enrollment.Track, &enrollment.State, &enrollment.DocumentURL, &email)
	if err == sql.ErrNoRows {
		c.JSON(models.StatusFor(models.ErrUnknownEnrollment), gin.H{"error": models.ErrUnknownEnrollment.Error()})
		return models.Enrollment{}, models.Event{}, "", false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return models.Enrollment{}, models.Event{}, "", false
	}
	return enrollment, event, email, true
}

func (h *AdmissionHandler) Approve(c *gin.Context) {
	tx, err := h.db.Begin()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	defer tx.Rollback()

	enrollment, event, email, ok := h.loadForDecision(c, tx)
	if !ok {
		return
	}

	// Paid enrollments need their supporting document before approval.
	if event.HasCost == models.CostYes && (enrollment.DocumentURL == nil || *enrollment.DocumentURL == "") {
		c.JSON(models.StatusFor(models.ErrMissingRequiredDocs), gin.H{"error": models.ErrMissingRequiredDocs.Error()})
		return
	}

	res, err := tx.Exec(
		"UPDATE enrollments SET state = $1 WHERE id = $2 AND state = $3",
		models.StateAprobado, enrollment.ID, models.StatePreinscrito,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		c.JSON(models.StatusFor(models.ErrIllegalTransition), gin.H{"error": models.ErrIllegalTransition.Error()})
		return
	}

	key, qrRef, warn, err := issueCredentials(tx, h.qr, h.cfg, enrollment.ID, event.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue credentials: " + err.Error()})
		return
	}
	if err := queueEmail(tx, enrollment.ID, TemplateApproval); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	enrollment.State = models.StateAprobado
	enrollment.AccessKey = &key
	enrollment.QRRef = qrRef

	if mailErr := deliverQueued(h.db, h.sender, email, enrollment, event, TemplateApproval); mailErr != nil && warn == nil {
		warn = mailErr
	}

	log.Printf("enrollment approved: id=%s event=%d key issued", enrollment.ID, event.ID)
	resp := gin.H{"enrollment": enrollment}
	if warn != nil {
		resp["warning"] = warn.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AdmissionHandler) Reject(c *gin.Context) {
	var req struct {
		Justification string `json:"justification" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(strings.TrimSpace(req.Justification)) < 10 {
		c.JSON(models.StatusFor(models.ErrJustificationTooShort), gin.H{"error": models.ErrJustificationTooShort.Error()})
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	defer tx.Rollback()

	enrollment, event, email, ok := h.loadForDecision(c, tx)
	if !ok {
		return
	}

	// Capacity is deliberately not restored on rejection.
	res, err := tx.Exec(
		"UPDATE enrollments SET state = $1, justification = $2 WHERE id = $3 AND state = $4",
		models.StateRechazado, req.Justification, enrollment.ID, models.StatePreinscrito,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		c.JSON(models.StatusFor(models.ErrIllegalTransition), gin.H{"error": models.ErrIllegalTransition.Error()})
		return
	}
	if err := queueEmail(tx, enrollment.ID, TemplateRejection); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	enrollment.State = models.StateRechazado
	enrollment.Justification = &req.Justification

	var warn error
	if mailErr := deliverQueued(h.db, h.sender, email, enrollment, event, TemplateRejection); mailErr != nil {
		warn = mailErr
	}

	log.Printf("enrollment rejected: id=%s event=%d", enrollment.ID, event.ID)
	resp := gin.H{"enrollment": enrollment}
	if warn != nil {
		resp["warning"] = warn.Error()
	}
	c.JSON(http.StatusOK, resp)
}
