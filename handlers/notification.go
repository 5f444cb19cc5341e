package handlers

import (
	"database/sql"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"eventos-backend/mailer"
	"eventos-backend/models"
)

type NotificationHandler struct {
	db    *sql.DB
	email mailer.Sender
	sms   mailer.Sender
}

func NewNotificationHandler(db *sql.DB, email, sms mailer.Sender) *NotificationHandler {
	return &NotificationHandler{
		db:    db,
		email: email,
		sms:   sms,
	}
}

type recipient struct {
	Email string
	Phone string
}

// recipientsFor derives the distinct contact list for a target group. Only
// admitted enrollments count: Aprobado everywhere, plus Confirmado for the
// assistant track. Duplicate emails collapse to one recipient.
func (h *NotificationHandler) recipientsFor(eventID int64, group string) ([]recipient, error) {
	query := `
		SELECT DISTINCT ON (u.email) u.email, u.phone
		FROM enrollments e
		JOIN users u ON u.id = e.user_id
		WHERE e.event_id = $1`
	args := []interface{}{eventID}

	switch group {
	case models.GroupParticipantsOnly:
		query += " AND e.track = $2 AND e.state = $3"
		args = append(args, models.TrackParticipant, models.StateAprobado)
	case models.GroupEvaluatorsOnly:
		query += " AND e.track = $2 AND e.state = $3"
		args = append(args, models.TrackEvaluator, models.StateAprobado)
	case models.GroupAssistantsOnly:
		query += " AND e.track = $2 AND e.state IN ($3, $4)"
		args = append(args, models.TrackAssistant, models.StateAprobado, models.StateConfirmado)
	case models.GroupAllConfirmed:
		query += " AND e.state IN ($2, $3)"
		args = append(args, models.StateAprobado, models.StateConfirmado)
	}
	query += " ORDER BY u.email"

	rows, err := h.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []recipient
	for rows.Next() {
		var r recipient
		if err := rows.Scan(&r.Email, &r.Phone); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Send dispatches a segmented notification to everyone admitted in the
// chosen group. Only the owning administrator may send.
func (h *NotificationHandler) Send(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}

	var event models.Event
	err := h.db.QueryRow("SELECT id, name, admin_id FROM events WHERE id = $1", eventID).
		Scan(&event.ID, &event.Name, &event.AdminID)
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

	var req models.SendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.ValidGroups[req.TargetGroup] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown target_group"})
		return
	}
	if !models.ValidChannels[req.Channel] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown channel"})
		return
	}

	recipients, err := h.recipientsFor(eventID, req.TargetGroup)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error: " + err.Error()})
		return
	}
	if len(recipients) == 0 {
		c.JSON(models.StatusFor(models.ErrEmptyRecipientSet), gin.H{"error": models.ErrEmptyRecipientSet.Error()})
		return
	}

	report := models.DispatchReport{Recipients: make([]models.RecipientStatus, 0, len(recipients))}
	for _, r := range recipients {
		status := models.RecipientStatus{Email: r.Email, Status: "delivered"}
		var sendErr error
		switch req.Channel {
		case models.ChannelEmail:
			sendErr = h.email.Send(mailer.Message{
				To:      r.Email,
				Subject: req.Title + " - " + event.Name,
				Body:    req.Body,
			})
		case models.ChannelSMS:
			if r.Phone == "" {
				sendErr = errors.New("no phone number on file")
			} else {
				sendErr = h.sms.Send(mailer.Message{
					To:   r.Phone,
					Body: req.Title + ": " + req.Body,
				})
			}
		case models.ChannelPush:
			// No push provider is wired; recorded as failed per recipient.
			sendErr = errors.New("push channel not configured")
		}
		if sendErr != nil {
			status.Status = "failed"
			status.Error = sendErr.Error()
			report.Failed++
		} else {
			report.Delivered++
		}
		report.Recipients = append(report.Recipients, status)
	}

	log.Printf("notification sent: event=%d group=%s channel=%s delivered=%d failed=%d",
		eventID, req.TargetGroup, req.Channel, report.Delivered, report.Failed)
	c.JSON(http.StatusOK, report)
}
