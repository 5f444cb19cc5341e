package handlers

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"eventos-backend/models"
)

// Operations subject to the visibility policy.
const (
	OpViewPublicEvent     = "view_public_event"
	OpManageEvent         = "manage_event"
	OpViewProgramming     = "view_programming"
	OpViewTechnicalInfo   = "view_technical_info"
	OpDownloadCertificate = "download_certificate"
	OpShareEvent          = "share_event_inscrito"
	OpCancelEnrollment    = "cancel_enrollment"
	OpViewEvaluatorDetail = "view_evaluator_detail"
)

type Decision int

const (
	Allow Decision = iota
	DenyRedirect  // unauthenticated: send to the identity provider
	DenyForbidden // 403
	DenyHidden    // 404, existence must not leak
)

type Requestor struct {
	ID            string
	Role          string
	Authenticated bool
}

// PolicyFacts carries the per-request lookups the rules depend on. Callers
// resolve them from the store before asking for a decision.
type PolicyFacts struct {
	ApprovedInEvent   bool
	ApprovedEvaluator bool
	TargetApproved    bool
	OwnsEnrollment    bool
	EnrollmentState   string
}

// Can evaluates the access rules in order; the first matching rule wins.
func Can(r Requestor, event models.Event, op string, facts PolicyFacts) Decision {
	if !r.Authenticated {
		if op == OpViewPublicEvent && event.State == models.EventPublished {
			return Allow
		}
		return DenyRedirect
	}
	if r.Role == models.RoleSuperAdmin {
		return Allow
	}
	switch op {
	case OpViewPublicEvent:
		if event.State == models.EventPublished {
			return Allow
		}
		return DenyHidden
	case OpManageEvent:
		if r.Role == models.RoleEventAdmin && event.AdminID == r.ID {
			return Allow
		}
		return DenyForbidden
	case OpViewProgramming, OpViewTechnicalInfo, OpDownloadCertificate, OpShareEvent:
		if facts.ApprovedInEvent {
			return Allow
		}
		return DenyForbidden
	case OpCancelEnrollment:
		if facts.OwnsEnrollment && facts.EnrollmentState == models.StatePreinscrito {
			return Allow
		}
		return DenyForbidden
	case OpViewEvaluatorDetail:
		if facts.ApprovedEvaluator && facts.TargetApproved {
			return Allow
		}
		return DenyHidden
	}
	return DenyForbidden
}

func respondDenied(c *gin.Context, d Decision) {
	switch d {
	case DenyRedirect:
		c.Redirect(http.StatusFound, "/login")
	case DenyHidden:
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

func denyRead(c *gin.Context) {
	if callerID(c) == "" {
		c.Redirect(http.StatusFound, "/login")
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}

func requestorFrom(c *gin.Context) Requestor {
	id := callerID(c)
	return Requestor{ID: id, Role: callerRole(c), Authenticated: id != ""}
}

// PolicyHandler serves the reads whose access is gated on an approved
// enrollment: programming, technical info, certificates and the evaluator's
// view of a participant.
type PolicyHandler struct {
	db *sql.DB
}

func NewPolicyHandler(db *sql.DB) *PolicyHandler {
	return &PolicyHandler{db: db}
}

func (h *PolicyHandler) hasApproved(userID string, eventID int64, track string) (bool, error) {
	query := "SELECT EXISTS(SELECT 1 FROM enrollments WHERE user_id = $1 AND event_id = $2 AND state = $3"
	args := []interface{}{userID, eventID, models.StateAprobado}
	if track != "" {
		query += " AND track = $4"
		args = append(args, track)
	}
	query += ")"
	var ok bool
	err := h.db.QueryRow(query, args...).Scan(&ok)
	return ok, err
}

func (h *PolicyHandler) loadEvent(c *gin.Context) (models.Event, int64, bool) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return models.Event{}, 0, false
	}
	row := h.db.QueryRow("SELECT "+eventColumns+" FROM events WHERE id = $1", eventID)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": models.ErrUnknownEvent.Error()})
		return models.Event{}, 0, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return models.Event{}, 0, false
	}
	return event, eventID, true
}

func (h *PolicyHandler) gatedArtifact(c *gin.Context, op string, pick func(models.Event) *string, field string) {
	event, eventID, ok := h.loadEvent(c)
	if !ok {
		return
	}
	r := requestorFrom(c)

	approved := false
	if r.Authenticated {
		var err error
		approved, err = h.hasApproved(r.ID, eventID, "")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
	}

	if d := Can(r, event, op, PolicyFacts{ApprovedInEvent: approved}); d != Allow {
		respondDenied(c, d)
		return
	}

	ref := pick(event)
	if ref == nil || *ref == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": field + " not available"})
		return
	}
	c.JSON(http.StatusOK, gin.H{field: *ref})
}

func (h *PolicyHandler) GetProgramming(c *gin.Context) {
	h.gatedArtifact(c, OpViewProgramming,
		func(e models.Event) *string { return e.ProgrammingURL }, "programming_url")
}

func (h *PolicyHandler) GetTechnicalInfo(c *gin.Context) {
	h.gatedArtifact(c, OpViewTechnicalInfo,
		func(e models.Event) *string { return e.TechnicalInfoURL }, "technical_info_url")
}

// GetCertificate returns the certificate artifact reference for the caller's
// approved enrollment. Generation itself happens outside this service.
func (h *PolicyHandler) GetCertificate(c *gin.Context) {
	event, eventID, ok := h.loadEvent(c)
	if !ok {
		return
	}
	r := requestorFrom(c)

	var enrollmentID string
	approved := false
	if r.Authenticated {
		err := h.db.QueryRow(
			"SELECT id FROM enrollments WHERE user_id = $1 AND event_id = $2 AND state = $3",
			r.ID, eventID, models.StateAprobado,
		).Scan(&enrollmentID)
		if err != nil && err != sql.ErrNoRows {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		approved = err == nil
	}

	if d := Can(r, event, OpDownloadCertificate, PolicyFacts{ApprovedInEvent: approved}); d != Allow {
		respondDenied(c, d)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"certificate_ref": fmt.Sprintf("certificates/event-%d/%s.pdf", eventID, enrollmentID),
	})
}

// GetEvaluatorView exposes an approved participant's enrollment to an
// approved evaluator of the same event.
func (h *PolicyHandler) GetEvaluatorView(c *gin.Context) {
	event, eventID, ok := h.loadEvent(c)
	if !ok {
		return
	}
	r := requestorFrom(c)
	participantID := c.Param("participantID")

	facts := PolicyFacts{}
	var target models.Enrollment
	var targetUser models.User
	if r.Authenticated {
		var err error
		facts.ApprovedEvaluator, err = h.hasApproved(r.ID, eventID, models.TrackEvaluator)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		err = h.db.QueryRow(`
			SELECT e.id, e.track, e.state, e.document_url, e.created_at,
			       u.id, u.name, u.email
			FROM enrollments e JOIN users u ON u.id = e.user_id
			WHERE e.user_id = $1 AND e.event_id = $2
			  AND e.track = $3 AND e.state = $4`,
			participantID, eventID, models.TrackParticipant, models.StateAprobado,
		).Scan(
			&target.ID, &target.Track, &target.State, &target.DocumentURL, &target.CreatedAt,
			&targetUser.ID, &targetUser.Name, &targetUser.Email,
		)
		if err != nil && err != sql.ErrNoRows {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		facts.TargetApproved = err == nil
	}

	if d := Can(r, event, OpViewEvaluatorDetail, facts); d != Allow {
		respondDenied(c, d)
		return
	}
	if !facts.TargetApproved {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"participant": gin.H{"id": targetUser.ID, "name": targetUser.Name, "email": targetUser.Email},
		"enrollment": gin.H{
			"id":           target.ID,
			"state":        target.State,
			"document_url": target.DocumentURL,
			"created_at":   target.CreatedAt,
		},
	})
}
