package handlers

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"eventos-backend/config"
	"eventos-backend/models"
	"eventos-backend/storage"
)

type EventHandler struct {
	db       *sql.DB
	uploader storage.Uploader
	cfg      *config.Config
	now      func() time.Time
}

func NewEventHandler(db *sql.DB, uploader storage.Uploader, cfg *config.Config) *EventHandler {
	return &EventHandler{
		db:       db,
		uploader: uploader,
		cfg:      cfg,
		now:      time.Now,
	}
}

const eventColumns = `id, name, description, city, venue, start_date, end_date,
	capacity, initial_capacity, has_cost, state, admin_id,
	banner_url, programming_url, technical_info_url, created_at`

func scanEvent(row *sql.Row) (models.Event, error) {
	var e models.Event
	err := row.Scan(
		&e.ID, &e.Name, &e.Description, &e.City, &e.Venue,
		&e.StartDate, &e.EndDate,
		&e.Capacity, &e.InitialCapacity, &e.HasCost, &e.State, &e.AdminID,
		&e.BannerURL, &e.ProgrammingURL, &e.TechnicalInfoURL, &e.CreatedAt,
	)
	return e, err
}

func (h *EventHandler) getEvent(eventID int64) (models.Event, error) {
	row := h.db.QueryRow("SELECT "+eventColumns+" FROM events WHERE id = $1", eventID)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return e, models.ErrUnknownEvent
	}
	return e, err
}

func eventIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event ID"})
		return 0, false
	}
	return id, true
}

// uploadIfPresent stores an optional multipart file and returns its reference.
func (h *EventHandler) uploadIfPresent(c *gin.Context, field string, eventID int64) (*string, error) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		return nil, nil
	}
	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	name := fmt.Sprintf("events/%d/%s-%d-%s", eventID, field, h.now().Unix(), fileHeader.Filename)
	url, err := h.uploader.Upload(file, name)
	if err != nil {
		return nil, err
	}
	return &url, nil
}

func (h *EventHandler) CreateEvent(c *gin.Context) {
	role := callerRole(c)
	if role != models.RoleEventAdmin && role != models.RoleSuperAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": models.ErrNotOwner.Error()})
		return
	}

	var req models.CreateEventRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start_date, expected YYYY-MM-DD"})
		return
	}
	endDate, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid end_date, expected YYYY-MM-DD"})
		return
	}
	if endDate.Before(startDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date precedes start_date"})
		return
	}

	query := `
		INSERT INTO events (name, description, city, venue, start_date, end_date,
			capacity, initial_capacity, has_cost, state, admin_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8, $9, $10)
		RETURNING ` + eventColumns

	row := h.db.QueryRow(query,
		req.Name, req.Description, req.City, req.Venue,
		startDate, endDate,
		req.Capacity, req.HasCost, models.EventDraft, callerID(c),
	)
	event, err := scanEvent(row)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create event: " + err.Error()})
		return
	}

	// Optional artifacts go to object storage; only references are kept.
	for _, upload := range []struct {
		field  string
		column string
		dest   **string
	}{
		{"banner", "banner_url", &event.BannerURL},
		{"programming", "programming_url", &event.ProgrammingURL},
		{"technical_info", "technical_info_url", &event.TechnicalInfoURL},
	} {
		ref, err := h.uploadIfPresent(c, upload.field, event.ID)
		if err != nil {
			log.Printf("event %d: %s upload failed: %v", event.ID, upload.field, err)
			continue
		}
		if ref == nil {
			continue
		}
		if _, err := h.db.Exec("UPDATE events SET "+upload.column+" = $1 WHERE id = $2", *ref, event.ID); err != nil {
			log.Printf("event %d: persisting %s reference failed: %v", event.ID, upload.column, err)
			continue
		}
		*upload.dest = ref
	}

	log.Printf("event created: id=%d name=%q admin=%s", event.ID, event.Name, event.AdminID)
	c.JSON(http.StatusCreated, event)
}

func (h *EventHandler) UpdateEvent(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}

	event, err := h.getEvent(eventID)
	if err != nil {
		c.JSON(models.StatusFor(err), gin.H{"error": err.Error()})
		return
	}
	if !isOwnerOrSuper(c, event) {
		c.JSON(http.StatusForbidden, gin.H{"error": models.ErrNotOwner.Error()})
		return
	}

	var req models.UpdateEventRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	query := `
		UPDATE events
		SET name = COALESCE(NULLIF($2, ''), name),
		    description = COALESCE(NULLIF($3, ''), description),
		    city = COALESCE(NULLIF($4, ''), city),
		    venue = COALESCE(NULLIF($5, ''), venue)
		WHERE id = $1
		RETURNING ` + eventColumns

	event, err = scanEvent(h.db.QueryRow(query, eventID, req.Name, req.Description, req.City, req.Venue))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update event"})
		return
	}

	for _, upload := range []struct {
		field  string
		column string
		dest   **string
	}{
		{"banner", "banner_url", &event.BannerURL},
		{"programming", "programming_url", &event.ProgrammingURL},
		{"technical_info", "technical_info_url", &event.TechnicalInfoURL},
	} {
		ref, err := h.uploadIfPresent(c, upload.field, event.ID)
		if err != nil || ref == nil {
			if err != nil {
				log.Printf("event %d: %s upload failed: %v", event.ID, upload.field, err)
			}
			continue
		}
		if _, err := h.db.Exec("UPDATE events SET "+upload.column+" = $1 WHERE id = $2", *ref, event.ID); err != nil {
			log.Printf("event %d: persisting %s reference failed: %v", event.ID, upload.column, err)
			continue
		}
		*upload.dest = ref
	}

	c.JSON(http.StatusOK, event)
}

func (h *EventHandler) GetEvent(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}

	event, err := h.getEvent(eventID)
	if err != nil {
		c.JSON(models.StatusFor(err), gin.H{"error": err.Error()})
		return
	}

	// Unpublished events are only visible to their admin and super admins.
	if event.State != models.EventPublished && !isOwnerOrSuper(c, event) {
		denyRead(c)
		return
	}

	c.JSON(http.StatusOK, event)
}

func (h *EventHandler) ListEvents(c *gin.Context) {
	role := callerRole(c)
	state := c.Query("state")

	query := "SELECT " + eventColumns + " FROM events"
	args := []interface{}{}

	switch {
	case role == models.RoleSuperAdmin && state != "":
		query += " WHERE state = $1"
		args = append(args, state)
	case role == models.RoleEventAdmin:
		query += " WHERE state = $1 OR admin_id = $2"
		args = append(args, models.EventPublished, callerID(c))
	case role == models.RoleSuperAdmin:
		// everything
	default:
		query += " WHERE state = $1"
		args = append(args, models.EventPublished)
	}
	query += " ORDER BY start_date DESC"

	rows, err := h.db.Query(query, args...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error: " + err.Error()})
		return
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var e models.Event
		err := rows.Scan(
			&e.ID, &e.Name, &e.Description, &e.City, &e.Venue,
			&e.StartDate, &e.EndDate,
			&e.Capacity, &e.InitialCapacity, &e.HasCost, &e.State, &e.AdminID,
			&e.BannerURL, &e.ProgrammingURL, &e.TechnicalInfoURL, &e.CreatedAt,
		)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan event"})
			return
		}
		events = append(events, e)
	}

	c.JSON(http.StatusOK, gin.H{"events": events, "total": len(events)})
}

// ActivateEvent opens a draft for enrollment.
func (h *EventHandler) ActivateEvent(c *gin.Context) {
	h.transition(c, models.EventDraft, models.EventActive, false)
}

// FinalizeEvent closes a running event once it is over.
func (h *EventHandler) FinalizeEvent(c *gin.Context) {
	h.transition(c, models.EventPublished, models.EventFinalized, false)
}

// ArchiveEvent is allowed from any state.
func (h *EventHandler) ArchiveEvent(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	event, err := h.getEvent(eventID)
	if err != nil {
		c.JSON(models.StatusFor(err), gin.H{"error": err.Error()})
		return
	}
	if !isOwnerOrSuper(c, event) {
		c.JSON(http.StatusForbidden, gin.H{"error": models.ErrNotOwner.Error()})
		return
	}
	if _, err := h.db.Exec("UPDATE events SET state = $1 WHERE id = $2", models.EventArchived, eventID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to archive event"})
		return
	}
	log.Printf("event archived: id=%d", eventID)
	c.JSON(http.StatusOK, gin.H{"id": eventID, "state": models.EventArchived})
}

func (h *EventHandler) transition(c *gin.Context, from, to string, superOnly bool) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	event, err := h.getEvent(eventID)
	if err != nil {
		c.JSON(models.StatusFor(err), gin.H{"error": err.Error()})
		return
	}
	if superOnly && callerRole(c) != models.RoleSuperAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": models.ErrNotSuperAdmin.Error()})
		return
	}
	if !superOnly && !isOwnerOrSuper(c, event) {
		c.JSON(http.StatusForbidden, gin.H{"error": models.ErrNotOwner.Error()})
		return
	}

	res, err := h.db.Exec("UPDATE events SET state = $1 WHERE id = $2 AND state = $3", to, eventID, from)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update event state"})
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		c.JSON(models.StatusFor(models.ErrIllegalTransition), gin.H{"error": models.ErrIllegalTransition.Error()})
		return
	}

	log.Printf("event %d: %s -> %s", eventID, from, to)
	c.JSON(http.StatusOK, gin.H{"id": eventID, "state": to})
}

// PublishEvent puts an active event on the public web. Super admin only, and
// every mandatory public field must be present.
func (h *EventHandler) PublishEvent(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	if callerRole(c) != models.RoleSuperAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": models.ErrNotSuperAdmin.Error()})
		return
	}

	event, err := h.getEvent(eventID)
	if err != nil {
		c.JSON(models.StatusFor(err), gin.H{"error": err.Error()})
		return
	}
	if !event.PublicReady() {
		c.JSON(models.StatusFor(models.ErrMissingPublicFields), gin.H{"error": models.ErrMissingPublicFields.Error()})
		return
	}

	res, err := h.db.Exec("UPDATE events SET state = $1 WHERE id = $2 AND state = $3",
		models.EventPublished, eventID, models.EventActive)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to publish event"})
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		c.JSON(models.StatusFor(models.ErrIllegalTransition), gin.H{"error": models.ErrIllegalTransition.Error()})
		return
	}

	log.Printf("event published: id=%d", eventID)
	c.JSON(http.StatusOK, gin.H{"id": eventID, "state": models.EventPublished})
}

// DepublishExpired removes from the web every finalized event whose end date
// lies further back than the grace period. Returns the affected ids.
func (h *EventHandler) DepublishExpired(c *gin.Context) {
	if callerRole(c) != models.RoleSuperAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": models.ErrNotSuperAdmin.Error()})
		return
	}

	cutoff := h.now().AddDate(0, 0, -h.cfg.GracePeriodDays)
	rows, err := h.db.Query(
		"UPDATE events SET state = $1 WHERE state = $2 AND end_date < $3 RETURNING id",
		models.EventDespublished, models.EventFinalized, cutoff,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error: " + err.Error()})
		return
	}
	defer rows.Close()

	affected := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan event id"})
			return
		}
		affected = append(affected, id)
	}

	log.Printf("depublished %d expired events (cutoff %s)", len(affected), cutoff.Format("2006-01-02"))
	c.JSON(http.StatusOK, gin.H{"depublished": affected})
}

func isOwnerOrSuper(c *gin.Context, event models.Event) bool {
	role := callerRole(c)
	return role == models.RoleSuperAdmin ||
		(role == models.RoleEventAdmin && event.AdminID == callerID(c))
}
