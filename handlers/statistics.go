package handlers

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"eventos-backend/config"
	"eventos-backend/models"
)

type StatisticsHandler struct {
	db  *sql.DB
	cfg *config.Config
}

func NewStatisticsHandler(db *sql.DB, cfg *config.Config) *StatisticsHandler {
	return &StatisticsHandler{
		db:  db,
		cfg: cfg,
	}
}

// GetStatistics aggregates the event's enrollment figures inside one
// repeatable-read transaction so every number comes from the same snapshot.
// ?format=csv switches the response to delimited text.
func (h *StatisticsHandler) GetStatistics(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}

	tx, err := h.db.BeginTx(c.Request.Context(), &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead,
		ReadOnly:  true,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	defer tx.Rollback()

	var event models.Event
	err = tx.QueryRow(
		"SELECT id, name, initial_capacity, has_cost, admin_id FROM events WHERE id = $1",
		eventID,
	).Scan(&event.ID, &event.Name, &event.InitialCapacity, &event.HasCost, &event.AdminID)
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

	rows, err := tx.Query(
		"SELECT track, state, COUNT(*) FROM enrollments WHERE event_id = $1 GROUP BY track, state",
		eventID,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error: " + err.Error()})
		return
	}
	defer rows.Close()

	byTrack := map[string]*models.TrackStats{}
	for _, track := range []string{models.TrackAssistant, models.TrackParticipant, models.TrackEvaluator} {
		byTrack[track] = &models.TrackStats{Track: track}
	}
	for rows.Next() {
		var track, state string
		var count int
		if err := rows.Scan(&track, &state, &count); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan statistics"})
			return
		}
		ts, ok := byTrack[track]
		if !ok {
			continue
		}
		ts.Total += count
		switch state {
		case models.StatePreinscrito:
			ts.Preinscrito = count
		case models.StateAprobado:
			ts.Aprobado = count
		case models.StateRechazado:
			ts.Rechazado = count
		case models.StateCancelado:
			ts.Cancelado = count
		case models.StateConfirmado:
			ts.Confirmado = count
		}
	}
	if err := rows.Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	stats := models.EventStatistics{
		EventID:         event.ID,
		EventName:       event.Name,
		InitialCapacity: event.InitialCapacity,
	}
	for _, track := range []string{models.TrackAssistant, models.TrackParticipant, models.TrackEvaluator} {
		ts := byTrack[track]
		if denom := ts.Aprobado + ts.Rechazado + ts.Preinscrito; denom > 0 {
			ts.AcceptanceRate = float64(ts.Aprobado) / float64(denom)
		}
		stats.Tracks = append(stats.Tracks, *ts)
		stats.TotalEnrollments += ts.Total
		stats.TotalApproved += ts.Aprobado + ts.Confirmado
	}

	if stats.TotalApproved > 0 {
		stats.AttendanceRate = float64(byTrack[models.TrackAssistant].Confirmado) / float64(stats.TotalApproved)
	}

	// Occupancy counts assistant and participant seats against the seats
	// the event opened with, not the live counter.
	assistants := byTrack[models.TrackAssistant]
	participants := byTrack[models.TrackParticipant]
	enrolled := assistants.Total - assistants.Cancelado + participants.Total - participants.Cancelado
	if event.InitialCapacity > 0 {
		stats.Occupancy = float64(enrolled) / float64(event.InitialCapacity)
	}

	if event.HasCost == models.CostYes {
		unitPrice := h.cfg.UnitPriceDefault
		stats.RevenueApproved = unitPrice * float64(assistants.Aprobado+assistants.Confirmado)
		stats.RevenuePending = unitPrice * float64(assistants.Preinscrito)
	}

	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if c.Query("format") == "csv" {
		writeStatisticsCSV(c, stats)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func writeStatisticsCSV(c *gin.Context, stats models.EventStatistics) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition",
		fmt.Sprintf(`attachment; filename="event-%d-statistics.csv"`, stats.EventID))

	w := csv.NewWriter(c.Writer)
	w.Write([]string{"track", "total", "preinscrito", "aprobado", "rechazado", "cancelado", "confirmado", "acceptance_rate"})
	for _, ts := range stats.Tracks {
		w.Write([]string{
			ts.Track,
			strconv.Itoa(ts.Total),
			strconv.Itoa(ts.Preinscrito),
			strconv.Itoa(ts.Aprobado),
			strconv.Itoa(ts.Rechazado),
			strconv.Itoa(ts.Cancelado),
			strconv.Itoa(ts.Confirmado),
			strconv.FormatFloat(ts.AcceptanceRate, 'f', 4, 64),
		})
	}
	w.Write([]string{})
	w.Write([]string{"initial_capacity", strconv.Itoa(stats.InitialCapacity)})
	w.Write([]string{"total_enrollments", strconv.Itoa(stats.TotalEnrollments)})
	w.Write([]string{"total_approved", strconv.Itoa(stats.TotalApproved)})
	w.Write([]string{"attendance_rate", strconv.FormatFloat(stats.AttendanceRate, 'f', 4, 64)})
	w.Write([]string{"occupancy", strconv.FormatFloat(stats.Occupancy, 'f', 4, 64)})
	w.Write([]string{"revenue_approved", strconv.FormatFloat(stats.RevenueApproved, 'f', 2, 64)})
	w.Write([]string{"revenue_pending", strconv.FormatFloat(stats.RevenuePending, 'f', 2, 64)})
	w.Flush()
}

// DownloadRoster streams the event's enrollment roster as CSV for the
// owning administrator.
func (h *StatisticsHandler) DownloadRoster(c *gin.Context) {
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
		SELECT u.name, u.email, u.cedula, e.track, e.state, e.created_at
		FROM enrollments e
		JOIN users u ON u.id = e.user_id
		WHERE e.event_id = $1
		ORDER BY e.track, u.name`,
		eventID,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	defer rows.Close()

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition",
		fmt.Sprintf(`attachment; filename="event-%d-roster.csv"`, eventID))

	w := csv.NewWriter(c.Writer)
	w.Write([]string{"name", "email", "cedula", "track", "state", "enrolled_at"})
	for rows.Next() {
		var name, email, cedula, track, state string
		var createdAt sql.NullTime
		if err := rows.Scan(&name, &email, &cedula, &track, &state, &createdAt); err != nil {
			continue
		}
		enrolledAt := ""
		if createdAt.Valid {
			enrolledAt = createdAt.Time.Format("2006-01-02 15:04")
		}
		w.Write([]string{name, email, cedula, track, state, enrolledAt})
	}
	w.Flush()
}
