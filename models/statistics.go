package models

// TrackStats is the per-track breakdown for one event.
type TrackStats struct {
	Track          string  `json:"track"`
	Total          int     `json:"total"`
	Preinscrito    int     `json:"preinscrito"`
	Aprobado       int     `json:"aprobado"`
	Rechazado      int     `json:"rechazado"`
	Cancelado      int     `json:"cancelado"`
	Confirmado     int     `json:"confirmado"`
	AcceptanceRate float64 `json:"acceptance_rate"`
}

// EventStatistics is the read-only rollup served to the owning administrator.
// All figures come from a single snapshot read.
type EventStatistics struct {
	EventID          int64        `json:"event_id"`
	EventName        string       `json:"event_name"`
	InitialCapacity  int          `json:"initial_capacity"`
	Tracks           []TrackStats `json:"tracks"`
	TotalEnrollments int          `json:"total_enrollments"`
	TotalApproved    int          `json:"total_approved"`
	AttendanceRate   float64      `json:"attendance_rate"`
	Occupancy        float64      `json:"occupancy"`
	RevenueApproved  float64      `json:"revenue_approved"`
	RevenuePending   float64      `json:"revenue_pending"`
}
