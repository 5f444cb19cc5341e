package models

import "time"

// Event lifecycle states.
const (
	EventDraft        = "DRAFT"
	EventActive       = "ACTIVE"
	EventPublished    = "PUBLISHED"
	EventFinalized    = "FINALIZED"
	EventDespublished = "DESPUBLISHED_WEB"
	EventArchived     = "ARCHIVED"
)

// Cost flag values, kept as the source system records them.
const (
	CostYes = "SI"
	CostNo  = "NO"
)

type Event struct {
	ID               int64     `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	Description      string    `json:"description" db:"description"`
	City             string    `json:"city" db:"city"`
	Venue            string    `json:"venue" db:"venue"`
	StartDate        time.Time `json:"start_date" db:"start_date"`
	EndDate          time.Time `json:"end_date" db:"end_date"`
	Capacity         int       `json:"capacity" db:"capacity"`
	InitialCapacity  int       `json:"initial_capacity" db:"initial_capacity"`
	HasCost          string    `json:"has_cost" db:"has_cost"`
	State            string    `json:"state" db:"state"`
	AdminID          string    `json:"admin_id" db:"admin_id"`
	BannerURL        *string   `json:"banner_url,omitempty" db:"banner_url"`
	ProgrammingURL   *string   `json:"programming_url,omitempty" db:"programming_url"`
	TechnicalInfoURL *string   `json:"technical_info_url,omitempty" db:"technical_info_url"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

type CreateEventRequest struct {
	Name        string `form:"name" binding:"required"`
	Description string `form:"description"`
	City        string `form:"city"`
	Venue       string `form:"venue"`
	StartDate   string `form:"start_date" binding:"required"`
	EndDate     string `form:"end_date" binding:"required"`
	Capacity    int    `form:"capacity" binding:"min=0"`
	HasCost     string `form:"has_cost" binding:"required,oneof=SI NO"`
}

type UpdateEventRequest struct {
	Name        string `form:"name"`
	Description string `form:"description"`
	City        string `form:"city"`
	Venue       string `form:"venue"`
}

// PublicReady reports whether every field mandatory for web publication is
// set: name, description, city, venue and banner image.
func (e *Event) PublicReady() bool {
	return e.Name != "" && e.Description != "" && e.City != "" &&
		e.Venue != "" && e.BannerURL != nil && *e.BannerURL != ""
}
