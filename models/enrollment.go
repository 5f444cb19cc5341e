package models

import "time"

// Enrollment tracks. One entity with a track discriminator replaces the three
// parallel per-track tables of the source schema.
const (
	TrackAssistant   = "ASISTENTE"
	TrackParticipant = "PARTICIPANTE"
	TrackEvaluator   = "EVALUADOR"
)

// Enrollment states.
const (
	StatePreinscrito = "Preinscrito"
	StateAprobado    = "Aprobado"
	StateRechazado   = "Rechazado"
	StateCancelado   = "Cancelado"
	StateConfirmado  = "Confirmado"
)

type Enrollment struct {
	ID            string    `json:"id" db:"id"`
	EventID       int64     `json:"event_id" db:"event_id"`
	UserID        string    `json:"user_id" db:"user_id"`
	Track         string    `json:"track" db:"track"`
	State         string    `json:"state" db:"state"`
	DocumentURL   *string   `json:"document_url,omitempty" db:"document_url"`
	AccessKey     *string   `json:"access_key,omitempty" db:"access_key"`
	QRRef         *string   `json:"qr_ref,omitempty" db:"qr_ref"`
	Justification *string   `json:"justification,omitempty" db:"justification"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// TrackFromPath maps the URL track segment to its canonical constant.
func TrackFromPath(segment string) (string, bool) {
	switch segment {
	case "assistant":
		return TrackAssistant, true
	case "participant":
		return TrackParticipant, true
	case "evaluator":
		return TrackEvaluator, true
	}
	return "", false
}

// RoleForTrack returns the user role tag a track enrolls under.
func RoleForTrack(track string) string {
	return track // track constants reuse the role vocabulary
}

// DocumentField names the multipart field carrying the track's mandatory
// document. The assistant document is only mandatory for paid events.
func DocumentField(track string) string {
	switch track {
	case TrackAssistant:
		return "payment_proof"
	case TrackParticipant:
		return "proposal"
	case TrackEvaluator:
		return "cv"
	}
	return "document"
}

type EnrollmentForm struct {
	Email  string `form:"email" binding:"required,email"`
	Cedula string `form:"cedula" binding:"required"`
	Name   string `form:"name" binding:"required"`
	Phone  string `form:"phone"`
}
