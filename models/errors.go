package models

import (
	"errors"
	"net/http"
)

// Sentinel errors for every failure the core can report. Handlers translate
// these to HTTP codes with StatusFor; anything unknown maps to 500.
var (
	// Input validation
	ErrValidation            = errors.New("validation failed")
	ErrJustificationTooShort = errors.New("justification must be at least 10 characters")
	ErrMissingPaymentProof   = errors.New("payment proof is required for paid events")
	ErrMissingRequiredDocs   = errors.New("required documents are missing")
	ErrMissingPublicFields   = errors.New("event is missing mandatory public fields")

	// Authorization
	ErrNotAuthenticated = errors.New("authentication required")
	ErrNotOwner         = errors.New("requestor is not the owning event administrator")
	ErrNotSuperAdmin    = errors.New("operation restricted to super administrators")

	// Preconditions
	ErrIllegalTransition     = errors.New("enrollment state does not allow this transition")
	ErrCapacityExhausted     = errors.New("event capacity exhausted")
	ErrDuplicateEnrollment   = errors.New("an active enrollment already exists for this event")
	ErrRoleConflict          = errors.New("user already acts in a different role for this event")
	ErrDuplicateIdentity     = errors.New("email or cedula already registered")
	ErrEventNotActive        = errors.New("event is not open for enrollment")
	ErrGracePeriodNotElapsed = errors.New("grace period has not elapsed")
	ErrTokenExpired          = errors.New("invitation token expired")
	ErrTokenUsed             = errors.New("invitation token already used")

	// Not found
	ErrUnknownEvent      = errors.New("event not found")
	ErrUnknownEnrollment = errors.New("enrollment not found")
	ErrUnknownToken      = errors.New("invitation token not found")
	ErrUnknownUser       = errors.New("user not found")

	// External services (post-commit; reported as warnings, never failures)
	ErrEmailDeliveryFailed = errors.New("email delivery failed")
	ErrQRRenderFailed      = errors.New("qr render failed")

	ErrEmptyRecipientSet = errors.New("no recipients match the target group")
)

var errStatus = map[error]int{
	ErrValidation:            http.StatusBadRequest,
	ErrJustificationTooShort: http.StatusBadRequest,
	ErrMissingPaymentProof:   http.StatusBadRequest,
	ErrMissingRequiredDocs:   http.StatusBadRequest,
	ErrMissingPublicFields:   http.StatusBadRequest,
	ErrNotAuthenticated:      http.StatusUnauthorized,
	ErrNotOwner:              http.StatusForbidden,
	ErrNotSuperAdmin:         http.StatusForbidden,
	ErrIllegalTransition:     http.StatusConflict,
	ErrCapacityExhausted:     http.StatusConflict,
	ErrDuplicateEnrollment:   http.StatusConflict,
	ErrRoleConflict:          http.StatusConflict,
	ErrDuplicateIdentity:     http.StatusConflict,
	ErrEventNotActive:        http.StatusConflict,
	ErrGracePeriodNotElapsed: http.StatusConflict,
	ErrTokenExpired:          http.StatusGone,
	ErrTokenUsed:             http.StatusConflict,
	ErrUnknownEvent:          http.StatusNotFound,
	ErrUnknownEnrollment:     http.StatusNotFound,
	ErrUnknownToken:          http.StatusNotFound,
	ErrUnknownUser:           http.StatusNotFound,
	ErrEmptyRecipientSet:     http.StatusUnprocessableEntity,
}

// StatusFor maps a core error to its HTTP status code.
func StatusFor(err error) int {
	for sentinel, code := range errStatus {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return http.StatusInternalServerError
}
