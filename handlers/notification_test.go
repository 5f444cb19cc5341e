package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"eventos-backend/models"
)

func notificationRouter(db *sql.DB, email, sms *fakeSender) *gin.Engine {
	h := NewNotificationHandler(db, email, sms)
	router := gin.New()
	router.Use(authAs("admin-1", models.RoleEventAdmin))
	router.POST("/events/:id/notifications", h.Send)
	return router
}

func expectOwnedEvent(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT id, name, admin_id FROM events WHERE id").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "admin_id"}).
			AddRow(7, "Congreso Regional", "admin-1"))
}

func TestSendNotification_ParticipantsEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	expectOwnedEvent(mock)
	mock.ExpectQuery("SELECT DISTINCT ON \\(u.email\\) u.email, u.phone").
		WithArgs(int64(7), models.TrackParticipant, models.StateAprobado).
		WillReturnRows(sqlmock.NewRows([]string{"email", "phone"}).
			AddRow("ana@example.com", "3001112233").
			AddRow("maria@example.com", ""))

	email := &fakeSender{}
	router := notificationRouter(db, email, &fakeSender{})

	body := bytes.NewBufferString(`{
		"target_group": "PARTICIPANTS_ONLY",
		"title": "Cambio de sala",
		"body": "Las ponencias se trasladan al auditorio 2",
		"channel": "EMAIL"
	}`)
	w := doRequest(router, http.MethodPost, "/events/7/notifications", body, "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var report models.DispatchReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("failed to unmarshal report: %v", err)
	}
	if report.Delivered != 2 || report.Failed != 0 {
		t.Errorf("expected 2 delivered 0 failed, got %d/%d", report.Delivered, report.Failed)
	}
	if len(email.sent) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(email.sent))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestSendNotification_EmptyRecipientSet(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	expectOwnedEvent(mock)
	mock.ExpectQuery("SELECT DISTINCT ON \\(u.email\\) u.email, u.phone").
		WillReturnRows(sqlmock.NewRows([]string{"email", "phone"}))

	router := notificationRouter(db, &fakeSender{}, &fakeSender{})

	body := bytes.NewBufferString(`{
		"target_group": "EVALUATORS_ONLY",
		"title": "Recordatorio",
		"body": "Las evaluaciones cierran el viernes",
		"channel": "EMAIL"
	}`)
	w := doRequest(router, http.MethodPost, "/events/7/notifications", body, "application/json")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSendNotification_UnknownGroup(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	expectOwnedEvent(mock)

	router := notificationRouter(db, &fakeSender{}, &fakeSender{})

	body := bytes.NewBufferString(`{
		"target_group": "EVERYONE",
		"title": "Hola",
		"body": "Mensaje",
		"channel": "EMAIL"
	}`)
	w := doRequest(router, http.MethodPost, "/events/7/notifications", body, "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSendNotification_EmptyTitleRejected(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	expectOwnedEvent(mock)

	router := notificationRouter(db, &fakeSender{}, &fakeSender{})

	body := bytes.NewBufferString(`{
		"target_group": "PARTICIPANTS_ONLY",
		"title": "",
		"body": "Mensaje",
		"channel": "EMAIL"
	}`)
	w := doRequest(router, http.MethodPost, "/events/7/notifications", body, "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSendNotification_SMSWithoutPhoneFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	expectOwnedEvent(mock)
	mock.ExpectQuery("SELECT DISTINCT ON \\(u.email\\) u.email, u.phone").
		WillReturnRows(sqlmock.NewRows([]string{"email", "phone"}).
			AddRow("ana@example.com", "3001112233").
			AddRow("maria@example.com", ""))

	sms := &fakeSender{}
	router := notificationRouter(db, &fakeSender{}, sms)

	body := bytes.NewBufferString(`{
		"target_group": "ALL_CONFIRMED",
		"title": "Inicio",
		"body": "El evento inicia a las 8am",
		"channel": "SMS"
	}`)
	w := doRequest(router, http.MethodPost, "/events/7/notifications", body, "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var report models.DispatchReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("failed to unmarshal report: %v", err)
	}
	if report.Delivered != 1 || report.Failed != 1 {
		t.Errorf("expected 1 delivered 1 failed, got %d/%d", report.Delivered, report.Failed)
	}
	if len(sms.sent) != 1 {
		t.Fatalf("expected 1 sms, got %d", len(sms.sent))
	}
	if sms.sent[0].To != "3001112233" {
		t.Errorf("expected sms to the phone number, got %s", sms.sent[0].To)
	}
}

func TestSendNotification_NotOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, name, admin_id FROM events WHERE id").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "admin_id"}).
			AddRow(7, "Congreso Regional", "someone-else"))

	router := notificationRouter(db, &fakeSender{}, &fakeSender{})

	body := bytes.NewBufferString(`{
		"target_group": "PARTICIPANTS_ONLY",
		"title": "Hola",
		"body": "Mensaje",
		"channel": "EMAIL"
	}`)
	w := doRequest(router, http.MethodPost, "/events/7/notifications", body, "application/json")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d: %s", w.Code, w.Body.String())
	}
}
