package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"eventos-backend/models"
)

func admissionRouter(db *sql.DB, sender *fakeSender, qr *fakeQR, callerID, callerRole string) *gin.Engine {
	h := NewAdmissionHandler(db, sender, qr, testConfig())
	router := gin.New()
	router.Use(authAs(callerID, callerRole))
	router.POST("/events/:id/enrollments/:enrollmentID/approve", h.Approve)
	router.POST("/events/:id/enrollments/:enrollmentID/reject", h.Reject)
	return router
}

func expectDecisionRows(mock sqlmock.Sqlmock, state string, docURL interface{}) {
	mock.ExpectQuery("SELECT id, name, has_cost, state, admin_id FROM events WHERE id").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "has_cost", "state", "admin_id"}).
			AddRow(7, "Congreso Regional", models.CostYes, models.EventPublished, "admin-1"))
	mock.ExpectQuery("SELECT e.id, e.event_id, e.user_id, e.track, e.state, e.document_url, u.email").
		WithArgs("enr-1", int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "user_id", "track", "state", "document_url", "email"}).
			AddRow("enr-1", 7, "user-9", models.TrackParticipant, state, docURL, "maria@example.com"))
}

func TestApprove_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	expectDecisionRows(mock, models.StatePreinscrito, "https://files.test/proposal.pdf")
	mock.ExpectExec("UPDATE enrollments SET state").
		WithArgs(models.StateAprobado, "enr-1", models.StatePreinscrito).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM enrollments WHERE event_id").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("UPDATE enrollments SET access_key").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO email_outbox").
		WithArgs("enr-1", TemplateApproval).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE email_outbox SET status = 'sent'").
		WillReturnResult(sqlmock.NewResult(0, 1))

	sender := &fakeSender{}
	router := admissionRouter(db, sender, &fakeQR{}, "admin-1", models.RoleEventAdmin)

	w := doRequest(router, http.MethodPost, "/events/7/enrollments/enr-1/approve", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Enrollment models.Enrollment `json:"enrollment"`
		Warning    string            `json:"warning"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Enrollment.State != models.StateAprobado {
		t.Errorf("expected state Aprobado, got %s", resp.Enrollment.State)
	}
	if resp.Enrollment.AccessKey == nil || len(*resp.Enrollment.AccessKey) != 12 {
		t.Fatal("expected a 12 character access key")
	}
	if resp.Enrollment.QRRef == nil {
		t.Error("expected a qr reference")
	}
	if resp.Warning != "" {
		t.Errorf("expected no warning, got %q", resp.Warning)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != "maria@example.com" {
		t.Errorf("expected email to maria@example.com, got %s", msg.To)
	}
	if !strings.Contains(msg.Subject, "Congreso Regional") {
		t.Errorf("expected event name in subject, got %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, *resp.Enrollment.AccessKey) {
		t.Error("expected access key in email body")
	}
	if len(msg.Attachments) != 1 {
		t.Errorf("expected qr attachment, got %d attachments", len(msg.Attachments))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestApprove_AlreadyDecided(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	expectDecisionRows(mock, models.StateAprobado, "https://files.test/proposal.pdf")
	mock.ExpectExec("UPDATE enrollments SET state").
		WithArgs(models.StateAprobado, "enr-1", models.StatePreinscrito).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	router := admissionRouter(db, &fakeSender{}, &fakeQR{}, "admin-1", models.RoleEventAdmin)

	w := doRequest(router, http.MethodPost, "/events/7/enrollments/enr-1/approve", nil, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] != models.ErrIllegalTransition.Error() {
		t.Errorf("expected illegal transition error, got %q", resp["error"])
	}
}

func TestApprove_NotOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, name, has_cost, state, admin_id FROM events WHERE id").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "has_cost", "state", "admin_id"}).
			AddRow(7, "Congreso Regional", models.CostYes, models.EventPublished, "admin-1"))
	mock.ExpectRollback()

	router := admissionRouter(db, &fakeSender{}, &fakeQR{}, "intruder", models.RoleEventAdmin)

	w := doRequest(router, http.MethodPost, "/events/7/enrollments/enr-1/approve", nil, "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestApprove_MissingDocument(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	expectDecisionRows(mock, models.StatePreinscrito, nil)
	mock.ExpectRollback()

	router := admissionRouter(db, &fakeSender{}, &fakeQR{}, "admin-1", models.RoleEventAdmin)

	w := doRequest(router, http.MethodPost, "/events/7/enrollments/enr-1/approve", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestApprove_QRFailureIsWarning(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	expectDecisionRows(mock, models.StatePreinscrito, "https://files.test/proposal.pdf")
	mock.ExpectExec("UPDATE enrollments SET state").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM enrollments WHERE event_id").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("UPDATE enrollments SET access_key").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO email_outbox").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE email_outbox SET status = 'sent'").
		WillReturnResult(sqlmock.NewResult(0, 1))

	router := admissionRouter(db, &fakeSender{}, &fakeQR{err: errFake}, "admin-1", models.RoleEventAdmin)

	w := doRequest(router, http.MethodPost, "/events/7/enrollments/enr-1/approve", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Enrollment models.Enrollment `json:"enrollment"`
		Warning    string            `json:"warning"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Enrollment.State != models.StateAprobado {
		t.Errorf("expected state Aprobado despite qr failure, got %s", resp.Enrollment.State)
	}
	if resp.Warning == "" {
		t.Error("expected a qr warning in the response")
	}
}

func TestReject_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	justification := "La propuesta no cumple los requisitos del evento"

	mock.ExpectBegin()
	expectDecisionRows(mock, models.StatePreinscrito, "https://files.test/proposal.pdf")
	mock.ExpectExec("UPDATE enrollments SET state").
		WithArgs(models.StateRechazado, justification, "enr-1", models.StatePreinscrito).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO email_outbox").
		WithArgs("enr-1", TemplateRejection).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE email_outbox SET status = 'sent'").
		WillReturnResult(sqlmock.NewResult(0, 1))

	sender := &fakeSender{}
	router := admissionRouter(db, sender, &fakeQR{}, "admin-1", models.RoleEventAdmin)

	body := bytes.NewBufferString(`{"justification":"` + justification + `"}`)
	w := doRequest(router, http.MethodPost, "/events/7/enrollments/enr-1/reject", body, "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Enrollment models.Enrollment `json:"enrollment"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Enrollment.State != models.StateRechazado {
		t.Errorf("expected state Rechazado, got %s", resp.Enrollment.State)
	}
	if resp.Enrollment.AccessKey != nil {
		t.Error("rejected enrollment must not carry an access key")
	}
	if resp.Enrollment.QRRef != nil {
		t.Error("rejected enrollment must not carry a qr reference")
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0].Body, justification) {
		t.Error("expected justification in rejection email body")
	}
	if len(sender.sent[0].Attachments) != 0 {
		t.Error("rejection email must not carry attachments")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestReject_JustificationTooShort(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	router := admissionRouter(db, &fakeSender{}, &fakeQR{}, "admin-1", models.RoleEventAdmin)

	body := bytes.NewBufferString(`{"justification":"corta"}`)
	w := doRequest(router, http.MethodPost, "/events/7/enrollments/enr-1/reject", body, "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] != models.ErrJustificationTooShort.Error() {
		t.Errorf("expected justification length error, got %q", resp["error"])
	}
}

func TestReject_EmailFailureIsWarning(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	justification := "Documentacion incompleta para el perfil solicitado"

	mock.ExpectBegin()
	expectDecisionRows(mock, models.StatePreinscrito, "https://files.test/proposal.pdf")
	mock.ExpectExec("UPDATE enrollments SET state").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO email_outbox").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	router := admissionRouter(db, &fakeSender{err: errFake}, &fakeQR{}, "admin-1", models.RoleEventAdmin)

	body := bytes.NewBufferString(`{"justification":"` + justification + `"}`)
	w := doRequest(router, http.MethodPost, "/events/7/enrollments/enr-1/reject", body, "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Warning string `json:"warning"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Warning == "" {
		t.Error("expected delivery warning in the response")
	}
}
