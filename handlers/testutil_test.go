package handlers

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"

	"eventos-backend/config"
	"eventos-backend/mailer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		Secret:                   "test-secret",
		GracePeriodDays:          30,
		AccessKeyLength:          12,
		InvitationTokenLength:    16,
		AssistantAutoApproveFree: true,
		UnitPriceDefault:         50000,
		CapacityExhaustedMessage: "El evento ha alcanzado su capacidad máxima",
	}
}

// authAs injects an authenticated caller the way AuthRequired would.
func authAs(userID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != "" {
			c.Set("user_id", userID)
			c.Set("role", role)
		}
		c.Next()
	}
}

// fakeSender records outbound messages instead of delivering them.
type fakeSender struct {
	sent []mailer.Message
	err  error
}

func (f *fakeSender) Send(msg mailer.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

// fakeQR returns a canned artifact reference.
type fakeQR struct {
	ref string
	err error
}

func (f *fakeQR) Render(payload string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.ref == "" {
		return "qr/" + payload, nil
	}
	return f.ref, nil
}

// fakeUploader returns a deterministic URL for any file.
type fakeUploader struct {
	err error
}

func (f *fakeUploader) Upload(file multipart.File, name string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://files.test/" + name, nil
}

var errFake = errors.New("fake failure")

// multipartBody builds a multipart form with text fields and optional files.
func multipartBody(fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		w.WriteField(k, v)
	}
	for field, filename := range files {
		fw, _ := w.CreateFormFile(field, filename)
		fw.Write([]byte("file-content"))
	}
	w.Close()
	return buf, w.FormDataContentType()
}

func doRequest(router *gin.Engine, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	router.ServeHTTP(w, req)
	return w
}
