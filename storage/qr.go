package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// QRRenderer turns a payload into a stored QR image and returns its
// reference. Rendering happens in an external service; the core never touches
// image bytes.
type QRRenderer interface {
	Render(payload string) (string, error)
}

// QRClient calls the external QR rendering service over HTTP.
type QRClient struct {
	URL    string
	client *http.Client
}

func NewQRClient(url string) *QRClient {
	return &QRClient{
		URL:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (q *QRClient) Render(payload string) (string, error) {
	reqBody, _ := json.Marshal(map[string]string{"payload": payload})

	resp, err := q.client.Post(q.URL, "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("qr renderer unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("qr renderer returned %d: %s", resp.StatusCode, body)
	}

	var out struct {
		Ref string `json:"ref"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("qr renderer bad response: %w", err)
	}
	return out.Ref, nil
}
