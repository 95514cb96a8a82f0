package transports

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// HTTPTransport implements SessionsTransport against the HTTP API.
type HTTPTransport struct {
	base   string
	client *http.Client
}

// NewHTTPTransport returns a transport rooted at base (e.g. http://127.0.0.1:8080).
func NewHTTPTransport(base string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{base: strings.TrimRight(base, "/"), client: client}
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.base+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, out)
	}
	return out, nil
}

func statusError(code int, body []byte) error {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("%s: %s", http.StatusText(code), e.Error)
	}
	return fmt.Errorf("%s", http.StatusText(code))
}

func sessionQuery(path, sessionID string) string {
	return path + "?session_id=" + url.QueryEscape(sessionID)
}

// StartGeneration starts a certificate generation session.
func (t *HTTPTransport) StartGeneration(ctx context.Context, body []byte) ([]byte, error) {
	return t.do(ctx, http.MethodPost, "/v1/certificates/generate", body)
}

// StartEmail starts an email session.
func (t *HTTPTransport) StartEmail(ctx context.Context, body []byte) ([]byte, error) {
	return t.do(ctx, http.MethodPost, "/v1/emails/send", body)
}

// Poll returns the session progress.
func (t *HTTPTransport) Poll(ctx context.Context, sessionID string) ([]byte, error) {
	return t.do(ctx, http.MethodGet, sessionQuery("/v1/sessions/poll", sessionID), nil)
}

// Control pauses, resumes or cancels a session.
func (t *HTTPTransport) Control(ctx context.Context, sessionID, action string) ([]byte, error) {
	b, _ := json.Marshal(map[string]string{"session_id": sessionID, "action": action})
	return t.do(ctx, http.MethodPost, "/v1/sessions/control", b)
}

// List returns the live sessions.
func (t *HTTPTransport) List(ctx context.Context) ([]byte, error) {
	return t.do(ctx, http.MethodGet, "/v1/sessions", nil)
}

// Archived returns one archived session.
func (t *HTTPTransport) Archived(ctx context.Context, sessionID string) ([]byte, error) {
	return t.do(ctx, http.MethodGet, sessionQuery("/v1/sessions/archive", sessionID), nil)
}

// ListArchived returns recently archived sessions.
func (t *HTTPTransport) ListArchived(ctx context.Context, limit int) ([]byte, error) {
	return t.do(ctx, http.MethodGet, "/v1/sessions/archive?limit="+strconv.Itoa(limit), nil)
}

// Watch reads the server-sent progress feed.
func (t *HTTPTransport) Watch(ctx context.Context, sessionID string, onEvent func([]byte) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.base+sessionQuery("/v1/sessions/events", sessionID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return statusError(resp.StatusCode, b)
	}
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		if err := onEvent([]byte(strings.TrimPrefix(line, "data: "))); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
