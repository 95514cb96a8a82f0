// Package mailer sends email through an HTTP provider API and translates the
// provider's responses into batch retry classes.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/batch"
)

// Message is one email to send.
type Message struct {
	To             string `json:"to"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	AttachmentURL  string `json:"attachment_url,omitempty"`
	AttachmentName string `json:"attachment_name,omitempty"`
	// AttachmentKey identifies the uploaded file in the usage ledger.
	AttachmentKey string `json:"attachment_key,omitempty"`
}

// Validate checks the fields every provider needs.
func (m Message) Validate() error {
	switch {
	case strings.TrimSpace(m.To) == "" || !strings.Contains(m.To, "@"):
		return fmt.Errorf("invalid recipient %q", m.To)
	case strings.TrimSpace(m.Subject) == "":
		return errors.New("subject is required")
	}
	return nil
}

// Receipt is the provider's answer to a successful send.
type Receipt struct {
	ID    string
	Quota *batch.Quota
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// HTTPSender posts messages as JSON to a Resend-compatible endpoint.
type HTTPSender struct {
	client *http.Client
	url    string
	apiKey string
	from   string
	now    func() time.Time
}

// Options configures an HTTPSender.
type Options struct {
	URL     string
	APIKey  string
	From    string
	Timeout time.Duration
	Client  *http.Client
}

// NewHTTPSender returns a sender for opts.
func NewHTTPSender(opts Options) *HTTPSender {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPSender{client: client, url: opts.URL, apiKey: opts.APIKey, from: opts.From, now: time.Now}
}

type attachment struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

type sendRequest struct {
	From        string       `json:"from"`
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	HTML        string       `json:"html"`
	Attachments []attachment `json:"attachments,omitempty"`
}

type sendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Send posts msg. A 429 becomes *batch.RateLimitError, other 4xx responses
// are permanent, and 5xx or transport failures are left retryable.
func (s *HTTPSender) Send(ctx context.Context, msg Message) (Receipt, error) {
	if err := msg.Validate(); err != nil {
		return Receipt{}, batch.Permanent(err)
	}
	body := sendRequest{From: s.from, To: []string{msg.To}, Subject: msg.Subject, HTML: msg.Body}
	if msg.AttachmentURL != "" {
		name := msg.AttachmentName
		if name == "" {
			name = path.Base(msg.AttachmentURL)
		}
		body.Attachments = []attachment{{Filename: name, Path: msg.AttachmentURL}}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Receipt{}, batch.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return Receipt{}, batch.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("send to %s: %w", msg.To, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var out sendResponse
	_ = json.Unmarshal(raw, &out)

	now := s.now()
	quota := quotaFromHeaders(resp.Header, now)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Receipt{}, &batch.RateLimitError{
			Err:        fmt.Errorf("provider rate limit: %s", providerMessage(out, raw, resp.Status)),
			RetryAfter: retryAfter(resp.Header, quota, now),
		}
	case resp.StatusCode >= 500:
		return Receipt{}, fmt.Errorf("provider error: %s", providerMessage(out, raw, resp.Status))
	case resp.StatusCode >= 400:
		return Receipt{}, batch.Permanent(fmt.Errorf("provider rejected message: %s", providerMessage(out, raw, resp.Status)))
	}
	return Receipt{ID: out.ID, Quota: quota}, nil
}

func providerMessage(out sendResponse, raw []byte, status string) string {
	if out.Message != "" {
		return out.Message
	}
	if s := strings.TrimSpace(string(raw)); s != "" && len(s) < 200 {
		return s
	}
	return status
}

// quotaFromHeaders reads ratelimit-limit, ratelimit-remaining and
// ratelimit-reset (seconds). It returns nil when the provider sent none.
func quotaFromHeaders(h http.Header, now time.Time) *batch.Quota {
	limit, lerr := strconv.Atoi(h.Get("ratelimit-limit"))
	remaining, rerr := strconv.Atoi(h.Get("ratelimit-remaining"))
	if lerr != nil || rerr != nil {
		return nil
	}
	q := &batch.Quota{Limit: limit, Remaining: remaining}
	if secs, err := strconv.ParseFloat(h.Get("ratelimit-reset"), 64); err == nil && secs >= 0 {
		q.ResetAt = now.Add(time.Duration(secs * float64(time.Second)))
	}
	return q
}

func retryAfter(h http.Header, q *batch.Quota, now time.Time) time.Duration {
	if secs, err := strconv.Atoi(h.Get("retry-after")); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if q != nil && q.ResetAt.After(now) {
		return q.ResetAt.Sub(now)
	}
	return 0
}
