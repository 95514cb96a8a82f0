package certsvc

import (
	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/archive"
	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/batch"
	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/mailer"
	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/render"
)

const (
	KindGenerate = "generate"
	KindEmail    = "email"
)

// GenerateRequest starts a certificate generation session.
type GenerateRequest struct {
	SessionID   string              `json:"session_id,omitempty"`
	Template    render.Template     `json:"template"`
	Rows        []map[string]string `json:"rows"`
	NamingField string              `json:"naming_field,omitempty"`
	BatchSize   int                 `json:"batch_size,omitempty"`
	// Filter is an optional CEL expression over `row`; rows where it is
	// false are skipped.
	Filter string        `json:"filter,omitempty"`
	Output OutputOptions `json:"output,omitempty"`
}

// OutputOptions selects where generated documents go.
type OutputOptions struct {
	Backend string `json:"backend,omitempty"`
	Prefix  string `json:"prefix,omitempty"`
}

// EmailRequest starts an email dispatch session.
type EmailRequest struct {
	SessionID string           `json:"session_id,omitempty"`
	Messages  []mailer.Message `json:"messages"`
	RateLimit *RateLimit       `json:"rate_limit,omitempty"`
	BatchSize int              `json:"batch_size,omitempty"`
}

// RateLimit overrides the configured provider quota for one session.
type RateLimit struct {
	Limit    int `json:"limit"`
	WindowMs int `json:"window_ms"`
}

// StartResponse is returned by both start operations.
type StartResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Total     int    `json:"total"`
	BatchSize int    `json:"batch_size"`
	// Skipped counts rows dropped by the filter.
	Skipped int `json:"skipped,omitempty"`
}

// PollResponse is the progress snapshot, with results once terminal.
type PollResponse struct {
	batch.Progress
	Results *batch.Results `json:"results,omitempty"`
}

// Action is a control verb.
type Action string

const (
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionCancel Action = "cancel"
)

// ControlResponse reports the state after a control action.
type ControlResponse struct {
	SessionID string       `json:"session_id"`
	Action    Action       `json:"action"`
	Status    batch.Status `json:"status"`
}

// ArchivedResponse is a session read back from the archive.
type ArchivedResponse = archive.Record
