package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/batch"
)

// sseSink writes progress snapshots as Server-Sent Events.
type sseSink struct {
	w http.ResponseWriter
}

func newSSESink(w http.ResponseWriter) sseSink {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return sseSink{w: w}
}

// Send writes one "progress" event.
func (s sseSink) Send(p batch.Progress) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("event: progress\ndata: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	return s.Flush()
}

// Flush flushes the HTTP response writer if it supports flushing.
func (s sseSink) Flush() error {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
