package batch

import "time"

// Progress is a point-in-time view of a session.
type Progress struct {
	SessionID   string `json:"session_id"`
	Kind        string `json:"kind,omitempty"`
	Status      Status `json:"status"`
	Total       int    `json:"total"`
	Processed   int    `json:"processed"`
	Failed      int    `json:"failed"`
	Remaining   int    `json:"remaining"`
	CurrentItem string `json:"current_item,omitempty"`
	// EstimatedTimeRemaining is derived from the configured cadence.
	EstimatedTimeRemaining   time.Duration `json:"-"`
	EstimatedTimeRemainingMs int64         `json:"estimated_time_remaining_ms"`
	RateLimitedUntil         *time.Time    `json:"rate_limited_until,omitempty"`
	CreatedAt                time.Time     `json:"created_at"`
	LastActivityAt           time.Time     `json:"last_activity_at"`
}

// ItemOutput is the recorded outcome of a successful item.
type ItemOutput struct {
	ItemIndex int    `json:"item_index"`
	ItemID    string `json:"item_id"`
	Label     string `json:"label,omitempty"`
	Output    string `json:"output"`
}

// ItemFailure is a permanently failed item.
type ItemFailure struct {
	ItemIndex int    `json:"item_index"`
	ItemID    string `json:"item_id"`
	Label     string `json:"label,omitempty"`
	Error     string `json:"error"`
	Attempts  int    `json:"attempts"`
}

// Results lists per-item outcomes in queue order.
type Results struct {
	Outputs        []ItemOutput  `json:"outputs"`
	Failures       []ItemFailure `json:"failures"`
	TotalProcessed int           `json:"total_processed"`
	TotalFailed    int           `json:"total_failed"`
}

// Snapshot is the final state handed to an Archiver.
type Snapshot struct {
	Progress Progress `json:"progress"`
	Results  Results  `json:"results"`
}

// Progress returns the current progress of the session.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

// Results returns the outcomes recorded so far. Repeated calls on a terminal
// session return the same payload.
func (s *Session) Results() Results {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultsLocked()
}

func (s *Session) progressLocked() Progress {
	c := s.queue.Counts()
	p := Progress{
		SessionID:      s.id,
		Kind:           s.cfg.Kind,
		Status:         s.status,
		Total:          c.Total(),
		Processed:      c.Done,
		Failed:         c.Failed,
		CreatedAt:      s.createdAt,
		LastActivityAt: s.lastActivity,
	}
	p.Remaining = p.Total - p.Processed - p.Failed
	if it := s.queue.active(); it != nil {
		p.CurrentItem = it.Label
		if p.CurrentItem == "" {
			p.CurrentItem = it.ID
		}
	}
	if !s.status.Terminal() {
		eta := time.Duration(p.Remaining) * s.cadence()
		p.EstimatedTimeRemaining = eta
		p.EstimatedTimeRemainingMs = eta.Milliseconds()
	}
	if !s.waitUntil.IsZero() && s.waitUntil.After(s.clk.Now()) {
		t := s.waitUntil
		p.RateLimitedUntil = &t
	}
	return p
}

// cadence is the expected time per item: the step delay spread over a batch,
// or the limiter's pace when that is slower.
func (s *Session) cadence() time.Duration {
	per := s.cfg.StepDelay / time.Duration(s.cfg.BatchSize)
	if p, ok := s.cfg.Limiter.(Pacer); ok {
		if c := p.Cadence(); c > per {
			per = c
		}
	}
	return per
}

func (s *Session) resultsLocked() Results {
	r := Results{Outputs: []ItemOutput{}, Failures: []ItemFailure{}}
	for _, it := range s.queue.items {
		switch it.Status {
		case ItemDone:
			r.Outputs = append(r.Outputs, ItemOutput{
				ItemIndex: it.Index,
				ItemID:    it.ID,
				Label:     it.Label,
				Output:    it.Output,
			})
		case ItemFailed:
			r.Failures = append(r.Failures, ItemFailure{
				ItemIndex: it.Index,
				ItemID:    it.ID,
				Label:     it.Label,
				Error:     it.LastError,
				Attempts:  it.Attempts,
			})
		}
	}
	r.TotalProcessed = len(r.Outputs)
	r.TotalFailed = len(r.Failures)
	return r
}
