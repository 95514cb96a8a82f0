package batch

import (
	"time"

	"github.com/tinkertanker/bamboobot-cert-generator-sub002/pkg/id"
)

// ItemStatus is the processing state of a single Item.
type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemActive  ItemStatus = "active"
	ItemDone    ItemStatus = "done"
	ItemFailed  ItemStatus = "failed"
)

// Item is one unit of work and its retry bookkeeping.
type Item struct {
	ID      string `json:"id"`
	Index   int    `json:"index"`
	Label   string `json:"label,omitempty"`
	Payload any    `json:"-"`

	Status         ItemStatus `json:"status"`
	Attempts       int        `json:"attempts"`
	LastError      string     `json:"last_error,omitempty"`
	NextEligibleAt time.Time  `json:"next_eligible_at,omitempty"`
	Output         string     `json:"output,omitempty"`
}

// Eligible reports whether the item may be attempted at now.
func (it *Item) Eligible(now time.Time) bool {
	return it.Status == ItemPending && (it.NextEligibleAt.IsZero() || !now.Before(it.NextEligibleAt))
}

// Entry is what callers enqueue: a payload and the label shown as the
// current item in progress reports.
type Entry struct {
	Label   string
	Payload any
}

// Counts is the per-status tally of a Queue.
type Counts struct {
	Pending int `json:"pending"`
	Active  int `json:"active"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
}

// Total is the number of items in the queue.
func (c Counts) Total() int { return c.Pending + c.Active + c.Done + c.Failed }

// Queue holds items in insertion order. Items are never reordered or removed;
// counts are updated on every status transition so they always equal the
// per-status item counts.
type Queue struct {
	items  []*Item
	counts Counts
	ids    *id.Generator
}

func newQueue(ids *id.Generator) *Queue {
	return &Queue{ids: ids}
}

func (q *Queue) push(e Entry) *Item {
	it := &Item{
		ID:      q.ids.Next().String(),
		Index:   len(q.items),
		Label:   e.Label,
		Payload: e.Payload,
		Status:  ItemPending,
	}
	q.items = append(q.items, it)
	q.counts.Pending++
	return it
}

// Len returns the number of items.
func (q *Queue) Len() int { return len(q.items) }

// Counts returns the status tally.
func (q *Queue) Counts() Counts { return q.counts }

// next returns the first eligible item in insertion order.
func (q *Queue) next(now time.Time) *Item {
	for _, it := range q.items {
		if it.Eligible(now) {
			return it
		}
	}
	return nil
}

// earliestDelayed returns the soonest NextEligibleAt among pending items
// still backing off.
func (q *Queue) earliestDelayed(now time.Time) (time.Time, bool) {
	var at time.Time
	found := false
	for _, it := range q.items {
		if it.Status != ItemPending || it.NextEligibleAt.IsZero() || !now.Before(it.NextEligibleAt) {
			continue
		}
		if !found || it.NextEligibleAt.Before(at) {
			at = it.NextEligibleAt
			found = true
		}
	}
	return at, found
}

func (q *Queue) active() *Item {
	if q.counts.Active == 0 {
		return nil
	}
	for _, it := range q.items {
		if it.Status == ItemActive {
			return it
		}
	}
	return nil
}

func (q *Queue) transition(it *Item, to ItemStatus) {
	if it.Status == to {
		return
	}
	q.adjust(it.Status, -1)
	q.adjust(to, 1)
	it.Status = to
}

func (q *Queue) adjust(s ItemStatus, d int) {
	switch s {
	case ItemPending:
		q.counts.Pending += d
	case ItemActive:
		q.counts.Active += d
	case ItemDone:
		q.counts.Done += d
	case ItemFailed:
		q.counts.Failed += d
	}
}

// snapshot copies every item.
func (q *Queue) snapshot() []Item {
	out := make([]Item, len(q.items))
	for i, it := range q.items {
		out[i] = *it
	}
	return out
}
