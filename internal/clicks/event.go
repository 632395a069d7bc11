// Package clicks buffers redirect click events in memory and periodically
// writes them to the store as per-(link, source IP) aggregates.
package clicks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	Unknown       = "Unknown"
	DirectReferer = "Direct"
)

// Dimensions describe where a click came from. Empty fields are filled with
// defaults before the event is queued.
type Dimensions struct {
	City      string `json:"city,omitempty"`
	Region    string `json:"region,omitempty"`
	Country   string `json:"country,omitempty"`
	Latitude  string `json:"latitude,omitempty"`
	Longitude string `json:"longitude,omitempty"`
	Referer   string `json:"referer,omitempty"`
	Language  string `json:"language,omitempty"`
	Device    string `json:"device,omitempty"`
	Browser   string `json:"browser,omitempty"`
}

// WithDefaults returns d with every empty field set to Unknown, except an
// empty referer which becomes Direct.
func (d Dimensions) WithDefaults() Dimensions {
	for _, f := range []*string{
		&d.City, &d.Region, &d.Country, &d.Latitude, &d.Longitude,
		&d.Language, &d.Device, &d.Browser,
	} {
		*f = orDefault(*f, Unknown)
	}
	d.Referer = orDefault(d.Referer, DirectReferer)
	return d
}

// Event is one click on a resolved link.
type Event struct {
	LinkID     uuid.UUID
	SourceIP   string
	Dimensions Dimensions
	Count      int64 // values below 1 count as 1
}

func (e Event) weight() int64 {
	if e.Count <= 0 {
		return 1
	}
	return e.Count
}

// QueuedClick is an event waiting in the queue. Key is unique per enqueue so
// concurrent events for the same link and IP never overwrite each other.
type QueuedClick struct {
	Key        uuid.UUID
	Event      Event
	EnqueuedAt time.Time
}

// Aggregate is the coalesced form of all queued events for one link and source IP.
type Aggregate struct {
	LinkID     uuid.UUID
	SourceIP   string
	Count      int64
	Dimensions Dimensions // from the most recent event
	LastSeen   time.Time
}

// Store persists aggregates. An upsert adds Count to any existing counter for
// (LinkID, SourceIP) and overwrites its dimensions.
type Store interface {
	UpsertClickAggregate(ctx context.Context, agg Aggregate) error
}

// Coalesce groups a batch by link and source IP, summing counts and keeping
// the dimensions of the latest event. Aggregates keep first-seen order.
func Coalesce(batch []QueuedClick) []Aggregate {
	type key struct {
		linkID   uuid.UUID
		sourceIP string
	}

	index := make(map[key]int, len(batch))
	out := make([]Aggregate, 0, len(batch))

	for _, qc := range batch {
		ev := qc.Event
		k := key{linkID: ev.LinkID, sourceIP: ev.SourceIP}

		if i, ok := index[k]; ok {
			agg := &out[i]
			agg.Count += ev.weight()
			if !qc.EnqueuedAt.Before(agg.LastSeen) {
				agg.Dimensions = ev.Dimensions
				agg.LastSeen = qc.EnqueuedAt
			}
			continue
		}

		index[k] = len(out)
		out = append(out, Aggregate{
			LinkID:     ev.LinkID,
			SourceIP:   ev.SourceIP,
			Count:      ev.weight(),
			Dimensions: ev.Dimensions,
			LastSeen:   qc.EnqueuedAt,
		})
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
