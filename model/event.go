package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies a ledger event
type EventType string

const (
	EventTypeFunding     EventType = "funding"
	EventTypeLaunch      EventType = "launch"
	EventTypeHire        EventType = "hire"
	EventTypePartnership EventType = "partnership"
	EventTypeAcquisition EventType = "acquisition"
)

// Valid reports whether the event type is one of the known values
func (t EventType) Valid() bool {
	switch t {
	case EventTypeFunding, EventTypeLaunch, EventTypeHire, EventTypePartnership, EventTypeAcquisition:
		return true
	}
	return false
}

// Event is one immutable fact in the append-only ledger.
// OccurredAt is the estimated real-world date of the event and may be nil;
// RecordedAt is when the ledger learned the fact and orders the ledger.
// No field is ever mutated after creation.
type Event struct {
	ID         int64           `json:"id"`
	RID        uuid.UUID       `json:"rid"`
	Type       EventType       `json:"type"`
	OccurredAt *time.Time      `json:"occurred_at,omitempty"`
	Attributes EventAttributes `json:"attributes"`
	Confidence *float64        `json:"confidence,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// EventEntityRole links an entity to an event with a semantic role,
// e.g. "company", "investor", "acquirer", "target"
type EventEntityRole struct {
	ID       int64   `json:"id"`
	EventID  int64   `json:"event_id"`
	EntityID int64   `json:"entity_id"`
	Role     *string `json:"role,omitempty"`
}

// Mention is the provenance link from a source document to an (entity, event)
// pair. The existence of any mention for a document marks it as processed.
type Mention struct {
	ID         int64   `json:"id"`
	DocumentID int64   `json:"document_id"`
	EntityID   *int64  `json:"entity_id,omitempty"`
	EventID    *int64  `json:"event_id,omitempty"`
	Snippet    *string `json:"snippet,omitempty"`
}

// NoveltyLabelValue is the point-in-time novelty classification of an event
type NoveltyLabelValue string

const (
	NoveltyNew    NoveltyLabelValue = "new"
	NoveltyRepeat NoveltyLabelValue = "repeat"
	NoveltyUpdate NoveltyLabelValue = "update"
)

// NoveltyLabel is an append-only classification of one event at one instant.
// Labels accumulate over runs; the most recently computed one is the
// read-side current label.
type NoveltyLabel struct {
	ID         int64             `json:"id"`
	EventID    int64             `json:"event_id"`
	Label      NoveltyLabelValue `json:"label"`
	ComputedAt time.Time         `json:"computed_at"`
}

// EventParticipant is the read-side join of an event role with its entity,
// used by the global event listing
type EventParticipant struct {
	EntityID int64      `json:"entity_id"`
	Name     string     `json:"name"`
	Type     EntityType `json:"type"`
	Role     *string    `json:"role,omitempty"`
}
