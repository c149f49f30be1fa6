package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrNoEnvelope is returned when a model response is valid JSON but matches
// none of the known response envelopes
var ErrNoEnvelope = errors.New("no known response envelope matched")

// eventTimeLayouts are tried in order when parsing occurred_at values.
// Models return anything from a bare date to a full timestamp.
var eventTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
}

// EventTime is a time.Time that tolerates the date formats models emit
type EventTime struct {
	time.Time
}

// UnmarshalJSON accepts null, RFC 3339 timestamps and bare dates
func (t *EventTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		t.Time = time.Time{}
		return nil
	}

	var lastErr error
	for _, layout := range eventTimeLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// MarshalJSON renders the time as RFC 3339, or null when zero
func (t EventTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// EntityRef is an entity reference inside an extracted event, before
// resolution against the entity store
type EntityRef struct {
	Name string     `json:"name"`
	Type EntityType `json:"type"`
	Role *string    `json:"role"`
}

// ExtractedEvent is one schema-valid candidate event parsed from a model
// response, not yet persisted
type ExtractedEvent struct {
	Type           EventType       `json:"type"`
	OccurredAt     *EventTime      `json:"occurred_at"`
	Entities       []EntityRef     `json:"entities"`
	Attributes     EventAttributes `json:"attributes"`
	Confidence     *float64        `json:"confidence"`
	SourceURLs     []string        `json:"source_urls"`
	EvidenceQuotes []string        `json:"evidence_quotes"`
}

// AddSourceURL adds url to the event's source URL set if not already present
func (e *ExtractedEvent) AddSourceURL(url string) {
	for _, u := range e.SourceURLs {
		if u == url {
			return
		}
	}
	e.SourceURLs = append(e.SourceURLs, url)
}

// OccurredAtTime returns the occurred_at value as *time.Time, nil when absent
func (e *ExtractedEvent) OccurredAtTime() *time.Time {
	if e.OccurredAt == nil || e.OccurredAt.IsZero() {
		return nil
	}
	t := e.OccurredAt.Time
	return &t
}

// ExtractionResult is the set of candidate events extracted from one document
type ExtractionResult struct {
	Events []ExtractedEvent `json:"events"`
}

// envelope mirrors the response shapes models are known to produce: the
// requested {"events": [...]} object, the same object wrapped in a "data"
// key, or a bare top-level array of events.
type envelope struct {
	Events []json.RawMessage `json:"events"`
	Data   json.RawMessage   `json:"data"`
}

// DecodeExtractionResult parses a model response into an ExtractionResult,
// trying each known envelope shape in order. Events with an unknown type and
// entity references with an unknown type are dropped rather than failing the
// whole response. Returns an error only when the input is not JSON or no
// envelope matches.
func DecodeExtractionResult(raw []byte) (*ExtractionResult, error) {
	events, err := decodeEnvelope(raw, true)
	if err != nil {
		return nil, err
	}

	result := &ExtractionResult{Events: make([]ExtractedEvent, 0, len(events))}
	for _, rawEvent := range events {
		var event ExtractedEvent
		if err := json.Unmarshal(rawEvent, &event); err != nil {
			continue
		}
		if !event.Type.Valid() {
			continue
		}

		valid := event.Entities[:0]
		for _, ref := range event.Entities {
			if ref.Type.Valid() && strings.TrimSpace(ref.Name) != "" {
				valid = append(valid, ref)
			}
		}
		event.Entities = valid

		result.Events = append(result.Events, event)
	}

	return result, nil
}

func decodeEnvelope(raw []byte, allowUnwrap bool) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))

	// Bare top-level array of events
	if strings.HasPrefix(trimmed, "[") {
		var events []json.RawMessage
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil, err
		}
		return events, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}

	if env.Events != nil {
		return env.Events, nil
	}

	// Unwrap a "data" wrapper exactly once and retry interpretation
	if allowUnwrap && len(env.Data) > 0 {
		return decodeEnvelope(env.Data, false)
	}

	return nil, ErrNoEnvelope
}
