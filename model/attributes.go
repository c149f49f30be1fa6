package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/aiscope/aiscope/helper"
)

// EventAttributes is the typed attribute bundle of an event. Only the fields
// relevant to the event type are meaningful; ForType drops the rest before
// the bundle crosses the storage boundary.
type EventAttributes struct {
	AmountUSD   *float64 `json:"amount_usd,omitempty"`
	Round       *string  `json:"round,omitempty"`
	Role        *string  `json:"role,omitempty"`
	ProductName *string  `json:"product_name,omitempty"`
	Summary     *string  `json:"summary,omitempty"`
}

// ForType returns a copy carrying only the fields meaningful for the given
// event type. Summary is meaningful for every type.
func (a EventAttributes) ForType(t EventType) EventAttributes {
	out := EventAttributes{Summary: a.Summary}
	switch t {
	case EventTypeFunding:
		out.AmountUSD = a.AmountUSD
		out.Round = a.Round
	case EventTypeAcquisition:
		out.AmountUSD = a.AmountUSD
	case EventTypeHire:
		out.Role = a.Role
	case EventTypeLaunch:
		out.ProductName = a.ProductName
	}
	return out
}

// Value implements the driver.Valuer interface for database storage
func (a EventAttributes) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements the sql.Scanner interface for database retrieval
func (a *EventAttributes) Scan(value interface{}) error {
	if value == nil {
		*a = EventAttributes{}
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return helper.NewError("assert bytes", errors.New("type assertion to []byte failed"))
	}

	return json.Unmarshal(b, a)
}
