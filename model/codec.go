package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/aiscope/aiscope/helper"
)

// StringList represents a JSONB array of strings stored in PostgreSQL
type StringList []string

// Value implements the driver.Valuer interface for database storage
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(l)
}

// Scan implements the sql.Scanner interface for database retrieval
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return helper.NewError("assert bytes", errors.New("type assertion to []byte failed"))
	}

	return json.Unmarshal(b, l)
}
