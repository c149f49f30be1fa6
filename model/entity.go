package model

import (
	"time"
)

// EntityType classifies a resolved entity
type EntityType string

const (
	EntityTypeCompany  EntityType = "company"
	EntityTypePerson   EntityType = "person"
	EntityTypeProduct  EntityType = "product"
	EntityTypeInvestor EntityType = "investor"
)

// Valid reports whether the entity type is one of the known values
func (t EntityType) Valid() bool {
	switch t {
	case EntityTypeCompany, EntityTypePerson, EntityTypeProduct, EntityTypeInvestor:
		return true
	}
	return false
}

// Entity is a canonical identity for a company, person, product or investor.
// At most one entity exists per external_id when set, otherwise per (name, type).
// Name and type are never overwritten once created; only aliases accumulate.
type Entity struct {
	ID         int64      `json:"id"`
	ExternalID *string    `json:"external_id,omitempty"`
	Name       string     `json:"name"`
	Type       EntityType `json:"type"`
	Aliases    StringList `json:"aliases,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// HasAlias reports whether the entity already carries the given alias
func (e *Entity) HasAlias(alias string) bool {
	for _, a := range e.Aliases {
		if a == alias {
			return true
		}
	}
	return false
}
