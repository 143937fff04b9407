package models

import (
	"time"

	"github.com/google/uuid"
)

// Entity is a tracked person, place, object, or concept mentioned in events.
type Entity struct {
	ID           uuid.UUID      `json:"id"`
	EntityType   string         `json:"entity_type"`
	Name         string         `json:"name"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	MentionCount int            `json:"mention_count"`
	FirstSeen    time.Time      `json:"first_seen"`
	LastSeen     time.Time      `json:"last_seen"`
}

// Relationship is a subject→predicate→object edge between entities.
// EvidenceCount grows each time the relationship is re-observed.
type Relationship struct {
	ID            uuid.UUID `json:"id"`
	SubjectID     uuid.UUID `json:"subject_id"`
	Predicate     string    `json:"predicate"`
	ObjectID      uuid.UUID `json:"object_id"`
	Confidence    float64   `json:"confidence"`
	EvidenceCount int       `json:"evidence_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// EntityContext is the result of graph expansion around a set of entities.
type EntityContext struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}
