package models

import (
	"time"

	"github.com/google/uuid"
)

// ProfileEntry is one learned fact about the user, keyed by a stable name
// ("wake_time", "preferred_greeting"). Confidence grows as the fact is
// re-confirmed.
type ProfileEntry struct {
	Key        string         `json:"key"`
	Value      map[string]any `json:"value"`
	Confidence float64        `json:"confidence"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Skill tracks proficiency at a recurring task. Practice nudges proficiency
// toward 1 and bumps the practice count.
type Skill struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	Proficiency   float64    `json:"proficiency"`
	PracticeCount int        `json:"practice_count"`
	LastPracticed *time.Time `json:"last_practiced,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
