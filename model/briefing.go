package model

import (
	"time"

	"github.com/google/uuid"
)

// Briefing is a derived Markdown digest over a recorded-at window.
// Briefings are never updated or deleted; a new window produces a new row.
type Briefing struct {
	ID              int64     `json:"id"`
	RID             uuid.UUID `json:"rid"`
	GeneratedAt     time.Time `json:"generated_at"`
	WindowStart     time.Time `json:"time_window_start"`
	WindowEnd       time.Time `json:"time_window_end"`
	ContentMarkdown string    `json:"content_markdown"`
	RawModelOutput  string    `json:"raw_model_output,omitempty"`
}
