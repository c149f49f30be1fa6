package model

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Document is one fetched source article. URL is globally unique and
// content-hash deduplication happens before insert.
type Document struct {
	ID          int64      `json:"id"`
	RID         uuid.UUID  `json:"rid"`
	URL         string     `json:"url"`
	Title       string     `json:"title,omitempty"`
	SourceName  string     `json:"source_name,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	FetchedAt   time.Time  `json:"fetched_at"`
	Content     string     `json:"content,omitempty"`
	ContentHash string     `json:"content_hash"`
}

// HashContent returns the hex-encoded SHA-256 of the document text
func HashContent(text string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(text)))
}
