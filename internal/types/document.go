package types

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document publication statuses.
const (
	DocumentDraft     = "draft"
	DocumentPublished = "published"
)

// Event types recorded against a served document.
const (
	EventView = "view"
	EventLead = "lead"
)

// Document is the persisted page produced by the assembly step and mutated by
// later change requests. HTML is always a complete standalone document, never
// a fragment.
type Document struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	HTML      string    `json:"html"`
	ClientID  string    `json:"client_id,omitempty"`
	Status    string    `json:"status"`
	Views     int       `json:"views"`
	Leads     int       `json:"leads"`
	Events    []Event   `json:"events,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Event is one engagement record (page view, captured lead).
type Event struct {
	Type string            `json:"type"`
	At   time.Time         `json:"at"`
	Meta map[string]string `json:"meta,omitempty"`
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts a human name into a URL-safe slug.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugStrip.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "page"
	}
	return s
}
