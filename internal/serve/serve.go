// Package serve renders stored documents for visitors and records engagement
// events against them.
package serve

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mateo/pagesmith/internal/observability"
	"github.com/mateo/pagesmith/internal/store"
	"github.com/mateo/pagesmith/internal/types"
)

// maxCounterAttempts bounds the precondition retry loop for counter bumps.
const maxCounterAttempts = 4

// Service is the delivery shim over the persistence abstraction.
type Service struct {
	store  store.Store
	logger *zap.Logger
}

// NewService creates a serving service.
func NewService(st store.Store, logger *zap.Logger) *Service {
	return &Service{store: st, logger: logger}
}

// Rendered is a page ready to send to a visitor.
type Rendered struct {
	DocumentID string
	HTML       string
}

// Render resolves a slug to its published document, injects the live-edit
// widget, and records a view event. Draft documents are not served.
func (s *Service) Render(ctx context.Context, slug string) (*Rendered, error) {
	doc, err := s.bySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if doc.Status != types.DocumentPublished {
		return nil, store.ErrNotFound
	}

	if err := s.recordEvent(ctx, doc.ID.String(), types.EventView, nil); err != nil {
		// Serving beats accounting; a lost view is logged, not fatal.
		s.logger.Warn("failed to record view", zap.String("slug", slug), zap.Error(err))
	} else {
		observability.PageViews.Inc()
	}

	return &Rendered{
		DocumentID: doc.ID.String(),
		HTML:       InjectWidget(doc.HTML, doc.ID.String()),
	}, nil
}

// RecordLead records a lead submission against the document behind slug.
func (s *Service) RecordLead(ctx context.Context, slug string, meta map[string]string) error {
	doc, err := s.bySlug(ctx, slug)
	if err != nil {
		return err
	}
	if err := s.recordEvent(ctx, doc.ID.String(), types.EventLead, meta); err != nil {
		return err
	}
	observability.PageLeads.Inc()
	return nil
}

func (s *Service) bySlug(ctx context.Context, slug string) (*types.Document, error) {
	rec, err := s.store.Get(ctx, store.CollectionSlugs, slug)
	if err != nil {
		return nil, err
	}
	var claim struct {
		DocumentID string `json:"document_id"`
	}
	if err := store.Decode(rec, &claim); err != nil {
		return nil, fmt.Errorf("failed to decode slug record %q: %w", slug, err)
	}

	docRec, err := s.store.Get(ctx, store.CollectionDocuments, claim.DocumentID)
	if err != nil {
		return nil, err
	}
	var doc types.Document
	if err := store.Decode(docRec, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", claim.DocumentID, err)
	}
	return &doc, nil
}

// recordEvent appends the event and bumps the matching counter. The counter
// bump is a precondition-guarded read-modify-write retried on conflict.
func (s *Service) recordEvent(ctx context.Context, docID, eventType string, meta map[string]string) error {
	event := types.Event{Type: eventType, At: time.Now().UTC(), Meta: meta}
	if err := s.store.Append(ctx, store.CollectionDocuments, docID, "events", event); err != nil {
		return fmt.Errorf("failed to append %s event: %w", eventType, err)
	}

	for attempt := 0; attempt < maxCounterAttempts; attempt++ {
		rec, err := s.store.Get(ctx, store.CollectionDocuments, docID)
		if err != nil {
			return err
		}
		var doc types.Document
		if err := store.Decode(rec, &doc); err != nil {
			return err
		}
		switch eventType {
		case types.EventView:
			doc.Views++
		case types.EventLead:
			doc.Leads++
		}
		doc.UpdatedAt = time.Now().UTC()

		_, err = s.store.Put(ctx, store.CollectionDocuments, docID, &doc, &store.Precondition{Version: rec.Version})
		if err == nil {
			return nil
		}
		if !store.IsConflict(err) {
			return err
		}
		observability.StoreConflicts.Inc()
	}
	return fmt.Errorf("counter update for %s lost %d races: %w", docID, maxCounterAttempts, store.ErrConflict)
}

// InjectWidget inserts the live-edit widget just before the closing body tag.
// Documents without one get the widget appended so the page still works.
func InjectWidget(html, docID string) string {
	widget := fmt.Sprintf(widgetHTML, docID)
	for _, tag := range []string{"</body>", "</BODY>"} {
		if idx := strings.LastIndex(html, tag); idx >= 0 {
			return html[:idx] + widget + html[idx:]
		}
	}
	return html + widget
}
