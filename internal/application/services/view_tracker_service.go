package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/clinicore/chartlock/internal/domain/entities"
	"github.com/clinicore/chartlock/internal/domain/repositories"
)

// ViewTrackerService records which actors have opened a document. The
// audit set is deduplicated and append-only; recording never blocks or
// fails a read.
type ViewTrackerService struct {
	repo repositories.DocumentRepository
}

// NewViewTrackerService creates a new view tracker service
func NewViewTrackerService(repo repositories.DocumentRepository) *ViewTrackerService {
	return &ViewTrackerService{repo: repo}
}

// RecordView adds actor to the document's view audit set. Errors are
// swallowed after logging; a repeat view is a no-op.
func (s *ViewTrackerService) RecordView(ctx context.Context, doc *entities.ClinicalDocument, actor string) {
	if s == nil || s.repo == nil || doc == nil || actor == "" {
		return
	}
	if doc.HasViewer(actor) {
		return
	}

	if err := s.repo.AppendViewer(ctx, doc.ID, actor); err != nil {
		log.Warn().Err(err).Str("document_id", doc.ID).Str("actor", actor).Msg("failed to record document view")
	}
}
