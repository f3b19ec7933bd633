package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/clinicore/chartlock/internal/domain/entities"
	"github.com/clinicore/chartlock/internal/domain/repositories"
)

// SnapshotService appends point-in-time copies of a document to the
// history log. Recording is best-effort: a failed append is logged and
// never blocks the lifecycle transition that triggered it.
type SnapshotService struct {
	repo repositories.SnapshotRepository
}

// NewSnapshotService creates a new snapshot service
func NewSnapshotService(repo repositories.SnapshotRepository) *SnapshotService {
	return &SnapshotService{repo: repo}
}

// Record appends a snapshot of the document as it stands now. Errors
// are swallowed after logging.
func (s *SnapshotService) Record(ctx context.Context, doc *entities.ClinicalDocument, reason entities.SnapshotReason, actor string) {
	if s == nil || s.repo == nil || doc == nil {
		return
	}

	content, err := entities.MarshalNoteContent(doc.Content)
	if err != nil {
		log.Warn().Err(err).Str("document_id", doc.ID).Msg("failed to encode document content for snapshot")
		return
	}

	snapshot := &entities.DocumentSnapshot{
		ID:         uuid.New().String(),
		DocumentID: doc.ID,
		Version:    doc.Version,
		Status:     doc.Status,
		Content:    content,
		Reason:     reason,
		ChangedBy:  actor,
		ChangedAt:  doc.UpdatedAt,
	}

	if err := s.repo.Append(ctx, snapshot); err != nil {
		log.Warn().Err(err).Str("document_id", doc.ID).Str("reason", string(reason)).Msg("failed to record document snapshot")
	}
}

// History retrieves snapshots for a document, newest first
func (s *SnapshotService) History(ctx context.Context, documentID string, limit, offset int) ([]*entities.DocumentSnapshot, int, error) {
	return s.repo.ListByDocument(ctx, documentID, limit, offset)
}
