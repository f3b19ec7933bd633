package providers

import (
	"context"

	"github.com/clinicore/chartlock/internal/domain/entities"
)

// DocumentIndex defines the interface for the full-text search index.
// Indexing is a best-effort side effect of lifecycle transitions; the
// authoritative store remains the system of record.
type DocumentIndex interface {
	// IndexDocument upserts a document into the index
	IndexDocument(ctx context.Context, doc *entities.ClinicalDocument) error

	// RemoveDocument removes a document from the index
	RemoveDocument(ctx context.Context, id string) error

	// Search returns matching document IDs and the total hit count
	Search(ctx context.Context, text, patientID string, status entities.DocumentStatus, limit, offset int) ([]string, int, error)
}
