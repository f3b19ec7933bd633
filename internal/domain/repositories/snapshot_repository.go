package repositories

import (
	"context"

	"github.com/clinicore/chartlock/internal/domain/entities"
)

// SnapshotRepository defines the interface for the append-only document
// history log
type SnapshotRepository interface {
	// Append writes a history entry; entries are never updated or deleted
	Append(ctx context.Context, snapshot *entities.DocumentSnapshot) error

	// ListByDocument retrieves history entries for a document, newest first
	ListByDocument(ctx context.Context, documentID string, limit, offset int) ([]*entities.DocumentSnapshot, int, error)
}
