package database

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"github.com/clinicore/chartlock/internal/domain/entities"
	"github.com/clinicore/chartlock/internal/domain/repositories"
	"github.com/clinicore/chartlock/internal/infrastructure/clients/postgres"
	apperrors "github.com/clinicore/chartlock/pkg/errors"
)

const snapshotsTable = "document_snapshots"

// SnapshotAdapter implements the SnapshotRepository interface against
// PostgreSQL. The table is append-only; there are no update or delete
// paths.
type SnapshotAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewSnapshotAdapter creates a new snapshot adapter
func NewSnapshotAdapter(client *postgres.Client) repositories.SnapshotRepository {
	return &SnapshotAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Append writes a history entry
func (a *SnapshotAdapter) Append(ctx context.Context, snapshot *entities.DocumentSnapshot) error {
	record := goqu.Record{
		"id":          snapshot.ID,
		"document_id": snapshot.DocumentID,
		"version":     snapshot.Version,
		"status":      snapshot.Status,
		"content":     []byte(snapshot.Content),
		"reason":      snapshot.Reason,
		"changed_by":  snapshot.ChangedBy,
		"changed_at":  snapshot.ChangedAt,
	}

	query, args, err := a.db.Insert(snapshotsTable).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build snapshot insert", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to append snapshot", err)
	}
	return nil
}

// ListByDocument retrieves history entries for a document, newest first
func (a *SnapshotAdapter) ListByDocument(ctx context.Context, documentID string, limit, offset int) ([]*entities.DocumentSnapshot, int, error) {
	countQuery, countArgs, err := a.db.Select(goqu.COUNT("*")).
		From(snapshotsTable).
		Where(goqu.Ex{"document_id": documentID}).
		ToSQL()
	if err != nil {
		return nil, 0, apperrors.NewInternalError("failed to build count query", err)
	}
	var total int
	if err := a.client.DB().QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, apperrors.NewInternalError("failed to count snapshots", err)
	}

	ds := a.db.Select(
		"id", "document_id", "version", "status", "content", "reason", "changed_by", "changed_at",
	).From(snapshotsTable).
		Where(goqu.Ex{"document_id": documentID}).
		Order(goqu.I("changed_at").Desc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	if offset > 0 {
		ds = ds.Offset(uint(offset))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, 0, apperrors.NewInternalError("failed to build list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, apperrors.NewInternalError("failed to list snapshots", err)
	}
	defer rows.Close()

	var snapshots []*entities.DocumentSnapshot
	for rows.Next() {
		snap := &entities.DocumentSnapshot{}
		var content []byte
		if err := rows.Scan(
			&snap.ID, &snap.DocumentID, &snap.Version, &snap.Status,
			&content, &snap.Reason, &snap.ChangedBy, &snap.ChangedAt,
		); err != nil {
			return nil, 0, apperrors.NewInternalError("failed to scan snapshot", err)
		}
		snap.Content = content
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperrors.NewInternalError("failed to iterate snapshots", err)
	}

	return snapshots, total, nil
}
