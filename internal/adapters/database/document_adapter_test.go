package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/chartlock/internal/domain/entities"
	"github.com/clinicore/chartlock/internal/domain/repositories"
	"github.com/clinicore/chartlock/internal/infrastructure/clients/postgres"
	apperrors "github.com/clinicore/chartlock/pkg/errors"
)

func newMockAdapter(t *testing.T) (repositories.DocumentRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewDocumentAdapter(postgres.NewClientWithDB(db)), mock
}

var documentRowColumns = []string{
	"id", "patient_id", "encounter_id", "facility_id", "organization_id",
	"title", "variant", "content",
	"vital_signs", "diagnoses", "medications", "orders",
	"status", "version", "locked_by", "locked_at",
	"finalized_by", "finalized_at", "attestation",
	"is_amendment", "original_document_id", "amendment_reason", "amendment_number", "amended_at",
	"created_by", "updated_by", "viewed_by",
	"created_at", "updated_at", "deleted_at",
}

const structuredContent = `{"variant":"structured","note":{"subjective":"s","objective":"o","assessment":"a","plan":"p"}}`

type mockRowOptions struct {
	status      entities.DocumentStatus
	lockedBy    interface{}
	lockedAt    interface{}
	finalizedBy interface{}
	deletedAt   interface{}
}

func documentRow(id string, opts mockRowOptions) *sqlmock.Rows {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(documentRowColumns).AddRow(
		id, "patient-001", nil, nil, "org-001",
		"Admission note", "structured", []byte(structuredContent),
		nil, nil, nil, nil,
		string(opts.status), 1, opts.lockedBy, opts.lockedAt,
		opts.finalizedBy, nil, nil,
		false, nil, nil, nil, nil,
		"dr-adams", "dr-adams", "{}",
		now, now, opts.deletedAt,
	)
}

func TestDocumentAdapter_GetByID(t *testing.T) {
	t.Run("scans the full row", func(t *testing.T) {
		adapter, mock := newMockAdapter(t)
		mock.ExpectQuery(`SELECT .+ FROM "clinical_documents"`).
			WillReturnRows(documentRow("doc-1", mockRowOptions{status: entities.DocumentStatusDraft}))

		doc, err := adapter.GetByID(context.Background(), "doc-1")
		require.NoError(t, err)
		assert.Equal(t, "doc-1", doc.ID)
		assert.Equal(t, entities.DocumentStatusDraft, doc.Status)
		assert.Equal(t, 1, doc.Version)
		require.IsType(t, &entities.StructuredNote{}, doc.Content)
		assert.Equal(t, "p", doc.Content.(*entities.StructuredNote).Plan)
		assert.Nil(t, doc.Lock)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row maps to not found", func(t *testing.T) {
		adapter, mock := newMockAdapter(t)
		mock.ExpectQuery(`SELECT .+ FROM "clinical_documents"`).
			WillReturnRows(sqlmock.NewRows(documentRowColumns))

		_, err := adapter.GetByID(context.Background(), "no-such-doc")
		assert.True(t, apperrors.IsNotFound(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lock columns hydrate the lock value", func(t *testing.T) {
		adapter, mock := newMockAdapter(t)
		lockedAt := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
		mock.ExpectQuery(`SELECT .+ FROM "clinical_documents"`).
			WillReturnRows(documentRow("doc-1", mockRowOptions{
				status:   entities.DocumentStatusDraft,
				lockedBy: "dr-baker",
				lockedAt: lockedAt,
			}))

		doc, err := adapter.GetByID(context.Background(), "doc-1")
		require.NoError(t, err)
		require.NotNil(t, doc.Lock)
		assert.Equal(t, "dr-baker", doc.Lock.HeldBy)
		assert.Equal(t, lockedAt, doc.Lock.AcquiredAt)
	})
}

func TestDocumentAdapter_UpdateDraft(t *testing.T) {
	params := func(id string) repositories.UpdateDraftParams {
		return repositories.UpdateDraftParams{
			Doc: &entities.ClinicalDocument{
				ID:    id,
				Title: "Admission note",
				Content: &entities.StructuredNote{
					Subjective: "s", Objective: "o", Assessment: "a", Plan: "p",
				},
				UpdatedAt: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
			},
			Actor:       "dr-adams",
			StaleBefore: time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
		}
	}

	t.Run("a matched row re-reads the document", func(t *testing.T) {
		adapter, mock := newMockAdapter(t)
		mock.ExpectExec(`UPDATE "clinical_documents" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`SELECT .+ FROM "clinical_documents"`).
			WillReturnRows(documentRow("doc-1", mockRowOptions{status: entities.DocumentStatusDraft}))

		doc, err := adapter.UpdateDraft(context.Background(), params("doc-1"))
		require.NoError(t, err)
		assert.Equal(t, "doc-1", doc.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero rows against a finalized document is an invalid state", func(t *testing.T) {
		adapter, mock := newMockAdapter(t)
		mock.ExpectExec(`UPDATE "clinical_documents" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT .+ FROM "clinical_documents"`).
			WillReturnRows(documentRow("doc-1", mockRowOptions{
				status:      entities.DocumentStatusFinalized,
				finalizedBy: "dr-baker",
			}))

		_, err := adapter.UpdateDraft(context.Background(), params("doc-1"))
		assert.True(t, apperrors.IsInvalidState(err))
	})

	t.Run("zero rows against a foreign fresh lock is a lock conflict", func(t *testing.T) {
		adapter, mock := newMockAdapter(t)
		mock.ExpectExec(`UPDATE "clinical_documents" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT .+ FROM "clinical_documents"`).
			WillReturnRows(documentRow("doc-1", mockRowOptions{
				status:   entities.DocumentStatusDraft,
				lockedBy: "dr-baker",
				lockedAt: time.Date(2026, 3, 10, 9, 55, 0, 0, time.UTC),
			}))

		_, err := adapter.UpdateDraft(context.Background(), params("doc-1"))
		assert.True(t, apperrors.IsLockConflict(err))
	})

	t.Run("zero rows with a passing re-read is a lost race", func(t *testing.T) {
		adapter, mock := newMockAdapter(t)
		mock.ExpectExec(`UPDATE "clinical_documents" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT .+ FROM "clinical_documents"`).
			WillReturnRows(documentRow("doc-1", mockRowOptions{status: entities.DocumentStatusDraft}))

		_, err := adapter.UpdateDraft(context.Background(), params("doc-1"))
		assert.True(t, apperrors.IsConcurrencyConflict(err))
	})
}

func TestDocumentAdapter_AcquireLock(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	staleBefore := now.Add(-30 * time.Minute)

	t.Run("a matched row means the lock was taken", func(t *testing.T) {
		adapter, mock := newMockAdapter(t)
		mock.ExpectExec(`UPDATE "clinical_documents" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		acquired, err := adapter.AcquireLock(context.Background(), "doc-1", "dr-adams", now, staleBefore)
		require.NoError(t, err)
		assert.True(t, acquired)
	})

	t.Run("zero rows on a locked draft reports not acquired", func(t *testing.T) {
		adapter, mock := newMockAdapter(t)
		mock.ExpectExec(`UPDATE "clinical_documents" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT .+ FROM "clinical_documents"`).
			WillReturnRows(documentRow("doc-1", mockRowOptions{
				status:   entities.DocumentStatusDraft,
				lockedBy: "dr-baker",
				lockedAt: now.Add(-time.Minute),
			}))

		acquired, err := adapter.AcquireLock(context.Background(), "doc-1", "dr-adams", now, staleBefore)
		require.NoError(t, err)
		assert.False(t, acquired)
	})

	t.Run("zero rows on a finalized document is an invalid state", func(t *testing.T) {
		adapter, mock := newMockAdapter(t)
		mock.ExpectExec(`UPDATE "clinical_documents" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT .+ FROM "clinical_documents"`).
			WillReturnRows(documentRow("doc-1", mockRowOptions{
				status:      entities.DocumentStatusFinalized,
				finalizedBy: "dr-adams",
			}))

		_, err := adapter.AcquireLock(context.Background(), "doc-1", "dr-adams", now, staleBefore)
		assert.True(t, apperrors.IsInvalidState(err))
	})
}

func TestDocumentAdapter_FinalizeDraft(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	mock.ExpectExec(`UPDATE "clinical_documents" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .+ FROM "clinical_documents"`).
		WillReturnRows(documentRow("doc-1", mockRowOptions{
			status:      entities.DocumentStatusFinalized,
			finalizedBy: "dr-adams",
		}))

	doc, err := adapter.FinalizeDraft(context.Background(), repositories.FinalizeParams{
		ID:          "doc-1",
		Actor:       "dr-adams",
		Attestation: "reviewed and accurate",
		At:          time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, entities.DocumentStatusFinalized, doc.Status)
	require.NotNil(t, doc.FinalizedBy)
	assert.Equal(t, "dr-adams", *doc.FinalizedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentAdapter_AppendViewer(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	mock.ExpectExec(`UPDATE clinical_documents SET viewed_by = array_append`).
		WithArgs("nurse-okafor", "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, adapter.AppendViewer(context.Background(), "doc-1", "nurse-okafor"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentAdapter_SoftDelete(t *testing.T) {
	at := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	t.Run("a matched row reports deleted", func(t *testing.T) {
		adapter, mock := newMockAdapter(t)
		mock.ExpectExec(`UPDATE "clinical_documents" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		deleted, err := adapter.SoftDelete(context.Background(), "doc-1", "dr-adams", "duplicate", at)
		require.NoError(t, err)
		assert.True(t, deleted)
	})

	t.Run("zero rows reports not deleted", func(t *testing.T) {
		adapter, mock := newMockAdapter(t)
		mock.ExpectExec(`UPDATE "clinical_documents" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		deleted, err := adapter.SoftDelete(context.Background(), "doc-1", "dr-adams", "duplicate", at)
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func TestDocumentAdapter_ListByOriginal(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	mock.ExpectQuery(`SELECT .+ FROM "clinical_documents" WHERE \("original_document_id" = .+ ORDER BY "amendment_number" ASC`).
		WillReturnRows(documentRow("amendment-1", mockRowOptions{status: entities.DocumentStatusAmended}))

	docs, err := adapter.ListByOriginal(context.Background(), "original-1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "amendment-1", docs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentAdapter_CreateAmendment(t *testing.T) {
	t.Run("derives the number inside the transaction", func(t *testing.T) {
		adapter, mock := newMockAdapter(t)
		at := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM clinical_documents .+ FOR UPDATE`).
			WithArgs("original-1").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("finalized"))
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM clinical_documents`).
			WithArgs("original-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectExec(`INSERT INTO "clinical_documents"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE clinical_documents SET amended_at`).
			WithArgs(at, "original-1", string(entities.DocumentStatusFinalized)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		amendment := seedAmendment("amendment-1", "original-1", at)
		number, err := adapter.CreateAmendment(context.Background(), amendment, "original-1", at)
		require.NoError(t, err)
		assert.Equal(t, 2, number)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-finalized original rolls back", func(t *testing.T) {
		adapter, mock := newMockAdapter(t)
		at := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM clinical_documents .+ FOR UPDATE`).
			WithArgs("original-1").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("draft"))
		mock.ExpectRollback()

		_, err := adapter.CreateAmendment(context.Background(), seedAmendment("amendment-1", "original-1", at), "original-1", at)
		assert.True(t, apperrors.IsInvalidState(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
