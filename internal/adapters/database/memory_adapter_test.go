package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/chartlock/internal/domain/entities"
	"github.com/clinicore/chartlock/internal/domain/repositories"
	apperrors "github.com/clinicore/chartlock/pkg/errors"
)

func seedDraft(t *testing.T, m *MemoryDocumentAdapter, id string) *entities.ClinicalDocument {
	t.Helper()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	doc := &entities.ClinicalDocument{
		ID:             id,
		PatientID:      "patient-001",
		OrganizationID: "org-001",
		Title:          "Admission note",
		Content: &entities.StructuredNote{
			Subjective: "s", Objective: "o", Assessment: "a", Plan: "p",
		},
		Status:    entities.DocumentStatusDraft,
		Version:   1,
		CreatedBy: "dr-adams",
		UpdatedBy: "dr-adams",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, m.Create(context.Background(), doc))
	return doc
}

func TestMemoryDocumentAdapter_ConditionalWriteClassification(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	staleBefore := now.Add(-30 * time.Minute)

	t.Run("foreign fresh lock rejects the write", func(t *testing.T) {
		m := NewMemoryDocumentAdapter()
		doc := seedDraft(t, m, "doc-1")

		acquired, err := m.AcquireLock(context.Background(), doc.ID, "dr-baker", now.Add(-time.Minute), staleBefore)
		require.NoError(t, err)
		require.True(t, acquired)

		doc.UpdatedAt = now
		_, err = m.UpdateDraft(context.Background(), repositories.UpdateDraftParams{
			Doc: doc, Actor: "dr-adams", StaleBefore: staleBefore,
		})
		assert.True(t, apperrors.IsLockConflict(err))
	})

	t.Run("foreign stale lock lets the write through", func(t *testing.T) {
		m := NewMemoryDocumentAdapter()
		doc := seedDraft(t, m, "doc-1")

		acquired, err := m.AcquireLock(context.Background(), doc.ID, "dr-baker", now.Add(-45*time.Minute), now.Add(-75*time.Minute))
		require.NoError(t, err)
		require.True(t, acquired)

		doc.UpdatedAt = now
		_, err = m.UpdateDraft(context.Background(), repositories.UpdateDraftParams{
			Doc: doc, Actor: "dr-adams", StaleBefore: staleBefore,
		})
		assert.NoError(t, err)
	})

	t.Run("version mismatch outranks the lock check", func(t *testing.T) {
		m := NewMemoryDocumentAdapter()
		doc := seedDraft(t, m, "doc-1")

		_, err := m.UpdateDraft(context.Background(), repositories.UpdateDraftParams{
			Doc: doc, Actor: "dr-adams", ExpectedVersion: 9, StaleBefore: staleBefore,
		})
		assert.True(t, apperrors.IsConcurrencyConflict(err))
	})

	t.Run("non-draft status outranks everything", func(t *testing.T) {
		m := NewMemoryDocumentAdapter()
		doc := seedDraft(t, m, "doc-1")
		_, err := m.FinalizeDraft(context.Background(), repositories.FinalizeParams{
			ID: doc.ID, Actor: "dr-adams", Attestation: "reviewed", At: now,
		})
		require.NoError(t, err)

		_, err = m.UpdateDraft(context.Background(), repositories.UpdateDraftParams{
			Doc: doc, Actor: "dr-adams", StaleBefore: staleBefore,
		})
		assert.True(t, apperrors.IsInvalidState(err))
	})

	t.Run("missing document is not found", func(t *testing.T) {
		m := NewMemoryDocumentAdapter()
		_, err := m.GetByID(context.Background(), "no-such-doc")
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestMemoryDocumentAdapter_FinalizeIgnoresLock(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	m := NewMemoryDocumentAdapter()
	doc := seedDraft(t, m, "doc-1")

	acquired, err := m.AcquireLock(context.Background(), doc.ID, "dr-baker", now, now.Add(-30*time.Minute))
	require.NoError(t, err)
	require.True(t, acquired)

	finalized, err := m.FinalizeDraft(context.Background(), repositories.FinalizeParams{
		ID: doc.ID, Actor: "dr-adams", Attestation: "attending sign-off", At: now,
	})
	require.NoError(t, err)
	assert.Equal(t, entities.DocumentStatusFinalized, finalized.Status)
	assert.Equal(t, 2, finalized.Version)
	assert.Nil(t, finalized.Lock)
}

func TestMemoryDocumentAdapter_ConcurrentAcquireLock(t *testing.T) {
	m := NewMemoryDocumentAdapter()
	doc := seedDraft(t, m, "doc-1")

	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	staleBefore := now.Add(-30 * time.Minute)
	actors := []string{"dr-adams", "dr-baker", "dr-chen", "dr-diaz", "dr-evans", "dr-farouk", "dr-garcia", "dr-hahn"}

	var wg sync.WaitGroup
	wins := make(chan string, len(actors))
	for _, actor := range actors {
		wg.Add(1)
		go func(actor string) {
			defer wg.Done()
			acquired, err := m.AcquireLock(context.Background(), doc.ID, actor, now, staleBefore)
			assert.NoError(t, err)
			if acquired {
				wins <- actor
			}
		}(actor)
	}
	wg.Wait()
	close(wins)

	var winners []string
	for actor := range wins {
		winners = append(winners, actor)
	}
	require.Len(t, winners, 1, "exactly one actor may take a free lock")

	stored, err := m.GetByID(context.Background(), doc.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Lock)
	assert.Equal(t, winners[0], stored.Lock.HeldBy)
}

func TestMemoryDocumentAdapter_CreateAmendment(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	m := NewMemoryDocumentAdapter()
	doc := seedDraft(t, m, "original-1")
	_, err := m.FinalizeDraft(context.Background(), repositories.FinalizeParams{
		ID: doc.ID, Actor: "dr-adams", Attestation: "reviewed", At: now,
	})
	require.NoError(t, err)

	t.Run("numbers count existing amendments", func(t *testing.T) {
		originalID := doc.ID
		for i, id := range []string{"amendment-1", "amendment-2"} {
			amendment := seedAmendment(id, originalID, now)
			number, err := m.CreateAmendment(context.Background(), amendment, originalID, now)
			require.NoError(t, err)
			assert.Equal(t, i+1, number)
		}

		count, err := m.CountAmendments(context.Background(), originalID)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		stored, err := m.GetByID(context.Background(), originalID)
		require.NoError(t, err)
		assert.NotNil(t, stored.AmendedAt)
		assert.Equal(t, entities.DocumentStatusFinalized, stored.Status)
	})

	t.Run("drafts cannot be amended", func(t *testing.T) {
		draft := seedDraft(t, m, "draft-1")
		_, err := m.CreateAmendment(context.Background(), seedAmendment("amendment-3", draft.ID, now), draft.ID, now)
		assert.True(t, apperrors.IsInvalidState(err))
	})

	t.Run("listing by original returns the derived documents in number order", func(t *testing.T) {
		derived, err := m.ListByOriginal(context.Background(), doc.ID)
		require.NoError(t, err)
		require.Len(t, derived, 2)
		assert.Equal(t, "amendment-1", derived[0].ID)
		assert.Equal(t, 1, derived[0].AmendmentNumber)
		assert.Equal(t, "amendment-2", derived[1].ID)
		assert.Equal(t, 2, derived[1].AmendmentNumber)

		none, err := m.ListByOriginal(context.Background(), "no-such-original")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func seedAmendment(id, originalID string, at time.Time) *entities.ClinicalDocument {
	origID := originalID
	reason := "correction"
	actor := "dr-baker"
	return &entities.ClinicalDocument{
		ID:             id,
		PatientID:      "patient-001",
		OrganizationID: "org-001",
		Title:          "Admission note",
		Content: &entities.StructuredNote{
			Subjective: "s", Objective: "o", Assessment: "a", Plan: "p",
		},
		Status:             entities.DocumentStatusAmended,
		Version:            1,
		IsAmendment:        true,
		OriginalDocumentID: &origID,
		AmendmentReason:    &reason,
		FinalizedBy:        &actor,
		FinalizedAt:        &at,
		CreatedBy:          actor,
		UpdatedBy:          actor,
		CreatedAt:          at,
		UpdatedAt:          at,
	}
}

func TestMemoryDocumentAdapter_SoftDelete(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	t.Run("draft is marked deleted but stays readable by id", func(t *testing.T) {
		m := NewMemoryDocumentAdapter()
		doc := seedDraft(t, m, "doc-1")

		deleted, err := m.SoftDelete(context.Background(), doc.ID, "dr-adams", "duplicate", now)
		require.NoError(t, err)
		assert.True(t, deleted)

		stored, err := m.GetByID(context.Background(), doc.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsDeleted())
		assert.Equal(t, entities.DocumentStatusDraft, stored.Status, "deletion is independent of lifecycle status")
		require.NotNil(t, stored.DeletedAt)
		assert.Equal(t, now, *stored.DeletedAt, "the caller's instant stamps the deletion")
		assert.Equal(t, now, stored.UpdatedAt)
	})

	t.Run("finalized and already-deleted rows report no rows affected", func(t *testing.T) {
		m := NewMemoryDocumentAdapter()
		doc := seedDraft(t, m, "doc-1")
		_, err := m.FinalizeDraft(context.Background(), repositories.FinalizeParams{
			ID: doc.ID, Actor: "dr-adams", Attestation: "reviewed", At: now,
		})
		require.NoError(t, err)

		deleted, err := m.SoftDelete(context.Background(), doc.ID, "dr-adams", "cleanup", now)
		require.NoError(t, err)
		assert.False(t, deleted)

		draft := seedDraft(t, m, "doc-2")
		_, err = m.SoftDelete(context.Background(), draft.ID, "dr-adams", "duplicate", now)
		require.NoError(t, err)
		deleted, err = m.SoftDelete(context.Background(), draft.ID, "dr-adams", "duplicate", now)
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func TestMemoryDocumentAdapter_ListAndSearch(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	m := NewMemoryDocumentAdapter()
	first := seedDraft(t, m, "doc-1")
	second := seedDraft(t, m, "doc-2")
	_, err := m.SoftDelete(context.Background(), second.ID, "dr-adams", "duplicate", now)
	require.NoError(t, err)

	t.Run("listing skips deleted rows by default", func(t *testing.T) {
		docs, total, err := m.ListByPatient(context.Background(), "patient-001", repositories.DocumentFilter{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, docs, 1)
		assert.Equal(t, first.ID, docs[0].ID)

		docs, total, err = m.ListByPatient(context.Background(), "patient-001", repositories.DocumentFilter{Limit: 10, IncludeDeleted: true})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, docs, 2)
	})

	t.Run("search matches titles and note bodies", func(t *testing.T) {
		docs, total, err := m.Search(context.Background(), repositories.SearchQuery{Text: "admission", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, docs, 1)
		assert.Equal(t, first.ID, docs[0].ID)

		_, total, err = m.Search(context.Background(), repositories.SearchQuery{Text: "no such phrase", Limit: 10})
		require.NoError(t, err)
		assert.Zero(t, total)
	})
}

func TestMemoryDocumentAdapter_AppendViewer(t *testing.T) {
	m := NewMemoryDocumentAdapter()
	doc := seedDraft(t, m, "doc-1")

	require.NoError(t, m.AppendViewer(context.Background(), doc.ID, "nurse-okafor"))
	require.NoError(t, m.AppendViewer(context.Background(), doc.ID, "nurse-okafor"))
	require.NoError(t, m.AppendViewer(context.Background(), doc.ID, "dr-baker"))

	stored, err := m.GetByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"nurse-okafor", "dr-baker"}, stored.ViewedBy)
}
