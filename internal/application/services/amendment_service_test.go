package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/chartlock/internal/domain/entities"
	apperrors "github.com/clinicore/chartlock/pkg/errors"
)

type amendmentFixture struct {
	*serviceFixture
	amendments *AmendmentService
}

func newAmendmentFixture() *amendmentFixture {
	f := newServiceFixture()
	return &amendmentFixture{
		serviceFixture: f,
		amendments:     NewAmendmentService(f.repo, NewSnapshotService(f.snapshots), nil, nil, f.clock.Now),
	}
}

func (f *amendmentFixture) createFinalized(t *testing.T, actor string) *entities.ClinicalDocument {
	t.Helper()
	doc := f.createDraft(t, actor)
	finalized, err := f.service.FinalizeDocument(context.Background(), FinalizeDocumentParams{
		ID: doc.ID, Actor: actor, Attestation: "reviewed and accurate",
	})
	require.NoError(t, err)
	return finalized
}

func TestAmendmentService_CreateAmendment(t *testing.T) {
	t.Run("correction derives a new immutable document", func(t *testing.T) {
		f := newAmendmentFixture()
		original := f.createFinalized(t, "dr-adams")

		amendment, err := f.amendments.CreateAmendment(context.Background(), AmendmentParams{
			OriginalID: original.ID,
			Actor:      "dr-baker",
			Reason:     "wrong medication dose recorded",
			Section:    "plan",
			Text:       "aspirin dose should read 81mg, not 810mg",
		})
		require.NoError(t, err)

		assert.NotEqual(t, original.ID, amendment.ID)
		assert.Equal(t, entities.DocumentStatusAmended, amendment.Status)
		assert.Equal(t, 1, amendment.AmendmentNumber)
		assert.Equal(t, 1, amendment.Version)
		assert.True(t, amendment.IsAmendment)
		require.NotNil(t, amendment.OriginalDocumentID)
		assert.Equal(t, original.ID, *amendment.OriginalDocumentID)
		require.NotNil(t, amendment.AmendmentReason)
		assert.Equal(t, "wrong medication dose recorded", *amendment.AmendmentReason)
		require.NotNil(t, amendment.FinalizedBy)
		assert.Equal(t, "dr-baker", *amendment.FinalizedBy)

		plan := amendment.Content.(*entities.StructuredNote).Plan
		assert.Contains(t, plan, "aspirin dose should read 81mg")
		assert.Contains(t, plan, "correction by dr-baker")
	})

	t.Run("the original keeps its status and gains a marker", func(t *testing.T) {
		f := newAmendmentFixture()
		original := f.createFinalized(t, "dr-adams")

		_, err := f.amendments.CreateAmendment(context.Background(), AmendmentParams{
			OriginalID: original.ID,
			Actor:      "dr-baker",
			Reason:     "typo in assessment",
			Section:    "assessment",
			Text:       "stable angina, not unstable",
		})
		require.NoError(t, err)

		stored, err := f.repo.GetByID(context.Background(), original.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.DocumentStatusFinalized, stored.Status)
		assert.NotNil(t, stored.AmendedAt)
		assert.Equal(t, original.Version, stored.Version, "amending must not touch the original's version")

		originalPlan := stored.Content.(*entities.StructuredNote).Assessment
		assert.NotContains(t, originalPlan, "not unstable", "the original's content is never rewritten")
	})

	t.Run("amendments are numbered in order", func(t *testing.T) {
		f := newAmendmentFixture()
		original := f.createFinalized(t, "dr-adams")

		first, err := f.amendments.CreateAmendment(context.Background(), AmendmentParams{
			OriginalID: original.ID, Actor: "dr-baker",
			Reason: "first correction", Text: "correct the heart rate",
		})
		require.NoError(t, err)
		assert.Equal(t, 1, first.AmendmentNumber)

		second, err := f.amendments.CreateAmendment(context.Background(), AmendmentParams{
			OriginalID: original.ID, Actor: "dr-chen",
			Reason: "second correction", Text: "correct the blood pressure",
		})
		require.NoError(t, err)
		assert.Equal(t, 2, second.AmendmentNumber)
	})

	t.Run("an addendum gets the addended status", func(t *testing.T) {
		f := newAmendmentFixture()
		original := f.createFinalized(t, "dr-adams")

		addendum, err := f.amendments.CreateAmendment(context.Background(), AmendmentParams{
			OriginalID: original.ID,
			Actor:      "dr-adams",
			Kind:       entities.AmendmentKindAddendum,
			Reason:     "lab results arrived after sign-off",
			Text:       "troponin negative",
		})
		require.NoError(t, err)
		assert.Equal(t, entities.DocumentStatusAddended, addendum.Status)
	})

	t.Run("drafts cannot be amended", func(t *testing.T) {
		f := newAmendmentFixture()
		draft := f.createDraft(t, "dr-adams")

		_, err := f.amendments.CreateAmendment(context.Background(), AmendmentParams{
			OriginalID: draft.ID, Actor: "dr-baker",
			Reason: "premature", Text: "should not work",
		})
		assert.True(t, apperrors.IsInvalidState(err))
	})

	t.Run("reason and text are required", func(t *testing.T) {
		f := newAmendmentFixture()
		original := f.createFinalized(t, "dr-adams")

		_, err := f.amendments.CreateAmendment(context.Background(), AmendmentParams{
			OriginalID: original.ID, Actor: "dr-baker", Text: "no reason given",
		})
		assert.True(t, apperrors.IsValidation(err))

		_, err = f.amendments.CreateAmendment(context.Background(), AmendmentParams{
			OriginalID: original.ID, Actor: "dr-baker", Reason: "no text given",
		})
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("unknown sections are rejected", func(t *testing.T) {
		f := newAmendmentFixture()
		original := f.createFinalized(t, "dr-adams")

		_, err := f.amendments.CreateAmendment(context.Background(), AmendmentParams{
			OriginalID: original.ID, Actor: "dr-baker",
			Reason: "misfiled", Section: "narrative", Text: "structured notes have no narrative",
		})
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("amendment snapshots are recorded", func(t *testing.T) {
		f := newAmendmentFixture()
		original := f.createFinalized(t, "dr-adams")

		amendment, err := f.amendments.CreateAmendment(context.Background(), AmendmentParams{
			OriginalID: original.ID, Actor: "dr-baker",
			Reason: "correction", Text: "fix the plan",
		})
		require.NoError(t, err)

		snaps, total, err := f.snapshots.ListByDocument(context.Background(), amendment.ID, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, entities.SnapshotReasonAmendment, snaps[0].Reason)
	})
}

func TestAmendmentService_ListAmendments(t *testing.T) {
	f := newAmendmentFixture()
	original := f.createFinalized(t, "dr-adams")
	other := f.createFinalized(t, "dr-adams")

	_, err := f.amendments.CreateAmendment(context.Background(), AmendmentParams{
		OriginalID: original.ID, Actor: "dr-baker",
		Reason: "correction", Text: "fix the plan",
	})
	require.NoError(t, err)
	_, err = f.amendments.CreateAmendment(context.Background(), AmendmentParams{
		OriginalID: original.ID, Actor: "dr-chen",
		Reason: "follow-up correction", Text: "fix the assessment too",
	})
	require.NoError(t, err)

	amendments, err := f.amendments.ListAmendments(context.Background(), original.ID)
	require.NoError(t, err)
	require.Len(t, amendments, 2)
	assert.Equal(t, 1, amendments[0].AmendmentNumber)
	assert.Equal(t, 2, amendments[1].AmendmentNumber)

	amendments, err = f.amendments.ListAmendments(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Empty(t, amendments)
}
