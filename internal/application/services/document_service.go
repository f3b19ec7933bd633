package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/clinicore/chartlock/internal/domain/entities"
	"github.com/clinicore/chartlock/internal/domain/providers"
	"github.com/clinicore/chartlock/internal/domain/repositories"
	apperrors "github.com/clinicore/chartlock/pkg/errors"
)

// CreateDocumentParams describes a new draft document
type CreateDocumentParams struct {
	PatientID      string
	EncounterID    *string
	FacilityID     *string
	OrganizationID string
	Title          string
	Content        entities.NoteContent
	VitalSigns     *entities.VitalSigns
	Diagnoses      []entities.Diagnosis
	Medications    []entities.Medication
	Orders         []entities.Order
	Actor          string
}

// UpdateDocumentParams describes a draft content mutation. Every field
// present replaces the stored one; the envelope's audit and lifecycle
// fields are never caller-writable.
type UpdateDocumentParams struct {
	ID          string
	Actor       string
	Title       string
	Content     entities.NoteContent
	VitalSigns  *entities.VitalSigns
	Diagnoses   []entities.Diagnosis
	Medications []entities.Medication
	Orders      []entities.Order

	// ExpectedVersion, when > 0, rejects the write if the stored version
	// differs.
	ExpectedVersion int
}

// FinalizeDocumentParams describes the one-way draft to finalized
// transition
type FinalizeDocumentParams struct {
	ID              string
	Actor           string
	Attestation     string
	ExpectedVersion int
}

// DocumentService drives the clinical document lifecycle: drafts are
// editable under an advisory lock, finalization is a one-way gate, and
// finalized content is immutable. All race decisions are delegated to
// the repository's conditional writes; this layer adds validation,
// completeness gating and the best-effort side effects.
type DocumentService struct {
	repo       repositories.DocumentRepository
	snapshots  *SnapshotService
	views      *ViewTrackerService
	eventBus   providers.EventBus
	index      providers.DocumentIndex
	staleAfter time.Duration
	now        func() time.Time
}

// NewDocumentService creates a new document service. staleAfter is the
// wall-clock age past which a held edit lock stops blocking other
// actors; now is injectable for tests and defaults to time.Now.
func NewDocumentService(
	repo repositories.DocumentRepository,
	snapshots *SnapshotService,
	views *ViewTrackerService,
	eventBus providers.EventBus,
	index providers.DocumentIndex,
	staleAfter time.Duration,
	now func() time.Time,
) *DocumentService {
	if now == nil {
		now = time.Now
	}
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &DocumentService{
		repo:       repo,
		snapshots:  snapshots,
		views:      views,
		eventBus:   eventBus,
		index:      index,
		staleAfter: staleAfter,
		now:        now,
	}
}

// staleBefore returns the instant before which a lock acquisition no
// longer blocks other editors
func (s *DocumentService) staleBefore(now time.Time) time.Time {
	return now.Add(-s.staleAfter)
}

// CreateDocument creates a new draft document
func (s *DocumentService) CreateDocument(ctx context.Context, params CreateDocumentParams) (*entities.ClinicalDocument, error) {
	if strings.TrimSpace(params.PatientID) == "" {
		return nil, apperrors.NewValidationError("patient id is required")
	}
	if strings.TrimSpace(params.Actor) == "" {
		return nil, apperrors.NewValidationError("actor is required")
	}
	if strings.TrimSpace(params.Title) == "" {
		return nil, apperrors.NewValidationError("title is required")
	}
	if params.Content == nil {
		return nil, apperrors.NewValidationError("note content is required")
	}

	now := s.now()
	doc := &entities.ClinicalDocument{
		ID:             uuid.New().String(),
		PatientID:      params.PatientID,
		EncounterID:    params.EncounterID,
		FacilityID:     params.FacilityID,
		OrganizationID: params.OrganizationID,
		Title:          params.Title,
		Content:        params.Content,
		VitalSigns:     params.VitalSigns,
		Diagnoses:      params.Diagnoses,
		Medications:    params.Medications,
		Orders:         params.Orders,
		Status:         entities.DocumentStatusDraft,
		Version:        1,
		CreatedBy:      params.Actor,
		UpdatedBy:      params.Actor,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := doc.ValidatePayloads(); err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, err
	}

	s.publishEvent(doc, entities.DocumentEventTypeCreated, params.Actor, nil)
	s.indexDocument(doc)
	return doc, nil
}

// GetDocument retrieves a document and records the view as a
// fire-and-forget side effect. A slow or failing audit write never
// delays the read.
func (s *DocumentService) GetDocument(ctx context.Context, id, actor string) (*entities.ClinicalDocument, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.IsDeleted() {
		return nil, apperrors.NewNotFoundError("document not found")
	}

	if s.views != nil && actor != "" {
		viewed := doc
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.views.RecordView(ctx, viewed, actor)
		}()
	}

	return doc, nil
}

// UpdateDocument rewrites a draft's content. The repository applies the
// draft-status, lock and optional version preconditions atomically with
// the write.
func (s *DocumentService) UpdateDocument(ctx context.Context, params UpdateDocumentParams) (*entities.ClinicalDocument, error) {
	if strings.TrimSpace(params.Actor) == "" {
		return nil, apperrors.NewValidationError("actor is required")
	}
	if params.Content == nil {
		return nil, apperrors.NewValidationError("note content is required")
	}

	doc, err := s.repo.GetByID(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if doc.IsDeleted() {
		return nil, apperrors.NewNotFoundError("document not found")
	}
	if doc.Content != nil && doc.Content.Variant() != params.Content.Variant() {
		return nil, apperrors.NewValidationError("note variant cannot change after creation")
	}

	now := s.now()
	doc.Title = chooseTitle(params.Title, doc.Title)
	doc.Content = params.Content
	doc.VitalSigns = params.VitalSigns
	doc.Diagnoses = params.Diagnoses
	doc.Medications = params.Medications
	doc.Orders = params.Orders
	doc.UpdatedBy = params.Actor
	doc.UpdatedAt = now

	if err := doc.ValidatePayloads(); err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	updated, err := s.repo.UpdateDraft(ctx, repositories.UpdateDraftParams{
		Doc:             doc,
		Actor:           params.Actor,
		ExpectedVersion: params.ExpectedVersion,
		StaleBefore:     s.staleBefore(now),
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(updated, entities.DocumentEventTypeUpdated, params.Actor, nil)
	s.indexDocument(updated)
	return updated, nil
}

func chooseTitle(next, current string) string {
	if strings.TrimSpace(next) == "" {
		return current
	}
	return next
}

// FinalizeDocument performs the one-way draft to finalized transition.
// The completeness gate runs first; the store then lets exactly one
// concurrent caller through. Finalize ignores the advisory lock: a
// stale editor must not be able to block attestation.
func (s *DocumentService) FinalizeDocument(ctx context.Context, params FinalizeDocumentParams) (*entities.ClinicalDocument, error) {
	if strings.TrimSpace(params.Actor) == "" {
		return nil, apperrors.NewValidationError("actor is required")
	}
	if strings.TrimSpace(params.Attestation) == "" {
		return nil, apperrors.NewValidationError("attestation is required")
	}

	doc, err := s.repo.GetByID(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if doc.IsDeleted() {
		return nil, apperrors.NewNotFoundError("document not found")
	}
	if !doc.IsDraft() {
		return nil, apperrors.NewInvalidStateError("only draft documents may be finalized")
	}

	if doc.Content == nil {
		return nil, apperrors.NewIncompleteError("document has no content")
	}
	if err := doc.Content.ValidateCompleteness(); err != nil {
		return nil, apperrors.NewIncompleteError(err.Error())
	}
	if err := doc.ValidatePayloads(); err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	finalized, err := s.repo.FinalizeDraft(ctx, repositories.FinalizeParams{
		ID:              params.ID,
		Actor:           params.Actor,
		Attestation:     params.Attestation,
		At:              s.now(),
		ExpectedVersion: params.ExpectedVersion,
	})
	if err != nil {
		return nil, err
	}

	s.snapshots.Record(ctx, finalized, entities.SnapshotReasonFinalize, params.Actor)
	s.publishEvent(finalized, entities.DocumentEventTypeFinalized, params.Actor, map[string]interface{}{
		"version": finalized.Version,
	})
	s.indexDocument(finalized)
	return finalized, nil
}

// LockDocument takes the advisory edit lock for actor. The lock is
// advisory: it signals editing intent but every mutation re-checks it
// at write time.
func (s *DocumentService) LockDocument(ctx context.Context, id, actor string) (*entities.ClinicalDocument, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, apperrors.NewValidationError("actor is required")
	}

	now := s.now()
	acquired, err := s.repo.AcquireLock(ctx, id, actor, now, s.staleBefore(now))
	if err != nil {
		return nil, err
	}

	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !acquired {
		holder := ""
		if doc.Lock != nil {
			holder = doc.Lock.HeldBy
		}
		return nil, apperrors.NewLockConflictError("document is locked by " + holder)
	}

	s.publishEvent(doc, entities.DocumentEventTypeLocked, actor, nil)
	return doc, nil
}

// UnlockDocument releases the advisory lock if actor holds it. Release
// by a non-holder is a no-op: the caller's editing session is over
// either way.
func (s *DocumentService) UnlockDocument(ctx context.Context, id, actor string) error {
	if strings.TrimSpace(actor) == "" {
		return apperrors.NewValidationError("actor is required")
	}

	released, err := s.repo.ReleaseLock(ctx, id, actor)
	if err != nil {
		return err
	}
	if !released {
		return nil
	}

	doc, err := s.repo.GetByID(ctx, id)
	if err == nil {
		s.publishEvent(doc, entities.DocumentEventTypeUnlocked, actor, nil)
	}
	return nil
}

// ListByPatient retrieves a patient's documents with a total count
func (s *DocumentService) ListByPatient(ctx context.Context, patientID string, filter repositories.DocumentFilter) ([]*entities.ClinicalDocument, int, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, 0, apperrors.NewValidationError("patient id is required")
	}
	return s.repo.ListByPatient(ctx, patientID, filter)
}

// Search performs a full-text search over titles and note bodies. Hits
// from the search index are hydrated from the authoritative store; when
// the index is unavailable the query falls back to the store's own
// text matching.
func (s *DocumentService) Search(ctx context.Context, query repositories.SearchQuery) ([]*entities.ClinicalDocument, int, error) {
	if s.index != nil {
		docs, total, err := s.searchIndex(ctx, query)
		if err == nil {
			return docs, total, nil
		}
		log.Warn().Err(err).Str("query", query.Text).Msg("search index unavailable, falling back to store")
	}
	return s.repo.Search(ctx, query)
}

func (s *DocumentService) searchIndex(ctx context.Context, query repositories.SearchQuery) ([]*entities.ClinicalDocument, int, error) {
	ids, total, err := s.index.Search(ctx, query.Text, query.PatientID, query.Status, query.Limit, query.Offset)
	if err != nil {
		return nil, 0, err
	}

	docs := make([]*entities.ClinicalDocument, 0, len(ids))
	for _, id := range ids {
		doc, err := s.repo.GetByID(ctx, id)
		if err != nil {
			if apperrors.IsNotFound(err) {
				// Index lag: the document was deleted after indexing
				continue
			}
			return nil, 0, err
		}
		if doc.IsDeleted() {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, total, nil
}

// DeleteDocument soft-deletes a draft. Finalized documents are part of
// the legal record and are never deleted.
func (s *DocumentService) DeleteDocument(ctx context.Context, id, actor, reason string) error {
	if strings.TrimSpace(actor) == "" {
		return apperrors.NewValidationError("actor is required")
	}

	deleted, err := s.repo.SoftDelete(ctx, id, actor, reason, s.now())
	if err != nil {
		return err
	}
	if !deleted {
		doc, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if doc.IsDeleted() {
			// Repeated delete is a no-op
			return nil
		}
		return apperrors.NewInvalidStateError("only draft documents may be deleted")
	}

	if doc, err := s.repo.GetByID(ctx, id); err == nil {
		s.publishEvent(doc, entities.DocumentEventTypeDeleted, actor, nil)
	}
	s.removeFromIndex(id)
	return nil
}

// History retrieves the snapshot log for a document, newest first
func (s *DocumentService) History(ctx context.Context, id string, limit, offset int) ([]*entities.DocumentSnapshot, int, error) {
	if s.snapshots == nil {
		return nil, 0, apperrors.NewInternalError("snapshot service not configured", nil)
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, 0, err
	}
	return s.snapshots.History(ctx, id, limit, offset)
}

// publishEvent publishes a lifecycle event to the shared and
// patient-scoped channels. Publishing is best-effort.
func (s *DocumentService) publishEvent(doc *entities.ClinicalDocument, eventType entities.DocumentEventType, actor string, details map[string]interface{}) {
	if s.eventBus == nil {
		return
	}

	event := entities.NewDocumentEvent(doc, eventType, actor, details)
	patientID := doc.PatientID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, channel := range []string{providers.EventChannelDocumentUpdates, providers.GetPatientChannel(patientID)} {
			if err := s.eventBus.Publish(ctx, channel, event); err != nil {
				log.Warn().Err(err).Str("channel", channel).Str("document_id", event.DocumentID).Msg("failed to publish document event")
			}
		}
	}()
}

// indexDocument upserts the document into the search index, best-effort
func (s *DocumentService) indexDocument(doc *entities.ClinicalDocument) {
	if s.index == nil {
		return
	}
	indexed := doc
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.index.IndexDocument(ctx, indexed); err != nil {
			log.Warn().Err(err).Str("document_id", indexed.ID).Msg("failed to index document")
		}
	}()
}

func (s *DocumentService) removeFromIndex(id string) {
	if s.index == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.index.RemoveDocument(ctx, id); err != nil {
			log.Warn().Err(err).Str("document_id", id).Msg("failed to remove document from index")
		}
	}()
}
