package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/clinicore/chartlock/internal/domain/entities"
	"github.com/clinicore/chartlock/internal/domain/providers"
	"github.com/clinicore/chartlock/internal/domain/repositories"
	apperrors "github.com/clinicore/chartlock/pkg/errors"
)

// AmendmentParams describes a correction or addendum to a finalized
// document
type AmendmentParams struct {
	OriginalID string
	Actor      string
	Kind       entities.AmendmentKind
	Reason     string

	// Section names the note section receiving the amendment text; empty
	// targets the note's default narrative section.
	Section string
	Text    string
}

// AmendmentService derives correction and addendum documents from
// finalized originals. The original is never rewritten: the derived
// document carries the full corrected content, and the original only
// gains a marker pointing at it.
type AmendmentService struct {
	repo      repositories.DocumentRepository
	snapshots *SnapshotService
	eventBus  providers.EventBus
	index     providers.DocumentIndex
	now       func() time.Time
}

// NewAmendmentService creates a new amendment service
func NewAmendmentService(
	repo repositories.DocumentRepository,
	snapshots *SnapshotService,
	eventBus providers.EventBus,
	index providers.DocumentIndex,
	now func() time.Time,
) *AmendmentService {
	if now == nil {
		now = time.Now
	}
	return &AmendmentService{
		repo:      repo,
		snapshots: snapshots,
		eventBus:  eventBus,
		index:     index,
		now:       now,
	}
}

// CreateAmendment derives a new document from a finalized original. The
// amendment number is assigned by the store inside the same transaction
// that stamps the original, so concurrent amendments to one original
// never share a number.
func (s *AmendmentService) CreateAmendment(ctx context.Context, params AmendmentParams) (*entities.ClinicalDocument, error) {
	if strings.TrimSpace(params.Actor) == "" {
		return nil, apperrors.NewValidationError("actor is required")
	}
	if strings.TrimSpace(params.Reason) == "" {
		return nil, apperrors.NewValidationError("amendment reason is required")
	}
	if strings.TrimSpace(params.Text) == "" {
		return nil, apperrors.NewValidationError("amendment text is required")
	}

	kind := params.Kind
	if kind == "" {
		kind = entities.AmendmentKindCorrection
	}
	if kind != entities.AmendmentKindCorrection && kind != entities.AmendmentKindAddendum {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown amendment kind: %s", kind))
	}

	original, err := s.repo.GetByID(ctx, params.OriginalID)
	if err != nil {
		return nil, err
	}
	if original.IsDeleted() {
		return nil, apperrors.NewNotFoundError("document not found")
	}
	if !original.IsFinalized() {
		return nil, apperrors.NewInvalidStateError("only finalized documents may be amended")
	}

	at := s.now()
	derived, err := s.deriveDocument(original, params, kind, at)
	if err != nil {
		return nil, err
	}

	number, err := s.repo.CreateAmendment(ctx, derived, original.ID, at)
	if err != nil {
		return nil, err
	}
	derived.AmendmentNumber = number

	s.snapshots.Record(ctx, derived, entities.SnapshotReasonAmendment, params.Actor)
	s.publishAmended(derived, params.Actor, kind)
	s.indexDerived(derived)

	return derived, nil
}

// deriveDocument builds the amendment document from a deep copy of the
// original's content
func (s *AmendmentService) deriveDocument(original *entities.ClinicalDocument, params AmendmentParams, kind entities.AmendmentKind, at time.Time) (*entities.ClinicalDocument, error) {
	if original.Content == nil {
		return nil, apperrors.NewInternalError("original document has no content", nil)
	}

	content := original.Content.Clone()
	header := fmt.Sprintf("[%s by %s at %s] %s", kind, params.Actor, at.UTC().Format(time.RFC3339), params.Text)
	if !content.AppendToSection(params.Section, header) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown note section: %s", params.Section))
	}

	status := entities.DocumentStatusAmended
	if kind == entities.AmendmentKindAddendum {
		status = entities.DocumentStatusAddended
	}

	originalID := original.ID
	reason := strings.TrimSpace(params.Reason)
	actor := params.Actor

	derived := &entities.ClinicalDocument{
		ID:             uuid.New().String(),
		PatientID:      original.PatientID,
		EncounterID:    original.EncounterID,
		FacilityID:     original.FacilityID,
		OrganizationID: original.OrganizationID,
		Title:          original.Title,
		Content:        content,
		VitalSigns:     original.VitalSigns,
		Diagnoses:      append([]entities.Diagnosis(nil), original.Diagnoses...),
		Medications:    append([]entities.Medication(nil), original.Medications...),
		Orders:         append([]entities.Order(nil), original.Orders...),

		Status:  status,
		Version: 1,

		// The derived document is born immutable
		FinalizedBy: &actor,
		FinalizedAt: &at,
		Attestation: original.Attestation,

		IsAmendment:        true,
		OriginalDocumentID: &originalID,
		AmendmentReason:    &reason,

		CreatedBy: actor,
		UpdatedBy: actor,
		CreatedAt: at,
		UpdatedAt: at,
	}
	return derived, nil
}

func (s *AmendmentService) publishAmended(derived *entities.ClinicalDocument, actor string, kind entities.AmendmentKind) {
	if s.eventBus == nil {
		return
	}

	event := entities.NewDocumentEvent(derived, entities.DocumentEventTypeAmended, actor, map[string]interface{}{
		"original_document_id": *derived.OriginalDocumentID,
		"amendment_kind":       string(kind),
		"amendment_number":     derived.AmendmentNumber,
	})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, channel := range []string{providers.EventChannelDocumentUpdates, providers.GetPatientChannel(derived.PatientID)} {
			if err := s.eventBus.Publish(ctx, channel, event); err != nil {
				log.Warn().Err(err).Str("channel", channel).Str("document_id", derived.ID).Msg("failed to publish amendment event")
			}
		}
	}()
}

func (s *AmendmentService) indexDerived(derived *entities.ClinicalDocument) {
	if s.index == nil {
		return
	}
	doc := derived
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.index.IndexDocument(ctx, doc); err != nil {
			log.Warn().Err(err).Str("document_id", doc.ID).Msg("failed to index amendment document")
		}
	}()
}

// ListAmendments retrieves the documents derived from an original,
// ordered by amendment number
func (s *AmendmentService) ListAmendments(ctx context.Context, originalID string) ([]*entities.ClinicalDocument, error) {
	if _, err := s.repo.GetByID(ctx, originalID); err != nil {
		return nil, err
	}
	return s.repo.ListByOriginal(ctx, originalID)
}
