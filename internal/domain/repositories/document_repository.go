package repositories

import (
	"context"
	"time"

	"github.com/clinicore/chartlock/internal/domain/entities"
)

// DocumentFilter defines filters for listing documents
type DocumentFilter struct {
	Status         entities.DocumentStatus
	Variant        entities.NoteVariant
	EncounterID    string
	CreatedBy      string
	IncludeDeleted bool
	From           *time.Time
	To             *time.Time
	Limit          int
	Offset         int
}

// SearchQuery defines a free-text search over documents
type SearchQuery struct {
	Text      string
	PatientID string
	Status    entities.DocumentStatus
	Limit     int
	Offset    int
}

// UpdateDraftParams carries a draft mutation and its preconditions. The
// store evaluates all preconditions inside the same atomic write.
type UpdateDraftParams struct {
	Doc   *entities.ClinicalDocument
	Actor string

	// ExpectedVersion, when > 0, adds an optimistic version match to the
	// write's precondition; a mismatch is a concurrency conflict.
	ExpectedVersion int

	// StaleBefore marks the instant before which a held lock no longer
	// blocks other editors.
	StaleBefore time.Time
}

// FinalizeParams carries the one-way draft to finalized transition
type FinalizeParams struct {
	ID              string
	Actor           string
	Attestation     string
	At              time.Time
	ExpectedVersion int
}

// DocumentRepository defines the interface for document persistence.
// Every mutating operation is a single conditional write: the store
// applies the change only when the recorded preconditions still hold,
// so two concurrent callers can never both believe they succeeded.
type DocumentRepository interface {
	// Create persists a new draft document
	Create(ctx context.Context, doc *entities.ClinicalDocument) error

	// GetByID retrieves a document by ID, including soft-deleted rows
	GetByID(ctx context.Context, id string) (*entities.ClinicalDocument, error)

	// UpdateDraft rewrites content and audit fields while the document
	// is a draft and unlocked, self-locked, or stale-locked. Returns the
	// stored document after the write.
	UpdateDraft(ctx context.Context, params UpdateDraftParams) (*entities.ClinicalDocument, error)

	// FinalizeDraft performs the draft to finalized transition: bumps
	// the version, clears the lock, and stamps the attestation. Exactly
	// one concurrent caller wins.
	FinalizeDraft(ctx context.Context, params FinalizeParams) (*entities.ClinicalDocument, error)

	// AcquireLock takes the advisory lock when it is free, already held
	// by actor, or stale at the given instant. Returns false only when
	// another actor holds a non-stale lock.
	AcquireLock(ctx context.Context, id, actor string, now, staleBefore time.Time) (bool, error)

	// ReleaseLock clears the lock when actor holds it
	ReleaseLock(ctx context.Context, id, actor string) (bool, error)

	// AppendViewer adds actor to the document's view audit set if absent
	AppendViewer(ctx context.Context, id, actor string) error

	// CreateAmendment persists the derived document and stamps the
	// original's amended marker in one transaction. The amendment number
	// is re-derived from a count inside the transaction and returned.
	CreateAmendment(ctx context.Context, amendment *entities.ClinicalDocument, originalID string, at time.Time) (int, error)

	// CountAmendments counts documents derived from the given original
	CountAmendments(ctx context.Context, originalID string) (int, error)

	// ListByPatient retrieves documents for a patient with a total count
	ListByPatient(ctx context.Context, patientID string, filter DocumentFilter) ([]*entities.ClinicalDocument, int, error)

	// ListByOriginal retrieves the documents derived from the given
	// original, ordered by amendment number
	ListByOriginal(ctx context.Context, originalID string) ([]*entities.ClinicalDocument, error)

	// Search performs a text search over titles and note bodies
	Search(ctx context.Context, query SearchQuery) ([]*entities.ClinicalDocument, int, error)

	// SoftDelete marks a draft document deleted at the given instant;
	// finalized documents are never deleted
	SoftDelete(ctx context.Context, id, actor, reason string, at time.Time) (bool, error)
}
