package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clinicore/chartlock/internal/domain/entities"
	"github.com/clinicore/chartlock/internal/domain/repositories"
	apperrors "github.com/clinicore/chartlock/pkg/errors"
)

// MemoryDocumentAdapter is an in-memory DocumentRepository with the same
// conditional-write semantics as the Postgres adapter. The mutex stands
// in for the database's per-statement atomicity; the lifecycle engine
// itself never takes a lock. Used by tests and local runs.
type MemoryDocumentAdapter struct {
	mu   sync.Mutex
	docs map[string]*entities.ClinicalDocument
}

// NewMemoryDocumentAdapter creates an empty in-memory document store
func NewMemoryDocumentAdapter() *MemoryDocumentAdapter {
	return &MemoryDocumentAdapter{docs: make(map[string]*entities.ClinicalDocument)}
}

func cloneDocument(doc *entities.ClinicalDocument) *entities.ClinicalDocument {
	clone := *doc
	if doc.Content != nil {
		clone.Content = doc.Content.Clone()
	}
	if doc.Lock != nil {
		l := *doc.Lock
		clone.Lock = &l
	}
	clone.ViewedBy = append([]string(nil), doc.ViewedBy...)
	clone.Diagnoses = append([]entities.Diagnosis(nil), doc.Diagnoses...)
	clone.Medications = append([]entities.Medication(nil), doc.Medications...)
	clone.Orders = append([]entities.Order(nil), doc.Orders...)
	if doc.VitalSigns != nil {
		v := *doc.VitalSigns
		clone.VitalSigns = &v
	}
	return &clone
}

// Create persists a new draft document
func (m *MemoryDocumentAdapter) Create(ctx context.Context, doc *entities.ClinicalDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.docs[doc.ID]; exists {
		return apperrors.NewConflictError(fmt.Sprintf("document with id %s already exists", doc.ID))
	}
	m.docs[doc.ID] = cloneDocument(doc)
	return nil
}

// GetByID retrieves a document by ID, including soft-deleted rows
func (m *MemoryDocumentAdapter) GetByID(ctx context.Context, id string) (*entities.ClinicalDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(id)
}

func (m *MemoryDocumentAdapter) getLocked(id string) (*entities.ClinicalDocument, error) {
	doc, ok := m.docs[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("document with id %s not found", id))
	}
	return cloneDocument(doc), nil
}

// UpdateDraft rewrites content and audit fields under the draft-only,
// unlocked-or-self-locked-or-stale precondition
func (m *MemoryDocumentAdapter) UpdateDraft(ctx context.Context, params repositories.UpdateDraftParams) (*entities.ClinicalDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.docs[params.Doc.ID]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("document with id %s not found", params.Doc.ID))
	}
	if err := classifyMemoryRejection(stored, params.Actor, params.ExpectedVersion, params.StaleBefore); err != nil {
		return nil, err
	}

	stored.Title = params.Doc.Title
	stored.Content = params.Doc.Content.Clone()
	stored.VitalSigns = params.Doc.VitalSigns
	stored.Diagnoses = append([]entities.Diagnosis(nil), params.Doc.Diagnoses...)
	stored.Medications = append([]entities.Medication(nil), params.Doc.Medications...)
	stored.Orders = append([]entities.Order(nil), params.Doc.Orders...)
	stored.UpdatedBy = params.Actor
	stored.UpdatedAt = params.Doc.UpdatedAt
	return cloneDocument(stored), nil
}

// FinalizeDraft performs the one-way draft to finalized transition
func (m *MemoryDocumentAdapter) FinalizeDraft(ctx context.Context, params repositories.FinalizeParams) (*entities.ClinicalDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.docs[params.ID]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("document with id %s not found", params.ID))
	}
	// Finalize ignores the lock: staleBefore zero skips the lock check.
	if err := classifyMemoryRejection(stored, params.Actor, params.ExpectedVersion, time.Time{}); err != nil {
		return nil, err
	}

	stored.Status = entities.DocumentStatusFinalized
	stored.Version++
	stored.Lock = nil
	actor := params.Actor
	attestation := params.Attestation
	at := params.At
	stored.FinalizedBy = &actor
	stored.FinalizedAt = &at
	stored.Attestation = &attestation
	stored.UpdatedBy = actor
	stored.UpdatedAt = at
	return cloneDocument(stored), nil
}

func classifyMemoryRejection(stored *entities.ClinicalDocument, actor string, expectedVersion int, staleBefore time.Time) error {
	if stored.IsDeleted() {
		return apperrors.NewInvalidStateError(fmt.Sprintf("document %s has been deleted", stored.ID))
	}
	if !stored.IsDraft() {
		return apperrors.NewInvalidStateError(fmt.Sprintf("document %s is %s, only drafts can be modified", stored.ID, stored.Status))
	}
	if expectedVersion > 0 && stored.Version != expectedVersion {
		return apperrors.NewConcurrencyConflictError(fmt.Sprintf("document %s is at version %d, caller expected %d", stored.ID, stored.Version, expectedVersion))
	}
	if !staleBefore.IsZero() && stored.Lock != nil && stored.Lock.HeldBy != actor && !stored.Lock.AcquiredAt.Before(staleBefore) {
		return apperrors.NewLockConflictError(fmt.Sprintf("document %s is locked by %s", stored.ID, stored.Lock.HeldBy))
	}
	return nil
}

// AcquireLock takes the advisory lock when it is free, held by actor, or stale
func (m *MemoryDocumentAdapter) AcquireLock(ctx context.Context, id, actor string, now, staleBefore time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.docs[id]
	if !ok {
		return false, apperrors.NewNotFoundError(fmt.Sprintf("document with id %s not found", id))
	}
	if !stored.IsDraft() || stored.IsDeleted() {
		return false, apperrors.NewInvalidStateError(fmt.Sprintf("document %s is not a draft", id))
	}
	if stored.Lock != nil && stored.Lock.HeldBy != actor && !stored.Lock.AcquiredAt.Before(staleBefore) {
		return false, nil
	}
	stored.Lock = &entities.Lock{HeldBy: actor, AcquiredAt: now}
	return true, nil
}

// ReleaseLock clears the lock when actor holds it
func (m *MemoryDocumentAdapter) ReleaseLock(ctx context.Context, id, actor string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.docs[id]
	if !ok {
		return false, apperrors.NewNotFoundError(fmt.Sprintf("document with id %s not found", id))
	}
	if stored.Lock == nil || stored.Lock.HeldBy != actor {
		return false, nil
	}
	stored.Lock = nil
	return true, nil
}

// AppendViewer adds actor to viewed_by if absent
func (m *MemoryDocumentAdapter) AppendViewer(ctx context.Context, id, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.docs[id]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("document with id %s not found", id))
	}
	stored.AddViewer(actor)
	return nil
}

// CreateAmendment persists the derived document and stamps the original
// under the same mutex hold, mirroring the Postgres transaction
func (m *MemoryDocumentAdapter) CreateAmendment(ctx context.Context, amendment *entities.ClinicalDocument, originalID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.docs[originalID]
	if !ok || original.IsDeleted() {
		return 0, apperrors.NewNotFoundError(fmt.Sprintf("document with id %s not found", originalID))
	}
	if original.Status != entities.DocumentStatusFinalized {
		return 0, apperrors.NewInvalidStateError(fmt.Sprintf("document %s is %s, only finalized documents can be amended", originalID, original.Status))
	}

	count := 0
	for _, doc := range m.docs {
		if doc.OriginalDocumentID != nil && *doc.OriginalDocumentID == originalID {
			count++
		}
	}

	amendment.AmendmentNumber = count + 1
	m.docs[amendment.ID] = cloneDocument(amendment)

	original.AmendedAt = &at
	original.UpdatedAt = at
	return amendment.AmendmentNumber, nil
}

// CountAmendments counts documents derived from the given original
func (m *MemoryDocumentAdapter) CountAmendments(ctx context.Context, originalID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, doc := range m.docs {
		if doc.OriginalDocumentID != nil && *doc.OriginalDocumentID == originalID {
			count++
		}
	}
	return count, nil
}

// ListByOriginal retrieves documents derived from the given original,
// ordered by amendment number
func (m *MemoryDocumentAdapter) ListByOriginal(ctx context.Context, originalID string) ([]*entities.ClinicalDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*entities.ClinicalDocument
	for _, doc := range m.docs {
		if doc.OriginalDocumentID != nil && *doc.OriginalDocumentID == originalID {
			matched = append(matched, cloneDocument(doc))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].AmendmentNumber < matched[j].AmendmentNumber
	})
	return matched, nil
}

// ListByPatient retrieves documents for a patient with a total count
func (m *MemoryDocumentAdapter) ListByPatient(ctx context.Context, patientID string, filter repositories.DocumentFilter) ([]*entities.ClinicalDocument, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*entities.ClinicalDocument
	for _, doc := range m.docs {
		if doc.PatientID != patientID {
			continue
		}
		if !matchesFilter(doc, filter) {
			continue
		}
		matched = append(matched, cloneDocument(doc))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	return page(matched, filter.Limit, filter.Offset), total, nil
}

func matchesFilter(doc *entities.ClinicalDocument, filter repositories.DocumentFilter) bool {
	if !filter.IncludeDeleted && doc.IsDeleted() {
		return false
	}
	if filter.Status != "" && doc.Status != filter.Status {
		return false
	}
	if filter.Variant != "" && (doc.Content == nil || doc.Content.Variant() != filter.Variant) {
		return false
	}
	if filter.EncounterID != "" && (doc.EncounterID == nil || *doc.EncounterID != filter.EncounterID) {
		return false
	}
	if filter.CreatedBy != "" && doc.CreatedBy != filter.CreatedBy {
		return false
	}
	if filter.From != nil && doc.CreatedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && doc.CreatedAt.After(*filter.To) {
		return false
	}
	return true
}

func page(docs []*entities.ClinicalDocument, limit, offset int) []*entities.ClinicalDocument {
	if offset >= len(docs) {
		return nil
	}
	docs = docs[offset:]
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}

// Search performs a substring search over titles and note bodies
func (m *MemoryDocumentAdapter) Search(ctx context.Context, q repositories.SearchQuery) ([]*entities.ClinicalDocument, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	needle := strings.ToLower(q.Text)
	var matched []*entities.ClinicalDocument
	for _, doc := range m.docs {
		if doc.IsDeleted() {
			continue
		}
		if q.PatientID != "" && doc.PatientID != q.PatientID {
			continue
		}
		if q.Status != "" && doc.Status != q.Status {
			continue
		}
		haystack := strings.ToLower(doc.Title)
		if doc.Content != nil {
			haystack += "\n" + strings.ToLower(doc.Content.PlainText())
		}
		if needle != "" && !strings.Contains(haystack, needle) {
			continue
		}
		matched = append(matched, cloneDocument(doc))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	total := len(matched)
	return page(matched, q.Limit, q.Offset), total, nil
}

// SoftDelete marks a draft document deleted at the given instant
func (m *MemoryDocumentAdapter) SoftDelete(ctx context.Context, id, actor, reason string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.docs[id]
	if !ok {
		return false, apperrors.NewNotFoundError(fmt.Sprintf("document with id %s not found", id))
	}
	if !stored.IsDraft() || stored.IsDeleted() {
		return false, nil
	}
	stored.DeletedAt = &at
	stored.UpdatedBy = actor
	stored.UpdatedAt = at
	return true, nil
}

// MemorySnapshotAdapter is an in-memory append-only history log
type MemorySnapshotAdapter struct {
	mu        sync.Mutex
	snapshots []*entities.DocumentSnapshot
}

// NewMemorySnapshotAdapter creates an empty in-memory snapshot log
func NewMemorySnapshotAdapter() *MemorySnapshotAdapter {
	return &MemorySnapshotAdapter{}
}

// Append writes a history entry
func (m *MemorySnapshotAdapter) Append(ctx context.Context, snapshot *entities.DocumentSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *snapshot
	m.snapshots = append(m.snapshots, &copied)
	return nil
}

// ListByDocument retrieves history entries for a document, newest first
func (m *MemorySnapshotAdapter) ListByDocument(ctx context.Context, documentID string, limit, offset int) ([]*entities.DocumentSnapshot, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*entities.DocumentSnapshot
	for _, snap := range m.snapshots {
		if snap.DocumentID == documentID {
			copied := *snap
			matched = append(matched, &copied)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ChangedAt.After(matched[j].ChangedAt)
	})

	total := len(matched)
	if offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}
