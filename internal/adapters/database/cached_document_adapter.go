package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clinicore/chartlock/internal/domain/entities"
	"github.com/clinicore/chartlock/internal/domain/providers"
	"github.com/clinicore/chartlock/internal/domain/repositories"
)

// CachedDocumentAdapter wraps a DocumentRepository with read-through
// caching on GetByID. Mutations always go straight to the store and
// invalidate the cached copy; a conditional write must never be decided
// against cached state.
type CachedDocumentAdapter struct {
	adapter repositories.DocumentRepository
	cache   providers.CacheProvider
}

// NewCachedDocumentAdapter creates a new cached document adapter
func NewCachedDocumentAdapter(adapter repositories.DocumentRepository, cache providers.CacheProvider) repositories.DocumentRepository {
	return &CachedDocumentAdapter{
		adapter: adapter,
		cache:   cache,
	}
}

// documentByIDTTL is short: a cached read may lag, but lifecycle
// decisions never depend on it
const documentByIDTTL = 60

func documentCacheKey(id string) string {
	return fmt.Sprintf("document:%s", id)
}

// cachedDocument carries the note content as variant-tagged bytes next
// to the envelope. The envelope's content field is nilled before
// marshalling: NoteContent is an interface and cannot be unmarshalled
// in place on a hit.
type cachedDocument struct {
	Document *entities.ClinicalDocument `json:"document"`
	Content  json.RawMessage            `json:"content"`
}

// GetByID retrieves a document by ID with read-through caching
func (a *CachedDocumentAdapter) GetByID(ctx context.Context, id string) (*entities.ClinicalDocument, error) {
	cacheKey := documentCacheKey(id)

	if data, err := a.cache.Get(ctx, cacheKey); err == nil {
		if doc, err := decodeCachedDocument(data); err == nil {
			return doc, nil
		} else {
			log.Warn().Err(err).Str("document_id", id).Msg("failed to decode cached document")
		}
	}

	doc, err := a.adapter.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	go func() {
		data, err := encodeCachedDocument(doc)
		if err != nil {
			return
		}
		if err := a.cache.Set(context.Background(), cacheKey, data, documentByIDTTL); err != nil {
			log.Warn().Err(err).Str("document_id", id).Msg("failed to cache document")
		}
	}()

	return doc, nil
}

func encodeCachedDocument(doc *entities.ClinicalDocument) ([]byte, error) {
	content, err := entities.MarshalNoteContent(doc.Content)
	if err != nil {
		return nil, err
	}
	envelope := *doc
	envelope.Content = nil
	return json.Marshal(cachedDocument{Document: &envelope, Content: content})
}

func decodeCachedDocument(data []byte) (*entities.ClinicalDocument, error) {
	var cached cachedDocument
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	if cached.Document == nil {
		return nil, fmt.Errorf("cached document is empty")
	}
	content, err := entities.UnmarshalNoteContent(cached.Content)
	if err != nil {
		return nil, err
	}
	cached.Document.Content = content
	return cached.Document, nil
}

func (a *CachedDocumentAdapter) invalidate(ctx context.Context, id string) {
	if err := a.cache.Delete(ctx, documentCacheKey(id)); err != nil {
		log.Warn().Err(err).Str("document_id", id).Msg("failed to invalidate cached document")
	}
}

// Create persists a new draft document
func (a *CachedDocumentAdapter) Create(ctx context.Context, doc *entities.ClinicalDocument) error {
	return a.adapter.Create(ctx, doc)
}

// UpdateDraft delegates to the store and invalidates the cached copy
func (a *CachedDocumentAdapter) UpdateDraft(ctx context.Context, params repositories.UpdateDraftParams) (*entities.ClinicalDocument, error) {
	doc, err := a.adapter.UpdateDraft(ctx, params)
	if err != nil {
		return nil, err
	}
	a.invalidate(ctx, params.Doc.ID)
	return doc, nil
}

// FinalizeDraft delegates to the store and invalidates the cached copy
func (a *CachedDocumentAdapter) FinalizeDraft(ctx context.Context, params repositories.FinalizeParams) (*entities.ClinicalDocument, error) {
	doc, err := a.adapter.FinalizeDraft(ctx, params)
	if err != nil {
		return nil, err
	}
	a.invalidate(ctx, params.ID)
	return doc, nil
}

// AcquireLock delegates to the store and invalidates the cached copy
func (a *CachedDocumentAdapter) AcquireLock(ctx context.Context, id, actor string, now, staleBefore time.Time) (bool, error) {
	acquired, err := a.adapter.AcquireLock(ctx, id, actor, now, staleBefore)
	if err != nil {
		return false, err
	}
	if acquired {
		a.invalidate(ctx, id)
	}
	return acquired, nil
}

// ReleaseLock delegates to the store and invalidates the cached copy
func (a *CachedDocumentAdapter) ReleaseLock(ctx context.Context, id, actor string) (bool, error) {
	released, err := a.adapter.ReleaseLock(ctx, id, actor)
	if err != nil {
		return false, err
	}
	if released {
		a.invalidate(ctx, id)
	}
	return released, nil
}

// AppendViewer delegates to the store and invalidates the cached copy
func (a *CachedDocumentAdapter) AppendViewer(ctx context.Context, id, actor string) error {
	if err := a.adapter.AppendViewer(ctx, id, actor); err != nil {
		return err
	}
	a.invalidate(ctx, id)
	return nil
}

// CreateAmendment delegates to the store and invalidates the original's
// cached copy
func (a *CachedDocumentAdapter) CreateAmendment(ctx context.Context, amendment *entities.ClinicalDocument, originalID string, at time.Time) (int, error) {
	number, err := a.adapter.CreateAmendment(ctx, amendment, originalID, at)
	if err != nil {
		return 0, err
	}
	a.invalidate(ctx, originalID)
	return number, nil
}

// CountAmendments delegates to the store
func (a *CachedDocumentAdapter) CountAmendments(ctx context.Context, originalID string) (int, error) {
	return a.adapter.CountAmendments(ctx, originalID)
}

// ListByOriginal delegates to the store
func (a *CachedDocumentAdapter) ListByOriginal(ctx context.Context, originalID string) ([]*entities.ClinicalDocument, error) {
	return a.adapter.ListByOriginal(ctx, originalID)
}

// ListByPatient delegates to the store; lists are not cached because the
// lock and status fields they carry go stale too quickly to be useful
func (a *CachedDocumentAdapter) ListByPatient(ctx context.Context, patientID string, filter repositories.DocumentFilter) ([]*entities.ClinicalDocument, int, error) {
	return a.adapter.ListByPatient(ctx, patientID, filter)
}

// Search delegates to the store
func (a *CachedDocumentAdapter) Search(ctx context.Context, q repositories.SearchQuery) ([]*entities.ClinicalDocument, int, error) {
	return a.adapter.Search(ctx, q)
}

// SoftDelete delegates to the store and invalidates the cached copy
func (a *CachedDocumentAdapter) SoftDelete(ctx context.Context, id, actor, reason string, at time.Time) (bool, error) {
	deleted, err := a.adapter.SoftDelete(ctx, id, actor, reason, at)
	if err != nil {
		return false, err
	}
	if deleted {
		a.invalidate(ctx, id)
	}
	return deleted, nil
}
