package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"

	"github.com/clinicore/chartlock/internal/domain/entities"
	"github.com/clinicore/chartlock/internal/domain/providers"
	tsclient "github.com/clinicore/chartlock/internal/infrastructure/clients/typesense"
)

const collectionName = tsclient.DocumentsCollection

// TypesenseAdapter implements document full-text search using Typesense.
// The index holds flattened note text only; hits are hydrated from the
// authoritative store by the caller.
type TypesenseAdapter struct {
	client *tsclient.Client
}

// Ensure TypesenseAdapter implements DocumentIndex
var _ providers.DocumentIndex = (*TypesenseAdapter)(nil)

// NewTypesenseAdapter creates a new Typesense adapter
func NewTypesenseAdapter(client *tsclient.Client) *TypesenseAdapter {
	return &TypesenseAdapter{client: client}
}

// InitSchema ensures the collection exists
func (a *TypesenseAdapter) InitSchema(ctx context.Context) error {
	_, err := a.client.Client().Collection(collectionName).Retrieve(ctx)
	if err == nil {
		return nil
	}

	schema := &api.CollectionSchema{
		Name: collectionName,
		Fields: []api.Field{
			{Name: "id", Type: "string"},
			{Name: "patient_id", Type: "string", Facet: pointer.True()},
			{Name: "title", Type: "string"},
			{Name: "text", Type: "string"},
			{Name: "variant", Type: "string", Facet: pointer.True()},
			{Name: "status", Type: "string", Facet: pointer.True()},
			{Name: "updated_at", Type: "int64"},
		},
		DefaultSortingField: pointer.String("updated_at"),
	}

	if _, err := a.client.Client().Collections().Create(ctx, schema); err != nil {
		return fmt.Errorf("failed to create typesense collection: %w", err)
	}
	return nil
}

// IndexDocument upserts a document into the index
func (a *TypesenseAdapter) IndexDocument(ctx context.Context, doc *entities.ClinicalDocument) error {
	text := ""
	variant := ""
	if doc.Content != nil {
		text = doc.Content.PlainText()
		variant = string(doc.Content.Variant())
	}

	record := map[string]interface{}{
		"id":         doc.ID,
		"patient_id": doc.PatientID,
		"title":      doc.Title,
		"text":       text,
		"variant":    variant,
		"status":     string(doc.Status),
		"updated_at": doc.UpdatedAt.Unix(),
	}

	if _, err := a.client.Client().Collection(collectionName).Documents().Upsert(ctx, record); err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	return nil
}

// RemoveDocument removes a document from the index
func (a *TypesenseAdapter) RemoveDocument(ctx context.Context, id string) error {
	if _, err := a.client.Client().Collection(collectionName).Document(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to remove document from index: %w", err)
	}
	return nil
}

// Search returns matching document IDs and the total hit count
func (a *TypesenseAdapter) Search(ctx context.Context, text, patientID string, status entities.DocumentStatus, limit, offset int) ([]string, int, error) {
	if limit <= 0 {
		limit = 20
	}

	var filters []string
	if patientID != "" {
		filters = append(filters, fmt.Sprintf("patient_id:=%s", patientID))
	}
	if status != "" {
		filters = append(filters, fmt.Sprintf("status:=%s", status))
	}

	query := text
	if strings.TrimSpace(query) == "" {
		query = "*"
	}

	searchParams := &api.SearchCollectionParams{
		Q:       pointer.String(query),
		QueryBy: pointer.String("title,text"),
		Page:    pointer.Int(offset/limit + 1),
		PerPage: pointer.Int(limit),
	}
	if len(filters) > 0 {
		searchParams.FilterBy = pointer.String(strings.Join(filters, " && "))
	}

	result, err := a.client.Client().Collection(collectionName).Documents().Search(ctx, searchParams)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search documents: %w", err)
	}

	var ids []string
	if result.Hits != nil {
		for _, hit := range *result.Hits {
			if hit.Document == nil {
				continue
			}
			doc := *hit.Document
			if id, ok := doc["id"].(string); ok {
				ids = append(ids, id)
			}
		}
	}

	total := 0
	if result.Found != nil {
		total = *result.Found
	}
	return ids, total, nil
}
