package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/lib/pq"

	"github.com/clinicore/chartlock/internal/domain/entities"
	"github.com/clinicore/chartlock/internal/domain/repositories"
	"github.com/clinicore/chartlock/internal/infrastructure/clients/postgres"
	apperrors "github.com/clinicore/chartlock/pkg/errors"
)

const documentsTable = "clinical_documents"

var documentColumns = []interface{}{
	"id", "patient_id", "encounter_id", "facility_id", "organization_id",
	"title", "variant", "content",
	"vital_signs", "diagnoses", "medications", "orders",
	"status", "version", "locked_by", "locked_at",
	"finalized_by", "finalized_at", "attestation",
	"is_amendment", "original_document_id", "amendment_reason", "amendment_number", "amended_at",
	"created_by", "updated_by", "viewed_by",
	"created_at", "updated_at", "deleted_at",
}

// DocumentAdapter implements the DocumentRepository interface against
// PostgreSQL. Every mutation is a single conditional UPDATE whose WHERE
// clause carries the lifecycle precondition, so the database is the only
// concurrency arbiter.
type DocumentAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewDocumentAdapter creates a new document adapter
func NewDocumentAdapter(client *postgres.Client) repositories.DocumentRepository {
	return &DocumentAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create persists a new draft document
func (a *DocumentAdapter) Create(ctx context.Context, doc *entities.ClinicalDocument) error {
	record, err := documentRecord(doc)
	if err != nil {
		return apperrors.NewInternalError("failed to encode document", err)
	}

	query, args, err := a.db.Insert(documentsTable).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to create document", err)
	}
	return nil
}

// GetByID retrieves a document by ID, including soft-deleted rows
func (a *DocumentAdapter) GetByID(ctx context.Context, id string) (*entities.ClinicalDocument, error) {
	query, args, err := a.db.Select(documentColumns...).
		From(documentsTable).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	doc, err := scanDocument(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("document with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get document", err)
	}
	return doc, nil
}

// UpdateDraft rewrites content and audit fields under the draft-only,
// unlocked-or-self-locked-or-stale precondition
func (a *DocumentAdapter) UpdateDraft(ctx context.Context, params repositories.UpdateDraftParams) (*entities.ClinicalDocument, error) {
	doc := params.Doc
	content, err := entities.MarshalNoteContent(doc.Content)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode note content", err)
	}

	record := goqu.Record{
		"title":      doc.Title,
		"content":    content,
		"updated_by": params.Actor,
		"updated_at": doc.UpdatedAt,
	}
	if err := addPayloadColumns(record, doc); err != nil {
		return nil, apperrors.NewInternalError("failed to encode payloads", err)
	}

	conditions := []goqu.Expression{
		goqu.C("id").Eq(doc.ID),
		goqu.C("deleted_at").IsNull(),
		goqu.C("status").Eq(entities.DocumentStatusDraft),
		goqu.Or(
			goqu.C("locked_by").IsNull(),
			goqu.C("locked_by").Eq(params.Actor),
			goqu.C("locked_at").Lt(params.StaleBefore),
		),
	}
	if params.ExpectedVersion > 0 {
		conditions = append(conditions, goqu.C("version").Eq(params.ExpectedVersion))
	}

	query, args, err := a.db.Update(documentsTable).
		Set(record).
		Where(conditions...).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to update document", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rows == 0 {
		return nil, a.classifyWriteRejection(ctx, doc.ID, params.Actor, params.ExpectedVersion, params.StaleBefore)
	}

	return a.GetByID(ctx, doc.ID)
}

// FinalizeDraft performs the one-way draft to finalized transition
func (a *DocumentAdapter) FinalizeDraft(ctx context.Context, params repositories.FinalizeParams) (*entities.ClinicalDocument, error) {
	record := goqu.Record{
		"status":       entities.DocumentStatusFinalized,
		"version":      goqu.L("version + 1"),
		"locked_by":    nil,
		"locked_at":    nil,
		"finalized_by": params.Actor,
		"finalized_at": params.At,
		"attestation":  params.Attestation,
		"updated_by":   params.Actor,
		"updated_at":   params.At,
	}

	conditions := []goqu.Expression{
		goqu.C("id").Eq(params.ID),
		goqu.C("deleted_at").IsNull(),
		goqu.C("status").Eq(entities.DocumentStatusDraft),
	}
	if params.ExpectedVersion > 0 {
		conditions = append(conditions, goqu.C("version").Eq(params.ExpectedVersion))
	}

	query, args, err := a.db.Update(documentsTable).
		Set(record).
		Where(conditions...).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build finalize query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to finalize document", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rows == 0 {
		// Finalize ignores the lock, so a rejection is either a missing
		// row, a non-draft status, or a version mismatch.
		return nil, a.classifyWriteRejection(ctx, params.ID, params.Actor, params.ExpectedVersion, time.Time{})
	}

	return a.GetByID(ctx, params.ID)
}

// AcquireLock takes the advisory lock when it is free, held by actor, or
// stale. The lock row is rewritten with actor and now in all three cases.
func (a *DocumentAdapter) AcquireLock(ctx context.Context, id, actor string, now, staleBefore time.Time) (bool, error) {
	query, args, err := a.db.Update(documentsTable).
		Set(goqu.Record{
			"locked_by": actor,
			"locked_at": now,
		}).
		Where(
			goqu.C("id").Eq(id),
			goqu.C("deleted_at").IsNull(),
			goqu.C("status").Eq(entities.DocumentStatusDraft),
			goqu.Or(
				goqu.C("locked_by").IsNull(),
				goqu.C("locked_by").Eq(actor),
				goqu.C("locked_at").Lt(staleBefore),
			),
		).
		ToSQL()
	if err != nil {
		return false, apperrors.NewInternalError("failed to build lock query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return false, apperrors.NewInternalError("failed to acquire lock", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rows > 0 {
		return true, nil
	}

	doc, err := a.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if !doc.IsDraft() || doc.IsDeleted() {
		return false, apperrors.NewInvalidStateError(fmt.Sprintf("document %s is not a draft", id))
	}
	// Another actor holds a non-stale lock.
	return false, nil
}

// ReleaseLock clears the lock when actor holds it
func (a *DocumentAdapter) ReleaseLock(ctx context.Context, id, actor string) (bool, error) {
	query, args, err := a.db.Update(documentsTable).
		Set(goqu.Record{
			"locked_by": nil,
			"locked_at": nil,
		}).
		Where(
			goqu.C("id").Eq(id),
			goqu.C("locked_by").Eq(actor),
		).
		ToSQL()
	if err != nil {
		return false, apperrors.NewInternalError("failed to build unlock query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return false, apperrors.NewInternalError("failed to release lock", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.NewInternalError("failed to get rows affected", err)
	}
	return rows > 0, nil
}

// AppendViewer adds actor to viewed_by when absent; the guard runs in
// the same statement so repeated reads never duplicate an entry
func (a *DocumentAdapter) AppendViewer(ctx context.Context, id, actor string) error {
	query := fmt.Sprintf(
		`UPDATE %s SET viewed_by = array_append(viewed_by, $1) WHERE id = $2 AND NOT ($1 = ANY(viewed_by))`,
		documentsTable,
	)
	if _, err := a.client.DB().ExecContext(ctx, query, actor, id); err != nil {
		return apperrors.NewInternalError("failed to record view", err)
	}
	return nil
}

// CreateAmendment persists the derived document and stamps the original
// inside one transaction. The amendment number is re-derived from a
// count under the row lock, which keeps concurrent amendments correct.
func (a *DocumentAdapter) CreateAmendment(ctx context.Context, amendment *entities.ClinicalDocument, originalID string, at time.Time) (int, error) {
	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	var status entities.DocumentStatus
	row := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT status FROM %s WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, documentsTable),
		originalID,
	)
	if err := row.Scan(&status); err == sql.ErrNoRows {
		return 0, apperrors.NewNotFoundError(fmt.Sprintf("document with id %s not found", originalID))
	} else if err != nil {
		return 0, apperrors.NewInternalError("failed to load original document", err)
	}
	if status != entities.DocumentStatusFinalized {
		return 0, apperrors.NewInvalidStateError(fmt.Sprintf("document %s is %s, only finalized documents can be amended", originalID, status))
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE original_document_id = $1`, documentsTable),
		originalID,
	).Scan(&count); err != nil {
		return 0, apperrors.NewInternalError("failed to count amendments", err)
	}

	amendment.AmendmentNumber = count + 1
	record, err := documentRecord(amendment)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to encode amendment", err)
	}
	insertQuery, insertArgs, err := a.db.Insert(documentsTable).Rows(record).ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build amendment insert", err)
	}
	if _, err := tx.ExecContext(ctx, insertQuery, insertArgs...); err != nil {
		return 0, apperrors.NewInternalError("failed to create amendment", err)
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET amended_at = $1, updated_at = $1 WHERE id = $2 AND status = $3`, documentsTable),
		at, originalID, entities.DocumentStatusFinalized,
	); err != nil {
		return 0, apperrors.NewInternalError("failed to mark original amended", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, apperrors.NewInternalError("failed to commit amendment", err)
	}
	return amendment.AmendmentNumber, nil
}

// CountAmendments counts documents derived from the given original
func (a *DocumentAdapter) CountAmendments(ctx context.Context, originalID string) (int, error) {
	query, args, err := a.db.Select(goqu.COUNT("*")).
		From(documentsTable).
		Where(goqu.Ex{"original_document_id": originalID}).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build count query", err)
	}

	var count int
	if err := a.client.DB().QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, apperrors.NewInternalError("failed to count amendments", err)
	}
	return count, nil
}

// ListByOriginal retrieves the documents derived from the given
// original, ordered by amendment number
func (a *DocumentAdapter) ListByOriginal(ctx context.Context, originalID string) ([]*entities.ClinicalDocument, error) {
	query, args, err := a.db.Select(documentColumns...).
		From(documentsTable).
		Where(goqu.Ex{"original_document_id": originalID}).
		Order(goqu.I("amendment_number").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build amendment list query", err)
	}
	return a.queryDocuments(ctx, query, args)
}

// ListByPatient retrieves documents for a patient with a total count
func (a *DocumentAdapter) ListByPatient(ctx context.Context, patientID string, filter repositories.DocumentFilter) ([]*entities.ClinicalDocument, int, error) {
	conditions := []goqu.Expression{goqu.C("patient_id").Eq(patientID)}
	conditions = append(conditions, filterConditions(filter)...)

	countQuery, countArgs, err := a.db.Select(goqu.COUNT("*")).
		From(documentsTable).
		Where(conditions...).
		ToSQL()
	if err != nil {
		return nil, 0, apperrors.NewInternalError("failed to build count query", err)
	}
	var total int
	if err := a.client.DB().QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, apperrors.NewInternalError("failed to count documents", err)
	}

	ds := a.db.Select(documentColumns...).
		From(documentsTable).
		Where(conditions...).
		Order(goqu.I("created_at").Desc())
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, 0, apperrors.NewInternalError("failed to build list query", err)
	}

	docs, err := a.queryDocuments(ctx, query, args)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// Search performs a text search over titles and note bodies. This is the
// SQL fallback; Typesense handles ranked search when configured.
func (a *DocumentAdapter) Search(ctx context.Context, q repositories.SearchQuery) ([]*entities.ClinicalDocument, int, error) {
	pattern := "%" + q.Text + "%"
	conditions := []goqu.Expression{
		goqu.C("deleted_at").IsNull(),
		goqu.Or(
			goqu.C("title").ILike(pattern),
			goqu.L("content::text").ILike(pattern),
		),
	}
	if q.PatientID != "" {
		conditions = append(conditions, goqu.C("patient_id").Eq(q.PatientID))
	}
	if q.Status != "" {
		conditions = append(conditions, goqu.C("status").Eq(q.Status))
	}

	countQuery, countArgs, err := a.db.Select(goqu.COUNT("*")).
		From(documentsTable).
		Where(conditions...).
		ToSQL()
	if err != nil {
		return nil, 0, apperrors.NewInternalError("failed to build count query", err)
	}
	var total int
	if err := a.client.DB().QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, apperrors.NewInternalError("failed to count search results", err)
	}

	ds := a.db.Select(documentColumns...).
		From(documentsTable).
		Where(conditions...).
		Order(goqu.I("updated_at").Desc())
	if q.Limit > 0 {
		ds = ds.Limit(uint(q.Limit))
	}
	if q.Offset > 0 {
		ds = ds.Offset(uint(q.Offset))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, 0, apperrors.NewInternalError("failed to build search query", err)
	}

	docs, err := a.queryDocuments(ctx, query, args)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// SoftDelete marks a draft document deleted at the given instant
func (a *DocumentAdapter) SoftDelete(ctx context.Context, id, actor, reason string, at time.Time) (bool, error) {
	query, args, err := a.db.Update(documentsTable).
		Set(goqu.Record{
			"deleted_at":    at,
			"delete_reason": reason,
			"updated_by":    actor,
			"updated_at":    at,
		}).
		Where(
			goqu.C("id").Eq(id),
			goqu.C("deleted_at").IsNull(),
			goqu.C("status").Eq(entities.DocumentStatusDraft),
		).
		ToSQL()
	if err != nil {
		return false, apperrors.NewInternalError("failed to build delete query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return false, apperrors.NewInternalError("failed to delete document", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.NewInternalError("failed to get rows affected", err)
	}
	return rows > 0, nil
}

// classifyWriteRejection re-reads a document after a conditional write
// touched zero rows and maps the state it finds to a typed error
func (a *DocumentAdapter) classifyWriteRejection(ctx context.Context, id, actor string, expectedVersion int, staleBefore time.Time) error {
	doc, err := a.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if doc.IsDeleted() {
		return apperrors.NewInvalidStateError(fmt.Sprintf("document %s has been deleted", id))
	}
	if !doc.IsDraft() {
		return apperrors.NewInvalidStateError(fmt.Sprintf("document %s is %s, only drafts can be modified", id, doc.Status))
	}
	if expectedVersion > 0 && doc.Version != expectedVersion {
		return apperrors.NewConcurrencyConflictError(fmt.Sprintf("document %s is at version %d, caller expected %d", id, doc.Version, expectedVersion))
	}
	if !staleBefore.IsZero() && doc.Lock != nil && doc.Lock.HeldBy != actor && !doc.Lock.AcquiredAt.Before(staleBefore) {
		return apperrors.NewLockConflictError(fmt.Sprintf("document %s is locked by %s", id, doc.Lock.HeldBy))
	}
	// The precondition held on re-read; the write lost a race that has
	// since resolved. Surface it as a conflict so the caller retries.
	return apperrors.NewConcurrencyConflictError(fmt.Sprintf("document %s was modified concurrently", id))
}

func (a *DocumentAdapter) queryDocuments(ctx context.Context, query string, args []interface{}) ([]*entities.ClinicalDocument, error) {
	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query documents", err)
	}
	defer rows.Close()

	var docs []*entities.ClinicalDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan document", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate documents", err)
	}
	return docs, nil
}

func filterConditions(filter repositories.DocumentFilter) []goqu.Expression {
	var conditions []goqu.Expression
	if !filter.IncludeDeleted {
		conditions = append(conditions, goqu.C("deleted_at").IsNull())
	}
	if filter.Status != "" {
		conditions = append(conditions, goqu.C("status").Eq(filter.Status))
	}
	if filter.Variant != "" {
		conditions = append(conditions, goqu.C("variant").Eq(filter.Variant))
	}
	if filter.EncounterID != "" {
		conditions = append(conditions, goqu.C("encounter_id").Eq(filter.EncounterID))
	}
	if filter.CreatedBy != "" {
		conditions = append(conditions, goqu.C("created_by").Eq(filter.CreatedBy))
	}
	if filter.From != nil {
		conditions = append(conditions, goqu.C("created_at").Gte(*filter.From))
	}
	if filter.To != nil {
		conditions = append(conditions, goqu.C("created_at").Lte(*filter.To))
	}
	return conditions
}

func documentRecord(doc *entities.ClinicalDocument) (goqu.Record, error) {
	content, err := entities.MarshalNoteContent(doc.Content)
	if err != nil {
		return nil, err
	}

	record := goqu.Record{
		"id":                   doc.ID,
		"patient_id":           doc.PatientID,
		"encounter_id":         doc.EncounterID,
		"facility_id":          doc.FacilityID,
		"organization_id":      doc.OrganizationID,
		"title":                doc.Title,
		"variant":              doc.Content.Variant(),
		"content":              content,
		"status":               doc.Status,
		"version":              doc.Version,
		"finalized_by":         doc.FinalizedBy,
		"finalized_at":         doc.FinalizedAt,
		"attestation":          doc.Attestation,
		"is_amendment":         doc.IsAmendment,
		"original_document_id": doc.OriginalDocumentID,
		"amendment_reason":     doc.AmendmentReason,
		"amendment_number":     doc.AmendmentNumber,
		"amended_at":           doc.AmendedAt,
		"created_by":           doc.CreatedBy,
		"updated_by":           doc.UpdatedBy,
		"viewed_by":            pq.Array(doc.ViewedBy),
		"created_at":           doc.CreatedAt,
		"updated_at":           doc.UpdatedAt,
		"deleted_at":           doc.DeletedAt,
	}
	if doc.Lock != nil {
		record["locked_by"] = doc.Lock.HeldBy
		record["locked_at"] = doc.Lock.AcquiredAt
	} else {
		record["locked_by"] = nil
		record["locked_at"] = nil
	}
	if err := addPayloadColumns(record, doc); err != nil {
		return nil, err
	}
	return record, nil
}

func addPayloadColumns(record goqu.Record, doc *entities.ClinicalDocument) error {
	marshal := func(v interface{}) (interface{}, error) {
		if v == nil {
			return nil, nil
		}
		return json.Marshal(v)
	}

	var err error
	if doc.VitalSigns != nil {
		if record["vital_signs"], err = marshal(doc.VitalSigns); err != nil {
			return err
		}
	} else {
		record["vital_signs"] = nil
	}
	if len(doc.Diagnoses) > 0 {
		if record["diagnoses"], err = marshal(doc.Diagnoses); err != nil {
			return err
		}
	} else {
		record["diagnoses"] = nil
	}
	if len(doc.Medications) > 0 {
		if record["medications"], err = marshal(doc.Medications); err != nil {
			return err
		}
	} else {
		record["medications"] = nil
	}
	if len(doc.Orders) > 0 {
		if record["orders"], err = marshal(doc.Orders); err != nil {
			return err
		}
	} else {
		record["orders"] = nil
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*entities.ClinicalDocument, error) {
	doc := &entities.ClinicalDocument{}
	var (
		encounterID, facilityID              sql.NullString
		variant                              string
		content                              []byte
		vitalSigns, diagnoses, meds, orders  []byte
		lockedBy                             sql.NullString
		lockedAt                             sql.NullTime
		finalizedBy, attestation             sql.NullString
		finalizedAt                          sql.NullTime
		originalDocumentID, amendmentReason  sql.NullString
		amendmentNumber                      sql.NullInt64
		amendedAt, deletedAt                 sql.NullTime
		viewedBy                             pq.StringArray
	)

	err := row.Scan(
		&doc.ID, &doc.PatientID, &encounterID, &facilityID, &doc.OrganizationID,
		&doc.Title, &variant, &content,
		&vitalSigns, &diagnoses, &meds, &orders,
		&doc.Status, &doc.Version, &lockedBy, &lockedAt,
		&finalizedBy, &finalizedAt, &attestation,
		&doc.IsAmendment, &originalDocumentID, &amendmentReason, &amendmentNumber, &amendedAt,
		&doc.CreatedBy, &doc.UpdatedBy, &viewedBy,
		&doc.CreatedAt, &doc.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Content, err = entities.UnmarshalNoteContent(content)
	if err != nil {
		return nil, err
	}

	if encounterID.Valid {
		doc.EncounterID = &encounterID.String
	}
	if facilityID.Valid {
		doc.FacilityID = &facilityID.String
	}
	if lockedBy.Valid && lockedAt.Valid {
		doc.Lock = &entities.Lock{HeldBy: lockedBy.String, AcquiredAt: lockedAt.Time}
	}
	if finalizedBy.Valid {
		doc.FinalizedBy = &finalizedBy.String
	}
	if finalizedAt.Valid {
		t := finalizedAt.Time
		doc.FinalizedAt = &t
	}
	if attestation.Valid {
		doc.Attestation = &attestation.String
	}
	if originalDocumentID.Valid {
		doc.OriginalDocumentID = &originalDocumentID.String
	}
	if amendmentReason.Valid {
		doc.AmendmentReason = &amendmentReason.String
	}
	if amendmentNumber.Valid {
		doc.AmendmentNumber = int(amendmentNumber.Int64)
	}
	if amendedAt.Valid {
		t := amendedAt.Time
		doc.AmendedAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		doc.DeletedAt = &t
	}
	doc.ViewedBy = []string(viewedBy)

	if len(vitalSigns) > 0 {
		doc.VitalSigns = &entities.VitalSigns{}
		if err := json.Unmarshal(vitalSigns, doc.VitalSigns); err != nil {
			return nil, err
		}
	}
	if len(diagnoses) > 0 {
		if err := json.Unmarshal(diagnoses, &doc.Diagnoses); err != nil {
			return nil, err
		}
	}
	if len(meds) > 0 {
		if err := json.Unmarshal(meds, &doc.Medications); err != nil {
			return nil, err
		}
	}
	if len(orders) > 0 {
		if err := json.Unmarshal(orders, &doc.Orders); err != nil {
			return nil, err
		}
	}

	return doc, nil
}
