package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/clinicore/chartlock/internal/application/services"
	"github.com/clinicore/chartlock/internal/domain/entities"
	"github.com/clinicore/chartlock/internal/domain/repositories"
	apperrors "github.com/clinicore/chartlock/pkg/errors"
)

// actorHeader carries the acting clinician's identity. Authentication
// is handled upstream; this service only records who acted.
const actorHeader = "X-Actor-ID"

// DocumentHandler handles document lifecycle HTTP requests
type DocumentHandler struct {
	documents  *services.DocumentService
	amendments *services.AmendmentService
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(documents *services.DocumentService, amendments *services.AmendmentService) *DocumentHandler {
	return &DocumentHandler{
		documents:  documents,
		amendments: amendments,
	}
}

type createDocumentRequest struct {
	PatientID      string                `json:"patient_id"`
	EncounterID    *string               `json:"encounter_id,omitempty"`
	FacilityID     *string               `json:"facility_id,omitempty"`
	OrganizationID string                `json:"organization_id"`
	Title          string                `json:"title"`
	Content        json.RawMessage       `json:"content"`
	VitalSigns     *entities.VitalSigns  `json:"vital_signs,omitempty"`
	Diagnoses      []entities.Diagnosis  `json:"diagnoses,omitempty"`
	Medications    []entities.Medication `json:"medications,omitempty"`
	Orders         []entities.Order      `json:"orders,omitempty"`
}

// CreateDocument handles POST /api/documents
func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get(actorHeader)

	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	content, err := entities.UnmarshalNoteContent(req.Content)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := h.documents.CreateDocument(r.Context(), services.CreateDocumentParams{
		PatientID:      req.PatientID,
		EncounterID:    req.EncounterID,
		FacilityID:     req.FacilityID,
		OrganizationID: req.OrganizationID,
		Title:          req.Title,
		Content:        content,
		VitalSigns:     req.VitalSigns,
		Diagnoses:      req.Diagnoses,
		Medications:    req.Medications,
		Orders:         req.Orders,
		Actor:          actor,
	})
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, doc)
}

// GetDocument handles GET /api/documents/{id}
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "document ID is required")
		return
	}

	doc, err := h.documents.GetDocument(r.Context(), id, r.Header.Get(actorHeader))
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, doc)
}

type updateDocumentRequest struct {
	Title           string                `json:"title,omitempty"`
	Content         json.RawMessage       `json:"content"`
	VitalSigns      *entities.VitalSigns  `json:"vital_signs,omitempty"`
	Diagnoses       []entities.Diagnosis  `json:"diagnoses,omitempty"`
	Medications     []entities.Medication `json:"medications,omitempty"`
	Orders          []entities.Order      `json:"orders,omitempty"`
	ExpectedVersion int                   `json:"expected_version,omitempty"`
}

// UpdateDocument handles PUT /api/documents/{id}
func (h *DocumentHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	actor := r.Header.Get(actorHeader)

	var req updateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	content, err := entities.UnmarshalNoteContent(req.Content)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := h.documents.UpdateDocument(r.Context(), services.UpdateDocumentParams{
		ID:              id,
		Actor:           actor,
		Title:           req.Title,
		Content:         content,
		VitalSigns:      req.VitalSigns,
		Diagnoses:       req.Diagnoses,
		Medications:     req.Medications,
		Orders:          req.Orders,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, doc)
}

type finalizeDocumentRequest struct {
	Attestation     string `json:"attestation"`
	ExpectedVersion int    `json:"expected_version,omitempty"`
}

// FinalizeDocument handles POST /api/documents/{id}/finalize
func (h *DocumentHandler) FinalizeDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	actor := r.Header.Get(actorHeader)

	var req finalizeDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, err := h.documents.FinalizeDocument(r.Context(), services.FinalizeDocumentParams{
		ID:              id,
		Actor:           actor,
		Attestation:     req.Attestation,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, doc)
}

// LockDocument handles POST /api/documents/{id}/lock
func (h *DocumentHandler) LockDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	actor := r.Header.Get(actorHeader)

	doc, err := h.documents.LockDocument(r.Context(), id, actor)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, doc)
}

// UnlockDocument handles DELETE /api/documents/{id}/lock
func (h *DocumentHandler) UnlockDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	actor := r.Header.Get(actorHeader)

	if err := h.documents.UnlockDocument(r.Context(), id, actor); err != nil {
		respondWithAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type createAmendmentRequest struct {
	Kind    entities.AmendmentKind `json:"kind,omitempty"`
	Reason  string                 `json:"reason"`
	Section string                 `json:"section,omitempty"`
	Text    string                 `json:"text"`
}

// CreateAmendment handles POST /api/documents/{id}/amendments
func (h *DocumentHandler) CreateAmendment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	actor := r.Header.Get(actorHeader)

	var req createAmendmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, err := h.amendments.CreateAmendment(r.Context(), services.AmendmentParams{
		OriginalID: id,
		Actor:      actor,
		Kind:       req.Kind,
		Reason:     req.Reason,
		Section:    req.Section,
		Text:       req.Text,
	})
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, doc)
}

// GetHistory handles GET /api/documents/{id}/history
func (h *DocumentHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit, offset := parsePage(r)

	snapshots, total, err := h.documents.History(r.Context(), id, limit, offset)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": snapshots,
		"total":     total,
	})
}

// ListPatientDocuments handles GET /api/patients/{id}/documents
func (h *DocumentHandler) ListPatientDocuments(w http.ResponseWriter, r *http.Request) {
	patientID := r.PathValue("id")
	limit, offset := parsePage(r)

	filter := repositories.DocumentFilter{
		Status:  entities.DocumentStatus(r.URL.Query().Get("status")),
		Variant: entities.NoteVariant(r.URL.Query().Get("variant")),
		Limit:   limit,
		Offset:  offset,
	}

	docs, total, err := h.documents.ListByPatient(r.Context(), patientID, filter)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"total":     total,
	})
}

// SearchDocuments handles GET /api/documents/search
func (h *DocumentHandler) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r)

	docs, total, err := h.documents.Search(r.Context(), repositories.SearchQuery{
		Text:      r.URL.Query().Get("q"),
		PatientID: r.URL.Query().Get("patient_id"),
		Status:    entities.DocumentStatus(r.URL.Query().Get("status")),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"total":     total,
	})
}

// DeleteDocument handles DELETE /api/documents/{id}
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	actor := r.Header.Get(actorHeader)
	reason := r.URL.Query().Get("reason")

	if err := h.documents.DeleteDocument(r.Context(), id, actor, reason); err != nil {
		respondWithAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parsePage(r *http.Request) (limit, offset int) {
	limit = 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

// Helper functions
func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

func respondWithAppError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	switch appErr.Type {
	case apperrors.ErrorTypeNotFound:
		respondWithError(w, http.StatusNotFound, appErr.Message)
	case apperrors.ErrorTypeValidation:
		respondWithError(w, http.StatusBadRequest, appErr.Message)
	case apperrors.ErrorTypeIncomplete:
		respondWithError(w, http.StatusUnprocessableEntity, appErr.Message)
	case apperrors.ErrorTypeInvalidState:
		respondWithError(w, http.StatusConflict, appErr.Message)
	case apperrors.ErrorTypeLockConflict:
		respondWithError(w, http.StatusLocked, appErr.Message)
	case apperrors.ErrorTypeConcurrencyConflict, apperrors.ErrorTypeConflict:
		respondWithError(w, http.StatusConflict, appErr.Message)
	default:
		respondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}
