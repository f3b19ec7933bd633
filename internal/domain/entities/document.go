package entities

import (
	"time"
)

// DocumentStatus represents the lifecycle stage of a clinical document
type DocumentStatus string

const (
	// DocumentStatusDraft is the only stage in which content edits are permitted
	DocumentStatusDraft DocumentStatus = "draft"

	// DocumentStatusFinalized marks a permanently immutable document
	DocumentStatusFinalized DocumentStatus = "finalized"

	// DocumentStatusAmended marks a correction document derived from a
	// finalized original
	DocumentStatusAmended DocumentStatus = "amended"

	// DocumentStatusAddended marks an addendum document derived from a
	// finalized original
	DocumentStatusAddended DocumentStatus = "addended"
)

// AmendmentKind distinguishes a correction from a lighter-weight addendum
type AmendmentKind string

const (
	AmendmentKindCorrection AmendmentKind = "correction"
	AmendmentKindAddendum   AmendmentKind = "addendum"
)

// Lock is the advisory edit lock stored on a document. Holding it means
// no other actor can take it until its wall-clock age since the last
// acquire exceeds the staleness threshold; there is no heartbeat.
type Lock struct {
	HeldBy     string    `json:"held_by" db:"locked_by"`
	AcquiredAt time.Time `json:"acquired_at" db:"locked_at"`
}

// IsStale reports whether the lock's age exceeds staleAfter at instant now
func (l *Lock) IsStale(now time.Time, staleAfter time.Duration) bool {
	return now.Sub(l.AcquiredAt) > staleAfter
}

// BlocksEdit reports whether the lock prevents actor from editing: true
// only when a different actor holds it and it is not stale
func (l *Lock) BlocksEdit(actor string, now time.Time, staleAfter time.Duration) bool {
	if l == nil {
		return false
	}
	if l.HeldBy == actor {
		return false
	}
	return !l.IsStale(now, staleAfter)
}

// ClinicalDocument is the common envelope shared by all note variants
type ClinicalDocument struct {
	ID             string  `json:"id" db:"id"`
	PatientID      string  `json:"patient_id" db:"patient_id"`
	EncounterID    *string `json:"encounter_id,omitempty" db:"encounter_id"`
	FacilityID     *string `json:"facility_id,omitempty" db:"facility_id"`
	OrganizationID string  `json:"organization_id" db:"organization_id"`

	Title   string      `json:"title" db:"title"`
	Content NoteContent `json:"content" db:"-"`

	VitalSigns  *VitalSigns  `json:"vital_signs,omitempty" db:"-"`
	Diagnoses   []Diagnosis  `json:"diagnoses,omitempty" db:"-"`
	Medications []Medication `json:"medications,omitempty" db:"-"`
	Orders      []Order      `json:"orders,omitempty" db:"-"`

	Status  DocumentStatus `json:"status" db:"status"`
	Version int            `json:"version" db:"version"`
	Lock    *Lock          `json:"lock,omitempty" db:"-"`

	FinalizedBy *string    `json:"finalized_by,omitempty" db:"finalized_by"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty" db:"finalized_at"`
	Attestation *string    `json:"attestation,omitempty" db:"attestation"`

	IsAmendment        bool       `json:"is_amendment" db:"is_amendment"`
	OriginalDocumentID *string    `json:"original_document_id,omitempty" db:"original_document_id"`
	AmendmentReason    *string    `json:"amendment_reason,omitempty" db:"amendment_reason"`
	AmendmentNumber    int        `json:"amendment_number,omitempty" db:"amendment_number"`
	AmendedAt          *time.Time `json:"amended_at,omitempty" db:"amended_at"`

	CreatedBy string     `json:"created_by" db:"created_by"`
	UpdatedBy string     `json:"updated_by" db:"updated_by"`
	ViewedBy  []string   `json:"viewed_by" db:"-"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// IsDraft reports whether the document is still editable
func (d *ClinicalDocument) IsDraft() bool {
	return d.Status == DocumentStatusDraft
}

// IsFinalized reports whether the document has been finalized
func (d *ClinicalDocument) IsFinalized() bool {
	return d.Status == DocumentStatusFinalized
}

// IsDeleted reports whether the document has been soft-deleted
func (d *ClinicalDocument) IsDeleted() bool {
	return d.DeletedAt != nil
}

// HasAmendments reports whether at least one amendment has been derived
// from this document
func (d *ClinicalDocument) HasAmendments() bool {
	return d.AmendedAt != nil
}

// EditableBy reports whether actor may mutate the document at instant
// now: draft status and no blocking lock
func (d *ClinicalDocument) EditableBy(actor string, now time.Time, staleAfter time.Duration) bool {
	if !d.IsDraft() || d.IsDeleted() {
		return false
	}
	return !d.Lock.BlocksEdit(actor, now, staleAfter)
}

// HasViewer reports whether actor already appears in the view audit set
func (d *ClinicalDocument) HasViewer(actor string) bool {
	for _, v := range d.ViewedBy {
		if v == actor {
			return true
		}
	}
	return false
}

// AddViewer appends actor to the view audit set if absent and reports
// whether the set changed
func (d *ClinicalDocument) AddViewer(actor string) bool {
	if d.HasViewer(actor) {
		return false
	}
	d.ViewedBy = append(d.ViewedBy, actor)
	return true
}
