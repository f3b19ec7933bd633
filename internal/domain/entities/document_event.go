package entities

import (
	"time"

	"github.com/google/uuid"
)

// DocumentEventType represents the type of document lifecycle event
type DocumentEventType string

const (
	DocumentEventTypeCreated   DocumentEventType = "created"
	DocumentEventTypeUpdated   DocumentEventType = "updated"
	DocumentEventTypeFinalized DocumentEventType = "finalized"
	DocumentEventTypeAmended   DocumentEventType = "amended"
	DocumentEventTypeLocked    DocumentEventType = "locked"
	DocumentEventTypeUnlocked  DocumentEventType = "unlocked"
	DocumentEventTypeDeleted   DocumentEventType = "deleted"
)

// DocumentEvent is published on the event bus after a lifecycle
// transition commits. Consumers (notification delivery, dashboards) are
// external to this service.
type DocumentEvent struct {
	ID         string                 `json:"id"`
	DocumentID string                 `json:"document_id"`
	PatientID  string                 `json:"patient_id"`
	EventType  DocumentEventType      `json:"event_type"`
	Actor      string                 `json:"actor"`
	Timestamp  time.Time              `json:"timestamp"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// NewDocumentEvent creates a new document event
func NewDocumentEvent(doc *ClinicalDocument, eventType DocumentEventType, actor string, details map[string]interface{}) *DocumentEvent {
	return &DocumentEvent{
		ID:         uuid.New().String(),
		DocumentID: doc.ID,
		PatientID:  doc.PatientID,
		EventType:  eventType,
		Actor:      actor,
		Timestamp:  time.Now(),
		Details:    details,
	}
}
