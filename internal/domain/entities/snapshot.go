package entities

import (
	"encoding/json"
	"time"
)

// SnapshotReason records why a history entry was written
type SnapshotReason string

const (
	SnapshotReasonFinalize  SnapshotReason = "finalize"
	SnapshotReasonAmendment SnapshotReason = "amendment"
	SnapshotReasonManual    SnapshotReason = "manual"
)

// DocumentSnapshot is an immutable point-in-time copy of a document's
// content, appended to the history log at significant transitions
type DocumentSnapshot struct {
	ID         string          `json:"id" db:"id"`
	DocumentID string          `json:"document_id" db:"document_id"`
	Version    int             `json:"version" db:"version"`
	Status     DocumentStatus  `json:"status" db:"status"`
	Content    json.RawMessage `json:"content" db:"content"`
	Reason     SnapshotReason  `json:"reason" db:"reason"`
	ChangedBy  string          `json:"changed_by" db:"changed_by"`
	ChangedAt  time.Time       `json:"changed_at" db:"changed_at"`
}
