package providers

import (
	"context"

	"github.com/clinicore/chartlock/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to
// document lifecycle events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.DocumentEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.DocumentEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

// EventChannel constants for different event streams
const (
	// EventChannelDocumentUpdates is the channel for all document updates
	EventChannelDocumentUpdates = "documents:updates"

	// EventChannelPatientPrefix is the prefix for patient-scoped channels
	EventChannelPatientPrefix = "patient:"
)

// GetPatientChannel returns the channel name for a specific patient's
// document stream
func GetPatientChannel(patientID string) string {
	return EventChannelPatientPrefix + patientID
}
