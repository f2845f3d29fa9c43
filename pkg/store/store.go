// Package store defines the document-store boundary of the delivery engine
// and its Firestore and MongoDB implementations. The document store is the
// single source of truth for delivery-job state; per-document atomic updates
// are the only mutation primitive.
package store

import (
	"context"
	"errors"

	"github.com/marketops/delivery-engine/pkg/types"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrPartialUpdateUnsupported is returned by AttachDeliveryJobToEngagement
// when the backend cannot express the nested partial update. Callers treat
// this as a tolerated warning, not a delivery failure.
var ErrPartialUpdateUnsupported = errors.New("partial update not supported by store backend")

// Collection names shared by both backends.
const (
	CollectionDestinations  = "destinations"
	CollectionDeliveryJobs  = "delivery_jobs"
	CollectionEngagements   = "engagements"
	CollectionNotifications = "notifications"
)

// Store is the document-store client consumed by the delivery coordinator and
// the schedule controller.
type Store interface {
	// GetDestination loads a destination by id. Returns ErrNotFound if the
	// document does not exist.
	GetDestination(ctx context.Context, id string) (*types.Destination, error)

	// CreateDeliveryJob persists a new delivery-job record.
	CreateDeliveryJob(ctx context.Context, job *types.DeliveryJob) error

	// SetDeliveryJobStatus updates the status (and updatedAt) of an existing
	// delivery job. Status is the only job field mutated after creation.
	SetDeliveryJobStatus(ctx context.Context, jobID string, status types.Status) error

	// AttachDeliveryJobToEngagement records ref as the latest delivery on the
	// matching (audience, destination) attachment nested in the engagement
	// document. May return ErrPartialUpdateUnsupported.
	AttachDeliveryJobToEngagement(ctx context.Context, engagementID, audienceID, destinationID string, ref types.DeliveryJobRef) error

	// GetActiveEngagementDeliveries counts delivery jobs that are Delivered
	// and linked to an engagement.
	GetActiveEngagementDeliveries(ctx context.Context) (int, error)

	// CreateNotification persists a user-visible notification document.
	CreateNotification(ctx context.Context, n *types.Notification) error
}
