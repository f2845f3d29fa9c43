package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/marketops/delivery-engine/pkg/types"
)

// FirestoreStore implements Store on Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a Firestore-backed store for the given project.
func NewFirestoreStore(ctx context.Context, projectID string, opts ...option.ClientOption) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

// Close closes the underlying client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

// GetDestination implements Store.
func (s *FirestoreStore) GetDestination(ctx context.Context, id string) (*types.Destination, error) {
	doc, err := s.client.Collection(CollectionDestinations).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get destination %s: %w", id, err)
	}

	var dest types.Destination
	if err := doc.DataTo(&dest); err != nil {
		return nil, fmt.Errorf("unmarshal destination %s: %w", id, err)
	}
	dest.ID = doc.Ref.ID
	return &dest, nil
}

// CreateDeliveryJob implements Store.
func (s *FirestoreStore) CreateDeliveryJob(ctx context.Context, job *types.DeliveryJob) error {
	if _, err := s.client.Collection(CollectionDeliveryJobs).Doc(job.ID).Create(ctx, job); err != nil {
		return fmt.Errorf("create delivery job %s: %w", job.ID, err)
	}
	return nil
}

// SetDeliveryJobStatus implements Store.
func (s *FirestoreStore) SetDeliveryJobStatus(ctx context.Context, jobID string, st types.Status) error {
	_, err := s.client.Collection(CollectionDeliveryJobs).Doc(jobID).Update(ctx, []firestore.Update{
		{Path: "status", Value: st},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("update delivery job %s status: %w", jobID, err)
	}
	return nil
}

// AttachDeliveryJobToEngagement implements Store. Firestore cannot address a
// nested array element in a single update, so the engagement document is
// rewritten inside a transaction.
func (s *FirestoreStore) AttachDeliveryJobToEngagement(ctx context.Context, engagementID, audienceID, destinationID string, ref types.DeliveryJobRef) error {
	docRef := s.client.Collection(CollectionEngagements).Doc(engagementID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrNotFound
			}
			return err
		}

		var eng types.Engagement
		if err := doc.DataTo(&eng); err != nil {
			return err
		}

		matched := false
		for ai := range eng.Audiences {
			if eng.Audiences[ai].AudienceID != audienceID {
				continue
			}
			for di := range eng.Audiences[ai].Attachments {
				if eng.Audiences[ai].Attachments[di].DestinationID == destinationID {
					eng.Audiences[ai].Attachments[di].LatestDelivery = &ref
					matched = true
				}
			}
		}
		if !matched {
			return ErrNotFound
		}

		eng.UpdatedAt = time.Now().UTC()
		return tx.Set(docRef, eng)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("attach job to engagement %s: %w", engagementID, err)
	}
	return nil
}

// GetActiveEngagementDeliveries implements Store. Firestore has no inequality
// filter that composes with the status filter here, so engagement linkage is
// checked client-side.
func (s *FirestoreStore) GetActiveEngagementDeliveries(ctx context.Context) (int, error) {
	iter := s.client.Collection(CollectionDeliveryJobs).
		Where("status", "==", string(types.StatusDelivered)).
		Documents(ctx)
	defer iter.Stop()

	count := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("iterate delivered jobs: %w", err)
		}

		var job types.DeliveryJob
		if err := doc.DataTo(&job); err != nil {
			return 0, fmt.Errorf("unmarshal delivery job %s: %w", doc.Ref.ID, err)
		}
		if job.EngagementID != "" {
			count++
		}
	}
	return count, nil
}

// CreateNotification implements Store.
func (s *FirestoreStore) CreateNotification(ctx context.Context, n *types.Notification) error {
	if _, err := s.client.Collection(CollectionNotifications).Doc(n.ID).Create(ctx, n); err != nil {
		return fmt.Errorf("create notification %s: %w", n.ID, err)
	}
	return nil
}
