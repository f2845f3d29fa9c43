package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/marketops/delivery-engine/pkg/types"
)

// MongoStore implements Store on MongoDB.
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore connects to MongoDB and returns a store over the named
// database.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoStore{db: client.Database(database)}, nil
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

// GetDestination implements Store.
func (s *MongoStore) GetDestination(ctx context.Context, id string) (*types.Destination, error) {
	var dest types.Destination
	err := s.db.Collection(CollectionDestinations).FindOne(ctx, bson.M{"_id": id}).Decode(&dest)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get destination %s: %w", id, err)
	}
	return &dest, nil
}

// CreateDeliveryJob implements Store.
func (s *MongoStore) CreateDeliveryJob(ctx context.Context, job *types.DeliveryJob) error {
	if _, err := s.db.Collection(CollectionDeliveryJobs).InsertOne(ctx, job); err != nil {
		return fmt.Errorf("create delivery job %s: %w", job.ID, err)
	}
	return nil
}

// SetDeliveryJobStatus implements Store.
func (s *MongoStore) SetDeliveryJobStatus(ctx context.Context, jobID string, st types.Status) error {
	res, err := s.db.Collection(CollectionDeliveryJobs).UpdateOne(ctx,
		bson.M{"_id": jobID},
		bson.M{"$set": bson.M{"status": st, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("update delivery job %s status: %w", jobID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachDeliveryJobToEngagement implements Store using filtered positional
// updates. Servers that predate array filters reject the operator; that case
// is surfaced as ErrPartialUpdateUnsupported so callers can tolerate it.
func (s *MongoStore) AttachDeliveryJobToEngagement(ctx context.Context, engagementID, audienceID, destinationID string, ref types.DeliveryJobRef) error {
	res, err := s.db.Collection(CollectionEngagements).UpdateOne(ctx,
		bson.M{"_id": engagementID},
		bson.M{"$set": bson.M{
			"audiences.$[aud].attachments.$[att].latestDelivery": ref,
			"updatedAt": time.Now().UTC(),
		}},
		options.Update().SetArrayFilters(options.ArrayFilters{Filters: []interface{}{
			bson.M{"aud.audienceId": audienceID},
			bson.M{"att.destinationId": destinationID},
		}}),
	)
	if err != nil {
		if isArrayFilterUnsupported(err) {
			return fmt.Errorf("%w: %v", ErrPartialUpdateUnsupported, err)
		}
		return fmt.Errorf("attach job to engagement %s: %w", engagementID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// GetActiveEngagementDeliveries implements Store.
func (s *MongoStore) GetActiveEngagementDeliveries(ctx context.Context) (int, error) {
	count, err := s.db.Collection(CollectionDeliveryJobs).CountDocuments(ctx, bson.M{
		"status":       types.StatusDelivered,
		"engagementId": bson.M{"$exists": true, "$ne": ""},
	})
	if err != nil {
		return 0, fmt.Errorf("count active engagement deliveries: %w", err)
	}
	return int(count), nil
}

// CreateNotification implements Store.
func (s *MongoStore) CreateNotification(ctx context.Context, n *types.Notification) error {
	if _, err := s.db.Collection(CollectionNotifications).InsertOne(ctx, n); err != nil {
		return fmt.Errorf("create notification %s: %w", n.ID, err)
	}
	return nil
}

func isArrayFilterUnsupported(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return strings.Contains(cmdErr.Message, "arrayFilters")
	}
	return false
}
