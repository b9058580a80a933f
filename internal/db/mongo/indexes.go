package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ActivitiesCollection stores one document per activated social action.
const ActivitiesCollection = "activities"

// IndexCreator defines a function type for index creation
type IndexCreator func(context.Context, *Client) error

var indexCreators = map[string]IndexCreator{
	ActivitiesCollection: ensureActivityIndexes,
}

// EnsureIndexes creates all necessary indexes
func (c *Client) EnsureIndexes(ctx context.Context) error {
	logger := c.logger.With("operation", "EnsureIndexes")

	for collection, creator := range indexCreators {
		logger.Debug("Creating indexes", "collection", collection)
		if err := creator(ctx, c); err != nil {
			logger.Error("Failed to create indexes", err, "collection", collection)
			return fmt.Errorf("failed to create indexes for %s: %w", collection, err)
		}
	}

	logger.Info("MongoDB indexes ensured", "collections", len(indexCreators))
	return nil
}

func ensureActivityIndexes(ctx context.Context, c *Client) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("created_at"),
		},
		{
			Keys:    bson.D{{Key: "trackId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("track_created_at"),
		},
		{
			Keys:    bson.D{{Key: "action", Value: 1}, {Key: "success", Value: 1}},
			Options: options.Index().SetName("action_success"),
		},
		{
			Keys:    bson.D{{Key: "requestId", Value: 1}},
			Options: options.Index().SetName("request_id"),
		},
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := c.Collection(ActivitiesCollection).Indexes().CreateMany(ctx, indexes)
	return err
}
