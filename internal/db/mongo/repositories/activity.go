package repositories

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"norelock.dev/soundscope/internal/models"
	"norelock.dev/soundscope/internal/utils"
)

const activitiesCollection = "activities"

// ActivityRepository defines the interface for the activity log.
type ActivityRepository interface {
	Create(ctx context.Context, activity *models.Activity) error
	FindByID(ctx context.Context, id bson.ObjectID) (*models.Activity, error)
	FindByTrack(ctx context.Context, trackID uint, skip, limit int) ([]*models.Activity, error)
	Recent(ctx context.Context, skip, limit int) ([]*models.Activity, error)
	Summary(ctx context.Context, since time.Time) ([]models.ActivitySummary, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// activityRepository is the MongoDB implementation of ActivityRepository.
type activityRepository struct {
	collection *mongo.Collection
	logger     *utils.Logger
}

// NewActivityRepository creates a new instance of ActivityRepository.
func NewActivityRepository(db *mongo.Database, logger *utils.Logger) ActivityRepository {
	return &activityRepository{
		collection: db.Collection(activitiesCollection),
		logger:     logger.Named("activity_repository"),
	}
}

// Create inserts a new activity record.
func (r *activityRepository) Create(ctx context.Context, activity *models.Activity) error {
	if activity.ID.IsZero() {
		activity.ID = bson.NewObjectID()
	}
	activity.Stamp(time.Now())

	_, err := r.collection.InsertOne(ctx, activity)
	if err != nil {
		r.logger.Error("Failed to create activity", err, "action", activity.Action, "trackId", activity.TrackID)
		return models.NewActivityError(err, "Failed to record activity", http.StatusInternalServerError)
	}

	return nil
}

// FindByID finds an activity by its ID.
func (r *activityRepository) FindByID(ctx context.Context, id bson.ObjectID) (*models.Activity, error) {
	var activity models.Activity

	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&activity)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrActivityNotFound
		}
		r.logger.Error("Failed to find activity by ID", err, "id", id.Hex())
		return nil, models.NewActivityError(err, "Failed to find activity", http.StatusInternalServerError)
	}

	return &activity, nil
}

// FindByTrack lists the activities of a track, newest first.
func (r *activityRepository) FindByTrack(ctx context.Context, trackID uint, skip, limit int) ([]*models.Activity, error) {
	return r.find(ctx, bson.M{"trackId": trackID}, skip, limit)
}

// Recent lists all activities, newest first.
func (r *activityRepository) Recent(ctx context.Context, skip, limit int) ([]*models.Activity, error) {
	return r.find(ctx, bson.M{}, skip, limit)
}

func (r *activityRepository) find(ctx context.Context, filter bson.M, skip, limit int) ([]*models.Activity, error) {
	opts := options.Find().
		SetSort(bson.M{"createdAt": -1}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to find activities", err)
		return nil, models.NewActivityError(err, "Failed to find activities", http.StatusInternalServerError)
	}
	defer cursor.Close(ctx)

	activities := make([]*models.Activity, 0, limit)
	if err := cursor.All(ctx, &activities); err != nil {
		r.logger.Error("Failed to decode activities", err)
		return nil, models.NewActivityError(err, "Failed to decode activities", http.StatusInternalServerError)
	}

	return activities, nil
}

// Summary counts activities and failures per action since the given time.
func (r *activityRepository) Summary(ctx context.Context, since time.Time) ([]models.ActivitySummary, error) {
	pipeline := mongo.Pipeline{
		{cmdMatch(bson.M{"createdAt": bson.M{"$gte": since}})},
		{cmdGroup(bson.M{
			"_id":   "$action",
			"count": bson.M{"$sum": 1},
			"failures": bson.M{"$sum": bson.M{
				"$cond": bson.A{"$success", 0, 1},
			}},
			"lastAt": bson.M{"$max": "$createdAt"},
		})},
		{cmdSort(bson.M{"count": -1})},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		r.logger.Error("Failed to aggregate activity summary", err)
		return nil, models.NewActivityError(err, "Failed to summarize activities", http.StatusInternalServerError)
	}
	defer cursor.Close(ctx)

	var summary []models.ActivitySummary
	if err := cursor.All(ctx, &summary); err != nil {
		r.logger.Error("Failed to decode activity summary", err)
		return nil, models.NewActivityError(err, "Failed to summarize activities", http.StatusInternalServerError)
	}

	return summary, nil
}

// DeleteOlderThan removes activities created before cutoff.
func (r *activityRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"createdAt": bson.M{"$lt": cutoff}})
	if err != nil {
		r.logger.Error("Failed to delete old activities", err, "cutoff", cutoff)
		return 0, models.NewActivityError(err, "Failed to delete activities", http.StatusInternalServerError)
	}

	return result.DeletedCount, nil
}
