package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/sifan077/analytics-service/internal/app/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// EventsCollection is the Mongo collection holding analytics events.
const EventsCollection = "events"

type mongoEventRepository struct {
	coll *mongo.Collection
	now  Clock
}

// NewMongoEventRepository returns an EventRepository backed by the events
// collection of db. A nil clock uses time.Now.
func NewMongoEventRepository(db *mongo.Database, now Clock) EventRepository {
	if now == nil {
		now = time.Now
	}
	return &mongoEventRepository{coll: db.Collection(EventsCollection), now: now}
}

// EnsureMongoIndexes creates the single-field indexes used by window and user queries.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(EventsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}}},
		{Keys: bson.D{{Key: "eventType", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo: create indexes: %w", err)
	}
	return nil
}

func windowFilter(w model.Window) bson.D {
	return bson.D{{Key: "timestamp", Value: bson.D{
		{Key: "$gte", Value: w.Since},
		{Key: "$lte", Value: w.Until},
	}}}
}

func userWindowFilter(userID int64, w model.Window) bson.D {
	return append(bson.D{{Key: "userId", Value: userID}}, windowFilter(w)...)
}

func countByTypePipeline(w model.Window) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: windowFilter(w)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$eventType"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
}

func countByDayPipeline(w model.Window) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: windowFilter(w)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$dateToString", Value: bson.D{
				{Key: "format", Value: "%Y-%m-%d"},
				{Key: "date", Value: "$timestamp"},
				{Key: "timezone", Value: "UTC"},
			}}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}

// topUsersPipeline ranks the null user after identified users, matching
// SortUserCounts, before the limit is applied.
func topUsersPipeline(w model.Window, limit int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: windowFilter(w)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$userId"},
			{Key: "eventCount", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$addFields", Value: bson.D{{Key: "anonymous", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{"$_id", nil}}},
			1,
			0,
		}}}}}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "eventCount", Value: -1},
			{Key: "anonymous", Value: 1},
			{Key: "_id", Value: 1},
		}}},
		{{Key: "$limit", Value: int64(limit)}},
	}
}

func (r *mongoEventRepository) Create(ctx context.Context, event *model.Event) error {
	prepare(event, r.now(), time.Millisecond)
	_, err := r.coll.InsertOne(ctx, event)
	return err
}

func (r *mongoEventRepository) Count(ctx context.Context, w model.Window) (int64, error) {
	return r.coll.CountDocuments(ctx, windowFilter(w))
}

func (r *mongoEventRepository) CountByType(ctx context.Context, w model.Window) ([]model.TypeCount, error) {
	var rows []struct {
		EventType string `bson:"_id"`
		Count     int64  `bson:"count"`
	}
	if err := r.aggregate(ctx, countByTypePipeline(w), &rows); err != nil {
		return nil, err
	}

	result := make([]model.TypeCount, len(rows))
	for i, row := range rows {
		result[i] = model.TypeCount{EventType: row.EventType, Count: row.Count}
	}
	return result, nil
}

func (r *mongoEventRepository) CountByDay(ctx context.Context, w model.Window) ([]model.DayCount, error) {
	var rows []struct {
		Day   string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := r.aggregate(ctx, countByDayPipeline(w), &rows); err != nil {
		return nil, err
	}

	result := make([]model.DayCount, len(rows))
	for i, row := range rows {
		result[i] = model.DayCount{Date: row.Day, Count: row.Count}
	}
	return result, nil
}

func (r *mongoEventRepository) TopUsers(ctx context.Context, w model.Window, limit int) ([]model.UserCount, error) {
	var rows []struct {
		UserID     *int64 `bson:"_id"`
		EventCount int64  `bson:"eventCount"`
	}
	if err := r.aggregate(ctx, topUsersPipeline(w, limit), &rows); err != nil {
		return nil, err
	}

	result := make([]model.UserCount, len(rows))
	for i, row := range rows {
		result[i] = model.UserCount{UserID: row.UserID, EventCount: row.EventCount}
	}
	return result, nil
}

func (r *mongoEventRepository) CountForUser(ctx context.Context, userID int64, w model.Window) (int64, error) {
	return r.coll.CountDocuments(ctx, userWindowFilter(userID, w))
}

func (r *mongoEventRepository) FindForUser(ctx context.Context, userID int64, w model.Window, limit int) ([]model.Event, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.coll.Find(ctx, userWindowFilter(userID, w), opts)
	if err != nil {
		return nil, err
	}

	var events []model.Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	for i := range events {
		events[i].Timestamp = events[i].Timestamp.UTC()
	}
	return events, nil
}

func (r *mongoEventRepository) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, readpref.Primary())
}

func (r *mongoEventRepository) aggregate(ctx context.Context, pipeline mongo.Pipeline, out any) error {
	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	return cursor.All(ctx, out)
}
