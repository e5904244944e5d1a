package mongostore

import (
	"context"
	"time"

	"golden-drift/internal/shared/model"
	"golden-drift/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func (s *Store) CreateGoldenTest(ctx context.Context, g *model.GoldenTest) error {
	doc := *g
	if doc.BaselineResponses == nil {
		doc.BaselineResponses = []string{}
	}
	_, err := s.col(ColGoldenTests).InsertOne(ctx, &doc)
	return wrapError(err)
}

func (s *Store) GetGoldenTest(ctx context.Context, id string) (*model.GoldenTest, error) {
	return findOne[model.GoldenTest](ctx, s.col(ColGoldenTests), byID(id))
}

func (s *Store) ListGoldenTestsByAgent(ctx context.Context, agentID string) ([]*model.GoldenTest, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	return findMany[model.GoldenTest](ctx, s.col(ColGoldenTests), bson.D{{Key: "agent_id", Value: agentID}}, opts)
}

func (s *Store) ListGoldenTestsByUser(ctx context.Context, userID string) ([]*model.GoldenTest, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	return findMany[model.GoldenTest](ctx, s.col(ColGoldenTests), bson.D{{Key: "user_id", Value: userID}}, opts)
}

func (s *Store) ListDueGoldenTests(ctx context.Context, now time.Time) ([]*model.GoldenTest, error) {
	filter := bson.D{
		{Key: "status", Value: model.GoldenTestStatusActive},
		{Key: "next_scheduled_run", Value: bson.D{{Key: "$lte", Value: now}}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "next_scheduled_run", Value: 1}, {Key: "_id", Value: 1}})
	return findMany[model.GoldenTest](ctx, s.col(ColGoldenTests), filter, opts)
}

func (s *Store) UpdateGoldenTestSettings(ctx context.Context, id string, st *model.GoldenTestSettings) error {
	set := bson.D{
		{Key: "name", Value: st.Name},
		{Key: "thresholds", Value: st.Thresholds},
		{Key: "schedule_frequency", Value: st.ScheduleFrequency},
		{Key: "status", Value: st.Status},
		{Key: "updated_at", Value: time.Now()},
	}
	if st.NextScheduledRun != nil {
		set = append(set, bson.E{Key: "next_scheduled_run", Value: *st.NextScheduledRun})
	}
	update := bson.D{
		{Key: "$set", Value: set},
		{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
	}
	if st.NextScheduledRun == nil {
		update = append(update, bson.E{Key: "$unset", Value: bson.D{{Key: "next_scheduled_run", Value: ""}}})
	}
	return updateFields(ctx, s.col(ColGoldenTests), byID(id), update)
}

func (s *Store) UpdateGoldenTestBaseline(ctx context.Context, id string, b *model.GoldenTestBaseline) error {
	responses := b.Responses
	if responses == nil {
		responses = []string{}
	}
	set := bson.D{
		{Key: "baseline_result_id", Value: b.ResultID},
		{Key: "baseline_responses", Value: responses},
		{Key: "baseline_captured_at", Value: b.CapturedAt},
		{Key: "updated_at", Value: time.Now()},
	}
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}}}
	if b.Metrics != nil {
		set = append(set, bson.E{Key: "baseline_metrics", Value: b.Metrics})
		update = append(update, bson.E{Key: "$set", Value: set})
	} else {
		update = append(update,
			bson.E{Key: "$set", Value: set},
			bson.E{Key: "$unset", Value: bson.D{{Key: "baseline_metrics", Value: ""}}})
	}
	return updateFields(ctx, s.col(ColGoldenTests), byID(id), update)
}

// DeleteGoldenTest 删除测试并级联删除运行记录
func (s *Store) DeleteGoldenTest(ctx context.Context, id string) error {
	return s.withTransaction(ctx, func(ctx context.Context) error {
		res, err := s.col(ColGoldenTests).DeleteOne(ctx, byID(id))
		if err != nil {
			return wrapError(err)
		}
		if res.DeletedCount == 0 {
			return storage.ErrNotFound
		}
		_, err = s.col(ColGoldenTestRuns).DeleteMany(ctx, bson.D{{Key: "golden_test_id", Value: id}})
		return wrapError(err)
	})
}

func (s *Store) CountGoldenTestsByStatus(ctx context.Context, userID string) (model.StatusCounts, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "user_id", Value: userID}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := s.col(ColGoldenTests).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, wrapError(err)
	}
	defer cursor.Close(ctx)

	counts := model.StatusCounts{}
	for cursor.Next(ctx) {
		var row struct {
			Status model.GoldenTestStatus `bson:"_id"`
			Count  int                    `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		counts[row.Status] = row.Count
	}
	return counts, cursor.Err()
}
