package mongostore

import (
	"context"
	"time"

	"golden-drift/internal/shared/model"
	"golden-drift/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// withTransaction 在会话事务中执行 fn
func (s *Store) withTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// RecordGoldenTestRun 在事务中按 version 条件更新测试并插入运行记录
func (s *Store) RecordGoldenTestRun(ctx context.Context, run *model.GoldenTestRun, u *model.GoldenTestRunUpdate) error {
	doc := *run
	if doc.DriftDetails == nil {
		doc.DriftDetails = []model.DriftDetail{}
	}
	if doc.Alerts == nil {
		doc.Alerts = []model.Alert{}
	}

	return s.withTransaction(ctx, func(ctx context.Context) error {
		filter := bson.D{
			{Key: "_id", Value: run.GoldenTestID},
			{Key: "version", Value: u.ExpectedVersion},
		}
		update := bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "last_run_at", Value: u.LastRunAt},
				{Key: "next_scheduled_run", Value: u.NextScheduledRun},
				{Key: "status", Value: u.Status},
				{Key: "updated_at", Value: time.Now()},
			}},
			{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
		}
		res, err := s.col(ColGoldenTests).UpdateOne(ctx, filter, update)
		if err != nil {
			return wrapError(err)
		}
		if res.MatchedCount == 0 {
			n, err := s.col(ColGoldenTests).CountDocuments(ctx, byID(run.GoldenTestID))
			if err != nil {
				return wrapError(err)
			}
			if n == 0 {
				return storage.ErrNotFound
			}
			return storage.ErrConflict
		}

		_, err = s.col(ColGoldenTestRuns).InsertOne(ctx, &doc)
		return wrapError(err)
	})
}

func (s *Store) ListGoldenTestRuns(ctx context.Context, goldenTestID string, limit int) ([]*model.GoldenTestRun, error) {
	if limit <= 0 {
		limit = 20
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "run_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	return findMany[model.GoldenTestRun](ctx, s.col(ColGoldenTestRuns),
		bson.D{{Key: "golden_test_id", Value: goldenTestID}}, opts)
}

// ListRecentFailedRuns 先取用户的测试，再按 golden_test_id 查询未通过的运行
func (s *Store) ListRecentFailedRuns(ctx context.Context, userID string, limit int) ([]*model.FailedRunSample, error) {
	if limit <= 0 {
		limit = 10
	}
	tests, err := findMany[model.GoldenTest](ctx, s.col(ColGoldenTests),
		bson.D{{Key: "user_id", Value: userID}},
		options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}, {Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	if len(tests) == 0 {
		return []*model.FailedRunSample{}, nil
	}

	names := make(map[string]string, len(tests))
	ids := make(bson.A, 0, len(tests))
	for _, g := range tests {
		names[g.ID] = g.Name
		ids = append(ids, g.ID)
	}

	filter := bson.D{
		{Key: "golden_test_id", Value: bson.D{{Key: "$in", Value: ids}}},
		{Key: "passed", Value: false},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "run_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	runs, err := findMany[model.GoldenTestRun](ctx, s.col(ColGoldenTestRuns), filter, opts)
	if err != nil {
		return nil, err
	}

	samples := make([]*model.FailedRunSample, 0, len(runs))
	for _, r := range runs {
		samples = append(samples, &model.FailedRunSample{
			GoldenTestID:   r.GoldenTestID,
			GoldenTestName: names[r.GoldenTestID],
			Run:            r,
		})
	}
	return samples, nil
}
