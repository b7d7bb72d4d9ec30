package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wasteloop/internal/ingestion/domain"
	dbpkg "github.com/smallbiznis/wasteloop/pkg/db"
	"github.com/smallbiznis/wasteloop/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, task *domain.Task) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedupe_key"}},
			DoNothing: true,
		}).
		Create(task)
	if res.Error != nil {
		if dbpkg.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByDedupeKey(ctx context.Context, db *gorm.DB, key string) (*domain.Task, error) {
	return repository.ProvideStore[domain.Task](db).FindOne(ctx, &domain.Task{DedupeKey: key})
}

// Claim runs inside the caller's transaction. On dialects with row locks the
// candidate rows are taken with SKIP LOCKED so concurrent workers never share
// a task.
func (r *repo) Claim(ctx context.Context, db *gorm.DB, now, leaseUntil time.Time, limit int) ([]*domain.Task, error) {
	if limit <= 0 {
		return nil, nil
	}

	q := db.WithContext(ctx).
		Where("status = ?", domain.TaskStatusPending).
		Where("available_at <= ?", now).
		Order("available_at asc").
		Order("id asc").
		Limit(limit)
	if dbpkg.SupportsRowLocks(db) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}

	var tasks []*domain.Task
	if err := q.Find(&tasks).Error; err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}

	ids := make([]snowflake.ID, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	err := db.WithContext(ctx).Model(&domain.Task{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"status":       domain.TaskStatusProcessing,
			"attempts":     gorm.Expr("attempts + 1"),
			"locked_until": leaseUntil,
			"updated_at":   now,
		}).Error
	if err != nil {
		return nil, err
	}

	for _, task := range tasks {
		task.Status = domain.TaskStatusProcessing
		task.Attempts++
		lease := leaseUntil
		task.LockedUntil = &lease
		task.UpdatedAt = now
	}
	return tasks, nil
}

// RequeueExpired returns tasks whose worker died mid-lease to the queue.
func (r *repo) RequeueExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Model(&domain.Task{}).
		Where("status = ?", domain.TaskStatusProcessing).
		Where("locked_until < ?", now).
		Updates(map[string]any{
			"status":       domain.TaskStatusPending,
			"locked_until": nil,
			"available_at": now,
			"updated_at":   now,
		})
	return res.RowsAffected, res.Error
}

func (r *repo) MarkDone(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return r.finish(ctx, db, id, map[string]any{
		"status":       domain.TaskStatusDone,
		"locked_until": nil,
		"last_error":   nil,
		"updated_at":   now,
	})
}

func (r *repo) MarkSkipped(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) error {
	return r.finish(ctx, db, id, map[string]any{
		"status":       domain.TaskStatusSkipped,
		"locked_until": nil,
		"last_error":   reason,
		"updated_at":   now,
	})
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) error {
	return r.finish(ctx, db, id, map[string]any{
		"status":       domain.TaskStatusFailed,
		"locked_until": nil,
		"last_error":   reason,
		"updated_at":   now,
	})
}

func (r *repo) MarkRetry(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, availableAt, now time.Time) error {
	return r.finish(ctx, db, id, map[string]any{
		"status":       domain.TaskStatusPending,
		"locked_until": nil,
		"last_error":   reason,
		"available_at": availableAt,
		"updated_at":   now,
	})
}

// finish only touches tasks still leased, so a requeued task is never
// overwritten by a stale worker.
func (r *repo) finish(ctx context.Context, db *gorm.DB, id snowflake.ID, updates map[string]any) error {
	return db.WithContext(ctx).Model(&domain.Task{}).
		Where("id = ? AND status = ?", id, domain.TaskStatusProcessing).
		Updates(updates).Error
}
