package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert enqueues the task. A task with the same dedupe key is left
	// untouched and inserted reports false.
	Insert(ctx context.Context, db *gorm.DB, task *Task) (inserted bool, err error)
	FindByDedupeKey(ctx context.Context, db *gorm.DB, key string) (*Task, error)
	// Claim leases up to limit due pending tasks and bumps their attempts.
	Claim(ctx context.Context, db *gorm.DB, now, leaseUntil time.Time, limit int) ([]*Task, error)
	RequeueExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
	MarkDone(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	MarkSkipped(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) error
	MarkRetry(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, availableAt, now time.Time) error
}
