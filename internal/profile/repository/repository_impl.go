package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wasteloop/internal/profile/domain"
	dbpkg "github.com/smallbiznis/wasteloop/pkg/db"
	"github.com/smallbiznis/wasteloop/pkg/db/option"
	"github.com/smallbiznis/wasteloop/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

var pendingSyncSort = map[string]bool{"ledger_changed_at": true}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) store(db *gorm.DB) repository.Repository[domain.UserProfile] {
	return repository.ProvideStore[domain.UserProfile](db)
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, profile *domain.UserProfile) error {
	return r.store(db).Create(ctx, profile)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.UserProfile, error) {
	return r.store(db).FindOne(ctx, &domain.UserProfile{ID: id})
}

// FindByIDForUpdate row-locks the profile for the rest of the transaction.
func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.UserProfile, error) {
	if !dbpkg.SupportsRowLocks(db) {
		return r.FindByID(ctx, db, id)
	}
	return r.store(db).FindOne(ctx, &domain.UserProfile{ID: id},
		option.QueryOptionFunc(func(q *gorm.DB) *gorm.DB {
			return q.Clauses(clause.Locking{Strength: "UPDATE"})
		}),
	)
}

func (r *repo) CreditRewardPoints(ctx context.Context, db *gorm.DB, id snowflake.ID, points int64, now time.Time) error {
	res := db.WithContext(ctx).Model(&domain.UserProfile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"reward_points": gorm.Expr("reward_points + ?", points),
			"updated_at":    now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// TouchLedger records a ledger mutation so the resync job can detect drift.
// Missing profiles are ignored; ledgers may exist before the profile row.
func (r *repo) TouchLedger(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Model(&domain.UserProfile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"ledger_changed_at": now,
			"updated_at":        now,
		}).Error
}

func (r *repo) SetAgrisense(ctx context.Context, db *gorm.DB, id snowflake.ID, enabled bool, farmerID *string, now time.Time) error {
	updates := map[string]any{
		"agrisense_enabled": enabled,
		"updated_at":        now,
	}
	if farmerID != nil {
		updates["agrisense_farmer_id"] = *farmerID
	}
	if err := r.store(db).Update(ctx, id.String(), updates); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}

func (r *repo) MarkSynced(ctx context.Context, db *gorm.DB, id snowflake.ID, syncedAt time.Time) error {
	return db.WithContext(ctx).Model(&domain.UserProfile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"agrisense_last_synced_at":  syncedAt,
			"agrisense_sync_failures":   0,
			"agrisense_next_attempt_at": nil,
		}).Error
}

func (r *repo) DeferSync(ctx context.Context, db *gorm.DB, id snowflake.ID, nextAttempt time.Time) error {
	return db.WithContext(ctx).Model(&domain.UserProfile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"agrisense_sync_failures":   gorm.Expr("agrisense_sync_failures + 1"),
			"agrisense_next_attempt_at": nextAttempt,
		}).Error
}

func (r *repo) ListPendingSync(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*domain.UserProfile, error) {
	return r.store(db).Find(ctx, &domain.UserProfile{AgrisenseEnabled: true},
		option.WithWhere("phone <> ''"),
		option.WithWhere("(agrisense_next_attempt_at IS NULL OR agrisense_next_attempt_at <= ?)", now),
		option.WithWhere("ledger_changed_at IS NOT NULL"),
		option.WithWhere("(agrisense_last_synced_at IS NULL OR agrisense_last_synced_at < ledger_changed_at)"),
		option.WithSortBy(option.WithQuerySortBy("ledger_changed_at", "asc", pendingSyncSort)),
		option.WithLimit(option.NormalizePageSize(limit)),
	)
}
