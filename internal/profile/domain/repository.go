package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrNotFound      = errors.New("profile_not_found")
	ErrInvalidUserID = errors.New("invalid_user_id")
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, profile *UserProfile) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*UserProfile, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*UserProfile, error)
	CreditRewardPoints(ctx context.Context, db *gorm.DB, id snowflake.ID, points int64, now time.Time) error
	TouchLedger(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	SetAgrisense(ctx context.Context, db *gorm.DB, id snowflake.ID, enabled bool, farmerID *string, now time.Time) error
	MarkSynced(ctx context.Context, db *gorm.DB, id snowflake.ID, syncedAt time.Time) error
	// DeferSync counts a failed resync and hides the profile from
	// ListPendingSync until nextAttempt.
	DeferSync(ctx context.Context, db *gorm.DB, id snowflake.ID, nextAttempt time.Time) error
	ListPendingSync(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*UserProfile, error)
}
