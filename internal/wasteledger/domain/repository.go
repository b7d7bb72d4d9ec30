package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	ListByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]*Entry, error)
	// Upsert inserts the entry or atomically adds its quantity to the
	// existing (owner_id, normalized_name) row.
	Upsert(ctx context.Context, db *gorm.DB, entry *Entry) error
	DeleteByIDs(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, ids []snowflake.ID) (int64, error)
}
