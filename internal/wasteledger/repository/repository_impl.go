package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wasteloop/internal/wasteledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]*domain.Entry, error) {
	var entries []*domain.Entry
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("updated_at desc").
		Order("id desc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, entry *domain.Entry) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_id"}, {Name: "normalized_name"}},
		DoUpdates: clause.Assignments(map[string]any{
			"quantity_value":       gorm.Expr("waste_ledger_entries.quantity_value + " + excluded(db, "quantity_value")),
			"source_item_name":     gorm.Expr(excluded(db, "source_item_name")),
			"source_category":      gorm.Expr(excluded(db, "source_category")),
			"last_source_quantity": gorm.Expr(excluded(db, "last_source_quantity")),
			"metadata":             gorm.Expr(excluded(db, "metadata")),
			"updated_at":           gorm.Expr(excluded(db, "updated_at")),
		}),
	}).Create(entry).Error
}

func (r *repo) DeleteByIDs(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, ids []snowflake.ID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Where("owner_id = ? AND id IN ?", ownerID, ids).
		Delete(&domain.Entry{})
	return res.RowsAffected, res.Error
}

// excluded references the proposed row of an upsert in the active dialect.
func excluded(db *gorm.DB, column string) string {
	if db.Dialector.Name() == "mysql" {
		return "VALUES(" + column + ")"
	}
	return "excluded." + column
}
