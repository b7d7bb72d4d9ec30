package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidOwner = errors.New("invalid_owner")
)

type Service interface {
	List(ctx context.Context, ownerID snowflake.ID) ([]*Entry, error)
	Reconcile(ctx context.Context, ownerID snowflake.ID, recs []Recommendation, prov Provenance) (ReconcileResult, error)
	// ReconcileWithTx merges inside the caller's transaction.
	ReconcileWithTx(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID, recs []Recommendation, prov Provenance) (ReconcileResult, error)
}
