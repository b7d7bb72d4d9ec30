package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wasteloop/internal/pickup/domain"
	dbpkg "github.com/smallbiznis/wasteloop/pkg/db"
	"github.com/smallbiznis/wasteloop/pkg/db/option"
	"github.com/smallbiznis/wasteloop/pkg/db/pagination"
	"github.com/smallbiznis/wasteloop/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

var listSort = map[string]bool{"requested_at": true}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) store(db *gorm.DB) repository.Repository[domain.Request] {
	return repository.ProvideStore[domain.Request](db)
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, req *domain.Request) error {
	return r.store(db).Create(ctx, req)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Request, error) {
	return r.store(db).FindOne(ctx, &domain.Request{ID: id})
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Request, error) {
	if !dbpkg.SupportsRowLocks(db) {
		return r.FindByID(ctx, db, id)
	}
	return r.store(db).FindOne(ctx, &domain.Request{ID: id},
		option.QueryOptionFunc(func(q *gorm.DB) *gorm.DB {
			return q.Clauses(clause.Locking{Strength: "UPDATE"})
		}),
	)
}

// UpdateStatus persists the status fields only; the snapshot and totals are
// never rewritten.
func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, req *domain.Request) error {
	err := r.store(db).Update(ctx, req.ID.String(), map[string]any{
		"status":       req.Status,
		"admin_id":     req.AdminID,
		"completed_at": req.CompletedAt,
		"updated_at":   req.UpdatedAt,
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Request, pagination.PageInfo, error) {
	query := &domain.Request{}
	if filter.UserID != nil {
		query.UserID = *filter.UserID
	}
	if filter.Status != nil {
		query.Status = *filter.Status
	}

	items, err := r.store(db).Find(ctx, query,
		option.WithSortBy(option.WithQuerySortBy("requested_at", "desc", listSort)),
		option.ApplyKeysetPagination("requested_at", page),
	)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	items, info := pagination.BuildCursorPageInfo(items, option.NormalizePageSize(page.PageSize), func(req *domain.Request) pagination.Cursor {
		return pagination.Cursor{
			ID:        req.ID.String(),
			CreatedAt: req.RequestedAt.UTC().Format(time.RFC3339Nano),
		}
	})
	return items, info, nil
}
