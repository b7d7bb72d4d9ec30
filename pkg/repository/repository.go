package repository

import (
	"context"

	"github.com/smallbiznis/wasteloop/pkg/db/option"
)

// Repository is a thin generic gorm store for single-table aggregates.
type Repository[T any] interface {
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, resourceID string, resource any) error
}
