package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wasteloop/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	UserID *snowflake.ID
	Status *Status
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, req *Request) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Request, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Request, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, req *Request) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*Request, pagination.PageInfo, error)
}
