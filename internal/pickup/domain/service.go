package domain

import (
	"context"
	"errors"
	"io"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wasteloop/internal/authorization"
	"github.com/smallbiznis/wasteloop/pkg/db/pagination"
)

var (
	ErrNotFound          = errors.New("pickup_not_found")
	ErrNoReusableWaste   = errors.New("no_reusable_waste_available")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidTransition = errors.New("invalid_status_transition")
	ErrInvalidID         = errors.New("invalid_pickup_id")
)

type ListRequest struct {
	Status string
	pagination.Pagination
}

type ListResponse struct {
	Data     []*Request          `json:"data"`
	PageInfo pagination.PageInfo `json:"pageInfo"`
}

type Service interface {
	Create(ctx context.Context, userID snowflake.ID) (*Request, error)
	ListForUser(ctx context.Context, userID snowflake.ID, req ListRequest) (ListResponse, error)
	ListAll(ctx context.Context, actor authorization.Actor, req ListRequest) (ListResponse, error)
	UpdateStatus(ctx context.Context, actor authorization.Actor, id snowflake.ID, status string) (*Request, error)
	// Slip renders the pickup as a PDF for its owner or an admin.
	Slip(ctx context.Context, actor authorization.Actor, id snowflake.ID) (io.Reader, error)
}
