package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Actor is the caller identity forwarded by the gateway.
type Actor struct {
	UserID snowflake.ID
	Role   string
}

type Service interface {
	Authorize(ctx context.Context, actor Actor, object string, action string) error
	IsAdmin(ctx context.Context, actor Actor) bool
}
