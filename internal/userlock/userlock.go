package userlock

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var ErrLockTimeout = errors.New("user_lock_timeout")

// Locker serializes the waste pipeline per user. Unlock must be called
// exactly once after a successful Lock.
type Locker interface {
	Lock(ctx context.Context, userID snowflake.ID) (unlock func(), err error)
}
