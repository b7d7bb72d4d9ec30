package ingestion

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/wasteloop/internal/clock"
	"github.com/smallbiznis/wasteloop/internal/config"
	"github.com/smallbiznis/wasteloop/internal/inference"
	"github.com/smallbiznis/wasteloop/internal/ingestion/domain"
	obslogger "github.com/smallbiznis/wasteloop/internal/observability/logger"
	profiledomain "github.com/smallbiznis/wasteloop/internal/profile/domain"
	"github.com/smallbiznis/wasteloop/internal/wasteintel"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxDedupeKeyLength = 64

var ErrInvalidDedupeKey = errors.New("invalid_dedupe_key")

type Submission struct {
	Event     inference.UsageEvent
	DedupeKey string
}

// Receipt reports how a submission was accepted. Queued is false when the
// event ran on the detached fallback path.
type Receipt struct {
	TaskID    snowflake.ID `json:"taskId,omitempty"`
	DedupeKey string       `json:"dedupeKey"`
	Queued    bool         `json:"queued"`
	Duplicate bool         `json:"duplicate"`
}

type TriggerParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   config.Config
	Repo     domain.Repository
	Pipeline Pipeline
	Worker   *Worker `optional:"true"`
}

// Trigger is the non-blocking entry point for usage events.
type Trigger struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	pipeline Pipeline
	worker   *Worker
	timeout  time.Duration
}

func NewTrigger(p TriggerParams) *Trigger {
	timeout := p.Config.Ingestion.TaskTimeout
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	return &Trigger{
		db:       p.DB,
		log:      p.Log.Named("ingestion.trigger"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		pipeline: p.Pipeline,
		worker:   p.Worker,
		timeout:  timeout,
	}
}

// Submit only validates the event shape. Analysis errors are never returned.
func (t *Trigger) Submit(ctx context.Context, sub Submission) (Receipt, error) {
	event := sub.Event
	if event.UserID == 0 {
		return Receipt{}, profiledomain.ErrInvalidUserID
	}
	if strings.TrimSpace(event.ItemName) == "" {
		return Receipt{}, wasteintel.ErrInvalidItemName
	}
	if event.Quantity < 0 {
		return Receipt{}, wasteintel.ErrInvalidQuantity
	}
	key := strings.TrimSpace(sub.DedupeKey)
	if len(key) > maxDedupeKeyLength {
		return Receipt{}, ErrInvalidDedupeKey
	}
	if key == "" {
		key = ulid.Make().String()
	}

	now := t.clock.Now()
	task := &domain.Task{
		ID:          t.genID.Generate(),
		UserID:      event.UserID,
		DedupeKey:   key,
		Payload:     datatypes.NewJSONType(event),
		Status:      domain.TaskStatusPending,
		AvailableAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	log := obslogger.WithContext(ctx, t.log).With(
		zap.String("user_id", event.UserID.String()),
		zap.String("dedupe_key", key),
	)

	inserted, err := t.repo.Insert(ctx, t.db, task)
	if err != nil {
		log.Warn("ingestion task insert failed, running detached", zap.Error(err))
		t.runDetached(event)
		return Receipt{DedupeKey: key}, nil
	}
	if !inserted {
		existing, err := t.repo.FindByDedupeKey(ctx, t.db, key)
		if err == nil && existing != nil {
			return Receipt{TaskID: existing.ID, DedupeKey: key, Queued: true, Duplicate: true}, nil
		}
		return Receipt{DedupeKey: key, Queued: true, Duplicate: true}, nil
	}

	t.worker.Wake()
	log.Debug("usage event queued", zap.String("task_id", task.ID.String()))
	return Receipt{TaskID: task.ID, DedupeKey: key, Queued: true}, nil
}

func (t *Trigger) runDetached(event inference.UsageEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if _, err := t.pipeline.ProcessUsage(ctx, event, nil); err != nil {
			t.log.Warn("detached usage processing failed",
				zap.String("user_id", event.UserID.String()),
				zap.Error(err),
			)
		}
	}()
}
