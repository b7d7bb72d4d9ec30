package ingestion

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/smallbiznis/wasteloop/internal/clock"
	"github.com/smallbiznis/wasteloop/internal/config"
	"github.com/smallbiznis/wasteloop/internal/inference"
	"github.com/smallbiznis/wasteloop/internal/ingestion/domain"
	"github.com/smallbiznis/wasteloop/internal/observability/metrics"
	profiledomain "github.com/smallbiznis/wasteloop/internal/profile/domain"
	"github.com/smallbiznis/wasteloop/internal/wasteintel"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultBatchSize    = 20
	defaultPollInterval = 2 * time.Second
	defaultRunTimeout   = 2 * time.Minute
	defaultTaskTimeout  = 45 * time.Second
	defaultLeaseTimeout = 2 * time.Minute
	defaultMaxAttempts  = 5
	defaultBaseBackoff  = 5 * time.Second
	maxBackoff          = 30 * time.Minute
	maxErrorLength      = 512
)

type WorkerParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Config   config.Config
	Repo     domain.Repository
	Pipeline Pipeline
	Metrics  *metrics.WorkerMetrics `optional:"true"`
}

// Worker drains the task table. Tasks are executed at least once: a task is
// marked done in the same transaction as its ledger writes.
type Worker struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	cfg      config.IngestionConfig
	repo     domain.Repository
	pipeline Pipeline
	metrics  *metrics.WorkerMetrics
	wake     chan struct{}
}

func NewWorker(p WorkerParams) *Worker {
	return &Worker{
		db:       p.DB,
		log:      p.Log.Named("ingestion.worker"),
		clock:    p.Clock,
		cfg:      withDefaults(p.Config.Ingestion),
		repo:     p.Repo,
		pipeline: p.Pipeline,
		metrics:  p.Metrics,
		wake:     make(chan struct{}, 1),
	}
}

func withDefaults(cfg config.IngestionConfig) config.IngestionConfig {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = defaultTaskTimeout
	}
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = defaultLeaseTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	return cfg
}

// Wake asks the worker to poll now. It never blocks.
func (w *Worker) Wake() {
	if w == nil {
		return
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Warn("ingestion run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// RunOnce requeues expired leases, claims one batch and processes it.
func (w *Worker) RunOnce(parent context.Context) (int, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, w.cfg.RunTimeout)
	defer cancel()

	w.metrics.IncJobRun(metrics.JobIngestion)
	defer func() {
		w.metrics.ObserveJobDuration(metrics.JobIngestion, time.Since(start))
	}()

	now := w.clock.Now()
	requeued, err := w.repo.RequeueExpired(ctx, w.db, now)
	if err != nil {
		w.metrics.IncJobError(metrics.JobIngestion, err)
		return 0, err
	}
	if requeued > 0 {
		w.log.Info("requeued expired ingestion tasks", zap.Int64("count", requeued))
	}

	tasks, err := w.claim(ctx, now)
	if err != nil {
		w.metrics.IncJobError(metrics.JobIngestion, err)
		return 0, err
	}
	if len(tasks) == 0 {
		w.metrics.IncBatchDeferred(metrics.JobIngestion, metrics.BatchDeferredReasonEmpty)
		return 0, nil
	}

	outcomes := map[string]int{}
	for _, task := range tasks {
		if ctx.Err() != nil {
			// Unprocessed tasks keep their lease and are requeued once it expires.
			break
		}
		outcomes[w.process(ctx, task)]++
	}
	for outcome, n := range outcomes {
		w.metrics.AddTasksProcessed(metrics.JobIngestion, outcome, n)
	}
	return len(tasks), nil
}

func (w *Worker) claim(ctx context.Context, now time.Time) ([]*domain.Task, error) {
	var tasks []*domain.Task
	lockStart := time.Now()
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		tasks, err = w.repo.Claim(ctx, tx, now, now.Add(w.cfg.LeaseTimeout), w.cfg.BatchSize)
		return err
	})
	w.metrics.ObserveLockWait(metrics.LockResourceIngestionTasks, time.Since(lockStart))
	return tasks, err
}

func (w *Worker) process(parent context.Context, task *domain.Task) string {
	ctx, cancel := context.WithTimeout(parent, w.cfg.TaskTimeout)
	defer cancel()

	log := w.log.With(
		zap.String("task_id", task.ID.String()),
		zap.String("user_id", task.UserID.String()),
		zap.Int("attempt", task.Attempts),
	)

	event := task.Payload.Data()
	_, err := w.pipeline.ProcessUsage(ctx, event, func(tx *gorm.DB) error {
		return w.repo.MarkDone(ctx, tx, task.ID, w.clock.Now())
	})
	if err == nil {
		return metrics.TaskOutcomeDone
	}

	// Status updates use the parent context so a timed-out task still records why.
	now := w.clock.Now()
	reason := truncate(err.Error(), maxErrorLength)

	switch {
	case inference.IsConfigurationError(err), errors.Is(err, inference.ErrParse):
		log.Warn("ingestion task skipped", zap.Error(err))
		w.mark(log, w.repo.MarkSkipped(parent, w.db, task.ID, reason, now))
		return metrics.TaskOutcomeSkipped
	case isPermanent(err):
		log.Warn("ingestion task rejected", zap.Error(err))
		w.mark(log, w.repo.MarkFailed(parent, w.db, task.ID, reason, now))
		return metrics.TaskOutcomeFailed
	case task.Attempts >= w.cfg.MaxAttempts:
		w.metrics.IncJobError(metrics.JobIngestion, err)
		log.Error("ingestion task failed", zap.Error(err))
		w.mark(log, w.repo.MarkFailed(parent, w.db, task.ID, reason, now))
		return metrics.TaskOutcomeFailed
	default:
		w.metrics.IncJobError(metrics.JobIngestion, err)
		delay := backoff(w.cfg.BaseBackoff, task.Attempts)
		log.Info("ingestion task retrying", zap.Duration("backoff", delay), zap.Error(err))
		w.mark(log, w.repo.MarkRetry(parent, w.db, task.ID, reason, now.Add(delay), now))
		return metrics.TaskOutcomeRetried
	}
}

func (w *Worker) mark(log *zap.Logger, err error) {
	if err != nil {
		log.Error("ingestion task status update failed", zap.Error(err))
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, wasteintel.ErrInvalidItemName) ||
		errors.Is(err, wasteintel.ErrInvalidQuantity) ||
		errors.Is(err, profiledomain.ErrInvalidUserID)
}

// backoff doubles per attempt starting at base.
func backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if delay <= 0 || delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
