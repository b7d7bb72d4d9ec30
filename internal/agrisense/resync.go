package agrisense

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/wasteloop/internal/config"
	"github.com/smallbiznis/wasteloop/internal/observability/metrics"
	profiledomain "github.com/smallbiznis/wasteloop/internal/profile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	resyncRunTimeout  = 2 * time.Minute
	resyncBaseBackoff = time.Minute
	resyncMaxBackoff  = 6 * time.Hour
)

type ResyncParams struct {
	fx.In

	Lifecycle   fx.Lifecycle
	DB          *gorm.DB
	Log         *zap.Logger
	Config      config.Config
	Service     *Service
	ProfileRepo profiledomain.Repository
	Metrics     *metrics.WorkerMetrics `optional:"true"`
}

// Resyncer replays partner sync for users whose ledger changed after their
// last successful sync.
type Resyncer struct {
	db          *gorm.DB
	log         *zap.Logger
	svc         *Service
	profileRepo profiledomain.Repository
	metrics     *metrics.WorkerMetrics
	batchSize   int
}

func NewResyncer(p ResyncParams) *Resyncer {
	r := &Resyncer{
		db:          p.DB,
		log:         p.Log.Named("agrisense.resync"),
		svc:         p.Service,
		profileRepo: p.ProfileRepo,
		metrics:     p.Metrics,
		batchSize:   p.Config.Agrisense.ResyncBatch,
	}

	if !p.Config.Agrisense.ResyncEnable {
		r.log.Info("agrisense resync disabled")
		return r
	}

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if p.Service.client == nil || !p.Service.client.Configured() {
				r.log.Info("agrisense resync idle: partner not configured")
				return nil
			}
			if _, err := c.AddFunc(p.Config.Agrisense.ResyncSpec, r.runScheduled); err != nil {
				return err
			}
			c.Start()
			r.log.Info("agrisense resync scheduled", zap.String("spec", p.Config.Agrisense.ResyncSpec))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			select {
			case <-c.Stop().Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return r
}

func (r *Resyncer) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), resyncRunTimeout)
	defer cancel()
	if _, err := r.RunOnce(ctx); err != nil {
		r.log.Warn("agrisense resync run failed", zap.Error(err))
	}
}

// RunOnce syncs one batch of drifted profiles and returns how many succeeded.
func (r *Resyncer) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	r.metrics.IncJobRun(metrics.JobAgrisenseResync)
	defer func() {
		r.metrics.ObserveJobDuration(metrics.JobAgrisenseResync, time.Since(start))
	}()

	profiles, err := r.profileRepo.ListPendingSync(ctx, r.db, r.svc.clock.Now(), r.batchSize)
	if err != nil {
		r.metrics.IncJobError(metrics.JobAgrisenseResync, err)
		return 0, err
	}

	var synced, failed int
	for _, profile := range profiles {
		if err := ctx.Err(); err != nil {
			r.metrics.IncJobError(metrics.JobAgrisenseResync, err)
			return synced, err
		}
		if _, err := r.svc.sync(ctx, profile); err != nil {
			failed++
			if errors.Is(err, ErrNotConfigured) {
				return synced, err
			}
			next := r.svc.clock.Now().Add(resyncBackoff(profile.AgrisenseSyncFailures))
			if derr := r.profileRepo.DeferSync(ctx, r.db, profile.ID, next); derr != nil {
				r.log.Warn("agrisense resync defer failed",
					zap.String("user_id", profile.ID.String()),
					zap.Error(derr),
				)
			}
			continue
		}
		synced++
	}

	r.metrics.AddTasksProcessed(metrics.JobAgrisenseResync, metrics.TaskOutcomeDone, synced)
	r.metrics.AddTasksProcessed(metrics.JobAgrisenseResync, metrics.TaskOutcomeFailed, failed)
	if len(profiles) > 0 {
		r.log.Info("agrisense resync finished",
			zap.Int("synced", synced),
			zap.Int("failed", failed),
		)
	}
	return synced, nil
}

// resyncBackoff doubles per consecutive failure so a rejected profile cannot
// hold the head of the batch.
func resyncBackoff(failures int) time.Duration {
	if failures < 0 {
		failures = 0
	}
	d := resyncBaseBackoff
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= resyncMaxBackoff {
			return resyncMaxBackoff
		}
	}
	return d
}
