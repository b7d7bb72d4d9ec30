package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/wasteloop/internal/clock"
	"github.com/smallbiznis/wasteloop/internal/config"
	"github.com/smallbiznis/wasteloop/internal/inference"
	"github.com/smallbiznis/wasteloop/internal/ingestion/domain"
	"github.com/smallbiznis/wasteloop/internal/ingestion/repository"
	profiledomain "github.com/smallbiznis/wasteloop/internal/profile/domain"
	ledgerdomain "github.com/smallbiznis/wasteloop/internal/wasteledger/domain"
	"github.com/smallbiznis/wasteloop/internal/wasteintel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakePipeline struct {
	mu     sync.Mutex
	db     *gorm.DB
	err    error
	events []inference.UsageEvent
	called chan struct{}
}

func (f *fakePipeline) ProcessUsage(ctx context.Context, event inference.UsageEvent, onCommit func(tx *gorm.DB) error) (ledgerdomain.ReconcileResult, error) {
	f.mu.Lock()
	f.events = append(f.events, event)
	err := f.err
	f.mu.Unlock()
	if f.called != nil {
		f.called <- struct{}{}
	}
	if err != nil {
		return ledgerdomain.ReconcileResult{}, err
	}
	if onCommit == nil {
		return ledgerdomain.ReconcileResult{}, nil
	}
	return ledgerdomain.ReconcileResult{}, f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return onCommit(tx)
	})
}

type failingInsertRepo struct {
	domain.Repository
}

func (failingInsertRepo) Insert(context.Context, *gorm.DB, *domain.Task) (bool, error) {
	return false, errors.New("database unavailable")
}

type fixture struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	repo     domain.Repository
	pipeline *fakePipeline
	worker   *Worker
	trigger  *Trigger
}

func setup(t *testing.T, cfg config.IngestionConfig) fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Task{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	repo := repository.Provide()
	pipeline := &fakePipeline{db: db}
	appCfg := config.Config{Ingestion: cfg}

	worker := NewWorker(WorkerParams{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    fake,
		Config:   appCfg,
		Repo:     repo,
		Pipeline: pipeline,
	})
	trigger := NewTrigger(TriggerParams{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fake,
		Config:   appCfg,
		Repo:     repo,
		Pipeline: pipeline,
		Worker:   worker,
	})
	return fixture{db: db, clock: fake, repo: repo, pipeline: pipeline, worker: worker, trigger: trigger}
}

func usage(userID snowflake.ID) inference.UsageEvent {
	unit := "kg"
	return inference.UsageEvent{UserID: userID, ItemName: "Rice", Category: "Grains", Quantity: 2, Unit: &unit}
}

func loadTask(t *testing.T, db *gorm.DB, id snowflake.ID) domain.Task {
	t.Helper()
	var task domain.Task
	require.NoError(t, db.First(&task, "id = ?", id).Error)
	return task
}

func TestSubmitQueuesAndDeduplicates(t *testing.T) {
	f := setup(t, config.IngestionConfig{})
	ctx := context.Background()

	receipt, err := f.trigger.Submit(ctx, Submission{Event: usage(1), DedupeKey: "evt-1"})
	require.NoError(t, err)
	assert.True(t, receipt.Queued)
	assert.False(t, receipt.Duplicate)
	assert.NotZero(t, receipt.TaskID)

	select {
	case <-f.worker.wake:
	default:
		t.Fatal("worker was not woken")
	}

	again, err := f.trigger.Submit(ctx, Submission{Event: usage(1), DedupeKey: "evt-1"})
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, receipt.TaskID, again.TaskID)

	var count int64
	require.NoError(t, f.db.Model(&domain.Task{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	generated, err := f.trigger.Submit(ctx, Submission{Event: usage(1)})
	require.NoError(t, err)
	assert.Len(t, generated.DedupeKey, 26)
}

func TestSubmitValidatesEvent(t *testing.T) {
	f := setup(t, config.IngestionConfig{})

	_, err := f.trigger.Submit(context.Background(), Submission{Event: inference.UsageEvent{ItemName: "Rice"}})
	require.ErrorIs(t, err, profiledomain.ErrInvalidUserID)

	_, err = f.trigger.Submit(context.Background(), Submission{Event: inference.UsageEvent{UserID: 1}})
	require.ErrorIs(t, err, wasteintel.ErrInvalidItemName)
}

func TestSubmitFallsBackWhenQueueUnavailable(t *testing.T) {
	f := setup(t, config.IngestionConfig{})
	f.pipeline.called = make(chan struct{}, 1)
	f.trigger.repo = failingInsertRepo{Repository: f.repo}

	receipt, err := f.trigger.Submit(context.Background(), Submission{Event: usage(4)})
	require.NoError(t, err)
	assert.False(t, receipt.Queued)

	select {
	case <-f.pipeline.called:
	case <-time.After(2 * time.Second):
		t.Fatal("detached pipeline did not run")
	}
}

func TestRunOnceMarksTaskDone(t *testing.T) {
	f := setup(t, config.IngestionConfig{})
	ctx := context.Background()

	receipt, err := f.trigger.Submit(ctx, Submission{Event: usage(2)})
	require.NoError(t, err)

	n, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	task := loadTask(t, f.db, receipt.TaskID)
	assert.Equal(t, domain.TaskStatusDone, task.Status)
	assert.Equal(t, 1, task.Attempts)
	assert.Nil(t, task.LockedUntil)
	require.Len(t, f.pipeline.events, 1)
	assert.Equal(t, "Rice", f.pipeline.events[0].ItemName)

	n, err = f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunOnceSkipsConfigurationErrors(t *testing.T) {
	f := setup(t, config.IngestionConfig{})
	f.pipeline.err = fmt.Errorf("%w: missing key", inference.ErrNotConfigured)

	receipt, err := f.trigger.Submit(context.Background(), Submission{Event: usage(3)})
	require.NoError(t, err)

	_, err = f.worker.RunOnce(context.Background())
	require.NoError(t, err)

	task := loadTask(t, f.db, receipt.TaskID)
	assert.Equal(t, domain.TaskStatusSkipped, task.Status)
	require.NotNil(t, task.LastError)
	assert.Contains(t, *task.LastError, "inference_not_configured")
}

func TestRunOnceSkipsUnparseableRecommendations(t *testing.T) {
	f := setup(t, config.IngestionConfig{MaxAttempts: 3, BaseBackoff: time.Second})
	f.pipeline.err = fmt.Errorf("%w: items is not an array", inference.ErrParse)
	ctx := context.Background()

	receipt, err := f.trigger.Submit(ctx, Submission{Event: usage(4)})
	require.NoError(t, err)

	n, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	task := loadTask(t, f.db, receipt.TaskID)
	assert.Equal(t, domain.TaskStatusSkipped, task.Status)
	assert.Equal(t, 1, task.Attempts)
	require.NotNil(t, task.LastError)
	assert.Contains(t, *task.LastError, "inference_parse_error")

	// Skipped tasks are terminal even once the backoff would have elapsed.
	f.clock.Advance(time.Minute)
	n, err = f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, f.pipeline.events, 1)
}

func TestRunOnceRetriesWithBackoffThenFails(t *testing.T) {
	f := setup(t, config.IngestionConfig{MaxAttempts: 2, BaseBackoff: 5 * time.Second})
	f.pipeline.err = errors.New("connection reset")
	ctx := context.Background()

	receipt, err := f.trigger.Submit(ctx, Submission{Event: usage(5)})
	require.NoError(t, err)

	_, err = f.worker.RunOnce(ctx)
	require.NoError(t, err)

	task := loadTask(t, f.db, receipt.TaskID)
	assert.Equal(t, domain.TaskStatusPending, task.Status)
	assert.Equal(t, 1, task.Attempts)
	assert.True(t, task.AvailableAt.Equal(f.clock.Now().Add(5*time.Second)))

	// Not yet due.
	n, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(5 * time.Second)
	n, err = f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	task = loadTask(t, f.db, receipt.TaskID)
	assert.Equal(t, domain.TaskStatusFailed, task.Status)
	assert.Equal(t, 2, task.Attempts)
}

func TestRunOnceRequeuesExpiredLeases(t *testing.T) {
	f := setup(t, config.IngestionConfig{LeaseTimeout: time.Minute})
	ctx := context.Background()

	receipt, err := f.trigger.Submit(ctx, Submission{Event: usage(6)})
	require.NoError(t, err)

	// Simulate a worker that claimed the task and died.
	err = f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.repo.Claim(ctx, tx, f.clock.Now(), f.clock.Now().Add(time.Minute), 10)
		return err
	})
	require.NoError(t, err)

	n, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(2 * time.Minute)
	n, err = f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	task := loadTask(t, f.db, receipt.TaskID)
	assert.Equal(t, domain.TaskStatusDone, task.Status)
	assert.Equal(t, 2, task.Attempts)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 5*time.Second, backoff(5*time.Second, 1))
	assert.Equal(t, 20*time.Second, backoff(5*time.Second, 3))
	assert.Equal(t, maxBackoff, backoff(5*time.Second, 40))
	assert.Equal(t, 5*time.Second, backoff(5*time.Second, 0))
}
