package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/wasteloop/internal/authorization"
	"github.com/smallbiznis/wasteloop/internal/clock"
	"github.com/smallbiznis/wasteloop/internal/config"
	"github.com/smallbiznis/wasteloop/internal/inference"
	"github.com/smallbiznis/wasteloop/internal/pickup/domain"
	"github.com/smallbiznis/wasteloop/internal/pickup/repository"
	profiledomain "github.com/smallbiznis/wasteloop/internal/profile/domain"
	profilerepo "github.com/smallbiznis/wasteloop/internal/profile/repository"
	"github.com/smallbiznis/wasteloop/internal/providers/pdf"
	"github.com/smallbiznis/wasteloop/internal/userlock"
	"github.com/smallbiznis/wasteloop/internal/valuation"
	ledgerdomain "github.com/smallbiznis/wasteloop/internal/wasteledger/domain"
	ledgerrepo "github.com/smallbiznis/wasteloop/internal/wasteledger/repository"
	ledgerservice "github.com/smallbiznis/wasteloop/internal/wasteledger/service"
	"github.com/smallbiznis/wasteloop/internal/wasteintel"
	"github.com/smallbiznis/wasteloop/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func ptr(s string) *string { return &s }

type roleAuthz struct{}

func (roleAuthz) Authorize(_ context.Context, actor authorization.Actor, _ string, _ string) error {
	if actor.UserID == 0 {
		return authorization.ErrInvalidActor
	}
	if actor.Role != authorization.RoleAdmin {
		return authorization.ErrForbidden
	}
	return nil
}

func (a roleAuthz) IsAdmin(ctx context.Context, actor authorization.Actor) bool {
	return a.Authorize(ctx, actor, authorization.ObjectPickup, authorization.ActionPickupListAll) == nil
}

type stubInference struct {
	result inference.Result
}

func (s *stubInference) Infer(context.Context, inference.Request) (inference.Result, error) {
	return s.result, nil
}

type countingSyncer struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSyncer) SyncBestEffort(context.Context, snowflake.ID) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

type fixture struct {
	svc    domain.Service
	intel  *wasteintel.Service
	llm    *stubInference
	db     *gorm.DB
	clock  *clock.FakeClock
	syncer *countingSyncer
}

func setup(t *testing.T) fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&ledgerdomain.Entry{}, &profiledomain.UserProfile{}, &domain.Request{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	calculator := valuation.NewCalculator(config.NewStaticWasteConfigHolder(config.DefaultWasteConfig()))
	locker := userlock.NewLocalLocker(nil)
	profiles := profilerepo.Provide()
	ledgerRepo := ledgerrepo.Provide()
	syncer := &countingSyncer{}

	ledger := ledgerservice.New(ledgerservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fake,
		Repo:        ledgerRepo,
		ProfileRepo: profiles,
		Calculator:  calculator,
	})
	llm := &stubInference{}
	intel := wasteintel.NewService(wasteintel.Params{
		DB:          db,
		Log:         zap.NewNop(),
		Locker:      locker,
		Inference:   llm,
		Ledger:      ledger,
		ProfileRepo: profiles,
		Calculator:  calculator,
	})

	svc := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fake,
		Locker:      locker,
		Repo:        repository.Provide(),
		LedgerRepo:  ledgerRepo,
		ProfileRepo: profiles,
		Calculator:  calculator,
		Authz:       roleAuthz{},
		PDF:         pdf.New(),
		Syncer:      syncer,
	})
	return fixture{svc: svc, intel: intel, llm: llm, db: db, clock: fake, syncer: syncer}
}

func (f fixture) seedProfile(t *testing.T, id snowflake.ID) {
	t.Helper()
	require.NoError(t, f.db.Create(&profiledomain.UserProfile{
		ID:       id,
		FullName: "Sari Wulandari",
		Phone:    "+628123456789",
		Location: "Bandung",
	}).Error)
}

func (f fixture) analyze(t *testing.T, userID snowflake.ID, recs ...inference.Recommendation) {
	t.Helper()
	f.llm.result = inference.Result{Model: "test-model", Recommendations: recs}
	_, err := f.intel.Analyze(context.Background(), inference.UsageEvent{
		UserID:   userID,
		ItemName: "Rice",
		Category: "Grains",
		Quantity: 2,
		Unit:     ptr("kg"),
	})
	require.NoError(t, err)
}

func countPickups(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&domain.Request{}).Count(&n).Error)
	return n
}

func TestCreateOnEmptyLedgerFails(t *testing.T) {
	f := setup(t)
	f.seedProfile(t, 1)

	_, err := f.svc.Create(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrNoReusableWaste)
	assert.Zero(t, countPickups(t, f.db))
	assert.Zero(t, f.syncer.calls)
}

func TestRiceUsageToPickup(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	user := snowflake.ID(2)
	f.seedProfile(t, user)

	f.analyze(t, user,
		inference.Recommendation{Name: "Rice husk", QuantityValue: 1, QuantityUnit: ptr("kg"), Action: inference.ActionNew},
	)
	f.analyze(t, user,
		inference.Recommendation{Name: "rice husk", QuantityValue: 0.5, QuantityUnit: ptr("kg"), Action: inference.ActionAdd},
	)

	f.clock.Advance(time.Hour)
	req, err := f.svc.Create(ctx, user)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, req.Status)
	assert.Equal(t, 1, req.TotalItems)
	assert.InDelta(t, 1.5, req.TotalQuantity, 1e-9)
	assert.InDelta(t, 1500, req.TotalWeightGrams, 1e-9)
	assert.Equal(t, int64(12), req.RewardPoints)
	assert.Equal(t, "Sari Wulandari", req.ContactName)
	assert.Equal(t, "Bandung", req.ContactLocation)
	require.Len(t, req.WasteSnapshot, 1)
	assert.Equal(t, "Rice husk", req.WasteSnapshot[0].Name)
	assert.Nil(t, req.CompletedAt)

	ledger, err := f.intel.ListLedger(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, ledger)

	var profile profiledomain.UserProfile
	require.NoError(t, f.db.First(&profile, "id = ?", user).Error)
	assert.Equal(t, int64(12), profile.RewardPoints)
	require.NotNil(t, profile.LedgerChangedAt)
	assert.True(t, profile.LedgerChangedAt.Equal(f.clock.Now()))
	assert.Equal(t, 1, f.syncer.calls)

	// The ledger is now empty, so a second pickup fails without side effects.
	_, err = f.svc.Create(ctx, user)
	require.ErrorIs(t, err, domain.ErrNoReusableWaste)
	assert.Equal(t, int64(1), countPickups(t, f.db))
}

func TestCreateAwardsMinimumPoints(t *testing.T) {
	f := setup(t)
	f.seedProfile(t, 3)
	f.analyze(t, 3, inference.Recommendation{Name: "Peels", QuantityValue: 300, QuantityUnit: ptr("g"), Action: inference.ActionNew})

	req, err := f.svc.Create(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), req.RewardPoints)
}

func TestCreateRequiresProfile(t *testing.T) {
	f := setup(t)
	f.analyze(t, 4, inference.Recommendation{Name: "Peels", QuantityValue: 300, QuantityUnit: ptr("g"), Action: inference.ActionNew})

	_, err := f.svc.Create(context.Background(), 4)
	require.ErrorIs(t, err, profiledomain.ErrNotFound)
	assert.Zero(t, countPickups(t, f.db))

	ledger, err := f.intel.ListLedger(context.Background(), 4)
	require.NoError(t, err)
	assert.Len(t, ledger, 1)
}

func createPickup(t *testing.T, f fixture, user snowflake.ID) *domain.Request {
	t.Helper()
	f.analyze(t, user, inference.Recommendation{Name: "Husk", QuantityValue: 1, QuantityUnit: ptr("kg"), Action: inference.ActionNew})
	req, err := f.svc.Create(context.Background(), user)
	require.NoError(t, err)
	return req
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.seedProfile(t, 5)
	req := createPickup(t, f, 5)

	admin := authorization.Actor{UserID: 99, Role: authorization.RoleAdmin}
	user := authorization.Actor{UserID: 5, Role: authorization.RoleUser}

	_, err := f.svc.UpdateStatus(ctx, user, req.ID, "completed")
	require.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = f.svc.UpdateStatus(ctx, admin, req.ID, "collected")
	require.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = f.svc.UpdateStatus(ctx, admin, snowflake.ID(12345), "scheduled")
	require.ErrorIs(t, err, domain.ErrNotFound)

	scheduled, err := f.svc.UpdateStatus(ctx, admin, req.ID, "Scheduled")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusScheduled, scheduled.Status)
	assert.Nil(t, scheduled.CompletedAt)

	f.clock.Advance(24 * time.Hour)
	completed, err := f.svc.UpdateStatus(ctx, admin, req.ID, "completed")
	require.NoError(t, err)
	require.NotNil(t, completed.CompletedAt)
	assert.True(t, completed.CompletedAt.Equal(f.clock.Now()))
	require.NotNil(t, completed.AdminID)
	assert.Equal(t, admin.UserID, *completed.AdminID)

	_, err = f.svc.UpdateStatus(ctx, admin, req.ID, "cancelled")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	var stored domain.Request
	require.NoError(t, f.db.First(&stored, "id = ?", req.ID).Error)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.Equal(t, req.WasteSnapshot, stored.WasteSnapshot)
	assert.Equal(t, req.RewardPoints, stored.RewardPoints)
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, domain.StatusPending.CanTransitionTo(domain.StatusCompleted))
	assert.True(t, domain.StatusScheduled.CanTransitionTo(domain.StatusCancelled))
	assert.False(t, domain.StatusScheduled.CanTransitionTo(domain.StatusPending))
	assert.False(t, domain.StatusCancelled.CanTransitionTo(domain.StatusScheduled))
	assert.True(t, domain.StatusCompleted.Terminal())
	assert.False(t, domain.StatusPending.Terminal())
}

func TestListPickups(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.seedProfile(t, 6)
	f.seedProfile(t, 7)

	var mine []*domain.Request
	for i := 0; i < 3; i++ {
		mine = append(mine, createPickup(t, f, 6))
		f.clock.Advance(time.Minute)
	}
	createPickup(t, f, 7)

	admin := authorization.Actor{UserID: 99, Role: authorization.RoleAdmin}
	_, err := f.svc.UpdateStatus(ctx, admin, mine[0].ID, "cancelled")
	require.NoError(t, err)

	page, err := f.svc.ListForUser(ctx, 6, domain.ListRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.True(t, page.PageInfo.HasMore)
	assert.Equal(t, mine[2].ID, page.Data[0].ID)
	assert.Equal(t, mine[1].ID, page.Data[1].ID)

	next, err := f.svc.ListForUser(ctx, 6, domain.ListRequest{Pagination: pagination.Pagination{PageSize: 2, PageToken: page.PageInfo.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, next.Data, 1)
	assert.False(t, next.PageInfo.HasMore)
	assert.Equal(t, mine[0].ID, next.Data[0].ID)

	_, err = f.svc.ListAll(ctx, authorization.Actor{UserID: 6}, domain.ListRequest{})
	require.ErrorIs(t, err, authorization.ErrForbidden)

	all, err := f.svc.ListAll(ctx, admin, domain.ListRequest{})
	require.NoError(t, err)
	assert.Len(t, all.Data, 4)

	cancelled, err := f.svc.ListAll(ctx, admin, domain.ListRequest{Status: "cancelled"})
	require.NoError(t, err)
	require.Len(t, cancelled.Data, 1)
	assert.Equal(t, mine[0].ID, cancelled.Data[0].ID)

	_, err = f.svc.ListAll(ctx, admin, domain.ListRequest{Status: "lost"})
	require.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestSlipAccess(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.seedProfile(t, 8)
	req := createPickup(t, f, 8)

	r, err := f.svc.Slip(ctx, authorization.Actor{UserID: 8}, req.ID)
	require.NoError(t, err)
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(body[:4]))

	_, err = f.svc.Slip(ctx, authorization.Actor{UserID: 9}, req.ID)
	require.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = f.svc.Slip(ctx, authorization.Actor{UserID: 99, Role: authorization.RoleAdmin}, req.ID)
	require.NoError(t, err)

	_, err = f.svc.Slip(ctx, authorization.Actor{UserID: 8}, snowflake.ID(777))
	require.ErrorIs(t, err, domain.ErrNotFound)
}
