package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/wasteloop/internal/clock"
	"github.com/smallbiznis/wasteloop/internal/config"
	profiledomain "github.com/smallbiznis/wasteloop/internal/profile/domain"
	profilerepo "github.com/smallbiznis/wasteloop/internal/profile/repository"
	"github.com/smallbiznis/wasteloop/internal/valuation"
	"github.com/smallbiznis/wasteloop/internal/wasteledger/domain"
	"github.com/smallbiznis/wasteloop/internal/wasteledger/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func ptr(s string) *string { return &s }

func setupService(t *testing.T) (domain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Entry{}, &profiledomain.UserProfile{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fake,
		Repo:        repository.Provide(),
		ProfileRepo: profilerepo.Provide(),
		Calculator:  valuation.NewCalculator(config.NewStaticWasteConfigHolder(config.DefaultWasteConfig())),
	})
	return svc, db, fake
}

func TestReconcileInsertsThenIncrements(t *testing.T) {
	ctx := context.Background()
	svc, _, fake := setupService(t)
	owner := snowflake.ID(42)

	res, err := svc.Reconcile(ctx, owner, []domain.Recommendation{
		{Name: "Rice husk", QuantityValue: 1, QuantityUnit: ptr("kg"), Action: domain.ActionNew},
	}, domain.Provenance{SourceItemName: "Rice", SourceCategory: "Grains", SourceQuantity: 2, Model: "test-model"})
	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, domain.ActionNew, res.Applied[0].Action)
	require.Len(t, res.Ledger, 1)
	assert.Equal(t, "rice husk", res.Ledger[0].NormalizedName)
	assert.Equal(t, "test-model", res.Ledger[0].Metadata.Data().Model)

	fake.Advance(time.Minute)

	// "new" for an existing name is treated as an increment.
	res, err = svc.Reconcile(ctx, owner, []domain.Recommendation{
		{Name: "  RICE HUSK ", QuantityValue: 0.5, QuantityUnit: ptr("kg"), Action: domain.ActionNew},
	}, domain.Provenance{SourceItemName: "Rice"})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionAdd, res.Applied[0].Action)
	require.Len(t, res.Ledger, 1)
	assert.InDelta(t, 1.5, res.Ledger[0].QuantityValue, 1e-9)
	assert.Equal(t, "Rice husk", res.Ledger[0].MaterialName)
	assert.Equal(t, domain.ActionAdd, res.Ledger[0].Metadata.Data().LastAction)
}

func TestReconcileIncrementRefreshesProvenance(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t)
	owner := snowflake.ID(43)

	_, err := svc.Reconcile(ctx, owner, []domain.Recommendation{
		{Name: "Bones", QuantityValue: 1, QuantityUnit: ptr("kg"), Action: domain.ActionNew},
	}, domain.Provenance{SourceItemName: "Chicken", SourceCategory: "Meat", SourceQuantity: 2, SourceUnit: ptr("kg")})
	require.NoError(t, err)

	res, err := svc.Reconcile(ctx, owner, []domain.Recommendation{
		{Name: "bones", QuantityValue: 0.5, QuantityUnit: ptr("kg"), Action: domain.ActionAdd},
	}, domain.Provenance{SourceItemName: "Beef ribs", SourceCategory: "Butcher", SourceQuantity: 3, SourceUnit: ptr("lb")})
	require.NoError(t, err)
	require.Len(t, res.Ledger, 1)

	entry := res.Ledger[0]
	assert.InDelta(t, 1.5, entry.QuantityValue, 1e-9)
	assert.Equal(t, "Beef ribs", entry.SourceItemName)
	assert.Equal(t, "Butcher", entry.SourceCategory)
	assert.InDelta(t, 3, entry.LastSourceQuantity, 1e-9)
	require.NotNil(t, entry.Metadata.Data().SourceUnit)
	assert.Equal(t, "lb", *entry.Metadata.Data().SourceUnit)
}

func TestReconcileMergesSameBatchDuplicates(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t)

	res, err := svc.Reconcile(ctx, snowflake.ID(1), []domain.Recommendation{
		{Name: "peels", QuantityValue: 200, QuantityUnit: ptr("g"), Action: domain.ActionNew},
		{Name: "Peels", QuantityValue: 0.3, QuantityUnit: ptr("kg"), Action: domain.ActionNew},
		{Name: "", QuantityValue: 1, Action: domain.ActionNew},
	}, domain.Provenance{})
	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
	require.Len(t, res.Ledger, 1)
	assert.InDelta(t, 500, res.Ledger[0].QuantityValue, 1e-9)
	assert.Equal(t, "g", *res.Ledger[0].QuantityUnit)
}

func TestReconcileConvertsRecognizedUnits(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t)
	owner := snowflake.ID(3)

	_, err := svc.Reconcile(ctx, owner, []domain.Recommendation{
		{Name: "coffee grounds", QuantityValue: 1, QuantityUnit: ptr("kg"), Action: domain.ActionNew},
	}, domain.Provenance{})
	require.NoError(t, err)

	res, err := svc.Reconcile(ctx, owner, []domain.Recommendation{
		{Name: "coffee grounds", QuantityValue: 250, QuantityUnit: ptr("g"), Action: domain.ActionAdd},
		{Name: "tea leaves", QuantityValue: 2, QuantityUnit: ptr("cups"), Action: domain.ActionNew},
	}, domain.Provenance{})
	require.NoError(t, err)
	require.Len(t, res.Ledger, 2)

	byName := map[string]*domain.Entry{}
	for _, e := range res.Ledger {
		byName[e.NormalizedName] = e
	}
	assert.InDelta(t, 1.25, byName["coffee grounds"].QuantityValue, 1e-9)
	assert.Equal(t, "kg", *byName["coffee grounds"].QuantityUnit)
	assert.InDelta(t, 2, byName["tea leaves"].QuantityValue, 1e-9)
}

func TestReconcileUnrecognizedUnitAddsAsIs(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t)
	owner := snowflake.ID(4)

	_, err := svc.Reconcile(ctx, owner, []domain.Recommendation{
		{Name: "bones", QuantityValue: 2, Action: domain.ActionNew},
	}, domain.Provenance{})
	require.NoError(t, err)

	res, err := svc.Reconcile(ctx, owner, []domain.Recommendation{
		{Name: "bones", QuantityValue: 3, QuantityUnit: ptr("kg"), Action: domain.ActionAdd},
	}, domain.Provenance{})
	require.NoError(t, err)
	assert.InDelta(t, 5, res.Ledger[0].QuantityValue, 1e-9)
	assert.Nil(t, res.Ledger[0].QuantityUnit)
}

func TestReconcileEmptyBatchReturnsLedger(t *testing.T) {
	svc, _, _ := setupService(t)

	res, err := svc.Reconcile(context.Background(), snowflake.ID(5), nil, domain.Provenance{})
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.Empty(t, res.Ledger)
}

func TestReconcileConcurrentWritersKeepOneEntry(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := setupService(t)
	owner := snowflake.ID(6)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reconcile(ctx, owner, []domain.Recommendation{
				{Name: "Rice Husk", QuantityValue: 1, QuantityUnit: ptr("kg"), Action: domain.ActionNew},
			}, domain.Provenance{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, db.Model(&domain.Entry{}).Where("owner_id = ? AND normalized_name = ?", owner, "rice husk").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	ledger, err := svc.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.InDelta(t, writers, ledger[0].QuantityValue, 1e-9)
}

func TestReconcileTouchesProfileLedgerTimestamp(t *testing.T) {
	ctx := context.Background()
	svc, db, fake := setupService(t)
	now := fake.Now()
	require.NoError(t, db.Create(&profiledomain.UserProfile{ID: 9, CreatedAt: now, UpdatedAt: now}).Error)

	_, err := svc.Reconcile(ctx, snowflake.ID(9), []domain.Recommendation{
		{Name: "shells", QuantityValue: 1, Action: domain.ActionNew},
	}, domain.Provenance{})
	require.NoError(t, err)

	var profile profiledomain.UserProfile
	require.NoError(t, db.First(&profile, "id = ?", 9).Error)
	require.NotNil(t, profile.LedgerChangedAt)
}

func TestReconcileRejectsMissingOwner(t *testing.T) {
	svc, _, _ := setupService(t)
	_, err := svc.Reconcile(context.Background(), 0, nil, domain.Provenance{})
	require.ErrorIs(t, err, domain.ErrInvalidOwner)
}
