package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/wasteloop/internal/profile/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.UserProfile{}))
	return db
}

func TestCreditRewardPointsAccumulates(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	r := Provide()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, r.Insert(ctx, db, &domain.UserProfile{ID: snowflake.ID(1), CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, r.CreditRewardPoints(ctx, db, snowflake.ID(1), 5, now))
	require.NoError(t, r.CreditRewardPoints(ctx, db, snowflake.ID(1), 80, now))

	profile, err := r.FindByIDForUpdate(ctx, db, snowflake.ID(1))
	require.NoError(t, err)
	require.Equal(t, int64(85), profile.RewardPoints)

	require.ErrorIs(t, r.CreditRewardPoints(ctx, db, snowflake.ID(2), 5, now), domain.ErrNotFound)
}

func TestListPendingSync(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	r := Provide()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	earlier := now.Add(-time.Hour)

	profiles := []*domain.UserProfile{
		{ID: 1, Phone: "+6281", AgrisenseEnabled: true, LedgerChangedAt: &now},
		{ID: 2, Phone: "+6282", AgrisenseEnabled: true, LedgerChangedAt: &earlier, AgrisenseLastSyncedAt: &now},
		{ID: 3, Phone: "", AgrisenseEnabled: true, LedgerChangedAt: &now},
		{ID: 4, Phone: "+6284", AgrisenseEnabled: false, LedgerChangedAt: &now},
		{ID: 5, Phone: "+6285", AgrisenseEnabled: true, LedgerChangedAt: &now, AgrisenseLastSyncedAt: &earlier},
	}
	for _, p := range profiles {
		p.CreatedAt, p.UpdatedAt = now, now
		require.NoError(t, r.Insert(ctx, db, p))
	}

	pending, err := r.ListPendingSync(ctx, db, now, 10)
	require.NoError(t, err)

	ids := make([]snowflake.ID, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}
	require.ElementsMatch(t, []snowflake.ID{1, 5}, ids)

	require.NoError(t, r.MarkSynced(ctx, db, snowflake.ID(1), now.Add(time.Minute)))
	pending, err = r.ListPendingSync(ctx, db, now, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestDeferSyncHidesProfileUntilNextAttempt(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	r := Provide()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, r.Insert(ctx, db, &domain.UserProfile{
		ID: 1, Phone: "+6281", AgrisenseEnabled: true, LedgerChangedAt: &now, CreatedAt: now, UpdatedAt: now,
	}))

	require.NoError(t, r.DeferSync(ctx, db, 1, now.Add(time.Minute)))
	pending, err := r.ListPendingSync(ctx, db, now, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	pending, err = r.ListPendingSync(ctx, db, now.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 1, pending[0].AgrisenseSyncFailures)

	require.NoError(t, r.MarkSynced(ctx, db, 1, now.Add(3*time.Minute)))
	profile, err := r.FindByID(ctx, db, 1)
	require.NoError(t, err)
	require.Zero(t, profile.AgrisenseSyncFailures)
	require.Nil(t, profile.AgrisenseNextAttemptAt)
}

func TestSetAgrisense(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	r := Provide()
	now := time.Now().UTC()

	require.NoError(t, r.Insert(ctx, db, &domain.UserProfile{ID: 7, Phone: "+62", CreatedAt: now, UpdatedAt: now}))

	farmer := "farmer-7"
	require.NoError(t, r.SetAgrisense(ctx, db, 7, true, &farmer, now))

	profile, err := r.FindByID(ctx, db, 7)
	require.NoError(t, err)
	require.True(t, profile.SyncActive())
	require.Equal(t, "farmer-7", *profile.AgrisenseFarmerID)

	require.ErrorIs(t, r.SetAgrisense(ctx, db, 99, true, nil, now), domain.ErrNotFound)
}

func TestBudgetContext(t *testing.T) {
	amount := 1500000.0
	p := &domain.UserProfile{BudgetAmount: &amount, BudgetPeriod: "week"}
	require.Equal(t, "1500000 per week", p.BudgetContext())
	require.Empty(t, (&domain.UserProfile{}).BudgetContext())
}
