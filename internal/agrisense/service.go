package agrisense

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/wasteloop/internal/cache"
	"github.com/smallbiznis/wasteloop/internal/clock"
	"github.com/smallbiznis/wasteloop/internal/config"
	obslogger "github.com/smallbiznis/wasteloop/internal/observability/logger"
	"github.com/smallbiznis/wasteloop/internal/observability/metrics"
	profiledomain "github.com/smallbiznis/wasteloop/internal/profile/domain"
	ledgerdomain "github.com/smallbiznis/wasteloop/internal/wasteledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opEnable       = "enable"
	opReplaceList  = "replace_list"
	opFetchPackage = "fetch_package"

	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

type Status struct {
	Enabled      bool       `json:"enabled"`
	FarmerID     *string    `json:"farmerId"`
	LastSyncedAt *time.Time `json:"lastSyncedAt"`
	PhoneOnFile  bool       `json:"phoneOnFile"`
	Package      *Package   `json:"package"`
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Config      config.Config
	Client      PartnerClient
	ProfileRepo profiledomain.Repository
	LedgerRepo  ledgerdomain.Repository
	Metrics     *metrics.Metrics `optional:"true"`
}

// Service mirrors ledgers to the partner. Sync failures never propagate to
// the ledger pipeline; the resync job replays them.
type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	client      PartnerClient
	profileRepo profiledomain.Repository
	ledgerRepo  ledgerdomain.Repository
	metrics     *metrics.Metrics
	packages    cache.Cache[snowflake.ID, *Package]
	packageTTL  time.Duration
}

func NewService(p Params) *Service {
	ttl := p.Config.Agrisense.PackageTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("agrisense.service"),
		clock:       p.Clock,
		client:      p.Client,
		profileRepo: p.ProfileRepo,
		ledgerRepo:  p.LedgerRepo,
		metrics:     p.Metrics,
		packages:    cache.NewTTLCache[snowflake.ID, *Package](),
		packageTTL:  ttl,
	}
}

func (s *Service) Status(ctx context.Context, userID snowflake.ID) (Status, error) {
	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	status := statusOf(profile)
	if profile.SyncActive() {
		status.Package = s.fetchPackage(ctx, profile)
	}
	return status, nil
}

func (s *Service) Toggle(ctx context.Context, userID snowflake.ID, enabled *bool) (Status, error) {
	if enabled == nil {
		return Status{}, ErrInvalidEnabled
	}
	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return Status{}, err
	}

	now := s.clock.Now()
	if !*enabled {
		if err := s.profileRepo.SetAgrisense(ctx, s.db, userID, false, nil, now); err != nil {
			return Status{}, err
		}
		s.packages.Delete(userID)
		profile.AgrisenseEnabled = false
		return statusOf(profile), nil
	}

	if !profile.HasPhone() {
		return Status{}, ErrPhoneRequired
	}
	if s.client == nil || !s.client.Configured() {
		return Status{}, ErrNotConfigured
	}

	farmerID, err := s.client.Enable(ctx, strings.TrimSpace(profile.Phone))
	if err != nil {
		s.metrics.RecordPartnerSync(ctx, opEnable, outcomeFailure)
		s.log.Warn("agrisense enable failed",
			zap.String("user_id", userID.String()),
			obslogger.HashedPhone(profile.Phone),
			zap.Error(err),
		)
		return Status{}, err
	}
	s.metrics.RecordPartnerSync(ctx, opEnable, outcomeSuccess)

	if err := s.profileRepo.SetAgrisense(ctx, s.db, userID, true, &farmerID, now); err != nil {
		return Status{}, err
	}
	profile.AgrisenseEnabled = true
	profile.AgrisenseFarmerID = &farmerID

	if syncedAt, err := s.sync(ctx, profile); err == nil {
		profile.AgrisenseLastSyncedAt = &syncedAt
	}
	return statusOf(profile), nil
}

// SyncUser pushes the user's full ledger. Inactive users are a no-op.
func (s *Service) SyncUser(ctx context.Context, userID snowflake.ID) error {
	profile, err := s.profileRepo.FindByID(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if profile == nil || !profile.SyncActive() {
		return nil
	}
	_, err = s.sync(ctx, profile)
	return err
}

// SyncBestEffort runs SyncUser and only logs failures.
func (s *Service) SyncBestEffort(ctx context.Context, userID snowflake.ID) {
	if err := s.SyncUser(ctx, userID); err != nil {
		level := s.log.Warn
		if errors.Is(err, ErrNotConfigured) {
			level = s.log.Debug
		}
		level("agrisense sync skipped", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

func (s *Service) sync(ctx context.Context, profile *profiledomain.UserProfile) (time.Time, error) {
	if s.client == nil || !s.client.Configured() {
		return time.Time{}, ErrNotConfigured
	}

	// Taken before reading the ledger so later changes stay newer than the sync mark.
	syncedAt := s.clock.Now()

	entries, err := s.ledgerRepo.ListByOwner(ctx, s.db, profile.ID)
	if err != nil {
		return time.Time{}, err
	}

	phone := strings.TrimSpace(profile.Phone)
	if err := s.client.ReplaceList(ctx, phone, toWasteItems(entries)); err != nil {
		s.metrics.RecordPartnerSync(ctx, opReplaceList, outcomeFailure)
		s.log.Warn("agrisense replace list failed",
			zap.String("user_id", profile.ID.String()),
			obslogger.HashedPhone(phone),
			zap.Error(err),
		)
		if errors.Is(err, ErrSync) {
			return time.Time{}, err
		}
		return time.Time{}, fmt.Errorf("%w: %v", ErrSync, err)
	}
	s.metrics.RecordPartnerSync(ctx, opReplaceList, outcomeSuccess)
	s.packages.Delete(profile.ID)

	if err := s.profileRepo.MarkSynced(ctx, s.db, profile.ID, syncedAt); err != nil {
		return time.Time{}, err
	}
	return syncedAt, nil
}

func (s *Service) fetchPackage(ctx context.Context, profile *profiledomain.UserProfile) *Package {
	if cached, ok := s.packages.Get(profile.ID); ok {
		return cached
	}
	if s.client == nil || !s.client.Configured() {
		return nil
	}
	pkg, err := s.client.FetchPackage(ctx, strings.TrimSpace(profile.Phone))
	if err != nil {
		s.metrics.RecordPartnerSync(ctx, opFetchPackage, outcomeFailure)
		s.log.Info("agrisense package unavailable",
			zap.String("user_id", profile.ID.String()),
			obslogger.HashedPhone(profile.Phone),
			zap.Error(err),
		)
		return nil
	}
	s.metrics.RecordPartnerSync(ctx, opFetchPackage, outcomeSuccess)
	s.packages.Set(profile.ID, pkg, s.packageTTL)
	return pkg
}

func (s *Service) loadProfile(ctx context.Context, userID snowflake.ID) (*profiledomain.UserProfile, error) {
	if userID == 0 {
		return nil, profiledomain.ErrInvalidUserID
	}
	profile, err := s.profileRepo.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, profiledomain.ErrNotFound
	}
	return profile, nil
}

func statusOf(profile *profiledomain.UserProfile) Status {
	return Status{
		Enabled:      profile.AgrisenseEnabled,
		FarmerID:     profile.AgrisenseFarmerID,
		LastSyncedAt: profile.AgrisenseLastSyncedAt,
		PhoneOnFile:  profile.HasPhone(),
	}
}

func toWasteItems(entries []*ledgerdomain.Entry) []WasteItem {
	items := make([]WasteItem, 0, len(entries))
	for _, entry := range entries {
		unit := ""
		if entry.QuantityUnit != nil {
			unit = strings.TrimSpace(*entry.QuantityUnit)
		}
		items = append(items, WasteItem{
			Code:     slug.Make(entry.MaterialName),
			Name:     entry.MaterialName,
			Quantity: entry.QuantityValue,
			Unit:     unit,
		})
	}
	return items
}
