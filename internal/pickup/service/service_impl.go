package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wasteloop/internal/authorization"
	"github.com/smallbiznis/wasteloop/internal/clock"
	obslogger "github.com/smallbiznis/wasteloop/internal/observability/logger"
	"github.com/smallbiznis/wasteloop/internal/observability/metrics"
	"github.com/smallbiznis/wasteloop/internal/pickup/domain"
	profiledomain "github.com/smallbiznis/wasteloop/internal/profile/domain"
	"github.com/smallbiznis/wasteloop/internal/providers/pdf"
	"github.com/smallbiznis/wasteloop/internal/userlock"
	"github.com/smallbiznis/wasteloop/internal/valuation"
	ledgerdomain "github.com/smallbiznis/wasteloop/internal/wasteledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const pickupCreated = "created"

var errLedgerChanged = errors.New("ledger changed during pickup creation")

// Syncer mirrors a user's ledger to the partner without failing the caller.
type Syncer interface {
	SyncBestEffort(ctx context.Context, userID snowflake.ID)
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Locker      userlock.Locker
	Repo        domain.Repository
	LedgerRepo  ledgerdomain.Repository
	ProfileRepo profiledomain.Repository
	Calculator  *valuation.Calculator
	Authz       authorization.Service
	PDF         pdf.Provider
	Syncer      Syncer           `optional:"true"`
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	locker      userlock.Locker
	repo        domain.Repository
	ledgerRepo  ledgerdomain.Repository
	profileRepo profiledomain.Repository
	calculator  *valuation.Calculator
	authz       authorization.Service
	pdf         pdf.Provider
	syncer      Syncer
	metrics     *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("pickup.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		locker:      p.Locker,
		repo:        p.Repo,
		ledgerRepo:  p.LedgerRepo,
		profileRepo: p.ProfileRepo,
		calculator:  p.Calculator,
		authz:       p.Authz,
		pdf:         p.PDF,
		syncer:      p.Syncer,
		metrics:     p.Metrics,
	}
}

// Create snapshots the ledger into a pending pickup, clears the snapshotted
// entries and credits the reward in one transaction.
func (s *Service) Create(ctx context.Context, userID snowflake.ID) (*domain.Request, error) {
	if userID == 0 {
		return nil, profiledomain.ErrInvalidUserID
	}

	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var created *domain.Request
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := s.profileRepo.FindByIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if profile == nil {
			return profiledomain.ErrNotFound
		}

		entries, err := s.ledgerRepo.ListByOwner(ctx, tx, userID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return domain.ErrNoReusableWaste
		}

		now := s.clock.Now()
		req := s.buildRequest(userID, profile, entries, now)
		if err := s.repo.Insert(ctx, tx, req); err != nil {
			return err
		}

		ids := make([]snowflake.ID, 0, len(entries))
		for _, entry := range entries {
			ids = append(ids, entry.ID)
		}
		deleted, err := s.ledgerRepo.DeleteByIDs(ctx, tx, userID, ids)
		if err != nil {
			return err
		}
		if deleted != int64(len(ids)) {
			return errLedgerChanged
		}

		if err := s.profileRepo.CreditRewardPoints(ctx, tx, userID, req.RewardPoints, now); err != nil {
			return err
		}
		if err := s.profileRepo.TouchLedger(ctx, tx, userID, now); err != nil {
			return err
		}

		created = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPickup(ctx, pickupCreated, created.RewardPoints)
	obslogger.WithUser(obslogger.WithContext(ctx, s.log), userID.String()).Info("pickup requested",
		zap.String("pickup_id", created.ID.String()),
		zap.Int("items", created.TotalItems),
		zap.Float64("weight_grams", created.TotalWeightGrams),
		zap.Int64("reward_points", created.RewardPoints),
	)

	if s.syncer != nil {
		s.syncer.SyncBestEffort(ctx, userID)
	}
	return created, nil
}

func (s *Service) buildRequest(userID snowflake.ID, profile *profiledomain.UserProfile, entries []*ledgerdomain.Entry, now time.Time) *domain.Request {
	snapshot := make([]domain.SnapshotItem, 0, len(entries))
	var totalQuantity, totalGrams float64
	for _, entry := range entries {
		grams := s.calculator.GramsOf(entry.QuantityValue, entry.QuantityUnit)
		totalQuantity += entry.QuantityValue
		totalGrams += grams
		snapshot = append(snapshot, domain.SnapshotItem{
			EntryID:        entry.ID,
			Name:           entry.MaterialName,
			QuantityValue:  entry.QuantityValue,
			QuantityUnit:   entry.QuantityUnit,
			WeightGrams:    grams,
			SourceItemName: entry.SourceItemName,
			SourceCategory: entry.SourceCategory,
		})
	}

	return &domain.Request{
		ID:               s.genID.Generate(),
		UserID:           userID,
		Status:           domain.StatusPending,
		TotalItems:       len(entries),
		TotalQuantity:    totalQuantity,
		TotalWeightGrams: totalGrams,
		RewardPoints:     s.calculator.RewardPoints(totalGrams),
		WasteSnapshot:    snapshot,
		ContactName:      strings.TrimSpace(profile.FullName),
		ContactPhone:     strings.TrimSpace(profile.Phone),
		ContactLocation:  strings.TrimSpace(profile.Location),
		RequestedAt:      now,
		UpdatedAt:        now,
	}
}

func (s *Service) ListForUser(ctx context.Context, userID snowflake.ID, req domain.ListRequest) (domain.ListResponse, error) {
	if userID == 0 {
		return domain.ListResponse{}, profiledomain.ErrInvalidUserID
	}
	return s.list(ctx, domain.ListFilter{UserID: &userID}, req)
}

func (s *Service) ListAll(ctx context.Context, actor authorization.Actor, req domain.ListRequest) (domain.ListResponse, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectPickup, authorization.ActionPickupListAll); err != nil {
		return domain.ListResponse{}, err
	}
	return s.list(ctx, domain.ListFilter{}, req)
}

func (s *Service) list(ctx context.Context, filter domain.ListFilter, req domain.ListRequest) (domain.ListResponse, error) {
	if raw := strings.TrimSpace(req.Status); raw != "" {
		status, err := domain.ParseStatus(raw)
		if err != nil {
			return domain.ListResponse{}, err
		}
		filter.Status = &status
	}

	items, info, err := s.repo.List(ctx, s.db, filter, req.Pagination)
	if err != nil {
		return domain.ListResponse{}, err
	}
	if items == nil {
		items = []*domain.Request{}
	}
	return domain.ListResponse{Data: items, PageInfo: info}, nil
}

// UpdateStatus is admin-only. The snapshot and totals are never touched.
func (s *Service) UpdateStatus(ctx context.Context, actor authorization.Actor, id snowflake.ID, raw string) (*domain.Request, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectPickup, authorization.ActionPickupUpdateStatus); err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, domain.ErrInvalidID
	}
	next, err := domain.ParseStatus(raw)
	if err != nil {
		return nil, err
	}

	var updated *domain.Request
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if req == nil {
			return domain.ErrNotFound
		}
		if !req.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, req.Status, next)
		}

		now := s.clock.Now()
		adminID := actor.UserID
		req.Status = next
		req.AdminID = &adminID
		req.UpdatedAt = now
		if next == domain.StatusCompleted {
			req.CompletedAt = &now
		}
		if err := s.repo.UpdateStatus(ctx, tx, req); err != nil {
			return err
		}
		updated = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPickup(ctx, string(next), 0)
	obslogger.WithContext(ctx, s.log).Info("pickup status updated",
		zap.String("pickup_id", id.String()),
		zap.String("status", string(next)),
		zap.String("admin_id", actor.UserID.String()),
	)
	return updated, nil
}

func (s *Service) Slip(ctx context.Context, actor authorization.Actor, id snowflake.ID) (io.Reader, error) {
	if actor.UserID == 0 {
		return nil, authorization.ErrInvalidActor
	}
	if id == 0 {
		return nil, domain.ErrInvalidID
	}
	req, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, domain.ErrNotFound
	}
	if req.UserID != actor.UserID {
		if err := s.authz.Authorize(ctx, actor, authorization.ObjectPickup, authorization.ActionPickupViewSlip); err != nil {
			return nil, err
		}
	}
	return s.pdf.GeneratePickupSlip(ctx, slipData(req))
}

func slipData(req *domain.Request) pdf.SlipData {
	data := pdf.SlipData{
		PickupID:     req.ID.String(),
		Status:       string(req.Status),
		RequestedAt:  req.RequestedAt.UTC().Format("2006-01-02 15:04 MST"),
		ContactName:  req.ContactName,
		ContactPhone: req.ContactPhone,
		Location:     req.ContactLocation,
		TotalItems:   req.TotalItems,
		TotalWeight:  formatNumber(req.TotalWeightGrams),
		RewardPoints: req.RewardPoints,
	}
	if req.CompletedAt != nil {
		data.CompletedAt = req.CompletedAt.UTC().Format("2006-01-02 15:04 MST")
	}
	for _, item := range req.WasteSnapshot {
		quantity := formatNumber(item.QuantityValue)
		if item.QuantityUnit != nil && strings.TrimSpace(*item.QuantityUnit) != "" {
			quantity += " " + strings.TrimSpace(*item.QuantityUnit)
		}
		data.Items = append(data.Items, pdf.SlipItem{
			Name:     item.Name,
			Category: item.SourceCategory,
			Quantity: quantity,
			Weight:   formatNumber(item.WeightGrams),
		})
	}
	return data
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
