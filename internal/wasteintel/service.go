package wasteintel

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wasteloop/internal/inference"
	obslogger "github.com/smallbiznis/wasteloop/internal/observability/logger"
	"github.com/smallbiznis/wasteloop/internal/observability/metrics"
	profiledomain "github.com/smallbiznis/wasteloop/internal/profile/domain"
	"github.com/smallbiznis/wasteloop/internal/userlock"
	"github.com/smallbiznis/wasteloop/internal/valuation"
	ledgerdomain "github.com/smallbiznis/wasteloop/internal/wasteledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidItemName = errors.New("invalid_item_name")
	ErrInvalidQuantity = errors.New("invalid_quantity")
)

const (
	SourceAnalyze   = "analyze"
	SourceIngestion = "ingestion"

	outcomeSuccess       = "success"
	outcomeNotConfigured = "not_configured"
	outcomeParseError    = "parse_error"
	outcomeError         = "error"
)

// Syncer mirrors a user's ledger to the partner without failing the caller.
type Syncer interface {
	SyncBestEffort(ctx context.Context, userID snowflake.ID)
}

// Estimations is the valuation view of a user's current ledger.
type Estimations struct {
	valuation.Summary
	Community valuation.Comparison `json:"community"`
	Ledger    []*ledgerdomain.Entry `json:"ledger"`
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Locker      userlock.Locker
	Inference   inference.Client
	Ledger      ledgerdomain.Service
	ProfileRepo profiledomain.Repository
	Calculator  *valuation.Calculator
	Syncer      Syncer           `optional:"true"`
	Metrics     *metrics.Metrics `optional:"true"`
}

// Service runs the usage pipeline: inference, reconciliation and partner sync.
type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	locker      userlock.Locker
	inference   inference.Client
	ledger      ledgerdomain.Service
	profileRepo profiledomain.Repository
	calculator  *valuation.Calculator
	syncer      Syncer
	metrics     *metrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("wasteintel.service"),
		locker:      p.Locker,
		inference:   p.Inference,
		ledger:      p.Ledger,
		profileRepo: p.ProfileRepo,
		calculator:  p.Calculator,
		syncer:      p.Syncer,
		metrics:     p.Metrics,
	}
}

// Analyze runs the pipeline synchronously and surfaces inference failures.
func (s *Service) Analyze(ctx context.Context, event inference.UsageEvent) (ledgerdomain.ReconcileResult, error) {
	return s.run(ctx, SourceAnalyze, event, nil)
}

// ProcessUsage runs the pipeline for a queued event. onCommit executes in the
// reconciliation transaction, after the ledger writes.
func (s *Service) ProcessUsage(ctx context.Context, event inference.UsageEvent, onCommit func(tx *gorm.DB) error) (ledgerdomain.ReconcileResult, error) {
	return s.run(ctx, SourceIngestion, event, onCommit)
}

func (s *Service) ListLedger(ctx context.Context, userID snowflake.ID) ([]*ledgerdomain.Entry, error) {
	if userID == 0 {
		return nil, profiledomain.ErrInvalidUserID
	}
	return s.ledger.List(ctx, userID)
}

func (s *Service) Estimations(ctx context.Context, userID snowflake.ID) (Estimations, error) {
	entries, err := s.ListLedger(ctx, userID)
	if err != nil {
		return Estimations{}, err
	}

	items := make([]valuation.Item, 0, len(entries))
	for _, entry := range entries {
		items = append(items, valuation.Item{
			Name:     entry.MaterialName,
			Category: entry.SourceCategory,
			Quantity: entry.QuantityValue,
			Unit:     entry.QuantityUnit,
		})
	}

	summary := s.calculator.Summarize(items)
	return Estimations{
		Summary:   summary,
		Community: s.calculator.Community(summary.MonthlyGrams),
		Ledger:    entries,
	}, nil
}

func (s *Service) run(ctx context.Context, source string, event inference.UsageEvent, onCommit func(tx *gorm.DB) error) (ledgerdomain.ReconcileResult, error) {
	if err := validateEvent(event); err != nil {
		return ledgerdomain.ReconcileResult{}, err
	}
	log := obslogger.WithUser(obslogger.WithContext(ctx, s.log), event.UserID.String()).
		With(zap.String("source", source))

	unlock, err := s.locker.Lock(ctx, event.UserID)
	if err != nil {
		return ledgerdomain.ReconcileResult{}, err
	}
	defer unlock()

	req, err := s.buildRequest(ctx, event)
	if err != nil {
		return ledgerdomain.ReconcileResult{}, err
	}

	inferred, err := s.inference.Infer(ctx, req)
	if err != nil {
		s.metrics.RecordAnalysis(ctx, source, analysisOutcome(err), 0)
		log.Warn("waste inference failed", zap.Error(err))
		return ledgerdomain.ReconcileResult{}, err
	}

	recs := make([]ledgerdomain.Recommendation, 0, len(inferred.Recommendations))
	for _, rec := range inferred.Recommendations {
		recs = append(recs, ledgerdomain.Recommendation{
			Name:          rec.Name,
			QuantityValue: rec.QuantityValue,
			QuantityUnit:  rec.QuantityUnit,
			Action:        rec.Action,
		})
	}
	prov := ledgerdomain.Provenance{
		SourceItemName: strings.TrimSpace(event.ItemName),
		SourceCategory: strings.TrimSpace(event.Category),
		SourceQuantity: event.Quantity,
		SourceUnit:     event.Unit,
		Model:          inferred.Model,
	}

	var result ledgerdomain.ReconcileResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.ledger.ReconcileWithTx(ctx, tx, event.UserID, recs, prov)
		if err != nil {
			return err
		}
		if onCommit != nil {
			return onCommit(tx)
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordAnalysis(ctx, source, outcomeError, 0)
		return ledgerdomain.ReconcileResult{}, err
	}

	s.metrics.RecordAnalysis(ctx, source, outcomeSuccess, len(result.Applied))
	log.Info("usage event analyzed",
		zap.String("model", inferred.Model),
		zap.Int("recommendations", len(result.Applied)),
		zap.Int("ledger_size", len(result.Ledger)),
	)

	if len(result.Applied) > 0 && s.syncer != nil {
		s.syncer.SyncBestEffort(ctx, event.UserID)
	}
	return result, nil
}

// buildRequest reads the ledger under the user lock so the prompt sees the
// same state the merge will.
func (s *Service) buildRequest(ctx context.Context, event inference.UsageEvent) (inference.Request, error) {
	entries, err := s.ledger.List(ctx, event.UserID)
	if err != nil {
		return inference.Request{}, err
	}
	ledger := make([]inference.LedgerItem, 0, len(entries))
	for _, entry := range entries {
		ledger = append(ledger, inference.LedgerItem{
			Name:     entry.MaterialName,
			Quantity: entry.QuantityValue,
			Unit:     entry.QuantityUnit,
		})
	}

	var budget string
	profile, err := s.profileRepo.FindByID(ctx, s.db, event.UserID)
	if err != nil {
		return inference.Request{}, err
	}
	if profile != nil {
		budget = profile.BudgetContext()
	}

	event.ItemName = strings.TrimSpace(event.ItemName)
	event.Category = strings.TrimSpace(event.Category)
	return inference.Request{
		Event:         event,
		Ledger:        ledger,
		BudgetContext: budget,
	}, nil
}

func validateEvent(event inference.UsageEvent) error {
	if event.UserID == 0 {
		return profiledomain.ErrInvalidUserID
	}
	if strings.TrimSpace(event.ItemName) == "" {
		return ErrInvalidItemName
	}
	if event.Quantity < 0 {
		return ErrInvalidQuantity
	}
	return nil
}

func analysisOutcome(err error) string {
	switch {
	case inference.IsConfigurationError(err):
		return outcomeNotConfigured
	case errors.Is(err, inference.ErrParse):
		return outcomeParseError
	default:
		return outcomeError
	}
}
