package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wasteloop/internal/clock"
	"github.com/smallbiznis/wasteloop/internal/config"
	"github.com/smallbiznis/wasteloop/internal/observability/metrics"
	profiledomain "github.com/smallbiznis/wasteloop/internal/profile/domain"
	"github.com/smallbiznis/wasteloop/internal/valuation"
	"github.com/smallbiznis/wasteloop/internal/wasteledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	ProfileRepo profiledomain.Repository
	Calculator  *valuation.Calculator
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	profileRepo profiledomain.Repository
	calculator  *valuation.Calculator
	metrics     *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("wasteledger.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		profileRepo: p.ProfileRepo,
		calculator:  p.Calculator,
		metrics:     p.Metrics,
	}
}

func (s *Service) List(ctx context.Context, ownerID snowflake.ID) ([]*domain.Entry, error) {
	if ownerID == 0 {
		return nil, domain.ErrInvalidOwner
	}
	return s.repo.ListByOwner(ctx, s.db, ownerID)
}

func (s *Service) Reconcile(ctx context.Context, ownerID snowflake.ID, recs []domain.Recommendation, prov domain.Provenance) (domain.ReconcileResult, error) {
	var result domain.ReconcileResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.ReconcileWithTx(ctx, tx, ownerID, recs, prov)
		return err
	})
	if err != nil {
		return domain.ReconcileResult{}, err
	}
	return result, nil
}

func (s *Service) ReconcileWithTx(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID, recs []domain.Recommendation, prov domain.Provenance) (domain.ReconcileResult, error) {
	if ownerID == 0 {
		return domain.ReconcileResult{}, domain.ErrInvalidOwner
	}

	snapshot, err := s.repo.ListByOwner(ctx, tx, ownerID)
	if err != nil {
		return domain.ReconcileResult{}, err
	}
	existing := make(map[string]*domain.Entry, len(snapshot))
	for _, entry := range snapshot {
		existing[entry.NormalizedName] = entry
	}

	tables := s.calculator.Config()
	merged := mergeBatch(tables, recs)
	if len(merged) == 0 {
		return domain.ReconcileResult{Applied: []domain.AppliedChange{}, Ledger: snapshot}, nil
	}

	now := s.clock.Now()
	applied := make([]domain.AppliedChange, 0, len(merged))
	var inserted, incremented int

	for _, rec := range merged {
		key := domain.Normalize(rec.Name)
		amount := rec.QuantityValue
		unit := rec.QuantityUnit
		action := domain.ActionNew

		if current, ok := existing[key]; ok {
			action = domain.ActionAdd
			if converted, ok := convertForIncrement(tables, amount, unit, current.QuantityUnit); ok {
				amount = converted
			}
			unit = current.QuantityUnit
			incremented++
		} else {
			inserted++
		}

		entry := &domain.Entry{
			ID:                 s.genID.Generate(),
			OwnerID:            ownerID,
			MaterialName:       strings.TrimSpace(rec.Name),
			NormalizedName:     key,
			QuantityValue:      amount,
			QuantityUnit:       unit,
			SourceItemName:     strings.TrimSpace(prov.SourceItemName),
			SourceCategory:     strings.TrimSpace(prov.SourceCategory),
			LastSourceQuantity: prov.SourceQuantity,
			Metadata: datatypes.NewJSONType(domain.EntryMetadata{
				LastAction: action,
				Model:      prov.Model,
				SourceUnit: prov.SourceUnit,
			}),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Upsert(ctx, tx, entry); err != nil {
			return domain.ReconcileResult{}, err
		}

		applied = append(applied, domain.AppliedChange{
			Name:          entry.MaterialName,
			QuantityValue: amount,
			QuantityUnit:  unit,
			Action:        action,
		})
	}

	if err := s.profileRepo.TouchLedger(ctx, tx, ownerID, now); err != nil {
		return domain.ReconcileResult{}, err
	}

	ledger, err := s.repo.ListByOwner(ctx, tx, ownerID)
	if err != nil {
		return domain.ReconcileResult{}, err
	}

	s.metrics.RecordReconciliation(ctx, domain.ActionNew, inserted)
	s.metrics.RecordReconciliation(ctx, domain.ActionAdd, incremented)
	s.log.Debug("ledger reconciled",
		zap.String("owner_id", ownerID.String()),
		zap.Int("inserted", inserted),
		zap.Int("incremented", incremented),
	)

	return domain.ReconcileResult{Applied: applied, Ledger: ledger}, nil
}

// mergeBatch folds recommendations sharing a match key into one, keeping the
// first occurrence's name and unit. Invalid items are dropped.
func mergeBatch(tables config.WasteConfig, recs []domain.Recommendation) []domain.Recommendation {
	out := make([]domain.Recommendation, 0, len(recs))
	index := make(map[string]int, len(recs))
	for _, rec := range recs {
		key := domain.Normalize(rec.Name)
		if key == "" || rec.QuantityValue < 0 {
			continue
		}
		if i, ok := index[key]; ok {
			amount := rec.QuantityValue
			if converted, ok := convertForIncrement(tables, amount, rec.QuantityUnit, out[i].QuantityUnit); ok {
				amount = converted
			}
			out[i].QuantityValue += amount
			continue
		}
		index[key] = len(out)
		out = append(out, rec)
	}
	return out
}

// convertForIncrement converts only when both units are recognized and differ.
func convertForIncrement(tables config.WasteConfig, amount float64, from, to *string) (float64, bool) {
	if sameUnit(from, to) {
		return amount, false
	}
	return valuation.ConvertUnits(tables, amount, from, to)
}

func sameUnit(a, b *string) bool {
	normalize := func(u *string) string {
		if u == nil {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(*u))
	}
	return normalize(a) == normalize(b)
}
