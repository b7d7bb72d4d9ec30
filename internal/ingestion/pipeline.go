package ingestion

import (
	"context"

	"github.com/smallbiznis/wasteloop/internal/inference"
	ledgerdomain "github.com/smallbiznis/wasteloop/internal/wasteledger/domain"
	"github.com/smallbiznis/wasteloop/internal/wasteintel"
	"gorm.io/gorm"
)

// Pipeline processes one usage event. onCommit runs inside the ledger
// transaction.
type Pipeline interface {
	ProcessUsage(ctx context.Context, event inference.UsageEvent, onCommit func(tx *gorm.DB) error) (ledgerdomain.ReconcileResult, error)
}

var _ Pipeline = (*wasteintel.Service)(nil)
