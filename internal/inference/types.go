package inference

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	// ErrNotConfigured means the inference service has no API key or model.
	ErrNotConfigured = errors.New("inference_not_configured")
	// ErrUnavailable covers transport failures and timeouts.
	ErrUnavailable = errors.New("inference_service_unavailable")
	// ErrParse means the model response violated the JSON contract.
	ErrParse = errors.New("inference_parse_error")
)

const (
	ActionNew = "new"
	ActionAdd = "add"
)

// UsageEvent is a single food-usage signal from the surrounding product.
type UsageEvent struct {
	UserID   snowflake.ID `json:"userId"`
	ItemName string       `json:"itemName"`
	Category string       `json:"category"`
	Quantity float64      `json:"quantity"`
	Unit     *string      `json:"unit"`
}

// LedgerItem is the prompt view of an existing ledger entry.
type LedgerItem struct {
	Name     string
	Quantity float64
	Unit     *string
}

type Request struct {
	Event         UsageEvent
	Ledger        []LedgerItem
	BudgetContext string
}

type Recommendation struct {
	Name          string  `json:"name"`
	QuantityValue float64 `json:"quantityValue"`
	QuantityUnit  *string `json:"quantityUnit"`
	Action        string  `json:"action"`
}

type Result struct {
	Model           string
	Recommendations []Recommendation
}

// Client turns a usage event into reusable-waste recommendations.
type Client interface {
	Infer(ctx context.Context, req Request) (Result, error)
}

// IsConfigurationError reports failures that mean "cannot infer right now"
// rather than a bad answer.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrUnavailable)
}
