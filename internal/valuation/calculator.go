package valuation

import (
	"math"
	"sort"
	"strings"

	"github.com/smallbiznis/wasteloop/internal/config"
)

const UncategorizedLabel = "Uncategorized"

const (
	CommunityBelow   = "below"
	CommunityAverage = "average"
	CommunityAbove   = "above"
)

// Item is the valuation view of a ledger entry.
type Item struct {
	Name     string
	Category string
	Quantity float64
	Unit     *string
}

type CategoryTotal struct {
	Category    string  `json:"category"`
	Count       int     `json:"count"`
	WeightGrams float64 `json:"weightGrams"`
	Value       float64 `json:"value"`
}

type Summary struct {
	TotalWeightGrams float64         `json:"totalWeightGrams"`
	TotalValue       float64         `json:"totalValue"`
	DailyGrams       float64         `json:"dailyGrams"`
	WeeklyGrams      float64         `json:"weeklyGrams"`
	MonthlyGrams     float64         `json:"monthlyGrams"`
	DailyValue       float64         `json:"dailyValue"`
	WeeklyValue      float64         `json:"weeklyValue"`
	MonthlyValue     float64         `json:"monthlyValue"`
	TopCategories    []CategoryTotal `json:"topCategories"`
}

type Comparison struct {
	BaselineMonthlyGrams float64 `json:"baselineMonthlyGrams"`
	MonthlyGrams         float64 `json:"monthlyGrams"`
	Status               string  `json:"status"`
	DeltaPercent         float64 `json:"deltaPercent"`
}

// Calculator reads the current tables on every call so reloads apply without restart.
type Calculator struct {
	tables *config.WasteConfigHolder
}

func NewCalculator(tables *config.WasteConfigHolder) *Calculator {
	return &Calculator{tables: tables}
}

func (c *Calculator) Config() config.WasteConfig {
	if c == nil || c.tables == nil {
		return config.DefaultWasteConfig()
	}
	return c.tables.Get()
}

func (c *Calculator) GramsOf(value float64, unit *string) float64 {
	return GramsOf(c.Config(), value, unit)
}

func (c *Calculator) Summarize(items []Item) Summary {
	return Summarize(c.Config(), items)
}

func (c *Calculator) Community(monthlyGrams float64) Comparison {
	return Community(c.Config(), monthlyGrams)
}

func (c *Calculator) RewardPoints(totalWeightGrams float64) int64 {
	return RewardPoints(c.Config(), totalWeightGrams)
}

// Summarize totals weight and value and projects them linearly over the
// observation window.
func Summarize(cfg config.WasteConfig, items []Item) Summary {
	var (
		totalGrams float64
		totalValue float64
		order      []string
		byCategory = map[string]*CategoryTotal{}
	)

	for _, item := range items {
		grams := GramsOf(cfg, item.Quantity, item.Unit)
		value := grams * ValuePerGram(cfg, item.Category)
		totalGrams += grams
		totalValue += value

		label := strings.TrimSpace(item.Category)
		if label == "" {
			label = UncategorizedLabel
		}
		bucket, ok := byCategory[label]
		if !ok {
			bucket = &CategoryTotal{Category: label}
			byCategory[label] = bucket
			order = append(order, label)
		}
		bucket.Count++
		bucket.WeightGrams += grams
		bucket.Value += value
	}

	days := float64(cfg.ObservationDays)
	if days <= 0 {
		days = 30
	}
	dailyGrams := totalGrams / days
	dailyValue := totalValue / days

	top := make([]CategoryTotal, 0, len(order))
	for _, label := range order {
		top = append(top, *byCategory[label])
	}
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].WeightGrams > top[j].WeightGrams
	})
	if limit := cfg.TopCategories; limit > 0 && len(top) > limit {
		top = top[:limit]
	}

	return Summary{
		TotalWeightGrams: totalGrams,
		TotalValue:       totalValue,
		DailyGrams:       dailyGrams,
		WeeklyGrams:      dailyGrams * 7,
		MonthlyGrams:     dailyGrams * 30,
		DailyValue:       dailyValue,
		WeeklyValue:      dailyValue * 7,
		MonthlyValue:     dailyValue * 30,
		TopCategories:    top,
	}
}

// Community classifies monthly grams against the configured household baseline.
func Community(cfg config.WasteConfig, monthlyGrams float64) Comparison {
	baseline := cfg.Community.BaselineMonthlyGrams
	out := Comparison{
		BaselineMonthlyGrams: baseline,
		MonthlyGrams:         monthlyGrams,
		Status:               CommunityAverage,
	}
	if baseline <= 0 {
		return out
	}

	switch {
	case monthlyGrams < cfg.Community.LowerBand*baseline:
		out.Status = CommunityBelow
	case monthlyGrams > cfg.Community.UpperBand*baseline:
		out.Status = CommunityAbove
	default:
		return out
	}
	out.DeltaPercent = round1((monthlyGrams - baseline) / baseline * 100)
	return out
}

// RewardPoints awards points per kilogram with a floor.
func RewardPoints(cfg config.WasteConfig, totalWeightGrams float64) int64 {
	points := int64(math.Round(totalWeightGrams / 1000 * cfg.Reward.PointsPerKg))
	if points < cfg.Reward.MinimumPoints {
		return cfg.Reward.MinimumPoints
	}
	return points
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
