package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// WasteConfig carries the tunable valuation tables. Units are keyed by their
// lower-cased label.
type WasteConfig struct {
	UnitMultipliers     map[string]float64 `mapstructure:"unitMultipliers"`
	DefaultMultiplier   float64            `mapstructure:"defaultMultiplier"`
	CategoryValues      []CategoryValue    `mapstructure:"categoryValues"`
	DefaultValuePerGram float64            `mapstructure:"defaultValuePerGram"`
	ObservationDays     int                `mapstructure:"observationDays"`
	TopCategories       int                `mapstructure:"topCategories"`
	Community           CommunityConfig    `mapstructure:"community"`
	Reward              RewardConfig       `mapstructure:"reward"`
}

type CategoryValue struct {
	Match        string  `mapstructure:"match"`
	ValuePerGram float64 `mapstructure:"valuePerGram"`
}

type CommunityConfig struct {
	BaselineMonthlyGrams float64 `mapstructure:"baselineMonthlyGrams"`
	LowerBand            float64 `mapstructure:"lowerBand"`
	UpperBand            float64 `mapstructure:"upperBand"`
}

type RewardConfig struct {
	PointsPerKg   float64 `mapstructure:"pointsPerKg"`
	MinimumPoints int64   `mapstructure:"minimumPoints"`
}

func DefaultWasteConfig() WasteConfig {
	return WasteConfig{
		UnitMultipliers: map[string]float64{
			"kg":        1000,
			"kgs":       1000,
			"kilogram":  1000,
			"kilograms": 1000,
			"g":         1,
			"gm":        1,
			"gram":      1,
			"grams":     1,
			"ml":        1,
			"l":         1000,
			"liter":     1000,
			"liters":    1000,
			"litre":     1000,
			"litres":    1000,
			"ton":       1_000_000,
			"tons":      1_000_000,
			"tonne":     1_000_000,
			"tonnes":    1_000_000,
		},
		DefaultMultiplier: 50,
		CategoryValues: []CategoryValue{
			{Match: "compost", ValuePerGram: 0.01},
			{Match: "vegetable", ValuePerGram: 0.02},
			{Match: "fruit", ValuePerGram: 0.03},
			{Match: "grain", ValuePerGram: 0.03},
			{Match: "dairy", ValuePerGram: 0.05},
			{Match: "protein", ValuePerGram: 0.08},
			{Match: "meat", ValuePerGram: 0.1},
		},
		DefaultValuePerGram: 0.04,
		ObservationDays:     30,
		TopCategories:       5,
		Community: CommunityConfig{
			BaselineMonthlyGrams: 2400,
			LowerBand:            0.8,
			UpperBand:            1.2,
		},
		Reward: RewardConfig{
			PointsPerKg:   8,
			MinimumPoints: 5,
		},
	}
}

type WasteConfigHolder struct {
	current atomic.Value // holds WasteConfig
}

// NewStaticWasteConfigHolder returns a holder that never reloads.
func NewStaticWasteConfigHolder(cfg WasteConfig) *WasteConfigHolder {
	holder := &WasteConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewWasteConfigHolder() (*WasteConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("waste")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/wasteloop/config")
	v.AddConfigPath("/etc/wasteloop")
	v.AddConfigPath(".")

	v.SetEnvPrefix("WASTELOOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultWasteConfig()
	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodeWasteConfig(v, defaults)
	if err != nil {
		return nil, err
	}

	holder := NewStaticWasteConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeWasteConfig(v, defaults)
		if err != nil {
			log.Printf("[waste-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[waste-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *WasteConfigHolder) Get() WasteConfig {
	return h.current.Load().(WasteConfig)
}

func decodeWasteConfig(v *viper.Viper, defaults WasteConfig) (WasteConfig, error) {
	var cfg WasteConfig
	if v.IsSet("waste") {
		if err := v.UnmarshalKey("waste", &cfg); err != nil {
			return WasteConfig{}, err
		}
	}
	cfg = mergeWasteDefaults(cfg, defaults)
	if err := ValidateWasteConfig(cfg); err != nil {
		return WasteConfig{}, err
	}
	return cfg, nil
}

func mergeWasteDefaults(cfg, defaults WasteConfig) WasteConfig {
	if len(cfg.UnitMultipliers) == 0 {
		cfg.UnitMultipliers = defaults.UnitMultipliers
	}
	normalized := make(map[string]float64, len(cfg.UnitMultipliers))
	for unit, multiplier := range cfg.UnitMultipliers {
		normalized[strings.ToLower(strings.TrimSpace(unit))] = multiplier
	}
	cfg.UnitMultipliers = normalized

	if cfg.DefaultMultiplier == 0 {
		cfg.DefaultMultiplier = defaults.DefaultMultiplier
	}
	if len(cfg.CategoryValues) == 0 {
		cfg.CategoryValues = defaults.CategoryValues
	}
	if cfg.DefaultValuePerGram == 0 {
		cfg.DefaultValuePerGram = defaults.DefaultValuePerGram
	}
	if cfg.ObservationDays == 0 {
		cfg.ObservationDays = defaults.ObservationDays
	}
	if cfg.TopCategories == 0 {
		cfg.TopCategories = defaults.TopCategories
	}
	if cfg.Community.BaselineMonthlyGrams == 0 {
		cfg.Community.BaselineMonthlyGrams = defaults.Community.BaselineMonthlyGrams
	}
	if cfg.Community.LowerBand == 0 {
		cfg.Community.LowerBand = defaults.Community.LowerBand
	}
	if cfg.Community.UpperBand == 0 {
		cfg.Community.UpperBand = defaults.Community.UpperBand
	}
	if cfg.Reward.PointsPerKg == 0 {
		cfg.Reward.PointsPerKg = defaults.Reward.PointsPerKg
	}
	if cfg.Reward.MinimumPoints == 0 {
		cfg.Reward.MinimumPoints = defaults.Reward.MinimumPoints
	}
	return cfg
}

// ValidateWasteConfig rejects tables that would produce negative or undefined values.
func ValidateWasteConfig(cfg WasteConfig) error {
	for unit, multiplier := range cfg.UnitMultipliers {
		if unit == "" {
			return errors.New("waste.unitMultipliers contains an empty unit")
		}
		if multiplier <= 0 {
			return fmt.Errorf("waste.unitMultipliers.%s must be positive", unit)
		}
	}
	if cfg.DefaultMultiplier <= 0 {
		return errors.New("waste.defaultMultiplier must be positive")
	}
	for _, category := range cfg.CategoryValues {
		if strings.TrimSpace(category.Match) == "" {
			return errors.New("waste.categoryValues entries require match")
		}
		if category.ValuePerGram < 0 {
			return fmt.Errorf("waste.categoryValues.%s cannot be negative", category.Match)
		}
	}
	if cfg.DefaultValuePerGram < 0 {
		return errors.New("waste.defaultValuePerGram cannot be negative")
	}
	if cfg.ObservationDays <= 0 {
		return errors.New("waste.observationDays must be positive")
	}
	if cfg.TopCategories <= 0 {
		return errors.New("waste.topCategories must be positive")
	}
	if cfg.Community.BaselineMonthlyGrams <= 0 {
		return errors.New("waste.community.baselineMonthlyGrams must be positive")
	}
	if cfg.Community.LowerBand <= 0 || cfg.Community.UpperBand < cfg.Community.LowerBand {
		return errors.New("waste.community bands must satisfy 0 < lowerBand <= upperBand")
	}
	if cfg.Reward.PointsPerKg < 0 || cfg.Reward.MinimumPoints < 0 {
		return errors.New("waste.reward values cannot be negative")
	}
	return nil
}
