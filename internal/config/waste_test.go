package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultWasteConfigIsValid(t *testing.T) {
	assert.NoError(t, ValidateWasteConfig(DefaultWasteConfig()))
}

func TestValidateWasteConfigRejectsBadBands(t *testing.T) {
	cfg := DefaultWasteConfig()
	cfg.Community.LowerBand = 1.5
	cfg.Community.UpperBand = 1.2
	assert.Error(t, ValidateWasteConfig(cfg))

	cfg = DefaultWasteConfig()
	cfg.UnitMultipliers["kg"] = 0
	assert.Error(t, ValidateWasteConfig(cfg))
}

func TestDecodeWasteConfigMergesDefaults(t *testing.T) {
	v := viper.New()
	v.Set("waste.community.baselineMonthlyGrams", 3000)
	v.Set("waste.unitMultipliers", map[string]any{" LB ": 453.6})

	cfg, err := decodeWasteConfig(v, DefaultWasteConfig())
	require.NoError(t, err)

	assert.Equal(t, 3000.0, cfg.Community.BaselineMonthlyGrams)
	assert.Equal(t, 0.8, cfg.Community.LowerBand)
	assert.Equal(t, 453.6, cfg.UnitMultipliers["lb"])
	assert.NotContains(t, cfg.UnitMultipliers, "kg")
	assert.Equal(t, 50.0, cfg.DefaultMultiplier)
	assert.Len(t, cfg.CategoryValues, 7)
}

func TestStaticHolderReturnsStoredConfig(t *testing.T) {
	cfg := DefaultWasteConfig()
	cfg.Reward.MinimumPoints = 9
	holder := NewStaticWasteConfigHolder(cfg)
	assert.EqualValues(t, 9, holder.Get().Reward.MinimumPoints)
}
