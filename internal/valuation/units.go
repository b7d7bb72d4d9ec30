package valuation

import (
	"strings"

	"github.com/smallbiznis/wasteloop/internal/config"
)

func normalizeUnit(unit *string) string {
	if unit == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(*unit))
}

// GramsOf converts a quantity to grams. Missing or unknown units fall back to
// the configured default multiplier.
func GramsOf(cfg config.WasteConfig, value float64, unit *string) float64 {
	if multiplier, ok := cfg.UnitMultipliers[normalizeUnit(unit)]; ok {
		return value * multiplier
	}
	return value * cfg.DefaultMultiplier
}

// IsRecognizedUnit reports whether unit has an explicit multiplier.
func IsRecognizedUnit(cfg config.WasteConfig, unit *string) bool {
	_, ok := cfg.UnitMultipliers[normalizeUnit(unit)]
	return ok
}

// ConvertUnits expresses value (in from) in the to unit. It only converts when
// both units are recognized; ok is false otherwise and value is returned as-is.
func ConvertUnits(cfg config.WasteConfig, value float64, from, to *string) (float64, bool) {
	fromMul, fromOK := cfg.UnitMultipliers[normalizeUnit(from)]
	toMul, toOK := cfg.UnitMultipliers[normalizeUnit(to)]
	if !fromOK || !toOK || toMul == 0 {
		return value, false
	}
	if fromMul == toMul {
		return value, true
	}
	return value * fromMul / toMul, true
}

// ValuePerGram resolves the monetary heuristic by case-insensitive substring
// match against the category table, first match wins.
func ValuePerGram(cfg config.WasteConfig, category string) float64 {
	c := strings.ToLower(strings.TrimSpace(category))
	if c != "" {
		for _, entry := range cfg.CategoryValues {
			match := strings.ToLower(strings.TrimSpace(entry.Match))
			if match != "" && strings.Contains(c, match) {
				return entry.ValuePerGram
			}
		}
	}
	return cfg.DefaultValuePerGram
}
