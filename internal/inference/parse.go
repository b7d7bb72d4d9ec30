package inference

import (
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseRecommendations validates a model response against the items contract.
// Envelope violations are errors; malformed items are dropped.
func ParseRecommendations(raw string) ([]Recommendation, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty response", ErrParse)
	}
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("%w: invalid json", ErrParse)
	}

	root := gjson.Parse(raw)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: response is not an object", ErrParse)
	}
	items := root.Get("items")
	if !items.IsArray() {
		return nil, fmt.Errorf("%w: items is not an array", ErrParse)
	}

	out := make([]Recommendation, 0)
	items.ForEach(func(_, item gjson.Result) bool {
		if rec, ok := parseItem(item); ok {
			out = append(out, rec)
		}
		return true
	})
	return out, nil
}

func parseItem(item gjson.Result) (Recommendation, bool) {
	if !item.IsObject() {
		return Recommendation{}, false
	}

	name := item.Get("name")
	if name.Type != gjson.String || strings.TrimSpace(name.String()) == "" {
		return Recommendation{}, false
	}

	action := item.Get("action")
	if action.Type != gjson.String {
		return Recommendation{}, false
	}
	switch action.String() {
	case ActionNew, ActionAdd:
	default:
		return Recommendation{}, false
	}

	quantity := item.Get("quantity_value")
	if quantity.Type != gjson.Number {
		return Recommendation{}, false
	}
	value := quantity.Float()
	if value < 0 || math.IsInf(value, 0) || math.IsNaN(value) {
		return Recommendation{}, false
	}

	var unit *string
	if u := item.Get("quantity_unit"); u.Type == gjson.String {
		if trimmed := strings.TrimSpace(u.String()); trimmed != "" {
			unit = &trimmed
		}
	}

	return Recommendation{
		Name:          strings.TrimSpace(name.String()),
		QuantityValue: value,
		QuantityUnit:  unit,
		Action:        action.String(),
	}, true
}
