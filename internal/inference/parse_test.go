package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecommendationsEnvelope(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: "  "},
		{name: "not_json", raw: "rice husk, 1kg"},
		{name: "array_root", raw: `[{"name":"a"}]`},
		{name: "missing_items", raw: `{"recommendations":[]}`},
		{name: "items_object", raw: `{"items":{"name":"a"}}`},
		{name: "items_string", raw: `{"items":"none"}`},
		{name: "truncated", raw: `{"items":[{"name":"a"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRecommendations(tc.raw)
			require.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestParseRecommendationsFiltersItems(t *testing.T) {
	raw := `{"items":[
		{"name":"Rice husk","quantity_value":0.2,"quantity_unit":"kg","action":"new"},
		{"name":"  ","quantity_value":1,"quantity_unit":"kg","action":"new"},
		{"quantity_value":1,"action":"new"},
		{"name":"shells","quantity_value":1,"action":"remove"},
		{"name":"shells","quantity_value":1,"action":"New"},
		{"name":"shells","quantity_value":1},
		{"name":"bones","quantity_value":"2","action":"add"},
		{"name":"bones","quantity_value":-1,"action":"add"},
		{"name":"bones","action":"add"},
		{"name":"husk","quantity_value":1e999,"quantity_unit":"kg","action":"new"},
		{"name":"husk","quantity_value":-1e999,"action":"add"},
		{"name":"grounds","quantity_value":0,"quantity_unit":null,"action":"add"},
		{"name":"oil","quantity_value":3,"quantity_unit":5,"action":"new"},
		"junk",
		{"name":42,"quantity_value":1,"action":"new"}
	]}`

	recs, err := ParseRecommendations(raw)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "Rice husk", recs[0].Name)
	assert.Equal(t, 0.2, recs[0].QuantityValue)
	require.NotNil(t, recs[0].QuantityUnit)
	assert.Equal(t, "kg", *recs[0].QuantityUnit)
	assert.Equal(t, ActionNew, recs[0].Action)

	assert.Equal(t, "grounds", recs[1].Name)
	assert.Nil(t, recs[1].QuantityUnit)
	assert.Equal(t, ActionAdd, recs[1].Action)

	assert.Equal(t, "oil", recs[2].Name)
	assert.Nil(t, recs[2].QuantityUnit)
}

func TestParseRecommendationsEmptyListIsNotAnError(t *testing.T) {
	recs, err := ParseRecommendations(`{"items":[]}`)
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = ParseRecommendations(`{"items":[{"name":""}]}`)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestBuildPrompt(t *testing.T) {
	kg := "kg"
	prompt := BuildPrompt(Request{
		Event:         UsageEvent{ItemName: "Rice", Category: "Grains", Quantity: 2, Unit: &kg},
		Ledger:        []LedgerItem{{Name: "Rice husk", Quantity: 0.4, Unit: &kg}, {Name: "bones", Quantity: 3}},
		BudgetContext: "500000 per month",
	})

	assert.Contains(t, prompt, "- item: Rice")
	assert.Contains(t, prompt, "- quantity: 2 kg")
	assert.Contains(t, prompt, "- Rice husk: 0.4 kg")
	assert.Contains(t, prompt, "- bones: 3 (no unit)")
	assert.Contains(t, prompt, "Household food budget: 500000 per month")

	empty := BuildPrompt(Request{Event: UsageEvent{ItemName: "Milk"}})
	assert.Contains(t, empty, "- (empty)")
	assert.NotContains(t, empty, "budget")
}
