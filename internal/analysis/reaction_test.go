package analysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/chemtutor/internal/provider"
)

const completeReaction = `{
  "balancedEquation": "AgNO3(aq) + NaCl(aq) -> AgCl(s) + NaNO3(aq)",
  "reactionType": "precipitation",
  "color": "colorless",
  "smell": "none",
  "precipitate": true,
  "precipitateColor": "white",
  "temperature": "unchanged",
  "temperatureChange": "none",
  "gasEvolution": false,
  "products": ["AgCl", "NaNO3"],
  "observations": ["White precipitate forms immediately"],
  "safetyNotes": ["Silver nitrate stains skin"],
  "confidence": 0.95,
  "visualObservation": "A white cloudy solid appears.",
  "instrumentAnalysis": {"name": "Turbidity meter", "intensity": "high", "change": "rises sharply", "outcomeDifference": "clear vs cloudy", "counterfactual": "KNO3 would stay clear"},
  "productsInfo": [{"name": "Silver chloride", "formula": "AgCl", "state": "s", "color": "white", "description": "insoluble salt"}],
  "explanation": {"mechanism": "ion exchange", "bondBreaking": "none", "energyProfile": "small lattice energy release", "atomicLevel": "Ag+ meets Cl-", "keyConcept": "solubility rules"},
  "safety": {"riskLevel": "Medium", "precautions": "gloves", "disposal": "heavy metal waste", "firstAid": "wash skin", "generalHazards": "stains"},
  "phChange": "7",
  "emission": null,
  "stateChange": "aqueous to solid"
}`

func TestNormalizeReactionIsIdempotentOnCompleteInput(t *testing.T) {
	var direct ReactionAnalysis
	require.NoError(t, json.Unmarshal([]byte(completeReaction), &direct))

	got, err := NormalizeReaction(completeReaction)
	require.NoError(t, err)
	assert.Equal(t, &direct, got)

	// Normalizing the normalized output changes nothing either.
	again, err := json.Marshal(got)
	require.NoError(t, err)
	round, err := NormalizeReaction(string(again))
	require.NoError(t, err)
	assert.Equal(t, got, round)
}

func TestNormalizeReactionFillsEveryDefault(t *testing.T) {
	got, err := NormalizeReaction(`{}`)
	require.NoError(t, err)

	assert.Equal(t, DefaultEquation, got.BalancedEquation)
	assert.Equal(t, DefaultReactionType, got.ReactionType)
	assert.Equal(t, "unknown", got.Color)
	assert.Equal(t, "none", got.Smell)
	assert.False(t, got.Precipitate)
	assert.Nil(t, got.PrecipitateColor)
	assert.Equal(t, "unchanged", got.Temperature)
	assert.Equal(t, "none", got.TemperatureChange)
	assert.False(t, got.GasEvolution)
	assert.Equal(t, []string{"Unknown"}, got.Products)
	assert.Equal(t, []string{"Reaction occurred"}, got.Observations)
	assert.Equal(t, []string{"Handle with care"}, got.SafetyNotes)
	assert.Equal(t, 0.5, got.Confidence)
	assert.Equal(t, DefaultVisualObservation, got.VisualObservation)
	assert.Nil(t, got.InstrumentAnalysis)
	assert.Equal(t, []ProductInfo{}, got.ProductsInfo)
	assert.Equal(t, DefaultExplanation, got.Explanation.Mechanism)
	assert.Equal(t, DefaultExplanation, got.Explanation.KeyConcept)
	assert.Equal(t, defaultSafety, got.Safety)
	assert.Nil(t, got.PHChange)
	assert.Nil(t, got.Emission)
	assert.Nil(t, got.StateChange)

	// Every key is present on the wire, nulls included.
	body, err := json.Marshal(got)
	require.NoError(t, err)
	var keys map[string]any
	require.NoError(t, json.Unmarshal(body, &keys))
	for _, k := range []string{"precipitateColor", "instrumentAnalysis", "phChange", "emission", "stateChange", "productsInfo"} {
		assert.Contains(t, keys, k)
	}
}

func TestNormalizeReactionMistypedFields(t *testing.T) {
	got, err := NormalizeReaction(`{"color": 5, "precipitate": "yes", "confidence": "high", "products": "NaCl", "observations": [1, "fizzing", ""]}`)
	require.NoError(t, err)

	assert.Equal(t, DefaultColor, got.Color)
	assert.False(t, got.Precipitate)
	assert.Equal(t, DefaultConfidence, got.Confidence)
	assert.Equal(t, []string{"Unknown"}, got.Products)
	assert.Equal(t, []string{"fizzing"}, got.Observations)
}

func TestNormalizeReactionDerivedFields(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		temperature string
		change      string
		products    []string
	}{
		{"change from temperature", `{"temperature": "increased"}`, "increased", "exothermic", []string{"Unknown"}},
		{"temperature from change", `{"temperatureChange": "endothermic"}`, "decreased", "endothermic", []string{"Unknown"}},
		{"both present kept", `{"temperature": "increased", "temperatureChange": "none"}`, "increased", "none", []string{"Unknown"}},
		{
			"products from productsInfo",
			`{"productsInfo": [{"name": "Water", "formula": "H2O"}, {"formula": "CO2"}, {"state": "g"}]}`,
			"unchanged", "none", []string{"Water", "CO2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeReaction(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.temperature, got.Temperature)
			assert.Equal(t, tt.change, got.TemperatureChange)
			assert.Equal(t, tt.products, got.Products)
		})
	}
}

func TestNormalizeReactionConfidenceClamped(t *testing.T) {
	high, err := NormalizeReaction(`{"confidence": 7}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, high.Confidence)

	low, err := NormalizeReaction(`{"confidence": -0.3}`)
	require.NoError(t, err)
	assert.Equal(t, 0.0, low.Confidence)
}

func TestNormalizeReactionRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{"", "The reaction makes salt.", `["a"]`, `{"color": "blue"`} {
		_, err := NormalizeReaction(raw)
		assert.ErrorIs(t, err, provider.ErrMalformedOutput, raw)
	}
}

func TestNormalizeReactionNumericPH(t *testing.T) {
	got, err := NormalizeReaction(`{"phChange": 3.5}`)
	require.NoError(t, err)
	require.NotNil(t, got.PHChange)
	assert.Equal(t, "3.5", *got.PHChange)
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"no tag", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"same line", "```json {\"a\":1}```", `{"a":1}`},
		{"surrounding space", "  \n```JSON\n{\"a\":1}\n```\n", `{"a":1}`},
		{"array", "```\n[1,2]\n```", `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.in))
		})
	}
}

func TestNormalizeReactionAcceptsFencedOutput(t *testing.T) {
	got, err := NormalizeReaction("```json\n{\"reactionType\": \"acid-base\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "acid-base", got.ReactionType)
}
