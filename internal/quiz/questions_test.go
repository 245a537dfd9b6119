package quiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/chemtutor/internal/provider"
)

func TestParseQuestionMCQ(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   string
	}{
		{"by text", "Sodium chloride", "Sodium chloride"},
		{"by text any case", " sodium CHLORIDE ", "Sodium chloride"},
		{"by letter", "B", "Sodium chloride"},
		{"by letter with paren", "b)", "Sodium chloride"},
		{"by option word", "Option B", "Sodium chloride"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := "```json\n" + `{"question_text": "What forms from Na and Cl2?", "options": ["Sodium oxide", "Sodium chloride", "Chlorine gas", "Sodium chloride"], "correct_answer": "` + tt.answer + `", "explanation": "Na gives an electron to Cl."}` + "\n```"

			q, err := ParseQuestion(raw, TypeMCQ, "chemical bonding")
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.CorrectAnswer)
			assert.Equal(t, []string{"Sodium oxide", "Sodium chloride", "Chlorine gas"}, q.Options, "duplicates removed")
			assert.Equal(t, "chemical bonding", q.Topic)
			assert.Equal(t, TypeMCQ, q.QuestionType)
		})
	}
}

func TestParseQuestionRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		t    QuestionType
	}{
		{"not json", "Here is a question: what is water?", TypeExplanation},
		{"missing answer", `{"question_text": "What is H2O?"}`, TypeExplanation},
		{"blank text", `{"question_text": "", "correct_answer": "x"}`, TypeExplanation},
		{"mcq without options", `{"question_text": "Pick one", "correct_answer": "A"}`, TypeMCQ},
		{"mcq one option", `{"question_text": "Pick one", "options": ["H2O"], "correct_answer": "H2O"}`, TypeMCQ},
		{"mcq answer not an option", `{"question_text": "Pick one", "options": ["H2O", "CO2"], "correct_answer": "NaCl"}`, TypeMCQ},
		{"mcq letter out of range", `{"question_text": "Pick one", "options": ["H2O", "CO2"], "correct_answer": "D"}`, TypeMCQ},
		{"answer wrong type", `{"question_text": "2+2?", "correct_answer": 4}`, TypeExplanation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQuestion(tt.raw, tt.t, "gas laws")
			assert.ErrorIs(t, err, provider.ErrMalformedOutput)
		})
	}
}

func TestParseQuestionNonMCQDropsOptions(t *testing.T) {
	q, err := ParseQuestion(`{"question_text": "Balance: N2 + H2 -> NH3", "options": ["a", "b"], "correct_answer": "N2 + 3H2 -> 2NH3", "topic": "stoichiometry"}`, TypeBalanceEquation, "gas laws")
	require.NoError(t, err)

	assert.Nil(t, q.Options)
	assert.Equal(t, "stoichiometry", q.Topic, "model topic wins when present")
	assert.Equal(t, "The correct answer is N2 + 3H2 -> 2NH3.", q.Explanation)
}

func TestIsDuplicate(t *testing.T) {
	prior := []string{"What is the pH of pure water?", "Balance: H2 + O2 -> H2O"}

	assert.True(t, IsDuplicate("what is the pH of pure   water", prior))
	assert.True(t, IsDuplicate("What is the pH of pure water at 25 C?", prior), "contains a prior question")
	assert.True(t, IsDuplicate("H2 + O2 -> H2O", prior), "contained in a prior question")
	assert.False(t, IsDuplicate("What is the pH of vinegar?", prior))
	assert.False(t, IsDuplicate("", prior))
	assert.False(t, IsDuplicate("anything", nil))
}

func TestFallbackQuestionsAreComplete(t *testing.T) {
	for _, qt := range []QuestionType{TypeMCQ, TypeExplanation, TypeCompleteReaction, TypeBalanceEquation, TypeGuessProduct} {
		for n := 0; n < 3; n++ {
			q := FallbackQuestion(qt, n)
			assert.Equal(t, qt, q.QuestionType)
			assert.NotEmpty(t, q.QuestionText)
			assert.NotEmpty(t, q.CorrectAnswer)
			assert.NotEmpty(t, q.Explanation)
			assert.NotEmpty(t, q.Topic)
			if qt == TypeMCQ {
				assert.Contains(t, q.Options, q.CorrectAnswer)
			} else {
				assert.Empty(t, q.Options)
			}
		}
	}

	assert.Equal(t, TypeExplanation, FallbackQuestion("essay", 0).QuestionType)
}

func TestGrade(t *testing.T) {
	assert.True(t, Grade(" NaCl ", "nacl"))
	assert.True(t, Grade("2H2 + O2 → 2H2O", "2h2 + o2 → 2h2o"))
	assert.False(t, Grade("NaCl2", "NaCl"))
	assert.False(t, Grade("", "NaCl"))
}

func TestFallbackSuggestion(t *testing.T) {
	assert.Equal(t, "Review the explanation for this question and revisit the topic of gas laws.", FallbackSuggestion("gas laws"))
}
