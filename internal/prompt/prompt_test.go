package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertHistory(t *testing.T) {
	turns := ConvertHistory([]HistoryRecord{
		{Role: "user", Content: "what is a mole?"},
		{Role: "assistant", Content: "- 6.022e23 particles"},
		{Role: " Student ", Content: "thanks"},
		{Role: "tutor", Content: "anytime"},
	})

	assert.Equal(t, []ChatTurn{
		{Role: Student, Content: "what is a mole?"},
		{Role: Assistant, Content: "- 6.022e23 particles"},
		{Role: Student, Content: "thanks"},
		{Role: Assistant, Content: "anytime"},
	}, turns)
}

func TestRenderHistoryKeepsLastSix(t *testing.T) {
	var turns []ChatTurn
	for i := 0; i < 10; i++ {
		role := Student
		if i%2 == 1 {
			role = Assistant
		}
		turns = append(turns, ChatTurn{Role: role, Content: fmt.Sprintf("turn %d", i)})
	}

	out := RenderHistory(turns)
	assert.NotContains(t, out, "turn 3")
	assert.Contains(t, out, "Assistant: turn 5")
	assert.Contains(t, out, "Student: turn 4")
	assert.Equal(t, 6, strings.Count(out, "turn "))
	assert.Empty(t, RenderHistory(nil))
}

func TestChatModes(t *testing.T) {
	in := ChatInput{Query: "why does salt dissolve?", Chemicals: []string{"NaCl"}}

	concise, user := Chat(ModeConciseTutor, in)
	detailed, _ := Chat(ModeDetailedTutor, in)
	assert.NotEqual(t, concise, detailed)
	assert.Contains(t, concise, "2-3 bullets")
	assert.Contains(t, user, "Student Question: why does salt dissolve?")
	assert.Contains(t, user, "Chemicals Being Used: NaCl")
	assert.Contains(t, user, NoKnowledge)
	assert.NotContains(t, user, "Equipment Available")

	_, user = Chat(ModeDetailedTutor, ChatInput{Query: "q", Knowledge: "Water is polar."})
	assert.Contains(t, user, "Water is polar.")
	assert.NotContains(t, user, NoKnowledge)
}

func TestChatIsDeterministic(t *testing.T) {
	in := ChatInput{
		Query:      "explain titration",
		LabContext: "acid-base lab",
		Equipment:  []string{"burette", "flask"},
		History:    []ChatTurn{{Role: Student, Content: "hi"}},
	}
	s1, u1 := Chat(ModeDetailedTutor, in)
	s2, u2 := Chat(ModeDetailedTutor, in)
	assert.Equal(t, s1, s2)
	assert.Equal(t, u1, u2)
}

func TestReactionAnalysisTruncates(t *testing.T) {
	_, user := ReactionAnalysis(
		[]string{"HCl", "NaOH", "AgNO3", "CuSO4"},
		[]string{"beaker", "bunsen burner", "thermometer"},
	)

	assert.Contains(t, user, "HCl, NaOH, AgNO3 using beaker, bunsen burner")
	assert.NotContains(t, user, "CuSO4")
	assert.NotContains(t, user, "thermometer")
	assert.Contains(t, user, `"balancedEquation"`)
	assert.Contains(t, user, "exothermic | endothermic | none")
}

func TestQuizQuestion(t *testing.T) {
	_, user := QuizQuestion(QuizInput{
		Type:  "mcq",
		Topic: "redox reactions",
		Avoid: []string{"What is oxidized in rusting?"},
	})
	assert.Contains(t, user, `"options"`)
	assert.Contains(t, user, "Do NOT repeat")
	assert.Contains(t, user, "- What is oxidized in rusting?")
	assert.Contains(t, user, "Difficulty: medium")

	_, user = QuizQuestion(QuizInput{Type: "balance_equation", Topic: "stoichiometry", Difficulty: "hard"})
	assert.NotContains(t, user, `"options"`)
	assert.NotContains(t, user, "Do NOT repeat")
	assert.Contains(t, user, "unbalanced equation")
	assert.Contains(t, user, `"question_type": "balance_equation"`)
}

func TestSuggestion(t *testing.T) {
	system, user := Suggestion(SuggestionInput{
		Question:      "Formula of table salt?",
		UserAnswer:    "KCl",
		CorrectAnswer: "NaCl",
		Topic:         "ionic compounds",
	})
	assert.Contains(t, system, "plain text")
	assert.Contains(t, user, "Student's answer: KCl")
	assert.Contains(t, user, "Correct answer: NaCl")
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "concise_tutor", ModeConciseTutor.String())
	assert.Equal(t, "suggestion", ModeSuggestion.String())
	assert.Equal(t, "mode(42)", Mode(42).String())
}
