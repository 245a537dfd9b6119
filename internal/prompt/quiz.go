package prompt

import (
	"fmt"
	"strings"
)

// QuizInput parameterizes one ModeQuizQuestion prompt.
type QuizInput struct {
	Type       string // mcq, explanation, complete_reaction, balance_equation, guess_product
	Topic      string
	Difficulty string
	Avoid      []string // previously generated question texts
}

// quizTasks describes what each question type asks the model to write.
var quizTasks = map[string]string{
	"mcq":               "a multiple-choice question with exactly 4 options, one of them correct",
	"explanation":       "a question that asks the student to explain a concept in one or two sentences",
	"complete_reaction": "a question that shows a reaction with one missing reactant or product for the student to fill in",
	"balance_equation":  "a question that gives an unbalanced equation for the student to balance",
	"guess_product":     "a question that gives the reactants and asks for the main product",
}

const quizSchema = `{
  "question_text": "the question",
  "question_type": "%s",%s
  "correct_answer": "the single correct answer, short and exact",
  "explanation": "why the answer is correct",
  "topic": "%s"
}`

const mcqOptions = `
  "options": ["option 1", "option 2", "option 3", "option 4"],`

const quizSystem = "You are a chemistry teacher writing quiz questions. " + jsonOnly

// QuizQuestion builds the prompt for one question of the given type. For mcq
// the correct answer must be the full text of one option.
func QuizQuestion(in QuizInput) (system, user string) {
	task, ok := quizTasks[in.Type]
	if !ok {
		task = quizTasks["explanation"]
	}
	difficulty := in.Difficulty
	if difficulty == "" {
		difficulty = "medium"
	}

	options := ""
	if in.Type == "mcq" {
		options = mcqOptions
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write %s.\nTopic: %s\nDifficulty: %s\n", task, in.Topic, difficulty)
	if in.Type == "mcq" {
		b.WriteString("correct_answer must repeat the full text of the correct option, not its letter.\n")
	}
	if len(in.Avoid) > 0 {
		b.WriteString("\nDo NOT repeat or paraphrase any of these previous questions:\n")
		for _, q := range in.Avoid {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}
	fmt.Fprintf(&b, "\n%s\nUse exactly this structure:\n", jsonOnly)
	fmt.Fprintf(&b, quizSchema, in.Type, options, in.Topic)

	return quizSystem, b.String()
}

// SuggestionInput is the context for a remediation hint after a wrong answer.
type SuggestionInput struct {
	Question      string
	UserAnswer    string
	CorrectAnswer string
	Topic         string
}

// Suggestion builds the plain-text remediation prompt for ModeSuggestion.
func Suggestion(in SuggestionInput) (system, user string) {
	system = tutorIdentity + conciseStyle + "\n- Reply in plain text, not JSON."
	user = fmt.Sprintf(`A student answered a quiz question incorrectly.
Question: %s
Student's answer: %s
Correct answer: %s
Topic: %s

In at most 3 short sentences, explain the mistake and suggest what to review.`,
		in.Question, in.UserAnswer, in.CorrectAnswer, in.Topic)
	return system, user
}
