package quiz

import (
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("quiz session not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrFailedPrecondition = errors.New("failed precondition")
)

// QuestionType names one of the supported question styles.
type QuestionType string

const (
	TypeMCQ              QuestionType = "mcq"
	TypeExplanation      QuestionType = "explanation"
	TypeCompleteReaction QuestionType = "complete_reaction"
	TypeBalanceEquation  QuestionType = "balance_equation"
	TypeGuessProduct     QuestionType = "guess_product"
)

// Valid reports whether t is a supported type.
func (t QuestionType) Valid() bool {
	switch t {
	case TypeMCQ, TypeExplanation, TypeCompleteReaction, TypeBalanceEquation, TypeGuessProduct:
		return true
	}
	return false
}

// Difficulty is the requested quiz level.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// Valid reports whether d is easy, medium or hard.
func (d Difficulty) Valid() bool {
	return d == Easy || d == Medium || d == Hard
}

// Config is the /quiz/generate body.
type Config struct {
	Difficulty           Difficulty     `json:"difficulty"`
	NumQuestions         int            `json:"num_questions"`
	QuestionTypes        []QuestionType `json:"question_types"`
	IncludeTimer         bool           `json:"include_timer"`
	TimeLimitPerQuestion *int           `json:"time_limit_per_question,omitempty"`
	UserID               *string        `json:"user_id,omitempty"`
}

// Question is created once at generation time and never changed.
type Question struct {
	ID            int          `json:"id"`
	QuestionText  string       `json:"question_text"`
	QuestionType  QuestionType `json:"question_type"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer"`
	Explanation   string       `json:"explanation"`
	Topic         string       `json:"topic"`
}

// UserAnswer is what the client submits for one question.
type UserAnswer struct {
	QuestionID  int     `json:"question_id"`
	UserAnswer  string  `json:"user_answer"`
	TimeTaken   float64 `json:"time_taken"`
	Suggestions *string `json:"suggestions,omitempty"`
}

// Session is the stored state of one quiz. Only the engine mutates it, and
// only through Store.Update.
type Session struct {
	ID                   string             `json:"session_id"`
	Config               Config             `json:"config"`
	Questions            []Question         `json:"questions"`
	CurrentQuestionIndex int                `json:"current_question_index"`
	UserAnswers          map[int]UserAnswer `json:"user_answers"`
	Completed            bool               `json:"completed"`
	CreatedAt            time.Time          `json:"created_at"`
}

// question returns the question with the given 1-based id.
func (s *Session) question(id int) (Question, bool) {
	if id < 1 || id > len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[id-1], true
}

// Result joins an answer with its question. It is always recomputed.
type Result struct {
	QuestionID    int          `json:"question_id"`
	QuestionText  string       `json:"question_text"`
	QuestionType  QuestionType `json:"question_type"`
	UserAnswer    string       `json:"user_answer"`
	CorrectAnswer string       `json:"correct_answer"`
	IsCorrect     bool         `json:"is_correct"`
	Explanation   string       `json:"explanation"`
	Topic         string       `json:"topic"`
	TimeTaken     float64      `json:"time_taken"`
	Suggestions   string       `json:"suggestions"`
}

// Generated is the /quiz/generate response.
type Generated struct {
	SessionID      string   `json:"session_id"`
	TotalQuestions int      `json:"total_questions"`
	FirstQuestion  Question `json:"first_question"`
}

// QuestionView is one navigation step.
type QuestionView struct {
	Question       Question    `json:"question"`
	Index          int         `json:"index"`
	TotalQuestions int         `json:"total_questions"`
	CanGoBack      bool        `json:"can_go_back"`
	CanGoForward   bool        `json:"can_go_forward"`
	UserAnswer     *UserAnswer `json:"user_answer,omitempty"`
}

// Report is the /finish response.
type Report struct {
	SessionID              string   `json:"session_id"`
	TotalQuestions         int      `json:"total_questions"`
	CorrectAnswers         int      `json:"correct_answers"`
	ScorePercentage        float64  `json:"score_percentage"`
	TotalTimeSeconds       float64  `json:"total_time_seconds"`
	AverageTimePerQuestion float64  `json:"average_time_per_question"`
	Results                []Result `json:"results"`
}
