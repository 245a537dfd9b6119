// Package quiz generates chemistry quizzes, stores sessions and grades
// answers. A session moves from created, through navigation and
// answering, to finished; finishing happens exactly once.
package quiz

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/howard-nolan/chemtutor/internal/metrics"
	"github.com/howard-nolan/chemtutor/internal/prompt"
	"github.com/howard-nolan/chemtutor/internal/provider"
)

const (
	// MaxQuestions caps one session.
	MaxQuestions = 50

	avoidWindow         = 5
	maxDuplicateRetries = 3
)

var (
	questionOptions   = provider.Options{Temperature: 0.8, TopP: 0.95, MaxOutputTokens: 1024}
	suggestionOptions = provider.Options{Temperature: 0.5, MaxOutputTokens: 256}
)

// Engine generates quiz sessions and grades them. Session state lives in
// the Store, so an Engine is safe for concurrent use.
type Engine struct {
	chain   *provider.Chain
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics

	intn  func(n int) int
	now   func() time.Time
	newID func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand replaces the source used for question types and topic offsets.
func WithRand(intn func(n int) int) Option { return func(e *Engine) { e.intn = intn } }

// WithClock replaces time.Now for session timestamps.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithLogger sets the engine's logger. The default discards.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithMetrics records generation outcomes on m.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// NewEngine returns an Engine that generates through chain and keeps
// sessions in store.
func NewEngine(chain *provider.Chain, store Store, opts ...Option) *Engine {
	e := &Engine{
		chain:  chain,
		store:  store,
		logger: zap.NewNop(),
		intn:   rand.IntN,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ---------------------------------------------------------------------------
// generate
// ---------------------------------------------------------------------------

func (e *Engine) validateConfig(cfg *Config) error {
	if cfg.NumQuestions <= 0 || cfg.NumQuestions > MaxQuestions {
		return fmt.Errorf("%w: num_questions must be between 1 and %d", ErrInvalidArgument, MaxQuestions)
	}
	if len(cfg.QuestionTypes) == 0 {
		return fmt.Errorf("%w: question_types must not be empty", ErrInvalidArgument)
	}
	for _, t := range cfg.QuestionTypes {
		if !t.Valid() {
			return fmt.Errorf("%w: unknown question type %q", ErrInvalidArgument, t)
		}
	}
	if cfg.Difficulty == "" {
		cfg.Difficulty = Medium
	}
	if !cfg.Difficulty.Valid() {
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidArgument, cfg.Difficulty)
	}
	return nil
}

// Generate builds and stores a new session with exactly NumQuestions
// questions. A question that cannot be generated is replaced by a built-in
// one; only cancellation aborts the session.
func (e *Engine) Generate(ctx context.Context, cfg Config) (*Generated, error) {
	if err := e.validateConfig(&cfg); err != nil {
		return nil, err
	}

	offset := e.intn(len(Topics))
	questions := make([]Question, 0, cfg.NumQuestions)
	var texts []string
	fallbackCount := 0

	for i := 0; i < cfg.NumQuestions; i++ {
		qtype := cfg.QuestionTypes[e.intn(len(cfg.QuestionTypes))]
		topic := Topics[(offset+i)%len(Topics)]

		q, err := e.generateQuestion(ctx, qtype, topic, cfg.Difficulty, texts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("question generation failed, using fallback",
				zap.Int("index", i),
				zap.String("type", string(qtype)),
				zap.String("topic", topic),
				zap.Error(err),
			)
			e.metrics.QuizFallbackQuestion()
			q = FallbackQuestion(qtype, fallbackCount)
			fallbackCount++
		}

		q.ID = i + 1
		questions = append(questions, q)
		texts = append(texts, q.QuestionText)
	}

	s := &Session{
		ID:          e.newID(),
		Config:      cfg,
		Questions:   questions,
		UserAnswers: make(map[int]UserAnswer),
		CreatedAt:   e.now(),
	}
	if err := e.store.Put(ctx, s); err != nil {
		return nil, fmt.Errorf("storing quiz session: %w", err)
	}
	e.metrics.QuizSession()
	e.logger.Info("quiz session generated",
		zap.String("session_id", s.ID),
		zap.Int("questions", len(questions)),
		zap.Int("fallbacks", fallbackCount),
	)

	return &Generated{SessionID: s.ID, TotalQuestions: len(questions), FirstQuestion: questions[0]}, nil
}

// generateQuestion asks for one question, retrying up to
// maxDuplicateRetries times while the result duplicates an earlier
// question. The last duplicate is accepted rather than failing.
func (e *Engine) generateQuestion(ctx context.Context, t QuestionType, topic string, difficulty Difficulty, prior []string) (Question, error) {
	avoid := prior
	if len(avoid) > avoidWindow {
		avoid = avoid[len(avoid)-avoidWindow:]
	}
	system, user := prompt.QuizQuestion(prompt.QuizInput{
		Type:       string(t),
		Topic:      topic,
		Difficulty: string(difficulty),
		Avoid:      avoid,
	})
	req := provider.UserPrompt(system, user, questionOptions)

	var candidate *Question
	for try := 0; try <= maxDuplicateRetries; try++ {
		q, err := e.askQuestion(ctx, req, t, topic)
		if err != nil {
			if candidate != nil && ctx.Err() == nil {
				return *candidate, nil
			}
			return Question{}, err
		}
		if !IsDuplicate(q.QuestionText, prior) {
			return q, nil
		}
		e.logger.Info("duplicate quiz question, regenerating", zap.Int("try", try+1), zap.String("text", q.QuestionText))
		candidate = &q
	}
	return *candidate, nil
}

func (e *Engine) askQuestion(ctx context.Context, req *provider.Request, t QuestionType, topic string) (Question, error) {
	resp, err := e.chain.Complete(ctx, req)
	if err != nil {
		return Question{}, err
	}
	return ParseQuestion(resp.Content, t, topic)
}

// ---------------------------------------------------------------------------
// navigation
// ---------------------------------------------------------------------------

// GetQuestion moves the session cursor to index (0-based) and returns the
// question with navigation flags and any recorded answer.
func (e *Engine) GetQuestion(ctx context.Context, sessionID string, index int) (*QuestionView, error) {
	s, err := e.store.Update(ctx, sessionID, func(s *Session) error {
		if index < 0 || index >= len(s.Questions) {
			return fmt.Errorf("%w: question index %d out of range [0, %d)", ErrInvalidArgument, index, len(s.Questions))
		}
		s.CurrentQuestionIndex = index
		return nil
	})
	if err != nil {
		return nil, err
	}

	q := s.Questions[index]
	view := &QuestionView{
		Question:       q,
		Index:          index,
		TotalQuestions: len(s.Questions),
		CanGoBack:      index > 0,
		CanGoForward:   index < len(s.Questions)-1,
	}
	if ans, ok := s.UserAnswers[q.ID]; ok {
		view.UserAnswer = &ans
	}
	return view, nil
}

// ---------------------------------------------------------------------------
// answering
// ---------------------------------------------------------------------------

// Grade compares answers ignoring case and surrounding whitespace.
func Grade(userAnswer, correctAnswer string) bool {
	return strings.EqualFold(strings.TrimSpace(userAnswer), strings.TrimSpace(correctAnswer))
}

// SubmitAnswer grades one answer and records it, overwriting any earlier
// answer to the same question. Wrong answers get a suggestion. A finished
// session rejects answers with ErrFailedPrecondition.
func (e *Engine) SubmitAnswer(ctx context.Context, sessionID string, ans UserAnswer) (*Result, error) {
	s, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Completed {
		return nil, fmt.Errorf("%w: quiz session %s is already finished", ErrFailedPrecondition, sessionID)
	}
	q, ok := s.question(ans.QuestionID)
	if !ok {
		return nil, fmt.Errorf("%w: question_id %d out of range [1, %d]", ErrInvalidArgument, ans.QuestionID, len(s.Questions))
	}

	// The suggestion is generated outside the session lock.
	result := e.grade(ctx, q, ans, nil)
	stored := ans
	if result.Suggestions != "" {
		stored.Suggestions = &result.Suggestions
	}

	_, err = e.store.Update(ctx, sessionID, func(s *Session) error {
		if s.Completed {
			return fmt.Errorf("%w: quiz session %s is already finished", ErrFailedPrecondition, sessionID)
		}
		s.UserAnswers[ans.QuestionID] = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// grade builds the Result for ans. A wrong answer reuses the suggestion on
// ans, then the one on previous, and only then asks the provider.
func (e *Engine) grade(ctx context.Context, q Question, ans UserAnswer, previous *UserAnswer) Result {
	r := Result{
		QuestionID:    q.ID,
		QuestionText:  q.QuestionText,
		QuestionType:  q.QuestionType,
		UserAnswer:    ans.UserAnswer,
		CorrectAnswer: q.CorrectAnswer,
		IsCorrect:     Grade(ans.UserAnswer, q.CorrectAnswer),
		Explanation:   q.Explanation,
		Topic:         q.Topic,
		TimeTaken:     ans.TimeTaken,
	}
	if r.IsCorrect {
		return r
	}

	switch {
	case ans.Suggestions != nil && strings.TrimSpace(*ans.Suggestions) != "":
		r.Suggestions = *ans.Suggestions
	case previous != nil && previous.Suggestions != nil && strings.TrimSpace(*previous.Suggestions) != "":
		r.Suggestions = *previous.Suggestions
	default:
		r.Suggestions = e.suggest(ctx, q, ans.UserAnswer)
	}
	return r
}

// suggest never fails: any provider problem yields FallbackSuggestion.
func (e *Engine) suggest(ctx context.Context, q Question, userAnswer string) string {
	system, user := prompt.Suggestion(prompt.SuggestionInput{
		Question:      q.QuestionText,
		UserAnswer:    userAnswer,
		CorrectAnswer: q.CorrectAnswer,
		Topic:         q.Topic,
	})

	resp, err := e.chain.Complete(ctx, provider.UserPrompt(system, user, suggestionOptions))
	if err != nil {
		e.logger.Warn("suggestion generation failed", zap.Int("question_id", q.ID), zap.Error(err))
		return FallbackSuggestion(q.Topic)
	}
	if text := strings.TrimSpace(resp.Content); text != "" {
		return text
	}
	return FallbackSuggestion(q.Topic)
}

// ---------------------------------------------------------------------------
// finish
// ---------------------------------------------------------------------------

// Finish grades the submitted answers, marks the session completed and
// returns the report. A second call fails with ErrFailedPrecondition. The
// session stays in the store.
func (e *Engine) Finish(ctx context.Context, sessionID string, answers []UserAnswer) (*Report, error) {
	s, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Completed {
		return nil, fmt.Errorf("%w: quiz session %s is already finished", ErrFailedPrecondition, sessionID)
	}

	// Last answer per question wins; out-of-range ids are skipped.
	latest := make(map[int]UserAnswer)
	for _, ans := range answers {
		if _, ok := s.question(ans.QuestionID); ok {
			latest[ans.QuestionID] = ans
		}
	}
	ids := make([]int, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	results := make([]Result, 0, len(ids))
	stored := make(map[int]UserAnswer, len(ids))
	correct := 0
	totalTime := 0.0
	for _, id := range ids {
		ans := latest[id]
		q, _ := s.question(id)

		var previous *UserAnswer
		if p, ok := s.UserAnswers[id]; ok {
			previous = &p
		}
		r := e.grade(ctx, q, ans, previous)
		if r.IsCorrect {
			correct++
		}
		totalTime += ans.TimeTaken
		results = append(results, r)

		if r.Suggestions != "" {
			suggestion := r.Suggestions
			ans.Suggestions = &suggestion
		}
		stored[id] = ans
	}

	_, err = e.store.Update(ctx, sessionID, func(s *Session) error {
		if s.Completed {
			return fmt.Errorf("%w: quiz session %s is already finished", ErrFailedPrecondition, sessionID)
		}
		for id, ans := range stored {
			s.UserAnswers[id] = ans
		}
		s.Completed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Scores cover the graded answers; unanswered questions do not count.
	total := len(results)
	report := &Report{
		SessionID:        sessionID,
		TotalQuestions:   len(s.Questions),
		CorrectAnswers:   correct,
		TotalTimeSeconds: totalTime,
		Results:          results,
	}
	if total > 0 {
		report.ScorePercentage = round2(100 * float64(correct) / float64(total))
		report.AverageTimePerQuestion = round2(totalTime / float64(total))
	}

	e.logger.Info("quiz session finished",
		zap.String("session_id", sessionID),
		zap.Int("correct", correct),
		zap.Int("total", total),
	)
	return report, nil
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
