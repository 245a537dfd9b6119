package quiz

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/howard-nolan/chemtutor/internal/analysis"
	"github.com/howard-nolan/chemtutor/internal/provider"
)

// Topics is the curated rotation. Question i of a session gets
// Topics[(offset+i) % len(Topics)], so early questions never share a topic.
var Topics = []string{
	"acids and bases",
	"redox reactions",
	"stoichiometry",
	"chemical bonding",
	"periodic trends",
	"thermochemistry",
	"reaction kinetics",
	"chemical equilibrium",
	"precipitation reactions",
	"organic functional groups",
	"gas laws",
	"electrochemistry",
}

// ---------------------------------------------------------------------------
// Schema validation
// ---------------------------------------------------------------------------

const baseSchema = `{
  "type": "object",
  "required": ["question_text", "correct_answer"],
  "properties": {
    "question_text": {"type": "string", "minLength": 1},
    "correct_answer": {"type": "string", "minLength": 1},
    "explanation": {"type": "string"},
    "topic": {"type": "string"},
    "options": {"type": "array", "items": {"type": "string"}}
  }
}`

const mcqSchema = `{
  "type": "object",
  "required": ["question_text", "correct_answer", "options"],
  "properties": {
    "question_text": {"type": "string", "minLength": 1},
    "correct_answer": {"type": "string", "minLength": 1},
    "explanation": {"type": "string"},
    "topic": {"type": "string"},
    "options": {"type": "array", "minItems": 2, "items": {"type": "string", "minLength": 1}}
  }
}`

var (
	baseValidator = mustSchema(baseSchema)
	mcqValidator  = mustSchema(mcqSchema)
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("quiz: bad question schema: %v", err))
	}
	return s
}

// rawQuestion is the model's JSON before normalization.
type rawQuestion struct {
	QuestionText  string   `json:"question_text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
	Topic         string   `json:"topic"`
}

// ParseQuestion validates model output against the schema for t and
// returns a complete Question without an id. For mcq the correct answer is
// resolved to the full text of one option.
func ParseQuestion(raw string, t QuestionType, topic string) (Question, error) {
	cleaned := analysis.StripCodeFences(raw)

	validator := baseValidator
	if t == TypeMCQ {
		validator = mcqValidator
	}
	result, err := validator.Validate(gojsonschema.NewStringLoader(cleaned))
	if err != nil {
		return Question{}, fmt.Errorf("%w: question is not valid JSON: %v", provider.ErrMalformedOutput, err)
	}
	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return Question{}, fmt.Errorf("%w: question failed validation: %s", provider.ErrMalformedOutput, strings.Join(problems, "; "))
	}

	var rq rawQuestion
	if err := json.Unmarshal([]byte(cleaned), &rq); err != nil {
		return Question{}, fmt.Errorf("%w: decoding question: %v", provider.ErrMalformedOutput, err)
	}

	q := Question{
		QuestionText:  strings.TrimSpace(rq.QuestionText),
		QuestionType:  t,
		CorrectAnswer: strings.TrimSpace(rq.CorrectAnswer),
		Explanation:   strings.TrimSpace(rq.Explanation),
		Topic:         strings.TrimSpace(rq.Topic),
	}
	if q.QuestionText == "" || q.CorrectAnswer == "" {
		return Question{}, fmt.Errorf("%w: blank question or answer", provider.ErrMalformedOutput)
	}
	if q.Topic == "" {
		q.Topic = topic
	}
	if q.Explanation == "" {
		q.Explanation = fmt.Sprintf("The correct answer is %s.", q.CorrectAnswer)
	}

	if t == TypeMCQ {
		options, answer, err := resolveOptions(rq.Options, q.CorrectAnswer)
		if err != nil {
			return Question{}, err
		}
		q.Options, q.CorrectAnswer = options, answer
	}
	return q, nil
}

// resolveOptions trims and dedupes options, then maps the answer onto one
// of them, either by text or by its letter (A, "b)", "Option C").
func resolveOptions(raw []string, answer string) ([]string, string, error) {
	var options []string
	seen := make(map[string]bool)
	for _, o := range raw {
		o = strings.TrimSpace(o)
		key := strings.ToLower(o)
		if o == "" || seen[key] {
			continue
		}
		seen[key] = true
		options = append(options, o)
	}
	if len(options) < 2 {
		return nil, "", fmt.Errorf("%w: mcq needs at least 2 distinct options", provider.ErrMalformedOutput)
	}

	for _, o := range options {
		if strings.EqualFold(o, answer) {
			return options, o, nil
		}
	}
	if i, ok := optionLetter(answer); ok && i < len(options) {
		return options, options[i], nil
	}
	return nil, "", fmt.Errorf("%w: correct answer %q is not one of the options", provider.ErrMalformedOutput, answer)
}

func optionLetter(answer string) (int, bool) {
	s := strings.ToUpper(strings.TrimSpace(answer))
	s = strings.TrimPrefix(s, "OPTION ")
	s = strings.TrimRight(s, ").:")
	if len(s) == 1 && s[0] >= 'A' && s[0] <= 'D' {
		return int(s[0] - 'A'), true
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Duplicate detection
// ---------------------------------------------------------------------------

// IsDuplicate reports whether text equals, contains or is contained in any
// prior question text, ignoring case, punctuation at the ends and spacing.
func IsDuplicate(text string, prior []string) bool {
	t := normalizeText(text)
	if t == "" {
		return false
	}
	for _, p := range prior {
		p = normalizeText(p)
		if p == "" {
			continue
		}
		if t == p || strings.Contains(t, p) || strings.Contains(p, t) {
			return true
		}
	}
	return false
}

func normalizeText(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return strings.Trim(s, " ?.!")
}

// ---------------------------------------------------------------------------
// Fallback questions
// ---------------------------------------------------------------------------

var fallbacks = map[QuestionType][]Question{
	TypeMCQ: {
		{
			QuestionText:  "What is the chemical formula of table salt?",
			Options:       []string{"NaCl", "KCl", "NaOH", "HCl"},
			CorrectAnswer: "NaCl",
			Explanation:   "Table salt is sodium chloride, one Na+ ion for every Cl- ion.",
			Topic:         "chemical bonding",
		},
		{
			QuestionText:  "What is the pH of pure water at 25 °C?",
			Options:       []string{"7", "0", "14", "1"},
			CorrectAnswer: "7",
			Explanation:   "Pure water self-ionizes equally into H+ and OH-, giving a neutral pH of 7.",
			Topic:         "acids and bases",
		},
	},
	TypeExplanation: {
		{
			QuestionText:  "Explain why ionic compounds such as NaCl conduct electricity when dissolved in water.",
			CorrectAnswer: "The ions are free to move in solution",
			Explanation:   "Dissolving separates the lattice into mobile Na+ and Cl- ions that carry charge.",
			Topic:         "chemical bonding",
		},
	},
	TypeCompleteReaction: {
		{
			QuestionText:  "Complete the reaction: HCl + NaOH → NaCl + ___",
			CorrectAnswer: "H2O",
			Explanation:   "An acid and a base neutralize each other to form a salt and water.",
			Topic:         "acids and bases",
		},
	},
	TypeBalanceEquation: {
		{
			QuestionText:  "Balance the equation: H2 + O2 → H2O",
			CorrectAnswer: "2H2 + O2 → 2H2O",
			Explanation:   "Four hydrogen atoms and two oxygen atoms appear on each side when H2 and H2O both have a coefficient of 2.",
			Topic:         "stoichiometry",
		},
	},
	TypeGuessProduct: {
		{
			QuestionText:  "What solid product forms when silver nitrate solution is mixed with sodium chloride solution?",
			CorrectAnswer: "AgCl",
			Explanation:   "Silver chloride is insoluble and precipitates as a white solid.",
			Topic:         "precipitation reactions",
		},
	},
}

// FallbackQuestion returns the n-th built-in question for t, cycling when n
// exceeds the set.
func FallbackQuestion(t QuestionType, n int) Question {
	set, ok := fallbacks[t]
	if !ok {
		t, set = TypeExplanation, fallbacks[TypeExplanation]
	}
	q := set[n%len(set)]
	q.QuestionType = t
	if q.Options != nil {
		q.Options = append([]string(nil), q.Options...)
	}
	return q
}

// FallbackSuggestion is used whenever a remediation hint cannot be generated.
func FallbackSuggestion(topic string) string {
	return fmt.Sprintf("Review the explanation for this question and revisit the topic of %s.", topic)
}
