package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/howard-nolan/chemtutor/internal/quiz"
)

// handleQuizGenerate handles POST /quiz/generate.
func (s *Server) handleQuizGenerate(w http.ResponseWriter, r *http.Request) {
	var cfg quiz.Config
	if err := decodeJSON(w, r, &cfg); err != nil {
		s.writeError(w, r, err)
		return
	}

	generated, err := s.deps.Quiz.Generate(r.Context(), cfg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, generated)
}

// handleQuizQuestion handles GET /quiz/session/{sessionID}/question/{index}.
func (s *Server) handleQuizQuestion(w http.ResponseWriter, r *http.Request) {
	// chi.URLParam extracts {placeholders} from the matched route.
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: index must be an integer", quiz.ErrInvalidArgument))
		return
	}

	view, err := s.deps.Quiz.GetQuestion(r.Context(), chi.URLParam(r, "sessionID"), index)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleQuizSubmit handles POST /quiz/session/{sessionID}/submit-answer.
func (s *Server) handleQuizSubmit(w http.ResponseWriter, r *http.Request) {
	var ans quiz.UserAnswer
	if err := decodeJSON(w, r, &ans); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.deps.Quiz.SubmitAnswer(r.Context(), chi.URLParam(r, "sessionID"), ans)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleQuizFinish handles POST /quiz/session/{sessionID}/finish. The body
// is a JSON array of answers.
func (s *Server) handleQuizFinish(w http.ResponseWriter, r *http.Request) {
	var answers []quiz.UserAnswer
	if err := decodeJSON(w, r, &answers); err != nil {
		s.writeError(w, r, err)
		return
	}

	report, err := s.deps.Quiz.Finish(r.Context(), chi.URLParam(r, "sessionID"), answers)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
