package server

import (
	"net/http"

	"github.com/howard-nolan/chemtutor/internal/analysis"
)

// handleAnalyzeReaction handles POST /analyze-reaction. The reply is always
// the full normalized object; fewer than two chemicals is a 400 and no
// provider is called.
func (s *Server) handleAnalyzeReaction(w http.ResponseWriter, r *http.Request) {
	var req analysis.ReactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.deps.Analyzer.AnalyzeReaction(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type moleculeRequest struct {
	Description string `json:"description"`
}

// handleGenerateMolecule handles POST /generate-molecule.
func (s *Server) handleGenerateMolecule(w http.ResponseWriter, r *http.Request) {
	var req moleculeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	molecule, err := s.deps.Analyzer.GenerateMolecule(r.Context(), req.Description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, molecule)
}

// handleAnalyzeMolecule handles POST /analyze-molecule with a body of
// {atoms, bonds, name?}.
func (s *Server) handleAnalyzeMolecule(w http.ResponseWriter, r *http.Request) {
	var req analysis.Molecule
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	props, err := s.deps.Analyzer.AnalyzeMolecule(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, props)
}
