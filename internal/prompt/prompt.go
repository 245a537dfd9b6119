// Package prompt assembles system and user prompt text for every generation
// mode. Everything here is pure: no network, no state, same input gives the
// same strings.
package prompt

import (
	"fmt"
	"strings"
)

// Mode selects the persona/style template.
type Mode int

const (
	ModeConciseTutor Mode = iota
	ModeDetailedTutor
	ModeReactionAnalysis
	ModeMoleculeGeneration
	ModeMoleculeAnalysis
	ModeQuizQuestion
	ModeSuggestion
)

func (m Mode) String() string {
	switch m {
	case ModeConciseTutor:
		return "concise_tutor"
	case ModeDetailedTutor:
		return "detailed_tutor"
	case ModeReactionAnalysis:
		return "reaction_analysis"
	case ModeMoleculeGeneration:
		return "molecule_generation"
	case ModeMoleculeAnalysis:
		return "molecule_analysis"
	case ModeQuizQuestion:
		return "quiz_question"
	case ModeSuggestion:
		return "suggestion"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Limits on how many caller-supplied items are interpolated.
const (
	MaxChatItems         = 10
	MaxAnalysisChemicals = 3
	MaxAnalysisEquipment = 2
)

// Truncate returns at most n items of list.
func Truncate(list []string, n int) []string {
	if len(list) > n {
		return list[:n]
	}
	return list
}

// ---------------------------------------------------------------------------
// Chat
// ---------------------------------------------------------------------------

// ChatInput is everything a tutoring turn can mention.
type ChatInput struct {
	Query      string
	LabContext string
	Chemicals  []string
	Equipment  []string
	History    []ChatTurn
	Knowledge  string // retrieved reference text, may be empty
}

const tutorIdentity = `You are ERA (ELIXRA Reaction Avatar), a chemistry teacher.
- You have already introduced yourself; do not repeat introductions.
- Format every answer as bullet points using only the dash symbol (-).
- Never use asterisks for bullets or emphasis.`

const conciseStyle = `
- Keep responses short: 2-3 bullets, 1-2 sentences each.
- Be friendly and educational.`

const detailedStyle = `
- One key concept per bullet; use indented "  -" sub-bullets for details.
- Explain step by step in simple terms, with analogies when helpful.
- For reactions cover mechanism, observations and safety.
- Get straight to the answer without filler phrases.`

// NoKnowledge is used when no retrieval backend is configured.
const NoKnowledge = "Chemistry knowledge base not loaded. Providing general chemistry assistance."

// Chat builds the tutoring prompt for ModeConciseTutor or ModeDetailedTutor.
// Any other mode is treated as detailed.
func Chat(mode Mode, in ChatInput) (system, user string) {
	system = tutorIdentity + detailedStyle
	if mode == ModeConciseTutor {
		system = tutorIdentity + conciseStyle
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Student Question: %s\n", in.Query)
	if in.LabContext != "" {
		fmt.Fprintf(&b, "\nCurrent Lab Context: %s\n", in.LabContext)
	}
	if len(in.Chemicals) > 0 {
		fmt.Fprintf(&b, "\nChemicals Being Used: %s\n", strings.Join(Truncate(in.Chemicals, MaxChatItems), ", "))
	}
	if len(in.Equipment) > 0 {
		fmt.Fprintf(&b, "\nEquipment Available: %s\n", strings.Join(Truncate(in.Equipment, MaxChatItems), ", "))
	}
	if history := RenderHistory(in.History); history != "" {
		b.WriteString("\n" + history)
	}

	knowledge := in.Knowledge
	if knowledge == "" {
		knowledge = NoKnowledge
	}
	fmt.Fprintf(&b, "\nRelevant Chemistry Knowledge:\n%s\n", knowledge)
	b.WriteString("\nPlease provide a clear, educational response as a chemistry teacher would.")

	return system, b.String()
}

// ---------------------------------------------------------------------------
// Structured analyses
// ---------------------------------------------------------------------------

const jsonOnly = "Return ONLY valid JSON (no markdown, no explanation, no extra text)."

const analysisSystem = "You are a precise chemistry lab assistant. " + jsonOnly

// ReactionSchema is the exact object the reaction analysis must return.
const ReactionSchema = `{
  "balancedEquation": "balanced equation with states",
  "reactionType": "precipitation | acid-base | redox | combustion | decomposition | synthesis | displacement | no reaction",
  "color": "final solution color or 'colorless'",
  "smell": "describe any smell or 'none'",
  "precipitate": true or false,
  "precipitateColor": "color if a precipitate forms, else null",
  "temperature": "increased | decreased | unchanged",
  "temperatureChange": "exothermic | endothermic | none",
  "gasEvolution": true or false,
  "products": ["product formulas"],
  "observations": ["observation"],
  "safetyNotes": ["safety note"],
  "confidence": 0.0 to 1.0,
  "visualObservation": "one sentence describing what the student sees",
  "instrumentAnalysis": {"name": "instrument", "intensity": "", "change": "", "outcomeDifference": "", "counterfactual": ""},
  "productsInfo": [{"name": "", "formula": "", "state": "s | l | g | aq", "color": "", "description": ""}],
  "explanation": {"mechanism": "", "bondBreaking": "", "energyProfile": "", "atomicLevel": "", "keyConcept": ""},
  "safety": {"riskLevel": "Low | Medium | High", "precautions": "", "disposal": "", "firstAid": "", "generalHazards": ""},
  "phChange": "resulting pH or null",
  "emission": "light or gas emission or null",
  "stateChange": "state change or null"
}`

// ReactionAnalysis builds the prompt for ModeReactionAnalysis. Chemicals
// and equipment are truncated to the analysis bounds.
func ReactionAnalysis(chemicals, equipment []string) (system, user string) {
	subject := strings.Join(Truncate(chemicals, MaxAnalysisChemicals), ", ")
	if len(equipment) > 0 {
		subject += " using " + strings.Join(Truncate(equipment, MaxAnalysisEquipment), ", ")
	}

	user = fmt.Sprintf("Analyze this chemical reaction: %s\n\n%s\nUse exactly this structure:\n%s",
		subject, jsonOnly, ReactionSchema)
	return analysisSystem, user
}

// MoleculeSchema is the 3D structure object for ModeMoleculeGeneration.
const MoleculeSchema = `{
  "name": "common name",
  "formula": "molecular formula",
  "atoms": [{"id": "a1", "element": "C", "x": 0.0, "y": 0.0, "z": 0.0}],
  "bonds": [{"id": "b1", "from": "a1", "to": "a2", "type": "single | double | triple | ionic | hydrogen | aromatic | dative"}]
}`

// MoleculeGeneration builds the prompt that asks for a 3D structure.
func MoleculeGeneration(description string) (system, user string) {
	user = fmt.Sprintf("Generate a 3D structure (coordinates in angstroms, centered on the origin) for: %s\n\n%s\nUse exactly this structure:\n%s",
		description, jsonOnly, MoleculeSchema)
	return analysisSystem, user
}

// MoleculePropertiesSchema is the object for ModeMoleculeAnalysis.
const MoleculePropertiesSchema = `{
  "name": "", "formula": "", "molecularWeight": 0.0,
  "geometry": "", "polarity": "polar | nonpolar", "bondAngles": "", "hybridization": "",
  "functionalGroups": [""], "properties": [""], "uses": [""], "safety": ""
}`

// MoleculeAnalysis builds the prompt that describes a user-built structure.
// structure is a plain-text rendering of atoms and bonds.
func MoleculeAnalysis(name, structure string) (system, user string) {
	var b strings.Builder
	b.WriteString("Identify and describe this molecule")
	if name != "" {
		fmt.Fprintf(&b, " (the student calls it %q)", name)
	}
	fmt.Fprintf(&b, ":\n%s\n\n%s\nUse exactly this structure:\n%s", structure, jsonOnly, MoleculePropertiesSchema)
	return analysisSystem, b.String()
}
