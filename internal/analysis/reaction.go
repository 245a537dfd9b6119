package analysis

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ReactionAnalysis is the full normalized shape returned by
// /analyze-reaction. Nullable fields are pointers.
type ReactionAnalysis struct {
	BalancedEquation   string              `json:"balancedEquation"`
	ReactionType       string              `json:"reactionType"`
	Color              string              `json:"color"`
	Smell              string              `json:"smell"`
	Precipitate        bool                `json:"precipitate"`
	PrecipitateColor   *string             `json:"precipitateColor"`
	Temperature        string              `json:"temperature"`
	TemperatureChange  string              `json:"temperatureChange"`
	GasEvolution       bool                `json:"gasEvolution"`
	Products           []string            `json:"products"`
	Observations       []string            `json:"observations"`
	SafetyNotes        []string            `json:"safetyNotes"`
	Confidence         float64             `json:"confidence"`
	VisualObservation  string              `json:"visualObservation"`
	InstrumentAnalysis *InstrumentAnalysis `json:"instrumentAnalysis"`
	ProductsInfo       []ProductInfo       `json:"productsInfo"`
	Explanation        Explanation         `json:"explanation"`
	Safety             Safety              `json:"safety"`
	PHChange           *string             `json:"phChange"`
	Emission           *string             `json:"emission"`
	StateChange        *string             `json:"stateChange"`
}

type InstrumentAnalysis struct {
	Name              string `json:"name"`
	Intensity         string `json:"intensity"`
	Change            string `json:"change"`
	OutcomeDifference string `json:"outcomeDifference"`
	Counterfactual    string `json:"counterfactual"`
}

type ProductInfo struct {
	Name        string `json:"name"`
	Formula     string `json:"formula"`
	State       string `json:"state"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

type Explanation struct {
	Mechanism     string `json:"mechanism"`
	BondBreaking  string `json:"bondBreaking"`
	EnergyProfile string `json:"energyProfile"`
	AtomicLevel   string `json:"atomicLevel"`
	KeyConcept    string `json:"keyConcept"`
}

type Safety struct {
	RiskLevel      string `json:"riskLevel"`
	Precautions    string `json:"precautions"`
	Disposal       string `json:"disposal"`
	FirstAid       string `json:"firstAid"`
	GeneralHazards string `json:"generalHazards"`
}

// Defaults for fields the model leaves out.
const (
	DefaultColor             = "unknown"
	DefaultSmell             = "none"
	DefaultEquation          = "Reaction equation unknown"
	DefaultReactionType      = "unknown"
	DefaultVisualObservation = "No observation details provided"
	DefaultTemperature       = "unchanged"
	DefaultConfidence        = 0.5
	DefaultExplanation       = "Analysis not available"
)

var (
	defaultProducts     = []string{"Unknown"}
	defaultObservations = []string{"Reaction occurred"}
	defaultSafetyNotes  = []string{"Handle with care"}

	defaultSafety = Safety{
		RiskLevel:      "Low",
		Precautions:    "Standard lab safety protocols apply",
		Disposal:       "Dispose according to local regulations",
		FirstAid:       "Rinse with water if contact occurs",
		GeneralHazards: "None identified",
	}
)

// NormalizeReaction parses model output into a complete ReactionAnalysis.
// It fails only when the text is not a JSON object.
func NormalizeReaction(raw string) (*ReactionAnalysis, error) {
	obj, err := parseObject(raw)
	if err != nil {
		return nil, err
	}

	r := &ReactionAnalysis{
		BalancedEquation:  str(obj, "balancedEquation", DefaultEquation),
		ReactionType:      str(obj, "reactionType", DefaultReactionType),
		Color:             str(obj, "color", DefaultColor),
		Smell:             str(obj, "smell", DefaultSmell),
		Precipitate:       boolean(obj, "precipitate", false),
		PrecipitateColor:  optStr(obj, "precipitateColor"),
		GasEvolution:      boolean(obj, "gasEvolution", false),
		Observations:      strListOr(obj, "observations", defaultObservations),
		SafetyNotes:       strListOr(obj, "safetyNotes", defaultSafetyNotes),
		Confidence:        confidence(obj.Get("confidence")),
		VisualObservation: str(obj, "visualObservation", DefaultVisualObservation),
		ProductsInfo:      productsInfo(obj.Get("productsInfo")),
		Explanation:       explanation(obj.Get("explanation")),
		Safety:            safety(obj.Get("safety")),
		PHChange:          optStr(obj, "phChange"),
		Emission:          optStr(obj, "emission"),
		StateChange:       optStr(obj, "stateChange"),
	}

	if ia := obj.Get("instrumentAnalysis"); ia.IsObject() {
		r.InstrumentAnalysis = &InstrumentAnalysis{
			Name:              str(ia, "name", ""),
			Intensity:         str(ia, "intensity", ""),
			Change:            str(ia, "change", ""),
			OutcomeDifference: str(ia, "outcomeDifference", ""),
			Counterfactual:    str(ia, "counterfactual", ""),
		}
	}

	// Products: explicit list, else names from productsInfo, else default.
	if products, ok := strList(obj, "products"); ok {
		r.Products = products
	} else if names := productNames(r.ProductsInfo); len(names) > 0 {
		r.Products = names
	} else {
		r.Products = append([]string(nil), defaultProducts...)
	}

	// temperature and temperatureChange describe the same thing at two
	// granularities; whichever is missing is derived from the other.
	temperature := str(obj, "temperature", "")
	change := str(obj, "temperatureChange", "")
	switch {
	case temperature == "" && change == "":
		r.Temperature, r.TemperatureChange = DefaultTemperature, "none"
	case change == "":
		r.Temperature, r.TemperatureChange = temperature, changeFromTemperature(temperature)
	case temperature == "":
		r.Temperature, r.TemperatureChange = temperatureFromChange(change), change
	default:
		r.Temperature, r.TemperatureChange = temperature, change
	}

	return r, nil
}

func confidence(v gjson.Result) float64 {
	if v.Type != gjson.Number {
		return DefaultConfidence
	}
	c := v.Float()
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

func productsInfo(v gjson.Result) []ProductInfo {
	infos := []ProductInfo{}
	if !v.IsArray() {
		return infos
	}
	for _, item := range v.Array() {
		if !item.IsObject() {
			continue
		}
		infos = append(infos, ProductInfo{
			Name:        str(item, "name", ""),
			Formula:     str(item, "formula", ""),
			State:       str(item, "state", ""),
			Color:       str(item, "color", ""),
			Description: str(item, "description", ""),
		})
	}
	return infos
}

func productNames(infos []ProductInfo) []string {
	var names []string
	for _, p := range infos {
		switch {
		case p.Name != "":
			names = append(names, p.Name)
		case p.Formula != "":
			names = append(names, p.Formula)
		}
	}
	return names
}

func explanation(v gjson.Result) Explanation {
	return Explanation{
		Mechanism:     str(v, "mechanism", DefaultExplanation),
		BondBreaking:  str(v, "bondBreaking", DefaultExplanation),
		EnergyProfile: str(v, "energyProfile", DefaultExplanation),
		AtomicLevel:   str(v, "atomicLevel", DefaultExplanation),
		KeyConcept:    str(v, "keyConcept", DefaultExplanation),
	}
}

func safety(v gjson.Result) Safety {
	return Safety{
		RiskLevel:      str(v, "riskLevel", defaultSafety.RiskLevel),
		Precautions:    str(v, "precautions", defaultSafety.Precautions),
		Disposal:       str(v, "disposal", defaultSafety.Disposal),
		FirstAid:       str(v, "firstAid", defaultSafety.FirstAid),
		GeneralHazards: str(v, "generalHazards", defaultSafety.GeneralHazards),
	}
}

func changeFromTemperature(t string) string {
	switch strings.ToLower(t) {
	case "increased":
		return "exothermic"
	case "decreased":
		return "endothermic"
	}
	return "none"
}

func temperatureFromChange(c string) string {
	switch strings.ToLower(c) {
	case "exothermic":
		return "increased"
	case "endothermic":
		return "decreased"
	}
	return DefaultTemperature
}
