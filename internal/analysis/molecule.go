package analysis

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/howard-nolan/chemtutor/internal/provider"
)

// Molecule is a 3D structure: generated by /generate-molecule, or built by
// the student and sent to /analyze-molecule.
type Molecule struct {
	Name    string `json:"name"`
	Formula string `json:"formula"`
	Atoms   []Atom `json:"atoms"`
	Bonds   []Bond `json:"bonds"`
}

type Atom struct {
	ID      string  `json:"id"`
	Element string  `json:"element"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
}

type Bond struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

// MoleculeProperties describes a structure in words and numbers.
type MoleculeProperties struct {
	Name             string   `json:"name"`
	Formula          string   `json:"formula"`
	MolecularWeight  float64  `json:"molecularWeight"`
	Geometry         string   `json:"geometry"`
	Polarity         string   `json:"polarity"`
	BondAngles       string   `json:"bondAngles"`
	Hybridization    string   `json:"hybridization"`
	FunctionalGroups []string `json:"functionalGroups"`
	Properties       []string `json:"properties"`
	Uses             []string `json:"uses"`
	Safety           string   `json:"safety"`
}

const (
	DefaultMoleculeName   = "Unknown molecule"
	DefaultBondType       = "single"
	DefaultMoleculeDetail = "unknown"
	DefaultMoleculeSafety = "Handle with standard laboratory care"
)

var bondTypes = map[string]bool{
	"single": true, "double": true, "triple": true, "ionic": true,
	"hydrogen": true, "aromatic": true, "dative": true,
}

// NormalizeMolecule parses a generated structure. Atoms without an element
// and duplicate atom ids are dropped, as are bonds whose endpoints are not
// known atoms. A structure left with no atoms is malformed.
func NormalizeMolecule(raw string) (*Molecule, error) {
	obj, err := parseObject(raw)
	if err != nil {
		return nil, err
	}

	m := &Molecule{
		Name:  str(obj, "name", DefaultMoleculeName),
		Atoms: []Atom{},
		Bonds: []Bond{},
	}

	known := make(map[string]bool)
	for i, a := range obj.Get("atoms").Array() {
		element := strings.TrimSpace(str(a, "element", ""))
		if element == "" {
			continue
		}
		id := idField(a, "id", fmt.Sprintf("a%d", i+1))
		if known[id] {
			continue
		}
		known[id] = true
		m.Atoms = append(m.Atoms, Atom{
			ID:      id,
			Element: element,
			X:       a.Get("x").Float(),
			Y:       a.Get("y").Float(),
			Z:       a.Get("z").Float(),
		})
	}
	if len(m.Atoms) == 0 {
		return nil, fmt.Errorf("%w: molecule has no atoms", provider.ErrMalformedOutput)
	}

	m.Bonds = sanitizeBonds(obj.Get("bonds").Array(), known)
	m.Formula = str(obj, "formula", HillFormula(m.Atoms))
	return m, nil
}

func sanitizeBonds(raw []gjson.Result, known map[string]bool) []Bond {
	bonds := []Bond{}
	for i, b := range raw {
		from, to := idField(b, "from", ""), idField(b, "to", "")
		if !known[from] || !known[to] || from == to {
			continue
		}
		kind := strings.ToLower(str(b, "type", DefaultBondType))
		if !bondTypes[kind] {
			kind = DefaultBondType
		}
		bonds = append(bonds, Bond{
			ID:   idField(b, "id", fmt.Sprintf("b%d", i+1)),
			From: from,
			To:   to,
			Type: kind,
		})
	}
	return bonds
}

// idField accepts string or numeric ids.
func idField(obj gjson.Result, key, def string) string {
	v := obj.Get(key)
	switch v.Type {
	case gjson.String:
		if s := strings.TrimSpace(v.Str); s != "" {
			return s
		}
	case gjson.Number:
		return v.Raw
	}
	return def
}

// NormalizeMoleculeProperties parses a molecule description. Name and
// formula fall back to those of the analyzed structure.
func NormalizeMoleculeProperties(raw string, input *Molecule) (*MoleculeProperties, error) {
	obj, err := parseObject(raw)
	if err != nil {
		return nil, err
	}

	name, formula := DefaultMoleculeName, ""
	if input != nil {
		if input.Name != "" {
			name = input.Name
		}
		formula = HillFormula(input.Atoms)
	}

	weight := 0.0
	if v := obj.Get("molecularWeight"); v.Type == gjson.Number && v.Float() > 0 {
		weight = v.Float()
	}

	return &MoleculeProperties{
		Name:             str(obj, "name", name),
		Formula:          str(obj, "formula", formula),
		MolecularWeight:  weight,
		Geometry:         str(obj, "geometry", DefaultMoleculeDetail),
		Polarity:         str(obj, "polarity", DefaultMoleculeDetail),
		BondAngles:       str(obj, "bondAngles", DefaultMoleculeDetail),
		Hybridization:    str(obj, "hybridization", DefaultMoleculeDetail),
		FunctionalGroups: strListOr(obj, "functionalGroups", []string{}),
		Properties:       strListOr(obj, "properties", []string{}),
		Uses:             strListOr(obj, "uses", []string{}),
		Safety:           str(obj, "safety", DefaultMoleculeSafety),
	}, nil
}

// HillFormula renders atom counts in Hill order: C, then H, then the other
// elements alphabetically. Without carbon every element is alphabetical.
func HillFormula(atoms []Atom) string {
	counts := make(map[string]int)
	for _, a := range atoms {
		counts[a.Element]++
	}

	var elements []string
	for el := range counts {
		if counts["C"] > 0 && (el == "C" || el == "H") {
			continue
		}
		elements = append(elements, el)
	}
	sort.Strings(elements)
	if counts["C"] > 0 {
		head := []string{"C"}
		if counts["H"] > 0 {
			head = append(head, "H")
		}
		elements = append(head, elements...)
	}

	var b strings.Builder
	for _, el := range elements {
		b.WriteString(el)
		if n := counts[el]; n > 1 {
			b.WriteString(strconv.Itoa(n))
		}
	}
	return b.String()
}

// DescribeStructure renders atoms and bonds as plain text for a prompt.
func DescribeStructure(m *Molecule) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Atoms (%d):\n", len(m.Atoms))
	for _, a := range m.Atoms {
		fmt.Fprintf(&b, "- %s %s at (%.2f, %.2f, %.2f)\n", a.ID, a.Element, a.X, a.Y, a.Z)
	}
	fmt.Fprintf(&b, "Bonds (%d):\n", len(m.Bonds))
	for _, bond := range m.Bonds {
		kind := bond.Type
		if kind == "" {
			kind = DefaultBondType
		}
		fmt.Fprintf(&b, "- %s-%s %s\n", bond.From, bond.To, kind)
	}
	return b.String()
}
