package analysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/chemtutor/internal/provider"
)

func TestNormalizeMolecule(t *testing.T) {
	raw := "```json\n" + `{
  "name": "Water",
  "atoms": [
    {"id": "o1", "element": "O", "x": 0, "y": 0, "z": 0},
    {"id": "h1", "element": "H", "x": 0.96, "y": 0, "z": 0},
    {"id": "h2", "element": "H", "x": -0.24, "y": 0.93, "z": 0},
    {"id": "h2", "element": "H", "x": 9, "y": 9, "z": 9},
    {"id": "x1"}
  ],
  "bonds": [
    {"id": "b1", "from": "o1", "to": "h1", "type": "SINGLE"},
    {"from": "o1", "to": "h2"},
    {"id": "b3", "from": "o1", "to": "ghost", "type": "single"},
    {"id": "b4", "from": "h1", "to": "h1"},
    {"id": "b5", "from": "h1", "to": "h2", "type": "quadruple"}
  ]
}` + "\n```"

	m, err := NormalizeMolecule(raw)
	require.NoError(t, err)

	assert.Equal(t, "Water", m.Name)
	assert.Equal(t, "H2O", m.Formula, "formula derived when absent")
	require.Len(t, m.Atoms, 3)
	assert.Equal(t, 0.96, m.Atoms[1].X)

	require.Len(t, m.Bonds, 3)
	assert.Equal(t, Bond{ID: "b1", From: "o1", To: "h1", Type: "single"}, m.Bonds[0])
	assert.Equal(t, Bond{ID: "b2", From: "o1", To: "h2", Type: "single"}, m.Bonds[1])
	assert.Equal(t, "single", m.Bonds[2].Type, "unknown bond types fall back to single")
}

func TestNormalizeMoleculeDefaults(t *testing.T) {
	m, err := NormalizeMolecule(`{"atoms": [{"element": "C"}, {"element": "O"}, {"element": "O"}], "bonds": [{"from": "a1", "to": "a2", "type": "double"}]}`)
	require.NoError(t, err)

	assert.Equal(t, DefaultMoleculeName, m.Name)
	assert.Equal(t, "CO2", m.Formula)
	assert.Equal(t, []string{"a1", "a2", "a3"}, []string{m.Atoms[0].ID, m.Atoms[1].ID, m.Atoms[2].ID})
	require.Len(t, m.Bonds, 1)
	assert.Equal(t, "double", m.Bonds[0].Type)
}

func TestNormalizeMoleculeWithoutAtoms(t *testing.T) {
	_, err := NormalizeMolecule(`{"name": "Nothing", "atoms": []}`)
	assert.ErrorIs(t, err, provider.ErrMalformedOutput)
}

func TestNormalizeMoleculeProperties(t *testing.T) {
	input := &Molecule{Name: "my molecule", Atoms: []Atom{{ID: "a1", Element: "H"}, {ID: "a2", Element: "Cl"}}}

	props, err := NormalizeMoleculeProperties(`{"geometry": "linear", "molecularWeight": 36.46, "uses": ["cleaning"]}`, input)
	require.NoError(t, err)

	assert.Equal(t, "my molecule", props.Name)
	assert.Equal(t, "ClH", props.Formula)
	assert.Equal(t, 36.46, props.MolecularWeight)
	assert.Equal(t, "linear", props.Geometry)
	assert.Equal(t, DefaultMoleculeDetail, props.Polarity)
	assert.Equal(t, []string{"cleaning"}, props.Uses)
	assert.Equal(t, []string{}, props.FunctionalGroups)
	assert.Equal(t, DefaultMoleculeSafety, props.Safety)
}

func TestNormalizeMoleculePropertiesEmptyListsSerializeAsArrays(t *testing.T) {
	props, err := NormalizeMoleculeProperties(`{}`, &Molecule{Name: "m"})
	require.NoError(t, err)

	out, err := json.Marshal(props)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "null")
	assert.Contains(t, string(out), `"functionalGroups":[]`)
	assert.Contains(t, string(out), `"uses":[]`)
}

func TestHillFormula(t *testing.T) {
	atoms := func(elements ...string) []Atom {
		out := make([]Atom, len(elements))
		for i, el := range elements {
			out[i] = Atom{Element: el}
		}
		return out
	}

	assert.Equal(t, "CH4", HillFormula(atoms("H", "C", "H", "H", "H")))
	assert.Equal(t, "C2H6O", HillFormula(atoms("O", "C", "C", "H", "H", "H", "H", "H", "H")))
	assert.Equal(t, "H2O4S", HillFormula(atoms("S", "O", "O", "O", "O", "H", "H")))
	assert.Equal(t, "ClNa", HillFormula(atoms("Na", "Cl")))
	assert.Equal(t, "", HillFormula(nil))
}

func TestDescribeStructure(t *testing.T) {
	text := DescribeStructure(&Molecule{
		Atoms: []Atom{{ID: "a1", Element: "O"}, {ID: "a2", Element: "H", X: 0.96}},
		Bonds: []Bond{{From: "a1", To: "a2"}},
	})
	assert.Contains(t, text, "Atoms (2):")
	assert.Contains(t, text, "- a2 H at (0.96, 0.00, 0.00)")
	assert.Contains(t, text, "- a1-a2 single")
}
