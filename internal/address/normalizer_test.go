package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_IdentityKey(t *testing.T) {
	n, err := Normalize("123 Main Street", "Springfield", "Illinois", "62704", "Sangamon")
	require.NoError(t, err)

	assert.Equal(t, "123 MAIN ST", n.Line)
	assert.Equal(t, "SPRINGFIELD", n.City)
	assert.Equal(t, "IL", n.State)
	assert.Equal(t, "62704", n.PostalCode)
	assert.Equal(t, "123 MAIN ST|SPRINGFIELD|62704", n.Key())
}

func TestNormalize_CaseAndWhitespaceInvariant(t *testing.T) {
	a, err := Normalize("123 Main Street", "Springfield", "IL", "62704", "")
	require.NoError(t, err)

	b, err := Normalize("  123  main   STREET ", " springfield ", "il", " 62704 ", "")
	require.NoError(t, err)

	assert.Equal(t, a.Key(), b.Key())
}

func TestNormalize_SuffixAbbreviations(t *testing.T) {
	cases := map[string]string{
		"9 Oak Avenue":      "9 OAK AVE",
		"9 Oak Ave.":        "9 OAK AVE",
		"9 Oak Boulevard":   "9 OAK BLVD",
		"9 Oak Drive":       "9 OAK DR",
		"9 Oak Lane":        "9 OAK LN",
		"9 Oak Road":        "9 OAK RD",
		"9 Oak Court":       "9 OAK CT",
		"9 Oak Way":         "9 OAK WAY",
		"9 Oak Trail":       "9 OAK TRL",
	}
	for raw, want := range cases {
		n, err := Normalize(raw, "Provo", "UT", "84604", "")
		require.NoError(t, err, raw)
		assert.Equal(t, want, n.Line, raw)
	}
}

func TestNormalize_UnitStripping(t *testing.T) {
	cases := []struct {
		raw  string
		line string
		unit string
	}{
		{"123 Main St Apt 4B", "123 MAIN ST", "APT 4B"},
		{"123 Main St Unit 12", "123 MAIN ST", "UNIT 12"},
		{"123 Main St Suite 300", "123 MAIN ST", "SUITE 300"},
		{"123 Main St #4", "123 MAIN ST", "4"},
		{"123 Main St", "123 MAIN ST", ""},
	}
	for _, tc := range cases {
		n, err := Normalize(tc.raw, "Springfield", "IL", "62704", "")
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.line, n.Line, tc.raw)
		assert.Equal(t, tc.unit, n.Unit, tc.raw)
	}
}

func TestNormalize_UnitExcludedFromKey(t *testing.T) {
	a, err := Normalize("123 Main St Apt 4", "Springfield", "IL", "62704", "")
	require.NoError(t, err)
	b, err := Normalize("123 Main St #4", "Springfield", "IL", "62704", "")
	require.NoError(t, err)

	assert.Equal(t, a.Key(), b.Key())
}

func TestNormalize_ZipPlusFour(t *testing.T) {
	a, err := Normalize("123 Main St", "Springfield", "IL", "62704-1234", "")
	require.NoError(t, err)
	assert.Equal(t, "62704", a.PostalCode)
}

func TestNormalize_InvalidAddress(t *testing.T) {
	_, err := Normalize("", "Springfield", "IL", "62704", "")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = Normalize("123 Main St", "Springfield", "IL", "   ", "")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestNormalizeState(t *testing.T) {
	assert.Equal(t, "UT", NormalizeState("utah"))
	assert.Equal(t, "UT", NormalizeState("UT"))
	assert.Equal(t, "NY", NormalizeState("New York"))
	assert.Equal(t, "", NormalizeState(""))
}
