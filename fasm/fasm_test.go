package fasm

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tables := []struct {
		name  string
		input string
		want  Line
	}{
		{
			name:  "blank",
			input: "   ",
			want:  Line{},
		},
		{
			name:  "comment",
			input: "# hello",
			want:  Line{Comment: " hello"},
		},
		{
			name:  "feature",
			input: "CLBLL_L_X2Y10.SLICEL_X0.FFSYNC",
			want:  Line{Set: Enable("CLBLL_L_X2Y10.SLICEL_X0.FFSYNC")},
		},
		{
			name:  "bit",
			input: "CLBLL_L_X2Y10.SLICEL_X0.ALUT.INIT[5]",
			want:  Line{Set: EnableBit("CLBLL_L_X2Y10.SLICEL_X0.ALUT.INIT", 5)},
		},
		{
			name:  "range",
			input: "T.INIT[3:0] = 4'b1010",
			want: Line{Set: &SetFeature{
				Feature:     "T.INIT",
				Start:       0,
				End:         3,
				Value:       big.NewInt(10),
				ValueFormat: Binary,
			}},
		},
		{
			name:  "annotated",
			input: `{ unknown_bit = "00000010_0_5", unknown_segment = "0x00000000" }`,
			want: Line{Annotations: []Annotation{
				{"unknown_bit", "00000010_0_5"},
				{"unknown_segment", "0x00000000"},
			}},
		},
		{
			name:  "everything",
			input: `T.F[7:4] = 8'hA_0 { src = "a#b" } # trailing`,
			want: Line{
				Set: &SetFeature{
					Feature:     "T.F",
					Start:       4,
					End:         7,
					Value:       big.NewInt(0xa0),
					ValueFormat: Hex,
				},
				Annotations: []Annotation{{"src", "a#b"}},
				Comment:     " trailing",
			},
		},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			got, err := ParseLine(table.input)
			require.NoError(t, err)
			assert.Equal(t, table.want, got)
		})
	}
}

func TestParseLineErrors(t *testing.T) {
	tables := []string{
		"T.F[",
		"T.F[a]",
		"T.F[1:3]",
		"T.F = ",
		"T.F = 4'x1",
		"T.F = 2'b111",
		"T.F { a = b }",
		"T.F { a = \"b\" ",
		"T F",
	}

	for _, table := range tables {
		_, err := ParseLine(table)
		assert.Error(t, err, table)
	}
}

func TestLineString(t *testing.T) {
	tables := []string{
		"T.F",
		"T.F[5]",
		"T.F[3:0] = 4'b0010",
		"T.F[7:0] = 8'hA0",
		"T.F = 0",
		`{ unknown_bit = "00000010_0_5" }`,
		"# In frame 0x00000010 1 bits were not converted.",
		`T.F[2] { a = "1", b = "2" } # c`,
	}

	for _, table := range tables {
		line, err := ParseLine(table)
		require.NoError(t, err)
		assert.Equal(t, table, line.String())
	}
}

func TestParse(t *testing.T) {
	lines, err := Parse(strings.NewReader("A.B\n\n# c\nA.C[1]\n"))
	require.NoError(t, err)
	require.Len(t, lines, 4)
	assert.Equal(t, "A.B", lines[0].Set.Feature)
	assert.Nil(t, lines[1].Set)
	assert.Equal(t, " c", lines[2].Comment)
	assert.Equal(t, 1, lines[3].Set.Start)

	_, err = Parse(strings.NewReader("A.B\nA.C[\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestCanonicalize(t *testing.T) {
	tables := []struct {
		input string
		want  []string
	}{
		{"T.F", []string{"T.F"}},
		{"T.F = 0", nil},
		{"T.F[3]", []string{"T.F[3]"}},
		{"T.F[3] = 0", nil},
		{"T.F[7:4] = 4'b1010", []string{"T.F[5]", "T.F[7]"}},
		{"T.F[3:0] = 4'h0", nil},
	}

	for _, table := range tables {
		line, err := ParseLine(table.input)
		require.NoError(t, err)

		features, err := Canonicalize(line.Set)
		require.NoError(t, err)

		var got []string
		for _, sf := range features {
			got = append(got, sf.String())
		}
		assert.Equal(t, table.want, got, table.input)
	}
}

func TestCanonicalizeOverflow(t *testing.T) {
	line, err := ParseLine("T.F = 2")
	require.NoError(t, err)

	_, err = Canonicalize(line.Set)
	assert.Error(t, err)
}

func TestSortLines(t *testing.T) {
	lines := []Line{
		{Comment: " x"},
		{Set: Enable("B")},
		{Set: Enable("A")},
	}
	SortLines(lines)
	assert.Equal(t, "A", lines[0].String())
	assert.Equal(t, "B", lines[1].String())
	assert.Equal(t, "# x", lines[2].String())
}
