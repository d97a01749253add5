package prjxray

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	tables := []struct {
		name string
		err  error
		want string
	}{
		{
			"unknown tile",
			&LookupError{Tile: "NOPE_X0Y0", Feature: "A", Line: "NOPE_X0Y0.A"},
			"tile NOPE_X0Y0 not found from line NOPE_X0Y0.A",
		},
		{
			"unknown feature",
			&LookupError{Tile: "FOO_X0Y0", TileType: "FOO", Feature: "VEC", Address: 3, Line: "FOO_X0Y0.VEC[3]"},
			"segment DB FOO, key FOO.VEC (address 3) not found from line FOO_X0Y0.VEC[3]",
		},
		{
			"missing features",
			&MissingFeaturesError{Errors: []*LookupError{
				{Tile: "A", Line: "A.X"},
				{Tile: "B", Line: "B.Y"},
			}},
			"2 missing features:\ntile A not found from line A.X\ntile B not found from line B.Y",
		},
		{
			"inconsistent bits",
			&InconsistentBitsError{Frame: 0x10, Word: 0, Bit: 1, Value: false, Line: "FOO_X0Y0.BAZ", PreviousLine: "FOO_X0Y0.BAR"},
			`bit 0x00000010_000_01 set to 0 by line "FOO_X0Y0.BAZ" conflicts with line "FOO_X0Y0.BAR"`,
		},
		{
			"database line",
			&DatabaseError{File: "segbits_foo.db", Line: 3, Err: errors.New("malformed")},
			"database segbits_foo.db line 3: malformed",
		},
		{
			"database",
			&DatabaseError{File: "tilegrid.json", Err: errors.New("malformed")},
			"database tilegrid.json: malformed",
		},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			assert.Equal(t, table.want, table.err.Error())
		})
	}
}

func TestDatabaseErrorUnwrap(t *testing.T) {
	err := &DatabaseError{File: "tilegrid.json", Err: ErrUnknownTile}
	assert.True(t, errors.Is(err, ErrUnknownTile))
}
