package prjxray

import (
	"errors"
	"strings"
	"testing"

	"github.com/f4pga/prjxray-sub001/bitstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGrid(t *testing.T) (*Grid, func()) {
	db, cleanup := openTestDatabase(t)
	grid, err := db.Grid()
	if err != nil {
		cleanup()
		require.NoError(t, err)
	}
	return grid, cleanup
}

func TestGridLookups(t *testing.T) {
	grid, cleanup := testGrid(t)
	defer cleanup()

	assert.Equal(t, []string{
		"BRAM_L_X6Y0",
		"CLBLL_L_X2Y10",
		"CLBLL_L_X2Y11",
		"EMPTY_X7Y0",
		"FOO_X0Y0",
		"PLL_LOWER_X5Y1",
		"PLL_UPPER_X5Y0",
	}, grid.Tiles())

	assert.Equal(t, []GridLoc{
		{0, 0}, {5, 0}, {6, 0}, {7, 0}, {5, 1}, {2, 10}, {2, 11},
	}, grid.TileLocations())

	assert.Equal(t, GridDims{MinX: 0, MaxX: 7, MinY: 0, MaxY: 11}, grid.Dims())

	loc, err := grid.LocOfTilename("CLBLL_L_X2Y11")
	require.NoError(t, err)
	assert.Equal(t, GridLoc{2, 11}, loc)

	name, err := grid.TilenameAtLoc(GridLoc{5, 1})
	require.NoError(t, err)
	assert.Equal(t, "PLL_LOWER_X5Y1", name)

	info, err := grid.GridInfoAtLoc(GridLoc{2, 10})
	require.NoError(t, err)
	assert.Equal(t, "CLBLL_L", info.TileType)
	assert.Equal(t, "X0Y0", info.ClockRegion)
	assert.Equal(t, Bits{BaseAddress: 0x00020000, Frames: 36, Offset: 0, Words: 2}, info.Bits[bitstream.BlockTypeCLBIOCLK])
	assert.False(t, info.HasAlias())

	info, err = grid.GridInfoAtTilename("PLL_LOWER_X5Y1")
	require.NoError(t, err)
	assert.True(t, info.HasAlias())
	assert.Equal(t, &BitAlias{TileType: "CMT_DRP", StartOffset: 2, Sites: map[string]string{"PLLE2_ADV": "SITE_B"}}, info.Bits[bitstream.BlockTypeCLBIOCLK].Alias)

	info, err = grid.GridInfoAtTilename("FOO_X0Y0")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"SLICE_X0Y0": "SLICEL"}, info.Sites)

	_, err = grid.LocOfTilename("NOPE")
	assert.True(t, errors.Is(err, ErrUnknownTile))

	_, err = grid.GridInfoAtTilename("NOPE")
	assert.True(t, errors.Is(err, ErrUnknownTile))

	_, err = grid.TilenameAtLoc(GridLoc{1, 1})
	assert.True(t, errors.Is(err, ErrUnknownLocation))

	_, err = grid.GridInfoAtLoc(GridLoc{1, 1})
	assert.True(t, errors.Is(err, ErrUnknownLocation))
}

func TestGridAllFrames(t *testing.T) {
	grid, cleanup := testGrid(t)
	defer cleanup()

	frames := grid.AllFrames()
	require.Len(t, frames, 8)
	assert.Equal(t, BitsInfo{
		BlockType: bitstream.BlockTypeCLBIOCLK,
		Tile:      "BRAM_L_X6Y0",
		Bits:      Bits{BaseAddress: 0x100, Frames: 28, Offset: 0, Words: 10},
	}, frames[0])
	assert.Equal(t, bitstream.BlockTypeBlockRAM, frames[1].BlockType)
	assert.Equal(t, "BRAM_L_X6Y0", frames[1].Tile)
	assert.Equal(t, "PLL_UPPER_X5Y0", frames[7].Tile)
}

func TestGridSegmentMap(t *testing.T) {
	grid, cleanup := testGrid(t)
	defer cleanup()

	m := grid.SegmentMap()
	assert.Equal(t, 8, m.Len())
	assert.True(t, m == grid.SegmentMap())

	infos := m.SegmentInfoForFrame(0x20023)
	require.Len(t, infos, 2)
	assert.Equal(t, "CLBLL_L_X2Y10", infos[0].Tile)
	assert.Equal(t, "CLBLL_L_X2Y11", infos[1].Tile)

	assert.Empty(t, m.SegmentInfoForFrame(0x20024))
	assert.Empty(t, m.SegmentInfoForFrame(0x300))
	assert.Empty(t, m.SegmentInfoForFrame(0xf))

	infos = m.SegmentInfoForFrame(0x10)
	require.Len(t, infos, 1)
	assert.Equal(t, "FOO_X0Y0", infos[0].Tile)

	infos = m.SegmentInfoForFrame(0x0080007f)
	require.Len(t, infos, 1)
	assert.Equal(t, bitstream.BlockTypeBlockRAM, infos[0].BlockType)
}

func TestSegmentMapNested(t *testing.T) {
	m := NewSegmentMap([]BitsInfo{
		{Tile: "WIDE", Bits: Bits{BaseAddress: 0x100, Frames: 100}},
		{Tile: "B", Bits: Bits{BaseAddress: 0x110, Frames: 2}},
		{Tile: "A", Bits: Bits{BaseAddress: 0x120, Frames: 2}},
	})

	tiles := func(frame uint32) []string {
		var s []string
		for _, info := range m.SegmentInfoForFrame(frame) {
			s = append(s, info.Tile)
		}
		return s
	}

	assert.Equal(t, []string{"WIDE"}, tiles(0x100))
	assert.Equal(t, []string{"B", "WIDE"}, tiles(0x111))
	assert.Equal(t, []string{"WIDE"}, tiles(0x112))
	assert.Equal(t, []string{"A", "WIDE"}, tiles(0x121))
	assert.Equal(t, []string{"WIDE"}, tiles(0x163))
	assert.Nil(t, tiles(0x164))
}

func TestGridTileSegbits(t *testing.T) {
	grid, cleanup := testGrid(t)
	defer cleanup()

	s, err := grid.TileSegbitsAtTilename("CLBLL_L_X2Y10")
	require.NoError(t, err)
	_, ok := s.(*TileSegbits)
	assert.True(t, ok)

	other, err := grid.TileSegbitsAtTilename("CLBLL_L_X2Y11")
	require.NoError(t, err)
	assert.True(t, s == other)

	s, err = grid.TileSegbitsAtTilename("PLL_UPPER_X5Y0")
	require.NoError(t, err)
	alias, ok := s.(*TileSegbitsAlias)
	require.True(t, ok)
	assert.Equal(t, "PLL_UPPER", alias.TileType())
	assert.Equal(t, "CMT_DRP", alias.Alias().TileType)

	s, err = grid.TileSegbitsAtTilename("EMPTY_X7Y0")
	require.NoError(t, err)
	assert.True(t, s.Empty())

	_, err = grid.TileSegbitsAtTilename("NOPE")
	assert.True(t, errors.Is(err, ErrUnknownTile))
}

func TestNewGridErrors(t *testing.T) {
	tables := []struct {
		name     string
		tilegrid string
	}{
		{
			"no type",
			`{"A": {"grid_x": 0, "grid_y": 0, "bits": {}}}`,
		},
		{
			"shared location",
			`{"A": {"type": "T", "grid_x": 0, "grid_y": 0}, "B": {"type": "T", "grid_x": 0, "grid_y": 0}}`,
		},
		{
			"block type mismatch",
			`{"A": {"type": "T", "grid_x": 0, "grid_y": 0, "bits": {"BLOCK_RAM": {"baseaddr": "0x00000010", "frames": 1, "offset": 0, "words": 1}}}}`,
		},
		{
			"invalid block type code",
			`{"A": {"type": "T", "grid_x": 0, "grid_y": 0, "bits": {"CLB_IO_CLK": {"baseaddr": "0x01800000", "frames": 1, "offset": 0, "words": 1}}}}`,
		},
		{
			"bad baseaddr",
			`{"A": {"type": "T", "grid_x": 0, "grid_y": 0, "bits": {"CLB_IO_CLK": {"baseaddr": "nope", "frames": 1, "offset": 0, "words": 1}}}}`,
		},
		{
			"words past frame end",
			`{"A": {"type": "T", "grid_x": 0, "grid_y": 0, "bits": {"CLB_IO_CLK": {"baseaddr": "0x00000010", "frames": 1, "offset": 100, "words": 2}}}}`,
		},
		{
			"inconsistent alias",
			`{
				"A": {"type": "T", "grid_x": 0, "grid_y": 0, "bits": {"CLB_IO_CLK": {"baseaddr": "0x00000010", "frames": 1, "offset": 0, "words": 1, "alias": {"type": "U", "start_offset": 0}}}},
				"B": {"type": "T", "grid_x": 1, "grid_y": 0, "bits": {"CLB_IO_CLK": {"baseaddr": "0x00000010", "frames": 1, "offset": 1, "words": 1, "alias": {"type": "U", "start_offset": 1}}}}
			}`,
		},
		{
			"inconsistent alias sites",
			`{
				"A": {"type": "T", "grid_x": 0, "grid_y": 0, "bits": {"CLB_IO_CLK": {"baseaddr": "0x00000010", "frames": 1, "offset": 0, "words": 1, "alias": {"type": "U", "start_offset": 0, "sites": {"S": "SITE_A"}}}}},
				"B": {"type": "T", "grid_x": 1, "grid_y": 0, "bits": {"CLB_IO_CLK": {"baseaddr": "0x00000010", "frames": 1, "offset": 1, "words": 1, "alias": {"type": "U", "start_offset": 0, "sites": {"S": "SITE_B"}}}}}
			}`,
		},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			tilegrid, err := ParseTilegrid(strings.NewReader(table.tilegrid))
			require.NoError(t, err)

			_, err = NewGrid(nil, tilegrid)
			require.Error(t, err)

			var dbErr *DatabaseError
			assert.True(t, errors.As(err, &dbErr))
		})
	}
}

func TestParseTilegridBadBlockType(t *testing.T) {
	_, err := ParseTilegrid(strings.NewReader(`{"A": {"type": "T", "bits": {"NOPE": {}}}}`))
	assert.Error(t, err)
}
