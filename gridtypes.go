package prjxray

import (
	"fmt"

	"github.com/f4pga/prjxray-sub001/bitstream"
)

// GridLoc is a tile position in the device grid
type GridLoc struct {
	X int
	Y int
}

func (l GridLoc) String() string {
	return fmt.Sprintf("X%dY%d", l.X, l.Y)
}

// BitAlias marks a configuration region whose layout is borrowed from
// another tile type, shifted by StartOffset words. Sites maps this tile's
// site names to the site names used by the aliased tile type.
type BitAlias struct {
	TileType    string
	StartOffset int
	Sites       map[string]string
}

// Bits describes the region of configuration memory a tile owns within one
// block type
type Bits struct {
	BaseAddress uint32
	Frames      int
	Offset      int
	Words       int
	Alias       *BitAlias
}

// ContainsFrame reports whether frame falls within the region
func (b Bits) ContainsFrame(frame uint32) bool {
	return frame >= b.BaseAddress && frame < b.BaseAddress+uint32(b.Frames)
}

// BitsInfo ties a region to the tile that owns it
type BitsInfo struct {
	BlockType bitstream.BlockType
	Tile      string
	Bits      Bits
}

// GridInfo describes one tile
type GridInfo struct {
	Loc         GridLoc
	TileType    string
	Sites       map[string]string
	ClockRegion string
	Bits        map[bitstream.BlockType]Bits
}

// HasAlias reports whether any region of the tile is aliased
func (g GridInfo) HasAlias() bool {
	for _, bits := range g.Bits {
		if bits.Alias != nil {
			return true
		}
	}
	return false
}

// GridDims is the inclusive bounding box of the grid
type GridDims struct {
	MinX, MaxX int
	MinY, MaxY int
}
