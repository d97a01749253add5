package prjxray

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/f4pga/prjxray-sub001/bitstream"
)

// Grid maps tile names to locations and configuration regions. It is
// immutable once built, apart from the per tile type segbits cache and
// segment map which are built on first use.
type Grid struct {
	db    *Database
	tiles map[string]GridInfo
	locs  map[GridLoc]string
	names []string
	dims  GridDims

	mu         sync.Mutex
	segbits    map[string]Segbits
	segmentMap *SegmentMap
}

// aliasKey captures what every tile of an aliased type must agree on
type aliasKey struct {
	blockType   bitstream.BlockType
	tileType    string
	startOffset int
	words       int
	sites       string
}

// siteKey flattens a site map into a comparable form
func siteKey(sites map[string]string) string {
	pairs := make([]string, 0, len(sites))
	for k, v := range sites {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

// NewGrid builds a grid from tilegrid records. Segbits are loaded from db
// on demand.
func NewGrid(db *Database, tilegrid map[string]TileRecord) (*Grid, error) {
	g := &Grid{
		db:      db,
		tiles:   make(map[string]GridInfo, len(tilegrid)),
		locs:    make(map[GridLoc]string, len(tilegrid)),
		names:   make([]string, 0, len(tilegrid)),
		segbits: make(map[string]Segbits),
	}

	for name := range tilegrid {
		g.names = append(g.names, name)
	}
	sort.Strings(g.names)

	aliases := make(map[string][]aliasKey)
	for i, name := range g.names {
		record := tilegrid[name]
		if record.Type == "" {
			return nil, &DatabaseError{File: tilegridFilename, Err: fmt.Errorf("tile %s has no type", name)}
		}

		loc := GridLoc{X: record.GridX, Y: record.GridY}
		if other, ok := g.locs[loc]; ok {
			return nil, &DatabaseError{File: tilegridFilename, Err: fmt.Errorf("tiles %s and %s both at %s", other, name, loc)}
		}
		g.locs[loc] = name

		info := GridInfo{
			Loc:         loc,
			TileType:    record.Type,
			Sites:       make(map[string]string, len(record.Sites)),
			ClockRegion: record.ClockRegion,
			Bits:        make(map[bitstream.BlockType]Bits, len(record.Bits)),
		}
		for site, siteType := range record.Sites {
			info.Sites[site] = siteType
		}

		var keys []aliasKey
		for bt, r := range record.Bits {
			bits, err := r.bits(bt)
			if err != nil {
				return nil, &DatabaseError{File: tilegridFilename, Err: fmt.Errorf("tile %s %s: %w", name, bt, err)}
			}
			info.Bits[bt] = bits
			if bits.Alias != nil {
				keys = append(keys, aliasKey{bt, bits.Alias.TileType, bits.Alias.StartOffset, bits.Words, siteKey(bits.Alias.Sites)})
			}
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].blockType < keys[j].blockType })

		if prev, ok := aliases[record.Type]; ok {
			if !equalAliasKeys(prev, keys) {
				return nil, &DatabaseError{File: tilegridFilename, Err: fmt.Errorf("tile %s aliases differently from other %s tiles", name, record.Type)}
			}
		} else {
			aliases[record.Type] = keys
		}

		g.tiles[name] = info

		if i == 0 {
			g.dims = GridDims{MinX: loc.X, MaxX: loc.X, MinY: loc.Y, MaxY: loc.Y}
			continue
		}
		if loc.X < g.dims.MinX {
			g.dims.MinX = loc.X
		}
		if loc.X > g.dims.MaxX {
			g.dims.MaxX = loc.X
		}
		if loc.Y < g.dims.MinY {
			g.dims.MinY = loc.Y
		}
		if loc.Y > g.dims.MaxY {
			g.dims.MaxY = loc.Y
		}
	}

	return g, nil
}

func equalAliasKeys(a, b []aliasKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Tiles returns every tile name in sorted order
func (g *Grid) Tiles() []string {
	names := make([]string, len(g.names))
	copy(names, g.names)
	return names
}

// TileLocations returns every occupied location, ordered by row then
// column
func (g *Grid) TileLocations() []GridLoc {
	locs := make([]GridLoc, 0, len(g.locs))
	for loc := range g.locs {
		locs = append(locs, loc)
	}
	sort.Slice(locs, func(i, j int) bool {
		if locs[i].Y != locs[j].Y {
			return locs[i].Y < locs[j].Y
		}
		return locs[i].X < locs[j].X
	})
	return locs
}

// LocOfTilename returns the location of a tile
func (g *Grid) LocOfTilename(name string) (GridLoc, error) {
	info, ok := g.tiles[name]
	if !ok {
		return GridLoc{}, fmt.Errorf("%w: %s", ErrUnknownTile, name)
	}
	return info.Loc, nil
}

// TilenameAtLoc returns the name of the tile at a location
func (g *Grid) TilenameAtLoc(loc GridLoc) (string, error) {
	name, ok := g.locs[loc]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownLocation, loc)
	}
	return name, nil
}

// GridInfoAtLoc returns the tile at a location
func (g *Grid) GridInfoAtLoc(loc GridLoc) (GridInfo, error) {
	name, err := g.TilenameAtLoc(loc)
	if err != nil {
		return GridInfo{}, err
	}
	return g.tiles[name], nil
}

// GridInfoAtTilename returns the named tile
func (g *Grid) GridInfoAtTilename(name string) (GridInfo, error) {
	info, ok := g.tiles[name]
	if !ok {
		return GridInfo{}, fmt.Errorf("%w: %s", ErrUnknownTile, name)
	}
	return info, nil
}

// Dims returns the bounding box of the grid
func (g *Grid) Dims() GridDims {
	return g.dims
}

// AllFrames returns the region of every tile in every block type, ordered
// by tile name and block type
func (g *Grid) AllFrames() []BitsInfo {
	var frames []BitsInfo
	for _, name := range g.names {
		info := g.tiles[name]
		for _, bt := range bitstream.BlockTypes {
			if bits, ok := info.Bits[bt]; ok {
				frames = append(frames, BitsInfo{BlockType: bt, Tile: name, Bits: bits})
			}
		}
	}
	return frames
}

// SegmentMap returns the frame index over every region, building it on
// first use
func (g *Grid) SegmentMap() *SegmentMap {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.segmentMap == nil {
		g.segmentMap = NewSegmentMap(g.AllFrames())
	}
	return g.segmentMap
}

// TileSegbitsAtTilename returns the feature database for a tile, which is
// aliased if any of the tile's regions is. The result is shared by every
// tile of the same type.
func (g *Grid) TileSegbitsAtTilename(name string) (Segbits, error) {
	info, err := g.GridInfoAtTilename(name)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if s, ok := g.segbits[info.TileType]; ok {
		return s, nil
	}

	own, err := g.db.TileSegbits(info.TileType)
	if err != nil {
		return nil, err
	}

	var s Segbits = own
	if info.HasAlias() {
		var alias BitAlias
		for _, bits := range info.Bits {
			if bits.Alias != nil {
				alias = *bits.Alias
			}
		}
		target, err := g.db.TileSegbits(alias.TileType)
		if err != nil {
			return nil, err
		}
		if s, err = newTileSegbitsAlias(info, own, target); err != nil {
			return nil, &DatabaseError{File: tilegridFilename, Err: err}
		}
	}

	g.segbits[info.TileType] = s
	return s, nil
}
