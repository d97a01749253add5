package prjxray

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/f4pga/prjxray-sub001/bitstream"
)

// TileRecord is one tile of a tilegrid.json file
type TileRecord struct {
	Type        string                             `json:"type"`
	GridX       int                                `json:"grid_x"`
	GridY       int                                `json:"grid_y"`
	Sites       map[string]string                  `json:"sites"`
	ClockRegion string                             `json:"clock_region,omitempty"`
	Bits        map[bitstream.BlockType]BitsRecord `json:"bits"`
}

// BitsRecord is the configuration region of a tile in one block type
type BitsRecord struct {
	BaseAddr string       `json:"baseaddr"`
	Frames   int          `json:"frames"`
	Offset   int          `json:"offset"`
	Words    int          `json:"words"`
	Alias    *AliasRecord `json:"alias,omitempty"`
}

// AliasRecord is the alias of a BitsRecord
type AliasRecord struct {
	Type        string            `json:"type"`
	StartOffset int               `json:"start_offset"`
	Sites       map[string]string `json:"sites"`
}

// ParseTilegrid decodes a tilegrid.json document keyed by tile name
func ParseTilegrid(r io.Reader) (map[string]TileRecord, error) {
	var tilegrid map[string]TileRecord
	if err := json.NewDecoder(r).Decode(&tilegrid); err != nil {
		return nil, err
	}
	return tilegrid, nil
}

// LoadTilegrid decodes the tilegrid.json file at path
func LoadTilegrid(path string) (map[string]TileRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tilegrid, err := ParseTilegrid(f)
	if err != nil {
		return nil, &DatabaseError{File: path, Err: err}
	}
	return tilegrid, nil
}

// bits validates the record and converts it, checking that the block type
// encoded in the base address matches the one it is filed under
func (r BitsRecord) bits(blockType bitstream.BlockType) (Bits, error) {
	base, err := strconv.ParseUint(r.BaseAddr, 0, 32)
	if err != nil {
		return Bits{}, fmt.Errorf("bad baseaddr %q: %w", r.BaseAddr, err)
	}
	addr, err := bitstream.ParseAddress(uint32(base))
	if err != nil {
		return Bits{}, err
	}
	if addr.BlockType != blockType {
		return Bits{}, fmt.Errorf("baseaddr 0x%08x encodes %s, filed under %s", base, addr.BlockType, blockType)
	}
	if r.Frames <= 0 || r.Words <= 0 || r.Offset < 0 || r.Offset+r.Words > bitstream.FrameWordCount {
		return Bits{}, fmt.Errorf("invalid region frames=%d offset=%d words=%d", r.Frames, r.Offset, r.Words)
	}

	bits := Bits{
		BaseAddress: uint32(base),
		Frames:      r.Frames,
		Offset:      r.Offset,
		Words:       r.Words,
	}
	if r.Alias != nil {
		if r.Alias.Type == "" || r.Alias.StartOffset < 0 {
			return Bits{}, fmt.Errorf("invalid alias %+v", *r.Alias)
		}
		sites := make(map[string]string, len(r.Alias.Sites))
		for k, v := range r.Alias.Sites {
			sites[k] = v
		}
		bits.Alias = &BitAlias{
			TileType:    r.Alias.Type,
			StartOffset: r.Alias.StartOffset,
			Sites:       sites,
		}
	}
	return bits, nil
}
