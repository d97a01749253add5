package prjxray

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/f4pga/prjxray-sub001/bitstream"
	"github.com/f4pga/prjxray-sub001/fasm"
)

// DisassemblerOption configures a Disassembler
type DisassemblerOption func(*Disassembler)

// Verbose makes the Disassembler emit a warning line for every tile type
// that has no segbits tables
func Verbose(verbose bool) DisassemblerOption {
	return func(d *Disassembler) {
		d.verbose = verbose
	}
}

// SuppressZeroFeatures drops features made only of cleared bits, which
// match any blank region
func SuppressZeroFeatures(suppress bool) DisassemblerOption {
	return func(d *Disassembler) {
		d.suppressZero = suppress
	}
}

// Disassembler recovers features from set configuration bits. Bits that no
// feature accounts for are reported as annotation lines rather than
// dropped.
type Disassembler struct {
	grid   *Grid
	logger *log.Logger

	verbose      bool
	suppressZero bool

	mu          sync.Mutex
	warned      map[string]struct{}
	unknownBits int
}

// NewDisassembler returns a Disassembler for the database's grid
func NewDisassembler(db *Database, opts ...DisassemblerOption) (*Disassembler, error) {
	grid, err := db.Grid()
	if err != nil {
		return nil, err
	}

	d := &Disassembler{
		grid:   grid,
		logger: db.cfg.logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// UnknownBits returns the number of bits the last run could not convert
func (d *Disassembler) UnknownBits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unknownBits
}

func (d *Disassembler) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.warned = make(map[string]struct{})
	d.unknownBits = 0
}

// touched reports whether any of the region's words in the frame has a set
// bit
func touched(bitdata bitstream.Snapshot, frame uint32, bits Bits) bool {
	for w := bits.Offset; w < bits.Offset+bits.Words; w++ {
		if bitdata.HasWord(frame, uint32(w)) {
			return true
		}
	}
	return false
}

func mkFasm(tile, tileType, feature string) fasm.Line {
	rest := strings.TrimPrefix(feature, tileType+".")
	base, idx, vector, err := splitIndex(rest)
	if err != nil || !vector {
		return fasm.Line{Set: fasm.Enable(tile + "." + rest)}
	}
	return fasm.Line{Set: fasm.EnableBit(tile+"."+base, idx)}
}

// findFeaturesInTile matches one region of a tile, recording the bits each
// match accounts for in solved
func (d *Disassembler) findFeaturesInTile(tile string, blockType bitstream.BlockType, bits Bits, bitdata, solved bitstream.Snapshot) ([]fasm.Line, error) {
	segbits, err := d.grid.TileSegbitsAtTilename(tile)
	if err != nil {
		return nil, err
	}

	var lines []fasm.Line
	if segbits.Empty() {
		if d.verbose && d.warn(segbits.TileType()) {
			lines = append(lines, fasm.Line{
				Annotations: []fasm.Annotation{{Name: "missing_segbits", Value: segbits.TileType()}},
				Comment:     fmt.Sprintf(" WARNING: no segbits for tile type %s", segbits.TileType()),
			})
		}
		return lines, nil
	}

	for _, m := range segbits.MatchBitdata(blockType, bits, bitdata) {
		if d.suppressZero && len(m.Bits) == 0 {
			continue
		}
		for _, b := range m.Bits {
			solved.SetAbs(b.Frame, b.Bit)
		}
		lines = append(lines, mkFasm(tile, segbits.TileType(), m.Feature))
	}
	return lines, nil
}

// warn reports whether this is the first warning for the tile type
func (d *Disassembler) warn(tileType string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.warned[tileType]; ok {
		return false
	}
	d.warned[tileType] = struct{}{}
	return true
}

// unknownLines annotates every set bit of the frame not in solved
func unknownLines(frame uint32, bitdata, solved bitstream.Snapshot) []fasm.Line {
	var unknown []uint32
	for _, abs := range bitdata.Bits(frame) {
		if !solved.IsSetAbs(frame, abs) {
			unknown = append(unknown, abs)
		}
	}
	if len(unknown) == 0 {
		return nil
	}

	segment := frame &^ (bitstream.FrameAlignment - 1)
	lines := make([]fasm.Line, 0, len(unknown)+1)
	lines = append(lines, fasm.Line{
		Comment: fmt.Sprintf(" In frame 0x%08x %d bits were not converted.", frame, len(unknown)),
	})
	for _, abs := range unknown {
		lines = append(lines, fasm.Line{
			Annotations: []fasm.Annotation{
				{Name: "unknown_bit", Value: fmt.Sprintf("%08x_%d_%d", frame, abs/bitstream.WordSizeBits, abs%bitstream.WordSizeBits)},
				{Name: "unknown_segment", Value: fmt.Sprintf("0x%08x", segment)},
				{Name: "unknown_segbit", Value: fmt.Sprintf("%02d_%02d", frame-segment, abs)},
			},
		})
	}
	return lines
}

func countUnknown(lines []fasm.Line) int {
	n := 0
	for _, line := range lines {
		if line.Set == nil && len(line.Annotations) > 0 && line.Annotations[0].Name == "unknown_bit" {
			n++
		}
	}
	return n
}

// FindFeaturesInBitstream decodes every feature in bitdata. Frames are
// visited in ascending order; after each frame, its bits that no feature
// accounts for are annotated.
func (d *Disassembler) FindFeaturesInBitstream(bitdata bitstream.Snapshot) ([]fasm.Line, error) {
	d.reset()
	segmentMap := d.grid.SegmentMap()

	var (
		lines   []fasm.Line
		unknown int
	)
	checked := make(map[string]struct{})
	emitted := make(map[string]struct{})
	solved := make(bitstream.Snapshot)

	for _, frame := range bitdata.Frames() {
		for _, info := range segmentMap.SegmentInfoForFrame(frame) {
			key := info.Tile + "/" + info.BlockType.String()
			if _, ok := checked[key]; ok {
				continue
			}
			if !touched(bitdata, frame, info.Bits) {
				continue
			}
			checked[key] = struct{}{}

			found, err := d.findFeaturesInTile(info.Tile, info.BlockType, info.Bits, bitdata, solved)
			if err != nil {
				return nil, err
			}
			for _, line := range found {
				if line.Set != nil {
					s := line.String()
					if _, ok := emitted[s]; ok {
						continue
					}
					emitted[s] = struct{}{}
				}
				lines = append(lines, line)
			}
		}

		u := unknownLines(frame, bitdata, solved)
		unknown += countUnknown(u)
		lines = append(lines, u...)
	}

	d.finish(len(emitted), unknown)
	return lines, nil
}

func (d *Disassembler) finish(features, unknown int) {
	d.mu.Lock()
	d.unknownBits = unknown
	d.mu.Unlock()
	d.logger.Printf("Found %d features, %d unknown bits\n", features, unknown)
}

// IsZeroFeature reports whether every bit of a tile-qualified feature,
// such as CLBLL_L_X2Y10.SLICEL_X0.ALUT.INIT[3], is a cleared bit. Pseudo
// pips have no bits and so are zero features.
func (d *Disassembler) IsZeroFeature(feature string) (bool, error) {
	parts := strings.SplitN(feature, ".", 2)
	if len(parts) != 2 {
		return false, &LookupError{Tile: parts[0], Line: feature}
	}
	tile, rest := parts[0], parts[1]

	info, err := d.grid.GridInfoAtTilename(tile)
	if err != nil {
		return false, &LookupError{Tile: tile, Feature: rest, Line: feature}
	}
	segbits, err := d.grid.TileSegbitsAtTilename(tile)
	if err != nil {
		return false, err
	}

	base, idx, vector, err := splitIndex(rest)
	if err != nil {
		return false, err
	}

	bits, ok := segbits.FeatureToBits(info.TileType+"."+base, idx)
	if !ok && vector {
		bits, ok = segbits.FeatureToBits(info.TileType+"."+rest, 0)
	}
	if !ok {
		return false, &LookupError{Tile: tile, TileType: info.TileType, Feature: base, Address: idx, Line: feature}
	}
	for _, b := range bits {
		if b.IsSet {
			return false, nil
		}
	}
	return true, nil
}
