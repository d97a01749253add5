package prjxray

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/f4pga/prjxray-sub001/bitstream"
	"github.com/f4pga/prjxray-sub001/fasm"
)

type assemblerState int

const (
	stateIdle assemblerState = iota
	stateAccumulating
	stateFinalized
	stateFailed
)

type bitKey struct {
	frame uint32
	word  uint32
	bit   uint32
}

type bitValue struct {
	value bool
	line  string
}

// Assembler converts features into frames. Every bit may be commanded to
// only one value during a run; a conflicting command fails the run.
type Assembler struct {
	grid   *Grid
	logger *log.Logger

	state       assemblerState
	err         error
	bits        map[bitKey]bitValue
	framesInUse map[uint32]struct{}
	tilesInUse  map[string]struct{}
	features    int
}

// NewAssembler returns an Assembler for the database's grid
func NewAssembler(db *Database) (*Assembler, error) {
	grid, err := db.Grid()
	if err != nil {
		return nil, err
	}

	return &Assembler{
		grid:        grid,
		logger:      db.cfg.logger,
		bits:        make(map[bitKey]bitValue),
		framesInUse: make(map[uint32]struct{}),
		tilesInUse:  make(map[string]struct{}),
	}, nil
}

func (a *Assembler) check() error {
	switch a.state {
	case stateFailed:
		return fmt.Errorf("%w: %v", ErrAssemblerFailed, a.err)
	case stateFinalized:
		return errors.New("assembler has been finalized")
	}
	a.state = stateAccumulating
	return nil
}

func (a *Assembler) update(key bitKey, value bool, line string) error {
	if err := a.check(); err != nil {
		return err
	}

	prev, ok := a.bits[key]
	switch {
	case !ok:
		a.bits[key] = bitValue{value: value, line: line}
	case prev.value != value:
		a.err = &InconsistentBitsError{
			Frame:        key.frame,
			Word:         key.word,
			Bit:          key.bit,
			Value:        value,
			Line:         line,
			PreviousLine: prev.line,
		}
		a.state = stateFailed
		return a.err
	}
	return nil
}

// FrameSet records that a bit must be one
func (a *Assembler) FrameSet(frame, word, bit uint32, line string) error {
	return a.update(bitKey{frame, word, bit}, true, line)
}

// FrameClear records that a bit must be zero
func (a *Assembler) FrameClear(frame, word, bit uint32, line string) error {
	return a.update(bitKey{frame, word, bit}, false, line)
}

// EnableFeature sets the bits of a tile's feature, or of bit address of a
// vector feature. An unknown tile or feature is reported as a *LookupError.
func (a *Assembler) EnableFeature(tile, feature string, address int, line string) error {
	if err := a.check(); err != nil {
		return err
	}

	info, err := a.grid.GridInfoAtTilename(tile)
	if err != nil {
		return &LookupError{Tile: tile, Feature: feature, Address: address, Line: line}
	}

	segbits, err := a.grid.TileSegbitsAtTilename(tile)
	if err != nil {
		return err
	}

	bits, ok := segbits.FeatureToBits(info.TileType+"."+feature, address)
	if !ok {
		return &LookupError{Tile: tile, TileType: info.TileType, Feature: feature, Address: address, Line: line}
	}

	// Resolve every bit before recording any, so a bad segbit leaves the
	// assembler untouched
	resolved := make([]bitKey, len(bits))
	for i, b := range bits {
		region, ok := info.Bits[b.BlockType]
		if !ok {
			return &DatabaseError{File: tilegridFilename, Err: fmt.Errorf("tile %s has no %s region for %s.%s", tile, b.BlockType, info.TileType, feature)}
		}
		abs := region.Offset*bitstream.WordSizeBits + b.WordBit
		if b.WordColumn >= region.Frames || abs < 0 || abs >= bitstream.FrameWordCount*bitstream.WordSizeBits {
			return &DatabaseError{File: tilegridFilename, Err: fmt.Errorf("segbit %s of %s.%s lies outside tile %s", b.Bit, info.TileType, feature, tile)}
		}
		resolved[i] = bitKey{
			region.BaseAddress + uint32(b.WordColumn),
			uint32(abs / bitstream.WordSizeBits),
			uint32(abs % bitstream.WordSizeBits),
		}
	}

	for i, key := range resolved {
		if err := a.update(key, bits[i].IsSet, line); err != nil {
			return err
		}
	}

	if _, ok := a.tilesInUse[tile]; !ok {
		a.tilesInUse[tile] = struct{}{}
		for _, frame := range segbits.Frames(info.Bits) {
			a.framesInUse[frame] = struct{}{}
		}
	}
	a.features++

	return nil
}

// AddLines enables every feature set by the lines, after expanding each to
// single-bit form. Lookup failures are collected and returned together as a
// *MissingFeaturesError once every line has been processed; any other
// failure is returned immediately.
func (a *Assembler) AddLines(lines []fasm.Line) error {
	var missing []*LookupError

	for _, line := range lines {
		if line.Set == nil {
			continue
		}
		source := line.String()

		parts := strings.SplitN(line.Set.Feature, ".", 2)
		if len(parts) != 2 {
			missing = append(missing, &LookupError{Tile: parts[0], Line: source})
			continue
		}
		tile, feature := parts[0], parts[1]

		features, err := fasm.Canonicalize(line.Set)
		if err != nil {
			return fmt.Errorf("%s: %w", source, err)
		}

		for _, sf := range features {
			address := 0
			if sf.Start != fasm.NoAddress {
				address = sf.Start
			}

			err := a.EnableFeature(tile, feature, address, source)
			var lookup *LookupError
			switch {
			case errors.As(err, &lookup):
				missing = append(missing, lookup)
			case err != nil:
				return err
			}
		}
	}

	if len(missing) > 0 {
		return &MissingFeaturesError{Errors: missing}
	}
	return nil
}

// ParseFasm reads FASM text and enables every feature in it
func (a *Assembler) ParseFasm(r io.Reader) error {
	lines, err := fasm.Parse(r)
	if err != nil {
		return err
	}
	return a.AddLines(lines)
}

// ParseFasmFile reads a FASM file and enables every feature in it
func (a *Assembler) ParseFasmFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return a.ParseFasm(f)
}

// FramesInUse returns the frames of every tile with a feature enabled, in
// ascending order
func (a *Assembler) FramesInUse() []uint32 {
	return sortedFrames(a.framesInUse)
}

// Frames materializes the recorded bits. Unless sparse, every frame of
// every tile in the grid is present and zero filled, which is always safe
// to load; a sparse result only has the frames in use.
func (a *Assembler) Frames(sparse bool) (bitstream.Frames, error) {
	if a.state == stateFailed {
		return nil, fmt.Errorf("%w: %v", ErrAssemblerFailed, a.err)
	}

	frames := make(bitstream.Frames)
	if sparse {
		for frame := range a.framesInUse {
			frames.Init(frame)
		}
	} else {
		for _, info := range a.grid.AllFrames() {
			for i := 0; i < info.Bits.Frames; i++ {
				frames.Init(info.Bits.BaseAddress + uint32(i))
			}
		}
	}

	for key, v := range a.bits {
		frame := frames.Init(key.frame)
		if v.value {
			frame[key.word] |= 1 << key.bit
		}
	}

	if a.state != stateFinalized {
		a.logger.Printf("Enabled %d features, %d bits, %d frames in use\n", a.features, len(a.bits), len(a.framesInUse))
	}
	a.state = stateFinalized
	return frames, nil
}
