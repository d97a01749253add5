package prjxray

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownTile is returned when a tile name is not in the grid
	ErrUnknownTile = errors.New("unknown tile")

	// ErrUnknownLocation is returned when no tile occupies a grid location
	ErrUnknownLocation = errors.New("no tile at location")

	// ErrAssemblerFailed is returned by an Assembler that has already
	// reported inconsistent bits
	ErrAssemblerFailed = errors.New("assembler has failed")
)

// LookupError indicates that a tile, or a feature of a tile, is not in the
// database. It is recoverable per line; Assembler collects every one seen in
// a run into a MissingFeaturesError.
type LookupError struct {
	Tile     string
	TileType string
	Feature  string
	Address  int
	Line     string
}

func (e *LookupError) Error() string {
	if e.TileType == "" {
		return fmt.Sprintf("tile %s not found from line %s", e.Tile, e.Line)
	}
	return fmt.Sprintf("segment DB %s, key %s.%s (address %d) not found from line %s",
		e.TileType, e.TileType, e.Feature, e.Address, e.Line)
}

// MissingFeaturesError lists every lookup failure from one assembly run
type MissingFeaturesError struct {
	Errors []*LookupError
}

func (e *MissingFeaturesError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d missing features:\n%s", len(e.Errors), strings.Join(msgs, "\n"))
}

// InconsistentBitsError indicates that two lines commanded the same bit to
// different values
type InconsistentBitsError struct {
	Frame        uint32
	Word         uint32
	Bit          uint32
	Value        bool
	Line         string
	PreviousLine string
}

func (e *InconsistentBitsError) Error() string {
	return fmt.Sprintf("bit 0x%08x_%03d_%02d set to %d by line %q conflicts with line %q",
		e.Frame, e.Word, e.Bit, boolToInt(e.Value), e.Line, e.PreviousLine)
}

// DatabaseError indicates a corrupt database, as opposed to bad input
type DatabaseError struct {
	File string
	Line int
	Err  error
}

func (e *DatabaseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("database %s line %d: %v", e.File, e.Line, e.Err)
	}
	return fmt.Sprintf("database %s: %v", e.File, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
