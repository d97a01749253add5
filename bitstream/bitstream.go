/*
Package bitstream implements the frame addressing scheme of the 7-series
configuration memory along with readers and writers for the sparse bit dumps
and frame files exchanged with the rest of the toolchain.

A frame address is a 32-bit Frame Address Register value laid out as:

	[25:23] block type
	[22]    top/bottom half
	[21:17] row
	[16:7]  column
	[6:0]   minor address

Each frame is FrameWordCount 32-bit words long.
*/
package bitstream

import (
	"errors"
	"fmt"
)

const (
	// WordSizeBits is the number of bits in one configuration word
	WordSizeBits = 32

	// FrameWordCount is the number of words in one frame
	FrameWordCount = 101

	// FrameAlignment is the frame address alignment of a column; every
	// column starts on a multiple of this
	FrameAlignment = 0x80
)

const (
	blockTypeShift = 23
	halfShift      = 22
	rowShift       = 17
	columnShift    = 7

	blockTypeMask = 0x7
	rowMask       = 0x1f
	columnMask    = 0x3ff
	minorMask     = 0x7f
)

// ErrBlockType is returned for a block type code outside the known set
var ErrBlockType = errors.New("bitstream: invalid block type")

// BlockType identifies which kind of configuration memory a frame belongs to
type BlockType int

// Known block types, in Frame Address Register code order
const (
	BlockTypeCLBIOCLK BlockType = iota
	BlockTypeBlockRAM
	BlockTypeCFGCLB
)

var blockTypeNames = [...]string{
	BlockTypeCLBIOCLK: "CLB_IO_CLK",
	BlockTypeBlockRAM: "BLOCK_RAM",
	BlockTypeCFGCLB:   "CFG_CLB",
}

// BlockTypes lists every valid block type
var BlockTypes = []BlockType{BlockTypeCLBIOCLK, BlockTypeBlockRAM, BlockTypeCFGCLB}

// Valid reports whether b is one of the known block types
func (b BlockType) Valid() bool {
	return b >= BlockTypeCLBIOCLK && b <= BlockTypeCFGCLB
}

func (b BlockType) String() string {
	if !b.Valid() {
		return fmt.Sprintf("BlockType(%d)", int(b))
	}
	return blockTypeNames[b]
}

// ParseBlockType converts a block type name such as "BLOCK_RAM" into a
// BlockType
func ParseBlockType(s string) (BlockType, error) {
	for i, name := range blockTypeNames {
		if name == s {
			return BlockType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrBlockType, s)
}

// MarshalText implements encoding.TextMarshaler
func (b BlockType) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrBlockType, int(b))
	}
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so that block types can
// be used as JSON object keys
func (b *BlockType) UnmarshalText(text []byte) error {
	v, err := ParseBlockType(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// Half selects the top or bottom half of the device
type Half int

// Device halves
const (
	Top Half = iota
	Bottom
)

func (h Half) String() string {
	if h == Bottom {
		return "bottom"
	}
	return "top"
}

// Address is a decomposed frame address
type Address struct {
	BlockType BlockType
	Half      Half
	Row       uint32
	Column    uint32
	Minor     uint32
}

// AddrBits2Word composes a frame address from its fields. Fields that do not
// fit their bit range are rejected rather than truncated.
func AddrBits2Word(blockType BlockType, half Half, row, column, minor uint32) (uint32, error) {
	if !blockType.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrBlockType, int(blockType))
	}
	if half != Top && half != Bottom {
		return 0, fmt.Errorf("bitstream: invalid half %d", int(half))
	}
	if row > rowMask {
		return 0, fmt.Errorf("bitstream: row %d out of range", row)
	}
	if column > columnMask {
		return 0, fmt.Errorf("bitstream: column %d out of range", column)
	}
	if minor > minorMask {
		return 0, fmt.Errorf("bitstream: minor address %d out of range", minor)
	}

	var word uint32
	word |= uint32(blockType) << blockTypeShift
	word |= uint32(half) << halfShift
	word |= row << rowShift
	word |= column << columnShift
	word |= minor
	return word, nil
}

// Word returns the frame address encoding of a
func (a Address) Word() (uint32, error) {
	return AddrBits2Word(a.BlockType, a.Half, a.Row, a.Column, a.Minor)
}

// ParseAddress decomposes a frame address, failing if the block type code is
// not one of the known block types
func ParseAddress(word uint32) (Address, error) {
	bt := BlockType(word >> blockTypeShift & blockTypeMask)
	if !bt.Valid() {
		return Address{}, fmt.Errorf("%w: code %d in address 0x%08x", ErrBlockType, int(bt), word)
	}
	return Address{
		BlockType: bt,
		Half:      Half(word >> halfShift & 1),
		Row:       word >> rowShift & rowMask,
		Column:    word >> columnShift & columnMask,
		Minor:     word & minorMask,
	}, nil
}

func (a Address) String() string {
	return fmt.Sprintf("%s %s row %d column %d minor %d", a.BlockType, a.Half, a.Row, a.Column, a.Minor)
}
