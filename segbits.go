package prjxray

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/f4pga/prjxray-sub001/bitstream"
)

// Bit is one segbit: the bit at WordColumn frames past the region base
// address and WordBit bits past the region's first word must equal IsSet
type Bit struct {
	WordColumn int
	WordBit    int
	IsSet      bool
}

func (b Bit) String() string {
	if b.IsSet {
		return fmt.Sprintf("%02d_%02d", b.WordColumn, b.WordBit)
	}
	return fmt.Sprintf("!%02d_%02d", b.WordColumn, b.WordBit)
}

// ParseBit parses a segbit in [!]<column>_<bit> form
func ParseBit(s string) (Bit, error) {
	b := Bit{IsSet: true}
	if strings.HasPrefix(s, "!") {
		b.IsSet = false
		s = s[1:]
	}
	parts := strings.Split(s, "_")
	if len(parts) != 2 {
		return Bit{}, fmt.Errorf("malformed segbit %q", s)
	}
	col, err := strconv.Atoi(parts[0])
	if err != nil || col < 0 {
		return Bit{}, fmt.Errorf("malformed segbit column %q", s)
	}
	bit, err := strconv.Atoi(parts[1])
	if err != nil || bit < 0 || bit >= bitstream.FrameWordCount*bitstream.WordSizeBits {
		return Bit{}, fmt.Errorf("malformed segbit bit %q", s)
	}
	b.WordColumn, b.WordBit = col, bit
	return b, nil
}

// BlockBit is a segbit together with the block type it lives in
type BlockBit struct {
	BlockType bitstream.BlockType
	Bit
}

// PseudoPip is the kind of a feature that has no bits of its own
type PseudoPip string

// Pseudo pip kinds
const (
	PseudoPipAlways  PseudoPip = "always"
	PseudoPipDefault PseudoPip = "default"
	PseudoPipHint    PseudoPip = "hint"
)

// FrameBit addresses a bit by frame and absolute bit index within the frame
type FrameBit struct {
	Frame uint32
	Bit   uint32
}

// Match is a feature whose bit pattern is satisfied, along with the set
// bits it accounts for. Cleared bits are never included, since several
// matching features may all require the same zero.
type Match struct {
	Feature string
	Bits    []FrameBit
}

// Segbits is the feature database of one tile type, either direct or
// aliased onto another tile type's layout
type Segbits interface {
	// TileType returns the tile type the features are named for
	TileType() string

	// Empty reports whether no tables were found for the tile type
	Empty() bool

	// MatchBitdata returns every feature of the block type whose bits all
	// agree with bitdata when placed at bits, in feature name order
	MatchBitdata(blockType bitstream.BlockType, bits Bits, bitdata bitstream.Snapshot) []Match

	// FeatureToBits resolves a feature, or the address'th bit of a vector
	// feature. Pseudo pips resolve to no bits. The boolean is false if the
	// feature is unknown.
	FeatureToBits(feature string, address int) ([]BlockBit, bool)

	// Frames returns every frame any feature could touch given the tile's
	// regions, in ascending order
	Frames(bits map[bitstream.BlockType]Bits) []uint32
}

type featureAddress struct {
	blockType bitstream.BlockType
	feature   string
}

// TileSegbits is the feature database of a tile type
type TileSegbits struct {
	tileType         string
	segbits          map[bitstream.BlockType]map[string][]Bit
	order            map[bitstream.BlockType][]string
	ppips            map[string]PseudoPip
	featureAddresses map[string]map[int]featureAddress
}

type tableLine struct {
	file string
	num  int
	text string
}

func (l tableLine) errorf(format string, a ...interface{}) error {
	return &DatabaseError{File: l.file, Line: l.num, Err: fmt.Errorf(format, a...)}
}

type segbitsTables struct {
	segbits map[bitstream.BlockType][]tableLine
	ppips   []tableLine
}

func (t *segbitsTables) empty() bool {
	if len(t.ppips) > 0 {
		return false
	}
	for _, lines := range t.segbits {
		if len(lines) > 0 {
			return false
		}
	}
	return true
}

func parseSegbitsLine(text string) (string, []Bit, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return "", nil, errors.New("expected feature and at least one segbit")
	}
	bits := make([]Bit, 0, len(fields)-1)
	for _, f := range fields[1:] {
		b, err := ParseBit(f)
		if err != nil {
			return "", nil, err
		}
		bits = append(bits, b)
	}
	return fields[0], bits, nil
}

func parsePseudoPipLine(text string) (string, PseudoPip, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return "", "", errors.New("expected feature and pseudo pip kind")
	}
	switch kind := PseudoPip(fields[1]); kind {
	case PseudoPipAlways, PseudoPipDefault, PseudoPipHint:
		return fields[0], kind, nil
	default:
		return "", "", fmt.Errorf("unknown pseudo pip kind %q", fields[1])
	}
}

// splitIndex splits a trailing [n] off a feature name
func splitIndex(feature string) (string, int, bool, error) {
	if !strings.HasSuffix(feature, "]") {
		return feature, 0, false, nil
	}
	i := strings.LastIndex(feature, "[")
	if i < 0 {
		return "", 0, false, fmt.Errorf("unbalanced index in %q", feature)
	}
	idx, err := strconv.Atoi(feature[i+1 : len(feature)-1])
	if err != nil || idx < 0 {
		return "", 0, false, fmt.Errorf("bad index in %q", feature)
	}
	return feature[:i], idx, true, nil
}

func equalBits(a, b []Bit) bool {
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

func newTileSegbits(tileType string, tables *segbitsTables) (*TileSegbits, error) {
	s := &TileSegbits{
		tileType:         tileType,
		segbits:          make(map[bitstream.BlockType]map[string][]Bit),
		order:            make(map[bitstream.BlockType][]string),
		ppips:            make(map[string]PseudoPip),
		featureAddresses: make(map[string]map[int]featureAddress),
	}
	prefix := tileType + "."

	for _, line := range tables.ppips {
		feature, kind, err := parsePseudoPipLine(line.text)
		if err != nil {
			return nil, line.errorf("%v", err)
		}
		s.ppips[feature] = kind
	}

	for _, bt := range bitstream.BlockTypes {
		lines := tables.segbits[bt]
		if len(lines) == 0 {
			continue
		}
		features := make(map[string][]Bit, len(lines))
		for _, line := range lines {
			feature, bits, err := parseSegbitsLine(line.text)
			if err != nil {
				return nil, line.errorf("%v", err)
			}
			if !strings.HasPrefix(feature, prefix) {
				return nil, line.errorf("feature %s is not of tile type %s", feature, tileType)
			}
			if prev, ok := features[feature]; ok {
				if !equalBits(prev, bits) {
					return nil, line.errorf("conflicting definitions of %s", feature)
				}
				continue
			}
			features[feature] = bits

			base, idx, vector, err := splitIndex(feature)
			if err != nil {
				return nil, line.errorf("%v", err)
			}
			if !vector {
				continue
			}
			addrs, ok := s.featureAddresses[base]
			if !ok {
				addrs = make(map[int]featureAddress)
				s.featureAddresses[base] = addrs
			}
			if prev, ok := addrs[idx]; ok {
				return nil, line.errorf("%s and %s both claim %s[%d]", prev.feature, feature, base, idx)
			}
			addrs[idx] = featureAddress{blockType: bt, feature: feature}
		}

		order := make([]string, 0, len(features))
		for feature := range features {
			order = append(order, feature)
		}
		sort.Strings(order)

		s.segbits[bt] = features
		s.order[bt] = order
	}

	return s, nil
}

// TileType returns the tile type
func (s *TileSegbits) TileType() string {
	return s.tileType
}

// Empty reports whether the tile type has no segbits or pseudo pips
func (s *TileSegbits) Empty() bool {
	return len(s.segbits) == 0 && len(s.ppips) == 0
}

// Features returns every feature with bits, in name order
func (s *TileSegbits) Features() []string {
	var features []string
	for _, bt := range bitstream.BlockTypes {
		features = append(features, s.order[bt]...)
	}
	sort.Strings(features)
	return features
}

// PseudoPip returns the kind of a pseudo pip
func (s *TileSegbits) PseudoPip(feature string) (PseudoPip, bool) {
	kind, ok := s.ppips[feature]
	return kind, ok
}

func (s *TileSegbits) lookup(feature string, address int) (bitstream.BlockType, []Bit, bool) {
	if address == 0 {
		for _, bt := range bitstream.BlockTypes {
			if bits, ok := s.segbits[bt][feature]; ok {
				return bt, bits, true
			}
		}
	}
	fa, ok := s.featureAddresses[feature][address]
	if !ok {
		return 0, nil, false
	}
	return fa.blockType, s.segbits[fa.blockType][fa.feature], true
}

// FeatureToBits implements Segbits
func (s *TileSegbits) FeatureToBits(feature string, address int) ([]BlockBit, bool) {
	if _, ok := s.ppips[feature]; ok {
		return nil, true
	}
	bt, bits, ok := s.lookup(feature, address)
	if !ok {
		return nil, false
	}
	out := make([]BlockBit, len(bits))
	for i, b := range bits {
		out[i] = BlockBit{BlockType: bt, Bit: b}
	}
	return out, true
}

// matchBitdata places the block type's features at base and offset, which
// may be negative for a shifted alias window. Features with any bit
// rejected by filter are skipped.
func (s *TileSegbits) matchBitdata(blockType bitstream.BlockType, base uint32, offset int, bitdata bitstream.Snapshot, filter func(Bit) bool) []Match {
	var matches []Match
	features := s.segbits[blockType]

outer:
	for _, feature := range s.order[blockType] {
		bits := features[feature]
		if filter != nil {
			for _, b := range bits {
				if !filter(b) {
					continue outer
				}
			}
		}

		for _, b := range bits {
			abs := offset*bitstream.WordSizeBits + b.WordBit
			if abs < 0 || abs >= bitstream.FrameWordCount*bitstream.WordSizeBits {
				continue outer
			}
			if bitdata.IsSetAbs(base+uint32(b.WordColumn), uint32(abs)) != b.IsSet {
				continue outer
			}
		}

		m := Match{Feature: feature}
		for _, b := range bits {
			if b.IsSet {
				m.Bits = append(m.Bits, FrameBit{
					Frame: base + uint32(b.WordColumn),
					Bit:   uint32(offset*bitstream.WordSizeBits + b.WordBit),
				})
			}
		}
		matches = append(matches, m)
	}

	return matches
}

// MatchBitdata implements Segbits
func (s *TileSegbits) MatchBitdata(blockType bitstream.BlockType, bits Bits, bitdata bitstream.Snapshot) []Match {
	return s.matchBitdata(blockType, bits.BaseAddress, bits.Offset, bitdata, nil)
}

func (s *TileSegbits) addFrames(set map[uint32]struct{}, blockType bitstream.BlockType, base uint32, filter func(Bit) bool) {
	for _, bits := range s.segbits[blockType] {
		for _, b := range bits {
			if filter == nil || filter(b) {
				set[base+uint32(b.WordColumn)] = struct{}{}
			}
		}
	}
}

// Frames implements Segbits
func (s *TileSegbits) Frames(bits map[bitstream.BlockType]Bits) []uint32 {
	set := make(map[uint32]struct{})
	for bt, region := range bits {
		s.addFrames(set, bt, region.BaseAddress, nil)
	}
	return sortedFrames(set)
}

func sortedFrames(set map[uint32]struct{}) []uint32 {
	frames := make([]uint32, 0, len(set))
	for frame := range set {
		frames = append(frames, frame)
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i] < frames[j] })
	return frames
}
