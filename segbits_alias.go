package prjxray

import (
	"fmt"
	"sort"
	"strings"

	"github.com/f4pga/prjxray-sub001/bitstream"
)

// TileSegbitsAlias presents another tile type's features under this tile
// type's name. Several tile types share one register layout (the PLL and
// MMCM dynamic reconfiguration space, for example), each owning a window of
// it starting StartOffset words in.
//
// Only one aliased block type per tile type is supported. Block types that
// are not aliased resolve against the tile type's own tables.
type TileSegbitsAlias struct {
	tileType    string
	own         *TileSegbits
	target      *TileSegbits
	blockType   bitstream.BlockType
	alias       BitAlias
	words       int
	sitesToRev  map[string]string
	startOffset int
}

func newTileSegbitsAlias(info GridInfo, own, target *TileSegbits) (*TileSegbitsAlias, error) {
	s := &TileSegbitsAlias{
		tileType: info.TileType,
		own:      own,
		target:   target,
	}

	found := false
	for _, bt := range bitstream.BlockTypes {
		bits, ok := info.Bits[bt]
		if !ok || bits.Alias == nil {
			continue
		}
		if found {
			return nil, fmt.Errorf("tile type %s aliases more than one block type", info.TileType)
		}
		found = true
		s.blockType = bt
		s.alias = *bits.Alias
		s.words = bits.Words
	}
	if !found {
		return nil, fmt.Errorf("tile type %s has no alias", info.TileType)
	}
	if s.alias.TileType != target.TileType() {
		return nil, fmt.Errorf("tile type %s aliases %s, given %s", info.TileType, s.alias.TileType, target.TileType())
	}

	s.startOffset = s.alias.StartOffset
	s.sitesToRev = make(map[string]string, len(s.alias.Sites))
	for k, v := range s.alias.Sites {
		s.sitesToRev[v] = k
	}
	return s, nil
}

// TileType implements Segbits
func (s *TileSegbitsAlias) TileType() string {
	return s.tileType
}

// Empty implements Segbits
func (s *TileSegbitsAlias) Empty() bool {
	return s.own.Empty() && s.target.Empty()
}

// Alias returns the alias description
func (s *TileSegbitsAlias) Alias() BitAlias {
	return s.alias
}

func rename(feature, from, to string, sites map[string]string) (string, bool) {
	parts := strings.Split(feature, ".")
	if parts[0] != from {
		return "", false
	}
	parts[0] = to
	if len(parts) > 1 {
		if site, ok := sites[parts[1]]; ok {
			parts[1] = site
		}
	}
	return strings.Join(parts, "."), true
}

// MapFeatureToSegbits renames one of this tile type's features to the name
// used by the aliased tile type
func (s *TileSegbitsAlias) MapFeatureToSegbits(feature string) (string, bool) {
	return rename(feature, s.tileType, s.alias.TileType, s.alias.Sites)
}

// MapFeatureFromSegbits renames a feature of the aliased tile type to the
// name used by this tile type
func (s *TileSegbitsAlias) MapFeatureFromSegbits(feature string) (string, bool) {
	return rename(feature, s.alias.TileType, s.tileType, s.sitesToRev)
}

// inWindow reports whether an aliased segbit falls within this tile's words
func (s *TileSegbitsAlias) inWindow(b Bit) bool {
	word := b.WordBit / bitstream.WordSizeBits
	return word >= s.startOffset && word < s.startOffset+s.words
}

// FeatureToBits implements Segbits. Aliased bits are shifted into this
// tile's word numbering; a feature with any bit outside the window is not
// this tile's.
func (s *TileSegbitsAlias) FeatureToBits(feature string, address int) ([]BlockBit, bool) {
	if _, ok := s.own.ppips[feature]; ok {
		return nil, true
	}

	if mapped, ok := s.MapFeatureToSegbits(feature); ok {
		if bits, ok := s.target.FeatureToBits(mapped, address); ok {
			out := make([]BlockBit, 0, len(bits))
			inside := true
			for _, b := range bits {
				if b.BlockType != s.blockType || !s.inWindow(b.Bit) {
					inside = false
					break
				}
				b.WordBit -= s.startOffset * bitstream.WordSizeBits
				out = append(out, b)
			}
			if inside {
				return out, true
			}
		}
	}

	return s.own.FeatureToBits(feature, address)
}

// MatchBitdata implements Segbits. Within the aliased block type the tile
// type's own features are matched alongside the aliased ones, mirroring the
// fallback in FeatureToBits.
func (s *TileSegbitsAlias) MatchBitdata(blockType bitstream.BlockType, bits Bits, bitdata bitstream.Snapshot) []Match {
	if blockType != s.blockType {
		return s.own.MatchBitdata(blockType, bits, bitdata)
	}

	matches := s.target.matchBitdata(blockType, bits.BaseAddress, bits.Offset-s.startOffset, bitdata, s.inWindow)
	for i := range matches {
		if feature, ok := s.MapFeatureFromSegbits(matches[i].Feature); ok {
			matches[i].Feature = feature
		}
	}
	matches = append(matches, s.own.MatchBitdata(blockType, bits, bitdata)...)
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Feature < matches[j].Feature })
	return matches
}

// Frames implements Segbits
func (s *TileSegbitsAlias) Frames(bits map[bitstream.BlockType]Bits) []uint32 {
	set := make(map[uint32]struct{})
	for bt, region := range bits {
		if bt == s.blockType {
			s.target.addFrames(set, bt, region.BaseAddress, s.inWindow)
		}
		s.own.addFrames(set, bt, region.BaseAddress, nil)
	}
	return sortedFrames(set)
}
