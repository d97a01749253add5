package prjxray

import (
	"sort"
)

// SegmentMap indexes every tile region by the frame addresses it spans
type SegmentMap struct {
	segments []BitsInfo
	// maxEnd[i] is the largest exclusive end address of segments[0:i+1]
	maxEnd []uint64
}

// NewSegmentMap builds the index from a list of regions
func NewSegmentMap(frames []BitsInfo) *SegmentMap {
	segments := make([]BitsInfo, len(frames))
	copy(segments, frames)
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Bits.BaseAddress < segments[j].Bits.BaseAddress
	})

	maxEnd := make([]uint64, len(segments))
	var end uint64
	for i, s := range segments {
		if e := uint64(s.Bits.BaseAddress) + uint64(s.Bits.Frames); e > end {
			end = e
		}
		maxEnd[i] = end
	}

	return &SegmentMap{
		segments: segments,
		maxEnd:   maxEnd,
	}
}

// SegmentInfoForFrame returns every region containing the frame address,
// ordered by tile name and block type. More than one region is returned
// where tiles share frames.
func (m *SegmentMap) SegmentInfoForFrame(frame uint32) []BitsInfo {
	i := sort.Search(len(m.segments), func(i int) bool {
		return m.segments[i].Bits.BaseAddress > frame
	})

	var infos []BitsInfo
	for j := i - 1; j >= 0 && m.maxEnd[j] > uint64(frame); j-- {
		if m.segments[j].Bits.ContainsFrame(frame) {
			infos = append(infos, m.segments[j])
		}
	}

	sort.Slice(infos, func(a, b int) bool {
		if infos[a].Tile != infos[b].Tile {
			return infos[a].Tile < infos[b].Tile
		}
		return infos[a].BlockType < infos[b].BlockType
	})
	return infos
}

// Len returns the number of regions indexed
func (m *SegmentMap) Len() int {
	return len(m.segments)
}
