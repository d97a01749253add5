package bitstream

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

const bitPrefix = "bit_"

// Snapshot is a sparse view of set configuration bits, keyed by frame
// address, then word index, then bit index within the word. Anything absent
// reads as zero.
type Snapshot map[uint32]map[uint32]map[uint32]struct{}

// Set marks a bit as set
func (s Snapshot) Set(frame, word, bit uint32) {
	words, ok := s[frame]
	if !ok {
		words = make(map[uint32]map[uint32]struct{})
		s[frame] = words
	}
	bits, ok := words[word]
	if !ok {
		bits = make(map[uint32]struct{})
		words[word] = bits
	}
	bits[bit] = struct{}{}
}

// SetAbs marks a bit as set given its absolute bit index within the frame
func (s Snapshot) SetAbs(frame, abs uint32) {
	s.Set(frame, abs/WordSizeBits, abs%WordSizeBits)
}

// IsSet reports whether a bit is set
func (s Snapshot) IsSet(frame, word, bit uint32) bool {
	_, ok := s[frame][word][bit]
	return ok
}

// IsSetAbs reports whether a bit is set given its absolute bit index within
// the frame
func (s Snapshot) IsSetAbs(frame, abs uint32) bool {
	return s.IsSet(frame, abs/WordSizeBits, abs%WordSizeBits)
}

// HasWord reports whether any bit in the word is set
func (s Snapshot) HasWord(frame, word uint32) bool {
	return len(s[frame][word]) > 0
}

// Frames returns every frame address with at least one set bit, in
// ascending order
func (s Snapshot) Frames() []uint32 {
	frames := make([]uint32, 0, len(s))
	for frame, words := range s {
		for _, bits := range words {
			if len(bits) > 0 {
				frames = append(frames, frame)
				break
			}
		}
	}
	sortUint32s(frames)
	return frames
}

// Bits returns the absolute bit indices set in a frame, in ascending order
func (s Snapshot) Bits(frame uint32) []uint32 {
	var bits []uint32
	for word, set := range s[frame] {
		for bit := range set {
			bits = append(bits, word*WordSizeBits+bit)
		}
	}
	sortUint32s(bits)
	return bits
}

// Count returns the total number of set bits
func (s Snapshot) Count() int {
	var n int
	for _, words := range s {
		for _, bits := range words {
			n += len(bits)
		}
	}
	return n
}

// FrameUsage is the coarse per-frame view returned by LoadBitdata
type FrameUsage struct {
	// Words holds every word index with at least one set bit
	Words map[uint32]struct{}
	// Bits holds every set bit as word*WordSizeBits+bit
	Bits map[uint32]struct{}
}

// BitLiteral formats a single bit the way it appears in bit dumps
func BitLiteral(frame, word, bit uint32) string {
	return fmt.Sprintf("bit_%08x_%03d_%02d", frame, word, bit)
}

// ParseBitLiteral parses a bit_<frame>_<word>_<bit> literal
func ParseBitLiteral(s string) (frame, word, bit uint32, err error) {
	if !strings.HasPrefix(s, bitPrefix) {
		return 0, 0, 0, fmt.Errorf("missing %q prefix in %q", bitPrefix, s)
	}
	parts := strings.Split(s[len(bitPrefix):], "_")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("malformed bit literal %q", s)
	}
	f, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("bad frame in %q: %w", s, err)
	}
	w, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("bad word in %q: %w", s, err)
	}
	b, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("bad bit in %q: %w", s, err)
	}
	if w >= FrameWordCount {
		return 0, 0, 0, fmt.Errorf("word %d out of range in %q", w, s)
	}
	if b >= WordSizeBits {
		return 0, 0, 0, fmt.Errorf("bit %d out of range in %q", b, s)
	}
	return uint32(f), uint32(w), uint32(b), nil
}

func scanBits(r io.Reader, fn func(frame, word, bit uint32)) error {
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		frame, word, bit, err := ParseBitLiteral(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
		fn(frame, word, bit)
	}
	return scanner.Err()
}

// LoadBitdata reads a bit dump into the coarse per-frame form used for
// feasibility checks
func LoadBitdata(r io.Reader) (map[uint32]*FrameUsage, error) {
	bitdata := make(map[uint32]*FrameUsage)
	if err := scanBits(r, func(frame, word, bit uint32) {
		u, ok := bitdata[frame]
		if !ok {
			u = &FrameUsage{
				Words: make(map[uint32]struct{}),
				Bits:  make(map[uint32]struct{}),
			}
			bitdata[frame] = u
		}
		u.Words[word] = struct{}{}
		u.Bits[word*WordSizeBits+bit] = struct{}{}
	}); err != nil {
		return nil, err
	}
	return bitdata, nil
}

// LoadBitdata2 reads a bit dump into a Snapshot
func LoadBitdata2(r io.Reader) (Snapshot, error) {
	s := make(Snapshot)
	if err := scanBits(r, s.Set); err != nil {
		return nil, err
	}
	return s, nil
}

// WriteBits writes every set bit in s as a bit literal, one per line, in
// frame, word, bit order
func WriteBits(w io.Writer, s Snapshot) error {
	bw := bufio.NewWriter(w)
	for _, frame := range s.Frames() {
		for _, abs := range s.Bits(frame) {
			if _, err := fmt.Fprintln(bw, BitLiteral(frame, abs/WordSizeBits, abs%WordSizeBits)); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

func sortUint32s(s []uint32) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}
