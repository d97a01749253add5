package bitstream

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Frame holds the words of one configuration frame
type Frame [FrameWordCount]uint32

// Frames is a set of materialized frames keyed by frame address. It
// implements the encoding.BinaryMarshaler and encoding.BinaryUnmarshaler
// interfaces.
type Frames map[uint32]*Frame

// Addresses returns the frame addresses in ascending order
func (f Frames) Addresses() []uint32 {
	addrs := make([]uint32, 0, len(f))
	for addr := range f {
		addrs = append(addrs, addr)
	}
	sortUint32s(addrs)
	return addrs
}

// Init returns the frame at addr, zero filling it first if absent
func (f Frames) Init(addr uint32) *Frame {
	frame, ok := f[addr]
	if !ok {
		frame = new(Frame)
		f[addr] = frame
	}
	return frame
}

// Snapshot returns the set bits of every frame
func (f Frames) Snapshot() Snapshot {
	s := make(Snapshot)
	for addr, frame := range f {
		for word, v := range frame {
			for bit := uint32(0); bit < WordSizeBits; bit++ {
				if v&(1<<bit) != 0 {
					s.Set(addr, uint32(word), bit)
				}
			}
		}
	}
	return s
}

// WriteFrm writes frames in the textual frame file format, one frame per
// line as the address followed by its comma separated words
func WriteFrm(w io.Writer, f Frames) error {
	bw := bufio.NewWriter(w)
	for _, addr := range f.Addresses() {
		frame := f[addr]
		words := make([]string, len(frame))
		for i, v := range frame {
			words[i] = fmt.Sprintf("0x%08x", v)
		}
		if _, err := fmt.Fprintf(bw, "0x%08x %s\n", addr, strings.Join(words, ",")); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadFrm reads frames in the format written by WriteFrm
func ReadFrm(r io.Reader) (Frames, error) {
	f := make(Frames)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: expected address and words", lineNum)
		}
		addr, err := strconv.ParseUint(fields[0], 0, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad frame address: %w", lineNum, err)
		}
		words := strings.Split(fields[1], ",")
		if len(words) != FrameWordCount {
			return nil, fmt.Errorf("line %d: expected %d words, got %d", lineNum, FrameWordCount, len(words))
		}
		if _, ok := f[uint32(addr)]; ok {
			return nil, fmt.Errorf("line %d: duplicate frame 0x%08x", lineNum, addr)
		}
		frame := f.Init(uint32(addr))
		for i, word := range words {
			v, err := strconv.ParseUint(word, 0, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad word %d: %w", lineNum, i, err)
			}
			frame[i] = uint32(v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

// MarshalBinary encodes the frames as a big-endian frame count followed by
// each frame address and its words, in ascending address order
func (f Frames) MarshalBinary() ([]byte, error) {
	b := new(bytes.Buffer)

	if err := binary.Write(b, binary.BigEndian, uint32(len(f))); err != nil {
		return nil, err
	}

	for _, addr := range f.Addresses() {
		if err := binary.Write(b, binary.BigEndian, addr); err != nil {
			return nil, err
		}
		if err := binary.Write(b, binary.BigEndian, f[addr]); err != nil {
			return nil, err
		}
	}

	return b.Bytes(), nil
}

// UnmarshalBinary decodes frames from the form written by MarshalBinary,
// replacing any existing content
func (f *Frames) UnmarshalBinary(b []byte) error {
	r := bytes.NewReader(b)

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return err
	}

	if count > uint32(r.Len()/(4+4*FrameWordCount)) {
		return fmt.Errorf("%d frames declared, insufficient data", count)
	}

	frames := make(Frames, count)
	for i := uint32(0); i < count; i++ {
		var addr uint32
		if err := binary.Read(r, binary.BigEndian, &addr); err != nil {
			return errors.New("insufficient data")
		}
		frame := new(Frame)
		if err := binary.Read(r, binary.BigEndian, frame); err != nil {
			return errors.New("insufficient data")
		}
		frames[addr] = frame
	}

	if r.Len() != 0 {
		return fmt.Errorf("%d trailing bytes", r.Len())
	}

	*f = frames
	return nil
}
