/*
Package fasm implements the FPGA Assembly line model: a line either sets a
feature, optionally addressing a bit range and assigning it a value, or
carries only annotations and a comment.

	CLBLL_L_X2Y10.SLICEL_X0.ALUT.INIT[3:0] = 4'b1010 { src = "top.v" } # lut

Features are canonicalized into single-bit set statements before they are
assembled.
*/
package fasm

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// ValueFormat records how a value was written so that it can be written back
// the same way
type ValueFormat int

// Value formats
const (
	Plain ValueFormat = iota
	Decimal
	Hex
	Binary
	Octal
)

// NoAddress is the Start of a feature without a bit address, and the End of
// a feature addressing a single bit
const NoAddress = -1

// SetFeature is a feature assignment. Start and End select the bit range
// [Start, End]; End is NoAddress when a single bit is addressed and Start is
// NoAddress when the feature has no address at all.
type SetFeature struct {
	Feature     string
	Start       int
	End         int
	Value       *big.Int
	ValueFormat ValueFormat
}

// Annotation is a name/value pair attached to a line
type Annotation struct {
	Name  string
	Value string
}

// Line is one line of a FASM file. Any of the parts may be absent; a blank
// line has none of them.
type Line struct {
	Set         *SetFeature
	Annotations []Annotation
	Comment     string
}

// Enable returns a SetFeature enabling a feature with no address
func Enable(feature string) *SetFeature {
	return &SetFeature{
		Feature: feature,
		Start:   NoAddress,
		End:     NoAddress,
		Value:   big.NewInt(1),
	}
}

// EnableBit returns a SetFeature enabling a single bit of a feature
func EnableBit(feature string, bit int) *SetFeature {
	sf := Enable(feature)
	sf.Start = bit
	return sf
}

// Width returns the number of bits addressed
func (sf *SetFeature) Width() int {
	if sf.End == NoAddress {
		return 1
	}
	return sf.End - sf.Start + 1
}

func (sf *SetFeature) value() *big.Int {
	if sf.Value == nil {
		return big.NewInt(1)
	}
	return sf.Value
}

func (sf *SetFeature) String() string {
	var b strings.Builder
	b.WriteString(sf.Feature)
	switch {
	case sf.Start == NoAddress:
	case sf.End == NoAddress:
		fmt.Fprintf(&b, "[%d]", sf.Start)
	default:
		fmt.Fprintf(&b, "[%d:%d]", sf.End, sf.Start)
	}

	v := sf.value()
	if v.Cmp(big.NewInt(1)) == 0 && sf.ValueFormat == Plain {
		return b.String()
	}

	b.WriteString(" = ")
	width := sf.Width()
	switch sf.ValueFormat {
	case Hex:
		fmt.Fprintf(&b, "%d'h%s", width, strings.ToUpper(v.Text(16)))
	case Binary:
		digits := v.Text(2)
		if len(digits) < width {
			digits = strings.Repeat("0", width-len(digits)) + digits
		}
		fmt.Fprintf(&b, "%d'b%s", width, digits)
	case Octal:
		fmt.Fprintf(&b, "%d'o%s", width, v.Text(8))
	case Decimal:
		fmt.Fprintf(&b, "%d'd%s", width, v.Text(10))
	default:
		b.WriteString(v.Text(10))
	}
	return b.String()
}

func (l Line) String() string {
	var parts []string
	if l.Set != nil {
		parts = append(parts, l.Set.String())
	}
	if len(l.Annotations) > 0 {
		annotations := make([]string, len(l.Annotations))
		for i, a := range l.Annotations {
			annotations[i] = fmt.Sprintf("%s = %q", a.Name, a.Value)
		}
		parts = append(parts, "{ "+strings.Join(annotations, ", ")+" }")
	}
	if l.Comment != "" {
		parts = append(parts, "#"+l.Comment)
	}
	return strings.Join(parts, " ")
}

// Canonicalize expands a feature assignment into one single-bit enable per
// set bit. Unaddressed features assigned zero produce nothing.
func Canonicalize(sf *SetFeature) ([]*SetFeature, error) {
	v := sf.value()
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%s: negative value", sf.Feature)
	}
	if v.BitLen() > sf.Width() {
		return nil, fmt.Errorf("%s: value %s does not fit in %d bits", sf.Feature, v, sf.Width())
	}
	if v.Sign() == 0 {
		return nil, nil
	}

	switch {
	case sf.Start == NoAddress:
		return []*SetFeature{Enable(sf.Feature)}, nil
	case sf.End == NoAddress:
		return []*SetFeature{EnableBit(sf.Feature, sf.Start)}, nil
	}

	var out []*SetFeature
	for i := 0; i < sf.Width(); i++ {
		if v.Bit(i) == 1 {
			out = append(out, EnableBit(sf.Feature, sf.Start+i))
		}
	}
	return out, nil
}

// SortLines orders lines by their text form. Lines without a feature sort
// after those with one.
func SortLines(lines []Line) {
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		if (a.Set == nil) != (b.Set == nil) {
			return a.Set != nil
		}
		return a.String() < b.String()
	})
}
