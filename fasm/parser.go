package fasm

import (
	"bufio"
	"fmt"
	"io"
	"math/big"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// ParseFile parses the FASM file at path
func ParseFile(path string) ([]Line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(f)
}

// Parse parses FASM text, returning one Line per input line
func Parse(r io.Reader) ([]Line, error) {
	var lines []Line
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line, err := ParseLine(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// indexUnquoted returns the index of the first c in s outside a double
// quoted string, or -1
func indexUnquoted(s string, c byte) int {
	quoted := false
	for i := 0; i < len(s); i++ {
		switch {
		case quoted && s[i] == '\\':
			i++
		case s[i] == '"':
			quoted = !quoted
		case !quoted && s[i] == c:
			return i
		}
	}
	return -1
}

// ParseLine parses a single line of FASM text
func ParseLine(s string) (Line, error) {
	var line Line

	if i := indexUnquoted(s, '#'); i >= 0 {
		line.Comment = s[i+1:]
		s = s[:i]
	}
	s = strings.TrimSpace(s)

	if i := indexUnquoted(s, '{'); i >= 0 {
		if !strings.HasSuffix(s, "}") {
			return Line{}, fmt.Errorf("unterminated annotation block")
		}
		annotations, err := parseAnnotations(s[i+1 : len(s)-1])
		if err != nil {
			return Line{}, err
		}
		line.Annotations = annotations
		s = strings.TrimSpace(s[:i])
	}

	if s == "" {
		return line, nil
	}

	sf, err := parseSetFeature(s)
	if err != nil {
		return Line{}, err
	}
	line.Set = sf
	return line, nil
}

func parseAnnotations(s string) ([]Annotation, error) {
	var annotations []Annotation
	for strings.TrimSpace(s) != "" {
		end := indexUnquoted(s, ',')
		part := s
		if end >= 0 {
			part, s = s[:end], s[end+1:]
		} else {
			s = ""
		}

		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			return nil, fmt.Errorf("annotation %q missing '='", strings.TrimSpace(part))
		}
		name := strings.TrimSpace(part[:eq])
		if !validIdentifier(name) {
			return nil, fmt.Errorf("invalid annotation name %q", name)
		}
		value, err := strconv.Unquote(strings.TrimSpace(part[eq+1:]))
		if err != nil {
			return nil, fmt.Errorf("annotation %s: value must be a quoted string", name)
		}
		annotations = append(annotations, Annotation{Name: name, Value: value})
	}
	return annotations, nil
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if unicode.IsSpace(r) || strings.ContainsRune("[]{}=#:\"',", r) {
			return false
		}
	}
	return true
}

func parseSetFeature(s string) (*SetFeature, error) {
	lhs, rhs := s, ""
	hasValue := false
	if i := strings.IndexByte(s, '='); i >= 0 {
		lhs, rhs = strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
		hasValue = true
	}

	sf := Enable(lhs)
	if i := strings.IndexByte(lhs, '['); i >= 0 {
		if !strings.HasSuffix(lhs, "]") {
			return nil, fmt.Errorf("unterminated address in %q", lhs)
		}
		sf.Feature = lhs[:i]
		if err := parseAddress(sf, lhs[i+1:len(lhs)-1]); err != nil {
			return nil, err
		}
	}
	if !validIdentifier(sf.Feature) {
		return nil, fmt.Errorf("invalid feature name %q", sf.Feature)
	}

	if hasValue {
		v, format, err := parseValue(rhs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sf.Feature, err)
		}
		sf.Value, sf.ValueFormat = v, format
	}

	return sf, nil
}

func parseAddress(sf *SetFeature, s string) error {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 1:
		start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil || start < 0 {
			return fmt.Errorf("invalid address [%s]", s)
		}
		sf.Start = start
	case 2:
		end, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return fmt.Errorf("invalid address [%s]", s)
		}
		start, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || start < 0 || end < start {
			return fmt.Errorf("invalid address [%s]", s)
		}
		sf.Start, sf.End = start, end
	default:
		return fmt.Errorf("invalid address [%s]", s)
	}
	return nil
}

func parseValue(s string) (*big.Int, ValueFormat, error) {
	s = strings.Replace(s, "_", "", -1)
	if s == "" {
		return nil, Plain, fmt.Errorf("missing value")
	}

	format, base, digits := Plain, 10, s
	if i := strings.IndexByte(s, '\''); i >= 0 {
		if i+1 >= len(s) {
			return nil, Plain, fmt.Errorf("invalid value %q", s)
		}
		width, err := strconv.Atoi(s[:i])
		if err != nil || width <= 0 {
			return nil, Plain, fmt.Errorf("invalid width in %q", s)
		}
		switch unicode.ToLower(rune(s[i+1])) {
		case 'h':
			format, base = Hex, 16
		case 'b':
			format, base = Binary, 2
		case 'o':
			format, base = Octal, 8
		case 'd':
			format, base = Decimal, 10
		default:
			return nil, Plain, fmt.Errorf("invalid base in %q", s)
		}
		digits = s[i+2:]

		v, ok := new(big.Int).SetString(digits, base)
		if !ok || v.Sign() < 0 {
			return nil, Plain, fmt.Errorf("invalid value %q", s)
		}
		if v.BitLen() > width {
			return nil, Plain, fmt.Errorf("value %q does not fit in %d bits", s, width)
		}
		return v, format, nil
	}

	v, ok := new(big.Int).SetString(digits, base)
	if !ok || v.Sign() < 0 {
		return nil, Plain, fmt.Errorf("invalid value %q", s)
	}
	return v, format, nil
}
