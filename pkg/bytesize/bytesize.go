// Package bytesize provides human-readable byte size parsing and formatting
// using binary (1024) units.
//
// Accepted forms (case-insensitive): "400MB", "1.5 GiB", "500k", "2147483648".
// A bare number is interpreted as bytes.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
)

// Size is a byte count.
type Size int64

// Binary size constants.
const (
	B  Size = 1
	KB Size = 1024 * B
	MB Size = 1024 * KB
	GB Size = 1024 * MB
	TB Size = 1024 * GB
)

var units = map[string]Size{
	"":      B,
	"b":     B,
	"byte":  B,
	"bytes": B,
	"k":     KB,
	"kb":    KB,
	"kib":   KB,
	"m":     MB,
	"mb":    MB,
	"mib":   MB,
	"g":     GB,
	"gb":    GB,
	"gib":   GB,
	"t":     TB,
	"tb":    TB,
	"tib":   TB,
}

// Parse parses a human-readable byte size string.
func Parse(s string) (Size, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("bytesize: empty string")
	}

	// Split the numeric prefix from the unit suffix.
	split := len(trimmed)
	for i, r := range trimmed {
		if (r < '0' || r > '9') && r != '.' {
			split = i
			break
		}
	}

	valueStr := trimmed[:split]
	unitStr := strings.ToLower(strings.TrimSpace(trimmed[split:]))

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid value %q", s)
	}

	mult, ok := units[unitStr]
	if !ok {
		return 0, fmt.Errorf("bytesize: unknown unit %q", unitStr)
	}

	return Size(value * float64(mult)), nil
}

// MustParse is like Parse but panics on invalid input.
func MustParse(s string) Size {
	size, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return size
}

// Format renders a size using the largest unit with a value >= 1.
func Format(s Size) string {
	neg := ""
	if s < 0 {
		neg = "-"
		s = -s
	}

	switch {
	case s >= TB:
		return neg + trim(float64(s)/float64(TB)) + "TB"
	case s >= GB:
		return neg + trim(float64(s)/float64(GB)) + "GB"
	case s >= MB:
		return neg + trim(float64(s)/float64(MB)) + "MB"
	case s >= KB:
		return neg + trim(float64(s)/float64(KB)) + "KB"
	default:
		return fmt.Sprintf("%s%dB", neg, int64(s))
	}
}

func trim(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	out := strconv.FormatFloat(v, 'f', 2, 64)
	out = strings.TrimRight(out, "0")
	return strings.TrimRight(out, ".")
}

// Bytes returns the size in bytes.
func (s Size) Bytes() int64 { return int64(s) }

// String implements fmt.Stringer.
func (s Size) String() string { return Format(s) }
