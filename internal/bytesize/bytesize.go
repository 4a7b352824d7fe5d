// Package bytesize renders byte counts in human-readable decimal units for
// log output. Storage budgets in this tool are decimal (a megabyte input is
// multiplied by 1,000,000), so formatting follows suit.
package bytesize

import "fmt"

// ByteSize is a size in bytes.
type ByteSize uint64

// Decimal units.
const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB
)

// String returns a human-readable representation of the byte size.
func (b ByteSize) String() string {
	switch {
	case b >= TB:
		return fmt.Sprintf("%.2fTB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2fGB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2fMB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2fKB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%dB", uint64(b))
	}
}

// Format renders a raw byte count.
func Format(n uint64) string {
	return ByteSize(n).String()
}
