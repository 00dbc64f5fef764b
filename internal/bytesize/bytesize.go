// Package bytesize parses and formats human-readable byte sizes for
// configuration values: block widths and device capacities. Both
// decimal ("100MB") and binary ("4KiB") suffixes are accepted; block
// geometry in this module is almost always binary-suffixed, so String
// renders binary units.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteSize is a byte count carrying parse/format behavior.
type ByteSize uint64

const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
)

// unitFor resolves a size suffix, case-insensitively. A bare "k" or
// "m" means the decimal unit.
func unitFor(suffix string) (ByteSize, bool) {
	switch strings.ToLower(suffix) {
	case "", "b":
		return B, true
	case "k", "kb":
		return KB, true
	case "m", "mb":
		return MB, true
	case "g", "gb":
		return GB, true
	case "t", "tb":
		return TB, true
	case "ki", "kib":
		return KiB, true
	case "mi", "mib":
		return MiB, true
	case "gi", "gib":
		return GiB, true
	case "ti", "tib":
		return TiB, true
	default:
		return 0, false
	}
}

// ParseByteSize parses values like "4096", "4KiB", "1.5Gi" or
// "100MB" into a byte count.
func ParseByteSize(s string) (ByteSize, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("empty byte size string")
	}

	split := len(trimmed)
	for i, r := range trimmed {
		if (r < '0' || r > '9') && r != '.' {
			split = i
			break
		}
	}
	numStr := trimmed[:split]
	suffix := strings.TrimSpace(trimmed[split:])
	if numStr == "" {
		return 0, fmt.Errorf("invalid byte size format: %q", s)
	}

	unit, ok := unitFor(suffix)
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit: %q", suffix)
	}

	if !strings.Contains(numStr, ".") {
		n, err := strconv.ParseUint(numStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number in byte size: %q", numStr)
		}
		return ByteSize(n) * unit, nil
	}

	f, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number in byte size: %q", numStr)
	}
	return ByteSize(f * float64(unit)), nil
}

// UnmarshalText lets ByteSize fields decode directly from config
// strings.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// String renders the size with the largest whole binary unit.
func (b ByteSize) String() string {
	switch {
	case b >= TiB:
		return fmt.Sprintf("%.2fTiB", float64(b)/float64(TiB))
	case b >= GiB:
		return fmt.Sprintf("%.2fGiB", float64(b)/float64(GiB))
	case b >= MiB:
		return fmt.Sprintf("%.2fMiB", float64(b)/float64(MiB))
	case b >= KiB:
		return fmt.Sprintf("%.2fKiB", float64(b)/float64(KiB))
	default:
		return fmt.Sprintf("%dB", uint64(b))
	}
}

// Uint64 returns the raw byte count.
func (b ByteSize) Uint64() uint64 { return uint64(b) }

// Int64 returns the byte count as int64; callers sizing file offsets
// use this.
func (b ByteSize) Int64() int64 { return int64(b) }

// Blocks returns how many whole blocks of the given width fit in b,
// the conversion every stack-geometry computation starts from.
func (b ByteSize) Blocks(blocksize ByteSize) uint64 {
	if blocksize == 0 {
		return 0
	}
	return uint64(b) / uint64(blocksize)
}
