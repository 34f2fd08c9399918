package counter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// NumChannels is the number of counter channels.
const NumChannels = 8

const countsExpected = "8 counts + overflow flag"

// Counts is one snapshot of the counter registers.
type Counts struct {
	// Channels holds the accumulated count of each channel since the previous read.
	Channels [NumChannels]uint64
	// Overflow is non-zero when a register overflowed since the previous read.
	Overflow int
}

// Overflowed reports whether the overflow flag is set.
func (c Counts) Overflowed() bool { return c.Overflow != 0 }

// ParseCounts parses the response of the "c" command: eight non-negative
// integers followed by the overflow flag, separated by whitespace.
func ParseCounts(raw string) (Counts, error) {
	var counts Counts

	fields := strings.Fields(raw)
	if len(fields) != NumChannels+1 {
		return counts, &InvalidResponseError{Raw: raw, Expected: countsExpected}
	}

	for i := range NumChannels {
		v, err := strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return counts, &InvalidResponseError{Raw: raw, Expected: countsExpected}
		}
		counts.Channels[i] = v
	}

	overflow, err := strconv.Atoi(fields[NumChannels])
	if err != nil {
		return counts, &InvalidResponseError{Raw: raw, Expected: countsExpected}
	}
	counts.Overflow = overflow

	return counts, nil
}

// FirmwareVersion is a semantic firmware version.
type FirmwareVersion struct {
	Major int
	Minor int
	Patch int
}

// MinFirmwareVersion is the oldest firmware the engine supports.
var MinFirmwareVersion = FirmwareVersion{Major: 1, Minor: 0, Patch: 0}

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// ParseFirmwareVersion extracts the first major.minor[.patch] run from s.
// A missing patch is 0; text without a version yields 0.0.0.
func ParseFirmwareVersion(s string) FirmwareVersion {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return FirmwareVersion{}
	}

	var v FirmwareVersion
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		v.Patch, _ = strconv.Atoi(m[3])
	}

	return v
}

// Compare returns -1, 0 or +1 when v is older than, equal to or newer than o.
func (v FirmwareVersion) Compare(o FirmwareVersion) int {
	switch {
	case v.Major != o.Major:
		return cmpInt(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmpInt(v.Minor, o.Minor)
	default:
		return cmpInt(v.Patch, o.Patch)
	}
}

// Less reports whether v is older than o.
func (v FirmwareVersion) Less(o FirmwareVersion) bool { return v.Compare(o) < 0 }

// IsZero reports whether no version was found.
func (v FirmwareVersion) IsZero() bool { return v == FirmwareVersion{} }

func (v FirmwareVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// FirmwareInfo is the result of a firmware query.
type FirmwareInfo struct {
	// Raw is the unmodified response of the "v" command.
	Raw        string
	Version    FirmwareVersion
	Minimum    FirmwareVersion
	Compatible bool
}
