package models

import (
	"strconv"
	"strings"

	"github.com/archives-observability/archives/archerr"
)

// Severity is the ordinal log severity scale TRACE < DEBUG < INFO < WARN < ERROR < FATAL.
// Every "minimum severity" comparison in the service goes through this type.
type Severity int

const (
	SeverityTrace Severity = iota
	SeverityDebug
	SeverityInfo
	SeverityWarn
	SeverityError
	SeverityFatal
)

var severityNames = [...]string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

// OpenTelemetry severity number ranges, indexed by Severity.
var severityRanges = [...][2]int32{
	{1, 4},
	{5, 8},
	{9, 12},
	{13, 16},
	{17, 20},
	{21, 24},
}

// Severities lists every level in ascending order.
func Severities() []Severity {
	return []Severity{SeverityTrace, SeverityDebug, SeverityInfo, SeverityWarn, SeverityError, SeverityFatal}
}

// SeverityNames lists the canonical level names in ascending order.
func SeverityNames() []string {
	return append([]string(nil), severityNames[:]...)
}

// ParseSeverity resolves a level name case-insensitively. "WARNING" is accepted as WARN.
func ParseSeverity(name string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "TRACE":
		return SeverityTrace, nil
	case "DEBUG":
		return SeverityDebug, nil
	case "INFO":
		return SeverityInfo, nil
	case "WARN", "WARNING":
		return SeverityWarn, nil
	case "ERROR":
		return SeverityError, nil
	case "FATAL":
		return SeverityFatal, nil
	}
	return 0, archerr.Param("min_severity", "unknown severity "+strconv.Quote(name)+", expected one of "+strings.Join(severityNames[:], ", "))
}

// Rank returns the ordinal position of a level name.
func Rank(name string) (int, error) {
	s, err := ParseSeverity(name)
	if err != nil {
		return 0, err
	}
	return s.Rank(), nil
}

// Matches reports whether a record at the given level passes a minimum-severity filter.
func Matches(record, min Severity) bool {
	return record.Rank() >= min.Rank()
}

// SeverityFromNumber maps an OpenTelemetry severity number onto the scale.
// Numbers outside 1..24, including 0 (unspecified), map to INFO.
func SeverityFromNumber(n int32) Severity {
	for i, r := range severityRanges {
		if n >= r[0] && n <= r[1] {
			return Severity(i)
		}
	}
	return SeverityInfo
}

// Rank returns the ordinal position of s.
func (s Severity) Rank() int {
	return int(s)
}

// Number returns the lowest OpenTelemetry severity number of s. It is the
// threshold used when filtering stored records.
func (s Severity) Number() int32 {
	if !s.valid() {
		return severityRanges[SeverityInfo][0]
	}
	return severityRanges[s][0]
}

// MaxNumber returns the highest OpenTelemetry severity number of s.
func (s Severity) MaxNumber() int32 {
	if !s.valid() {
		return severityRanges[SeverityInfo][1]
	}
	return severityRanges[s][1]
}

func (s Severity) String() string {
	if !s.valid() {
		return "UNKNOWN"
	}
	return severityNames[s]
}

// MarshalText encodes s as its canonical name.
func (s Severity) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, archerr.Newf(archerr.Internal, "invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a level name.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Severity) valid() bool {
	return s >= SeverityTrace && s <= SeverityFatal
}
