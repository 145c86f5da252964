package log

import (
	"fmt"
	"strings"
)

// Format selects how log lines are encoded. It implements the pflag.Value
// interface.
type Format uint

const (
	// FmtLogfmt writes key=value lines.
	FmtLogfmt Format = iota
	// FmtJSON writes one JSON object per line.
	FmtJSON
)

var formatNames = [...]string{
	FmtLogfmt: "logfmt",
	FmtJSON:   "JSON",
}

// ParseFormat parses a case-insensitive format name.
func ParseFormat(s string) (Format, error) {
	for f, name := range formatNames {
		if strings.EqualFold(s, name) {
			return Format(f), nil
		}
	}
	return 0, fmt.Errorf("log: unknown format %q", s)
}

func (f *Format) String() string {
	if int(*f) < len(formatNames) {
		return formatNames[*f]
	}
	return fmt.Sprintf("Format(%d)", uint(*f))
}

func (f *Format) Set(s string) error {
	format, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = format
	return nil
}

// Type lists the accepted format names.
func (f *Format) Type() string {
	return "[" + strings.Join(formatNames[:], ",") + "]"
}
