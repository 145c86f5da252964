package log

import (
	"fmt"
	"strings"
)

// Level is a log level. It implements the pflag.Value interface.
type Level uint

const (
	// LevelDebug is the log level for debug messages.
	LevelDebug Level = iota
	// LevelInfo is the log level for informative messages.
	LevelInfo
	// LevelWarn is the log level for warning messages.
	LevelWarn
	// LevelError is the log level for error messages.
	LevelError
)

var levelNames = [...]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

// ParseLevel parses a case-insensitive level name.
func ParseLevel(s string) (Level, error) {
	for lvl, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(lvl), nil
		}
	}
	return 0, fmt.Errorf("log: unknown level %q", s)
}

func (l *Level) String() string {
	if int(*l) < len(levelNames) {
		return levelNames[*l]
	}
	return fmt.Sprintf("Level(%d)", uint(*l))
}

func (l *Level) Set(s string) error {
	lvl, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = lvl
	return nil
}

// Type lists the accepted level names.
func (l *Level) Type() string {
	return "[" + strings.Join(levelNames[:], ",") + "]"
}
