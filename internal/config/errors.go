package config

import "strings"

// Error is a configuration problem. It is fatal at startup; on hot reload the
// new config is rejected and the previous one stays active.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return "config: invalid"
	}
	return "config: " + strings.Join(e.Problems, "; ")
}

func (e *Error) add(format string) {
	e.Problems = append(e.Problems, format)
}

func (e *Error) orNil() error {
	if e == nil || len(e.Problems) == 0 {
		return nil
	}
	return e
}
