package expander

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidMode indicates an unrecognized generation mode.
	ErrInvalidMode = errors.New("invalid generation mode")

	// ErrInvalidTemplate indicates a template that cannot be expanded.
	ErrInvalidTemplate = errors.New("invalid template")
)

// Mode selects how combinations are drawn from a template's domain.
type Mode uint8

const (
	// ModeRandom samples distinct combinations uniformly without replacement.
	ModeRandom Mode = iota
	// ModeExhaustive enumerates combinations in odometer order.
	ModeExhaustive
)

// ParseMode parses a mode name. The empty string selects ModeRandom.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "random":
		return ModeRandom, nil
	case "exhaustive":
		return ModeExhaustive, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

func (m Mode) String() string {
	switch m {
	case ModeRandom:
		return "random"
	case ModeExhaustive:
		return "exhaustive"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// Valid reports whether m is one of the defined modes.
func (m Mode) Valid() bool {
	return m == ModeRandom || m == ModeExhaustive
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, m)
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
