package parking

import (
	"fmt"
	"strings"
)

type SpotState int

const (
	Free SpotState = iota
	Occupied
)

func (s SpotState) String() string {
	if s == Occupied {
		return "occupied"
	}
	return "free"
}

func (s SpotState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SpotState) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "free":
		*s = Free
	case "occupied":
		*s = Occupied
	default:
		return fmt.Errorf("unknown spot state %q", text)
	}
	return nil
}

// Span is an inclusive range of spot indexes.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (s Span) Len() int {
	return s.End - s.Start + 1
}

func (s Span) Overlaps(other Span) bool {
	return s.Start <= other.End && other.Start <= s.End
}

func (s Span) String() string {
	return fmt.Sprintf("[%d,%d]", s.Start, s.End)
}

// Assignment is a parked vehicle and the span it holds.
type Assignment struct {
	Vehicle Vehicle
	Span    Span
}
