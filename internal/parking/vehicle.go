package parking

import (
	"fmt"
	"strconv"
	"strings"
)

// SizeClass is the number of contiguous spots a vehicle occupies.
type SizeClass int

const (
	Compact   SizeClass = 1
	Large     SizeClass = 2
	Oversized SizeClass = 3
)

func (s SizeClass) Valid() bool {
	return s >= Compact && s <= Oversized
}

// Spots returns the footprint of the size class.
func (s SizeClass) Spots() int {
	return int(s)
}

func (s SizeClass) String() string {
	switch s {
	case Compact:
		return "compact"
	case Large:
		return "large"
	case Oversized:
		return "oversized"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

func (s SizeClass) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: unknown size class %d", ErrInvalidConstruction, int(s))
	}
	return []byte(s.String()), nil
}

func (s *SizeClass) UnmarshalText(text []byte) error {
	parsed, err := ParseSizeClass(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSizeClass accepts a size class name or its spot count.
func ParseSizeClass(raw string) (SizeClass, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "compact", "1":
		return Compact, nil
	case "large", "2":
		return Large, nil
	case "oversized", "3":
		return Oversized, nil
	}
	return 0, fmt.Errorf("%w: unknown size class %q", ErrInvalidConstruction, raw)
}

// Vehicle is immutable once built.
type Vehicle struct {
	id   string
	size SizeClass
}

func NewVehicle(id string, size SizeClass) (*Vehicle, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: vehicle id is required", ErrInvalidConstruction)
	}
	if !size.Valid() {
		return nil, fmt.Errorf("%w: unknown size class %d", ErrInvalidConstruction, int(size))
	}

	return &Vehicle{
		id:   id,
		size: size,
	}, nil
}

func (v Vehicle) ID() string {
	return v.id
}

func (v Vehicle) Size() SizeClass {
	return v.size
}
