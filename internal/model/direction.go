package model

import (
	"fmt"
	"strings"
)

// Direction selects which asset is sold in a swap.
type Direction string

const (
	ZeroForOne Direction = "0to1"
	OneForZero Direction = "1to0"
)

// ParseDirection accepts "0to1"/"1to0" in any case.
func ParseDirection(input string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(input))) {
	case ZeroForOne:
		return ZeroForOne, nil
	case OneForZero:
		return OneForZero, nil
	default:
		return "", fmt.Errorf("invalid direction %q (want 0to1 or 1to0)", input)
	}
}

func (d Direction) Valid() bool {
	return d == ZeroForOne || d == OneForZero
}

// Flip returns the opposite direction.
func (d Direction) Flip() Direction {
	if d == OneForZero {
		return ZeroForOne
	}
	return OneForZero
}

// Input returns the side debited by the swap.
func (d Direction) Input() Side {
	if d == OneForZero {
		return Side1
	}
	return Side0
}

// Output returns the side credited by the swap.
func (d Direction) Output() Side {
	return d.Input().Other()
}

// Side identifies asset0 or asset1 of the pool.
type Side int

const (
	Side0 Side = 0
	Side1 Side = 1
)

// ParseSide accepts "0"/"1".
func ParseSide(input string) (Side, error) {
	switch strings.TrimSpace(input) {
	case "0":
		return Side0, nil
	case "1":
		return Side1, nil
	default:
		return 0, fmt.Errorf("invalid side %q (want 0 or 1)", input)
	}
}

func (s Side) Other() Side {
	if s == Side1 {
		return Side0
	}
	return Side1
}

func (s Side) Valid() bool {
	return s == Side0 || s == Side1
}
