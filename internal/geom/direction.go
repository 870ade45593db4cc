package geom

import (
	"fmt"
	"math"
	"strings"
)

// Direction is one of the four cardinal axes in the XZ plane.
type Direction int

const (
	DirNone Direction = iota
	North
	South
	East
	West
)

var directionNames = map[Direction]string{
	North: "north",
	South: "south",
	East:  "east",
	West:  "west",
}

// DirectionNames lists the canonical spellings in a fixed order.
func DirectionNames() []string { return []string{"north", "south", "east", "west"} }

func (d Direction) String() string {
	if s, ok := directionNames[d]; ok {
		return s
	}
	return "none"
}

// Unit returns the (dx, dz) step of the direction. North is -Z, east is +X.
func (d Direction) Unit() (dx, dz int) {
	switch d {
	case North:
		return 0, -1
	case South:
		return 0, 1
	case East:
		return 1, 0
	case West:
		return -1, 0
	default:
		return 0, 0
	}
}

// Step returns the unit cell offset of the direction.
func (d Direction) Step() Cell {
	dx, dz := d.Unit()
	return Cell{X: dx, Z: dz}
}

// Lateral returns the perpendicular axis used for widths and strip branches:
// the direction rotated a quarter turn clockwise seen from above.
func (d Direction) Lateral() Direction {
	switch d {
	case North:
		return East
	case East:
		return South
	case South:
		return West
	case West:
		return North
	default:
		return DirNone
	}
}

func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	case West:
		return East
	default:
		return DirNone
	}
}

func (d Direction) Valid() bool { return d >= North && d <= West }

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "north", "n", "-z":
		return North, nil
	case "south", "s", "+z", "z":
		return South, nil
	case "east", "e", "+x", "x":
		return East, nil
	case "west", "w", "-x":
		return West, nil
	}
	return DirNone, fmt.Errorf("unknown direction %q", s)
}

// FromYaw maps a client yaw in degrees (0 = +Z, 90 = -X) to the nearest axis.
func FromYaw(yaw float64) Direction {
	y := math.Mod(yaw, 360)
	if y < 0 {
		y += 360
	}
	switch {
	case y >= 45 && y < 135:
		return West
	case y >= 135 && y < 225:
		return North
	case y >= 225 && y < 315:
		return East
	default:
		return South
	}
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
