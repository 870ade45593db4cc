package geom

import (
	"fmt"
	"math"
)

// Cell is an integer voxel coordinate. All planning happens on floored cells.
type Cell struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	Z int `json:"z" yaml:"z"`
}

func (c Cell) Add(o Cell) Cell { return Cell{X: c.X + o.X, Y: c.Y + o.Y, Z: c.Z + o.Z} }
func (c Cell) Sub(o Cell) Cell { return Cell{X: c.X - o.X, Y: c.Y - o.Y, Z: c.Z - o.Z} }

func (c Cell) Offset(dx, dy, dz int) Cell { return Cell{X: c.X + dx, Y: c.Y + dy, Z: c.Z + dz} }

func (c Cell) Below() Cell { return c.Offset(0, -1, 0) }
func (c Cell) Above() Cell { return c.Offset(0, 1, 0) }

func (c Cell) ToArray() [3]int { return [3]int{c.X, c.Y, c.Z} }

func (c Cell) String() string { return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z) }

// FromArray is the inverse of ToArray.
func FromArray(a [3]int) Cell { return Cell{X: a[0], Y: a[1], Z: a[2]} }

// Floor maps a continuous position onto the cell containing it.
func Floor(x, y, z float64) Cell {
	return Cell{X: int(math.Floor(x)), Y: int(math.Floor(y)), Z: int(math.Floor(z))}
}

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func Manhattan(a, b Cell) int {
	return AbsInt(a.X-b.X) + AbsInt(a.Y-b.Y) + AbsInt(a.Z-b.Z)
}

// Chebyshev is the cube-radius distance used for container searches.
func Chebyshev(a, b Cell) int {
	d := AbsInt(a.X - b.X)
	if dy := AbsInt(a.Y - b.Y); dy > d {
		d = dy
	}
	if dz := AbsInt(a.Z - b.Z); dz > d {
		d = dz
	}
	return d
}

// Distance is the euclidean distance between cell centers.
func Distance(a, b Cell) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	dz := float64(a.Z - b.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// LateralOffsets returns a contiguous range of width integers centered on 0.
// Odd widths are symmetric; even widths carry the extra column on the positive side.
func LateralOffsets(width int) []int {
	if width <= 0 {
		return nil
	}
	lo := -(width - 1) / 2
	if width%2 == 0 {
		lo = -(width/2 - 1)
	}
	out := make([]int, 0, width)
	for off := lo; off < lo+width; off++ {
		out = append(out, off)
	}
	return out
}

// Neighbors5 lists the non-upward neighbors in the fixed order used to find a
// placement reference: below, then +X, -X, +Z, -Z.
func Neighbors5(c Cell) [5]Cell {
	return [5]Cell{
		c.Offset(0, -1, 0),
		c.Offset(1, 0, 0),
		c.Offset(-1, 0, 0),
		c.Offset(0, 0, 1),
		c.Offset(0, 0, -1),
	}
}
