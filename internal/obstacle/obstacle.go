package obstacle

import (
	"voxelminer.ai/internal/bot"
	"voxelminer.ai/internal/geom"
)

type Kind int

const (
	None Kind = iota
	Hole
	Water
	Lava
)

func (k Kind) String() string {
	switch k {
	case Hole:
		return "hole"
	case Water:
		return "water"
	case Lava:
		return "lava"
	default:
		return "none"
	}
}

// IsLiquid reports whether the hazard is water or lava.
func (k Kind) IsLiquid() bool { return k == Water || k == Lava }

// Classification is derived on demand and never stored.
type Classification struct {
	Kind Kind
	Pos  geom.Cell
}

type BlockSource interface {
	BlockAt(c geom.Cell) (bot.BlockState, bool)
}

type Materials interface {
	IsAir(name string) bool
	IsWater(name string) bool
	IsLava(name string) bool
}

// Classify inspects probe and the cell under it. Lava wins over water, water over a
// hole in the floor. Unloaded cells never produce a hazard.
func Classify(src BlockSource, mat Materials, probe geom.Cell) Classification {
	floor := probe.Below()
	pb, pok := src.BlockAt(probe)
	fb, fok := src.BlockAt(floor)

	switch {
	case pok && mat.IsLava(pb.Name):
		return Classification{Kind: Lava, Pos: probe}
	case fok && mat.IsLava(fb.Name):
		return Classification{Kind: Lava, Pos: floor}
	case pok && mat.IsWater(pb.Name):
		return Classification{Kind: Water, Pos: probe}
	case fok && mat.IsWater(fb.Name):
		return Classification{Kind: Water, Pos: floor}
	case fok && mat.IsAir(fb.Name):
		return Classification{Kind: Hole, Pos: floor}
	}
	return Classification{Kind: None, Pos: probe}
}

// CellHazard classifies a single cell on its own: liquid at the cell, or a hole
// when the cell itself is open. Used for floor probes where the cell is the floor.
func CellHazard(src BlockSource, mat Materials, c geom.Cell) Kind {
	b, ok := src.BlockAt(c)
	if !ok {
		return None
	}
	switch {
	case mat.IsLava(b.Name):
		return Lava
	case mat.IsWater(b.Name):
		return Water
	case mat.IsAir(b.Name):
		return Hole
	}
	return None
}
