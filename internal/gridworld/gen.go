package gridworld

import (
	"fmt"

	"voxelminer.ai/internal/catalogs"
)

// Gen shapes the generated terrain: flat strata with ore sprinkled by a seeded hash.
type Gen struct {
	Seed int64 `yaml:"seed"`
	// Loaded vertical span, inclusive.
	MinY int `yaml:"min_y"`
	MaxY int `yaml:"max_y"`
	// Horizontal bound in blocks; 0 leaves the world unbounded.
	BoundaryR int `yaml:"boundary_r"`

	SurfaceY    int `yaml:"surface_y"`
	DirtDepth   int `yaml:"dirt_depth"`
	DeepslateY  int `yaml:"deepslate_y"`
	BedrockY    int `yaml:"bedrock_y"`
	OrePermille int `yaml:"ore_permille"`
}

func DefaultGen() Gen {
	return Gen{
		Seed:        1,
		MinY:        -64,
		MaxY:        128,
		SurfaceY:    64,
		DirtDepth:   3,
		DeepslateY:  0,
		BedrockY:    -64,
		OrePermille: 12,
	}
}

// Palette caches the catalog ids the generator and simulation write.
type Palette struct {
	Air, Stone, Dirt, Grass, Deepslate, Bedrock uint16
	Water, Lava, Chest                          uint16
	CoalOre, IronOre, DiamondOre                uint16
}

func PaletteFrom(c *catalogs.Catalogs) (Palette, error) {
	var p Palette
	for name, dst := range map[string]*uint16{
		"air": &p.Air, "stone": &p.Stone, "dirt": &p.Dirt, "grass_block": &p.Grass,
		"deepslate": &p.Deepslate, "bedrock": &p.Bedrock, "water": &p.Water, "lava": &p.Lava,
		"chest": &p.Chest, "coal_ore": &p.CoalOre, "iron_ore": &p.IronOre, "diamond_ore": &p.DiamondOre,
	} {
		id, ok := c.Blocks.Index[name]
		if !ok {
			return p, fmt.Errorf("gridworld: block catalog lacks %q", name)
		}
		*dst = id
	}
	return p, nil
}

func (s *Store) generate(ch *Chunk) {
	g := s.gen
	for y := 0; y < chunkSize; y++ {
		for z := 0; z < chunkSize; z++ {
			for x := 0; x < chunkSize; x++ {
				wx := ch.Key.CX*chunkSize + x
				wy := ch.Key.CY*chunkSize + y
				wz := ch.Key.CZ*chunkSize + z

				b := s.pal.Air
				switch {
				case wy <= g.BedrockY:
					b = s.pal.Bedrock
				case wy > g.SurfaceY:
					b = s.pal.Air
				case wy == g.SurfaceY:
					b = s.pal.Grass
				case wy > g.SurfaceY-1-g.DirtDepth:
					b = s.pal.Dirt
				default:
					b = s.pal.Stone
					if wy < g.DeepslateY {
						b = s.pal.Deepslate
					}
					if g.OrePermille > 0 {
						roll := hash3(g.Seed, wx, wy, wz) % 1000
						switch {
						case roll >= uint64(g.OrePermille):
						case wy < g.DeepslateY && roll < uint64(g.OrePermille)/6:
							b = s.pal.DiamondOre
						case roll < uint64(g.OrePermille)/2:
							b = s.pal.IronOre
						default:
							b = s.pal.CoalOre
						}
					}
				}
				ch.Blocks[ch.index(x, y, z)] = b
			}
		}
	}
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func hash3(seed int64, x, y, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xc2b2ae3d27d4eb4f) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}
