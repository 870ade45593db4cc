package gridworld

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"voxelminer.ai/internal/geom"
)

const chunkSize = 16

type ChunkKey struct {
	CX, CY, CZ int
}

// Chunk is a 16³ cube of palette ids.
type Chunk struct {
	Key    ChunkKey
	Blocks []uint16

	dirty bool
	hash  [32]byte
}

func (c *Chunk) index(x, y, z int) int {
	// x fastest, then z, then y
	return x + z*chunkSize + y*chunkSize*chunkSize
}

func (c *Chunk) Get(x, y, z int) uint16 { return c.Blocks[c.index(x, y, z)] }

func (c *Chunk) Set(x, y, z int, b uint16) {
	i := c.index(x, y, z)
	if c.Blocks[i] == b {
		return
	}
	c.Blocks[i] = b
	c.dirty = true
}

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [2]byte
		for _, v := range c.Blocks {
			binary.LittleEndian.PutUint16(tmp[:], v)
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

// Store holds generated chunks. It is not safe for concurrent use; World guards it.
type Store struct {
	gen    Gen
	pal    Palette
	chunks map[ChunkKey]*Chunk
}

func NewStore(gen Gen, pal Palette) *Store {
	return &Store{gen: gen, pal: pal, chunks: map[ChunkKey]*Chunk{}}
}

// Loaded reports whether pos lies inside the generated bounds.
func (s *Store) Loaded(pos geom.Cell) bool {
	if pos.Y < s.gen.MinY || pos.Y > s.gen.MaxY {
		return false
	}
	if r := s.gen.BoundaryR; r > 0 {
		if pos.X < -r || pos.X > r || pos.Z < -r || pos.Z > r {
			return false
		}
	}
	return true
}

func (s *Store) Get(pos geom.Cell) (uint16, bool) {
	if !s.Loaded(pos) {
		return 0, false
	}
	ch := s.chunkFor(pos)
	return ch.Get(floorMod(pos.X), floorMod(pos.Y), floorMod(pos.Z)), true
}

func (s *Store) Set(pos geom.Cell, b uint16) bool {
	if !s.Loaded(pos) {
		return false
	}
	ch := s.chunkFor(pos)
	ch.Set(floorMod(pos.X), floorMod(pos.Y), floorMod(pos.Z), b)
	return true
}

func (s *Store) chunkFor(pos geom.Cell) *Chunk {
	k := ChunkKey{CX: floorDiv(pos.X), CY: floorDiv(pos.Y), CZ: floorDiv(pos.Z)}
	if ch, ok := s.chunks[k]; ok {
		return ch
	}
	ch := &Chunk{Key: k, Blocks: make([]uint16, chunkSize*chunkSize*chunkSize)}
	s.generate(ch)
	ch.dirty = true
	_ = ch.Digest()
	s.chunks[k] = ch
	return ch
}

func (s *Store) LoadedChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		if keys[i].CY != keys[j].CY {
			return keys[i].CY < keys[j].CY
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

// Digest hashes every generated chunk in key order.
func (s *Store) Digest() [32]byte {
	h := sha256.New()
	var tmp [8]byte
	for _, k := range s.LoadedChunkKeys() {
		for _, v := range []int{k.CX, k.CY, k.CZ} {
			binary.LittleEndian.PutUint64(tmp[:], uint64(int64(v)))
			h.Write(tmp[:])
		}
		d := s.chunks[k].Digest()
		h.Write(d[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func floorDiv(a int) int {
	q := a / chunkSize
	if a%chunkSize < 0 {
		q--
	}
	return q
}

func floorMod(a int) int {
	m := a % chunkSize
	if m < 0 {
		m += chunkSize
	}
	return m
}
