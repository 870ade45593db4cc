package gridworld

import (
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"voxelminer.ai/internal/bot"
	"voxelminer.ai/internal/geom"
	"voxelminer.ai/internal/persistence/snapshot"
)

// ExportSnapshot captures terrain, chests and the agent. Fault injection, the
// operation log and dropped entities are not persisted.
func (w *World) ExportSnapshot(agentID string) snapshot.WorldV1 {
	w.mu.Lock()
	defer w.mu.Unlock()

	d := w.store.Digest()
	snap := snapshot.WorldV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			AgentID: agentID,
			SavedAt: time.Now().UTC(),
			Digest:  hex.EncodeToString(d[:]),
		},
		Seed:        w.opts.Gen.Seed,
		MinY:        w.opts.Gen.MinY,
		MaxY:        w.opts.Gen.MaxY,
		BoundaryR:   w.opts.Gen.BoundaryR,
		OrePermille: w.opts.Gen.OrePermille,
		Palette:     append([]string(nil), w.cats.Blocks.Palette...),
		Feet:        w.feet.ToArray(),
		Held:        w.held,
		Inventory:   map[string]int{},
	}
	for _, k := range w.store.LoadedChunkKeys() {
		ch := w.store.chunks[k]
		snap.Chunks = append(snap.Chunks, snapshot.ChunkV1{CX: k.CX, CY: k.CY, CZ: k.CZ, Blocks: snapshot.EncodeRLE(ch.Blocks)})
	}
	for _, s := range w.inv {
		snap.Inventory[s.Name] += s.Count
	}
	cells := make([]geom.Cell, 0, len(w.chests))
	for c := range w.chests {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool { return lessCell(cells[i], cells[j]) })
	for _, c := range cells {
		items := map[string]int{}
		for k, v := range w.chests[c].items {
			items[k] = v
		}
		snap.Chests = append(snap.Chests, snapshot.ChestV1{Pos: c.ToArray(), Items: items})
	}
	return snap
}

// ImportSnapshot replaces the world's state with snap. The generator parameters
// must match, since chunks missing from the snapshot are regenerated on demand.
func (w *World) ImportSnapshot(snap snapshot.WorldV1) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	g := w.opts.Gen
	if snap.Seed != g.Seed || snap.MinY != g.MinY || snap.MaxY != g.MaxY || snap.BoundaryR != g.BoundaryR || snap.OrePermille != g.OrePermille {
		return fmt.Errorf("snapshot generator (seed=%d y=%d..%d) does not match world (seed=%d y=%d..%d)",
			snap.Seed, snap.MinY, snap.MaxY, g.Seed, g.MinY, g.MaxY)
	}
	remap := make([]uint16, len(snap.Palette))
	for i, name := range snap.Palette {
		id, ok := w.cats.Blocks.Index[name]
		if !ok {
			return fmt.Errorf("snapshot block %q not in catalog", name)
		}
		remap[i] = id
	}

	store := NewStore(g, w.pal)
	for _, cv := range snap.Chunks {
		ids, err := snapshot.DecodeRLE(cv.Blocks, chunkSize*chunkSize*chunkSize)
		if err != nil {
			return fmt.Errorf("chunk %d,%d,%d: %w", cv.CX, cv.CY, cv.CZ, err)
		}
		for i, id := range ids {
			if int(id) >= len(remap) {
				return fmt.Errorf("chunk %d,%d,%d: id %d outside palette", cv.CX, cv.CY, cv.CZ, id)
			}
			ids[i] = remap[id]
		}
		k := ChunkKey{CX: cv.CX, CY: cv.CY, CZ: cv.CZ}
		store.chunks[k] = &Chunk{Key: k, Blocks: ids, dirty: true}
	}

	chests := map[geom.Cell]*chestState{}
	for _, cv := range snap.Chests {
		ch := newChest(w.opts.ChestSlots)
		for k, v := range cv.Items {
			ch.items[k] = v
		}
		chests[geom.FromArray(cv.Pos)] = ch
	}
	names := make([]string, 0, len(snap.Inventory))
	for name := range snap.Inventory {
		names = append(names, name)
	}
	sort.Strings(names)
	inv := make([]bot.ItemStack, 0, len(names))
	for _, name := range names {
		if n := snap.Inventory[name]; n > 0 {
			inv = append(inv, bot.ItemStack{Name: name, Count: n})
		}
	}

	w.store = store
	w.chests = chests
	w.inv = inv
	w.held = snap.Held
	w.feet = geom.FromArray(snap.Feet)
	w.drops = nil
	return nil
}

func lessCell(a, b geom.Cell) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}
