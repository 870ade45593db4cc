// Package gridworld is an in-memory voxel world with one agent in it. It implements
// every capability the miner consumes (world access, navigation, tools, item pickup)
// with fault injection and an operation log, so the engine can run headless in
// tests and in minerd's simulation mode.
package gridworld

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"voxelminer.ai/internal/bot"
	"voxelminer.ai/internal/catalogs"
	"voxelminer.ai/internal/geom"
)

var (
	ErrUnloaded      = errors.New("cell not loaded")
	ErrUnbreakable   = errors.New("block is unbreakable")
	ErrLiquid        = errors.New("cannot dig a liquid")
	ErrOccupied      = errors.New("target cell is occupied")
	ErrBadReference  = errors.New("reference block is not solid")
	ErrMissingItem   = errors.New("item not in inventory")
	ErrNotHeld       = errors.New("item not in hand")
	ErrNotContainer  = errors.New("block is not a container")
	ErrContainerFull = errors.New("container is full")
	ErrClosed        = errors.New("container handle closed")
)

type Options struct {
	Gen   Gen       `yaml:"gen"`
	Spawn geom.Cell `yaml:"spawn"`
	// Reach is the farthest the agent can dig, place or open from.
	Reach float64 `yaml:"reach"`
	// DropEntities leaves mined drops on the ground for the collector instead of
	// adding them to the inventory.
	DropEntities bool `yaml:"drop_entities"`
	// ChestSlots bounds each chest at ChestSlots*64 items.
	ChestSlots int `yaml:"chest_slots"`
	// Kit is handed to the agent at creation.
	Kit map[string]int `yaml:"kit"`
}

func DefaultOptions() Options {
	return Options{
		Gen:        DefaultGen(),
		Spawn:      geom.Cell{X: 0, Y: 65, Z: 0},
		Reach:      4.5,
		ChestSlots: 27,
	}
}

type droppedItem struct {
	Pos   geom.Cell
	Item  string
	Count int
}

// World is safe for concurrent use.
type World struct {
	mu    sync.Mutex
	cats  *catalogs.Catalogs
	pal   Palette
	store *Store
	opts  Options

	feet geom.Cell
	inv  []bot.ItemStack
	held string

	drops    []droppedItem
	chests   map[geom.Cell]*chestState
	autoOn   bool
	autoOpts bot.CollectOptions

	digBias []func(geom.Cell) bool
	stops   int

	faults faults
	ops    []Op
	onDig  func(geom.Cell)
}

func New(cats *catalogs.Catalogs, opts Options) (*World, error) {
	if cats == nil {
		cats = catalogs.Default()
	}
	pal, err := PaletteFrom(cats)
	if err != nil {
		return nil, err
	}
	if opts.Reach <= 0 {
		opts.Reach = 4.5
	}
	if opts.ChestSlots <= 0 {
		opts.ChestSlots = 27
	}
	w := &World{
		cats:   cats,
		pal:    pal,
		store:  NewStore(opts.Gen, pal),
		opts:   opts,
		feet:   opts.Spawn,
		chests: map[geom.Cell]*chestState{},
		faults: newFaults(),
	}
	items := make([]string, 0, len(opts.Kit))
	for item := range opts.Kit {
		items = append(items, item)
	}
	sort.Strings(items)
	for _, item := range items {
		if n := opts.Kit[item]; n > 0 {
			w.addLocked(item, n)
		}
	}
	return w, nil
}

func (w *World) Catalogs() *catalogs.Catalogs { return w.cats }

// BlockAt implements bot.World.
func (w *World) BlockAt(c geom.Cell) (bot.BlockState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.blockAtLocked(c)
}

func (w *World) blockAtLocked(c geom.Cell) (bot.BlockState, bool) {
	id, ok := w.store.Get(c)
	if !ok || int(id) >= len(w.cats.Blocks.Palette) {
		return bot.BlockState{}, false
	}
	return bot.BlockState{Name: w.cats.Blocks.Palette[id]}, true
}

// SetBlock writes a block by name, bypassing agent rules. Used to stage scenarios.
func (w *World) SetBlock(c geom.Cell, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.setLocked(c, name)
}

func (w *World) setLocked(c geom.Cell, name string) error {
	id, ok := w.cats.Blocks.Index[name]
	if !ok {
		return fmt.Errorf("gridworld: unknown block %q", name)
	}
	if !w.store.Set(c, id) {
		return fmt.Errorf("%w: %v", ErrUnloaded, c)
	}
	if w.cats.IsContainer(name) {
		if _, ok := w.chests[c]; !ok {
			w.chests[c] = newChest(w.opts.ChestSlots)
		}
	} else {
		delete(w.chests, c)
	}
	return nil
}

// Fill sets every cell in the inclusive box to name.
func (w *World) Fill(a, b geom.Cell, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for y := min(a.Y, b.Y); y <= max(a.Y, b.Y); y++ {
		for x := min(a.X, b.X); x <= max(a.X, b.X); x++ {
			for z := min(a.Z, b.Z); z <= max(a.Z, b.Z); z++ {
				if err := w.setLocked(geom.Cell{X: x, Y: y, Z: z}, name); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (w *World) Feet() geom.Cell {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.feet
}

// Teleport moves the agent without navigation.
func (w *World) Teleport(c geom.Cell) {
	w.mu.Lock()
	w.feet = c
	w.mu.Unlock()
}

func (w *World) Inventory() []bot.ItemStack {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]bot.ItemStack(nil), w.inv...)
}

// Give adds items to the agent's inventory.
func (w *World) Give(item string, count int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.addLocked(item, count)
}

func (w *World) addLocked(item string, count int) {
	if item == "" || count <= 0 {
		return
	}
	for i := range w.inv {
		if w.inv[i].Name == item {
			w.inv[i].Count += count
			return
		}
	}
	w.inv = append(w.inv, bot.ItemStack{Name: item, Count: count})
}

func (w *World) countLocked(item string) int {
	for _, s := range w.inv {
		if s.Name == item {
			return s.Count
		}
	}
	return 0
}

func (w *World) takeLocked(item string, count int) bool {
	for i := range w.inv {
		if w.inv[i].Name != item {
			continue
		}
		if w.inv[i].Count < count {
			return false
		}
		w.inv[i].Count -= count
		if w.inv[i].Count == 0 {
			w.inv = append(w.inv[:i], w.inv[i+1:]...)
			if w.held == item {
				w.held = ""
			}
		}
		return true
	}
	return false
}

func (w *World) inReachLocked(c geom.Cell) bool {
	return geom.Distance(w.feet, c) <= w.opts.Reach
}

// Dig implements bot.World.
func (w *World) Dig(ctx context.Context, c geom.Cell) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	hook := w.onDig
	err := w.digLocked(c)
	w.mu.Unlock()
	if hook != nil {
		hook(c)
	}
	return err
}

func (w *World) digLocked(c geom.Cell) error {
	w.ops = append(w.ops, Op{Kind: OpDig, Pos: c})
	if !w.inReachLocked(c) {
		return fmt.Errorf("dig %v: %w", c, bot.ErrOutOfRange)
	}
	b, ok := w.blockAtLocked(c)
	if !ok {
		return fmt.Errorf("dig %v: %w", c, ErrUnloaded)
	}
	switch {
	case w.cats.IsAir(b.Name):
		return nil
	case w.cats.IsLiquid(b.Name):
		return fmt.Errorf("dig %v: %w", c, ErrLiquid)
	case !w.cats.IsBreakable(b.Name):
		return fmt.Errorf("dig %v (%s): %w", c, b.Name, ErrUnbreakable)
	}
	if w.faults.takeNoEffect(c) {
		return nil
	}
	w.store.Set(c, w.pal.Air)
	delete(w.chests, c)

	drop := w.cats.DropFor(b.Name)
	if drop == "" || !w.dropsWithHeldLocked(b.Name) {
		return nil
	}
	if w.opts.DropEntities && !w.autoOn {
		w.drops = append(w.drops, droppedItem{Pos: c, Item: drop, Count: 1})
	} else {
		w.addLocked(drop, 1)
	}
	return nil
}

// PlaceBlock implements bot.World.
func (w *World) PlaceBlock(ctx context.Context, ref, face geom.Cell, material string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	target := ref.Add(face)
	w.ops = append(w.ops, Op{Kind: OpPlace, Pos: target, Item: material})

	if geom.AbsInt(face.X)+geom.AbsInt(face.Y)+geom.AbsInt(face.Z) != 1 {
		return fmt.Errorf("place: face %v is not a unit offset", face)
	}
	if !w.inReachLocked(target) {
		return fmt.Errorf("place %v: %w", target, bot.ErrOutOfRange)
	}
	if rb, ok := w.blockAtLocked(ref); !ok || !w.cats.IsSolid(rb.Name) {
		return fmt.Errorf("place %v: %w", target, ErrBadReference)
	}
	if tb, ok := w.blockAtLocked(target); !ok {
		return fmt.Errorf("place %v: %w", target, ErrUnloaded)
	} else if w.cats.IsSolid(tb.Name) {
		return fmt.Errorf("place %v (%s): %w", target, tb.Name, ErrOccupied)
	}
	if w.held != material {
		return fmt.Errorf("place %s: %w", material, ErrNotHeld)
	}
	block := w.cats.PlaceAs(material)
	if block == "" {
		return fmt.Errorf("place: %s is not placeable", material)
	}
	if !w.takeLocked(material, 1) {
		return fmt.Errorf("place %s: %w", material, ErrMissingItem)
	}
	return w.setLocked(target, block)
}

// Equip implements bot.World. Only the hand slot is modelled.
func (w *World) Equip(ctx context.Context, item, slot string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ops = append(w.ops, Op{Kind: OpEquip, Item: item})
	if slot != "" && slot != "hand" {
		return fmt.Errorf("equip: unsupported slot %q", slot)
	}
	if w.countLocked(item) <= 0 {
		return fmt.Errorf("equip %s: %w", item, ErrMissingItem)
	}
	w.held = item
	return nil
}

func (w *World) Held() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.held
}

// Goto implements bot.Navigator by moving the agent straight to a cell within
// opts.Range of target. Targets marked unreachable fail with bot.ErrNavigation.
func (w *World) Goto(ctx context.Context, target geom.Cell, opts bot.GotoOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ops = append(w.ops, Op{Kind: OpGoto, Pos: target, Item: opts.Tag})
	if w.faults.unreachable(target) {
		return fmt.Errorf("goto %v: %w", target, bot.ErrNavigation)
	}
	d := geom.Distance(w.feet, target)
	if d <= opts.Range {
		return nil
	}
	if opts.Range < 1 {
		w.feet = target
		return nil
	}
	f := math.Floor(opts.Range) / d
	next := geom.Cell{
		X: target.X + int(math.Round(float64(w.feet.X-target.X)*f)),
		Y: target.Y + int(math.Round(float64(w.feet.Y-target.Y)*f)),
		Z: target.Z + int(math.Round(float64(w.feet.Z-target.Z)*f)),
	}
	if geom.Distance(next, target) > opts.Range {
		next = target
	}
	w.feet = next
	return nil
}

func (w *World) Stop() {
	w.mu.Lock()
	w.stops++
	w.mu.Unlock()
}

func (w *World) PushDigBias(allow func(geom.Cell) bool) {
	w.mu.Lock()
	w.digBias = append(w.digBias, allow)
	w.mu.Unlock()
}

func (w *World) PopDigBias() {
	w.mu.Lock()
	if n := len(w.digBias); n > 0 {
		w.digBias = w.digBias[:n-1]
	}
	w.mu.Unlock()
}

// DigBiasDepth is the number of dig biases currently installed.
func (w *World) DigBiasDepth() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.digBias)
}

// DigCheap reports whether the innermost dig bias allows c. Without a bias every
// cell is allowed.
func (w *World) DigCheap(c geom.Cell) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n := len(w.digBias); n > 0 {
		return w.digBias[n-1](c)
	}
	return true
}

func (w *World) Stops() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stops
}

// Digest hashes the terrain state.
func (w *World) Digest() [32]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.store.Digest()
}
