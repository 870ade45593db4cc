package gridworld

import (
	"context"
	"fmt"

	"voxelminer.ai/internal/bot"
	"voxelminer.ai/internal/geom"
)

type chestState struct {
	capacity int
	items    map[string]int
}

func newChest(slots int) *chestState {
	return &chestState{capacity: slots * 64, items: map[string]int{}}
}

func (c *chestState) total() int {
	n := 0
	for _, v := range c.items {
		n += v
	}
	return n
}

// OpenContainer implements bot.World.
func (w *World) OpenContainer(ctx context.Context, c geom.Cell) (bot.Container, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ops = append(w.ops, Op{Kind: OpOpen, Pos: c})
	if !w.inReachLocked(c) {
		return nil, fmt.Errorf("open %v: %w", c, bot.ErrOutOfRange)
	}
	b, ok := w.blockAtLocked(c)
	if !ok || !w.cats.IsContainer(b.Name) {
		return nil, fmt.Errorf("open %v: %w", c, ErrNotContainer)
	}
	if w.faults.lockedChest(c) {
		return nil, fmt.Errorf("open %v: container is locked", c)
	}
	st, ok := w.chests[c]
	if !ok {
		st = newChest(w.opts.ChestSlots)
		w.chests[c] = st
	}
	return &containerHandle{w: w, pos: c, st: st}, nil
}

type containerHandle struct {
	w      *World
	pos    geom.Cell
	st     *chestState
	closed bool
}

func (h *containerHandle) Deposit(ctx context.Context, item string, count int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w := h.w
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ops = append(w.ops, Op{Kind: OpDeposit, Pos: h.pos, Item: item, Count: count})
	if h.closed {
		return ErrClosed
	}
	if count <= 0 {
		return nil
	}
	if h.st.total()+count > h.st.capacity {
		return fmt.Errorf("deposit %d %s: %w", count, item, ErrContainerFull)
	}
	if !w.takeLocked(item, count) {
		return fmt.Errorf("deposit %d %s: %w", count, item, ErrMissingItem)
	}
	h.st.items[item] += count
	return nil
}

func (h *containerHandle) Close() error {
	h.w.mu.Lock()
	defer h.w.mu.Unlock()
	h.closed = true
	return nil
}

// ChestContents returns a copy of what the container at c holds.
func (w *World) ChestContents(c geom.Cell) map[string]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := map[string]int{}
	if st, ok := w.chests[c]; ok {
		for k, v := range st.items {
			out[k] = v
		}
	}
	return out
}

// CollectOnce implements bot.ItemCollector: every drop within opts.Radius of the
// agent goes into the inventory. It returns the number of stacks picked up.
func (w *World) CollectOnce(ctx context.Context, opts bot.CollectOptions) int {
	if ctx.Err() != nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ops = append(w.ops, Op{Kind: OpCollect, Pos: w.feet, Count: opts.Radius})
	n := 0
	kept := w.drops[:0]
	for _, d := range w.drops {
		if geom.Chebyshev(w.feet, d.Pos) <= opts.Radius {
			w.addLocked(d.Item, d.Count)
			n++
			continue
		}
		kept = append(kept, d)
	}
	w.drops = kept
	return n
}

func (w *World) StartAuto(opts bot.CollectOptions) {
	w.mu.Lock()
	w.autoOn, w.autoOpts = true, opts
	w.mu.Unlock()
}

func (w *World) StopAuto() {
	w.mu.Lock()
	w.autoOn = false
	w.mu.Unlock()
}

func (w *World) AutoRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.autoOn
}

// Drops is the number of item stacks lying on the ground.
func (w *World) Drops() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.drops)
}
