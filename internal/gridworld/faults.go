package gridworld

import "voxelminer.ai/internal/geom"

// faults are scripted misbehaviours used to exercise the engine's recovery paths.
type faults struct {
	noEffect map[geom.Cell]int // remaining digs that leave the block in place; <0 forever
	blocked  map[geom.Cell]bool
	locked   map[geom.Cell]bool
}

func newFaults() faults {
	return faults{
		noEffect: map[geom.Cell]int{},
		blocked:  map[geom.Cell]bool{},
		locked:   map[geom.Cell]bool{},
	}
}

func (f *faults) takeNoEffect(c geom.Cell) bool {
	n, ok := f.noEffect[c]
	switch {
	case !ok:
		return false
	case n < 0:
		return true
	case n == 1:
		delete(f.noEffect, c)
	default:
		f.noEffect[c] = n - 1
	}
	return true
}

func (f *faults) unreachable(c geom.Cell) bool { return f.blocked[c] }
func (f *faults) lockedChest(c geom.Cell) bool { return f.locked[c] }

// FailDigs makes the next n digs of c report success while leaving the block.
// n < 0 makes the cell permanently stubborn.
func (w *World) FailDigs(c geom.Cell, n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n == 0 {
		delete(w.faults.noEffect, c)
		return
	}
	w.faults.noEffect[c] = n
}

// SetUnreachable makes Goto to c fail.
func (w *World) SetUnreachable(c geom.Cell, on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if on {
		w.faults.blocked[c] = true
	} else {
		delete(w.faults.blocked, c)
	}
}

// LockContainer makes OpenContainer at c fail.
func (w *World) LockContainer(c geom.Cell, on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if on {
		w.faults.locked[c] = true
	} else {
		delete(w.faults.locked, c)
	}
}

// OnDig installs a hook run after every dig attempt, outside the world lock.
func (w *World) OnDig(fn func(geom.Cell)) {
	w.mu.Lock()
	w.onDig = fn
	w.mu.Unlock()
}
