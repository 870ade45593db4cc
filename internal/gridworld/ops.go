package gridworld

import "voxelminer.ai/internal/geom"

type OpKind string

const (
	OpDig     OpKind = "dig"
	OpPlace   OpKind = "place"
	OpEquip   OpKind = "equip"
	OpGoto    OpKind = "goto"
	OpOpen    OpKind = "open"
	OpDeposit OpKind = "deposit"
	OpCollect OpKind = "collect"
)

// Op is one recorded call into the world, successful or not.
type Op struct {
	Kind  OpKind
	Pos   geom.Cell
	Item  string
	Count int
}

func (w *World) Ops() []Op {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Op(nil), w.ops...)
}

// CountOps counts recorded ops of kind at pos.
func (w *World) CountOps(kind OpKind, pos geom.Cell) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, op := range w.ops {
		if op.Kind == kind && op.Pos == pos {
			n++
		}
	}
	return n
}

func (w *World) ResetOps() {
	w.mu.Lock()
	w.ops = nil
	w.mu.Unlock()
}
