// Package plan turns excavation parameters into ordered cell-level actions.
//
// Generators are pure. The order of the returned slice carries meaning: tunnel plans
// are slice-contiguous in forward-step order and must not be reordered, while quarry
// and strip plans are regrouped by layer before they are drained.
package plan

import (
	"sort"

	"voxelminer.ai/internal/geom"
)

type Kind string

const (
	KindDig Kind = "DIG"
)

type Zone string

const (
	ZoneMainTunnel Zone = "main_tunnel"
	ZoneBranch     Zone = "branch"
	ZoneTunnel     Zone = "tunnel"
	ZoneQuarry     Zone = "quarry"
	ZoneCleanup    Zone = "cleanup"
)

// NoLayer marks an action without an explicit layer.
const NoLayer = -1

// Action is one planned cell operation. Actions are values and never mutated after
// generation.
type Action struct {
	Pos   geom.Cell
	Kind  Kind
	Zone  Zone
	Layer int
}

func (a Action) HasLayer() bool { return a.Layer >= 0 }

func dig(pos geom.Cell, zone Zone) Action {
	return Action{Pos: pos, Kind: KindDig, Zone: zone, Layer: NoLayer}
}

// Tunnel emits length*height*width actions: forward step, then height, then lateral
// offset.
func Tunnel(start geom.Cell, dir geom.Direction, length, width, height int) []Action {
	if !dir.Valid() || length <= 0 || width <= 0 || height <= 0 {
		return nil
	}
	fwd := dir.Step()
	lat := dir.Lateral().Step()
	offsets := geom.LateralOffsets(width)

	out := make([]Action, 0, length*width*height)
	for step := 0; step < length; step++ {
		for h := 0; h < height; h++ {
			for _, off := range offsets {
				pos := geom.Cell{
					X: start.X + fwd.X*step + lat.X*off,
					Y: start.Y + h,
					Z: start.Z + fwd.Z*step + lat.Z*off,
				}
				out = append(out, dig(pos, ZoneTunnel))
			}
		}
	}
	return out
}

// StripParams carries the branch geometry of a strip mine.
type StripParams struct {
	BranchSpacing int
	BranchLength  int
}

// Strip emits a two-high main tunnel followed by perpendicular branches. Branch i sits
// (i+1)*spacing steps down the main tunnel and is dropped once that distance reaches
// mainLength; even branches go to the positive lateral side, odd ones to the negative.
func Strip(start geom.Cell, dir geom.Direction, mainLength, branchCount int, p StripParams) []Action {
	if !dir.Valid() || mainLength <= 0 {
		return nil
	}
	fwd := dir.Step()
	lat := dir.Lateral().Step()

	out := make([]Action, 0, mainLength*2+branchCount*p.BranchLength*2)
	for step := 0; step < mainLength; step++ {
		base := start.Add(geom.Cell{X: fwd.X * step, Z: fwd.Z * step})
		out = append(out, dig(base, ZoneMainTunnel), dig(base.Above(), ZoneMainTunnel))
	}

	if p.BranchSpacing <= 0 || p.BranchLength <= 0 {
		return out
	}
	for i := 0; i < branchCount; i++ {
		dist := (i + 1) * p.BranchSpacing
		if dist >= mainLength {
			break
		}
		side := 1
		if i%2 == 1 {
			side = -1
		}
		root := start.Add(geom.Cell{X: fwd.X * dist, Z: fwd.Z * dist})
		for k := 1; k <= p.BranchLength; k++ {
			pos := root.Add(geom.Cell{X: lat.X * k * side, Z: lat.Z * k * side})
			out = append(out, dig(pos, ZoneBranch), dig(pos.Above(), ZoneBranch))
		}
	}
	return out
}

// Rect is a normalized XZ rectangle with inclusive bounds.
type Rect struct {
	MinX, MaxX int
	MinZ, MaxZ int
}

func NormalizeRect(a, b geom.Cell) Rect {
	r := Rect{MinX: a.X, MaxX: b.X, MinZ: a.Z, MaxZ: b.Z}
	if r.MinX > r.MaxX {
		r.MinX, r.MaxX = r.MaxX, r.MinX
	}
	if r.MinZ > r.MaxZ {
		r.MinZ, r.MaxZ = r.MaxZ, r.MinZ
	}
	return r
}

func (r Rect) Width() int { return r.MaxX - r.MinX + 1 }
func (r Rect) Depth() int { return r.MaxZ - r.MinZ + 1 }
func (r Rect) Area() int  { return r.Width() * r.Depth() }

func (r Rect) Contains(c geom.Cell) bool {
	return c.X >= r.MinX && c.X <= r.MaxX && c.Z >= r.MinZ && c.Z <= r.MaxZ
}

// Quarry emits full-rectangle layers top-down, starting at the higher corner's Y.
func Quarry(corner1, corner2 geom.Cell, depthLayers int) []Action {
	if depthLayers <= 0 {
		return nil
	}
	return QuarryRect(NormalizeRect(corner1, corner2), max(corner1.Y, corner2.Y), depthLayers)
}

// QuarryRect is Quarry over an already normalized rectangle.
func QuarryRect(r Rect, startY, depthLayers int) []Action {
	if depthLayers <= 0 || r.Area() <= 0 {
		return nil
	}
	out := make([]Action, 0, r.Area()*depthLayers)
	for layer := 0; layer < depthLayers; layer++ {
		y := startY - layer
		for x := r.MinX; x <= r.MaxX; x++ {
			for z := r.MinZ; z <= r.MaxZ; z++ {
				a := dig(geom.Cell{X: x, Y: y, Z: z}, ZoneQuarry)
				a.Layer = layer
				out = append(out, a)
			}
		}
	}
	return out
}

// Layer is one drain unit of a layered plan.
type Layer struct {
	Index   int
	Actions []Action
}

// GroupByLayer partitions a plan into layers. When every action carries an explicit
// layer those are used in ascending order; otherwise layers are derived from Y,
// highest first. Generation order is kept inside each layer.
func GroupByLayer(actions []Action) []Layer {
	if len(actions) == 0 {
		return nil
	}
	explicit := true
	topY := actions[0].Pos.Y
	for _, a := range actions {
		if !a.HasLayer() {
			explicit = false
		}
		if a.Pos.Y > topY {
			topY = a.Pos.Y
		}
	}

	byKey := map[int][]Action{}
	for _, a := range actions {
		key := a.Layer
		if !explicit {
			key = topY - a.Pos.Y
		}
		byKey[key] = append(byKey[key], a)
	}
	keys := make([]int, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	out := make([]Layer, 0, len(keys))
	for _, k := range keys {
		out = append(out, Layer{Index: k, Actions: byKey[k]})
	}
	return out
}

// UniqueCells returns the distinct target cells of a plan in first-seen order.
func UniqueCells(actions []Action) []geom.Cell {
	seen := make(map[geom.Cell]struct{}, len(actions))
	out := make([]geom.Cell, 0, len(actions))
	for _, a := range actions {
		if _, ok := seen[a.Pos]; ok {
			continue
		}
		seen[a.Pos] = struct{}{}
		out = append(out, a.Pos)
	}
	return out
}

// CellSet indexes plan cells for membership checks.
func CellSet(actions []Action) map[geom.Cell]struct{} {
	out := make(map[geom.Cell]struct{}, len(actions))
	for _, a := range actions {
		out[a.Pos] = struct{}{}
	}
	return out
}
