// Package bot declares the capabilities the excavation engine consumes from the
// agent runtime: world access, navigation, tool handling, cross-agent claims and
// item pickup. Implementations live outside the engine; gridworld provides an
// in-memory one.
package bot

import (
	"context"
	"errors"
	"time"

	"voxelminer.ai/internal/geom"
)

// ErrOutOfRange marks dig/place/open failures caused by distance. Implementations
// wrap it so callers can retry from closer.
var ErrOutOfRange = errors.New("target out of range")

// ErrNavigation marks goto failures (timeout, unreachable).
var ErrNavigation = errors.New("navigation failed")

// BlockState is what the world reports for a loaded cell.
type BlockState struct {
	Name string
}

type ItemStack struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// World is the agent's view of and write access to the voxel world.
type World interface {
	// BlockAt returns ok=false for unloaded or unknown cells.
	BlockAt(c geom.Cell) (BlockState, bool)
	Dig(ctx context.Context, c geom.Cell) error
	// PlaceBlock places material against the face of ref pointed to by face.
	PlaceBlock(ctx context.Context, ref geom.Cell, face geom.Cell, material string) error
	Equip(ctx context.Context, item string, slot string) error
	OpenContainer(ctx context.Context, c geom.Cell) (Container, error)

	// Feet is the cell the agent currently stands in.
	Feet() geom.Cell
	Inventory() []ItemStack
}

type Container interface {
	Deposit(ctx context.Context, item string, count int) error
	Close() error
}

type GotoOptions struct {
	Timeout time.Duration
	Tag     string
	// Range is how close to the target the agent must end up.
	Range float64
}

type Navigator interface {
	Goto(ctx context.Context, target geom.Cell, opts GotoOptions) error
	Stop()
	// PushDigBias makes digging cheap only where allow returns true until the
	// matching PopDigBias.
	PushDigBias(allow func(geom.Cell) bool)
	PopDigBias()
}

type ToolKind string

const (
	ToolPickaxe ToolKind = "pickaxe"
	ToolAxe     ToolKind = "axe"
	ToolShovel  ToolKind = "shovel"
)

// ToolHandler equips the best tool for a block and breaks it.
type ToolHandler interface {
	SmartDig(ctx context.Context, c geom.Cell, b BlockState) error
	HasTool(kind ToolKind) bool
}

type ClaimKind string

const (
	ClaimDig   ClaimKind = "dig"
	ClaimPlace ClaimKind = "place"
)

// Area is an inclusive XZ rectangle with a vertical span.
type Area struct {
	Min geom.Cell `json:"min"`
	Max geom.Cell `json:"max"`
}

// WorkCoordinator arbitrates cells between agents.
type WorkCoordinator interface {
	ClaimBlock(agentID string, c geom.Cell, kind ClaimKind) bool
	ReleaseBlock(c geom.Cell)
	// IsBlockClaimed reports a claim on c held by an agent other than agentID.
	IsBlockClaimed(c geom.Cell, agentID string) bool
	DivideArea(area Area, n int, agentID string) Area
}

type CollectOptions struct {
	Radius  int
	Timeout time.Duration
}

type ItemCollector interface {
	CollectOnce(ctx context.Context, opts CollectOptions) int
	StartAuto(opts CollectOptions)
	StopAuto()
	AutoRunning() bool
}
