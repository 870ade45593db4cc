package miner

import (
	"context"
	"fmt"
	"sort"

	"voxelminer.ai/internal/bot"
	"voxelminer.ai/internal/geom"
	"voxelminer.ai/internal/inventory"
	"voxelminer.ai/internal/tuning"
)

// depositLocation resolves where to look for containers: the registered chest for
// the category, else the session start, else the current cell.
func depositLocation(cfg tuning.Deposit, start *geom.Cell, feet geom.Cell) geom.Cell {
	if c, ok := cfg.Chests[cfg.Category]; ok {
		return c
	}
	if start != nil {
		return *start
	}
	return feet
}

func (e *Engine) depositRules(s *Session) inventory.Rules {
	return inventory.Rules{
		BridgingMaterials: s.cfg.BridgingMaterials,
		KeepBridgingTotal: s.cfg.Keep.BridgingTotal,
		KeepFoodMin:       s.cfg.Keep.FoodMin,
		Edible:            e.cats.IsEdible,
	}
}

// depositBackoff is how far the inventory must grow, after a trip that left it at or
// above the threshold, before the next trip.
const depositBackoff = 64

// maybeDeposit runs a deposit once the inventory reaches the threshold. A zero
// threshold disables threshold deposits.
func (e *Engine) maybeDeposit(ctx context.Context, s *Session) {
	th := s.cfg.Deposit.Threshold
	if th <= 0 {
		return
	}
	total := inventory.Total(e.world.Inventory())
	if total < th || total < s.depositRetryAt {
		return
	}
	if err := e.deposit(ctx, s); err != nil {
		e.log.Printf("session %s: deposit: %v", s.ID, err)
	}
	s.depositRetryAt = 0
	if after := inventory.Total(e.world.Inventory()); after >= th {
		s.depositRetryAt = after + depositBackoff
		e.log.Printf("session %s: %d items still held after deposit, next try at %d", s.ID, after, s.depositRetryAt)
	}
}

func (e *Engine) postDeposit(ctx context.Context, s *Session) {
	if !s.cfg.Deposit.OnFinish || !e.shouldContinue(ctx) {
		return
	}
	if len(inventory.PlanDeposit(e.world.Inventory(), e.depositRules(s))) == 0 {
		return
	}
	if err := e.deposit(ctx, s); err != nil {
		e.log.Printf("session %s: final deposit: %v", s.ID, err)
	}
}

func (e *Engine) deposit(ctx context.Context, s *Session) error {
	start := s.Start
	loc := depositLocation(s.cfg.Deposit, &start, e.world.Feet())
	if geom.Distance(e.world.Feet(), loc) > s.cfg.Reach.Approach {
		if err := e.nav.Goto(ctx, loc, bot.GotoOptions{Timeout: s.cfg.NavTimeout, Tag: "deposit", Range: s.cfg.Reach.Approach}); err != nil {
			e.log.Printf("session %s: navigation to deposit %v failed: %v", s.ID, loc, err)
		}
	}

	containers := e.findContainers(e.world.Feet(), s.cfg.Deposit.SearchRadius)
	if len(containers) == 0 {
		return fmt.Errorf("%w within %d of %v", ErrNoContainer, s.cfg.Deposit.SearchRadius, e.world.Feet())
	}
	for _, c := range containers {
		if e.depositInto(ctx, s, c) {
			s.deposits++
			return nil
		}
	}
	return fmt.Errorf("%w: %d candidates failed", ErrNoContainer, len(containers))
}

// findContainers lists container blocks in the cube of the given radius, nearest
// first.
func (e *Engine) findContainers(center geom.Cell, radius int) []geom.Cell {
	var out []geom.Cell
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			for dz := -radius; dz <= radius; dz++ {
				c := center.Offset(dx, dy, dz)
				if b, ok := e.world.BlockAt(c); ok && e.cats.IsContainer(b.Name) {
					out = append(out, c)
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return geom.Distance(center, out[i]) < geom.Distance(center, out[j])
	})
	return out
}

// depositInto transfers the keep-rule surplus into the container at c. Failed
// transfers are logged and skipped; the container counts as used when anything
// moved or there was nothing to move.
func (e *Engine) depositInto(ctx context.Context, s *Session, c geom.Cell) bool {
	if geom.Distance(e.world.Feet(), c) > s.cfg.Reach.Dig {
		err := e.nav.Goto(ctx, c, bot.GotoOptions{Timeout: s.cfg.NavTimeout, Tag: "deposit", Range: s.cfg.Reach.Close})
		if err != nil && geom.Distance(e.world.Feet(), c) > s.cfg.Reach.Dig {
			e.log.Printf("session %s: container %v unreachable: %v", s.ID, c, err)
			return false
		}
	}
	h, err := e.world.OpenContainer(ctx, c)
	if err != nil {
		e.log.Printf("session %s: open container %v: %v", s.ID, c, err)
		return false
	}
	defer func() {
		if err := h.Close(); err != nil {
			e.log.Printf("session %s: close container %v: %v", s.ID, c, err)
		}
	}()

	transfers := inventory.PlanDeposit(e.world.Inventory(), e.depositRules(s))
	if len(transfers) == 0 {
		return true
	}
	moved := 0
	for _, t := range transfers {
		if moved > 0 && !e.shouldContinue(ctx) {
			break
		}
		if err := h.Deposit(ctx, t.Item, t.Count); err != nil {
			e.log.Printf("session %s: deposit %d %s into %v: %v", s.ID, t.Count, t.Item, c, err)
			continue
		}
		moved++
		s.deposited += t.Count
		e.metrics.add(ctx, e.metrics.deposited, t.Count, s.Mode)
		e.emit(s, Event{Type: EventDeposit, Pos: cellPtr(c), Item: t.Item, Count: t.Count})
	}
	return moved > 0
}
