package miner

import (
	"context"
	"errors"
	"fmt"

	"voxelminer.ai/internal/bot"
	"voxelminer.ai/internal/geom"
	"voxelminer.ai/internal/obstacle"
	"voxelminer.ai/internal/plan"
)

type confirmOpts struct {
	maxRetries      int
	approachOnRetry bool
	// firstAttempt numbers the first loop iteration, so a requeued cell keeps
	// counting where it left off.
	firstAttempt int
}

// isClear reports a loaded cell with nothing left to break.
func (e *Engine) isClear(c geom.Cell) bool {
	b, ok := e.world.BlockAt(c)
	return ok && e.cats.IsAir(b.Name)
}

// breakAndConfirm digs a until a re-probe after the verify delay shows it clear, or
// the attempt budget runs out. used is the number of attempts it spent.
func (e *Engine) breakAndConfirm(ctx context.Context, s *Session, a plan.Action, o confirmOpts) (ok bool, used int) {
	first := max(o.firstAttempt, 1)
	for i := 0; i < o.maxRetries; i++ {
		attempt := first + i
		if i > 0 && !e.shouldContinue(ctx) {
			return false, i
		}
		if e.isClear(a.Pos) {
			return true, i + 1
		}
		if attempt > 1 && o.approachOnRetry {
			_ = e.nav.Goto(ctx, a.Pos, bot.GotoOptions{Timeout: s.cfg.NavTimeout, Tag: "mine-retry", Range: s.cfg.Reach.Close})
		}

		if err := e.executeDig(ctx, s, a); err != nil {
			e.digFailed(ctx, s, a, attempt, err.Error())
			continue
		}
		sleepCtx(ctx, s.cfg.VerifyDelay)
		if e.isClear(a.Pos) {
			s.mined++
			e.addMined(1)
			e.metrics.add(ctx, e.metrics.mined, 1, s.Mode)
			e.emit(s, Event{Type: EventDigOK, Pos: cellPtr(a.Pos), Attempt: attempt})
			return true, i + 1
		}
		e.digFailed(ctx, s, a, attempt, "still present after dig")
	}
	return false, o.maxRetries
}

func (e *Engine) digFailed(ctx context.Context, s *Session, a plan.Action, attempt int, why string) {
	e.log.Printf("session %s: dig %v attempt %d failed: %s", s.ID, a.Pos, attempt, why)
	e.metrics.add(ctx, e.metrics.digFails, 1, s.Mode)
	e.emit(s, Event{Type: EventDigFail, Pos: cellPtr(a.Pos), Attempt: attempt, Message: why})
}

// executeDig is one raw attempt: approach, look-ahead scan, liquid check, break,
// post-break liquid check, footing.
func (e *Engine) executeDig(ctx context.Context, s *Session, a plan.Action) error {
	if geom.Distance(e.world.Feet(), a.Pos) > s.cfg.Reach.Dig {
		err := e.nav.Goto(ctx, a.Pos, bot.GotoOptions{Timeout: s.cfg.NavTimeout, Tag: "mine", Range: s.cfg.Reach.Approach})
		if err != nil {
			if geom.Distance(e.world.Feet(), a.Pos) > s.cfg.Reach.Dig {
				return fmt.Errorf("%w: %v", ErrOutOfReach, err)
			}
			e.log.Printf("session %s: navigation to %v failed, target still in reach: %v", s.ID, a.Pos, err)
		}
	}

	// Self-placed cells are trusted; scanning them again would re-trigger placement.
	if !s.isPlaced(a.Pos) {
		e.scanAhead(ctx, s, s.frameFor(a))
	}

	if cls := obstacle.Classify(e.world, e.cats, a.Pos); cls.Kind.IsLiquid() {
		if !e.handle(ctx, s, cls) {
			return fmt.Errorf("%w: %s at %v", ErrLiquid, cls.Kind, cls.Pos)
		}
	}

	state, _ := e.world.BlockAt(a.Pos)
	err := e.tools.SmartDig(ctx, a.Pos, state)
	if errors.Is(err, bot.ErrOutOfRange) {
		_ = e.nav.Goto(ctx, a.Pos, bot.GotoOptions{Timeout: s.cfg.NavTimeout, Tag: "mine-close", Range: s.cfg.Reach.Close})
		err = e.tools.SmartDig(ctx, a.Pos, state)
	}
	if err != nil {
		return err
	}
	sleepCtx(ctx, s.cfg.SettleDelay)

	if cls := obstacle.Classify(e.world, e.cats, a.Pos); cls.Kind.IsLiquid() {
		if !e.handle(ctx, s, cls) {
			e.log.Printf("session %s: %s revealed at %v left in place", s.ID, cls.Kind, cls.Pos)
		}
	}
	e.secureFooting(ctx, s)
	return nil
}
