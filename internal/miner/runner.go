package miner

import (
	"context"
	"fmt"

	"voxelminer.ai/internal/bot"
	"voxelminer.ai/internal/geom"
	"voxelminer.ai/internal/plan"
)

// processCell holds the cell's claim for the duration of one breakAndConfirm call.
// A denied claim is one failed attempt.
func (e *Engine) processCell(ctx context.Context, s *Session, a plan.Action, o confirmOpts) (ok bool, used int) {
	if !e.coord.ClaimBlock(s.cfg.AgentID, a.Pos, bot.ClaimDig) {
		e.digFailed(ctx, s, a, max(o.firstAttempt, 1), ErrClaimed.Error())
		return false, 1
	}
	defer e.coord.ReleaseBlock(a.Pos)
	return e.breakAndConfirm(ctx, s, a, o)
}

func (e *Engine) abandonCell(ctx context.Context, s *Session, a plan.Action, attempts int) {
	s.abandon(a.Pos)
	e.log.Printf("session %s: abandoning %v after %d attempts", s.ID, a.Pos, attempts)
	e.metrics.add(ctx, e.metrics.abandoned, 1, s.Mode)
	e.emit(s, Event{Type: EventAbandon, Pos: cellPtr(a.Pos), Attempt: attempts})
}

// drainOrdered runs a tunnel plan in generation order. Each cell gets its whole
// retry budget inline; the look-ahead depends on slices being visited in order.
func (e *Engine) drainOrdered(ctx context.Context, s *Session) {
	limit := s.cfg.DigRetryLimit
	for i, a := range s.Plan {
		if !e.shouldContinue(ctx) {
			s.stopped = true
			return
		}
		e.setCursor(i)
		ok, next := false, 1
		for next <= limit {
			var used int
			ok, used = e.processCell(ctx, s, a, confirmOpts{maxRetries: limit - next + 1, approachOnRetry: true, firstAttempt: next})
			next += used
			if ok || next > limit || !e.shouldContinue(ctx) {
				break
			}
			// Only a denied claim comes back with budget left; give its holder a moment.
			sleepCtx(ctx, s.cfg.VerifyDelay)
		}
		if !ok {
			if !e.shouldContinue(ctx) {
				s.stopped = true
				return
			}
			e.abandonCell(ctx, s, a, next-1)
		}
		s.processed++
		e.setCursor(s.processed)
		e.afterCell(ctx, s)
	}
}

// drainLayered runs a strip or quarry plan layer by layer. A failed cell goes to the
// back of its layer until it has been tried DigRetryLimit times, then it is
// abandoned and counted as processed, so every layer queue empties.
func (e *Engine) drainLayered(ctx context.Context, s *Session, quarry bool) {
	limit := s.cfg.DigRetryLimit
	attempts := make(map[geom.Cell]int)
	layers := plan.GroupByLayer(s.Plan)

	for li, layer := range layers {
		if quarry && li > 0 {
			e.collectSweep(ctx, s)
		}
		e.log.Printf("session %s: layer %d/%d (%d cells)", s.ID, li+1, len(layers), len(layer.Actions))

		queue := append([]plan.Action(nil), layer.Actions...)
		for len(queue) > 0 {
			if !e.shouldContinue(ctx) {
				s.stopped = true
				return
			}
			a := queue[0]
			queue = queue[1:]

			if quarry && e.isClear(a.Pos) {
				s.processed++
				e.setCursor(s.processed)
				continue
			}

			attempts[a.Pos]++
			n := attempts[a.Pos]
			ok, _ := e.processCell(ctx, s, a, confirmOpts{maxRetries: 1, approachOnRetry: true, firstAttempt: n})
			switch {
			case ok:
				s.processed++
			case !e.shouldContinue(ctx):
				s.stopped = true
				return
			case n < limit:
				queue = append(queue, a)
			default:
				e.abandonCell(ctx, s, a, n)
				s.processed++
			}
			e.setCursor(s.processed)
			e.afterCell(ctx, s)
		}
	}
	if quarry && e.shouldContinue(ctx) {
		e.collectSweep(ctx, s)
	}
}

// cleanupPass re-probes the footprint and retries anything still solid that this
// session did not place itself.
func (e *Engine) cleanupPass(ctx context.Context, s *Session) {
	missed := 0
	for _, c := range plan.UniqueCells(s.Plan) {
		if !e.shouldContinue(ctx) {
			s.stopped = true
			break
		}
		if s.isPlaced(c) || !e.isSolid(c) || e.coord.IsBlockClaimed(c, s.cfg.AgentID) {
			continue
		}
		missed++
		a := plan.Action{Pos: c, Kind: plan.KindDig, Zone: plan.ZoneCleanup, Layer: plan.NoLayer}
		if ok, _ := e.processCell(ctx, s, a, confirmOpts{maxRetries: s.cfg.Cleanup.Retries, approachOnRetry: true, firstAttempt: 1}); ok {
			s.cleaned++
		} else {
			s.remaining++
		}
		e.maybeDeposit(ctx, s)
	}
	if missed > 0 {
		e.log.Printf("session %s: cleanup cleaned=%d remaining=%d", s.ID, s.cleaned, s.remaining)
	}
	e.emit(s, Event{Type: EventCleanup, Count: s.cleaned, Message: fmt.Sprintf("missed=%d remaining=%d", missed, s.remaining)})
}

func (e *Engine) afterCell(ctx context.Context, s *Session) {
	if s.progress != nil {
		s.progress.Do(func() { e.reportProgress(s) })
	}
	e.maybeDeposit(ctx, s)
}

func (e *Engine) reportProgress(s *Session) {
	total := len(s.Plan)
	pct := 100.0
	if total > 0 {
		pct = float64(s.processed) * 100 / float64(total)
	}
	e.log.Printf("session %s: %s %d/%d (%.0f%%) mined=%d abandoned=%d", s.ID, s.Mode, s.processed, total, pct, s.mined, len(s.abandoned))
	e.emit(s, Event{Type: EventProgress, Count: s.processed, Message: fmt.Sprintf("%d/%d", s.processed, total)})
}

func (e *Engine) collectSweep(ctx context.Context, s *Session) {
	n := e.collector.CollectOnce(ctx, bot.CollectOptions{Radius: s.cfg.CollectRadius, Timeout: s.cfg.NavTimeout})
	if n > 0 {
		e.log.Printf("session %s: collected %d item stacks", s.ID, n)
	}
}
