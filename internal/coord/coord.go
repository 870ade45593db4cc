// Package coord is an in-process work coordinator for agents sharing one world:
// per-cell claims and rectangular zone division.
package coord

import (
	"sort"
	"sync"

	"voxelminer.ai/internal/bot"
	"voxelminer.ai/internal/geom"
)

type claim struct {
	Owner string
	Kind  bot.ClaimKind
}

// Coordinator is safe for concurrent use by many agents.
type Coordinator struct {
	mu     sync.Mutex
	claims map[geom.Cell]claim
	roster map[string]bool
}

func New(agents ...string) *Coordinator {
	c := &Coordinator{
		claims: map[geom.Cell]claim{},
		roster: map[string]bool{},
	}
	for _, a := range agents {
		if a != "" {
			c.roster[a] = true
		}
	}
	return c
}

// Join registers an agent for area division. ClaimBlock and DivideArea join
// implicitly.
func (c *Coordinator) Join(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if agentID != "" {
		c.roster[agentID] = true
	}
}

func (c *Coordinator) ClaimBlock(agentID string, cell geom.Cell, kind bot.ClaimKind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.claims[cell]; ok && cur.Owner != agentID {
		return false
	}
	c.roster[agentID] = true
	c.claims[cell] = claim{Owner: agentID, Kind: kind}
	return true
}

func (c *Coordinator) ReleaseBlock(cell geom.Cell) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claims, cell)
}

func (c *Coordinator) IsBlockClaimed(cell geom.Cell, agentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.claims[cell]
	return ok && cur.Owner != agentID
}

// Owner returns the agent holding cell, if any.
func (c *Coordinator) Owner(cell geom.Cell) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.claims[cell]
	return cur.Owner, ok
}

func (c *Coordinator) Claims() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.claims)
}

// DivideArea splits area into n strips along its longer horizontal axis and returns
// the strip for agentID. Agents are ordered by id; an agent beyond the first n gets
// the last strip. Heights are never split.
func (c *Coordinator) DivideArea(area bot.Area, n int, agentID string) bot.Area {
	area = normalize(area)
	if n <= 1 {
		return area
	}
	c.mu.Lock()
	c.roster[agentID] = true
	ids := make([]string, 0, len(c.roster))
	for id := range c.roster {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Strings(ids)
	idx := sort.SearchStrings(ids, agentID)
	if idx >= n {
		idx = n - 1
	}
	return Split(area, n, idx)
}

// Split returns strip idx of n equal-ish strips. The first strips absorb the
// remainder, one extra column each.
func Split(area bot.Area, n, idx int) bot.Area {
	area = normalize(area)
	if n <= 1 {
		return area
	}
	alongX := area.Max.X-area.Min.X >= area.Max.Z-area.Min.Z
	lo, hi := area.Min.Z, area.Max.Z
	if alongX {
		lo, hi = area.Min.X, area.Max.X
	}
	span := hi - lo + 1
	n = min(n, span)
	idx = max(0, min(idx, n-1))
	size, rem := span/n, span%n
	start := lo + idx*size + min(idx, rem)
	end := start + size - 1
	if idx < rem {
		end++
	}
	out := area
	if alongX {
		out.Min.X, out.Max.X = start, end
	} else {
		out.Min.Z, out.Max.Z = start, end
	}
	return out
}

func normalize(a bot.Area) bot.Area {
	return bot.Area{
		Min: geom.Cell{X: min(a.Min.X, a.Max.X), Y: min(a.Min.Y, a.Max.Y), Z: min(a.Min.Z, a.Max.Z)},
		Max: geom.Cell{X: max(a.Min.X, a.Max.X), Y: max(a.Min.Y, a.Max.Y), Z: max(a.Min.Z, a.Max.Z)},
	}
}
