// Package inventory holds the pure bookkeeping behind deposits and material choice:
// stack aggregation, keep-rules and the valuables deny-list.
package inventory

import (
	"fmt"
	"regexp"
	"strings"

	"voxelminer.ai/internal/bot"
)

var toolOrTorch = regexp.MustCompile(`(^|_)(pickaxe|axe|shovel|hoe|sword|shears|bow|crossbow|trident|fishing_rod|flint_and_steel)$|torch`)

// IsToolOrTorch reports items that are never deposited.
func IsToolOrTorch(name string) bool { return toolOrTorch.MatchString(name) }

// DefaultValuables is the deny-list used when picking filler material.
var DefaultValuables = []string{
	"diamond", "emerald", "netherite", "gold", "iron_ingot", "raw_iron", "lapis",
	"ancient_debris", "shulker", "elytra", "totem", "enchanted", "chest", "barrel",
}

// Matcher matches item names against a set of substrings and tool/torch names.
type Matcher struct {
	re *regexp.Regexp
}

func NewMatcher(patterns []string) (*Matcher, error) {
	parts := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts = append(parts, regexp.QuoteMeta(p))
	}
	if len(parts) == 0 {
		return &Matcher{}, nil
	}
	re, err := regexp.Compile(strings.Join(parts, "|"))
	if err != nil {
		return nil, fmt.Errorf("deny-list: %w", err)
	}
	return &Matcher{re: re}, nil
}

func (m *Matcher) Match(name string) bool {
	if IsToolOrTorch(name) {
		return true
	}
	return m != nil && m.re != nil && m.re.MatchString(name)
}

// Aggregate merges stacks of the same item, keeping first-seen order.
func Aggregate(stacks []bot.ItemStack) []bot.ItemStack {
	idx := map[string]int{}
	out := make([]bot.ItemStack, 0, len(stacks))
	for _, s := range stacks {
		if s.Count <= 0 || s.Name == "" {
			continue
		}
		if i, ok := idx[s.Name]; ok {
			out[i].Count += s.Count
			continue
		}
		idx[s.Name] = len(out)
		out = append(out, s)
	}
	return out
}

func Total(stacks []bot.ItemStack) int {
	n := 0
	for _, s := range stacks {
		if s.Count > 0 {
			n += s.Count
		}
	}
	return n
}

func Count(stacks []bot.ItemStack, name string) int {
	n := 0
	for _, s := range stacks {
		if s.Name == name && s.Count > 0 {
			n += s.Count
		}
	}
	return n
}

// Rules are the keep quotas applied during a deposit.
type Rules struct {
	BridgingMaterials []string
	KeepBridgingTotal int
	KeepFoodMin       int
	Edible            func(item string) bool
}

type Transfer struct {
	Item  string
	Count int
}

// PlanDeposit computes what to hand over. Tools and torches stay. Bridging materials
// and food are kept up to their category quota; the quota is spent across the whole
// category in inventory order, so a later item sees what earlier ones left.
func PlanDeposit(stacks []bot.ItemStack, r Rules) []Transfer {
	bridging := make(map[string]bool, len(r.BridgingMaterials))
	for _, m := range r.BridgingMaterials {
		bridging[m] = true
	}
	bridgingLeft := max(r.KeepBridgingTotal, 0)
	foodLeft := max(r.KeepFoodMin, 0)

	var out []Transfer
	for _, s := range Aggregate(stacks) {
		if IsToolOrTorch(s.Name) {
			continue
		}
		n := s.Count
		switch {
		case bridging[s.Name]:
			keep := min(n, bridgingLeft)
			bridgingLeft -= keep
			n -= keep
		case r.Edible != nil && r.Edible(s.Name):
			keep := min(n, foodLeft)
			foodLeft -= keep
			n -= keep
		}
		if n > 0 {
			out = append(out, Transfer{Item: s.Name, Count: n})
		}
	}
	return out
}

// PickBridgingMaterial returns the first configured bridging material in stock, or
// else the first item the deny-list does not match.
func PickBridgingMaterial(stacks []bot.ItemStack, bridging []string, deny *Matcher) (string, bool) {
	agg := Aggregate(stacks)
	for _, m := range bridging {
		if Count(agg, m) > 0 {
			return m, true
		}
	}
	for _, s := range agg {
		if !deny.Match(s.Name) {
			return s.Name, true
		}
	}
	return "", false
}
