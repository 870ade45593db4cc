package gridworld

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadOptions reads world.yaml on top of DefaultOptions. An empty path yields the
// defaults.
func LoadOptions(path string) (Options, error) {
	o := DefaultOptions()
	if strings.TrimSpace(path) == "" {
		return o, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return o, err
	}
	if err := yaml.Unmarshal(raw, &o); err != nil {
		return o, fmt.Errorf("world.yaml: %w", err)
	}
	if o.Gen.MinY >= o.Gen.MaxY {
		return o, fmt.Errorf("world.yaml: gen.min_y %d must be below gen.max_y %d", o.Gen.MinY, o.Gen.MaxY)
	}
	if o.Spawn.Y < o.Gen.MinY || o.Spawn.Y > o.Gen.MaxY {
		return o, fmt.Errorf("world.yaml: spawn %v outside the generated height", o.Spawn)
	}
	for item, n := range o.Kit {
		if n < 0 {
			return o, fmt.Errorf("world.yaml: kit %s has negative count", item)
		}
	}
	return o, nil
}
