package tuning

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"voxelminer.ai/internal/geom"
	"voxelminer.ai/internal/inventory"
)

// Settings is the configuration snapshot a mining session captures at start. It is
// a value type; sessions hold their own copy.
type Settings struct {
	AgentID string `yaml:"agent_id"`

	DigRetryLimit int           `yaml:"dig_retry_limit"`
	VerifyDelay   time.Duration `yaml:"verify_delay"`
	SettleDelay   time.Duration `yaml:"settle_delay"`
	NavTimeout    time.Duration `yaml:"nav_timeout"`

	Reach     Reach     `yaml:"reach"`
	Deposit   Deposit   `yaml:"deposit"`
	Keep      Keep      `yaml:"keep"`
	Tunnel    Tunnel    `yaml:"tunnel"`
	Strip     Strip     `yaml:"strip"`
	Quarry    Quarry    `yaml:"quarry"`
	Obstacles Obstacles `yaml:"obstacles"`
	Cleanup   Cleanup   `yaml:"cleanup"`
	Progress  Progress  `yaml:"progress"`

	BridgingMaterials []string `yaml:"bridging_materials"`
	Valuables         []string `yaml:"valuables"`
	CollectRadius     int      `yaml:"collect_radius"`
}

type Reach struct {
	// Dig is the farthest a block can be broken from.
	Dig float64 `yaml:"dig"`
	// Approach is the goto range used when a target is out of reach.
	Approach float64 `yaml:"approach"`
	// Close is the tightened range used on retries and range failures.
	Close float64 `yaml:"close"`
}

type Deposit struct {
	Threshold    int                  `yaml:"threshold"`
	Category     string               `yaml:"category"`
	SearchRadius int                  `yaml:"search_radius"`
	Chests       map[string]geom.Cell `yaml:"chests"`
	OnFinish     bool                 `yaml:"on_finish"`
}

type Keep struct {
	BridgingTotal int `yaml:"bridging_total"`
	FoodMin       int `yaml:"food_min"`
}

type Tunnel struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type Strip struct {
	MainLength    int `yaml:"main_length"`
	BranchCount   int `yaml:"branch_count"`
	BranchSpacing int `yaml:"branch_spacing"`
	BranchLength  int `yaml:"branch_length"`
}

type Quarry struct {
	Depth    int `yaml:"depth"`
	TeamSize int `yaml:"team_size"`
}

type Obstacles struct {
	Holes             bool `yaml:"holes"`
	Water             bool `yaml:"water"`
	Lava              bool `yaml:"lava"`
	LookAheadDistance int  `yaml:"look_ahead_distance"`
}

type Cleanup struct {
	Enabled bool `yaml:"enabled"`
	Retries int  `yaml:"retries"`
}

type Progress struct {
	EveryCells int           `yaml:"every_cells"`
	Interval   time.Duration `yaml:"interval"`
}

func Defaults() Settings {
	return Settings{
		AgentID:       "miner",
		DigRetryLimit: 3,
		VerifyDelay:   150 * time.Millisecond,
		SettleDelay:   50 * time.Millisecond,
		NavTimeout:    20 * time.Second,
		Reach: Reach{
			Dig:      4.5,
			Approach: 3,
			Close:    1.5,
		},
		Deposit: Deposit{
			Threshold:    1728,
			Category:     "mining",
			SearchRadius: 6,
			Chests:       map[string]geom.Cell{},
			OnFinish:     true,
		},
		Keep: Keep{
			BridgingTotal: 64,
			FoodMin:       16,
		},
		Tunnel: Tunnel{Width: 1, Height: 2},
		Strip: Strip{
			MainLength:    32,
			BranchCount:   4,
			BranchSpacing: 3,
			BranchLength:  16,
		},
		Quarry: Quarry{Depth: 5, TeamSize: 1},
		Obstacles: Obstacles{
			Holes:             true,
			Water:             true,
			Lava:              true,
			LookAheadDistance: 3,
		},
		Cleanup:  Cleanup{Enabled: true, Retries: 2},
		Progress: Progress{EveryCells: 25, Interval: 10 * time.Second},
		BridgingMaterials: []string{
			"cobblestone", "cobbled_deepslate", "dirt", "netherrack",
			"andesite", "diorite", "granite", "tuff", "stone",
		},
		Valuables:     append([]string(nil), inventory.DefaultValuables...),
		CollectRadius: 8,
	}
}

// Load reads settings.yaml on top of Defaults. An empty path yields the defaults.
func Load(path string) (Settings, error) {
	s := Defaults()
	if strings.TrimSpace(path) == "" {
		s.Normalize()
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("settings.yaml: %w", err)
	}
	s.Normalize()
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("settings.yaml: %w", err)
	}
	return s, nil
}

// Normalize fills zero values that have an obvious default.
func (s *Settings) Normalize() {
	if s == nil {
		return
	}
	s.AgentID = strings.TrimSpace(s.AgentID)
	if s.AgentID == "" {
		s.AgentID = "miner"
	}
	if s.DigRetryLimit <= 0 {
		s.DigRetryLimit = 1
	}
	if s.Reach.Close <= 0 || s.Reach.Close > s.Reach.Approach {
		s.Reach.Close = s.Reach.Approach
	}
	if s.Deposit.Chests == nil {
		s.Deposit.Chests = map[string]geom.Cell{}
	}
	if strings.TrimSpace(s.Deposit.Category) == "" {
		s.Deposit.Category = "mining"
	}
	if s.Tunnel.Width <= 0 {
		s.Tunnel.Width = 1
	}
	if s.Tunnel.Height <= 0 {
		s.Tunnel.Height = 2
	}
	if s.Quarry.TeamSize <= 0 {
		s.Quarry.TeamSize = 1
	}
	if s.Cleanup.Retries <= 0 {
		s.Cleanup.Retries = 2
	}
	if s.Obstacles.LookAheadDistance < 0 {
		s.Obstacles.LookAheadDistance = 0
	}
}

func (s Settings) Validate() error {
	if s.Reach.Dig <= 0 || s.Reach.Approach <= 0 {
		return fmt.Errorf("reach distances must be positive")
	}
	if s.Reach.Approach > s.Reach.Dig {
		return fmt.Errorf("reach.approach (%.1f) exceeds reach.dig (%.1f)", s.Reach.Approach, s.Reach.Dig)
	}
	if s.VerifyDelay < 0 || s.SettleDelay < 0 || s.NavTimeout < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if s.Deposit.Threshold < 0 || s.Deposit.SearchRadius < 0 {
		return fmt.Errorf("deposit threshold/search_radius must not be negative")
	}
	if s.Keep.BridgingTotal < 0 || s.Keep.FoodMin < 0 {
		return fmt.Errorf("keep quotas must not be negative")
	}
	if s.Strip.BranchSpacing < 0 || s.Strip.BranchLength < 0 || s.Strip.BranchCount < 0 {
		return fmt.Errorf("strip geometry must not be negative")
	}
	if _, err := inventory.NewMatcher(s.Valuables); err != nil {
		return err
	}
	return nil
}

// ScanSteps is the number of forward slices the look-ahead covers.
func (s Settings) ScanSteps() int {
	return min(3, s.Obstacles.LookAheadDistance)
}

// Clone returns a copy that shares no slices or maps with s.
func (s Settings) Clone() Settings {
	out := s
	out.BridgingMaterials = append([]string(nil), s.BridgingMaterials...)
	out.Valuables = append([]string(nil), s.Valuables...)
	out.Deposit.Chests = make(map[string]geom.Cell, len(s.Deposit.Chests))
	for k, v := range s.Deposit.Chests {
		out.Deposit.Chests[k] = v
	}
	return out
}
