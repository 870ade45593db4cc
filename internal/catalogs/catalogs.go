package catalogs

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
)

//go:embed defaults/*.json
var defaultFS embed.FS

type Catalogs struct {
	Blocks BlockCatalog
	Items  ItemCatalog
}

type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string
}

type BlockDef struct {
	ID        string `json:"id"`
	Solid     bool   `json:"solid"`
	Breakable bool   `json:"breakable"`
	Liquid    string `json:"liquid,omitempty"` // "water" | "lava"
	Container bool   `json:"container,omitempty"`
	DropsItem string `json:"drops_item,omitempty"`
}

type ItemCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]ItemDef
	PaletteDigest string
	DefsDigest    string
}

type ItemDef struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"` // "BLOCK","TOOL","MATERIAL","FOOD","LIGHT"
	PlaceAs  string `json:"place_as,omitempty"`
	EdibleHP int    `json:"edible_hp,omitempty"`
}

// Load reads blocks.json and items.json from configDir.
func Load(configDir string) (*Catalogs, error) {
	return LoadFS(os.DirFS(configDir))
}

// Default returns the catalogs compiled into the binary.
func Default() *Catalogs {
	sub, err := fs.Sub(defaultFS, "defaults")
	if err != nil {
		panic(err)
	}
	c, err := LoadFS(sub)
	if err != nil {
		panic(fmt.Sprintf("embedded catalogs: %v", err))
	}
	return c
}

func LoadFS(fsys fs.FS) (*Catalogs, error) {
	var c Catalogs
	if err := loadBlocks(fsys, "blocks.json", &c.Blocks); err != nil {
		return nil, err
	}
	if err := loadItems(fsys, "items.json", &c.Items); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadBlocks(fsys fs.FS, path string, out *BlockCatalog) error {
	raw, err := fs.ReadFile(fsys, path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("blocks.json: empty id")
		}
		if d.Liquid != "" && d.Liquid != "water" && d.Liquid != "lava" {
			return fmt.Errorf("blocks.json: %s: unknown liquid %q", d.ID, d.Liquid)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Ensure air exists and is palette id 0.
	if _, ok := out.Defs["air"]; !ok {
		return fmt.Errorf("blocks.json: missing air")
	}
	ids = append([]string{"air"}, filterOut(ids, "air")...)

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadItems(fsys fs.FS, path string, out *ItemCatalog) error {
	raw, err := fs.ReadFile(fsys, path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.Defs = map[string]ItemDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("items.json: empty id")
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func filterOut(in []string, remove string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == remove {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Block predicates. Names missing from the catalog fall back to naming conventions
// so a runtime reporting newer blocks still classifies sensibly.

func (c *Catalogs) IsAir(name string) bool {
	if d, ok := c.Blocks.Defs[name]; ok {
		return !d.Solid && d.Liquid == ""
	}
	return name == "air" || strings.HasSuffix(name, "_air")
}

func (c *Catalogs) IsWater(name string) bool {
	if d, ok := c.Blocks.Defs[name]; ok {
		return d.Liquid == "water"
	}
	return name == "flowing_water" || name == "bubble_column"
}

func (c *Catalogs) IsLava(name string) bool {
	if d, ok := c.Blocks.Defs[name]; ok {
		return d.Liquid == "lava"
	}
	return name == "flowing_lava"
}

func (c *Catalogs) IsLiquid(name string) bool { return c.IsWater(name) || c.IsLava(name) }

// IsSolid treats unknown names as solid.
func (c *Catalogs) IsSolid(name string) bool {
	if d, ok := c.Blocks.Defs[name]; ok {
		return d.Solid
	}
	return !c.IsAir(name) && !c.IsLiquid(name)
}

func (c *Catalogs) IsContainer(name string) bool {
	if d, ok := c.Blocks.Defs[name]; ok {
		return d.Container
	}
	return strings.HasSuffix(name, "chest") || name == "barrel"
}

func (c *Catalogs) IsBreakable(name string) bool {
	if d, ok := c.Blocks.Defs[name]; ok {
		return d.Breakable
	}
	return c.IsSolid(name)
}

// DropFor is the item a mined block yields, or "".
func (c *Catalogs) DropFor(block string) string {
	if d, ok := c.Blocks.Defs[block]; ok {
		return d.DropsItem
	}
	return ""
}

func (c *Catalogs) IsEdible(item string) bool {
	if d, ok := c.Items.Defs[item]; ok {
		return d.Kind == "FOOD" || d.EdibleHP > 0
	}
	return false
}

// PlaceAs is the block an item turns into when placed, or "".
func (c *Catalogs) PlaceAs(item string) string {
	if d, ok := c.Items.Defs[item]; ok {
		return d.PlaceAs
	}
	if _, ok := c.Blocks.Defs[item]; ok {
		return item
	}
	return ""
}
