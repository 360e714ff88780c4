package blocks

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"os"
	"sort"

	"github.com/cockroachdb/errors"

	"voxelstore.ai/internal/sim/world/terrain/section"
)

//go:embed blocks.json
var defaultCatalogJSON []byte

type Def struct {
	ID       string `json:"id"`
	Solid    bool   `json:"solid"`
	Stateful bool   `json:"stateful,omitempty"`
}

// Catalog maps block names to type ids. AIR is always type 0; the other
// names follow in sorted order so the numbering only depends on the set.
type Catalog struct {
	Palette []string
	Index   map[string]int
	Defs    map[string]Def
	Digest  string
}

// DefaultCatalog returns the built-in block set.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogJSON)
	if err != nil {
		panic(err)
	}
	return c
}

func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := ParseCatalog(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return c, nil
}

func ParseCatalog(raw []byte) (*Catalog, error) {
	var defs []Def
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, errors.Wrap(err, "block catalog")
	}
	c := &Catalog{Defs: make(map[string]Def, len(defs))}
	for _, d := range defs {
		if d.ID == "" {
			return nil, errors.New("block catalog: empty id")
		}
		if _, dup := c.Defs[d.ID]; dup {
			return nil, errors.Newf("block catalog: duplicate id %q", d.ID)
		}
		c.Defs[d.ID] = d
	}
	if _, ok := c.Defs["AIR"]; !ok {
		return nil, errors.New("block catalog: missing AIR")
	}
	if len(c.Defs) > MaxType+1 {
		return nil, errors.Newf("block catalog: %d types, at most %d fit", len(c.Defs), MaxType+1)
	}

	names := make([]string, 0, len(c.Defs))
	for id := range c.Defs {
		if id != "AIR" {
			names = append(names, id)
		}
	}
	sort.Strings(names)
	c.Palette = append([]string{"AIR"}, names...)
	c.Index = make(map[string]int, len(c.Palette))
	for i, id := range c.Palette {
		c.Index[id] = i
	}
	pal, _ := json.Marshal(c.Palette)
	sum := sha256.Sum256(pal)
	c.Digest = hex.EncodeToString(sum[:])
	return c, nil
}

// ID returns the stateless block id for name.
func (c *Catalog) ID(name string) (section.BlockID, bool) {
	t, ok := c.Index[name]
	if !ok {
		return 0, false
	}
	return section.BlockID(t), true
}

func (c *Catalog) MustID(name string) section.BlockID {
	id, ok := c.ID(name)
	if !ok {
		panic("blocks: unknown block " + name)
	}
	return id
}

// Name returns the type name of id, ignoring state bits.
func (c *Catalog) Name(id section.BlockID) string {
	t := TypeID(id)
	if t < len(c.Palette) {
		return c.Palette[t]
	}
	return "UNKNOWN"
}
