package augment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Option is one augment a player may pick during a selection phase.
type Option struct {
	// ID is the stable identifier clients submit back as their choice.
	ID string `yaml:"id" json:"id"`
	// Name is the display name.
	Name string `yaml:"name" json:"name"`
	// Description is the display blurb.
	Description string `yaml:"description" json:"description"`
	// Tier orders options roughly by power; informational only.
	Tier int `yaml:"tier" json:"tier"`
}

// Catalog is the full set of augment options known to the server, in a
// stable order. An empty catalog is valid: selection phases then carry no
// offered options and clients use their own lists.
type Catalog struct {
	options []Option
}

// NewCatalog builds a catalog from the given options, sorted by ID for a
// deterministic offer rotation.
func NewCatalog(options []Option) *Catalog {
	sorted := make([]Option, len(options))
	copy(sorted, options)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &Catalog{options: sorted}
}

// LoadCatalog reads every *.yaml / *.yml file in dir, each containing a list
// of options, and merges them into one catalog.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a catalog with unique option IDs, or a non-nil error.
func LoadCatalog(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading augment directory %s: %w", dir, err)
	}

	seen := make(map[string]string) // option ID → file it came from
	var all []Option
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading augment file %s: %w", path, err)
		}
		var opts []Option
		if err := yaml.Unmarshal(data, &opts); err != nil {
			return nil, fmt.Errorf("parsing augment file %s: %w", path, err)
		}
		for _, opt := range opts {
			if opt.ID == "" {
				return nil, fmt.Errorf("augment file %s: option with empty id", path)
			}
			if prev, dup := seen[opt.ID]; dup {
				return nil, fmt.Errorf("augment id %q in %s already defined in %s", opt.ID, path, prev)
			}
			seen[opt.ID] = path
			all = append(all, opt)
		}
	}

	return NewCatalog(all), nil
}

// Len returns the number of options in the catalog.
func (c *Catalog) Len() int {
	return len(c.options)
}

// OffersFor returns up to n options for the given round, rotating through
// the catalog by round number so consecutive rounds see different options
// without any RNG. Returns nil for an empty catalog.
//
// Precondition: round >= 1; n >= 1.
func (c *Catalog) OffersFor(round, n int) []Option {
	if len(c.options) == 0 {
		return nil
	}
	if n > len(c.options) {
		n = len(c.options)
	}
	start := ((round - 1) * n) % len(c.options)
	out := make([]Option, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, c.options[(start+i)%len(c.options)])
	}
	return out
}
