// Package refdata holds read-mostly reference lookup tables (status display
// labels, subjects, credit packages). Tables are loaded once at process start
// into an immutable snapshot; request paths never mutate them. Reload swaps
// in a whole new snapshot for operational use.
package refdata

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Tables is one immutable snapshot of all reference tables, keyed by table
// name then code.
type Tables map[string]map[string]string

// Cache serves reference data without a database round trip per request.
type Cache struct {
	path     string
	snapshot atomic.Value // Tables
	logger   zerolog.Logger
}

// Load reads the YAML seed file and returns a populated cache.
func Load(path string, logger zerolog.Logger) (*Cache, error) {
	c := &Cache{
		path:   path,
		logger: logger.With().Str("component", "refdata").Logger(),
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the seed file and atomically swaps the snapshot. The old
// snapshot remains valid for readers that already hold it.
func (c *Cache) Reload() error {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("failed to read reference data: %w", err)
	}

	var tables Tables
	if err := yaml.Unmarshal(raw, &tables); err != nil {
		return fmt.Errorf("failed to parse reference data: %w", err)
	}

	c.snapshot.Store(tables)
	c.logger.Info().Int("tables", len(tables)).Msg("reference data loaded")
	return nil
}

func (c *Cache) tables() Tables {
	t, _ := c.snapshot.Load().(Tables)
	return t
}

// Table returns one lookup table by name, or nil if unknown.
func (c *Cache) Table(name string) map[string]string {
	return c.tables()[name]
}

// Get looks up a single code in a table.
func (c *Cache) Get(table, code string) (string, bool) {
	v, ok := c.tables()[table][code]
	return v, ok
}

// TableNames returns the names of all loaded tables.
func (c *Cache) TableNames() []string {
	t := c.tables()
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	return names
}
