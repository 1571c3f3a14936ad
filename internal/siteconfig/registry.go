package siteconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrConfigNotFound is returned when no configuration exists for a website id.
var ErrConfigNotFound = errors.New("scraper configuration not found")

// snapshot is an immutable, fully built set of configurations.
type snapshot struct {
	byID map[string]*SiteConfig
}

// Registry caches site configurations read from a directory of YAML files.
// Readers always see a complete snapshot; Load builds a new one and swaps it in.
type Registry struct {
	dir    string
	logger *zap.Logger

	current atomic.Pointer[snapshot]

	loadMu sync.Mutex
	hooks  []func([]*SiteConfig)
}

// NewRegistry creates a registry over dir. Call Load before use.
func NewRegistry(dir string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{dir: dir, logger: logger}
	r.current.Store(&snapshot{byID: map[string]*SiteConfig{}})
	return r
}

// OnLoad registers a hook that runs after every successful Load with the
// configs of the new snapshot.
func (r *Registry) OnLoad(fn func([]*SiteConfig)) {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Load reads every *.yml and *.yaml file in the directory. Files that fail
// to parse or validate are logged and skipped. It returns the number of
// configurations now cached.
func (r *Registry) Load() (int, error) {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0, fmt.Errorf("read config dir %s: %w", r.dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yml", ".yaml":
			files = append(files, filepath.Join(r.dir, e.Name()))
		}
	}
	sort.Strings(files)

	next := &snapshot{byID: make(map[string]*SiteConfig, len(files))}
	for _, path := range files {
		cfg, err := LoadFile(path)
		if err != nil {
			r.logger.Error("Failed to load scraper config", zap.String("file", path), zap.Error(err))
			continue
		}
		if prev, dup := next.byID[cfg.WebsiteID]; dup {
			r.logger.Warn("Duplicate website id, keeping first config",
				zap.String("website_id", cfg.WebsiteID),
				zap.String("kept", prev.Path),
				zap.String("skipped", path))
			continue
		}
		next.byID[cfg.WebsiteID] = cfg
		r.logger.Info("Loaded scraper config", zap.String("website_id", cfg.WebsiteID))
	}

	r.current.Store(next)
	r.logger.Info("Loaded scraper configurations", zap.Int("count", len(next.byID)))

	all := next.sorted()
	for _, hook := range r.hooks {
		hook(all)
	}
	return len(next.byID), nil
}

// Reload discards the cache and loads the directory again.
func (r *Registry) Reload() (int, error) {
	return r.Load()
}

// Get returns the configuration for websiteID.
func (r *Registry) Get(websiteID string) (*SiteConfig, error) {
	cfg, ok := r.current.Load().byID[websiteID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, websiteID)
	}
	return cfg, nil
}

// All returns every cached configuration ordered by website id.
func (r *Registry) All() []*SiteConfig {
	return r.current.Load().sorted()
}

// Count returns the number of cached configurations.
func (r *Registry) Count() int {
	return len(r.current.Load().byID)
}

func (s *snapshot) sorted() []*SiteConfig {
	out := make([]*SiteConfig, 0, len(s.byID))
	for _, cfg := range s.byID {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WebsiteID < out[j].WebsiteID })
	return out
}
