// Package crewconfig loads per-member crew configuration documents from a
// directory, falling back to the defaults compiled into the binary, and the
// cost database used for tier pricing.
package crewconfig

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/crew"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/cache"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/crewconfig"
)

//go:embed defaults/*.json
var defaults embed.FS

// DefaultCacheTTL is how long a raw document stays cached.
const DefaultCacheTTL = 10 * time.Minute

var validID = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// Store implements crewconfig.Loader. Documents in dir override the embedded
// defaults file by file.
type Store struct {
	dir   string
	cache cache.Cache
	ttl   time.Duration
}

// NewStore creates a loader. dir may be empty to use only the embedded
// defaults; c may be nil to disable caching.
func NewStore(dir string, c cache.Cache, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Store{dir: dir, cache: c, ttl: ttl}
}

func cacheKey(id string) string { return "crew:" + id }

// Load returns the validated config of one member.
func (s *Store) Load(ctx context.Context, id string) (*crew.Config, error) {
	if !validID.MatchString(id) {
		return nil, fmt.Errorf("%w: invalid crew id %q", domain.ErrValidation, id)
	}
	raw, err := cache.GetOrLoad(ctx, s.cache, cacheKey(id), s.ttl, func(context.Context) ([]byte, error) {
		return s.read(id)
	})
	if err != nil {
		return nil, err
	}
	cfg, err := crew.ParseConfig(raw)
	if err != nil {
		// Never keep serving a broken document.
		s.Invalidate(ctx, id)
		return nil, fmt.Errorf("crew config %s: %w", id, err)
	}
	if cfg.ID != id {
		s.Invalidate(ctx, id)
		return nil, fmt.Errorf("%w: crew config %s declares id %q", domain.ErrValidation, id, cfg.ID)
	}
	return cfg, nil
}

// Invalidate drops a cached document so the next Load reads it again.
func (s *Store) Invalidate(ctx context.Context, id string) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, cacheKey(id))
	}
}

func (s *Store) read(id string) ([]byte, error) {
	name := id + ".json"
	if s.dir != "" {
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read crew config %s: %w", id, err)
		}
	}
	data, err := defaults.ReadFile("defaults/" + name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("crew config %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read embedded crew config %s: %w", id, err)
	}
	return data, nil
}

// IDs lists the ids that have a document, embedded or in dir.
func (s *Store) IDs() ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	add := func(name string) {
		if filepath.Ext(name) != ".json" {
			return
		}
		id := name[:len(name)-len(".json")]
		if validID.MatchString(id) && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	entries, err := defaults.ReadDir("defaults")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		add(e.Name())
	}
	if s.dir != "" {
		entries, err := os.ReadDir(s.dir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("list crew configs: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				add(e.Name())
			}
		}
	}
	return ids, nil
}

var _ crewconfig.Loader = (*Store)(nil)
