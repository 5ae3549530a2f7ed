package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/roach88/storehaus/internal/cache"
	"github.com/roach88/storehaus/internal/schema"
	"github.com/roach88/storehaus/internal/store"
)

var (
	// ErrAlreadyRegistered is returned when a name is taken.
	ErrAlreadyRegistered = errors.New("store already registered")

	// ErrNotFound is returned for unknown names.
	ErrNotFound = errors.New("store not found")
)

// Info describes a registered engine without exposing it.
type Info struct {
	Name       string
	Table      string
	Dialect    schema.Dialect
	PrimaryKey string
	Columns    []string
	SoftDelete bool
	Cached     bool
}

type entry struct {
	info  Info
	db    *store.DB
	cache *cache.Manager
}

// Registry maps names to engine metadata and the backends behind them.
// The typed handle is returned only by Register; callers keep it.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	log     zerolog.Logger
}

// New returns an empty Registry.
func New(log zerolog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		log:     log.With().Str("component", "registry").Logger(),
	}
}

// Options for Register.
type Options struct {
	// Migrate creates the table before registering.
	Migrate bool

	// Engine options passed through to store.NewEngine.
	Engine []store.Option
}

// Register builds an engine for T over desc and stores it under name.
func Register[T any, K comparable](ctx context.Context, r *Registry, name string, db *store.DB, desc *schema.Descriptor, opts Options) (*store.Engine[T, K], error) {
	if name == "" {
		return nil, fmt.Errorf("register: empty name")
	}
	if desc == nil {
		return nil, fmt.Errorf("register %s: nil descriptor", name)
	}
	if opts.Migrate && db != nil {
		if err := db.EnsureTables(ctx, desc); err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
	}
	e, err := store.NewEngine[T, K](db, desc, opts.Engine...)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	r.entries[name] = &entry{
		info: Info{
			Name:       name,
			Table:      desc.TableName(),
			Dialect:    desc.Dialect(),
			PrimaryKey: desc.PrimaryKeyField(),
			Columns:    desc.Columns(),
			SoftDelete: desc.SupportsSoftDelete(),
			Cached:     e.Cache() != nil,
		},
		db:    db,
		cache: e.Cache(),
	}
	r.log.Debug().Str("name", name).Str("table", desc.TableName()).Msg("store registered")
	return e, nil
}

// Get returns the metadata of name.
func (r *Registry) Get(name string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.entries[name]
	if !ok {
		return Info{}, false
	}
	info := ent.info
	info.Columns = append([]string(nil), ent.info.Columns...)
	return info, true
}

// Unregister removes name.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(r.entries, name)
	return nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered engines.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Health is the result of checking one registered engine.
type Health struct {
	Name     string
	Database error
	Cache    error
}

// OK reports whether every check passed.
func (h Health) OK() bool { return h.Database == nil && h.Cache == nil }

// HealthCheck pings the database and cache behind every registered
// engine, in name order. Shared backends are pinged once.
func (r *Registry) HealthCheck(ctx context.Context) []Health {
	r.mu.RLock()
	ents := make([]*entry, 0, len(r.entries))
	for _, ent := range r.entries {
		ents = append(ents, ent)
	}
	r.mu.RUnlock()
	sort.Slice(ents, func(i, j int) bool { return ents[i].info.Name < ents[j].info.Name })

	dbs := make(map[*store.DB]error)
	caches := make(map[cache.Client]error)
	out := make([]Health, 0, len(ents))
	for _, ent := range ents {
		h := Health{Name: ent.info.Name}

		if err, seen := dbs[ent.db]; seen {
			h.Database = err
		} else {
			h.Database = ent.db.Ping(ctx)
			dbs[ent.db] = h.Database
		}

		if ent.cache != nil {
			client := ent.cache.Client()
			if err, seen := caches[client]; seen {
				h.Cache = err
			} else {
				h.Cache = ent.cache.Ping(ctx)
				caches[client] = h.Cache
			}
		}

		if !h.OK() {
			r.log.Warn().Str("name", h.Name).AnErr("database", h.Database).AnErr("cache", h.Cache).Msg("health check failed")
		}
		out = append(out, h)
	}
	return out
}
