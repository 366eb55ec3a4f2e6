package mcpmgr

import (
	"fmt"
	"sort"
)

// Registry is an immutable lookup from server id to ServerConfig. It is built
// once at startup and safe for concurrent use without locking.
type Registry struct {
	servers map[string]ServerConfig
	ids     []string
}

// NewRegistry validates configs and indexes them by id. Duplicate ids are
// rejected.
func NewRegistry(configs ...ServerConfig) (*Registry, error) {
	r := &Registry{servers: make(map[string]ServerConfig, len(configs))}
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.servers[cfg.ID]; dup {
			return nil, fmt.Errorf("mcpmgr: duplicate server id %q", cfg.ID)
		}
		r.servers[cfg.ID] = cfg.clone()
		r.ids = append(r.ids, cfg.ID)
	}
	sort.Strings(r.ids)
	return r, nil
}

// Resolve returns the configuration registered under id. Unknown ids fail with
// an error matching ErrConfigNotFound.
func (r *Registry) Resolve(id string) (ServerConfig, error) {
	if r != nil {
		if cfg, ok := r.servers[id]; ok {
			return cfg.clone(), nil
		}
	}
	return ServerConfig{}, fmt.Errorf("%w: %q", ErrConfigNotFound, id)
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	if r == nil {
		return false
	}
	_, ok := r.servers[id]
	return ok
}

// IDs returns the registered server ids in sorted order.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.ids...)
}

// Len returns the number of registered servers.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.ids)
}
