// Package registry keeps the networks the service can query. Networks live
// in memory for inference and are written through to the store when one is
// configured.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rawblock/bayesnet-engine/internal/db"
	"github.com/rawblock/bayesnet-engine/internal/network"
	"github.com/rawblock/bayesnet-engine/pkg/models"
)

// ErrNotFound is returned for an unknown network id.
var ErrNotFound = errors.New("network not found")

type entry struct {
	net       *network.Network
	createdAt time.Time
}

// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	networks map[uuid.UUID]entry
	store    db.Store
	logger   *zap.Logger
	onRemove []func(uuid.UUID)
}

// New creates a registry. store may be nil for a purely in-memory registry.
func New(store db.Store, logger *zap.Logger) *Registry {
	return &Registry{
		networks: make(map[uuid.UUID]entry),
		store:    store,
		logger:   logger.Named("registry"),
	}
}

// OnRemove registers a callback run after a network is removed or
// replaced, typically to drop cached compilations.
func (r *Registry) OnRemove(fn func(uuid.UUID)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemove = append(r.onRemove, fn)
}

// Hydrate loads every stored network. Documents that no longer build are
// logged and skipped.
func (r *Registry) Hydrate(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}
	stored, err := r.store.ListNetworks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stored networks: %w", err)
	}
	loaded := 0
	for _, s := range stored {
		id, err := uuid.Parse(s.ID)
		if err != nil {
			r.logger.Warn("skipping stored network with bad id", zap.String("id", s.ID), zap.Error(err))
			continue
		}
		n, err := network.FromStoredDocument(id, s.Document)
		if err != nil {
			r.logger.Warn("skipping stored network", zap.String("id", s.ID), zap.Error(err))
			continue
		}
		r.mu.Lock()
		r.networks[id] = entry{net: n, createdAt: s.CreatedAt}
		r.mu.Unlock()
		loaded++
	}
	r.logger.Info("hydrated networks from store", zap.Int("count", loaded))
	return loaded, nil
}

// Register adds n, persisting it first when a store is configured.
func (r *Registry) Register(ctx context.Context, n *network.Network) (models.NetworkSummary, error) {
	created := time.Now().UTC()
	if r.store != nil {
		err := r.store.SaveNetwork(ctx, db.StoredNetwork{
			ID:        n.ID().String(),
			Name:      n.Name(),
			Document:  n.Document(),
			CreatedAt: created,
		})
		if err != nil {
			return models.NetworkSummary{}, fmt.Errorf("persist network: %w", err)
		}
	}
	r.mu.Lock()
	_, replaced := r.networks[n.ID()]
	r.networks[n.ID()] = entry{net: n, createdAt: created}
	hooks := slices.Clone(r.onRemove)
	r.mu.Unlock()

	if replaced {
		for _, fn := range hooks {
			fn(n.ID())
		}
	}
	r.logger.Info("registered network",
		zap.String("name", n.Name()),
		zap.Stringer("id", n.ID()),
		zap.Int("variables", n.NumVariables()),
		zap.Bool("replaced", replaced),
	)
	return summary(n, created), nil
}

// Get returns the network with the given id.
func (r *Registry) Get(id uuid.UUID) (*network.Network, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.networks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.net, nil
}

// Lookup parses id and returns the network.
func (r *Registry) Lookup(id string) (*network.Network, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return r.Get(parsed)
}

// List returns summaries ordered by registration time.
func (r *Registry) List() []models.NetworkSummary {
	r.mu.RLock()
	out := make([]models.NetworkSummary, 0, len(r.networks))
	for _, e := range r.networks {
		out = append(out, summary(e.net, e.createdAt))
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.NetworkSummary) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// Remove deletes the network from memory and the store.
func (r *Registry) Remove(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	_, ok := r.networks[id]
	delete(r.networks, id)
	hooks := slices.Clone(r.onRemove)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	if r.store != nil {
		if err := r.store.DeleteNetwork(ctx, id.String()); err != nil && !errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("delete stored network: %w", err)
		}
	}
	for _, fn := range hooks {
		fn(id)
	}
	r.logger.Info("removed network", zap.Stringer("id", id))
	return nil
}

// Len is the number of registered networks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.networks)
}

func summary(n *network.Network, created time.Time) models.NetworkSummary {
	return models.NetworkSummary{
		ID:        n.ID().String(),
		Name:      n.Name(),
		Variables: n.NumVariables(),
		CreatedAt: created,
	}
}
