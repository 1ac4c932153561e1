package client

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
	"weak"

	"github.com/alphadose/haxmap"

	"github.com/c360/pulsekit/errors"
	"github.com/c360/pulsekit/metric"
)

// resourceKind tags registry entries so producers and consumers can be
// counted independently. Readers register as consumer kind.
type resourceKind int

const (
	kindProducer resourceKind = iota
	kindConsumer
)

func (k resourceKind) String() string {
	if k == kindProducer {
		return "producer"
	}
	return "consumer"
}

// closer is the slice of a session resource the registry needs at close time
type closer interface {
	Close() error
}

// registryEntry tracks one session resource without keeping it reachable.
// alive and resolve are closures over a weak pointer to the resource and
// its separately allocated closed flag; they must not capture the resource
// itself, or the entry would pin it and abandoned handles could never decay.
type registryEntry struct {
	kind    resourceKind
	key     string
	alive   func() bool
	resolve func() closer
}

// entryFor builds a registry entry for a resource. closed must be a
// separate allocation shared with the resource, not a field address, so the
// closures do not extend the resource's lifetime. The weak reference is
// taken on the resource itself, never on an intermediate cell that would
// either pin it or collapse on the next collection.
func entryFor[T any, P interface {
	*T
	closer
}](kind resourceKind, key string, impl P, closed *atomic.Bool) *registryEntry {
	ref := weak.Make((*T)(impl))
	return &registryEntry{
		kind: kind,
		key:  key,
		alive: func() bool {
			return !closed.Load() && ref.Value() != nil
		},
		resolve: func() closer {
			if closed.Load() {
				return nil
			}
			p := ref.Value()
			if p == nil {
				return nil
			}
			return P(p)
		},
	}
}

// sweepStride is how many registrations pass between amortized sweeps
const sweepStride = 64

// resourceRegistry tracks the live resources of one client session. Entries
// hold their resources weakly: an explicit Close makes the entry dead
// immediately through the closed flag, and a handle the application merely
// dropped decays once the collector reclaims it. Counts therefore converge
// to the true number of usable resources without the registry ever keeping
// anything alive.
type resourceRegistry struct {
	entries *haxmap.Map[string, *registryEntry]
	metrics *metric.Metrics
	logger  *slog.Logger

	registrations atomic.Uint64
}

func newResourceRegistry(metrics *metric.Metrics, logger *slog.Logger) *resourceRegistry {
	return &resourceRegistry{
		entries: haxmap.New[string, *registryEntry](),
		metrics: metrics,
		logger:  logger.With("component", "ResourceRegistry"),
	}
}

// register adds an entry under its key. A key that still maps to a live
// resource is a programmer error and is reported as fatal; a dead entry
// under the same key is replaced.
func (r *resourceRegistry) register(e *registryEntry) error {
	if existing, ok := r.entries.Get(e.key); ok && existing.alive() {
		return errors.WrapFatal(errors.ErrDuplicateRegistryKey,
			"ResourceRegistry", "register", "register "+e.kind.String()+" "+e.key)
	}
	r.entries.Set(e.key, e)

	if r.registrations.Add(1)%sweepStride == 0 {
		r.sweep()
	}
	r.publishCounts()
	return nil
}

// unregister drops the entry for key, typically on a failed partitioned
// create where some siblings already registered.
func (r *resourceRegistry) unregister(key string) {
	r.entries.Del(key)
	r.publishCounts()
}

// count returns the number of live entries of one kind
func (r *resourceRegistry) count(kind resourceKind) int {
	n := 0
	r.entries.ForEach(func(_ string, e *registryEntry) bool {
		if e.kind == kind && e.alive() {
			n++
		}
		return true
	})
	return n
}

// forEach visits every currently live resource. Resolution briefly pins
// each resource for the duration of fn only.
func (r *resourceRegistry) forEach(fn func(kind resourceKind, key string, res closer)) {
	r.entries.ForEach(func(_ string, e *registryEntry) bool {
		if res := e.resolve(); res != nil {
			fn(e.kind, e.key, res)
		}
		return true
	})
}

// sweep removes entries whose resources were closed or collected
func (r *resourceRegistry) sweep() {
	var dead []string
	r.entries.ForEach(func(key string, e *registryEntry) bool {
		if !e.alive() {
			dead = append(dead, key)
		}
		return true
	})
	for _, key := range dead {
		r.entries.Del(key)
	}
	if len(dead) > 0 {
		r.logger.Debug("swept dead registry entries", "count", len(dead))
	}
	r.publishCounts()
}

// run sweeps periodically until ctx is cancelled
func (r *resourceRegistry) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *resourceRegistry) publishCounts() {
	if r.metrics == nil {
		return
	}
	r.metrics.ProducersActive.Set(float64(r.count(kindProducer)))
	r.metrics.ConsumersActive.Set(float64(r.count(kindConsumer)))
}
