// Package lineage reconstructs the causal graph of a scan from the event
// store.
//
// The store has no transitive-closure primitive, so both traversals are
// iterative frontier expansions: each round issues one bounded query for the
// current layer of hashes and the newly discovered hashes become the next
// frontier. A visited set guarantees no hash is queried twice, and the ROOT
// sentinel is never expanded, so every traversal terminates: the lineage
// graph is finite and acyclic, and each round moves strictly beyond hashes
// already seen.
package lineage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/osintlabs/scantrail/pkg/scantrail"
	"github.com/osintlabs/scantrail/pkg/scantrail/observability"
	"github.com/osintlabs/scantrail/pkg/scantrail/store"
)

// ErrEmptyInput indicates a traversal was started with no seed hashes.
// Traversal direction is meaningless without a starting set.
var ErrEmptyInput = errors.New("lineage: no seed hashes")

// Graph is the slice of the event store the resolver traverses.
// *store.Store satisfies it.
type Graph interface {
	// SourcesDirect returns the rows for the events whose hashes are in
	// the given set.
	SourcesDirect(instanceID string, hashes []string) ([]store.Row, error)

	// ChildrenDirect returns the rows for the events that cite any of the
	// given hashes as their cause.
	ChildrenDirect(instanceID string, hashes []string) ([]store.Row, error)
}

// Resolver answers lineage queries against a Graph.
type Resolver struct {
	graph   Graph
	logger  *slog.Logger
	metrics observability.MetricsRecorder
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger attaches a structured logger for traversal diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithMetrics attaches a metrics recorder for completed traversals.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// NewResolver creates a resolver over the given graph.
func NewResolver(g Graph, opts ...Option) *Resolver {
	r := &Resolver{graph: g, metrics: observability.NoopMetrics{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ancestry is the result of an ancestor traversal: every event on a path
// from the seed set to ROOT, plus the parent-to-children edge map. The ROOT
// event itself appears only as a key of Children, never in Events.
type Ancestry struct {
	// Events maps each discovered hash to its row.
	Events map[string]store.Row

	// Children maps each parent hash to the hashes it caused.
	Children map[string][]string
}

// Ancestors computes the full ancestor set of the given hashes up to ROOT.
// The context is polled between frontier rounds. A ROOT sentinel among the
// seeds contributes nothing; it has no ancestry of its own.
func (r *Resolver) Ancestors(ctx context.Context, instanceID string, hashes []string) (*Ancestry, error) {
	if len(hashes) == 0 {
		return nil, ErrEmptyInput
	}

	began := time.Now()
	anc := &Ancestry{
		Events:   make(map[string]store.Row),
		Children: make(map[string][]string),
	}
	visited := make(map[string]bool, len(hashes))
	frontier := make([]string, 0, len(hashes))
	for _, h := range hashes {
		// The ROOT sentinel has no ancestry of its own; seeding with it
		// would pull the seed row itself into the result.
		if h == scantrail.RootHash || visited[h] {
			continue
		}
		visited[h] = true
		frontier = append(frontier, h)
	}

	rounds := 0
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rounds++

		rows, err := r.graph.SourcesDirect(instanceID, frontier)
		if err != nil {
			return nil, err
		}

		var next []string
		for _, row := range rows {
			anc.Events[row.Hash] = row
			anc.addEdge(row.SourceHash, row.Hash)

			// ROOT terminates its branch; everything else feeds the
			// next frontier exactly once.
			if row.SourceHash == scantrail.RootHash {
				continue
			}
			if !visited[row.SourceHash] {
				visited[row.SourceHash] = true
				next = append(next, row.SourceHash)
			}
		}
		frontier = next
	}

	elapsed := time.Since(began)
	r.metrics.RecordTraversal(ctx, "ancestors", rounds, elapsed)
	observability.LogTraversal(r.logger, instanceID, "ancestors",
		len(hashes), len(anc.Events), float64(elapsed.Milliseconds()))
	return anc, nil
}

func (a *Ancestry) addEdge(parent, child string) {
	for _, c := range a.Children[parent] {
		if c == child {
			return
		}
	}
	a.Children[parent] = append(a.Children[parent], child)
}

// Descendants computes the full downstream set of the given hashes: every
// event that transitively cites one of them as its cause. Hashes are
// returned in discovery order, layer by layer.
func (r *Resolver) Descendants(ctx context.Context, instanceID string, hashes []string) ([]string, error) {
	if len(hashes) == 0 {
		return nil, ErrEmptyInput
	}

	began := time.Now()
	seen := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		seen[h] = true
	}

	var found []string
	frontier := hashes
	rounds := 0

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rounds++

		rows, err := r.graph.ChildrenDirect(instanceID, frontier)
		if err != nil {
			return nil, err
		}

		var next []string
		for _, row := range rows {
			if seen[row.Hash] {
				continue
			}
			seen[row.Hash] = true
			found = append(found, row.Hash)
			next = append(next, row.Hash)
		}
		frontier = next
	}

	elapsed := time.Since(began)
	r.metrics.RecordTraversal(ctx, "descendants", rounds, elapsed)
	observability.LogTraversal(r.logger, instanceID, "descendants",
		len(hashes), len(found), float64(elapsed.Milliseconds()))
	return found, nil
}
