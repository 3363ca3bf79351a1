package benchmarks

import (
	"context"
	"fmt"
	"testing"

	"github.com/osintlabs/scantrail/pkg/scantrail"
	"github.com/osintlabs/scantrail/pkg/scantrail/lineage"
	"github.com/osintlabs/scantrail/pkg/scantrail/store"
)

// seedChain stores a linear chain of depth events and returns the leaf.
func seedChain(b *testing.B, s *store.Store, root *scantrail.Event, depth int) *scantrail.Event {
	b.Helper()

	prev := root
	for i := 0; i < depth; i++ {
		evt := scantrail.New("INTERNET_NAME", fmt.Sprintf("host%d.example.com", i), "mod_rdns", prev)
		if err := s.StoreEvent("bench-scan", evt, 0); err != nil {
			b.Fatal(err)
		}
		prev = evt
	}
	return prev
}

func benchmarkAncestors(b *testing.B, depth int) {
	s, root := newBenchStore(b)
	leaf := seedChain(b, s, root, depth)
	r := lineage.NewResolver(s)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.Ancestors(context.Background(), "bench-scan", []string{leaf.Hash}); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkAncestors_10 measures an ancestor walk over a 10-deep chain.
func BenchmarkAncestors_10(b *testing.B) { benchmarkAncestors(b, 10) }

// BenchmarkAncestors_100 measures an ancestor walk over a 100-deep chain.
func BenchmarkAncestors_100(b *testing.B) { benchmarkAncestors(b, 100) }

func benchmarkDescendants(b *testing.B, depth int) {
	s, root := newBenchStore(b)
	first := scantrail.New("DOMAIN_NAME", "example.com", "mod_seed", root)
	if err := s.StoreEvent("bench-scan", first, 0); err != nil {
		b.Fatal(err)
	}
	seedChainFrom(b, s, first, depth)
	r := lineage.NewResolver(s)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.Descendants(context.Background(), "bench-scan", []string{first.Hash}); err != nil {
			b.Fatal(err)
		}
	}
}

func seedChainFrom(b *testing.B, s *store.Store, from *scantrail.Event, depth int) {
	b.Helper()

	prev := from
	for i := 0; i < depth; i++ {
		evt := scantrail.New("INTERNET_NAME", fmt.Sprintf("deep%d.example.com", i), "mod_rdns", prev)
		if err := s.StoreEvent("bench-scan", evt, 0); err != nil {
			b.Fatal(err)
		}
		prev = evt
	}
}

// BenchmarkDescendants_10 measures a downstream walk over a 10-deep chain.
func BenchmarkDescendants_10(b *testing.B) { benchmarkDescendants(b, 10) }

// BenchmarkDescendants_100 measures a downstream walk over a 100-deep chain.
func BenchmarkDescendants_100(b *testing.B) { benchmarkDescendants(b, 100) }
