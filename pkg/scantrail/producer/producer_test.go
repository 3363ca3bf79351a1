package producer_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osintlabs/scantrail/pkg/scantrail"
	"github.com/osintlabs/scantrail/pkg/scantrail/producer"
)

func TestDedup_SkipsRepeatedPayloads(t *testing.T) {
	d := producer.NewDedup(0)

	assert.False(t, d.Seen("1.2.3.4"))
	assert.True(t, d.Seen("1.2.3.4"))
	assert.False(t, d.Seen("1.2.3.5"))
	assert.Equal(t, 2, d.Len())
}

func TestDedup_Bounded(t *testing.T) {
	d := producer.NewDedup(2)

	assert.False(t, d.Seen("a"))
	assert.False(t, d.Seen("b"))
	assert.False(t, d.Seen("c"), "c evicts a")
	assert.False(t, d.Seen("a"), "evicted payloads are processed again")
	assert.Equal(t, 2, d.Len())
}

func TestLatch_OneWay(t *testing.T) {
	var l producer.Latch

	assert.False(t, l.Tripped())
	l.Trip()
	assert.True(t, l.Tripped())
	l.Trip()
	assert.True(t, l.Tripped(), "no reset")
}

func TestBase_Contract(t *testing.T) {
	b := producer.NewBase()

	assert.False(t, b.Seen("payload"))
	assert.True(t, b.Seen("payload"))
	assert.False(t, b.Failed())
	b.Fail()
	assert.True(t, b.Failed())
}

// reverseDNS resolves IP_ADDRESS events to INTERNET_NAME events from a fixed
// table, honoring the dedup cache and error latch the way a networked
// producer would.
type reverseDNS struct {
	*producer.Base
	table  map[string]string
	failOn string

	mu      sync.Mutex
	handled []string
}

func newReverseDNS(table map[string]string) *reverseDNS {
	return &reverseDNS{Base: producer.NewBase(), table: table}
}

func (p *reverseDNS) Name() string             { return "mod_rdns" }
func (p *reverseDNS) WatchedEvents() []string  { return []string{"IP_ADDRESS"} }
func (p *reverseDNS) ProducedEvents() []string { return []string{"INTERNET_NAME"} }

func (p *reverseDNS) HandleEvent(_ context.Context, evt *scantrail.Event) ([]*scantrail.Event, error) {
	if p.Failed() {
		return nil, nil
	}
	if p.Seen(evt.Data) {
		return nil, nil
	}
	p.mu.Lock()
	p.handled = append(p.handled, evt.Data)
	p.mu.Unlock()

	if evt.Data == p.failOn {
		p.Fail()
		return nil, errors.New("resolver unreachable")
	}
	name, ok := p.table[evt.Data]
	if !ok {
		return nil, nil
	}
	return []*scantrail.Event{
		scantrail.New("INTERNET_NAME", name, p.Name(), evt),
	}, nil
}

func TestProducer_DedupAcrossDeliveries(t *testing.T) {
	p := newReverseDNS(map[string]string{"1.2.3.4": "www.example.com"})
	root := scantrail.NewRoot("example.com")
	evt := scantrail.New("IP_ADDRESS", "1.2.3.4", "mod_dns", root)

	out, err := p.HandleEvent(context.Background(), evt)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "INTERNET_NAME", out[0].Type)
	assert.Equal(t, "www.example.com", out[0].Data)
	assert.Equal(t, evt.Hash, out[0].SourceHash)
	assert.Equal(t, "mod_rdns", out[0].Module)

	// The same payload from a different cause is still skipped.
	again := scantrail.New("IP_ADDRESS", "1.2.3.4", "mod_spider", root)
	out, err = p.HandleEvent(context.Background(), again)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, []string{"1.2.3.4"}, p.handled)
}

func TestProducer_LatchSilencesAfterFailure(t *testing.T) {
	p := newReverseDNS(map[string]string{"1.2.3.5": "mail.example.com"})
	p.failOn = "1.2.3.4"
	root := scantrail.NewRoot("example.com")

	_, err := p.HandleEvent(context.Background(),
		scantrail.New("IP_ADDRESS", "1.2.3.4", "mod_dns", root))
	require.Error(t, err)
	assert.True(t, p.Failed())

	// A resolvable payload after the trip produces nothing.
	out, err := p.HandleEvent(context.Background(),
		scantrail.New("IP_ADDRESS", "1.2.3.5", "mod_dns", root))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRegistry_RoutesByWatchedType(t *testing.T) {
	reg := producer.NewRegistry()
	p := newReverseDNS(nil)
	reg.Register(p)

	require.Len(t, reg.Watchers("IP_ADDRESS"), 1)
	assert.Empty(t, reg.Watchers("DOMAIN_NAME"))

	got, ok := reg.Get("mod_rdns")
	require.True(t, ok)
	assert.Same(t, producer.Producer(p), got)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_ReplaceByName(t *testing.T) {
	reg := producer.NewRegistry()
	first := newReverseDNS(nil)
	second := newReverseDNS(nil)

	reg.Register(first)
	reg.Register(second)

	assert.Equal(t, 1, reg.Len())
	watchers := reg.Watchers("IP_ADDRESS")
	require.Len(t, watchers, 1)
	assert.Same(t, producer.Producer(second), watchers[0])
}

func TestRegistry_ConcurrentLookups(t *testing.T) {
	reg := producer.NewRegistry()
	reg.Register(newReverseDNS(nil))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = reg.Watchers("IP_ADDRESS")
				_, _ = reg.Get("mod_rdns")
			}
		}()
	}
	wg.Wait()
}
