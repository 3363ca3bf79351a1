package producer_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osintlabs/scantrail/pkg/scantrail"
	"github.com/osintlabs/scantrail/pkg/scantrail/observability"
	"github.com/osintlabs/scantrail/pkg/scantrail/producer"
	"github.com/osintlabs/scantrail/pkg/scantrail/store"
)

// capturedRecord is one log line seen by captureHandler.
type capturedRecord struct {
	Level slog.Level
	Msg   string
	Attrs map[string]string
}

// captureState is the record sink shared by a captureHandler and every
// handler derived from it via WithAttrs.
type captureState struct {
	mu      sync.Mutex
	records []capturedRecord
}

// captureHandler collects slog records for assertions.
type captureHandler struct {
	state *captureState
	attrs []slog.Attr
}

func newCaptureHandler() *captureHandler {
	return &captureHandler{state: &captureState{}}
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	rec := capturedRecord{Level: r.Level, Msg: r.Message, Attrs: make(map[string]string)}
	for _, a := range h.attrs {
		rec.Attrs[a.Key] = a.Value.String()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.Attrs[a.Key] = a.Value.String()
		return true
	})
	h.state.mu.Lock()
	h.state.records = append(h.state.records, rec)
	h.state.mu.Unlock()
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &captureHandler{
		state: h.state,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

func (h *captureHandler) find(msg string) (capturedRecord, bool) {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	for _, rec := range h.state.records {
		if rec.Msg == msg {
			return rec, true
		}
	}
	return capturedRecord{}, false
}

// recordingMetrics counts recorder calls made by the dispatcher.
type recordingMetrics struct {
	mu             sync.Mutex
	storedTypes    []string
	producerErrors []string
	traversals     []string
}

func (m *recordingMetrics) RecordEventStored(_ context.Context, eventType string, _ time.Duration, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storedTypes = append(m.storedTypes, eventType)
}

func (m *recordingMetrics) RecordTraversal(_ context.Context, direction string, _ int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.traversals = append(m.traversals, direction)
}

func (m *recordingMetrics) RecordProducerError(_ context.Context, module string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.producerErrors = append(m.producerErrors, module)
}

var _ observability.MetricsRecorder = (*recordingMetrics)(nil)

func newDispatchStore(t *testing.T) (*store.Store, *scantrail.Event) {
	t.Helper()

	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.CreateInstance("scan-1", "dispatch", "example.com"))
	root := scantrail.NewRoot("example.com")
	require.NoError(t, s.StoreEvent("scan-1", root, 0))
	return s, root
}

// domainExtractor emits a DOMAIN_NAME for every INTERNET_NAME it sees.
type domainExtractor struct {
	*producer.Base
}

func (p *domainExtractor) Name() string             { return "mod_domain" }
func (p *domainExtractor) WatchedEvents() []string  { return []string{"INTERNET_NAME"} }
func (p *domainExtractor) ProducedEvents() []string { return []string{"DOMAIN_NAME"} }

func (p *domainExtractor) HandleEvent(_ context.Context, evt *scantrail.Event) ([]*scantrail.Event, error) {
	if p.Seen(evt.Data) {
		return nil, nil
	}
	return []*scantrail.Event{
		scantrail.New("DOMAIN_NAME", "example.com", p.Name(), evt),
	}, nil
}

// failing always errors without emitting.
type failing struct{}

func (failing) Name() string             { return "mod_broken" }
func (failing) WatchedEvents() []string  { return []string{"IP_ADDRESS"} }
func (failing) ProducedEvents() []string { return nil }

func (failing) HandleEvent(context.Context, *scantrail.Event) ([]*scantrail.Event, error) {
	return nil, errors.New("api quota exhausted")
}

func TestDispatch_ChainPersistsCausesFirst(t *testing.T) {
	s, root := newDispatchStore(t)

	reg := producer.NewRegistry()
	reg.Register(newReverseDNS(map[string]string{"1.2.3.4": "www.example.com"}))
	reg.Register(&domainExtractor{Base: producer.NewBase()})

	d := producer.NewDispatcher(s, reg, "scan-1")

	evt := scantrail.New("IP_ADDRESS", "1.2.3.4", "mod_dns", root)
	require.NoError(t, s.StoreEvent("scan-1", evt, 0))
	require.NoError(t, d.Dispatch(context.Background(), evt))

	// The two-hop chain landed: IP -> internet name -> domain name, each row
	// citing an already-stored cause.
	names, err := s.Events("scan-1", "INTERNET_NAME", false)
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, "www.example.com", names[0].Data)
	assert.Equal(t, evt.Hash, names[0].SourceHash)

	domains, err := s.Events("scan-1", "DOMAIN_NAME", false)
	require.NoError(t, err)
	require.Len(t, domains, 1)
	assert.Equal(t, names[0].Hash, domains[0].SourceHash)
}

func TestDispatch_ProducerErrorLoggedNotFatal(t *testing.T) {
	s, root := newDispatchStore(t)

	reg := producer.NewRegistry()
	reg.Register(failing{})
	reg.Register(newReverseDNS(map[string]string{"1.2.3.4": "www.example.com"}))

	d := producer.NewDispatcher(s, reg, "scan-1")

	evt := scantrail.New("IP_ADDRESS", "1.2.3.4", "mod_dns", root)
	require.NoError(t, s.StoreEvent("scan-1", evt, 0))
	require.NoError(t, d.Dispatch(context.Background(), evt))

	// The healthy producer still ran.
	names, err := s.Events("scan-1", "INTERNET_NAME", false)
	require.NoError(t, err)
	assert.Len(t, names, 1)

	// The failure landed in the scan log under the producer's name.
	errs, err := s.Errors("scan-1", 0)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "mod_broken", errs[0].Component)
	assert.Contains(t, errs[0].Message, "api quota exhausted")
}

func TestDispatch_Truncation(t *testing.T) {
	s, root := newDispatchStore(t)

	reg := producer.NewRegistry()
	reg.Register(newReverseDNS(map[string]string{"1.2.3.4": "www.example.com"}))

	d := producer.NewDispatcher(s, reg, "scan-1", producer.WithTruncate(3))

	evt := scantrail.New("IP_ADDRESS", "1.2.3.4", "mod_dns", root)
	require.NoError(t, s.StoreEvent("scan-1", evt, 0))
	require.NoError(t, d.Dispatch(context.Background(), evt))

	names, err := s.Events("scan-1", "INTERNET_NAME", false)
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, "www", names[0].Data)
}

func TestDispatch_CancelledContext(t *testing.T) {
	s, root := newDispatchStore(t)

	reg := producer.NewRegistry()
	reg.Register(newReverseDNS(nil))

	d := producer.NewDispatcher(s, reg, "scan-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	evt := scantrail.New("IP_ADDRESS", "1.2.3.4", "mod_dns", root)
	require.NoError(t, s.StoreEvent("scan-1", evt, 0))
	assert.ErrorIs(t, d.Dispatch(ctx, evt), context.Canceled)
}

func TestDispatchAll_Sequential(t *testing.T) {
	s, root := newDispatchStore(t)

	reg := producer.NewRegistry()
	reg.Register(newReverseDNS(map[string]string{
		"1.2.3.4": "www.example.com",
		"1.2.3.5": "mail.example.com",
	}))

	d := producer.NewDispatcher(s, reg, "scan-1")

	batch := make([]*scantrail.Event, 0, 2)
	for _, ip := range []string{"1.2.3.4", "1.2.3.5"} {
		evt := scantrail.New("IP_ADDRESS", ip, "mod_dns", root)
		require.NoError(t, s.StoreEvent("scan-1", evt, 0))
		batch = append(batch, evt)
	}
	require.NoError(t, d.DispatchAll(context.Background(), batch))

	names, err := s.Events("scan-1", "INTERNET_NAME", false)
	require.NoError(t, err)
	assert.Len(t, names, 2)
}

func TestDispatch_RecordsStoredEvents(t *testing.T) {
	s, root := newDispatchStore(t)

	reg := producer.NewRegistry()
	reg.Register(newReverseDNS(map[string]string{"1.2.3.4": "www.example.com"}))

	h := newCaptureHandler()
	metrics := &recordingMetrics{}
	d := producer.NewDispatcher(s, reg, "scan-1",
		producer.WithLogger(slog.New(h)),
		producer.WithMetrics(metrics),
	)

	evt := scantrail.New("IP_ADDRESS", "1.2.3.4", "mod_dns", root)
	require.NoError(t, s.StoreEvent("scan-1", evt, 0))
	require.NoError(t, d.Dispatch(context.Background(), evt))

	// The write was counted with its event type.
	assert.Equal(t, []string{"INTERNET_NAME"}, metrics.storedTypes)

	// The stored emission was logged with scan and producer context.
	rec, ok := h.find("event stored")
	require.True(t, ok)
	assert.Equal(t, slog.LevelDebug, rec.Level)
	assert.Equal(t, "scan-1", rec.Attrs["scan_id"])
	assert.Equal(t, "mod_rdns", rec.Attrs["module"])
	assert.Equal(t, "INTERNET_NAME", rec.Attrs["type"])
}

func TestDispatch_RecordsProducerFailure(t *testing.T) {
	s, root := newDispatchStore(t)

	reg := producer.NewRegistry()
	reg.Register(failing{})

	h := newCaptureHandler()
	metrics := &recordingMetrics{}
	d := producer.NewDispatcher(s, reg, "scan-1",
		producer.WithLogger(slog.New(h)),
		producer.WithMetrics(metrics),
	)

	evt := scantrail.New("IP_ADDRESS", "1.2.3.4", "mod_dns", root)
	require.NoError(t, s.StoreEvent("scan-1", evt, 0))
	require.NoError(t, d.Dispatch(context.Background(), evt))

	assert.Equal(t, []string{"mod_broken"}, metrics.producerErrors)

	rec, ok := h.find("producer failed")
	require.True(t, ok)
	assert.Equal(t, slog.LevelError, rec.Level)
	assert.Equal(t, "mod_broken", rec.Attrs["module"])
	assert.Equal(t, "IP_ADDRESS", rec.Attrs["type"])

	// A producer without a latch never triggers the latched warning.
	_, ok = h.find("producer latched into error state")
	assert.False(t, ok)
}

func TestDispatch_LogsLatchedProducer(t *testing.T) {
	s, root := newDispatchStore(t)

	p := newReverseDNS(nil)
	p.failOn = "1.2.3.4"
	reg := producer.NewRegistry()
	reg.Register(p)

	h := newCaptureHandler()
	d := producer.NewDispatcher(s, reg, "scan-1", producer.WithLogger(slog.New(h)))

	evt := scantrail.New("IP_ADDRESS", "1.2.3.4", "mod_dns", root)
	require.NoError(t, s.StoreEvent("scan-1", evt, 0))
	require.NoError(t, d.Dispatch(context.Background(), evt))

	rec, ok := h.find("producer latched into error state")
	require.True(t, ok)
	assert.Equal(t, slog.LevelWarn, rec.Level)
	assert.Equal(t, "scan-1", rec.Attrs["scan_id"])
	assert.Equal(t, "mod_rdns", rec.Attrs["module"])
	assert.Equal(t, "resolver unreachable", rec.Attrs["error"])
}

func TestDispatchConcurrent_AllDelivered(t *testing.T) {
	s, root := newDispatchStore(t)

	table := make(map[string]string, 20)
	batch := make([]*scantrail.Event, 0, 20)
	for i := 0; i < 20; i++ {
		ip := fmt.Sprintf("10.0.0.%d", i)
		table[ip] = fmt.Sprintf("host%d.example.com", i)
		evt := scantrail.New("IP_ADDRESS", ip, "mod_dns", root)
		require.NoError(t, s.StoreEvent("scan-1", evt, 0))
		batch = append(batch, evt)
	}

	reg := producer.NewRegistry()
	reg.Register(newReverseDNS(table))

	d := producer.NewDispatcher(s, reg, "scan-1")
	require.NoError(t, d.DispatchConcurrent(context.Background(), batch, 4))

	names, err := s.Events("scan-1", "INTERNET_NAME", false)
	require.NoError(t, err)
	assert.Len(t, names, 20)
}
