package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/buzzfrog/Industrial-IoT/internal/adapters/observability"
	"github.com/buzzfrog/Industrial-IoT/internal/adapters/queue"
	"github.com/buzzfrog/Industrial-IoT/internal/domain"
	"github.com/buzzfrog/Industrial-IoT/internal/ports"
)

func TestEnqueueWithPolicyBlock(t *testing.T) {
	q := &mockQueue{}
	q.failures = 1

	pol := ports.Policy{
		OnQueueFull: "block",
		IdleSleep:   time.Millisecond,
	}
	obs := &mockObs{}

	if ok := enqueueWithPolicy(context.Background(), q, &domain.Sample{}, pol, obs); !ok {
		t.Fatalf("expected enqueue to eventually succeed")
	}
	if q.calls != 2 {
		t.Fatalf("expected two enqueue attempts, got %d", q.calls)
	}
}

func TestEnqueueWithPolicyBlockHonoursCancel(t *testing.T) {
	q := &mockQueue{failAlways: true}
	pol := ports.Policy{OnQueueFull: "block", IdleSleep: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if ok := enqueueWithPolicy(ctx, q, &domain.Sample{}, pol, &mockObs{}); ok {
		t.Fatalf("expected cancelled enqueue to give up")
	}
}

func TestEnqueueWithPolicyDrop(t *testing.T) {
	q := &mockQueue{failAlways: true}
	pol := ports.Policy{
		OnQueueFull: "drop",
	}
	obs := &mockObs{}

	if ok := enqueueWithPolicy(context.Background(), q, &domain.Sample{}, pol, obs); ok {
		t.Fatalf("expected enqueueWithPolicy to fail")
	}
	if obs.counter(observability.QueueDropped) != 1 {
		t.Fatalf("expected drop to be counted")
	}
	if len(obs.rejected) != 0 {
		t.Fatalf("drop must not record a rejection")
	}
}

func TestEnqueueWithPolicyReject(t *testing.T) {
	q := &mockQueue{failAlways: true}
	pol := ports.Policy{OnQueueFull: "reject", MaxQueueLen: 4}
	obs := &mockObs{}

	if ok := enqueueWithPolicy(context.Background(), q, &domain.Sample{NodeID: "n"}, pol, obs); ok {
		t.Fatalf("expected enqueueWithPolicy to fail")
	}
	if len(obs.rejected) != 1 || !errors.Is(obs.rejected[0], ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull rejection, got %v", obs.rejected)
	}
}

func TestRunEdgePipelineStopsCollector(t *testing.T) {
	col := &mockCollector{samples: []*domain.Sample{
		{NodeID: "a", SourceTimestamp: time.Unix(1, 0)},
		{NodeID: "b", SourceTimestamp: time.Unix(2, 0)},
	}}
	q := queue.NewMemQueue(8)
	ctx, cancel := context.WithCancel(context.Background())

	if err := RunEdgePipeline(ctx, col, q, ports.Policy{MaxQueueLen: 8, OnQueueFull: "block"}, &mockObs{}); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for q.Len() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 queued samples, got %d", q.Len())
	}

	cancel()
	deadline = time.Now().Add(time.Second)
	for !col.stopped.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !col.stopped.Load() {
		t.Fatalf("collector was not stopped")
	}
}

func TestRunEdgePipelineStartError(t *testing.T) {
	boom := errors.New("no route to plc")
	err := RunEdgePipeline(context.Background(), &mockCollector{startErr: boom}, queue.NewMemQueue(1), ports.Policy{}, &mockObs{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected start error, got %v", err)
	}
}

type mockCollector struct {
	samples  []*domain.Sample
	startErr error
	stopped  atomic.Bool
}

func (m *mockCollector) Start(out chan<- *domain.Sample) error {
	if m.startErr != nil {
		return m.startErr
	}
	go func() {
		for _, s := range m.samples {
			out <- s
		}
	}()
	return nil
}

func (m *mockCollector) Stop() error {
	m.stopped.Store(true)
	return nil
}

type mockQueue struct {
	failures   int32
	failAlways bool
	calls      int
}

func (m *mockQueue) Enqueue(*domain.Sample) bool {
	m.calls++
	if m.failAlways {
		return false
	}
	if atomic.LoadInt32(&m.failures) > 0 {
		atomic.AddInt32(&m.failures, -1)
		return false
	}
	return true
}

func (m *mockQueue) DequeueBatch(int) []*domain.Sample { return nil }
func (m *mockQueue) Len() int                          { return 0 }

type mockObs struct {
	mu        sync.Mutex
	errors    []error
	criticals []string
	rejected  []error
	counters  map[string]float64
}

func (m *mockObs) LogInfo(string, ...ports.Field) {}
func (m *mockObs) LogError(_ string, err error, _ ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, err)
}
func (m *mockObs) LogCritical(msg string, _ error, _ ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.criticals = append(m.criticals, msg)
}
func (m *mockObs) IncCounter(name string, v float64, _ ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[string]float64{}
	}
	m.counters[name] += v
}
func (m *mockObs) ObserveLatency(string, float64) {}
func (m *mockObs) SetGauge(string, float64)       {}
func (m *mockObs) RecordRejected(_ *domain.Sample, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected = append(m.rejected, err)
}

func (m *mockObs) counter(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}
