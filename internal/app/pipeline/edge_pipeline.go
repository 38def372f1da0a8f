package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/buzzfrog/Industrial-IoT/internal/adapters/observability"
	"github.com/buzzfrog/Industrial-IoT/internal/domain"
	"github.com/buzzfrog/Industrial-IoT/internal/ports"
)

var ErrQueueFull = errors.New("sample queue is full")

// RunEdgePipeline starts col and moves its samples into q until ctx is
// cancelled, then stops the collector.
func RunEdgePipeline(ctx context.Context, col ports.Collector, q ports.SampleQueue, pol ports.Policy, obs ports.Observability) error {
	ch := make(chan *domain.Sample, pol.MaxQueueLen)

	if err := col.Start(ch); err != nil {
		return err
	}

	go func() {
		defer func() {
			if err := col.Stop(); err != nil {
				obs.LogError("collector_stop_failed", err)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-ch:
				if s == nil {
					continue
				}
				enqueueWithPolicy(ctx, q, s, pol, obs)
			}
		}
	}()

	return nil
}

func enqueueWithPolicy(ctx context.Context, q ports.SampleQueue, s *domain.Sample, pol ports.Policy, obs ports.Observability) bool {
	sleep := idleSleep(pol)

	for {
		if ok := q.Enqueue(s); ok {
			return true
		}

		switch pol.OnQueueFull {
		case "block":
			select {
			case <-ctx.Done():
				return false
			case <-time.After(sleep):
			}
		case "drop":
			obs.IncCounter(observability.QueueDropped, 1)
			return false
		case "reject":
			obs.RecordRejected(s, fmt.Errorf("%w: capacity %d", ErrQueueFull, pol.MaxQueueLen))
			return false
		default:
			obs.LogError("queue_policy_invalid", fmt.Errorf("policy=%s", pol.OnQueueFull))
			return false
		}
	}
}

func idleSleep(pol ports.Policy) time.Duration {
	if pol.IdleSleep <= 0 {
		return 5 * time.Millisecond
	}
	return pol.IdleSleep
}
