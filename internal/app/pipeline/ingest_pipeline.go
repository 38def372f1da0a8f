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

var (
	ErrMissingNode      = errors.New("sample has no node id")
	ErrMissingTimestamp = errors.New("sample has no source timestamp")
	ErrWriteExhausted   = errors.New("sink write attempts exhausted")
)

const (
	defaultWriteAttempts = 10
	maxRetryBackoff      = 30 * time.Second
)

// RunIngestPipeline drains q into sink in batches until ctx is cancelled. A
// failed write is retried with the same batch, backing off between
// attempts, until pol.MaxWriteAttempts is spent and the batch is rejected.
// Samples the sink reports as ports.ErrUnwritable are rejected one by one.
// On cancellation whatever is still queued gets one last write attempt.
func RunIngestPipeline(ctx context.Context, q ports.SampleQueue, sink ports.Sink, pol ports.Policy, obs ports.Observability) {
	sleep := idleSleep(pol)
	var (
		pending  []*domain.Sample
		attempts int
	)

	for {
		if len(pending) == 0 {
			pending = accept(q.DequeueBatch(pol.MaxBatchSize), obs)
			attempts = 0
			obs.SetGauge(observability.QueueLength, float64(q.Len()))
		}

		wait := sleep
		if len(pending) > 0 {
			var err error
			if pending, err = drain(sink, pending, obs); err == nil {
				continue
			}
			attempts++
			if attempts >= writeAttempts(pol) {
				obs.LogError("batch_rejected", err,
					ports.Field{Key: "sink", Value: sink.Name()},
					ports.Field{Key: "batch", Value: len(pending)},
					ports.Field{Key: "attempts", Value: attempts})
				reject(pending, fmt.Errorf("%w after %d attempts: %w", ErrWriteExhausted, attempts, err), obs)
				pending = nil
				continue
			}
			wait = retryBackoff(pol, attempts)
		}

		select {
		case <-ctx.Done():
			flush(q, sink, pending, pol, obs)
			return
		case <-time.After(wait):
		}
	}
}

func flush(q ports.SampleQueue, sink ports.Sink, pending []*domain.Sample, pol ports.Policy, obs ports.Observability) {
	for {
		if len(pending) == 0 {
			pending = accept(q.DequeueBatch(pol.MaxBatchSize), obs)
		}
		if len(pending) == 0 {
			return
		}
		var err error
		if pending, err = drain(sink, pending, obs); err != nil {
			obs.LogCritical("flush_abandoned", err,
				ports.Field{Key: "sink", Value: sink.Name()},
				ports.Field{Key: "queued", Value: len(pending) + q.Len()})
			return
		}
	}
}

// drain writes batch and returns what is left to retry. When the sink
// refuses the batch as unwritable the samples are written one at a time and
// the refused ones rejected.
func drain(sink ports.Sink, batch []*domain.Sample, obs ports.Observability) ([]*domain.Sample, error) {
	err := write(sink, batch, obs)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, ports.ErrUnwritable) {
		return batch, err
	}
	for i, s := range batch {
		err := write(sink, batch[i:i+1], obs)
		switch {
		case err == nil:
		case errors.Is(err, ports.ErrUnwritable):
			obs.RecordRejected(s, err)
		default:
			return batch[i:], err
		}
	}
	return nil, nil
}

func accept(batch []*domain.Sample, obs ports.Observability) []*domain.Sample {
	out := batch[:0]
	for _, s := range batch {
		switch {
		case s.NodeID == "":
			obs.RecordRejected(s, ErrMissingNode)
		case s.SourceTimestamp.IsZero():
			obs.RecordRejected(s, ErrMissingTimestamp)
		default:
			out = append(out, s)
		}
	}
	return out
}

func reject(batch []*domain.Sample, err error, obs ports.Observability) {
	for _, s := range batch {
		obs.RecordRejected(s, err)
	}
}

func write(sink ports.Sink, batch []*domain.Sample, obs ports.Observability) error {
	start := time.Now()
	if err := sink.WriteBatch(batch); err != nil {
		obs.LogError("sink_write_failed", err, ports.Field{Key: "sink", Value: sink.Name()}, ports.Field{Key: "batch", Value: len(batch)})
		return err
	}
	obs.ObserveLatency(observability.SinkLatency, time.Since(start).Seconds())
	obs.IncCounter(observability.SamplesIngested, float64(len(batch)))
	return nil
}

func writeAttempts(pol ports.Policy) int {
	if pol.MaxWriteAttempts > 0 {
		return pol.MaxWriteAttempts
	}
	return defaultWriteAttempts
}

// retryBackoff doubles from pol.RetryBackoff (or the idle sleep) per failed
// attempt, capped at maxRetryBackoff.
func retryBackoff(pol ports.Policy, attempts int) time.Duration {
	d := pol.RetryBackoff
	if d <= 0 {
		d = idleSleep(pol)
	}
	for i := 1; i < attempts && d < maxRetryBackoff; i++ {
		d *= 2
	}
	if d > maxRetryBackoff {
		d = maxRetryBackoff
	}
	return d
}
