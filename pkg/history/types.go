package history

import (
	"time"

	"github.com/buzzfrog/Industrial-IoT/internal/app/query"
	"github.com/buzzfrog/Industrial-IoT/internal/boundary"
	"github.com/buzzfrog/Industrial-IoT/internal/domain"
	"github.com/buzzfrog/Industrial-IoT/internal/ports"
)

// Sample is one historical value as collected or read back.
type Sample = domain.Sample

// Collector streams samples from a data source into the pipeline.
type Collector = ports.Collector

// SampleQueue is the bounded, in-memory queue between collectors and the historian.
type SampleQueue = ports.SampleQueue

// Sink persists batches of samples.
type Sink = ports.Sink

// Source reads raw history back for boundary lookups.
type Source = ports.History

// Observability emits metrics and logs about ingest and boundary work.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

type (
	// Mode selects how a boundary value is derived.
	Mode = boundary.Mode
	// BoundaryContext is the neighborhood of one slice edge.
	BoundaryContext = boundary.Context
	// BoundaryValue is a derived boundary value.
	BoundaryValue = boundary.Value
	// Calculator derives boundary values from a BoundaryContext.
	Calculator = boundary.Calculator
	// Memo computes one context's boundary at most once.
	Memo = boundary.Memo
	// Edge is the outcome at one slice edge of a series.
	Edge = query.Edge
)

const (
	ModeNone                 = boundary.ModeNone
	ModeRaw                  = boundary.ModeRaw
	ModeQualityRaw           = boundary.ModeQualityRaw
	ModeSlopedExtrapolation  = boundary.ModeSlopedExtrapolation
	ModeSlopedInterpolation  = boundary.ModeSlopedInterpolation
	ModeSteppedExtrapolation = boundary.ModeSteppedExtrapolation
	ModeSteppedInterpolation = boundary.ModeSteppedInterpolation
	ModeQualityExtrapolation = boundary.ModeQualityExtrapolation
	ModeQualityInterpolation = boundary.ModeQualityInterpolation
)

var (
	ErrDegenerateInterval = boundary.ErrDegenerateInterval
	ErrNonNumericValue    = boundary.ErrNonNumericValue
)

// ParseMode accepts mode names case-insensitively.
func ParseMode(s string) (Mode, error) { return boundary.ParseMode(s) }

// Locate builds the boundary context of target from samples sorted by
// source timestamp.
func Locate(target time.Time, samples []Sample, treatUncertainAsBad bool) BoundaryContext {
	return boundary.Locate(target, samples, treatUncertainAsBad)
}

// NewMemo pairs ctx with mode for lazy, single computation.
func NewMemo(ctx BoundaryContext, mode Mode, calc Calculator) *Memo {
	return boundary.NewMemo(ctx, mode, calc)
}
