package boundary

import (
	"errors"
	"fmt"
	"time"

	"github.com/buzzfrog/Industrial-IoT/internal/domain"
)

var (
	// ErrNonNumericValue means a projection anchor holds a value that is not
	// a real number.
	ErrNonNumericValue = errors.New("boundary: non-numeric value")
	// ErrDegenerateInterval means both projection anchors share a timestamp.
	ErrDegenerateInterval = errors.New("boundary: degenerate interval")
)

// Project evaluates the straight line through p1 and p2 at t. The same
// formula extrapolates when t lies outside [p1, p2].
func Project(p1, p2 *domain.Sample, t time.Time) (float64, error) {
	t1, t2 := p1.SourceTimestamp, p2.SourceTimestamp
	if t1.Equal(t2) {
		return 0, fmt.Errorf("%w: both anchors at %s", ErrDegenerateInterval, t1.Format(time.RFC3339Nano))
	}
	v1, ok := p1.Value.Float64()
	if !ok {
		return 0, fmt.Errorf("%w: %s at %s (%s)", ErrNonNumericValue, p1.NodeID, t1.Format(time.RFC3339Nano), p1.Value.Kind())
	}
	v2, ok := p2.Value.Float64()
	if !ok {
		return 0, fmt.Errorf("%w: %s at %s (%s)", ErrNonNumericValue, p2.NodeID, t2.Format(time.RFC3339Nano), p2.Value.Kind())
	}

	// the line passes through its anchors exactly
	switch {
	case t.Equal(t1):
		return v1, nil
	case t.Equal(t2):
		return v2, nil
	}

	fraction := float64(t.Sub(t1)) / float64(t2.Sub(t1))
	return v1 + fraction*(v2-v1), nil
}
