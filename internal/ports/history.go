package ports

import (
	"context"
	"time"

	"github.com/buzzfrog/Industrial-IoT/internal/domain"
)

// History returns the raw samples of one node with source timestamps in
// [from, to], ordered by source timestamp.
type History interface {
	ReadRaw(ctx context.Context, nodeID string, from, to time.Time) ([]domain.Sample, error)
}
