package ports

import (
	"errors"

	"github.com/buzzfrog/Industrial-IoT/internal/domain"
)

// ErrUnwritable marks a sink error that retrying the same samples cannot
// fix, such as a value the sink has no encoding for.
var ErrUnwritable = errors.New("sample cannot be written")

type Sink interface {
	WriteBatch(samples []*domain.Sample) error
	Name() string
}
