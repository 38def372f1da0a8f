package ports

import "github.com/buzzfrog/Industrial-IoT/internal/domain"

type Collector interface {
	Start(out chan<- *domain.Sample) error
	Stop() error
}
