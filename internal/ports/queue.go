package ports

import "github.com/buzzfrog/Industrial-IoT/internal/domain"

type SampleQueue interface {
	Enqueue(s *domain.Sample) bool
	DequeueBatch(max int) []*domain.Sample
	Len() int
}
