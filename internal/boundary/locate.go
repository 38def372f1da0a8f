package boundary

import (
	"sort"
	"time"

	"github.com/buzzfrog/Industrial-IoT/internal/domain"
)

// Locate builds the Context for target from raw samples ordered by source
// timestamp. Good samples become neighbors; bad samples (uncertain ones too
// when treatUncertainAsBad is set) between Early and the target become
// BadPoints. Samples are copied, so the input may be reused afterwards.
func Locate(target time.Time, samples []domain.Sample, treatUncertainAsBad bool) Context {
	ctx := Context{Target: target}

	// first index at or after target
	idx := sort.Search(len(samples), func(i int) bool {
		return !samples[i].SourceTimestamp.Before(target)
	})

	for i := idx; i < len(samples) && samples[i].SourceTimestamp.Equal(target); i++ {
		if !samples[i].IsBad(treatUncertainAsBad) {
			ctx.Raw = cloneSample(&samples[i])
			break
		}
	}

	for i := idx; i < len(samples); i++ {
		s := &samples[i]
		if s.SourceTimestamp.After(target) && !s.IsBad(treatUncertainAsBad) {
			ctx.Late = cloneSample(s)
			break
		}
	}

	earlyIdx := -1
	for i := idx - 1; i >= 0; i-- {
		if !samples[i].IsBad(treatUncertainAsBad) {
			earlyIdx = i
			ctx.Early = cloneSample(&samples[i])
			break
		}
	}

	if ctx.Early != nil {
		for i := earlyIdx - 1; i >= 0; i-- {
			s := &samples[i]
			if s.SourceTimestamp.Before(ctx.Early.SourceTimestamp) && !s.IsBad(treatUncertainAsBad) {
				ctx.Prior = cloneSample(s)
				break
			}
		}
	}

	for i := earlyIdx + 1; i < idx; i++ {
		s := samples[i]
		if ctx.Early != nil && !s.SourceTimestamp.After(ctx.Early.SourceTimestamp) {
			continue
		}
		if s.IsBad(treatUncertainAsBad) {
			ctx.BadPoints = append(ctx.BadPoints, s)
		}
	}

	return ctx
}
