package boundary

import (
	"time"

	"github.com/gopcua/opcua/ua"

	"github.com/buzzfrog/Industrial-IoT/internal/domain"
)

// Context is the neighborhood of one slice edge. Early and Late bracket the
// target, Prior precedes Early, Raw sits exactly on the target. BadPoints
// holds quality-degraded samples strictly between Early and the target,
// ascending by source timestamp.
//
// A Context is treated as frozen once handed to a Memo.
type Context struct {
	Target    time.Time
	Raw       *domain.Sample
	Prior     *domain.Sample
	Early     *domain.Sample
	Late      *domain.Sample
	BadPoints []domain.Sample
}

func (c Context) clone() Context {
	out := Context{Target: c.Target}
	out.Raw = cloneSample(c.Raw)
	out.Prior = cloneSample(c.Prior)
	out.Early = cloneSample(c.Early)
	out.Late = cloneSample(c.Late)
	if len(c.BadPoints) > 0 {
		out.BadPoints = append([]domain.Sample(nil), c.BadPoints...)
	}
	return out
}

func cloneSample(s *domain.Sample) *domain.Sample {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// Value is a derived boundary value.
type Value struct {
	Value           domain.Value
	SourceTimestamp time.Time
	ServerTimestamp time.Time
	Status          ua.StatusCode
}

// DataValue renders v the way it goes onto the wire; the status code is
// copied verbatim.
func (v *Value) DataValue() *ua.DataValue {
	dv := &ua.DataValue{
		EncodingMask:    ua.DataValueStatusCode | ua.DataValueSourceTimestamp | ua.DataValueServerTimestamp,
		Status:          v.Status,
		SourceTimestamp: v.SourceTimestamp,
		ServerTimestamp: v.ServerTimestamp,
	}
	if variant := v.Value.Variant(); variant != nil {
		dv.EncodingMask |= ua.DataValueValue
		dv.Value = variant
	}
	return dv
}
