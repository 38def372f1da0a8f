package boundary

import (
	"time"

	"github.com/gopcua/opcua/ua"

	"github.com/buzzfrog/Industrial-IoT/internal/domain"
)

// Calculator derives boundary values. It holds no state besides its clock,
// so one Calculator may serve any number of goroutines.
type Calculator struct {
	// Now stamps ServerTimestamp; time.Now when nil.
	Now func() time.Time
}

func (c Calculator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

// Compute derives the boundary value of ctx under mode. A nil value with a
// nil error means the neighbors the mode needs are missing.
func (c Calculator) Compute(ctx Context, mode Mode) (*Value, error) {
	switch mode {
	case ModeRaw:
		if ctx.Raw == nil {
			return nil, nil
		}
		return c.result(ctx, ctx.Raw.Value, ua.StatusOK, domain.MarkerRaw), nil

	case ModeQualityRaw:
		if ctx.Raw == nil {
			return nil, nil
		}
		return c.result(ctx, domain.QualityValue(ctx.Raw.Status), ua.StatusOK, domain.MarkerRaw), nil

	case ModeSlopedExtrapolation:
		if ctx.Prior == nil || ctx.Early == nil {
			return nil, nil
		}
		v, err := Project(ctx.Prior, ctx.Early, ctx.Target)
		if err != nil {
			return nil, err
		}
		return c.result(ctx, domain.NumberValue(v), ua.StatusUncertainDataSubNormal, domain.MarkerInterpolated), nil

	case ModeSlopedInterpolation:
		if ctx.Early == nil || ctx.Late == nil {
			return nil, nil
		}
		v, err := Project(ctx.Early, ctx.Late, ctx.Target)
		if err != nil {
			return nil, err
		}
		return c.result(ctx, domain.NumberValue(v), gapSeverity(ctx), domain.MarkerInterpolated), nil

	case ModeSteppedExtrapolation:
		if ctx.Early == nil {
			return nil, nil
		}
		return c.result(ctx, ctx.Early.Value, ua.StatusUncertainDataSubNormal, domain.MarkerInterpolated), nil

	case ModeSteppedInterpolation:
		if ctx.Early == nil {
			return nil, nil
		}
		return c.result(ctx, ctx.Early.Value, gapSeverity(ctx), domain.MarkerInterpolated), nil

	case ModeQualityExtrapolation:
		if ctx.Early == nil {
			return nil, nil
		}
		return c.result(ctx, domain.QualityValue(latestQuality(ctx)), ua.StatusUncertainDataSubNormal, domain.MarkerInterpolated), nil

	case ModeQualityInterpolation:
		if ctx.Early == nil {
			return nil, nil
		}
		return c.result(ctx, domain.QualityValue(latestQuality(ctx)), ua.StatusOK, domain.MarkerInterpolated), nil

	case ModeNone:
		return nil, nil
	}
	return nil, nil
}

func (c Calculator) result(ctx Context, v domain.Value, severity ua.StatusCode, m domain.Marker) *Value {
	return &Value{
		Value:           v,
		SourceTimestamp: ctx.Target,
		ServerTimestamp: c.now(),
		Status:          domain.SetMarker(severity, m),
	}
}

// gapSeverity downgrades interpolations that span bad data.
func gapSeverity(ctx Context) ua.StatusCode {
	if len(ctx.BadPoints) > 0 {
		return ua.StatusUncertainDataSubNormal
	}
	return ua.StatusOK
}

// latestQuality returns the status of the most recent bad point strictly
// inside (Early, Target), or Early's own status when there is none.
func latestQuality(ctx Context) ua.StatusCode {
	chosen := ctx.Early
	for i := range ctx.BadPoints {
		bp := &ctx.BadPoints[i]
		if bp.SourceTimestamp.After(chosen.SourceTimestamp) && bp.SourceTimestamp.Before(ctx.Target) {
			chosen = bp
		}
	}
	return chosen.Status
}
