package main

import (
	"fmt"
	"time"

	"github.com/gopcua/opcua/ua"

	"github.com/buzzfrog/Industrial-IoT/internal/domain"
	"github.com/buzzfrog/Industrial-IoT/pkg/history"
)

// Derives every mode's boundary at one slice edge over an in-memory series
// with a sensor failure between the last good sample and the edge.
func main() {
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	point := func(sec int, v float64, code ua.StatusCode) history.Sample {
		return history.Sample{
			NodeID:          "ns=2;s=Tank.Level",
			SourceTimestamp: base.Add(time.Duration(sec) * time.Second),
			Value:           domain.NumberValue(v),
			Status:          code,
		}
	}
	samples := []history.Sample{
		point(0, 40, ua.StatusOK),
		point(10, 42, ua.StatusOK),
		point(14, 0, ua.StatusBadSensorFailure),
		point(20, 48, ua.StatusOK),
	}

	target := base.Add(15 * time.Second)
	ctx := history.Locate(target, samples, false)

	for _, mode := range []history.Mode{
		history.ModeRaw,
		history.ModeQualityRaw,
		history.ModeSlopedExtrapolation,
		history.ModeSlopedInterpolation,
		history.ModeSteppedExtrapolation,
		history.ModeSteppedInterpolation,
		history.ModeQualityExtrapolation,
		history.ModeQualityInterpolation,
	} {
		v, err := history.NewMemo(ctx, mode, history.Calculator{}).Value()
		switch {
		case err != nil:
			fmt.Printf("%-22s error: %v\n", mode, err)
		case v == nil:
			fmt.Printf("%-22s (none)\n", mode)
		default:
			fmt.Printf("%-22s value=%v status=%s\n", mode, v.Value.Interface(), domain.FormatStatus(v.Status))
		}
	}
}
