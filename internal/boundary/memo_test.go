package boundary

import (
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/require"

	"github.com/buzzfrog/Industrial-IoT/internal/domain"
)

func TestMemoComputesOnce(t *testing.T) {
	calls := 0
	c := Calculator{Now: func() time.Time {
		calls++
		return stamped.Add(time.Duration(calls) * time.Second)
	}}

	m := NewMemo(Context{Target: at(5), Early: num(0, 10), Late: num(10, 20)}, ModeSlopedInterpolation, c)
	first, err := m.Value()
	require.NoError(t, err)
	second, err := m.Value()
	require.NoError(t, err)

	require.Same(t, first, second)
	require.Equal(t, 1, calls)
	require.Equal(t, ModeSlopedInterpolation, m.Mode())
}

func TestMemoCachesAbsenceAndErrors(t *testing.T) {
	calls := 0
	c := Calculator{Now: func() time.Time { calls++; return stamped }}

	absent := NewMemo(Context{Target: at(5)}, ModeRaw, c)
	for i := 0; i < 2; i++ {
		v, err := absent.Value()
		require.NoError(t, err)
		require.Nil(t, v)
	}

	failing := NewMemo(Context{Target: at(5), Early: num(0, 1), Late: num(0, 2)}, ModeSlopedInterpolation, c)
	_, err1 := failing.Value()
	_, err2 := failing.Value()
	require.ErrorIs(t, err1, ErrDegenerateInterval)
	require.Equal(t, err1, err2)
	require.Zero(t, calls)
}

func TestMemoSnapshotsContext(t *testing.T) {
	early := num(0, 7)
	gap := []domain.Sample{bad(2, ua.StatusBadNoData)}
	m := NewMemo(Context{Target: at(5), Early: early, BadPoints: gap}, ModeQualityInterpolation, calc())

	early.Status = ua.StatusBadSensorFailure
	gap[0].Status = ua.StatusBadOutOfService

	v, err := m.Value()
	require.NoError(t, err)
	code, _ := v.Value.Quality()
	require.Equal(t, ua.StatusBadNoData, code)
	require.Equal(t, ua.StatusBadNoData, m.Context().BadPoints[0].Status)
}
