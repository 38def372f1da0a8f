package opcua

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	pages [][]*ua.DataValue
	calls []*ua.HistoryReadValueID
	code  ua.StatusCode
	err   error
}

func (f *fakeHistory) HistoryReadRawModified(_ context.Context, nodes []*ua.HistoryReadValueID, _ *ua.ReadRawModifiedDetails) (*ua.HistoryReadResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	cp := *nodes[0]
	f.calls = append(f.calls, &cp)
	page := len(f.calls) - 1

	res := &ua.HistoryReadResult{StatusCode: f.code}
	if page < len(f.pages) {
		res.HistoryData = &ua.ExtensionObject{Value: &ua.HistoryData{DataValues: f.pages[page]}}
	}
	if page+1 < len(f.pages) {
		res.ContinuationPoint = []byte{byte(page + 1)}
	}
	return &ua.HistoryReadResponse{Results: []*ua.HistoryReadResult{res}}, nil
}

func newTestHistory(t *testing.T, reader historyReader) *History {
	t.Helper()
	h, err := NewHistory(Config{Endpoint: "opc.tcp://historian:4840"}, zerolog.Nop())
	require.NoError(t, err)
	h.reader = reader
	return h
}

func dv(ts time.Time, v float64, code ua.StatusCode) *ua.DataValue {
	return &ua.DataValue{Value: ua.MustVariant(v), Status: code, SourceTimestamp: ts}
}

func TestHistoryReadRawFollowsContinuationPoints(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	fake := &fakeHistory{pages: [][]*ua.DataValue{
		{dv(base, 1, ua.StatusOK), dv(base.Add(time.Second), 2, ua.StatusOK)},
		{dv(base.Add(2*time.Second), 3, ua.StatusBadNoData), nil},
	}}
	h := newTestHistory(t, fake)

	got, err := h.ReadRaw(context.Background(), "ns=2;s=Level", base, base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Len(t, fake.calls, 2)
	require.Empty(t, fake.calls[0].ContinuationPoint)
	require.Equal(t, []byte{1}, fake.calls[1].ContinuationPoint)

	require.Equal(t, "ns=2;s=Level", got[2].NodeID)
	require.Equal(t, ua.StatusBadNoData, got[2].Status)
	require.Equal(t, uint64(3), got[2].Seq)
}

func TestHistoryReadRawNoData(t *testing.T) {
	h := newTestHistory(t, &fakeHistory{code: ua.StatusBadNoData})
	got, err := h.ReadRaw(context.Background(), "ns=2;s=Level", time.Now(), time.Now())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestHistoryReadRawErrors(t *testing.T) {
	h := newTestHistory(t, &fakeHistory{code: ua.StatusBadHistoryOperationUnsupported})
	_, err := h.ReadRaw(context.Background(), "ns=2;s=Level", time.Now(), time.Now())
	require.ErrorIs(t, err, ua.StatusBadHistoryOperationUnsupported)

	boom := errors.New("secure channel closed")
	h = newTestHistory(t, &fakeHistory{err: boom})
	_, err = h.ReadRaw(context.Background(), "ns=2;s=Level", time.Now(), time.Now())
	require.ErrorIs(t, err, boom)

	_, err = h.ReadRaw(context.Background(), "not a node", time.Now(), time.Now())
	require.Error(t, err)
}

func TestHistoryRequiresEndpoint(t *testing.T) {
	_, err := NewHistory(Config{}, zerolog.Nop())
	require.Error(t, err)
}
