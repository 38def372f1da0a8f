package historian

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gopcua/opcua/ua"

	"github.com/buzzfrog/Industrial-IoT/internal/domain"
	"github.com/buzzfrog/Industrial-IoT/internal/ports"
)

// Timescale stores raw samples in a (hyper)table and serves raw history
// windows back to the boundary query service.
//
//	CREATE TABLE samples (
//	    node_id   TEXT        NOT NULL,
//	    source_ts TIMESTAMPTZ NOT NULL,
//	    server_ts TIMESTAMPTZ,
//	    seq       BIGINT      NOT NULL,
//	    value     JSONB,
//	    status    BIGINT      NOT NULL,
//	    UNIQUE (node_id, source_ts, seq)
//	);
type Timescale struct {
	db        *sql.DB
	tableName string
}

func NewTimescale(db *sql.DB, table string) *Timescale {
	return &Timescale{db: db, tableName: table}
}

func (t *Timescale) Name() string { return "timescaledb" }

func (t *Timescale) WriteBatch(samples []*domain.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.tableName)
	b.WriteString(" (node_id, source_ts, server_ts, seq, value, status) VALUES ")

	args := make([]any, 0, len(samples)*6)
	for i, s := range samples {
		if i > 0 {
			b.WriteString(",")
		}
		n := len(args)
		fmt.Fprintf(&b, "($%d,$%d,$%d,$%d,$%d,$%d)", n+1, n+2, n+3, n+4, n+5, n+6)

		val, err := encodeValue(s.Value)
		if err != nil {
			return fmt.Errorf("encode value of %s at %s: %w", s.NodeID, s.SourceTimestamp.Format(time.RFC3339Nano), err)
		}
		var serverTS any
		if !s.ServerTimestamp.IsZero() {
			serverTS = s.ServerTimestamp
		}
		args = append(args,
			s.NodeID,
			s.SourceTimestamp,
			serverTS,
			int64(s.Seq),
			val,
			int64(s.Status),
		)
	}

	b.WriteString(" ON CONFLICT (node_id, source_ts, seq) DO NOTHING")

	_, err := t.db.Exec(b.String(), args...)
	return err
}

func (t *Timescale) ReadRaw(ctx context.Context, nodeID string, from, to time.Time) ([]domain.Sample, error) {
	query := "SELECT source_ts, server_ts, seq, value, status FROM " + t.tableName +
		" WHERE node_id = $1 AND source_ts >= $2 AND source_ts <= $3 ORDER BY source_ts, seq"

	rows, err := t.db.QueryContext(ctx, query, nodeID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query raw history: %w", err)
	}
	defer rows.Close()

	var out []domain.Sample
	for rows.Next() {
		var (
			s        = domain.Sample{NodeID: nodeID}
			serverTS sql.NullTime
			seq      int64
			raw      []byte
			status   int64
		)
		if err := rows.Scan(&s.SourceTimestamp, &serverTS, &seq, &raw, &status); err != nil {
			return nil, fmt.Errorf("scan raw history: %w", err)
		}
		if serverTS.Valid {
			s.ServerTimestamp = serverTS.Time
		}
		s.Seq = uint64(seq)
		s.Status = ua.StatusCode(uint32(status))
		s.Value = decodeValue(raw)
		out = append(out, s)
	}
	return out, rows.Err()
}

// storedValue is the JSONB form of a variant. The type id keeps integer
// widths on the way back; 64-bit integers and non-finite floats are stored
// as decimal text since JSON numbers cannot carry them.
type storedValue struct {
	Type  uint8           `json:"t"`
	Value json.RawMessage `json:"v"`
}

func encodeValue(v domain.Value) ([]byte, error) {
	variant := v.Variant()
	if v.Kind() != domain.ValueVariant || variant == nil {
		return nil, nil
	}

	typ := variant.Type()
	var payload any
	switch x := v.Interface().(type) {
	case float64:
		payload = floatPayload(x, 64)
	case float32:
		payload = floatPayload(float64(x), 32)
	case int64:
		payload = strconv.FormatInt(x, 10)
	case uint64:
		payload = strconv.FormatUint(x, 10)
	default:
		payload = x
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		// no JSON form, e.g. an array holding NaN; keep the text
		typ = ua.TypeIDString
		if raw, err = json.Marshal(fmt.Sprint(payload)); err != nil {
			return nil, fmt.Errorf("%w: %v", ports.ErrUnwritable, err)
		}
	}
	out, err := json.Marshal(storedValue{Type: uint8(typ), Value: raw})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrUnwritable, err)
	}
	return out, nil
}

func floatPayload(f float64, bits int) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, bits)
	}
	if bits == 32 {
		return float32(f)
	}
	return f
}

func decodeValue(raw []byte) domain.Value {
	if len(raw) == 0 {
		return domain.Value{}
	}
	var stored storedValue
	if err := json.Unmarshal(raw, &stored); err == nil && len(stored.Value) > 0 {
		if x, ok := decodeTyped(ua.TypeID(stored.Type), stored.Value); ok {
			if variant, err := ua.NewVariant(x); err == nil {
				return domain.VariantValue(variant)
			}
		}
		text := string(stored.Value)
		_ = json.Unmarshal(stored.Value, &text)
		return domain.VariantValue(ua.MustVariant(text))
	}
	return decodeUntyped(raw)
}

// decodeTyped restores the Go type the variant was written with. Types
// without a scalar mapping report false.
func decodeTyped(typ ua.TypeID, raw json.RawMessage) (any, bool) {
	var text string
	textErr := json.Unmarshal(raw, &text)

	switch typ {
	case ua.TypeIDBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, false
		}
		return b, true
	case ua.TypeIDString:
		return text, textErr == nil
	case ua.TypeIDDateTime:
		var ts time.Time
		if err := json.Unmarshal(raw, &ts); err != nil {
			return nil, false
		}
		return ts, true
	case ua.TypeIDFloat, ua.TypeIDDouble:
		if textErr != nil {
			text = string(raw)
		}
		bits := 64
		if typ == ua.TypeIDFloat {
			bits = 32
		}
		f, err := strconv.ParseFloat(text, bits)
		if err != nil {
			return nil, false
		}
		if bits == 32 {
			return float32(f), true
		}
		return f, true
	case ua.TypeIDSByte, ua.TypeIDInt16, ua.TypeIDInt32, ua.TypeIDInt64:
		if textErr != nil {
			text = string(raw)
		}
		n, err := strconv.ParseInt(text, 10, intBits(typ))
		if err != nil {
			return nil, false
		}
		switch typ {
		case ua.TypeIDSByte:
			return int8(n), true
		case ua.TypeIDInt16:
			return int16(n), true
		case ua.TypeIDInt32:
			return int32(n), true
		}
		return n, true
	case ua.TypeIDByte, ua.TypeIDUint16, ua.TypeIDUint32, ua.TypeIDUint64, ua.TypeIDStatusCode:
		if textErr != nil {
			text = string(raw)
		}
		n, err := strconv.ParseUint(text, 10, intBits(typ))
		if err != nil {
			return nil, false
		}
		switch typ {
		case ua.TypeIDByte:
			return uint8(n), true
		case ua.TypeIDUint16:
			return uint16(n), true
		case ua.TypeIDUint32:
			return uint32(n), true
		case ua.TypeIDStatusCode:
			return ua.StatusCode(n), true
		}
		return n, true
	}
	return nil, false
}

func intBits(typ ua.TypeID) int {
	switch typ {
	case ua.TypeIDSByte, ua.TypeIDByte:
		return 8
	case ua.TypeIDInt16, ua.TypeIDUint16:
		return 16
	case ua.TypeIDInt32, ua.TypeIDUint32, ua.TypeIDStatusCode:
		return 32
	}
	return 64
}

// decodeUntyped reads rows written as bare JSON, before values carried
// their type id. Numbers come back as Double.
func decodeUntyped(raw []byte) domain.Value {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded == nil {
		return domain.Value{}
	}
	variant, err := ua.NewVariant(decoded)
	if err != nil {
		// arrays and objects are kept as their JSON text
		return domain.VariantValue(ua.MustVariant(string(raw)))
	}
	return domain.VariantValue(variant)
}

var (
	_ ports.Sink    = (*Timescale)(nil)
	_ ports.History = (*Timescale)(nil)
)
