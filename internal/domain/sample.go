package domain

import (
	"time"

	"github.com/gopcua/opcua/ua"
)

// Sample is one raw or derived observation of an OPC UA node.
type Sample struct {
	NodeID          string        `json:"node_id"`
	SourceTimestamp time.Time     `json:"source_ts"`
	ServerTimestamp time.Time     `json:"server_ts,omitempty"`
	Seq             uint64        `json:"seq"`
	Value           Value         `json:"-"`
	Status          ua.StatusCode `json:"status"`
}

// IsBad reports whether the sample should be treated as quality-degraded.
func (s *Sample) IsBad(treatUncertainAsBad bool) bool {
	switch Severity(s.Status) {
	case SeverityGood:
		return false
	case SeverityUncertain:
		return treatUncertainAsBad
	default:
		return true
	}
}

// FromDataValue converts a DataValue received from a server into a Sample.
func FromDataValue(nodeID string, dv *ua.DataValue) Sample {
	s := Sample{
		NodeID:          nodeID,
		SourceTimestamp: dv.SourceTimestamp,
		ServerTimestamp: dv.ServerTimestamp,
		Status:          dv.Status,
	}
	if dv.Value != nil {
		s.Value = VariantValue(dv.Value)
	}
	return s
}
