// Package scatter implements the Scatter Dispatcher and Gather Collector
// (C6, C7): turning a planned set of (server, segments) assignments into
// parallel RPCs, and collecting their responses within a deadline.
package scatter

import (
	"github.com/getlantern/qbroker/common"
)

// InstanceRequest is what the broker sends to one server: the physical
// table to query, the segments on that server to restrict the scan to,
// and the originating request's id for log correlation (spec §4.6).
//
// A single InstanceRequest always names the segments for exactly one
// server and one physical table; the Scatter Dispatcher groups all of a
// server's segments for that table into one request so that the number of
// RPCs scales with server count, not segment count (spec §4.6, avoiding a
// goroutine-per-segment blowup). A hybrid query sends a server one request
// per physical table it serves.
type InstanceRequest struct {
	RequestId         string
	TraceFlag         bool
	PhysicalTableName string
	Segments          common.SegmentIdSet
	// BrokerId identifies the broker instance issuing the request (spec §6,
	// pinot.broker.id), for log correlation on the server side.
	BrokerId string
	// SerializedQuery is the brokerRequest encoded once per server group by
	// the dispatcher's Serializer and reused for every segment assigned to
	// that server; it must not be mutated or reused across concurrent calls
	// once handed to a transport (spec §4.6: "serializer state must not be
	// shared across concurrent calls").
	SerializedQuery []byte
}

// InstanceResponse pairs a server's raw response bytes, or the error its
// call failed with, with the server it came from.
type InstanceResponse struct {
	Server   common.ServerInstance
	Data     []byte
	Err      error
}
