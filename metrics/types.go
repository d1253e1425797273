// Package metrics defines the types and constants used for metric collection and reporting.
package metrics

// Policy says how a reporter folds successive values of one series
// together.
type Policy int

const (
	// PolicySet keeps the last reported value.
	PolicySet Policy = iota
	// PolicySum accumulates values, the counter policy.
	PolicySum
	// PolicyAvg averages values. The Prometheus reporter keeps a running
	// mean of every observation since it started; it is never reset.
	PolicyAvg
)

// Value is a single measurement.
type Value float64

// Dimension labels a measurement, for example with the transport name or
// the pool the sample came from.
type Dimension map[string]string

// Group related constants, prefixed with Group.
const (
	// GroupR2P2 is the group name for protocol stack metrics.
	GroupR2P2 = "r2p2"
)

// Metric related constants
const (
	// NamePoolCreateTotal: Total number of objects created by a pool because the pool was empty.
	// group:r2p2 dimension:poolname dashboard:Pool misses per pool. alarm:Upward fluctuation >100%.
	NamePoolCreateTotal = "pool_create_total"

	// NameTransportSendPckTotal: Total number of packets put on the wire by a transport.
	// group:r2p2 dimension:transport dashboard:Outbound packet rate. alarm:Upward fluctuation >100%, downward >50%.
	NameTransportSendPckTotal = "transport_send_pck_total"

	// NameTransportRecvPckTotal: Total number of packets received by a transport.
	// group:r2p2 dimension:transport dashboard:Inbound packet rate. alarm:Upward fluctuation >100%, downward >50%.
	NameTransportRecvPckTotal = "transport_recv_pck_total"

	// NameEngineRequestSentTotal: Total number of requests issued by the client side of a worker.
	// group:r2p2 dimension: dashboard:Outbound request rate.
	NameEngineRequestSentTotal = "engine_request_sent_total"

	// NameEngineResponseSentTotal: Total number of responses sent by the server side of a worker.
	// group:r2p2 dimension: dashboard:Response rate.
	NameEngineResponseSentTotal = "engine_response_sent_total"

	// NameEngineAckSentTotal: Total number of handshake acknowledgements sent.
	// group:r2p2 dimension: dashboard:ACK rate, tracks multi-packet request volume.
	NameEngineAckSentTotal = "engine_ack_sent_total"

	// NameEngineTimeoutTotal: Total number of requests that hit their deadline.
	// group:r2p2 dimension: dashboard:Request timeout rate. alarm:Alert on any sustained increase.
	NameEngineTimeoutTotal = "engine_timeout_total"

	// NameEngineOutOfOrderTotal: Total number of pairs failed by an out-of-order fragment.
	// group:r2p2 dimension: dashboard:Reassembly failures. alarm:Alert on any sustained increase.
	NameEngineOutOfOrderTotal = "engine_out_of_order_total"

	// NameEngineUnknownResponseTotal: Total number of responses matching no outstanding request.
	// group:r2p2 dimension: dashboard:Stray response rate.
	NameEngineUnknownResponseTotal = "engine_unknown_response_total"

	// NameEngineMalformedDropTotal: Total number of packets dropped before reaching a state machine.
	// group:r2p2 dimension: dashboard:Malformed packet rate. alarm:Exceeds 1% of inbound packets.
	NameEngineMalformedDropTotal = "engine_malformed_drop_total"

	// NameEngineStaleEvictTotal: Total number of half-built server pairs evicted by a colliding first fragment.
	// group:r2p2 dimension: dashboard:Stale pair evictions.
	NameEngineStaleEvictTotal = "engine_stale_evict_total"

	// NameEnginePoolExhaustedTotal: Total number of operations rejected because a pair pool was full.
	// group:r2p2 dimension: dashboard:Pool pressure. alarm:Alert on any occurrence, pools are sized for peak.
	NameEnginePoolExhaustedTotal = "engine_pool_exhausted_total"

	// NameEngineRequestLatencyUs: Request round trip time in microseconds, averaged over all observations.
	// group:r2p2 dimension: dashboard:Client-observed RTT.
	NameEngineRequestLatencyUs = "engine_request_latency_us"

	// NameEngineServiceLatencyUs: Time between request arrival and response send in microseconds, averaged over all observations.
	// group:r2p2 dimension: dashboard:Server-side service time.
	NameEngineServiceLatencyUs = "engine_service_latency_us"
)

// Dimension related definitions, must be prefixed with Dim. The comment should include the group.
const (
	// DimTransport is the dimension for the transport implementation name.
	// group:r2p2
	DimTransport = "transport"
	// DimPoolName is the dimension for pool name.
	// group:r2p2
	DimPoolName = "poolname"
)
