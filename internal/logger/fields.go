package logger

// Standard field keys for structured logging. Use these consistently so a
// given peer, core or stream can be followed across all log lines.
const (
	KeyComponent = "component" // emitting component: supervisor, eventlog, instrumentation, ...
	KeyEvent     = "event"     // engine event kind that produced the line
	KeyPeer      = "peer"      // remote peer public key, canonical form
	KeyCore      = "core"      // core public key, canonical form
	KeyDiscovery = "discovery_key"
	KeyStream    = "stream" // transport stream identifier
	KeyError     = "error"

	// Storage accounting, always logged as raw byte counts so utilization
	// can be reconstructed from logs alone.
	KeyAllocated = "bytes_allocated"
	KeyBudget    = "max_bytes"
)
