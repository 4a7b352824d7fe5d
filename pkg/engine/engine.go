// Package engine defines the contract between the blind peer supervisor and
// the peer engine it drives: the replication/storage/garbage-collection
// runtime that owns the DHT swarm. The supervisor never reaches into the
// engine beyond this surface; everything it needs to observe arrives as
// events (see events.go).
package engine

import (
	"context"

	"github.com/holepunchto/blind-peer-cli/pkg/keys"
	"github.com/prometheus/client_golang/prometheus"
)

// Engine is the peer engine as seen by the supervisor.
//
// Lifecycle methods are called in order: Ready, Listen, Close. The network
// identity accessors are only valid after Ready has returned. Close must be
// called exactly once, after which no further events are delivered.
type Engine interface {
	// Ready completes internal initialization. The engine's identity is
	// not accessible before Ready returns.
	Ready(ctx context.Context) error

	// Listen starts accepting and making connections.
	Listen(ctx context.Context) error

	// Close tears the engine down, flushing in-flight work.
	Close(ctx context.Context) error

	// PublicKey is the engine's network public key. Valid after Ready.
	PublicKey() keys.PublicKey

	// EncryptionPublicKey is the engine's encryption public key. Valid
	// after Ready.
	EncryptionPublicKey() keys.PublicKey

	// Digest reports current storage accounting.
	Digest() Digest

	// Swarm exposes the engine's connection swarm.
	Swarm() Swarm

	// Trusted is the supervisor-visible view of the trusted peer set the
	// engine enforces announce gating with. The supervisor supplies this
	// set at construction and must never re-derive or override it.
	Trusted() TrustSet

	// Subscribe registers a handler for one event kind. The returned
	// function cancels the subscription. Event delivery is fire and
	// forget: the engine never waits on a handler's outcome.
	Subscribe(kind Kind, h Handler) (cancel func())

	// RegisterMetrics registers the engine's internal metrics with the
	// given registerer.
	RegisterMetrics(reg prometheus.Registerer)
}

// Digest is a point-in-time snapshot of the engine's storage accounting.
type Digest struct {
	// BytesAllocated is the number of bytes currently allocated.
	BytesAllocated uint64

	// MaxBytes is the configured storage budget.
	MaxBytes uint64
}

// Swarm is the engine's connection swarm handle.
type Swarm interface {
	// LocalAddrs returns the swarm's local bind addresses.
	LocalAddrs() []string

	// Streams enumerates the live low-level transport streams.
	Streams() ([]Stream, error)
}

// Stream is a low-level transport stream as exposed for diagnostics.
// Implementations must not let these accessors block or disturb traffic.
type Stream interface {
	// ID identifies the stream for log correlation.
	ID() string

	// PendingWrites is the stream's outstanding-write count.
	PendingWrites() int
}
