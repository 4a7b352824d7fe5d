// Package enginetest provides an in-memory Engine fake for supervisor
// tests. Events are emitted synchronously via the embedded Emitter.
package enginetest

import (
	"context"
	"sync"

	"github.com/holepunchto/blind-peer-cli/pkg/engine"
	"github.com/holepunchto/blind-peer-cli/pkg/keys"
	"github.com/prometheus/client_golang/prometheus"
)

// Stream is a fake transport stream with a settable pending-write count.
type Stream struct {
	StreamID string
	Pending  int
}

func (s Stream) ID() string         { return s.StreamID }
func (s Stream) PendingWrites() int { return s.Pending }

// Swarm is a fake swarm handle.
type Swarm struct {
	mu      sync.Mutex
	addrs   []string
	streams []engine.Stream
	err     error
}

// SetAddrs replaces the local bind addresses.
func (s *Swarm) SetAddrs(addrs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addrs = addrs
}

// SetStreams replaces the enumerated stream set.
func (s *Swarm) SetStreams(streams []engine.Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = streams
}

// FailStreams makes the next enumerations return err.
func (s *Swarm) FailStreams(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Swarm) LocalAddrs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.addrs...)
}

func (s *Swarm) Streams() ([]engine.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]engine.Stream(nil), s.streams...), nil
}

// Fake is a scriptable Engine. The zero value is usable; error fields and
// hooks may be set before the supervisor starts driving it.
type Fake struct {
	engine.Emitter

	// Errors returned by the lifecycle methods.
	ReadyErr  error
	ListenErr error
	CloseErr  error

	// OnReady, OnListen and OnClose run at the start of the matching
	// lifecycle call, before the error fields are consulted. Useful for
	// recording call order across collaborators.
	OnReady  func()
	OnListen func()
	OnClose  func()

	// Key and EncryptionKey are the fake identity.
	Key           keys.PublicKey
	EncryptionKey keys.PublicKey

	// StorageDigest is returned by Digest.
	StorageDigest engine.Digest

	// Trust is returned by Trusted.
	Trust engine.TrustSet

	// FakeSwarm is returned by Swarm.
	FakeSwarm Swarm

	mu          sync.Mutex
	readyCalls  int
	listenCalls int
	closeCalls  int
	registered  prometheus.Registerer
}

var _ engine.Engine = (*Fake)(nil)

func (f *Fake) Ready(ctx context.Context) error {
	f.mu.Lock()
	f.readyCalls++
	f.mu.Unlock()
	if f.OnReady != nil {
		f.OnReady()
	}
	return f.ReadyErr
}

func (f *Fake) Listen(ctx context.Context) error {
	f.mu.Lock()
	f.listenCalls++
	f.mu.Unlock()
	if f.OnListen != nil {
		f.OnListen()
	}
	return f.ListenErr
}

func (f *Fake) Close(ctx context.Context) error {
	f.mu.Lock()
	f.closeCalls++
	f.mu.Unlock()
	if f.OnClose != nil {
		f.OnClose()
	}
	return f.CloseErr
}

func (f *Fake) PublicKey() keys.PublicKey           { return f.Key }
func (f *Fake) EncryptionPublicKey() keys.PublicKey { return f.EncryptionKey }
func (f *Fake) Digest() engine.Digest               { return f.StorageDigest }
func (f *Fake) Swarm() engine.Swarm                 { return &f.FakeSwarm }
func (f *Fake) Trusted() engine.TrustSet            { return f.Trust }

func (f *Fake) RegisterMetrics(reg prometheus.Registerer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = reg
}

// ReadyCalls reports the number of Ready invocations.
func (f *Fake) ReadyCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readyCalls
}

// ListenCalls reports the number of Listen invocations.
func (f *Fake) ListenCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listenCalls
}

// CloseCalls reports the number of Close invocations.
func (f *Fake) CloseCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

// MetricsRegisterer reports the registerer passed to RegisterMetrics, or nil.
func (f *Fake) MetricsRegisterer() prometheus.Registerer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered
}
