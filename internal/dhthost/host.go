// Package dhthost implements the peer engine's network layer on libp2p: a
// Kademlia DHT node with a persistent ed25519 identity, swarm introspection
// and connection-level events. Replication, storage formats and GC policy
// live in the engine proper and are not implemented here.
package dhthost

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/holepunchto/blind-peer-cli/internal/logger"
	"github.com/holepunchto/blind-peer-cli/pkg/config"
	"github.com/holepunchto/blind-peer-cli/pkg/engine"
	"github.com/holepunchto/blind-peer-cli/pkg/keys"
	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/net/conngater"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	identityFile   = "identity.key"
	encryptionFile = "encryption.key"
)

// Host is the libp2p-backed engine. The zero value is not usable; construct
// with New and drive through Ready, Listen and Close.
type Host struct {
	engine.Emitter

	log *slog.Logger
	cfg *config.Config

	identity   crypto.PrivKey
	publicKey  keys.PublicKey
	encryptKey keys.PublicKey
	trusted    engine.TrustSet

	mu        sync.Mutex
	host      host.Host
	dht       *dht.IpfsDHT
	gater     *conngater.BasicConnectionGater
	banCancel func()
}

var _ engine.Engine = (*Host)(nil)

// New builds the engine from resolved configuration. No storage or network
// resource is touched until Ready.
func New(cfg *config.Config, log *slog.Logger) *Host {
	return &Host{
		log:     log.With(logger.KeyComponent, "dhthost"),
		cfg:     cfg,
		trusted: engine.NewTrustSet(cfg.TrustedPeers),
	}
}

// Ready loads or creates the persistent identity and constructs the host
// and DHT. The node accepts no connections until Listen.
func (h *Host) Ready(ctx context.Context) error {
	if err := os.MkdirAll(h.cfg.Storage, 0o700); err != nil {
		return fmt.Errorf("dhthost: create storage dir: %w", err)
	}

	identity, err := loadOrCreateIdentity(h.cfg.Storage)
	if err != nil {
		return fmt.Errorf("dhthost: identity: %w", err)
	}
	raw, err := identity.GetPublic().Raw()
	if err != nil {
		return fmt.Errorf("dhthost: identity public key: %w", err)
	}
	copy(h.publicKey[:], raw)
	h.identity = identity

	encryptKey, err := loadOrCreateEncryptionKey(h.cfg.Storage)
	if err != nil {
		return fmt.Errorf("dhthost: encryption key: %w", err)
	}
	h.encryptKey = encryptKey

	gater, err := conngater.NewBasicConnectionGater(nil)
	if err != nil {
		return fmt.Errorf("dhthost: connection gater: %w", err)
	}

	node, err := libp2p.New(
		libp2p.Identity(identity),
		libp2p.NoListenAddrs,
		libp2p.ConnectionGater(gater),
	)
	if err != nil {
		return fmt.Errorf("dhthost: create host: %w", err)
	}

	kdht, err := dht.New(ctx, node, dht.Mode(dht.ModeServer))
	if err != nil {
		node.Close()
		return fmt.Errorf("dhthost: create dht: %w", err)
	}

	node.Network().Notify(&network.NotifyBundle{
		ConnectedF: func(_ network.Network, conn network.Conn) {
			h.Emit(engine.Event{Kind: engine.KindConnection, Payload: engine.Connection{
				Peer: peerInfo(conn),
			}})
		},
	})

	h.mu.Lock()
	h.host = node
	h.dht = kdht
	h.gater = gater
	h.mu.Unlock()

	// A peer that sends an invalid request gets banned at the connection
	// gate, which in turn emits the ban event.
	h.banCancel = h.Subscribe(engine.KindInvalidRequest, func(ev engine.Event) error {
		p, ok := ev.Payload.(engine.InvalidRequest)
		if !ok {
			return fmt.Errorf("dhthost: malformed invalid-request payload %T", ev.Payload)
		}
		pid, err := peerID(p.From)
		if err != nil {
			return fmt.Errorf("dhthost: invalid-request sender: %w", err)
		}
		h.Ban(pid, p.Err)
		return nil
	})
	return nil
}

// Listen binds the swarm listeners and bootstraps the DHT. Once routing is
// seeded the initial announce marker is emitted.
func (h *Host) Listen(ctx context.Context) error {
	h.mu.Lock()
	node, kdht := h.host, h.dht
	h.mu.Unlock()
	if node == nil {
		return errors.New("dhthost: not ready")
	}

	addrs := []ma.Multiaddr{
		mustAddr(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", h.cfg.DHTPort)),
		mustAddr(fmt.Sprintf("/ip4/0.0.0.0/udp/%d/quic-v1", h.cfg.DHTPort)),
	}
	if err := node.Network().Listen(addrs...); err != nil {
		return fmt.Errorf("dhthost: listen: %w", err)
	}

	if err := kdht.Bootstrap(ctx); err != nil {
		return fmt.Errorf("dhthost: bootstrap: %w", err)
	}

	h.Emit(engine.Event{Kind: engine.KindAnnouncedInitialCores, Payload: engine.AnnouncedInitialCores{}})
	return nil
}

// Close shuts down the DHT, then the host.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	node, kdht := h.host, h.dht
	h.host, h.dht = nil, nil
	h.mu.Unlock()
	if node == nil {
		return nil
	}
	if h.banCancel != nil {
		h.banCancel()
		h.banCancel = nil
	}

	var errs []error
	if err := kdht.Close(); err != nil {
		errs = append(errs, fmt.Errorf("dhthost: close dht: %w", err))
	}
	if err := node.Close(); err != nil {
		errs = append(errs, fmt.Errorf("dhthost: close host: %w", err))
	}
	return errors.Join(errs...)
}

func (h *Host) PublicKey() keys.PublicKey { return h.publicKey }

func (h *Host) EncryptionPublicKey() keys.PublicKey { return h.encryptKey }

func (h *Host) Trusted() engine.TrustSet { return h.trusted }

// Digest reports bytes on disk under the storage path against the
// configured budget.
func (h *Host) Digest() engine.Digest {
	var used uint64
	_ = filepath.WalkDir(h.cfg.Storage, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			used += uint64(info.Size())
		}
		return nil
	})
	return engine.Digest{BytesAllocated: used, MaxBytes: h.cfg.MaxBytes}
}

func (h *Host) Swarm() engine.Swarm {
	return swarmHandle{h: h}
}

// Ban blocks a peer at the connection gate, drops its connections and
// emits the ban event.
func (h *Host) Ban(p peer.ID, reason error) {
	h.mu.Lock()
	node, gater := h.host, h.gater
	h.mu.Unlock()
	if node == nil {
		return
	}

	info := engine.PeerInfo{}
	if pk, err := p.ExtractPublicKey(); err == nil {
		if raw, err := pk.Raw(); err == nil {
			info.PublicKey = raw
		}
	}
	if conns := node.Network().ConnsToPeer(p); len(conns) > 0 {
		info.Addr = conns[0].RemoteMultiaddr().String()
	}

	if err := gater.BlockPeer(p); err != nil {
		h.log.Warn("failed to block peer", logger.KeyError, err.Error())
	}
	if err := node.Network().ClosePeer(p); err != nil {
		h.log.Warn("failed to drop banned peer", logger.KeyError, err.Error())
	}

	h.Emit(engine.Event{Kind: engine.KindBan, Payload: engine.Ban{Peer: info, Err: reason}})
}

// RegisterMetrics registers the host's swarm gauges.
func (h *Host) RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "blind_peer_connected_peers",
		Help: "Peers with at least one live connection.",
	}, func() float64 {
		h.mu.Lock()
		node := h.host
		h.mu.Unlock()
		if node == nil {
			return 0
		}
		return float64(len(node.Network().Peers()))
	}))
}

// swarmHandle adapts the libp2p network to the engine swarm contract.
type swarmHandle struct {
	h *Host
}

func (s swarmHandle) LocalAddrs() []string {
	s.h.mu.Lock()
	node := s.h.host
	s.h.mu.Unlock()
	if node == nil {
		return nil
	}
	addrs := node.Network().ListenAddresses()
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

func (s swarmHandle) Streams() ([]engine.Stream, error) {
	s.h.mu.Lock()
	node := s.h.host
	s.h.mu.Unlock()
	if node == nil {
		return nil, errors.New("dhthost: not ready")
	}
	var out []engine.Stream
	for _, conn := range node.Network().Conns() {
		for _, st := range conn.GetStreams() {
			out = append(out, hostStream{st: st})
		}
	}
	return out, nil
}

// hostStream reports a live transport stream. Pending writes are
// approximated by the stream's reserved buffer memory in the resource
// manager.
type hostStream struct {
	st network.Stream
}

func (s hostStream) ID() string { return s.st.ID() }

func (s hostStream) PendingWrites() int {
	return int(s.st.Scope().Stat().Memory)
}

// peerID resolves a raw ed25519 public key, as carried in event payloads,
// back to the libp2p peer it identifies.
func peerID(raw []byte) (peer.ID, error) {
	pk, err := crypto.UnmarshalEd25519PublicKey(raw)
	if err != nil {
		return "", err
	}
	return peer.IDFromPublicKey(pk)
}

func peerInfo(conn network.Conn) engine.PeerInfo {
	info := engine.PeerInfo{Addr: conn.RemoteMultiaddr().String()}
	if pk, err := conn.RemotePeer().ExtractPublicKey(); err == nil {
		if raw, err := pk.Raw(); err == nil {
			info.PublicKey = raw
		}
	}
	return info
}

func mustAddr(s string) ma.Multiaddr {
	addr, err := ma.NewMultiaddr(s)
	if err != nil {
		panic(fmt.Sprintf("dhthost: bad multiaddr %q: %v", s, err))
	}
	return addr
}
