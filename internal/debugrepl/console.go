// Package debugrepl runs an optional remote debug console for a live peer.
// It is a plaintext TCP listener gated by a seed-derived token and is meant
// for debugging only; enabling it in production is insecure.
package debugrepl

import (
	"bufio"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/holepunchto/blind-peer-cli/internal/bytesize"
	"github.com/holepunchto/blind-peer-cli/internal/logger"
	"github.com/holepunchto/blind-peer-cli/internal/supervisor"
	"github.com/holepunchto/blind-peer-cli/pkg/keys"
)

// Ports are picked from the dynamic range so the console never collides
// with the DHT or metrics listeners.
const (
	portBase  = 49152
	portRange = 16384
)

// Port derives the console's listen port from the seed. The same seed
// always yields the same port, so an operator who knows the seed knows
// where to connect.
func Port(seed keys.Seed) int {
	return portBase + int(binary.BigEndian.Uint16(seed[:2]))%portRange
}

// Token derives the console auth token from the seed. The seed itself never
// crosses the wire.
func Token(seed keys.Seed) string {
	sum := sha256.Sum256(seed[:])
	return keys.Format(sum[:])
}

// Console serves state, digest, trusted and shutdown commands to
// token-authenticated local TCP clients.
type Console struct {
	log  *slog.Logger
	peer supervisor.ConsolePeer

	token string
	ln    net.Listener

	mu     sync.Mutex
	closed bool
	conns  map[net.Conn]struct{}
	wg     sync.WaitGroup
}

// New binds the console listener on localhost and starts accepting
// connections.
func New(peer supervisor.ConsolePeer, seed keys.Seed, log *slog.Logger) (*Console, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", Port(seed))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("debugrepl: listen %s: %w", addr, err)
	}

	c := &Console{
		log:   log.With(logger.KeyComponent, "debugrepl"),
		peer:  peer,
		token: Token(seed),
		ln:    ln,
		conns: make(map[net.Conn]struct{}),
	}

	c.wg.Add(1)
	go c.acceptLoop()

	c.log.Info("debug console listening", "addr", ln.Addr().String())
	return c, nil
}

// Addr reports the bound listen address.
func (c *Console) Addr() string {
	return c.ln.Addr().String()
}

// Close stops the listener and drops every open session.
func (c *Console) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for conn := range c.conns {
		conn.Close()
	}
	c.mu.Unlock()

	err := c.ln.Close()
	c.wg.Wait()
	return err
}

func (c *Console) acceptLoop() {
	defer c.wg.Done()
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.log.Warn("console accept failed", logger.KeyError, err.Error())
			}
			return
		}
		if !c.track(conn) {
			conn.Close()
			return
		}
		c.wg.Add(1)
		go c.serve(conn)
	}
}

func (c *Console) track(conn net.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.conns[conn] = struct{}{}
	return true
}

func (c *Console) untrack(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, conn)
}

// serve runs one session: an auth line followed by commands, one per line.
func (c *Console) serve(conn net.Conn) {
	defer c.wg.Done()
	defer c.untrack(conn)
	defer conn.Close()

	r := bufio.NewScanner(conn)
	if !r.Scan() {
		return
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(r.Text())), []byte(c.token)) != 1 {
		fmt.Fprintln(conn, "denied")
		c.log.Warn("console auth failed", "remote", conn.RemoteAddr().String())
		return
	}
	fmt.Fprintln(conn, "ok")

	for r.Scan() {
		cmd := strings.TrimSpace(r.Text())
		switch cmd {
		case "":
		case "state":
			fmt.Fprintln(conn, c.peer.State().String())
		case "digest":
			d := c.peer.Digest()
			fmt.Fprintf(conn, "allocated=%d (%s) budget=%d (%s)\n",
				d.BytesAllocated, bytesize.Format(d.BytesAllocated),
				d.MaxBytes, bytesize.Format(d.MaxBytes))
		case "trusted":
			trusted := c.peer.Trusted()
			fmt.Fprintf(conn, "count=%d\n", trusted.Len())
			for _, k := range trusted.Keys() {
				fmt.Fprintln(conn, k.String())
			}
		case "shutdown":
			c.peer.Shutdown("debug console request")
			fmt.Fprintln(conn, "shutting down")
			return
		case "quit":
			fmt.Fprintln(conn, "bye")
			return
		default:
			fmt.Fprintf(conn, "unknown command %q (state|digest|trusted|shutdown|quit)\n", cmd)
		}
	}
}
