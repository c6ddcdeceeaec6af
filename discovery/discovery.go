// Package discovery finds other gobyte instances on the LAN via periodic
// UDP broadcast, the supplemented peer-discovery feature SPEC_FULL.md adds
// at the CLI edge (spec §6). It is an external collaborator: the sender and
// receiver engines never import it, matching the original's
// Broadcaster/peer design but trimmed to announce-and-list — no malformed-
// message echoing, since that error path only mattered for the original's
// richer negotiation payload.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HelloInterval is how often a Locator re-announces itself and how often
// stale peers are swept, mirroring the teacher's broadcaster cadence.
const HelloInterval = 2 * time.Second

// peerTTL is how long a peer survives without a fresh hello before it is
// dropped from the list.
const peerTTL = HelloInterval + 2*time.Second

// hello is the broadcast wire format: name plus the port this instance is
// listening on for transfers.
type hello struct {
	Name string `json:"name"`
	Port uint16 `json:"port"`
}

// Peer is one discovered instance.
type Peer struct {
	Name string
	Addr string // host:port, ready to pass straight to sender.Engine.Send
}

// Locator announces this instance's listen port on addr and tracks peers
// who announce back, until Start's context is cancelled.
type Locator struct {
	addr string
	port uint16

	conn *net.UDPConn

	mu    sync.Mutex
	peers map[string]peerEntry
}

type peerEntry struct {
	peer      Peer
	lastHello time.Time
}

// New returns a Locator broadcasting on addr (typically ":9528", a port
// distinct from the transfer port) and advertising listenPort as where
// this instance accepts transfers.
func New(addr string, listenPort uint16) *Locator {
	return &Locator{addr: addr, port: listenPort, peers: make(map[string]peerEntry)}
}

// Start opens the broadcast socket and runs until ctx is cancelled.
func (l *Locator) Start(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp", l.addr)
	if err != nil {
		return err
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	l.conn = conn
	defer conn.Close()

	_, portStr, err := net.SplitHostPort(l.addr)
	if err != nil {
		return err
	}
	broadcastAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("255.255.255.255:%s", portStr))
	if err != nil {
		return err
	}

	msg, err := json.Marshal(hello{Name: localName(), Port: l.port})
	if err != nil {
		return err
	}

	go l.announce(ctx, conn, broadcastAddr, msg)
	return l.listen(ctx, conn)
}

func (l *Locator) announce(ctx context.Context, conn *net.UDPConn, broadcastAddr *net.UDPAddr, msg []byte) {
	ticker := time.NewTicker(HelloInterval)
	defer ticker.Stop()

	conn.WriteToUDP(msg, broadcastAddr)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.WriteToUDP(msg, broadcastAddr)
			l.sweep()
		}
	}
}

func (l *Locator) listen(ctx context.Context, conn *net.UDPConn) error {
	buf := make([]byte, 1024)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(HelloInterval))
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}

		var h hello
		if err := json.Unmarshal(buf[:n], &h); err != nil || h.Name == "" {
			continue
		}
		if h.Name == localName() {
			continue
		}

		l.mu.Lock()
		l.peers[h.Name] = peerEntry{
			peer:      Peer{Name: h.Name, Addr: fmt.Sprintf("%s:%d", remote.IP.String(), h.Port)},
			lastHello: time.Now(),
		}
		l.mu.Unlock()
	}
}

func (l *Locator) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for name, entry := range l.peers {
		if time.Since(entry.lastHello) > peerTTL {
			delete(l.peers, name)
		}
	}
}

// Peers returns a snapshot of currently known peers.
func (l *Locator) Peers() []Peer {
	l.mu.Lock()
	defer l.mu.Unlock()

	peers := make([]Peer, 0, len(l.peers))
	for _, entry := range l.peers {
		peers = append(peers, entry.peer)
	}
	return peers
}

func localName() string {
	name, err := os.Hostname()
	if err != nil {
		return "gobyte-" + uuid.NewString()
	}
	return name
}
