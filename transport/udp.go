package transport

import (
	"context"
	"net"
	"time"
)

// udpSession is a raw UDP "session": datagrams to/from a single locked-in
// peer address. It does not retransmit, reorder, or deduplicate, so it does
// not satisfy the reliable-bytestream contract — Unreliable reports true
// and both sender and receiver engines must reject it for an actual file
// transfer (spec: "the engine emits ERROR if selected for a file transfer").
// It exists for the out-of-scope speedtest command's raw-throughput probing,
// which is why Dial is exported as DialRaw for that external collaborator.
type udpSession struct {
	conn *net.UDPConn
	peer *net.UDPAddr
}

func (u *udpSession) Read(p []byte) (int, error) {
	for {
		n, addr, err := u.conn.ReadFromUDP(p)
		if err != nil {
			return n, err
		}
		if u.peer != nil && !addr.IP.Equal(u.peer.IP) {
			continue
		}
		if u.peer == nil {
			u.peer = addr
		}
		return n, nil
	}
}

func (u *udpSession) Write(p []byte) (int, error) {
	if u.peer != nil {
		return u.conn.WriteToUDP(p, u.peer)
	}
	return u.conn.Write(p)
}

func (u *udpSession) Close() error                       { return u.conn.Close() }
func (u *udpSession) SetReadDeadline(t time.Time) error   { return u.conn.SetReadDeadline(t) }
func (u *udpSession) SetWriteDeadline(t time.Time) error  { return u.conn.SetWriteDeadline(t) }
func (u *udpSession) LocalAddr() net.Addr                 { return u.conn.LocalAddr() }
func (u *udpSession) RemoteAddr() net.Addr {
	if u.peer != nil {
		return u.peer
	}
	return nil
}
func (u *udpSession) Unreliable() bool { return true }

type udpListener struct {
	conn *net.UDPConn
}

func (l *udpListener) Accept(ctx context.Context) (Session, error) {
	type result struct {
		sess Session
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		buf := make([]byte, 1)
		n, addr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			ch <- result{nil, err}
			return
		}
		_ = n
		ch <- result{&udpSession{conn: l.conn, peer: addr}, nil}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.sess, r.err
	}
}

func (l *udpListener) Addr() net.Addr { return l.conn.LocalAddr() }
func (l *udpListener) Close() error   { return l.conn.Close() }

type udpTransport struct{}

func newUDPTransport() Transport { return udpTransport{} }

func (udpTransport) Kind() Kind { return UDP }

func (udpTransport) Listen(_ context.Context, addr string) (Listener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &udpListener{conn: conn}, nil
}

func (udpTransport) Dial(ctx context.Context, addr string) (Session, error) {
	return DialRaw(ctx, addr)
}

// DialRaw opens a raw UDP session to addr. Exported for the out-of-scope
// speedtest command, which probes raw throughput without the file-transfer
// state machines that reject Unreliable sessions.
func DialRaw(_ context.Context, addr string) (Session, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, err
	}
	return &udpSession{conn: conn, peer: udpAddr}, nil
}
