package transport

import (
	"context"
	"net"
	"time"

	kcp "github.com/xtaci/kcp-go/v5"
)

// kcpTunables matches spec §4.2: NoDelay mode on, 10 ms internal interval,
// fast-resend after 2 ACK-skips, congestion control disabled — chosen for
// LAN latency rather than WAN fairness.
func applyTunables(sess *kcp.UDPSession) {
	sess.SetNoDelay(1, 10, 2, 1)
	sess.SetWindowSize(1024, 1024)
	sess.SetStreamMode(true)
	sess.SetWriteDelay(false)
}

type kcpSession struct {
	*kcp.UDPSession
}

func (kcpSession) Unreliable() bool { return false }

type kcpListener struct {
	ln *kcp.Listener
}

func (l *kcpListener) Accept(ctx context.Context) (Session, error) {
	type result struct {
		sess *kcp.UDPSession
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		s, err := l.ln.AcceptKCP()
		ch <- result{s, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		applyTunables(r.sess)
		return kcpSession{r.sess}, nil
	}
}

func (l *kcpListener) Addr() net.Addr { return l.ln.Addr() }
func (l *kcpListener) Close() error   { return l.ln.Close() }

type kcpTransport struct{}

func newKCPTransport() Transport { return kcpTransport{} }

func (kcpTransport) Kind() Kind { return KCP }

// dataShards/parityShards are left at zero: the spec tunables call for no
// congestion control and minimal latency, not forward-error-correction —
// FEC would add CPU overhead the LAN link doesn't need.
func (kcpTransport) Listen(_ context.Context, addr string) (Listener, error) {
	ln, err := kcp.ListenWithOptions(addr, nil, 0, 0)
	if err != nil {
		return nil, err
	}
	return &kcpListener{ln: ln}, nil
}

func (kcpTransport) Dial(ctx context.Context, addr string) (Session, error) {
	sess, err := kcp.DialWithOptions(addr, nil, 0, 0)
	if err != nil {
		return nil, err
	}
	applyTunables(sess)

	if deadline, ok := ctx.Deadline(); ok {
		sess.SetDeadline(deadline)
		defer sess.SetDeadline(time.Time{})
	}

	return kcpSession{sess}, nil
}
