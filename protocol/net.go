package protocol

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/drpcorg/zerkalo/utils"
)

const (
	TypicalMTU = 1500

	MaxRetryPeriod = time.Minute
	MinRetryPeriod = time.Second / 2
)

// InstallCallback hands out the feed/drain pair a fresh connection
// pumps against; DestroyCallback reclaims it when the peer dies.
type InstallCallback func(name string) FeedDrainCloser
type DestroyCallback func(name string, p FeedDrainCloser)

// Net keeps live replica feeds flowing over TCP or TLS. This is not
// request-response: both sides constantly fan tiny event packets, so
// one slow receiver must never delay the others — every peer gets its
// own queue and its own read/write pumps.
type Net struct {
	closed atomic.Bool

	wg        sync.WaitGroup
	log       utils.Logger
	onInstall InstallCallback
	onDestroy DestroyCallback

	conns   *xsync.MapOf[string, *Peer]
	listens *xsync.MapOf[string, net.Listener]

	TlsConfig *tls.Config
}

func NewNet(log utils.Logger, tlsConfig *tls.Config, install InstallCallback, destroy DestroyCallback) *Net {
	return &Net{
		log:       log,
		conns:     xsync.NewMapOf[string, *Peer](),
		listens:   xsync.NewMapOf[string, net.Listener](),
		onInstall: install,
		onDestroy: destroy,
		TlsConfig: tlsConfig,
	}
}

func (n *Net) Close() error {
	n.closed.Store(true)

	n.listens.Range(func(_ string, l net.Listener) bool {
		_ = l.Close()
		return true
	})
	n.listens.Clear()

	n.conns.Range(func(_ string, p *Peer) bool {
		// nil while a dial is still in flight
		if p != nil {
			p.Close()
		}
		return true
	})
	n.conns.Clear()

	n.wg.Wait()
	return nil
}

func (n *Net) Connect(ctx context.Context, addr string) error {
	// nil reserves the slot until the dial lands
	if _, ok := n.conns.LoadOrStore(addr, nil); ok {
		return ErrAddressDuplicated
	}

	n.wg.Add(1)
	go func() {
		n.keepConnecting(ctx, fmt.Sprintf("connect:%s", addr), addr)
		n.wg.Done()
	}()

	return nil
}

func (n *Net) Disconnect(addr string) error {
	conn, ok := n.conns.LoadAndDelete(addr)
	if !ok {
		return ErrAddressUnknown
	}
	conn.Close()
	return nil
}

func (n *Net) Listen(ctx context.Context, addr string) error {
	if _, ok := n.listens.LoadOrStore(addr, nil); ok {
		return ErrAddressDuplicated
	}

	listener, err := n.createListener(ctx, addr)
	if err != nil {
		n.listens.Delete(addr)
		return err
	}
	n.listens.Store(addr, listener)

	n.log.Info("net: listening", "addr", addr)

	n.wg.Add(1)
	go func() {
		n.keepListening(ctx, addr)
		n.wg.Done()
	}()

	return nil
}

func (n *Net) Unlisten(addr string) error {
	listener, ok := n.listens.LoadAndDelete(addr)
	if !ok {
		return ErrAddressUnknown
	}
	return listener.Close()
}

func (n *Net) keepConnecting(ctx context.Context, name, addr string) {
	backoff := MinRetryPeriod

	for !n.closed.Load() && ctx.Err() == nil {
		conn, err := n.createConn(ctx, addr)
		if err != nil {
			n.log.Error("net: couldn't connect", "name", name, "err", err)
			time.Sleep(backoff)
			backoff = min(MaxRetryPeriod, backoff*2)
			continue
		}

		n.log.Info("net: connected", "name", name)
		backoff = MinRetryPeriod
		n.keepPeer(ctx, name, conn)
	}
}

func (n *Net) keepListening(ctx context.Context, addr string) {
	for !n.closed.Load() && ctx.Err() == nil {
		listener, ok := n.listens.Load(addr)
		if !ok {
			break
		}

		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			// reconnects are the client's problem
			n.log.Error("net: couldn't accept", "addr", addr, "err", err)
			continue
		}

		remoteAddr := conn.RemoteAddr().String()
		n.log.Info("net: accepted connection", "addr", addr, "remoteAddr", remoteAddr)

		n.wg.Add(1)
		go func() {
			n.keepPeer(ctx, fmt.Sprintf("listen:%s:%s", uuid.Must(uuid.NewV7()).String(), remoteAddr), conn)
			n.wg.Done()
		}()
	}

	if l, ok := n.listens.LoadAndDelete(addr); ok && l != nil {
		if err := l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			n.log.Error("net: couldn't close listener", "addr", addr, "err", err)
		}
	}

	n.log.Info("net: listener closed", "addr", addr)
}

func (n *Net) keepPeer(ctx context.Context, name string, conn net.Conn) {
	peer := &Peer{inout: n.onInstall(name), conn: conn}
	n.conns.Store(name, peer)

	readErr, writeErr, closeErr := peer.Keep(ctx)
	if readErr != nil {
		n.log.Error("net: couldn't read from peer", "name", name, "err", readErr)
	}
	if writeErr != nil {
		n.log.Error("net: couldn't write to peer", "name", name, "err", writeErr)
	}
	if closeErr != nil {
		n.log.Error("net: couldn't close peer", "name", name, "err", closeErr)
	}

	n.conns.Delete(name)
	n.onDestroy(name, peer.inout)
}

func (n *Net) createListener(ctx context.Context, addr string) (net.Listener, error) {
	secure, address, err := parseAddr(addr)
	if err != nil {
		return nil, err
	}

	config := net.ListenConfig{}
	listener, err := config.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	if secure {
		listener = tls.NewListener(listener, n.TlsConfig)
	}
	return listener, nil
}

func (n *Net) createConn(ctx context.Context, addr string) (net.Conn, error) {
	secure, address, err := parseAddr(addr)
	if err != nil {
		return nil, err
	}

	if secure {
		d := tls.Dialer{Config: n.TlsConfig}
		return d.DialContext(ctx, "tcp", address)
	}
	d := net.Dialer{Timeout: time.Minute}
	return d.DialContext(ctx, "tcp", address)
}

func parseAddr(addr string) (secure bool, address string, err error) {
	u, err := url.Parse(addr)
	if err != nil {
		return false, "", err
	}

	switch u.Scheme {
	case "", "tcp", "tcp4", "tcp6":
	case "tls":
		secure = true
	default:
		return false, addr, ErrAddressInvalid
	}

	u.Scheme = ""
	return secure, strings.TrimPrefix(u.String(), "//"), nil
}
