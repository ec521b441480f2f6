// Package respd implements the connection driver of spec's design: a
// gnet-based event loop that reads bytes off each accepted TCP connection,
// decodes RESP frames, parses and executes commands against a shared
// pkg/store.Backend, and writes back encoded reply frames.
//
// Adapted in place from the teacher's redhub.go. The architecture --
// gnet.EventHandler methods (OnOpen/OnClose/OnTraffic/OnTick), a
// per-connection accumulation buffer keyed by gnet.Conn, an Options struct
// forwarding to gnet.Option, TLS passthrough via a proxying listener -- is
// kept unchanged. What changes is the command pipeline itself: where the
// teacher exposed a generic, caller-supplied resp.Command handler callback,
// this package owns the full decode -> resp.ParseCommand -> exec.Execute ->
// resp.Encode pipeline against spec's fixed five-command surface, since
// unlike the teacher's general-purpose framework this server is not meant
// to host arbitrary command sets.
//
// # Basic usage
//
//	backend := store.New()
//	rh := respd.NewRedHub(nil, nil, backend)
//	err := respd.ListenAndServe("tcp://127.0.0.1:6380", respd.Options{Multicore: true}, rh)
package respd

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/gnet/v2"

	"github.com/kevlend/respd/internal/exec"
	"github.com/kevlend/respd/pkg/resp"
	"github.com/kevlend/respd/pkg/store"
)

// Action mirrors gnet.Action for the subset of outcomes this driver's
// lifecycle hooks can request.
type Action int

const (
	None Action = iota
	Close
	Shutdown
)

// Conn wraps a gnet.Conn for the lifecycle hooks (OnOpen/OnClose), letting
// application code stash per-connection context.
type Conn struct {
	gnet.Conn
}

func (c *Conn) SetContext(ctx interface{}) { c.Conn.SetContext(ctx) }
func (c *Conn) Context() interface{}       { return c.Conn.Context() }

// Options configures the gnet engine the driver runs on. Fields map
// directly onto gnet.Option equivalents; see the teacher's redhub.go for
// the rationale behind each default.
type Options struct {
	Multicore       bool
	LockOSThread    bool
	ReadBufferCap   int
	LB              gnet.LoadBalancing
	NumEventLoop    int
	ReusePort       bool
	Ticker          bool
	TCPKeepAlive    time.Duration
	TCPKeepCount    int
	TCPKeepInterval time.Duration
	TCPNoDelay      gnet.TCPSocketOpt
	SocketRecvBuffer int
	SocketSendBuffer int
	EdgeTriggeredIO  bool

	TLSListenEnable bool
	TLSCertFile     string
	TLSKeyFile      string
	TLSAddr         string
}

// connBuffer accumulates bytes for one connection across OnTraffic calls
// until a full frame is available to decode.
type connBuffer struct {
	buf bytes.Buffer
}

// RedHub is the server: a gnet.EventHandler wired to a shared backend. The
// name and shape follow the teacher's RedHub type; unlike the teacher's
// version the command dispatch is not pluggable -- it is always
// decode -> resp.ParseCommand -> exec.Execute -> resp.Encode against
// pkg/store's fixed command surface.
type RedHub struct {
	onOpened func(c *Conn) (out []byte, action Action)
	onClosed func(c *Conn, err error) (action Action)

	backend *store.Backend

	connBufMap map[gnet.Conn]*connBuffer
	connSync   *sync.RWMutex

	mu          sync.Mutex
	addr        string
	tcpAddr     string
	running     bool
	engine      gnet.Engine
	tlsListener net.Listener
}

// NewRedHub creates a RedHub bound to backend. onOpened/onClosed may be nil
// if the caller does not need connection lifecycle hooks. If backend is
// nil, a default-shard-count store.Backend is created.
func NewRedHub(
	onOpened func(c *Conn) (out []byte, action Action),
	onClosed func(c *Conn, err error) (action Action),
	backend *store.Backend,
) *RedHub {
	if backend == nil {
		backend = store.New()
	}
	return &RedHub{
		connBufMap: make(map[gnet.Conn]*connBuffer),
		connSync:   &sync.RWMutex{},
		onOpened:   onOpened,
		onClosed:   onClosed,
		backend:    backend,
	}
}

func (rs *RedHub) OnBoot(eng gnet.Engine) (action gnet.Action) {
	rs.mu.Lock()
	rs.engine = eng
	rs.mu.Unlock()
	return gnet.None
}

func (rs *RedHub) OnShutdown(eng gnet.Engine) {}

func (rs *RedHub) OnOpen(c gnet.Conn) (out []byte, action gnet.Action) {
	rs.connSync.Lock()
	rs.connBufMap[c] = new(connBuffer)
	rs.connSync.Unlock()

	if rs.onOpened == nil {
		return nil, gnet.None
	}
	out, act := rs.onOpened(&Conn{Conn: c})
	return out, gnet.Action(act)
}

func (rs *RedHub) OnClose(c gnet.Conn, err error) (action gnet.Action) {
	rs.connSync.Lock()
	delete(rs.connBufMap, c)
	rs.connSync.Unlock()

	if rs.onClosed == nil {
		return gnet.None
	}
	return gnet.Action(rs.onClosed(&Conn{Conn: c}, err))
}

// OnTraffic implements the connection-driver loop of spec: read available
// bytes, decode as many complete frames as the buffer holds, parse and
// execute each as a command, and write back the concatenated replies in
// receipt order. A codec-level decode failure is fatal per spec's error
// policy (the reply, if any, is flushed and the connection is closed); a
// command-parse failure yields a SimpleError reply and the loop continues.
func (rs *RedHub) OnTraffic(c gnet.Conn) (action gnet.Action) {
	rs.connSync.RLock()
	cb, ok := rs.connBufMap[c]
	rs.connSync.RUnlock()
	if !ok {
		_, _ = c.Write(resp.Encode(resp.NewSimpleError("ERR client is closed")))
		return gnet.None
	}

	data, _ := c.Next(-1)
	if len(data) == 0 {
		return gnet.None
	}
	cb.buf.Write(data)

	var out []byte
	for {
		view := cb.buf.Bytes()
		frame, err := resp.Decode(&view)
		if err == resp.ErrIncomplete {
			break
		}
		if err != nil {
			out = resp.AppendFrame(out, resp.NewSimpleError("ERR "+err.Error()))
			if len(out) > 0 {
				_, _ = c.Write(out)
			}
			return gnet.Close
		}
		cb.buf.Next(cb.buf.Len() - len(view))

		cmd, err := resp.ParseCommand(frame)
		if err != nil {
			out = resp.AppendFrame(out, resp.NewSimpleError(err.Error()))
			continue
		}
		out = resp.AppendFrame(out, exec.Execute(cmd, rs.backend))
	}

	if len(out) > 0 {
		_, _ = c.Write(out)
	}
	return gnet.None
}

func (rs *RedHub) OnTick() (delay time.Duration, action gnet.Action) {
	return 0, gnet.None
}

// deriveTLSAddr derives a TLS address from the TCP address by incrementing
// the port (e.g. tcp://127.0.0.1:6380 -> tcp://127.0.0.1:6381).
func deriveTLSAddr(tcpAddr string) string {
	if !strings.HasPrefix(tcpAddr, "tcp://") {
		return ""
	}
	hostPort := strings.TrimPrefix(tcpAddr, "tcp://")
	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return ""
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return ""
	}
	return "tcp://" + net.JoinHostPort(host, strconv.Itoa(port+1))
}

func (rs *RedHub) startTLSListener(options Options) error {
	cert, err := tls.LoadX509KeyPair(options.TLSCertFile, options.TLSKeyFile)
	if err != nil {
		return err
	}

	tlsAddr := options.TLSAddr
	if tlsAddr == "" {
		tlsAddr = deriveTLSAddr(rs.tcpAddr)
		if tlsAddr == "" {
			return errors.New("failed to derive TLS address from TCP address")
		}
	}

	listenAddr := strings.TrimPrefix(tlsAddr, "tcp://")
	rs.tlsListener, err = tls.Listen("tcp", listenAddr, &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		return err
	}

	go rs.acceptTLSConnections(strings.TrimPrefix(rs.tcpAddr, "tcp://"))
	return nil
}

func (rs *RedHub) acceptTLSConnections(tcpAddr string) {
	for {
		tlsConn, err := rs.tlsListener.Accept()
		if err != nil {
			if !rs.running {
				return
			}
			continue
		}
		go rs.handleTLSConn(tlsConn, tcpAddr)
	}
}

func (rs *RedHub) handleTLSConn(tlsConn net.Conn, tcpAddr string) {
	defer tlsConn.Close()

	tcpConn, err := net.Dial("tcp", tcpAddr)
	if err != nil {
		return
	}
	defer tcpConn.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = copyLoop(tcpConn, tlsConn)
	}()
	go func() {
		defer wg.Done()
		_, _ = copyLoop(tlsConn, tcpConn)
	}()
	wg.Wait()
}

func copyLoop(dst net.Conn, src net.Conn) (int64, error) {
	buf := make([]byte, 4096)
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err != nil {
			return total, err
		}
	}
}

// ListenAndServe starts the server on addr (format "tcp://host:port") with
// the given Options, blocking until the engine stops or errors.
func ListenAndServe(addr string, options Options, rh *RedHub) error {
	if options.TLSListenEnable {
		if options.TLSCertFile == "" || options.TLSKeyFile == "" {
			return errors.New("TLSListenEnable requires TLSCertFile and TLSKeyFile")
		}
	}

	var opts []gnet.Option
	if options.Multicore {
		opts = append(opts, gnet.WithMulticore(true))
	}
	if options.LockOSThread {
		opts = append(opts, gnet.WithLockOSThread(true))
	}
	if options.ReadBufferCap > 0 {
		opts = append(opts, gnet.WithReadBufferCap(options.ReadBufferCap))
	}
	if options.NumEventLoop > 0 {
		opts = append(opts, gnet.WithNumEventLoop(options.NumEventLoop))
	} else if options.LB != gnet.RoundRobin {
		opts = append(opts, gnet.WithLoadBalancing(options.LB))
	}
	if options.ReusePort {
		opts = append(opts, gnet.WithReusePort(true))
	}
	if options.Ticker {
		opts = append(opts, gnet.WithTicker(true))
	}
	if options.TCPKeepAlive > 0 {
		opts = append(opts, gnet.WithTCPKeepAlive(options.TCPKeepAlive))
	}
	if options.TCPKeepCount > 0 {
		opts = append(opts, gnet.WithTCPKeepCount(options.TCPKeepCount))
	}
	if options.TCPKeepInterval > 0 {
		opts = append(opts, gnet.WithTCPKeepInterval(options.TCPKeepInterval))
	}
	opts = append(opts, gnet.WithTCPNoDelay(options.TCPNoDelay))
	if options.SocketRecvBuffer > 0 {
		opts = append(opts, gnet.WithSocketRecvBuffer(options.SocketRecvBuffer))
	}
	if options.SocketSendBuffer > 0 {
		opts = append(opts, gnet.WithSocketSendBuffer(options.SocketSendBuffer))
	}
	if options.EdgeTriggeredIO {
		opts = append(opts, gnet.WithEdgeTriggeredIO(true))
	}

	rh.mu.Lock()
	rh.addr = addr
	rh.tcpAddr = addr
	rh.running = true
	rh.mu.Unlock()

	if options.TLSListenEnable {
		if err := rh.startTLSListener(options); err != nil {
			rh.mu.Lock()
			rh.running = false
			rh.mu.Unlock()
			return err
		}
	}

	err := gnet.Run(rh, addr, opts...)

	rh.mu.Lock()
	rh.running = false
	rh.mu.Unlock()

	if rh.tlsListener != nil {
		rh.tlsListener.Close()
	}
	return err
}

// Close gracefully shuts down a running server. Safe to call multiple
// times; returns an error if the server is not currently running.
func (rs *RedHub) Close() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.running {
		return errors.New("server not running")
	}
	rs.running = false

	if rs.tlsListener != nil {
		_ = rs.tlsListener.Close()
	}
	return rs.engine.Stop(context.Background())
}
