package shuttlelink

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	fleet "shuttle-gateway/internal/fleet/domain"
	"shuttle-gateway/internal/observability/metrics"
)

// Handler receives every parsed message from a shuttle connection.
type Handler func(ctx context.Context, shuttleID string, msg Message)

// Listener accepts inbound connections from shuttles and feeds parsed
// lines to a handler. Shuttles are identified by their source address
// against the fleet network map.
type Listener struct {
	addr        string
	fleet       fleet.Config
	handler     Handler
	logger      *log.Logger
	idleTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
}

// NewListener builds a listener bound to addr, e.g. ":2010".
func NewListener(addr string, cfg fleet.Config, handler Handler, logger *log.Logger) *Listener {
	if logger == nil {
		logger = log.Default()
	}
	return &Listener{
		addr:        addr,
		fleet:       cfg,
		handler:     handler,
		logger:      logger,
		idleTimeout: 5 * time.Minute,
	}
}

// ListenAndServe accepts connections until the context is canceled.
func (l *Listener) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("shuttlelink: listen %s: %w", l.addr, err)
	}
	l.mu.Lock()
	l.listener = listener
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	l.logger.Printf("shuttlelink: listening on %s", l.addr)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("shuttlelink: accept: %w", err)
		}
		go l.serveConn(ctx, conn)
	}
}

// Close shuts the accept loop down.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Close()
}

func (l *Listener) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	shuttleID := l.resolveShuttle(conn.RemoteAddr())
	if shuttleID == "" {
		l.logger.Printf("shuttlelink: connection from unconfigured address %s, dropping", conn.RemoteAddr())
		return
	}
	metrics.AddActiveConnections(1)
	defer metrics.AddActiveConnections(-1)
	l.logger.Printf("shuttlelink: shuttle %s connected from %s", shuttleID, conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	for {
		conn.SetReadDeadline(time.Now().Add(l.idleTimeout))
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && ctx.Err() == nil {
				l.logger.Printf("shuttlelink: shuttle %s read: %v", shuttleID, err)
			}
			return
		}
		msg := ParseMessage(scanner.Text())
		if msg.Raw == "" {
			continue
		}
		metrics.IncMessageReceived(shuttleID, string(msg.Type))

		// Lifecycle messages are confirmed so the controller stops
		// retransmitting them.
		switch msg.Type {
		case MessageStarted, MessageDone, MessageAbort:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if _, err := conn.Write([]byte("MRCD\n")); err != nil {
				l.logger.Printf("shuttlelink: shuttle %s ack: %v", shuttleID, err)
				return
			}
		}

		if l.handler != nil {
			l.handler(ctx, shuttleID, msg)
		}
	}
}

// resolveShuttle maps a remote address to a configured shuttle id by host.
func (l *Listener) resolveShuttle(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return ""
	}
	for id, network := range l.fleet.Shuttles {
		if network.Host == host {
			return id
		}
	}
	return ""
}
