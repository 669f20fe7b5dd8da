// Package server binds one TCP listener per enabled protocol and keeps
// them running. Each listener is isolated: a panic or bind failure in
// one protocol's accept loop never touches the others.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/quikmile/gps-ingester/internal/metrics"
	"github.com/quikmile/gps-ingester/internal/protocol"
	"github.com/quikmile/gps-ingester/internal/session"
	"go.uber.org/zap"
)

// Listener runs the accept loop for one protocol and tracks its live
// connections so shutdown can cut them loose.
type Listener struct {
	proto   protocol.Proto
	bind    string
	sink    session.Sink
	readBuf int
	logger  *zap.Logger
	ready   *atomic.Bool

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func NewListener(proto protocol.Proto, bind string, sink session.Sink, readBufBytes int, ready *atomic.Bool, logger *zap.Logger) *Listener {
	return &Listener{
		proto:   proto,
		bind:    bind,
		sink:    sink,
		readBuf: readBufBytes,
		ready:   ready,
		logger:  logger,
		conns:   map[net.Conn]struct{}{},
	}
}

// Run accepts connections until the context is cancelled, then closes
// every live connection and waits for its sessions to finish.
func (l *Listener) Run(ctx context.Context) error {
	addr := net.JoinHostPort(l.bind, strconv.Itoa(l.proto.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	l.ready.Store(true)
	defer l.ready.Store(false)
	l.logger.Info("listening", zap.String("addr", addr))

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			l.logger.Error("accept failed", zap.Error(err))
			continue
		}
		l.serve(ctx, conn)
	}

	l.closeAll()
	l.wg.Wait()
	return ctx.Err()
}

func (l *Listener) serve(ctx context.Context, conn net.Conn) {
	l.mu.Lock()
	l.conns[conn] = struct{}{}
	l.mu.Unlock()

	metrics.ActiveSessions.WithLabelValues(l.proto.Name).Inc()
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			l.mu.Lock()
			delete(l.conns, conn)
			l.mu.Unlock()
			metrics.ActiveSessions.WithLabelValues(l.proto.Name).Dec()
		}()

		sess := session.New(conn, l.proto.Name, l.proto.New(), l.sink, l.readBuf, l.logger)
		sess.Run(ctx)
	}()
}

func (l *Listener) closeAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for conn := range l.conns {
		conn.Close()
	}
}
