package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quikmile/gps-ingester/internal/metrics"
	"github.com/quikmile/gps-ingester/internal/protocol"
	"github.com/quikmile/gps-ingester/internal/session"
	"go.uber.org/zap"
)

const (
	restartBackoffMin = time.Second
	restartBackoffMax = 30 * time.Second
)

// Supervisor starts one listener goroutine per enabled protocol and
// restarts any that crash or fail to bind, with exponential backoff.
type Supervisor struct {
	protos  []protocol.Proto
	bind    string
	sink    session.Sink
	readBuf int
	logger  *zap.Logger

	ready map[string]*atomic.Bool
}

func NewSupervisor(protos []protocol.Proto, bind string, sink session.Sink, readBufBytes int, logger *zap.Logger) *Supervisor {
	s := &Supervisor{
		protos:  protos,
		bind:    bind,
		sink:    sink,
		readBuf: readBufBytes,
		logger:  logger,
		ready:   map[string]*atomic.Bool{},
	}
	for _, p := range protos {
		s.ready[p.Name] = &atomic.Bool{}
	}
	return s
}

// Run blocks until the context is cancelled and every listener has
// stopped.
func (s *Supervisor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range s.protos {
		wg.Add(1)
		go func(p protocol.Proto) {
			defer wg.Done()
			s.supervise(ctx, p)
		}(p)
	}
	wg.Wait()
}

// Ready reports whether every enabled listener is currently bound.
func (s *Supervisor) Ready() bool {
	for _, r := range s.ready {
		if !r.Load() {
			return false
		}
	}
	return true
}

func (s *Supervisor) supervise(ctx context.Context, p protocol.Proto) {
	logger := s.logger.Named(p.Name)
	backoff := restartBackoffMin
	for {
		start := time.Now()
		err := s.runListener(ctx, p, logger)
		if ctx.Err() != nil {
			return
		}

		metrics.ListenerRestartsTotal.WithLabelValues(p.Name).Inc()
		logger.Error("listener exited, restarting",
			zap.Error(err), zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		// A listener that held up for a while earns a fresh backoff.
		if time.Since(start) > restartBackoffMax {
			backoff = restartBackoffMin
		} else if backoff *= 2; backoff > restartBackoffMax {
			backoff = restartBackoffMax
		}
	}
}

// runListener contains the panic boundary: a crash inside one
// protocol's accept loop or sessions set up here surfaces as an error
// instead of taking the process down.
func (s *Supervisor) runListener(ctx context.Context, p protocol.Proto, logger *zap.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	l := NewListener(p, s.bind, s.sink, s.readBuf, s.ready[p.Name], logger)
	return l.Run(ctx)
}
