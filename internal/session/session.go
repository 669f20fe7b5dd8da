// Package session runs one device connection: a read loop that decodes
// frames, acknowledges them, tracks the device identity and forwards
// normalized records to the publisher.
package session

import (
	"context"
	"errors"
	"io"
	"net"
	"regexp"
	"sync"
	"time"

	"github.com/quikmile/gps-ingester/internal/metrics"
	"github.com/quikmile/gps-ingester/internal/normalize"
	"github.com/quikmile/gps-ingester/internal/protocol"
	"github.com/quikmile/gps-ingester/internal/publish"
	"go.uber.org/zap"
)

// Sink receives normalized records; satisfied by *publish.Publisher.
type Sink interface {
	Publish(topic string, meta publish.Meta, rec normalize.Record)
}

var imeiPattern = regexp.MustCompile(`^[0-9]+$`)

// Session owns one TCP connection and its per-device state. The
// session goroutine is the sole mutator; nothing here needs a lock.
type Session struct {
	conn    net.Conn
	proto   string
	codec   protocol.Codec
	sink    Sink
	logger  *zap.Logger
	readBuf int

	imei       string
	serialNo   uint16
	hasSerial  bool
	lastStatus *protocol.Status
	lastFix    *protocol.Fix

	terminateOnce sync.Once
}

func New(conn net.Conn, proto string, codec protocol.Codec, sink Sink, readBufBytes int, logger *zap.Logger) *Session {
	return &Session{
		conn:    conn,
		proto:   proto,
		codec:   codec,
		sink:    sink,
		logger:  logger,
		readBuf: readBufBytes,
	}
}

// Run reads frames until EOF, a socket error or a malformed frame.
// Every exit path closes the connection and publishes OFFLINE exactly
// once.
func (s *Session) Run(ctx context.Context) {
	defer s.terminate()

	s.logger.Info("connection from client", zap.String("peer", s.conn.RemoteAddr().String()))

	buf := make([]byte, s.readBuf)
	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				s.logger.Warn("connection lost", zap.String("imei", s.imei))
			} else {
				s.logger.Warn("connection lost", zap.String("imei", s.imei), zap.Error(err))
			}
			return
		}
		metrics.BytesReadTotal.WithLabelValues(s.proto).Add(float64(n))

		// One read is one frame; a frame split across TCP segments
		// does not survive decoding and ends the session.
		pkt, err := s.codec.Decode(buf[:n])
		if err != nil {
			metrics.DecodeErrorsTotal.WithLabelValues(s.proto).Inc()
			s.logger.Warn("malformed frame, closing session",
				zap.String("imei", s.imei), zap.Error(err))
			return
		}

		metrics.FramesTotal.WithLabelValues(s.proto, pkt.Kind.String()).Inc()
		metrics.LastFrameTimestamp.WithLabelValues(s.proto).SetToCurrentTime()
		s.handle(pkt)
	}
}

func (s *Session) handle(pkt *protocol.Packet) {
	if pkt.HasSerial {
		s.serialNo = pkt.SerialNo
		s.hasSerial = true
	}

	for _, ack := range pkt.Acks {
		if ack.Delay > 0 {
			s.scheduleAck(ack)
			continue
		}
		s.writeAck(ack.Data)
	}

	switch pkt.Kind {
	case protocol.KindLogin:
		s.handleLogin(pkt)
	case protocol.KindStatus:
		s.handleStatus(pkt)
	case protocol.KindLocation, protocol.KindAlarm:
		s.handleLocation(pkt)
	case protocol.KindAnalog:
		s.handleAnalog(pkt)
	default:
		// Unknown opcodes are tolerated; the device keeps talking.
		s.logger.Debug("unhandled opcode",
			zap.String("opcode", pkt.Opcode), zap.String("imei", s.imei))
	}
}

func (s *Session) handleLogin(pkt *protocol.Packet) {
	if pkt.IMEI == "" || !imeiPattern.MatchString(pkt.IMEI) {
		s.logger.Warn("login with invalid imei", zap.String("imei", pkt.IMEI))
		return
	}
	s.imei = pkt.IMEI
	s.logger.Info("login from device", zap.String("imei", s.imei))
	s.sink.Publish(publish.TopicEvents, s.meta(), normalize.Event(protocol.EventOnline))
}

func (s *Session) handleStatus(pkt *protocol.Packet) {
	s.lastStatus = pkt.Status
	s.sink.Publish(publish.TopicStatus, s.meta(), normalize.Status(pkt.Status))
	if pkt.EventCode != "" {
		s.sink.Publish(publish.TopicEvents, s.meta(), normalize.Event(pkt.EventCode))
	}
}

func (s *Session) handleLocation(pkt *protocol.Packet) {
	// Alarm frames carry appended status bytes; the status path runs
	// before the fix is published.
	if pkt.Status != nil {
		s.handleStatus(pkt)
	}

	s.lastFix = pkt.Fix
	if pkt.Fix.Tracking {
		s.sink.Publish(publish.TopicLocation, s.meta(), normalize.Location(pkt.Fix))
	} else {
		s.sink.Publish(publish.TopicEvents, s.meta(), normalize.Event(protocol.EventInvalidLocation))
	}

	// MT05 and TK103 embed event flags in their location payloads.
	if pkt.Status == nil && pkt.EventCode != "" {
		s.sink.Publish(publish.TopicEvents, s.meta(), normalize.Event(pkt.EventCode))
	}
}

func (s *Session) handleAnalog(pkt *protocol.Packet) {
	rec := normalize.Record{}
	if s.lastStatus != nil {
		rec = normalize.Status(s.lastStatus)
	}
	s.sink.Publish(publish.TopicStatus, s.meta(), rec)
	s.sink.Publish(publish.TopicEvents, s.meta(), normalize.AnalogEvent(pkt.Analog))
}

func (s *Session) meta() publish.Meta {
	return publish.Meta{IMEI: s.imei, SerialNo: s.serialNo, HasSerial: s.hasSerial}
}

func (s *Session) writeAck(data []byte) {
	if len(data) == 0 {
		return
	}
	if _, err := s.conn.Write(data); err != nil {
		s.logger.Warn("ack write failed", zap.String("imei", s.imei), zap.Error(err))
		return
	}
	metrics.AcksTotal.WithLabelValues(s.proto).Inc()
}

// scheduleAck fires the ack on a detached timer so the read loop keeps
// flowing. The timer is not cancelled on teardown; a write on a closed
// connection fails and that is fine.
func (s *Session) scheduleAck(ack protocol.Ack) {
	conn := s.conn
	proto := s.proto
	time.AfterFunc(ack.Delay, func() {
		if _, err := conn.Write(ack.Data); err == nil {
			metrics.AcksTotal.WithLabelValues(proto).Inc()
		}
	})
}

// terminate closes the socket and publishes OFFLINE. Exactly once per
// session, whatever the exit path was.
func (s *Session) terminate() {
	s.terminateOnce.Do(func() {
		s.conn.Close()
		s.sink.Publish(publish.TopicEvents, s.meta(), normalize.Event(protocol.EventOffline))
		s.logger.Info("session closed", zap.String("imei", s.imei))
	})
}
