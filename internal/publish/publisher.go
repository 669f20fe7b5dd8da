// Package publish owns the outbound side: records normalized from
// device frames are enriched, serialized as JSON and handed to the
// Kafka producer. Enqueueing never blocks a session's read loop; when
// the queue is full the record is dropped and counted.
package publish

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"time"

	"github.com/quikmile/gps-ingester/internal/metrics"
	"github.com/quikmile/gps-ingester/internal/normalize"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"go.uber.org/zap"
)

// Topics published by the ingester. Fixed strings; the payload schemas
// and these names are the compatibility surface for downstream
// consumers.
const (
	TopicEvents   = "events"
	TopicLocation = "location"
	TopicStatus   = "status"
)

// Meta is the session identity attached to every record.
type Meta struct {
	IMEI      string
	SerialNo  uint16
	HasSerial bool
}

type Publisher struct {
	client *kgo.Client
	queue  chan *kgo.Record
	logger *zap.Logger
}

func New(brokers []string, clientID string, tlsCfg *tls.Config, saslMech sasl.Mechanism, queueSize int, logger *zap.Logger) (*Publisher, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.AllowAutoTopicCreation(),
	}
	if tlsCfg != nil {
		opts = append(opts, kgo.DialTLSConfig(tlsCfg))
	}
	if saslMech != nil {
		opts = append(opts, kgo.SASL(saslMech))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}

	return &Publisher{
		client: client,
		queue:  make(chan *kgo.Record, queueSize),
		logger: logger,
	}, nil
}

// Publish enriches rec with identity, timestamp and serial number, and
// enqueues it. Records from sessions that never authenticated are
// dropped with a warning.
func (p *Publisher) Publish(topic string, meta Meta, rec normalize.Record) {
	if meta.IMEI == "" {
		metrics.PublishDroppedTotal.WithLabelValues("no_imei").Inc()
		p.logger.Warn("dropping record from unidentified device", zap.String("topic", topic))
		return
	}
	if _, ok := rec["imei"]; !ok {
		rec["imei"] = meta.IMEI
	}
	if _, ok := rec["timestamp"]; !ok {
		rec["timestamp"] = time.Now().Unix()
	}
	if _, ok := rec["serial_no"]; !ok && meta.HasSerial {
		rec["serial_no"] = meta.SerialNo
	}

	value, err := json.Marshal(rec)
	if err != nil {
		metrics.PublishDroppedTotal.WithLabelValues("marshal").Inc()
		p.logger.Error("marshal record failed", zap.String("topic", topic), zap.Error(err))
		return
	}

	// Key by IMEI so one device's records stay ordered on a partition.
	r := &kgo.Record{Topic: topic, Key: []byte(meta.IMEI), Value: value}
	select {
	case p.queue <- r:
		metrics.PublishTotal.WithLabelValues(topic).Inc()
	default:
		metrics.PublishDroppedTotal.WithLabelValues("queue_full").Inc()
		p.logger.Error("publish queue full, dropping record", zap.String("topic", topic))
	}
}

// Run moves queued records into the producer until the context is
// cancelled, then drains whatever is left.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			p.drain(flushCtx)
			return
		case r := <-p.queue:
			p.produce(ctx, r)
		}
	}
}

func (p *Publisher) produce(ctx context.Context, r *kgo.Record) {
	p.client.Produce(ctx, r, func(r *kgo.Record, err error) {
		if err != nil {
			metrics.PublishErrorsTotal.WithLabelValues(r.Topic).Inc()
			p.logger.Error("produce failed", zap.String("topic", r.Topic), zap.Error(err))
		}
	})
}

func (p *Publisher) drain(ctx context.Context) {
	for {
		select {
		case r := <-p.queue:
			p.produce(ctx, r)
		default:
			if err := p.client.Flush(ctx); err != nil {
				p.logger.Error("final flush failed", zap.Error(err))
			}
			return
		}
	}
}

// Ping checks broker reachability; used by the readiness endpoint.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *Publisher) Close() {
	p.client.Close()
}
