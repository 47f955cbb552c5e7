// Package hitevents publishes viewport lookup outcomes to Kafka.
package hitevents

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/geofeature-cache/internal/cache/keys"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/model"
	h3mapper "github.com/mohammed-shakir/geofeature-cache/internal/mapper/h3"
)

const (
	DefaultQueueSize = 1024
	DefaultRes       = 7
	// regions aggregate lookups coarser than the per-viewport cell
	RegionRes = 3
)

type Event struct {
	MinLat  float64   `json:"minLat"`
	MinLng  float64   `json:"minLng"`
	MaxLat  float64   `json:"maxLat"`
	MaxLng  float64   `json:"maxLng"`
	Cell    string    `json:"cell,omitempty"`
	Region  string    `json:"region,omitempty"`
	Outcome string    `json:"outcome"`
	TS      time.Time `json:"ts"`
}

type lookup struct {
	b       model.ViewportBounds
	outcome string
	ts      time.Time
}

type Publisher struct {
	topic   string
	res     int
	logger  *slog.Logger
	events  chan lookup
	prod    sarama.AsyncProducer
	stopped chan struct{}
	errDone chan struct{}
	once    sync.Once
}

// NewPublisher dials brokers and starts the publishing loop.
func NewPublisher(brokers []string, topic string, queueSize, res int, logger *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("hitevents: create async producer: %w", err)
	}
	return New(prod, topic, queueSize, res, logger), nil
}

// New wraps an existing producer; the publisher owns it from here on.
func New(prod sarama.AsyncProducer, topic string, queueSize, res int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if res < 0 || res > 15 {
		res = DefaultRes
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	p := &Publisher{
		topic:   topic,
		res:     res,
		logger:  logger,
		events:  make(chan lookup, queueSize),
		prod:    prod,
		stopped: make(chan struct{}),
		errDone: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for l := range p.events {
			msg, err := p.message(l)
			if err != nil {
				p.logger.Warn("hitevents: build message", "err", err)
				continue
			}
			p.prod.Input() <- msg
		}
	}()

	go func() {
		defer close(p.errDone)
		for err := range p.prod.Errors() {
			if err != nil {
				p.logger.Warn("hitevents: producer error", "err", err)
			}
		}
	}()

	return p
}

func (p *Publisher) message(l lookup) (*sarama.ProducerMessage, error) {
	ev := Event{
		MinLat:  l.b.MinLat,
		MinLng:  l.b.MinLng,
		MaxLat:  l.b.MaxLat,
		MaxLng:  l.b.MaxLng,
		Outcome: l.outcome,
		TS:      l.ts,
	}
	if cell, err := h3mapper.CenterCell(l.b, p.res); err == nil {
		ev.Cell = cell
		if region, err := h3mapper.ParentCell(cell, min(RegionRes, p.res)); err == nil {
			ev.Region = region
		}
	} else {
		p.logger.Debug("hitevents: no cell for bounds", "bounds", l.b.String(), "err", err)
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(keys.BoundsKey(l.b)),
		Value: sarama.ByteEncoder(b),
	}, nil
}

// PublishLookup enqueues one lookup outcome without blocking.
func (p *Publisher) PublishLookup(b model.ViewportBounds, outcome string) {
	select {
	case p.events <- lookup{b: b, outcome: outcome, ts: time.Now().UTC()}:
	default:
		// queue full, drop
	}
}

// Close drains queued events and closes the producer. PublishLookup must
// not be called after Close.
func (p *Publisher) Close() error {
	var err error
	p.once.Do(func() {
		close(p.events)
		<-p.stopped
		if cerr := p.prod.Close(); cerr != nil {
			err = fmt.Errorf("hitevents: close producer: %w", cerr)
		}
		<-p.errDone
	})
	return err
}
