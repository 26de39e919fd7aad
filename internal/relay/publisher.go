package relay

import (
	"context"
	"encoding/json"
	"time"
)

// StatusSource supplies the periodic snapshots the Publisher broadcasts.
type StatusSource interface {
	CaptureStatus() any
	BufferStatus(ctx context.Context) (any, error)
}

// Publisher polls a StatusSource on a fixed interval and publishes each
// snapshot to a Broker's FeedCapture and FeedBuffer feeds, giving SSE
// clients a live view without polling the control-plane REST endpoints.
type Publisher struct {
	broker   *Broker
	source   StatusSource
	interval time.Duration
}

// NewPublisher builds a Publisher broadcasting through broker.
func NewPublisher(broker *Broker, source StatusSource, interval time.Duration) *Publisher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Publisher{broker: broker, source: source, interval: interval}
}

// Start runs the polling loop until ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.tick(ctx)
			}
		}
	}()
}

func (p *Publisher) tick(ctx context.Context) {
	if payload, err := json.Marshal(p.source.CaptureStatus()); err == nil {
		p.broker.Publish(Event{Feed: FeedCapture, Payload: string(payload)})
	}
	if status, err := p.source.BufferStatus(ctx); err == nil {
		if payload, merr := json.Marshal(status); merr == nil {
			p.broker.Publish(Event{Feed: FeedBuffer, Payload: string(payload)})
		}
	}
}
