package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type Type string

const (
	TypeIngested Type = "image.ingested"
	TypeRemoved  Type = "image.removed"
	TypeFailed   Type = "image.failed"
)

const (
	queueSize      = 100
	subscriberSize = 16
)

type Event struct {
	Type      Type     `json:"type"`
	Timestamp int64    `json:"timestamp"`
	ImageID   string   `json:"imageId,omitempty"`
	Variants  []string `json:"variants,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// Publisher fans ingestion events out to subscribers. Publishing never
// blocks: events are dropped when the queue or a subscriber is full.
type Publisher struct {
	ch          chan Event
	done        atomic.Bool
	mu          sync.Mutex
	subscribers map[uint64]chan Event
	next        uint64
}

func (p *Publisher) ImageIngested(imageID string, variants []string) error {
	return p.publish(Event{
		Type:      TypeIngested,
		Timestamp: time.Now().Unix(),
		ImageID:   imageID,
		Variants:  append([]string(nil), variants...),
	})
}

func (p *Publisher) ImageRemoved(imageID string) error {
	return p.publish(Event{
		Type:      TypeRemoved,
		Timestamp: time.Now().Unix(),
		ImageID:   imageID,
	})
}

func (p *Publisher) PublishError(message, resource string) error {
	return p.publish(Event{
		Type:      TypeFailed,
		Timestamp: time.Now().Unix(),
		ImageID:   resource,
		Message:   message,
	})
}

func (p *Publisher) publish(event Event) error {
	if p.done.Load() {
		return fmt.Errorf("publisher is closed")
	}

	select {
	case p.ch <- event:
		return nil
	default:
		return fmt.Errorf("event queue is full, dropping event")
	}
}

// Subscribe returns a channel of future events and a function releasing it.
// The channel is closed on release or when the publisher stops.
func (p *Publisher) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberSize)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done.Load() {
		close(ch)
		return ch, func() {}
	}

	id := p.next
	p.next++
	p.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if sub, ok := p.subscribers[id]; ok {
				delete(p.subscribers, id)
				close(sub)
			}
		})
	}
}

func (p *Publisher) dispatch(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sub := range p.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

func (p *Publisher) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done.Store(true)
	for id, sub := range p.subscribers {
		delete(p.subscribers, id)
		close(sub)
	}
}

// NewPublisher starts dispatching until ctx is cancelled.
func NewPublisher(ctx context.Context) *Publisher {
	events := make(chan Event, queueSize)
	publisher := &Publisher{ch: events, subscribers: make(map[uint64]chan Event)}

	go func() {
		defer publisher.stop()

		for {
			select {
			case <-ctx.Done():
				for {
					select {
					case event := <-events:
						publisher.dispatch(event)
					default:
						return
					}
				}
			case event := <-events:
				publisher.dispatch(event)
			}
		}
	}()

	return publisher
}
