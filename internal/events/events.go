// Package events is the in-process domain event publisher. Handlers are
// registered against typed event names; unknown names fall through to a
// no-op.
package events

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Name identifies a domain event type.
type Name string

const (
	SubscriptionActivated Name = "subscription.activated"
	RefundCreated         Name = "refund.created"
)

// Event is the payload delivered to handlers.
type Event struct {
	Name           Name
	OrderID        snowflake.ID
	TransactionID  snowflake.ID
	SubscriptionID snowflake.ID
	Amount         int64
	Currency       string
	Fields         map[string]any
}

// Handler consumes one event. Handler errors are logged, never propagated
// to the publishing flow.
type Handler func(ctx context.Context, ev Event) error

// Publisher dispatches events to registered handlers synchronously.
type Publisher struct {
	mu       sync.RWMutex
	handlers map[Name][]Handler
	log      *zap.Logger
}

func NewPublisher(log *zap.Logger) *Publisher {
	return &Publisher{
		handlers: map[Name][]Handler{},
		log:      log.Named("events"),
	}
}

// Subscribe registers a handler for an event name.
func (p *Publisher) Subscribe(name Name, h Handler) {
	if h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[name] = append(p.handlers[name], h)
}

// Publish delivers the event to every handler registered for its name.
func (p *Publisher) Publish(ctx context.Context, ev Event) {
	p.mu.RLock()
	handlers := p.handlers[ev.Name]
	p.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			p.log.Warn("event handler failed",
				zap.String("event", string(ev.Name)),
				zap.Error(err),
			)
		}
	}
}

var Module = fx.Module("events",
	fx.Provide(NewPublisher),
)
