package notify

import (
	"github.com/sirupsen/logrus"
)

// Event names announced by the core.
const (
	EventMarketCreated   = "market.created"
	EventMarketApproved  = "market.approved"
	EventMarketClosed    = "market.closed"
	EventMarketSettled   = "market.settled"
	EventMarketCancelled = "market.cancelled"
	EventRewardProcessed = "reward.processed"
)

// Event is a state-change announcement emitted by the core.
type Event struct {
	Name    string
	Payload map[string]any
}

// Publisher decouples the core from any delivery transport. Implementations
// must be safe for concurrent use and must never block settlement.
type Publisher interface {
	Publish(event Event)
}

// LogPublisher announces events to the structured log. It is the default
// wiring when no push transport is configured.
type LogPublisher struct {
	log *logrus.Logger
}

func NewLogPublisher(log *logrus.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(event Event) {
	p.log.WithField("event", event.Name).WithFields(event.Payload).Info("event published")
}

// NopPublisher drops every event; useful in tests.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}
