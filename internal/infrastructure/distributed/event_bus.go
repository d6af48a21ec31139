package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"skybridge/internal/core/domain"
	"skybridge/internal/infrastructure/streaming"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType tags a cross-device event.
type EventType string

const (
	EventAccountRebound EventType = "account.rebound"
	EventSessionStarted EventType = "session.started"
	EventSessionEnded   EventType = "session.ended"
)

// Event is one message on the shared coordination channel. Devices on
// the same account use it to learn about relay rebinds done elsewhere.
type Event struct {
	Type       EventType        `json:"type"`
	InstanceID string           `json:"instance_id"`
	Timestamp  time.Time        `json:"timestamp"`
	AccountID  domain.AccountID `json:"account_id,omitempty"`
	SessionID  domain.SessionID `json:"session_id,omitempty"`
	Payload    json.RawMessage  `json:"payload,omitempty"`
}

const eventChannel = "skybridge:events"

// EventBus publishes and consumes coordination events over Redis
// pub/sub.
type EventBus struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
	pubsub     *redis.PubSub
}

func NewEventBus(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
	}
}

// PublishEvent sends one event to the shared channel.
func (eb *EventBus) PublishEvent(ctx context.Context, event *Event) error {
	event.InstanceID = eb.instanceID
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := eb.client.Publish(ctx, eventChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"account_id", event.AccountID,
		"session_id", event.SessionID,
	)
	return nil
}

// PublishAccountRebound announces that this device minted a new relay
// binding for the account.
func (eb *EventBus) PublishAccountRebound(ctx context.Context, accountID domain.AccountID, relayID string) error {
	payload, _ := json.Marshal(map[string]string{"relay_id": relayID})
	return eb.PublishEvent(ctx, &Event{
		Type:      EventAccountRebound,
		AccountID: accountID,
		Payload:   payload,
	})
}

// Subscribe consumes events until the context ends, skipping events
// this instance published itself.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*Event) error) error {
	if eb.pubsub != nil {
		return fmt.Errorf("already subscribed")
	}

	eb.pubsub = eb.client.Subscribe(ctx, eventChannel)
	defer eb.pubsub.Close()

	ch := eb.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				eb.logger.Warnw("failed to unmarshal event", "error", err, "payload", msg.Payload)
				continue
			}
			if event.InstanceID == eb.instanceID {
				continue
			}
			if err := handler(&event); err != nil {
				eb.logger.Warnw("error handling event", "type", event.Type, "error", err)
			}
		}
	}
}

// Close tears the subscription down.
func (eb *EventBus) Close() error {
	if eb.pubsub != nil {
		return eb.pubsub.Close()
	}
	return nil
}

// SessionEventRelay mirrors local session lifecycle events onto the
// coordination channel, best effort. It satisfies streaming.EventSink.
type SessionEventRelay struct {
	bus *EventBus
}

func NewSessionEventRelay(bus *EventBus) *SessionEventRelay {
	return &SessionEventRelay{bus: bus}
}

func (r *SessionEventRelay) Publish(event streaming.SessionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	eventType := EventSessionStarted
	if event.Type == "session_ended" {
		eventType = EventSessionEnded
	}
	_ = r.bus.PublishEvent(ctx, &Event{
		Type:      eventType,
		SessionID: event.SessionID,
	})
}
