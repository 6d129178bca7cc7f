package consumers

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"concierge/internal/orchestrator"
	"concierge/pkg/errors"
	"concierge/pkg/logger"
)

// InboundEvent is one customer chat message arriving on the inbound topic.
// The producer keys messages by session id, which serializes delivery per
// session and upholds the single-turn-in-flight assumption.
type InboundEvent struct {
	SessionID   string `json:"session_id"`
	WorkspaceID string `json:"workspace_id"`
	CustomerID  string `json:"customer_id"`
	Text        string `json:"text"`
}

// OutboundEvent is the assistant's reply published for delivery
type OutboundEvent struct {
	SessionID        string `json:"session_id"`
	WorkspaceID      string `json:"workspace_id"`
	Text             string `json:"text"`
	State            string `json:"state"`
	HandoffTriggered bool   `json:"handoff_triggered"`
}

// Publisher sends outbound events keyed by session
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// TurnHandler is the orchestrator surface the consumer needs
type TurnHandler interface {
	HandleMessage(ctx context.Context, msg orchestrator.InboundMessage) (*orchestrator.TurnResult, error)
}

// ChatConsumer drives the orchestrator from the inbound chat topic
type ChatConsumer struct {
	orch          TurnHandler
	publisher     Publisher
	outboundTopic string
	log           *logger.Logger
}

// NewChatConsumer creates a chat message consumer
func NewChatConsumer(orch TurnHandler, publisher Publisher, outboundTopic string) *ChatConsumer {
	return &ChatConsumer{
		orch:          orch,
		publisher:     publisher,
		outboundTopic: outboundTopic,
		log:           logger.Get().With("component", "chat_consumer"),
	}
}

// HandleMessage processes one inbound kafka message end to end
func (c *ChatConsumer) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var event InboundEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// Malformed payloads are dropped, not retried
		c.log.Warnw("Dropping malformed inbound event", "error", err)
		return nil
	}
	if event.SessionID == "" || event.Text == "" {
		c.log.Warnw("Dropping incomplete inbound event", "session_id", event.SessionID)
		return nil
	}

	result, err := c.orch.HandleMessage(ctx, orchestrator.InboundMessage{
		SessionID:   event.SessionID,
		WorkspaceID: event.WorkspaceID,
		CustomerID:  event.CustomerID,
		Text:        event.Text,
	})
	if err != nil {
		return errors.Wrapf(err, "handle message: session_id=%s", event.SessionID)
	}

	if !result.ShouldSendMessage {
		c.log.Debugw("Turn produced no outbound message",
			"session_id", event.SessionID,
			"state", result.State,
		)
		return nil
	}

	outbound := OutboundEvent{
		SessionID:        event.SessionID,
		WorkspaceID:      event.WorkspaceID,
		Text:             result.Response,
		State:            string(result.State),
		HandoffTriggered: result.HandoffTriggered,
	}
	if err := c.publisher.Publish(ctx, c.outboundTopic, event.SessionID, outbound); err != nil {
		return errors.Wrapf(err, "publish outbound: session_id=%s", event.SessionID)
	}

	return nil
}
