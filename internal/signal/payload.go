package signal

import (
	"encoding/json"
	"time"

	"github.com/vmgrid/vmgrid-core/internal/entity"
)

// Message is one outward notification, ready for transport.
type Message struct {
	// Topic is the MQTT topic for the message. WebSocket consumers
	// receive it as the "topic" payload field instead.
	Topic string

	// Retained marks messages whose topic should keep the latest value.
	Retained bool

	Payload []byte
}

// statePayload is the body of a property change notification.
type statePayload struct {
	Identity    string          `json:"identity"`
	Changed     entity.Snapshot `json:"changed,omitempty"`
	Invalidated []string        `json:"invalidated,omitempty"`
	Timestamp   string          `json:"ts"`
}

// eventPayload is the body of a structural notification.
type eventPayload struct {
	Identity  string `json:"identity"`
	Event     string `json:"event"`
	Frontend  string `json:"frontend,omitempty"`
	State     string `json:"state,omitempty"`
	Timestamp string `json:"ts"`
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func stateMessage(topic string, id entity.Identity, changed entity.Snapshot, invalidated []string) Message {
	payload, _ := json.Marshal(statePayload{
		Identity:    string(id),
		Changed:     changed,
		Invalidated: invalidated,
		Timestamp:   timestamp(),
	})
	return Message{Topic: topic, Retained: true, Payload: payload}
}

func eventMessage(topic string, id entity.Identity, event string, frontend entity.Identity, state entity.State) Message {
	payload, _ := json.Marshal(eventPayload{
		Identity:  string(id),
		Event:     event,
		Frontend:  string(frontend),
		State:     string(state),
		Timestamp: timestamp(),
	})
	return Message{Topic: topic, Payload: payload}
}
