package signal

import (
	"context"
	"sync"

	"github.com/vmgrid/vmgrid-core/internal/entity"
	"github.com/vmgrid/vmgrid-core/internal/infrastructure/mqtt"
)

// Publisher is the publishing surface of the MQTT client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger is the minimal logging surface for sinks.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

const (
	signalQoS     = 1
	messageBuffer = 256
)

// MQTTSink publishes mirror notifications to the broker.
//
// Notifier calls enqueue onto an internal buffer and a single pump
// goroutine does the publishing, so broker latency never blocks event
// handling. When the buffer is full the message is dropped and counted;
// retained state topics recover on the next change, and structural
// events are recoverable from the read API.
type MQTTSink struct {
	pub    Publisher
	topics mqtt.Topics
	logger Logger

	messages chan Message

	mu      sync.Mutex
	dropped int64
	started bool
}

// NewMQTTSink creates a sink over the given publisher. Call Start
// before wiring it into the notifier.
func NewMQTTSink(pub Publisher, logger Logger) *MQTTSink {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MQTTSink{
		pub:      pub,
		logger:   logger,
		messages: make(chan Message, messageBuffer),
	}
}

// Start launches the publishing pump. It returns once the pump is
// running; the pump stops when ctx is cancelled.
func (s *MQTTSink) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.pump(ctx)
}

func (s *MQTTSink) pump(ctx context.Context) {
	for {
		select {
		case msg := <-s.messages:
			if err := s.pub.Publish(msg.Topic, msg.Payload, signalQoS, msg.Retained); err != nil {
				s.logger.Warn("signal publish failed", "topic", msg.Topic, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Dropped reports how many messages were discarded because the buffer
// was full.
func (s *MQTTSink) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *MQTTSink) enqueue(msg Message) {
	select {
	case s.messages <- msg:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		s.logger.Warn("signal buffer full, message dropped", "topic", msg.Topic)
	}
}

// PropertiesChanged publishes the change batch to the entity's retained
// state topic.
func (s *MQTTSink) PropertiesChanged(id entity.Identity, changed entity.Snapshot, invalidated []string) {
	s.enqueue(stateMessage(s.topics.EntityState(string(id)), id, changed, invalidated))
}

// Added publishes an added event.
func (s *MQTTSink) Added(id entity.Identity) {
	s.enqueue(eventMessage(s.topics.EntityEvent("added", string(id)), id, "added", "", ""))
}

// Removed publishes a removed event and clears the entity's retained
// state topic.
func (s *MQTTSink) Removed(id entity.Identity) {
	s.enqueue(eventMessage(s.topics.EntityEvent("removed", string(id)), id, "removed", "", ""))
	// An empty retained payload deletes the retained message.
	s.enqueue(Message{Topic: s.topics.EntityState(string(id)), Retained: true})
}

// Attached publishes a device assignment event.
func (s *MQTTSink) Attached(id entity.Identity, frontend entity.Identity) {
	s.enqueue(eventMessage(s.topics.EntityEvent("attached", string(id)), id, "attached", frontend, ""))
}

// Detached publishes a cleared assignment event.
func (s *MQTTSink) Detached(id entity.Identity, frontend entity.Identity) {
	s.enqueue(eventMessage(s.topics.EntityEvent("detached", string(id)), id, "detached", frontend, ""))
}

// DomainState publishes a lifecycle signal to the domain's lifecycle
// topic.
func (s *MQTTSink) DomainState(id entity.Identity, state entity.State) {
	s.enqueue(eventMessage(s.topics.DomainLifecycle(string(id)), id, "state", "", state))
}
