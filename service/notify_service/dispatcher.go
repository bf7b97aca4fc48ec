package notify_service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-zeromq/zmq4"

	"wallet-recovery-system/tool"
)

// Event types pushed to guardians and wallet owners
const (
	EventGuardianInvited   = "guardian_invited"
	EventGuardianRemoved   = "guardian_removed"
	EventRecoveryInitiated = "recovery_initiated"
	EventRecoveryApproved  = "recovery_approved"
	EventRecoveryExecuted  = "recovery_executed"
	EventRecoveryCancelled = "recovery_cancelled"
	EventRecoveryExpired   = "recovery_expired"
)

// Event notification payload
type Event struct {
	Type      string    `json:"type"`
	WalletID  string    `json:"walletId"`
	RequestID int64     `json:"requestId,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Dispatcher delivers one event to one contact. Delivery is best effort,
// recovery state never depends on it.
type Dispatcher interface {
	Name() string
	Notify(ctx context.Context, contact string, event Event) error
}

// LogDispatcher writes notifications to the process log. Always registered
// so events are visible even with no external channel configured.
type LogDispatcher struct{}

func (d *LogDispatcher) Name() string {
	return "log"
}

func (d *LogDispatcher) Notify(_ context.Context, contact string, event Event) error {
	log.Printf("Notify %s: [%s] wallet=%s request=%d %s", contact, event.Type, event.WalletID, event.RequestID, event.Message)
	return nil
}

// WebhookDispatcher POSTs events to a configured endpoint
type WebhookDispatcher struct {
	url string
}

func NewWebhookDispatcher(url string) *WebhookDispatcher {
	return &WebhookDispatcher{url: url}
}

func (d *WebhookDispatcher) Name() string {
	return "webhook"
}

func (d *WebhookDispatcher) Notify(_ context.Context, contact string, event Event) error {
	payload := map[string]interface{}{
		"contact": contact,
		"event":   event,
	}
	if _, err := tool.PostUrl(d.url, payload, nil); err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	return nil
}

// ZMQDispatcher publishes events on a PUB socket so external services can
// subscribe to the recovery event stream
type ZMQDispatcher struct {
	socket zmq4.Socket
	topic  string
}

func NewZMQDispatcher(ctx context.Context, listenAddr string) (*ZMQDispatcher, error) {
	socket := zmq4.NewPub(ctx)
	if err := socket.Listen(listenAddr); err != nil {
		return nil, fmt.Errorf("failed to bind zmq pub socket on %s: %w", listenAddr, err)
	}
	log.Printf("ZMQ event publisher listening on %s", listenAddr)
	return &ZMQDispatcher{socket: socket, topic: "recovery"}, nil
}

func (d *ZMQDispatcher) Name() string {
	return "zmq"
}

func (d *ZMQDispatcher) Notify(_ context.Context, contact string, event Event) error {
	payload, err := json.Marshal(map[string]interface{}{
		"contact": contact,
		"event":   event,
	})
	if err != nil {
		return err
	}
	return d.socket.Send(zmq4.NewMsgFrom([]byte(d.topic), payload))
}

func (d *ZMQDispatcher) Close() error {
	return d.socket.Close()
}
