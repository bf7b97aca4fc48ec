package notify_service

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingDispatcher struct {
	mu       sync.Mutex
	contacts []string
	events   []Event
}

func (d *recordingDispatcher) Name() string {
	return "recording"
}

func (d *recordingDispatcher) Notify(_ context.Context, contact string, event Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contacts = append(d.contacts, contact)
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.contacts)
}

func TestSendFansOutToAllContacts(t *testing.T) {
	recorder := &recordingDispatcher{}
	service := NewNotifyService(recorder)

	service.Send([]string{"a@example.com", "b@example.com", "c@example.com"}, Event{
		Type:     EventRecoveryInitiated,
		WalletID: "wallet-1",
		Message:  "recovery started",
	})

	deadline := time.After(2 * time.Second)
	for recorder.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("Expected 3 deliveries, got %d", recorder.count())
		case <-time.After(10 * time.Millisecond):
		}
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	for _, event := range recorder.events {
		if event.Type != EventRecoveryInitiated {
			t.Errorf("Expected event type %s, got %s", EventRecoveryInitiated, event.Type)
		}
		if event.Timestamp.IsZero() {
			t.Errorf("Expected timestamp to be filled in")
		}
	}
}

func TestNewNotifyServiceDefaultsToLog(t *testing.T) {
	service := NewNotifyService()
	if len(service.dispatchers) != 1 {
		t.Fatalf("Expected 1 default dispatcher, got %d", len(service.dispatchers))
	}
	if service.dispatchers[0].Name() != "log" {
		t.Errorf("Expected log dispatcher, got %s", service.dispatchers[0].Name())
	}
}
