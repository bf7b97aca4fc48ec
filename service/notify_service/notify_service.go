package notify_service

import (
	"context"
	"log"
	"time"
)

const notifyTimeout = 10 * time.Second

// NotifyService fans an event out to every registered dispatcher for every
// recipient. Deliveries are fire-and-forget; failures are logged and never
// surface to the caller.
type NotifyService struct {
	dispatchers []Dispatcher
}

func NewNotifyService(dispatchers ...Dispatcher) *NotifyService {
	if len(dispatchers) == 0 {
		dispatchers = []Dispatcher{&LogDispatcher{}}
	}
	return &NotifyService{dispatchers: dispatchers}
}

// Send delivers the event to every contact asynchronously
func (s *NotifyService) Send(contacts []string, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, contact := range contacts {
		for _, dispatcher := range s.dispatchers {
			go func(d Dispatcher, contact string) {
				ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
				defer cancel()
				if err := d.Notify(ctx, contact, event); err != nil {
					log.Printf("Notification via %s to %s failed: %v", d.Name(), contact, err)
				}
			}(dispatcher, contact)
		}
	}
}
