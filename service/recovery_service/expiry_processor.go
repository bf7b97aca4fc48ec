package recovery_service

import (
	"log"
	"time"

	"wallet-recovery-system/conf"
)

// ExpiryProcessor sweeps pending recovery requests past their deadline.
// Requests also expire lazily on access; the sweep catches the ones nobody
// touches.
type ExpiryProcessor struct {
	recoveryService *RecoveryService
	stopChan        chan struct{}
	interval        time.Duration
	batchSize       int
}

// NewExpiryProcessor create expiry processor
func NewExpiryProcessor(recoveryService *RecoveryService) *ExpiryProcessor {
	interval := 10 * time.Minute
	if conf.Cfg != nil && conf.Cfg.Recovery.SweepInterval > 0 {
		interval = time.Duration(conf.Cfg.Recovery.SweepInterval) * time.Second
	}
	return &ExpiryProcessor{
		recoveryService: recoveryService,
		stopChan:        make(chan struct{}),
		interval:        interval,
		batchSize:       100,
	}
}

// Start start expiry processor
func (ep *ExpiryProcessor) Start() {
	log.Println("Recovery expiry processor started")
	go ep.run()
}

// Stop stop expiry processor
func (ep *ExpiryProcessor) Stop() {
	log.Println("Stopping recovery expiry processor...")
	close(ep.stopChan)
}

func (ep *ExpiryProcessor) run() {
	ticker := time.NewTicker(ep.interval)
	defer ticker.Stop()

	// Run once at startup
	ep.sweep()

	for {
		select {
		case <-ep.stopChan:
			log.Println("Recovery expiry processor stopped")
			return
		case <-ticker.C:
			ep.sweep()
		}
	}
}

func (ep *ExpiryProcessor) sweep() {
	expired, err := ep.recoveryService.ExpireStaleRequests(time.Now(), ep.batchSize)
	if err != nil {
		log.Printf("Failed to sweep expired recovery requests: %v", err)
		return
	}
	if expired > 0 {
		log.Printf("Expired %d stale recovery requests", expired)
	}
}
