package audit_service

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/schollz/progressbar/v3"

	"wallet-recovery-system/conf"
	"wallet-recovery-system/model"
	"wallet-recovery-system/model/dao"
	"wallet-recovery-system/storage"
)

// ArchiveProcessor exports aged audit entries to object storage in batches.
// Entries are never deleted from the database; the processor only advances a
// cursor so each entry is exported once.
type ArchiveProcessor struct {
	auditDAO  *dao.AuditEntryDAO
	store     storage.Storage
	stopChan  chan struct{}
	interval  time.Duration
	batchSize int
	afterDays int
}

// NewArchiveProcessor create archive processor
func NewArchiveProcessor(store storage.Storage) *ArchiveProcessor {
	interval := 24 * time.Hour
	batchSize := 1000
	afterDays := 90
	if conf.Cfg != nil {
		if conf.Cfg.Recovery.ArchiveInterval > 0 {
			interval = time.Duration(conf.Cfg.Recovery.ArchiveInterval) * time.Second
		}
		if conf.Cfg.Recovery.ArchiveBatchSize > 0 {
			batchSize = conf.Cfg.Recovery.ArchiveBatchSize
		}
		if conf.Cfg.Recovery.ArchiveAfterDays > 0 {
			afterDays = conf.Cfg.Recovery.ArchiveAfterDays
		}
	}
	return &ArchiveProcessor{
		auditDAO:  dao.NewAuditEntryDAO(),
		store:     store,
		stopChan:  make(chan struct{}),
		interval:  interval,
		batchSize: batchSize,
		afterDays: afterDays,
	}
}

// Start start archive processor
func (ap *ArchiveProcessor) Start() {
	log.Println("Audit archive processor started")
	go ap.run()
}

// Stop stop archive processor
func (ap *ArchiveProcessor) Stop() {
	log.Println("Stopping audit archive processor...")
	close(ap.stopChan)
}

func (ap *ArchiveProcessor) run() {
	ticker := time.NewTicker(ap.interval)
	defer ticker.Stop()

	// Run once at startup
	if err := ap.ArchiveOnce(); err != nil {
		log.Printf("Audit archive run failed: %v", err)
	}

	for {
		select {
		case <-ap.stopChan:
			log.Println("Audit archive processor stopped")
			return
		case <-ticker.C:
			if err := ap.ArchiveOnce(); err != nil {
				log.Printf("Audit archive run failed: %v", err)
			}
		}
	}
}

// ArchiveOnce exports every unarchived entry older than the retention window,
// one storage object per batch, advancing the cursor after each successful
// write
func (ap *ArchiveProcessor) ArchiveOnce() error {
	cursor, err := ap.auditDAO.GetArchiveCursor()
	if err != nil {
		return fmt.Errorf("failed to load archive cursor: %w", err)
	}

	before := time.Now().AddDate(0, 0, -ap.afterDays)

	total, err := ap.auditDAO.Count()
	if err != nil {
		return fmt.Errorf("failed to count audit entries: %w", err)
	}

	var bar *progressbar.ProgressBar
	archived := 0

	for {
		entries, err := ap.auditDAO.ListAfterID(cursor, before, ap.batchSize)
		if err != nil {
			return fmt.Errorf("failed to load audit batch after id %d: %w", cursor, err)
		}
		if len(entries) == 0 {
			break
		}

		if bar == nil {
			bar = progressbar.NewOptions64(
				total-cursor,
				progressbar.OptionSetDescription("Archiving audit entries"),
				progressbar.OptionSetWidth(50),
				progressbar.OptionShowCount(),
			)
		}

		key := batchKey(entries)
		payload, err := json.Marshal(entries)
		if err != nil {
			return fmt.Errorf("failed to marshal audit batch: %w", err)
		}
		if err := ap.store.Save(key, payload); err != nil {
			return fmt.Errorf("failed to save audit batch %s: %w", key, err)
		}

		cursor = entries[len(entries)-1].ID
		if err := ap.auditDAO.SetArchiveCursor(cursor); err != nil {
			return fmt.Errorf("failed to advance archive cursor: %w", err)
		}

		archived += len(entries)
		bar.Add(len(entries))

		if len(entries) < ap.batchSize {
			break
		}
	}

	if archived > 0 {
		fmt.Println()
		log.Printf("Archived %d audit entries, cursor now at %d", archived, cursor)
	}
	return nil
}

func batchKey(entries []*model.AuditEntry) string {
	first := entries[0]
	last := entries[len(entries)-1]
	return fmt.Sprintf("audit/%s/entries_%d_%d.json", first.CreatedAt.Format("2006-01"), first.ID, last.ID)
}
