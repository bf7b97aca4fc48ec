package dao

import (
	"time"

	"wallet-recovery-system/database"
	"wallet-recovery-system/model"
)

// AuditEntryDAO audit entry data access object
type AuditEntryDAO struct {
	db database.Database
}

// NewAuditEntryDAO create audit entry DAO instance
func NewAuditEntryDAO() *AuditEntryDAO {
	return &AuditEntryDAO{
		db: database.DB,
	}
}

// Create append an audit entry
func (dao *AuditEntryDAO) Create(entry *model.AuditEntry) error {
	return dao.db.CreateAuditEntry(entry)
}

// ListByWallet get audit entries for a wallet with cursor pagination
// cursor: entry id to continue from (0 for first page)
// size: page size
// Returns: entries, nextCursor, error
func (dao *AuditEntryDAO) ListByWallet(walletID string, cursor int64, size int) ([]*model.AuditEntry, int64, error) {
	return dao.db.ListAuditEntriesByWallet(walletID, cursor, size)
}

// ListAfterID list entries after the given id created before t, oldest first
func (dao *AuditEntryDAO) ListAfterID(afterID int64, before time.Time, limit int) ([]*model.AuditEntry, error) {
	return dao.db.ListAuditEntriesAfterID(afterID, before, limit)
}

// Count total audit entries
func (dao *AuditEntryDAO) Count() (int64, error) {
	return dao.db.CountAuditEntries()
}

// GetArchiveCursor highest entry id already exported to archive storage
func (dao *AuditEntryDAO) GetArchiveCursor() (int64, error) {
	return dao.db.GetAuditArchiveCursor()
}

// SetArchiveCursor advance the archive export cursor
func (dao *AuditEntryDAO) SetArchiveCursor(id int64) error {
	return dao.db.SetAuditArchiveCursor(id)
}
