package model

import "time"

// Audit actions recorded by the protocol
const (
	AuditGuardianAdded     = "guardian_added"
	AuditGuardianAccepted  = "guardian_accepted"
	AuditGuardianRemoved   = "guardian_removed"
	AuditRecoveryInitiated = "recovery_initiated"
	AuditRecoveryApproved  = "recovery_approved"
	AuditRecoveryExecuted  = "recovery_executed"
	AuditRecoveryCancelled = "recovery_cancelled"
	AuditRecoveryExpired   = "recovery_expired"
)

// AuditEntry append-only protocol transition record.
// Metadata carries hashes and addresses only, never plaintext recovery codes.
type AuditEntry struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	WalletID    string `gorm:"index;type:varchar(64);not null" json:"wallet_id"`
	Action      string `gorm:"index;type:varchar(40);not null" json:"action"`
	ActorUserID string `gorm:"type:varchar(64);not null" json:"actor_user_id"`
	Metadata    string `gorm:"type:text" json:"metadata"` // JSON object

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName specify table name
func (AuditEntry) TableName() string {
	return "tb_audit_entry"
}

// ArchiveCheckpoint single-row cursor marking the highest audit entry id
// already exported to archive storage
type ArchiveCheckpoint struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	LastEntryID int64     `gorm:"not null" json:"last_entry_id"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specify table name
func (ArchiveCheckpoint) TableName() string {
	return "tb_audit_archive_checkpoint"
}
