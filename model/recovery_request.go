package model

import "time"

// RecoveryStatus recovery request lifecycle status.
// pending is the only non-terminal state; executed, cancelled and expired are terminal.
type RecoveryStatus string

const (
	RecoveryStatusPending   RecoveryStatus = "pending"
	RecoveryStatusExecuted  RecoveryStatus = "executed"
	RecoveryStatusCancelled RecoveryStatus = "cancelled"
	RecoveryStatusExpired   RecoveryStatus = "expired"
)

// RecoveryRequest recovery request record.
// RequiredApprovals is computed once at initiation (ceil(0.6 * accepted guardians))
// and never recomputed, even if the roster changes while the request is pending.
type RecoveryRequest struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	WalletID          string         `gorm:"index;type:varchar(64);not null" json:"wallet_id"`
	NewOwnerAddress   string         `gorm:"type:varchar(100);not null" json:"new_owner_address"` // Chain-checksummed
	RecoveryCodeHash  string         `gorm:"type:varchar(64);not null" json:"recovery_code_hash"` // sha256 hex, plaintext never stored
	RequiredApprovals int            `gorm:"type:int;not null" json:"required_approvals"`         // Frozen at initiation
	Status            RecoveryStatus `gorm:"index;type:varchar(20);default:'pending'" json:"status"`
	AttestTxID        string         `gorm:"type:varchar(64)" json:"attest_tx_id,omitempty"` // Unresolved attestation transaction, empty when none
	InitiatorUserID   string         `gorm:"type:varchar(64);not null" json:"initiator_user_id"`

	// Approvals one row per approving guardian; unique per (request, guardian).
	// The MySQL adapter stores these in their own table, the Pebble adapter
	// embeds them in the request record.
	Approvals []RecoveryApproval `gorm:"foreignKey:RequestID" json:"approvals"`

	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt  time.Time  `gorm:"index;not null" json:"expires_at"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
}

// TableName specify table name
func (RecoveryRequest) TableName() string {
	return "tb_recovery_request"
}

// IsTerminal reports whether the request has left the pending state
func (r *RecoveryRequest) IsTerminal() bool {
	return r.Status != RecoveryStatusPending
}

// IsExpiredAt reports whether the request's deadline has passed at t
func (r *RecoveryRequest) IsExpiredAt(t time.Time) bool {
	return t.After(r.ExpiresAt)
}

// RecoveryApproval a single guardian's approval of a recovery request
type RecoveryApproval struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	RequestID  int64     `gorm:"uniqueIndex:idx_approval_request_guardian;not null" json:"request_id"`
	GuardianID int64     `gorm:"uniqueIndex:idx_approval_request_guardian;not null" json:"guardian_id"`
	ApprovedAt time.Time `gorm:"autoCreateTime" json:"approved_at"`
}

// TableName specify table name
func (RecoveryApproval) TableName() string {
	return "tb_recovery_approval"
}

// RequiredApprovalsFor quorum threshold for n accepted guardians: ceil(0.6 * n)
func RequiredApprovalsFor(n int) int {
	return (3*n + 4) / 5
}
