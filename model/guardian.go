package model

import "time"

// GuardianStatus guardian lifecycle status
type GuardianStatus string

const (
	GuardianStatusPending  GuardianStatus = "pending"  // Invited, not yet accepted
	GuardianStatusAccepted GuardianStatus = "accepted" // Accepted by the designated guardian
	GuardianStatusRevoked  GuardianStatus = "revoked"  // Removed by the wallet owner
)

// Guardian trusted party nominated by the wallet owner to co-authorize recovery
type Guardian struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	WalletID       string         `gorm:"index:idx_guardian_wallet_user;type:varchar(64);not null" json:"wallet_id"`
	GuardianUserID string         `gorm:"index:idx_guardian_wallet_user;type:varchar(64);not null" json:"guardian_user_id"` // Designated guardian user
	Contact        string         `gorm:"type:varchar(255)" json:"contact"`                                                 // Out-of-band contact (email, phone, webhook)
	OnChainAddress string         `gorm:"type:varchar(100)" json:"on_chain_address"`                                        // Optional attestation address
	Status         GuardianStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`                                 // pending/accepted/revoked
	AcceptedAt     *time.Time     `json:"accepted_at,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specify table name
func (Guardian) TableName() string {
	return "tb_guardian"
}
