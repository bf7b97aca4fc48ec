package model

import "time"

// Wallet recovered-wallet record (control address plus current owner reference)
type Wallet struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	WalletID    string `gorm:"uniqueIndex;type:varchar(64);not null" json:"wallet_id"` // External wallet identifier
	ChainName   string `gorm:"type:varchar(20);not null" json:"chain_name"`            // btc/mvc/eth
	Address     string `gorm:"index;type:varchar(100);not null" json:"address"`        // Chain-checksummed control address
	OwnerUserID string `gorm:"index;type:varchar(64);not null" json:"owner_user_id"`   // Current owning user

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specify table name
func (Wallet) TableName() string {
	return "tb_wallet"
}
