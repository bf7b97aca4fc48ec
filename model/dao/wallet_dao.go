package dao

import (
	"wallet-recovery-system/database"
	"wallet-recovery-system/model"
)

// WalletDAO wallet data access object
type WalletDAO struct {
	db database.Database
}

// NewWalletDAO create wallet DAO instance
func NewWalletDAO() *WalletDAO {
	return &WalletDAO{
		db: database.DB,
	}
}

// Create create wallet record
func (dao *WalletDAO) Create(wallet *model.Wallet) error {
	return dao.db.CreateWallet(wallet)
}

// GetByWalletID get wallet by external wallet ID, nil if not found
func (dao *WalletDAO) GetByWalletID(walletID string) (*model.Wallet, error) {
	wallet, err := dao.db.GetWalletByWalletID(walletID)
	if err == database.ErrNotFound {
		return nil, nil
	}
	return wallet, err
}

// UpdateOwnership apply an ownership transfer to the wallet record
func (dao *WalletDAO) UpdateOwnership(walletID, newAddress, newOwnerUserID string) error {
	return dao.db.UpdateWalletOwnership(walletID, newAddress, newOwnerUserID)
}
