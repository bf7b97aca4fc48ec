package dao

import (
	"time"

	"wallet-recovery-system/database"
	"wallet-recovery-system/model"
)

// GuardianDAO guardian data access object
type GuardianDAO struct {
	db database.Database
}

// NewGuardianDAO create guardian DAO instance
func NewGuardianDAO() *GuardianDAO {
	return &GuardianDAO{
		db: database.DB,
	}
}

// Create create guardian record
func (dao *GuardianDAO) Create(guardian *model.Guardian) error {
	return dao.db.CreateGuardian(guardian)
}

// GetByID get guardian by id, nil if not found
func (dao *GuardianDAO) GetByID(id int64) (*model.Guardian, error) {
	guardian, err := dao.db.GetGuardianByID(id)
	if err == database.ErrNotFound {
		return nil, nil
	}
	return guardian, err
}

// GetActiveByWalletAndUser get a pending or accepted guardian for a wallet/user pair, nil if none
func (dao *GuardianDAO) GetActiveByWalletAndUser(walletID, guardianUserID string) (*model.Guardian, error) {
	guardian, err := dao.db.GetActiveGuardianByWalletAndUser(walletID, guardianUserID)
	if err == database.ErrNotFound {
		return nil, nil
	}
	return guardian, err
}

// ListByWallet list non-revoked guardians of a wallet
func (dao *GuardianDAO) ListByWallet(walletID string) ([]*model.Guardian, error) {
	return dao.db.ListGuardiansByWallet(walletID)
}

// ListAccepted list accepted guardians of a wallet
func (dao *GuardianDAO) ListAccepted(walletID string) ([]*model.Guardian, error) {
	return dao.db.ListAcceptedGuardians(walletID)
}

// CountAccepted count accepted guardians of a wallet
func (dao *GuardianDAO) CountAccepted(walletID string) (int64, error) {
	return dao.db.CountAcceptedGuardians(walletID)
}

// TransitionStatus conditional status transition, false when the guardian
// was not in the expected from status
func (dao *GuardianDAO) TransitionStatus(id int64, from, to model.GuardianStatus, acceptedAt *time.Time) (bool, error) {
	return dao.db.UpdateGuardianStatus(id, from, to, acceptedAt)
}
