package dao

import (
	"time"

	"wallet-recovery-system/database"
	"wallet-recovery-system/model"
)

// RecoveryRequestDAO recovery request data access object
type RecoveryRequestDAO struct {
	db database.Database
}

// NewRecoveryRequestDAO create recovery request DAO instance
func NewRecoveryRequestDAO() *RecoveryRequestDAO {
	return &RecoveryRequestDAO{
		db: database.DB,
	}
}

// CreateIfNonePending create a request unless the wallet already has a pending one.
// Returns database.ErrPendingExists when one is already pending.
func (dao *RecoveryRequestDAO) CreateIfNonePending(request *model.RecoveryRequest) error {
	return dao.db.CreateRecoveryRequestIfNonePending(request)
}

// GetPending get the wallet's pending request, nil if none
func (dao *RecoveryRequestDAO) GetPending(walletID string) (*model.RecoveryRequest, error) {
	request, err := dao.db.GetPendingRecoveryRequest(walletID)
	if err == database.ErrNotFound {
		return nil, nil
	}
	return request, err
}

// GetLatest get the wallet's most recent request regardless of status, nil if none
func (dao *RecoveryRequestDAO) GetLatest(walletID string) (*model.RecoveryRequest, error) {
	request, err := dao.db.GetLatestRecoveryRequest(walletID)
	if err == database.ErrNotFound {
		return nil, nil
	}
	return request, err
}

// GetByID get request by id, nil if not found
func (dao *RecoveryRequestDAO) GetByID(id int64) (*model.RecoveryRequest, error) {
	request, err := dao.db.GetRecoveryRequestByID(id)
	if err == database.ErrNotFound {
		return nil, nil
	}
	return request, err
}

// AddApproval idempotent approval insert; added is false when the guardian
// already approved, count is the approval count after the call
func (dao *RecoveryRequestDAO) AddApproval(requestID, guardianID int64) (added bool, count int, err error) {
	return dao.db.AddRecoveryApproval(requestID, guardianID)
}

// CountApprovals count approvals for a request
func (dao *RecoveryRequestDAO) CountApprovals(requestID int64) (int, error) {
	return dao.db.CountRecoveryApprovals(requestID)
}

// TransitionStatus compare-and-swap on request status; true only for the
// caller whose update performed the transition
func (dao *RecoveryRequestDAO) TransitionStatus(requestID int64, from, to model.RecoveryStatus) (bool, error) {
	return dao.db.TransitionRecoveryStatus(requestID, from, to)
}

// SetAttestTxID record (or clear with "") the unresolved attestation transaction
func (dao *RecoveryRequestDAO) SetAttestTxID(requestID int64, txID string) error {
	return dao.db.SetRecoveryAttestTxID(requestID, txID)
}

// ListPendingExpiredBefore list pending requests whose deadline passed before t
func (dao *RecoveryRequestDAO) ListPendingExpiredBefore(t time.Time, limit int) ([]*model.RecoveryRequest, error) {
	return dao.db.ListPendingRequestsExpiredBefore(t, limit)
}
