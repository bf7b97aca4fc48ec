package database

import (
	"time"

	"wallet-recovery-system/model"
)

// Database interface for different database implementations.
// Implementations must provide atomic conditional updates for recovery
// request transitions (TransitionRecoveryStatus) and idempotent approval
// inserts (AddRecoveryApproval); the coordinator's exactly-once execution
// guarantee rests on those two operations.
type Database interface {
	// Wallet operations
	CreateWallet(wallet *model.Wallet) error
	GetWalletByWalletID(walletID string) (*model.Wallet, error)
	UpdateWalletOwnership(walletID, newAddress, newOwnerUserID string) error

	// Guardian operations
	CreateGuardian(guardian *model.Guardian) error
	GetGuardianByID(id int64) (*model.Guardian, error)
	GetActiveGuardianByWalletAndUser(walletID, guardianUserID string) (*model.Guardian, error)
	ListGuardiansByWallet(walletID string) ([]*model.Guardian, error)
	ListAcceptedGuardians(walletID string) ([]*model.Guardian, error)
	CountAcceptedGuardians(walletID string) (int64, error)
	// UpdateGuardianStatus conditional status transition; returns false when the
	// guardian was not in the expected from status.
	UpdateGuardianStatus(id int64, from, to model.GuardianStatus, acceptedAt *time.Time) (bool, error)

	// RecoveryRequest operations
	// CreateRecoveryRequestIfNonePending fails with ErrPendingExists when the
	// wallet already has a pending request; at most one may exist per wallet.
	CreateRecoveryRequestIfNonePending(request *model.RecoveryRequest) error
	GetPendingRecoveryRequest(walletID string) (*model.RecoveryRequest, error)
	GetLatestRecoveryRequest(walletID string) (*model.RecoveryRequest, error)
	GetRecoveryRequestByID(id int64) (*model.RecoveryRequest, error)
	// AddRecoveryApproval idempotent set-insert, valid only while the request
	// is pending; added is false when the guardian already approved or the
	// request left pending. count is the approval count after the call.
	AddRecoveryApproval(requestID, guardianID int64) (added bool, count int, err error)
	CountRecoveryApprovals(requestID int64) (int, error)
	// TransitionRecoveryStatus compare-and-swap on status; returns true only for
	// the caller whose update moved the request out of the from status.
	TransitionRecoveryStatus(requestID int64, from, to model.RecoveryStatus) (bool, error)
	SetRecoveryAttestTxID(requestID int64, txID string) error
	ListPendingRequestsExpiredBefore(t time.Time, limit int) ([]*model.RecoveryRequest, error)

	// AuditEntry operations
	CreateAuditEntry(entry *model.AuditEntry) error
	ListAuditEntriesByWallet(walletID string, cursor int64, size int) ([]*model.AuditEntry, int64, error)
	ListAuditEntriesAfterID(afterID int64, before time.Time, limit int) ([]*model.AuditEntry, error)
	CountAuditEntries() (int64, error)
	GetAuditArchiveCursor() (int64, error)
	SetAuditArchiveCursor(id int64) error

	// General operations
	Close() error
}

// DBType database type
type DBType string

const (
	DBTypeMySQL  DBType = "mysql"
	DBTypePebble DBType = "pebble"
)

// Global database instance
var DB Database

// currentDBType stores the current database type
var currentDBType DBType

// InitDatabase initialize database with specified type
func InitDatabase(dbType DBType, config interface{}) error {
	var err error

	switch dbType {
	case DBTypeMySQL:
		DB, err = NewMySQLDatabase(config)
		currentDBType = DBTypeMySQL
	case DBTypePebble:
		DB, err = NewPebbleDatabase(config)
		currentDBType = DBTypePebble
	default:
		return ErrUnsupportedDBType
	}

	return err
}

// GetDBType get current database type
func GetDBType() DBType {
	return currentDBType
}
