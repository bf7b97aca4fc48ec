package database

import (
	"errors"
	"fmt"
	"log"
	"time"

	"wallet-recovery-system/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// MySQLDatabase MySQL database implementation
type MySQLDatabase struct {
	db *gorm.DB
}

// MySQLConfig MySQL configuration
type MySQLConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// NewMySQLDatabase create MySQL database instance
func NewMySQLDatabase(config interface{}) (Database, error) {
	cfg, ok := config.(*MySQLConfig)
	if !ok {
		return nil, fmt.Errorf("invalid MySQL config type")
	}

	// Connect database
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect MySQL: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// Set connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Migrate schema
	if err := db.AutoMigrate(
		&model.Wallet{},
		&model.Guardian{},
		&model.RecoveryRequest{},
		&model.RecoveryApproval{},
		&model.AuditEntry{},
		&model.ArchiveCheckpoint{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.Println("MySQL database connected successfully")

	return &MySQLDatabase{db: db}, nil
}

// Wallet operations

func (m *MySQLDatabase) CreateWallet(wallet *model.Wallet) error {
	return m.db.Create(wallet).Error
}

func (m *MySQLDatabase) GetWalletByWalletID(walletID string) (*model.Wallet, error) {
	var wallet model.Wallet
	err := m.db.Where("wallet_id = ?", walletID).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &wallet, err
}

func (m *MySQLDatabase) UpdateWalletOwnership(walletID, newAddress, newOwnerUserID string) error {
	updates := map[string]interface{}{"address": newAddress}
	if newOwnerUserID != "" {
		updates["owner_user_id"] = newOwnerUserID
	}
	return m.db.Model(&model.Wallet{}).
		Where("wallet_id = ?", walletID).
		Updates(updates).Error
}

// Guardian operations

func (m *MySQLDatabase) CreateGuardian(guardian *model.Guardian) error {
	return m.db.Create(guardian).Error
}

func (m *MySQLDatabase) GetGuardianByID(id int64) (*model.Guardian, error) {
	var guardian model.Guardian
	err := m.db.Where("id = ?", id).First(&guardian).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &guardian, err
}

func (m *MySQLDatabase) GetActiveGuardianByWalletAndUser(walletID, guardianUserID string) (*model.Guardian, error) {
	var guardian model.Guardian
	err := m.db.Where("wallet_id = ? AND guardian_user_id = ? AND status IN ?",
		walletID, guardianUserID,
		[]model.GuardianStatus{model.GuardianStatusPending, model.GuardianStatusAccepted}).
		First(&guardian).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &guardian, err
}

func (m *MySQLDatabase) ListGuardiansByWallet(walletID string) ([]*model.Guardian, error) {
	var guardians []*model.Guardian
	err := m.db.Where("wallet_id = ? AND status <> ?", walletID, model.GuardianStatusRevoked).
		Order("id ASC").
		Find(&guardians).Error
	return guardians, err
}

func (m *MySQLDatabase) ListAcceptedGuardians(walletID string) ([]*model.Guardian, error) {
	var guardians []*model.Guardian
	err := m.db.Where("wallet_id = ? AND status = ?", walletID, model.GuardianStatusAccepted).
		Order("id ASC").
		Find(&guardians).Error
	return guardians, err
}

func (m *MySQLDatabase) CountAcceptedGuardians(walletID string) (int64, error) {
	var count int64
	err := m.db.Model(&model.Guardian{}).
		Where("wallet_id = ? AND status = ?", walletID, model.GuardianStatusAccepted).
		Count(&count).Error
	return count, err
}

func (m *MySQLDatabase) UpdateGuardianStatus(id int64, from, to model.GuardianStatus, acceptedAt *time.Time) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if acceptedAt != nil {
		updates["accepted_at"] = acceptedAt
	}
	result := m.db.Model(&model.Guardian{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return result.RowsAffected == 1, result.Error
}

// RecoveryRequest operations

func (m *MySQLDatabase) CreateRecoveryRequestIfNonePending(request *model.RecoveryRequest) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		var existing model.RecoveryRequest
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("wallet_id = ? AND status = ?", request.WalletID, model.RecoveryStatusPending).
			First(&existing).Error
		if err == nil {
			return ErrPendingExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Omit("Approvals").Create(request).Error
	})
}

func (m *MySQLDatabase) GetPendingRecoveryRequest(walletID string) (*model.RecoveryRequest, error) {
	var request model.RecoveryRequest
	err := m.db.Preload("Approvals").
		Where("wallet_id = ? AND status = ?", walletID, model.RecoveryStatusPending).
		First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &request, err
}

func (m *MySQLDatabase) GetLatestRecoveryRequest(walletID string) (*model.RecoveryRequest, error) {
	var request model.RecoveryRequest
	err := m.db.Preload("Approvals").
		Where("wallet_id = ?", walletID).
		Order("id DESC").
		First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &request, err
}

func (m *MySQLDatabase) GetRecoveryRequestByID(id int64) (*model.RecoveryRequest, error) {
	var request model.RecoveryRequest
	err := m.db.Preload("Approvals").Where("id = ?", id).First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &request, err
}

func (m *MySQLDatabase) AddRecoveryApproval(requestID, guardianID int64) (bool, int, error) {
	var added bool
	var count int64

	err := m.db.Transaction(func(tx *gorm.DB) error {
		// Lock the request row so the insert and the count observe a
		// consistent approval set under concurrent approvers.
		var request model.RecoveryRequest
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", requestID).
			First(&request).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		// Approvals only land on pending requests
		if request.Status != model.RecoveryStatusPending {
			return tx.Model(&model.RecoveryApproval{}).
				Where("request_id = ?", requestID).
				Count(&count).Error
		}

		approval := model.RecoveryApproval{
			RequestID:  requestID,
			GuardianID: guardianID,
			ApprovedAt: time.Now(),
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&approval)
		if result.Error != nil {
			return result.Error
		}
		added = result.RowsAffected == 1

		return tx.Model(&model.RecoveryApproval{}).
			Where("request_id = ?", requestID).
			Count(&count).Error
	})

	return added, int(count), err
}

func (m *MySQLDatabase) CountRecoveryApprovals(requestID int64) (int, error) {
	var count int64
	err := m.db.Model(&model.RecoveryApproval{}).
		Where("request_id = ?", requestID).
		Count(&count).Error
	return int(count), err
}

func (m *MySQLDatabase) TransitionRecoveryStatus(requestID int64, from, to model.RecoveryStatus) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if to == model.RecoveryStatusExecuted {
		now := time.Now()
		updates["executed_at"] = &now
	}
	result := m.db.Model(&model.RecoveryRequest{}).
		Where("id = ? AND status = ?", requestID, from).
		Updates(updates)
	return result.RowsAffected == 1, result.Error
}

func (m *MySQLDatabase) SetRecoveryAttestTxID(requestID int64, txID string) error {
	return m.db.Model(&model.RecoveryRequest{}).
		Where("id = ?", requestID).
		Update("attest_tx_id", txID).Error
}

func (m *MySQLDatabase) ListPendingRequestsExpiredBefore(t time.Time, limit int) ([]*model.RecoveryRequest, error) {
	var requests []*model.RecoveryRequest
	err := m.db.Where("status = ? AND expires_at < ?", model.RecoveryStatusPending, t).
		Order("id ASC").
		Limit(limit).
		Find(&requests).Error
	return requests, err
}

// AuditEntry operations

func (m *MySQLDatabase) CreateAuditEntry(entry *model.AuditEntry) error {
	return m.db.Create(entry).Error
}

func (m *MySQLDatabase) ListAuditEntriesByWallet(walletID string, cursor int64, size int) ([]*model.AuditEntry, int64, error) {
	// Oldest first; the cursor is the last id of the previous page
	var entries []*model.AuditEntry
	err := m.db.Where("wallet_id = ? AND id > ?", walletID, cursor).
		Order("id ASC").
		Limit(size).
		Find(&entries).Error
	if err != nil {
		return nil, 0, err
	}

	var nextCursor int64
	if len(entries) > 0 {
		nextCursor = entries[len(entries)-1].ID
	}
	return entries, nextCursor, nil
}

func (m *MySQLDatabase) ListAuditEntriesAfterID(afterID int64, before time.Time, limit int) ([]*model.AuditEntry, error) {
	var entries []*model.AuditEntry
	err := m.db.Where("id > ? AND created_at < ?", afterID, before).
		Order("id ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (m *MySQLDatabase) CountAuditEntries() (int64, error) {
	var count int64
	err := m.db.Model(&model.AuditEntry{}).Count(&count).Error
	return count, err
}

func (m *MySQLDatabase) GetAuditArchiveCursor() (int64, error) {
	var checkpoint model.ArchiveCheckpoint
	err := m.db.Where("id = 1").First(&checkpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return checkpoint.LastEntryID, err
}

func (m *MySQLDatabase) SetAuditArchiveCursor(id int64) error {
	checkpoint := model.ArchiveCheckpoint{ID: 1, LastEntryID: id}
	return m.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_entry_id"}),
	}).Create(&checkpoint).Error
}

// Close close database connection
func (m *MySQLDatabase) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetGormDB get underlying GORM database instance
func (m *MySQLDatabase) GetGormDB() *gorm.DB {
	return m.db
}
