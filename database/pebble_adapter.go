package database

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"wallet-recovery-system/model"

	"github.com/cockroachdb/pebble"
)

// PebbleDatabase PebbleDB database implementation with multiple collections.
// A single adapter-level mutex serializes every mutation, which is what makes
// the conditional updates (status CAS, approval set-insert) atomic in this
// embedded, single-process deployment mode.
type PebbleDatabase struct {
	collections map[string]*pebble.DB // Map of collection name to PebbleDB instance

	mu sync.Mutex // Serializes all mutations

	walletIDCounter   atomic.Int64
	guardianIDCounter atomic.Int64
	requestIDCounter  atomic.Int64
	auditIDCounter    atomic.Int64
}

// PebbleConfig PebbleDB configuration
type PebbleConfig struct {
	DataDir string
}

// Collection names and their key-value formats
const (
	collectionWallet         = "wallet"          // key: {wallet_id}, value: JSON(Wallet)
	collectionGuardian       = "guardian"        // key: {id:020d}, value: JSON(Guardian)
	collectionGuardianWallet = "guardian_wallet" // key: {wallet_id}:{id:020d}, value: {id} - roster index
	collectionRequest        = "request"         // key: {id:020d}, value: JSON(RecoveryRequest, approvals embedded)
	collectionRequestWallet  = "request_wallet"  // key: {wallet_id}:{id:020d}, value: {id} - per-wallet history index
	collectionPendingRequest = "pending_request" // key: {wallet_id}, value: {id} - at most one per wallet
	collectionAudit          = "audit"           // key: {id:020d}, value: JSON(AuditEntry)
	collectionAuditWallet    = "audit_wallet"    // key: {wallet_id}:{id:020d}, value: {id} - per-wallet index
	collectionCounters       = "counters"        // key: wallet/guardian/request/audit, value: {max_id}
)

// Counter keys
const (
	keyWalletCounter   = "wallet"
	keyGuardianCounter = "guardian"
	keyRequestCounter  = "request"
	keyAuditCounter    = "audit"
	keyArchiveCursor   = "archive_cursor"
)

// NewPebbleDatabase create PebbleDB database instance with multiple collections
func NewPebbleDatabase(config interface{}) (Database, error) {
	cfg, ok := config.(*PebbleConfig)
	if !ok {
		return nil, fmt.Errorf("invalid PebbleDB config type")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", cfg.DataDir, err)
	}

	collectionNames := []string{
		collectionWallet,
		collectionGuardian,
		collectionGuardianWallet,
		collectionRequest,
		collectionRequestWallet,
		collectionPendingRequest,
		collectionAudit,
		collectionAuditWallet,
		collectionCounters,
	}

	collections := make(map[string]*pebble.DB, len(collectionNames))
	for _, name := range collectionNames {
		db, err := pebble.Open(filepath.Join(cfg.DataDir, name), &pebble.Options{})
		if err != nil {
			for _, opened := range collections {
				opened.Close()
			}
			return nil, fmt.Errorf("failed to open collection %s: %w", name, err)
		}
		collections[name] = db
	}

	p := &PebbleDatabase{collections: collections}
	if err := p.restoreCounters(); err != nil {
		p.Close()
		return nil, err
	}

	log.Printf("PebbleDB database opened: %s", cfg.DataDir)
	return p, nil
}

func (p *PebbleDatabase) restoreCounters() error {
	for key, counter := range map[string]*atomic.Int64{
		keyWalletCounter:   &p.walletIDCounter,
		keyGuardianCounter: &p.guardianIDCounter,
		keyRequestCounter:  &p.requestIDCounter,
		keyAuditCounter:    &p.auditIDCounter,
	} {
		value, err := p.get(collectionCounters, key)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		var maxID int64
		if err := json.Unmarshal(value, &maxID); err != nil {
			return fmt.Errorf("failed to restore counter %s: %w", key, err)
		}
		counter.Store(maxID)
	}
	return nil
}

func (p *PebbleDatabase) nextID(counter *atomic.Int64, counterKey string) (int64, error) {
	id := counter.Add(1)
	value, _ := json.Marshal(id)
	return id, p.set(collectionCounters, counterKey, value)
}

// Low-level collection helpers

func (p *PebbleDatabase) get(collection, key string) ([]byte, error) {
	value, closer, err := p.collections[collection].Get([]byte(key))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (p *PebbleDatabase) set(collection, key string, value []byte) error {
	return p.collections[collection].Set([]byte(key), value, pebble.Sync)
}

func (p *PebbleDatabase) delete(collection, key string) error {
	return p.collections[collection].Delete([]byte(key), pebble.Sync)
}

func (p *PebbleDatabase) getJSON(collection, key string, dest interface{}) error {
	value, err := p.get(collection, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(value, dest)
}

func (p *PebbleDatabase) setJSON(collection, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return p.set(collection, key, data)
}

func paddedID(id int64) string {
	return fmt.Sprintf("%020d", id)
}

// scanPrefix iterates a collection over all keys with the given prefix
func (p *PebbleDatabase) scanPrefix(collection, prefix string, fn func(key string, value []byte) (bool, error)) error {
	upper := append([]byte(prefix), 0xff)
	iter, err := p.collections[collection].NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: upper,
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		cont, err := fn(string(iter.Key()), iter.Value())
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return iter.Error()
}

// Wallet operations

func (p *PebbleDatabase) CreateWallet(wallet *model.Wallet) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.get(collectionWallet, wallet.WalletID); err == nil {
		return fmt.Errorf("wallet %s already exists", wallet.WalletID)
	}

	id, err := p.nextID(&p.walletIDCounter, keyWalletCounter)
	if err != nil {
		return err
	}
	wallet.ID = id
	now := time.Now()
	wallet.CreatedAt = now
	wallet.UpdatedAt = now
	return p.setJSON(collectionWallet, wallet.WalletID, wallet)
}

func (p *PebbleDatabase) GetWalletByWalletID(walletID string) (*model.Wallet, error) {
	var wallet model.Wallet
	if err := p.getJSON(collectionWallet, walletID, &wallet); err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (p *PebbleDatabase) UpdateWalletOwnership(walletID, newAddress, newOwnerUserID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var wallet model.Wallet
	if err := p.getJSON(collectionWallet, walletID, &wallet); err != nil {
		return err
	}
	wallet.Address = newAddress
	if newOwnerUserID != "" {
		wallet.OwnerUserID = newOwnerUserID
	}
	wallet.UpdatedAt = time.Now()
	return p.setJSON(collectionWallet, walletID, &wallet)
}

// Guardian operations

func (p *PebbleDatabase) CreateGuardian(guardian *model.Guardian) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, err := p.nextID(&p.guardianIDCounter, keyGuardianCounter)
	if err != nil {
		return err
	}
	guardian.ID = id
	now := time.Now()
	guardian.CreatedAt = now
	guardian.UpdatedAt = now

	if err := p.setJSON(collectionGuardian, paddedID(id), guardian); err != nil {
		return err
	}
	indexKey := guardian.WalletID + ":" + paddedID(id)
	return p.setJSON(collectionGuardianWallet, indexKey, id)
}

func (p *PebbleDatabase) GetGuardianByID(id int64) (*model.Guardian, error) {
	var guardian model.Guardian
	if err := p.getJSON(collectionGuardian, paddedID(id), &guardian); err != nil {
		return nil, err
	}
	return &guardian, nil
}

func (p *PebbleDatabase) listGuardians(walletID string, filter func(*model.Guardian) bool) ([]*model.Guardian, error) {
	var guardians []*model.Guardian
	err := p.scanPrefix(collectionGuardianWallet, walletID+":", func(key string, value []byte) (bool, error) {
		var id int64
		if err := json.Unmarshal(value, &id); err != nil {
			return false, err
		}
		var guardian model.Guardian
		if err := p.getJSON(collectionGuardian, paddedID(id), &guardian); err != nil {
			if err == ErrNotFound {
				return true, nil
			}
			return false, err
		}
		if filter == nil || filter(&guardian) {
			guardians = append(guardians, &guardian)
		}
		return true, nil
	})
	return guardians, err
}

func (p *PebbleDatabase) GetActiveGuardianByWalletAndUser(walletID, guardianUserID string) (*model.Guardian, error) {
	guardians, err := p.listGuardians(walletID, func(g *model.Guardian) bool {
		return g.GuardianUserID == guardianUserID && g.Status != model.GuardianStatusRevoked
	})
	if err != nil {
		return nil, err
	}
	if len(guardians) == 0 {
		return nil, ErrNotFound
	}
	return guardians[0], nil
}

func (p *PebbleDatabase) ListGuardiansByWallet(walletID string) ([]*model.Guardian, error) {
	return p.listGuardians(walletID, func(g *model.Guardian) bool {
		return g.Status != model.GuardianStatusRevoked
	})
}

func (p *PebbleDatabase) ListAcceptedGuardians(walletID string) ([]*model.Guardian, error) {
	return p.listGuardians(walletID, func(g *model.Guardian) bool {
		return g.Status == model.GuardianStatusAccepted
	})
}

func (p *PebbleDatabase) CountAcceptedGuardians(walletID string) (int64, error) {
	guardians, err := p.ListAcceptedGuardians(walletID)
	return int64(len(guardians)), err
}

func (p *PebbleDatabase) UpdateGuardianStatus(id int64, from, to model.GuardianStatus, acceptedAt *time.Time) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var guardian model.Guardian
	if err := p.getJSON(collectionGuardian, paddedID(id), &guardian); err != nil {
		return false, err
	}
	if guardian.Status != from {
		return false, nil
	}
	guardian.Status = to
	if acceptedAt != nil {
		guardian.AcceptedAt = acceptedAt
	}
	guardian.UpdatedAt = time.Now()
	return true, p.setJSON(collectionGuardian, paddedID(id), &guardian)
}

// RecoveryRequest operations

func (p *PebbleDatabase) CreateRecoveryRequestIfNonePending(request *model.RecoveryRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.get(collectionPendingRequest, request.WalletID); err == nil {
		return ErrPendingExists
	}

	id, err := p.nextID(&p.requestIDCounter, keyRequestCounter)
	if err != nil {
		return err
	}
	request.ID = id
	request.CreatedAt = time.Now()

	if err := p.setJSON(collectionRequest, paddedID(id), request); err != nil {
		return err
	}
	if err := p.setJSON(collectionRequestWallet, request.WalletID+":"+paddedID(id), id); err != nil {
		return err
	}
	return p.setJSON(collectionPendingRequest, request.WalletID, id)
}

func (p *PebbleDatabase) GetPendingRecoveryRequest(walletID string) (*model.RecoveryRequest, error) {
	var id int64
	if err := p.getJSON(collectionPendingRequest, walletID, &id); err != nil {
		return nil, err
	}
	return p.GetRecoveryRequestByID(id)
}

func (p *PebbleDatabase) GetLatestRecoveryRequest(walletID string) (*model.RecoveryRequest, error) {
	var latestID int64
	err := p.scanPrefix(collectionRequestWallet, walletID+":", func(key string, value []byte) (bool, error) {
		return true, json.Unmarshal(value, &latestID)
	})
	if err != nil {
		return nil, err
	}
	if latestID == 0 {
		return nil, ErrNotFound
	}
	return p.GetRecoveryRequestByID(latestID)
}

func (p *PebbleDatabase) GetRecoveryRequestByID(id int64) (*model.RecoveryRequest, error) {
	var request model.RecoveryRequest
	if err := p.getJSON(collectionRequest, paddedID(id), &request); err != nil {
		return nil, err
	}
	return &request, nil
}

func (p *PebbleDatabase) AddRecoveryApproval(requestID, guardianID int64) (bool, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var request model.RecoveryRequest
	if err := p.getJSON(collectionRequest, paddedID(requestID), &request); err != nil {
		return false, 0, err
	}

	// Approvals only land on pending requests
	if request.Status != model.RecoveryStatusPending {
		return false, len(request.Approvals), nil
	}

	for _, approval := range request.Approvals {
		if approval.GuardianID == guardianID {
			return false, len(request.Approvals), nil
		}
	}

	request.Approvals = append(request.Approvals, model.RecoveryApproval{
		RequestID:  requestID,
		GuardianID: guardianID,
		ApprovedAt: time.Now(),
	})
	if err := p.setJSON(collectionRequest, paddedID(requestID), &request); err != nil {
		return false, 0, err
	}
	return true, len(request.Approvals), nil
}

func (p *PebbleDatabase) CountRecoveryApprovals(requestID int64) (int, error) {
	request, err := p.GetRecoveryRequestByID(requestID)
	if err != nil {
		return 0, err
	}
	return len(request.Approvals), nil
}

func (p *PebbleDatabase) TransitionRecoveryStatus(requestID int64, from, to model.RecoveryStatus) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var request model.RecoveryRequest
	if err := p.getJSON(collectionRequest, paddedID(requestID), &request); err != nil {
		return false, err
	}
	if request.Status != from {
		return false, nil
	}

	request.Status = to
	if to == model.RecoveryStatusExecuted {
		now := time.Now()
		request.ExecutedAt = &now
	}
	if err := p.setJSON(collectionRequest, paddedID(requestID), &request); err != nil {
		return false, err
	}

	// Moving out of pending clears the one-pending-per-wallet slot
	if from == model.RecoveryStatusPending && to != model.RecoveryStatusPending {
		if err := p.delete(collectionPendingRequest, request.WalletID); err != nil && err != ErrNotFound {
			return false, err
		}
	}
	return true, nil
}

func (p *PebbleDatabase) SetRecoveryAttestTxID(requestID int64, txID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var request model.RecoveryRequest
	if err := p.getJSON(collectionRequest, paddedID(requestID), &request); err != nil {
		return err
	}
	request.AttestTxID = txID
	return p.setJSON(collectionRequest, paddedID(requestID), &request)
}

func (p *PebbleDatabase) ListPendingRequestsExpiredBefore(t time.Time, limit int) ([]*model.RecoveryRequest, error) {
	var requests []*model.RecoveryRequest
	err := p.scanPrefix(collectionPendingRequest, "", func(key string, value []byte) (bool, error) {
		var id int64
		if err := json.Unmarshal(value, &id); err != nil {
			return false, err
		}
		request, err := p.GetRecoveryRequestByID(id)
		if err != nil {
			if err == ErrNotFound {
				return true, nil
			}
			return false, err
		}
		if request.Status == model.RecoveryStatusPending && request.ExpiresAt.Before(t) {
			requests = append(requests, request)
		}
		return len(requests) < limit, nil
	})
	return requests, err
}

// AuditEntry operations

func (p *PebbleDatabase) CreateAuditEntry(entry *model.AuditEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, err := p.nextID(&p.auditIDCounter, keyAuditCounter)
	if err != nil {
		return err
	}
	entry.ID = id
	entry.CreatedAt = time.Now()

	if err := p.setJSON(collectionAudit, paddedID(id), entry); err != nil {
		return err
	}
	return p.setJSON(collectionAuditWallet, entry.WalletID+":"+paddedID(id), id)
}

func (p *PebbleDatabase) ListAuditEntriesByWallet(walletID string, cursor int64, size int) ([]*model.AuditEntry, int64, error) {
	// Collect ids in insertion order from the per-wallet index
	var ids []int64
	err := p.scanPrefix(collectionAuditWallet, walletID+":", func(key string, value []byte) (bool, error) {
		var id int64
		if err := json.Unmarshal(value, &id); err != nil {
			return false, err
		}
		ids = append(ids, id)
		return true, nil
	})
	if err != nil {
		return nil, 0, err
	}

	// Oldest first; the cursor is the last id of the previous page
	var entries []*model.AuditEntry
	for _, id := range ids {
		if id <= cursor {
			continue
		}
		if len(entries) >= size {
			break
		}
		var entry model.AuditEntry
		if err := p.getJSON(collectionAudit, paddedID(id), &entry); err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, 0, err
		}
		entries = append(entries, &entry)
	}

	var nextCursor int64
	if len(entries) > 0 {
		nextCursor = entries[len(entries)-1].ID
	}
	return entries, nextCursor, nil
}

func (p *PebbleDatabase) ListAuditEntriesAfterID(afterID int64, before time.Time, limit int) ([]*model.AuditEntry, error) {
	var entries []*model.AuditEntry
	err := p.scanPrefix(collectionAudit, "", func(key string, value []byte) (bool, error) {
		var entry model.AuditEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			return false, err
		}
		if entry.ID > afterID && entry.CreatedAt.Before(before) {
			e := entry
			entries = append(entries, &e)
		}
		return len(entries) < limit, nil
	})
	return entries, err
}

func (p *PebbleDatabase) CountAuditEntries() (int64, error) {
	var count int64
	err := p.scanPrefix(collectionAudit, "", func(key string, value []byte) (bool, error) {
		count++
		return true, nil
	})
	return count, err
}

func (p *PebbleDatabase) GetAuditArchiveCursor() (int64, error) {
	var cursor int64
	err := p.getJSON(collectionCounters, keyArchiveCursor, &cursor)
	if err == ErrNotFound {
		return 0, nil
	}
	return cursor, err
}

func (p *PebbleDatabase) SetAuditArchiveCursor(id int64) error {
	return p.setJSON(collectionCounters, keyArchiveCursor, id)
}

// Close close all collections
func (p *PebbleDatabase) Close() error {
	var firstErr error
	for name, db := range p.collections {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close collection %s: %w", name, err)
		}
	}
	return firstErr
}
