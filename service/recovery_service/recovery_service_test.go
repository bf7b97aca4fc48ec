package recovery_service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"wallet-recovery-system/attestor"
	"wallet-recovery-system/database"
	"wallet-recovery-system/model"
	"wallet-recovery-system/model/dao"
	"wallet-recovery-system/service/audit_service"
	"wallet-recovery-system/service/notify_service"
)

const (
	testBTCAddress = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
	testNewAddress = "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	err := database.InitDatabase(database.DBTypePebble, &database.PebbleConfig{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to init pebble database: %v", err)
	}
	t.Cleanup(func() {
		database.DB.Close()
		database.DB = nil
	})
}

func newTestService(attestors *attestor.Registry) *RecoveryService {
	return NewRecoveryService(audit_service.NewAuditService(), notify_service.NewNotifyService(), attestors)
}

// createTestWallet creates a wallet with the given number of accepted
// guardians, returning the guardian user ids
func createTestWallet(t *testing.T, walletID, owner string, guardianCount int) []string {
	t.Helper()
	err := dao.NewWalletDAO().Create(&model.Wallet{
		WalletID:    walletID,
		ChainName:   "btc",
		Address:     testBTCAddress,
		OwnerUserID: owner,
	})
	if err != nil {
		t.Fatalf("Failed to create wallet: %v", err)
	}

	guardianDAO := dao.NewGuardianDAO()
	users := make([]string, 0, guardianCount)
	now := time.Now()
	for i := 0; i < guardianCount; i++ {
		userID := fmt.Sprintf("guardian-%d", i+1)
		guardian := &model.Guardian{
			WalletID:       walletID,
			GuardianUserID: userID,
			Contact:        userID + "@example.com",
			Status:         model.GuardianStatusAccepted,
			AcceptedAt:     &now,
		}
		if err := guardianDAO.Create(guardian); err != nil {
			t.Fatalf("Failed to create guardian: %v", err)
		}
		users = append(users, userID)
	}
	return users
}

func countAuditActions(t *testing.T, walletID, action string) int {
	t.Helper()
	entries, _, err := audit_service.NewAuditService().ListByWallet(walletID, 0, 500)
	if err != nil {
		t.Fatalf("Failed to list audit entries: %v", err)
	}
	count := 0
	for _, entry := range entries {
		if entry.Action == action {
			count++
		}
	}
	return count
}

// scriptedAttestor lets each test control attestation outcomes
type scriptedAttestor struct {
	mu          sync.Mutex
	executeErr  error
	txStatus    attestor.TxStatus
	statusErr   error
	executions  int
	statusCalls int
}

func (f *scriptedAttestor) ChainName() string { return "btc" }

func (f *scriptedAttestor) RegisterGuardian(_ context.Context, _, _ string) (string, error) {
	return "aa0f52b8410d36c2e0c17398297a1cb4e49bd5075b6b529f84500f6b6e018f2e", nil
}

func (f *scriptedAttestor) RevokeGuardian(_ context.Context, _, _ string) (string, error) {
	return "aa0f52b8410d36c2e0c17398297a1cb4e49bd5075b6b529f84500f6b6e018f2e", nil
}

func (f *scriptedAttestor) RecordInitiation(_ context.Context, _, _ string, _ int64) (string, error) {
	return "bb0f52b8410d36c2e0c17398297a1cb4e49bd5075b6b529f84500f6b6e018f2e", nil
}

func (f *scriptedAttestor) RecordApproval(_ context.Context, _, _ string, _ int64) (string, error) {
	return "cc0f52b8410d36c2e0c17398297a1cb4e49bd5075b6b529f84500f6b6e018f2e", nil
}

func (f *scriptedAttestor) RecordExecution(_ context.Context, _, _ string, _ int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions++
	if f.executeErr != nil {
		return "", f.executeErr
	}
	return "dd0f52b8410d36c2e0c17398297a1cb4e49bd5075b6b529f84500f6b6e018f2e", nil
}

func (f *scriptedAttestor) GetTransactionStatus(_ context.Context, _ string) (attestor.TxStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return attestor.TxStatusUnknown, f.statusErr
	}
	return f.txStatus, nil
}

func (f *scriptedAttestor) setExecuteErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executeErr = err
}

func (f *scriptedAttestor) executionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.executions
}

func TestRequiredApprovalsFor(t *testing.T) {
	cases := []struct{ guardians, want int }{
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{5, 3},
		{6, 4},
		{10, 6},
	}
	for _, c := range cases {
		if got := model.RequiredApprovalsFor(c.guardians); got != c.want {
			t.Errorf("Expected quorum %d for %d guardians, got %d", c.want, c.guardians, got)
		}
	}
}

func TestInitiateRecovery(t *testing.T) {
	setupTestDB(t)
	service := newTestService(nil)
	createTestWallet(t, "wallet-1", "owner-1", 3)

	request, code, err := service.InitiateRecovery(context.Background(), "new-device", "wallet-1", testNewAddress)
	if err != nil {
		t.Fatalf("Expected initiation to succeed, got error: %v", err)
	}
	if code == "" {
		t.Fatalf("Expected plaintext recovery code to be returned")
	}
	if request.RecoveryCodeHash != HashRecoveryCode(code) {
		t.Errorf("Expected stored hash to match code digest")
	}
	if request.RecoveryCodeHash == code {
		t.Errorf("Expected plaintext code not to be stored")
	}
	if request.RequiredApprovals != 2 {
		t.Errorf("Expected 2 required approvals for 3 guardians, got %d", request.RequiredApprovals)
	}
	if request.Status != model.RecoveryStatusPending {
		t.Errorf("Expected pending status, got %s", request.Status)
	}
	if !request.ExpiresAt.After(time.Now()) {
		t.Errorf("Expected expiry in the future, got %s", request.ExpiresAt)
	}

	// The audit trail carries the code hash so guardians can verify
	// out-of-band what they are approving; the plaintext never appears
	entries, _, err := audit_service.NewAuditService().ListByWallet("wallet-1", 0, 10)
	if err != nil {
		t.Fatalf("Failed to list audit entries: %v", err)
	}
	found := false
	for _, entry := range entries {
		if entry.Action != model.AuditRecoveryInitiated {
			continue
		}
		found = true
		if !strings.Contains(entry.Metadata, request.RecoveryCodeHash) {
			t.Errorf("Expected initiation metadata to carry the code hash, got %s", entry.Metadata)
		}
		if strings.Contains(entry.Metadata, code) {
			t.Errorf("Expected plaintext code out of the audit trail, got %s", entry.Metadata)
		}
	}
	if !found {
		t.Errorf("Expected a recovery_initiated audit entry")
	}

	// Only one pending request per wallet
	_, _, err = service.InitiateRecovery(context.Background(), "someone-else", "wallet-1", testNewAddress)
	if !errors.Is(err, ErrRecoveryInProgress) {
		t.Errorf("Expected ErrRecoveryInProgress, got %v", err)
	}
}

func TestInitiateRecoveryValidation(t *testing.T) {
	setupTestDB(t)
	service := newTestService(nil)
	createTestWallet(t, "wallet-few", "owner-1", 2)

	_, _, err := service.InitiateRecovery(context.Background(), "new-device", "wallet-few", testNewAddress)
	if !errors.Is(err, ErrInsufficientGuardians) {
		t.Errorf("Expected ErrInsufficientGuardians for 2 guardians, got %v", err)
	}

	createTestWallet(t, "wallet-1", "owner-1", 3)
	_, _, err = service.InitiateRecovery(context.Background(), "new-device", "wallet-1", "not-an-address")
	if !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Expected ErrInvalidAddress, got %v", err)
	}

	_, _, err = service.InitiateRecovery(context.Background(), "new-device", "missing", testNewAddress)
	if !errors.Is(err, ErrWalletNotFound) {
		t.Errorf("Expected ErrWalletNotFound, got %v", err)
	}
}

// Three guardians, quorum of two: initiation, one approval, a duplicate
// approval, then the quorum-completing approval transfers ownership.
func TestRecoveryEndToEnd(t *testing.T) {
	setupTestDB(t)
	service := newTestService(nil)
	guardians := createTestWallet(t, "wallet-1", "owner-1", 3)

	request, code, err := service.InitiateRecovery(context.Background(), "new-device", "wallet-1", testNewAddress)
	if err != nil {
		t.Fatalf("Failed to initiate recovery: %v", err)
	}

	// Wrong code is rejected
	if _, err := service.ApproveRecovery(context.Background(), guardians[0], "wallet-1", "wrong-code"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("Expected ErrInvalidCode, got %v", err)
	}

	// Strangers and the owner cannot approve
	if _, err := service.ApproveRecovery(context.Background(), "stranger", "wallet-1", code); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized for stranger, got %v", err)
	}
	if _, err := service.ApproveRecovery(context.Background(), "owner-1", "wallet-1", code); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized for owner, got %v", err)
	}

	// First approval leaves the request pending
	afterFirst, err := service.ApproveRecovery(context.Background(), guardians[0], "wallet-1", code)
	if err != nil {
		t.Fatalf("First approval failed: %v", err)
	}
	if afterFirst.Status != model.RecoveryStatusPending {
		t.Errorf("Expected pending after first approval, got %s", afterFirst.Status)
	}

	// The same guardian approving again adds nothing
	afterRepeat, err := service.ApproveRecovery(context.Background(), guardians[0], "wallet-1", code)
	if err != nil {
		t.Fatalf("Repeat approval failed: %v", err)
	}
	if afterRepeat.Status != model.RecoveryStatusPending {
		t.Errorf("Expected pending after repeat approval, got %s", afterRepeat.Status)
	}
	if count, _ := dao.NewRecoveryRequestDAO().CountApprovals(request.ID); count != 1 {
		t.Errorf("Expected 1 approval after repeat, got %d", count)
	}

	// Second distinct guardian completes the quorum
	afterSecond, err := service.ApproveRecovery(context.Background(), guardians[1], "wallet-1", code)
	if err != nil {
		t.Fatalf("Quorum approval failed: %v", err)
	}
	if afterSecond.Status != model.RecoveryStatusExecuted {
		t.Fatalf("Expected executed after quorum, got %s", afterSecond.Status)
	}
	if afterSecond.ExecutedAt == nil {
		t.Errorf("Expected ExecutedAt to be set")
	}

	wallet, err := dao.NewWalletDAO().GetByWalletID("wallet-1")
	if err != nil {
		t.Fatalf("Failed to load wallet: %v", err)
	}
	if wallet.Address != testNewAddress {
		t.Errorf("Expected ownership transferred to %s, got %s", testNewAddress, wallet.Address)
	}
	if wallet.OwnerUserID != "new-device" {
		t.Errorf("Expected owner new-device, got %s", wallet.OwnerUserID)
	}

	// A straggler approving after execution gets the terminal tally back,
	// and the round does not budge
	late, err := service.ApproveRecovery(context.Background(), guardians[2], "wallet-1", code)
	if err != nil {
		t.Fatalf("Late approval failed: %v", err)
	}
	if late.Status != model.RecoveryStatusExecuted {
		t.Errorf("Expected executed in terminal tally, got %s", late.Status)
	}
	if count, _ := dao.NewRecoveryRequestDAO().CountApprovals(request.ID); count != 2 {
		t.Errorf("Expected approval count frozen at 2, got %d", count)
	}
	if approved := countAuditActions(t, "wallet-1", model.AuditRecoveryApproved); approved != 2 {
		t.Errorf("Expected 2 approval audit entries, got %d", approved)
	}

	// Guardianship and the code are still checked on the terminal path
	if _, err := service.ApproveRecovery(context.Background(), "stranger", "wallet-1", code); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for late stranger, got %v", err)
	}
	if _, err := service.ApproveRecovery(context.Background(), guardians[2], "wallet-1", "wrong-code"); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("Expected ErrInvalidCode for late wrong code, got %v", err)
	}

	// A new round can start after the terminal state
	if _, _, err := service.InitiateRecovery(context.Background(), "another-device", "wallet-1", testBTCAddress); err != nil {
		t.Errorf("Expected new round after execution, got error: %v", err)
	}
}

// Five guardians race their approvals; the transfer must apply exactly once.
func TestConcurrentApprovalsExecuteOnce(t *testing.T) {
	setupTestDB(t)
	service := newTestService(nil)
	guardians := createTestWallet(t, "wallet-1", "owner-1", 5)

	_, code, err := service.InitiateRecovery(context.Background(), "new-device", "wallet-1", testNewAddress)
	if err != nil {
		t.Fatalf("Failed to initiate recovery: %v", err)
	}

	var wg sync.WaitGroup
	for _, userID := range guardians {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			// Stragglers get the terminal tally back, never an error
			if _, err := service.ApproveRecovery(context.Background(), userID, "wallet-1", code); err != nil {
				t.Errorf("Unexpected approval error for %s: %v", userID, err)
			}
		}(userID)
	}
	wg.Wait()

	latest, err := dao.NewRecoveryRequestDAO().GetLatest("wallet-1")
	if err != nil {
		t.Fatalf("Failed to load request: %v", err)
	}
	if latest.Status != model.RecoveryStatusExecuted {
		t.Fatalf("Expected executed, got %s", latest.Status)
	}

	wallet, err := dao.NewWalletDAO().GetByWalletID("wallet-1")
	if err != nil {
		t.Fatalf("Failed to load wallet: %v", err)
	}
	if wallet.Address != testNewAddress {
		t.Errorf("Expected ownership transferred to %s, got %s", testNewAddress, wallet.Address)
	}

	if executed := countAuditActions(t, "wallet-1", model.AuditRecoveryExecuted); executed != 1 {
		t.Errorf("Expected exactly 1 execution audit entry, got %d", executed)
	}
}

// Racing quorum-crossing approvals must submit a single on-chain execution
// attestation, not one per goroutine.
func TestConcurrentApprovalsAttestOnce(t *testing.T) {
	setupTestDB(t)

	scripted := &scriptedAttestor{}
	registry := attestor.NewRegistry()
	registry.Register(scripted)

	service := newTestService(registry)
	guardians := createTestWallet(t, "wallet-1", "owner-1", 5)

	_, code, err := service.InitiateRecovery(context.Background(), "new-device", "wallet-1", testNewAddress)
	if err != nil {
		t.Fatalf("Failed to initiate recovery: %v", err)
	}

	var wg sync.WaitGroup
	for _, userID := range guardians {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			if _, err := service.ApproveRecovery(context.Background(), userID, "wallet-1", code); err != nil {
				t.Errorf("Unexpected approval error for %s: %v", userID, err)
			}
		}(userID)
	}
	wg.Wait()

	if got := scripted.executionCount(); got != 1 {
		t.Errorf("Expected exactly 1 execution attestation, got %d", got)
	}
	if executed := countAuditActions(t, "wallet-1", model.AuditRecoveryExecuted); executed != 1 {
		t.Errorf("Expected exactly 1 execution audit entry, got %d", executed)
	}

	latest, err := dao.NewRecoveryRequestDAO().GetLatest("wallet-1")
	if err != nil {
		t.Fatalf("Failed to load request: %v", err)
	}
	if latest.Status != model.RecoveryStatusExecuted {
		t.Fatalf("Expected executed, got %s", latest.Status)
	}
}

func TestCancelRecovery(t *testing.T) {
	setupTestDB(t)
	service := newTestService(nil)
	guardians := createTestWallet(t, "wallet-1", "owner-1", 3)

	_, code, err := service.InitiateRecovery(context.Background(), "new-device", "wallet-1", testNewAddress)
	if err != nil {
		t.Fatalf("Failed to initiate recovery: %v", err)
	}

	// Guardians cannot cancel
	if err := service.CancelRecovery(guardians[0], "wallet-1"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for guardian cancel, got %v", err)
	}

	// The owner shuts down the round
	if err := service.CancelRecovery("owner-1", "wallet-1"); err != nil {
		t.Fatalf("Expected owner cancel to succeed, got error: %v", err)
	}

	if _, err := service.ApproveRecovery(context.Background(), guardians[0], "wallet-1", code); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("Expected ErrRequestNotFound after cancel, got %v", err)
	}

	// Ownership unchanged
	wallet, _ := dao.NewWalletDAO().GetByWalletID("wallet-1")
	if wallet.Address != testBTCAddress {
		t.Errorf("Expected ownership unchanged after cancel, got %s", wallet.Address)
	}

	// Not even the initiator can cancel, only the owner
	_, _, err = service.InitiateRecovery(context.Background(), "new-device", "wallet-1", testNewAddress)
	if err != nil {
		t.Fatalf("Failed to initiate second round: %v", err)
	}
	if err := service.CancelRecovery("new-device", "wallet-1"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for initiator cancel, got %v", err)
	}
	if err := service.CancelRecovery("owner-1", "wallet-1"); err != nil {
		t.Fatalf("Expected owner cancel of second round to succeed, got error: %v", err)
	}

	if err := service.CancelRecovery("owner-1", "wallet-1"); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("Expected ErrRequestNotFound with nothing pending, got %v", err)
	}
}

func TestApproveExpiredRequest(t *testing.T) {
	setupTestDB(t)
	service := newTestService(nil)
	guardians := createTestWallet(t, "wallet-1", "owner-1", 3)

	// Plant a request whose deadline already passed
	code, codeHash, err := GenerateRecoveryCode()
	if err != nil {
		t.Fatalf("Failed to generate code: %v", err)
	}
	request := &model.RecoveryRequest{
		WalletID:          "wallet-1",
		NewOwnerAddress:   testNewAddress,
		RecoveryCodeHash:  codeHash,
		RequiredApprovals: 2,
		Status:            model.RecoveryStatusPending,
		InitiatorUserID:   "new-device",
		ExpiresAt:         time.Now().Add(-time.Hour),
	}
	if err := dao.NewRecoveryRequestDAO().CreateIfNonePending(request); err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	if _, err := service.ApproveRecovery(context.Background(), guardians[0], "wallet-1", code); !errors.Is(err, ErrExpired) {
		t.Fatalf("Expected ErrExpired, got %v", err)
	}

	latest, err := dao.NewRecoveryRequestDAO().GetByID(request.ID)
	if err != nil {
		t.Fatalf("Failed to load request: %v", err)
	}
	if latest.Status != model.RecoveryStatusExpired {
		t.Errorf("Expected expired status, got %s", latest.Status)
	}

	// The expired round no longer blocks a new one
	if _, _, err := service.InitiateRecovery(context.Background(), "new-device", "wallet-1", testNewAddress); err != nil {
		t.Errorf("Expected new round after expiry, got error: %v", err)
	}
}

func TestExpireStaleRequests(t *testing.T) {
	setupTestDB(t)
	service := newTestService(nil)
	createTestWallet(t, "wallet-1", "owner-1", 3)

	_, codeHash, err := GenerateRecoveryCode()
	if err != nil {
		t.Fatalf("Failed to generate code: %v", err)
	}
	request := &model.RecoveryRequest{
		WalletID:          "wallet-1",
		NewOwnerAddress:   testNewAddress,
		RecoveryCodeHash:  codeHash,
		RequiredApprovals: 2,
		Status:            model.RecoveryStatusPending,
		InitiatorUserID:   "new-device",
		ExpiresAt:         time.Now().Add(-time.Minute),
	}
	if err := dao.NewRecoveryRequestDAO().CreateIfNonePending(request); err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	expired, err := service.ExpireStaleRequests(time.Now(), 100)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if expired != 1 {
		t.Fatalf("Expected 1 expired request, got %d", expired)
	}

	// Second sweep finds nothing
	expired, err = service.ExpireStaleRequests(time.Now(), 100)
	if err != nil {
		t.Fatalf("Second sweep failed: %v", err)
	}
	if expired != 0 {
		t.Errorf("Expected 0 expired on second sweep, got %d", expired)
	}

	if got := countAuditActions(t, "wallet-1", model.AuditRecoveryExpired); got != 1 {
		t.Errorf("Expected 1 expiry audit entry, got %d", got)
	}
}

func TestGetRecoveryStatus(t *testing.T) {
	setupTestDB(t)
	service := newTestService(nil)
	guardians := createTestWallet(t, "wallet-1", "owner-1", 3)

	if _, err := service.GetRecoveryStatus(context.Background(), "owner-1", "wallet-1"); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("Expected ErrRequestNotFound before any round, got %v", err)
	}

	_, code, err := service.InitiateRecovery(context.Background(), "new-device", "wallet-1", testNewAddress)
	if err != nil {
		t.Fatalf("Failed to initiate recovery: %v", err)
	}
	if _, err := service.ApproveRecovery(context.Background(), guardians[0], "wallet-1", code); err != nil {
		t.Fatalf("Approval failed: %v", err)
	}

	for _, actor := range []string{"owner-1", "new-device", guardians[1]} {
		info, err := service.GetRecoveryStatus(context.Background(), actor, "wallet-1")
		if err != nil {
			t.Fatalf("Expected %s to read status, got error: %v", actor, err)
		}
		if info.ApprovalsCount != 1 {
			t.Errorf("Expected 1 approval, got %d", info.ApprovalsCount)
		}
		if info.RequiredApprovals != 2 {
			t.Errorf("Expected quorum 2, got %d", info.RequiredApprovals)
		}
		if info.Request.Status != model.RecoveryStatusPending {
			t.Errorf("Expected pending, got %s", info.Request.Status)
		}
	}

	if _, err := service.GetRecoveryStatus(context.Background(), "stranger", "wallet-1"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for stranger, got %v", err)
	}
}

func TestExecutionBlockedWhileAttestationUnavailable(t *testing.T) {
	setupTestDB(t)

	scripted := &scriptedAttestor{executeErr: attestor.ErrUnavailable}
	registry := attestor.NewRegistry()
	registry.Register(scripted)

	service := newTestService(registry)
	guardians := createTestWallet(t, "wallet-1", "owner-1", 3)

	request, code, err := service.InitiateRecovery(context.Background(), "new-device", "wallet-1", testNewAddress)
	if err != nil {
		t.Fatalf("Failed to initiate recovery: %v", err)
	}

	if _, err := service.ApproveRecovery(context.Background(), guardians[0], "wallet-1", code); err != nil {
		t.Fatalf("First approval failed: %v", err)
	}

	// Quorum-completing approval cannot execute while the chain is down
	_, err = service.ApproveRecovery(context.Background(), guardians[1], "wallet-1", code)
	if !errors.Is(err, attestor.ErrUnavailable) {
		t.Fatalf("Expected ErrUnavailable, got %v", err)
	}

	// The approval itself was recorded and the request is still pending
	latest, err := dao.NewRecoveryRequestDAO().GetByID(request.ID)
	if err != nil {
		t.Fatalf("Failed to load request: %v", err)
	}
	if latest.Status != model.RecoveryStatusPending {
		t.Fatalf("Expected pending while attestation unavailable, got %s", latest.Status)
	}
	if count, _ := dao.NewRecoveryRequestDAO().CountApprovals(request.ID); count != 2 {
		t.Errorf("Expected 2 recorded approvals, got %d", count)
	}

	wallet, _ := dao.NewWalletDAO().GetByWalletID("wallet-1")
	if wallet.Address != testBTCAddress {
		t.Errorf("Expected ownership unchanged, got %s", wallet.Address)
	}

	// Chain comes back; the guardian retries and the round executes
	scripted.setExecuteErr(nil)
	after, err := service.ApproveRecovery(context.Background(), guardians[1], "wallet-1", code)
	if err != nil {
		t.Fatalf("Retry approval failed: %v", err)
	}
	if after.Status != model.RecoveryStatusExecuted {
		t.Errorf("Expected executed after retry, got %s", after.Status)
	}
}

func TestAmbiguousAttestationReconciliation(t *testing.T) {
	setupTestDB(t)

	scripted := &scriptedAttestor{executeErr: attestor.ErrAmbiguous, txStatus: attestor.TxStatusConfirmed}
	registry := attestor.NewRegistry()
	registry.Register(scripted)

	service := newTestService(registry)
	guardians := createTestWallet(t, "wallet-1", "owner-1", 3)

	request, code, err := service.InitiateRecovery(context.Background(), "new-device", "wallet-1", testNewAddress)
	if err != nil {
		t.Fatalf("Failed to initiate recovery: %v", err)
	}

	if _, err := service.ApproveRecovery(context.Background(), guardians[0], "wallet-1", code); err != nil {
		t.Fatalf("First approval failed: %v", err)
	}

	// Submission times out: outcome unknown, marker persisted
	_, err = service.ApproveRecovery(context.Background(), guardians[1], "wallet-1", code)
	if !errors.Is(err, attestor.ErrAmbiguous) {
		t.Fatalf("Expected ErrAmbiguous, got %v", err)
	}

	latest, err := dao.NewRecoveryRequestDAO().GetByID(request.ID)
	if err != nil {
		t.Fatalf("Failed to load request: %v", err)
	}
	if latest.Status != model.RecoveryStatusPending {
		t.Fatalf("Expected pending while ambiguous, got %s", latest.Status)
	}
	if latest.AttestTxID == "" {
		t.Fatalf("Expected attestation marker to be persisted")
	}

	// Reading the status reconciles: the gateway reports the transaction
	// confirmed, so the round completes without a second submission
	info, err := service.GetRecoveryStatus(context.Background(), "new-device", "wallet-1")
	if err != nil {
		t.Fatalf("Status read failed: %v", err)
	}
	if info.Request.Status != model.RecoveryStatusExecuted {
		t.Fatalf("Expected executed after reconciliation, got %s", info.Request.Status)
	}
	if scripted.executions != 1 {
		t.Errorf("Expected no double submission, got %d executions", scripted.executions)
	}

	wallet, _ := dao.NewWalletDAO().GetByWalletID("wallet-1")
	if wallet.Address != testNewAddress {
		t.Errorf("Expected ownership transferred after reconciliation, got %s", wallet.Address)
	}
}

func TestFailedAttestationClearsMarkerAndResubmits(t *testing.T) {
	setupTestDB(t)

	scripted := &scriptedAttestor{executeErr: attestor.ErrAmbiguous, txStatus: attestor.TxStatusFailed}
	registry := attestor.NewRegistry()
	registry.Register(scripted)

	service := newTestService(registry)
	guardians := createTestWallet(t, "wallet-1", "owner-1", 3)

	_, code, err := service.InitiateRecovery(context.Background(), "new-device", "wallet-1", testNewAddress)
	if err != nil {
		t.Fatalf("Failed to initiate recovery: %v", err)
	}

	if _, err := service.ApproveRecovery(context.Background(), guardians[0], "wallet-1", code); err != nil {
		t.Fatalf("First approval failed: %v", err)
	}
	if _, err := service.ApproveRecovery(context.Background(), guardians[1], "wallet-1", code); !errors.Is(err, attestor.ErrAmbiguous) {
		t.Fatalf("Expected ErrAmbiguous, got %v", err)
	}

	// The gateway reports the earlier submission failed; the round attests
	// fresh and executes
	scripted.setExecuteErr(nil)
	after, err := service.ApproveRecovery(context.Background(), guardians[1], "wallet-1", code)
	if err != nil {
		t.Fatalf("Retry approval failed: %v", err)
	}
	if after.Status != model.RecoveryStatusExecuted {
		t.Fatalf("Expected executed, got %s", after.Status)
	}
	if scripted.executions != 2 {
		t.Errorf("Expected fresh submission after failed tx, got %d executions", scripted.executions)
	}
}

func TestRecoveryCodeHelpers(t *testing.T) {
	code, hash, err := GenerateRecoveryCode()
	if err != nil {
		t.Fatalf("Failed to generate code: %v", err)
	}
	if !VerifyRecoveryCode(code, hash) {
		t.Errorf("Expected code to verify against its own hash")
	}
	if VerifyRecoveryCode("wrong", hash) {
		t.Errorf("Expected wrong code to fail verification")
	}

	code2, hash2, err := GenerateRecoveryCode()
	if err != nil {
		t.Fatalf("Failed to generate second code: %v", err)
	}
	if code == code2 || hash == hash2 {
		t.Errorf("Expected distinct codes per generation")
	}
}
