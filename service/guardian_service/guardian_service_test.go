package guardian_service

import (
	"context"
	"errors"
	"testing"

	"wallet-recovery-system/attestor"
	"wallet-recovery-system/database"
	"wallet-recovery-system/model"
	"wallet-recovery-system/model/dao"
	"wallet-recovery-system/service/audit_service"
	"wallet-recovery-system/service/notify_service"
)

const testBTCAddress = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"

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

func newTestService(t *testing.T, attestors *attestor.Registry) *GuardianService {
	t.Helper()
	return NewGuardianService(audit_service.NewAuditService(), notify_service.NewNotifyService(), attestors)
}

func createTestWallet(t *testing.T, walletID, owner string) {
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
}

// fakeAttestor drives the fail-closed paths without a gateway
type fakeAttestor struct {
	chainName string
	failWith  error
	revoked   []string
}

func (f *fakeAttestor) ChainName() string { return f.chainName }

func (f *fakeAttestor) RegisterGuardian(_ context.Context, _, guardianAddress string) (string, error) {
	if f.failWith != nil {
		return "", f.failWith
	}
	return "tx-register", nil
}

func (f *fakeAttestor) RevokeGuardian(_ context.Context, _, guardianAddress string) (string, error) {
	if f.failWith != nil {
		return "", f.failWith
	}
	f.revoked = append(f.revoked, guardianAddress)
	return "tx-revoke", nil
}

func (f *fakeAttestor) RecordInitiation(_ context.Context, _, _ string, _ int64) (string, error) {
	return "tx-init", f.failWith
}

func (f *fakeAttestor) RecordApproval(_ context.Context, _, _ string, _ int64) (string, error) {
	return "tx-approve", f.failWith
}

func (f *fakeAttestor) RecordExecution(_ context.Context, _, _ string, _ int64) (string, error) {
	return "tx-execute", f.failWith
}

func (f *fakeAttestor) GetTransactionStatus(_ context.Context, _ string) (attestor.TxStatus, error) {
	return attestor.TxStatusConfirmed, nil
}

func TestAddGuardian(t *testing.T) {
	setupTestDB(t)
	service := newTestService(t, nil)
	createTestWallet(t, "wallet-1", "owner-1")

	guardian, err := service.AddGuardian(context.Background(), "owner-1", "wallet-1", "g-1", "g1@example.com", testBTCAddress)
	if err != nil {
		t.Fatalf("Expected add to succeed, got error: %v", err)
	}
	if guardian.Status != model.GuardianStatusPending {
		t.Errorf("Expected pending status, got %s", guardian.Status)
	}
	if guardian.OnChainAddress != testBTCAddress {
		t.Errorf("Expected normalized address %s, got %s", testBTCAddress, guardian.OnChainAddress)
	}

	// Only the owner can invite
	_, err = service.AddGuardian(context.Background(), "not-owner", "wallet-1", "g-2", "", "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for non-owner, got %v", err)
	}

	// Same user cannot be invited twice while active
	_, err = service.AddGuardian(context.Background(), "owner-1", "wallet-1", "g-1", "", "")
	if !errors.Is(err, ErrDuplicateGuardian) {
		t.Errorf("Expected ErrDuplicateGuardian, got %v", err)
	}

	// Owner cannot guard their own wallet
	_, err = service.AddGuardian(context.Background(), "owner-1", "wallet-1", "owner-1", "", "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for self-guardian, got %v", err)
	}

	// Malformed address is rejected before anything is written
	_, err = service.AddGuardian(context.Background(), "owner-1", "wallet-1", "g-3", "", "not-an-address")
	if !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Expected ErrInvalidAddress, got %v", err)
	}

	_, err = service.AddGuardian(context.Background(), "owner-1", "missing-wallet", "g-4", "", "")
	if !errors.Is(err, ErrWalletNotFound) {
		t.Errorf("Expected ErrWalletNotFound, got %v", err)
	}
}

func TestAcceptGuardianship(t *testing.T) {
	setupTestDB(t)
	service := newTestService(t, nil)
	createTestWallet(t, "wallet-1", "owner-1")

	guardian, err := service.AddGuardian(context.Background(), "owner-1", "wallet-1", "g-1", "", "")
	if err != nil {
		t.Fatalf("Failed to add guardian: %v", err)
	}

	// Only the invited user may accept
	_, err = service.AcceptGuardianship("someone-else", guardian.ID)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}

	accepted, err := service.AcceptGuardianship("g-1", guardian.ID)
	if err != nil {
		t.Fatalf("Expected accept to succeed, got error: %v", err)
	}
	if accepted.Status != model.GuardianStatusAccepted {
		t.Errorf("Expected accepted status, got %s", accepted.Status)
	}
	if accepted.AcceptedAt == nil {
		t.Errorf("Expected AcceptedAt to be set")
	}

	// Accepting again is a no-op
	again, err := service.AcceptGuardianship("g-1", guardian.ID)
	if err != nil {
		t.Fatalf("Expected repeat accept to succeed, got error: %v", err)
	}
	if again.Status != model.GuardianStatusAccepted {
		t.Errorf("Expected accepted status on repeat, got %s", again.Status)
	}

	count, err := service.CountAccepted("wallet-1")
	if err != nil {
		t.Fatalf("Failed to count accepted guardians: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 accepted guardian, got %d", count)
	}
}

func TestRemoveGuardianFailsClosedWhenRevokeFails(t *testing.T) {
	setupTestDB(t)

	fake := &fakeAttestor{chainName: "btc", failWith: attestor.ErrUnavailable}
	registry := attestor.NewRegistry()
	registry.Register(fake)

	service := newTestService(t, registry)
	createTestWallet(t, "wallet-1", "owner-1")

	guardian, err := service.AddGuardian(context.Background(), "owner-1", "wallet-1", "g-1", "", testBTCAddress)
	if err == nil {
		t.Fatalf("Expected add to fail while attestor is down")
	}

	// Bring the chain back, add, then take it down again for the removal
	fake.failWith = nil
	guardian, err = service.AddGuardian(context.Background(), "owner-1", "wallet-1", "g-1", "", testBTCAddress)
	if err != nil {
		t.Fatalf("Failed to add guardian: %v", err)
	}

	fake.failWith = attestor.ErrUnavailable
	err = service.RemoveGuardian(context.Background(), "owner-1", "wallet-1", guardian.ID)
	if !errors.Is(err, attestor.ErrUnavailable) {
		t.Fatalf("Expected ErrUnavailable from failed revoke, got %v", err)
	}

	// Guardian must still be present locally
	guardians, err := service.ListGuardians("owner-1", "wallet-1")
	if err != nil {
		t.Fatalf("Failed to list guardians: %v", err)
	}
	if len(guardians) != 1 {
		t.Fatalf("Expected guardian preserved after failed revoke, got %d guardians", len(guardians))
	}

	// Once the chain recovers the removal goes through
	fake.failWith = nil
	if err := service.RemoveGuardian(context.Background(), "owner-1", "wallet-1", guardian.ID); err != nil {
		t.Fatalf("Expected removal to succeed, got error: %v", err)
	}
	if len(fake.revoked) != 1 || fake.revoked[0] != testBTCAddress {
		t.Errorf("Expected on-chain revoke of %s, got %v", testBTCAddress, fake.revoked)
	}

	guardians, err = service.ListGuardians("owner-1", "wallet-1")
	if err != nil {
		t.Fatalf("Failed to list guardians: %v", err)
	}
	if len(guardians) != 0 {
		t.Errorf("Expected no guardians after removal, got %d", len(guardians))
	}
}

func TestRemoveGuardianAuthorization(t *testing.T) {
	setupTestDB(t)
	service := newTestService(t, nil)
	createTestWallet(t, "wallet-1", "owner-1")

	guardian, err := service.AddGuardian(context.Background(), "owner-1", "wallet-1", "g-1", "", "")
	if err != nil {
		t.Fatalf("Failed to add guardian: %v", err)
	}

	if err := service.RemoveGuardian(context.Background(), "g-1", "wallet-1", guardian.ID); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for non-owner removal, got %v", err)
	}

	if err := service.RemoveGuardian(context.Background(), "owner-1", "wallet-1", 9999); !errors.Is(err, ErrGuardianNotFound) {
		t.Errorf("Expected ErrGuardianNotFound, got %v", err)
	}

	if err := service.RemoveGuardian(context.Background(), "owner-1", "wallet-1", guardian.ID); err != nil {
		t.Fatalf("Expected removal to succeed, got error: %v", err)
	}

	// Removing an already revoked guardian fails
	if err := service.RemoveGuardian(context.Background(), "owner-1", "wallet-1", guardian.ID); !errors.Is(err, ErrGuardianNotFound) {
		t.Errorf("Expected ErrGuardianNotFound for revoked guardian, got %v", err)
	}

	// A removed user can be invited again
	if _, err := service.AddGuardian(context.Background(), "owner-1", "wallet-1", "g-1", "", ""); err != nil {
		t.Errorf("Expected re-invite after removal to succeed, got error: %v", err)
	}
}

func TestListGuardiansAuthorization(t *testing.T) {
	setupTestDB(t)
	service := newTestService(t, nil)
	createTestWallet(t, "wallet-1", "owner-1")

	if _, err := service.AddGuardian(context.Background(), "owner-1", "wallet-1", "g-1", "", ""); err != nil {
		t.Fatalf("Failed to add guardian: %v", err)
	}

	// Owner can list
	guardians, err := service.ListGuardians("owner-1", "wallet-1")
	if err != nil {
		t.Fatalf("Expected owner to list guardians, got error: %v", err)
	}
	if len(guardians) != 1 {
		t.Errorf("Expected 1 guardian, got %d", len(guardians))
	}

	// A guardian can list
	if _, err := service.ListGuardians("g-1", "wallet-1"); err != nil {
		t.Errorf("Expected guardian to list guardians, got error: %v", err)
	}

	// Strangers cannot
	if _, err := service.ListGuardians("stranger", "wallet-1"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for stranger, got %v", err)
	}
}
