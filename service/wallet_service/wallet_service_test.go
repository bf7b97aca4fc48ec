package wallet_service

import (
	"errors"
	"testing"

	"wallet-recovery-system/database"
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

func TestRegisterWallet(t *testing.T) {
	setupTestDB(t)
	service := NewWalletService()

	wallet, err := service.RegisterWallet("owner-1", "wallet-1", "btc", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")
	if err != nil {
		t.Fatalf("Failed to register wallet: %v", err)
	}
	if wallet.OwnerUserID != "owner-1" {
		t.Errorf("Expected owner owner-1, got %s", wallet.OwnerUserID)
	}
	if wallet.ChainName != "btc" {
		t.Errorf("Expected chain btc, got %s", wallet.ChainName)
	}

	fetched, err := service.GetWallet("wallet-1")
	if err != nil {
		t.Fatalf("Failed to get wallet: %v", err)
	}
	if fetched.Address != "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa" {
		t.Errorf("Expected stored address unchanged, got %s", fetched.Address)
	}
}

func TestRegisterWalletNormalizesAddress(t *testing.T) {
	setupTestDB(t)
	service := NewWalletService()

	// Lowercase ETH addresses are accepted and stored in checksummed form
	wallet, err := service.RegisterWallet("owner-1", "wallet-eth", "eth", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	if err != nil {
		t.Fatalf("Failed to register eth wallet: %v", err)
	}
	if wallet.Address != "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed" {
		t.Errorf("Expected checksummed address, got %s", wallet.Address)
	}
}

func TestRegisterWalletValidation(t *testing.T) {
	setupTestDB(t)
	service := NewWalletService()

	if _, err := service.RegisterWallet("owner-1", "wallet-1", "dogecoin", "DH5yaieqoZN36fDVciNyRueRGvGLR3mr7L"); !errors.Is(err, ErrUnsupportedChain) {
		t.Errorf("Expected ErrUnsupportedChain, got %v", err)
	}
	if _, err := service.RegisterWallet("owner-1", "wallet-1", "btc", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNb"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Expected ErrInvalidAddress for bad checksum, got %v", err)
	}

	if _, err := service.RegisterWallet("owner-1", "wallet-1", "btc", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"); err != nil {
		t.Fatalf("Failed to register wallet: %v", err)
	}
	if _, err := service.RegisterWallet("owner-2", "wallet-1", "btc", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"); !errors.Is(err, ErrWalletExists) {
		t.Errorf("Expected ErrWalletExists for duplicate id, got %v", err)
	}
}

func TestGetWalletNotFound(t *testing.T) {
	setupTestDB(t)
	service := NewWalletService()

	if _, err := service.GetWallet("nope"); !errors.Is(err, ErrWalletNotFound) {
		t.Errorf("Expected ErrWalletNotFound, got %v", err)
	}
}
