package wallet_service

import (
	"errors"
	"fmt"

	"wallet-recovery-system/model"
	"wallet-recovery-system/model/dao"
	"wallet-recovery-system/service/common_service/chainaddr"
)

var (
	ErrWalletExists     = errors.New("wallet already registered")
	ErrWalletNotFound   = errors.New("wallet not found")
	ErrUnsupportedChain = errors.New("unsupported chain")
	ErrInvalidAddress   = errors.New("invalid address")
)

// WalletService registers wallets into the recovery protocol
type WalletService struct {
	walletDAO *dao.WalletDAO
}

func NewWalletService() *WalletService {
	return &WalletService{walletDAO: dao.NewWalletDAO()}
}

// RegisterWallet enrolls a wallet. The address must pass the chain's
// checksum rules; it is stored in normalized form.
func (s *WalletService) RegisterWallet(ownerUserID, walletID, chainName, address string) (*model.Wallet, error) {
	if !chainaddr.IsSupported(chainName) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, chainName)
	}
	normalized, err := chainaddr.Validate(chainName, address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	existing, err := s.walletDAO.GetByWalletID(walletID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrWalletExists
	}

	wallet := &model.Wallet{
		WalletID:    walletID,
		ChainName:   chainName,
		Address:     normalized,
		OwnerUserID: ownerUserID,
	}
	if err := s.walletDAO.Create(wallet); err != nil {
		return nil, err
	}
	return wallet, nil
}

// GetWallet fetches a wallet by its external identifier
func (s *WalletService) GetWallet(walletID string) (*model.Wallet, error) {
	wallet, err := s.walletDAO.GetByWalletID(walletID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, ErrWalletNotFound
	}
	return wallet, nil
}
