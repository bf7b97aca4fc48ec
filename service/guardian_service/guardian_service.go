package guardian_service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"wallet-recovery-system/attestor"
	"wallet-recovery-system/database"
	"wallet-recovery-system/model"
	"wallet-recovery-system/model/dao"
	"wallet-recovery-system/service/audit_service"
	"wallet-recovery-system/service/common_service/chainaddr"
	"wallet-recovery-system/service/notify_service"
)

var (
	ErrUnauthorized      = errors.New("caller is not allowed to perform this operation")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrGuardianNotFound  = errors.New("guardian not found")
	ErrDuplicateGuardian = errors.New("user is already a guardian for this wallet")
	ErrInvalidAddress    = errors.New("invalid on-chain address")
)

// GuardianService manages the guardian set of a wallet
type GuardianService struct {
	walletDAO   *dao.WalletDAO
	guardianDAO *dao.GuardianDAO
	audit       *audit_service.AuditService
	notify      *notify_service.NotifyService
	attestors   *attestor.Registry
}

func NewGuardianService(audit *audit_service.AuditService, notify *notify_service.NotifyService, attestors *attestor.Registry) *GuardianService {
	return &GuardianService{
		walletDAO:   dao.NewWalletDAO(),
		guardianDAO: dao.NewGuardianDAO(),
		audit:       audit,
		notify:      notify,
		attestors:   attestors,
	}
}

// AddGuardian invites a user as guardian of the wallet. Only the current
// owner may invite. When the wallet's chain has attestation enabled the
// guardian's address is registered on chain before the local record exists,
// so the chain never lags the registry for additions either.
func (s *GuardianService) AddGuardian(ctx context.Context, actorUserID, walletID, guardianUserID, contact, onChainAddress string) (*model.Guardian, error) {
	wallet, err := s.walletDAO.GetByWalletID(walletID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, ErrWalletNotFound
	}
	if wallet.OwnerUserID != actorUserID {
		return nil, ErrUnauthorized
	}
	if guardianUserID == "" || guardianUserID == wallet.OwnerUserID {
		return nil, fmt.Errorf("%w: owner cannot be their own guardian", ErrUnauthorized)
	}

	existing, err := s.guardianDAO.GetActiveByWalletAndUser(walletID, guardianUserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateGuardian
	}

	if onChainAddress != "" {
		normalized, err := chainaddr.Validate(wallet.ChainName, onChainAddress)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		onChainAddress = normalized
	}

	if att, ok := s.attestor(wallet.ChainName); ok && onChainAddress != "" {
		txID, err := att.RegisterGuardian(ctx, wallet.Address, onChainAddress)
		if err != nil {
			return nil, err
		}
		log.Printf("Guardian registration attested on %s: tx %s", wallet.ChainName, txID)
	}

	guardian := &model.Guardian{
		WalletID:       walletID,
		GuardianUserID: guardianUserID,
		Contact:        contact,
		OnChainAddress: onChainAddress,
		Status:         model.GuardianStatusPending,
	}
	if err := s.guardianDAO.Create(guardian); err != nil {
		return nil, err
	}

	s.invalidateListCache(walletID)
	s.audit.Record(walletID, model.AuditGuardianAdded, actorUserID, map[string]interface{}{
		"guardianUserId": guardianUserID,
		"onChainAddress": onChainAddress,
	})
	if contact != "" {
		s.notify.Send([]string{contact}, notify_service.Event{
			Type:     notify_service.EventGuardianInvited,
			WalletID: walletID,
			Message:  fmt.Sprintf("You have been invited as a recovery guardian for wallet %s", walletID),
		})
	}

	return guardian, nil
}

// AcceptGuardianship marks a pending invitation accepted. Only the invited
// user may accept, and accepting twice is a no-op.
func (s *GuardianService) AcceptGuardianship(actorUserID string, guardianID int64) (*model.Guardian, error) {
	guardian, err := s.guardianDAO.GetByID(guardianID)
	if err != nil {
		return nil, err
	}
	if guardian == nil || guardian.Status == model.GuardianStatusRevoked {
		return nil, ErrGuardianNotFound
	}
	if guardian.GuardianUserID != actorUserID {
		return nil, ErrUnauthorized
	}
	if guardian.Status == model.GuardianStatusAccepted {
		return guardian, nil
	}

	now := time.Now()
	won, err := s.guardianDAO.TransitionStatus(guardianID, model.GuardianStatusPending, model.GuardianStatusAccepted, &now)
	if err != nil {
		return nil, err
	}
	if !won {
		// Lost the race to a concurrent accept or revoke, re-read
		guardian, err = s.guardianDAO.GetByID(guardianID)
		if err != nil {
			return nil, err
		}
		if guardian == nil || guardian.Status != model.GuardianStatusAccepted {
			return nil, ErrGuardianNotFound
		}
		return guardian, nil
	}

	guardian.Status = model.GuardianStatusAccepted
	guardian.AcceptedAt = &now

	s.invalidateListCache(guardian.WalletID)
	s.audit.Record(guardian.WalletID, model.AuditGuardianAccepted, actorUserID, map[string]interface{}{
		"guardianUserId": guardian.GuardianUserID,
	})
	return guardian, nil
}

// RemoveGuardian revokes a guardian. Only the wallet owner may remove.
// When the chain attests guardianship the on-chain revoke must succeed
// before the local record changes; a guardian present locally but absent on
// chain would let recoveries pass locally that the chain would reject.
func (s *GuardianService) RemoveGuardian(ctx context.Context, actorUserID, walletID string, guardianID int64) error {
	wallet, err := s.walletDAO.GetByWalletID(walletID)
	if err != nil {
		return err
	}
	if wallet == nil {
		return ErrWalletNotFound
	}
	if wallet.OwnerUserID != actorUserID {
		return ErrUnauthorized
	}

	guardian, err := s.guardianDAO.GetByID(guardianID)
	if err != nil {
		return err
	}
	if guardian == nil || guardian.WalletID != walletID || guardian.Status == model.GuardianStatusRevoked {
		return ErrGuardianNotFound
	}

	if att, ok := s.attestor(wallet.ChainName); ok && guardian.OnChainAddress != "" {
		txID, err := att.RevokeGuardian(ctx, wallet.Address, guardian.OnChainAddress)
		if err != nil {
			// Fail closed: local removal waits for a successful revoke
			return err
		}
		log.Printf("Guardian revocation attested on %s: tx %s", wallet.ChainName, txID)
	}

	won, err := s.guardianDAO.TransitionStatus(guardianID, guardian.Status, model.GuardianStatusRevoked, nil)
	if err != nil {
		return err
	}
	if !won {
		return ErrGuardianNotFound
	}

	s.invalidateListCache(walletID)
	s.audit.Record(walletID, model.AuditGuardianRemoved, actorUserID, map[string]interface{}{
		"guardianUserId": guardian.GuardianUserID,
	})
	if guardian.Contact != "" {
		s.notify.Send([]string{guardian.Contact}, notify_service.Event{
			Type:     notify_service.EventGuardianRemoved,
			WalletID: walletID,
			Message:  fmt.Sprintf("You are no longer a recovery guardian for wallet %s", walletID),
		})
	}
	return nil
}

// ListGuardians returns the wallet's non-revoked guardians. Readable by the
// owner and by the guardians themselves.
func (s *GuardianService) ListGuardians(actorUserID, walletID string) ([]*model.Guardian, error) {
	wallet, err := s.walletDAO.GetByWalletID(walletID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, ErrWalletNotFound
	}

	guardians, err := s.listCached(walletID)
	if err != nil {
		return nil, err
	}

	if wallet.OwnerUserID != actorUserID && !isGuardianUser(guardians, actorUserID) {
		return nil, ErrUnauthorized
	}
	return guardians, nil
}

// CountAccepted returns the number of guardians eligible to approve a
// recovery
func (s *GuardianService) CountAccepted(walletID string) (int64, error) {
	return s.guardianDAO.CountAccepted(walletID)
}

func (s *GuardianService) attestor(chainName string) (attestor.Attestor, bool) {
	if s.attestors == nil {
		return nil, false
	}
	return s.attestors.Get(chainName)
}

func (s *GuardianService) listCached(walletID string) ([]*model.Guardian, error) {
	cacheKey := guardianListCacheKey(walletID)

	var cached []*model.Guardian
	if err := database.GetCache(cacheKey, &cached); err == nil {
		return cached, nil
	}

	guardians, err := s.guardianDAO.ListByWallet(walletID)
	if err != nil {
		return nil, err
	}
	active := make([]*model.Guardian, 0, len(guardians))
	for _, guardian := range guardians {
		if guardian.Status != model.GuardianStatusRevoked {
			active = append(active, guardian)
		}
	}

	if err := database.SetCache(cacheKey, active); err != nil {
		log.Printf("Failed to cache guardian list for wallet %s: %v", walletID, err)
	}
	return active, nil
}

func (s *GuardianService) invalidateListCache(walletID string) {
	if err := database.DeleteCache(guardianListCacheKey(walletID)); err != nil {
		log.Printf("Failed to invalidate guardian list cache for wallet %s: %v", walletID, err)
	}
}

func guardianListCacheKey(walletID string) string {
	return "guardians:" + walletID
}

func isGuardianUser(guardians []*model.Guardian, userID string) bool {
	for _, guardian := range guardians {
		if guardian.GuardianUserID == userID {
			return true
		}
	}
	return false
}
