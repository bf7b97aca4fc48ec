package recovery_service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"wallet-recovery-system/attestor"
	"wallet-recovery-system/conf"
	"wallet-recovery-system/database"
	"wallet-recovery-system/model"
	"wallet-recovery-system/model/dao"
	"wallet-recovery-system/service/audit_service"
	"wallet-recovery-system/service/common_service/chainaddr"
	"wallet-recovery-system/service/notify_service"
)

// RecoveryService drives the recovery request lifecycle. All status
// transitions go through compare-and-swap updates in the database layer, so
// concurrent approvals and cancellations resolve to exactly one outcome.
type RecoveryService struct {
	walletDAO   *dao.WalletDAO
	guardianDAO *dao.GuardianDAO
	requestDAO  *dao.RecoveryRequestDAO
	audit       *audit_service.AuditService
	notify      *notify_service.NotifyService
	attestors   *attestor.Registry

	// Serializes the attest-and-execute step per request so concurrent
	// quorum-crossing approvals submit at most one execution attestation
	execLocks [64]sync.Mutex
}

func NewRecoveryService(audit *audit_service.AuditService, notify *notify_service.NotifyService, attestors *attestor.Registry) *RecoveryService {
	return &RecoveryService{
		walletDAO:   dao.NewWalletDAO(),
		guardianDAO: dao.NewGuardianDAO(),
		requestDAO:  dao.NewRecoveryRequestDAO(),
		audit:       audit,
		notify:      notify,
		attestors:   attestors,
	}
}

// RecoveryStatusInfo status view returned to participants
type RecoveryStatusInfo struct {
	Request           *model.RecoveryRequest `json:"request"`
	ApprovalsCount    int                    `json:"approvals_count"`
	RequiredApprovals int                    `json:"required_approvals"`
}

// InitiateRecovery opens a recovery round for the wallet and returns the
// request together with the plaintext recovery code. The code is not stored
// and cannot be retrieved again; the initiator distributes it to guardians
// out of band.
func (s *RecoveryService) InitiateRecovery(ctx context.Context, initiatorUserID, walletID, newOwnerAddress string) (*model.RecoveryRequest, string, error) {
	wallet, err := s.walletDAO.GetByWalletID(walletID)
	if err != nil {
		return nil, "", err
	}
	if wallet == nil {
		return nil, "", ErrWalletNotFound
	}

	normalized, err := chainaddr.Validate(wallet.ChainName, newOwnerAddress)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	acceptedCount, err := s.guardianDAO.CountAccepted(walletID)
	if err != nil {
		return nil, "", err
	}
	if acceptedCount < int64(minGuardians()) {
		return nil, "", fmt.Errorf("%w: have %d, need %d", ErrInsufficientGuardians, acceptedCount, minGuardians())
	}

	code, codeHash, err := GenerateRecoveryCode()
	if err != nil {
		return nil, "", err
	}

	request := &model.RecoveryRequest{
		WalletID:          walletID,
		NewOwnerAddress:   normalized,
		RecoveryCodeHash:  codeHash,
		RequiredApprovals: model.RequiredApprovalsFor(int(acceptedCount)),
		Status:            model.RecoveryStatusPending,
		InitiatorUserID:   initiatorUserID,
		ExpiresAt:         time.Now().AddDate(0, 0, expiryDays()),
	}
	if err := s.requestDAO.CreateIfNonePending(request); err != nil {
		if errors.Is(err, database.ErrPendingExists) {
			return nil, "", ErrRecoveryInProgress
		}
		return nil, "", err
	}

	// A new round supersedes whatever terminal round was cached
	if err := database.DeleteCache(recoveryStatusCacheKey(walletID)); err != nil {
		log.Printf("Failed to invalidate recovery status cache for wallet %s: %v", walletID, err)
	}

	// Initiation attestation is advisory. Off-chain state is authoritative
	// until execution, so a failure here does not abort the round.
	if att, ok := s.attestor(wallet.ChainName); ok {
		if txID, err := att.RecordInitiation(ctx, wallet.Address, normalized, request.ID); err != nil {
			log.Printf("Recovery initiation attestation failed for wallet %s: %v", walletID, err)
		} else {
			log.Printf("Recovery initiation attested on %s: tx %s", wallet.ChainName, txID)
		}
	}

	s.audit.Record(walletID, model.AuditRecoveryInitiated, initiatorUserID, map[string]interface{}{
		"requestId":         request.ID,
		"newOwnerAddress":   normalized,
		"recoveryCodeHash":  codeHash,
		"requiredApprovals": request.RequiredApprovals,
		"expiresAt":         request.ExpiresAt,
	})
	s.notifyParticipants(wallet, notify_service.Event{
		Type:      notify_service.EventRecoveryInitiated,
		WalletID:  walletID,
		RequestID: request.ID,
		Message:   fmt.Sprintf("Recovery of wallet %s was initiated; %d guardian approvals required", walletID, request.RequiredApprovals),
	})

	return request, code, nil
}

// ApproveRecovery records one guardian's approval. The approval is
// idempotent per guardian; when it completes the quorum the same call
// executes the transfer. The returned request reflects the state after the
// approval.
func (s *RecoveryService) ApproveRecovery(ctx context.Context, actorUserID, walletID, code string) (*model.RecoveryRequest, error) {
	wallet, err := s.walletDAO.GetByWalletID(walletID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, ErrWalletNotFound
	}

	request, err := s.requestDAO.GetPending(walletID)
	if err != nil {
		return nil, err
	}
	executed := false
	if request == nil {
		// A straggler approving after quorum already executed gets the
		// terminal tally back instead of an error. Cancelled and expired
		// rounds stay not-found; there is nothing left to approve.
		latest, err := s.requestDAO.GetLatest(walletID)
		if err != nil {
			return nil, err
		}
		if latest == nil || latest.Status != model.RecoveryStatusExecuted {
			return nil, ErrRequestNotFound
		}
		request = latest
		executed = true
	}
	if !executed && request.IsExpiredAt(time.Now()) {
		s.expireRequest(wallet, request)
		return nil, ErrExpired
	}

	guardian, err := s.guardianDAO.GetActiveByWalletAndUser(walletID, actorUserID)
	if err != nil {
		return nil, err
	}
	if guardian == nil || guardian.Status != model.GuardianStatusAccepted {
		return nil, ErrUnauthorized
	}

	if !VerifyRecoveryCode(code, request.RecoveryCodeHash) {
		return nil, ErrInvalidCode
	}
	if executed {
		return request, nil
	}

	added, count, err := s.requestDAO.AddApproval(request.ID, guardian.ID)
	if err != nil {
		return nil, err
	}
	if added {
		s.audit.Record(walletID, model.AuditRecoveryApproved, actorUserID, map[string]interface{}{
			"requestId":  request.ID,
			"guardianId": guardian.ID,
			"approvals":  count,
		})
		if att, ok := s.attestor(wallet.ChainName); ok && guardian.OnChainAddress != "" {
			if _, err := att.RecordApproval(ctx, wallet.Address, guardian.OnChainAddress, request.ID); err != nil {
				log.Printf("Approval attestation failed for request %d: %v", request.ID, err)
			}
		}
	}

	if count >= request.RequiredApprovals {
		if err := s.executeRecovery(ctx, wallet, request); err != nil {
			return nil, err
		}
	}

	return s.requestDAO.GetByID(request.ID)
}

// CancelRecovery aborts the pending request. Only the current owner may
// cancel; an initiator who regrets the request simply lets it expire.
func (s *RecoveryService) CancelRecovery(actorUserID, walletID string) error {
	wallet, err := s.walletDAO.GetByWalletID(walletID)
	if err != nil {
		return err
	}
	if wallet == nil {
		return ErrWalletNotFound
	}

	request, err := s.requestDAO.GetPending(walletID)
	if err != nil {
		return err
	}
	if request == nil {
		return ErrRequestNotFound
	}
	if actorUserID != wallet.OwnerUserID {
		return ErrUnauthorized
	}

	// Take the execution lock so a cancel never interleaves with an
	// in-flight attest-and-execute
	lock := s.requestLock(request.ID)
	lock.Lock()
	won, err := s.requestDAO.TransitionStatus(request.ID, model.RecoveryStatusPending, model.RecoveryStatusCancelled)
	lock.Unlock()
	if err != nil {
		return err
	}
	if !won {
		// The request left pending under us, report what it became
		current, err := s.requestDAO.GetByID(request.ID)
		if err != nil {
			return err
		}
		if current != nil && current.Status == model.RecoveryStatusCancelled {
			return nil
		}
		return ErrRequestNotFound
	}

	s.audit.Record(walletID, model.AuditRecoveryCancelled, actorUserID, map[string]interface{}{
		"requestId": request.ID,
	})
	s.notifyParticipants(wallet, notify_service.Event{
		Type:      notify_service.EventRecoveryCancelled,
		WalletID:  walletID,
		RequestID: request.ID,
		Message:   fmt.Sprintf("Recovery of wallet %s was cancelled", walletID),
	})
	return nil
}

// GetRecoveryStatus returns the latest request for the wallet. Visible to
// the owner, the initiator and the wallet's guardians. When an earlier
// execution attempt ended ambiguous, reading the status retries the
// reconciliation.
func (s *RecoveryService) GetRecoveryStatus(ctx context.Context, actorUserID, walletID string) (*RecoveryStatusInfo, error) {
	wallet, err := s.walletDAO.GetByWalletID(walletID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, ErrWalletNotFound
	}

	// Terminal rounds never change again, so they are served from cache
	// until a new initiation replaces them
	var cached RecoveryStatusInfo
	if err := database.GetCache(recoveryStatusCacheKey(walletID), &cached); err == nil && cached.Request != nil {
		if err := s.authorizeParticipant(wallet, cached.Request, actorUserID); err != nil {
			return nil, err
		}
		return &cached, nil
	}

	request, err := s.requestDAO.GetLatest(walletID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, ErrRequestNotFound
	}

	if err := s.authorizeParticipant(wallet, request, actorUserID); err != nil {
		return nil, err
	}

	if request.Status == model.RecoveryStatusPending && request.IsExpiredAt(time.Now()) {
		s.expireRequest(wallet, request)
		if request, err = s.requestDAO.GetByID(request.ID); err != nil {
			return nil, err
		}
	}

	count, err := s.requestDAO.CountApprovals(request.ID)
	if err != nil {
		return nil, err
	}

	if request.Status == model.RecoveryStatusPending && request.AttestTxID != "" && count >= request.RequiredApprovals {
		if err := s.executeRecovery(ctx, wallet, request); err != nil {
			log.Printf("Recovery reconciliation for request %d still unresolved: %v", request.ID, err)
		}
		if request, err = s.requestDAO.GetByID(request.ID); err != nil {
			return nil, err
		}
	}

	info := &RecoveryStatusInfo{
		Request:           request,
		ApprovalsCount:    count,
		RequiredApprovals: request.RequiredApprovals,
	}
	if request.IsTerminal() {
		if err := database.SetCache(recoveryStatusCacheKey(walletID), info); err != nil {
			log.Printf("Failed to cache recovery status for wallet %s: %v", walletID, err)
		}
	}
	return info, nil
}

// ExpireStaleRequests transitions pending requests past their deadline to
// expired. Returns the number of requests expired.
func (s *RecoveryService) ExpireStaleRequests(before time.Time, limit int) (int, error) {
	requests, err := s.requestDAO.ListPendingExpiredBefore(before, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, request := range requests {
		wallet, err := s.walletDAO.GetByWalletID(request.WalletID)
		if err != nil {
			log.Printf("Failed to load wallet %s for expiry: %v", request.WalletID, err)
			continue
		}
		if wallet == nil {
			continue
		}
		if s.expireRequest(wallet, request) {
			expired++
		}
	}
	return expired, nil
}

// executeRecovery attests the execution when the wallet's chain requires it,
// then performs the pending -> executed transition. Exactly one caller wins
// the transition and applies the ownership transfer; everyone else observes
// the executed request. The attestation happens strictly before the local
// transition so the chain can never miss an executed recovery, and the
// whole step runs under the request's execution lock so the chain never
// sees the same execution attested twice.
func (s *RecoveryService) executeRecovery(ctx context.Context, wallet *model.Wallet, request *model.RecoveryRequest) error {
	lock := s.requestLock(request.ID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock; a concurrent approval or cancel may already
	// have settled the request while we waited
	current, err := s.requestDAO.GetByID(request.ID)
	if err != nil {
		return err
	}
	if current == nil || current.Status != model.RecoveryStatusPending {
		return nil
	}
	request = current

	if att, ok := s.attestor(wallet.ChainName); ok {
		confirmed := false

		if request.AttestTxID != "" {
			status, err := att.GetTransactionStatus(ctx, request.AttestTxID)
			if err != nil {
				return err
			}
			switch status {
			case attestor.TxStatusConfirmed:
				confirmed = true
			case attestor.TxStatusPending:
				return fmt.Errorf("%w: attestation tx %s not confirmed yet", attestor.ErrAmbiguous, request.AttestTxID)
			default:
				// The earlier submission definitively failed, forget it and
				// attest again
				if err := s.requestDAO.SetAttestTxID(request.ID, ""); err != nil {
					return err
				}
				request.AttestTxID = ""
			}
		}

		if !confirmed {
			txID, err := att.RecordExecution(ctx, wallet.Address, request.NewOwnerAddress, request.ID)
			if err != nil {
				if errors.Is(err, attestor.ErrAmbiguous) {
					// Remember the operation handle so later calls reconcile
					// instead of double-submitting
					if setErr := s.requestDAO.SetAttestTxID(request.ID, executionHandle(request.ID)); setErr != nil {
						return setErr
					}
				}
				return err
			}
			if err := s.requestDAO.SetAttestTxID(request.ID, txID); err != nil {
				return err
			}
			request.AttestTxID = txID
		}
	}

	won, err := s.requestDAO.TransitionStatus(request.ID, model.RecoveryStatusPending, model.RecoveryStatusExecuted)
	if err != nil {
		return err
	}
	if !won {
		// A concurrent approval already executed, or the owner cancelled in
		// between. Either way the terminal state stands.
		return nil
	}

	if err := s.walletDAO.UpdateOwnership(wallet.WalletID, request.NewOwnerAddress, request.InitiatorUserID); err != nil {
		// The request is already executed; ownership must follow. Surface
		// the error loudly rather than silently diverging.
		log.Printf("CRITICAL: request %d executed but ownership update failed: %v", request.ID, err)
		return err
	}

	s.audit.Record(wallet.WalletID, model.AuditRecoveryExecuted, request.InitiatorUserID, map[string]interface{}{
		"requestId":       request.ID,
		"newOwnerAddress": request.NewOwnerAddress,
		"attestTxId":      request.AttestTxID,
	})
	s.notifyParticipants(wallet, notify_service.Event{
		Type:      notify_service.EventRecoveryExecuted,
		WalletID:  wallet.WalletID,
		RequestID: request.ID,
		Message:   fmt.Sprintf("Recovery of wallet %s executed, ownership transferred to %s", wallet.WalletID, request.NewOwnerAddress),
	})
	return nil
}

// expireRequest transitions the request to expired, reporting whether this
// call won the transition
func (s *RecoveryService) expireRequest(wallet *model.Wallet, request *model.RecoveryRequest) bool {
	won, err := s.requestDAO.TransitionStatus(request.ID, model.RecoveryStatusPending, model.RecoveryStatusExpired)
	if err != nil {
		log.Printf("Failed to expire request %d: %v", request.ID, err)
		return false
	}
	if !won {
		return false
	}

	s.audit.Record(wallet.WalletID, model.AuditRecoveryExpired, "system", map[string]interface{}{
		"requestId": request.ID,
	})
	s.notifyParticipants(wallet, notify_service.Event{
		Type:      notify_service.EventRecoveryExpired,
		WalletID:  wallet.WalletID,
		RequestID: request.ID,
		Message:   fmt.Sprintf("Recovery of wallet %s expired without reaching quorum", wallet.WalletID),
	})
	return true
}

func (s *RecoveryService) authorizeParticipant(wallet *model.Wallet, request *model.RecoveryRequest, actorUserID string) error {
	if actorUserID == wallet.OwnerUserID || actorUserID == request.InitiatorUserID {
		return nil
	}
	guardian, err := s.guardianDAO.GetActiveByWalletAndUser(wallet.WalletID, actorUserID)
	if err != nil {
		return err
	}
	if guardian == nil {
		return ErrUnauthorized
	}
	return nil
}

// notifyParticipants fans the event out to the owner and every accepted
// guardian with a contact
func (s *RecoveryService) notifyParticipants(wallet *model.Wallet, event notify_service.Event) {
	contacts := []string{}
	guardians, err := s.guardianDAO.ListAccepted(wallet.WalletID)
	if err != nil {
		log.Printf("Failed to list guardians for notification: %v", err)
	} else {
		for _, guardian := range guardians {
			if guardian.Contact != "" {
				contacts = append(contacts, guardian.Contact)
			}
		}
	}
	contacts = append(contacts, "user:"+wallet.OwnerUserID)
	s.notify.Send(contacts, event)
}

func (s *RecoveryService) attestor(chainName string) (attestor.Attestor, bool) {
	if s.attestors == nil {
		return nil, false
	}
	return s.attestors.Get(chainName)
}

func (s *RecoveryService) requestLock(requestID int64) *sync.Mutex {
	return &s.execLocks[requestID%int64(len(s.execLocks))]
}

func recoveryStatusCacheKey(walletID string) string {
	return "recovery:latest:" + walletID
}

// executionHandle operation reference persisted when a submission ends
// ambiguous. The gateway resolves it to the transaction it broadcast, if
// any.
func executionHandle(requestID int64) string {
	return fmt.Sprintf("exec-%d", requestID)
}

func minGuardians() int {
	if conf.Cfg != nil && conf.Cfg.Recovery.MinGuardians > 0 {
		return conf.Cfg.Recovery.MinGuardians
	}
	return 3
}

func expiryDays() int {
	if conf.Cfg != nil && conf.Cfg.Recovery.ExpiryDays > 0 {
		return conf.Cfg.Recovery.ExpiryDays
	}
	return 7
}
