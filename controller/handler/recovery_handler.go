package handler

import (
	"errors"
	"strconv"

	"wallet-recovery-system/attestor"
	"wallet-recovery-system/controller/respond"
	"wallet-recovery-system/service/audit_service"
	"wallet-recovery-system/service/common_service/chainaddr"
	"wallet-recovery-system/service/guardian_service"
	"wallet-recovery-system/service/recovery_service"
	"wallet-recovery-system/service/wallet_service"

	"github.com/gin-gonic/gin"
)

// actingUserHeader identifies the authenticated caller. Authentication
// itself happens upstream; the header carries the verified user id.
const actingUserHeader = "X-User-Id"

// RecoveryHandler wallet recovery protocol handler
type RecoveryHandler struct {
	walletService   *wallet_service.WalletService
	guardianService *guardian_service.GuardianService
	recoveryService *recovery_service.RecoveryService
	auditService    *audit_service.AuditService
}

// NewRecoveryHandler create recovery handler instance
func NewRecoveryHandler(walletService *wallet_service.WalletService, guardianService *guardian_service.GuardianService, recoveryService *recovery_service.RecoveryService, auditService *audit_service.AuditService) *RecoveryHandler {
	return &RecoveryHandler{
		walletService:   walletService,
		guardianService: guardianService,
		recoveryService: recoveryService,
		auditService:    auditService,
	}
}

func actingUser(c *gin.Context) (string, bool) {
	userID := c.GetHeader(actingUserHeader)
	if userID == "" {
		respond.Unauthorized(c, "missing "+actingUserHeader+" header")
		return "", false
	}
	return userID, true
}

// RegisterWallet register a wallet into the recovery protocol
// @Summary      Register wallet
// @Description  Enroll a wallet with its chain and control address
// @Tags         Wallets
// @Accept       json
// @Produce      json
// @Param        X-User-Id  header    string  true  "Acting user id"
// @Param        body       body      respond.RegisterWalletRequest  true  "Wallet"
// @Success      200        {object}  respond.Response{data=respond.WalletResponse}
// @Failure      400        {object}  respond.Response
// @Failure      409        {object}  respond.Response
// @Router       /wallets [post]
func (h *RecoveryHandler) RegisterWallet(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}

	var req respond.RegisterWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.InvalidParam(c, err.Error())
		return
	}

	wallet, err := h.walletService.RegisterWallet(userID, req.WalletID, req.ChainName, req.Address)
	if err != nil {
		switch {
		case errors.Is(err, wallet_service.ErrWalletExists):
			respond.Conflict(c, err.Error())
		case errors.Is(err, wallet_service.ErrUnsupportedChain), errors.Is(err, wallet_service.ErrInvalidAddress):
			respond.InvalidParam(c, err.Error())
		default:
			respond.ServerError(c, err.Error())
		}
		return
	}

	respond.Success(c, respond.ToWalletResponse(wallet))
}

// GetWallet get wallet by id
// @Summary      Get wallet
// @Tags         Wallets
// @Produce      json
// @Param        walletId  path      string  true  "Wallet id"
// @Success      200       {object}  respond.Response{data=respond.WalletResponse}
// @Failure      404       {object}  respond.Response
// @Router       /wallets/{walletId} [get]
func (h *RecoveryHandler) GetWallet(c *gin.Context) {
	wallet, err := h.walletService.GetWallet(c.Param("walletId"))
	if err != nil {
		if errors.Is(err, wallet_service.ErrWalletNotFound) {
			respond.NotFound(c, err.Error())
			return
		}
		respond.ServerError(c, err.Error())
		return
	}
	respond.Success(c, respond.ToWalletResponse(wallet))
}

// AddGuardian invite a guardian
// @Summary      Add guardian
// @Description  Invite a user as recovery guardian; owner only
// @Tags         Guardians
// @Accept       json
// @Produce      json
// @Param        X-User-Id  header    string  true  "Acting user id"
// @Param        walletId   path      string  true  "Wallet id"
// @Param        body       body      respond.AddGuardianRequest  true  "Guardian"
// @Success      200        {object}  respond.Response{data=respond.GuardianResponse}
// @Failure      400        {object}  respond.Response
// @Failure      403        {object}  respond.Response
// @Failure      409        {object}  respond.Response
// @Failure      503        {object}  respond.Response
// @Router       /wallets/{walletId}/guardians [post]
func (h *RecoveryHandler) AddGuardian(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}

	var req respond.AddGuardianRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.InvalidParam(c, err.Error())
		return
	}

	onChainAddress := req.OnChainAddress
	if onChainAddress == "" && req.OnChainPubKey != "" {
		wallet, err := h.walletService.GetWallet(c.Param("walletId"))
		if err != nil {
			respond.NotFound(c, "wallet not found")
			return
		}
		onChainAddress, err = chainaddr.AddressFromPubKey(wallet.ChainName, req.OnChainPubKey)
		if err != nil {
			respond.InvalidParam(c, err.Error())
			return
		}
	}

	guardian, err := h.guardianService.AddGuardian(c.Request.Context(), userID, c.Param("walletId"), req.GuardianUserID, req.Contact, onChainAddress)
	if err != nil {
		h.respondGuardianError(c, err)
		return
	}

	respond.Success(c, respond.ToGuardianResponse(guardian))
}

// AcceptGuardianship accept a guardian invitation
// @Summary      Accept guardianship
// @Tags         Guardians
// @Produce      json
// @Param        X-User-Id   header    string  true  "Acting user id"
// @Param        guardianId  path      int     true  "Guardian id"
// @Success      200         {object}  respond.Response{data=respond.GuardianResponse}
// @Failure      403         {object}  respond.Response
// @Failure      404         {object}  respond.Response
// @Router       /guardians/{guardianId}/accept [post]
func (h *RecoveryHandler) AcceptGuardianship(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}

	guardianID, err := strconv.ParseInt(c.Param("guardianId"), 10, 64)
	if err != nil {
		respond.InvalidParam(c, "guardianId must be an integer")
		return
	}

	guardian, err := h.guardianService.AcceptGuardianship(userID, guardianID)
	if err != nil {
		h.respondGuardianError(c, err)
		return
	}

	respond.Success(c, respond.ToGuardianResponse(guardian))
}

// RemoveGuardian revoke a guardian
// @Summary      Remove guardian
// @Description  Revoke a guardian; owner only. With attestation enabled the
// @Description  on-chain revoke must succeed first.
// @Tags         Guardians
// @Produce      json
// @Param        X-User-Id   header    string  true  "Acting user id"
// @Param        walletId    path      string  true  "Wallet id"
// @Param        guardianId  path      int     true  "Guardian id"
// @Success      200         {object}  respond.Response
// @Failure      403         {object}  respond.Response
// @Failure      404         {object}  respond.Response
// @Failure      503         {object}  respond.Response
// @Router       /wallets/{walletId}/guardians/{guardianId} [delete]
func (h *RecoveryHandler) RemoveGuardian(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}

	guardianID, err := strconv.ParseInt(c.Param("guardianId"), 10, 64)
	if err != nil {
		respond.InvalidParam(c, "guardianId must be an integer")
		return
	}

	if err := h.guardianService.RemoveGuardian(c.Request.Context(), userID, c.Param("walletId"), guardianID); err != nil {
		h.respondGuardianError(c, err)
		return
	}

	respond.Success(c, nil)
}

// ListGuardians list a wallet's guardians
// @Summary      List guardians
// @Description  Visible to the owner and the guardians themselves
// @Tags         Guardians
// @Produce      json
// @Param        X-User-Id  header    string  true  "Acting user id"
// @Param        walletId   path      string  true  "Wallet id"
// @Success      200        {object}  respond.Response{data=respond.GuardianListResponse}
// @Failure      403        {object}  respond.Response
// @Failure      404        {object}  respond.Response
// @Router       /wallets/{walletId}/guardians [get]
func (h *RecoveryHandler) ListGuardians(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}

	guardians, err := h.guardianService.ListGuardians(userID, c.Param("walletId"))
	if err != nil {
		h.respondGuardianError(c, err)
		return
	}

	respond.Success(c, respond.ToGuardianListResponse(guardians))
}

// InitiateRecovery open a recovery round
// @Summary      Initiate recovery
// @Description  Opens a recovery round and returns the recovery code once
// @Tags         Recovery
// @Accept       json
// @Produce      json
// @Param        X-User-Id  header    string  true  "Acting user id"
// @Param        walletId   path      string  true  "Wallet id"
// @Param        body       body      respond.InitiateRecoveryRequest  true  "Recovery"
// @Success      200        {object}  respond.Response{data=respond.RecoveryRequestResponse}
// @Failure      400        {object}  respond.Response
// @Failure      404        {object}  respond.Response
// @Failure      409        {object}  respond.Response
// @Router       /wallets/{walletId}/recovery [post]
func (h *RecoveryHandler) InitiateRecovery(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}

	var req respond.InitiateRecoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.InvalidParam(c, err.Error())
		return
	}

	request, code, err := h.recoveryService.InitiateRecovery(c.Request.Context(), userID, c.Param("walletId"), req.NewOwnerAddress)
	if err != nil {
		h.respondRecoveryError(c, err)
		return
	}

	response := respond.ToRecoveryRequestResponse(request, 0)
	response.RecoveryCode = code
	respond.Success(c, response)
}

// ApproveRecovery record a guardian approval
// @Summary      Approve recovery
// @Description  Records the guardian's approval; the quorum-completing
// @Description  approval executes the transfer
// @Tags         Recovery
// @Accept       json
// @Produce      json
// @Param        X-User-Id  header    string  true  "Acting user id"
// @Param        walletId   path      string  true  "Wallet id"
// @Param        body       body      respond.ApproveRecoveryRequest  true  "Approval"
// @Success      200        {object}  respond.Response{data=respond.RecoveryRequestResponse}
// @Success      202        {object}  respond.Response
// @Failure      400        {object}  respond.Response
// @Failure      403        {object}  respond.Response
// @Failure      404        {object}  respond.Response
// @Failure      410        {object}  respond.Response
// @Failure      503        {object}  respond.Response
// @Router       /wallets/{walletId}/recovery/approve [post]
func (h *RecoveryHandler) ApproveRecovery(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}

	var req respond.ApproveRecoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.InvalidParam(c, err.Error())
		return
	}

	request, err := h.recoveryService.ApproveRecovery(c.Request.Context(), userID, c.Param("walletId"), req.RecoveryCode)
	if err != nil {
		h.respondRecoveryError(c, err)
		return
	}

	count := len(request.Approvals)
	respond.Success(c, respond.ToRecoveryRequestResponse(request, count))
}

// CancelRecovery cancel the pending round
// @Summary      Cancel recovery
// @Description  Wallet owner aborts the pending recovery
// @Tags         Recovery
// @Produce      json
// @Param        X-User-Id  header    string  true  "Acting user id"
// @Param        walletId   path      string  true  "Wallet id"
// @Success      200        {object}  respond.Response
// @Failure      403        {object}  respond.Response
// @Failure      404        {object}  respond.Response
// @Router       /wallets/{walletId}/recovery [delete]
func (h *RecoveryHandler) CancelRecovery(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}

	if err := h.recoveryService.CancelRecovery(userID, c.Param("walletId")); err != nil {
		h.respondRecoveryError(c, err)
		return
	}

	respond.Success(c, nil)
}

// GetRecoveryStatus read the latest recovery round
// @Summary      Get recovery status
// @Description  Visible to the owner, the initiator and guardians
// @Tags         Recovery
// @Produce      json
// @Param        X-User-Id  header    string  true  "Acting user id"
// @Param        walletId   path      string  true  "Wallet id"
// @Success      200        {object}  respond.Response{data=respond.RecoveryRequestResponse}
// @Failure      403        {object}  respond.Response
// @Failure      404        {object}  respond.Response
// @Router       /wallets/{walletId}/recovery [get]
func (h *RecoveryHandler) GetRecoveryStatus(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}

	info, err := h.recoveryService.GetRecoveryStatus(c.Request.Context(), userID, c.Param("walletId"))
	if err != nil {
		h.respondRecoveryError(c, err)
		return
	}

	respond.Success(c, respond.ToRecoveryStatusResponse(info))
}

// ListAuditEntries list audit entries for a wallet
// @Summary      List audit entries
// @Tags         Audit
// @Produce      json
// @Param        walletId  path      string  true   "Wallet id"
// @Param        cursor    query     int     false  "Cursor"  default(0)
// @Param        size      query     int     false  "Page size"  default(100)
// @Success      200       {object}  respond.Response{data=respond.AuditEntryListResponse}
// @Failure      500       {object}  respond.Response
// @Router       /wallets/{walletId}/audit [get]
func (h *RecoveryHandler) ListAuditEntries(c *gin.Context) {
	cursor, _ := strconv.ParseInt(c.DefaultQuery("cursor", "0"), 10, 64)
	size, _ := strconv.Atoi(c.DefaultQuery("size", "100"))

	entries, nextCursor, err := h.auditService.ListByWallet(c.Param("walletId"), cursor, size)
	if err != nil {
		respond.ServerError(c, err.Error())
		return
	}

	hasMore := len(entries) == size && size > 0
	respond.Success(c, respond.ToAuditEntryListResponse(entries, nextCursor, hasMore))
}

func (h *RecoveryHandler) respondGuardianError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, guardian_service.ErrUnauthorized):
		respond.Unauthorized(c, err.Error())
	case errors.Is(err, guardian_service.ErrWalletNotFound), errors.Is(err, guardian_service.ErrGuardianNotFound):
		respond.NotFound(c, err.Error())
	case errors.Is(err, guardian_service.ErrDuplicateGuardian):
		respond.Conflict(c, err.Error())
	case errors.Is(err, guardian_service.ErrInvalidAddress):
		respond.InvalidParam(c, err.Error())
	case errors.Is(err, attestor.ErrUnavailable), errors.Is(err, attestor.ErrAmbiguous):
		respond.ServiceUnavailable(c, err.Error())
	default:
		respond.ServerError(c, err.Error())
	}
}

func (h *RecoveryHandler) respondRecoveryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, recovery_service.ErrUnauthorized), errors.Is(err, recovery_service.ErrInvalidCode):
		// An invalid code is an authorization failure, not a validation one
		respond.Unauthorized(c, err.Error())
	case errors.Is(err, recovery_service.ErrWalletNotFound), errors.Is(err, recovery_service.ErrRequestNotFound):
		respond.NotFound(c, err.Error())
	case errors.Is(err, recovery_service.ErrRecoveryInProgress):
		respond.Conflict(c, err.Error())
	case errors.Is(err, recovery_service.ErrInsufficientGuardians), errors.Is(err, recovery_service.ErrInvalidAddress):
		respond.InvalidParam(c, err.Error())
	case errors.Is(err, recovery_service.ErrExpired):
		respond.Gone(c, err.Error())
	case errors.Is(err, attestor.ErrAmbiguous):
		respond.Accepted(c, err.Error(), nil)
	case errors.Is(err, attestor.ErrUnavailable):
		respond.ServiceUnavailable(c, err.Error())
	default:
		respond.ServerError(c, err.Error())
	}
}
