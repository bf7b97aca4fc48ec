package respond

import (
	"time"

	"wallet-recovery-system/model"
	"wallet-recovery-system/service/recovery_service"
)

// WalletResponse wallet response structure
type WalletResponse struct {
	WalletID    string    `json:"wallet_id" example:"wallet-8f3a"`
	ChainName   string    `json:"chain_name" example:"btc"`
	Address     string    `json:"address" example:"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"`
	OwnerUserID string    `json:"owner_user_id" example:"user-1001"`
	CreatedAt   time.Time `json:"created_at" example:"2024-01-01T00:00:00Z"`
}

// GuardianResponse guardian response structure
type GuardianResponse struct {
	ID             int64      `json:"id" example:"1"`
	WalletID       string     `json:"wallet_id" example:"wallet-8f3a"`
	GuardianUserID string     `json:"guardian_user_id" example:"user-2002"`
	Contact        string     `json:"contact" example:"guardian@example.com"`
	OnChainAddress string     `json:"on_chain_address" example:"1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH"`
	Status         string     `json:"status" example:"accepted"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at" example:"2024-01-01T00:00:00Z"`
}

// GuardianListResponse guardian list response structure
type GuardianListResponse struct {
	Guardians []GuardianResponse `json:"guardians"`
	Total     int                `json:"total" example:"3"`
}

// RecoveryRequestResponse recovery request response structure.
// The plaintext recovery code appears only in the initiation response.
type RecoveryRequestResponse struct {
	ID                int64      `json:"id" example:"1"`
	WalletID          string     `json:"wallet_id" example:"wallet-8f3a"`
	NewOwnerAddress   string     `json:"new_owner_address" example:"1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH"`
	Status            string     `json:"status" example:"pending"`
	RequiredApprovals int        `json:"required_approvals" example:"2"`
	ApprovalsCount    int        `json:"approvals_count" example:"1"`
	AttestTxID        string     `json:"attest_tx_id,omitempty" example:""`
	InitiatorUserID   string     `json:"initiator_user_id" example:"user-3003"`
	CreatedAt         time.Time  `json:"created_at" example:"2024-01-01T00:00:00Z"`
	ExpiresAt         time.Time  `json:"expires_at" example:"2024-01-08T00:00:00Z"`
	ExecutedAt        *time.Time `json:"executed_at,omitempty"`
	RecoveryCode      string     `json:"recovery_code,omitempty" example:"4Wz3..."`
}

// AuditEntryResponse audit entry response structure
type AuditEntryResponse struct {
	ID          int64     `json:"id" example:"1"`
	WalletID    string    `json:"wallet_id" example:"wallet-8f3a"`
	Action      string    `json:"action" example:"recovery_initiated"`
	ActorUserID string    `json:"actor_user_id" example:"user-3003"`
	Metadata    string    `json:"metadata" example:"{\"requestId\":1}"`
	CreatedAt   time.Time `json:"created_at" example:"2024-01-01T00:00:00Z"`
}

// AuditEntryListResponse audit entry list response structure
type AuditEntryListResponse struct {
	Entries    []AuditEntryResponse `json:"entries"`
	NextCursor int64                `json:"next_cursor" example:"100"`
	HasMore    bool                 `json:"has_more" example:"true"`
}

// RegisterWalletRequest request structure for wallet registration
type RegisterWalletRequest struct {
	WalletID  string `json:"wallet_id" binding:"required" example:"wallet-8f3a"`
	ChainName string `json:"chain_name" binding:"required" example:"btc"`
	Address   string `json:"address" binding:"required" example:"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"`
}

// AddGuardianRequest request structure for guardian invitation
type AddGuardianRequest struct {
	GuardianUserID string `json:"guardian_user_id" binding:"required" example:"user-2002"`
	Contact        string `json:"contact" example:"guardian@example.com"`
	OnChainAddress string `json:"on_chain_address" example:"1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH"`
	// OnChainPubKey compressed hex public key; when set and on_chain_address
	// is empty the address is derived from it for the wallet's chain
	OnChainPubKey string `json:"on_chain_pub_key" example:"0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"`
}

// InitiateRecoveryRequest request structure for recovery initiation
type InitiateRecoveryRequest struct {
	NewOwnerAddress string `json:"new_owner_address" binding:"required" example:"1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH"`
}

// ApproveRecoveryRequest request structure for guardian approval
type ApproveRecoveryRequest struct {
	RecoveryCode string `json:"recovery_code" binding:"required" example:"4Wz3..."`
}

// ToWalletResponse convert model to response
func ToWalletResponse(wallet *model.Wallet) WalletResponse {
	if wallet == nil {
		return WalletResponse{}
	}
	return WalletResponse{
		WalletID:    wallet.WalletID,
		ChainName:   wallet.ChainName,
		Address:     wallet.Address,
		OwnerUserID: wallet.OwnerUserID,
		CreatedAt:   wallet.CreatedAt,
	}
}

// ToGuardianResponse convert model to response
func ToGuardianResponse(guardian *model.Guardian) GuardianResponse {
	if guardian == nil {
		return GuardianResponse{}
	}
	return GuardianResponse{
		ID:             guardian.ID,
		WalletID:       guardian.WalletID,
		GuardianUserID: guardian.GuardianUserID,
		Contact:        guardian.Contact,
		OnChainAddress: guardian.OnChainAddress,
		Status:         string(guardian.Status),
		AcceptedAt:     guardian.AcceptedAt,
		CreatedAt:      guardian.CreatedAt,
	}
}

// ToGuardianListResponse convert guardian list to response
func ToGuardianListResponse(guardians []*model.Guardian) GuardianListResponse {
	responses := make([]GuardianResponse, 0, len(guardians))
	for _, guardian := range guardians {
		responses = append(responses, ToGuardianResponse(guardian))
	}
	return GuardianListResponse{
		Guardians: responses,
		Total:     len(responses),
	}
}

// ToRecoveryRequestResponse convert model to response
func ToRecoveryRequestResponse(request *model.RecoveryRequest, approvalsCount int) RecoveryRequestResponse {
	if request == nil {
		return RecoveryRequestResponse{}
	}
	return RecoveryRequestResponse{
		ID:                request.ID,
		WalletID:          request.WalletID,
		NewOwnerAddress:   request.NewOwnerAddress,
		Status:            string(request.Status),
		RequiredApprovals: request.RequiredApprovals,
		ApprovalsCount:    approvalsCount,
		AttestTxID:        request.AttestTxID,
		InitiatorUserID:   request.InitiatorUserID,
		CreatedAt:         request.CreatedAt,
		ExpiresAt:         request.ExpiresAt,
		ExecutedAt:        request.ExecutedAt,
	}
}

// ToRecoveryStatusResponse convert status info to response
func ToRecoveryStatusResponse(info *recovery_service.RecoveryStatusInfo) RecoveryRequestResponse {
	if info == nil {
		return RecoveryRequestResponse{}
	}
	return ToRecoveryRequestResponse(info.Request, info.ApprovalsCount)
}

// ToAuditEntryListResponse convert audit entries to response
func ToAuditEntryListResponse(entries []*model.AuditEntry, nextCursor int64, hasMore bool) AuditEntryListResponse {
	responses := make([]AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, AuditEntryResponse{
			ID:          entry.ID,
			WalletID:    entry.WalletID,
			Action:      entry.Action,
			ActorUserID: entry.ActorUserID,
			Metadata:    entry.Metadata,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return AuditEntryListResponse{
		Entries:    responses,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}
}
