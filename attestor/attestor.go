package attestor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"wallet-recovery-system/conf"
)

// Attestation errors. Unavailable means the gateway definitively did not
// record the operation. Ambiguous means the request may or may not have
// landed on chain and the caller must reconcile via GetTransactionStatus.
var (
	ErrUnavailable = errors.New("on-chain attestation unavailable")
	ErrAmbiguous   = errors.New("on-chain attestation ambiguous")
	ErrNoAttestor  = errors.New("no attestor registered for chain")
)

// TxStatus transaction confirmation state on the attestation chain
type TxStatus string

const (
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
	TxStatusPending   TxStatus = "pending"
	TxStatusUnknown   TxStatus = "unknown"
)

// Attestor mirrors guardian set changes and recovery lifecycle events onto a
// chain's attestation contract. Implementations must be safe for concurrent
// use.
type Attestor interface {
	ChainName() string

	// RegisterGuardian records a guardian's attestation address for the wallet
	RegisterGuardian(ctx context.Context, walletAddress, guardianAddress string) (txID string, err error)

	// RevokeGuardian removes a guardian's attestation address. Callers treat
	// failure as fatal for the removal, the local record outliving the
	// on-chain one is acceptable but not the reverse.
	RevokeGuardian(ctx context.Context, walletAddress, guardianAddress string) (txID string, err error)

	// RecordInitiation attests that a recovery round was opened
	RecordInitiation(ctx context.Context, walletAddress, newOwnerAddress string, requestID int64) (txID string, err error)

	// RecordApproval attests a single guardian approval
	RecordApproval(ctx context.Context, walletAddress, guardianAddress string, requestID int64) (txID string, err error)

	// RecordExecution attests the ownership transfer before it is applied
	// locally
	RecordExecution(ctx context.Context, walletAddress, newOwnerAddress string, requestID int64) (txID string, err error)

	// GetTransactionStatus resolves an ambiguous submission. The reference
	// is either a transaction id or an operation handle the gateway can map
	// to the transaction it broadcast.
	GetTransactionStatus(ctx context.Context, ref string) (TxStatus, error)
}

// Registry holds one attestor per chain. Chains without an entry run
// off-chain only.
type Registry struct {
	mu        sync.RWMutex
	attestors map[string]Attestor
}

func NewRegistry() *Registry {
	return &Registry{attestors: make(map[string]Attestor)}
}

// Register adds or replaces the attestor for its chain
func (r *Registry) Register(a Attestor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attestors[a.ChainName()] = a
	log.Printf("Registered attestor for chain: %s", a.ChainName())
}

// Get returns the attestor for the chain, or (nil, false) when attestation
// is not enabled for it
func (r *Registry) Get(chainName string) (Attestor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.attestors[chainName]
	return a, ok
}

// Chains lists the chains with a registered attestor
func (r *Registry) Chains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.attestors))
	for name := range r.attestors {
		names = append(names, name)
	}
	return names
}

// BuildRegistry creates attestors for every configured chain that has
// attestation enabled
func BuildRegistry(chains []conf.ChainInstanceConfig) (*Registry, error) {
	registry := NewRegistry()
	for _, chain := range chains {
		if !chain.AttestationEnabled {
			log.Printf("Chain %s: attestation disabled, recoveries run off-chain only", chain.Name)
			continue
		}
		if chain.GatewayUrl == "" {
			return nil, fmt.Errorf("chain %s: attestation enabled but no gateway url configured", chain.Name)
		}
		registry.Register(NewGatewayAttestor(chain))
	}
	return registry, nil
}
