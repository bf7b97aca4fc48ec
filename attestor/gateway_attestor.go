package attestor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/tidwall/gjson"

	"wallet-recovery-system/conf"
	"wallet-recovery-system/tool"
)

const (
	DefaultAttestRetries    = 3
	DefaultAttestRetryDelay = 2 * time.Second
)

// RPCRequest RPC request structure
type RPCRequest struct {
	Jsonrpc string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// RPCResponse RPC response structure
type RPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	ID     string          `json:"id"`
}

// RPCError RPC error structure
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GatewayAttestor submits attestation transactions through a chain gateway's
// JSON-RPC endpoint. The gateway owns the signing key for the attestation
// contract; this client only names the operation and its arguments.
type GatewayAttestor struct {
	chainName       string
	gatewayURL      string
	gatewayUser     string
	gatewayPassword string
	contractAddress string
	retries         int
	retryDelay      time.Duration
}

func NewGatewayAttestor(chain conf.ChainInstanceConfig) *GatewayAttestor {
	retries := DefaultAttestRetries
	retryDelay := DefaultAttestRetryDelay
	if conf.Cfg != nil {
		if conf.Cfg.Recovery.AttestRetries > 0 {
			retries = conf.Cfg.Recovery.AttestRetries
		}
		if conf.Cfg.Recovery.AttestRetryDelay > 0 {
			retryDelay = time.Duration(conf.Cfg.Recovery.AttestRetryDelay) * time.Second
		}
	}
	return &GatewayAttestor{
		chainName:       chain.Name,
		gatewayURL:      chain.GatewayUrl,
		gatewayUser:     chain.GatewayUser,
		gatewayPassword: chain.GatewayPass,
		contractAddress: chain.ContractAddress,
		retries:         retries,
		retryDelay:      retryDelay,
	}
}

func (g *GatewayAttestor) ChainName() string {
	return g.chainName
}

func (g *GatewayAttestor) RegisterGuardian(ctx context.Context, walletAddress, guardianAddress string) (string, error) {
	return g.submit(ctx, "attest_registerguardian", []interface{}{g.contractAddress, walletAddress, guardianAddress})
}

func (g *GatewayAttestor) RevokeGuardian(ctx context.Context, walletAddress, guardianAddress string) (string, error) {
	return g.submit(ctx, "attest_revokeguardian", []interface{}{g.contractAddress, walletAddress, guardianAddress})
}

func (g *GatewayAttestor) RecordInitiation(ctx context.Context, walletAddress, newOwnerAddress string, requestID int64) (string, error) {
	return g.submit(ctx, "attest_initiaterecovery", []interface{}{g.contractAddress, walletAddress, newOwnerAddress, requestID})
}

func (g *GatewayAttestor) RecordApproval(ctx context.Context, walletAddress, guardianAddress string, requestID int64) (string, error) {
	return g.submit(ctx, "attest_approverecovery", []interface{}{g.contractAddress, walletAddress, guardianAddress, requestID})
}

func (g *GatewayAttestor) RecordExecution(ctx context.Context, walletAddress, newOwnerAddress string, requestID int64) (string, error) {
	return g.submit(ctx, "attest_executerecovery", []interface{}{g.contractAddress, walletAddress, newOwnerAddress, requestID})
}

// GetTransactionStatus queries the gateway for the state of a previously
// submitted transaction. Transport failures here stay ErrUnavailable so the
// caller can try reconciliation again later.
func (g *GatewayAttestor) GetTransactionStatus(ctx context.Context, txID string) (TxStatus, error) {
	request := RPCRequest{
		Jsonrpc: "1.0",
		ID:      "attest_gettransactionstatus",
		Method:  "attest_gettransactionstatus",
		Params:  []interface{}{txID},
	}

	response, err := g.rpcCall(ctx, request)
	if err != nil {
		return TxStatusUnknown, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if response.Error != nil {
		return TxStatusUnknown, fmt.Errorf("%w: rpc error: %s", ErrUnavailable, response.Error.Message)
	}

	status := gjson.GetBytes(response.Result, "status").String()
	switch status {
	case "confirmed":
		return TxStatusConfirmed, nil
	case "failed", "rejected", "not_found":
		return TxStatusFailed, nil
	case "pending", "mempool":
		return TxStatusPending, nil
	default:
		return TxStatusUnknown, fmt.Errorf("%w: unexpected tx status %q", ErrUnavailable, status)
	}
}

// submit sends one attestation operation and classifies the outcome.
// Connection-level failures never reached the gateway and retry up to the
// configured bound; timeouts may have landed and report ErrAmbiguous with no
// retry. A clean rpc error response is a definitive rejection.
func (g *GatewayAttestor) submit(ctx context.Context, method string, params []interface{}) (string, error) {
	request := RPCRequest{
		Jsonrpc: "1.0",
		ID:      method,
		Method:  method,
		Params:  params,
	}

	var lastErr error
	for attempt := 0; attempt <= g.retries; attempt++ {
		if attempt > 0 {
			log.Printf("Chain %s: retrying %s (attempt %d/%d)", g.chainName, method, attempt, g.retries)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(g.retryDelay):
			}
		}

		response, err := g.rpcCall(ctx, request)
		if err != nil {
			if isAmbiguousTransportError(err) {
				return "", fmt.Errorf("%w: %s: %v", ErrAmbiguous, method, err)
			}
			lastErr = err
			continue
		}
		if response.Error != nil {
			return "", fmt.Errorf("%w: %s rejected: %s", ErrUnavailable, method, response.Error.Message)
		}

		txID := gjson.GetBytes(response.Result, "txid").String()
		if txID == "" {
			// Some gateways return the txid as a bare string result
			txID = strings.Trim(string(response.Result), `"`)
		}
		if _, err := chainhash.NewHashFromStr(txID); err != nil {
			return "", fmt.Errorf("%w: %s returned malformed txid %q", ErrUnavailable, method, txID)
		}
		return txID, nil
	}

	return "", fmt.Errorf("%w: %s: %v", ErrUnavailable, method, lastErr)
}

func (g *GatewayAttestor) rpcCall(ctx context.Context, request RPCRequest) (*RPCResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// set authentication header
	headers := map[string]string{}
	if g.gatewayUser != "" {
		headers["Authorization"] = "Basic " + tool.Base64Encode(g.gatewayUser+":"+g.gatewayPassword)
	}

	// Send request
	respStr, err := tool.PostUrl(g.gatewayURL, request, headers)
	if err != nil {
		return nil, fmt.Errorf("rpc call failed: %w", err)
	}

	// Parse response
	var response RPCResponse
	if err := json.Unmarshal([]byte(respStr), &response); err != nil {
		return nil, fmt.Errorf("failed to parse rpc response: %w", err)
	}

	return &response, nil
}

// isAmbiguousTransportError reports whether the request may have reached the
// gateway before the failure. Timeouts after send can mean the transaction
// was broadcast without us seeing the txid.
func isAmbiguousTransportError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "unexpected EOF") ||
		strings.Contains(msg, "connection reset")
}
