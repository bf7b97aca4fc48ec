package recovery_service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
)

const recoveryCodeBytes = 32

// GenerateRecoveryCode returns a fresh recovery code and its sha256 hex
// digest. The code is shown to the initiator exactly once; only the digest
// is ever stored.
func GenerateRecoveryCode() (code string, hash string, err error) {
	raw := make([]byte, recoveryCodeBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate recovery code: %w", err)
	}
	code = base58.Encode(raw)
	return code, HashRecoveryCode(code), nil
}

// HashRecoveryCode sha256 hex digest of the code
func HashRecoveryCode(code string) string {
	digest := sha256.Sum256([]byte(code))
	return hex.EncodeToString(digest[:])
}

// VerifyRecoveryCode compares the code against a stored digest in constant
// time
func VerifyRecoveryCode(code, storedHash string) bool {
	computed := HashRecoveryCode(code)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
