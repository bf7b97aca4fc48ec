package chainaddr

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	bsvchaincfg "github.com/bitcoinsv/bsvd/chaincfg"
	"github.com/bitcoinsv/bsvutil"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"golang.org/x/crypto/ripemd160"
	"golang.org/x/crypto/sha3"
)

// Supported chain names
const (
	ChainBTC = "btc"
	ChainMVC = "mvc"
	ChainETH = "eth"
)

var (
	ErrUnsupportedChain = errors.New("unsupported chain")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrInvalidPubKey    = errors.New("invalid public key")
)

// Validate checks that addr is a well-formed, checksummed address for the
// chain and returns its normalized form. For eth the normalized form is the
// EIP-55 mixed-case encoding; for btc and mvc it is the decoded-re-encoded
// base58/bech32 string.
func Validate(chainName, addr string) (string, error) {
	if addr == "" {
		return "", ErrInvalidAddress
	}

	switch chainName {
	case ChainBTC:
		decoded, err := btcutil.DecodeAddress(addr, &chaincfg.MainNetParams)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		if !decoded.IsForNet(&chaincfg.MainNetParams) {
			return "", fmt.Errorf("%w: wrong network", ErrInvalidAddress)
		}
		return decoded.EncodeAddress(), nil

	case ChainMVC:
		decoded, err := bsvutil.DecodeAddress(addr, &bsvchaincfg.MainNetParams)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		return decoded.EncodeAddress(), nil

	case ChainETH:
		return validateETH(addr)

	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedChain, chainName)
	}
}

// validateETH checks hex shape and the EIP-55 checksum when the address is
// mixed case. All-lower and all-upper addresses carry no checksum and are
// accepted, then normalized to EIP-55.
func validateETH(addr string) (string, error) {
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return "", fmt.Errorf("%w: missing 0x prefix", ErrInvalidAddress)
	}
	hexPart := addr[2:]
	if len(hexPart) != 40 {
		return "", fmt.Errorf("%w: wrong length", ErrInvalidAddress)
	}
	if _, err := hex.DecodeString(hexPart); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	checksummed := toEIP55(hexPart)
	lower := strings.ToLower(hexPart)
	upper := strings.ToUpper(hexPart)
	if hexPart != lower && hexPart != upper && addr != checksummed {
		return "", fmt.Errorf("%w: bad EIP-55 checksum", ErrInvalidAddress)
	}
	return checksummed, nil
}

// toEIP55 produce the EIP-55 mixed-case encoding of a 40-char hex address
func toEIP55(hexPart string) string {
	lower := strings.ToLower(hexPart)

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(lower))
	hash := hasher.Sum(nil)

	out := make([]byte, len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'a' && c <= 'f' {
			// Uppercase when the corresponding checksum nibble is >= 8
			nibble := hash[i/2]
			if i%2 == 0 {
				nibble >>= 4
			}
			if nibble&0x08 != 0 {
				c = c - 'a' + 'A'
			}
		}
		out[i] = c
	}
	return "0x" + string(out)
}

// AddressFromPubKey derives the chain's P2PKH-style address from a
// hex-encoded secp256k1 public key. Used when inviting a guardian with an
// attestation key instead of a ready-made address.
func AddressFromPubKey(chainName, pubKeyHex string) (string, error) {
	raw, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPubKey, err)
	}
	pubKey, err := btcec.ParsePubKey(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPubKey, err)
	}

	switch chainName {
	case ChainBTC:
		addr, err := btcutil.NewAddressPubKeyHash(hash160(pubKey.SerializeCompressed()), &chaincfg.MainNetParams)
		if err != nil {
			return "", err
		}
		return addr.EncodeAddress(), nil

	case ChainMVC:
		addr, err := bsvutil.NewAddressPubKeyHash(hash160(pubKey.SerializeCompressed()), &bsvchaincfg.MainNetParams)
		if err != nil {
			return "", err
		}
		return addr.EncodeAddress(), nil

	case ChainETH:
		// Keccak256 of the uncompressed point without the 0x04 prefix,
		// last 20 bytes
		uncompressed := pubKey.SerializeUncompressed()
		hasher := sha3.NewLegacyKeccak256()
		hasher.Write(uncompressed[1:])
		hash := hasher.Sum(nil)
		return toEIP55(hex.EncodeToString(hash[12:])), nil

	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedChain, chainName)
	}
}

// IsSupported reports whether address handling for the chain is implemented
func IsSupported(chainName string) bool {
	switch chainName {
	case ChainBTC, ChainMVC, ChainETH:
		return true
	}
	return false
}

// hash160 ripemd160(sha256(b))
func hash160(b []byte) []byte {
	sha := sha256.Sum256(b)
	h := ripemd160.New()
	h.Write(sha[:])
	return h.Sum(nil)
}
