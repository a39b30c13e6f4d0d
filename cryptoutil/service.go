package cryptoutil

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"

	"proxyvote/models"
)

// PackedArg is one (type, value) pair of a size-tagged packed hash. Type is
// "bytes" for a length-implicit value or "bytesN" (1 <= N <= 32) for a value
// of exactly N bytes.
type PackedArg struct {
	Type  string
	Value []byte
}

func Bytes31(b []byte) PackedArg { return PackedArg{Type: "bytes31", Value: b} }
func Bytes32(b []byte) PackedArg { return PackedArg{Type: "bytes32", Value: b} }
func Bytes(b []byte) PackedArg   { return PackedArg{Type: "bytes", Value: b} }

// CryptoService is the hash/sign primitive: keccak-256 and recoverable
// secp256k1 signatures as deployed EVM verifiers expect them.
type CryptoService struct{}

func NewCryptoService() *CryptoService {
	return &CryptoService{}
}

// GenerateKeyPair generates a new secp256k1 key pair
func (cs *CryptoService) GenerateKeyPair() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

// Keccak256 computes Keccak-256 hash
func (cs *CryptoService) Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// PackedKeccak256 hashes the tightly packed concatenation of args, checking
// each value against the width its type tag declares.
func (cs *CryptoService) PackedKeccak256(args ...PackedArg) (common.Hash, error) {
	parts := make([][]byte, len(args))
	for i, arg := range args {
		if err := checkPackedWidth(arg); err != nil {
			return common.Hash{}, fmt.Errorf("packed argument %d: %w", i, err)
		}
		parts[i] = arg.Value
	}
	return common.BytesToHash(cs.Keccak256(parts...)), nil
}

func checkPackedWidth(arg PackedArg) error {
	if arg.Type == "bytes" {
		return nil
	}
	if !strings.HasPrefix(arg.Type, "bytes") {
		return fmt.Errorf("unsupported packed type %q", arg.Type)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(arg.Type, "bytes"))
	if err != nil || n < 1 || n > 32 {
		return fmt.Errorf("unsupported packed type %q", arg.Type)
	}
	if len(arg.Value) != n {
		return fmt.Errorf("%s value has %d bytes", arg.Type, len(arg.Value))
	}
	return nil
}

// SignHash signs a 32-byte digest. v is returned in the 27/28 form expected by
// ecrecover.
func (cs *CryptoService) SignHash(hash common.Hash, key *ecdsa.PrivateKey) (v byte, r, s common.Hash, err error) {
	if key == nil || key.D == nil {
		return 0, r, s, &models.CryptographicError{Op: "sign", Err: errors.New("nil private key")}
	}
	sig, err := crypto.Sign(hash[:], key)
	if err != nil {
		return 0, r, s, &models.CryptographicError{Op: "sign", Err: err}
	}
	copy(r[:], sig[:32])
	copy(s[:], sig[32:64])
	return sig[64] + 27, r, s, nil
}

// RecoverAddress returns the address whose key produced (v, r, s) over hash.
func (cs *CryptoService) RecoverAddress(hash common.Hash, v byte, r, s common.Hash) (common.Address, error) {
	if v != 27 && v != 28 {
		return common.Address{}, &models.CryptographicError{Op: "recover", Err: fmt.Errorf("invalid recovery id %d", v)}
	}
	if !crypto.ValidateSignatureValues(v-27, r.Big(), s.Big(), false) {
		return common.Address{}, &models.CryptographicError{Op: "recover", Err: errors.New("invalid signature values")}
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig[:32], r[:])
	copy(sig[32:64], s[:])
	sig[64] = v - 27

	pub, err := crypto.SigToPub(hash[:], sig)
	if err != nil {
		return common.Address{}, &models.CryptographicError{Op: "recover", Err: err}
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// AddressOf derives the address of a private key.
func (cs *CryptoService) AddressOf(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// ParsePrivateKey accepts a hex private key with or without 0x prefix.
func ParsePrivateKey(keyStr string) (*ecdsa.PrivateKey, error) {
	keyStr = strings.TrimPrefix(strings.TrimSpace(keyStr), "0x")

	privateKey, err := crypto.HexToECDSA(keyStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return privateKey, nil
}
