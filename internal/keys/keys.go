// Package keys resolves the executor account used as the sender of gas
// estimates. Keys can be given raw or as a password-encrypted JSON file
// (PBKDF2-HMAC-SHA256 + AES-256-GCM).
package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	fileVersion      = 1
)

// ErrNoSource is returned when no address or key is configured.
var ErrNoSource = errors.New("keys: no sender configured")

type encryptedFile struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Source lists the ways a sender can be configured. The first non-empty
// field wins: Address, then Key, then File.
type Source struct {
	Address  string
	Key      string
	File     string
	Password string
}

// Empty reports whether nothing is configured.
func (s Source) Empty() bool {
	return s.Address == "" && s.Key == "" && s.File == ""
}

// Sender resolves the account address of src.
func Sender(src Source) (common.Address, error) {
	if src.Address != "" {
		if !common.IsHexAddress(src.Address) {
			return common.Address{}, fmt.Errorf("keys: %q is not a hex address", src.Address)
		}
		return common.HexToAddress(src.Address), nil
	}
	key, err := Load(src)
	if err != nil {
		return common.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(key.PublicKey), nil
}

// Load returns the private key of src. Address-only sources have none.
func Load(src Source) (*ecdsa.PrivateKey, error) {
	switch {
	case src.Key != "":
		key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(src.Key, "0x"))
		if err != nil {
			return nil, fmt.Errorf("keys: parse raw key: %w", err)
		}
		return key, nil
	case src.File != "":
		data, err := os.ReadFile(src.File)
		if err != nil {
			return nil, fmt.Errorf("keys: read %s: %w", src.File, err)
		}
		return Decrypt(data, src.Password)
	default:
		return nil, ErrNoSource
	}
}

// Encrypt seals key under password in the on-disk JSON format.
func Encrypt(key *ecdsa.PrivateKey, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("keys: password must not be empty")
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("keys: salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("keys: nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, ethcrypto.FromECDSA(key), nil)
	return json.MarshalIndent(encryptedFile{
		Version:    fileVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	}, "", "  ")
}

// Decrypt opens a file produced by Encrypt.
func Decrypt(data []byte, password string) (*ecdsa.PrivateKey, error) {
	if password == "" {
		return nil, errors.New("keys: password must not be empty")
	}
	var f encryptedFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("keys: parse key file: %w", err)
	}
	if f.Version != fileVersion {
		return nil, fmt.Errorf("keys: unsupported key file version %d", f.Version)
	}
	salt, err := base64.StdEncoding.DecodeString(f.Salt)
	if err != nil {
		return nil, fmt.Errorf("keys: decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(f.Nonce)
	if err != nil {
		return nil, fmt.Errorf("keys: decode nonce: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(f.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("keys: decode ciphertext: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("keys: nonce length %d", len(nonce))
	}
	raw, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("keys: decrypt (wrong password?): %w", err)
	}
	key, err := ethcrypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("keys: decrypted key: %w", err)
	}
	return key, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("keys: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keys: gcm: %w", err)
	}
	return gcm, nil
}
