package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	bip39 "github.com/vulpemventures/go-bip39"
	"golang.org/x/crypto/scrypt"
)

const (
	mnemonicFile      = "mnemonic"
	passwordMinLength = 8
	saltSize          = 32
)

// scrypt cost, 2^20 as recommended for key stretching.
var scryptN = 1 << 20

var (
	ErrAlreadyInitialized = errors.New("node already initialized")
	ErrNotInitialized     = errors.New("node not initialized")
	ErrWrongPassword      = errors.New("wrong password")
)

// Store keeps the node mnemonic encrypted with the operator password.
type Store struct {
	path string
}

func NewStore(datadir string) *Store {
	return &Store{filepath.Join(datadir, mnemonicFile)}
}

func (s *Store) IsInitialized() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Init generates a fresh mnemonic and stores it encrypted with password.
func (s *Store) Init(password string) (string, error) {
	if s.IsInitialized() {
		return "", ErrAlreadyInitialized
	}
	if err := CheckPasswordStrength(password); err != nil {
		return "", err
	}

	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", err
	}

	encrypted, err := encrypt([]byte(mnemonic), []byte(password))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return "", err
	}
	data := base64.StdEncoding.EncodeToString(encrypted)
	if err := os.WriteFile(s.path, []byte(data), 0o600); err != nil {
		return "", fmt.Errorf("failed to write mnemonic: %w", err)
	}
	return mnemonic, nil
}

// Unlock returns the stored mnemonic.
func (s *Store) Unlock(password string) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotInitialized
		}
		return "", err
	}
	encrypted, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return "", fmt.Errorf("malformed mnemonic file: %w", err)
	}

	mnemonic, err := decrypt(encrypted, []byte(password))
	if err != nil {
		return "", err
	}
	if !bip39.IsMnemonicValid(string(mnemonic)) {
		return "", fmt.Errorf("stored mnemonic is invalid")
	}
	return string(mnemonic), nil
}

// Seed unlocks the mnemonic and returns its bip39 seed.
func (s *Store) Seed(password string) ([]byte, error) {
	mnemonic, err := s.Unlock(password)
	if err != nil {
		return nil, err
	}
	return bip39.NewSeed(mnemonic, ""), nil
}

func CheckPasswordStrength(password string) error {
	if len(password) < passwordMinLength {
		return fmt.Errorf("invalid password: must have at least %d chars", passwordMinLength)
	}
	return nil
}

func encrypt(plaintext, password []byte) ([]byte, error) {
	// Make sure the key material is released right away.
	defer debug.FreeOSMemory()

	key, salt, err := deriveKey(password, nil)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return append(ciphertext, salt...), nil
}

func decrypt(encrypted, password []byte) ([]byte, error) {
	defer debug.FreeOSMemory()

	if len(encrypted) <= saltSize {
		return nil, fmt.Errorf("malformed encrypted mnemonic")
	}
	salt := encrypted[len(encrypted)-saltSize:]
	data := encrypted[:len(encrypted)-saltSize]

	key, _, err := deriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, fmt.Errorf("malformed encrypted mnemonic")
	}
	nonce, text := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, text, nil)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func deriveKey(password, salt []byte) ([]byte, []byte, error) {
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, err
		}
	}
	key, err := scrypt.Key(password, salt, scryptN, 8, 1, 32)
	if err != nil {
		return nil, nil, err
	}
	return key, salt, nil
}
