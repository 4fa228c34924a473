package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cbfilter/internal/logger"
)

const secretPrefix = "enc:"

// SecretStoreService encrypts API keys at rest with AES-GCM. The cipher
// key lives next to the configuration file with 0600 permissions and is
// created on first use. Values without the "enc:" prefix pass through
// unchanged so hand-edited plaintext keys keep working.
type SecretStoreService struct {
	initialized bool
	keyPath     string
	key         []byte
}

// NewSecretStoreService creates a secret store whose cipher key is kept
// in configDir.
func NewSecretStoreService(configDir string) *SecretStoreService {
	return &SecretStoreService{keyPath: filepath.Join(configDir, "secret.key")}
}

// Name returns the service name "secret_store" for registration.
func (s *SecretStoreService) Name() string {
	return "secret_store"
}

// Initialize sets up the SecretStoreService.
func (s *SecretStoreService) Initialize() error {
	s.initialized = true
	logger.ServiceOperation("secret_store", "initialize", "key_path", s.keyPath)
	return nil
}

// Protect encrypts plaintext and returns it with the "enc:" prefix.
// Empty input stays empty.
func (s *SecretStoreService) Protect(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	gcm, err := s.cipher()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return secretPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Unprotect decrypts a value carrying the "enc:" prefix. Unprefixed
// values are returned as-is.
func (s *SecretStoreService) Unprotect(stored string) (string, error) {
	if !strings.HasPrefix(stored, secretPrefix) {
		return stored, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, secretPrefix))
	if err != nil {
		return "", fmt.Errorf("malformed protected value: %w", err)
	}
	gcm, err := s.cipher()
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", fmt.Errorf("malformed protected value: too short")
	}
	plain, err := gcm.Open(nil, raw[:gcm.NonceSize()], raw[gcm.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt value: %w", err)
	}
	return string(plain), nil
}

func (s *SecretStoreService) cipher() (cipher.AEAD, error) {
	if s.key == nil {
		key, err := s.loadOrCreateKey()
		if err != nil {
			return nil, err
		}
		s.key = key
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func (s *SecretStoreService) loadOrCreateKey() ([]byte, error) {
	if data, err := os.ReadFile(s.keyPath); err == nil && len(data) == 32 {
		return data, nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate cipher key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.keyPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(s.keyPath, key, 0o600); err != nil {
		return nil, fmt.Errorf("failed to store cipher key: %w", err)
	}
	return key, nil
}
