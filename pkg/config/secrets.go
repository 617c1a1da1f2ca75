package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/scrypt"
)

// Secrets file layout: [salt][nonce][AES-GCM ciphertext+tag].
const (
	secretsFileName = "secrets.json.enc"
	secretsDir      = ".advisor"
	saltSize        = 32
	nonceSize       = 12
	keySize         = 32
	scryptN         = 32768
	scryptR         = 8
	scryptP         = 1
)

var (
	secretsMu        sync.RWMutex
	decryptedSecrets map[string]string
)

// SetDecryptedSecrets caches decrypted secrets for the process lifetime.
func SetDecryptedSecrets(secrets map[string]string) {
	secretsMu.Lock()
	defer secretsMu.Unlock()
	decryptedSecrets = make(map[string]string, len(secrets))
	for k, v := range secrets {
		decryptedSecrets[k] = v
	}
}

// GetSecret returns a cached decrypted secret by name.
func GetSecret(name string) (string, error) {
	secretsMu.RLock()
	defer secretsMu.RUnlock()
	if decryptedSecrets == nil {
		return "", fmt.Errorf("secrets not loaded")
	}
	value, exists := decryptedSecrets[name]
	if !exists {
		return "", fmt.Errorf("secret %q not found", name)
	}
	return value, nil
}

// SecretsFileExists reports whether an encrypted secrets file is present.
func SecretsFileExists(projectDir string) bool {
	_, err := os.Stat(filepath.Join(projectDir, secretsDir, secretsFileName))
	return err == nil
}

// EncryptSecretsFile writes secrets encrypted with a password-derived key.
func EncryptSecretsFile(projectDir, password string, secrets map[string]string) error {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return fmt.Errorf("failed to derive encryption key: %w", err)
	}

	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	fileData := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	fileData = append(fileData, salt...)
	fileData = append(fileData, nonce...)
	fileData = append(fileData, ciphertext...)

	dir := filepath.Join(projectDir, secretsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", secretsDir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, secretsFileName), fileData, 0o600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}

// DecryptSecretsFile decrypts and returns secrets from the project secrets file.
func DecryptSecretsFile(projectDir, password string) (map[string]string, error) {
	path := filepath.Join(projectDir, secretsDir, secretsFileName)
	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	if len(fileData) < saltSize+nonceSize {
		return nil, fmt.Errorf("secrets file is corrupted (too short)")
	}

	salt := fileData[:saltSize]
	nonce := fileData[saltSize : saltSize+nonceSize]
	ciphertext := fileData[saltSize+nonceSize:]

	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secrets (wrong password?): %w", err)
	}

	var secrets map[string]string
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse decrypted secrets: %w", err)
	}
	return secrets, nil
}
