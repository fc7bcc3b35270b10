// Package secret implements the encrypted credential store. The platform
// keychain is out of scope; this store provides the same contract with an
// AES-GCM encrypted file keyed to the machine.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"chartdeck.aero/cli/internal/core/domain"
)

// FileStore is a file-based secret store with encryption at rest.
type FileStore struct {
	storeFile  string
	encryptKey []byte
	mu         sync.RWMutex
}

// NewFileStore creates a secret store backed by an encrypted file under dir.
// The directory is created if missing.
func NewFileStore(dir string) (*FileStore, error) {
	if len(dir) >= 2 && dir[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, &domain.SecretError{Op: "init", Err: fmt.Errorf("resolve home directory: %w", err)}
		}
		dir = filepath.Join(home, dir[2:])
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, &domain.SecretError{Op: "init", Err: fmt.Errorf("create secret directory: %w", err)}
	}

	return &FileStore{
		storeFile:  filepath.Join(dir, ".credentials"),
		encryptKey: deriveMachineKey(),
	}, nil
}

// Save stores value under key, overwriting any prior value.
func (s *FileStore) Save(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.readAll()
	if err != nil {
		// A corrupt or unreadable store is replaced rather than bricking
		// every future save.
		secrets = map[string]string{}
	}
	secrets[key] = value

	if err := s.writeAll(secrets); err != nil {
		return &domain.SecretError{Op: "save", Err: err}
	}
	return nil
}

// Load returns the value under key, or domain.ErrSecretNotFound.
func (s *FileStore) Load(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	secrets, err := s.readAll()
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("load %q: %w", key, domain.ErrSecretNotFound)
		}
		return "", &domain.SecretError{Op: "load", Err: err}
	}

	value, ok := secrets[key]
	if !ok {
		return "", fmt.Errorf("load %q: %w", key, domain.ErrSecretNotFound)
	}
	return value, nil
}

// Delete removes key. Deleting an absent key is a success.
func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.readAll()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &domain.SecretError{Op: "delete", Err: err}
	}

	if _, ok := secrets[key]; !ok {
		return nil
	}
	delete(secrets, key)

	if err := s.writeAll(secrets); err != nil {
		return &domain.SecretError{Op: "delete", Err: err}
	}
	return nil
}

func (s *FileStore) readAll() (map[string]string, error) {
	data, err := os.ReadFile(s.storeFile)
	if err != nil {
		return nil, err
	}

	decrypted, err := s.decrypt(data)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret store: %w", err)
	}

	var secrets map[string]string
	if err := json.Unmarshal(decrypted, &secrets); err != nil {
		return nil, fmt.Errorf("unmarshal secret store: %w", err)
	}
	if secrets == nil {
		secrets = map[string]string{}
	}
	return secrets, nil
}

func (s *FileStore) writeAll(secrets map[string]string) error {
	data, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("marshal secret store: %w", err)
	}

	encrypted, err := s.encrypt(data)
	if err != nil {
		return fmt.Errorf("encrypt secret store: %w", err)
	}

	if err := os.WriteFile(s.storeFile, encrypted, 0600); err != nil {
		return fmt.Errorf("write secret store: %w", err)
	}
	return nil
}

func (s *FileStore) encrypt(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.encryptKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nonce, nonce, data, nil)
	return []byte(base64.StdEncoding.EncodeToString(ciphertext)), nil
}

func (s *FileStore) decrypt(data []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(s.encryptKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// deriveMachineKey generates a machine-specific encryption key from hostname
// and user. Matches the threat model of the platform keychain this replaces:
// secrets are unreadable off-machine, not unreadable to the local user.
func deriveMachineKey() []byte {
	hostname, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME") // Windows
	}

	keyMaterial := fmt.Sprintf("chartdeck-cli:%s:%s", hostname, user)
	hash := sha256.Sum256([]byte(keyMaterial))
	return hash[:]
}
