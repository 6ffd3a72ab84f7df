// Package keystore persists per-provider credentials. Values are stored
// base64-obfuscated in a 0600 JSON file; obfuscation is not encryption and
// the file permissions are the real guard.
package keystore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"chispart/internal/core"
	"chispart/internal/registry"
)

// Store is the credential contract the dispatcher depends on.
type Store interface {
	Get(providerID string) (string, bool)
	Set(providerID, secret string) error
	Remove(providerID string) error
	List() []string
}

// FileStore is the default Store backed by a local JSON file.
type FileStore struct {
	mu   sync.Mutex
	path string
	keys map[string]string
}

// Open loads (or lazily creates) the store at path.
func Open(path string) (*FileStore, error) {
	s := &FileStore{path: path, keys: make(map[string]string)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key store: %w", err)
	}

	var obfuscated map[string]string
	if err := json.Unmarshal(data, &obfuscated); err != nil {
		return nil, fmt.Errorf("parse key store: %w", err)
	}
	for id, enc := range obfuscated {
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			// Skip unreadable entries rather than refuse to start.
			continue
		}
		s.keys[id] = string(raw)
	}
	return s, nil
}

// Get returns the stored credential for a provider.
func (s *FileStore) Get(providerID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.keys[providerID]
	return secret, ok
}

// Set stores a credential and persists the file with mode 0600.
func (s *FileStore) Set(providerID, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[providerID] = secret
	return s.save()
}

// Remove deletes a credential.
func (s *FileStore) Remove(providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, providerID)
	return s.save()
}

// List returns the provider ids with a stored credential, sorted.
func (s *FileStore) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.keys))
	for id := range s.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *FileStore) save() error {
	obfuscated := make(map[string]string, len(s.keys))
	for id, secret := range s.keys {
		obfuscated[id] = base64.StdEncoding.EncodeToString([]byte(secret))
	}
	data, err := json.MarshalIndent(obfuscated, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal key store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create key store directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write key store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace key store: %w", err)
	}
	return nil
}

// Resolve returns the usable credential for a provider: store first, then
// the descriptor's environment variables in order. Env-derived keys are not
// written back to the store.
func Resolve(s Store, desc registry.Descriptor) (string, error) {
	if secret, ok := s.Get(desc.ID); ok && secret != "" {
		return secret, nil
	}
	for _, env := range desc.EnvVars {
		if v := os.Getenv(env); v != "" {
			return v, nil
		}
	}
	return "", core.NewConfigError(
		fmt.Sprintf("no credential configured for provider %q (set one with 'chispart config' or export %s)",
			desc.ID, firstEnv(desc.EnvVars)), nil)
}

func firstEnv(envs []string) string {
	if len(envs) == 0 {
		return "an API key variable"
	}
	return envs[0]
}
