package keystore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chispart/internal/registry"
)

func tempStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "api_keys.json.b64")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	return s, path
}

func TestSetGetPersists(t *testing.T) {
	s, path := tempStore(t)

	if err := s.Set("openai", "sk-test-123"); err != nil {
		t.Fatal(err)
	}
	got, ok := s.Get("openai")
	if !ok || got != "sk-test-123" {
		t.Errorf("Get = %q, %v", got, ok)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	got, ok = reopened.Get("openai")
	if !ok || got != "sk-test-123" {
		t.Errorf("reopened Get = %q, %v", got, ok)
	}
}

func TestFileIsObfuscatedAndPrivate(t *testing.T) {
	s, path := tempStore(t)
	if err := s.Set("openai", "sk-plaintext-secret"); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "sk-plaintext-secret") {
		t.Error("secret stored in the clear")
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("store file is not json: %v", err)
	}
}

func TestRemove(t *testing.T) {
	s, _ := tempStore(t)
	if err := s.Set("groq", "gsk-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove("groq"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get("groq"); ok {
		t.Error("removed key still present")
	}
}

func TestResolveOrder(t *testing.T) {
	s, _ := tempStore(t)
	desc := registry.Descriptor{
		ID:      "blackbox",
		EnvVars: []string{"BLACKBOX_API_KEY", "CHISPART_API_KEY"},
	}

	t.Setenv("BLACKBOX_API_KEY", "")
	t.Setenv("CHISPART_API_KEY", "")

	// Nothing anywhere: config error naming the primary env var.
	_, err := Resolve(s, desc)
	if err == nil {
		t.Fatal("expected an error with no credential")
	}
	if !strings.Contains(err.Error(), "BLACKBOX_API_KEY") {
		t.Errorf("error should name the env var: %v", err)
	}
	if !strings.Contains(err.Error(), "chispart config") {
		t.Errorf("error should point at the config command: %v", err)
	}

	// Fallback env var is honored in order.
	t.Setenv("CHISPART_API_KEY", "from-alt-env")
	got, err := Resolve(s, desc)
	if err != nil || got != "from-alt-env" {
		t.Errorf("Resolve = %q, %v", got, err)
	}
	t.Setenv("BLACKBOX_API_KEY", "from-env")
	got, err = Resolve(s, desc)
	if err != nil || got != "from-env" {
		t.Errorf("Resolve = %q, %v", got, err)
	}

	// Store beats environment.
	if err := s.Set("blackbox", "from-store"); err != nil {
		t.Fatal(err)
	}
	got, err = Resolve(s, desc)
	if err != nil || got != "from-store" {
		t.Errorf("Resolve = %q, %v", got, err)
	}
}
