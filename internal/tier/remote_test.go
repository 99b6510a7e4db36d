package tier

import (
	"testing"
)

// TestNewRemote_Validation tests constructor requirements and defaults
func TestNewRemote_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewRemote(RemoteConfig{}); err == nil {
		t.Error("expected error for missing address")
	}

	r, err := NewRemote(RemoteConfig{Addr: "localhost:6379"})
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	defer r.Close()

	if r.namespace != "tiercache" {
		t.Errorf("expected default namespace, got %q", r.namespace)
	}
	if r.Name() != "remote" {
		t.Errorf("unexpected tier name %q", r.Name())
	}
}

// TestRemote_KeyNamespacing tests the stored-key prefix
func TestRemote_KeyNamespacing(t *testing.T) {
	t.Parallel()

	r, err := NewRemote(RemoteConfig{Addr: "localhost:6379", Namespace: "sessions"})
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	defer r.Close()

	if got := r.key("user:42"); got != "sessions:user:42" {
		t.Errorf("expected namespaced key, got %q", got)
	}
}
