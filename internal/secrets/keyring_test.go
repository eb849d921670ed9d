package secrets

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestKeyringRoundTrip(t *testing.T) {
	keyring.MockInit()
	k := New("")

	if err := k.Set("client-secret", "s3cr3t"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := k.Get("client-secret")
	if err != nil || got != "s3cr3t" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	if err := k.Delete("client-secret"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := k.Get("client-secret"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete = %v, want ErrNotFound", err)
	}
	if err := k.Delete("client-secret"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestSetRejectsEmptyName(t *testing.T) {
	keyring.MockInit()
	if err := New("").Set("", "x"); err == nil {
		t.Fatal("Set with empty name succeeded")
	}
}

func TestResolveHeaders(t *testing.T) {
	keyring.MockInit()
	k := New("servicecall-test")
	if err := k.Set("basic", "Basic Y2xpZW50OnNlY3JldA=="); err != nil {
		t.Fatal(err)
	}

	headers := map[string]string{
		"Authorization": "keyring:basic",
		"Accept":        "application/json",
	}
	got, err := k.ResolveHeaders(headers)
	if err != nil {
		t.Fatalf("ResolveHeaders: %v", err)
	}
	if got["Authorization"] != "Basic Y2xpZW50OnNlY3JldA==" {
		t.Errorf("Authorization = %q", got["Authorization"])
	}
	if got["Accept"] != "application/json" {
		t.Errorf("Accept = %q", got["Accept"])
	}
	if headers["Authorization"] != "keyring:basic" {
		t.Error("input headers were modified")
	}

	if _, err := k.ResolveHeaders(map[string]string{"X-Key": "keyring:missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing secret error = %v, want ErrNotFound", err)
	}

	if got, err := k.ResolveHeaders(nil); err != nil || got != nil {
		t.Errorf("ResolveHeaders(nil) = %v, %v", got, err)
	}
}
