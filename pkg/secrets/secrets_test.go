package secrets

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryPutGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Put(ctx, "dest-1_api_key", "v1", false); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if v, err := m.Get(ctx, "dest-1_api_key"); err != nil || v != "v1" {
		t.Fatalf("Get = %q, %v", v, err)
	}
}

func TestMemoryOverwriteSemantics(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Put(ctx, "name", "v1", false); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	if err := m.Put(ctx, "name", "v2", false); !errors.Is(err, ErrSecretExists) {
		t.Fatalf("err = %v, want ErrSecretExists", err)
	}
	if v, _ := m.Get(ctx, "name"); v != "v1" {
		t.Fatalf("value = %q, want untouched v1", v)
	}

	if err := m.Put(ctx, "name", "v2", true); err != nil {
		t.Fatalf("overwrite Put error: %v", err)
	}
	if v, _ := m.Get(ctx, "name"); v != "v2" {
		t.Fatalf("value = %q, want v2", v)
	}
}

func TestMemoryGetUnknown(t *testing.T) {
	m := NewMemory()
	if _, err := m.Get(context.Background(), "missing"); !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("err = %v, want ErrSecretNotFound", err)
	}
}
