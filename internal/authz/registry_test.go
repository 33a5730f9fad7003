package authz

import (
	"context"
	"reflect"
	"testing"
)

func TestRegistryMatchOrder(t *testing.T) {
	store := newMemRoleStore()
	_, _ = store.CreateRole(context.Background(), "a", false)
	_, _ = store.CreateRole(context.Background(), "b", false)
	_ = store.SetRolePermissions(context.Background(), "a", []string{PermMessageSend})
	_ = store.SetRolePermissions(context.Background(), "b", []string{PermMessageSend, PermPitchCreate})

	reg := NewRegistry(store)
	role, ok, err := reg.Match(context.Background(), []string{"a", "b"}, PermMessageSend)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !ok || role != "a" {
		t.Fatalf("expected first matching role a, got %q ok=%v", role, ok)
	}

	if _, ok, _ := reg.Match(context.Background(), []string{"ghost"}, PermMessageSend); ok {
		t.Fatal("unknown role must not match")
	}
}

func TestRegistryPermissionsUnionSorted(t *testing.T) {
	store := newMemRoleStore()
	_, _ = store.CreateRole(context.Background(), "a", false)
	_, _ = store.CreateRole(context.Background(), "b", false)
	_ = store.SetRolePermissions(context.Background(), "a", []string{PermMessageSend, PermPitchCreate})
	_ = store.SetRolePermissions(context.Background(), "b", []string{PermMessageSend, PermAnalyticsViewOwn})

	reg := NewRegistry(store)
	perms, err := reg.PermissionsFor(context.Background(), []string{"a", "b", "ghost"})
	if err != nil {
		t.Fatalf("PermissionsFor: %v", err)
	}
	want := []string{PermAnalyticsViewOwn, PermMessageSend, PermPitchCreate}
	if !reflect.DeepEqual(perms, want) {
		t.Fatalf("got %v, want %v", perms, want)
	}
}

func TestRegistryInvalidateRereads(t *testing.T) {
	store := newMemRoleStore()
	_, _ = store.CreateRole(context.Background(), "a", false)
	_ = store.SetRolePermissions(context.Background(), "a", []string{PermMessageSend})

	reg := NewRegistry(store)
	if _, ok, _ := reg.Match(context.Background(), []string{"a"}, PermPitchCreate); ok {
		t.Fatal("permission not yet granted")
	}

	_ = store.SetRolePermissions(context.Background(), "a", []string{PermMessageSend, PermPitchCreate})

	// The snapshot is stale until invalidated.
	if _, ok, _ := reg.Match(context.Background(), []string{"a"}, PermPitchCreate); ok {
		t.Fatal("snapshot must not see the change before Invalidate")
	}
	reg.Invalidate()
	if _, ok, _ := reg.Match(context.Background(), []string{"a"}, PermPitchCreate); !ok {
		t.Fatal("invalidated registry must re-read storage")
	}
}
