package install

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newTestInstallStore(t *testing.T) *RedisStore {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(srv.Close)
	store, err := NewRedisStore("redis://" + srv.Addr())
	if err != nil {
		t.Fatalf("install store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateDuplicateConflicts(t *testing.T) {
	store := newTestInstallStore(t)
	ctx := context.Background()
	inst := &Installation{PackageID: "crm-sync", TenantID: "acme", Status: StatusActive}
	if err := store.Create(ctx, inst); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, inst); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestOrgAndTenantAreSeparateSlots(t *testing.T) {
	store := newTestInstallStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, &Installation{PackageID: "crm-sync", Status: StatusActive}); err != nil {
		t.Fatalf("org install: %v", err)
	}
	if err := store.Create(ctx, &Installation{PackageID: "crm-sync", TenantID: "acme", Status: StatusActive}); err != nil {
		t.Fatalf("tenant install: %v", err)
	}
	org, err := store.Get(ctx, "crm-sync", "")
	if err != nil || org.TenantID != "" {
		t.Fatalf("org get: %#v, %v", org, err)
	}
	tenant, err := store.Get(ctx, "crm-sync", "acme")
	if err != nil || tenant.TenantID != "acme" {
		t.Fatalf("tenant get: %#v, %v", tenant, err)
	}
}

func TestGetMissing(t *testing.T) {
	store := newTestInstallStore(t)
	if _, err := store.Get(context.Background(), "nope", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteFreesSlot(t *testing.T) {
	store := newTestInstallStore(t)
	ctx := context.Background()
	inst := &Installation{PackageID: "crm-sync", TenantID: "acme", Status: StatusActive}
	if err := store.Create(ctx, inst); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Delete(ctx, "crm-sync", "acme"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Create(ctx, inst); err != nil {
		t.Fatalf("reinstall after delete must succeed: %v", err)
	}
}

func TestDeleteByPackage(t *testing.T) {
	store := newTestInstallStore(t)
	ctx := context.Background()
	for _, tenant := range []string{"", "acme", "globex"} {
		if err := store.Create(ctx, &Installation{PackageID: "crm-sync", TenantID: tenant, Status: StatusActive}); err != nil {
			t.Fatalf("create %q: %v", tenant, err)
		}
	}
	if err := store.Create(ctx, &Installation{PackageID: "other", Status: StatusActive}); err != nil {
		t.Fatalf("create other: %v", err)
	}

	removed, err := store.DeleteByPackage(ctx, "crm-sync")
	if err != nil {
		t.Fatalf("delete by package: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	remaining, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 1 || remaining[0].PackageID != "other" {
		t.Fatalf("unexpected survivors: %#v", remaining)
	}
}
