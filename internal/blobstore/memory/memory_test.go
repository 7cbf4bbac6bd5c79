package memory

import (
	"context"
	"errors"
	"sort"
	"testing"

	"receipts/internal/blobstore"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.Put(ctx, "receipts/2024/02/a.jpg", []byte("a"), "image/jpeg"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, "receipts/2024/02/b.jpg", []byte("b"), "image/jpeg"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, "receipts/2024/03/c.jpg", []byte("c"), "image/jpeg"); err != nil {
		t.Fatalf("put: %v", err)
	}

	keys, err := s.List(ctx, "receipts/2024/02/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "receipts/2024/02/a.jpg" || keys[1] != "receipts/2024/02/b.jpg" {
		t.Fatalf("unexpected keys %v", keys)
	}

	data, err := s.Get(ctx, "receipts/2024/03/c.jpg")
	if err != nil || string(data) != "c" {
		t.Fatalf("get: %q %v", data, err)
	}
	if ct, ok := s.ContentType("receipts/2024/03/c.jpg"); !ok || ct != "image/jpeg" {
		t.Fatalf("content type %q %v", ct, ok)
	}

	if err := s.Delete(ctx, "receipts/2024/03/c.jpg"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "receipts/2024/03/c.jpg"); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
	if _, err := s.Get(ctx, "receipts/2024/03/c.jpg"); !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 objects, got %d", s.Len())
	}
}

func TestStoreCopiesData(t *testing.T) {
	ctx := context.Background()
	s := New()
	buf := []byte("abc")
	_ = s.Put(ctx, "k", buf, "image/jpeg")
	buf[0] = 'z'
	got, _ := s.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("store should keep its own copy, got %q", got)
	}
}
