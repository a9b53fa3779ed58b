package blobstore

import (
	"context"
	"errors"
	"io"
	"testing"
)

func TestFSRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	key := BillKey("dept-1", "BILL-123456-7")
	if key != "dept-1/BILL-123456-7_merged.pdf" {
		t.Fatalf("BillKey = %q", key)
	}
	ref, err := store.Put(ctx, key, []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, err := store.Put(ctx, key, []byte("other")); !errors.Is(err, ErrExists) {
		t.Fatalf("second Put err = %v, want ErrExists", err)
	}

	rc, err := store.Open(ctx, ref)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "%PDF-1.4" {
		t.Fatalf("body = %q", body)
	}

	if err := store.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Open(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Open after delete err = %v", err)
	}
	if err := store.Delete(ctx, ref); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestFSRejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	store, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	for _, key := range []string{"", "/etc/passwd", "../x.pdf", "a/../../x.pdf", "a/./b.pdf", `a\b.pdf`, ".."} {
		if _, err := store.Put(ctx, key, []byte("x")); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Put(%q) err = %v, want invalid key", key, err)
		}
	}
}
