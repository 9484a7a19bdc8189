package credstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileProvider_Conformance(t *testing.T) {
	t.Parallel()

	p, err := NewFileProvider(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileProvider: %v", err)
	}
	runConformance(t, p, "sess-file")
}

func TestFileProvider_LayoutAndCleanup(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	p, err := NewFileProvider(root)
	if err != nil {
		t.Fatalf("NewFileProvider: %v", err)
	}

	ctx := context.Background()
	ns, err := p.Open(ctx, "1700000000000")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := ns.Put(ctx, Entry{Key: BundleKey, Value: []byte("{}")}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	path := filepath.Join(root, "1700000000000", BundleKey)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected bundle file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != fileFilePerm {
		t.Fatalf("bundle perm=%o want=%o", perm, fileFilePerm)
	}

	if err := ns.Destroy(ctx); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "1700000000000")); !os.IsNotExist(err) {
		t.Fatalf("expected namespace dir removed, stat err=%v", err)
	}
}

func TestNewFileProvider_EmptyRoot(t *testing.T) {
	t.Parallel()
	if _, err := NewFileProvider("  "); err == nil {
		t.Fatalf("expected error for empty root")
	}
}
