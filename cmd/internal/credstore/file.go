package credstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	fileDirPerm  = 0o700
	fileFilePerm = 0o600
)

// FileProvider stores every namespace as a directory under Root,
// with one file per credential key.
type FileProvider struct {
	Root string
}

// NewFileProvider creates Root if needed.
func NewFileProvider(root string) (*FileProvider, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("credstore: empty file root: %w", ErrConfig)
	}
	if err := os.MkdirAll(root, fileDirPerm); err != nil {
		return nil, err
	}
	return &FileProvider{Root: root}, nil
}

// Open creates or reuses <Root>/<sessionID>.
func (p *FileProvider) Open(ctx context.Context, sessionID string) (Namespace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validNamespaceID(sessionID) {
		return nil, fmt.Errorf("credstore.Open: %w", ErrInvalidKey)
	}
	dir := filepath.Join(p.Root, sessionID)
	if err := os.MkdirAll(dir, fileDirPerm); err != nil {
		return nil, err
	}
	return &fileNamespace{id: sessionID, dir: dir}, nil
}

// Close is a no-op; directories are owned by their namespaces.
func (p *FileProvider) Close() error { return nil }

type fileNamespace struct {
	id  string
	dir string

	mu        sync.Mutex
	destroyed bool
}

func (n *fileNamespace) ID() string { return n.id }

func (n *fileNamespace) Put(ctx context.Context, entries ...Entry) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.destroyed {
		return ErrDestroyed
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !validKey(e.Key) {
			return fmt.Errorf("credstore.Put %q: %w", e.Key, ErrInvalidKey)
		}
		path := filepath.Join(n.dir, e.Key)
		if e.Value == nil {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			continue
		}
		if err := writeFileSync(path, e.Value); err != nil {
			return fmt.Errorf("credstore.Put %q: %w", e.Key, err)
		}
	}
	return nil
}

func (n *fileNamespace) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validKey(key) {
		return nil, ErrInvalidKey
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.destroyed {
		return nil, ErrNotFound
	}
	b, err := os.ReadFile(filepath.Join(n.dir, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

func (n *fileNamespace) ReadBundle(ctx context.Context) ([]byte, error) {
	b, err := n.Get(ctx, BundleKey)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotReady
	}
	return b, err
}

func (n *fileNamespace) Destroy(_ context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.destroyed {
		return nil
	}
	n.destroyed = true
	return os.RemoveAll(n.dir)
}

// writeFileSync writes via a temp file, fsyncs, then renames over path.
func writeFileSync(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, fileFilePerm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
