package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/neurolab-io/corepipe/internal/corepipeerrors"
)

// FilesystemStore implements Store on the local filesystem, rooted at
// baseDir. Logical paths map directly onto baseDir-relative paths. Used for
// local development and in tests in place of a real S3 bucket.
type FilesystemStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFilesystemStore creates (if absent) baseDir and returns a store rooted
// there.
func NewFilesystemStore(baseDir string) (*FilesystemStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("objectstore: base directory cannot be empty")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: create base dir: %w", err)
	}
	return &FilesystemStore{baseDir: baseDir}, nil
}

func (fs *FilesystemStore) resolve(logicalPath string) (string, error) {
	clean := filepath.Clean(logicalPath)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("objectstore: invalid logical path %q", logicalPath)
	}
	return filepath.Join(fs.baseDir, clean), nil
}

func (fs *FilesystemStore) PutFile(ctx context.Context, logicalPath, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "put_file", err)
	}
	return fs.PutBytes(ctx, logicalPath, data, "")
}

func (fs *FilesystemStore) PutBytes(ctx context.Context, logicalPath string, data []byte, contentType string) error {
	target, err := fs.resolve(logicalPath)
	if err != nil {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "put_bytes", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "put_bytes", err)
	}
	// Write to a temp file then rename, so concurrent readers never see a
	// partial write and re-uploads overwrite atomically.
	tmp := target + ".tmp-" + fmt.Sprint(time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "put_bytes", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "put_bytes", err)
	}
	return nil
}

func (fs *FilesystemStore) GetFile(ctx context.Context, logicalPath, localPath string) error {
	data, err := fs.GetBytes(ctx, logicalPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "get_file", err)
	}
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "get_file", err)
	}
	return nil
}

func (fs *FilesystemStore) GetBytes(ctx context.Context, logicalPath string) ([]byte, error) {
	target, err := fs.resolve(logicalPath)
	if err != nil {
		return nil, corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "get_bytes", err)
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	data, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, corepipeerrors.NewStorageError(corepipeerrors.KindStorageNotFound, "get_bytes", err)
		}
		return nil, corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "get_bytes", err)
	}
	return data, nil
}

func (fs *FilesystemStore) GetReader(ctx context.Context, logicalPath string) (io.ReadCloser, error) {
	target, err := fs.resolve(logicalPath)
	if err != nil {
		return nil, corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "get_reader", err)
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	f, err := os.Open(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, corepipeerrors.NewStorageError(corepipeerrors.KindStorageNotFound, "get_reader", err)
		}
		return nil, corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "get_reader", err)
	}
	return f, nil
}

func (fs *FilesystemStore) Delete(ctx context.Context, logicalPath string) error {
	target, err := fs.resolve(logicalPath)
	if err != nil {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "delete", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "delete", err)
	}
	return nil
}

func (fs *FilesystemStore) List(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, error) {
	root, err := fs.resolve(prefix)
	if err != nil {
		return nil, corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "list", err)
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var out []ObjectInfo
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !recursive {
			rel, _ := filepath.Rel(root, path)
			if strings.Contains(rel, string(filepath.Separator)) {
				return nil
			}
		}
		info, ierr := d.Info()
		if ierr != nil {
			return ierr
		}
		rel, _ := filepath.Rel(fs.baseDir, path)
		out = append(out, ObjectInfo{
			Path:      filepath.ToSlash(rel),
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		})
		return nil
	})
	if walkErr != nil {
		return nil, corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "list", walkErr)
	}
	return out, nil
}

func (fs *FilesystemStore) Exists(ctx context.Context, logicalPath string) (bool, error) {
	target, err := fs.resolve(logicalPath)
	if err != nil {
		return false, corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "exists", err)
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if _, err := os.Stat(target); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "exists", err)
	}
	return true, nil
}

// Presign on the filesystem store returns a file:// URL; there is no real
// expiry since there is no server to enforce it, but the method exists so
// call sites are backend-agnostic.
func (fs *FilesystemStore) Presign(ctx context.Context, logicalPath string, ttl time.Duration) (string, error) {
	target, err := fs.resolve(logicalPath)
	if err != nil {
		return "", corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "presign", err)
	}
	return "file://" + target, nil
}

// BaseDir returns the store's root directory.
func (fs *FilesystemStore) BaseDir() string {
	return fs.baseDir
}
