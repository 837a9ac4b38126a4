// Package files stores uploaded attachments and hands back opaque
// retrievable paths.
package files

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Attachment is the stored-file reference returned to callers.
type Attachment struct {
	FileName string
	FilePath string
}

// Store persists a raw upload under its original name.
type Store interface {
	Save(fileName string, r io.Reader) (Attachment, error)
}

// DiskStore writes uploads to a local directory with uuid-prefixed object
// names so concurrent uploads of the same file name cannot collide.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (s *DiskStore) Save(fileName string, r io.Reader) (Attachment, error) {
	name := uuid.NewString() + "_" + filepath.Base(fileName)
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return Attachment{}, fmt.Errorf("write upload file: %w", err)
	}
	return Attachment{FileName: fileName, FilePath: path}, nil
}
