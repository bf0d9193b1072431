package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore writes artifacts below a local directory.
type FileStore struct {
	Dir string
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Path returns the file path an artifact name maps to.
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.Dir, filepath.FromSlash(name))
}

func (s *FileStore) PutArtifact(ctx context.Context, name string, content any) (Receipt, error) {
	data, err := Marshal(content)
	if err != nil {
		return Receipt{}, err
	}
	return s.write(ctx, name, data)
}

func (s *FileStore) PutRaw(ctx context.Context, name, text string) (Receipt, error) {
	return s.write(ctx, name, []byte(text))
}

func (s *FileStore) write(ctx context.Context, name string, data []byte) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if err := ValidName(name); err != nil {
		return Receipt{}, err
	}
	path := s.Path(name)
	if err := writeFileAtomic(path, data); err != nil {
		return Receipt{}, err
	}
	return Receipt{Path: path}, nil
}

// writeFileAtomic replaces path with data through a temp file in the same
// directory, so readers never see a half-written document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
