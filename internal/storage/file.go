package storage

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/naka-gawa/geoeditors/internal/domain"
	"github.com/naka-gawa/geoeditors/internal/tsv"
)

// FileStore keeps the dataset in a single tab-separated file.
type FileStore struct {
	path   string
	logger *logrus.Logger
}

// NewFileStore creates a file store at path. The file is created on the first Replace.
func NewFileStore(path string, logger *logrus.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

// Path returns the dataset file path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (*domain.Dataset, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return &domain.Dataset{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	records, err := tsv.ReadTable(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", s.path, err)
	}
	return domain.NewDataset(records)
}

// Replace writes the dataset to a temporary file in the same directory and
// renames it over the target, so the target is never partially written.
func (s *FileStore) Replace(ctx context.Context, ds *domain.Dataset) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".geoeditors-*.tsv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	if err := tsv.WriteTable(w, ds.Records); err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync dataset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close dataset: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("chmod dataset: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace dataset: %w", err)
	}
	success = true

	s.logger.WithFields(logrus.Fields{"path": s.path, "records": ds.Len()}).Info("Dataset replaced")
	return nil
}

func (s *FileStore) Close() error { return nil }
