// Package storage persists the dataset and the ingestion manifest.
package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/naka-gawa/geoeditors/internal/config"
	"github.com/naka-gawa/geoeditors/internal/domain"
)

const (
	// DatasetFileName is the flat-file dataset inside the data directory.
	DatasetFileName    = "geoeditors.tsv"
	// SQLiteFileName is the default sqlite database inside the data directory.
	SQLiteFileName     = "geoeditors.db"
	// ManifestFileName is the ingestion manifest inside the data directory.
	ManifestFileName   = "manifest.db"
	// BoundariesFileName is the country boundaries GeoJSON inside the data directory.
	BoundariesFileName = "countries.geojson"
)

// Store holds exactly one dataset. Replace swaps it atomically: a reader sees
// either the previous dataset or the new one, never a mix.
type Store interface {
	// Load returns the stored dataset, or an empty one if nothing was stored yet.
	Load(ctx context.Context) (*domain.Dataset, error)
	Replace(ctx context.Context, ds *domain.Dataset) error
	Close() error
}

// Open creates the store selected by cfg.Type.
func Open(cfg config.StorageConfig, logger *logrus.Logger) (Store, error) {
	switch cfg.Type {
	case config.StorageFile, "":
		return NewFileStore(filepath.Join(cfg.DataDir, DatasetFileName), logger), nil
	case config.StorageSQLite:
		path := cfg.DSN
		if path == "" {
			path = filepath.Join(cfg.DataDir, SQLiteFileName)
		}
		return NewSQLiteStore(path, logger)
	case config.StoragePostgres:
		return NewPostgresStore(cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
