package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const manifestBucket = "months"

// ManifestEntry records one successful ingestion of a month.
type ManifestEntry struct {
	Month     string    `json:"month"`
	Rows      int       `json:"rows"`
	SHA256    string    `json:"sha256"`
	SourceURL string    `json:"source_url"`
	FetchedAt time.Time `json:"fetched_at"`
	RunID     string    `json:"run_id"`
}

// Manifest is the ingestion history, one entry per month, keyed by month.
type Manifest struct {
	db *bolt.DB
}

// OpenManifest opens or creates the manifest database at path.
func OpenManifest(path string) (*Manifest, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create manifest directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(manifestBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init manifest: %w", err)
	}
	return &Manifest{db: db}, nil
}

// Record stores entries in one transaction, replacing earlier entries for the same months.
func (m *Manifest) Record(entries []ManifestEntry) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(manifestBucket))
		for _, e := range entries {
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(e.Month), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns the entry for month.
func (m *Manifest) Get(month string) (ManifestEntry, bool, error) {
	var entry ManifestEntry
	found := false
	err := m.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(manifestBucket)).Get([]byte(month))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &entry)
	})
	return entry, found, err
}

// List returns every entry ordered by month.
func (m *Manifest) List() ([]ManifestEntry, error) {
	entries := []ManifestEntry{}
	err := m.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(manifestBucket)).ForEach(func(_, v []byte) error {
			var e ManifestEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	return entries, err
}

func (m *Manifest) Close() error {
	return m.db.Close()
}
