package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/naka-gawa/geoeditors/internal/domain"
	"github.com/naka-gawa/geoeditors/internal/gateway"
	"github.com/naka-gawa/geoeditors/internal/geo"
	"github.com/naka-gawa/geoeditors/internal/storage"
	"github.com/naka-gawa/geoeditors/internal/tsv"
)

// ManifestRecorder stores the ingestion history.
type ManifestRecorder interface {
	Record(entries []storage.ManifestEntry) error
}

// UpdaterConfig holds the Updater's settings.
type UpdaterConfig struct {
	StartMonth     string // first candidate month, "YYYY-MM"
	Concurrency    int
	BoundariesPath string // where the boundaries file lives; empty disables it
}

// Updater downloads monthly files and replaces the stored dataset.
type Updater struct {
	fetcher    gateway.Fetcher
	boundaries gateway.BoundariesFetcher
	store      storage.Store
	manifest   ManifestRecorder
	cfg        UpdaterConfig
	now        func() time.Time
	logger     *logrus.Logger
}

// NewUpdater creates an Updater. boundaries and manifest may be nil.
func NewUpdater(fetcher gateway.Fetcher, boundaries gateway.BoundariesFetcher, store storage.Store,
	manifest ManifestRecorder, cfg UpdaterConfig, logger *logrus.Logger) *Updater {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Updater{
		fetcher:    fetcher,
		boundaries: boundaries,
		store:      store,
		manifest:   manifest,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger,
	}
}

// UpdateOptions narrows an update run.
type UpdateOptions struct {
	// Months, when set, are fetched even if already ingested.
	Months []string
	// Force refetches every candidate month.
	Force bool
}

// UpdateReport describes what a run did.
type UpdateReport struct {
	RunID        string   `json:"run_id"`
	Requested    []string `json:"requested"`
	Ingested     []string `json:"ingested"`
	NotPublished []string `json:"not_published"`
	Records      int      `json:"records"`
	Unchanged    bool     `json:"unchanged"`
}

type fetched struct {
	file    *gateway.MonthFile
	records []domain.EditorRecord
}

// Update fetches the selected months and replaces the dataset. On any fetch or
// parse failure it returns the error and leaves the stored dataset untouched.
func (u *Updater) Update(ctx context.Context, opts UpdateOptions) (*UpdateReport, error) {
	report := &UpdateReport{RunID: uuid.NewString()}
	logger := u.logger.WithField("run_id", report.RunID)
	logger.Info("Starting data update")

	current, err := u.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load current dataset: %w", err)
	}

	months, err := u.candidateMonths(current, opts)
	if err != nil {
		return nil, err
	}
	report.Requested = months
	report.Records = current.Len()

	if len(months) > 0 {
		if err := u.ingest(ctx, logger, current, months, report); err != nil {
			logger.WithError(err).Error("Update aborted, keeping previous dataset")
			return nil, err
		}
	} else {
		logger.Info("No months to fetch")
	}
	report.Unchanged = len(report.Ingested) == 0

	if err := u.ensureBoundaries(ctx); err != nil {
		logger.WithError(err).Warn("Could not fetch country boundaries; the map view will be empty")
	}
	logger.WithFields(logrus.Fields{
		"ingested":      len(report.Ingested),
		"not_published": len(report.NotPublished),
		"records":       report.Records,
	}).Info("Data update completed")
	return report, nil
}

func (u *Updater) candidateMonths(current *domain.Dataset, opts UpdateOptions) ([]string, error) {
	if len(opts.Months) > 0 {
		set := make(map[string]struct{})
		for _, m := range opts.Months {
			if !domain.ValidMonth(m) {
				return nil, fmt.Errorf("invalid month %q, expected YYYY-MM", m)
			}
			set[m] = struct{}{}
		}
		months := make([]string, 0, len(set))
		for m := range set {
			months = append(months, m)
		}
		sort.Strings(months)
		return months, nil
	}

	start, err := domain.ParseMonth(u.cfg.StartMonth)
	if err != nil {
		return nil, fmt.Errorf("invalid start month %q: %w", u.cfg.StartMonth, err)
	}
	var months []string
	for _, m := range domain.MonthRange(start, u.now()) {
		if opts.Force || !current.HasMonth(m) {
			months = append(months, m)
		}
	}
	return months, nil
}

func (u *Updater) ingest(ctx context.Context, logger *logrus.Entry, current *domain.Dataset, months []string, report *UpdateReport) error {
	results := make([]*gateway.MonthFile, len(months))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(u.cfg.Concurrency)
	for i, month := range months {
		eg.Go(func() error {
			file, err := u.fetcher.FetchMonth(egCtx, month)
			if errors.Is(err, gateway.ErrNotPublished) {
				logger.WithField("month", month).Info("Month not published yet")
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = file
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	var parsed []fetched
	for i, file := range results {
		if file == nil {
			report.NotPublished = append(report.NotPublished, months[i])
			continue
		}
		records, err := tsv.ParseMonthly(file.Month, file.Data)
		if err != nil {
			return err
		}
		records = padUnpublished(file.Month, records)
		parsed = append(parsed, fetched{file: file, records: records})
		logger.WithFields(logrus.Fields{"month": file.Month, "rows": len(records)}).Info("Parsed monthly file")
	}
	if len(parsed) == 0 {
		return nil
	}

	var ingested []string
	var replacement []domain.EditorRecord
	for _, p := range parsed {
		ingested = append(ingested, p.file.Month)
		replacement = append(replacement, p.records...)
	}
	next, err := current.ReplaceMonths(ingested, replacement)
	if err != nil {
		return fmt.Errorf("merge dataset: %w", err)
	}
	if err := u.store.Replace(ctx, next); err != nil {
		return fmt.Errorf("store dataset: %w", err)
	}
	report.Ingested = ingested
	report.Records = next.Len()

	if u.manifest != nil {
		fetchedAt := u.now().UTC()
		entries := make([]storage.ManifestEntry, 0, len(parsed))
		for _, p := range parsed {
			sum := sha256.Sum256(p.file.Data)
			entries = append(entries, storage.ManifestEntry{
				Month:     p.file.Month,
				Rows:      len(p.records),
				SHA256:    hex.EncodeToString(sum[:]),
				SourceURL: p.file.URL,
				FetchedAt: fetchedAt,
				RunID:     report.RunID,
			})
		}
		// The dataset is already replaced; a stale manifest only affects `status`.
		if err := u.manifest.Record(entries); err != nil {
			logger.WithError(err).Warn("Failed to record manifest")
		}
	}
	return nil
}

// padUnpublished adds a zero, unpublished row for every protected country
// missing from each (project, activity level) present in the month.
func padUnpublished(month string, records []domain.EditorRecord) []domain.EditorRecord {
	type group struct {
		project string
		level   domain.ActivityLevel
	}
	present := make(map[domain.RecordKey]struct{}, len(records))
	wikiDB := make(map[string]string)
	groups := make(map[group]struct{})
	for _, r := range records {
		present[r.Key()] = struct{}{}
		groups[group{r.Project, r.ActivityLevel}] = struct{}{}
		if _, ok := wikiDB[r.Project]; !ok {
			wikiDB[r.Project] = r.WikiDB
		}
	}

	ordered := make([]group, 0, len(groups))
	for g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].project != ordered[j].project {
			return ordered[i].project < ordered[j].project
		}
		return ordered[i].level < ordered[j].level
	})

	protected := domain.ProtectedCountries(month)
	for _, g := range ordered {
		for _, code := range domain.ProtectedCodes(month) {
			rec := domain.EditorRecord{
				CountryCode:   code,
				CountryName:   protected[code],
				Project:       g.project,
				WikiDB:        wikiDB[g.project],
				ActivityLevel: g.level,
				Month:         month,
				Unpublished:   true,
			}
			if _, ok := present[rec.Key()]; ok {
				continue
			}
			records = append(records, rec)
		}
	}
	return records
}

func (u *Updater) ensureBoundaries(ctx context.Context) error {
	if u.boundaries == nil || u.cfg.BoundariesPath == "" {
		return nil
	}
	if _, err := os.Stat(u.cfg.BoundariesPath); err == nil {
		return nil
	}
	data, err := u.boundaries.FetchBoundaries(ctx)
	if err != nil {
		return err
	}
	b, err := geo.Parse(data)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(u.cfg.BoundariesPath, data); err != nil {
		return err
	}
	u.logger.WithFields(logrus.Fields{"path": u.cfg.BoundariesPath, "countries": b.Len()}).Info("Saved country boundaries")
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".boundaries-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
