// Package gateway provides gateways to the remote data sources: the Wikimedia
// geoeditors archive and the GitHub-hosted country boundaries.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/naka-gawa/geoeditors/internal/config"
	"github.com/naka-gawa/geoeditors/internal/domain"
)

// ErrNotPublished means the archive has no file for the month yet.
var ErrNotPublished = errors.New("month not published")

// maxMonthFileSize caps a single monthly download.
const maxMonthFileSize = 64 << 20

// MonthFile is one raw monthly TSV as downloaded.
type MonthFile struct {
	Month string
	URL   string
	Data  []byte
}

// Fetcher defines the behavior of a gateway for fetching monthly geoeditors files.
type Fetcher interface {
	FetchMonth(ctx context.Context, month string) (*MonthFile, error)
}

// WikimediaGateway is the concrete implementation of the Fetcher interface.
type WikimediaGateway struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// NewWikimediaGateway is a constructor that creates a new instance of WikimediaGateway.
func NewWikimediaGateway(cfg config.SourceConfig, logger *logrus.Logger) *WikimediaGateway {
	return &WikimediaGateway{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		logger:     logger,
	}
}

// MonthURL returns the archive URL of a month's file.
func (g *WikimediaGateway) MonthURL(month string) string {
	return fmt.Sprintf("%s/%s.tsv", g.baseURL, month)
}

// FetchMonth downloads the file for month. A 404 is reported as ErrNotPublished;
// every other failure is a *domain.FetchError.
func (g *WikimediaGateway) FetchMonth(ctx context.Context, month string) (*MonthFile, error) {
	url := g.MonthURL(month)
	fetchErr := func(status int, cause error) error {
		return &domain.FetchError{Month: month, URL: url, Status: status, Cause: cause}
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fetchErr(0, fmt.Errorf("rate limiter: %w", err))
	}

	g.logger.WithField("url", url).Debug("Fetching monthly file")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fetchErr(0, err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fetchErr(0, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotPublished, month)
	case resp.StatusCode != http.StatusOK:
		return nil, fetchErr(resp.StatusCode, nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMonthFileSize+1))
	if err != nil {
		return nil, fetchErr(0, fmt.Errorf("reading body: %w", err))
	}
	if len(data) > maxMonthFileSize {
		return nil, fetchErr(0, fmt.Errorf("file exceeds %d bytes", maxMonthFileSize))
	}
	g.logger.WithFields(logrus.Fields{"month": month, "bytes": len(data)}).Debug("Fetched monthly file")
	return &MonthFile{Month: month, URL: url, Data: data}, nil
}
