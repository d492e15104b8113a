package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"

	"github.com/naka-gawa/geoeditors/internal/config"
)

// BoundariesFetcher fetches the GeoJSON country polygons used by the map view.
type BoundariesFetcher interface {
	FetchBoundaries(ctx context.Context) ([]byte, error)
}

// GitHubGateway downloads the boundaries file through the GitHub contents API.
type GitHubGateway struct {
	restClient *github.Client
	owner      string
	repo       string
	path       string
	ref        string
	logger     *logrus.Logger
}

// NewGitHubGateway creates a GitHubGateway. The token is optional; anonymous
// requests work for public repositories but share a lower rate limit.
func NewGitHubGateway(cfg config.BoundariesConfig, logger *logrus.Logger) (*GitHubGateway, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(5*time.Minute, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	var transport http.RoundTripper = rateLimitWaiter
	if cfg.GitHubToken != "" {
		transport = &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHubToken}),
		}
	}
	return &GitHubGateway{
		restClient: github.NewClient(&http.Client{Transport: transport, Timeout: 2 * time.Minute}),
		owner:      cfg.Owner,
		repo:       cfg.Repo,
		path:       cfg.Path,
		ref:        cfg.Ref,
		logger:     logger,
	}, nil
}

func (g *GitHubGateway) FetchBoundaries(ctx context.Context) ([]byte, error) {
	g.logger.WithField("path", fmt.Sprintf("%s/%s/%s@%s", g.owner, g.repo, g.path, g.ref)).Info("Fetching country boundaries")
	opts := &github.RepositoryContentGetOptions{Ref: g.ref}
	file, _, _, err := g.restClient.Repositories.GetContents(ctx, g.owner, g.repo, g.path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get boundaries file: %w", err)
	}
	if file == nil {
		return nil, fmt.Errorf("boundaries path %s is a directory", g.path)
	}

	// The contents API inlines files up to 1MB; larger ones need the raw download.
	if file.GetEncoding() == "base64" {
		content, err := file.GetContent()
		if err != nil {
			return nil, fmt.Errorf("failed to decode boundaries file: %w", err)
		}
		return []byte(content), nil
	}
	rc, _, err := g.restClient.Repositories.DownloadContents(ctx, g.owner, g.repo, g.path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to download boundaries file: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read boundaries file: %w", err)
	}
	return data, nil
}
