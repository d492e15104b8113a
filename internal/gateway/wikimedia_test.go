package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/geoeditors/internal/config"
	"github.com/naka-gawa/geoeditors/internal/domain"
	"github.com/naka-gawa/geoeditors/internal/logging"
)

func setupWikimediaGateway(t *testing.T, handler http.Handler) (*WikimediaGateway, *httptest.Server) {
	server := httptest.NewServer(handler)
	gw := NewWikimediaGateway(config.SourceConfig{
		BaseURL:   server.URL + "/geoeditors_monthly/",
		RateLimit: 1000,
		Timeout:   5 * time.Second,
	}, logging.Discard())
	return gw, server
}

func TestWikimediaGateway_FetchMonth(t *testing.T) {
	const body = "enwiki\ten.wikipedia\tFrance\tFR\t5 to 99\t0\t0\t0\t120\t\t2024-03\n"

	testCases := []struct {
		name           string
		handlerFunc    func(w http.ResponseWriter, r *http.Request)
		expectData     string
		expectStatus   int
		notPublished   bool
		expectFetchErr bool
	}{
		{
			name: "happy path - returns the file body",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/geoeditors_monthly/2024-03.tsv", r.URL.Path)
				fmt.Fprint(w, body)
			},
			expectData: body,
		},
		{
			name: "missing month - reported as not published",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			notPublished: true,
		},
		{
			name: "server error - reported as a fetch error with status",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			expectFetchErr: true,
			expectStatus:   http.StatusBadGateway,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gw, server := setupWikimediaGateway(t, http.HandlerFunc(tc.handlerFunc))
			defer server.Close()

			file, err := gw.FetchMonth(context.Background(), "2024-03")
			switch {
			case tc.notPublished:
				assert.ErrorIs(t, err, ErrNotPublished)
				assert.Nil(t, file)
			case tc.expectFetchErr:
				var fetchErr *domain.FetchError
				require.ErrorAs(t, err, &fetchErr)
				assert.Equal(t, tc.expectStatus, fetchErr.Status)
				assert.Equal(t, "2024-03", fetchErr.Month)
				assert.Nil(t, file)
			default:
				require.NoError(t, err)
				assert.Equal(t, "2024-03", file.Month)
				assert.Equal(t, tc.expectData, string(file.Data))
				assert.Equal(t, server.URL+"/geoeditors_monthly/2024-03.tsv", file.URL)
			}
		})
	}
}

func TestWikimediaGateway_FetchMonth_TransportFailure(t *testing.T) {
	gw, server := setupWikimediaGateway(t, http.NotFoundHandler())
	server.Close()

	_, err := gw.FetchMonth(context.Background(), "2024-03")
	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Zero(t, fetchErr.Status)
	assert.False(t, errors.Is(err, ErrNotPublished))
}

func TestWikimediaGateway_FetchMonth_CanceledContext(t *testing.T) {
	gw, server := setupWikimediaGateway(t, http.NotFoundHandler())
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := gw.FetchMonth(ctx, "2024-03")
	var fetchErr *domain.FetchError
	assert.ErrorAs(t, err, &fetchErr)
}
