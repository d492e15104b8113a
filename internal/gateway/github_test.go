package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v62/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/geoeditors/internal/logging"
)

// setupTestGateway creates a GitHubGateway that communicates with a mock HTTP server.
func setupTestGateway(t *testing.T, handler http.Handler) (*GitHubGateway, *httptest.Server) {
	server := httptest.NewServer(handler)

	restClient := github.NewClient(server.Client())
	baseURL, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	restClient.BaseURL = baseURL

	gateway := &GitHubGateway{
		restClient: restClient,
		owner:      "python-visualization",
		repo:       "folium",
		path:       "examples/data/world-countries.json",
		ref:        "main",
		logger:     logging.Discard(),
	}
	return gateway, server
}

func TestGitHubGateway_FetchBoundaries(t *testing.T) {
	const geojson = `{"type":"FeatureCollection","features":[]}`

	testCases := []struct {
		name           string
		handlerFunc    func(w http.ResponseWriter, r *http.Request)
		expected       string
		expectError    bool
		expectedErrMsg string
	}{
		{
			name: "happy path - decodes inlined file content",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/repos/python-visualization/folium/contents/examples/data/world-countries.json", r.URL.Path)
				assert.Equal(t, "main", r.URL.Query().Get("ref"))
				fmt.Fprintf(w, `{"type":"file","encoding":"base64","name":"world-countries.json","path":"examples/data/world-countries.json","content":%q}`,
					base64.StdEncoding.EncodeToString([]byte(geojson)))
			},
			expected: geojson,
		},
		{
			name: "error case - GitHub API returns an error",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, `{"message": "Internal Server Error"}`)
			},
			expectError:    true,
			expectedErrMsg: "failed to get boundaries file",
		},
		{
			name: "error case - path is a directory",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `[{"type":"file","name":"a.json","path":"examples/data/a.json"}]`)
			},
			expectError:    true,
			expectedErrMsg: "is a directory",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gateway, server := setupTestGateway(t, http.HandlerFunc(tc.handlerFunc))
			defer server.Close()

			data, err := gateway.FetchBoundaries(context.Background())
			if tc.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tc.expectedErrMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, string(data))
		})
	}
}
