package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/geoeditors/internal/config"
	"github.com/naka-gawa/geoeditors/internal/logging"
	"github.com/naka-gawa/geoeditors/internal/usecase"
)

// mockQuerier is a mock implementation of the Querier interface.
type mockQuerier struct {
	mock.Mock
}

func (m *mockQuerier) Query(ctx context.Context, f usecase.Filter) (*usecase.Result, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.Result), args.Error(1)
}

func (m *mockQuerier) Snapshot(ctx context.Context, f usecase.Filter, month string) (*usecase.Result, error) {
	args := m.Called(ctx, f, month)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.Result), args.Error(1)
}

var testWebConfig = config.WebConfig{
	DefaultProject:       "en.wikipedia",
	DefaultActivityLevel: "1 to 4",
	TrendTopN:            10,
}

func setupTestServer(t *testing.T, q Querier) *httptest.Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "countries.geojson")
	require.NoError(t, os.WriteFile(path, []byte(testBoundaries), 0644))
	s, err := NewServer(q, path, testWebConfig, logging.Discard())
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServer_Views(t *testing.T) {
	defaults := usecase.Filter{ActivityLevel: "1 to 4", Project: "en.wikipedia"}

	testCases := []struct {
		name         string
		path         string
		setupMock    func(q *mockQuerier, result *usecase.Result)
		expectStatus int
		expectBody   []string
	}{
		{
			name: "index",
			path: "/",
			setupMock: func(q *mockQuerier, result *usecase.Result) {
				q.On("Query", mock.Anything, defaults).Return(result, nil)
			},
			expectStatus: http.StatusOK,
			expectBody:   []string{"Editors by country", "United States"},
		},
		{
			name: "map with defaults and latest month",
			path: "/map",
			setupMock: func(q *mockQuerier, result *usecase.Result) {
				q.On("Snapshot", mock.Anything, defaults, "").Return(result, nil)
			},
			expectStatus: http.StatusOK,
			expectBody:   []string{"leaflet", "Editors: 1,300", "#fde725", "2024-02"},
		},
		{
			name: "map with explicit filters",
			path: "/map?activity_level=5+to+99&project=de.wikipedia&countries=de,us&month=2024-01",
			setupMock: func(q *mockQuerier, result *usecase.Result) {
				f := usecase.Filter{ActivityLevel: "5 to 99", Project: "de.wikipedia", Countries: []string{"DE", "US"}}
				q.On("Snapshot", mock.Anything, f, "2024-01").Return(result, nil)
			},
			expectStatus: http.StatusOK,
		},
		{
			name: "trends with invalid level filters nothing",
			path: "/trends?activity_level=bogus&from=2024-13",
			setupMock: func(q *mockQuerier, result *usecase.Result) {
				q.On("Query", mock.Anything, usecase.Filter{Project: "en.wikipedia"}).Return(result, nil)
			},
			expectStatus: http.StatusOK,
			expectBody:   []string{"Plotly.newPlot", "United States"},
		},
		{
			name: "store failure",
			path: "/trends",
			setupMock: func(q *mockQuerier, result *usecase.Result) {
				q.On("Query", mock.Anything, defaults).Return(nil, errors.New("disk gone"))
			},
			expectStatus: http.StatusInternalServerError,
			expectBody:   []string{"failed to load data"},
		},
		{
			name:         "unknown path",
			path:         "/nope",
			setupMock:    func(q *mockQuerier, result *usecase.Result) {},
			expectStatus: http.StatusNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q := new(mockQuerier)
			tc.setupMock(q, testResult(t))
			ts := setupTestServer(t, q)

			resp, body := get(t, ts.URL+tc.path)
			assert.Equal(t, tc.expectStatus, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
			for _, want := range tc.expectBody {
				assert.Contains(t, body, want)
			}
			q.AssertExpectations(t)
		})
	}
}

func TestServer_APIQuery(t *testing.T) {
	q := new(mockQuerier)
	q.On("Query", mock.Anything, usecase.Filter{}).Return(testResult(t), nil)
	q.On("Query", mock.Anything, usecase.Filter{Countries: []string{"US"}}).Return(testResult(t), nil)
	ts := setupTestServer(t, q)

	t.Run("group by country without defaults", func(t *testing.T) {
		resp, body := get(t, ts.URL+"/api/query")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		var got usecase.Report
		require.NoError(t, json.Unmarshal([]byte(body), &got))
		assert.Equal(t, "country", got.GroupBy)
		assert.Len(t, got.ByCountry, 4)
		assert.Empty(t, got.ByMonth)
		assert.Nil(t, got.Records)
	})

	t.Run("group by month with records", func(t *testing.T) {
		resp, body := get(t, ts.URL+"/api/query?group_by=month&countries=us&records=true")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var got map[string]any
		require.NoError(t, json.Unmarshal([]byte(body), &got))
		assert.Equal(t, "month", got["group_by"])
		assert.Contains(t, got, "by_month")
		assert.Contains(t, got, "series")
		assert.NotContains(t, got, "by_country")
		assert.Len(t, got["records"], 4)
	})
}

func TestServer_Health(t *testing.T) {
	ts := setupTestServer(t, new(mockQuerier))
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, "abc-123")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc-123", resp.Header.Get(requestIDHeader))
}

func TestServer_MapWithoutBoundaries(t *testing.T) {
	q := new(mockQuerier)
	q.On("Snapshot", mock.Anything, mock.Anything, "").Return(testResult(t), nil)
	s, err := NewServer(q, filepath.Join(t.TempDir(), "missing.geojson"), testWebConfig, logging.Discard())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/map", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "boundaries are not available yet")
}

func TestServer_Run(t *testing.T) {
	s, err := NewServer(new(mockQuerier), "", testWebConfig, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()
	cancel()
	assert.NoError(t, <-done)
}
