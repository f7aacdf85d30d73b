package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/kenchrcum/moonball/internal/archive"
	"github.com/kenchrcum/moonball/internal/metrics"
)

func buildTestArchive(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(inputPath, []byte("hello moonball"), 0o644))

	b := archive.NewBuilder(context.Background(), archive.WithChunkSize(5*1024*1024))
	require.NoError(t, b.AddFile(inputPath))

	archivePath := filepath.Join(dir, "out.mnbl")
	require.NoError(t, b.Save(context.Background(), archivePath))
	return archivePath
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	archivePath := buildTestArchive(t)
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	return New(archivePath, nil, nil, logger, metrics.NewMetricsWithRegistry(prometheus.NewRegistry()), nil)
}

func TestRouterHealthz(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouterLivez(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/livez")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouterReadyzWithoutEmbedder(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouterMetrics(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouterSearchWithoutEmbeddingsReturnsServerError(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/search?q=hello")
	require.NoError(t, err)
	defer resp.Body.Close()
	// The test archive was built without embeddings, so Search's
	// ErrEmbeddingsAbsent surfaces as a 500 rather than a result list.
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestRouterSearchMissingQueryParam(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/search")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCheckReadyWithNilEmbedderSucceeds(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.checkReady(context.Background()))
}
