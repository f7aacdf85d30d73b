package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

var errTest = errors.New("embedder failed")

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsWithRegistry(reg)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}

	if m.chunkOperationsTotal == nil {
		t.Error("chunkOperationsTotal is nil")
	}
	if m.compressionDuration == nil {
		t.Error("compressionDuration is nil")
	}
	if m.embedderOperationsTotal == nil {
		t.Error("embedderOperationsTotal is nil")
	}
}

func TestMetrics_RecordChunk(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsWithRegistry(reg)

	m.RecordChunk("compress", "zstd", 1024)
}

func TestMetrics_RecordEmbedderCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsWithRegistry(reg)

	m.RecordEmbedderCall(10*time.Millisecond, nil)
	m.RecordEmbedderCall(10*time.Millisecond, errTest)
	m.RecordEmbedderError("timeout")
}

func TestMetrics_RecordSearch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsWithRegistry(reg)

	m.RecordSearch(5*time.Millisecond, nil)
}

func TestMetrics_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsWithRegistry(reg)

	m.RecordHTTPRequest("GET", "/healthz", http.StatusOK, 100*time.Millisecond)
	m.RecordArchiveBuild(time.Second)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	if handler == nil {
		t.Fatal("Handler returned nil")
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	body := w.Body.String()
	if len(body) == 0 {
		t.Error("metrics endpoint returned empty body")
	}

	for _, metric := range []string{"moonball_http_requests_total", "moonball_archive_build_duration_seconds"} {
		if !contains(body, metric) {
			t.Errorf("expected metrics output to contain %q", metric)
		}
	}
}

// TestGatherExposesMoonballFamilies walks the raw client_model.MetricFamily
// output of Gather, rather than the promhttp text body, to confirm that
// RecordChunk produces the moonball_chunk_operations_total family with
// exactly one label series.
func TestGatherExposesMoonballFamilies(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsWithRegistry(reg)
	m.RecordChunk("compress", "zstd", 2048)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	var found *dto.MetricFamily
	for _, fam := range families {
		if fam.GetName() == "moonball_chunk_operations_total" {
			found = fam
			break
		}
	}
	if found == nil {
		t.Fatal("moonball_chunk_operations_total family not found")
	}
	if len(found.Metric) != 1 {
		t.Fatalf("expected 1 label series, got %d", len(found.Metric))
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return len(substr) == 0
}
