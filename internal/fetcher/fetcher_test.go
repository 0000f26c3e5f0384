package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleaning-schedule-backend/config"
	"cleaning-schedule-backend/internal/apperr"
	"cleaning-schedule-backend/internal/importer"
	"cleaning-schedule-backend/internal/logger"
	"cleaning-schedule-backend/internal/metrics"
)

// mockImporter is a mock implementation of the Importer interface.
type mockImporter struct {
	mu          sync.Mutex
	requests    []importer.Request
	ProcessFunc func(ctx context.Context, req importer.Request) (*importer.Result, error)
}

func (m *mockImporter) Process(ctx context.Context, req importer.Request) (*importer.Result, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.ProcessFunc(ctx, req)
}

func (m *mockImporter) calls() []importer.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]importer.Request(nil), m.requests...)
}

func newTestConfig(url string) *config.Config {
	cfg := config.Default()
	cfg.Fetcher.Enabled = true
	cfg.Fetcher.URL = url
	cfg.Fetcher.Headers = map[string]string{"Authorization": "Bearer token"}
	cfg.Fetcher.Interval = 10 * time.Millisecond
	return cfg
}

func TestFetchOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("Veículo;Data;Hora\n1234;01/06/2024;20:45\n"))
	}))
	defer server.Close()

	imp := &mockImporter{ProcessFunc: func(ctx context.Context, req importer.Request) (*importer.Result, error) {
		return &importer.Result{ImportID: uuid.New(), Count: 1}, nil
	}}
	svc := NewService(newTestConfig(server.URL+"/exports/escala.csv"), imp, metrics.New("test"), logger.NewNop())

	res, err := svc.FetchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)

	calls := imp.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "escala.csv", calls[0].Filename)
	assert.Equal(t, "text/csv", calls[0].MimeType)
	assert.Equal(t, "schedule-fetcher", calls[0].ActorID)
	assert.Contains(t, string(calls[0].Data), "1234;01/06/2024")
}

func TestFetchOnce_OnImported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("Veículo;Data;Hora\n"))
	}))
	defer server.Close()

	results := []*importer.Result{
		{ImportID: uuid.New(), VersionNumber: 1},
		{ImportID: uuid.New(), DuplicateOfPriorImport: true},
	}
	imp := &mockImporter{ProcessFunc: func(ctx context.Context, req importer.Request) (*importer.Result, error) {
		if len(results) == 0 {
			return nil, apperr.ErrNormalization
		}
		res := results[0]
		results = results[1:]
		return res, nil
	}}
	svc := NewService(newTestConfig(server.URL), imp, metrics.New("test"), logger.NewNop())
	flushes := 0
	svc.OnImported(func() { flushes++ })

	for i := 0; i < 3; i++ {
		svc.FetchOnce(context.Background())
	}
	assert.Equal(t, 1, flushes, "only a new version triggers the callback")
}

func TestFetchOnce_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	imp := &mockImporter{ProcessFunc: func(ctx context.Context, req importer.Request) (*importer.Result, error) {
		t.Fatal("importer must not be called when the download fails")
		return nil, nil
	}}
	svc := NewService(newTestConfig(server.URL), imp, metrics.New("test"), logger.NewNop())

	_, err := svc.FetchOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF"))
	}))
	defer server.Close()

	var mu sync.Mutex
	n := 0
	done := make(chan struct{})
	imp := &mockImporter{ProcessFunc: func(ctx context.Context, req importer.Request) (*importer.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		switch n {
		case 1:
			return &importer.Result{ImportID: uuid.New()}, nil
		case 2:
			return &importer.Result{ImportID: uuid.New(), DuplicateOfPriorImport: true}, nil
		case 3:
			close(done)
		}
		return nil, apperr.ErrExtraction
	}}
	m := metrics.New("test")
	svc := NewService(newTestConfig(server.URL), imp, m, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(stopped)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("fetcher did not run three cycles")
	}
	cancel()
	<-stopped

	assert.Equal(t, float64(1), testutil.ToFloat64(m.FetchesTotal.WithLabelValues("imported")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FetchesTotal.WithLabelValues("unchanged")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.FetchesTotal.WithLabelValues("rejected")), float64(1))
}

func TestRun_Disabled(t *testing.T) {
	cfg := newTestConfig("")
	imp := &mockImporter{}
	svc := NewService(cfg, imp, metrics.New("test"), logger.NewNop())

	returned := make(chan struct{})
	go func() {
		svc.Run(context.Background())
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("disabled fetcher should return immediately")
	}
	assert.Empty(t, imp.calls())
}

func TestFilenameOf(t *testing.T) {
	assert.Equal(t, "escala.pdf", filenameOf("https://example.com/files/escala.pdf?token=1"))
	assert.Equal(t, "", filenameOf("https://example.com/"))
	assert.Equal(t, "", filenameOf("https://example.com"))
}
