package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"cleaning-schedule-backend/config"
	"cleaning-schedule-backend/internal/importer"
	"cleaning-schedule-backend/internal/logger"
	"cleaning-schedule-backend/internal/metrics"
)

// Importer is the part of the import coordinator the fetcher drives.
type Importer interface {
	Process(ctx context.Context, req importer.Request) (*importer.Result, error)
}

// Service periodically downloads the client's schedule file and submits it
// for import. Unchanged files are absorbed by import idempotency.
type Service struct {
	cfg      config.FetcherConfig
	maxBytes int64
	importer Importer
	client   *http.Client
	metrics  *metrics.Metrics
	log      logger.Logger

	// onImported runs after a fetch produced a new schedule version.
	onImported func()
}

// NewService creates and initializes a new fetcher service.
func NewService(cfg *config.Config, imp Importer, m *metrics.Metrics, log logger.Logger) *Service {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.Fetcher.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.Fetcher.HTTPProxy)
		if err != nil {
			log.Warn("invalid proxy URL, fetching without proxy", "proxy", cfg.Fetcher.HTTPProxy, "error", err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &Service{
		cfg:      cfg.Fetcher,
		maxBytes: cfg.Import.MaxBytes,
		importer: imp,
		client: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Fetcher.TimeoutSeconds) * time.Second,
		},
		metrics: m,
		log:     log.With("component", "fetcher"),
	}
}

// OnImported registers fn to run after every fetch that creates a new
// schedule version, e.g. to flush cached schedule views.
func (s *Service) OnImported(fn func()) {
	s.onImported = fn
}

// Run fetches once immediately and then on every interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled || s.cfg.URL == "" {
		s.log.Info("schedule fetcher is disabled, not starting")
		return
	}
	s.log.Info("starting schedule fetcher", "url", s.cfg.URL, "interval", s.cfg.Interval)

	s.fetchAndLog(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("schedule fetcher shutting down")
			return
		case <-timer.C:
			s.fetchAndLog(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

func (s *Service) fetchAndLog(ctx context.Context) {
	res, err := s.FetchOnce(ctx)
	switch {
	case err != nil && importer.IsClientError(err):
		s.metrics.FetchesTotal.WithLabelValues("rejected").Inc()
		s.log.Warn("fetched schedule was rejected", "error", err)
	case err != nil:
		s.metrics.FetchesTotal.WithLabelValues("error").Inc()
		s.log.Error("schedule fetch failed", "error", err)
	case res.DuplicateOfPriorImport:
		s.metrics.FetchesTotal.WithLabelValues("unchanged").Inc()
		s.log.Debug("fetched schedule unchanged", "import_id", res.ImportID)
	default:
		s.metrics.FetchesTotal.WithLabelValues("imported").Inc()
		s.log.Info("fetched schedule imported",
			"import_id", res.ImportID,
			"date", res.OperationalDate,
			"version", res.VersionNumber,
		)
	}
}

// FetchOnce downloads the schedule file and runs it through the importer.
func (s *Service) FetchOnce(ctx context.Context) (*importer.Result, error) {
	data, mimeType, err := s.download(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.importer.Process(ctx, importer.Request{
		Data:     data,
		Filename: filenameOf(s.cfg.URL),
		MimeType: mimeType,
		ActorID:  s.cfg.ActorID,
	})
	if err != nil {
		return nil, err
	}
	if !res.DuplicateOfPriorImport && s.onImported != nil {
		s.onImported()
	}
	return res, nil
}

func (s *Service) download(ctx context.Context) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range s.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if s.maxBytes > 0 {
		// One extra byte lets the importer see the file is too large.
		body = io.LimitReader(resp.Body, s.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func filenameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return ""
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return ""
	}
	return name
}
