package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cleaning-schedule-backend/config"
	"cleaning-schedule-backend/internal/apperr"
	"cleaning-schedule-backend/internal/extract"
	"cleaning-schedule-backend/internal/keylock"
	"cleaning-schedule-backend/internal/logger"
	"cleaning-schedule-backend/internal/metrics"
	"cleaning-schedule-backend/internal/model"
	"cleaning-schedule-backend/internal/parse"
	"cleaning-schedule-backend/internal/store"
)

// Request is one schedule file submitted for import.
type Request struct {
	Data     []byte
	Filename string
	MimeType string
	ActorID  string
}

// Result reports what an import did.
type Result struct {
	ImportID               uuid.UUID  `json:"importId"`
	VersionID              *uuid.UUID `json:"versionId,omitempty"`
	VersionNumber          int        `json:"versionNumber,omitempty"`
	OperationalDate        string     `json:"operationalDate,omitempty"`
	Count                  int        `json:"count"`
	Duplicates             int        `json:"duplicates"`
	New                    int        `json:"new"`
	Changed                int        `json:"changed"`
	Removed                int        `json:"removed"`
	ParseErrors            []string   `json:"parseErrors,omitempty"`
	Warnings               []string   `json:"warnings,omitempty"`
	DuplicateOfPriorImport bool       `json:"duplicateOfPriorImport"`
}

// Service turns uploaded files into schedule versions.
type Service struct {
	store   store.Store
	grammar parse.Grammar
	limits  config.ImportConfig
	metrics *metrics.Metrics
	log     logger.Logger
	hashes  *keylock.Mutex
	now     func() time.Time
}

// New creates the import coordinator.
func New(st store.Store, cfg *config.Config, m *metrics.Metrics, log logger.Logger) *Service {
	return &Service{
		store: st,
		grammar: parse.Grammar{
			Location:      cfg.Schedule.Location,
			Carriers:      cfg.Schedule.Carriers,
			AlertKeywords: cfg.Schedule.AlertKeywords,
		},
		limits:  cfg.Import,
		metrics: m,
		log:     log,
		hashes:  keylock.New(),
		now:     time.Now,
	}
}

// Fingerprint is the idempotency key of a payload.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Process runs one import end to end. Resubmitting content that already
// produced a successful import returns that import without writing anything.
func (s *Service) Process(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	defer func() { s.metrics.ImportDuration.Observe(time.Since(start).Seconds()) }()

	kind, err := s.validate(req)
	if err != nil {
		s.metrics.ImportsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	hash := Fingerprint(req.Data)
	unlock := s.hashes.Lock(hash)
	defer unlock()

	log := s.log.With("filename", req.Filename, "hash", hash[:12], "actor", req.ActorID)

	prior, err := s.store.FindSuccessfulImport(ctx, hash)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		log.Info("duplicate import ignored", "import_id", prior.ID)
		s.metrics.ImportsTotal.WithLabelValues("duplicate").Inc()
		return &Result{ImportID: prior.ID, DuplicateOfPriorImport: true}, nil
	}

	imp := model.ScheduleImport{
		SourceType:       kind,
		OriginalFilename: req.Filename,
		ContentHash:      hash,
		Status:           model.ImportPartial,
		ImportedBy:       req.ActorID,
	}
	if err := s.store.CreateImport(ctx, &imp); err != nil {
		return nil, err
	}
	log = log.With("import_id", imp.ID)

	res, records, err := s.run(ctx, kind, req.Data, imp.ID)

	// Finalization must land even when the caller gave up.
	fctx := context.WithoutCancel(ctx)
	if err != nil {
		log.Error("import failed", "error", err)
		s.metrics.ImportsTotal.WithLabelValues("failed").Inc()
		if ferr := s.store.FinalizeImport(fctx, imp.ID, model.ImportFailed, records, err.Error()); ferr != nil {
			log.Error("failed to mark import as failed", "error", ferr)
		}
		return nil, err
	}

	details := strings.Join(res.ParseErrors, "\n")
	if err := s.store.FinalizeImport(fctx, imp.ID, model.ImportSuccess, records, details); err != nil {
		// The success-hash index rejects a second SUCCESS when another
		// process finished the same content first.
		if winner, ferr := s.store.FindSuccessfulImport(fctx, hash); ferr == nil && winner != nil {
			log.Warn("same content imported concurrently", "winner_import_id", winner.ID)
			if ferr := s.store.FinalizeImport(fctx, imp.ID, model.ImportFailed, records,
				"duplicate of concurrent import "+winner.ID.String()); ferr != nil {
				log.Error("failed to mark import as failed", "error", ferr)
			}
			s.metrics.ImportsTotal.WithLabelValues("duplicate").Inc()
			return &Result{ImportID: winner.ID, DuplicateOfPriorImport: true}, nil
		}
		return nil, err
	}

	s.metrics.ImportsTotal.WithLabelValues("success").Inc()
	s.metrics.EventsImported.Add(float64(res.Count))
	s.metrics.ParseErrors.Add(float64(len(res.ParseErrors)))
	s.metrics.ScheduleChanges.WithLabelValues(string(model.ChangeNew)).Add(float64(res.New))
	s.metrics.ScheduleChanges.WithLabelValues(string(model.ChangeChanged)).Add(float64(res.Changed))
	s.metrics.ScheduleChanges.WithLabelValues(string(model.ChangeRemoved)).Add(float64(res.Removed))

	log.Info("import completed",
		"date", res.OperationalDate,
		"version", res.VersionNumber,
		"events", res.Count,
		"parse_errors", len(res.ParseErrors),
	)
	return res, nil
}

func (s *Service) validate(req Request) (model.SourceType, error) {
	if len(req.Data) == 0 {
		return "", fmt.Errorf("%w: empty file", apperr.ErrInput)
	}
	if strings.TrimSpace(req.ActorID) == "" {
		return "", fmt.Errorf("%w: missing actor", apperr.ErrInput)
	}
	if s.limits.MaxBytes > 0 && int64(len(req.Data)) > s.limits.MaxBytes {
		return "", fmt.Errorf("%w: file exceeds %d bytes", apperr.ErrInput, s.limits.MaxBytes)
	}
	kind := extract.Classify(req.MimeType, req.Filename)
	if kind == model.SourceAPI {
		return "", fmt.Errorf("%w: unsupported file type %q", apperr.ErrInput, req.MimeType)
	}
	return kind, nil
}

// run extracts, normalizes and versions the payload. records is the number
// of raw records seen, reported even on failure.
func (s *Service) run(ctx context.Context, kind model.SourceType, data []byte, importID uuid.UUID) (res *Result, records int, err error) {
	ectx := ctx
	if s.limits.ExtractTimeout > 0 {
		var cancel context.CancelFunc
		ectx, cancel = context.WithTimeout(ctx, s.limits.ExtractTimeout)
		defer cancel()
	}
	doc, err := extract.Extract(ectx, kind, data)
	if err != nil {
		return nil, 0, err
	}

	parsed, records, err := s.normalize(doc)
	if err != nil {
		return nil, records, err
	}
	if len(parsed.Events) == 0 && len(parsed.Errors) > 0 {
		return nil, records, fmt.Errorf("%w: no valid records (%d errors, first: %s)",
			apperr.ErrNormalization, len(parsed.Errors), parsed.Errors[0])
	}

	day := s.now().In(s.location()).Format(model.DayLayout)
	if len(parsed.Events) > 0 {
		day = parsed.Events[0].Day()
	}

	vr, err := s.store.CreateVersion(ctx, importID, parsed.Events, day)
	if err != nil {
		return nil, records, err
	}

	versionID := vr.Version.ID
	return &Result{
		ImportID:        importID,
		VersionID:       &versionID,
		VersionNumber:   vr.Version.VersionNumber,
		OperationalDate: day,
		Count:           vr.Inserted,
		Duplicates:      vr.Duplicates,
		New:             vr.New,
		Changed:         vr.Changed,
		Removed:         vr.Removed,
		ParseErrors:     parsed.Errors,
		Warnings:        parsed.Warnings,
	}, records, nil
}

func (s *Service) normalize(doc *extract.Document) (parse.Result, int, error) {
	if doc.Kind == model.SourcePDF {
		res := parse.NormalizePDF(doc.Text, s.grammar)
		return res, len(res.Events) + len(res.Errors), nil
	}
	res, err := parse.NormalizeRows(doc.Header, doc.Rows, s.grammar)
	if err != nil {
		return res, len(doc.Rows), fmt.Errorf("%w: %v", apperr.ErrNormalization, err)
	}
	return res, len(doc.Rows), nil
}

func (s *Service) location() *time.Location {
	if s.grammar.Location != nil {
		return s.grammar.Location
	}
	return time.UTC
}

// IsClientError reports whether err was caused by the submitted file rather
// than by the service.
func IsClientError(err error) bool {
	return errors.Is(err, apperr.ErrInput) ||
		errors.Is(err, apperr.ErrExtraction) ||
		errors.Is(err, apperr.ErrNormalization)
}
