package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleaning-schedule-backend/config"
	"cleaning-schedule-backend/internal/apperr"
	"cleaning-schedule-backend/internal/db/dbtest"
	"cleaning-schedule-backend/internal/fetcher"
	"cleaning-schedule-backend/internal/importer"
	"cleaning-schedule-backend/internal/lifecycle"
	"cleaning-schedule-backend/internal/logger"
	"cleaning-schedule-backend/internal/metrics"
	"cleaning-schedule-backend/internal/model"
	"cleaning-schedule-backend/internal/store"
)

const schedule = `Veículo;Data;Hora;Serviço
1234;01/06/2024;20:45;7001
5678;01/06/2024;06:10;7002
`

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter(t *testing.T) *gin.Engine {
	gdb := dbtest.New(t)
	cfg := config.Default()
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000
	log := logger.NewNop()
	m := metrics.New("test")

	st := store.NewGormStore(gdb, log)
	handler := NewHandler(st,
		importer.New(st, cfg, m, log),
		lifecycle.New(st, m, log),
		log, cfg.Schedule.Location, cfg.Import.MaxBytes)
	return NewRouter(handler, cfg.Server, m, nil)
}

func do(r *gin.Engine, method, path string, body interface{}, actor string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func upload(t *testing.T, r *gin.Engine, filename, mimeType, content, actor string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, _ := http.NewRequest(http.MethodPost, "/api/schedule/imports", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type eventsResponse struct {
	Date   string                `json:"date"`
	Events []model.CleaningEvent `json:"events"`
}

func getEvents(t *testing.T, r *gin.Engine) eventsResponse {
	t.Helper()
	w := do(r, http.MethodGet, "/api/schedule/events?date=2024-06-01", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp eventsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestImportAndOperate(t *testing.T) {
	r := setupRouter(t)

	w := upload(t, r, "escala.csv", "text/csv", schedule, "planner")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res importer.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, "2024-06-01", res.OperationalDate)

	w = upload(t, r, "escala.csv", "text/csv", schedule, "planner")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"duplicateOfPriorImport":true`)

	events := getEvents(t, r)
	require.Len(t, events.Events, 2)
	eventID := events.Events[0].ID
	assert.Equal(t, model.StatusPlanned, events.Events[0].Status)

	w = do(r, http.MethodPost, "/api/cleaners", gin.H{"name": "Maria"}, "supervisor")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var cleaner model.Cleaner
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cleaner))

	w = do(r, http.MethodPost, "/api/events/"+eventID.String()+"/start", gin.H{"cleanerId": cleaner.ID}, "operator")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The cached listing was invalidated by the action.
	events = getEvents(t, r)
	assert.Equal(t, model.StatusInProgress, events.Events[0].Status)

	w = do(r, http.MethodPost, "/api/events/"+eventID.String()+"/finish",
		gin.H{"interior": true, "exterior": false, "tires": true}, "operator")
	assert.Equal(t, http.StatusBadRequest, w.Code, "incomplete checklist needs an observation")

	w = do(r, http.MethodPost, "/api/events/"+eventID.String()+"/finish",
		gin.H{"interior": true, "exterior": false, "tires": true, "observation": "sem água"}, "operator")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodPost, "/api/events/"+eventID.String()+"/swap",
		gin.H{"replacementVehicle": "9999", "reason": "QUEBRA"}, "operator")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodGet, "/api/schedule/versions?date=2024-06-01", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"versionNumber":1`)

	w = do(r, http.MethodGet, "/api/schedule/versions/"+res.VersionID.String()+"/changes", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var changes []model.ScheduleChangeLog
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &changes))
	assert.Empty(t, changes, "the first version of a date has no diff")

	w = do(r, http.MethodGet, "/api/schedule/imports", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var imports []model.ScheduleImport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &imports))
	assert.Len(t, imports, 1)
}

func TestSwapEndpoint(t *testing.T) {
	r := setupRouter(t)
	require.Equal(t, http.StatusCreated, upload(t, r, "escala.csv", "text/csv", schedule, "planner").Code)
	id := getEvents(t, r).Events[0].ID.String()

	w := do(r, http.MethodPost, "/api/events/"+id+"/swap", gin.H{"replacementVehicle": "4321", "reason": "FERIAS"}, "operator")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/events/"+id+"/swap", gin.H{"replacementVehicle": "4321", "reason": "MANUT", "note": "revisão"}, "operator")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ev model.CleaningEvent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ev))
	assert.Equal(t, "4321", ev.Vehicle.ExternalNumber)
	require.Len(t, ev.Swaps, 1)
	assert.Equal(t, model.SwapMaintenance, ev.Swaps[0].Reason)
}

func TestRequestErrors(t *testing.T) {
	r := setupRouter(t)

	testCases := []struct {
		name     string
		request  func() *httptest.ResponseRecorder
		expected int
	}{
		{
			name:     "Import without actor",
			request:  func() *httptest.ResponseRecorder { return upload(t, r, "escala.csv", "text/csv", schedule, "") },
			expected: http.StatusBadRequest,
		},
		{
			name:     "Import without file",
			request:  func() *httptest.ResponseRecorder { return do(r, http.MethodPost, "/api/schedule/imports", nil, "planner") },
			expected: http.StatusBadRequest,
		},
		{
			name:     "Unsupported file type",
			request:  func() *httptest.ResponseRecorder { return upload(t, r, "escala.json", "application/json", "{}", "planner") },
			expected: http.StatusBadRequest,
		},
		{
			name: "Corrupt workbook",
			request: func() *httptest.ResponseRecorder {
				return upload(t, r, "escala.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "garbage", "planner")
			},
			expected: http.StatusUnprocessableEntity,
		},
		{
			name:     "Invalid date",
			request:  func() *httptest.ResponseRecorder { return do(r, http.MethodGet, "/api/schedule/events?date=01/06/2024", nil, "") },
			expected: http.StatusBadRequest,
		},
		{
			name:     "Invalid version id",
			request:  func() *httptest.ResponseRecorder { return do(r, http.MethodGet, "/api/schedule/versions/abc/changes", nil, "") },
			expected: http.StatusBadRequest,
		},
		{
			name: "Unknown version",
			request: func() *httptest.ResponseRecorder {
				return do(r, http.MethodGet, "/api/schedule/versions/00000000-0000-0000-0000-000000000001/changes", nil, "")
			},
			expected: http.StatusNotFound,
		},
		{
			name: "Unknown event",
			request: func() *httptest.ResponseRecorder {
				return do(r, http.MethodPost, "/api/events/00000000-0000-0000-0000-000000000001/start", gin.H{}, "operator")
			},
			expected: http.StatusNotFound,
		},
		{
			name: "Action without actor",
			request: func() *httptest.ResponseRecorder {
				return do(r, http.MethodPost, "/api/events/00000000-0000-0000-0000-000000000001/start", gin.H{}, "")
			},
			expected: http.StatusBadRequest,
		},
		{
			name:     "Blank cleaner name",
			request:  func() *httptest.ResponseRecorder { return do(r, http.MethodPost, "/api/cleaners", gin.H{"name": ""}, "supervisor") },
			expected: http.StatusBadRequest,
		},
		{
			name:     "Bad import limit",
			request:  func() *httptest.ResponseRecorder { return do(r, http.MethodGet, "/api/schedule/imports?limit=0", nil, "") },
			expected: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := tc.request()
			assert.Equal(t, tc.expected, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestStatusFor(t *testing.T) {
	testCases := []struct {
		err      error
		expected int
	}{
		{fmt.Errorf("wrap: %w", apperr.ErrInput), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", apperr.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", apperr.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("wrap: %w", apperr.ErrConflict), http.StatusConflict},
		{fmt.Errorf("wrap: %w", apperr.ErrExtraction), http.StatusUnprocessableEntity},
		{fmt.Errorf("wrap: %w", apperr.ErrNormalization), http.StatusUnprocessableEntity},
		{fmt.Errorf("wrap: %w", apperr.ErrVersioning), http.StatusInternalServerError},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, statusFor(tc.err), tc.err.Error())
	}
}

func TestInternalErrorsAreHidden(t *testing.T) {
	r := gin.New()
	h := NewHandler(nil, nil, nil, logger.NewNop(), nil, 0)
	r.GET("/", func(c *gin.Context) { h.respondError(c, errors.New("pq: password authentication failed")) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}

func TestHealthz(t *testing.T) {
	r := setupRouter(t)
	w := do(r, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(r, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFetchedImportRefreshesCachedEvents(t *testing.T) {
	gdb := dbtest.New(t)
	log := logger.NewNop()
	m := metrics.New("test")

	var mu sync.Mutex
	body := schedule
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(body))
	}))
	defer upstream.Close()

	cfg := config.Default()
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000
	cfg.Fetcher.Enabled = true
	cfg.Fetcher.URL = upstream.URL + "/escala.csv"

	st := store.NewGormStore(gdb, log)
	imp := importer.New(st, cfg, m, log)
	responses := NewResponseCache(cfg.Server)
	r := NewRouter(NewHandler(st, imp, lifecycle.New(st, m, log), log, cfg.Schedule.Location, cfg.Import.MaxBytes), cfg.Server, m, responses)

	_, err := imp.Process(context.Background(), importer.Request{Data: []byte(schedule), Filename: "escala.csv", MimeType: "text/csv", ActorID: "planner"})
	require.NoError(t, err)
	require.Len(t, getEvents(t, r).Events, 2)
	cached := do(r, http.MethodGet, "/api/schedule/events?date=2024-06-01", nil, "")
	assert.Equal(t, "HIT", cached.Header().Get("X-Cache"))

	mu.Lock()
	body = schedule + "9012;01/06/2024;08:00;7003\n"
	mu.Unlock()

	fetch := fetcher.NewService(cfg, imp, m, log)
	fetch.OnImported(responses.Flush)
	res, err := fetch.FetchOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, res.VersionNumber)

	fresh := do(r, http.MethodGet, "/api/schedule/events?date=2024-06-01", nil, "")
	assert.Equal(t, "MISS", fresh.Header().Get("X-Cache"), "a fetched import drops cached views")
	var resp eventsResponse
	require.NoError(t, json.Unmarshal(fresh.Body.Bytes(), &resp))
	assert.Len(t, resp.Events, 3)
}
