package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"meu_perito_go/config"
	"meu_perito_go/middleware"
	"meu_perito_go/models"
	"meu_perito_go/services"
	"meu_perito_go/services/i18n"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testServer struct {
	e     *echo.Echo
	audit *services.GormAuditRecorder
	db    *gorm.DB
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// unique shared-cache name isolates tests while every pooled connection sees the same data
	dbName := "mem_" + uuid.New().String()
	testDB, err := gorm.Open(sqlite.Open("file:"+dbName+"?mode=memory&cache=shared&_busy_timeout=5000"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, testDB.AutoMigrate(&models.KVEntry{}, &models.AuditLog{}))
	return testDB
}

func setupServer(t *testing.T, extractPerMinute int) *testServer {
	t.Helper()
	log := zerolog.Nop()
	testDB := setupTestDB(t)

	kv := services.NewGormKV(testDB)
	locations := services.NewLocationRegistry(kv)
	recognizer, err := services.NewRecognizer(services.DefaultRecognizerConfig())
	require.NoError(t, err)

	svc, err := services.NewDocketService(services.DocketServiceDeps{
		Store:      services.NewDocketStore(kv, locations, log),
		Locations:  locations,
		Extractor:  services.NewPDFTextExtractor(log),
		Recognizer: recognizer,
		Storage:    services.NewLocalStorage(t.TempDir()),
		Logger:     log,
	})
	require.NoError(t, err)

	catalog, err := i18n.Load(log)
	require.NoError(t, err)

	audit := services.NewGormAuditRecorder(testDB, log)
	cfg := &config.Config{Environment: "test"}

	e := echo.New()
	api := e.Group("/api")
	api.Use(middleware.Actor(), middleware.AuditContext(), middleware.Locale(cfg, catalog))
	NewDocketHandler(svc, audit, catalog, 0, log).
		Register(api, middleware.NewExtractRateLimiter(extractPerMinute).Middleware())

	return &testServer{e: e, audit: audit, db: testDB}
}

// do sends a JSON request as actor (empty id means anonymous)
func (s *testServer) do(t *testing.T, method, path string, actor services.Actor, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	s.authorize(req, actor)

	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) upload(t *testing.T, path, field, filename string, data []byte, actor services.Actor) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	s.authorize(req, actor)

	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) authorize(req *http.Request, actor services.Actor) {
	if actor.ID != "" {
		req.Header.Set(middleware.HeaderActorID, actor.ID)
		req.Header.Set(middleware.HeaderActorRole, actor.Role)
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body map[string]ErrorBody
	decode(t, rec, &body)
	return body["error"]
}
