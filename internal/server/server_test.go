package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/openfleet/tally/internal/audit/domain"
	auditservice "github.com/openfleet/tally/internal/audit/service"
	"github.com/openfleet/tally/internal/changefeed"
	claimservice "github.com/openfleet/tally/internal/claim/service"
	"github.com/openfleet/tally/internal/clock"
	"github.com/openfleet/tally/internal/config"
	deliverydomain "github.com/openfleet/tally/internal/delivery/domain"
	deliveryservice "github.com/openfleet/tally/internal/delivery/service"
	driverdomain "github.com/openfleet/tally/internal/driver/domain"
	driverrepo "github.com/openfleet/tally/internal/driver/repository"
	driverservice "github.com/openfleet/tally/internal/driver/service"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&driverdomain.Driver{}, &deliverydomain.Delivery{}, &auditdomain.AuditLog{}); err != nil {
		t.Fatal(err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatal(err)
	}
	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	feed := changefeed.NewHub()
	repo := driverrepo.NewRepository()

	auditSvc := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node})
	driverSvc := driverservice.NewService(driverservice.Params{
		DB: db, Log: log, Clock: fake, Repo: repo, AuditSvc: auditSvc, Feed: feed,
	})
	deliverySvc := deliveryservice.NewService(deliveryservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake, DriverRepo: repo, AuditSvc: auditSvc, Feed: feed,
	})
	claimSvc := claimservice.NewService(claimservice.Params{
		DB: db, Log: log, Clock: fake, DriverRepo: repo, AuditSvc: auditSvc, Feed: feed,
	})

	cfg := config.Config{HTTPAddr: ":0"}
	s := NewServer(ServerParams{
		Cfg:         cfg,
		Log:         log,
		Engine:      NewEngine(cfg),
		DriverSvc:   driverSvc,
		DeliverySvc: deliverySvc,
		ClaimSvc:    claimSvc,
		AuditSvc:    auditSvc,
		Feed:        feed,
	})
	RegisterRoutes(s)
	return s
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return envelope.Data
}

func decodeErrorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error response %q: %v", rec.Body.String(), err)
	}
	return envelope.Error.Type
}

func TestCreateAndGetDriver(t *testing.T) {
	s := setupServer(t)

	rec := doRequest(t, s, http.MethodPost, "/v1/drivers", gin.H{"name": "Asha"})
	assert.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, float64(driverdomain.IDBase), data["driver_id"])
	assert.Equal(t, "driver", data["role"])

	rec = doRequest(t, s, http.MethodGet, fmt.Sprintf("/v1/drivers/%d", driverdomain.IDBase), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	data = decodeData(t, rec)
	assert.Equal(t, "Asha", data["name"])
}

func TestCreateDriver_BlankNameRejected(t *testing.T) {
	s := setupServer(t)

	rec := doRequest(t, s, http.MethodPost, "/v1/drivers", gin.H{"name": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeErrorType(t, rec))
}

func TestGetDriver_NotFoundAndBadID(t *testing.T) {
	s := setupServer(t)

	rec := doRequest(t, s, http.MethodGet, "/v1/drivers/4242", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeErrorType(t, rec))

	rec = doRequest(t, s, http.MethodGet, "/v1/drivers/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeErrorType(t, rec))
}

func TestRecordDeliveryAndClaimFlow(t *testing.T) {
	s := setupServer(t)

	rec := doRequest(t, s, http.MethodPost, "/v1/drivers", gin.H{"name": "Asha"})
	assert.Equal(t, http.StatusOK, rec.Code)
	driverPath := fmt.Sprintf("/v1/drivers/%d", driverdomain.IDBase)

	rec = doRequest(t, s, http.MethodPost, driverPath+"/deliveries", gin.H{
		"amount":      150000,
		"bill_number": "B-001",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	driver := data["driver"].(map[string]any)
	assert.Equal(t, float64(150000), driver["total_collected"])
	assert.Equal(t, float64(1), driver["unclaimed_points"])

	rec = doRequest(t, s, http.MethodPost, driverPath+"/claims", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	data = decodeData(t, rec)
	assert.Equal(t, float64(0), data["unclaimed_points"])
	assert.Equal(t, float64(1), data["claimed_points"])
	assert.Equal(t, float64(0), data["total_collected"])

	rec = doRequest(t, s, http.MethodPost, driverPath+"/claims", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "nothing_to_claim", decodeErrorType(t, rec))
}

func TestRecordDelivery_Validation(t *testing.T) {
	s := setupServer(t)

	rec := doRequest(t, s, http.MethodPost, "/v1/drivers", gin.H{"name": "Asha"})
	assert.Equal(t, http.StatusOK, rec.Code)
	driverPath := fmt.Sprintf("/v1/drivers/%d", driverdomain.IDBase)

	rec = doRequest(t, s, http.MethodPost, driverPath+"/deliveries", gin.H{"amount": -100})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeErrorType(t, rec))

	rec = doRequest(t, s, http.MethodPost, "/v1/drivers/4242/deliveries", gin.H{"amount": 100})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeliveryHistoryAndReconciliation(t *testing.T) {
	s := setupServer(t)

	rec := doRequest(t, s, http.MethodPost, "/v1/drivers", gin.H{"name": "Asha"})
	assert.Equal(t, http.StatusOK, rec.Code)
	driverPath := fmt.Sprintf("/v1/drivers/%d", driverdomain.IDBase)

	for _, amount := range []int64{95000, 10000} {
		rec = doRequest(t, s, http.MethodPost, driverPath+"/deliveries", gin.H{"amount": amount})
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, driverPath+"/deliveries", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	deliveries := data["deliveries"].([]any)
	assert.Len(t, deliveries, 2)

	rec = doRequest(t, s, http.MethodGet, driverPath+"/reconciliation", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	data = decodeData(t, rec)
	assert.Equal(t, true, data["consistent"])
	assert.Equal(t, float64(1), data["accrual_entries"])
}

func TestDeleteDriver_CascadesAndDisappears(t *testing.T) {
	s := setupServer(t)

	rec := doRequest(t, s, http.MethodPost, "/v1/drivers", gin.H{"name": "Asha"})
	assert.Equal(t, http.StatusOK, rec.Code)
	driverPath := fmt.Sprintf("/v1/drivers/%d", driverdomain.IDBase)

	rec = doRequest(t, s, http.MethodPost, driverPath+"/deliveries", gin.H{"amount": 5000})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, driverPath, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, driverPath, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, driverPath, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamChangefeed_UnknownEntityRejected(t *testing.T) {
	s := setupServer(t)

	rec := doRequest(t, s, http.MethodGet, "/v1/changefeed/meter", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeErrorType(t, rec))
}

func TestListAuditLogs(t *testing.T) {
	s := setupServer(t)

	rec := doRequest(t, s, http.MethodPost, "/v1/drivers", gin.H{"name": "Asha"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/v1/audit-logs?action=driver.created", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	logs := data["audit_logs"].([]any)
	assert.Len(t, logs, 1)
}

func TestHealth(t *testing.T) {
	s := setupServer(t)

	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
