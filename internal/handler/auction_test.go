package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bidhub-api/internal/config"
	"bidhub-api/internal/events"
	"bidhub-api/internal/handler"
	"bidhub-api/internal/middleware"
	"bidhub-api/internal/model"
	"bidhub-api/internal/repository"
	"bidhub-api/internal/router"
	"bidhub-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func testAuctionConfig() config.AuctionConfig {
	return config.AuctionConfig{
		PercentAutoBid:    5,
		SnipeWindow:       3 * time.Minute,
		SnipeExtension:    3 * time.Minute,
		ReconcileInterval: time.Minute,
		NoBidExtension:    24 * time.Hour,
		BidHideGrace:      10 * time.Minute,
		DefaultPageLimit:  20,
		MaxPageLimit:      100,
	}
}

// newTestServer wires the full stack on the in-memory store with header
// identity (no token service).
func newTestServer(t *testing.T) (*chi.Mux, *repository.MemoryLotRepository) {
	t.Helper()

	repo := repository.NewMemoryLotRepository()
	cfg := testAuctionConfig()

	closeService := service.NewCloseService(repo, repo, service.LogNotifier{}, events.NoopPublisher{}, cfg)
	reconcileService := service.NewReconcileService(repo, events.NoopPublisher{}, cfg)
	reconcileService.SetCloser(closeService)
	scheduler := service.NewReconcileScheduler(reconcileService, time.Hour)
	t.Cleanup(scheduler.Stop)

	bidService := service.NewBidService(repo, repo, nil, service.LogNotifier{}, events.NoopPublisher{}, cfg)
	bidService.SetScheduler(scheduler)
	lotService := service.NewLotService(repo, cfg, 0)
	lotService.SetCloser(closeService)

	mux := router.New(router.Config{
		Handler:        handler.New("test"),
		AuctionHandler: handler.NewAuctionHandler(lotService, bidService, scheduler),
		AdminHandler:   handler.NewAdminHandler(repo, scheduler, "memory"),
		AuthMiddleware: middleware.NewAuthMiddleware(middleware.AuthConfig{}),
	})
	return mux, repo
}

func doJSON(t *testing.T, mux http.Handler, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		assert.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestCreateAndGetLot(t *testing.T) {
	mux, _ := newTestServer(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/lots", "seller", map[string]interface{}{
		"title":         "vintage radio",
		"price":         "100",
		"finished_time": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	env := decodeEnvelope(t, rec)
	check.Equal(t, "success", env.Status)

	var created model.Lot
	assert.NoError(t, json.Unmarshal(env.Data, &created))
	check.Equal(t, "seller", created.OwnerID)
	check.Equal(t, model.LotStatusInitial, created.Status)

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/lots/"+created.ID, "seller", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var fetched model.Lot
	assert.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &fetched))
	check.Equal(t, created.ID, fetched.ID)
}

func TestCreateLotValidation(t *testing.T) {
	mux, _ := newTestServer(t)

	future := time.Now().Add(time.Hour).Format(time.RFC3339)
	cases := map[string]map[string]interface{}{
		"missing title":  {"price": "100", "finished_time": future},
		"negative price": {"title": "x", "price": "-5", "finished_time": future},
		"garbage price":  {"title": "x", "price": "abc", "finished_time": future},
		"past deadline":  {"title": "x", "price": "100", "finished_time": time.Now().Add(-time.Hour).Format(time.RFC3339)},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doJSON(t, mux, http.MethodPost, "/api/v1/lots", "seller", body)
			check.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRequestsWithoutIdentityRejected(t *testing.T) {
	mux, _ := newTestServer(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/lots", "", map[string]interface{}{
		"title": "x", "price": "100",
	})
	check.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBidFlow(t *testing.T) {
	mux, repo := newTestServer(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/lots", "seller", map[string]interface{}{
		"title":         "painting",
		"price":         "100",
		"finished_time": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	var lot model.Lot
	assert.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &lot))

	// Seller cannot bid on their own lot.
	rec = doJSON(t, mux, http.MethodPost, "/api/v1/lots/"+lot.ID+"/bid", "seller",
		map[string]string{"amount": "120"})
	check.Equal(t, http.StatusForbidden, rec.Code)

	// Someone else can.
	rec = doJSON(t, mux, http.MethodPost, "/api/v1/lots/"+lot.ID+"/bid", "alice",
		map[string]string{"amount": "120"})
	assert.Equal(t, http.StatusOK, rec.Code)

	var own model.Ownership
	assert.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &own))
	check.Equal(t, "alice", own.UserID)
	check.True(t, own.Amount.Equal(decimal.NewFromInt(120)))

	// A lower follow-up from the same bidder is rejected.
	rec = doJSON(t, mux, http.MethodPost, "/api/v1/lots/"+lot.ID+"/bid", "alice",
		map[string]string{"amount": "110"})
	check.Equal(t, http.StatusBadRequest, rec.Code)

	// Garbage amounts are rejected before the service runs.
	rec = doJSON(t, mux, http.MethodPost, "/api/v1/lots/"+lot.ID+"/bid", "alice",
		map[string]string{"amount": "not-a-number"})
	check.Equal(t, http.StatusBadRequest, rec.Code)

	stored, err := repo.FindByID(context.Background(), lot.ID)
	assert.NoError(t, err)
	check.Equal(t, model.LotStatusActive, stored.Status)
}

func TestAutoBidAndReconcileEndpoint(t *testing.T) {
	mux, _ := newTestServer(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/lots", "seller", map[string]interface{}{
		"title":         "clock",
		"price":         "100",
		"finished_time": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	var lot model.Lot
	assert.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &lot))

	rec = doJSON(t, mux, http.MethodPost, "/api/v1/lots/"+lot.ID+"/bid", "bob",
		map[string]string{"amount": "120"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/v1/lots/"+lot.ID+"/auto-bid", "alice",
		map[string]string{"limit_bid": "200"})
	assert.Equal(t, http.StatusOK, rec.Code)

	var own model.Ownership
	assert.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &own))
	check.True(t, own.IsAuto)
	check.True(t, own.LimitBid.Equal(decimal.NewFromInt(200)))

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/auction/test", "alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The sweep raised the proxy bidder over the leader.
	rec = doJSON(t, mux, http.MethodGet, "/api/v1/lots/"+lot.ID, "alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var fetched model.Lot
	assert.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &fetched))
	check.Equal(t, "alice", fetched.HighestOwnership().UserID)
}

func TestBuyNowEndpoint(t *testing.T) {
	mux, _ := newTestServer(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/lots", "seller", map[string]interface{}{
		"title":         "guitar",
		"price":         "100",
		"price_buy_now": "500",
		"finished_time": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	var lot model.Lot
	assert.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &lot))

	rec = doJSON(t, mux, http.MethodPost, "/api/v1/lots/"+lot.ID+"/buy-now", "alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Further bids hit a closed lot.
	rec = doJSON(t, mux, http.MethodPost, "/api/v1/lots/"+lot.ID+"/bid", "bob",
		map[string]string{"amount": "600"})
	check.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListLotsEnvelope(t *testing.T) {
	mux, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, mux, http.MethodPost, "/api/v1/lots", "seller", map[string]interface{}{
			"title":         fmt.Sprintf("lot %d", i),
			"price":         "100",
			"finished_time": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
		})
		assert.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/lots?limit=2", "alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Meta   struct {
			Page  int   `json:"page"`
			Limit int   `json:"limit"`
			Total int64 `json:"total"`
		} `json:"meta"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	check.Equal(t, "success", body.Status)
	check.Equal(t, int64(3), body.Meta.Total)
	check.Equal(t, 2, body.Meta.Limit)

	var lots []model.Lot
	assert.NoError(t, json.Unmarshal(body.Data, &lots))
	check.Equal(t, 2, len(lots))
}

func TestMalformedLotIDIsNotFound(t *testing.T) {
	mux, _ := newTestServer(t)

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/lots/not-a-uuid", "alice", nil)
	check.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusEndpointIsPublic(t *testing.T) {
	mux, _ := newTestServer(t)

	rec := doJSON(t, mux, http.MethodGet, "/api/status", "", nil)
	check.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminStats(t *testing.T) {
	mux, _ := newTestServer(t)

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/admin/stats", "alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]interface{}
	assert.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &stats))
	check.Equal(t, "memory", stats["db_type"])
}
