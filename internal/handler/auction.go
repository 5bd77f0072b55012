package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"bidhub-api/internal/middleware"
	"bidhub-api/internal/model"
	"bidhub-api/internal/repository"
	"bidhub-api/internal/service"
	"bidhub-api/pkg/apierror"
	"bidhub-api/pkg/response"
	"bidhub-api/pkg/uid"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// AuctionHandler handles lot listing and bidding HTTP requests.
type AuctionHandler struct {
	lotService *service.LotService
	bidService *service.BidService
	scheduler  *service.ReconcileScheduler
}

// NewAuctionHandler creates a new auction handler.
func NewAuctionHandler(
	lotService *service.LotService,
	bidService *service.BidService,
	scheduler *service.ReconcileScheduler,
) *AuctionHandler {
	return &AuctionHandler{
		lotService: lotService,
		bidService: bidService,
		scheduler:  scheduler,
	}
}

// CreateLotRequest is the request body for creating a listing. Money
// fields arrive as decimal strings.
type CreateLotRequest struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Price        string    `json:"price"`
	PriceBuyNow  string    `json:"price_buy_now"`
	StartDate    time.Time `json:"start_date"`
	FinishedTime time.Time `json:"finished_time"`
}

// BidRequest is the request body for a manual bid.
type BidRequest struct {
	Amount string `json:"amount"`
}

// AutoBidRequest is the request body for a proxy bid.
type AutoBidRequest struct {
	LimitBid string `json:"limit_bid"`
}

// CreateLot handles POST /api/v1/lots
func (h *AuctionHandler) CreateLot(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetTokenDataFromContext(r.Context())
	if caller == nil {
		response.Error(w, apierror.Unauthorized(""))
		return
	}

	var req CreateLotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if req.Title == "" {
		response.Error(w, apierror.BadRequest("title is required"))
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || !price.IsPositive() {
		response.Error(w, apierror.BadRequest("price must be a positive decimal"))
		return
	}
	buyNow := decimal.Zero
	if req.PriceBuyNow != "" {
		if buyNow, err = decimal.NewFromString(req.PriceBuyNow); err != nil || buyNow.IsNegative() {
			response.Error(w, apierror.BadRequest("price_buy_now must be a decimal"))
			return
		}
	}
	if req.FinishedTime.IsZero() || !req.FinishedTime.After(time.Now()) {
		response.Error(w, apierror.BadRequest("finished_time must be in the future"))
		return
	}

	lot, err := h.lotService.CreateLot(r.Context(), caller.UserID, service.CreateLotInput{
		Title:        req.Title,
		Description:  req.Description,
		Price:        price,
		PriceBuyNow:  buyNow,
		StartDate:    req.StartDate,
		FinishedTime: req.FinishedTime,
	})
	if err != nil {
		response.Error(w, toAPIError(err))
		return
	}

	response.Created(w, lot)
}

// ListLots handles GET /api/v1/lots
func (h *AuctionHandler) ListLots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.LotFilter{
		Status:  model.LotStatus(q.Get("status")),
		OwnerID: q.Get("owner_id"),
		Page:    intQuery(q.Get("page"), 1),
		Limit:   intQuery(q.Get("limit"), 0),
	}

	lots, total, err := h.lotService.ListLots(r.Context(), filter)
	if err != nil {
		response.Error(w, toAPIError(err))
		return
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	response.JSONWithMeta(w, http.StatusOK, lots, page, filter.Limit, total)
}

// pathLotID pulls the lot id path param. Malformed ids are reported as
// not found without touching the store.
func pathLotID(r *http.Request) (string, *apierror.Error) {
	id := chi.URLParam(r, "id")
	if !uid.IsValid(id) {
		return "", apierror.NotFound("lot not found")
	}
	return id, nil
}

// GetLot handles GET /api/v1/lots/{id}
func (h *AuctionHandler) GetLot(w http.ResponseWriter, r *http.Request) {
	lotID, apiErr := pathLotID(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	lot, err := h.lotService.GetLot(r.Context(), lotID)
	if err != nil {
		response.Error(w, toAPIError(err))
		return
	}
	response.OK(w, lot)
}

// PlaceBid handles POST /api/v1/lots/{id}/bid
func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetTokenDataFromContext(r.Context())
	if caller == nil {
		response.Error(w, apierror.Unauthorized(""))
		return
	}
	lotID, apiErr := pathLotID(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	var req BidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		response.Error(w, apierror.BadRequest("amount must be a positive decimal"))
		return
	}

	own, err := h.bidService.PlaceBid(r.Context(), lotID, caller.UserID, amount)
	if err != nil {
		response.Error(w, toAPIError(err))
		return
	}
	response.OK(w, own)
}

// BuyNow handles POST /api/v1/lots/{id}/buy-now
func (h *AuctionHandler) BuyNow(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetTokenDataFromContext(r.Context())
	if caller == nil {
		response.Error(w, apierror.Unauthorized(""))
		return
	}
	lotID, apiErr := pathLotID(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	own, err := h.bidService.BuyNow(r.Context(), lotID, caller.UserID)
	if err != nil {
		response.Error(w, toAPIError(err))
		return
	}
	response.OK(w, own)
}

// AutoBid handles POST /api/v1/lots/{id}/auto-bid
func (h *AuctionHandler) AutoBid(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetTokenDataFromContext(r.Context())
	if caller == nil {
		response.Error(w, apierror.Unauthorized(""))
		return
	}
	lotID, apiErr := pathLotID(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	var req AutoBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	limit, err := decimal.NewFromString(req.LimitBid)
	if err != nil || !limit.IsPositive() {
		response.Error(w, apierror.BadRequest("limit_bid must be a positive decimal"))
		return
	}

	own, err := h.bidService.AutoBid(r.Context(), lotID, caller.UserID, limit)
	if err != nil {
		response.Error(w, toAPIError(err))
		return
	}
	response.OK(w, own)
}

// EndLot handles POST /api/v1/lots/{id}/end
func (h *AuctionHandler) EndLot(w http.ResponseWriter, r *http.Request) {
	lotID, apiErr := pathLotID(r)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	if err := h.lotService.EndLot(r.Context(), lotID); err != nil {
		response.Error(w, toAPIError(err))
		return
	}
	response.OK(w, map[string]interface{}{"lot_id": lotID, "checked": true})
}

// TriggerReconcile handles GET /api/v1/auction/test - runs one sweep.
func (h *AuctionHandler) TriggerReconcile(w http.ResponseWriter, r *http.Request) {
	result := h.scheduler.RunNow(r.Context())
	response.OK(w, map[string]interface{}{"result": result})
}

// toAPIError maps service failures to wire errors. The messages stay terse;
// the status codes carry the distinction.
func toAPIError(err error) *apierror.Error {
	switch {
	case errors.Is(err, service.ErrLotNotFound):
		return apierror.NotFound("lot not found")
	case errors.Is(err, service.ErrSelfBid):
		return apierror.Forbidden("cannot place bid")
	case errors.Is(err, service.ErrLotEnded),
		errors.Is(err, service.ErrBidTooLow),
		errors.Is(err, service.ErrNoBuyNow):
		return apierror.BadRequest("cannot place bid")
	case errors.Is(err, service.ErrConflict):
		return apierror.Conflict("lot was modified concurrently, retry")
	default:
		return apierror.InternalError("")
	}
}

func intQuery(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
