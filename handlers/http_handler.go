package handlers

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robbie-med/Sjprice/interfaces"
	"github.com/robbie-med/Sjprice/logging"
	"github.com/robbie-med/Sjprice/pricing"
	"github.com/robbie-med/Sjprice/session"
)

// SessionService is the part of the session the handlers drive.
type SessionService interface {
	Snapshot() session.Snapshot
	Search(query string) session.Snapshot
	SetQuery(query string) session.Snapshot
	ItemDetail(index int) (session.ItemDetail, error)
	AddItem(index int) (session.Snapshot, error)
	RemoveEntry(position int) (session.Snapshot, error)
	ChangeQuantity(position, delta int) (session.Snapshot, error)
	ClearCart(confirm bool) (session.Snapshot, error)
	SetMode(mode pricing.Mode, payerID string) (session.Snapshot, error)
	RetryPayer() (session.Snapshot, error)
}

// HTTPHandlerImpl serves the API with injected dependencies
type HTTPHandlerImpl struct {
	session   SessionService
	dataStore interfaces.DataStore
	validator interfaces.DataValidator
	health    interfaces.HealthChecker
	reloader  interfaces.Scheduler
	startTime time.Time
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(sess SessionService, dataStore interfaces.DataStore, validator interfaces.DataValidator,
	health interfaces.HealthChecker, reloader interfaces.Scheduler) *HTTPHandlerImpl {
	return &HTTPHandlerImpl{
		session:   sess,
		dataStore: dataStore,
		validator: validator,
		health:    health,
		reloader:  reloader,
		startTime: time.Now(),
	}
}

// HealthResponse defines the structure for consistent JSON ordering
type HealthResponse struct {
	Status        string         `json:"status"`
	Uptime        string         `json:"uptime"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Data          map[string]any `json:"data"`
	System        map[string]any `json:"system"`
}

// HealthCheck returns server health information
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status, data, httpStatus := h.health.HealthCheck()
	uptime := time.Since(h.startTime)

	response := HealthResponse{
		Status:        status,
		Uptime:        formatUptimeHuman(uptime),
		UptimeSeconds: uptime.Seconds(),
		Data:          data,
		System: map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb": int(m.Alloc / 1024 / 1024),
				"sys_mb":   int(m.Sys / 1024 / 1024),
				"num_gc":   m.NumGC,
			},
		},
	}

	h.RespondWithJSON(w, httpStatus, response)
}

// RespondWithJSON writes a JSON response
func (h *HTTPHandlerImpl) RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	RespondWithJSON(w, code, payload)
}

// GetSnapshot returns the current session snapshot
func (h *HTTPHandlerImpl) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	h.RespondWithJSON(w, http.StatusOK, h.session.Snapshot())
}

// Search runs the query in ?q= immediately
func (h *HTTPHandlerImpl) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if err := h.validator.ValidateQuery(query); err != nil {
		logging.Warn("Unusual user input", "query", query)
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.RespondWithJSON(w, http.StatusOK, h.session.Search(query))
}

type queryRequest struct {
	Query string `json:"query"`
}

// SetQuery records a query change; the search runs after the debounce delay
func (h *HTTPHandlerImpl) SetQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeBody(r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validator.ValidateQuery(req.Query); err != nil {
		logging.Warn("Unusual user input", "query", req.Query)
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.RespondWithJSON(w, http.StatusAccepted, h.session.SetQuery(req.Query))
}

// GetItem returns the detail view of one catalog item
func (h *HTTPHandlerImpl) GetItem(w http.ResponseWriter, r *http.Request) {
	index, ok := intParam(w, r, "index")
	if !ok {
		return
	}

	detail, err := h.session.ItemDetail(index)
	if err != nil {
		RespondWithDomainError(w, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, detail)
}

// GetPayers returns the payer directory
func (h *HTTPHandlerImpl) GetPayers(w http.ResponseWriter, r *http.Request) {
	h.RespondWithJSON(w, http.StatusOK, h.dataStore.GetPayers())
}

type pricingRequest struct {
	Mode    pricing.Mode `json:"mode"`
	PayerID string       `json:"payer_id"`
}

// SetPricing switches the pricing mode
func (h *HTTPHandlerImpl) SetPricing(w http.ResponseWriter, r *http.Request) {
	var req pricingRequest
	if err := decodeBody(r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Mode == pricing.ModePayer && req.PayerID == "" {
		RespondWithError(w, http.StatusBadRequest, "payer_id is required for payer pricing")
		return
	}

	snap, err := h.session.SetMode(req.Mode, req.PayerID)
	if err != nil {
		RespondWithDomainError(w, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, snap)
}

// RetryPricing reloads the selected payer's rates after a failure
func (h *HTTPHandlerImpl) RetryPricing(w http.ResponseWriter, r *http.Request) {
	snap, err := h.session.RetryPayer()
	if err != nil {
		RespondWithDomainError(w, err)
		return
	}
	h.RespondWithJSON(w, http.StatusAccepted, snap)
}

type addItemRequest struct {
	Index *int `json:"index"`
}

// AddCartItem adds one of an item to the cart
func (h *HTTPHandlerImpl) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeBody(r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Index == nil {
		RespondWithError(w, http.StatusBadRequest, "index is required")
		return
	}

	snap, err := h.session.AddItem(*req.Index)
	if err != nil {
		RespondWithDomainError(w, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, snap)
}

type quantityRequest struct {
	Delta int `json:"delta"`
}

// ChangeCartQuantity adjusts the quantity of a cart entry
func (h *HTTPHandlerImpl) ChangeCartQuantity(w http.ResponseWriter, r *http.Request) {
	position, ok := intParam(w, r, "position")
	if !ok {
		return
	}

	var req quantityRequest
	if err := decodeBody(r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Delta == 0 {
		RespondWithError(w, http.StatusBadRequest, "delta must not be zero")
		return
	}

	snap, err := h.session.ChangeQuantity(position, req.Delta)
	if err != nil {
		RespondWithDomainError(w, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, snap)
}

// RemoveCartEntry drops a cart entry
func (h *HTTPHandlerImpl) RemoveCartEntry(w http.ResponseWriter, r *http.Request) {
	position, ok := intParam(w, r, "position")
	if !ok {
		return
	}

	snap, err := h.session.RemoveEntry(position)
	if err != nil {
		RespondWithDomainError(w, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, snap)
}

// ClearCart empties the cart; ?confirm=true is required when it is not empty
func (h *HTTPHandlerImpl) ClearCart(w http.ResponseWriter, r *http.Request) {
	confirm, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))

	snap, err := h.session.ClearCart(confirm)
	if err != nil {
		RespondWithDomainError(w, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, snap)
}

// Reload reloads the catalog and payer directory now
func (h *HTTPHandlerImpl) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.reloader.Reload(); err != nil {
		RespondWithDomainError(w, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, h.session.Snapshot())
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := chi.URLParam(r, name)
	v, err := strconv.Atoi(raw)
	if err != nil {
		logging.Warn("Unusual user input", name, raw)
		RespondWithError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}
