package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fxledger/fxledger/pkg/ledger"
	"github.com/fxledger/fxledger/pkg/rates"
)

// accountHeader carries the authenticated party identifier. The identity
// provider in front of this service sets it; the ledger trusts it as
// requestingOwner.
const accountHeader = "X-Account-Id"

// Server exposes the settlement core and rate source over REST and WebSocket.
type Server struct {
	ledger *ledger.Ledger
	rates  rates.Source
	router *mux.Router
	hub    *Hub
	srv    *http.Server
	log    *zap.SugaredLogger

	corsOrigins []string
}

// NewServer wires routes for the given core and rate source.
func NewServer(l *ledger.Ledger, src rates.Source, corsOrigins []string, log *zap.SugaredLogger) *Server {
	s := &Server{
		ledger:      l,
		rates:       src,
		router:      mux.NewRouter(),
		hub:         NewHub(log),
		log:         log,
		corsOrigins: corsOrigins,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Orders
	api.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/orders", s.handleListOrders).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/settle", s.handleSettleOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")

	// Balances
	api.HandleFunc("/balances/{owner}", s.handleListBalances).Methods("GET")
	api.HandleFunc("/balances/{owner}/{asset}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/balances/{owner}/{asset}/deposit", s.handleDeposit).Methods("POST")

	// Exchange rates
	api.HandleFunc("/rates/latest", s.handleLatestRates).Methods("GET")
	api.HandleFunc("/rates/timeseries", s.handleTimeSeries).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the fully wrapped http handler (used by tests).
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", accountHeader},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start runs the hub and serves until Shutdown.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.log.Infow("api_server_starting", "addr", addr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// BroadcastRates pushes a rate snapshot to the "rates" channel. Wired as the
// poller callback.
func (s *Server) BroadcastRates(latest *rates.LatestResponse) {
	s.hub.Broadcast("rates", RateUpdate{
		Type:  "rates",
		Base:  latest.Base,
		Date:  latest.Date,
		Rates: latest.Rates,
	})
}

// ==============================
// Order handlers
// ==============================

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(accountHeader)
	if owner == "" {
		respondError(w, http.StatusUnauthorized, "missing "+accountHeader+" header", "unauthorized", false)
		return
	}

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", "bad_request", false)
		return
	}

	pair, err := ledger.ParsePair(req.Pair)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), "bad_request", false)
		return
	}
	side, err := ledger.ParseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), "bad_request", false)
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid quantity", "bad_request", false)
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid price", "bad_request", false)
		return
	}

	o, err := s.ledger.CreateOrder(owner, pair, side, quantity, price)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSONStatus(w, http.StatusCreated, orderInfo(o))
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")

	var (
		orders []*ledger.Order
		err    error
	)
	if owner != "" {
		orders, err = s.ledger.Orders(owner)
	} else {
		orders, err = s.ledger.AllOrders()
	}
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}

	out := make([]OrderInfo, len(orders))
	for i, o := range orders {
		out[i] = orderInfo(o)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.ledger.GetOrder(mux.Vars(r)["id"])
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, orderInfo(o))
}

func (s *Server) handleSettleOrder(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(accountHeader)
	if owner == "" {
		respondError(w, http.StatusUnauthorized, "missing "+accountHeader+" header", "unauthorized", false)
		return
	}

	res, err := s.ledger.Settle(mux.Vars(r)["id"], owner)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}

	s.hub.Broadcast("orders:"+res.Order.Owner, OrderEvent{
		Type:      "order",
		OrderID:   res.Order.ID,
		Owner:     res.Order.Owner,
		Status:    res.Order.Status.String(),
		Timestamp: res.Debited.UpdatedAt,
	})

	respondJSON(w, SettleResponse{
		Order:    orderInfo(res.Order),
		Debited:  balanceInfo(res.Debited),
		Credited: balanceInfo(res.Credited),
	})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(accountHeader)
	if owner == "" {
		respondError(w, http.StatusUnauthorized, "missing "+accountHeader+" header", "unauthorized", false)
		return
	}

	o, err := s.ledger.Cancel(mux.Vars(r)["id"], owner)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}

	s.hub.Broadcast("orders:"+o.Owner, OrderEvent{
		Type:      "order",
		OrderID:   o.ID,
		Owner:     o.Owner,
		Status:    o.Status.String(),
		Timestamp: time.Now().UTC(),
	})
	respondJSON(w, orderInfo(o))
}

// ==============================
// Balance handlers
// ==============================

func (s *Server) handleListBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := s.ledger.Balances(mux.Vars(r)["owner"])
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}

	out := make([]BalanceInfo, len(balances))
	for i, b := range balances {
		out[i] = balanceInfo(b)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	b, err := s.ledger.GetBalance(vars["owner"], strings.ToUpper(vars["asset"]))
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, balanceInfo(b))
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	owner := vars["owner"]
	asset := strings.ToUpper(vars["asset"])

	requester := r.Header.Get(accountHeader)
	if requester == "" {
		respondError(w, http.StatusUnauthorized, "missing "+accountHeader+" header", "unauthorized", false)
		return
	}
	if requester != owner {
		respondError(w, http.StatusForbidden, "cannot deposit into another party's wallet", "forbidden", false)
		return
	}

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", "bad_request", false)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", "bad_request", false)
		return
	}

	b, err := s.ledger.Deposit(owner, asset, amount)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	respondJSON(w, balanceInfo(b))
}

// ==============================
// Rate handlers
// ==============================

func (s *Server) handleLatestRates(w http.ResponseWriter, r *http.Request) {
	base := r.URL.Query().Get("base")
	if base == "" {
		base = "USD"
	}

	latest, err := s.rates.Latest(r.Context(), strings.ToUpper(base))
	if err != nil {
		respondError(w, http.StatusBadGateway, "failed to fetch exchange rates", "rate_source_error", true)
		return
	}
	respondJSON(w, latest)
}

func (s *Server) handleTimeSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	base := q.Get("base")
	if base == "" {
		base = "USD"
	}

	start, err := time.Parse(rates.DateFormat, q.Get("start_date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid start_date, want YYYY-MM-DD", "bad_request", false)
		return
	}
	end, err := time.Parse(rates.DateFormat, q.Get("end_date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid end_date, want YYYY-MM-DD", "bad_request", false)
		return
	}

	var symbols []string
	if raw := q.Get("symbols"); raw != "" {
		symbols = strings.Split(strings.ToUpper(raw), ",")
	}

	series, err := s.rates.TimeSeries(r.Context(), start, end, strings.ToUpper(base), symbols)
	if err != nil {
		respondError(w, http.StatusBadGateway, "failed to fetch time series", "rate_source_error", true)
		return
	}
	respondJSON(w, series)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

// respondLedgerError maps settlement-core error kinds to HTTP statuses and
// stable wire codes.
func (s *Server) respondLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		respondError(w, http.StatusBadRequest, err.Error(), "invalid_amount", false)
	case errors.Is(err, ledger.ErrForbidden):
		respondError(w, http.StatusForbidden, err.Error(), "forbidden", false)
	case errors.Is(err, ledger.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, err.Error(), "not_found", false)
	case errors.Is(err, ledger.ErrWalletNotFound):
		respondError(w, http.StatusNotFound, err.Error(), "wallet_not_found", false)
	case errors.Is(err, ledger.ErrAlreadySettled):
		respondError(w, http.StatusConflict, err.Error(), "already_settled", false)
	case errors.Is(err, ledger.ErrConflict):
		respondError(w, http.StatusConflict, err.Error(), "conflict", true)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		respondError(w, http.StatusUnprocessableEntity, err.Error(), "insufficient_funds", false)
	default:
		s.log.Errorw("internal_error", "err", err)
		respondError(w, http.StatusInternalServerError, "internal error", "internal", false)
	}
}

func respondJSON(w http.ResponseWriter, data any) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg, code string, retryable bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:     msg,
		Code:      code,
		Retryable: retryable,
	})
}
