// Package api exposes the console over HTTP: a REST surface for the
// browser UI and a WebSocket that pushes account updates and relays
// transactions to the browser wallet for signing.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/driftdesk/params"
	"github.com/uhyunpark/driftdesk/pkg/account"
	"github.com/uhyunpark/driftdesk/pkg/apperr"
	"github.com/uhyunpark/driftdesk/pkg/console"
	"github.com/uhyunpark/driftdesk/pkg/drift"
	"github.com/uhyunpark/driftdesk/pkg/order"
	"github.com/uhyunpark/driftdesk/pkg/storage"
	"github.com/uhyunpark/driftdesk/pkg/txn"
	"github.com/uhyunpark/driftdesk/pkg/wallet"
)

// Console is the session surface the server drives; *console.Console
// implements it
type Console interface {
	Network() params.Network
	Networks() []string
	SwitchNetwork(ctx context.Context, name string) error

	Wallet() wallet.Wallet
	ConnectWallet(ctx context.Context, w wallet.Wallet) ([]*drift.UserAccount, error)
	DisconnectWallet()
	OnUpdate(fn func(console.Update))

	Snapshot() account.Snapshot
	Selected() (uint16, bool)
	Account(subAccountID uint16) (*drift.UserAccount, bool)
	Refresh(ctx context.Context) ([]*drift.UserAccount, error)
	SwitchActive(subAccountID uint16) error
	ViewWallet(ctx context.Context, address string) ([]*drift.UserAccount, error)
	CreateSubAccount(ctx context.Context, name string) (txn.Result, uint16, error)

	PreviewOrder(form order.Form) ([]drift.OrderParams, error)
	PlaceOrder(ctx context.Context, subAccountID uint16, form order.Form) (console.OrderResult, error)
	Deposit(ctx context.Context, subAccountID, marketIndex uint16, amount string) (txn.Result, error)
	Withdraw(ctx context.Context, subAccountID, marketIndex uint16, amount string) (txn.Result, error)
	History(limit int) ([]*storage.Entry, error)
}

// signTimeout bounds how long a request waits for the browser wallet
const signTimeout = 2 * time.Minute

// Server handles REST API and WebSocket connections
type Server struct {
	console  Console
	router   *mux.Router
	hub      *Hub // WebSocket hub
	validate *validator.Validate
	origins  []string
	logger   *zap.SugaredLogger
}

// NewServer creates a new API server
func NewServer(c Console, cfg params.API, logger *zap.SugaredLogger) *Server {
	s := &Server{
		console:  c,
		router:   mux.NewRouter(),
		hub:      NewHub(logger),
		validate: validator.New(),
		origins:  cfg.AllowedOrigins,
		logger:   logger,
	}
	s.hub.onLeave = s.releaseBridge
	c.OnUpdate(s.broadcastAccounts)

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Network endpoints
	api.HandleFunc("/network", s.handleGetNetwork).Methods("GET")
	api.HandleFunc("/network", s.handleSwitchNetwork).Methods("POST")

	// Account endpoints
	api.HandleFunc("/accounts", s.handleGetAccounts).Methods("GET")
	api.HandleFunc("/accounts", s.handleCreateAccount).Methods("POST")
	api.HandleFunc("/accounts/refresh", s.handleRefresh).Methods("POST")
	api.HandleFunc("/accounts/{id:[0-9]+}/select", s.handleSelect).Methods("POST")
	api.HandleFunc("/accounts/{id:[0-9]+}/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/accounts/{id:[0-9]+}/balances", s.handleGetBalances).Methods("GET")
	api.HandleFunc("/wallets/{address}/accounts", s.handleViewWallet).Methods("GET")

	// Submission endpoints
	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders/preview", s.handlePreviewOrder).Methods("POST")
	api.HandleFunc("/deposits", s.handleTransfer(console.OpDeposit)).Methods("POST")
	api.HandleFunc("/withdrawals", s.handleTransfer(console.OpWithdraw)).Methods("POST")
	api.HandleFunc("/history", s.handleHistory).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in the CORS policy
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is done
func (s *Server) Start(ctx context.Context, addr string) error {
	// Start WebSocket hub
	go s.hub.Run(ctx)

	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("api_server_starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down api server: %w", err)
		}
		return nil
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetNetwork(w http.ResponseWriter, r *http.Request) {
	n := s.console.Network()
	names := s.console.Networks()
	sort.Strings(names)
	respondJSON(w, NetworkInfo{Name: n.Name, RPCURL: n.RPCURL, Networks: names})
}

func (s *Server) handleSwitchNetwork(w http.ResponseWriter, r *http.Request) {
	var req NetworkRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.console.SwitchNetwork(r.Context(), req.Name); err != nil {
		s.respondAppError(w, err)
		return
	}
	s.handleGetNetwork(w, r)
}

func (s *Server) handleGetAccounts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.accountsResponse())
}

func (s *Server) accountsResponse() AccountsResponse {
	snap := s.console.Snapshot()
	resp := AccountsResponse{
		Network:  s.console.Network().Name,
		Loading:  snap.Loading,
		Accounts: accountInfos(snap.Accounts),
	}
	if !snap.Authority.IsZero() {
		resp.Authority = snap.Authority.String()
	}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
	}
	if id, ok := s.console.Selected(); ok {
		resp.Selected = &id
	}
	return resp
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if _, err := s.console.Refresh(r.Context()); err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, s.accountsResponse())
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), signTimeout)
	defer cancel()

	res, id, err := s.console.CreateSubAccount(ctx, req.Name)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, SubmitResponse{Status: "submitted", Signature: res.Signature.String(), SubAccountID: &id})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	id, ok := subAccountParam(w, r)
	if !ok {
		return
	}
	if err := s.console.SwitchActive(id); err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, s.accountsResponse())
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.accountParam(w, r)
	if !ok {
		return
	}
	rows := account.OpenOrders(acc, s.console.Network())
	if rows == nil {
		rows = []account.OrderRow{}
	}
	respondJSON(w, rows)
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.accountParam(w, r)
	if !ok {
		return
	}
	respondJSON(w, account.Balances(acc, s.console.Network().SpotMarkets))
}

func (s *Server) handleViewWallet(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	accounts, err := s.console.ViewWallet(r.Context(), address)
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	network := s.console.Network()
	details := make([]AccountDetail, 0, len(accounts))
	for _, a := range accounts {
		details = append(details, AccountDetail{
			AccountInfo: accountInfo(a),
			Balances:    account.Balances(a, network.SpotMarkets),
			Orders:      account.OpenOrders(a, network),
		})
	}
	respondJSON(w, details)
}

func (s *Server) handlePreviewOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if !s.decode(w, r, &req) {
		return
	}
	orders, err := s.console.PreviewOrder(req.Form)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, orders)
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, ok := s.targetSubAccount(w, req.SubAccountID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), signTimeout)
	defer cancel()

	res, err := s.console.PlaceOrder(ctx, id, req.Form)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, SubmitResponse{
		Status:       "submitted",
		Signature:    res.Signature.String(),
		SubAccountID: &id,
		Orders:       res.Orders,
	})
}

func (s *Server) handleTransfer(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TransferRequest
		if !s.decode(w, r, &req) {
			return
		}
		id, ok := s.targetSubAccount(w, req.SubAccountID)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), signTimeout)
		defer cancel()

		var (
			res txn.Result
			err error
		)
		if kind == console.OpDeposit {
			res, err = s.console.Deposit(ctx, id, req.MarketIndex, req.Amount)
		} else {
			res, err = s.console.Withdraw(ctx, id, req.MarketIndex, req.Amount)
		}
		if err != nil {
			s.respondAppError(w, err)
			return
		}
		respondJSON(w, SubmitResponse{Status: "submitted", Signature: res.Signature.String(), SubAccountID: &id})
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", raw)
			return
		}
		limit = n
	}
	entries, err := s.console.History(limit)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	if entries == nil {
		entries = []*storage.Entry{}
	}
	respondJSON(w, HistoryResponse{Entries: entries})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok", "network": s.console.Network().Name})
}

// ==============================
// Session wiring
// ==============================

// broadcastAccounts pushes an accepted account change to every client
func (s *Server) broadcastAccounts(u console.Update) {
	s.hub.BroadcastToChannel(ChannelAccounts, AccountsUpdate{
		Type:     "accounts",
		Network:  u.Network,
		Selected: u.Selected,
		Accounts: accountInfos(u.Accounts),
	})
}

// connectBridge makes a browser wallet the session wallet
func (s *Server) connectBridge(b *bridgeWallet) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.console.ConnectWallet(ctx, b); err != nil {
		s.logger.Warnw("wallet_bridge_connect_failed", "wallet", b.key, "error", err)
	}
}

// releaseBridge disconnects the session wallet when its socket goes away
func (s *Server) releaseBridge(c *Client) {
	if c.bridge == nil {
		return
	}
	if current, ok := s.console.Wallet().(*bridgeWallet); ok && current == c.bridge {
		s.console.DisconnectWallet()
	}
}

// ==============================
// Helper Functions
// ==============================

// decode reads a JSON body into dst and validates it. On failure the error
// response is written and false returned.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondKind(w, apperr.Validation, "invalid request body", err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		respondKind(w, apperr.Validation, "invalid request", err.Error())
		return false
	}
	return true
}

func subAccountParam(w http.ResponseWriter, r *http.Request) (uint16, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		respondKind(w, apperr.Validation, "invalid sub-account id", raw)
		return 0, false
	}
	return uint16(id), true
}

func (s *Server) accountParam(w http.ResponseWriter, r *http.Request) (*drift.UserAccount, bool) {
	id, ok := subAccountParam(w, r)
	if !ok {
		return nil, false
	}
	acc, ok := s.console.Account(id)
	if !ok {
		respondError(w, http.StatusNotFound, "sub-account not found", strconv.Itoa(int(id)))
		return nil, false
	}
	return acc, true
}

// targetSubAccount resolves an optional id against the selection
func (s *Server) targetSubAccount(w http.ResponseWriter, id *uint16) (uint16, bool) {
	if id != nil {
		return *id, true
	}
	if selected, ok := s.console.Selected(); ok {
		return selected, true
	}
	respondKind(w, apperr.Validation, "no sub-account selected", "")
	return 0, false
}

// statusFor maps an error kind to its HTTP status
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.WalletNotConnected:
		return http.StatusUnauthorized
	case apperr.UserRejectedSignature:
		return http.StatusConflict
	case apperr.ClientNotReady:
		return http.StatusServiceUnavailable
	case apperr.BuildFailed, apperr.SubmissionFailed, apperr.RefreshFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	if status := statusFor(kind); status >= 500 {
		s.logger.Warnw("api_request_failed", "kind", kind.String(), "error", err)
	}
	var ae *apperr.Error
	message := ""
	if errors.As(err, &ae) && ae.Err != nil {
		message = ae.Err.Error()
	}
	respondKind(w, kind, err.Error(), message)
}

func respondKind(w http.ResponseWriter, kind apperr.Kind, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(kind))
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Kind:    kind.String(),
		Message: message,
	})
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
