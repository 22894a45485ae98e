package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"PoolCore/internal/core"
	"PoolCore/internal/observability"
	"PoolCore/internal/orders"
	"PoolCore/internal/poolerr"
	"PoolCore/internal/query"
	"PoolCore/internal/registry"
)

// HTTPServer is the JSON API: live views, settlement history, order flow,
// lending, and governance, plus health and metrics endpoints.
type HTTPServer struct {
	engine  *core.Engine
	queries *query.Service
	health  *observability.HealthChecker
	server  *http.Server
	log     zerolog.Logger
}

func NewHTTPServer(addr string, engine *core.Engine, queries *query.Service, health *observability.HealthChecker, log zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		engine:  engine,
		queries: queries,
		health:  health,
		log:     log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.LivenessHandler)
	mux.HandleFunc("/readyz", health.ReadinessHandler)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/pool", s.handlePoolState)
	mux.HandleFunc("GET /v1/pool/nav", s.handleComputeNav)
	mux.HandleFunc("GET /v1/assets", s.handleListAssets)
	mux.HandleFunc("GET /v1/assets/{id}", s.handleGetAsset)
	mux.HandleFunc("GET /v1/orders", s.handleListOrders)
	mux.HandleFunc("GET /v1/orders/{id}/history", s.handleOrderHistory)
	mux.HandleFunc("GET /v1/history", s.handleHistory)
	mux.HandleFunc("GET /v1/accounts/{account}/shares", s.handleAccountShares)

	mux.HandleFunc("POST /v1/orders", s.handlePlaceOrder)
	mux.HandleFunc("POST /v1/orders/{id}/fill", s.handleFillOrder)
	mux.HandleFunc("POST /v1/orders/{id}/cancel", s.handleCancelOrder)
	mux.HandleFunc("POST /v1/lending/borrow", s.handleBorrow)
	mux.HandleFunc("POST /v1/lending/repay", s.handleRepay)
	mux.HandleFunc("POST /v1/funding/accrue", s.handleAccrueFunding)

	mux.HandleFunc("POST /v1/admin/assets", s.handleAddAsset)
	mux.HandleFunc("POST /v1/admin/assets/{id}/params", s.handleSetAssetParams)
	mux.HandleFunc("POST /v1/admin/assets/{id}/flags", s.handleSetAssetFlags)
	mux.HandleFunc("POST /v1/admin/assets/{id}/funding", s.handleSetFundingParams)
	mux.HandleFunc("POST /v1/admin/brokers", s.handleAddBroker)
	mux.HandleFunc("DELETE /v1/admin/brokers/{addr}", s.handleRemoveBroker)
	mux.HandleFunc("POST /v1/admin/config", s.handleSetConfig)
	mux.HandleFunc("POST /v1/admin/projections/rebuild", s.handleRebuildProjections)

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Start serves until ctx is cancelled (blocking).
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.log.Info().Msg("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// --- Read endpoints ---

func (s *HTTPServer) handlePoolState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queries.GetPoolState())
}

func (s *HTTPServer) handleComputeNav(w http.ResponseWriter, r *http.Request) {
	// mark prices arrive as query params: price.{asset_id}={price}
	mark := make(map[registry.AssetID]int64)
	for key, vals := range r.URL.Query() {
		var id uint8
		if _, err := fmt.Sscanf(key, "price.%d", &id); err != nil || len(vals) == 0 {
			continue
		}
		price, err := strconv.ParseInt(vals[0], 10, 64)
		if err != nil {
			writeError(w, poolerr.Detail(poolerr.ErrInvalidParams, "price %q", vals[0]))
			return
		}
		mark[registry.AssetID(id)] = price
	}

	nav, err := s.engine.ComputeNav(mark)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"nav": nav})
}

func (s *HTTPServer) handleListAssets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queries.ListAssets())
}

func (s *HTTPServer) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	id, err := pathAssetID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	info, err := s.queries.GetAssetInfo(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *HTTPServer) handleListOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queries.ListPendingOrders())
}

func (s *HTTPServer) handleOrderHistory(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathOrderID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	records, err := s.queries.GetOrderHistory(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	var filter query.HistoryFilter
	q := r.URL.Query()

	if v := q.Get("account"); v != "" {
		filter.Account = &v
	}
	if v := q.Get("asset_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 16)
		if err != nil {
			writeError(w, poolerr.Detail(poolerr.ErrInvalidParams, "asset_id %q", v))
			return
		}
		assetID := int16(id)
		filter.AssetID = &assetID
	}
	if v := q.Get("record_type"); v != "" {
		filter.RecordType = &v
	}
	if v := q.Get("after"); v != "" {
		seq, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, poolerr.Detail(poolerr.ErrInvalidParams, "after %q", v))
			return
		}
		filter.AfterSequence = &seq
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, poolerr.Detail(poolerr.ErrInvalidParams, "limit %q", v))
			return
		}
		filter.Limit = limit
	}

	records, err := s.queries.GetSettlementHistory(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *HTTPServer) handleAccountShares(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	holdings, err := s.queries.GetAccountShares(r.Context(), account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, holdings)
}

func (s *HTTPServer) handleRebuildProjections(w http.ResponseWriter, r *http.Request) {
	if err := s.queries.RebuildHoldings(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"rebuilt": true})
}

// --- Order flow ---

type placeOrderRequest struct {
	Account   string `json:"account"`
	AssetID   uint8  `json:"asset_id"`
	Amount    int64  `json:"amount"`
	Direction string `json:"direction"`
	MinOut    int64  `json:"min_out"`
}

func (s *HTTPServer) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	dir, err := parseDirection(req.Direction)
	if err != nil {
		writeError(w, err)
		return
	}
	orderID, err := s.engine.PlaceLiquidityOrder(req.Account, registry.AssetID(req.AssetID), req.Amount, dir, req.MinOut)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"order_id": orderID})
}

type fillOrderRequest struct {
	Broker         string          `json:"broker"`
	AssetPrice     int64           `json:"asset_price"`
	ReferencePrice int64           `json:"reference_price"`
	MarkPrices     map[uint8]int64 `json:"mark_prices,omitempty"`
}

func (s *HTTPServer) handleFillOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathOrderID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req fillOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	mark := make(map[registry.AssetID]int64, len(req.MarkPrices))
	for id, price := range req.MarkPrices {
		mark[registry.AssetID(id)] = price
	}
	result, err := s.engine.FillLiquidityOrder(r.Context(), req.Broker, orderID, core.FillPrices{
		AssetPrice:     req.AssetPrice,
		ReferencePrice: req.ReferencePrice,
		MarkPrices:     mark,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"shares_minted": result.SharesMinted,
		"amount_out":    result.AmountOut,
		"fee":           result.Fee,
		"nav_before":    result.NavBefore,
	})
}

type cancelOrderRequest struct {
	Caller string `json:"caller"`
}

func (s *HTTPServer) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathOrderID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req cancelOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.CancelLiquidityOrder(r.Context(), req.Caller, orderID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// --- Lending ---

type borrowRequest struct {
	Actor     string `json:"actor"`
	AssetID   uint8  `json:"asset_id"`
	Receiver  string `json:"receiver"`
	Principal int64  `json:"principal"`
	Fee       int64  `json:"fee"`
}

func (s *HTTPServer) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.engine.Borrow(r.Context(), req.Actor, registry.AssetID(req.AssetID), req.Receiver, req.Principal, req.Fee)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"borrowed": true})
}

type repayRequest struct {
	Actor     string `json:"actor"`
	AssetID   uint8  `json:"asset_id"`
	Payer     string `json:"payer"`
	Principal int64  `json:"principal"`
	Fee       int64  `json:"fee"`
	BadDebt   int64  `json:"bad_debt"`
}

func (s *HTTPServer) handleRepay(w http.ResponseWriter, r *http.Request) {
	var req repayRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.engine.Repay(r.Context(), req.Actor, registry.AssetID(req.AssetID), req.Payer, req.Principal, req.Fee, req.BadDebt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"repaid": true})
}

type accrueRequest struct {
	AssetID uint8 `json:"asset_id"`
}

func (s *HTTPServer) handleAccrueFunding(w http.ResponseWriter, r *http.Request) {
	var req accrueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.AccrueFunding(registry.AssetID(req.AssetID)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"accrued": true})
}

// --- Governance ---

type addAssetRequest struct {
	Actor     string `json:"actor"`
	AssetID   uint8  `json:"asset_id"`
	Symbol    string `json:"symbol"`
	Decimals  uint8  `json:"decimals"`
	IsStable  bool   `json:"is_stable"`
	Token     string `json:"token"`
	Synthetic string `json:"synthetic"`
}

func (s *HTTPServer) handleAddAsset(w http.ResponseWriter, r *http.Request) {
	var req addAssetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.engine.AddAsset(req.Actor, registry.AssetID(req.AssetID), req.Symbol, req.Decimals, req.IsStable, req.Token, req.Synthetic)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"added": true})
}

type setAssetParamsRequest struct {
	Actor  string               `json:"actor"`
	Params registry.AssetParams `json:"params"`
}

func (s *HTTPServer) handleSetAssetParams(w http.ResponseWriter, r *http.Request) {
	id, err := pathAssetID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req setAssetParamsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.SetAssetParams(req.Actor, id, req.Params); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

type setAssetFlagsRequest struct {
	Actor string              `json:"actor"`
	Flags registry.AssetFlags `json:"flags"`
}

func (s *HTTPServer) handleSetAssetFlags(w http.ResponseWriter, r *http.Request) {
	id, err := pathAssetID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req setAssetFlagsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.SetAssetFlags(req.Actor, id, req.Flags); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

type setFundingParamsRequest struct {
	Actor  string                 `json:"actor"`
	Params registry.FundingParams `json:"params"`
}

func (s *HTTPServer) handleSetFundingParams(w http.ResponseWriter, r *http.Request) {
	id, err := pathAssetID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req setFundingParamsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.SetFundingParams(req.Actor, id, req.Params); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

type brokerRequest struct {
	Actor  string `json:"actor"`
	Broker string `json:"broker"`
}

func (s *HTTPServer) handleAddBroker(w http.ResponseWriter, r *http.Request) {
	var req brokerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.AddBroker(req.Actor, req.Broker); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"added": true})
}

func (s *HTTPServer) handleRemoveBroker(w http.ResponseWriter, r *http.Request) {
	actor := r.URL.Query().Get("actor")
	addr := r.PathValue("addr")
	if err := s.engine.RemoveBroker(actor, addr); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

// setConfigRequest updates pool scalars; nil fields are left unchanged.
type setConfigRequest struct {
	Actor              string `json:"actor"`
	LockPeriodSec      *int64 `json:"lock_period_sec,omitempty"`
	MaxTimeoutSec      *int64 `json:"max_timeout_sec,omitempty"`
	FundingIntervalSec *int64 `json:"funding_interval_sec,omitempty"`
	GasCompensation    *int64 `json:"gas_compensation,omitempty"`
	EmergencyNavMin    *int64 `json:"emergency_nav_min,omitempty"`
	EmergencyNavMax    *int64 `json:"emergency_nav_max,omitempty"`
	StrictDeviation    *int64 `json:"strict_deviation,omitempty"`
}

func (s *HTTPServer) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var req setConfigRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.LockPeriodSec != nil {
		if err := s.engine.SetLockPeriod(req.Actor, time.Duration(*req.LockPeriodSec)*time.Second); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.MaxTimeoutSec != nil {
		if err := s.engine.SetMaxOrderTimeout(req.Actor, time.Duration(*req.MaxTimeoutSec)*time.Second); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.FundingIntervalSec != nil {
		if err := s.engine.SetFundingInterval(req.Actor, time.Duration(*req.FundingIntervalSec)*time.Second); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.GasCompensation != nil {
		if err := s.engine.SetBrokerGasCompensation(req.Actor, *req.GasCompensation); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.EmergencyNavMin != nil || req.EmergencyNavMax != nil {
		st := s.engine.GetPoolState()
		navMin, navMax := st.EmergencyNavMin, st.EmergencyNavMax
		if req.EmergencyNavMin != nil {
			navMin = *req.EmergencyNavMin
		}
		if req.EmergencyNavMax != nil {
			navMax = *req.EmergencyNavMax
		}
		if err := s.engine.SetEmergencyBounds(req.Actor, navMin, navMax); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.StrictDeviation != nil {
		if err := s.engine.SetStrictDeviation(req.Actor, *req.StrictDeviation); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

// --- Helpers ---

func pathAssetID(r *http.Request) (registry.AssetID, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		return 0, poolerr.Detail(poolerr.ErrInvalidParams, "asset id %q", raw)
	}
	return registry.AssetID(id), nil
}

func pathOrderID(r *http.Request) (uint64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, poolerr.Detail(poolerr.ErrInvalidParams, "order id %q", raw)
	}
	return id, nil
}

func parseDirection(s string) (orders.Direction, error) {
	switch s {
	case "add":
		return orders.DirectionAdd, nil
	case "remove":
		return orders.DirectionRemove, nil
	default:
		return 0, poolerr.Detail(poolerr.ErrInvalidParams, "direction %q", s)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, poolerr.Detail(poolerr.ErrInvalidParams, "decode body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps error kinds onto HTTP statuses: configuration errors
// are the caller's bad input, authorization is forbidden, timing and
// liquidity and price rejections are conflicts with current state.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kindName := "internal"
	if kind, ok := poolerr.KindOf(err); ok {
		kindName = kind.String()
		switch kind {
		case poolerr.KindConfiguration:
			status = http.StatusBadRequest
		case poolerr.KindAuthorization:
			status = http.StatusForbidden
		case poolerr.KindTiming, poolerr.KindLiquidity, poolerr.KindPrice:
			status = http.StatusConflict
		case poolerr.KindNotFound:
			status = http.StatusNotFound
		}
	}

	var perr *poolerr.Error
	code := ""
	if errors.As(err, &perr) {
		code = perr.Code()
	}

	writeJSON(w, status, map[string]string{
		"kind":    kindName,
		"code":    code,
		"message": err.Error(),
	})
}
