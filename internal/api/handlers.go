package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/liamashdown/whaleconsensus/internal/chain"
	"github.com/liamashdown/whaleconsensus/internal/config"
	"github.com/liamashdown/whaleconsensus/internal/metrics"
	"github.com/liamashdown/whaleconsensus/internal/processor"
	"github.com/liamashdown/whaleconsensus/internal/storage"
)

// WalletAction is the change requested for a tracked wallet
type WalletAction string

const (
	WalletAdd    WalletAction = "add"
	WalletRemove WalletAction = "remove"
)

// WalletConfigRequest adds or removes a tracked wallet
type WalletConfigRequest struct {
	Action  WalletAction `json:"action"`
	Address string       `json:"address"`
	Name    string       `json:"name,omitempty"`
}

// WalletConfigResponse reports the tracked wallets after a change
type WalletConfigResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Wallets []string `json:"wallets"`
}

// WalletNameRequest labels a wallet
type WalletNameRequest struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// SettingsUpdate is a partial settings change; nil fields keep their value
type SettingsUpdate struct {
	KellyMultiplier   *float64 `json:"kelly_multiplier"`
	MaxRiskCap        *float64 `json:"max_risk_cap"`
	MinWallets        *int     `json:"min_wallets"`
	HideLottery       *bool    `json:"hide_lottery"`
	LongshotTolerance *float64 `json:"longshot_tolerance"`
	TrendMode         *bool    `json:"trend_mode"`
	YieldTriggerPrice *float64 `json:"yield_trigger_price"`
	YieldFixedPct     *float64 `json:"yield_fixed_pct"`
	YieldMinWhales    *int     `json:"yield_min_whales"`
	UserBalance       *float64 `json:"user_balance"`
}

// Apply merges the update into s
func (u SettingsUpdate) Apply(s config.UserSettings) config.UserSettings {
	if u.KellyMultiplier != nil {
		s.KellyMultiplier = *u.KellyMultiplier
	}
	if u.MaxRiskCap != nil {
		s.MaxRiskCap = *u.MaxRiskCap
	}
	if u.MinWallets != nil {
		s.MinWallets = *u.MinWallets
	}
	if u.HideLottery != nil {
		s.HideLottery = *u.HideLottery
	}
	if u.LongshotTolerance != nil {
		s.LongshotTolerance = *u.LongshotTolerance
	}
	if u.TrendMode != nil {
		s.TrendMode = *u.TrendMode
	}
	if u.YieldTriggerPrice != nil {
		s.YieldTriggerPrice = *u.YieldTriggerPrice
	}
	if u.YieldFixedPct != nil {
		s.YieldFixedPct = *u.YieldFixedPct
	}
	if u.YieldMinWhales != nil {
		s.YieldMinWhales = *u.YieldMinWhales
	}
	if u.UserBalance != nil {
		s.UserBalance = *u.UserBalance
	}
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	metrics.RecordHealthCheck(true)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		metrics.RecordHealthCheck(false)
		s.log.WithError(err).Warn("Readiness check failed")
		s.writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	metrics.RecordHealthCheck(true)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetSettings(r.Context(), s.userID, s.defaults)
	if err != nil {
		s.log.WithError(err).Error("Failed to load settings")
		s.writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}

	settings, err = applyQuery(settings, r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := settings.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ranked, err := s.engine.RankSignals(r.Context(), processor.RequestFor(settings))
	if err != nil {
		s.writeEngineError(w, err, "failed to rank signals")
		return
	}
	if ranked == nil {
		ranked = []processor.RankedSignal{}
	}
	s.writeJSON(w, http.StatusOK, ranked)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	wallet, ok := s.walletParam(w, r)
	if !ok {
		return
	}

	portfolio, err := s.engine.Portfolio(r.Context(), wallet)
	if err != nil {
		s.writeEngineError(w, err, "failed to build portfolio")
		return
	}
	s.writeJSON(w, http.StatusOK, portfolio)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	wallet, ok := s.walletParam(w, r)
	if !ok {
		return
	}

	balance, err := s.balances.USDCBalance(r.Context(), wallet)
	if errors.Is(err, chain.ErrInvalidAddress) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("wallet", wallet).Error("Failed to read USDC balance")
		s.writeError(w, http.StatusBadGateway, "failed to read balance")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallet":       wallet,
		"usdc_balance": balance,
		"currency":     "USDC",
		"chain":        "Polygon",
	})
}

func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := s.store.ListTrackedWallets(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to list wallets")
		s.writeError(w, http.StatusInternalServerError, "failed to list wallets")
		return
	}

	addresses := make([]string, 0, len(wallets))
	names := make(map[string]string, len(wallets))
	for _, wallet := range wallets {
		addresses = append(addresses, wallet.Address)
		if wallet.Name != "" {
			names[wallet.Address] = wallet.Name
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallets": addresses,
		"names":   names,
		"count":   len(addresses),
	})
}

func (s *Server) handleConfigureWallet(w http.ResponseWriter, r *http.Request) {
	var req WalletConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !config.IsWalletAddress(req.Address) {
		s.writeError(w, http.StatusBadRequest, "address must be a 0x-prefixed 40 character hex string")
		return
	}

	address := storage.NormalizeAddress(req.Address)
	resp := WalletConfigResponse{Success: true}

	switch WalletAction(strings.ToLower(string(req.Action))) {
	case WalletAdd:
		if err := s.store.AddWallet(r.Context(), address, req.Name); err != nil {
			s.log.WithError(err).WithField("wallet", address).Error("Failed to add wallet")
			s.writeError(w, http.StatusInternalServerError, "failed to add wallet")
			return
		}
		resp.Message = fmt.Sprintf("Wallet %s added", address)
	case WalletRemove:
		err := s.store.RemoveWallet(r.Context(), address)
		if errors.Is(err, storage.ErrWalletNotFound) {
			resp.Success = false
			resp.Message = "Wallet not found"
			break
		}
		if err != nil {
			s.log.WithError(err).WithField("wallet", address).Error("Failed to remove wallet")
			s.writeError(w, http.StatusInternalServerError, "failed to remove wallet")
			return
		}
		resp.Message = fmt.Sprintf("Wallet %s removed", address)
	default:
		s.writeError(w, http.StatusBadRequest, "action must be add or remove")
		return
	}

	wallets, err := s.store.ListTrackedWallets(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to list wallets")
		s.writeError(w, http.StatusInternalServerError, "failed to list wallets")
		return
	}
	resp.Wallets = make([]string, 0, len(wallets))
	for _, wallet := range wallets {
		resp.Wallets = append(resp.Wallets, wallet.Address)
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleSetWalletName accepts address and name as a JSON body or as query
// parameters
func (s *Server) handleSetWalletName(w http.ResponseWriter, r *http.Request) {
	req := WalletNameRequest{
		Address: r.URL.Query().Get("address"),
		Name:    r.URL.Query().Get("name"),
	}
	if req.Address == "" && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if !config.IsWalletAddress(req.Address) {
		s.writeError(w, http.StatusBadRequest, "address must be a 0x-prefixed 40 character hex string")
		return
	}

	address := storage.NormalizeAddress(req.Address)
	err := s.store.SetWalletName(r.Context(), address, req.Name)
	if errors.Is(err, storage.ErrWalletNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("wallet", address).Error("Failed to set wallet name")
		s.writeError(w, http.StatusInternalServerError, "failed to set wallet name")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"address": address,
		"name":    req.Name,
	})
}

func (s *Server) handleWhaleScores(w http.ResponseWriter, r *http.Request) {
	scores, err := s.store.ListWhaleScores(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to list whale scores")
		s.writeError(w, http.StatusInternalServerError, "failed to list whale scores")
		return
	}
	if scores == nil {
		scores = []storage.ScoredWallet{}
	}
	s.writeJSON(w, http.StatusOK, scores)
}

func (s *Server) handleRefreshWhaleScores(w http.ResponseWriter, r *http.Request) {
	count, err := s.engine.RefreshWhaleScores(r.Context())
	if err != nil {
		s.writeEngineError(w, err, "failed to refresh whale scores")
		return
	}
	if err := s.store.MarkWhaleScoresRefreshed(r.Context()); err != nil {
		s.log.WithError(err).Warn("Failed to record whale score refresh")
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   fmt.Sprintf("Refreshed %d whale scores", count),
		"refreshed": count,
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetSettings(r.Context(), s.userID, s.defaults)
	if err != nil {
		s.log.WithError(err).Error("Failed to load settings")
		s.writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var update SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	current, err := s.store.GetSettings(r.Context(), s.userID, s.defaults)
	if err != nil {
		s.log.WithError(err).Error("Failed to load settings")
		s.writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}

	updated := update.Apply(current)
	if err := updated.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.SaveSettings(r.Context(), s.userID, updated); err != nil {
		s.log.WithError(err).Error("Failed to save settings")
		s.writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	s.writeJSON(w, http.StatusOK, updated)
}

// walletParam reads and validates the wallet query parameter, writing a 400
// when it is missing or malformed
func (s *Server) walletParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	wallet := r.URL.Query().Get("wallet")
	if !config.IsWalletAddress(wallet) {
		s.writeError(w, http.StatusBadRequest, "wallet must be a 0x-prefixed 40 character hex string")
		return "", false
	}
	return storage.NormalizeAddress(wallet), true
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, processor.ErrNoData) {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.log.WithError(err).Error(message)
	s.writeError(w, http.StatusInternalServerError, message)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// applyQuery overrides settings with any parameters present in q
func applyQuery(s config.UserSettings, q url.Values) (config.UserSettings, error) {
	floats := map[string]*float64{
		"kelly_multiplier":    &s.KellyMultiplier,
		"max_risk_cap":        &s.MaxRiskCap,
		"longshot_tolerance":  &s.LongshotTolerance,
		"yield_trigger_price": &s.YieldTriggerPrice,
		"yield_fixed_pct":     &s.YieldFixedPct,
		"user_balance":        &s.UserBalance,
	}
	for name, dst := range floats {
		if v := q.Get(name); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return s, fmt.Errorf("%s must be a number", name)
			}
			*dst = f
		}
	}

	ints := map[string]*int{
		"min_wallets":      &s.MinWallets,
		"yield_min_whales": &s.YieldMinWhales,
	}
	for name, dst := range ints {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return s, fmt.Errorf("%s must be an integer", name)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"hide_lottery": &s.HideLottery,
		"trend_mode":   &s.TrendMode,
	}
	for name, dst := range bools {
		if v := q.Get(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return s, fmt.Errorf("%s must be true or false", name)
			}
			*dst = b
		}
	}

	return s, nil
}
