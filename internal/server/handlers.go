package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nugraha/cakra/internal/domain"
)

// writeJSON writes a {success, data} envelope.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	envelope := map[string]any{"success": status < 400, "data": data}
	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	envelope := map[string]any{"success": false, "error": err.Error()}
	if encodeErr := json.NewEncoder(w).Encode(envelope); encodeErr != nil {
		s.log.Error().Err(encodeErr).Msg("Failed to encode JSON error response")
	}
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrStrategyNotFound),
		errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrTradingPaused):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoActiveAPIKey):
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.HealthCheck(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if err := s.ledgerDB.HealthCheck(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "service": "cakra"})
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.safety.Status(r.Context())
	if err != nil {
		// Fail-safe status still reports; surface it with the error noted.
		s.log.Error().Err(err).Msg("Safety status read failed")
	}
	s.writeJSON(w, http.StatusOK, status)
}

type pauseRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Reason == "" {
		req.Reason = "operator request"
	}

	if err := s.safety.Pause(r.Context(), req.Reason, "operator"); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	status, _ := s.safety.Status(r.Context())
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.safety.Resume(r.Context(), "operator"); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	status, _ := s.safety.Status(r.Context())
	s.writeJSON(w, http.StatusOK, status)
}

type createUserRequest struct {
	TelegramID int64  `json:"telegram_id"`
	Username   string `json:"username"`
	FullName   string `json:"full_name"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.TelegramID == 0 {
		s.writeError(w, http.StatusBadRequest, errors.New("telegram_id is required"))
		return
	}

	user := &domain.User{
		TelegramID: req.TelegramID,
		Username:   req.Username,
		FullName:   req.FullName,
	}
	if err := s.users.Create(user); err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"id": user.ID})
}

type storeCredentialsRequest struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	Label     string `json:"label"`
}

func (s *Server) handleStoreCredentials(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	var req storeCredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.APIKey == "" || req.APISecret == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("api_key and api_secret are required"))
		return
	}

	if _, err := s.users.GetByID(userID); err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}

	if err := s.creds.StoreCredentials(userID, req.APIKey, req.APISecret, req.Label); err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"user_id": userID})
}

type createStrategyRequest struct {
	UserID int64           `json:"user_id"`
	Kind   string          `json:"kind"`
	Name   string          `json:"name"`
	Pair   string          `json:"pair"`
	Config json.RawMessage `json:"config"`
}

func (s *Server) handleCreateStrategy(w http.ResponseWriter, r *http.Request) {
	var req createStrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" || req.Pair == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("name and pair are required"))
		return
	}

	if _, err := s.users.GetByID(req.UserID); err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}

	strat := &domain.Strategy{
		UserID: req.UserID,
		Kind:   domain.StrategyKind(req.Kind),
		Name:   req.Name,
		Pair:   req.Pair,
		Config: req.Config,
	}
	if err := s.strategies.Create(strat); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"id": strat.ID})
}

type strategyResponse struct {
	ID       int64           `json:"id"`
	UserID   int64           `json:"user_id"`
	Kind     string          `json:"kind"`
	Name     string          `json:"name"`
	Pair     string          `json:"pair"`
	Config   json.RawMessage `json:"config"`
	IsActive bool            `json:"is_active"`
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "strategyID")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	strat, err := s.strategies.GetByID(id)
	if err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, strategyResponse{
		ID:       strat.ID,
		UserID:   strat.UserID,
		Kind:     string(strat.Kind),
		Name:     strat.Name,
		Pair:     strat.Pair,
		Config:   json.RawMessage(strat.Config),
		IsActive: strat.IsActive,
	})
}

func (s *Server) handleListUserStrategies(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	strats, err := s.strategies.ListByUser(userID)
	if err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}

	out := make([]strategyResponse, 0, len(strats))
	for _, strat := range strats {
		out = append(out, strategyResponse{
			ID:       strat.ID,
			UserID:   strat.UserID,
			Kind:     string(strat.Kind),
			Name:     strat.Name,
			Pair:     strat.Pair,
			Config:   json.RawMessage(strat.Config),
			IsActive: strat.IsActive,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListUserOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			s.writeError(w, http.StatusBadRequest, errors.New("limit must be between 1 and 500"))
			return
		}
		limit = parsed
	}

	list, err := s.orderRepo.ListByUser(userID, limit)
	if err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}

	out := make([]orderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, orderResponse{
			ID:              o.ID,
			UserID:          o.UserID,
			ExchangeOrderID: o.ExchangeOrderID,
			Pair:            o.Pair,
			Side:            string(o.Side),
			Type:            string(o.Type),
			Price:           o.Price,
			Amount:          o.Amount,
			Status:          string(o.Status),
			StrategyID:      o.StrategyID,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

type orderResponse struct {
	ID              int64    `json:"id"`
	UserID          int64    `json:"user_id"`
	ExchangeOrderID string   `json:"exchange_order_id,omitempty"`
	Pair            string   `json:"pair"`
	Side            string   `json:"side"`
	Type            string   `json:"type"`
	Price           *float64 `json:"price,omitempty"`
	Amount          float64  `json:"amount"`
	Status          string   `json:"status"`
	StrategyID      *int64   `json:"strategy_id,omitempty"`
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "strategyID")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			s.writeError(w, http.StatusBadRequest, errors.New("limit must be between 1 and 500"))
			return
		}
		limit = parsed
	}

	records, err := s.strategies.ListExecutions(id, limit)
	if err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}

	out := make([]executionResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, executionResponse{
			ID:     rec.ID,
			RunAt:  rec.RunAt,
			Status: string(rec.Status),
			Detail: rec.Detail,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

type executionResponse struct {
	ID     int64          `json:"id"`
	RunAt  time.Time      `json:"run_at"`
	Status string         `json:"status"`
	Detail map[string]any `json:"detail,omitempty"`
}

func (s *Server) handleStopStrategy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "strategyID")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.strategies.Deactivate(id); err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_active": false})
}

func (s *Server) handleSyncOrders(w http.ResponseWriter, r *http.Request) {
	result, err := s.orders.SyncOpen(r.Context())
	if err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "orderID")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.orders.Cancel(r.Context(), id, "manual"); err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "canceled"})
}

type createAlertRequest struct {
	UserID      int64   `json:"user_id"`
	Pair        string  `json:"pair"`
	TargetPrice float64 `json:"target_price"`
	Direction   string  `json:"direction"`
	Repeat      bool    `json:"repeat"`
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if _, err := s.users.GetByID(req.UserID); err != nil {
		s.writeError(w, errorStatus(err), err)
		return
	}

	alert := &domain.PriceAlert{
		UserID:      req.UserID,
		Pair:        req.Pair,
		TargetPrice: req.TargetPrice,
		Direction:   req.Direction,
		Repeat:      req.Repeat,
	}
	if err := s.alerts.Create(alert); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"id": alert.ID})
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}
