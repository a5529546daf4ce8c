package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/strategy-alerts/internal/models"
	"github.com/mohamedkhairy/strategy-alerts/internal/rules"
	"github.com/mohamedkhairy/strategy-alerts/internal/storage"
	"github.com/mohamedkhairy/strategy-alerts/internal/stream"
	"github.com/mohamedkhairy/strategy-alerts/pkg/logger"
)

const (
	defaultAlertLimit = 100
	maxAlertLimit     = 1000
)

// StrategyRegistry is the live set of strategies evaluated against incoming candles
type StrategyRegistry interface {
	RegisterStrategy(strategy *models.Strategy)
	UnregisterStrategy(strategy *models.Strategy)
	ReplaceStrategy(previous, updated *models.Strategy)
	Forget(strategyID int64)
}

// CandleSubmitter accepts candles for asynchronous processing
type CandleSubmitter interface {
	Submit(ctx context.Context, in models.CandleIn) error
}

var _ StrategyRegistry = (*stream.Orchestrator)(nil)
var _ CandleSubmitter = (*stream.Ingestor)(nil)

// StrategyHandler handles strategy management endpoints
type StrategyHandler struct {
	store    rules.StrategyStore
	registry StrategyRegistry
}

// NewStrategyHandler creates a new strategy handler
func NewStrategyHandler(store rules.StrategyStore, registry StrategyRegistry) *StrategyHandler {
	return &StrategyHandler{
		store:    store,
		registry: registry,
	}
}

// ListStrategies handles GET /api/v1/strategies
func (h *StrategyHandler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	strategies, err := h.store.List(r.Context())
	if err != nil {
		logger.Error("Failed to list strategies", logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve strategies")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"strategies": strategies,
		"count":      len(strategies),
	})
}

// GetStrategy handles GET /api/v1/strategies/{id}
func (h *StrategyHandler) GetStrategy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	strategy, err := h.store.Get(r.Context(), id)
	if err != nil {
		respondWithStoreError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, strategy)
}

// CreateStrategy handles POST /api/v1/strategies
func (h *StrategyHandler) CreateStrategy(w http.ResponseWriter, r *http.Request) {
	var payload models.StrategyCreate
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	strategy, err := h.store.Create(r.Context(), &payload)
	if err != nil {
		respondWithStoreError(w, err)
		return
	}
	h.registry.RegisterStrategy(strategy)

	logger.Info("Strategy created",
		logger.Int64("strategy_id", strategy.ID),
		logger.String("strategy_name", strategy.Name),
	)

	respondWithJSON(w, http.StatusCreated, strategy)
}

// UpdateStrategy handles PATCH /api/v1/strategies/{id}
func (h *StrategyHandler) UpdateStrategy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var payload models.StrategyUpdate
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	previous, err := h.store.Get(r.Context(), id)
	if err != nil {
		respondWithStoreError(w, err)
		return
	}

	updated, err := h.store.Update(r.Context(), id, &payload)
	if err != nil {
		respondWithStoreError(w, err)
		return
	}
	h.registry.ReplaceStrategy(previous, updated)

	logger.Info("Strategy updated",
		logger.Int64("strategy_id", updated.ID),
		logger.String("strategy_name", updated.Name),
	)

	respondWithJSON(w, http.StatusOK, updated)
}

// DeleteStrategy handles DELETE /api/v1/strategies/{id}
func (h *StrategyHandler) DeleteStrategy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	strategy, err := h.store.Get(r.Context(), id)
	if err != nil {
		respondWithStoreError(w, err)
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		respondWithStoreError(w, err)
		return
	}
	h.registry.UnregisterStrategy(strategy)
	h.registry.Forget(id)

	logger.Info("Strategy deleted", logger.Int64("strategy_id", id))

	w.WriteHeader(http.StatusNoContent)
}

// AlertHandler handles alert history endpoints
type AlertHandler struct {
	alertStorage storage.AlertStorage
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(alertStorage storage.AlertStorage) *AlertHandler {
	return &AlertHandler{
		alertStorage: alertStorage,
	}
}

// ListAlerts handles GET /api/v1/alerts
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := storage.AlertFilter{
		Symbol: query.Get("symbol"),
		Limit:  defaultAlertLimit,
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 || limit > maxAlertLimit {
			respondWithError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		filter.Limit = limit
	}

	if idStr := query.Get("strategy_id"); idStr != "" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || id <= 0 {
			respondWithError(w, http.StatusBadRequest, "strategy_id must be a positive integer")
			return
		}
		filter.StrategyID = id
	}

	alerts, err := h.alertStorage.List(r.Context(), filter)
	if err != nil {
		logger.Error("Failed to list alerts", logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve alerts")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
		"limit":  filter.Limit,
	})
}

// GetAlert handles GET /api/v1/alerts/{id}
func (h *AlertHandler) GetAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	alert, err := h.alertStorage.Get(r.Context(), id)
	if err != nil {
		respondWithStoreError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, alert)
}

// CreateAlert handles POST /api/v1/alerts, used to record alerts from simulations
func (h *AlertHandler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var payload models.AlertCreate
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := payload.Validate(); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	alert, err := h.alertStorage.Create(r.Context(), &payload)
	if err != nil {
		respondWithStoreError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, alert)
}

// SimulationHandler accepts candles pushed over HTTP
type SimulationHandler struct {
	submitter CandleSubmitter
}

// NewSimulationHandler creates a new simulation handler
func NewSimulationHandler(submitter CandleSubmitter) *SimulationHandler {
	return &SimulationHandler{submitter: submitter}
}

// PushCandle handles POST /api/v1/simulations/candles
func (h *SimulationHandler) PushCandle(w http.ResponseWriter, r *http.Request) {
	var in models.CandleIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := in.Validate(); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.submitter.Submit(r.Context(), in); err != nil {
		if errors.Is(err, stream.ErrIngestorStopped) {
			respondWithError(w, http.StatusServiceUnavailable, "Candle ingestion is not running")
			return
		}
		logger.Warn("Failed to submit candle",
			logger.ErrorField(err),
			logger.String("symbol", in.Symbol),
			logger.String("timeframe", in.Timeframe),
		)
		respondWithError(w, http.StatusServiceUnavailable, "Failed to submit candle")
		return
	}

	respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Helper functions

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

var validationErrors = []error{
	models.ErrInvalidStrategy,
	models.ErrInvalidStrategyID,
	models.ErrNoConditions,
	models.ErrInvalidOperand,
	models.ErrInvalidOperator,
	models.ErrInvalidSymbol,
	models.ErrInvalidTimeframe,
	models.ErrInvalidAlert,
	models.ErrInvalidCandle,
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	if errors.Is(err, models.ErrStrategyNotFound) || errors.Is(err, models.ErrAlertNotFound) {
		return http.StatusNotFound
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func respondWithStoreError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	switch code {
	case http.StatusNotFound, http.StatusBadRequest:
		respondWithError(w, code, err.Error())
	default:
		logger.Error("Store operation failed", logger.ErrorField(err))
		logger.ErrorsTotal.WithLabelValues("api", "store").Inc()
		respondWithError(w, code, "Internal server error")
	}
}
