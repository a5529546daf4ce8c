package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups everything the router mounts. Events is optional.
type Handlers struct {
	Strategies  *StrategyHandler
	Alerts      *AlertHandler
	Simulations *SimulationHandler
	Health      *HealthHandler
	Events      http.Handler
}

// NewRouter registers all routes on a gorilla/mux router
func NewRouter(h Handlers) *mux.Router {
	router := mux.NewRouter()
	router.Use(mux.MiddlewareFunc(MetricsMiddleware()))

	v1 := router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/health", h.Health.Health).Methods("GET")

	v1.HandleFunc("/strategies", h.Strategies.ListStrategies).Methods("GET")
	v1.HandleFunc("/strategies", h.Strategies.CreateStrategy).Methods("POST")
	v1.HandleFunc("/strategies/{id}", h.Strategies.GetStrategy).Methods("GET")
	v1.HandleFunc("/strategies/{id}", h.Strategies.UpdateStrategy).Methods("PATCH")
	v1.HandleFunc("/strategies/{id}", h.Strategies.DeleteStrategy).Methods("DELETE")

	v1.HandleFunc("/alerts", h.Alerts.ListAlerts).Methods("GET")
	v1.HandleFunc("/alerts", h.Alerts.CreateAlert).Methods("POST")
	v1.HandleFunc("/alerts/{id}", h.Alerts.GetAlert).Methods("GET")

	v1.HandleFunc("/simulations/candles", h.Simulations.PushCandle).Methods("POST")

	router.HandleFunc("/health", h.Health.Health).Methods("GET")
	router.HandleFunc("/ready", h.Health.Ready).Methods("GET")
	router.HandleFunc("/live", h.Health.Live).Methods("GET")
	router.HandleFunc("/stats", h.Health.Stats).Methods("GET")
	router.Handle("/metrics", promhttp.Handler())

	if h.Events != nil {
		router.Handle("/ws/events", h.Events)
	}

	return router
}
