package handlers

import (
	"net/http"

	"github.com/rs/zerolog"
)

// RouterConfig holds the transport settings applied around the routes.
type RouterConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
}

// Routes registers every endpoint and wraps the mux in the middleware chain.
func Routes(h *Handler, cfg RouterConfig, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /api/predict/{$}", h.Predict)
	mux.HandleFunc("POST /api/predict/raw", h.PredictRaw)
	mux.HandleFunc("GET /api/history/{$}", h.ListHistory)
	mux.HandleFunc("DELETE /api/history/delete/{id}/{$}", h.DeleteHistory)
	mux.HandleFunc("DELETE /api/history/delete/{id}", h.DeleteHistory)

	chain := Chain(
		RequestLogger(logger),
		Recovery,
		CORS(cfg.AllowedOrigins),
		RateLimit(cfg.RPS, cfg.Burst),
	)
	return chain(mux)
}
