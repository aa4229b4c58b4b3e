package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/internal/auth"
	"github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/internal/config"
	httperrors "github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/pkg/http/errors"
)

// Options carries everything the HTTP server exposes. Pool and Redis may be
// nil when those backends are not configured.
type Options struct {
	Config        *config.App
	Logger        zerolog.Logger
	Pool          *pgxpool.Pool
	Redis         *redis.Client
	Tokens        *auth.Manager
	DuelWSHandler http.HandlerFunc
}

// New wires the base routes (health, readiness, metrics) plus the duel
// WebSocket endpoint.
func New(opts Options) *http.Server {
	mux := http.NewServeMux()
	logger := opts.Logger.With().Str("component", "http").Logger()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if opts.Pool != nil {
			if err := opts.Pool.Ping(ctx); err != nil {
				logger.Error().Err(err).Msg("postgres ping failed")
				http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if opts.Redis != nil {
			if err := opts.Redis.Ping(ctx).Err(); err != nil {
				logger.Error().Err(err).Msg("redis ping failed")
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/ws/duels", opts.DuelWSHandler)

	// Token issuance belongs to the user service. The dev endpoint exists so
	// a local client can get a socket without running that service.
	if opts.Config.Env != "production" {
		mux.HandleFunc("/v1/auth/dev-token", devTokenHandler(opts.Tokens, logger))
	}

	return &http.Server{
		Addr:    opts.Config.HTTPAddr,
		Handler: mux,
	}
}

func devTokenHandler(tokens *auth.Manager, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			DisplayName string `json:"display_name"`
			Avatar      string `json:"avatar"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DisplayName == "" {
			httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "display_name is required")
			return
		}

		playerID := uuid.New()
		token, err := tokens.Issue(playerID, req.DisplayName, req.Avatar)
		if err != nil {
			logger.Error().Err(err).Msg("token issue failed")
			httperrors.RespondInternalError(w, "could not issue token")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"player_id": playerID.String(),
			"token":     token,
		})
	}
}
