package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"skubridge-integration-layer/internal/application"
	"skubridge-integration-layer/internal/domain"
	"skubridge-integration-layer/internal/infrastructure/cache"
	"skubridge-integration-layer/internal/infrastructure/connectors"
	"skubridge-integration-layer/internal/infrastructure/pubsub"
	"skubridge-integration-layer/internal/infrastructure/repository"
	"skubridge-integration-layer/internal/ports"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("⚠️  Warning: .env file not found")
	}

	// Get configuration from environment
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}

	appURL := os.Getenv("APP_URL")
	if appURL == "" {
		appURL = "http://localhost:8080"
	}

	// Connect to MongoDB
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(mongoURI))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer client.Disconnect(context.Background())

	dbName := os.Getenv("MONGODB_DATABASE")
	if dbName == "" {
		dbName = "skubridge"
	}
	db := client.Database(dbName)

	// Initialize repositories
	credentialRepo := repository.NewMongoCredentialRepository(db)
	catalogRepo := repository.NewMongoCatalogRepository(db)
	mappingRepo := repository.NewMongoMappingRepository(db)
	configRepo := repository.NewMongoConnectorConfigRepository(db)
	sessionRepo := repository.NewMongoSessionRepository(db)

	// Webhook dedup store: Redis when configured, in-memory otherwise
	var idemStore ports.IdempotencyStore
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		idemStore = cache.NewRedisIdempotencyStore(redisClient)
	} else {
		logger.Warn().Msg("REDIS_ADDR not set, using in-memory webhook dedup store")
		store := cache.NewInMemoryIdempotencyStore()
		defer store.Close()
		idemStore = store
	}

	// Connector registry with every supported provider bound
	registry := connectors.Default(logger)

	// Event pub/sub for downstream consumers
	eventPubSub := pubsub.NewEventPubSub(logger)

	// Initialize application services
	reconService := application.NewReconciliationService(
		catalogRepo,
		mappingRepo,
		application.DefaultMatchPolicy(),
		logger,
	)

	connectorService := application.NewConnectorService(
		configRepo,
		credentialRepo,
		sessionRepo,
		registry,
		logger,
		appURL,
	)

	importService := application.NewImportService(
		registry,
		catalogRepo,
		reconService,
		logger,
	)

	pipeline := application.NewWebhookPipeline(
		configRepo,
		registry,
		reconService,
		idemStore,
		eventPubSub,
		logger,
	)

	refresher := application.NewTokenRefresher(
		credentialRepo,
		configRepo,
		registry,
		application.DefaultRefreshWindow,
		logger,
	)

	// Background token refresh cycle
	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	defer stopRefresh()
	go runTokenRefreshLoop(refreshCtx, refresher, logger)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// Connector lifecycle
	r.Post("/connectors", connectHandler(connectorService, logger))
	r.Delete("/connectors/{provider}", disconnectHandler(connectorService, logger))

	// OAuth routes
	r.Get("/auth/{provider}", oauthInitHandler(connectorService, logger))
	r.Get("/auth/{provider}/callback", oauthCallbackHandler(connectorService, logger))

	// Webhook endpoint: POST /webhooks/{provider}/{userID}
	r.Post("/webhooks/{provider}/{userID}", webhookHandler(pipeline, logger))

	// Imports and inventory
	r.Post("/imports/{provider}", importHandler(connectorService, importService, logger))
	r.Get("/inventory/{provider}", inventoryHandler(connectorService, importService, logger))

	// Reconciliation and mappings
	r.Get("/reconciliation/report", reportHandler(reconService, logger))
	r.Get("/reconciliation/pending", pendingHandler(reconService, logger))
	r.Post("/mappings", createMappingHandler(reconService, logger))
	r.Post("/mappings/bulk", bulkMappingHandler(reconService, logger))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logger.Info().Str("port", port).Msg("Starting API server")
	if err := http.ListenAndServe(":"+port, r); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}
}

// runTokenRefreshLoop drives the refresher on a fixed interval until
// ctx is cancelled.
func runTokenRefreshLoop(ctx context.Context, refresher *application.TokenRefresher, logger zerolog.Logger) {
	interval := time.Minute
	if raw := os.Getenv("TOKEN_REFRESH_INTERVAL"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			interval = parsed
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshed, err := refresher.RunOnce(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("Token refresh cycle failed")
				continue
			}
			if refreshed > 0 {
				logger.Info().Int("refreshed", refreshed).Msg("Token refresh cycle finished")
			}
		}
	}
}

// userID resolves the acting user from the X-User-ID header.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case domain.IsWebhookAuth(err):
		status = http.StatusUnauthorized
	case domain.IsTransient(err):
		status = http.StatusBadGateway
	default:
		var cfgErr *domain.ConfigurationError
		var authErr *domain.AuthError
		if errors.As(err, &cfgErr) {
			status = http.StatusBadRequest
		} else if errors.As(err, &authErr) {
			status = http.StatusUnauthorized
		}
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// connectHandler creates or updates a connector configuration.
func connectHandler(svc *application.ConnectorService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		if uid == "" {
			http.Error(w, "X-User-ID header is required", http.StatusBadRequest)
			return
		}

		var body struct {
			Name        string            `json:"name"`
			Provider    string            `json:"provider"`
			Credentials map[string]string `json:"credentials"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		cfg, err := svc.Connect(r.Context(), application.ConnectInput{
			UserID:      uid,
			Name:        body.Name,
			Provider:    body.Provider,
			Credentials: body.Credentials,
		})
		if err != nil {
			logger.Error().Err(err).Str("provider", body.Provider).Msg("Connect failed")
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

// disconnectHandler removes a connector configuration.
func disconnectHandler(svc *application.ConnectorService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		if uid == "" {
			http.Error(w, "X-User-ID header is required", http.StatusBadRequest)
			return
		}
		provider, err := domain.ParseProvider(chi.URLParam(r, "provider"))
		if err != nil {
			writeError(w, err)
			return
		}
		if err := svc.Disconnect(r.Context(), uid, provider); err != nil {
			logger.Error().Err(err).Str("provider", provider.String()).Msg("Disconnect failed")
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
	}
}

// oauthInitHandler starts the OAuth flow and redirects to the provider.
func oauthInitHandler(svc *application.ConnectorService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		if uid == "" {
			uid = r.URL.Query().Get("user_id")
		}
		if uid == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		provider, err := domain.ParseProvider(chi.URLParam(r, "provider"))
		if err != nil {
			writeError(w, err)
			return
		}

		authURL, err := svc.BeginOAuth(r.Context(), uid, provider, r.URL.Query().Get("return_url"))
		if err != nil {
			logger.Error().Err(err).Str("provider", provider.String()).Msg("OAuth init failed")
			writeError(w, err)
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// oauthCallbackHandler finishes the OAuth flow on the provider
// redirect.
func oauthCallbackHandler(svc *application.ConnectorService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, err := domain.ParseProvider(chi.URLParam(r, "provider"))
		if err != nil {
			writeError(w, err)
			return
		}
		state := r.URL.Query().Get("state")
		code := r.URL.Query().Get("code")
		if state == "" || code == "" {
			http.Error(w, "missing state or code parameter", http.StatusBadRequest)
			return
		}

		record, err := svc.CompleteOAuth(r.Context(), provider, state, code)
		if err != nil {
			logger.Error().Err(err).Str("provider", provider.String()).Msg("OAuth callback failed")
			writeError(w, err)
			return
		}

		if returnURL := r.URL.Query().Get("return_url"); returnURL != "" {
			http.Redirect(w, r, returnURL+"?oauth=success&provider="+url.QueryEscape(provider.String()), http.StatusFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "connected",
			"provider": provider.String(),
			"user_id":  record.UserID,
		})
	}
}

// webhookHandler feeds a provider delivery into the pipeline. The raw
// body and headers pass through verbatim so signature checks see the
// exact bytes the provider sent.
func webhookHandler(pipeline *application.WebhookPipeline, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, err := domain.ParseProvider(chi.URLParam(r, "provider"))
		if err != nil {
			writeError(w, err)
			return
		}
		uid := chi.URLParam(r, "userID")

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		req := &domain.WebhookRequest{
			Provider:   provider,
			Headers:    r.Header,
			RawBody:    payload,
			ReceivedAt: time.Now(),
		}
		if err := pipeline.Handle(r.Context(), uid, provider, req); err != nil {
			if domain.IsWebhookAuth(err) {
				http.Error(w, "invalid signature", http.StatusUnauthorized)
				return
			}
			logger.Error().Err(err).Str("provider", provider.String()).Msg("Webhook processing failed")
			// 500 asks the provider to redeliver.
			http.Error(w, "failed to process webhook", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"received": "true"})
	}
}

// importHandler runs one paginated import batch.
func importHandler(connectorSvc *application.ConnectorService, importSvc *application.ImportService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		if uid == "" {
			http.Error(w, "X-User-ID header is required", http.StatusBadRequest)
			return
		}
		provider, err := domain.ParseProvider(chi.URLParam(r, "provider"))
		if err != nil {
			writeError(w, err)
			return
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		offset := 0
		if raw := r.URL.Query().Get("offset"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
				offset = parsed
			}
		}

		cfg, err := connectorSvc.GetConfig(r.Context(), uid, provider)
		if err != nil {
			writeError(w, err)
			return
		}
		result, err := importSvc.RunImport(r.Context(), cfg, limit, offset)
		if err != nil {
			logger.Error().Err(err).Str("provider", provider.String()).Msg("Import failed")
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// inventoryHandler returns current provider stock/price for the
// requested SKUs.
func inventoryHandler(connectorSvc *application.ConnectorService, importSvc *application.ImportService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		if uid == "" {
			http.Error(w, "X-User-ID header is required", http.StatusBadRequest)
			return
		}
		provider, err := domain.ParseProvider(chi.URLParam(r, "provider"))
		if err != nil {
			writeError(w, err)
			return
		}
		skus := r.URL.Query()["sku"]
		if len(skus) == 0 {
			http.Error(w, "at least one sku parameter is required", http.StatusBadRequest)
			return
		}

		cfg, err := connectorSvc.GetConfig(r.Context(), uid, provider)
		if err != nil {
			writeError(w, err)
			return
		}
		levels, err := importSvc.FetchInventoryLevels(r.Context(), cfg, skus)
		if err != nil {
			logger.Error().Err(err).Str("provider", provider.String()).Msg("Inventory fetch failed")
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, levels)
	}
}

// reportHandler returns the full reconciliation report.
func reportHandler(svc *application.ReconciliationService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.Report(r.Context())
		if err != nil {
			logger.Error().Err(err).Msg("Reconciliation report failed")
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// pendingHandler returns the SKUs awaiting a mapping decision.
func pendingHandler(svc *application.ReconciliationService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		skus, err := svc.PendingMappings(r.Context())
		if err != nil {
			logger.Error().Err(err).Msg("Pending mappings query failed")
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, skus)
	}
}

// createMappingHandler records one manual mapping.
func createMappingHandler(svc *application.ReconciliationService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body domain.MappingPair
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if body.SupplierSKU == "" || body.MasterSKU == "" {
			http.Error(w, "supplier_sku and master_sku are required", http.StatusBadRequest)
			return
		}

		if err := svc.CreateManualMapping(r.Context(), body.SupplierSKU, body.MasterSKU); err != nil {
			logger.Error().Err(err).Str("supplierSku", body.SupplierSKU).Msg("Manual mapping failed")
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"supplier_sku": body.SupplierSKU,
			"master_sku":   body.MasterSKU,
			"status":       "mapped",
		})
	}
}

// bulkMappingHandler records many manual mappings, reporting per-pair
// outcomes.
func bulkMappingHandler(svc *application.ReconciliationService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Pairs []domain.MappingPair `json:"pairs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if len(body.Pairs) == 0 {
			http.Error(w, "pairs is required", http.StatusBadRequest)
			return
		}

		outcomes := svc.BulkCreateMappings(r.Context(), body.Pairs)
		writeJSON(w, http.StatusOK, outcomes)
	}
}
