// Package main runs the translation pool server: the Redis Streams
// transport, the admission queues, both autoscaling worker pools and the
// admin/metrics HTTP endpoints, all in one process.
//
// Admin API (ADMIN_ADDR, default :8081):
//
//	GET  /stats    - pool manager statistics snapshot
//	POST /schedule - register a recurring translation request
//	GET  /healthz  - liveness plus Redis reachability
//
// Request format for /schedule:
//
//	{
//	  "spec": "0 * * * * *",
//	  "text": "rapport horaire",
//	  "targetLanguages": ["en", "es"]
//	}
//
// Prometheus metrics are served on METRICS_ADDR (default :8080) under
// /metrics.
//
// Usage:
//
//	go run cmd/server/main.go
//
// Configuration comes from the environment; a .env file is honored.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"babelpool/pkg/cache"
	"babelpool/pkg/config"
	"babelpool/pkg/logger"
	"babelpool/pkg/pool"
	"babelpool/pkg/queue"
	"babelpool/pkg/translate"
	"babelpool/pkg/transport"
)

// Prometheus metrics, sampled from the pool manager every few seconds.
var (
	// queueDepth tracks the number of items waiting in each admission
	// queue, including tasks parked in the batch accumulator.
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "babelpool_queue_depth",
		Help: "Number of items waiting in each admission queue",
	}, []string{"queue"})

	// poolWorkers reports worker counts per pool.
	// Labels:
	//   - pool: "normal" or "any"
	//   - state: "current" (spawned) or "active" (mid-task)
	poolWorkers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "babelpool_pool_workers",
		Help: "Worker counts per pool",
	}, []string{"pool", "state"})

	poolUtilization = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "babelpool_pool_utilization",
		Help: "Fraction of each pool's workers currently busy",
	}, []string{"pool"})

	tasksProcessed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "babelpool_tasks_processed",
		Help: "Cumulative queue items dispatched to workers",
	})

	tasksFailed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "babelpool_tasks_failed",
		Help: "Cumulative queue items that failed processing",
	})

	translationsCompleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "babelpool_translations_completed",
		Help: "Cumulative per-language translations published",
	})

	poolRejections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "babelpool_pool_full_rejections",
		Help: "Tasks rejected because an admission queue was full",
	})

	avgProcessingTime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "babelpool_avg_processing_seconds",
		Help: "Mean seconds per dispatched queue item",
	})
)

// authMiddleware wraps an http.HandlerFunc and enforces API key
// authentication. An empty key disables the check (dev mode).
func authMiddleware(next http.HandlerFunc, requiredKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if requiredKey == "" {
			next(w, r)
			return
		}

		if r.Header.Get("X-API-Key") != requiredKey {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}

// enableCORS wraps an http.HandlerFunc and adds CORS headers. It runs
// before auth so preflight requests never fail the key check.
func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-API-Key")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// setupRouter configures the admin HTTP handlers and returns the mux.
func setupRouter(mgr *pool.Manager, srv *transport.Server, rdb *redis.Client, apiKey string) *http.ServeMux {
	mux := http.NewServeMux()

	// statsHandler returns the full manager snapshot: queues, pools and
	// cumulative counters.
	mux.HandleFunc("/stats", enableCORS(authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(mgr.Stats()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}, apiKey)))

	// scheduleHandler registers a recurring translation request.
	mux.HandleFunc("/schedule", enableCORS(authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			Spec            string   `json:"spec"`
			Text            string   `json:"text"`
			SourceLanguage  string   `json:"sourceLanguage"`
			TargetLanguages []string `json:"targetLanguages"`
			ModelType       string   `json:"modelType"`
			ConversationID  string   `json:"conversationId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Text == "" || len(req.TargetLanguages) == 0 {
			http.Error(w, "Missing text or target languages", http.StatusBadRequest)
			return
		}

		entryID, err := srv.Schedule(req.Spec, transport.Request{
			Text:            req.Text,
			SourceLanguage:  req.SourceLanguage,
			TargetLanguages: req.TargetLanguages,
			ModelType:       req.ModelType,
			ConversationID:  req.ConversationID,
		})
		if err != nil {
			http.Error(w, "Invalid cron spec: "+err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"entryId": entryID})
	}, apiKey)))

	// healthzHandler stays unauthenticated so probes work without keys.
	mux.HandleFunc("/healthz", enableCORS(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := rdb.Ping(ctx).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))

	return mux
}

// collectStats periodically samples the pool manager and updates the
// Prometheus gauges.
func collectStats(ctx context.Context, mgr *pool.Manager) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := mgr.Stats()

			queueDepth.WithLabelValues("normal").Set(float64(s.Queues.NormalQueued))
			queueDepth.WithLabelValues("any").Set(float64(s.Queues.AnyQueued))
			queueDepth.WithLabelValues("fast").Set(float64(s.Queues.FastQueued))
			queueDepth.WithLabelValues("pending_batch").Set(float64(s.Queues.PendingBatch))

			for _, p := range []pool.Stats{s.NormalPool, s.AnyPool} {
				poolWorkers.WithLabelValues(p.Name, "current").Set(float64(p.CurrentWorkers))
				poolWorkers.WithLabelValues(p.Name, "active").Set(float64(p.ActiveWorkers))
				poolUtilization.WithLabelValues(p.Name).Set(p.Utilization)
			}

			tasksProcessed.Set(float64(s.TasksProcessed))
			tasksFailed.Set(float64(s.TasksFailed))
			translationsCompleted.Set(float64(s.TranslationsCompleted))
			poolRejections.Set(float64(s.Queues.Rejections))
			avgProcessingTime.Set(s.AvgProcessingTime)
		}
	}
}

func buildCache(cfg *config.Settings, rdb *redis.Client) cache.TranslationCache {
	if !cfg.CacheEnabled {
		logger.Log.Info().Msg("Translation cache disabled")
		return nil
	}
	if cfg.CacheBackend == "memory" {
		logger.Log.Warn().Msg("Using in-process translation cache; entries are lost on restart")
		return cache.NewMemoryCache(cfg.CacheTTL)
	}
	return cache.NewRedisCache(rdb, cfg.CacheTTL)
}

func poolConfig(w config.WorkerSettings, cfg *config.Settings) pool.Config {
	return pool.Config{
		Default:         w.Default,
		Min:             w.Min,
		Max:             w.Max,
		ScalingMax:      w.ScalingMax,
		DynamicScaling:  cfg.DynamicScaling,
		ScalingInterval: cfg.ScalingInterval,
	}
}

func managerConfig(cfg *config.Settings) pool.ManagerConfig {
	return pool.ManagerConfig{
		Queue: queue.Config{
			NormalSize:           cfg.NormalPoolSize,
			AnySize:              cfg.AnyPoolSize,
			FastSize:             cfg.FastPoolSize,
			BatchEnabled:         cfg.BatchEnabled,
			BatchWindow:          cfg.BatchWindow,
			BatchMaxSize:         cfg.BatchMaxSize,
			PriorityQueueEnabled: cfg.PriorityQueueEnabled,
			ShortTextThreshold:   cfg.ShortTextThreshold,
		},
		Normal: poolConfig(cfg.NormalWorkers, cfg),
		Any:    poolConfig(cfg.AnyWorkers, cfg),
	}
}

// main wires the whole service together and blocks until SIGINT or
// SIGTERM, then shuts down without losing admitted work: transport
// first, pool drain second.
func main() {
	godotenv.Load()
	cfg := config.Load()

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Log.Fatal().Err(err).Str("url", cfg.RedisURL).Msg("Invalid REDIS_URL")
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Log.Fatal().Err(err).Msg("Redis unreachable")
	}
	cancelPing()

	translator := translate.NewHTTPTranslator(translate.HTTPConfig{
		BaseURL: cfg.InferenceURL,
		APIKey:  cfg.InferenceAPIKey,
		Timeout: cfg.InferenceTimeout,
	})

	srv := transport.NewServer(rdb, transport.Config{MaxTextLength: cfg.MaxTranslationLength})
	proc := translate.NewProcessor(translator, buildCache(cfg, rdb), srv.PublishResult)
	mgr := pool.NewManager(managerConfig(cfg), proc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr.Start()
	if err := srv.Start(ctx, mgr); err != nil {
		logger.Log.Fatal().Err(err).Msg("Transport failed to start")
	}

	go collectStats(ctx, mgr)

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		logger.Log.Info().Str("addr", cfg.MetricsAddr).Msg("Metrics server listening")
		if err := http.ListenAndServe(cfg.MetricsAddr, metricsMux); err != nil {
			logger.Log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	if cfg.APIKey == "" {
		logger.Log.Warn().Msg("API_KEY not set. Admin authentication disabled.")
	} else {
		logger.Log.Info().Msg("Admin authentication enabled.")
	}

	go func() {
		mux := setupRouter(mgr, srv, rdb, cfg.APIKey)
		logger.Log.Info().Str("addr", cfg.AdminAddr).Msg("Admin server listening")
		if err := http.ListenAndServe(cfg.AdminAddr, mux); err != nil {
			logger.Log.Error().Err(err).Msg("Admin server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Log.Info().Msg("Shutting down...")
	srv.Stop()
	mgr.Stop()
	logger.Log.Info().Msg("Shutdown complete")
}
