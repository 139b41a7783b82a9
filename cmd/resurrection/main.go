// Command resurrection boots the document-resurrection orchestration
// service: it loads configuration and reference data, wires the budget
// ledger, invoker, dedup cache and pipeline orchestrator together, and
// exposes them behind a small Gin HTTP surface.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/nhaka-archive/resurrection/internal/config"
	"github.com/nhaka-archive/resurrection/pkg/agentcore"
	"github.com/nhaka-archive/resurrection/pkg/agents"
	"github.com/nhaka-archive/resurrection/pkg/budget"
	"github.com/nhaka-archive/resurrection/pkg/cache"
	"github.com/nhaka-archive/resurrection/pkg/enhancement"
	"github.com/nhaka-archive/resurrection/pkg/invoker"
	"github.com/nhaka-archive/resurrection/pkg/orchestrator"
	"github.com/nhaka-archive/resurrection/pkg/reference"
	"github.com/nhaka-archive/resurrection/pkg/sink"
)

func main() {
	configDir := flag.String("config-dir", "configs", "directory containing models.yaml and reference.yaml")
	addr := flag.String("addr", ":8080", "HTTP listen address")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found, relying on process environment")
	}

	cfg, err := config.Load(*configDir+"/models.yaml", *configDir+"/reference.yaml")
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	tables, err := reference.Load(cfg.ReferenceDataPath)
	if err != nil {
		log.Error("failed to load reference data", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	ledger := budget.New(cfg.DailyBudgetCap, registry)

	var backend invoker.ModelBackend = invoker.NoopBackend{}
	if cfg.HasModelBackend() {
		log.Warn("no concrete remote model backend is wired into this build; falling back to deterministic agent behavior regardless of RESURRECTION_API_KEY")
	}

	inv := invoker.New(backend, ledger, invoker.Config{
		Pricing:   cfg.ModelPricing,
		RateLimit: rate.Limit(5),
		RateBurst: 10,
	}, log, registry)

	dedupCache := cache.New(cfg.CacheSize, registry)

	orc := buildOrchestrator(tables, inv, cfg)

	router := gin.Default()
	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	api.POST("/resurrection/submit", submitHandler(orc, dedupCache, log))
	api.GET("/budget", budgetHandler(ledger))
	api.POST("/budget/cap", setBudgetCapHandler(ledger))
	api.GET("/cache/stats", cacheStatsHandler(dedupCache))
	api.GET("/archive/:hash", archiveLookupHandler(dedupCache))

	log.Info("resurrection service starting", "addr", *addr)
	if err := router.Run(*addr); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func buildOrchestrator(tables *reference.Tables, inv *invoker.Invoker, cfg *config.Config) *orchestrator.Orchestrator {
	scanner := agentcore.NewBaseAgent(&agents.Scanner{
		Enhancer: enhancement.HeuristicEnhancer{}, Invoker: inv, Model: cfg.ScannerModel, MaxTokens: 2000,
	})
	linguist := agentcore.NewBaseAgent(&agents.Linguist{
		Reference: tables, Invoker: inv, Model: cfg.LinguistModel, MaxTokens: 800,
	})
	historian := agentcore.NewBaseAgent(&agents.Historian{
		Reference: tables, Invoker: inv, Model: cfg.HistorianModel, MaxTokens: 800,
	})
	validator := agentcore.NewBaseAgent(&agents.Validator{
		Invoker: inv, Model: cfg.ValidatorModel, MaxTokens: 400,
	})
	repair := agentcore.NewBaseAgent(&agents.RepairAdvisor{
		Reference: tables, Invoker: inv, Model: cfg.RepairModel, MaxTokens: 800,
	})
	return orchestrator.New(scanner, linguist, historian, validator, repair, orchestrator.DefaultDeadlines())
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func submitHandler(orc *orchestrator.Orchestrator, dedupCache *cache.Cache, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, _, err := c.Request.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing image field"})
			return
		}
		defer file.Close()

		image, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded image"})
			return
		}

		hash := contentHash(image)
		submissionID := uuid.New().String()
		c.Writer.Header().Set("X-Submission-Id", submissionID)
		log.Info("submission received", "submission_id", submissionID, "content_hash", hash)

		events := dedupCache.GetOrStart(c.Request.Context(), hash, func(ctx context.Context) *cache.PipelineRun {
			ac := agentcore.NewAnalysisContext(image)
			return orc.Run(ctx, ac)
		})

		sink.StreamSSE(c, events, log)
	}
}

func budgetHandler(ledger *budget.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, ledger.Snapshot())
	}
}

func setBudgetCapHandler(ledger *budget.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Cap float64 `json:"cap" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ledger.SetCap(body.Cap)
		c.JSON(http.StatusOK, ledger.Snapshot())
	}
}

func cacheStatsHandler(dedupCache *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, dedupCache.Stats())
	}
}

func archiveLookupHandler(dedupCache *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		hash := c.Param("hash")
		result, ok := dedupCache.Lookup(hash)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no archived result for that hash"})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func contentHash(image []byte) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:])
}
