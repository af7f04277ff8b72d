package main

import (
	"fmt"
	"os"

	"github.com/yungbote/winescan-backend/internal/clients/gcp"
	"github.com/yungbote/winescan-backend/internal/clients/openai"
	"github.com/yungbote/winescan-backend/internal/clients/redisstore"
	"github.com/yungbote/winescan-backend/internal/handlers"
	"github.com/yungbote/winescan-backend/internal/pkg/logger"
	"github.com/yungbote/winescan-backend/internal/platform/envutil"
	"github.com/yungbote/winescan-backend/internal/server"
	"github.com/yungbote/winescan-backend/internal/services"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Job store. Writes are best-effort by contract, so an unreachable
	// redis degrades to a store that fails every operation instead of
	// taking the API down.
	jobStore, err := redisstore.New(log)
	if err != nil {
		log.Warn("Could not init JobStore, running degraded", "error", err)
		jobStore = redisstore.Degraded(log)
	}
	defer jobStore.Close()

	// Optional clients: the pipeline degrades without them.
	bucketService, err := gcp.NewBucketService(log)
	if err != nil {
		log.Warn("Could not init BucketService, images stay inline", "error", err)
		bucketService = nil
	}
	visionClient, err := gcp.NewVision(log)
	if err != nil {
		log.Warn("Could not init Vision client, skipping OCR hints", "error", err)
		visionClient = nil
	}

	// AI provider is mandatory; nothing works without it.
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Error("Could not init OpenAIClient", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up Services from main...")
	extractor, err := services.NewWineExtractor(log, openaiClient)
	if err != nil {
		log.Error("Could not init WineExtractor", "error", err)
		os.Exit(1)
	}
	enricher, err := services.NewEnricher(log, openaiClient)
	if err != nil {
		log.Error("Could not init Enricher", "error", err)
		os.Exit(1)
	}
	synth, err := services.NewSynthesizer(log, openaiClient)
	if err != nil {
		log.Error("Could not init Synthesizer", "error", err)
		os.Exit(1)
	}
	analysisService, err := services.NewAnalysisService(
		log,
		jobStore,
		bucketService,
		visionClient,
		extractor,
		enricher,
		synth,
		services.AnalysisConfigFromEnv(),
	)
	if err != nil {
		log.Error("Could not init AnalysisService", "error", err)
		os.Exit(1)
	}

	// Handlers + router
	scanHandler := handlers.NewScanHandler(analysisService)
	router := server.NewRouter(server.RouterConfig{ScanHandler: scanHandler})

	port := envutil.String("PORT", "8080")
	log.Info("Starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
