package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"WaveFM/cache"
	"WaveFM/config"
	"WaveFM/core/auth"
	"WaveFM/core/playback"
	"WaveFM/core/relay"
	"WaveFM/core/upstream"
	"WaveFM/db"
	"WaveFM/logger"
	"WaveFM/model"
	"WaveFM/repository"
	"WaveFM/storage"
)

// Start wires the application together and runs the HTTP server until
// an interrupt.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	auth.Init(cfg.JWTSecret)

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.CloseDB()

	if err := db.InitDB(); err != nil {
		logger.Fatal("Failed to initialize database schema", logger.ErrorField(err))
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("Failed to connect gorm", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(&model.PlayHistoryEntry{}); err != nil {
		logger.Fatal("Failed to migrate models", logger.ErrorField(err))
	}

	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()

	audioCacheReady := true
	if err := storage.InitMinio(cfg); err != nil {
		// The relay works without the object store; it just loses the
		// cached-audio fallback.
		logger.Warn("MinIO unavailable, audio caching disabled", logger.ErrorField(err))
		audioCacheReady = false
	}

	stationRepo := repository.NewMySQLStationRepository(db.DB)
	trackRepo := repository.NewMySQLTrackRepository(db.DB)
	queueRepo := repository.NewMySQLQueueRepository(db.DB)
	historyRepo := repository.NewGormHistoryRepository(db.GormDB)
	playbackStore := repository.NewMySQLPlaybackStore(db.DB)

	stateCache := cache.NewStateCache(db.RedisClient)
	engine := playback.NewEngine(playbackStore, stateCache, playback.Options{
		AdvanceFailureCap: cfg.AdvanceFailureCap,
	})
	projector := playback.NewProjector(engine, queueRepo, cfg.UpNextCount)
	streamRelay := relay.New(engine, trackRepo, upstream.NewAudioSource(), relay.Config{
		SeekThresholdSeconds: cfg.SeekThresholdSeconds,
		CacheAudio:           audioCacheReady,
	})

	apiHandler := NewAPIHandler(stationRepo, trackRepo, queueRepo, historyRepo,
		engine, projector, streamRelay, upstream.NewResolver(), cfg)

	router := mux.NewRouter()

	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, x-now-playing")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Owner API.
	router.HandleFunc("/api/stations", apiHandler.AuthMiddleware(apiHandler.CreateStationHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/stations", apiHandler.ListStationsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/stations/{id}", apiHandler.AuthMiddleware(apiHandler.GetStationHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/stations/{id}/queue", apiHandler.AuthMiddleware(apiHandler.AddToQueueHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/stations/{id}/queue", apiHandler.AuthMiddleware(apiHandler.QueueActionHandler)).Methods(http.MethodPatch)
	router.HandleFunc("/api/stations/{id}/queue", apiHandler.AuthMiddleware(apiHandler.RemoveFromQueueHandler)).Methods(http.MethodDelete)

	// Public listener surfaces.
	router.HandleFunc("/api/listen/{listenKey}", apiHandler.ListenHandler).Methods(http.MethodGet)
	router.HandleFunc("/stream/{listenKey}", apiHandler.StreamHandler).Methods(http.MethodGet)
	router.HandleFunc("/ws/listen/{listenKey}", apiHandler.WSListenHandler)

	// A stream response lives as long as the listener stays connected,
	// so the server gets no write timeout.
	server := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server starting", logger.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("Server stopped")
}
