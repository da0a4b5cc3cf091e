package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"safi/cache"
	"safi/config"
	"safi/core/audio"
	"safi/core/events"
	"safi/core/job"
	"safi/core/separation"
	"safi/core/sweeper"
	"safi/db"
	"safi/logger"
	"safi/repository"
	"safi/storage"

	"github.com/gorilla/mux"
)

// RouterOptions collects the collaborators of the HTTP API.
type RouterOptions struct {
	Tracks         repository.TrackRepository
	Jobs           JobSubmitter
	Hub            *events.Hub
	Stems          StemRemover  // optional
	Static         http.Handler // optional, serves /static/
	UploadDir      string
	MaxUploadBytes int64
}

// NewRouter builds the gorilla/mux router for the API.
func NewRouter(opts RouterOptions) *mux.Router {
	trackHandler := NewTrackHandler(opts.Tracks, opts.Jobs, opts.UploadDir, opts.MaxUploadBytes)
	if opts.Stems != nil {
		trackHandler.WithStemRemover(opts.Stems)
	}
	if opts.Hub != nil {
		trackHandler.WithPublisher(opts.Hub)
	}

	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Range")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	router.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	// events 必须在 {id} 之前注册
	if opts.Hub != nil {
		router.Handle("/api/tracks/events", NewEventsHandler(opts.Hub)).Methods(http.MethodGet)
	}

	router.HandleFunc("/api/tracks", trackHandler.ListTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks", trackHandler.UploadTrackHandler).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/tracks/{id}", trackHandler.GetTrackHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}", trackHandler.DeleteTrackHandler).Methods(http.MethodDelete, http.MethodOptions)

	if opts.Static != nil {
		router.PathPrefix("/static/").Handler(opts.Static)
	}

	// Static file serving
	uploadsFileServer := http.FileServer(http.Dir(opts.UploadDir))
	router.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", uploadsFileServer))

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})

	return router
}

// Start wires every component from cfg and serves until SIGINT/SIGTERM.
func Start(cfg *config.Config) error {
	if err := ensureDirExists(cfg.UploadDir); err != nil {
		return err
	}

	gdb, err := db.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close(gdb)

	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	var tracks repository.TrackRepository = repository.NewGormTrackRepository(gdb)
	if cfg.RedisEnabled {
		client, err := cache.ConnectRedis(cfg)
		if err != nil {
			logger.Warn("Redis 不可用，曲目缓存已禁用", logger.ErrorField(err))
		} else {
			defer client.Close()
			tracks = cache.NewCachedTrackRepository(tracks, client, cfg.TrackCacheTTL)
			logger.Info("Successfully connected to Redis")
		}
	}

	hub := events.NewHub(32)
	jobOpts := []job.Option{job.WithPublisher(hub)}
	routerOpts := RouterOptions{
		Tracks:         tracks,
		Hub:            hub,
		UploadDir:      cfg.UploadDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}

	if cfg.MinioEnabled {
		store, err := storage.NewMinioStore(context.Background(), cfg)
		if err != nil {
			logger.Warn("MinIO 不可用，分轨将保留远程地址", logger.ErrorField(err))
		} else {
			archive := storage.NewStemArchive(store)
			jobOpts = append(jobOpts, job.WithArchiver(archive))
			routerOpts.Stems = archive
			routerOpts.Static = storage.NewStaticHandler(store)
		}
	}

	normalizer := audio.NewFFmpegNormalizer(cfg.FFmpegPath, cfg.FFmpegTimeout, cfg.FFmpegMaxOutput)
	separator := separation.NewReplicateClient(separation.Config{
		APIToken:     cfg.ReplicateAPIToken,
		BaseURL:      cfg.ReplicateBaseURL,
		ModelVersion: cfg.ReplicateModelVersion,
		Timeout:      cfg.SeparationTimeout,
		PollInterval: cfg.SeparationPollWait,
	})
	if cfg.ReplicateAPIToken == "" {
		logger.Warn("REPLICATE_API_TOKEN is not set, every job will fail until it is configured")
	}

	orchestrator := job.NewOrchestrator(tracks, normalizer, separator, jobOpts...)
	routerOpts.Jobs = orchestrator

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweep := sweeper.New(cfg.UploadDir, cfg.SweepInterval, cfg.RetentionWindow)
	sweep.Start(ctx)

	server := &http.Server{
		Addr:        cfg.ListenAddr(),
		Handler:     NewRouter(routerOpts),
		ReadTimeout: 5 * time.Minute,
		IdleTimeout: 120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		sweep.Stop()
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", logger.ErrorField(err))
	}

	sweep.Stop()
	logger.Info("等待进行中的任务结束")
	orchestrator.Wait()
	logger.Info("Server stopped")
	return nil
}

func ensureDirExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("Creating directory", logger.String("path", path))
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to check directory %s: %w", path, err)
	}
	return nil
}
