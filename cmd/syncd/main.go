package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"evernote-syncd/internal/config"
	"evernote-syncd/internal/handler"
	"evernote-syncd/internal/localstore"
	"evernote-syncd/internal/middleware"
	"evernote-syncd/internal/remote"
	"evernote-syncd/internal/repository"
	"evernote-syncd/internal/service"
	"evernote-syncd/internal/transcode"
	"evernote-syncd/internal/websocket"
	"evernote-syncd/pkg/hash"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/gorilla/mux"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	hashPassword := flag.Bool("hash-password", false, "read a password from stdin and print its API_PASSWORD_HASH value")
	flag.Parse()

	if *hashPassword {
		runHashPassword()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := newLogger(cfg.Logging)

	store, err := localstore.New(cfg.Notes.Dir, logger)
	if err != nil {
		logger.Fatalf("Failed to open note directory: %v", err)
	}

	var watcher *localstore.Watcher
	if cfg.Notes.Watch {
		watcher, err = localstore.NewWatcher(cfg.Notes.Dir, logger)
		if err != nil {
			logger.Fatalf("Failed to watch note directory: %v", err)
		}
		go watcher.Run()
		defer watcher.Close()
	}

	stateRepo, err := newStateRepo(cfg.State, logger)
	if err != nil {
		logger.Fatalf("Failed to open sync state backend: %v", err)
	}

	noteStore := remote.NewClient(remote.ClientOptions{
		BaseURL: cfg.Evernote.BaseURL,
		Logger:  logger,
	})

	transcoder := transcode.New(store, logger, true)
	session := service.NewSession(noteStore, cfg.Credentials(), cfg.Evernote.Notebook, transcoder, logger)

	wsManager := websocket.NewManager(
		cfg.WebSocket.MaxClients,
		cfg.WebSocket.WriteWait,
		cfg.WebSocket.PongWait,
		cfg.WebSocket.PingPeriod,
		logger,
	)

	syncManager := service.NewSyncManager(session, store, watcher, stateRepo, wsManager, logger)

	authHandler := handler.NewAuthHandler(cfg.API)
	syncHandler := handler.NewSyncHandler(syncManager, logger)
	noteHandler := handler.NewNoteHandler(store)
	wsHandler := handler.NewWebSocketHandler(wsManager, logger)

	r := mux.NewRouter()
	r.Use(middleware.LoggerMiddleware(logger))

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")
	api.HandleFunc("/auth/refresh", authHandler.Refresh).Methods("POST")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(cfg.API.JWTSecret))

	protected.HandleFunc("/sync", syncHandler.Trigger).Methods("POST")
	protected.HandleFunc("/sync/status", syncHandler.Status).Methods("GET")
	protected.HandleFunc("/sync/runs", syncHandler.History).Methods("GET")

	protected.HandleFunc("/notes", noteHandler.List).Methods("GET")
	protected.HandleFunc("/notes/{id}", noteHandler.Get).Methods("GET")

	protected.HandleFunc("/ws", wsHandler.HandleConnection)

	r.HandleFunc("/health", healthHandler).Methods("GET")

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runScheduler(rootCtx, syncManager, cfg.Sync.Interval, logger)

	go func() {
		logger.Printf("Starting evernote-syncd on %s (notebook %q, notes in %s)",
			addr, cfg.Evernote.Notebook, cfg.Notes.Dir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-rootCtx.Done()

	logger.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Println("Stopped gracefully")
}

// runScheduler triggers a sync cycle on a fixed interval, including one
// immediately at startup. An interval of zero disables the schedule and
// leaves syncing to the control API.
func runScheduler(ctx context.Context, m *service.SyncManager, interval time.Duration, logger *log.Logger) {
	if interval <= 0 {
		logger.Printf("Scheduled sync disabled; use the control API to trigger cycles")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := m.RunCycle(ctx); err != nil {
			logger.Printf("[sync] cycle failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func newLogger(cfg config.LoggingConfig) *log.Logger {
	if cfg.File == "" {
		return log.Default()
	}
	out := io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	})
	logger := log.New(out, "", log.LstdFlags)
	log.SetOutput(out)
	return logger
}

func newStateRepo(cfg config.StateConfig, logger *log.Logger) (repository.SyncStateRepository, error) {
	var client *kivik.Client
	if cfg.Backend == repository.BackendCouch {
		var err error
		client, err = kivik.New("couch", cfg.CouchURL)
		if err != nil {
			return nil, fmt.Errorf("connect to CouchDB: %w", err)
		}

		exists, err := client.DBExists(context.Background(), cfg.CouchDB)
		if err != nil {
			return nil, fmt.Errorf("check database existence: %w", err)
		}
		if !exists {
			if err := client.CreateDB(context.Background(), cfg.CouchDB); err != nil {
				return nil, fmt.Errorf("create database: %w", err)
			}
			logger.Printf("Created database: %s", cfg.CouchDB)
		}
	}
	return repository.NewSyncStateRepository(cfg.Backend, cfg.Path, client, cfg.CouchDB)
}

func runHashPassword() {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		log.Fatalf("Failed to read password: %v", err)
	}
	hashed, err := hash.Hash(string(trimNewline(data)))
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}
	fmt.Println(hashed)
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"evernote-syncd"}`))
}
