package main

import (
	"batepapo/contract"
	"batepapo/infrastructure/http/server"
	"batepapo/infrastructure/storage"
	"batepapo/moderation"
	"batepapo/observability"
	"batepapo/repositories"
	"batepapo/runtime"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes reported to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const debugInspectorPort = 8081

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "batepapo terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run owns every resource so that deferred cleanups execute before exiting.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, _ := CharacterRune(config.CharReplacement)
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Stores
	participants, messages, closeStores, err := openStores(ctx, config, log)
	if err != nil {
		return exitRuntime, err
	}
	defer closeStores()

	// 3. Moderation
	moderator, err := moderation.NewModerator(config.Words(), charReplacement, log)
	if err != nil {
		return exitConfig, fmt.Errorf("moderation setup failed: %w", err)
	}
	sanitizer := moderation.NewSanitizer(moderator)

	// 4. Engine
	clock := contract.RealClock{}
	var engine *runtime.Engine
	metrics := observability.NewMetrics(func() float64 { return engine.ActiveParticipants() })
	engine = runtime.NewEngine(log, participants, messages, sanitizer, clock, metrics, runtime.Options{
		SweepInterval:     config.SweepInterval,
		InactivityTimeout: config.InactivityTimeout,
		RestartInterval:   config.RestartInterval,
	})
	engine.Start(ctx)
	defer engine.Stop()

	// 5. HTTP Server
	chatServer := server.NewChatServer(log, engine.Service(), metrics)
	httpServer := &http.Server{
		Addr: config.Address(),
		Handler: chatServer.Handler(server.RateLimit{
			RPS:   config.RateLimitRPS,
			Burst: config.RateLimitBurst,
		}),
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", httpServer.Addr, "storage", config.Storage)
		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 6. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return exitRuntime, err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return exitRuntime, fmt.Errorf("http shutdown failed: %w", err)
	}
	log.Info("Program stopped cleanly")
	return exitOK, nil
}

// openStores builds the registry and message log for the configured backend.
// The returned func releases whatever was opened.
func openStores(ctx context.Context, config Config, log *slog.Logger) (
	repositories.IParticipantRepository, repositories.IMessageRepository, func(), error,
) {
	if config.Storage == storageMemory {
		return repositories.NewParticipantRepository(), repositories.NewMessageRepository(log), func() {}, nil
	}

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("database opening failed: %w", err)
	}
	messages, err := storage.NewMessageRepository(db, log)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, fmt.Errorf("message store setup failed: %w", err)
	}

	if log.Enabled(ctx, slog.LevelDebug) {
		url := fmt.Sprintf("http://localhost:%d/inspect", debugInspectorPort)
		log.Info("Debug Badger inspector available", "url", url)
		database.StartDebugServer(db, debugInspectorPort, "/inspect", MessageMapper)
	}

	closeStores := func() {
		log.Info("Closing BadgerDB...")
		if err := messages.Close(); err != nil {
			log.Warn("Unable to release message sequence", "error", err)
		}
		_ = db.Close()
	}
	return storage.NewParticipantRepository(db, log), messages, closeStores, nil
}

// MessageMapper renders stored messages in the debug inspector. Other keys
// keep the default rendering.
func MessageMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	message, err := storage.DecodeMessage(val)
	if err != nil {
		return row
	}
	row.Type = string(message.Type)
	row.Timestamp = message.DisplayTime()
	row.EntityID = message.ID.String()[:8]
	row.Detail = fmt.Sprintf("%s -> %s: %s", message.From, message.To, message.Text)
	return row
}
