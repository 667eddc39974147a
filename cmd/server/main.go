// Command server boots the collabtext core: an Operational Transformation
// engine, a Room Manager, a websocket session layer, and the HTTP CRUD
// surface. Postgres and Redis connections are established before the
// listener opens so a half-wired server never accepts traffic.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"collabtext/internal/api"
	"collabtext/internal/auth"
	"collabtext/internal/bus"
	"collabtext/internal/config"
	"collabtext/internal/logging"
	"collabtext/internal/ot"
	"collabtext/internal/room"
	"collabtext/internal/session"
	"collabtext/internal/store"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "collabtext-server",
		Short: "Real-time collaborative document editing core",
	}

	var memoryOnly bool
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, memoryOnly)
		},
	}
	flags := serveCmd.Flags()
	flags.BoolVar(&memoryOnly, "memory", false, "use in-memory store and bus instead of Postgres/Redis (development only)")
	flags.Int("port", 5000, "HTTP listen port")
	flags.String("client-url", "*", "allowed CORS and websocket origin")
	flags.String("store-uri", "", "Postgres connection string")
	flags.String("bus-addr", "", "Redis address")
	flags.String("bus-password", "", "Redis password")
	flags.Int("bus-db", 0, "Redis database index")
	flags.String("jwt-secret", "", "HS256 token signing secret")
	flags.Duration("jwt-expires-in", 24*time.Hour, "issued token lifetime")
	flags.String("node-env", "", "development or production")
	root.AddCommand(serveCmd)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, memoryOnly bool) error {
	ctx := cmd.Context()
	cfg := config.Load()
	applyFlagOverrides(cmd, &cfg)
	logging.Init(cfg.NodeEnv)
	log := logging.WithComponent("main")

	serverID := uuid.NewString()
	log.Info().Str("server_id", serverID).Str("node_env", cfg.NodeEnv).Msg("starting collabtext server")

	docs, closeStore, err := buildStore(ctx, cfg, memoryOnly)
	if err != nil {
		return err
	}
	defer closeStore()

	busAdapter, closeBus, err := buildBus(ctx, cfg, memoryOnly)
	if err != nil {
		return err
	}
	defer closeBus()

	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		log.Warn().Msg("JWT_SECRET is empty; issued and verified tokens will use an empty signing key")
	}
	verifier := auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTExpiresIn)

	if cfg.IsProduction() {
		session.RestrictOrigin(cfg.ClientURL)
	}

	engine := ot.NewEngine(docs)
	rooms := room.NewManager(serverID, docs, busAdapter, engine)

	reconcileCtx, stopReconcile := context.WithCancel(ctx)
	defer stopReconcile()
	go rooms.ReconcileEvery(reconcileCtx, 5*time.Minute)

	mux := http.NewServeMux()
	mux.Handle("/", api.New(docs, rooms, verifier).Router())
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		session.ServeWs(rooms, verifier, w, r)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      corsMiddleware(cfg.ClientURL, mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("listening")
		serverErr <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}

	return nil
}

// applyFlagOverrides copies every flag the caller explicitly set onto
// cfg, so flags beat environment variables and .env values.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("port") {
		cfg.Port, _ = f.GetInt("port")
	}
	if f.Changed("client-url") {
		cfg.ClientURL, _ = f.GetString("client-url")
	}
	if f.Changed("store-uri") {
		cfg.StoreURI, _ = f.GetString("store-uri")
	}
	if f.Changed("bus-addr") {
		cfg.BusAddr, _ = f.GetString("bus-addr")
	}
	if f.Changed("bus-password") {
		cfg.BusPassword, _ = f.GetString("bus-password")
	}
	if f.Changed("bus-db") {
		cfg.BusDB, _ = f.GetInt("bus-db")
	}
	if f.Changed("jwt-secret") {
		cfg.JWTSecret, _ = f.GetString("jwt-secret")
	}
	if f.Changed("jwt-expires-in") {
		cfg.JWTExpiresIn, _ = f.GetDuration("jwt-expires-in")
	}
	if f.Changed("node-env") {
		cfg.NodeEnv, _ = f.GetString("node-env")
	}
}

// buildStore selects the Postgres-backed DocumentStore unless memoryOnly is
// set.
func buildStore(ctx context.Context, cfg config.Config, memoryOnly bool) (store.DocumentStore, func(), error) {
	if memoryOnly {
		logging.WithComponent("main").Warn().Msg("running with in-memory document store; state is not durable")
		return store.NewMemory(), func() {}, nil
	}

	pg, err := store.NewPostgres(ctx, cfg.StoreURI)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to document store: %w", err)
	}
	return pg, pg.Close, nil
}

// buildBus selects the Redis-backed Bus unless memoryOnly is set.
func buildBus(ctx context.Context, cfg config.Config, memoryOnly bool) (bus.Bus, func(), error) {
	if memoryOnly {
		logging.WithComponent("main").Warn().Msg("running with in-memory bus; no cross-instance fan-out")
		return bus.NewMemory(), func() {}, nil
	}

	rdb, err := bus.NewRedis(ctx, cfg.BusAddr, cfg.BusPassword, cfg.BusDB)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to bus: %w", err)
	}
	return rdb, func() { _ = rdb.Close() }, nil
}

// corsMiddleware applies the single allowed origin configured via
// CLIENT_URL to every response, answering preflight requests directly.
func corsMiddleware(allowedOrigin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
