package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/kiliankoe/georacer/internal/ai"
	"github.com/kiliankoe/georacer/internal/ai/gemini"
	"github.com/kiliankoe/georacer/internal/ai/ollama"
	"github.com/kiliankoe/georacer/internal/ai/openai"
	"github.com/kiliankoe/georacer/internal/api"
	"github.com/kiliankoe/georacer/internal/catalog"
	"github.com/kiliankoe/georacer/internal/config"
	"github.com/kiliankoe/georacer/internal/db"
	"github.com/kiliankoe/georacer/internal/feed"
	"github.com/kiliankoe/georacer/internal/game"
	"github.com/kiliankoe/georacer/internal/store"
	"github.com/kiliankoe/georacer/internal/ws"
	staticserver "github.com/kiliankoe/georacer/static"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const version = "v0.3.0-dev"

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
		configFlag  = flag.String("config", "", "YAML file with game timings (overrides CONFIG_FILE)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`Georacer - Find the object, fastest wins

Usage: %s [options]

Options:
  -h, --help        Show this help message
  -v, --version     Show version information
  --port PORT       Port to listen on (default: 8080 or PORT env var)
  --config FILE     YAML file with game timings (default: CONFIG_FILE env var)

Environment Variables:
  PORT              Port to listen on (default: 8080)
  ORACLE_PROVIDER   Image judge: "gemini", "openai" or "ollama" (default: gemini)
  ORACLE_MODEL      Vision model (default depends on the provider)
  ORACLE_TIMEOUT    How long a guess may take to judge (default: 20s)
  GEMINI_API_KEY    Gemini API key
  OPENAI_API_KEY    OpenAI API key
  OPENAI_BASE_URL   Custom OpenAI API base URL (optional)
  OLLAMA_HOST       Ollama host URL (default: http://localhost:11434)
  DATABASE_URL      Postgres for objects and lobby snapshots (default: in memory)
  NATS_URL          Also stream lobby snapshots to NATS JetStream (optional)
  PUBLIC_URL        Base URL encoded in join QR codes (default: http://localhost:PORT)
  RESULTS_FILE      Append a summary of every finished game to this file (optional)
  ADMIN_USER        Username for object uploads and ending lobbies
  ADMIN_PASS        Password for object uploads and ending lobbies
  CONFIG_FILE       YAML file with game timings

Examples:
  %s                      Start server with default settings
  %s --port 3000          Start server on port 3000

Visit http://localhost:8080 after starting the server.
`, os.Args[0], os.Args[0], os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("Georacer %s\n", version)
		return
	}

	// zerolog setup (human-friendly console)
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not read .env")
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if *portFlag != "" {
		cfg.Port = *portFlag
		if os.Getenv("PUBLIC_URL") == "" {
			cfg.PublicURL = "http://localhost:" + cfg.Port
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	var (
		cat       catalog.Catalog = catalog.NewMemory()
		snapshots store.Fanout
		pool      *pgxpool.Pool
		err       error
	)
	if cfg.DatabaseURL != "" {
		pool, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if cat, err = catalog.NewPostgres(ctx, pool); err != nil {
			return err
		}
		pg, err := store.NewPostgres(ctx, pool)
		if err != nil {
			return err
		}
		snapshots = append(snapshots, pg)
	} else {
		log.Warn().Msg("DATABASE_URL not set, objects and snapshots live in memory")
		snapshots = append(snapshots, store.NewMemory())
	}
	if cfg.NatsURL != "" {
		jsCfg := store.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NatsURL
		js, err := store.NewJetStream(ctx, jsCfg)
		if err != nil {
			return err
		}
		defer js.Close()
		snapshots = append(snapshots, js)
	}

	oracle, err := newOracle(cfg)
	if err != nil {
		return err
	}
	log.Info().Str("provider", cfg.OracleProvider).Str("model", cfg.OracleModel).Msg("image judge ready")

	clock := clockwork.NewRealClock()
	manager := game.NewManager(game.Deps{
		Catalog:          cat,
		Oracle:           oracle,
		Store:            snapshots,
		Clock:            clock,
		Timings:          cfg.Game.Timings,
		SubscriberBuffer: cfg.Game.SubscriberBuffer,
		OracleTimeout:    cfg.OracleTimeout,
		EmptyLobbyTTL:    cfg.Game.EmptyLobbyTTL,
		ResultsFile:      cfg.ResultsFile,
	})
	targets := feed.New(cat, clock, cfg.Game.FeedPeriod, cfg.Game.SubscriberBuffer)

	// Gin setup with custom logger (skip socket noise)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(api.RequestLogger())

	var accounts gin.Accounts
	if cfg.AdminUser != "" && cfg.AdminPass != "" {
		accounts = gin.Accounts{cfg.AdminUser: cfg.AdminPass}
	} else {
		log.Warn().Msg("ADMIN_USER/ADMIN_PASS not set, admin routes are open")
	}
	api.New(manager, cat, cfg.PublicURL).Mount(r, accounts)
	ws.NewSocket(manager, targets, ws.DefaultConnConfig()).Mount(r)
	io := ws.New(manager).Mount(r)
	defer io.Close()

	// Serve frontend for all other routes
	r.NoRoute(func(c *gin.Context) {
		staticserver.Handler().ServeHTTP(c.Writer, c.Request)
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("public_url", cfg.PublicURL).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return targets.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		manager.Shutdown()
		return err
	})
	return g.Wait()
}

func newOracle(cfg config.Config) (*ai.Oracle, error) {
	providers := map[string]ai.Provider{
		"gemini": gemini.New(cfg.GeminiKey, ""),
		"openai": openai.New(cfg.OpenAIKey, cfg.OpenAIBaseURL),
		"ollama": ollama.New(cfg.OllamaHost),
	}
	p, ok := providers[cfg.OracleProvider]
	if !ok {
		return nil, fmt.Errorf("unknown ORACLE_PROVIDER %q", cfg.OracleProvider)
	}
	return ai.NewOracle(p, cfg.OracleModel), nil
}
