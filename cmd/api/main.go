package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/mbti-relay/backend/internal/config"
	"github.com/zhouzirui/mbti-relay/backend/internal/handler"
	"github.com/zhouzirui/mbti-relay/backend/internal/middleware"
	"github.com/zhouzirui/mbti-relay/backend/internal/model/personality"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/ai"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/chat"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/classify"
	"github.com/zhouzirui/mbti-relay/backend/internal/service/relay"
)

const sweepInterval = time.Minute

var (
	flagAddr     string
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "relay-api",
	Short: "Serve the MBTI conversation relay",
	Long: `relay-api serves a chat page and JSON/SSE/WebSocket APIs that relay each
user message to an OpenAI-compatible chat completion endpoint. After three
user messages the model is asked once for the user's MBTI type.

Configuration comes from the environment (and .env); --config overlays a YAML
file whose keys are the environment variable names.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx)
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address, overrides PORT")
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "YAML config file")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "trace, debug, info, warn or error; overrides LOG_LEVEL")
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file, using system environment only")
	}
	if flagConfig != "" {
		if err := config.ApplyFile(flagConfig); err != nil {
			return err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if flagAddr != "" {
		cfg.Server.Addr = flagAddr
	}
	level := cfg.Log.Level
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	zerolog.SetGlobalLevel(parseZerologLevel(level))

	personalities := personality.NewMemoryStore(personality.Seed())
	sessions := chat.NewService()
	relaySvc, err := buildRelay(ctx, cfg, personalities)
	if err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	router := handler.NewRouter(handler.Deps{
		Sessions:       sessions,
		Relay:          relaySvc,
		Personalities:  personalities,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Limiter:        limiter,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("relay listening")
		return runServer(gctx, srv)
	})
	g.Go(func() error {
		runSweeper(gctx, sessions, limiter, cfg.Server.SessionIdleTTL)
		return nil
	})
	return g.Wait()
}

// buildRelay wires the completion and classification services. A missing
// model configuration still yields a working relay whose replies report the
// problem as assistant turns.
func buildRelay(ctx context.Context, cfg *config.Config, personalities personality.Store) (*relay.Relay, error) {
	if !cfg.AI.Enabled() {
		log.Warn().Str("provider", cfg.AI.Provider).Msg("model credentials missing, replies will report the error")
		return relay.New(nil, nil, personalities), nil
	}

	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}

	var opts []ai.Option
	if cfg.AI.SystemPrompt != "" {
		opts = append(opts, ai.WithSystemPrompt(cfg.AI.SystemPrompt))
	}
	aiSvc, err := ai.NewService(chatModel, opts...)
	if err != nil {
		return nil, err
	}

	classifier, err := classify.NewService(ctx, chatModel, classify.Config{
		Enabled:   cfg.Classify.Enabled,
		Threshold: cfg.Classify.Threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("init classifier: %w", err)
	}

	log.Info().
		Str("provider", cfg.AI.Provider).
		Str("model", cfg.AI.Model).
		Bool("classify", classifier.Enabled()).
		Int("threshold", classifier.Threshold()).
		Msg("model services ready")
	return relay.New(aiSvc, classifier, personalities), nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// runSweeper drops idle sessions and forgotten rate-limit entries until ctx ends.
func runSweeper(ctx context.Context, sessions *chat.Service, limiter *middleware.RateLimiter, idleTTL time.Duration) {
	if idleTTL <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Sweep(idleTTL); n > 0 {
				log.Info().Int("removed", n).Int("remaining", sessions.Count()).Msg("swept idle sessions")
			}
			limiter.Prune(idleTTL)
		}
	}
}

// parseZerologLevel converts a string level into zerolog.Level with a safe default
func parseZerologLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
