package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"gatekeeper/internal/admin"
	"gatekeeper/internal/platform/config"
	"gatekeeper/internal/platform/httpserver"
	"gatekeeper/internal/platform/logger"
	transportmetrics "gatekeeper/internal/platform/metrics"
	"gatekeeper/internal/telegram"
	"gatekeeper/internal/verification/metrics"
	"gatekeeper/internal/verification/service"
	"gatekeeper/internal/verification/token"
)

const (
	shutdownTimeout = 10 * time.Second
	statsDelay      = 10 * time.Second
	statsInterval   = 5 * time.Minute
)

// main wires the Telegram transport, the verification engine and the ops
// HTTP server. Business logic lives in internal/verification.
func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := mintToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "token: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("gatekeeper stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bot, err := telegram.Connect(cfg.BotToken, cfg.APIEndpoint, &http.Client{Timeout: cfg.PollTimeout + 10*time.Second})
	if err != nil {
		return fmt.Errorf("telegram self-check: %w", err)
	}
	log.Info("connected to telegram", "bot_id", bot.Self.ID, "username", bot.Self.UserName)

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	auditing, err := openAudit(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer auditing.close()

	texts := service.DefaultTexts()
	if cfg.MessagesFile != "" {
		if texts, err = service.LoadTexts(cfg.MessagesFile); err != nil {
			return err
		}
	}
	codec, err := newCodec(cfg.CallbackSecret, log)
	if err != nil {
		return err
	}

	client := telegram.NewClient(bot, telegram.WithClientLogger(log))
	engine, err := service.New(store, client, client,
		service.WithLogger(log),
		service.WithMetrics(metrics.New(nil)),
		service.WithAuditPublisher(auditing.publisher),
		service.WithGracePeriod(cfg.GracePeriod),
		service.WithCallTimeout(cfg.CallTimeout),
		service.WithTexts(texts),
		service.WithTokenCodec(codec),
	)
	if err != nil {
		return err
	}
	defer engine.Close()

	g, gctx := errgroup.WithContext(ctx)

	tm := transportmetrics.New(nil)
	dispatcherOpts := []telegram.DispatcherOption{
		telegram.WithDispatcherLogger(log),
		telegram.WithDispatcherMetrics(tm),
	}
	var adminOpts []admin.Option
	if auditing.reader != nil {
		adminOpts = append(adminOpts, admin.WithAuditReader(auditing.reader))
	}

	var dispatcher *telegram.Dispatcher
	switch cfg.Mode {
	case config.ModeMassVerify:
		mass := service.NewMassVerifier(engine)
		dispatcher = telegram.NewDispatcher(mass, dispatcherOpts...)
		adminOpts = append(adminOpts, admin.WithMassStats(mass))
		g.Go(func() error {
			return mass.Run(gctx, statsDelay, statsInterval)
		})
	default:
		dispatcherOpts = append(dispatcherOpts, telegram.WithJoins(engine), telegram.WithResponses(engine))
		dispatcher = telegram.NewDispatcher(engine, dispatcherOpts...)
	}

	srv := httpserver.New(cfg.HTTPAddr, newOpsRouter(cfg, log, store, engine, adminOpts))
	g.Go(func() error {
		return httpserver.Serve(gctx, srv, shutdownTimeout)
	})

	poller := telegram.NewPoller(bot,
		telegram.WithPollTimeout(cfg.PollTimeout),
		telegram.WithPollerLogger(log),
		telegram.WithPollerMetrics(tm),
	)
	g.Go(func() error {
		err := poller.Run(gctx, dispatcher.Dispatch)
		dispatcher.Wait()
		return err
	})

	log.Info("gatekeeper started",
		"mode", cfg.Mode,
		"store", cfg.StoreDriver,
		"http_addr", cfg.HTTPAddr,
		"admin_api", cfg.AdminEnabled(),
		"grace_period", cfg.GracePeriod.String(),
	)

	err = g.Wait()
	log.Info("shutting down", "pending_challenges", engine.PendingCount())
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newCodec signs callback tokens. Without a configured secret, buttons from
// before a restart stop verifying, like the challenges themselves.
func newCodec(secret string, log *slog.Logger) (*token.Codec, error) {
	if secret != "" {
		return token.NewCodec([]byte(secret))
	}
	log.Warn("CALLBACK_SECRET not set, using a per-process secret")
	random, err := token.RandomSecret()
	if err != nil {
		return nil, err
	}
	return token.NewCodec(random)
}
