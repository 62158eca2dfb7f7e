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

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/cobra"

	"github.com/nicebartender/npcbridge/bridge"
	"github.com/nicebartender/npcbridge/convo"
	"github.com/nicebartender/npcbridge/db"
	"github.com/nicebartender/npcbridge/gemini"
	"github.com/nicebartender/npcbridge/metrics"
	"github.com/nicebartender/npcbridge/paramstore"
	"github.com/nicebartender/npcbridge/ws"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "npcbridge",
		Short:        "Bridge Minecraft character chat to Gemini",
		Long:         "npcbridge accepts game websocket connections, turns character requests into Gemini completions and replies in chat.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
	}
	fv := bindFlags(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd.Flags(), fv, os.Getenv)
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	}
	return cmd
}

func run(parent context.Context, cfg Config) error {
	level, _ := cfg.slogLevel()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiKey, err := resolveAPIKey(ctx, cfg)
	if err != nil {
		slog.Error("failed to resolve api key", "err", err)
		return err
	}

	gen, closeGen, err := newGenerator(ctx, cfg, apiKey)
	if err != nil {
		slog.Error("failed to create completion backend", "backend", cfg.Backend, "err", err)
		return err
	}
	defer closeGen()

	m, err := metrics.New()
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return err
	}
	defer func() {
		if err := m.Shutdown(context.Background()); err != nil {
			slog.Warn("metrics shutdown failed", "err", err)
		}
	}()

	store := convo.NewStore()
	br := bridge.New(bridge.Config{
		IgnoreSenders: cfg.IgnoreSenders,
		Characters:    cfg.Characters,
		HistoryTurns:  cfg.HistoryTurns,
	}, store, gemini.NewCompleter(gen, cfg.Timeout))
	br.Metrics = m

	srv := &server{store: store, metrics: m, now: time.Now}
	if cfg.DBPath != "" {
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			slog.Error("failed to open database", "err", err)
			return err
		}
		defer database.Close()
		br.Recorder = database
		srv.exchanges = database
	}

	hub := ws.NewHub(cfg.Subscriptions...)
	hub.OnMessage = func(c *ws.Client, data []byte) { br.Handle(c, data) }
	hub.OnConnect = func(*ws.Client) { m.ConnectionOpened() }
	hub.OnDisconnect = func(*ws.Client) { m.ConnectionClosed() }
	srv.hub = hub

	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("bridge starting", "addr", cfg.ListenAddr, "backend", cfg.Backend, "model", cfg.Model, "subscriptions", cfg.Subscriptions)
		serveErr <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "err", err)
			stop()
			<-hubDone
			br.Close()
			return err
		}
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown failed", "err", err)
	}
	<-hubDone
	br.Close()
	return nil
}

// resolveAPIKey prefers the key from the environment and falls back to the
// SSM parameter.
func resolveAPIKey(ctx context.Context, cfg Config) (string, error) {
	if cfg.APIKey != "" {
		return cfg.APIKey, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("load aws config: %w", err)
	}
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return "", err
	}
	return params.APIKey(ctx, cfg.APIKeyParam)
}

func newGenerator(ctx context.Context, cfg Config, apiKey string) (gemini.Generator, func(), error) {
	switch cfg.Backend {
	case "sdk":
		g, err := gemini.NewSDKGenerator(ctx, apiKey, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		return g, func() {
			if err := g.Close(); err != nil {
				slog.Warn("close gemini client failed", "err", err)
			}
		}, nil
	default:
		g, err := gemini.NewRESTGenerator(apiKey, gemini.WithBaseURL(cfg.BaseURL), gemini.WithModel(cfg.Model))
		if err != nil {
			return nil, nil, err
		}
		return g, func() {}, nil
	}
}
