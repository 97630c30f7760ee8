// solder ingests Solana-style block data into a relational store and
// serves historical lookups over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/serfrae/solder/internal/config"
	"github.com/serfrae/solder/internal/httpapi"
	"github.com/serfrae/solder/internal/logging"
	"github.com/serfrae/solder/internal/pipeline"
	"github.com/serfrae/solder/internal/store"
)

const clientIdentifier = "solder"

// shutdownTimeout bounds how long the query server gets to finish
// in-flight requests once a shutdown signal arrives.
const shutdownTimeout = 10 * time.Second

var app = &cli.App{
	Name:    clientIdentifier,
	Usage:   "Solana-style block ingestion pipeline and query server",
	Version: "0.1.0",
}

func init() {
	app.Action = run
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:     "config",
			Aliases:  []string{"c"},
			Usage:    "path to TOML config file",
			Value:    "config.toml",
			EnvVars:  []string{"SOLDER_CONFIG"},
		},
	}
	app.Before = func(c *cli.Context) error {
		logging.SetDefault(logging.New(logging.NewTerminalHandler(os.Stderr, slog.LevelInfo)))
		return nil
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log := logging.Root()

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Database.DSN(), cfg.Database.PoolSize)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	p := pipeline.New(cfg, st)

	pipelineDone := make(chan struct{})
	var pipelineErr error
	go func() {
		defer close(pipelineDone)
		pipelineErr = p.Run(ctx)
	}()

	server := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: httpapi.NewRouter(st),
	}
	go func() {
		log.Info("query server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("query server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("query server shutdown error", "err", err)
	}

	<-pipelineDone
	if pipelineErr != nil {
		log.Error("solder stopped with an error", "err", pipelineErr)
		return fmt.Errorf("pipeline: %w", pipelineErr)
	}
	log.Info("solder stopped")
	return nil
}
