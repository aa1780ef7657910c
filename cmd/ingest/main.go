package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"order-ingest/config"
	"order-ingest/internal/app"
	"order-ingest/internal/ingest"
	"order-ingest/internal/util"
	"order-ingest/internal/worker"
)

type appRunner struct {
	app *app.App
}

func (r appRunner) Ingest(ctx context.Context, tenantID string) (*ingest.Result, error) {
	return r.app.Ingest.Ingest(ctx, tenantID)
}

func (r appRunner) RunAll(ctx context.Context) ([]worker.TenantOutcome, error) {
	return r.app.Pool.RunAll(ctx)
}

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	factory := func() (Runner, func(), error) {
		a, err := app.New(cfg)
		if err != nil {
			return nil, nil, err
		}
		return appRunner{app: a}, a.Close, nil
	}

	code := execute(ctx, newRootCommand(factory), os.Args[1:], os.Stdout, os.Stderr)
	stop()
	util.SyncLogger()
	os.Exit(code)
}
