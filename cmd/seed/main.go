// Command seed applies the schema and the RBAC catalog, then exits. It lets
// deploys seed ahead of rolling out API replicas.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/geocoder89/taskflow/internal/app"
	"github.com/geocoder89/taskflow/internal/config"
	"github.com/geocoder89/taskflow/internal/observability"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Load()
	log := observability.NewLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("seed: startup failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	report, err := a.Bootstrap(ctx)
	if err != nil {
		log.Error("seed: bootstrap failed", "err", err)
		a.Close()
		os.Exit(1)
	}

	_ = json.NewEncoder(os.Stdout).Encode(report)
}
