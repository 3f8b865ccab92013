package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/isqad/syncflow/internal/bootstrap"
	"github.com/isqad/syncflow/internal/cleanup"
	"github.com/isqad/syncflow/internal/config"
	"github.com/isqad/syncflow/internal/telemetry"
)

func main() {
	app := &cli.App{
		Name:        "syncflow-cleanup",
		Usage:       "Egress cleanup daemon",
		Description: "Stops egress jobs left running after their session stopped",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "env",
				Usage:    "environment: either 'development' or 'production'",
				Required: true,
				EnvVars:  []string{"SYNCFLOW_ENV"},
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to the yaml config file",
				EnvVars: []string{"SYNCFLOW_CONFIG"},
			},
		},
		Action: start,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}

func start(c *cli.Context) error {
	env := config.Environment(c.String("env"))
	telemetry.InitLogger(env)

	cfg, err := config.Load(env, c.String("config"))
	if err != nil {
		return err
	}

	platform, err := bootstrap.Open(c.Context, cfg)
	if err != nil {
		return err
	}
	defer platform.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	daemon := cleanup.New(platform.NATS, cleanup.Options{
		Subject: cfg.Egress.CleanupSubj,
		Stopper: platform.Coordinator,
		Events:  platform.Publisher,
	})

	return daemon.Run(ctx)
}
