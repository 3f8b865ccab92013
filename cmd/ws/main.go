package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/isqad/syncflow/internal/admin"
	"github.com/isqad/syncflow/internal/api"
	"github.com/isqad/syncflow/internal/bootstrap"
	"github.com/isqad/syncflow/internal/config"
	"github.com/isqad/syncflow/internal/telemetry"
	"github.com/isqad/syncflow/internal/ws"
)

func main() {
	app := &cli.App{
		Name:        "syncflow-ws",
		Usage:       "Websocket server",
		Description: "Live feed of session and egress events for the dashboard",
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
			&cli.StringFlag{
				Name:  "address",
				Usage: "listen IP and port, overrides ws.address from the config",
			},
		},
		Action: startWs,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}

func startWs(c *cli.Context) error {
	env := config.Environment(c.String("env"))
	telemetry.InitLogger(env)

	cfg, err := config.Load(env, c.String("config"))
	if err != nil {
		return err
	}
	if c.String("address") != "" {
		cfg.WS.Address = c.String("address")
	}
	// the api server publishes from another process
	if !cfg.Events.IsShared() {
		return fmt.Errorf("events driver %q can't feed a separate ws process, use redis or nats", cfg.Events.Driver)
	}

	platform, err := bootstrap.Open(c.Context, cfg)
	if err != nil {
		return err
	}
	defer platform.Close()

	firebaseAuth := api.NewFirebaseAuth(platform.Users, admin.NewCookieStore(cfg.Auth.SessionSecret, env.IsProduction()))
	firebaseAuth.Addr = cfg.Auth.FirebaseAddr

	wsApp := ws.New(ws.WsAppOptions{
		Address:  cfg.WS.Address,
		Auth:     firebaseAuth,
		Projects: platform.Projects,
		Events:   platform.Subscriber,
	})

	return wsApp.Start()
}
