package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/isqad/syncflow/internal/access"
	"github.com/isqad/syncflow/internal/admin"
	"github.com/isqad/syncflow/internal/api"
	"github.com/isqad/syncflow/internal/bootstrap"
	"github.com/isqad/syncflow/internal/config"
	"github.com/isqad/syncflow/internal/core"
	"github.com/isqad/syncflow/internal/telemetry"
)

func main() {
	app := &cli.App{
		Name:  "syncflow-server",
		Usage: "Dashboard API for media rooms, sessions and recordings",
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
		Before: func(c *cli.Context) error {
			telemetry.InitLogger(config.Environment(c.String("env")))
			return nil
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "start the API server",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "create the database schema",
				Action: migrate,
			},
			{
				Name:  "create-token",
				Usage: "mint a join token for a session",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "session", Required: true, Usage: "session id"},
					&cli.StringFlag{Name: "user", Required: true, Usage: "user id"},
					&cli.StringFlag{Name: "intent", Value: string(access.JoinAsViewer), Usage: "join-as-viewer, join-as-publisher or moderate"},
				},
				Action: createToken,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.Load(config.Environment(c.String("env")), c.String("config"))
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	platform, err := bootstrap.Open(c.Context, cfg)
	if err != nil {
		return err
	}
	defer platform.Close()

	cookieStore := admin.NewCookieStore(cfg.Auth.SessionSecret, cfg.Env.IsProduction())

	firebaseAuth := api.NewFirebaseAuth(platform.Users, cookieStore)
	firebaseAuth.Addr = cfg.Auth.FirebaseAddr

	app := api.NewApp(api.AppOptions{
		Address:     cfg.Server.Address,
		MediaURL:    cfg.LiveKit.URL,
		Projects:    platform.Projects,
		Sessions:    platform.Registry,
		Egress:      platform.Coordinator,
		Summary:     platform.Summary,
		Media:       platform.Media,
		Auth:        firebaseAuth,
		Admin:       admin.NewApp(platform.Users, cookieStore).Router(),
		WebhookKeys: auth.NewSimpleKeyProvider(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret),
	})

	return app.Start()
}

func migrate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	platform, err := bootstrap.Open(c.Context, cfg)
	if err != nil {
		return err
	}
	defer platform.Close()

	ctx, cancel := context.WithTimeout(c.Context, time.Minute)
	defer cancel()

	if err := core.Migrate(ctx, platform.DB); err != nil {
		return err
	}
	log.Info().Str("service", "migrate").Msg("schema is up to date")
	return nil
}

func createToken(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	platform, err := bootstrap.Open(c.Context, cfg)
	if err != nil {
		return err
	}
	defer platform.Close()

	ctx := c.Context

	session, err := platform.Registry.GetSession(ctx, c.String("session"))
	if err != nil {
		return err
	}
	if !session.IsActive() {
		return core.ErrSessionNotStarted.With("create token", session.ID, nil)
	}

	user, err := platform.Users.Find(ctx, c.String("user"))
	if err != nil {
		return fmt.Errorf("find user %s: %w", c.String("user"), err)
	}

	grant, err := access.BuildGrant(user, user.Role(), session.LivekitRoomName, access.Intent(c.String("intent")))
	if err != nil {
		return err
	}
	token, err := platform.Media.IssueToken(ctx, grant.Identity, grant)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
