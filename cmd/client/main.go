package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/gophbell/internal/client/api"
	"github.com/dmitrijs2005/gophbell/internal/client/cli"
	"github.com/dmitrijs2005/gophbell/internal/client/config"
	"github.com/dmitrijs2005/gophbell/internal/client/localdb"
	"github.com/dmitrijs2005/gophbell/internal/client/notifications"
	"github.com/dmitrijs2005/gophbell/internal/client/realtime"
	"github.com/dmitrijs2005/gophbell/internal/client/services"
	"github.com/dmitrijs2005/gophbell/internal/client/session"
	"github.com/dmitrijs2005/gophbell/internal/client/storage"
	"github.com/dmitrijs2005/gophbell/internal/logging"
)

func main() {
	cfg := config.LoadConfig()
	logger := logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	repos, err := localdb.Open(ctx, cfg.DatabasePath, cfg.DeviceSecret)
	if err != nil {
		return err
	}
	defer repos.Close()

	sessions := session.NewStore(repos)

	client, err := api.NewClient(api.Options{
		BaseURL:           cfg.BackendURL,
		AnonKey:           cfg.AnonKey,
		Timeout:           cfg.RequestTimeout,
		MaxRetries:        cfg.MaxRetries,
		RetryBaseDelay:    cfg.RetryBaseDelay,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Logger:            logger.With("component", "api"),
	}, sessions)
	if err != nil {
		return err
	}

	wsURL := cfg.RealtimeURL
	if wsURL == "" {
		wsURL = realtime.URLFromBase(client.BaseURL())
	}
	rt := realtime.NewClient(realtime.Options{
		URL:               wsURL,
		APIKey:            cfg.AnonKey,
		JoinTimeout:       cfg.JoinTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		Logger:            logger.With("component", "realtime"),
	}, client.AccessToken)

	repo := notifications.NewRepository(client)
	manager := notifications.NewManager(repo, rt, notifications.ManagerOptions{
		ReconnectDelay: cfg.ReconnectDelay,
		Logger:         logger.With("component", "notifications"),
	})
	manager.Start(ctx)
	defer manager.Stop()

	var objects services.ObjectStore
	if cfg.StorageEndpoint != "" {
		s3store, err := storage.NewS3Store(ctx, storage.Options{
			Endpoint:        cfg.StorageEndpoint,
			Region:          cfg.StorageRegion,
			AccessKeyID:     cfg.StorageAccessKeyID,
			SecretAccessKey: cfg.StorageSecretAccessKey,
			Bucket:          cfg.AvatarBucket,
			PublicBaseURL:   cfg.BackendURL,
		})
		if err != nil {
			return err
		}
		objects = s3store
	}

	auth := services.NewAuthService(client, sessions, logger.With("component", "auth"))
	profiles := services.NewProfileService(client, sessions, objects, logger.With("component", "profile"))

	app := cli.NewApp(auth, profiles, repo, manager, logger)
	app.Run(ctx)
	return nil
}
