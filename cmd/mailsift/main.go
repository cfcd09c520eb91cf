// Command mailsift keeps one IMAP mailbox in sync: it idles on the
// folder, runs every new message through the processing pipeline, and
// serves the stored records over HTTP.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tdnguyen/mailsift/internal/api"
	"github.com/tdnguyen/mailsift/internal/classify"
	"github.com/tdnguyen/mailsift/internal/config"
	"github.com/tdnguyen/mailsift/internal/imapx"
	"github.com/tdnguyen/mailsift/internal/notify"
	"github.com/tdnguyen/mailsift/internal/pipeline"
	"github.com/tdnguyen/mailsift/internal/session"
	"github.com/tdnguyen/mailsift/internal/store"
	mongostore "github.com/tdnguyen/mailsift/internal/store/mongo"
	sqlitestore "github.com/tdnguyen/mailsift/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath(), "path to the YAML config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(*configPath, logger); err != nil {
		logger.Error("mailsift exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	var cls pipeline.Classifier
	if cfg.Classifier.Endpoint != "" {
		cls = classify.NewHTTP(cfg.Classifier.Endpoint, cfg.Classifier.Token,
			time.Duration(cfg.Classifier.TimeoutSec)*time.Second)
		logger.Info("using HTTP classifier", "endpoint", cfg.Classifier.Endpoint)
	} else {
		cls = classify.NewRules()
		logger.Info("using built-in rule classifier")
	}

	notifier, closeSinks, err := buildNotifier(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	proc := pipeline.New(pipeline.Config{Workers: cfg.Pipeline.Workers}, st, cls, notifier, logger)

	imapCfg := imapx.Config{
		Host:     cfg.IMAP.Host,
		Port:     cfg.IMAP.Port,
		Username: cfg.IMAP.Username,
		Password: cfg.IMAP.Password,
		TLS:      cfg.IMAP.TLS,
	}
	dial := func(ctx context.Context) (session.Conn, error) {
		return imapx.Dial(ctx, imapCfg, logger)
	}

	sess := session.New(session.Config{
		Folder:         cfg.IMAP.Folder,
		BackfillWindow: cfg.Session.BackfillWindow(),
		WatchdogPeriod: cfg.Session.WatchdogPeriod(),
		IndexBackfill:  cfg.Session.IndexBackfill,
		StartupRetries: cfg.Session.StartupRetries,
		InitialBackoff: time.Duration(cfg.Session.InitialBackoffMS) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.Session.MaxBackoffSec) * time.Second,
	}, dial, proc, logger)

	app := api.NewApp(api.NewRecordHandler(st))
	go func() {
		logger.Info("http api listening", "addr", cfg.API.Listen)
		if err := app.Listen(cfg.API.Listen); err != nil {
			logger.Error("http api stopped", "error", err)
			stop()
		}
	}()

	logger.Info("starting mailbox session",
		"host", cfg.IMAP.Host, "folder", cfg.IMAP.Folder,
		"store", cfg.Store.Driver)
	err = sess.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := app.ShutdownWithContext(shutdownCtx); shutdownErr != nil {
		logger.Error("http shutdown failed", "error", shutdownErr)
	}

	return err
}

// openStore builds the configured record store backend.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.RecordStore, error) {
	switch cfg.Store.Driver {
	case "mongo":
		return mongostore.New(ctx, cfg.Store.URI,
			mongostore.WithDatabase(cfg.Store.Database),
			mongostore.WithCollection(cfg.Store.Collection),
			mongostore.WithLogger(logger),
		)
	default:
		return sqlitestore.New(cfg.Store.Path)
	}
}

// buildNotifier wires every configured sink into a fan-out. With no
// sinks configured it returns nil and the pipeline logs instead.
func buildNotifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (pipeline.Notifier, func(), error) {
	var sinks []notify.Sink
	closeSinks := func() {}

	if cfg.Notify.SlackWebhookURL != "" {
		sinks = append(sinks, notify.NewSlack(cfg.Notify.SlackWebhookURL))
	}
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.WebhookToken))
	}
	if cfg.Notify.RedisAddr != "" {
		redisSink, err := notify.NewRedis(ctx, cfg.Notify.RedisAddr,
			cfg.Notify.RedisPassword, cfg.Notify.RedisChannel)
		if err != nil {
			return nil, closeSinks, err
		}
		sinks = append(sinks, redisSink)
		closeSinks = func() {
			if err := redisSink.Close(); err != nil {
				logger.Error("closing redis sink", "error", err)
			}
		}
	}

	if len(sinks) == 0 {
		return nil, closeSinks, nil
	}

	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	logger.Info("notification sinks configured", "sinks", names)
	return notify.NewFanout(sinks, logger), closeSinks, nil
}
