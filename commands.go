package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli"

	"github.com/fragmede/hnreader/internal/api"
	"github.com/fragmede/hnreader/internal/config"
	"github.com/fragmede/hnreader/internal/feed"
	"github.com/fragmede/hnreader/internal/fetch"
	"github.com/fragmede/hnreader/internal/logging"
	"github.com/fragmede/hnreader/internal/newsletter"
	"github.com/fragmede/hnreader/internal/server"
	"github.com/fragmede/hnreader/internal/store"
	"github.com/fragmede/hnreader/internal/ui"
)

// globalString reads a root flag from either the root or a command context.
func globalString(c *cli.Context, name string) string {
	if v := c.GlobalString(name); v != "" {
		return v
	}
	return c.String(name)
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(globalString(c, "config"))
	if err != nil {
		return config.Config{}, err
	}
	if lvl := globalString(c, "log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return config.Config{}, fmt.Errorf("creating cache dir: %w", err)
	}
	return cfg, nil
}

func newClient(cfg config.Config) *api.Client {
	return api.NewClient(
		api.WithBaseURL(cfg.Source.BaseURL),
		api.WithSearchURL(cfg.Source.SearchURL),
		api.WithTimeout(cfg.Source.RequestTimeout),
		api.WithUserAgent(cfg.Source.UserAgent),
	)
}

func newScheduler(cfg config.Config, client *api.Client, logger *log.Logger) *fetch.Scheduler {
	f := cfg.Feed
	return fetch.New(client, fetch.Options{
		MaxConcurrent:   f.MaxConcurrentFetches,
		PerItemTimeout:  f.PerItemTimeout,
		MaxAttempts:     f.MaxRetries,
		InterItemDelay:  f.InterItemDelay,
		InterBatchDelay: f.InterBatchDelay,
	}, logger)
}

func runBrowse(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if m := c.String("mode"); m != "" {
		cfg.Feed.Mode = m
	}
	mode, err := feed.ParseMode(cfg.Feed.Mode)
	if err != nil {
		return err
	}
	initial := api.FeedTop
	if f := c.String("feed"); f != "" {
		if initial, err = api.ParseFeedType(f); err != nil {
			return err
		}
	}

	logger, closer, err := logging.New(cfg.LogPath, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer closer.Close()

	client := newClient(cfg)
	sched := newScheduler(cfg, client, logger)
	ctrl := feed.New(client, sched, feed.Options{
		PageSize:     cfg.Feed.PageSize,
		MaxTotalIDs:  cfg.Feed.MaxTotalIDs,
		Neighborhood: cfg.Feed.Neighborhood,
		Mode:         mode,
	}, logger)
	defer ctrl.Close()

	app := ui.NewApp(ui.Deps{
		Feed:         ctrl,
		Scheduler:    sched,
		Source:       client,
		CommentDepth: cfg.Feed.CommentDepth,
		InitialFeed:  initial,
		Log:          logger,
	})
	defer app.Close()

	logger.Info("starting", "version", version, "feed", initial, "mode", mode)
	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// newsletterParts builds everything that sends a digest. The returned
// closer releases the database.
func newsletterParts(cfg config.Config, dryRun bool, logger *log.Logger) (*store.DB, *newsletter.Job, io.Closer, error) {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, err
	}

	client := newClient(cfg)
	sched := newScheduler(cfg, client, logger)

	var sender newsletter.Sender = newsletter.LogSender{Log: logger}
	switch {
	case dryRun || cfg.Newsletter.DryRun:
	case cfg.Newsletter.ResendAPIKey == "":
		logger.Warn("no resend api key configured, digests will only be logged")
	default:
		sender = newsletter.NewResendSender(cfg.Newsletter.ResendURL, cfg.Newsletter.ResendAPIKey)
	}

	job := &newsletter.Job{
		Composer:   newsletter.NewComposer(client, sched, cfg.Newsletter.StoryCount, logger),
		Dispatcher: newsletter.NewDispatcher(db, sender, cfg.Newsletter.From, cfg.Newsletter.AppURL, logger),
	}
	return db, job, db, nil
}

func newSchedule(cfg config.Config, job *newsletter.Job, logger *log.Logger) *newsletter.Schedule {
	return newsletter.NewSchedule(cfg.Newsletter.SendHour, func(ctx context.Context) error {
		rep, err := job.Run(ctx)
		if err != nil {
			return err
		}
		logger.Info(rep.Message())
		return nil
	}, logger)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	logger := logging.NewWriter(os.Stderr, cfg.Log.Level)

	db, job, closer, err := newsletterParts(cfg, false, logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	srv, err := server.New(db, job, cfg.Server.SessionSecret, cfg.Server.APIKey, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if c.Bool("schedule") {
		s := newSchedule(cfg, job, logger)
		defer s.Stop()
		go s.Run(ctx)
	}
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}

func runNewsletterSend(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := logging.NewWriter(os.Stderr, cfg.Log.Level)

	_, job, closer, err := newsletterParts(cfg, c.Bool("dry-run"), logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := signalContext()
	defer cancel()

	rep, err := job.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, rep.Message())
	return nil
}

func runNewsletterSchedule(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := logging.NewWriter(os.Stderr, cfg.Log.Level)

	_, job, closer, err := newsletterParts(cfg, c.Bool("dry-run"), logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := signalContext()
	defer cancel()

	newSchedule(cfg, job, logger).Run(ctx)
	return nil
}
