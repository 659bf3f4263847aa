package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"evcal/internal/calendar"
	"evcal/internal/config"
	"evcal/internal/event"
	"evcal/internal/ics"
	"evcal/internal/jobs"
	appLog "evcal/internal/log"
	"evcal/internal/store"
	"evcal/internal/web"
)

const version = "0.1.0"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Root context with cancellation on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := rootCommand().Run(ctx, os.Args); err != nil {
		appLog.Error("command failed", err)
		os.Exit(1)
	}
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:    "evcal",
		Usage:   "calendar and event manager",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "/etc/evcal/config.yaml",
				Usage:   "path to config file",
				Sources: cli.EnvVars("EVCAL_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "HTTP listen address (overrides config if set)",
			},
			&cli.BoolFlag{
				Name:  "seed",
				Usage: "preload demo events into an empty store",
			},
			&cli.BoolFlag{
				Name:  "once-import",
				Usage: "import the configured ICS feeds once and exit",
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "backup",
				Usage:  "write one store backup to backup.dir and exit",
				Action: backupOnce,
			},
		},
	}
}

// loadConfig reads the config file, applies flag overrides and sets the log
// level.
func loadConfig(cmd *cli.Command) (*config.Config, *time.Location, error) {
	path := cmd.String("config")
	conf, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", path, err)
	}

	if listen := cmd.String("listen"); listen != "" {
		conf.Listen = listen
	}
	if cmd.Bool("seed") {
		conf.Store.Seed = true
	}
	if err := conf.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	loc, _ := conf.Location()
	return conf, loc, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	appLog.Info("evcal starting", "version", version)

	conf, loc, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"week_start", conf.WeekStart,
		"store", conf.Store.Driver,
		"backup_cron", conf.Backup.Cron,
		"import_refresh", conf.Imports.Refresh,
		"ics_count", len(conf.Imports.Sources),
		"once_import", cmd.Bool("once-import"),
	)

	st, err := openStore(ctx, conf, loc)
	if err != nil {
		return fmt.Errorf("open %s store: %w", conf.Store.Driver, err)
	}

	importer := newImporter(conf, st, loc)

	if cmd.Bool("once-import") {
		if importer == nil {
			appLog.Warn("no ICS sources configured; nothing to import")
			return nil
		}
		_, err := importer.Sync(ctx)
		return err
	}

	sessions := calendar.NewSessions(loc)
	builder := calendar.NewBuilder(calendar.ParseWeekStart(conf.WeekStart), loc)
	appLog.Debug("month grid", "week_start", builder.WeekStart().String())
	svc := event.NewService(st, builder)

	sched, err := newScheduler(conf, loc, st, sessions, importer)
	if err != nil {
		return err
	}
	sched.Start()

	srv := web.NewServer(svc, sessions, importer, web.Options{
		CalendarName:  "evcal",
		SessionMaxAge: conf.SessionIdle(),
	})
	httpServer := &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}
	sched.Stop(shutdownCtx)

	appLog.Info("evcal exiting")
	return runErr
}

func backupOnce(ctx context.Context, cmd *cli.Command) error {
	conf, loc, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(ctx, conf, loc)
	if err != nil {
		return fmt.Errorf("open %s store: %w", conf.Store.Driver, err)
	}
	return jobs.Backup(st, conf.Backup.Dir, conf.Backup.Keep)(ctx)
}

// openStore builds the configured backend and seeds it when requested and
// empty.
func openStore(ctx context.Context, conf *config.Config, loc *time.Location) (store.Store, error) {
	var st store.Store
	switch conf.Store.Driver {
	case config.DriverFile:
		f, err := store.OpenFile(conf.Store.Path, loc)
		if err != nil {
			return nil, err
		}
		appLog.Info("file store opened", "path", f.Path())
		st = f
	default:
		st = store.NewMemory()
	}

	if !conf.Store.Seed {
		return st, nil
	}
	existing, err := st.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		appLog.Info("store not empty; skipping seed", "event_count", len(existing))
		return st, nil
	}
	if err := store.Seed(ctx, st, store.SeedEvents(loc)); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	appLog.Info("store seeded with demo events")
	return st, nil
}

// newImporter returns nil when no feeds are configured.
func newImporter(conf *config.Config, st store.Store, loc *time.Location) *ics.Importer {
	if len(conf.Imports.Sources) == 0 {
		return nil
	}
	sources := make([]ics.Source, 0, len(conf.Imports.Sources))
	for _, s := range conf.Imports.Sources {
		sources = append(sources, ics.Source{
			ID:    s.ID,
			Name:  s.Name,
			URL:   s.URL,
			Color: s.Color,
		})
	}
	return ics.NewImporter(st, ics.NewFetcher(conf.Imports.CacheDir), sources, loc)
}

func newScheduler(conf *config.Config, loc *time.Location, st store.Store, sessions *calendar.Sessions, importer *ics.Importer) (*jobs.Scheduler, error) {
	sched := jobs.New(loc, 5*time.Minute)

	if err := sched.Add("backup", conf.Backup.Cron, jobs.Backup(st, conf.Backup.Dir, conf.Backup.Keep)); err != nil {
		return nil, fmt.Errorf("backup: %w", err)
	}
	if err := sched.Add("session-prune", conf.Sessions.PruneCron, jobs.PruneSessions(sessions, conf.SessionIdle())); err != nil {
		return nil, fmt.Errorf("session-prune: %w", err)
	}
	if importer != nil {
		if err := sched.Add("ics-import", conf.Imports.Refresh, jobs.Import(importer)); err != nil {
			return nil, fmt.Errorf("ics-import: %w", err)
		}
	}
	return sched, nil
}
