package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"rentcal/internal/availability"
	"rentcal/internal/config"
	"rentcal/internal/ics"
	appLog "rentcal/internal/log"
	"rentcal/internal/refresh"
	"rentcal/internal/web"
)

const (
	version         = "0.1.0"
	shutdownTimeout = 10 * time.Second
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	verbose    bool
}

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv(os.Getenv)

	// CLI --listen overrides config file and PORT if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	level := appLog.ParseLevel(conf.LogLevel)
	if flags.verbose {
		level = appLog.LevelDebug
	}
	appLog.SetLevel(level)

	appLog.Info("rentcal starting", "version", version)

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"calendar_url", ics.RedactURL(conf.CalendarURL),
		"property_name", conf.PropertyName,
		"cache_ttl", conf.CacheTTL,
		"fetch_timeout", conf.Fetch.Timeout,
		"fetch_retries", conf.Fetch.Retries,
		"refresh", conf.RefreshCron,
		"horizon_days", conf.HorizonDays,
		"once", flags.once,
	)

	fetcher := ics.NewFetcher(conf.CalendarURL, ics.FetcherOptions{
		Timeout: conf.Fetch.Timeout.D(),
		Retry: ics.RetryPolicy{
			Attempts: conf.Fetch.Retries + 1,
			Backoff:  conf.Fetch.RetryBackoff.D(),
		},
	})
	cache := availability.New(fetcher,
		availability.WithTTL(conf.CacheTTL.D()),
		availability.WithExpandConfig(ics.ExpandConfig{
			Horizon:                time.Duration(conf.HorizonDays) * 24 * time.Hour,
			MaxOccurrencesPerEvent: conf.MaxOccurrencesPerEvent,
		}),
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.once {
		if err := runOnce(ctx, cache); err != nil {
			appLog.Error("sync failed", err)
			os.Exit(1)
		}
		return
	}

	if conf.RefreshCron != "" {
		sched, err := refresh.New(conf.RefreshCron, cache, conf.Fetch.Timeout.D())
		if err != nil {
			appLog.Error("failed to create refresh scheduler", err)
			os.Exit(1)
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			sched.Stop(stopCtx)
		}()
	}

	srv := web.NewServer(cache, web.Options{
		PropertyName: conf.PropertyName,
		CORSOrigins:  conf.CORSOrigins,
		TTL:          cache.TTL(),
	})

	if err := web.Serve(ctx, conf.Listen, srv.Handler(), shutdownTimeout); err != nil {
		appLog.Error("HTTP server failed", err, "listen", conf.Listen)
		stop()
		os.Exit(1)
	}

	appLog.Info("rentcal exiting")
}

// runOnce forces a single sync and prints the booked days, one per line.
func runOnce(ctx context.Context, cache *availability.Cache) error {
	res, err := cache.GetBookedDays(ctx, true)
	if err != nil {
		return err
	}
	appLog.Info("sync complete",
		"events", res.TotalEvents,
		"days", res.TotalDays,
		"last_sync", res.LastSync.OrEmpty(),
	)
	for _, d := range res.Days {
		fmt.Println(d)
	}
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "", "Path to YAML config file (created with defaults if missing)")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config and PORT if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one forced sync, print booked days and exit")
	flag.BoolVar(&cfg.verbose, "v", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
