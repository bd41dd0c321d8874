package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"carpooltally/internal/config"
	appLog "carpooltally/internal/log"
	"carpooltally/internal/pipeline"
	"carpooltally/internal/web"
)

type flagConfig struct {
	configPath string
	out        string
	tripsOut   string
	listen     string
	once       bool
	net        bool
	debug      bool
}

func main() {
	flags := parseFlags()

	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	appLog.Info("carpooltally starting", "version", "0.1.0")

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI flags override config file values if provided.
	if flags.out != "" {
		conf.Output = flags.out
	}
	if flags.tripsOut != "" {
		conf.TripsOutput = flags.tripsOut
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.net {
		conf.Net = true
	}

	appLog.Info("effective config",
		"timezone", conf.Timezone,
		"calendar_files", len(conf.CalendarFiles),
		"ics_count", len(conf.ICS),
		"lookback_days", conf.LookbackDays,
		"horizon_days", conf.HorizonDays,
		"output", conf.Output,
		"net", conf.Net,
		"refresh", conf.Refresh,
		"listen", conf.Listen,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	runner := pipeline.NewRunner(conf)

	if _, err := runner.RunOnce(ctx); err != nil {
		appLog.Error("pipeline run failed", err)
		// In watch/serve mode keep going; the next scheduled run may
		// succeed. One-shot mode fails hard.
		if flags.once || (conf.Refresh == "" && conf.Listen == "") {
			os.Exit(1)
		}
	}

	if flags.once || (conf.Refresh == "" && conf.Listen == "") {
		appLog.Info("carpooltally exiting")
		return
	}

	if conf.Listen != "" {
		go func() {
			if err := web.StartServer(ctx, conf, runner); err != nil {
				appLog.Error("http server failed", err, "listen", conf.Listen)
				cancel()
			}
		}()
	}

	if conf.Refresh != "" {
		if err := runner.Watch(ctx, conf.Refresh); err != nil {
			appLog.Error("watch mode failed", err)
			os.Exit(1)
		}
	} else {
		<-ctx.Done()
	}

	appLog.Info("carpooltally exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "carpooltally.yaml", "Path to config file")
	flag.StringVar(&cfg.out, "out", "", "Balance CSV output path (overrides config if set)")
	flag.StringVar(&cfg.tripsOut, "dump-trips", "", "Also write the normalized trip log CSV to this path")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address for the balance API (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one accounting pass and exit, even if refresh/listen are configured")
	flag.BoolVar(&cfg.net, "net", false, "Write netted reciprocal pairs instead of the raw tally")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
