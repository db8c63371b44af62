package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"eventmap/internal/config"
	"eventmap/internal/explorer"
	appLog "eventmap/internal/log"
	"eventmap/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values; they override the config file.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	snapshot   bool
	debug      bool
}

func main() {
	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	appLog.Info("eventmap starting", "version", version)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if !flags.debug {
		appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"window_start", conf.Window.Start.String(),
		"window_end", conf.Window.End.String(),
		"max_markers", conf.Map.MaxMarkers,
		"capture", conf.Capture.Enabled,
		"once", flags.once,
		"snapshot", flags.snapshot,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(conf)
	if err != nil {
		appLog.Error("failed to set up pipeline", err)
		os.Exit(1)
	}

	data, err := p.load(ctx)
	if err != nil {
		appLog.Error("initial feed load failed", err)
		os.Exit(1)
	}
	ex := p.explorer(data)

	if flags.once {
		if err := dumpView(ex); err != nil {
			appLog.Error("failed to write view", err)
			os.Exit(1)
		}
		return
	}

	srv := web.NewServer(conf, ex)
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.ListenAndServe(ctx) }()

	if flags.snapshot {
		if err := p.capture(ctx); err != nil {
			appLog.Error("snapshot failed", err)
			stop()
			<-srvErr
			os.Exit(1)
		}
		stop()
		<-srvErr
		return
	}

	sched, err := p.schedule(ctx, srv)
	if err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	if sched != nil {
		sched.Start()
		defer func() { <-sched.Stop().Done() }()
	}
	if conf.Capture.Enabled {
		go func() {
			if err := p.capture(ctx); err != nil {
				appLog.Error("initial capture failed", err)
			}
		}()
	}

	if err := <-srvErr; err != nil {
		appLog.Error("HTTP server failed", err)
		os.Exit(1)
	}
	appLog.Info("eventmap exiting")
}

// schedule registers the feed reload. A nil Cron means reloads are off.
func (p *pipeline) schedule(ctx context.Context, srv *web.Server) (*cron.Cron, error) {
	if p.cfg.RefreshCron == "" {
		return nil, nil
	}
	c := cron.New()
	_, err := c.AddFunc(p.cfg.RefreshCron, func() {
		reloadCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		p.reload(reloadCtx, srv)
	})
	if err != nil {
		return nil, err
	}
	appLog.Info("feed reload scheduled", "refresh", p.cfg.RefreshCron)
	return c, nil
}

func dumpView(ex *explorer.Explorer) error {
	out := struct {
		State explorer.State `json:"state"`
		View  any            `json:"view"`
	}{ex.State(), ex.View()}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Load feeds, print the default view as JSON and exit")
	flag.BoolVar(&cfg.snapshot, "snapshot", false, "Serve, capture one PNG preview of the map and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
