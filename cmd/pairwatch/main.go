package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pairwatch/config"
	"pairwatch/internal/aggregator"
	"pairwatch/internal/archive"
	"pairwatch/internal/analysis"
	"pairwatch/internal/analytics"
	"pairwatch/internal/channel"
	"pairwatch/internal/dashboard"
	"pairwatch/internal/feed"
	"pairwatch/internal/metrics"
	"pairwatch/internal/model"
	"pairwatch/internal/notifier"
	"pairwatch/internal/report"
	"pairwatch/internal/source"
	"pairwatch/internal/store"
	"pairwatch/internal/symbols"
	"pairwatch/logger"
)

const defaultConfigPath = "config/config.yml"

func usage() {
	fmt.Fprintf(os.Stderr, "usage: pairwatch [-config path] <analyze|monitor|test-alert> [flags]\n")
	flag.PrintDefaults()
}

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	command, args := flag.Arg(0), flag.Args()[1:]

	cfg, err := config.LoadConfig(config.ResolvePath(*configPath, defaultConfigPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithEnv("APP_ENV", "AWS_REGION").WithFields(logger.Fields{
		"service":     cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": config.AppEnvironment(),
		"command":     command,
		"pair":        cfg.Pair.Name(),
	}).Info("starting pairwatch")

	switch command {
	case "analyze":
		err = runAnalyze(cfg, args)
	case "monitor":
		err = runMonitor(cfg)
	case "test-alert":
		err = runTestAlert(cfg)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.WithComponent("main").WithError(err).Error(command + " failed")
		os.Exit(1)
	}
}

func runAnalyze(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	src := fs.String("source", cfg.Analysis.Source, "History source (binance, bybit, s3)")
	start := fs.String("start", cfg.Analysis.Start, "Start date, YYYY-MM-DD")
	end := fs.String("end", cfg.Analysis.End, "End date, YYYY-MM-DD (exclusive)")
	format := fs.String("format", cfg.Analysis.Format, "Report format (text, json)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.Analysis.Source = *src
	cfg.Analysis.Start = *start
	cfg.Analysis.End = *end

	from, to, err := cfg.Analysis.Range()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	history, err := source.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build history source: %w", err)
	}

	runner := analysis.NewRunner(history, thresholds(cfg))
	result, err := runner.Run(ctx, cfg.Pair.LegA.Symbol, cfg.Pair.LegB.Symbol, from, to)
	if err != nil {
		return err
	}
	return report.Write(os.Stdout, *format, result)
}

func runTestAlert(cfg *config.Config) error {
	n, err := notifier.Build(cfg.Notifier)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Notifier.Timeout+5*time.Second)
	defer cancel()
	if err := n.Send(ctx, notifier.TestMessage()); err != nil {
		return err
	}
	logger.GetLogger().WithComponent("main").WithField("notifier", n.Name()).Info("test alert sent")
	return nil
}

func runMonitor(cfg *config.Config) error {
	log := logger.GetLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.Configure(cfg.Metrics)
	if cfg.Metrics.CloudWatch.Enabled {
		metrics.InitCloudWatch(ctx, cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}

	log.WithComponent("main").WithFields(logger.Fields{
		"window":    cfg.Monitor.Window,
		"threshold": cfg.Monitor.UpperThreshold,
	}).Warn("monitor evaluates raw price spreads while analyze uses log return spreads; z-scores from the two modes are not comparable")

	ticks := channel.NewTicks(cfg.Monitor.TickBuffer)
	defer ticks.Close()
	metrics.StartChannelSizeMetrics(ctx, ticks, cfg.Metrics.ChannelSizeInterval)

	feeds, err := feed.Build(cfg, ticks)
	if err != nil {
		return err
	}

	n, err := notifier.Build(cfg.Notifier)
	if err != nil {
		return err
	}
	if !cfg.Notifier.SMTP.Enabled && config.IsProductionLike(config.AppEnvironment()) {
		log.WithComponent("main").Warn("smtp notifier disabled; alerts will only be logged")
	}

	opts := aggregator.Options{
		LegA:          canonicalLeg(cfg.Pair.LegA),
		LegB:          canonicalLeg(cfg.Pair.LegB),
		Window:        cfg.Monitor.Window,
		Thresholds:    thresholds(cfg),
		Notifier:      notifier.NewAlerter(cfg.Notifier.Subject, n),
		NotifyTimeout: cfg.Notifier.Timeout,
	}

	if cfg.Store.Redis.Enabled {
		redisStore, err := store.NewRedis(ctx, cfg.Store.Redis)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		opts.Store = redisStore
	}

	agg, err := aggregator.New(opts)
	if err != nil {
		return err
	}
	if err := agg.Warm(ctx); err != nil {
		log.WithComponent("main").WithError(err).Warn("failed to warm windows from store")
	}

	runner := aggregator.NewRunner(ticks.C, agg)

	var archiver *archive.Writer
	if cfg.Archive.Enabled {
		archiver, err = archive.New(ctx, cfg)
		if err != nil {
			return err
		}
		if err := archiver.Start(ctx); err != nil {
			return err
		}
		runner.SetRecorder(archiver)
	}

	dash, err := dashboard.NewServer(cfg.Dashboard, log, runner, promHandler(cfg))
	if err != nil {
		return err
	}

	var wg sync.WaitGroup

	if err := runner.Start(ctx); err != nil {
		return err
	}

	for _, f := range feeds {
		if err := f.Start(ctx); err != nil {
			log.WithComponent("main").WithError(err).WithField("feed", string(f.Name())).Warn("feed failed to start")
		}
	}

	if dash != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dash.Run(ctx); err != nil {
				log.WithComponent("main").WithError(err).Warn("dashboard stopped")
			}
		}()
	}

	log.WithFields(logger.Fields{"feeds": len(feeds), "pair": agg.Name()}).Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")

	log.Info("stopping feeds")
	for _, f := range feeds {
		f.Stop()
	}

	log.Info("stopping aggregator runner")
	runner.Stop()

	if archiver != nil {
		log.Info("flushing price archive")
		archiver.Stop()
	}
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	stats := runner.Stats()
	log.WithFields(logger.Fields{
		"received": stats.Received,
		"routed":   stats.Routed,
		"ignored":  stats.Ignored,
		"dropped":  ticks.GetStats().TicksDropped,
	}).Info("pairwatch stopped")
	return nil
}

func thresholds(cfg *config.Config) analytics.Thresholds {
	return analytics.Thresholds{
		Upper: cfg.Monitor.UpperThreshold,
		Lower: cfg.Monitor.LowerThreshold,
	}
}

func canonicalLeg(leg config.InstrumentConfig) string {
	return symbols.Canonical(model.Feed(strings.ToLower(strings.TrimSpace(leg.Feed))), leg.Symbol)
}

func promHandler(cfg *config.Config) http.Handler {
	if !cfg.Metrics.Prometheus.Enabled {
		return nil
	}
	return metrics.EnablePrometheus()
}
