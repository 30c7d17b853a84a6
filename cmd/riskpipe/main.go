package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/bridge"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/config"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/consumer"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/correlate"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/dispatch"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/kyt"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/pipeline"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/queue"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/rules"
	"github.com/chenzhangda16/web3-riskpipe/pkg/obs"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (yaml)")
		logLevel   = flag.String("log-level", "", "override log level (debug|info|warn|error)")
		logFormat  = flag.String("log-format", "", "override log format (json|text)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "riskpipe:", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	obs.Init("riskpipe", cfg.Log.Level, cfg.Log.Format)
	log := obs.Logger("main")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *configPath, log); err != nil && err != context.Canceled {
		log.Error("riskpipe exited with error", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("riskpipe stopped")
}

func run(ctx context.Context, cfg *config.Config, configPath string, log *slog.Logger) error {
	// Broker. A missing or unreachable broker means inert workers;
	// everything else still wires up so the binary degrades instead of
	// refusing to start. Each worker gets its own consumer so a slow topic
	// never stalls the others.
	openQueue := func(topic string) queue.Queue {
		if cfg.Kafka.Brokers == "" {
			return nil
		}
		kq, err := queue.NewKafkaQueue(cfg.Kafka.Brokers, cfg.Kafka.Group, []string{topic}, log)
		if err != nil {
			log.Warn("kafka unavailable, worker will idle",
				slog.String("topic", topic), slog.Any("err", err))
			return nil
		}
		return kq
	}
	if cfg.Kafka.Brokers == "" {
		log.Warn("no kafka brokers configured, workers will idle")
	}

	txQueue := openQueue(cfg.Kafka.TxTopic)
	alertQueue := openQueue(cfg.Kafka.AlertTopic)
	kytQueue := openQueue(cfg.Kafka.KYTRequestTopic)
	for _, q := range []queue.Queue{txQueue, alertQueue, kytQueue} {
		if q != nil {
			defer q.Close()
		}
	}

	// Durable alert store.
	var store dispatch.Store
	if cfg.Postgres.DSN != "" {
		pg, err := dispatch.NewPGStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("postgres schema: %w", err)
		}
		store = pg
	} else {
		log.Warn("no postgres dsn configured, alerts are not persisted")
	}

	// Dedup: rocksdb when a path is configured, else in-memory only.
	var dedup dispatch.FingerprintStore
	if cfg.Alerts.DedupStorePath != "" {
		rd, err := dispatch.OpenRocksDeduper(cfg.Alerts.DedupStorePath, time.Minute)
		if err != nil {
			return fmt.Errorf("dedup store: %w", err)
		}
		defer rd.Close()
		dedup = rd
	} else {
		dedup = dispatch.NewMemoryDeduper(10_000)
	}

	var bcast dispatch.Broadcaster
	if cfg.Redis.Enabled && cfg.Redis.Addr != "" {
		rb := dispatch.NewRedisBroadcaster(cfg.Redis.Addr)
		defer rb.Close()
		bcast = rb
	}

	var email dispatch.EmailSender
	if cfg.SMTP.Host != "" {
		email = dispatch.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From,
			cfg.SMTP.Username, cfg.SMTP.Password)
	}

	bridges := bridge.NewRegistry()
	for _, b := range cfg.Bridges {
		if err := bridges.Register(bridge.Contract{
			Address:           b.Address,
			Chain:             b.Chain,
			Name:              b.Name,
			BridgeType:        b.BridgeType,
			CounterpartChains: b.CounterpartChains,
			MethodSelectors:   b.MethodSelectors,
		}); err != nil {
			log.Warn("skipping bad bridge seed", slog.String("address", b.Address), slog.Any("err", err))
		}
	}

	var producer dispatch.Producer
	if alertQueue != nil {
		producer = alertQueue
	}
	disp := dispatch.New(dispatch.Config{
		DedupWindow:     cfg.Alerts.DedupWindow(),
		EmailRecipients: cfg.Alerts.EmailRecipients,
		BroadcastTopic:  cfg.Alerts.BroadcastChannel,
		CrossChainTopic: cfg.Kafka.CrossChainTopic,
		TravelRule:      dispatch.TravelRule{ThresholdUSD: cfg.Alerts.TravelRuleThresholdUSD},
	}, dedup, store, bcast, email, bridges, producer, log)

	hub := kyt.NewHub(cfg.KYT.SubscriberQueue, cfg.KYT.PublishTimeout(), log)
	engine := kyt.NewEngine(kyt.EngineConfig{
		Labels: kyt.NewHTTPLabelService(cfg.KYT.LabelServiceURL, cfg.KYT.CallTimeout()),
		Scorer: kyt.NewHTTPRiskScorer(cfg.KYT.RiskScorerURL, cfg.KYT.CallTimeout()),
		Weights: kyt.Weights{
			From:      cfg.Scoring.FromWeight,
			To:        cfg.Scoring.ToWeight,
			Value:     cfg.Scoring.ValueWeight,
			ValueNorm: cfg.Scoring.ValueNormUSD,
		},
		Thresholds: kyt.Thresholds{
			Critical: cfg.Scoring.CriticalAt,
			High:     cfg.Scoring.HighAt,
			Medium:   cfg.Scoring.MediumAt,
			Low:      cfg.Scoring.LowAt,
		},
		CallTimeout:      cfg.KYT.CallTimeout(),
		LargeTransferUSD: cfg.Scoring.LargeTransferUSD,
		HighRiskAt:       cfg.Scoring.HighRiskAt,
		Sanctioned:       cfg.KYT.SanctionedAddresses,
		Mixers:           cfg.KYT.MixerAddresses,
		Hub:              hub,
		Log:              log,
	})

	reg, whale := rules.DefaultRegistry(log, cfg.Scoring.LargeTransferUSD*10, cfg.Whales)
	corr := correlate.New(cfg.Alerts.CorrelationWindow(), cfg.Alerts.CorrelationMaxEntries, nil, log)
	pipe := pipeline.New(engine, reg, corr, disp, log)

	workerCfg := func(name string) consumer.Config {
		return consumer.Config{
			Name:        name,
			DLQTopic:    cfg.Kafka.DLQTopic,
			MaxRetries:  cfg.Pipeline.MaxRetries,
			BackoffBase: cfg.Pipeline.BackoffBase(),
			BackoffCap:  cfg.Pipeline.BackoffCap(),
			PollTimeout: cfg.Pipeline.PollTimeout(),
		}
	}

	txWorker := consumer.NewWorker(workerCfg("tx"), txQueue,
		consumer.NewTxHandler(pipe, log), log)
	alertWorker := consumer.NewWorker(workerCfg("alert"), alertQueue,
		consumer.NewAlertHandler(disp, corr, log), log)
	kytWorker := consumer.NewWorker(workerCfg("kyt"), kytQueue,
		consumer.NewKYTHandler(engine, kytQueue, cfg.Kafka.KYTResultTopic, log), log)

	log.Info("riskpipe starting",
		slog.String("brokers", cfg.Kafka.Brokers),
		slog.Int("rules", reg.Len()),
		slog.Int("bridges", bridges.Len()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return txWorker.Run(gctx) })
	g.Go(func() error { return alertWorker.Run(gctx) })
	g.Go(func() error { return kytWorker.Run(gctx) })
	g.Go(func() error { return reloadLoop(gctx, configPath, whale, engine, log) })
	return g.Wait()
}

// reloadLoop re-reads the config on SIGHUP and grows the mutable watch lists
// (whales, sanctioned, mixers) without a restart. Entries are only added;
// removing one still takes a restart.
func reloadLoop(ctx context.Context, configPath string, whale *rules.WhaleMovementRule, engine *kyt.Engine, log *slog.Logger) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			cfg, err := config.Load(configPath)
			if err != nil {
				log.Warn("config reload failed", slog.Any("err", err))
				continue
			}
			applyWatchLists(cfg, whale, engine)
			log.Info("watch lists reloaded",
				slog.Int("whales", len(cfg.Whales)),
				slog.Int("sanctioned", len(cfg.KYT.SanctionedAddresses)),
				slog.Int("mixers", len(cfg.KYT.MixerAddresses)))
		}
	}
}

func applyWatchLists(cfg *config.Config, whale *rules.WhaleMovementRule, engine *kyt.Engine) {
	for _, a := range cfg.Whales {
		whale.Add(a)
	}
	for _, a := range cfg.KYT.SanctionedAddresses {
		engine.AddSanctioned(a)
	}
	for _, a := range cfg.KYT.MixerAddresses {
		engine.AddMixer(a)
	}
}
