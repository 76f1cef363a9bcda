package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"omnibridge/config"
	"omnibridge/pkg/bridge"
	"omnibridge/pkg/chain"
	"omnibridge/pkg/events"
	"omnibridge/pkg/fees"
	"omnibridge/pkg/history"
	"omnibridge/pkg/monitor"
	"omnibridge/pkg/storage"
	"omnibridge/pkg/stream"
)

// app wires the configured collaborators for one command invocation.
type app struct {
	cfg        *config.Config
	log        zerolog.Logger
	adapters   map[string]chain.Adapter
	registry   *chain.StaticRegistry
	oracle     *chain.StaticOracle
	kv         storage.Store
	dispatcher *events.Dispatcher
	history    *history.Store
	fees       *fees.Engine
	executor   *bridge.Executor
	monitor    *monitor.Manager
	kafka      *events.KafkaEmitter
	channel    *stream.Channel
	sender     string
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()
}

func newApp(ctx context.Context, verbose bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := newLogger(verbose)

	adapters, err := cfg.Adapters(log)
	if err != nil {
		return nil, err
	}

	sender := ""
	for _, a := range adapters {
		if evm, ok := a.(*chain.EVMAdapter); ok && evm.SenderAddress() != "" {
			sender = evm.SenderAddress()
			break
		}
	}
	if sender == "" {
		return nil, fmt.Errorf("no signing key configured. Set a private_key for at least one network")
	}

	kv, err := cfg.KVStore(ctx)
	if err != nil {
		return nil, err
	}
	hist, err := history.NewStore(ctx, kv, sender, cfg.History.MaxRecords)
	if err != nil {
		return nil, err
	}

	registry := cfg.Registry()
	oracle := cfg.Oracle()
	dispatcher := events.NewDispatcher()

	var kafkaEmitter *events.KafkaEmitter
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaEmitter = events.NewKafkaEmitter(cfg.Kafka.Brokers[0], cfg.Kafka.Topic, log)
		kafkaEmitter.Attach(dispatcher)
	}

	var channel *stream.Channel
	if cfg.Channel.URL != "" {
		channel = stream.NewChannel(stream.DefaultOptions(cfg.Channel.URL), nil, nil, log)
		channel.Relay(dispatcher)
		channel.Connect(ctx)
	}

	feeEngine := fees.NewEngine(adapters, registry, oracle, log)

	return &app{
		cfg:        cfg,
		log:        log,
		adapters:   adapters,
		registry:   registry,
		oracle:     oracle,
		kv:         kv,
		dispatcher: dispatcher,
		history:    hist,
		fees:       feeEngine,
		executor:   bridge.NewExecutor(adapters, registry, feeEngine, hist, dispatcher, bridge.DefaultOptions(), log),
		monitor:    monitor.NewManager(adapters, registry, dispatcher, hist, monitor.DefaultConfig(), log),
		kafka:      kafkaEmitter,
		channel:    channel,
		sender:     sender,
	}, nil
}

func (a *app) Close() {
	if a.channel != nil {
		a.channel.Close()
	}
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.log.Debug().Err(err).Msg("failed to close kafka emitter")
		}
	}
	for _, adapter := range a.adapters {
		if evm, ok := adapter.(*chain.EVMAdapter); ok {
			evm.Close()
		}
	}
	if closer, ok := a.kv.(*storage.RedisStore); ok {
		if err := closer.Close(); err != nil {
			a.log.Debug().Err(err).Msg("failed to close redis store")
		}
	}
}
