// Command review-ingest downloads the Steam reviews of one application and
// writes them as schema-checked JSON batch files.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/steam-review-ingest/pkg/client"
	"github.com/Sternrassler/steam-review-ingest/pkg/config"
	"github.com/Sternrassler/steam-review-ingest/pkg/logging"
	"github.com/Sternrassler/steam-review-ingest/pkg/metrics"
	"github.com/Sternrassler/steam-review-ingest/pkg/output"
	"github.com/Sternrassler/steam-review-ingest/pkg/pagination"
	"github.com/Sternrassler/steam-review-ingest/pkg/pipeline"
	"github.com/Sternrassler/steam-review-ingest/pkg/sink"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	cfg, err := config.ParseArgs("review-ingest", args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	logging.Setup(logging.Config{
		Level:  level,
		Pretty: cfg.Log.Pretty,
		Output: os.Stderr,
		Fields: map[string]string{
			"app_id": strconv.Itoa(cfg.AppID),
			"run_id": cfg.ResolvedRunID(),
		},
	})

	now := time.Now()
	if err := cfg.Validate(now); err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return exitUsage
	}

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				log.Warn().Err(err).Msg("Metrics endpoint stopped")
			}
		}()
	}

	summary, err := ingest(ctx, cfg, now)
	if err != nil {
		log.Error().Err(err).Int("files", summary.Files).Msg("Ingest failed")
		return exitFailed
	}
	return exitOK
}

// ingest wires the components for one run and executes it.
func ingest(ctx context.Context, cfg config.Config, now time.Time) (pipeline.RunSummary, error) {
	ccfg := cfg.Client()
	if cfg.Redis.URL != "" {
		rdb, err := connectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return pipeline.RunSummary{}, err
		}
		defer rdb.Close()
		ccfg.Redis = rdb
	}

	feed, err := client.New(ccfg)
	if err != nil {
		return pipeline.RunSummary{}, err
	}
	defer feed.Close()

	pcfg, err := cfg.Pagination(now)
	if err != nil {
		return pipeline.RunSummary{}, err
	}
	fetcher, err := pagination.NewFetcher(feed, pcfg)
	if err != nil {
		return pipeline.RunSummary{}, err
	}

	runID := cfg.ResolvedRunID()
	writer, err := output.NewWriter(cfg.Output.Dir, runID)
	if err != nil {
		return pipeline.RunSummary{}, err
	}

	sinks, err := buildSinks(ctx, cfg)
	if err != nil {
		return pipeline.RunSummary{}, err
	}
	var s sink.Sink
	if len(sinks) > 0 {
		s = sinks
		defer func() {
			if err := sinks.Close(); err != nil {
				log.Warn().Err(err).Msg("Closing sinks failed")
			}
		}()
	}

	orch, err := pipeline.New(fetcher, writer, s, pipeline.Config{
		RunID:        runID,
		PerBatch:     cfg.Output.PerBatch,
		MaxFiles:     cfg.Output.MaxFiles,
		Overlap:      cfg.Output.Overlap,
		ChannelDepth: cfg.Output.ChannelDepth,
	})
	if err != nil {
		return pipeline.RunSummary{}, err
	}
	return orch.Run(ctx)
}

// connectRedis accepts redis:// URLs and bare host:port addresses.
func connectRedis(ctx context.Context, raw string) (*redis.Client, error) {
	opts := &redis.Options{Addr: raw}
	if strings.Contains(raw, "://") {
		parsed, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	log.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	return rdb, nil
}

func buildSinks(ctx context.Context, cfg config.Config) (sink.Multi, error) {
	var sinks sink.Multi
	fail := func(err error) (sink.Multi, error) {
		if cerr := sinks.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Closing sinks failed")
		}
		return nil, err
	}

	if cfg.Postgres.DSN != "" {
		pg, err := sink.NewPostgres(ctx, cfg.Postgres.DSN, cfg.Postgres.Table)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, pg)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		k, err := sink.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, k)
	}
	if cfg.ObjectStore.Endpoint != "" {
		o, err := sink.NewObjectStore(ctx, sink.ObjectStoreConfig{
			Endpoint:  cfg.ObjectStore.Endpoint,
			AccessKey: cfg.ObjectStore.AccessKey,
			SecretKey: cfg.ObjectStore.SecretKey,
			Bucket:    cfg.ObjectStore.Bucket,
			Prefix:    cfg.ObjectStore.Prefix,
			UseSSL:    cfg.ObjectStore.UseSSL,
		})
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, o)
	}

	for _, s := range sinks {
		log.Info().Str("sink", s.Name()).Msg("Sink enabled")
	}
	return sinks, nil
}
