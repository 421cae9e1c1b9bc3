package config

import (
	"flag"
	"fmt"
	"strconv"
	"time"
)

// ParseArgs parses command-line flags, loads the configuration (using
// --config when given) and applies the flags that were set on top of it.
// A single positional argument is taken as the app id.
func ParseArgs(name string, args []string) (Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	var (
		path    string
		f       Config
		brokers string
	)
	fs.StringVar(&path, "config", "", "YAML configuration file (default $"+ConfigPathEnv+")")
	fs.IntVar(&f.AppID, "app-id", 0, "Steam application id")
	fs.StringVar(&f.RunID, "run-id", "", "output file prefix (default: app id)")
	fs.IntVar(&f.Feed.PageSize, "page-size", 0, "reviews per request (1-100)")
	fs.StringVar(&f.Feed.DateSource, "date-source", "", "date field: created or updated")
	fs.StringVar(&f.Feed.MinDate, "min-date", "", "earliest review date, YYYY-MM-DD")
	fs.StringVar(&f.Feed.MaxDate, "max-date", "", "latest review date, YYYY-MM-DD (default: today)")
	fs.Float64Var(&f.Feed.RequestsPerSecond, "rps", 0, "request rate limit, 0 disables pacing")
	fs.IntVar(&f.Feed.RetryAttempts, "retry-attempts", 0, "attempts per page, 1 disables retries")
	fs.DurationVar(&f.Feed.Timeout, "timeout", 0, "HTTP timeout per attempt")
	fs.StringVar(&f.Output.Dir, "output-dir", "", "directory for batch files")
	fs.IntVar(&f.Output.PerBatch, "per-batch", 0, "records per output file")
	fs.IntVar(&f.Output.MaxFiles, "max-files", 0, "stop after this many files, 0 for no limit")
	fs.BoolVar(&f.Output.Overlap, "overlap", false, "fetch ahead and write on a separate goroutine")
	fs.StringVar(&f.Redis.URL, "redis-url", "", "Redis URL for page cache and cool-off state")
	fs.StringVar(&f.Postgres.DSN, "pg-dsn", "", "Postgres DSN for the database sink")
	fs.StringVar(&brokers, "kafka-brokers", "", "comma separated Kafka brokers")
	fs.StringVar(&f.Kafka.Topic, "kafka-topic", "", "Kafka topic for batch messages")
	fs.StringVar(&f.Metrics.Addr, "metrics-addr", "", "listen address for /metrics")
	fs.StringVar(&f.Log.Level, "log-level", "", "debug, info, warn or error")
	fs.BoolVar(&f.Log.Pretty, "log-pretty", false, "human readable console logs")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg, err := Load(path)
	if err != nil {
		return Config{}, err
	}

	apply := map[string]func(){
		"app-id":         func() { cfg.AppID = f.AppID },
		"run-id":         func() { cfg.RunID = f.RunID },
		"page-size":      func() { cfg.Feed.PageSize = f.Feed.PageSize },
		"date-source":    func() { cfg.Feed.DateSource = f.Feed.DateSource },
		"min-date":       func() { cfg.Feed.MinDate = f.Feed.MinDate },
		"max-date":       func() { cfg.Feed.MaxDate = f.Feed.MaxDate },
		"rps":            func() { cfg.Feed.RequestsPerSecond = f.Feed.RequestsPerSecond },
		"retry-attempts": func() { cfg.Feed.RetryAttempts = f.Feed.RetryAttempts },
		"timeout":        func() { cfg.Feed.Timeout = f.Feed.Timeout },
		"output-dir":     func() { cfg.Output.Dir = f.Output.Dir },
		"per-batch":      func() { cfg.Output.PerBatch = f.Output.PerBatch },
		"max-files":      func() { cfg.Output.MaxFiles = f.Output.MaxFiles },
		"overlap":        func() { cfg.Output.Overlap = f.Output.Overlap },
		"redis-url":      func() { cfg.Redis.URL = f.Redis.URL },
		"pg-dsn":         func() { cfg.Postgres.DSN = f.Postgres.DSN },
		"kafka-brokers":  func() { cfg.Kafka.Brokers = splitList(brokers) },
		"kafka-topic":    func() { cfg.Kafka.Topic = f.Kafka.Topic },
		"metrics-addr":   func() { cfg.Metrics.Addr = f.Metrics.Addr },
		"log-level":      func() { cfg.Log.Level = f.Log.Level },
		"log-pretty":     func() { cfg.Log.Pretty = f.Log.Pretty },
	}
	fs.Visit(func(fl *flag.Flag) {
		if fn, ok := apply[fl.Name]; ok {
			fn()
		}
	})

	switch fs.NArg() {
	case 0:
	case 1:
		id, err := strconv.Atoi(fs.Arg(0))
		if err != nil {
			return Config{}, fmt.Errorf("app id %q: %w", fs.Arg(0), err)
		}
		cfg.AppID = id
	default:
		return Config{}, fmt.Errorf("expected at most one positional argument (app id), got %d", fs.NArg())
	}

	if cfg.Feed.Timeout <= 0 {
		cfg.Feed.Timeout = 30 * time.Second
	}
	return cfg, nil
}
