package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"os/signal"
	"slices"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/llxisdsh/shardmap"
	"github.com/llxisdsh/shardmap/config"
	"github.com/llxisdsh/shardmap/metrics"
)

// Build information, set via ldflags.
var Version = "dev"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "shardmap-stress",
		Usage:   "Stress and inspect shardmap maps",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				EnvVars: []string{config.DefaultEnvPrefix + "CONFIG"},
			},
			&cli.IntFlag{
				Name:  "shards",
				Usage: "Shard amount, overrides the config (0 keeps it)",
			},
			&cli.StringFlag{
				Name:  "hash",
				Usage: "Hash algorithm, overrides the config: default, xxh3, xxhash, murmur3, maphash",
			},
		},
		Commands: []*cli.Command{
			RunCommand(),
			ShardsCommand(),
		},
	}
}

// RunCommand returns the run subcommand.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run a concurrent read/write workload",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "impl",
				Usage: "Map implementation: shardmap or pb",
				Value: implShardMap,
			},
			&cli.IntFlag{
				Name:    "goroutines",
				Aliases: []string{"g"},
				Usage:   "Number of worker goroutines",
				Value:   8,
			},
			&cli.DurationFlag{
				Name:    "duration",
				Aliases: []string{"d"},
				Usage:   "How long to run",
				Value:   10 * time.Second,
			},
			&cli.IntFlag{
				Name:  "keys",
				Usage: "Size of the key space",
				Value: 1 << 16,
			},
			&cli.Float64Flag{
				Name:  "read-ratio",
				Usage: "Fraction of operations that are loads",
				Value: 0.9,
			},
			&cli.Float64Flag{
				Name:  "rate",
				Usage: "Total operations per second (0 is unlimited)",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address while running (e.g. :9100)",
			},
		},
		Action: runAction,
	}
}

// ShardsCommand returns the shards subcommand.
func ShardsCommand() *cli.Command {
	return &cli.Command{
		Name:  "shards",
		Usage: "Show how a key set distributes over the shards",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "keys",
				Usage: "Number of keys to insert",
				Value: 1 << 16,
			},
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "Key prefix; keys are <prefix><n>",
				Value: "key-",
			},
		},
		Action: shardsAction,
	}
}

// loadSettings reads the config file and applies the global overrides.
func loadSettings(c *cli.Context) (config.Settings, error) {
	s, err := config.Load(config.WithFile(c.String("config")))
	if err != nil {
		return config.Settings{}, err
	}
	if c.IsSet("shards") {
		s.Shards = c.Int("shards")
	}
	if c.IsSet("hash") {
		s.Hash = c.String("hash")
	}
	return s, s.Validate()
}

func runAction(c *cli.Context) error {
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	logger := settings.Logger()
	opts, err := settings.MapOptions()
	if err != nil {
		return err
	}

	w := workload{
		Goroutines: c.Int("goroutines"),
		Duration:   c.Duration("duration"),
		Keys:       c.Int("keys"),
		ReadRatio:  c.Float64("read-ratio"),
		Rate:       c.Float64("rate"),
	}
	if err := w.validate(); err != nil {
		return err
	}

	impl := c.String("impl")
	s, m, err := newStore(impl, w.Keys, append(opts, shardmap.WithLogger(logger))...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if addr := c.String("metrics-addr"); addr != "" {
		reg := prometheus.NewRegistry()
		if m != nil {
			reg.MustRegister(metrics.NewCollector("stress", metrics.FromMap("workload", m)).WithLogger(logger))
		}
		srv, bound, err := serveMetrics(addr, reg, logger)
		if err != nil {
			return err
		}
		defer shutdown(srv, logger)
		logger.Info().Str("addr", bound.String()).Msg("serving metrics")
	}

	logger.Info().
		Str("impl", impl).
		Int("goroutines", w.Goroutines).
		Dur("duration", w.Duration).
		Int("keys", w.Keys).
		Float64("read_ratio", w.ReadRatio).
		Float64("rate", w.Rate).
		Msg("stress: starting")

	r, err := w.run(ctx, s)
	if err != nil {
		return err
	}

	logger.Info().
		Str("impl", impl).
		Int64("ops", r.Ops).
		Int64("loads", r.Loads).
		Int64("hits", r.Hits).
		Int64("stores", r.Stores).
		Int64("deletes", r.Deletes).
		Int("len", r.Len).
		Dur("elapsed", r.Elapsed).
		Float64("ops_per_sec", math.Round(r.OpsPerSec())).
		Msg("stress: done")
	fmt.Fprintf(c.App.Writer, "%s: %d ops in %s (%.0f ops/s), %d entries\n",
		impl, r.Ops, r.Elapsed.Round(time.Millisecond), r.OpsPerSec(), r.Len)
	return nil
}

// serveMetrics starts an HTTP server exposing reg on /metrics and returns
// it together with the address it listens on.
func serveMetrics(addr string, reg *prometheus.Registry, logger *log.Logger) (*http.Server, net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv, ln.Addr(), nil
}

func shutdown(srv *http.Server, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("metrics server shutdown")
	}
}

func shardsAction(c *cli.Context) error {
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	opts, err := settings.MapOptions()
	if err != nil {
		return err
	}
	n := c.Int("keys")
	if n <= 0 {
		return fmt.Errorf("keys: %d must be positive", n)
	}

	m := shardmap.NewMap[string, struct{}](append(opts, shardmap.WithCapacity(n))...)
	prefix := c.String("prefix")
	for i := range n {
		m.Insert(prefix+strconv.Itoa(i), struct{}{})
	}

	stats := m.ShardStats()
	d := distribution(stats)

	tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SHARD\tLEN\tCAPACITY")
	for _, s := range stats {
		fmt.Fprintf(tw, "%d\t%d\t%d\n", s.Index, s.Len, s.Capacity)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "shards=%d keys=%d min=%d max=%d mean=%.1f stddev=%.2f\n",
		len(stats), n, d.Min, d.Max, d.Mean, d.StdDev)
	return nil
}

// spread summarizes per-shard entry counts.
type spread struct {
	Min, Max     int
	Mean, StdDev float64
}

func distribution(stats []shardmap.ShardStat) spread {
	if len(stats) == 0 {
		return spread{}
	}
	lens := make([]int, len(stats))
	sum := 0
	for i, s := range stats {
		lens[i] = s.Len
		sum += s.Len
	}
	mean := float64(sum) / float64(len(lens))
	var sq float64
	for _, l := range lens {
		sq += (float64(l) - mean) * (float64(l) - mean)
	}
	return spread{
		Min:    slices.Min(lens),
		Max:    slices.Max(lens),
		Mean:   mean,
		StdDev: math.Sqrt(sq / float64(len(lens))),
	}
}
