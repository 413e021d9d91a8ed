package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mvolek/estates-harvest/models"
	"github.com/mvolek/estates-harvest/pkg/sink"
	"github.com/mvolek/estates-harvest/pkg/sreality"
)

// RunAction executes the full pipeline: count discovery, page walk,
// normalize/dedup, sink load, reconciliation report.
//
// Exit codes: 0 clean, 1 partial (failed pages or sink write
// failures), 2 fatal (count discovery or sink setup).
func RunAction(c *cli.Context) error {
	logger := newLogger(c.Bool("quiet"))

	cfg, err := loadConfig(c)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(2)
	}

	snk, err := buildSink(cfg)
	if err != nil {
		logger.Error("failed to configure sink", "error", err)
		os.Exit(2)
	}

	client := buildClient(cfg, logger)
	runner := NewRunner(client, snk, cfg.WorkerCount, cfg.Delay(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := runner.Run(ctx)
	if err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(2)
	}

	printReport(stats, cfg)

	if len(stats.PagesFailed) > 0 || stats.SinkFailures > 0 {
		os.Exit(1)
	}
	return nil
}

// CountAction probes the declared result size and prints the page
// count a run would need, without fetching anything else.
func CountAction(c *cli.Context) error {
	logger := newLogger(c.Bool("quiet"))

	cfg, err := loadConfig(c)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(2)
	}

	client := buildClient(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	count, err := client.FetchCount(ctx)
	if err != nil {
		logger.Error("count discovery failed", "error", err)
		os.Exit(2)
	}

	fmt.Printf("Declared total: %d\nPer page: %d\nPages required: %d\n",
		count.DeclaredTotal, count.PerPage, sreality.ComputePages(count.DeclaredTotal, count.PerPage))
	return nil
}

func newLogger(quiet bool) *slog.Logger {
	level := slog.LevelInfo
	if quiet {
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig merges the YAML config with CLI flag overrides.
func loadConfig(c *cli.Context) (*models.RunConfig, error) {
	cfg, err := models.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("per-page") {
		cfg.PerPage = c.Int("per-page")
	}
	if c.IsSet("workers") {
		cfg.WorkerCount = c.Int("workers")
	}
	if c.IsSet("max-retries") {
		cfg.MaxRetries = c.Int("max-retries")
	}
	if c.IsSet("region") {
		cfg.RegionID = c.Int("region")
	}
	if c.IsSet("sink") {
		cfg.Sink = c.String("sink")
	}
	if c.IsSet("out") {
		cfg.CSVPath = c.String("out")
	}
	if c.IsSet("db") {
		cfg.SQLitePath = c.String("db")
	}

	if cfg.PerPage <= 0 {
		return nil, fmt.Errorf("per-page must be positive, got %d", cfg.PerPage)
	}
	if cfg.WorkerCount <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", cfg.WorkerCount)
	}
	return cfg, nil
}

func buildClient(cfg *models.RunConfig, logger *slog.Logger) *sreality.Client {
	query := url.Values{}
	query.Set("category_main_cb", strconv.Itoa(cfg.CategoryMain))
	query.Set("category_type_cb", strconv.Itoa(cfg.CategoryType))
	query.Set("locality_region_id", strconv.Itoa(cfg.RegionID))

	return sreality.NewClient(sreality.Config{
		BaseURL:    cfg.BaseURL,
		Query:      query,
		PerPage:    cfg.PerPage,
		Timeout:    cfg.Timeout(),
		MaxRetries: cfg.MaxRetries,
		Delay:      cfg.Delay(),
		Logger:     logger,
	})
}

func buildSink(cfg *models.RunConfig) (sink.Sink, error) {
	switch cfg.Sink {
	case models.SinkCSV:
		return sink.NewCSV(cfg.CSVPath), nil
	case models.SinkSQLite:
		return sink.NewSQLite(cfg.SQLitePath), nil
	case models.SinkPostgres:
		if cfg.Postgres.User == "" || cfg.Postgres.Database == "" {
			return nil, fmt.Errorf("postgres sink requires POSTGRES_USER and POSTGRES_DB")
		}
		return sink.NewPostgres(sink.PostgresConfig{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
		}), nil
	default:
		return nil, fmt.Errorf("unknown sink %q (want csv, sqlite or postgres)", cfg.Sink)
	}
}

// printReport writes the human-readable reconciliation summary to
// stdout; the structured version already went to the log.
func printReport(stats *RunStats, cfg *models.RunConfig) {
	fmt.Printf("Declared total:    %d\n", stats.DeclaredTotal)
	fmt.Printf("Records yielded:   %d\n", stats.RecordsYielded)
	fmt.Printf("Duplicates:        %d\n", stats.Duplicates)
	if stats.Invalid > 0 {
		fmt.Printf("Invalid records:   %d\n", stats.Invalid)
	}
	fmt.Printf("Pages:             %d/%d succeeded\n", stats.PagesSucceeded, stats.PagesRequired)
	if len(stats.PagesFailed) > 0 {
		fmt.Printf("Pages failed:      %v\n", stats.PagesFailed)
	}
	if stats.SinkFailures > 0 {
		fmt.Printf("Sink failures:     %d\n", stats.SinkFailures)
	}
	if short := stats.Shortfall(); short > 0 {
		fmt.Printf("WARNING: %d declared record(s) were never seen\n", short)
	}
	fmt.Printf("Sink:              %s\n", cfg.Sink)
	fmt.Printf("Elapsed:           %s\n", stats.Elapsed.Round(time.Millisecond))
}
