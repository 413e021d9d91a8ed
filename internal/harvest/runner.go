// Package harvest drives the fetch/normalize/dedup/load pipeline for
// one run and exposes the CLI actions that invoke it.
package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mvolek/estates-harvest/pkg/dedup"
	"github.com/mvolek/estates-harvest/pkg/normalize"
	"github.com/mvolek/estates-harvest/pkg/sink"
	"github.com/mvolek/estates-harvest/pkg/sreality"
)

// Fetcher is the slice of the API client the coordinator needs.
type Fetcher interface {
	FetchCount(ctx context.Context) (sreality.Count, error)
	FetchPage(ctx context.Context, page int) (*sreality.PageResult, error)
}

// rateSetter is implemented by fetchers whose dispatch interval the
// coordinator may tune at runtime.
type rateSetter interface {
	SetInterval(d time.Duration)
}

// state tracks the coordinator through its run.
type state int

const (
	stateInit state = iota
	stateCountDiscovered
	statePaging
	stateReconciling
	stateDone
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateCountDiscovered:
		return "count_discovered"
	case statePaging:
		return "paging"
	case stateReconciling:
		return "reconciling"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// pageOutcome is what a fetch worker reports back per page.
type pageOutcome struct {
	page    int
	result  *sreality.PageResult
	err     error
	latency time.Duration
}

// Runner coordinates one harvest run. Workers only fetch; all
// normalization, dedup, sink writes and stats updates happen on the
// coordinator's result loop, keeping the seen-set single-writer.
type Runner struct {
	fetcher  Fetcher
	sink     sink.Sink
	seen     *dedup.Set
	workers  int
	throttle *autothrottle
	logger   *slog.Logger
}

// NewRunner builds a Runner. baseDelay seeds the autothrottle when the
// fetcher supports runtime rate changes.
func NewRunner(fetcher Fetcher, s sink.Sink, workers int, baseDelay time.Duration, logger *slog.Logger) *Runner {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		fetcher:  fetcher,
		sink:     s,
		seen:     dedup.New(),
		workers:  workers,
		throttle: newAutothrottle(baseDelay),
		logger:   logger,
	}
}

// Run executes the full pipeline and returns the run statistics. Only
// count discovery can fail the run; failed pages and sink write
// failures are recorded in the stats and reported, not escalated.
func (r *Runner) Run(ctx context.Context) (*RunStats, error) {
	start := time.Now()
	stats := &RunStats{}
	st := stateInit

	count, err := r.fetcher.FetchCount(ctx)
	if err != nil {
		st = stateFailed
		r.logger.Error("count discovery failed", "state", st, "error", err)
		return stats, fmt.Errorf("count discovery: %w", err)
	}
	st = stateCountDiscovered
	stats.DeclaredTotal = count.DeclaredTotal
	stats.PagesRequired = sreality.ComputePages(count.DeclaredTotal, count.PerPage)
	r.logger.Info("count discovered", "state", st,
		"declared_total", count.DeclaredTotal, "per_page", count.PerPage, "pages_required", stats.PagesRequired)

	if err := r.sink.Open(ctx); err != nil {
		return stats, fmt.Errorf("open sink: %w", err)
	}
	defer func() {
		if cerr := r.sink.Close(); cerr != nil {
			r.logger.Error("closing sink", "error", cerr)
		}
	}()

	st = statePaging
	r.logger.Info("paging", "state", st, "workers", r.workers, "pages", stats.PagesRequired)
	r.runPages(ctx, stats.PagesRequired, stats)

	st = stateReconciling
	stats.Duplicates = r.seen.Duplicates()
	stats.Elapsed = time.Since(start)
	r.reconcile(st, stats)

	st = stateDone
	r.logger.Info("run finished", "state", st)
	return stats, nil
}

// runPages walks pages 1..pages through a bounded worker pool and
// consumes the outcomes on the calling goroutine.
func (r *Runner) runPages(ctx context.Context, pages int, stats *RunStats) {
	// Records already fetched still get written after cancellation;
	// each record write stays atomic from the sink's perspective.
	sinkCtx := context.WithoutCancel(ctx)

	jobs := make(chan int)
	results := make(chan pageOutcome)

	var wg sync.WaitGroup
	for w := 1; w <= r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := range jobs {
				began := time.Now()
				result, err := r.fetcher.FetchPage(ctx, page)
				results <- pageOutcome{page: page, result: result, err: err, latency: time.Since(began)}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for page := 1; page <= pages; page++ {
			select {
			case jobs <- page:
			case <-ctx.Done():
				r.logger.Warn("cancelled, no further pages will be requested", "next_page", page)
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	rs, tunable := r.fetcher.(rateSetter)
	for out := range results {
		stats.PagesRequested++
		if out.err != nil {
			stats.PagesFailed = append(stats.PagesFailed, out.page)
			r.logger.Error("page failed", "page", out.page, "error", out.err)
		} else {
			stats.PagesSucceeded++
			r.consumePage(sinkCtx, out.result, stats)
		}
		if tunable {
			rs.SetInterval(r.throttle.observe(out.latency, out.err != nil))
		}
	}
	sort.Ints(stats.PagesFailed)
}

// consumePage runs one page's records through normalize -> validate ->
// dedup -> sink, in API order.
func (r *Runner) consumePage(ctx context.Context, page *sreality.PageResult, stats *RunStats) {
	for _, raw := range page.Records {
		stats.RecordsSeen++
		rec := normalize.Normalize(raw)
		if !rec.HasIdentity() {
			stats.Invalid++
			r.logger.Warn("record without identity fields skipped", "page", page.Page)
			continue
		}
		if !r.seen.Accept(rec.Hash) {
			continue
		}
		if err := r.sink.Upsert(ctx, rec); err != nil {
			stats.SinkFailures++
			r.logger.Error("sink upsert failed", "content_hash", rec.Hash, "error", err)
			continue
		}
		stats.RecordsYielded++
	}
	r.logger.Info("page consumed", "page", page.Page, "records", len(page.Records))
}

// reconcile emits the final report. A shortfall is advisory: the
// upstream is live, so full coverage cannot be guaranteed.
func (r *Runner) reconcile(st state, stats *RunStats) {
	if short := stats.Shortfall(); short > 0 {
		r.logger.Warn("record shortfall against declared total", "state", st,
			"declared_total", stats.DeclaredTotal,
			"records_seen", stats.RecordsSeen,
			"records_yielded", stats.RecordsYielded,
			"shortfall", short,
			"pages_failed", stats.PagesFailed)
	}
	r.logger.Info("run complete", "state", st, "stats", stats)
}
