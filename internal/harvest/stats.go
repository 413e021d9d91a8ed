package harvest

import (
	"log/slog"
	"time"
)

// RunStats accumulates page and record outcomes for one run. The
// coordinator is its only writer; workers report outcomes through the
// results channel instead of touching it.
type RunStats struct {
	DeclaredTotal  int
	PagesRequired  int
	PagesRequested int
	PagesSucceeded int
	PagesFailed    []int

	RecordsSeen    int
	RecordsYielded int
	Duplicates     int
	Invalid        int
	SinkFailures   int

	Elapsed time.Duration
}

// Shortfall is the number of declared records the run never saw.
// Advisory only: the upstream is live and may shrink between the count
// probe and the page walk. It deliberately counts seen records, not
// yielded ones: a record lost to a sink write failure was still
// delivered by the upstream, so it shows up under SinkFailures rather
// than as a shortfall.
func (s *RunStats) Shortfall() int {
	short := s.DeclaredTotal - s.RecordsSeen
	if short < 0 {
		return 0
	}
	return short
}

// LogValue implements slog.LogValuer for the final report.
func (s *RunStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("declared_total", s.DeclaredTotal),
		slog.Int("pages_required", s.PagesRequired),
		slog.Int("pages_requested", s.PagesRequested),
		slog.Int("pages_succeeded", s.PagesSucceeded),
		slog.Any("pages_failed", s.PagesFailed),
		slog.Int("records_seen", s.RecordsSeen),
		slog.Int("records_yielded", s.RecordsYielded),
		slog.Int("records_deduplicated", s.Duplicates),
		slog.Int("records_invalid", s.Invalid),
		slog.Int("sink_write_failures", s.SinkFailures),
		slog.Int("shortfall", s.Shortfall()),
		slog.Duration("elapsed", s.Elapsed),
	)
}
