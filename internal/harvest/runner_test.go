package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/mvolek/estates-harvest/pkg/sink"
	"github.com/mvolek/estates-harvest/pkg/sreality"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newUpstream serves a sreality-shaped estates list of the given total
// size. failures maps page number to the number of attempts that
// should fail with 503 before succeeding; -1 means fail every attempt.
// The count probe (per_page=1) is never failed.
func newUpstream(total int, failures map[int]int) *httptest.Server {
	var mu sync.Mutex
	attempts := make(map[int]int)

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		perPage, _ := strconv.Atoi(q.Get("per_page"))

		if perPage != 1 {
			mu.Lock()
			attempts[page]++
			n := attempts[page]
			mu.Unlock()
			if limit, ok := failures[page]; ok && (limit < 0 || n <= limit) {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}

		resp := map[string]any{
			"result_size": total,
			"_embedded":   map[string]any{"estates": estatesFor(page, perPage, total)},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

// estatesFor builds records with ids unique across the whole result
// set, so a clean walk has no duplicates.
func estatesFor(page, perPage, total int) []map[string]any {
	start := (page - 1) * perPage
	if start >= total {
		return nil
	}
	n := total - start
	if n > perPage {
		n = perPage
	}
	estates := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		id := start + i + 1
		estates[i] = map[string]any{
			"hash_id":        id,
			"name":           fmt.Sprintf("Estate %d", id),
			"locality_label": "Praha",
		}
	}
	return estates
}

func newTestRunner(t *testing.T, baseURL string, snk sink.Sink) *Runner {
	t.Helper()
	client := sreality.NewClient(sreality.Config{
		BaseURL:     baseURL,
		PerPage:     1000,
		Timeout:     2 * time.Second,
		MaxRetries:  3,
		BackoffBase: time.Millisecond,
		Delay:       time.Microsecond,
	})
	return NewRunner(client, snk, 4, time.Microsecond, quietLogger())
}

func TestRunCleanWalk(t *testing.T) {
	srv := newUpstream(2500, nil)
	defer srv.Close()

	mem := sink.NewMemory()
	stats, err := newTestRunner(t, srv.URL, mem).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if stats.PagesRequired != 3 {
		t.Errorf("PagesRequired = %d, want 3", stats.PagesRequired)
	}
	if stats.PagesSucceeded != 3 {
		t.Errorf("PagesSucceeded = %d, want 3", stats.PagesSucceeded)
	}
	if len(stats.PagesFailed) != 0 {
		t.Errorf("PagesFailed = %v, want none", stats.PagesFailed)
	}
	if stats.RecordsYielded != 2500 {
		t.Errorf("RecordsYielded = %d, want 2500", stats.RecordsYielded)
	}
	if stats.Duplicates != 0 {
		t.Errorf("Duplicates = %d, want 0", stats.Duplicates)
	}
	if got := stats.Shortfall(); got != 0 {
		t.Errorf("Shortfall() = %d, want 0", got)
	}
	if mem.Len() != 2500 {
		t.Errorf("sink holds %d records, want 2500", mem.Len())
	}
}

func TestRunSurvivesFailedPage(t *testing.T) {
	srv := newUpstream(2500, map[int]int{2: -1})
	defer srv.Close()

	mem := sink.NewMemory()
	stats, err := newTestRunner(t, srv.URL, mem).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: a failed page must not fail the run: %v", err)
	}

	if stats.RecordsYielded != 1500 {
		t.Errorf("RecordsYielded = %d, want 1500", stats.RecordsYielded)
	}
	if len(stats.PagesFailed) != 1 || stats.PagesFailed[0] != 2 {
		t.Errorf("PagesFailed = %v, want [2]", stats.PagesFailed)
	}
	if got := stats.Shortfall(); got != 1000 {
		t.Errorf("Shortfall() = %d, want 1000", got)
	}
}

func TestRunRetriesTransientPage(t *testing.T) {
	// Page 1 fails twice then succeeds; well within MaxRetries 3.
	srv := newUpstream(2500, map[int]int{1: 2})
	defer srv.Close()

	stats, err := newTestRunner(t, srv.URL, sink.NewMemory()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(stats.PagesFailed) != 0 {
		t.Errorf("PagesFailed = %v, want none (page recovered on retry)", stats.PagesFailed)
	}
	if stats.RecordsYielded != 2500 {
		t.Errorf("RecordsYielded = %d, want 2500", stats.RecordsYielded)
	}
}

func TestRunDeduplicatesAcrossPages(t *testing.T) {
	// Every page serves the same 1000 records, as a shifting upstream
	// can. Declared total stays 3000.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		var estates []map[string]any
		if perPage != 1 {
			estates = estatesFor(1, 1000, 1000)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"result_size": 3000,
			"_embedded":   map[string]any{"estates": estates},
		})
	}))
	defer srv.Close()

	mem := sink.NewMemory()
	stats, err := newTestRunner(t, srv.URL, mem).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if stats.RecordsYielded != 1000 {
		t.Errorf("RecordsYielded = %d, want 1000", stats.RecordsYielded)
	}
	if stats.Duplicates != 2000 {
		t.Errorf("Duplicates = %d, want 2000", stats.Duplicates)
	}
	if mem.Len() != 1000 {
		t.Errorf("sink holds %d records, want 1000", mem.Len())
	}
	if got := stats.Shortfall(); got != 0 {
		t.Errorf("Shortfall() = %d, want 0 (all declared records were seen)", got)
	}
}

func TestRunIdempotentAgainstSameSink(t *testing.T) {
	srv := newUpstream(1500, nil)
	defer srv.Close()

	mem := sink.NewMemory()
	if _, err := newTestRunner(t, srv.URL, mem).Run(context.Background()); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}
	first := mem.Len()

	if _, err := newTestRunner(t, srv.URL, mem).Run(context.Background()); err != nil {
		t.Fatalf("second Run() error: %v", err)
	}
	if mem.Len() != first {
		t.Errorf("sink grew from %d to %d on an unchanged upstream", first, mem.Len())
	}
}

func TestRunCancellationLetsInFlightPagesFinish(t *testing.T) {
	// 10 pages of 500 records, each taking 250ms to serve. With 2
	// workers and a cancel 50ms in, exactly the two in-flight pages
	// must finish and land in the sink; no further pages may be
	// dispatched, and the run must still reach its report.
	const (
		total    = 5000
		perPage  = 500
		pageTime = 250 * time.Millisecond
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		pp, _ := strconv.Atoi(q.Get("per_page"))
		if pp != 1 {
			time.Sleep(pageTime)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"result_size": total,
			"_embedded":   map[string]any{"estates": estatesFor(page, pp, total)},
		})
	}))
	defer srv.Close()

	client := sreality.NewClient(sreality.Config{
		BaseURL:     srv.URL,
		PerPage:     perPage,
		Timeout:     2 * time.Second,
		MaxRetries:  1,
		BackoffBase: time.Millisecond,
		Delay:       time.Microsecond,
	})
	mem := sink.NewMemory()
	runner := NewRunner(client, mem, 2, time.Microsecond, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	stats, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error: cancellation must still reconcile: %v", err)
	}

	if stats.PagesSucceeded != 2 {
		t.Errorf("PagesSucceeded = %d, want 2 (in-flight pages must complete)", stats.PagesSucceeded)
	}
	if stats.PagesRequested != 2 {
		t.Errorf("PagesRequested = %d, want 2 (no new dispatches after cancel)", stats.PagesRequested)
	}
	if len(stats.PagesFailed) != 0 {
		t.Errorf("PagesFailed = %v, want none (cancel is not a page failure)", stats.PagesFailed)
	}
	if stats.RecordsYielded != 2*perPage {
		t.Errorf("RecordsYielded = %d, want %d", stats.RecordsYielded, 2*perPage)
	}
	if mem.Len() != 2*perPage {
		t.Errorf("sink holds %d records, want %d", mem.Len(), 2*perPage)
	}
}

func TestRunFailsOnCountDiscovery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"no_result_size": true}`)
	}))
	defer srv.Close()

	_, err := newTestRunner(t, srv.URL, sink.NewMemory()).Run(context.Background())
	if err == nil {
		t.Fatal("Run() succeeded without a declared total")
	}
	if !sreality.IsFatal(err) {
		t.Errorf("count discovery error lost its fatal classification: %v", err)
	}
}

func TestRunSkipsRecordsWithoutIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		var estates []map[string]any
		if perPage != 1 {
			estates = []map[string]any{
				{"hash_id": 1, "name": "real"},
				{"name": "no identity at all"},
			}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"result_size": 2,
			"_embedded":   map[string]any{"estates": estates},
		})
	}))
	defer srv.Close()

	mem := sink.NewMemory()
	stats, err := newTestRunner(t, srv.URL, mem).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if stats.Invalid != 1 {
		t.Errorf("Invalid = %d, want 1", stats.Invalid)
	}
	if stats.RecordsYielded != 1 {
		t.Errorf("RecordsYielded = %d, want 1", stats.RecordsYielded)
	}
}
