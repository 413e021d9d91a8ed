package sink

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/mvolek/estates-harvest/pkg/normalize"
)

func writeCSV(t *testing.T, records []normalize.Record) [][]string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "estates.csv")
	c := NewCSV(path)
	ctx := context.Background()
	if err := c.Open(ctx); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	for _, rec := range records {
		if err := c.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert() error: %v", err)
		}
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	return rows
}

func TestCSVHeaderIsUnionOfFields(t *testing.T) {
	first := normalize.Normalize(map[string]any{"hash_id": float64(1)})

	// A field the first record never carried: the header must still
	// include it.
	second := normalize.Normalize(map[string]any{"hash_id": float64(2)})
	second.Fields["late_extra"] = "only in second"

	rows := writeCSV(t, []normalize.Record{first, second})
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}

	header := rows[0]
	col := -1
	for i, name := range header {
		if name == "late_extra" {
			col = i
		}
	}
	if col == -1 {
		t.Fatalf("header %v missing late-appearing column", header)
	}
	if rows[1][col] != "" {
		t.Errorf("first row late_extra = %q, want empty marker", rows[1][col])
	}
	if rows[2][col] != "only in second" {
		t.Errorf("second row late_extra = %q", rows[2][col])
	}

	// Canonical columns come first, in table order.
	for i, name := range normalize.FieldNames() {
		if header[i] != name {
			t.Fatalf("header[%d] = %s, want %s", i, header[i], name)
		}
	}
}

func TestCSVUpsertIsIdempotent(t *testing.T) {
	rec := normalize.Normalize(map[string]any{"hash_id": float64(7), "name": "first"})
	updated := normalize.Normalize(map[string]any{"hash_id": float64(7), "name": "second"})

	rows := writeCSV(t, []normalize.Record{rec, updated, rec})
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header + 1 (same hash upserted thrice)", len(rows))
	}
}

func TestCSVEmptyRunStillWritesHeader(t *testing.T) {
	rows := writeCSV(t, nil)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want header only", len(rows))
	}
	if len(rows[0]) != len(normalize.FieldNames()) {
		t.Errorf("header has %d columns, want %d", len(rows[0]), len(normalize.FieldNames()))
	}
}
