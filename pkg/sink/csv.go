package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mvolek/estates-harvest/pkg/normalize"
)

// CSV writes records to a delimited flat file.
//
// Upserts are buffered keyed by content hash and nothing is written
// until Close, when the header is computed as the union of field names
// across the entire record set. A header derived from the first record
// alone would silently drop any column that first appears later.
type CSV struct {
	path    string
	records map[string]normalize.Record
	order   []string
}

// NewCSV returns a CSV sink writing to path on Close.
func NewCSV(path string) *CSV {
	return &CSV{
		path:    path,
		records: make(map[string]normalize.Record),
	}
}

func (c *CSV) Open(ctx context.Context) error {
	dir := filepath.Dir(c.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return nil
}

func (c *CSV) Upsert(ctx context.Context, rec normalize.Record) error {
	if _, ok := c.records[rec.Hash]; !ok {
		c.order = append(c.order, rec.Hash)
	}
	c.records[rec.Hash] = rec
	return nil
}

// Close computes the header and writes the whole file. Records keep
// first-upsert order; rows hold the empty marker for any header field
// a record lacks.
func (c *CSV) Close() error {
	header := c.header()

	f, err := os.Create(c.path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", c.path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return errors.Join(err, f.Close())
	}
	row := make([]string, len(header))
	for _, hash := range c.order {
		rec := c.records[hash]
		for i, name := range header {
			row[i] = normalize.FormatValue(rec.Fields[name])
		}
		if err := w.Write(row); err != nil {
			return errors.Join(err, f.Close())
		}
	}
	w.Flush()

	return errors.Join(w.Error(), f.Close())
}

// header is the canonical column order followed by any extra field
// names seen in the buffered records, sorted.
func (c *CSV) header() []string {
	header := normalize.FieldNames()
	known := make(map[string]bool, len(header))
	for _, name := range header {
		known[name] = true
	}

	var extras []string
	for _, rec := range c.records {
		for name := range rec.Fields {
			if !known[name] {
				known[name] = true
				extras = append(extras, name)
			}
		}
	}
	sort.Strings(extras)

	return append(header, extras...)
}
