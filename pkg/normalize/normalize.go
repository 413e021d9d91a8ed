// Package normalize flattens nested estate records into flat rows.
//
// The flattening is a fixed table: every known source path maps to one
// flat field name with one transform. Fields missing from a record are
// still present in the output with an empty marker; nested fields not
// in the table are dropped.
package normalize

import (
	"strconv"
	"strings"
)

// Record is the flat, normalized form of one estate.
type Record struct {
	// Hash is the content hash used for dedup and upsert keying.
	Hash string
	// Fallback is true when the source id was missing and Hash was
	// derived from the locality/price/coordinates composite instead.
	Fallback bool
	// Fields maps flat field names to scalar values (string, float64
	// or bool). Every name from FieldNames is present.
	Fields map[string]any
}

type kind int

const (
	kindScalar   kind = iota // string/number passed through
	kindBool                 // coerced to bool, false when missing
	kindJoin                 // list of scalars joined with "|"
	kindHrefJoin             // list of link objects, hrefs joined with "|"
)

type fieldSpec struct {
	name string
	path []string
	kind kind
}

// fieldTable is the full flattening table. Order is the canonical
// column order for sinks.
var fieldTable = []fieldSpec{
	{"id", []string{"hash_id"}, kindScalar},
	{"name", []string{"name"}, kindScalar},
	{"labelsAll", []string{"labelsAll"}, kindJoin},
	{"exclusively_at_rk", []string{"exclusively_at_rk"}, kindBool},
	{"category", []string{"category"}, kindScalar},
	{"has_floor_plan", []string{"has_floor_plan"}, kindBool},
	{"locality", []string{"locality_label"}, kindScalar},
	{"new", []string{"new"}, kindBool},
	{"type", []string{"type"}, kindScalar},
	{"price", []string{"price"}, kindScalar},
	{"seo_category_main_cb", []string{"seo", "category_main_cb"}, kindScalar},
	{"seo_category_sub_cb", []string{"seo", "category_sub_cb"}, kindScalar},
	{"seo_category_type_cb", []string{"seo", "category_type_cb"}, kindScalar},
	{"seo_locality", []string{"seo", "locality"}, kindScalar},
	{"price_czk_value_raw", []string{"price_czk", "value_raw"}, kindScalar},
	{"price_czk_unit", []string{"price_czk", "unit"}, kindScalar},
	{"price_czk_alt_value_raw", []string{"price_czk", "alt", "value_raw"}, kindScalar},
	{"price_czk_alt_unit", []string{"price_czk", "alt", "unit"}, kindScalar},
	{"links_iterator_href", []string{"_links", "iterator", "href"}, kindScalar},
	{"links_self_href", []string{"_links", "self", "href"}, kindScalar},
	{"links_images", []string{"_links", "images"}, kindHrefJoin},
	{"gps_lat", []string{"gps", "lat"}, kindScalar},
	{"gps_lon", []string{"gps", "lon"}, kindScalar},
	{"embedded_company_url", []string{"_embedded", "company", "url"}, kindScalar},
	{"embedded_company_id", []string{"_embedded", "company", "id"}, kindScalar},
	{"embedded_company_name", []string{"_embedded", "company", "name"}, kindScalar},
	{"embedded_company_logo_small", []string{"_embedded", "company", "logo_small"}, kindScalar},
}

// FallbackHashField flags records hashed without a source id.
const FallbackHashField = "fallback_hash"

// FieldNames returns the flat field names in canonical column order,
// fallback_hash last.
func FieldNames() []string {
	names := make([]string, 0, len(fieldTable)+1)
	for _, spec := range fieldTable {
		names = append(names, spec.name)
	}
	return append(names, FallbackHashField)
}

// Normalize flattens one raw estate record. It is total: it never
// fails, and every table field appears in the output, empty when the
// source field is absent.
func Normalize(raw map[string]any) Record {
	fields := make(map[string]any, len(fieldTable)+1)
	for _, spec := range fieldTable {
		fields[spec.name] = extract(raw, spec)
	}

	hash, fallback := contentHash(fields)
	fields[FallbackHashField] = fallback

	return Record{Hash: hash, Fallback: fallback, Fields: fields}
}

// HasIdentity reports whether the record carries any identity-bearing
// field at all. Records without one cannot be meaningfully keyed and
// are rejected by the pipeline's validation stage.
func (r Record) HasIdentity() bool {
	for _, name := range []string{"id", "locality", "price_czk_value_raw", "gps_lat", "gps_lon"} {
		if FormatValue(r.Fields[name]) != "" {
			return true
		}
	}
	return false
}

func extract(raw map[string]any, spec fieldSpec) any {
	v, ok := lookup(raw, spec.path)
	if !ok {
		if spec.kind == kindBool {
			return false
		}
		return ""
	}

	switch spec.kind {
	case kindBool:
		return coerceBool(v)
	case kindJoin:
		return joinList(v, func(item any) string { return scalarString(item) })
	case kindHrefJoin:
		return joinList(v, func(item any) string {
			obj, ok := item.(map[string]any)
			if !ok {
				return ""
			}
			return scalarString(obj["href"])
		})
	default:
		return coerceScalar(v)
	}
}

// lookup walks a nested path through string-keyed maps.
func lookup(raw map[string]any, path []string) (any, bool) {
	cur := any(raw)
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// coerceScalar keeps strings, numbers and bools; anything structured
// that the table does not know how to flatten becomes the empty
// marker rather than leaking into the row.
func coerceScalar(v any) any {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64, bool:
		return v
	case nil:
		return ""
	default:
		return ""
	}
}

func coerceBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case float64:
		return b != 0
	case string:
		return b == "true" || b == "1"
	default:
		return false
	}
}

func joinList(v any, format func(any) string) string {
	items, ok := v.([]any)
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if s := format(item); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "|")
}

// FormatValue renders a normalized scalar for text sinks. Numbers drop
// insignificant trailing zeros so the same value always prints the
// same way.
func FormatValue(v any) string {
	return scalarString(v)
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	default:
		return ""
	}
}
