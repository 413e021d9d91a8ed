package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// contentHash derives the dedup/upsert key for a normalized record.
//
// When the source id is present the hash depends on it alone, so two
// fetches of the same estate hash identically regardless of incidental
// fields. Without an id the hash falls back to the locality, raw
// price and coordinates; callers must treat such records as lower
// confidence (see FallbackHashField).
func contentHash(fields map[string]any) (string, bool) {
	if id := FormatValue(fields["id"]); id != "" {
		return hashOf("estate:" + id), false
	}

	composite := strings.Join([]string{
		FormatValue(fields["locality"]),
		FormatValue(fields["price_czk_value_raw"]),
		FormatValue(fields["gps_lat"]),
		FormatValue(fields["gps_lon"]),
	}, "|")
	return hashOf("composite:" + composite), true
}

func hashOf(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
