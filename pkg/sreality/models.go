package sreality

// RawRecord is one estate object as returned by the list endpoint.
// The upstream does not guarantee a fixed per-record schema, so it
// stays an untyped map until normalization.
type RawRecord map[string]any

// Count is the outcome of count discovery: the total the upstream
// declares plus the page size the client will walk with.
type Count struct {
	DeclaredTotal int
	PerPage       int
}

// PageResult is one successfully fetched page. It is consumed once by
// the coordinator and discarded.
type PageResult struct {
	Page          int
	Records       []RawRecord
	DeclaredTotal int
	PerPage       int
}

// listResponse mirrors the subset of the estates payload the harvester
// reads. ResultSize is a pointer so a missing field is distinguishable
// from zero.
type listResponse struct {
	ResultSize *int64 `json:"result_size"`
	PerPage    int    `json:"per_page"`
	Embedded   struct {
		Estates []RawRecord `json:"estates"`
	} `json:"_embedded"`
}
