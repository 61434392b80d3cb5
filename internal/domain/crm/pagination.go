package crm

const (
	// DefaultContactLimit applies when SearchContacts is called with limit <= 0
	DefaultContactLimit = 10
	// DefaultPageSize applies to household and task pages
	DefaultPageSize = 20
	// MaxPageSize caps every page request
	MaxPageSize = 200
)

// NormalizePage clamps limit into [1, MaxPageSize] using def for non-positive
// limits, and floors offset at zero.
func NormalizePage(limit, offset, def int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// FetchSize is the number of rows to request for a page of limit rows.
// The extra row tells whether another page exists.
func FetchSize(limit int) int {
	return limit + 1
}

// TrimPage cuts records fetched with FetchSize down to limit and reports
// whether more rows exist.
func TrimPage[T any](records []T, limit int) ([]T, bool) {
	if records == nil {
		return []T{}, false
	}
	if len(records) > limit {
		return records[:limit], true
	}
	return records, false
}
