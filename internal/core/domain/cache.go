package domain

import "time"

// Cache categories. Every cached payload belongs to exactly one category
// under its AIRAC tag.
const (
	CategoryAirports  = "airports"
	CategoryCharts    = "charts"
	CategoryDocuments = "documents"
	CategoryWeather   = "weather"
)

// CacheKey addresses one cached payload: (AIRAC tag, category, identifier).
type CacheKey struct {
	Tag      VersionTag
	Category string
	ID       string
}

// CacheEntry is an opaque serialized payload plus its write timestamp.
// Entries are last-write-wins; there is no merge.
type CacheEntry struct {
	Payload  []byte
	StoredAt time.Time
}
