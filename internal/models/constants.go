package models

import "time"

// Genre pairs a TMDB genre identifier with its display name.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// WatchRegion is a region selectable for provider availability.
type WatchRegion struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Genres lists the TMDB movie genres offered in the filter panel.
var Genres = []Genre{
	{ID: 28, Name: "Action"},
	{ID: 12, Name: "Adventure"},
	{ID: 16, Name: "Animation"},
	{ID: 35, Name: "Comedy"},
	{ID: 80, Name: "Crime"},
	{ID: 99, Name: "Documentary"},
	{ID: 18, Name: "Drama"},
	{ID: 10751, Name: "Family"},
	{ID: 14, Name: "Fantasy"},
	{ID: 36, Name: "History"},
	{ID: 27, Name: "Horror"},
	{ID: 10402, Name: "Music"},
	{ID: 9648, Name: "Mystery"},
	{ID: 10749, Name: "Romance"},
	{ID: 878, Name: "Sci-Fi"},
	{ID: 10770, Name: "TV Movie"},
	{ID: 53, Name: "Thriller"},
	{ID: 10752, Name: "War"},
	{ID: 37, Name: "Western"},
}

// GenreName resolves a genre identifier to its display name. Unknown
// identifiers resolve to "" and are silently dropped by enrichment.
func GenreName(id int) string {
	for _, g := range Genres {
		if g.ID == id {
			return g.Name
		}
	}
	return ""
}

// KnownProviders lists the streaming providers offered in the filter
// panel, keyed by TMDB watch-provider identifier.
var KnownProviders = []Provider{
	{ID: 8, Name: "Netflix"},
	{ID: 9, Name: "Amazon Prime"},
	{ID: 337, Name: "Disney+"},
	{ID: 350, Name: "Apple TV+"},
	{ID: 1899, Name: "Max"},
	{ID: 15, Name: "Hulu"},
	{ID: 531, Name: "Paramount+"},
	{ID: 386, Name: "Peacock"},
	{ID: 283, Name: "Crunchyroll"},
	{ID: 387, Name: "HBO Max"},
	{ID: 2, Name: "Apple iTunes"},
	{ID: 3, Name: "Google Play"},
	{ID: 192, Name: "YouTube"},
	{ID: 11, Name: "Mubi"},
	{ID: 175, Name: "Tubi"},
}

// WatchRegions lists the regions selectable for provider availability.
var WatchRegions = []WatchRegion{
	{Code: "US", Name: "United States"},
	{Code: "GB", Name: "United Kingdom"},
	{Code: "CA", Name: "Canada"},
	{Code: "AU", Name: "Australia"},
	{Code: "DE", Name: "Germany"},
	{Code: "FR", Name: "France"},
	{Code: "ES", Name: "Spain"},
	{Code: "IT", Name: "Italy"},
	{Code: "NL", Name: "Netherlands"},
	{Code: "SE", Name: "Sweden"},
	{Code: "BR", Name: "Brazil"},
	{Code: "IN", Name: "India"},
	{Code: "JP", Name: "Japan"},
	{Code: "KR", Name: "South Korea"},
}

// PageSizes are the user-facing result page sizes. The catalog API
// always returns 20 items per native page regardless of this choice.
var PageSizes = []int{10, 20, 50, 100}

const DefaultPageSize = 100

// ValidPageSize reports whether size is one of the supported
// user-facing page sizes.
func ValidPageSize(size int) bool {
	for _, s := range PageSizes {
		if s == size {
			return true
		}
	}
	return false
}

// DefaultFilters returns the initial filter selection.
func DefaultFilters() Filters {
	year := time.Now().Year()
	return Filters{
		YearFrom:       year - 3,
		YearTo:         year,
		MinRating:      7.0,
		MinVotes:       100,
		ExcludedGenres: []int{10751},
		WatchRegion:    "US",
		PageSize:       DefaultPageSize,
	}
}
