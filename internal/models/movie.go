package models

// Movie is a raw discovery result from the catalog API. It is never
// mutated after creation.
type Movie struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	PosterPath  string  `json:"poster_path"`
	ReleaseDate string  `json:"release_date"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`
	GenreIDs    []int   `json:"genre_ids"`
}

// Provider is a streaming provider offering a movie in some region.
type Provider struct {
	ID       int    `json:"provider_id"`
	Name     string `json:"provider_name"`
	LogoPath string `json:"logo_path"`
}

// VerifyStatus tracks where a movie is in the cross-verification
// pipeline. Transitions are monotonic within one search: checking
// moves to exactly one of verified, mismatch or error and never
// reverts.
type VerifyStatus string

const (
	StatusChecking VerifyStatus = "checking"
	StatusVerified VerifyStatus = "verified"
	StatusMismatch VerifyStatus = "mismatch"
	StatusError    VerifyStatus = "error"
)

// EnrichedMovie is a Movie plus derived display fields and, once
// verification completes, the authoritative record from the secondary
// database.
type EnrichedMovie struct {
	Movie

	// Derived at enrichment time.
	TMDBYear   string   `json:"tmdb_year"`
	GenreNames []string `json:"genre_names"`

	// Filled in when verification resolves.
	Providers     []Provider   `json:"streaming_providers,omitempty"`
	IMDBID        string       `json:"imdb_id,omitempty"`
	IMDBYear      string       `json:"imdb_year,omitempty"`
	IMDBRating    *float64     `json:"imdb_rating,omitempty"`
	IMDBRatingStr string       `json:"imdb_rating_str,omitempty"`
	Director      string       `json:"director,omitempty"`
	Actors        string       `json:"actors,omitempty"`
	Status        VerifyStatus `json:"status"`
	ErrorMessage  string       `json:"error_message,omitempty"`
}

// SearchStats is the running verification tally for one search.
// Pending is always total minus verified minus mismatched, so items
// that end in an error state stay counted as pending.
type SearchStats struct {
	Verified   int `json:"verified"`
	Mismatched int `json:"mismatched"`
	Pending    int `json:"pending"`
}

// Session is the persisted proof of a linked TMDB account.
type Session struct {
	SessionID string `json:"session_id"`
	AccountID int    `json:"account_id"`
}

// Filters are the user-chosen search parameters. They are immutable
// for the duration of one search invocation and passed by value.
type Filters struct {
	YearFrom          int      `json:"year_from"`
	YearTo            int      `json:"year_to"`
	MinRating         float64  `json:"min_rating"`
	MinVotes          int      `json:"min_votes"`
	ExcludedGenres    []int    `json:"excluded_genres"`
	ExcludedLanguages []string `json:"excluded_languages"`
	ExcludedCountries []string `json:"excluded_countries"`
	Providers         []int    `json:"providers"`
	WatchRegion       string   `json:"watch_region"`
	PageSize          int      `json:"page_size"`
	IMDBCutoff        *float64 `json:"imdb_cutoff"`
	HideWatched       bool     `json:"hide_watched"`
}
