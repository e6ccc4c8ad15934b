// Package movie holds the pure enrichment and categorization logic of
// the search pipeline. Every function here is a side-effect-free
// transform, kept out of the clients and the orchestrator so it can be
// tested in isolation.
package movie

import (
	"strconv"
	"strings"

	"github.com/ld100/cinefilter/internal/models"
	"github.com/ld100/cinefilter/internal/omdb"
)

// unknownYear is the display sentinel for movies without a release
// date.
const unknownYear = "?"

// Enrich derives the display fields for a raw discovery result: the
// year is the first segment of the release date split on a hyphen, and
// genre identifiers are mapped to names with unknown ids dropped. The
// verification status starts out as checking.
func Enrich(m models.Movie) models.EnrichedMovie {
	year := unknownYear
	if m.ReleaseDate != "" {
		year = strings.SplitN(m.ReleaseDate, "-", 2)[0]
	}

	var names []string
	for _, id := range m.GenreIDs {
		if name := models.GenreName(id); name != "" {
			names = append(names, name)
		}
	}

	return models.EnrichedMovie{
		Movie:      m,
		TMDBYear:   year,
		GenreNames: names,
		Status:     models.StatusChecking,
	}
}

// IsYearInRange reports whether year falls inside [from, to]. A nil
// year is never in range.
func IsYearInRange(year *int, from, to int) bool {
	return year != nil && *year >= from && *year <= to
}

// BuildOutcome merges a verification record into an enriched movie and
// decides its outcome. Without an IMDB id or record there is no
// contradicting evidence, so the movie counts as verified with the
// authoritative fields left absent. Otherwise the authoritative year
// decides verified versus mismatch; rating fields are carried through
// regardless of the range check.
func BuildOutcome(m models.EnrichedMovie, parsed *omdb.ParsedResult, imdbID string, providers []models.Provider, filters models.Filters) models.EnrichedMovie {
	m.Providers = providers
	m.IMDBID = imdbID

	if imdbID == "" || parsed == nil {
		m.IMDBYear = ""
		m.IMDBRating = nil
		m.IMDBRatingStr = ""
		m.Status = models.StatusVerified
		return m
	}

	if parsed.Year != nil {
		m.IMDBYear = strconv.Itoa(*parsed.Year)
	}
	m.IMDBRating = parsed.Rating
	m.IMDBRatingStr = parsed.RatingStr
	m.Director = parsed.Director
	m.Actors = parsed.Actors

	if IsYearInRange(parsed.Year, filters.YearFrom, filters.YearTo) {
		m.Status = models.StatusVerified
	} else {
		m.Status = models.StatusMismatch
	}
	return m
}

// Buckets partitions a result set for display.
type Buckets struct {
	Visible     []models.EnrichedMovie `json:"visible"`
	Hidden      []models.EnrichedMovie `json:"hidden"`
	BelowCutoff []models.EnrichedMovie `json:"below_cutoff"`
	Watched     []models.EnrichedMovie `json:"watched"`
}

// Categorize sorts movies into display buckets in a single pass.
// First match wins:
//
//  1. watched: the user already rated the movie; this overrides even a
//     mismatch outcome
//  2. hidden: the authoritative year fell outside the selected range,
//     which usually means a re-release
//  3. belowCutoff: verified, but the authoritative rating is under the
//     user's cutoff
//  4. visible: everything else, including movies still checking or in
//     an error state
func Categorize(movies []models.EnrichedMovie, statuses map[int]models.VerifyStatus, cutoff *float64, watched map[int]struct{}) Buckets {
	var out Buckets

	for _, m := range movies {
		if _, ok := watched[m.ID]; ok {
			out.Watched = append(out.Watched, m)
			continue
		}

		status := statuses[m.ID]
		switch {
		case status == models.StatusMismatch:
			out.Hidden = append(out.Hidden, m)
		case cutoff != nil && status == models.StatusVerified && m.IMDBRating != nil && *m.IMDBRating < *cutoff:
			out.BelowCutoff = append(out.BelowCutoff, m)
		default:
			out.Visible = append(out.Visible, m)
		}
	}

	return out
}
