package models

import (
	"fmt"
	"time"
)

// SortOrder selects the upstream category used for browsing
type SortOrder string

const (
	SortPopularity SortOrder = "popularity"
	SortTopRated   SortOrder = "top_rated"
	SortUpcoming   SortOrder = "upcoming"
)

// SortOrders lists the sort orders in display order
var SortOrders = []SortOrder{SortPopularity, SortTopRated, SortUpcoming}

// IsValid checks if the sort order is known
func (s SortOrder) IsValid() bool {
	return s == SortPopularity || s == SortTopRated || s == SortUpcoming
}

// Category returns the catalog list name for the sort order
func (s SortOrder) Category() string {
	if s == SortPopularity {
		return "popular"
	}
	return string(s)
}

// Next returns the sort order following s, wrapping around
func (s SortOrder) Next() SortOrder {
	for i, o := range SortOrders {
		if o == s {
			return SortOrders[(i+1)%len(SortOrders)]
		}
	}
	return SortPopularity
}

// Label returns a human readable name
func (s SortOrder) Label() string {
	switch s {
	case SortTopRated:
		return "Top Rated"
	case SortUpcoming:
		return "Upcoming"
	default:
		return "Popular"
	}
}

// ParseSortOrder converts a string into a SortOrder
func ParseSortOrder(v string) (SortOrder, error) {
	s := SortOrder(v)
	if v == "popular" {
		s = SortPopularity
	}
	if !s.IsValid() {
		return "", fmt.Errorf("unknown sort order %q", v)
	}
	return s, nil
}

// MovieSummary is a movie as it appears in catalog listings and local collections.
// Two summaries are the same movie when their IDs match.
type MovieSummary struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	PosterPath  *string `json:"poster_path,omitempty"`
	ReleaseDate string  `json:"release_date,omitempty"`
	VoteAverage float64 `json:"vote_average"`
	GenreIDs    []int   `json:"genre_ids,omitempty"`
}

// Released parses the release date; ok is false when it is missing or invalid
func (m MovieSummary) Released() (t time.Time, ok bool) {
	if m.ReleaseDate == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", m.ReleaseDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Year returns the release year or an empty string
func (m MovieSummary) Year() string {
	if t, ok := m.Released(); ok {
		return fmt.Sprintf("%d", t.Year())
	}
	return ""
}

// Genre represents a catalog genre
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Video is a trailer or clip attached to a movie
type Video struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Site string `json:"site"`
	Type string `json:"type"`
}

// CastMember is an actor credited on a movie
type CastMember struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Character   string  `json:"character,omitempty"`
	ProfilePath *string `json:"profile_path,omitempty"`
}

// CrewMember is a crew credit on a movie
type CrewMember struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Job  string `json:"job"`
}

// MovieDetail is the full record shown on the detail view
type MovieDetail struct {
	MovieSummary
	Overview       string       `json:"overview"`
	RuntimeMinutes *int         `json:"runtime,omitempty"`
	Genres         []Genre      `json:"genres"`
	Videos         []Video      `json:"videos"`
	Cast           []CastMember `json:"cast"`
	Crew           []CrewMember `json:"crew"`
}

// Summary reduces the detail to the record stored in collections
func (d MovieDetail) Summary() MovieSummary {
	s := d.MovieSummary
	if len(s.GenreIDs) == 0 && len(d.Genres) > 0 {
		s.GenreIDs = make([]int, 0, len(d.Genres))
		for _, g := range d.Genres {
			s.GenreIDs = append(s.GenreIDs, g.ID)
		}
	}
	return s
}

// Trailer returns the first YouTube trailer
func (d MovieDetail) Trailer() (Video, bool) {
	for _, v := range d.Videos {
		if v.Type == "Trailer" && v.Site == "YouTube" {
			return v, true
		}
	}
	return Video{}, false
}

// TrailerURL returns a watch link for the trailer, or "" when there is none
func (d MovieDetail) TrailerURL() string {
	v, ok := d.Trailer()
	if !ok {
		return ""
	}
	return "https://www.youtube.com/watch?v=" + v.Key
}

// Directors returns crew members credited as director
func (d MovieDetail) Directors() []CrewMember {
	var out []CrewMember
	for _, c := range d.Crew {
		if c.Job == "Director" {
			out = append(out, c)
		}
	}
	return out
}

// TopCast returns at most n cast members in billing order
func (d MovieDetail) TopCast(n int) []CastMember {
	if n >= len(d.Cast) {
		return d.Cast
	}
	return d.Cast[:n]
}

// MoviePage is one page of catalog results
type MoviePage struct {
	Page         int            `json:"page"`
	Items        []MovieSummary `json:"items"`
	TotalPages   int            `json:"totalPages"`
	TotalResults int            `json:"totalResults"`
}

// HasMore reports whether pages remain after this one
func (p *MoviePage) HasMore() bool {
	return p != nil && p.Page < p.TotalPages
}

// AnnotatedMovie is a summary with its collection membership
type AnnotatedMovie struct {
	MovieSummary
	Favorite    bool
	Watchlisted bool
}
