package models

import "fmt"

// Collection names a locally persisted list of movies
type Collection string

const (
	CollectionFavorites Collection = "favorites"
	CollectionWatchlist Collection = "watchlist"
)

// Collections lists every named collection
var Collections = []Collection{CollectionFavorites, CollectionWatchlist}

// String returns the string representation of Collection
func (c Collection) String() string {
	return string(c)
}

// IsValid checks if the collection is known
func (c Collection) IsValid() bool {
	return c == CollectionFavorites || c == CollectionWatchlist
}

// ParseCollection converts a string into a Collection
func ParseCollection(v string) (Collection, error) {
	c := Collection(v)
	if !c.IsValid() {
		return "", fmt.Errorf("unknown collection %q", v)
	}
	return c, nil
}
