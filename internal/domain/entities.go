package domain

import (
	"sort"
	"time"
)

// ReadingStatus is the shelf state of a book in a user's library.
type ReadingStatus string

const (
	StatusWantToRead       ReadingStatus = "want-to-read"
	StatusCurrentlyReading ReadingStatus = "currently-reading"
	StatusRead             ReadingStatus = "read"
)

// Valid reports whether the status is one of the known values.
func (s ReadingStatus) Valid() bool {
	switch s {
	case StatusWantToRead, StatusCurrentlyReading, StatusRead:
		return true
	}
	return false
}

// User describes an account in the system.
type User struct {
	ID        int64
	Name      string
	Email     string
	CreatedAt time.Time
}

// Book describes a catalogued book.
type Book struct {
	ID            int64
	Title         string
	Author        string
	Genre         string
	Description   string
	PublishedAt   time.Time
	PageCount     int
	AverageRating float64
	TotalRatings  int
	CreatedAt     time.Time
}

// LibraryEntry links a user to a book in their library.
// At most one entry exists per (user, book) pair.
type LibraryEntry struct {
	ID          int64
	UserID      int64
	BookID      int64
	Status      ReadingStatus
	Rating      *int
	CurrentPage int
	StartedAt   *time.Time
	FinishedAt  *time.Time
	CreatedAt   time.Time
	Book        Book
}

// UserSignature is the derived reading profile of a user: deduplicated
// genre and author sets plus the set of owned book IDs. It is computed
// fresh from library entries on every request and never persisted.
type UserSignature struct {
	UserID      int64
	Genres      map[string]struct{}
	Authors     map[string]struct{}
	Owned       map[int64]struct{}
	LibrarySize int
}

// OwnsBook reports whether the book is already in the user's library.
func (s UserSignature) OwnsBook(bookID int64) bool {
	_, ok := s.Owned[bookID]
	return ok
}

// OwnedIDs returns the owned book IDs as a sorted slice for query exclusion.
func (s UserSignature) OwnedIDs() []int64 {
	ids := make([]int64, 0, len(s.Owned))
	for id := range s.Owned {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// GenreList returns the genre set as a sorted slice for query filters.
func (s UserSignature) GenreList() []string {
	genres := make([]string, 0, len(s.Genres))
	for g := range s.Genres {
		genres = append(genres, g)
	}
	sort.Strings(genres)
	return genres
}

// AuthorList returns the author set as a sorted slice for query filters.
func (s UserSignature) AuthorList() []string {
	authors := make([]string, 0, len(s.Authors))
	for a := range s.Authors {
		authors = append(authors, a)
	}
	sort.Strings(authors)
	return authors
}

// AffinityResult is one ranked peer produced by the affinity scorer.
type AffinityResult struct {
	UserID       int64
	SharedGenres int
	BooksRead    int
}

// SuggestedUser is an affinity-ranked peer hydrated with account data.
type SuggestedUser struct {
	User         User
	SharedGenres int
	BooksRead    int
}

// RecommendationSet holds the four independently computed lists returned
// by the recommendation composer. Lists are not cross-deduplicated: a
// book may appear in more than one list, but never a book the user owns.
type RecommendationSet struct {
	PeerPicks       []Book
	GenreMatches    []Book
	AuthorMatches   []Book
	TrendingInGenre []Book
}

// Review is a user's written review of a book. One review per
// (user, book) pair; the upvote count is derived from vote rows.
type Review struct {
	ID         int64
	UserID     int64
	BookID     int64
	Text       string
	Rating     int
	Upvotes    int
	UserName   string
	BookTitle  string
	BookAuthor string
	CreatedAt  time.Time
}

// Shelf is a named per-user collection of library entries. Default
// shelves cannot be renamed or deleted.
type Shelf struct {
	ID          int64
	UserID      int64
	Name        string
	Description string
	IsDefault   bool
	BookCount   int
	CreatedAt   time.Time
}

// ActivityType classifies a feed event.
type ActivityType string

const (
	ActivityBookAdded    ActivityType = "book_added"
	ActivityBookRated    ActivityType = "book_rated"
	ActivityBookFinished ActivityType = "book_finished"
	ActivityFollowed     ActivityType = "followed"
)

// ActivityEvent is a feed event in transit through the queue.
type ActivityEvent struct {
	ID           string       `json:"id"`
	UserID       int64        `json:"user_id"`
	Type         ActivityType `json:"type"`
	BookID       *int64       `json:"book_id,omitempty"`
	TargetUserID *int64       `json:"target_user_id,omitempty"`
	Rating       *int         `json:"rating,omitempty"`
	OccurredAt   time.Time    `json:"occurred_at"`
}

// Activity is a persisted feed event hydrated for display.
type Activity struct {
	ID           string
	UserID       int64
	UserName     string
	Type         ActivityType
	BookID       *int64
	BookTitle    string
	BookAuthor   string
	TargetUserID *int64
	Rating       *int
	OccurredAt   time.Time
}
