package domain

import (
	"context"
	"time"
)

// BookSort selects the ordering of catalog queries.
type BookSort string

const (
	// SortByRating orders by average rating desc, then total ratings desc.
	SortByRating BookSort = "rating"
	// SortByPopularity orders by total ratings desc, then average rating desc.
	SortByPopularity BookSort = "popularity"
	// SortByPublishedAt orders by publication date desc.
	SortByPublishedAt BookSort = "published"
)

// Valid reports whether the sort criterion is known.
func (s BookSort) Valid() bool {
	switch s {
	case SortByRating, SortByPopularity, SortByPublishedAt:
		return true
	}
	return false
}

// ReviewSort selects the ordering of review listings.
type ReviewSort string

const (
	ReviewSortNewest  ReviewSort = "newest"
	ReviewSortOldest  ReviewSort = "oldest"
	ReviewSortHighest ReviewSort = "highest"
	ReviewSortLowest  ReviewSort = "lowest"
	ReviewSortPopular ReviewSort = "popular"
)

// Valid reports whether the sort criterion is known.
func (s ReviewSort) Valid() bool {
	switch s {
	case ReviewSortNewest, ReviewSortOldest, ReviewSortHighest, ReviewSortLowest, ReviewSortPopular:
		return true
	}
	return false
}

// UserRepo manages accounts.
type UserRepo interface {
	GetUser(ctx context.Context, id int64) (User, error)
	GetUsers(ctx context.Context, ids []int64) ([]User, error)
}

// FollowRepo manages the follower graph.
type FollowRepo interface {
	Follow(ctx context.Context, followerID, followeeID int64) error
	Unfollow(ctx context.Context, followerID, followeeID int64) error
	IsFollowing(ctx context.Context, followerID, followeeID int64) (bool, error)
	ListFollowers(ctx context.Context, userID int64) ([]User, error)
	ListFollowing(ctx context.Context, userID int64) ([]User, error)
	ListFollowingIDs(ctx context.Context, userID int64) ([]int64, error)
}

// BookRepo manages the book catalog and the query surface the
// recommendation composer is built on.
type BookRepo interface {
	CreateBook(ctx context.Context, book Book) (Book, error)
	GetBook(ctx context.Context, id int64) (Book, error)
	ListBooks(ctx context.Context, limit, offset int) ([]Book, error)
	SearchBooks(ctx context.Context, query string, limit int) ([]Book, error)
	ListByGenres(ctx context.Context, genres []string, excludeIDs []int64, sort BookSort, limit int) ([]Book, error)
	ListByAuthors(ctx context.Context, authors []string, excludeIDs []int64, sort BookSort, limit int) ([]Book, error)
	ListTop(ctx context.Context, sort BookSort, limit int) ([]Book, error)
	ListPublishedSince(ctx context.Context, since time.Time, limit int) ([]Book, error)
	ListByGenre(ctx context.Context, genre string, limit int) ([]Book, error)
	ApplyRating(ctx context.Context, bookID int64, oldRating *int, newRating int) error
	RetractRating(ctx context.Context, bookID int64, rating int) error
}

// LibraryRepo manages user library entries.
type LibraryRepo interface {
	GetEntry(ctx context.Context, userID, bookID int64) (LibraryEntry, error)
	CreateEntry(ctx context.Context, entry LibraryEntry) (LibraryEntry, error)
	UpdateStatus(ctx context.Context, userID, bookID int64, status ReadingStatus, startedAt, finishedAt *time.Time) error
	UpdateRating(ctx context.Context, userID, bookID int64, rating int) error
	DeleteEntry(ctx context.Context, userID, bookID int64) error
	ListEntries(ctx context.Context, userID int64, status ReadingStatus, limit, offset int) ([]LibraryEntry, error)
	ListForSignature(ctx context.Context, userID int64) ([]LibraryEntry, error)
	ListSignatures(ctx context.Context, excludeUserIDs []int64) ([]UserSignature, error)
	ListPeerFavorites(ctx context.Context, userIDs []int64, minRating int, excludeBookIDs []int64, limit int) ([]Book, error)
}

// ReviewRepo manages book reviews and their upvotes.
type ReviewRepo interface {
	CreateReview(ctx context.Context, review Review) (Review, error)
	GetReview(ctx context.Context, id int64) (Review, error)
	GetUserReview(ctx context.Context, userID, bookID int64) (Review, error)
	ListBookReviews(ctx context.Context, bookID int64, sort ReviewSort, limit, offset int) ([]Review, error)
	CountBookReviews(ctx context.Context, bookID int64) (int, error)
	UpdateReview(ctx context.Context, id int64, text string, rating int) error
	DeleteReview(ctx context.Context, id int64) error
	Upvote(ctx context.Context, reviewID, userID int64) (bool, error)
	RemoveUpvote(ctx context.Context, reviewID, userID int64) error
}

// ShelfRepo manages per-user shelves and their entry membership.
type ShelfRepo interface {
	CreateShelf(ctx context.Context, shelf Shelf) (Shelf, error)
	GetShelf(ctx context.Context, userID, shelfID int64) (Shelf, error)
	GetShelfByName(ctx context.Context, userID int64, name string) (Shelf, error)
	ListShelves(ctx context.Context, userID int64) ([]Shelf, error)
	UpdateShelf(ctx context.Context, userID, shelfID int64, name, description string) error
	DeleteShelf(ctx context.Context, userID, shelfID int64) error
	AddToShelf(ctx context.Context, shelfID, entryID int64) (bool, error)
	RemoveFromShelf(ctx context.Context, shelfID, entryID int64) error
	ListShelfEntries(ctx context.Context, shelfID int64) ([]LibraryEntry, error)
}

// ActivityRepo persists and reads the activity feed.
type ActivityRepo interface {
	InsertActivity(ctx context.Context, event ActivityEvent) error
	ListFeed(ctx context.Context, userIDs []int64, limit int) ([]Activity, error)
}

// AckFunc settles a popped event: true acknowledges it, false returns
// it to the queue for redelivery.
type AckFunc func(processed bool) error

// ActivityQueue transports activity events to the worker.
type ActivityQueue interface {
	Enqueue(ctx context.Context, event ActivityEvent) error
	Pop(ctx context.Context) (ActivityEvent, AckFunc, error)
}

// SignatureLoader derives a user's reading profile from their library.
type SignatureLoader interface {
	LoadSignature(ctx context.Context, userID int64) (UserSignature, error)
}

// PeerRanker ranks candidate users by genre overlap with the target.
type PeerRanker interface {
	RankPeers(target UserSignature, candidates []UserSignature, exclude map[int64]struct{}, limit int) []AffinityResult
}

// Recommender assembles ranked book lists for the HTTP layer.
type Recommender interface {
	Compose(ctx context.Context, userID int64) (RecommendationSet, error)
	Trending(ctx context.Context) ([]Book, error)
	NewReleases(ctx context.Context) ([]Book, error)
	ByGenre(ctx context.Context, genre string) ([]Book, error)
}

// Cache is a simple TTL store.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
