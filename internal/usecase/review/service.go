package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"novalyn/internal/domain"
)

// ErrAlreadyReviewed is returned when the user already reviewed the book.
var ErrAlreadyReviewed = errors.New("book is already reviewed by this user")

// ErrAlreadyUpvoted is returned when the user already upvoted the review.
var ErrAlreadyUpvoted = errors.New("review is already upvoted by this user")

const defaultListLimit = 10

// Service manages book reviews. A review carries the reviewer's rating,
// so mutations keep the book aggregate and the library entry in step.
type Service struct {
	reviews domain.ReviewRepo
	books   domain.BookRepo
	library domain.LibraryRepo
	users   domain.UserRepo
	log     zerolog.Logger
}

// NewService creates the review service.
func NewService(reviews domain.ReviewRepo, books domain.BookRepo, library domain.LibraryRepo, users domain.UserRepo, logger zerolog.Logger) *Service {
	return &Service{reviews: reviews, books: books, library: library, users: users, log: logger}
}

func validate(text string, rating int) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: review text is required", domain.ErrInvalidArgument)
	}
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", domain.ErrInvalidArgument)
	}
	return nil
}

// Create writes the user's review of a book. One review per (user, book)
// pair; the review's rating also becomes the user's library rating when
// the book is in their collection.
func (s *Service) Create(ctx context.Context, userID, bookID int64, text string, rating int) (domain.Review, error) {
	if err := validate(text, rating); err != nil {
		return domain.Review{}, err
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return domain.Review{}, fmt.Errorf("load user: %w", err)
	}
	if _, err := s.books.GetBook(ctx, bookID); err != nil {
		return domain.Review{}, fmt.Errorf("load book: %w", err)
	}
	if _, err := s.reviews.GetUserReview(ctx, userID, bookID); err == nil {
		return domain.Review{}, ErrAlreadyReviewed
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Review{}, fmt.Errorf("check existing review: %w", err)
	}
	created, err := s.reviews.CreateReview(ctx, domain.Review{UserID: userID, BookID: bookID, Text: text, Rating: rating})
	if err != nil {
		return domain.Review{}, fmt.Errorf("create review: %w", err)
	}
	if err := s.syncRating(ctx, userID, bookID, rating); err != nil {
		return domain.Review{}, err
	}
	// re-read for the reviewer name and book labels
	return s.reviews.GetReview(ctx, created.ID)
}

// Update rewrites the owner's review. A review owned by another user
// reads as absent.
func (s *Service) Update(ctx context.Context, userID, reviewID int64, text string, rating int) (domain.Review, error) {
	if err := validate(text, rating); err != nil {
		return domain.Review{}, err
	}
	existing, err := s.reviews.GetReview(ctx, reviewID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("load review: %w", err)
	}
	if existing.UserID != userID {
		return domain.Review{}, fmt.Errorf("%w: review %d", domain.ErrNotFound, reviewID)
	}
	if err := s.reviews.UpdateReview(ctx, reviewID, text, rating); err != nil {
		return domain.Review{}, fmt.Errorf("update review: %w", err)
	}
	if rating != existing.Rating {
		old := existing.Rating
		if err := s.books.ApplyRating(ctx, existing.BookID, &old, rating); err != nil {
			return domain.Review{}, fmt.Errorf("apply aggregate rating: %w", err)
		}
		if err := s.syncEntryRating(ctx, userID, existing.BookID, rating); err != nil {
			return domain.Review{}, err
		}
	}
	return s.reviews.GetReview(ctx, reviewID)
}

// Delete removes the owner's review and retracts its rating from the
// book aggregate.
func (s *Service) Delete(ctx context.Context, userID, reviewID int64) error {
	existing, err := s.reviews.GetReview(ctx, reviewID)
	if err != nil {
		return fmt.Errorf("load review: %w", err)
	}
	if existing.UserID != userID {
		return fmt.Errorf("%w: review %d", domain.ErrNotFound, reviewID)
	}
	if err := s.reviews.DeleteReview(ctx, reviewID); err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if err := s.books.RetractRating(ctx, existing.BookID, existing.Rating); err != nil {
		return fmt.Errorf("retract aggregate rating: %w", err)
	}
	return nil
}

// Get returns a single review by id.
func (s *Service) Get(ctx context.Context, reviewID int64) (domain.Review, error) {
	return s.reviews.GetReview(ctx, reviewID)
}

// BookReviews lists a book's reviews plus the total count for paging.
func (s *Service) BookReviews(ctx context.Context, bookID int64, sort domain.ReviewSort, limit, offset int) ([]domain.Review, int, error) {
	if sort == "" {
		sort = domain.ReviewSortNewest
	}
	if !sort.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown review sort %q", domain.ErrInvalidArgument, sort)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	if _, err := s.books.GetBook(ctx, bookID); err != nil {
		return nil, 0, fmt.Errorf("load book: %w", err)
	}
	reviews, err := s.reviews.ListBookReviews(ctx, bookID, sort, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	total, err := s.reviews.CountBookReviews(ctx, bookID)
	if err != nil {
		return nil, 0, fmt.Errorf("count reviews: %w", err)
	}
	return reviews, total, nil
}

// Upvote records the user's upvote. A repeated upvote is rejected.
func (s *Service) Upvote(ctx context.Context, userID, reviewID int64) (domain.Review, error) {
	if _, err := s.reviews.GetReview(ctx, reviewID); err != nil {
		return domain.Review{}, fmt.Errorf("load review: %w", err)
	}
	inserted, err := s.reviews.Upvote(ctx, reviewID, userID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("upvote review: %w", err)
	}
	if !inserted {
		return domain.Review{}, ErrAlreadyUpvoted
	}
	return s.reviews.GetReview(ctx, reviewID)
}

// RemoveUpvote withdraws the user's upvote. Removing an upvote that was
// never cast is a no-op.
func (s *Service) RemoveUpvote(ctx context.Context, userID, reviewID int64) (domain.Review, error) {
	if _, err := s.reviews.GetReview(ctx, reviewID); err != nil {
		return domain.Review{}, fmt.Errorf("load review: %w", err)
	}
	if err := s.reviews.RemoveUpvote(ctx, reviewID, userID); err != nil {
		return domain.Review{}, fmt.Errorf("remove upvote: %w", err)
	}
	return s.reviews.GetReview(ctx, reviewID)
}

// syncRating folds a fresh review rating into the book aggregate and,
// when the book sits in the user's library, into their entry.
func (s *Service) syncRating(ctx context.Context, userID, bookID int64, rating int) error {
	entry, err := s.library.GetEntry(ctx, userID, bookID)
	switch {
	case err == nil:
		if err := s.library.UpdateRating(ctx, userID, bookID, rating); err != nil {
			return fmt.Errorf("update entry rating: %w", err)
		}
		if err := s.books.ApplyRating(ctx, bookID, entry.Rating, rating); err != nil {
			return fmt.Errorf("apply aggregate rating: %w", err)
		}
	case errors.Is(err, domain.ErrNotFound):
		if err := s.books.ApplyRating(ctx, bookID, nil, rating); err != nil {
			return fmt.Errorf("apply aggregate rating: %w", err)
		}
	default:
		return fmt.Errorf("load entry: %w", err)
	}
	return nil
}

// syncEntryRating updates the library entry rating when the book is in
// the user's collection. The aggregate is already settled by the caller.
func (s *Service) syncEntryRating(ctx context.Context, userID, bookID int64, rating int) error {
	if _, err := s.library.GetEntry(ctx, userID, bookID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load entry: %w", err)
	}
	if err := s.library.UpdateRating(ctx, userID, bookID, rating); err != nil {
		return fmt.Errorf("update entry rating: %w", err)
	}
	return nil
}
