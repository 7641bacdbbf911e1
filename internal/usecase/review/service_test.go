package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"novalyn/internal/domain"
)

type stubUsers struct{}

func (stubUsers) GetUser(_ context.Context, id int64) (domain.User, error) {
	return domain.User{ID: id}, nil
}

func (stubUsers) GetUsers(context.Context, []int64) ([]domain.User, error) { return nil, nil }

type stubBooks struct {
	appliedOld   *int
	appliedNew   int
	retractedFor int64
	retracted    int
}

func (s *stubBooks) CreateBook(_ context.Context, book domain.Book) (domain.Book, error) {
	return book, nil
}

func (s *stubBooks) GetBook(_ context.Context, id int64) (domain.Book, error) {
	return domain.Book{ID: id}, nil
}

func (s *stubBooks) ListBooks(context.Context, int, int) ([]domain.Book, error) { return nil, nil }

func (s *stubBooks) SearchBooks(context.Context, string, int) ([]domain.Book, error) {
	return nil, nil
}

func (s *stubBooks) ListByGenres(context.Context, []string, []int64, domain.BookSort, int) ([]domain.Book, error) {
	return nil, nil
}

func (s *stubBooks) ListByAuthors(context.Context, []string, []int64, domain.BookSort, int) ([]domain.Book, error) {
	return nil, nil
}

func (s *stubBooks) ListTop(context.Context, domain.BookSort, int) ([]domain.Book, error) {
	return nil, nil
}

func (s *stubBooks) ListPublishedSince(context.Context, time.Time, int) ([]domain.Book, error) {
	return nil, nil
}

func (s *stubBooks) ListByGenre(context.Context, string, int) ([]domain.Book, error) {
	return nil, nil
}

func (s *stubBooks) ApplyRating(_ context.Context, _ int64, oldRating *int, newRating int) error {
	s.appliedOld = oldRating
	s.appliedNew = newRating
	return nil
}

func (s *stubBooks) RetractRating(_ context.Context, bookID int64, rating int) error {
	s.retractedFor = bookID
	s.retracted = rating
	return nil
}

type stubLibrary struct {
	entry    *domain.LibraryEntry
	updatedRating int
}

func (s *stubLibrary) GetEntry(context.Context, int64, int64) (domain.LibraryEntry, error) {
	if s.entry == nil {
		return domain.LibraryEntry{}, domain.ErrNotFound
	}
	return *s.entry, nil
}

func (s *stubLibrary) CreateEntry(_ context.Context, entry domain.LibraryEntry) (domain.LibraryEntry, error) {
	return entry, nil
}

func (s *stubLibrary) UpdateStatus(context.Context, int64, int64, domain.ReadingStatus, *time.Time, *time.Time) error {
	return nil
}

func (s *stubLibrary) UpdateRating(_ context.Context, _, _ int64, rating int) error {
	s.updatedRating = rating
	return nil
}

func (s *stubLibrary) DeleteEntry(context.Context, int64, int64) error { return nil }

func (s *stubLibrary) ListEntries(context.Context, int64, domain.ReadingStatus, int, int) ([]domain.LibraryEntry, error) {
	return nil, nil
}

func (s *stubLibrary) ListForSignature(context.Context, int64) ([]domain.LibraryEntry, error) {
	return nil, nil
}

func (s *stubLibrary) ListSignatures(context.Context, []int64) ([]domain.UserSignature, error) {
	return nil, nil
}

func (s *stubLibrary) ListPeerFavorites(context.Context, []int64, int, []int64, int) ([]domain.Book, error) {
	return nil, nil
}

type stubReviews struct {
	byID     map[int64]domain.Review
	byUser   map[[2]int64]domain.Review
	nextID   int64
	upvoted  map[[2]int64]bool
	updated  *domain.Review
	deleted  []int64
	listed   []domain.Review
	listSort domain.ReviewSort
}

func newStubReviews() *stubReviews {
	return &stubReviews{
		byID:    make(map[int64]domain.Review),
		byUser:  make(map[[2]int64]domain.Review),
		upvoted: make(map[[2]int64]bool),
		nextID:  1,
	}
}

func (s *stubReviews) CreateReview(_ context.Context, review domain.Review) (domain.Review, error) {
	review.ID = s.nextID
	s.nextID++
	s.byID[review.ID] = review
	s.byUser[[2]int64{review.UserID, review.BookID}] = review
	return review, nil
}

func (s *stubReviews) GetReview(_ context.Context, id int64) (domain.Review, error) {
	review, ok := s.byID[id]
	if !ok {
		return domain.Review{}, domain.ErrNotFound
	}
	return review, nil
}

func (s *stubReviews) GetUserReview(_ context.Context, userID, bookID int64) (domain.Review, error) {
	review, ok := s.byUser[[2]int64{userID, bookID}]
	if !ok {
		return domain.Review{}, domain.ErrNotFound
	}
	return review, nil
}

func (s *stubReviews) ListBookReviews(_ context.Context, _ int64, sort domain.ReviewSort, _, _ int) ([]domain.Review, error) {
	s.listSort = sort
	return s.listed, nil
}

func (s *stubReviews) CountBookReviews(context.Context, int64) (int, error) {
	return len(s.listed), nil
}

func (s *stubReviews) UpdateReview(_ context.Context, id int64, text string, rating int) error {
	review := s.byID[id]
	review.Text = text
	review.Rating = rating
	s.byID[id] = review
	s.updated = &review
	return nil
}

func (s *stubReviews) DeleteReview(_ context.Context, id int64) error {
	delete(s.byID, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubReviews) Upvote(_ context.Context, reviewID, userID int64) (bool, error) {
	key := [2]int64{reviewID, userID}
	if s.upvoted[key] {
		return false, nil
	}
	s.upvoted[key] = true
	return true, nil
}

func (s *stubReviews) RemoveUpvote(_ context.Context, reviewID, userID int64) error {
	delete(s.upvoted, [2]int64{reviewID, userID})
	return nil
}

func newTestService(reviews *stubReviews, books *stubBooks, library *stubLibrary) *Service {
	return NewService(reviews, books, library, stubUsers{}, zerolog.Nop())
}

func TestCreateReviewValidation(t *testing.T) {
	svc := newTestService(newStubReviews(), &stubBooks{}, &stubLibrary{})

	if _, err := svc.Create(context.Background(), 1, 10, "  ", 4); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("blank text: got %v, want ErrInvalidArgument", err)
	}
	if _, err := svc.Create(context.Background(), 1, 10, "great", 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("rating 0: got %v, want ErrInvalidArgument", err)
	}
	if _, err := svc.Create(context.Background(), 1, 10, "great", 6); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("rating 6: got %v, want ErrInvalidArgument", err)
	}
}

func TestCreateReviewRejectsSecond(t *testing.T) {
	svc := newTestService(newStubReviews(), &stubBooks{}, &stubLibrary{})

	if _, err := svc.Create(context.Background(), 1, 10, "loved it", 5); err != nil {
		t.Fatalf("first review: %v", err)
	}
	if _, err := svc.Create(context.Background(), 1, 10, "changed my mind", 2); !errors.Is(err, ErrAlreadyReviewed) {
		t.Fatalf("second review: got %v, want ErrAlreadyReviewed", err)
	}
}

func TestCreateReviewSyncsLibraryRating(t *testing.T) {
	old := 3
	books := &stubBooks{}
	library := &stubLibrary{entry: &domain.LibraryEntry{ID: 7, UserID: 1, BookID: 10, Rating: &old}}
	svc := newTestService(newStubReviews(), books, library)

	if _, err := svc.Create(context.Background(), 1, 10, "re-read and loved it", 5); err != nil {
		t.Fatalf("create: %v", err)
	}
	if library.updatedRating != 5 {
		t.Fatalf("entry rating = %d, want 5", library.updatedRating)
	}
	if books.appliedOld == nil || *books.appliedOld != 3 || books.appliedNew != 5 {
		t.Fatalf("aggregate shift = (%v, %d), want (3, 5)", books.appliedOld, books.appliedNew)
	}
}

func TestCreateReviewWithoutLibraryEntry(t *testing.T) {
	books := &stubBooks{}
	svc := newTestService(newStubReviews(), books, &stubLibrary{})

	if _, err := svc.Create(context.Background(), 1, 10, "solid", 4); err != nil {
		t.Fatalf("create: %v", err)
	}
	if books.appliedOld != nil || books.appliedNew != 4 {
		t.Fatalf("aggregate shift = (%v, %d), want (nil, 4)", books.appliedOld, books.appliedNew)
	}
}

func TestUpdateReviewOwnerOnly(t *testing.T) {
	reviews := newStubReviews()
	svc := newTestService(reviews, &stubBooks{}, &stubLibrary{})

	created, err := svc.Create(context.Background(), 1, 10, "fine", 3)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Update(context.Background(), 2, created.ID, "mine now", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign update: got %v, want ErrNotFound", err)
	}
	if err := svc.Delete(context.Background(), 2, created.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign delete: got %v, want ErrNotFound", err)
	}
}

func TestUpdateReviewShiftsAggregate(t *testing.T) {
	reviews := newStubReviews()
	books := &stubBooks{}
	svc := newTestService(reviews, books, &stubLibrary{})

	created, err := svc.Create(context.Background(), 1, 10, "fine", 3)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	books.appliedOld, books.appliedNew = nil, 0

	updated, err := svc.Update(context.Background(), 1, created.ID, "grew on me", 5)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Rating != 5 || updated.Text != "grew on me" {
		t.Fatalf("updated review = %+v", updated)
	}
	if books.appliedOld == nil || *books.appliedOld != 3 || books.appliedNew != 5 {
		t.Fatalf("aggregate shift = (%v, %d), want (3, 5)", books.appliedOld, books.appliedNew)
	}
}

func TestDeleteReviewRetractsRating(t *testing.T) {
	reviews := newStubReviews()
	books := &stubBooks{}
	svc := newTestService(reviews, books, &stubLibrary{})

	created, err := svc.Create(context.Background(), 1, 10, "fine", 3)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Delete(context.Background(), 1, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if books.retractedFor != 10 || books.retracted != 3 {
		t.Fatalf("retracted (%d, %d), want (10, 3)", books.retractedFor, books.retracted)
	}
	if _, err := svc.Get(context.Background(), created.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get after delete: got %v, want ErrNotFound", err)
	}
}

func TestUpvoteOncePerUser(t *testing.T) {
	reviews := newStubReviews()
	svc := newTestService(reviews, &stubBooks{}, &stubLibrary{})

	created, err := svc.Create(context.Background(), 1, 10, "fine", 3)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Upvote(context.Background(), 2, created.ID); err != nil {
		t.Fatalf("upvote: %v", err)
	}
	if _, err := svc.Upvote(context.Background(), 2, created.ID); !errors.Is(err, ErrAlreadyUpvoted) {
		t.Fatalf("second upvote: got %v, want ErrAlreadyUpvoted", err)
	}
	if _, err := svc.RemoveUpvote(context.Background(), 2, created.ID); err != nil {
		t.Fatalf("remove upvote: %v", err)
	}
	// removing an absent upvote stays a no-op
	if _, err := svc.RemoveUpvote(context.Background(), 2, created.ID); err != nil {
		t.Fatalf("repeat remove upvote: %v", err)
	}
}

func TestBookReviewsDefaultsAndValidation(t *testing.T) {
	reviews := newStubReviews()
	reviews.listed = []domain.Review{{ID: 1}, {ID: 2}}
	svc := newTestService(reviews, &stubBooks{}, &stubLibrary{})

	list, total, err := svc.BookReviews(context.Background(), 10, "", 0, -3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || total != 2 {
		t.Fatalf("list = %d items, total %d", len(list), total)
	}
	if reviews.listSort != domain.ReviewSortNewest {
		t.Fatalf("default sort = %q, want newest", reviews.listSort)
	}
	if _, _, err := svc.BookReviews(context.Background(), 10, "sideways", 10, 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("bad sort: got %v, want ErrInvalidArgument", err)
	}
}
