package library

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"novalyn/internal/domain"
)

type stubUserRepo struct {
	users map[int64]domain.User
}

func (s *stubUserRepo) GetUser(_ context.Context, id int64) (domain.User, error) {
	user, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

func (s *stubUserRepo) GetUsers(_ context.Context, ids []int64) ([]domain.User, error) {
	out := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		if user, ok := s.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

type stubBookRepo struct {
	books map[int64]domain.Book

	appliedBookID int64
	appliedOld    *int
	appliedNew    int
}

func (s *stubBookRepo) CreateBook(_ context.Context, book domain.Book) (domain.Book, error) {
	return book, nil
}

func (s *stubBookRepo) GetBook(_ context.Context, id int64) (domain.Book, error) {
	book, ok := s.books[id]
	if !ok {
		return domain.Book{}, domain.ErrNotFound
	}
	return book, nil
}

func (s *stubBookRepo) ListBooks(context.Context, int, int) ([]domain.Book, error) { return nil, nil }

func (s *stubBookRepo) SearchBooks(context.Context, string, int) ([]domain.Book, error) {
	return nil, nil
}

func (s *stubBookRepo) ListByGenres(context.Context, []string, []int64, domain.BookSort, int) ([]domain.Book, error) {
	return nil, nil
}

func (s *stubBookRepo) ListByAuthors(context.Context, []string, []int64, domain.BookSort, int) ([]domain.Book, error) {
	return nil, nil
}

func (s *stubBookRepo) ListTop(context.Context, domain.BookSort, int) ([]domain.Book, error) {
	return nil, nil
}

func (s *stubBookRepo) ListPublishedSince(context.Context, time.Time, int) ([]domain.Book, error) {
	return nil, nil
}

func (s *stubBookRepo) ListByGenre(context.Context, string, int) ([]domain.Book, error) {
	return nil, nil
}

func (s *stubBookRepo) ApplyRating(_ context.Context, bookID int64, oldRating *int, newRating int) error {
	s.appliedBookID = bookID
	s.appliedOld = oldRating
	s.appliedNew = newRating
	return nil
}

func (s *stubBookRepo) RetractRating(context.Context, int64, int) error { return nil }

type entryKey struct {
	userID int64
	bookID int64
}

type stubLibraryRepo struct {
	entries map[entryKey]domain.LibraryEntry

	updatedStatus   domain.ReadingStatus
	updatedStarted  *time.Time
	updatedFinished *time.Time
}

func (s *stubLibraryRepo) GetEntry(_ context.Context, userID, bookID int64) (domain.LibraryEntry, error) {
	entry, ok := s.entries[entryKey{userID, bookID}]
	if !ok {
		return domain.LibraryEntry{}, domain.ErrNotFound
	}
	return entry, nil
}

func (s *stubLibraryRepo) CreateEntry(_ context.Context, entry domain.LibraryEntry) (domain.LibraryEntry, error) {
	entry.ID = int64(len(s.entries) + 1)
	s.entries[entryKey{entry.UserID, entry.BookID}] = entry
	return entry, nil
}

func (s *stubLibraryRepo) UpdateStatus(_ context.Context, userID, bookID int64, status domain.ReadingStatus, startedAt, finishedAt *time.Time) error {
	entry, ok := s.entries[entryKey{userID, bookID}]
	if !ok {
		return domain.ErrNotFound
	}
	entry.Status = status
	entry.StartedAt = startedAt
	entry.FinishedAt = finishedAt
	s.entries[entryKey{userID, bookID}] = entry
	s.updatedStatus = status
	s.updatedStarted = startedAt
	s.updatedFinished = finishedAt
	return nil
}

func (s *stubLibraryRepo) UpdateRating(_ context.Context, userID, bookID int64, rating int) error {
	entry, ok := s.entries[entryKey{userID, bookID}]
	if !ok {
		return domain.ErrNotFound
	}
	entry.Rating = &rating
	s.entries[entryKey{userID, bookID}] = entry
	return nil
}

func (s *stubLibraryRepo) DeleteEntry(_ context.Context, userID, bookID int64) error {
	delete(s.entries, entryKey{userID, bookID})
	return nil
}

func (s *stubLibraryRepo) ListEntries(context.Context, int64, domain.ReadingStatus, int, int) ([]domain.LibraryEntry, error) {
	return nil, nil
}

func (s *stubLibraryRepo) ListForSignature(_ context.Context, userID int64) ([]domain.LibraryEntry, error) {
	var out []domain.LibraryEntry
	for key, entry := range s.entries {
		if key.userID == userID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *stubLibraryRepo) ListSignatures(context.Context, []int64) ([]domain.UserSignature, error) {
	return nil, nil
}

func (s *stubLibraryRepo) ListPeerFavorites(context.Context, []int64, int, []int64, int) ([]domain.Book, error) {
	return nil, nil
}

type stubQueue struct {
	events []domain.ActivityEvent
}

func (s *stubQueue) Enqueue(_ context.Context, event domain.ActivityEvent) error {
	s.events = append(s.events, event)
	return nil
}

func (s *stubQueue) Pop(context.Context) (domain.ActivityEvent, domain.AckFunc, error) {
	return domain.ActivityEvent{}, nil, errors.New("empty")
}

func newTestService() (*Service, *stubBookRepo, *stubLibraryRepo, *stubQueue) {
	users := &stubUserRepo{users: map[int64]domain.User{
		1: {ID: 1, Name: "alice"},
		2: {ID: 2, Name: "bob"},
	}}
	books := &stubBookRepo{books: map[int64]domain.Book{
		10: {ID: 10, Title: "Dune", Author: "Frank Herbert", Genre: "sci-fi"},
		11: {ID: 11, Title: "Hyperion", Author: "Dan Simmons", Genre: "sci-fi"},
	}}
	library := &stubLibraryRepo{entries: map[entryKey]domain.LibraryEntry{}}
	queue := &stubQueue{}
	svc := NewService(users, books, library, queue, zerolog.Nop())
	return svc, books, library, queue
}

func TestBuildSignatureDeduplicates(t *testing.T) {
	entries := []domain.LibraryEntry{
		{BookID: 1, Book: domain.Book{ID: 1, Genre: "sci-fi", Author: "Frank Herbert"}},
		{BookID: 2, Book: domain.Book{ID: 2, Genre: "sci-fi", Author: "Frank Herbert"}},
		{BookID: 3, Book: domain.Book{ID: 3, Genre: "fantasy", Author: "Ursula K. Le Guin"}},
	}
	sig := BuildSignature(7, entries)

	if sig.UserID != 7 {
		t.Fatalf("user id = %d, want 7", sig.UserID)
	}
	if sig.LibrarySize != 3 {
		t.Fatalf("library size = %d, want 3", sig.LibrarySize)
	}
	if len(sig.Genres) != 2 {
		t.Fatalf("genres = %v, want 2 distinct", sig.GenreList())
	}
	if len(sig.Authors) != 2 {
		t.Fatalf("authors = %v, want 2 distinct", sig.AuthorList())
	}
	if len(sig.Owned) != 3 {
		t.Fatalf("owned = %v, want 3 books", sig.OwnedIDs())
	}
}

func TestBuildSignatureEmptyLibrary(t *testing.T) {
	sig := BuildSignature(7, nil)
	if len(sig.Genres) != 0 || len(sig.Authors) != 0 || len(sig.Owned) != 0 {
		t.Fatalf("expected empty signature, got %+v", sig)
	}
	if sig.LibrarySize != 0 {
		t.Fatalf("library size = %d, want 0", sig.LibrarySize)
	}
}

func TestAddBookDefaultsToWantToRead(t *testing.T) {
	svc, _, _, queue := newTestService()

	entry, err := svc.AddBook(context.Background(), 1, 10, "")
	if err != nil {
		t.Fatalf("AddBook: %v", err)
	}
	if entry.Status != domain.StatusWantToRead {
		t.Fatalf("status = %q, want %q", entry.Status, domain.StatusWantToRead)
	}
	if entry.StartedAt != nil {
		t.Fatalf("started at should not be stamped for %q", entry.Status)
	}
	if len(queue.events) != 1 || queue.events[0].Type != domain.ActivityBookAdded {
		t.Fatalf("events = %+v, want one book_added", queue.events)
	}
}

func TestAddBookStampsStartForCurrentlyReading(t *testing.T) {
	svc, _, _, _ := newTestService()
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	entry, err := svc.AddBook(context.Background(), 1, 10, domain.StatusCurrentlyReading)
	if err != nil {
		t.Fatalf("AddBook: %v", err)
	}
	if entry.StartedAt == nil || !entry.StartedAt.Equal(svc.now()) {
		t.Fatalf("started at = %v, want %v", entry.StartedAt, svc.now())
	}
}

func TestAddBookRejectsDuplicate(t *testing.T) {
	svc, _, _, _ := newTestService()

	if _, err := svc.AddBook(context.Background(), 1, 10, ""); err != nil {
		t.Fatalf("first AddBook: %v", err)
	}
	_, err := svc.AddBook(context.Background(), 1, 10, "")
	if !errors.Is(err, ErrAlreadyInLibrary) {
		t.Fatalf("err = %v, want ErrAlreadyInLibrary", err)
	}
}

func TestAddBookRejectsUnknownStatus(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.AddBook(context.Background(), 1, 10, "skimming")
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestAddBookUnknownBook(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.AddBook(context.Background(), 1, 999, "")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateStatusStampsFinishAndPublishes(t *testing.T) {
	svc, _, library, queue := newTestService()
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	if _, err := svc.AddBook(context.Background(), 1, 10, domain.StatusCurrentlyReading); err != nil {
		t.Fatalf("AddBook: %v", err)
	}
	if err := svc.UpdateStatus(context.Background(), 1, 10, domain.StatusRead); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if library.updatedFinished == nil || !library.updatedFinished.Equal(svc.now()) {
		t.Fatalf("finished at = %v, want %v", library.updatedFinished, svc.now())
	}
	last := queue.events[len(queue.events)-1]
	if last.Type != domain.ActivityBookFinished {
		t.Fatalf("last event = %q, want %q", last.Type, domain.ActivityBookFinished)
	}
}

func TestUpdateStatusReadAgainDoesNotRepublish(t *testing.T) {
	svc, _, _, queue := newTestService()

	if _, err := svc.AddBook(context.Background(), 1, 10, domain.StatusRead); err != nil {
		t.Fatalf("AddBook: %v", err)
	}
	if err := svc.UpdateStatus(context.Background(), 1, 10, domain.StatusRead); err != nil {
		t.Fatalf("first UpdateStatus: %v", err)
	}
	published := len(queue.events)
	if err := svc.UpdateStatus(context.Background(), 1, 10, domain.StatusRead); err != nil {
		t.Fatalf("second UpdateStatus: %v", err)
	}
	if len(queue.events) != published {
		t.Fatalf("events grew from %d to %d on a no-op transition", published, len(queue.events))
	}
}

func TestRateValidatesBounds(t *testing.T) {
	svc, _, _, _ := newTestService()

	for _, rating := range []int{0, 6, -1} {
		if err := svc.Rate(context.Background(), 1, 10, rating); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("rating %d: err = %v, want ErrInvalidArgument", rating, err)
		}
	}
}

func TestRatePassesPreviousRatingToAggregate(t *testing.T) {
	svc, books, _, queue := newTestService()

	if _, err := svc.AddBook(context.Background(), 1, 10, domain.StatusRead); err != nil {
		t.Fatalf("AddBook: %v", err)
	}
	if err := svc.Rate(context.Background(), 1, 10, 4); err != nil {
		t.Fatalf("first Rate: %v", err)
	}
	if books.appliedOld != nil {
		t.Fatalf("first rating carried old value %v", *books.appliedOld)
	}
	if books.appliedNew != 4 {
		t.Fatalf("applied rating = %d, want 4", books.appliedNew)
	}

	if err := svc.Rate(context.Background(), 1, 10, 5); err != nil {
		t.Fatalf("second Rate: %v", err)
	}
	if books.appliedOld == nil || *books.appliedOld != 4 {
		t.Fatalf("re-rating old = %v, want 4", books.appliedOld)
	}
	if books.appliedNew != 5 {
		t.Fatalf("applied rating = %d, want 5", books.appliedNew)
	}

	last := queue.events[len(queue.events)-1]
	if last.Type != domain.ActivityBookRated || last.Rating == nil || *last.Rating != 5 {
		t.Fatalf("last event = %+v, want book_rated with rating 5", last)
	}
}

func TestRemoveBookUnknownEntry(t *testing.T) {
	svc, _, _, _ := newTestService()

	err := svc.RemoveBook(context.Background(), 1, 10)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListBooksRejectsUnknownStatus(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.ListBooks(context.Background(), 1, "skimming", 10, 0)
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestLoadSignatureUnknownUser(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.LoadSignature(context.Background(), 999)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
