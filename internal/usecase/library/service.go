package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"novalyn/internal/domain"
	"novalyn/internal/infra/metrics"
)

// ErrAlreadyInLibrary is returned when the book is already in the user's library.
var ErrAlreadyInLibrary = errors.New("book is already in the library")

const defaultListLimit = 20

// Service manages user libraries and derives reading signatures.
type Service struct {
	users   domain.UserRepo
	books   domain.BookRepo
	library domain.LibraryRepo
	queue   domain.ActivityQueue
	log     zerolog.Logger
	now     func() time.Time
}

var _ domain.SignatureLoader = (*Service)(nil)

// NewService creates the library service. The queue may be nil when
// activity events are not collected.
func NewService(users domain.UserRepo, books domain.BookRepo, library domain.LibraryRepo, queue domain.ActivityQueue, logger zerolog.Logger) *Service {
	return &Service{users: users, books: books, library: library, queue: queue, log: logger, now: time.Now}
}

// LoadSignature derives the user's reading profile from all of their
// library entries. A user with an empty library yields an empty
// signature, not an error; a missing account yields ErrNotFound.
func (s *Service) LoadSignature(ctx context.Context, userID int64) (domain.UserSignature, error) {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return domain.UserSignature{}, fmt.Errorf("load user: %w", err)
	}
	entries, err := s.library.ListForSignature(ctx, userID)
	if err != nil {
		return domain.UserSignature{}, fmt.Errorf("load library entries: %w", err)
	}
	return BuildSignature(userID, entries), nil
}

// BuildSignature folds library entries into a deduplicated profile.
func BuildSignature(userID int64, entries []domain.LibraryEntry) domain.UserSignature {
	sig := domain.UserSignature{
		UserID:      userID,
		Genres:      make(map[string]struct{}),
		Authors:     make(map[string]struct{}),
		Owned:       make(map[int64]struct{}),
		LibrarySize: len(entries),
	}
	for _, entry := range entries {
		if entry.Book.Genre != "" {
			sig.Genres[entry.Book.Genre] = struct{}{}
		}
		if entry.Book.Author != "" {
			sig.Authors[entry.Book.Author] = struct{}{}
		}
		sig.Owned[entry.BookID] = struct{}{}
	}
	return sig
}

// AddBook puts a book into the user's library.
func (s *Service) AddBook(ctx context.Context, userID, bookID int64, status domain.ReadingStatus) (domain.LibraryEntry, error) {
	if status == "" {
		status = domain.StatusWantToRead
	}
	if !status.Valid() {
		return domain.LibraryEntry{}, fmt.Errorf("%w: unknown reading status %q", domain.ErrInvalidArgument, status)
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return domain.LibraryEntry{}, fmt.Errorf("load user: %w", err)
	}
	book, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		return domain.LibraryEntry{}, fmt.Errorf("load book: %w", err)
	}
	if _, err := s.library.GetEntry(ctx, userID, bookID); err == nil {
		return domain.LibraryEntry{}, ErrAlreadyInLibrary
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.LibraryEntry{}, fmt.Errorf("check existing entry: %w", err)
	}
	entry := domain.LibraryEntry{UserID: userID, BookID: bookID, Status: status}
	if status == domain.StatusCurrentlyReading {
		started := s.now().UTC()
		entry.StartedAt = &started
	}
	created, err := s.library.CreateEntry(ctx, entry)
	if err != nil {
		return domain.LibraryEntry{}, fmt.Errorf("create entry: %w", err)
	}
	created.Book = book
	s.publish(ctx, domain.ActivityEvent{UserID: userID, Type: domain.ActivityBookAdded, BookID: &bookID})
	return created, nil
}

// UpdateStatus moves an entry to a new reading status, stamping the
// start and finish times on the first transition into each state.
func (s *Service) UpdateStatus(ctx context.Context, userID, bookID int64, status domain.ReadingStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown reading status %q", domain.ErrInvalidArgument, status)
	}
	entry, err := s.library.GetEntry(ctx, userID, bookID)
	if err != nil {
		return fmt.Errorf("load entry: %w", err)
	}
	startedAt := entry.StartedAt
	finishedAt := entry.FinishedAt
	switch status {
	case domain.StatusCurrentlyReading:
		if startedAt == nil {
			started := s.now().UTC()
			startedAt = &started
		}
	case domain.StatusRead:
		if startedAt == nil {
			started := s.now().UTC()
			startedAt = &started
		}
		if finishedAt == nil {
			finished := s.now().UTC()
			finishedAt = &finished
		}
	}
	if err := s.library.UpdateStatus(ctx, userID, bookID, status, startedAt, finishedAt); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if status == domain.StatusRead && entry.Status != domain.StatusRead {
		s.publish(ctx, domain.ActivityEvent{UserID: userID, Type: domain.ActivityBookFinished, BookID: &bookID})
	}
	return nil
}

// Rate records a personal rating and folds it into the book's aggregate.
func (s *Service) Rate(ctx context.Context, userID, bookID int64, rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", domain.ErrInvalidArgument)
	}
	entry, err := s.library.GetEntry(ctx, userID, bookID)
	if err != nil {
		return fmt.Errorf("load entry: %w", err)
	}
	if err := s.library.UpdateRating(ctx, userID, bookID, rating); err != nil {
		return fmt.Errorf("update rating: %w", err)
	}
	if err := s.books.ApplyRating(ctx, bookID, entry.Rating, rating); err != nil {
		return fmt.Errorf("apply aggregate rating: %w", err)
	}
	s.publish(ctx, domain.ActivityEvent{UserID: userID, Type: domain.ActivityBookRated, BookID: &bookID, Rating: &rating})
	return nil
}

// ListBooks returns the user's library entries, optionally filtered by status.
func (s *Service) ListBooks(ctx context.Context, userID int64, status domain.ReadingStatus, limit, offset int) ([]domain.LibraryEntry, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown reading status %q", domain.ErrInvalidArgument, status)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return s.library.ListEntries(ctx, userID, status, limit, offset)
}

// RemoveBook deletes an entry from the user's library.
func (s *Service) RemoveBook(ctx context.Context, userID, bookID int64) error {
	if _, err := s.library.GetEntry(ctx, userID, bookID); err != nil {
		return fmt.Errorf("load entry: %w", err)
	}
	return s.library.DeleteEntry(ctx, userID, bookID)
}

// publish enqueues an activity event. Delivery failures are logged,
// never surfaced: the library mutation already succeeded.
func (s *Service) publish(ctx context.Context, event domain.ActivityEvent) {
	if s.queue == nil {
		return
	}
	event.ID = uuid.NewString()
	event.OccurredAt = s.now().UTC()
	if err := s.queue.Enqueue(ctx, event); err != nil {
		s.log.Error().Err(err).Str("type", string(event.Type)).Msg("library: enqueue activity event")
		return
	}
	metrics.IncActivityEvent(string(event.Type))
}
