package shelf

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"novalyn/internal/domain"
)

// ErrShelfExists is returned when the user already has a shelf with the
// same name. Names compare case-insensitively.
var ErrShelfExists = errors.New("shelf with this name already exists")

// ErrBookAlreadyShelved is returned when the entry already sits on the shelf.
var ErrBookAlreadyShelved = errors.New("book is already on the shelf")

// Service manages per-user shelves. Default shelves are read-only: they
// cannot be renamed or deleted, and requests to do so read as absent.
type Service struct {
	shelves domain.ShelfRepo
	library domain.LibraryRepo
	log     zerolog.Logger
}

// NewService creates the shelf service.
func NewService(shelves domain.ShelfRepo, library domain.LibraryRepo, logger zerolog.Logger) *Service {
	return &Service{shelves: shelves, library: library, log: logger}
}

// Create adds a custom shelf for the user.
func (s *Service) Create(ctx context.Context, userID int64, name, description string) (domain.Shelf, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Shelf{}, fmt.Errorf("%w: shelf name is required", domain.ErrInvalidArgument)
	}
	if _, err := s.shelves.GetShelfByName(ctx, userID, name); err == nil {
		return domain.Shelf{}, ErrShelfExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Shelf{}, fmt.Errorf("check existing shelf: %w", err)
	}
	created, err := s.shelves.CreateShelf(ctx, domain.Shelf{UserID: userID, Name: name, Description: description})
	if err != nil {
		return domain.Shelf{}, fmt.Errorf("create shelf: %w", err)
	}
	return created, nil
}

// List returns the user's shelves with their book counts.
func (s *Service) List(ctx context.Context, userID int64) ([]domain.Shelf, error) {
	shelves, err := s.shelves.ListShelves(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list shelves: %w", err)
	}
	return shelves, nil
}

// Get returns one shelf together with the library entries on it.
func (s *Service) Get(ctx context.Context, userID, shelfID int64) (domain.Shelf, []domain.LibraryEntry, error) {
	shelf, err := s.shelves.GetShelf(ctx, userID, shelfID)
	if err != nil {
		return domain.Shelf{}, nil, fmt.Errorf("load shelf: %w", err)
	}
	entries, err := s.shelves.ListShelfEntries(ctx, shelfID)
	if err != nil {
		return domain.Shelf{}, nil, fmt.Errorf("list shelf entries: %w", err)
	}
	return shelf, entries, nil
}

// Update renames a custom shelf or changes its description. Blank fields
// keep their current value.
func (s *Service) Update(ctx context.Context, userID, shelfID int64, name, description string) (domain.Shelf, error) {
	existing, err := s.shelves.GetShelf(ctx, userID, shelfID)
	if err != nil {
		return domain.Shelf{}, fmt.Errorf("load shelf: %w", err)
	}
	if existing.IsDefault {
		return domain.Shelf{}, fmt.Errorf("%w: shelf %d", domain.ErrNotFound, shelfID)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = existing.Name
	}
	if description == "" {
		description = existing.Description
	}
	if !strings.EqualFold(name, existing.Name) {
		if _, err := s.shelves.GetShelfByName(ctx, userID, name); err == nil {
			return domain.Shelf{}, ErrShelfExists
		} else if !errors.Is(err, domain.ErrNotFound) {
			return domain.Shelf{}, fmt.Errorf("check existing shelf: %w", err)
		}
	}
	if err := s.shelves.UpdateShelf(ctx, userID, shelfID, name, description); err != nil {
		return domain.Shelf{}, fmt.Errorf("update shelf: %w", err)
	}
	return s.shelves.GetShelf(ctx, userID, shelfID)
}

// Delete removes a custom shelf and its membership rows.
func (s *Service) Delete(ctx context.Context, userID, shelfID int64) error {
	existing, err := s.shelves.GetShelf(ctx, userID, shelfID)
	if err != nil {
		return fmt.Errorf("load shelf: %w", err)
	}
	if existing.IsDefault {
		return fmt.Errorf("%w: shelf %d", domain.ErrNotFound, shelfID)
	}
	if err := s.shelves.DeleteShelf(ctx, userID, shelfID); err != nil {
		return fmt.Errorf("delete shelf: %w", err)
	}
	return nil
}

// AddBook puts one of the user's library entries onto the shelf. The
// book has to be in the user's collection first.
func (s *Service) AddBook(ctx context.Context, userID, shelfID, bookID int64) error {
	if _, err := s.shelves.GetShelf(ctx, userID, shelfID); err != nil {
		return fmt.Errorf("load shelf: %w", err)
	}
	entry, err := s.library.GetEntry(ctx, userID, bookID)
	if err != nil {
		return fmt.Errorf("load entry: %w", err)
	}
	inserted, err := s.shelves.AddToShelf(ctx, shelfID, entry.ID)
	if err != nil {
		return fmt.Errorf("add to shelf: %w", err)
	}
	if !inserted {
		return ErrBookAlreadyShelved
	}
	return nil
}

// RemoveBook takes a library entry off the shelf.
func (s *Service) RemoveBook(ctx context.Context, userID, shelfID, bookID int64) error {
	if _, err := s.shelves.GetShelf(ctx, userID, shelfID); err != nil {
		return fmt.Errorf("load shelf: %w", err)
	}
	entry, err := s.library.GetEntry(ctx, userID, bookID)
	if err != nil {
		return fmt.Errorf("load entry: %w", err)
	}
	if err := s.shelves.RemoveFromShelf(ctx, shelfID, entry.ID); err != nil {
		return fmt.Errorf("remove from shelf: %w", err)
	}
	return nil
}
