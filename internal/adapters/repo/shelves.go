package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"novalyn/internal/domain"
	"novalyn/internal/infra/metrics"
)

const shelfColumns = `s.id, s.user_id, s.name, s.description, s.is_default,
	(SELECT count(*) FROM shelf_books sb WHERE sb.shelf_id = s.id) AS book_count,
	s.created_at`

func scanShelf(row pgx.Row) (domain.Shelf, error) {
	var shelf domain.Shelf
	err := row.Scan(&shelf.ID, &shelf.UserID, &shelf.Name, &shelf.Description, &shelf.IsDefault, &shelf.BookCount, &shelf.CreatedAt)
	if err != nil {
		return domain.Shelf{}, err
	}
	return shelf, nil
}

// CreateShelf implements domain.ShelfRepo.
func (p *Postgres) CreateShelf(ctx context.Context, shelf domain.Shelf) (domain.Shelf, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO shelves (user_id, name, description, is_default)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at
`, shelf.UserID, shelf.Name, shelf.Description, shelf.IsDefault).Scan(&shelf.ID, &shelf.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "shelves_insert", "shelves", start, err)
	if err != nil {
		return domain.Shelf{}, storeErr(err)
	}
	return shelf, nil
}

// GetShelf implements domain.ShelfRepo.
func (p *Postgres) GetShelf(ctx context.Context, userID, shelfID int64) (domain.Shelf, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	shelf, err := scanShelf(p.pool.QueryRow(ctx, `
SELECT `+shelfColumns+` FROM shelves s
WHERE s.id = $1 AND s.user_id = $2
`, shelfID, userID))
	metrics.ObserveNetworkRequest("postgres", "shelves_get", "shelves", start, err)
	if err != nil {
		return domain.Shelf{}, storeErr(err)
	}
	return shelf, nil
}

// GetShelfByName implements domain.ShelfRepo. Names match
// case-insensitively, mirroring the unique index.
func (p *Postgres) GetShelfByName(ctx context.Context, userID int64, name string) (domain.Shelf, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	shelf, err := scanShelf(p.pool.QueryRow(ctx, `
SELECT `+shelfColumns+` FROM shelves s
WHERE s.user_id = $1 AND lower(s.name) = lower($2)
`, userID, name))
	metrics.ObserveNetworkRequest("postgres", "shelves_get_by_name", "shelves", start, err)
	if err != nil {
		return domain.Shelf{}, storeErr(err)
	}
	return shelf, nil
}

// ListShelves implements domain.ShelfRepo.
func (p *Postgres) ListShelves(ctx context.Context, userID int64) ([]domain.Shelf, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+shelfColumns+` FROM shelves s
WHERE s.user_id = $1
ORDER BY s.is_default DESC, s.created_at ASC, s.id ASC
`, userID)
	metrics.ObserveNetworkRequest("postgres", "shelves_list", "shelves", start, err)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()
	shelves := make([]domain.Shelf, 0)
	for rows.Next() {
		shelf, err := scanShelf(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		shelves = append(shelves, shelf)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return shelves, nil
}

// UpdateShelf implements domain.ShelfRepo. Default shelves stay put, the
// guard reads as a missing row.
func (p *Postgres) UpdateShelf(ctx context.Context, userID, shelfID int64, name, description string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE shelves SET name = $3, description = $4
WHERE id = $1 AND user_id = $2 AND NOT is_default
`, shelfID, userID, name, description)
	metrics.ObserveNetworkRequest("postgres", "shelves_update", "shelves", start, err)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteShelf implements domain.ShelfRepo. Membership rows go with the
// shelf through the cascading foreign key.
func (p *Postgres) DeleteShelf(ctx context.Context, userID, shelfID int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
DELETE FROM shelves WHERE id = $1 AND user_id = $2 AND NOT is_default
`, shelfID, userID)
	metrics.ObserveNetworkRequest("postgres", "shelves_delete", "shelves", start, err)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AddToShelf implements domain.ShelfRepo. The returned bool reports
// whether a membership row was inserted.
func (p *Postgres) AddToShelf(ctx context.Context, shelfID, entryID int64) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
INSERT INTO shelf_books (shelf_id, entry_id) VALUES ($1, $2)
ON CONFLICT (shelf_id, entry_id) DO NOTHING
`, shelfID, entryID)
	metrics.ObserveNetworkRequest("postgres", "shelf_books_insert", "shelf_books", start, err)
	if err != nil {
		return false, storeErr(err)
	}
	return tag.RowsAffected() > 0, nil
}

// RemoveFromShelf implements domain.ShelfRepo.
func (p *Postgres) RemoveFromShelf(ctx context.Context, shelfID, entryID int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
DELETE FROM shelf_books WHERE shelf_id = $1 AND entry_id = $2
`, shelfID, entryID)
	metrics.ObserveNetworkRequest("postgres", "shelf_books_delete", "shelf_books", start, err)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListShelfEntries implements domain.ShelfRepo.
func (p *Postgres) ListShelfEntries(ctx context.Context, shelfID int64) ([]domain.LibraryEntry, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+entryColumns+`, b.id, b.title, b.author, b.genre, b.description, b.published_at, b.page_count, b.average_rating, b.total_ratings, b.created_at
FROM shelf_books sb
JOIN user_books ub ON ub.id = sb.entry_id
JOIN books b ON b.id = ub.book_id
WHERE sb.shelf_id = $1
ORDER BY sb.added_at ASC, ub.id ASC
`, shelfID)
	metrics.ObserveNetworkRequest("postgres", "shelf_books_list", "shelf_books", start, err)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()
	entries := make([]domain.LibraryEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows, true)
		if err != nil {
			return nil, storeErr(err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return entries, nil
}
