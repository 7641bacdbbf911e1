package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"novalyn/internal/domain"
	"novalyn/internal/infra/metrics"
)

// Postgres implements the repositories on top of pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.UserRepo     = (*Postgres)(nil)
	_ domain.FollowRepo   = (*Postgres)(nil)
	_ domain.BookRepo     = (*Postgres)(nil)
	_ domain.LibraryRepo  = (*Postgres)(nil)
	_ domain.ActivityRepo = (*Postgres)(nil)
	_ domain.ReviewRepo   = (*Postgres)(nil)
	_ domain.ShelfRepo    = (*Postgres)(nil)
)

// NewPostgres creates the store adapter.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// storeErr maps pgx failures onto the domain taxonomy: missing rows
// become ErrNotFound, everything else is an upstream failure.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
}

func sortClause(bookSort domain.BookSort) (string, error) {
	switch bookSort {
	case domain.SortByRating:
		return "average_rating DESC, total_ratings DESC, id ASC", nil
	case domain.SortByPopularity:
		return "total_ratings DESC, average_rating DESC, id ASC", nil
	case domain.SortByPublishedAt:
		return "published_at DESC, id ASC", nil
	default:
		return "", fmt.Errorf("%w: unknown sort criterion %q", domain.ErrInvalidArgument, bookSort)
	}
}

const bookColumns = "id, title, author, genre, description, published_at, page_count, average_rating, total_ratings, created_at"

func scanBook(row pgx.Row) (domain.Book, error) {
	var book domain.Book
	var publishedAt sql.NullTime
	err := row.Scan(&book.ID, &book.Title, &book.Author, &book.Genre, &book.Description, &publishedAt, &book.PageCount, &book.AverageRating, &book.TotalRatings, &book.CreatedAt)
	if err != nil {
		return domain.Book{}, err
	}
	if publishedAt.Valid {
		book.PublishedAt = publishedAt.Time
	}
	return book, nil
}

func (p *Postgres) queryBooks(ctx context.Context, operation, query string, args ...any) ([]domain.Book, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", operation, "books", start, err)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()
	books := make([]domain.Book, 0)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return books, nil
}

// GetUser implements domain.UserRepo.
func (p *Postgres) GetUser(ctx context.Context, id int64) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	var user domain.User
	err := p.pool.QueryRow(ctx, `
SELECT id, name, email, created_at FROM users WHERE id = $1
`, id).Scan(&user.ID, &user.Name, &user.Email, &user.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "users_get", "users", start, err)
	if err != nil {
		return domain.User{}, storeErr(err)
	}
	return user, nil
}

// GetUsers implements domain.UserRepo.
func (p *Postgres) GetUsers(ctx context.Context, ids []int64) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, name, email, created_at FROM users WHERE id = ANY($1) ORDER BY id
`, ids)
	metrics.ObserveNetworkRequest("postgres", "users_get_many", "users", start, err)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()
	users := make([]domain.User, 0, len(ids))
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.CreatedAt); err != nil {
			return nil, storeErr(err)
		}
		users = append(users, user)
	}
	return users, storeErr(rows.Err())
}

// Follow implements domain.FollowRepo.
func (p *Postgres) Follow(ctx context.Context, followerID, followeeID int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO follows (follower_id, followee_id) VALUES ($1, $2)
ON CONFLICT (follower_id, followee_id) DO NOTHING
`, followerID, followeeID)
	metrics.ObserveNetworkRequest("postgres", "follows_insert", "follows", start, err)
	return storeErr(err)
}

// Unfollow implements domain.FollowRepo.
func (p *Postgres) Unfollow(ctx context.Context, followerID, followeeID int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2
`, followerID, followeeID)
	metrics.ObserveNetworkRequest("postgres", "follows_delete", "follows", start, err)
	return storeErr(err)
}

// IsFollowing implements domain.FollowRepo.
func (p *Postgres) IsFollowing(ctx context.Context, followerID, followeeID int64) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	var following bool
	err := p.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM follows WHERE follower_id = $1 AND followee_id = $2)
`, followerID, followeeID).Scan(&following)
	metrics.ObserveNetworkRequest("postgres", "follows_exists", "follows", start, err)
	if err != nil {
		return false, storeErr(err)
	}
	return following, nil
}

func (p *Postgres) listFollowUsers(ctx context.Context, operation, query string, userID int64) ([]domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, query, userID)
	metrics.ObserveNetworkRequest("postgres", operation, "follows", start, err)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()
	users := make([]domain.User, 0)
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.CreatedAt); err != nil {
			return nil, storeErr(err)
		}
		users = append(users, user)
	}
	return users, storeErr(rows.Err())
}

// ListFollowers implements domain.FollowRepo.
func (p *Postgres) ListFollowers(ctx context.Context, userID int64) ([]domain.User, error) {
	return p.listFollowUsers(ctx, "followers_list", `
SELECT u.id, u.name, u.email, u.created_at
FROM users u
JOIN follows f ON f.follower_id = u.id
WHERE f.followee_id = $1
ORDER BY u.id
`, userID)
}

// ListFollowing implements domain.FollowRepo.
func (p *Postgres) ListFollowing(ctx context.Context, userID int64) ([]domain.User, error) {
	return p.listFollowUsers(ctx, "following_list", `
SELECT u.id, u.name, u.email, u.created_at
FROM users u
JOIN follows f ON f.followee_id = u.id
WHERE f.follower_id = $1
ORDER BY u.id
`, userID)
}

// ListFollowingIDs implements domain.FollowRepo.
func (p *Postgres) ListFollowingIDs(ctx context.Context, userID int64) ([]int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT followee_id FROM follows WHERE follower_id = $1 ORDER BY followee_id
`, userID)
	metrics.ObserveNetworkRequest("postgres", "following_ids", "follows", start, err)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()
	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr(err)
		}
		ids = append(ids, id)
	}
	return ids, storeErr(rows.Err())
}

// CreateBook implements domain.BookRepo.
func (p *Postgres) CreateBook(ctx context.Context, book domain.Book) (domain.Book, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	var publishedAt sql.NullTime
	if !book.PublishedAt.IsZero() {
		publishedAt = sql.NullTime{Time: book.PublishedAt, Valid: true}
	}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO books (title, author, genre, description, published_at, page_count, average_rating, total_ratings)
VALUES ($1, $2, $3, $4, $5, $6, 0, 0)
RETURNING id, created_at
`, book.Title, book.Author, book.Genre, book.Description, publishedAt, book.PageCount).Scan(&book.ID, &book.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "books_insert", "books", start, err)
	if err != nil {
		return domain.Book{}, storeErr(err)
	}
	book.AverageRating = 0
	book.TotalRatings = 0
	return book, nil
}

// GetBook implements domain.BookRepo.
func (p *Postgres) GetBook(ctx context.Context, id int64) (domain.Book, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	book, err := scanBook(p.pool.QueryRow(ctx, `
SELECT `+bookColumns+` FROM books WHERE id = $1
`, id))
	metrics.ObserveNetworkRequest("postgres", "books_get", "books", start, err)
	if err != nil {
		return domain.Book{}, storeErr(err)
	}
	return book, nil
}

// ListBooks implements domain.BookRepo.
func (p *Postgres) ListBooks(ctx context.Context, limit, offset int) ([]domain.Book, error) {
	return p.queryBooks(ctx, "books_list", `
SELECT `+bookColumns+` FROM books ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2
`, limit, offset)
}

// SearchBooks implements domain.BookRepo.
func (p *Postgres) SearchBooks(ctx context.Context, query string, limit int) ([]domain.Book, error) {
	pattern := "%" + query + "%"
	return p.queryBooks(ctx, "books_search", `
SELECT `+bookColumns+` FROM books
WHERE title ILIKE $1 OR author ILIKE $1 OR genre ILIKE $1
ORDER BY average_rating DESC, total_ratings DESC, id ASC
LIMIT $2
`, pattern, limit)
}

// ListByGenres implements domain.BookRepo.
func (p *Postgres) ListByGenres(ctx context.Context, genres []string, excludeIDs []int64, bookSort domain.BookSort, limit int) ([]domain.Book, error) {
	if len(genres) == 0 {
		return []domain.Book{}, nil
	}
	order, err := sortClause(bookSort)
	if err != nil {
		return nil, err
	}
	if excludeIDs == nil {
		excludeIDs = []int64{}
	}
	return p.queryBooks(ctx, "books_by_genres", `
SELECT `+bookColumns+` FROM books
WHERE genre = ANY($1) AND NOT (id = ANY($2))
ORDER BY `+order+`
LIMIT $3
`, genres, excludeIDs, limit)
}

// ListByAuthors implements domain.BookRepo.
func (p *Postgres) ListByAuthors(ctx context.Context, authors []string, excludeIDs []int64, bookSort domain.BookSort, limit int) ([]domain.Book, error) {
	if len(authors) == 0 {
		return []domain.Book{}, nil
	}
	order, err := sortClause(bookSort)
	if err != nil {
		return nil, err
	}
	if excludeIDs == nil {
		excludeIDs = []int64{}
	}
	return p.queryBooks(ctx, "books_by_authors", `
SELECT `+bookColumns+` FROM books
WHERE author = ANY($1) AND NOT (id = ANY($2))
ORDER BY `+order+`
LIMIT $3
`, authors, excludeIDs, limit)
}

// ListTop implements domain.BookRepo.
func (p *Postgres) ListTop(ctx context.Context, bookSort domain.BookSort, limit int) ([]domain.Book, error) {
	order, err := sortClause(bookSort)
	if err != nil {
		return nil, err
	}
	return p.queryBooks(ctx, "books_top", `
SELECT `+bookColumns+` FROM books ORDER BY `+order+` LIMIT $1
`, limit)
}

// ListPublishedSince implements domain.BookRepo.
func (p *Postgres) ListPublishedSince(ctx context.Context, since time.Time, limit int) ([]domain.Book, error) {
	return p.queryBooks(ctx, "books_new_releases", `
SELECT `+bookColumns+` FROM books
WHERE published_at >= $1
ORDER BY published_at DESC, id ASC
LIMIT $2
`, since, limit)
}

// ListByGenre implements domain.BookRepo.
func (p *Postgres) ListByGenre(ctx context.Context, genre string, limit int) ([]domain.Book, error) {
	return p.queryBooks(ctx, "books_by_genre", `
SELECT `+bookColumns+` FROM books
WHERE genre = $1
ORDER BY average_rating DESC, total_ratings DESC, id ASC
LIMIT $2
`, genre, limit)
}

// ApplyRating folds a personal rating into the book's aggregate. With a
// previous rating the count stays put and only the average shifts.
func (p *Postgres) ApplyRating(ctx context.Context, bookID int64, oldRating *int, newRating int) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	var err error
	if oldRating == nil {
		_, err = p.pool.Exec(ctx, `
UPDATE books
SET average_rating = (average_rating * total_ratings + $2) / (total_ratings + 1),
    total_ratings  = total_ratings + 1
WHERE id = $1
`, bookID, float64(newRating))
	} else {
		_, err = p.pool.Exec(ctx, `
UPDATE books
SET average_rating = CASE
    WHEN total_ratings > 0 THEN (average_rating * total_ratings - $2 + $3) / total_ratings
    ELSE $3
END
WHERE id = $1
`, bookID, float64(*oldRating), float64(newRating))
	}
	metrics.ObserveNetworkRequest("postgres", "books_apply_rating", "books", start, err)
	return storeErr(err)
}

// RetractRating removes one rating from the book's aggregate. The last
// rating resets the average to zero.
func (p *Postgres) RetractRating(ctx context.Context, bookID int64, rating int) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE books
SET average_rating = CASE
    WHEN total_ratings > 1 THEN (average_rating * total_ratings - $2) / (total_ratings - 1)
    ELSE 0
END,
    total_ratings  = GREATEST(total_ratings - 1, 0)
WHERE id = $1
`, bookID, float64(rating))
	metrics.ObserveNetworkRequest("postgres", "books_retract_rating", "books", start, err)
	return storeErr(err)
}

const entryColumns = "ub.id, ub.user_id, ub.book_id, ub.status, ub.rating, ub.current_page, ub.started_at, ub.finished_at, ub.created_at"

func scanEntry(rows pgx.Rows, withBook bool) (domain.LibraryEntry, error) {
	var entry domain.LibraryEntry
	var rating sql.NullInt64
	var startedAt, finishedAt sql.NullTime
	dest := []any{&entry.ID, &entry.UserID, &entry.BookID, &entry.Status, &rating, &entry.CurrentPage, &startedAt, &finishedAt, &entry.CreatedAt}
	if withBook {
		var publishedAt sql.NullTime
		dest = append(dest, &entry.Book.ID, &entry.Book.Title, &entry.Book.Author, &entry.Book.Genre, &entry.Book.Description, &publishedAt, &entry.Book.PageCount, &entry.Book.AverageRating, &entry.Book.TotalRatings, &entry.Book.CreatedAt)
		if err := rows.Scan(dest...); err != nil {
			return domain.LibraryEntry{}, err
		}
		if publishedAt.Valid {
			entry.Book.PublishedAt = publishedAt.Time
		}
	} else if err := rows.Scan(dest...); err != nil {
		return domain.LibraryEntry{}, err
	}
	if rating.Valid {
		value := int(rating.Int64)
		entry.Rating = &value
	}
	if startedAt.Valid {
		entry.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		entry.FinishedAt = &finishedAt.Time
	}
	return entry, nil
}

// GetEntry implements domain.LibraryRepo.
func (p *Postgres) GetEntry(ctx context.Context, userID, bookID int64) (domain.LibraryEntry, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+entryColumns+`, b.id, b.title, b.author, b.genre, b.description, b.published_at, b.page_count, b.average_rating, b.total_ratings, b.created_at
FROM user_books ub
JOIN books b ON b.id = ub.book_id
WHERE ub.user_id = $1 AND ub.book_id = $2
`, userID, bookID)
	metrics.ObserveNetworkRequest("postgres", "library_get", "user_books", start, err)
	if err != nil {
		return domain.LibraryEntry{}, storeErr(err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.LibraryEntry{}, storeErr(err)
		}
		return domain.LibraryEntry{}, domain.ErrNotFound
	}
	entry, err := scanEntry(rows, true)
	if err != nil {
		return domain.LibraryEntry{}, storeErr(err)
	}
	return entry, nil
}

// CreateEntry implements domain.LibraryRepo.
func (p *Postgres) CreateEntry(ctx context.Context, entry domain.LibraryEntry) (domain.LibraryEntry, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	var startedAt sql.NullTime
	if entry.StartedAt != nil {
		startedAt = sql.NullTime{Time: *entry.StartedAt, Valid: true}
	}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO user_books (user_id, book_id, status, current_page, started_at)
VALUES ($1, $2, $3, 0, $4)
RETURNING id, created_at
`, entry.UserID, entry.BookID, entry.Status, startedAt).Scan(&entry.ID, &entry.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "library_insert", "user_books", start, err)
	if err != nil {
		return domain.LibraryEntry{}, storeErr(err)
	}
	return entry, nil
}

// UpdateStatus implements domain.LibraryRepo.
func (p *Postgres) UpdateStatus(ctx context.Context, userID, bookID int64, status domain.ReadingStatus, startedAt, finishedAt *time.Time) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	var started, finished sql.NullTime
	if startedAt != nil {
		started = sql.NullTime{Time: *startedAt, Valid: true}
	}
	if finishedAt != nil {
		finished = sql.NullTime{Time: *finishedAt, Valid: true}
	}
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE user_books SET status = $3, started_at = $4, finished_at = $5
WHERE user_id = $1 AND book_id = $2
`, userID, bookID, status, started, finished)
	metrics.ObserveNetworkRequest("postgres", "library_update_status", "user_books", start, err)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateRating implements domain.LibraryRepo.
func (p *Postgres) UpdateRating(ctx context.Context, userID, bookID int64, rating int) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE user_books SET rating = $3 WHERE user_id = $1 AND book_id = $2
`, userID, bookID, rating)
	metrics.ObserveNetworkRequest("postgres", "library_update_rating", "user_books", start, err)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteEntry implements domain.LibraryRepo.
func (p *Postgres) DeleteEntry(ctx context.Context, userID, bookID int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
DELETE FROM user_books WHERE user_id = $1 AND book_id = $2
`, userID, bookID)
	metrics.ObserveNetworkRequest("postgres", "library_delete", "user_books", start, err)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListEntries implements domain.LibraryRepo.
func (p *Postgres) ListEntries(ctx context.Context, userID int64, status domain.ReadingStatus, limit, offset int) ([]domain.LibraryEntry, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	query := `
SELECT ` + entryColumns + `, b.id, b.title, b.author, b.genre, b.description, b.published_at, b.page_count, b.average_rating, b.total_ratings, b.created_at
FROM user_books ub
JOIN books b ON b.id = ub.book_id
WHERE ub.user_id = $1`
	args := []any{userID}
	if status != "" {
		query += ` AND ub.status = $2`
		args = append(args, status)
	}
	query += fmt.Sprintf(`
ORDER BY ub.created_at DESC, ub.id DESC
LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "library_list", "user_books", start, err)
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
	return entries, storeErr(rows.Err())
}

// ListForSignature returns all of a user's entries with just the book
// genre and author needed to derive a signature.
func (p *Postgres) ListForSignature(ctx context.Context, userID int64) ([]domain.LibraryEntry, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT ub.id, ub.user_id, ub.book_id, ub.status, ub.rating, b.genre, b.author
FROM user_books ub
JOIN books b ON b.id = ub.book_id
WHERE ub.user_id = $1
`, userID)
	metrics.ObserveNetworkRequest("postgres", "library_signature", "user_books", start, err)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()
	entries := make([]domain.LibraryEntry, 0)
	for rows.Next() {
		var entry domain.LibraryEntry
		var rating sql.NullInt64
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.BookID, &entry.Status, &rating, &entry.Book.Genre, &entry.Book.Author); err != nil {
			return nil, storeErr(err)
		}
		if rating.Valid {
			value := int(rating.Int64)
			entry.Rating = &value
		}
		entry.Book.ID = entry.BookID
		entries = append(entries, entry)
	}
	return entries, storeErr(rows.Err())
}

// ListSignatures folds every other user's library into per-user
// signatures for the affinity candidate pool.
func (p *Postgres) ListSignatures(ctx context.Context, excludeUserIDs []int64) ([]domain.UserSignature, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	if excludeUserIDs == nil {
		excludeUserIDs = []int64{}
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT ub.user_id, ub.book_id, b.genre, b.author
FROM user_books ub
JOIN books b ON b.id = ub.book_id
WHERE NOT (ub.user_id = ANY($1))
ORDER BY ub.user_id
`, excludeUserIDs)
	metrics.ObserveNetworkRequest("postgres", "library_signatures", "user_books", start, err)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()
	byUser := make(map[int64]*domain.UserSignature)
	for rows.Next() {
		var userID, bookID int64
		var genre, author string
		if err := rows.Scan(&userID, &bookID, &genre, &author); err != nil {
			return nil, storeErr(err)
		}
		sig, ok := byUser[userID]
		if !ok {
			sig = &domain.UserSignature{
				UserID:  userID,
				Genres:  make(map[string]struct{}),
				Authors: make(map[string]struct{}),
				Owned:   make(map[int64]struct{}),
			}
			byUser[userID] = sig
		}
		if genre != "" {
			sig.Genres[genre] = struct{}{}
		}
		if author != "" {
			sig.Authors[author] = struct{}{}
		}
		sig.Owned[bookID] = struct{}{}
		sig.LibrarySize++
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	signatures := make([]domain.UserSignature, 0, len(byUser))
	for _, sig := range byUser {
		signatures = append(signatures, *sig)
	}
	sort.Slice(signatures, func(i, j int) bool { return signatures[i].UserID < signatures[j].UserID })
	return signatures, nil
}

// ListPeerFavorites returns books the given peers rated at least
// minRating, best peer rating first, one row per book.
func (p *Postgres) ListPeerFavorites(ctx context.Context, userIDs []int64, minRating int, excludeBookIDs []int64, limit int) ([]domain.Book, error) {
	if len(userIDs) == 0 {
		return []domain.Book{}, nil
	}
	if excludeBookIDs == nil {
		excludeBookIDs = []int64{}
	}
	return p.queryBooks(ctx, "library_peer_favorites", `
SELECT id, title, author, genre, description, published_at, page_count, average_rating, total_ratings, created_at
FROM (
    SELECT DISTINCT ON (b.id)
        b.id, b.title, b.author, b.genre, b.description, b.published_at, b.page_count,
        b.average_rating, b.total_ratings, b.created_at, ub.rating AS peer_rating
    FROM user_books ub
    JOIN books b ON b.id = ub.book_id
    WHERE ub.user_id = ANY($1) AND ub.rating >= $2 AND NOT (b.id = ANY($3))
    ORDER BY b.id, ub.rating DESC
) picks
ORDER BY peer_rating DESC, id ASC
LIMIT $4
`, userIDs, minRating, excludeBookIDs, limit)
}

// InsertActivity implements domain.ActivityRepo.
func (p *Postgres) InsertActivity(ctx context.Context, event domain.ActivityEvent) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	var bookID, targetUserID sql.NullInt64
	if event.BookID != nil {
		bookID = sql.NullInt64{Int64: *event.BookID, Valid: true}
	}
	if event.TargetUserID != nil {
		targetUserID = sql.NullInt64{Int64: *event.TargetUserID, Valid: true}
	}
	var rating sql.NullInt64
	if event.Rating != nil {
		rating = sql.NullInt64{Int64: int64(*event.Rating), Valid: true}
	}
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO activities (id, user_id, type, book_id, target_user_id, rating, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING
`, event.ID, event.UserID, event.Type, bookID, targetUserID, rating, event.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "activities_insert", "activities", start, err)
	return storeErr(err)
}

// ListFeed implements domain.ActivityRepo.
func (p *Postgres) ListFeed(ctx context.Context, userIDs []int64, limit int) ([]domain.Activity, error) {
	if len(userIDs) == 0 {
		return []domain.Activity{}, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT a.id, a.user_id, u.name, a.type, a.book_id, COALESCE(b.title, ''), COALESCE(b.author, ''), a.target_user_id, a.rating, a.occurred_at
FROM activities a
JOIN users u ON u.id = a.user_id
LEFT JOIN books b ON b.id = a.book_id
WHERE a.user_id = ANY($1)
ORDER BY a.occurred_at DESC, a.id
LIMIT $2
`, userIDs, limit)
	metrics.ObserveNetworkRequest("postgres", "activities_feed", "activities", start, err)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()
	activities := make([]domain.Activity, 0)
	for rows.Next() {
		var activity domain.Activity
		var bookID, targetUserID, rating sql.NullInt64
		if err := rows.Scan(&activity.ID, &activity.UserID, &activity.UserName, &activity.Type, &bookID, &activity.BookTitle, &activity.BookAuthor, &targetUserID, &rating, &activity.OccurredAt); err != nil {
			return nil, storeErr(err)
		}
		if bookID.Valid {
			activity.BookID = &bookID.Int64
		}
		if targetUserID.Valid {
			activity.TargetUserID = &targetUserID.Int64
		}
		if rating.Valid {
			value := int(rating.Int64)
			activity.Rating = &value
		}
		activities = append(activities, activity)
	}
	return activities, storeErr(rows.Err())
}
