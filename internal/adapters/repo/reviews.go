package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"novalyn/internal/domain"
	"novalyn/internal/infra/metrics"
)

// Reviews carry the reviewer's name and the book labels for listing, and
// an upvote count derived from the vote rows.
const reviewColumns = `r.id, r.user_id, r.book_id, r.text, r.rating,
	(SELECT count(*) FROM review_votes v WHERE v.review_id = r.id) AS upvotes,
	u.name, b.title, b.author, r.created_at`

const reviewFrom = `
FROM reviews r
JOIN users u ON u.id = r.user_id
JOIN books b ON b.id = r.book_id
`

func reviewSortClause(reviewSort domain.ReviewSort) (string, error) {
	switch reviewSort {
	case domain.ReviewSortNewest:
		return "r.created_at DESC, r.id DESC", nil
	case domain.ReviewSortOldest:
		return "r.created_at ASC, r.id ASC", nil
	case domain.ReviewSortHighest:
		return "r.rating DESC, r.created_at DESC, r.id DESC", nil
	case domain.ReviewSortLowest:
		return "r.rating ASC, r.created_at DESC, r.id DESC", nil
	case domain.ReviewSortPopular:
		return "upvotes DESC, r.created_at DESC, r.id DESC", nil
	default:
		return "", fmt.Errorf("%w: unknown review sort %q", domain.ErrInvalidArgument, reviewSort)
	}
}

func scanReview(row pgx.Row) (domain.Review, error) {
	var review domain.Review
	err := row.Scan(&review.ID, &review.UserID, &review.BookID, &review.Text, &review.Rating,
		&review.Upvotes, &review.UserName, &review.BookTitle, &review.BookAuthor, &review.CreatedAt)
	if err != nil {
		return domain.Review{}, err
	}
	return review, nil
}

// CreateReview implements domain.ReviewRepo.
func (p *Postgres) CreateReview(ctx context.Context, review domain.Review) (domain.Review, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO reviews (user_id, book_id, text, rating)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at
`, review.UserID, review.BookID, review.Text, review.Rating).Scan(&review.ID, &review.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "reviews_insert", "reviews", start, err)
	if err != nil {
		return domain.Review{}, storeErr(err)
	}
	return review, nil
}

// GetReview implements domain.ReviewRepo.
func (p *Postgres) GetReview(ctx context.Context, id int64) (domain.Review, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	review, err := scanReview(p.pool.QueryRow(ctx, `
SELECT `+reviewColumns+reviewFrom+`
WHERE r.id = $1
`, id))
	metrics.ObserveNetworkRequest("postgres", "reviews_get", "reviews", start, err)
	if err != nil {
		return domain.Review{}, storeErr(err)
	}
	return review, nil
}

// GetUserReview implements domain.ReviewRepo.
func (p *Postgres) GetUserReview(ctx context.Context, userID, bookID int64) (domain.Review, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	review, err := scanReview(p.pool.QueryRow(ctx, `
SELECT `+reviewColumns+reviewFrom+`
WHERE r.user_id = $1 AND r.book_id = $2
`, userID, bookID))
	metrics.ObserveNetworkRequest("postgres", "reviews_get_by_user", "reviews", start, err)
	if err != nil {
		return domain.Review{}, storeErr(err)
	}
	return review, nil
}

// ListBookReviews implements domain.ReviewRepo.
func (p *Postgres) ListBookReviews(ctx context.Context, bookID int64, reviewSort domain.ReviewSort, limit, offset int) ([]domain.Review, error) {
	order, err := reviewSortClause(reviewSort)
	if err != nil {
		return nil, err
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+reviewColumns+reviewFrom+`
WHERE r.book_id = $1
ORDER BY `+order+`
LIMIT $2 OFFSET $3
`, bookID, limit, offset)
	metrics.ObserveNetworkRequest("postgres", "reviews_list", "reviews", start, err)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()
	reviews := make([]domain.Review, 0)
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return reviews, nil
}

// CountBookReviews implements domain.ReviewRepo.
func (p *Postgres) CountBookReviews(ctx context.Context, bookID int64) (int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	var total int
	err := p.pool.QueryRow(ctx, `
SELECT count(*) FROM reviews WHERE book_id = $1
`, bookID).Scan(&total)
	metrics.ObserveNetworkRequest("postgres", "reviews_count", "reviews", start, err)
	if err != nil {
		return 0, storeErr(err)
	}
	return total, nil
}

// UpdateReview implements domain.ReviewRepo.
func (p *Postgres) UpdateReview(ctx context.Context, id int64, text string, rating int) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE reviews SET text = $2, rating = $3 WHERE id = $1
`, id, text, rating)
	metrics.ObserveNetworkRequest("postgres", "reviews_update", "reviews", start, err)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteReview implements domain.ReviewRepo. Vote rows go with the
// review through the cascading foreign key.
func (p *Postgres) DeleteReview(ctx context.Context, id int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
DELETE FROM reviews WHERE id = $1
`, id)
	metrics.ObserveNetworkRequest("postgres", "reviews_delete", "reviews", start, err)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Upvote implements domain.ReviewRepo. The returned bool reports whether
// a vote row was inserted; a repeated vote inserts nothing.
func (p *Postgres) Upvote(ctx context.Context, reviewID, userID int64) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
INSERT INTO review_votes (review_id, user_id) VALUES ($1, $2)
ON CONFLICT (review_id, user_id) DO NOTHING
`, reviewID, userID)
	metrics.ObserveNetworkRequest("postgres", "review_votes_insert", "review_votes", start, err)
	if err != nil {
		return false, storeErr(err)
	}
	return tag.RowsAffected() > 0, nil
}

// RemoveUpvote implements domain.ReviewRepo. Removing an absent vote is
// a no-op.
func (p *Postgres) RemoveUpvote(ctx context.Context, reviewID, userID int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
DELETE FROM review_votes WHERE review_id = $1 AND user_id = $2
`, reviewID, userID)
	metrics.ObserveNetworkRequest("postgres", "review_votes_delete", "review_votes", start, err)
	return storeErr(err)
}
