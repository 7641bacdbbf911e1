package httpapi

import (
	"time"

	"novalyn/internal/domain"
)

type bookResponse struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Author        string     `json:"author"`
	Genre         string     `json:"genre"`
	Description   string     `json:"description,omitempty"`
	PublishedDate *time.Time `json:"publishedDate,omitempty"`
	PageCount     int        `json:"pageCount,omitempty"`
	AverageRating float64    `json:"averageRating"`
	TotalRatings  int        `json:"totalRatings"`
}

func toBookResponse(book domain.Book) bookResponse {
	resp := bookResponse{
		ID:            book.ID,
		Title:         book.Title,
		Author:        book.Author,
		Genre:         book.Genre,
		Description:   book.Description,
		PageCount:     book.PageCount,
		AverageRating: book.AverageRating,
		TotalRatings:  book.TotalRatings,
	}
	if !book.PublishedAt.IsZero() {
		published := book.PublishedAt
		resp.PublishedDate = &published
	}
	return resp
}

func toBookResponses(books []domain.Book) []bookResponse {
	out := make([]bookResponse, 0, len(books))
	for _, book := range books {
		out = append(out, toBookResponse(book))
	}
	return out
}

type recommendationsResponse struct {
	SimilarUserRecommendations []bookResponse `json:"similarUserRecommendations"`
	GenreRecommendations       []bookResponse `json:"genreRecommendations"`
	AuthorRecommendations      []bookResponse `json:"authorRecommendations"`
	TrendingBooks              []bookResponse `json:"trendingBooks"`
}

type userResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func toUserResponses(users []domain.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for _, user := range users {
		out = append(out, userResponse{ID: user.ID, Name: user.Name})
	}
	return out
}

type suggestedUserResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	CommonGenres int    `json:"commonGenres"`
	BooksRead    int    `json:"booksRead"`
}

type libraryEntryResponse struct {
	ID          int64         `json:"id"`
	Book        bookResponse  `json:"book"`
	Status      string        `json:"status"`
	Rating      *int          `json:"rating,omitempty"`
	CurrentPage int           `json:"currentPage"`
	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	FinishedAt  *time.Time    `json:"finishedAt,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

func toLibraryEntryResponse(entry domain.LibraryEntry) libraryEntryResponse {
	return libraryEntryResponse{
		ID:          entry.ID,
		Book:        toBookResponse(entry.Book),
		Status:      string(entry.Status),
		Rating:      entry.Rating,
		CurrentPage: entry.CurrentPage,
		StartedAt:   entry.StartedAt,
		FinishedAt:  entry.FinishedAt,
		CreatedAt:   entry.CreatedAt,
	}
}

type reviewResponse struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"userId"`
	UserName   string    `json:"userName"`
	BookID     int64     `json:"bookId"`
	BookTitle  string    `json:"bookTitle"`
	BookAuthor string    `json:"bookAuthor"`
	Text       string    `json:"text"`
	Rating     int       `json:"rating"`
	Upvotes    int       `json:"upvotes"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toReviewResponse(review domain.Review) reviewResponse {
	return reviewResponse{
		ID:         review.ID,
		UserID:     review.UserID,
		UserName:   review.UserName,
		BookID:     review.BookID,
		BookTitle:  review.BookTitle,
		BookAuthor: review.BookAuthor,
		Text:       review.Text,
		Rating:     review.Rating,
		Upvotes:    review.Upvotes,
		CreatedAt:  review.CreatedAt,
	}
}

func toReviewResponses(reviews []domain.Review) []reviewResponse {
	out := make([]reviewResponse, 0, len(reviews))
	for _, review := range reviews {
		out = append(out, toReviewResponse(review))
	}
	return out
}

type bookReviewsResponse struct {
	Total   int              `json:"total"`
	Page    int              `json:"page"`
	Pages   int              `json:"pages"`
	Reviews []reviewResponse `json:"reviews"`
}

type shelfResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsDefault   bool      `json:"isDefault"`
	BookCount   int       `json:"bookCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toShelfResponse(shelf domain.Shelf) shelfResponse {
	return shelfResponse{
		ID:          shelf.ID,
		Name:        shelf.Name,
		Description: shelf.Description,
		IsDefault:   shelf.IsDefault,
		BookCount:   shelf.BookCount,
		CreatedAt:   shelf.CreatedAt,
	}
}

func toShelfResponses(shelves []domain.Shelf) []shelfResponse {
	out := make([]shelfResponse, 0, len(shelves))
	for _, shelf := range shelves {
		out = append(out, toShelfResponse(shelf))
	}
	return out
}

type shelfDetailResponse struct {
	Shelf shelfResponse          `json:"shelf"`
	Books []libraryEntryResponse `json:"books"`
}

type activityResponse struct {
	ID         string     `json:"id"`
	UserID     int64      `json:"userId"`
	UserName   string     `json:"userName"`
	Type       string     `json:"type"`
	BookID     *int64     `json:"bookId,omitempty"`
	BookTitle  string     `json:"bookTitle,omitempty"`
	BookAuthor string     `json:"bookAuthor,omitempty"`
	TargetID   *int64     `json:"targetUserId,omitempty"`
	Rating     *int       `json:"rating,omitempty"`
	OccurredAt time.Time  `json:"occurredAt"`
}

func toActivityResponses(activities []domain.Activity) []activityResponse {
	out := make([]activityResponse, 0, len(activities))
	for _, activity := range activities {
		out = append(out, activityResponse{
			ID:         activity.ID,
			UserID:     activity.UserID,
			UserName:   activity.UserName,
			Type:       string(activity.Type),
			BookID:     activity.BookID,
			BookTitle:  activity.BookTitle,
			BookAuthor: activity.BookAuthor,
			TargetID:   activity.TargetUserID,
			Rating:     activity.Rating,
			OccurredAt: activity.OccurredAt,
		})
	}
	return out
}
