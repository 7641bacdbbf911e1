package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"novalyn/internal/domain"
	httpinfra "novalyn/internal/infra/http"
	libraryusecase "novalyn/internal/usecase/library"
	reviewusecase "novalyn/internal/usecase/review"
	shelfusecase "novalyn/internal/usecase/shelf"
	socialusecase "novalyn/internal/usecase/social"
)

// Server holds the API handlers and their dependencies.
type Server struct {
	books     domain.BookRepo
	library   *libraryusecase.Service
	recommend domain.Recommender
	social    *socialusecase.Service
	reviews   *reviewusecase.Service
	shelves   *shelfusecase.Service
	log       zerolog.Logger
	jwtSecret string
}

// NewServer creates the API surface.
func NewServer(books domain.BookRepo, library *libraryusecase.Service, recommend domain.Recommender, social *socialusecase.Service, reviews *reviewusecase.Service, shelves *shelfusecase.Service, logger zerolog.Logger, jwtSecret string) *Server {
	return &Server{
		books:     books,
		library:   library,
		recommend: recommend,
		social:    social,
		reviews:   reviews,
		shelves:   shelves,
		log:       logger,
		jwtSecret: jwtSecret,
	}
}

// Routes mounts all API endpoints onto the router.
func (s *Server) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/recommendations/trending", s.handleTrending)
		r.Get("/recommendations/new-releases", s.handleNewReleases)
		r.Get("/recommendations/genre/{genre}", s.handleByGenre)

		r.Get("/books", s.handleListBooks)
		r.Get("/books/search", s.handleSearchBooks)
		r.Get("/books/{id}", s.handleGetBook)

		r.Get("/reviews/book/{bookID}", s.handleBookReviews)
		r.Get("/reviews/{id}", s.handleGetReview)

		r.Group(func(protected chi.Router) {
			protected.Use(httpinfra.AuthMiddleware(s.jwtSecret))

			protected.Get("/recommendations", s.handleRecommendations)

			protected.Post("/books", s.handleCreateBook)

			protected.Get("/library", s.handleListLibrary)
			protected.Post("/library", s.handleAddToLibrary)
			protected.Put("/library/{bookID}/status", s.handleUpdateStatus)
			protected.Put("/library/{bookID}/rating", s.handleRate)
			protected.Delete("/library/{bookID}", s.handleRemoveFromLibrary)

			protected.Post("/reviews", s.handleCreateReview)
			protected.Put("/reviews/{id}", s.handleUpdateReview)
			protected.Delete("/reviews/{id}", s.handleDeleteReview)
			protected.Put("/reviews/{id}/upvote", s.handleUpvoteReview)
			protected.Put("/reviews/{id}/remove-upvote", s.handleRemoveUpvote)

			protected.Post("/shelves", s.handleCreateShelf)
			protected.Get("/shelves", s.handleListShelves)
			protected.Get("/shelves/{id}", s.handleGetShelf)
			protected.Put("/shelves/{id}", s.handleUpdateShelf)
			protected.Delete("/shelves/{id}", s.handleDeleteShelf)
			protected.Put("/shelves/{id}/books/{bookID}", s.handleShelveBook)
			protected.Delete("/shelves/{id}/books/{bookID}", s.handleUnshelveBook)

			protected.Post("/social/follow/{userID}", s.handleFollow)
			protected.Delete("/social/follow/{userID}", s.handleUnfollow)
			protected.Get("/social/followers", s.handleFollowers)
			protected.Get("/social/following", s.handleFollowing)
			protected.Get("/social/suggested", s.handleSuggestedUsers)
			protected.Get("/social/feed", s.handleActivityFeed)
		})
	})
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpinfra.UserID(r)
	if !ok {
		httpinfra.WriteError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	set, err := s.recommend.Compose(r.Context(), userID)
	if err != nil {
		s.log.Error().Err(err).Int64("user", userID).Str("request_id", httpinfra.RequestID(r)).Msg("api: compose recommendations")
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, recommendationsResponse{
		SimilarUserRecommendations: toBookResponses(set.PeerPicks),
		GenreRecommendations:       toBookResponses(set.GenreMatches),
		AuthorRecommendations:      toBookResponses(set.AuthorMatches),
		TrendingBooks:              toBookResponses(set.TrendingInGenre),
	})
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	books, err := s.recommend.Trending(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("api: trending")
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, toBookResponses(books))
}

func (s *Server) handleNewReleases(w http.ResponseWriter, r *http.Request) {
	books, err := s.recommend.NewReleases(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("api: new releases")
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, toBookResponses(books))
}

func (s *Server) handleByGenre(w http.ResponseWriter, r *http.Request) {
	genre := chi.URLParam(r, "genre")
	books, err := s.recommend.ByGenre(r.Context(), genre)
	if err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, toBookResponses(books))
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)
	if limit > 100 {
		limit = 100
	}
	books, err := s.books.ListBooks(r.Context(), limit, offset)
	if err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, toBookResponses(books))
}

func (s *Server) handleSearchBooks(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		httpinfra.WriteError(w, http.StatusBadRequest, "q is required")
		return
	}
	books, err := s.books.SearchBooks(r.Context(), query, 20)
	if err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, toBookResponses(books))
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	book, err := s.books.GetBook(r.Context(), id)
	if err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, toBookResponse(book))
}

type createBookRequest struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	Genre         string `json:"genre"`
	Description   string `json:"description"`
	PublishedDate string `json:"publishedDate"`
	PageCount     int    `json:"pageCount"`
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req createBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Author = strings.TrimSpace(req.Author)
	req.Genre = strings.TrimSpace(req.Genre)
	if req.Title == "" || req.Author == "" || req.Genre == "" {
		httpinfra.WriteError(w, http.StatusBadRequest, "title, author and genre are required")
		return
	}
	if req.PageCount < 1 {
		httpinfra.WriteError(w, http.StatusBadRequest, "pageCount must be positive")
		return
	}
	book := domain.Book{
		Title:       req.Title,
		Author:      req.Author,
		Genre:       req.Genre,
		Description: strings.TrimSpace(req.Description),
		PageCount:   req.PageCount,
	}
	if req.PublishedDate != "" {
		published, err := parseDate(req.PublishedDate)
		if err != nil {
			httpinfra.WriteError(w, http.StatusBadRequest, "invalid publishedDate")
			return
		}
		book.PublishedAt = published
	}
	created, err := s.books.CreateBook(r.Context(), book)
	if err != nil {
		s.log.Error().Err(err).Msg("api: create book")
		httpinfra.WriteDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	httpinfra.WriteJSON(w, toBookResponse(created))
}

func (s *Server) handleListLibrary(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpinfra.UserID(r)
	status := domain.ReadingStatus(r.URL.Query().Get("status"))
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)
	entries, err := s.library.ListBooks(r.Context(), userID, status, limit, offset)
	if err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	out := make([]libraryEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toLibraryEntryResponse(entry))
	}
	httpinfra.WriteJSON(w, out)
}

type addToLibraryRequest struct {
	BookID int64  `json:"bookId"`
	Status string `json:"status"`
}

func (s *Server) handleAddToLibrary(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	userID, _ := httpinfra.UserID(r)
	var req addToLibraryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BookID == 0 {
		httpinfra.WriteError(w, http.StatusBadRequest, "bookId is required")
		return
	}
	entry, err := s.library.AddBook(r.Context(), userID, req.BookID, domain.ReadingStatus(req.Status))
	if err != nil {
		if errors.Is(err, libraryusecase.ErrAlreadyInLibrary) {
			httpinfra.WriteError(w, http.StatusConflict, "book is already in your library")
			return
		}
		httpinfra.WriteDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	httpinfra.WriteJSON(w, toLibraryEntryResponse(entry))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	userID, _ := httpinfra.UserID(r)
	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookID"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.library.UpdateStatus(r.Context(), userID, bookID, domain.ReadingStatus(req.Status)); err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, map[string]string{"status": "ok"})
}

type rateRequest struct {
	Rating int `json:"rating"`
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	userID, _ := httpinfra.UserID(r)
	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookID"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.library.Rate(r.Context(), userID, bookID, req.Rating); err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleRemoveFromLibrary(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpinfra.UserID(r)
	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookID"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	if err := s.library.RemoveBook(r.Context(), userID, bookID); err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpinfra.UserID(r)
	targetID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := s.social.Follow(r.Context(), userID, targetID); err != nil {
		switch {
		case errors.Is(err, socialusecase.ErrSelfFollow):
			httpinfra.WriteError(w, http.StatusBadRequest, "cannot follow yourself")
		case errors.Is(err, socialusecase.ErrAlreadyFollowing):
			httpinfra.WriteError(w, http.StatusBadRequest, "already following this user")
		default:
			httpinfra.WriteDomainError(w, err)
		}
		return
	}
	httpinfra.WriteJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpinfra.UserID(r)
	targetID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := s.social.Unfollow(r.Context(), userID, targetID); err != nil {
		if errors.Is(err, socialusecase.ErrNotFollowing) {
			httpinfra.WriteError(w, http.StatusBadRequest, "not following this user")
			return
		}
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleFollowers(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpinfra.UserID(r)
	users, err := s.social.Followers(r.Context(), userID)
	if err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, toUserResponses(users))
}

func (s *Server) handleFollowing(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpinfra.UserID(r)
	users, err := s.social.Following(r.Context(), userID)
	if err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, toUserResponses(users))
}

func (s *Server) handleSuggestedUsers(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpinfra.UserID(r)
	suggested, err := s.social.SuggestedUsers(r.Context(), userID)
	if err != nil {
		s.log.Error().Err(err).Int64("user", userID).Msg("api: suggested users")
		httpinfra.WriteDomainError(w, err)
		return
	}
	out := make([]suggestedUserResponse, 0, len(suggested))
	for _, item := range suggested {
		out = append(out, suggestedUserResponse{
			ID:           item.User.ID,
			Name:         item.User.Name,
			CommonGenres: item.SharedGenres,
			BooksRead:    item.BooksRead,
		})
	}
	httpinfra.WriteJSON(w, out)
}

func (s *Server) handleActivityFeed(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpinfra.UserID(r)
	activities, err := s.social.ActivityFeed(r.Context(), userID)
	if err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, toActivityResponses(activities))
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
