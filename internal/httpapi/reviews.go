package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	chi "github.com/go-chi/chi/v5"

	"novalyn/internal/domain"
	httpinfra "novalyn/internal/infra/http"
	reviewusecase "novalyn/internal/usecase/review"
)

func (s *Server) handleBookReviews(w http.ResponseWriter, r *http.Request) {
	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookID"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	sort := domain.ReviewSort(r.URL.Query().Get("sortBy"))
	limit := queryInt(r, "limit", 10)
	if limit > 100 {
		limit = 100
	}
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	reviews, total, err := s.reviews.BookReviews(r.Context(), bookID, sort, limit, (page-1)*limit)
	if err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	pages := (total + limit - 1) / limit
	httpinfra.WriteJSON(w, bookReviewsResponse{
		Total:   total,
		Page:    page,
		Pages:   pages,
		Reviews: toReviewResponses(reviews),
	})
}

func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid review id")
		return
	}
	review, err := s.reviews.Get(r.Context(), id)
	if err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, toReviewResponse(review))
}

type createReviewRequest struct {
	BookID int64  `json:"bookId"`
	Text   string `json:"text"`
	Rating int    `json:"rating"`
}

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	userID, _ := httpinfra.UserID(r)
	var req createReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BookID == 0 {
		httpinfra.WriteError(w, http.StatusBadRequest, "bookId is required")
		return
	}
	review, err := s.reviews.Create(r.Context(), userID, req.BookID, req.Text, req.Rating)
	if err != nil {
		if errors.Is(err, reviewusecase.ErrAlreadyReviewed) {
			httpinfra.WriteError(w, http.StatusBadRequest, "you already reviewed this book")
			return
		}
		httpinfra.WriteDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	httpinfra.WriteJSON(w, toReviewResponse(review))
}

type updateReviewRequest struct {
	Text   string `json:"text"`
	Rating int    `json:"rating"`
}

func (s *Server) handleUpdateReview(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	userID, _ := httpinfra.UserID(r)
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid review id")
		return
	}
	var req updateReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	review, err := s.reviews.Update(r.Context(), userID, id, req.Text, req.Rating)
	if err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, toReviewResponse(review))
}

func (s *Server) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpinfra.UserID(r)
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid review id")
		return
	}
	if err := s.reviews.Delete(r.Context(), userID, id); err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpvoteReview(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpinfra.UserID(r)
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid review id")
		return
	}
	review, err := s.reviews.Upvote(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, reviewusecase.ErrAlreadyUpvoted) {
			httpinfra.WriteError(w, http.StatusBadRequest, "you already upvoted this review")
			return
		}
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, toReviewResponse(review))
}

func (s *Server) handleRemoveUpvote(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpinfra.UserID(r)
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid review id")
		return
	}
	review, err := s.reviews.RemoveUpvote(r.Context(), userID, id)
	if err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, toReviewResponse(review))
}
