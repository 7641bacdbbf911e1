package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	chi "github.com/go-chi/chi/v5"

	httpinfra "novalyn/internal/infra/http"
	shelfusecase "novalyn/internal/usecase/shelf"
)

type shelfRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleCreateShelf(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	userID, _ := httpinfra.UserID(r)
	var req shelfRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	shelf, err := s.shelves.Create(r.Context(), userID, req.Name, req.Description)
	if err != nil {
		if errors.Is(err, shelfusecase.ErrShelfExists) {
			httpinfra.WriteError(w, http.StatusBadRequest, "a shelf with this name already exists")
			return
		}
		httpinfra.WriteDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	httpinfra.WriteJSON(w, toShelfResponse(shelf))
}

func (s *Server) handleListShelves(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpinfra.UserID(r)
	shelves, err := s.shelves.List(r.Context(), userID)
	if err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, toShelfResponses(shelves))
}

func (s *Server) handleGetShelf(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpinfra.UserID(r)
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid shelf id")
		return
	}
	shelf, entries, err := s.shelves.Get(r.Context(), userID, id)
	if err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	books := make([]libraryEntryResponse, 0, len(entries))
	for _, entry := range entries {
		books = append(books, toLibraryEntryResponse(entry))
	}
	httpinfra.WriteJSON(w, shelfDetailResponse{Shelf: toShelfResponse(shelf), Books: books})
}

func (s *Server) handleUpdateShelf(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	userID, _ := httpinfra.UserID(r)
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid shelf id")
		return
	}
	var req shelfRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	shelf, err := s.shelves.Update(r.Context(), userID, id, req.Name, req.Description)
	if err != nil {
		if errors.Is(err, shelfusecase.ErrShelfExists) {
			httpinfra.WriteError(w, http.StatusBadRequest, "a shelf with this name already exists")
			return
		}
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, toShelfResponse(shelf))
}

func (s *Server) handleDeleteShelf(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpinfra.UserID(r)
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid shelf id")
		return
	}
	if err := s.shelves.Delete(r.Context(), userID, id); err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleShelveBook(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpinfra.UserID(r)
	shelfID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid shelf id")
		return
	}
	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookID"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	if err := s.shelves.AddBook(r.Context(), userID, shelfID, bookID); err != nil {
		if errors.Is(err, shelfusecase.ErrBookAlreadyShelved) {
			httpinfra.WriteError(w, http.StatusBadRequest, "book is already on this shelf")
			return
		}
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleUnshelveBook(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpinfra.UserID(r)
	shelfID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid shelf id")
		return
	}
	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookID"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	if err := s.shelves.RemoveBook(r.Context(), userID, shelfID, bookID); err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
