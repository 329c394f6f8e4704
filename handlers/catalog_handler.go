package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Dosada05/track-bracket/middleware"
	"github.com/Dosada05/track-bracket/services"
)

type CatalogHandler struct {
	catalogService services.CatalogService
}

func NewCatalogHandler(cs services.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: cs}
}

// ListPlaylistsHandler обрабатывает GET /api/catalog/playlists
func (h *CatalogHandler) ListPlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	playlists, err := h.catalogService.ListPlaylists(r.Context(), middleware.BearerCredential(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"playlists": playlists}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListTracksHandler обрабатывает GET /api/catalog/playlists/{playlistID}/tracks
func (h *CatalogHandler) ListTracksHandler(w http.ResponseWriter, r *http.Request) {
	playlistID := chi.URLParam(r, "playlistID")

	tracks, err := h.catalogService.ListPlaylistTracks(r.Context(), middleware.BearerCredential(r), playlistID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tracks": tracks}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
