package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Dosada05/track-bracket/catalog"
	"github.com/Dosada05/track-bracket/models"
)

type CatalogService interface {
	ListPlaylists(ctx context.Context, credential string) ([]models.Playlist, error)
	ListPlaylistTracks(ctx context.Context, credential, playlistID string) ([]models.Track, error)
}

type catalogService struct {
	client catalog.Client
	logger *slog.Logger
}

func NewCatalogService(client catalog.Client, logger *slog.Logger) CatalogService {
	return &catalogService{client: client, logger: logger}
}

func (s *catalogService) ListPlaylists(ctx context.Context, credential string) ([]models.Playlist, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, ErrCatalogUnauthorized
	}
	playlists, err := s.client.ListPlaylists(ctx, credential)
	if err != nil {
		s.logger.Warn("failed to list playlists", slog.Any("error", err))
		return nil, mapCatalogError(err)
	}
	return playlists, nil
}

func (s *catalogService) ListPlaylistTracks(ctx context.Context, credential, playlistID string) ([]models.Track, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, ErrCatalogUnauthorized
	}
	if strings.TrimSpace(playlistID) == "" {
		return nil, validationError("playlist id is required")
	}
	tracks, err := s.client.ListTracks(ctx, credential, playlistID)
	if err != nil {
		s.logger.Warn("failed to list playlist tracks", slog.String("playlist_id", playlistID), slog.Any("error", err))
		return nil, mapCatalogError(err)
	}
	return tracks, nil
}
