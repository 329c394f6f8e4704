package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/Dosada05/track-bracket/models"
)

const resultContentType = "application/json"

// ResultArchiver stores the final document of decided games.
type ResultArchiver struct {
	uploader FileUploader
}

func NewResultArchiver(uploader FileUploader) *ResultArchiver {
	return &ResultArchiver{uploader: uploader}
}

func ResultKey(gameID string) string {
	return fmt.Sprintf("results/%s.json", gameID)
}

// Archive uploads the game as JSON and returns its public URL.
func (a *ResultArchiver) Archive(ctx context.Context, game *models.Game) (string, error) {
	if !game.IsDecided() {
		return "", fmt.Errorf("game %s is not decided yet", game.ID)
	}
	body, err := json.Marshal(game)
	if err != nil {
		return "", fmt.Errorf("failed to encode game %s: %w", game.ID, err)
	}
	res, err := a.uploader.Upload(ctx, ResultKey(game.ID), resultContentType, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	return res.Location, nil
}

// URL returns where the result of a decided game is published.
func (a *ResultArchiver) URL(gameID string) string {
	return a.uploader.GetPublicURL(ResultKey(gameID))
}
