package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dosada05/track-bracket/catalog"
	"github.com/Dosada05/track-bracket/models"
	"github.com/Dosada05/track-bracket/repositories"
)

// Общие ошибки, используемые в сервисах и маппинге HTTP.
var (
	// Ресурс не найден (универсальная)
	ErrNotFound = errors.New("requested resource not found")

	// Ошибка валидации входных данных
	ErrValidationFailed = errors.New("validation failed")

	// ErrTransient: хранилище не ответило даже после повторной попытки. Клиенту стоит повторить запрос.
	ErrTransient = errors.New("temporarily unavailable, try again")

	// ErrCorruptedState is fatal for the affected game and is never repaired automatically.
	ErrCorruptedState = models.ErrCorruptedState

	// Ошибки каталога
	ErrCatalogUnauthorized = errors.New("catalog credential is missing or rejected")
	ErrCatalogUnavailable  = errors.New("catalog is unavailable")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidationFailed, fmt.Sprintf(format, args...))
}

// mapRepoError translates repository errors into the service taxonomy.
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrGameNotFound):
		return fmt.Errorf("%w: game", ErrNotFound)
	case errors.Is(err, repositories.ErrTransient):
		return fmt.Errorf("%w: %v", ErrTransient, err)
	case errors.Is(err, models.ErrCorruptedState),
		errors.Is(err, ErrValidationFailed),
		errors.Is(err, ErrNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("storage error: %w", err)
	}
}

func mapCatalogError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, catalog.ErrUnauthorized):
		return ErrCatalogUnauthorized
	case errors.Is(err, catalog.ErrPlaylistNotFound):
		return fmt.Errorf("%w: playlist", ErrNotFound)
	case errors.Is(err, catalog.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	default:
		return fmt.Errorf("catalog error: %w", err)
	}
}
