package repositories

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	ErrGameNotFound = errors.New("game not found")
	// ErrCodeConflict: сгенерированный код уже занят другой игрой.
	ErrCodeConflict = errors.New("join code conflict")
	// ErrTransient covers lock timeouts, serialization failures and dropped
	// connections. The caller may retry the whole operation.
	ErrTransient = errors.New("transient storage error")
	// ErrCommitUnknown: соединение оборвалось во время COMMIT, изменения
	// могли сохраниться. Повторять операцию нельзя.
	ErrCommitUnknown = errors.New("commit outcome unknown")
)

// SQLExecutor is satisfied by both *sql.DB and *sql.Tx.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func checkAffectedRows(result sql.Result, notFoundError error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return notFoundError // Возвращаем переданную ошибку "не найдено"
	}
	return nil
}

// mapStorageError classifies driver errors. Unknown errors are returned as is.
func mapStorageError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03", // lock_not_available (lock_timeout)
			"57014": // query_canceled (statement_timeout)
			return fmt.Errorf("%w: %w", ErrTransient, err)
		case "23503": // foreign_key_violation
			switch pqErr.Constraint {
			case "participants_game_id_fkey", "votes_game_id_fkey":
				return ErrGameNotFound
			}
		case "23505": // unique_violation
			if pqErr.Constraint == "games_code_key" {
				return ErrCodeConflict
			}
		}
		return err
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}

// mapCommitError classifies a failed COMMIT. An error reported by the server
// means the transaction was rolled back. Anything else leaves the outcome
// unknown and is never transient.
func mapCommitError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return mapStorageError(err)
	}
	return fmt.Errorf("%w: %w", ErrCommitUnknown, err)
}
