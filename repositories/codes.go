package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	CodeAlphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	CodeLength      = 6
	maxCodeAttempts = 5
)

// CodeGenerator produces candidate join codes. Uniqueness is enforced by storage.
type CodeGenerator func() (string, error)

func NewCodeGenerator() CodeGenerator {
	return func() (string, error) {
		return gonanoid.Generate(CodeAlphabet, CodeLength)
	}
}

// NormalizeCode upper-cases a user supplied code and drops everything that is
// not a letter or digit, so " ab-12c " finds "AB12C".
func NormalizeCode(code string) string {
	return strings.Map(func(r rune) rune {
		r = unicode.ToUpper(r)
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, code)
}

// insertWithUniqueCode draws codes until insert stops reporting ErrCodeConflict.
func insertWithUniqueCode(ctx context.Context, gen CodeGenerator, insert func(code string) error) error {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := gen()
		if err != nil {
			return fmt.Errorf("failed to generate join code: %w", err)
		}
		err = insert(NormalizeCode(code))
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrCodeConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return fmt.Errorf("%w: no free code after %d attempts", ErrCodeConflict, maxCodeAttempts)
}
