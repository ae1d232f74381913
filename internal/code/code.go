// Package code produces dismissal codes. A Generator always yields a valid
// code: it asks its primary Source (usually the remote service) and falls back
// to local generation on error, timeout, or malformed output.
package code

import (
	"context"
	"errors"
	"fmt"

	"github.com/Raimguzhinov/alarmd/internal/alarm"
)

const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var ErrMalformed = errors.New("malformed dismissal code")

type Source interface {
	Generate(ctx context.Context) (string, error)
}

// Validate rejects anything but ^[A-Z0-9]{8}$.
func Validate(code string) error {
	if !alarm.ValidCode(code) {
		return fmt.Errorf("%w: %q", ErrMalformed, code)
	}
	return nil
}
