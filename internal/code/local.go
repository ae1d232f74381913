package code

import (
	"context"
	"crypto/rand"

	"github.com/Raimguzhinov/alarmd/internal/alarm"
)

// largest multiple of len(Alphabet) that fits in a byte; bytes at or above it
// are rejected so every symbol is equally likely
const rejectAbove = 256 - 256%len(Alphabet)

type Local struct{}

func (Local) Generate(context.Context) (string, error) {
	out := make([]byte, 0, alarm.CodeLength)
	buf := make([]byte, alarm.CodeLength*2)

	for len(out) < alarm.CodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == alarm.CodeLength {
				break
			}
		}
	}
	return string(out), nil
}
