package alarm

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func (d *Draft) normalize() {
	d.Label = strings.TrimSpace(d.Label)
}

func ValidateDraft(d Draft) error {
	d.normalize()
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func ValidatePatch(p Patch) error {
	if p.Label != nil {
		label := strings.TrimSpace(*p.Label)
		p.Label = &label
	}
	if p.Time != nil && p.Time.IsZero() {
		return fmt.Errorf("%w: time must be set", ErrInvalid)
	}
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func ValidateRingtone(r Ringtone) error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}
