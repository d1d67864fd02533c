package canonerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIs(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{name: "locked matches sentinel", err: Locked("e1"), target: ErrLocked, want: true},
		{name: "locked does not match not found", err: Locked("e1"), target: ErrNotFound, want: false},
		{name: "wrapped not found", err: fmt.Errorf("loading: %w", NotFound("entry", "e1")), target: ErrNotFound, want: true},
		{name: "validation", err: Validation("name is required"), target: ErrValidation, want: true},
		{name: "conflict", err: Conflict("e1", "version mismatch", nil), target: ErrConflict, want: true},
		{name: "invalid argument", err: InvalidArgument("bad kind %q", "x"), target: ErrInvalidArgument, want: true},
		{name: "plain error", err: errors.New("boom"), target: ErrConflict, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "entry not found (e1)", NotFound("entry", "e1").Error())
	assert.Equal(t, "bad kind \"x\"", InvalidArgument("bad kind %q", "x").Error())

	cause := errors.New("UNIQUE constraint failed")
	err := Conflict("", "slug already taken", cause)
	assert.Equal(t, "slug already taken: UNIQUE constraint failed", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeLocked, CodeOf(fmt.Errorf("updating: %w", Locked("e1"))))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
	assert.Equal(t, Code(""), CodeOf(nil))
}
