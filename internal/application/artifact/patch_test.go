package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "chat-artifact-api/pkg/errors"
)

func TestPatchLines(t *testing.T) {
	tests := []struct {
		name        string
		original    string
		replacement string
		r           LineRange
		want        string
	}{
		{
			name:        "replace middle block",
			original:    "a\nb\nc\nd",
			replacement: "X\nY",
			r:           LineRange{Start: 2, End: 3},
			want:        "a\nX\nY\nd",
		},
		{
			name:        "out of bounds clamps to last line",
			original:    "a",
			replacement: "X",
			r:           LineRange{Start: 5, End: 5},
			want:        "X",
		},
		{
			name:        "replace first line",
			original:    "a\nb\nc",
			replacement: "X",
			r:           LineRange{Start: 1, End: 1},
			want:        "X\nb\nc",
		},
		{
			name:        "replace whole document",
			original:    "a\nb\nc",
			replacement: "X\nY",
			r:           LineRange{Start: 1, End: 3},
			want:        "X\nY",
		},
		{
			name:        "replacement longer than range",
			original:    "a\nb",
			replacement: "X\nY\nZ",
			r:           LineRange{Start: 2, End: 2},
			want:        "a\nX\nY\nZ",
		},
		{
			name:        "zero start clamps to first line",
			original:    "a\nb",
			replacement: "X",
			r:           LineRange{Start: 0, End: 1},
			want:        "X\nb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PatchLines(tt.original, tt.replacement, tt.r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPatchLinesInvalidRange(t *testing.T) {
	_, err := PatchLines("a\nb", "X", LineRange{Start: 2, End: 1})
	require.Error(t, err)

	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeInvalidLineRange, appErr.Code)
}

func TestPatchLinesDoesNotMutateInput(t *testing.T) {
	original := "a\nb\nc"
	_, err := PatchLines(original, "X", LineRange{Start: 2, End: 2})
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc", original)
}
