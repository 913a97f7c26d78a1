package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPDFError(t *testing.T) {
	tests := []struct {
		name string
		err  *PDFError
		want string
	}{
		{
			name: "plain",
			err:  NewPDFError(ErrorTypeInvalidHeader, "missing %PDF- header"),
			want: "[INVALID_HEADER] missing %PDF- header",
		},
		{
			name: "with context",
			err:  NewPDFErrorWithContext(ErrorTypeUnsupportedFeature, "encrypted document", "/Encrypt in trailer"),
			want: "[UNSUPPORTED_FEATURE] encrypted document: /Encrypt in trailer",
		},
		{
			name: "unknown type",
			err:  NewPDFError(ErrorType(42), "boom"),
			want: "[UNKNOWN] boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestWrapError(t *testing.T) {
	cause := errors.New("offset 12 out of range")
	err := WrapError(ErrorTypeCorruptedXRef, "cannot read cross-reference", cause).WithLocation(12, 3)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, int64(12), err.Offset)
	assert.Equal(t, 3, err.ObjectNum)
	assert.Contains(t, err.Error(), "CORRUPTED_XREF")

	wrapped := fmt.Errorf("assemble: %w", err)
	assert.True(t, IsType(wrapped, ErrorTypeCorruptedXRef))
	assert.False(t, IsType(wrapped, ErrorTypeInvalidHeader))
	assert.False(t, IsType(cause, ErrorTypeCorruptedXRef))
}
