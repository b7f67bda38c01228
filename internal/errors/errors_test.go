package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "alert not found", NotFound("alert not found").Error())
	wrapped := Wrap(errors.New("boom"), ErrCodeInternal, "save alert")
	assert.Equal(t, "save alert: boom", wrapped.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("root")
	err := Wrapf(cause, ErrCodeUnavailable, "query %s", "alerts")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "query alerts: root", err.Error())
}

func TestWrap_NilError(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "x"))
}

func TestCodePredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"not found", NotFoundf("job %s", "1"), IsNotFound, true},
		{"validation", Validationf("bad %d", 1), IsValidation, true},
		{"validation field", ValidationField("title", "required"), IsValidation, true},
		{"conflict", &AppError{Code: ErrCodeConflict}, IsConflict, true},
		{"timeout", &AppError{Code: ErrCodeTimeout}, IsTimeout, true},
		{"canceled", &AppError{Code: ErrCodeCanceled}, IsCanceled, true},
		{"transient unavailable", &AppError{Code: ErrCodeUnavailable}, IsTransient, true},
		{"transient timeout", &AppError{Code: ErrCodeTimeout}, IsTransient, true},
		{"not transient", Internal("x"), IsTransient, false},
		{"plain error", errors.New("x"), IsNotFound, false},
		{"nil", nil, IsNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestGetCodeAndField(t *testing.T) {
	err := ValidationField("title", "required")
	wrapped := errors.Join(errors.New("outer"), err)

	assert.Equal(t, ErrCodeValidation, GetCode(wrapped))
	assert.Equal(t, "title", GetField(wrapped))
	assert.Empty(t, GetCode(errors.New("plain")))
	assert.Empty(t, GetField(nil))

	var app *AppError
	require.ErrorAs(t, wrapped, &app)
}
