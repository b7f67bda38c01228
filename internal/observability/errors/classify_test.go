package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	apperrors "github.com/upswyng/alert-worker/internal/errors"
)

type saveError struct{}

func (*saveError) Error() string { return "save" }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"canceled", fmt.Errorf("run: %w", context.Canceled), "canceled"},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"app code", apperrors.NotFound("alert"), "not_found"},
		{"wrapped app code", fmt.Errorf("save: %w", apperrors.Wrap(goerrors.New("x"), apperrors.ErrCodeUnavailable, "db")), "unavailable"},
		{"innermost type", fmt.Errorf("outer: %w", &saveError{}), "errors_saveerror"},
		{"plain", goerrors.New("boom"), "errors_errorstring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
